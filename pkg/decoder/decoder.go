/*
 * Copyright 2025 Carver Automation Corporation.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

// Package decoder converts raw holding-register words into scaled
// engineering values.
package decoder

import (
	"encoding/binary"
	"math"

	"github.com/carverauto/modbus-poller/pkg/models"
)

const (
	// Float32 results beyond this magnitude are treated as a torn word pair.
	implausibleMagnitude = 1e10
	// Float32 results below this magnitude are treated the same way.
	nearZero = 1e-6
)

// Value is a decoded register value.
type Value struct {
	Value float64
	// Fallback is set when a float32 read was replaced by the scaled first word.
	Fallback bool
}

// Decode extracts reg from the words returned for a range. offset is the
// register's word index within words and length the word count planned for
// it. ok is false when the words do not cover the register or the data type
// is unknown; that is a skip for this cycle, not an error.
func Decode(reg models.Register, words []uint16, offset, length int) (Value, bool) {
	dt := reg.DataType
	if dt == "" {
		dt = models.DataTypeUint16
	}

	if !dt.Valid() || length < dt.Words() {
		return Value{}, false
	}

	if offset < 0 || offset+length > len(words) {
		return Value{}, false
	}

	scale := reg.ScaleFactor()
	w := words[offset : offset+dt.Words()]

	switch dt {
	case models.DataTypeInt16:
		return Value{Value: float64(int16(w[0])) * scale}, true
	case models.DataTypeUint16:
		return Value{Value: float64(w[0]) * scale}, true
	case models.DataTypeInt32:
		return Value{Value: float64(int32(uint32Of(w, reg.ByteOrder, reg.WordSwap))) * scale}, true
	case models.DataTypeUint32:
		return Value{Value: float64(uint32Of(w, reg.ByteOrder, reg.WordSwap)) * scale}, true
	case models.DataTypeFloat32:
		return decodeFloat32(w, reg.ByteOrder, reg.WordSwap, scale), true
	default:
		return Value{}, false
	}
}

func decodeFloat32(w []uint16, order models.ByteOrder, swap bool, scale float64) Value {
	f := float64(math.Float32frombits(uint32Of(w, order, swap)))

	if implausibleFloat(f, w) {
		return Value{Value: float64(w[0]) * scale, Fallback: true}
	}

	return Value{Value: f * scale}
}

func implausibleFloat(f float64, w []uint16) bool {
	switch {
	case math.IsNaN(f), math.IsInf(f, 0):
		return true
	case w[0] == 0 && w[1] == 0:
		return true
	case math.Abs(f) > implausibleMagnitude, math.Abs(f) < nearZero:
		return true
	default:
		return false
	}
}

// uint32Of assembles two words into four bytes in address order (second word
// first when swapped), reverses them for little-endian registers and reads
// the result big-endian.
func uint32Of(w []uint16, order models.ByteOrder, swap bool) uint32 {
	first, second := w[0], w[1]
	if swap {
		first, second = second, first
	}

	var buf [4]byte

	binary.BigEndian.PutUint16(buf[0:], first)
	binary.BigEndian.PutUint16(buf[2:], second)

	if order == models.ByteOrderLittle {
		buf[0], buf[1], buf[2], buf[3] = buf[3], buf[2], buf[1], buf[0]
	}

	return binary.BigEndian.Uint32(buf[:])
}
