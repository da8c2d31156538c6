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

package decoder

import (
	"testing"

	"github.com/carverauto/modbus-poller/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func float32Reg(order models.ByteOrder, swap bool, scale float64) models.Register {
	return models.Register{DataType: models.DataTypeFloat32, ByteOrder: order, WordSwap: swap, Scale: scale}
}

func TestDecode_Float32(t *testing.T) {
	tests := []struct {
		name  string
		reg   models.Register
		words []uint16
		want  float64
	}{
		{name: "big endian", reg: float32Reg(models.ByteOrderBig, false, 1), words: []uint16{0x4120, 0x0000}, want: 10.0},
		{name: "word swapped", reg: float32Reg(models.ByteOrderBig, true, 1), words: []uint16{0x0000, 0x4120}, want: 10.0},
		{name: "little endian", reg: float32Reg(models.ByteOrderLittle, false, 1), words: []uint16{0x0000, 0x2041}, want: 10.0},
		{name: "little endian swapped", reg: float32Reg(models.ByteOrderLittle, true, 1), words: []uint16{0x2041, 0x0000}, want: 10.0},
		{name: "default byte order", reg: float32Reg("", false, 1), words: []uint16{0x42F6, 0xE979}, want: 123.456},
		{name: "scaled", reg: float32Reg(models.ByteOrderBig, false, 0.5), words: []uint16{0x4120, 0x0000}, want: 5.0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v, ok := Decode(tt.reg, tt.words, 0, 2)
			require.True(t, ok)
			assert.False(t, v.Fallback)
			assert.InDelta(t, tt.want, v.Value, 1e-3)
		})
	}
}

func TestDecode_Float32Fallback(t *testing.T) {
	tests := []struct {
		name  string
		words []uint16
		scale float64
		want  float64
	}{
		{name: "both words zero", words: []uint16{0x0000, 0x0000}, scale: 2, want: 0},
		{name: "nan", words: []uint16{0x7FC0, 0x0000}, scale: 1, want: 0x7FC0},
		{name: "infinity", words: []uint16{0x7F80, 0x0000}, scale: 0.1, want: 0x7F80 * 0.1},
		{name: "implausibly large", words: []uint16{0x7F00, 0x0000}, scale: 1, want: 0x7F00},
		{name: "denormal", words: []uint16{0x0000, 0x0001}, scale: 1, want: 0},
		{name: "tiny", words: []uint16{0x3400, 0x0000}, scale: 10, want: 0x3400 * 10},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v, ok := Decode(float32Reg(models.ByteOrderBig, false, tt.scale), tt.words, 0, 2)
			require.True(t, ok)
			assert.True(t, v.Fallback)
			assert.InDelta(t, tt.want, v.Value, 1e-9)
		})
	}
}

func TestDecode_Integers(t *testing.T) {
	tests := []struct {
		name  string
		reg   models.Register
		words []uint16
		want  float64
	}{
		{name: "uint16", reg: models.Register{DataType: models.DataTypeUint16, Scale: 1}, words: []uint16{0xFFFF}, want: 65535},
		{name: "int16 negative", reg: models.Register{DataType: models.DataTypeInt16, Scale: 1}, words: []uint16{0xFFFE}, want: -2},
		{name: "int16 scaled", reg: models.Register{DataType: models.DataTypeInt16, Scale: 0.1}, words: []uint16{235}, want: 23.5},
		{name: "untyped defaults to uint16", reg: models.Register{}, words: []uint16{7}, want: 7},
		{name: "uint32", reg: models.Register{DataType: models.DataTypeUint32}, words: []uint16{0x0001, 0x0002}, want: 65538},
		{name: "uint32 swapped", reg: models.Register{DataType: models.DataTypeUint32, WordSwap: true}, words: []uint16{0x0002, 0x0001}, want: 65538},
		{name: "int32 negative", reg: models.Register{DataType: models.DataTypeInt32}, words: []uint16{0xFFFF, 0xFFFF}, want: -1},
		{name: "int32 little", reg: models.Register{DataType: models.DataTypeInt32, ByteOrder: models.ByteOrderLittle}, words: []uint16{0x0100, 0x0000}, want: 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v, ok := Decode(tt.reg, tt.words, 0, tt.reg.WordLength())
			require.True(t, ok)
			assert.False(t, v.Fallback)
			assert.InDelta(t, tt.want, v.Value, 1e-9)
		})
	}
}

func TestDecode_UsesRelativeOffset(t *testing.T) {
	words := []uint16{1, 2, 0x4120, 0x0000, 9}

	v, ok := Decode(float32Reg(models.ByteOrderBig, false, 1), words, 2, 2)
	require.True(t, ok)
	assert.InDelta(t, 10.0, v.Value, 1e-9)

	v, ok = Decode(models.Register{DataType: models.DataTypeUint16}, words, 4, 1)
	require.True(t, ok)
	assert.InDelta(t, 9.0, v.Value, 0)
}

func TestDecode_BoundsSkip(t *testing.T) {
	reg := float32Reg(models.ByteOrderBig, false, 1)

	_, ok := Decode(reg, []uint16{0x4120}, 0, 2)
	assert.False(t, ok)

	_, ok = Decode(reg, []uint16{0x4120, 0, 0}, 2, 2)
	assert.False(t, ok)

	_, ok = Decode(reg, []uint16{0x4120, 0}, -1, 2)
	assert.False(t, ok)

	// a float clamped to one word cannot be decoded
	_, ok = Decode(reg, []uint16{0x4120, 0}, 0, 1)
	assert.False(t, ok)
}

func TestDecode_UnknownType(t *testing.T) {
	_, ok := Decode(models.Register{DataType: "bcd"}, []uint16{1}, 0, 1)
	assert.False(t, ok)
}
