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

// Package modbus implements the Modbus/TCP read-holding-registers exchange:
// MBAP framing, reply validation and exception classification.
package modbus

import (
	"encoding/binary"
	"fmt"

	"github.com/goburrow/modbus"
)

const (
	// MaxQuantity is the protocol limit of registers per read request.
	MaxQuantity = 125

	headerSize     = 7
	requestSize    = headerSize + 5
	requestLength  = 6
	protocolID     = 0
	exceptionMask  = 0x80
	minLengthField = 2
	maxLengthField = 254
	functionReadHR = modbus.FuncCodeReadHoldingRegisters
)

// Request is one read-holding-registers call.
type Request struct {
	TransactionID uint16
	UnitID        uint8
	Address       uint16
	Quantity      uint16
}

// Encode returns the 12-byte ADU for r.
func (r Request) Encode() []byte {
	b := make([]byte, requestSize)

	binary.BigEndian.PutUint16(b[0:], r.TransactionID)
	binary.BigEndian.PutUint16(b[2:], protocolID)
	binary.BigEndian.PutUint16(b[4:], requestLength)
	b[6] = r.UnitID
	b[7] = functionReadHR
	binary.BigEndian.PutUint16(b[8:], r.Address)
	binary.BigEndian.PutUint16(b[10:], r.Quantity)

	return b
}

type header struct {
	transactionID uint16
	protocolID    uint16
	length        uint16
	unitID        uint8
}

// bodyLength is the number of bytes that follow the header.
func (h header) bodyLength() int {
	return int(h.length) - 1
}

func decodeHeader(b []byte) (header, error) {
	if len(b) < headerSize {
		return header{}, fmt.Errorf("%w: header is %d bytes", ErrInvalidLength, len(b))
	}

	h := header{
		transactionID: binary.BigEndian.Uint16(b[0:]),
		protocolID:    binary.BigEndian.Uint16(b[2:]),
		length:        binary.BigEndian.Uint16(b[4:]),
		unitID:        b[6],
	}

	if h.length < minLengthField || h.length > maxLengthField {
		return h, fmt.Errorf("%w: %d", ErrInvalidLength, h.length)
	}

	return h, nil
}

// parseResponse validates a reply to r and returns its words in request order.
// A well-formed exception reply is returned as *modbus.ModbusError.
func (r Request) parseResponse(h header, pdu []byte) ([]uint16, error) {
	if h.transactionID != r.TransactionID {
		return nil, fmt.Errorf("%w: sent %d, received %d", ErrTransactionMismatch, r.TransactionID, h.transactionID)
	}

	if h.protocolID != protocolID {
		return nil, fmt.Errorf("%w: %d", ErrProtocolMismatch, h.protocolID)
	}

	if len(pdu) != h.bodyLength() || len(pdu) < 2 {
		return nil, fmt.Errorf("%w: pdu is %d bytes", ErrInvalidLength, len(pdu))
	}

	fc := pdu[0]

	if fc&exceptionMask != 0 {
		return nil, &modbus.ModbusError{FunctionCode: fc, ExceptionCode: pdu[1]}
	}

	if fc != functionReadHR {
		return nil, fmt.Errorf("%w: %#02x", ErrUnexpectedFunction, fc)
	}

	byteCount := int(pdu[1])
	if byteCount != 2*int(r.Quantity) || len(pdu)-2 != byteCount {
		return nil, fmt.Errorf("%w: requested %d registers, byte count %d, payload %d",
			ErrByteCountMismatch, r.Quantity, byteCount, len(pdu)-2)
	}

	words := make([]uint16, r.Quantity)
	for i := range words {
		words[i] = binary.BigEndian.Uint16(pdu[2+2*i:])
	}

	return words, nil
}
