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

package modbus

import (
	"encoding/binary"
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
	"pgregory.net/rapid"
)

func drawRequest(t *rapid.T) Request {
	return Request{
		TransactionID: rapid.Uint16().Draw(t, "transactionID"),
		UnitID:        rapid.Uint8Range(1, 247).Draw(t, "unitID"),
		Address:       rapid.Uint16().Draw(t, "address"),
		Quantity:      rapid.Uint16Range(1, MaxQuantity).Draw(t, "quantity"),
	}
}

func TestRequestEncodeProperty(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		req := drawRequest(t)
		raw := req.Encode()

		if len(raw) != requestSize {
			t.Fatalf("encoded %d bytes", len(raw))
		}

		hdr, err := decodeHeader(raw[:headerSize])
		if err != nil {
			t.Fatalf("error while decoding header: %+v", err)
		}

		if hdr.transactionID != req.TransactionID || hdr.protocolID != 0 || hdr.unitID != req.UnitID {
			t.Fatalf("header mismatch: %+v", hdr)
		}

		if hdr.bodyLength() != len(raw)-headerSize {
			t.Fatalf("length field %d does not cover body %d", hdr.length, len(raw)-headerSize)
		}

		if got := binary.BigEndian.Uint16(raw[8:]); got != req.Address {
			t.Fatalf("address %d, want %d", got, req.Address)
		}

		if got := binary.BigEndian.Uint16(raw[10:]); got != req.Quantity {
			t.Fatalf("quantity %d, want %d", got, req.Quantity)
		}
	})
}

func TestResponseRoundTripProperty(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		req := drawRequest(t)
		words := rapid.SliceOfN(rapid.Uint16(), int(req.Quantity), int(req.Quantity)).Draw(t, "words")

		frame := encodeResponse(req.TransactionID, req.UnitID, words)

		hdr, err := decodeHeader(frame[:headerSize])
		if err != nil {
			t.Fatalf("error while decoding header: %+v", err)
		}

		got, err := req.parseResponse(hdr, frame[headerSize:])
		if err != nil {
			t.Fatalf("error while parsing response: %+v", err)
		}

		if !cmp.Equal(words, got) {
			t.Errorf("invalid words: %s", cmp.Diff(words, got))
		}
	})
}

func TestForeignTransactionRejectedProperty(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		req := drawRequest(t)
		other := rapid.Uint16().Filter(func(v uint16) bool { return v != req.TransactionID }).Draw(t, "otherID")

		frame := encodeResponse(other, req.UnitID, make([]uint16, req.Quantity))

		hdr, err := decodeHeader(frame[:headerSize])
		if err != nil {
			t.Fatalf("error while decoding header: %+v", err)
		}

		if _, err := req.parseResponse(hdr, frame[headerSize:]); !errors.Is(err, ErrTransactionMismatch) {
			t.Fatalf("expected transaction mismatch, got %v", err)
		}
	})
}
