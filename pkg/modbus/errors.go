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
	"errors"
	"fmt"

	"github.com/goburrow/modbus"
)

var (
	// ErrTransport covers dial, write, read, timeout and closed-connection
	// failures. These are device-wide and never count against a register.
	ErrTransport = errors.New("modbus transport error")
	// ErrFraming covers replies that cannot be correlated or parsed.
	ErrFraming = errors.New("modbus framing error")

	ErrTransactionMismatch = fmt.Errorf("%w: transaction id mismatch", ErrFraming)
	ErrProtocolMismatch    = fmt.Errorf("%w: protocol id is not 0", ErrFraming)
	ErrInvalidLength       = fmt.Errorf("%w: invalid length field", ErrFraming)
	ErrByteCountMismatch   = fmt.Errorf("%w: byte count mismatch", ErrFraming)
	ErrUnexpectedFunction  = fmt.Errorf("%w: unexpected function code", ErrFraming)

	ErrInvalidQuantity = errors.New("register quantity out of range")
)

// IsSlaveException reports whether err carries a well-formed exception reply
// from the slave.
func IsSlaveException(err error) bool {
	var mbErr *modbus.ModbusError

	return errors.As(err, &mbErr)
}

// ExceptionCode extracts the slave exception code from err.
func ExceptionCode(err error) (byte, bool) {
	var mbErr *modbus.ModbusError
	if !errors.As(err, &mbErr) {
		return 0, false
	}

	return mbErr.ExceptionCode, true
}
