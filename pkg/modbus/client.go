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
	"context"
	"fmt"
	"io"
	"net"
	"sync"
	"sync/atomic"
	"time"
)

const defaultRequestTimeout = 3 * time.Second

// Client issues read requests over one TCP connection. Requests on a client
// are serialized; the transaction id counter is per connection.
type Client struct {
	conn          net.Conn
	timeout       time.Duration
	transactionID atomic.Uint32
	mu            sync.Mutex
}

// Dial opens a connection bounded by connectTimeout. requestTimeout bounds
// each later read; zero selects a 3s default.
func Dial(ctx context.Context, address string, connectTimeout, requestTimeout time.Duration) (*Client, error) {
	dialer := net.Dialer{Timeout: connectTimeout}

	conn, err := dialer.DialContext(ctx, "tcp", address)
	if err != nil {
		return nil, fmt.Errorf("%w: dial %s: %w", ErrTransport, address, err)
	}

	return NewClient(conn, requestTimeout), nil
}

// NewClient wraps an established connection.
func NewClient(conn net.Conn, requestTimeout time.Duration) *Client {
	if requestTimeout <= 0 {
		requestTimeout = defaultRequestTimeout
	}

	return &Client{conn: conn, timeout: requestTimeout}
}

func (c *Client) nextTransactionID() uint16 {
	return uint16(c.transactionID.Add(1))
}

// ReadHoldingRegisters reads quantity registers starting at the zero-based
// address from unit.
func (c *Client) ReadHoldingRegisters(ctx context.Context, unitID uint8, address, quantity uint16) ([]uint16, error) {
	if quantity == 0 || quantity > MaxQuantity {
		return nil, fmt.Errorf("%w: %d", ErrInvalidQuantity, quantity)
	}

	if int(address)+int(quantity) > 1<<16 {
		return nil, fmt.Errorf("%w: %d registers at %d", ErrInvalidQuantity, quantity, address)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	req := Request{
		TransactionID: c.nextTransactionID(),
		UnitID:        unitID,
		Address:       address,
		Quantity:      quantity,
	}

	deadline := time.Now().Add(c.timeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}

	if err := c.conn.SetDeadline(deadline); err != nil {
		return nil, fmt.Errorf("%w: set deadline: %w", ErrTransport, err)
	}

	// unblock pending I/O when ctx is cancelled
	stop := context.AfterFunc(ctx, func() {
		_ = c.conn.SetDeadline(time.Now())
	})
	defer stop()

	if _, err := c.conn.Write(req.Encode()); err != nil {
		return nil, c.transportError(ctx, "write", err)
	}

	var hdrBuf [headerSize]byte
	if _, err := io.ReadFull(c.conn, hdrBuf[:]); err != nil {
		return nil, c.transportError(ctx, "read header", err)
	}

	hdr, err := decodeHeader(hdrBuf[:])
	if err != nil {
		return nil, err
	}

	pdu := make([]byte, hdr.bodyLength())
	if _, err := io.ReadFull(c.conn, pdu); err != nil {
		return nil, c.transportError(ctx, "read body", err)
	}

	words, err := req.parseResponse(hdr, pdu)
	if err != nil {
		return nil, fmt.Errorf("unit %d, %d registers at %d: %w", unitID, quantity, address, err)
	}

	return words, nil
}

func (*Client) transportError(ctx context.Context, op string, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return fmt.Errorf("%w: %s: %w", ErrTransport, op, ctxErr)
	}

	return fmt.Errorf("%w: %s: %w", ErrTransport, op, err)
}

// Close closes the underlying connection.
func (c *Client) Close() error {
	return c.conn.Close()
}
