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
	"encoding/binary"
	"io"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// replyFunc builds the frame written back for one request. Returning nil
// closes the connection.
type replyFunc func(req []byte) []byte

func startFakeSlave(t *testing.T, reply replyFunc) string {
	t.Helper()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { _ = ln.Close() })

	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}

			go serveFakeConn(conn, reply)
		}
	}()

	return ln.Addr().String()
}

func serveFakeConn(conn net.Conn, reply replyFunc) {
	defer func() { _ = conn.Close() }()

	buf := make([]byte, requestSize)

	for {
		if _, err := io.ReadFull(conn, buf); err != nil {
			return
		}

		out := reply(buf)
		if out == nil {
			return
		}

		if _, err := conn.Write(out); err != nil {
			return
		}
	}
}

// registerBank answers with word value == register address.
func registerBank(req []byte) []byte {
	tid := binary.BigEndian.Uint16(req[0:])
	addr := binary.BigEndian.Uint16(req[8:])
	qty := binary.BigEndian.Uint16(req[10:])

	words := make([]uint16, qty)
	for i := range words {
		words[i] = addr + uint16(i)
	}

	return encodeResponse(tid, req[6], words)
}

func dialFake(t *testing.T, addr string, timeout time.Duration) *Client {
	t.Helper()

	c, err := Dial(context.Background(), addr, time.Second, timeout)
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })

	return c
}

func TestClient_ReadHoldingRegisters(t *testing.T) {
	var (
		mu   sync.Mutex
		tids []uint16
	)

	addr := startFakeSlave(t, func(req []byte) []byte {
		mu.Lock()
		tids = append(tids, binary.BigEndian.Uint16(req[0:]))
		mu.Unlock()

		return registerBank(req)
	})

	c := dialFake(t, addr, time.Second)

	words, err := c.ReadHoldingRegisters(context.Background(), 1, 100, 3)
	require.NoError(t, err)
	assert.Equal(t, []uint16{100, 101, 102}, words)

	words, err = c.ReadHoldingRegisters(context.Background(), 1, 0, MaxQuantity)
	require.NoError(t, err)
	assert.Len(t, words, MaxQuantity)
	assert.Equal(t, uint16(124), words[124])

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []uint16{1, 2}, tids)
}

func TestClient_TransactionIDWraps(t *testing.T) {
	addr := startFakeSlave(t, registerBank)
	c := dialFake(t, addr, time.Second)

	c.transactionID.Store(0xFFFF)

	_, err := c.ReadHoldingRegisters(context.Background(), 1, 0, 1)
	require.NoError(t, err)
	assert.Equal(t, uint16(1), c.nextTransactionID())
}

func TestClient_TransactionMismatch(t *testing.T) {
	addr := startFakeSlave(t, func(req []byte) []byte {
		tid := binary.BigEndian.Uint16(req[0:])

		return encodeResponse(tid+1, req[6], []uint16{1})
	})

	c := dialFake(t, addr, time.Second)

	_, err := c.ReadHoldingRegisters(context.Background(), 1, 0, 1)
	require.ErrorIs(t, err, ErrFraming)
	assert.False(t, IsSlaveException(err))
}

func TestClient_SlaveException(t *testing.T) {
	addr := startFakeSlave(t, func(req []byte) []byte {
		return encodeException(binary.BigEndian.Uint16(req[0:]), req[6], 0x02)
	})

	c := dialFake(t, addr, time.Second)

	_, err := c.ReadHoldingRegisters(context.Background(), 3, 10, 2)
	require.Error(t, err)
	assert.True(t, IsSlaveException(err))
	assert.NotErrorIs(t, err, ErrTransport)

	// the connection stays usable after an exception reply
	_, err = c.ReadHoldingRegisters(context.Background(), 3, 10, 2)
	assert.True(t, IsSlaveException(err))
}

func TestClient_ConnectionClosed(t *testing.T) {
	addr := startFakeSlave(t, func([]byte) []byte { return nil })
	c := dialFake(t, addr, time.Second)

	_, err := c.ReadHoldingRegisters(context.Background(), 1, 0, 1)
	require.ErrorIs(t, err, ErrTransport)
	assert.False(t, IsSlaveException(err))
}

func TestClient_Timeout(t *testing.T) {
	block := make(chan struct{})
	t.Cleanup(func() { close(block) })

	addr := startFakeSlave(t, func([]byte) []byte {
		<-block
		return nil
	})

	c := dialFake(t, addr, 50*time.Millisecond)

	start := time.Now()
	_, err := c.ReadHoldingRegisters(context.Background(), 1, 0, 1)
	require.ErrorIs(t, err, ErrTransport)
	assert.Less(t, time.Since(start), 2*time.Second)
}

func TestClient_ContextCancelled(t *testing.T) {
	block := make(chan struct{})
	t.Cleanup(func() { close(block) })

	addr := startFakeSlave(t, func([]byte) []byte {
		<-block
		return nil
	})

	c := dialFake(t, addr, 10*time.Second)

	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(30*time.Millisecond, cancel)

	_, err := c.ReadHoldingRegisters(ctx, 1, 0, 1)
	require.ErrorIs(t, err, ErrTransport)
	require.ErrorIs(t, err, context.Canceled)
}

func TestClient_InvalidQuantity(t *testing.T) {
	addr := startFakeSlave(t, registerBank)
	c := dialFake(t, addr, time.Second)

	_, err := c.ReadHoldingRegisters(context.Background(), 1, 0, 0)
	require.ErrorIs(t, err, ErrInvalidQuantity)

	_, err = c.ReadHoldingRegisters(context.Background(), 1, 0, MaxQuantity+1)
	require.ErrorIs(t, err, ErrInvalidQuantity)

	_, err = c.ReadHoldingRegisters(context.Background(), 1, 65535, 2)
	require.ErrorIs(t, err, ErrInvalidQuantity)

	words, err := c.ReadHoldingRegisters(context.Background(), 1, 65535, 1)
	require.NoError(t, err)
	assert.Equal(t, []uint16{65535}, words)
}

func TestDial_Refused(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	addr := ln.Addr().String()
	require.NoError(t, ln.Close())

	_, err = Dial(context.Background(), addr, 200*time.Millisecond, time.Second)
	require.ErrorIs(t, err, ErrTransport)
}
