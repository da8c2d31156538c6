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

// Package stream fans per-device reading batches out to websocket
// subscribers.
package stream

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	httputil "github.com/carverauto/modbus-poller/pkg/http"
	"github.com/carverauto/modbus-poller/pkg/logger"
	"github.com/carverauto/modbus-poller/pkg/models"
	"github.com/gorilla/websocket"
)

const (
	defaultSendBuffer   = 64
	defaultPingInterval = 30 * time.Second
	defaultWriteTimeout = 10 * time.Second
	readTimeoutFactor   = 2

	messageTypePing = "ping"
)

var ErrHubClosed = errors.New("stream hub closed")

// Message is a control frame sent to subscribers.
type Message struct {
	Type      string    `json:"type"`
	Timestamp time.Time `json:"timestamp"`
}

type subscriber struct {
	send    chan []byte
	devices []string
	remote  string
}

// Hub tracks websocket subscribers by device. Subscribers without a device
// filter receive every device.
type Hub struct {
	mu       sync.RWMutex
	byDevice map[string]map[*subscriber]struct{}
	all      map[*subscriber]struct{}
	closed   bool

	done      chan struct{}
	closeOnce sync.Once
	wg        sync.WaitGroup

	origins      []string
	sendBuffer   int
	pingInterval time.Duration
	writeTimeout time.Duration
	upgrader     websocket.Upgrader
	logger       logger.Logger

	dropped atomic.Int64
}

// NewHub applies defaults to zero-valued fields of cfg.
func NewHub(cfg models.StreamConfig, log logger.Logger) *Hub {
	h := &Hub{
		byDevice:     make(map[string]map[*subscriber]struct{}),
		all:          make(map[*subscriber]struct{}),
		done:         make(chan struct{}),
		origins:      cfg.AllowedOrigins,
		sendBuffer:   cfg.SendBuffer,
		pingInterval: time.Duration(cfg.PingInterval),
		writeTimeout: time.Duration(cfg.WriteTimeout),
		logger:       log,
	}

	if h.sendBuffer <= 0 {
		h.sendBuffer = defaultSendBuffer
	}

	if h.pingInterval <= 0 {
		h.pingInterval = defaultPingInterval
	}

	if h.writeTimeout <= 0 {
		h.writeTimeout = defaultWriteTimeout
	}

	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     h.checkOrigin,
	}

	return h
}

// Broadcast queues msg for every subscriber of msg.DeviceID. Subscribers
// whose buffer is full miss the message.
func (h *Hub) Broadcast(_ context.Context, msg *models.BroadcastMessage) error {
	payload, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to marshal broadcast: %w", err)
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	if h.closed {
		return ErrHubClosed
	}

	for sub := range h.byDevice[msg.DeviceID] {
		h.offer(sub, payload, msg.DeviceID)
	}

	for sub := range h.all {
		h.offer(sub, payload, msg.DeviceID)
	}

	return nil
}

func (h *Hub) offer(sub *subscriber, payload []byte, deviceID string) {
	select {
	case sub.send <- payload:
	default:
		h.dropped.Add(1)
		h.logger.Debug().
			Str("client_addr", sub.remote).
			Str("device_id", deviceID).
			Msg("Subscriber buffer full, dropping broadcast")
	}
}

// Dropped returns the number of broadcasts skipped for slow subscribers.
func (h *Hub) Dropped() int64 {
	return h.dropped.Load()
}

// SubscriberCount returns the number of connected subscribers.
func (h *Hub) SubscriberCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	filtered := make(map[*subscriber]struct{})

	for _, subs := range h.byDevice {
		for sub := range subs {
			filtered[sub] = struct{}{}
		}
	}

	return len(h.all) + len(filtered)
}

func (h *Hub) register(sub *subscriber) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return ErrHubClosed
	}

	h.wg.Add(1)

	if len(sub.devices) == 0 {
		h.all[sub] = struct{}{}

		return nil
	}

	for _, id := range sub.devices {
		subs, ok := h.byDevice[id]
		if !ok {
			subs = make(map[*subscriber]struct{})
			h.byDevice[id] = subs
		}

		subs[sub] = struct{}{}
	}

	return nil
}

func (h *Hub) unregister(sub *subscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()

	delete(h.all, sub)

	for _, id := range sub.devices {
		subs := h.byDevice[id]
		delete(subs, sub)

		if len(subs) == 0 {
			delete(h.byDevice, id)
		}
	}
}

// ServeWS upgrades the request and streams batches for the devices listed
// in the comma-separated device_id query parameter.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	sub := &subscriber{
		devices: parseDeviceIDs(r.URL.Query().Get("device_id")),
		remote:  r.RemoteAddr,
	}
	sub.send = make(chan []byte, h.sendBuffer)

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error().
			Err(err).
			Str("remote_addr", r.RemoteAddr).
			Str("origin", r.Header.Get("Origin")).
			Msg("Failed to upgrade to WebSocket")

		return
	}

	if err := h.register(sub); err != nil {
		_ = conn.Close()

		return
	}

	defer h.wg.Done()

	h.logger.Info().
		Str("remote_addr", r.RemoteAddr).
		Strs("devices", sub.devices).
		Msg("WebSocket subscriber connected")

	ctx, cancel := context.WithCancel(r.Context())

	go h.readPump(conn, cancel)

	h.writePump(ctx, conn, sub)

	h.unregister(sub)
	_ = conn.Close()

	h.logger.Info().
		Str("remote_addr", r.RemoteAddr).
		Msg("WebSocket subscriber disconnected")
}

// readPump drains client frames so close and pong frames are processed,
// and cancels the stream when the client goes away.
func (h *Hub) readPump(conn *websocket.Conn, cancel context.CancelFunc) {
	defer cancel()

	readTimeout := h.pingInterval * readTimeoutFactor

	_ = conn.SetReadDeadline(time.Now().Add(readTimeout))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(readTimeout))
	})

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.logger.Debug().Err(err).Msg("WebSocket read ended")
			}

			return
		}

		_ = conn.SetReadDeadline(time.Now().Add(readTimeout))
	}
}

func (h *Hub) writePump(ctx context.Context, conn *websocket.Conn, sub *subscriber) {
	ticker := time.NewTicker(h.pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-h.done:
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"),
				time.Now().Add(h.writeTimeout))

			return
		case payload := <-sub.send:
			if err := h.write(conn, payload); err != nil {
				h.logger.Debug().Err(err).Str("client_addr", sub.remote).Msg("WebSocket write failed")

				return
			}
		case <-ticker.C:
			if err := h.ping(conn); err != nil {
				h.logger.Debug().Err(err).Str("client_addr", sub.remote).Msg("WebSocket ping failed")

				return
			}
		}
	}
}

func (h *Hub) write(conn *websocket.Conn, payload []byte) error {
	if err := conn.SetWriteDeadline(time.Now().Add(h.writeTimeout)); err != nil {
		return err
	}

	return conn.WriteMessage(websocket.TextMessage, payload)
}

func (h *Hub) ping(conn *websocket.Conn) error {
	if err := conn.SetWriteDeadline(time.Now().Add(h.writeTimeout)); err != nil {
		return err
	}

	if err := conn.WriteJSON(Message{Type: messageTypePing, Timestamp: time.Now()}); err != nil {
		return fmt.Errorf("failed to write ping message: %w", err)
	}

	return conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(h.writeTimeout))
}

// Close disconnects every subscriber and waits for their handlers to end.
func (h *Hub) Close() {
	h.closeOnce.Do(func() {
		h.mu.Lock()
		h.closed = true
		h.mu.Unlock()

		close(h.done)
	})

	h.wg.Wait()
}

func (h *Hub) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if httputil.OriginAllowed(h.origins, origin) {
		return true
	}

	h.logger.Warn().
		Str("origin", origin).
		Strs("allowed_origins", h.origins).
		Msg("WebSocket origin not allowed")

	return false
}

func parseDeviceIDs(raw string) []string {
	if raw == "" {
		return nil
	}

	parts := strings.Split(raw, ",")
	ids := make([]string, 0, len(parts))
	seen := make(map[string]struct{}, len(parts))

	for _, p := range parts {
		id := strings.TrimSpace(p)
		if id == "" {
			continue
		}

		if _, dup := seen[id]; dup {
			continue
		}

		seen[id] = struct{}{}
		ids = append(ids, id)
	}

	return ids
}
