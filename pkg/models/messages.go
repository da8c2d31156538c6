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

package models

import (
	"net"
	"strconv"
	"time"
)

// QueueMessage is published once per mapped reading to the durable queue.
type QueueMessage struct {
	ID        string    `json:"id"`
	SignalID  string    `json:"signal_id"`
	Value     float64   `json:"value"`
	Timestamp time.Time `json:"timestamp"`
}

// BroadcastReading is one entry of a per-device real-time batch.
type BroadcastReading struct {
	SlaveIndex      uint8     `json:"slave_index"`
	RegisterAddress int       `json:"register_address"`
	SignalID        string    `json:"signal_id"`
	SignalType      string    `json:"signal_type"`
	Value           float64   `json:"value"`
	Unit            string    `json:"unit"`
	Timestamp       time.Time `json:"timestamp"`
}

// BroadcastMessage is pushed to websocket subscribers of DeviceID.
type BroadcastMessage struct {
	Type      string             `json:"type"`
	DeviceID  string             `json:"device_id"`
	Readings  []BroadcastReading `json:"readings"`
	Timestamp time.Time          `json:"timestamp"`
}

const BroadcastTypeReadings = "readings"

// RegisterHealthState is the quarantine state carried by health events.
type RegisterHealthState string

const (
	RegisterQuarantined RegisterHealthState = "quarantined"
	RegisterReenabled   RegisterHealthState = "reenabled"
)

// RegisterHealthEvent announces a register entering or leaving quarantine.
type RegisterHealthEvent struct {
	ID         string              `json:"id"`
	RegisterID string              `json:"register_id"`
	State      RegisterHealthState `json:"state"`
	Failures   int                 `json:"failures"`
	PollerID   string              `json:"poller_id,omitempty"`
	Timestamp  time.Time           `json:"timestamp"`
}

// SignalKey is the signal lookup key of a register on a device.
func SignalKey(deviceID string, registerAddress int) string {
	return deviceID + "_" + strconv.Itoa(registerAddress)
}

func joinHostPort(host string, port int) string {
	return net.JoinHostPort(host, strconv.Itoa(port))
}
