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

package fanout

//go:generate mockgen -destination=mock_fanout.go -package=fanout github.com/carverauto/modbus-poller/pkg/fanout SignalLookup,QueueSink,Broadcaster

import (
	"context"

	"github.com/carverauto/modbus-poller/pkg/models"
)

// SignalLookup resolves the signal mapping of one device. Keys are built
// with models.SignalKey.
type SignalLookup interface {
	SignalsForDevice(ctx context.Context, deviceID string) (map[string]string, error)
}

// QueueSink accepts one durable message per mapped reading.
type QueueSink interface {
	Enqueue(ctx context.Context, msg *models.QueueMessage) error
}

// Broadcaster pushes one batch per device to real-time subscribers.
type Broadcaster interface {
	Broadcast(ctx context.Context, msg *models.BroadcastMessage) error
}
