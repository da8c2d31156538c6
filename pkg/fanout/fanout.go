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

// Package fanout routes decoded readings to the durable queue and the
// real-time broadcast channel.
package fanout

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/carverauto/modbus-poller/pkg/logger"
	"github.com/carverauto/modbus-poller/pkg/models"
	"github.com/google/uuid"
)

// Fanout dispatches one cycle's readings for one device.
type Fanout struct {
	lookup      SignalLookup
	queue       QueueSink
	broadcaster Broadcaster
	logger      logger.Logger
	now         func() time.Time
	newID       func() string

	unmapped atomic.Int64
}

type Option func(*Fanout)

// WithClock overrides the broadcast timestamp source.
func WithClock(now func() time.Time) Option {
	return func(f *Fanout) {
		f.now = now
	}
}

// WithIDGenerator overrides the queue message id source.
func WithIDGenerator(gen func() string) Option {
	return func(f *Fanout) {
		f.newID = gen
	}
}

// New returns a Fanout. A nil queue or broadcaster disables that sink.
func New(lookup SignalLookup, queue QueueSink, broadcaster Broadcaster, log logger.Logger, opts ...Option) *Fanout {
	f := &Fanout{
		lookup:      lookup,
		queue:       queue,
		broadcaster: broadcaster,
		logger:      log,
		now:         time.Now,
		newID:       uuid.NewString,
	}

	for _, opt := range opts {
		opt(f)
	}

	return f
}

// Unmapped returns the number of readings dropped for lack of a signal.
func (f *Fanout) Unmapped() int64 {
	return f.unmapped.Load()
}

// Publish resolves readings to signals, enqueues one message per mapped
// reading in order and broadcasts the mapped set once. Failures are logged
// and never returned.
func (f *Fanout) Publish(ctx context.Context, deviceID string, readings []models.Reading) {
	if len(readings) == 0 {
		return
	}

	signals, err := f.lookup.SignalsForDevice(ctx, deviceID)
	if err != nil {
		f.logger.Error().Err(err).
			Str("device_id", deviceID).
			Int("readings", len(readings)).
			Msg("Signal lookup failed, dropping readings")

		return
	}

	batch := make([]models.BroadcastReading, 0, len(readings))

	var unmapped int

	for i := range readings {
		r := &readings[i]

		signalID, ok := signals[models.SignalKey(deviceID, r.RegisterAddress)]
		if !ok {
			unmapped++

			continue
		}

		f.enqueue(ctx, signalID, r)

		batch = append(batch, models.BroadcastReading{
			SlaveIndex:      r.UnitID,
			RegisterAddress: r.RegisterAddress,
			SignalID:        signalID,
			SignalType:      string(r.DataType),
			Value:           r.Value,
			Unit:            r.Unit,
			Timestamp:       r.Timestamp,
		})
	}

	if unmapped > 0 {
		f.unmapped.Add(int64(unmapped))
		recordUnmapped(ctx, deviceID, unmapped)

		f.logger.Debug().
			Str("device_id", deviceID).
			Int("unmapped", unmapped).
			Msg("Dropped readings without a signal mapping")
	}

	if len(batch) == 0 || f.broadcaster == nil {
		return
	}

	msg := &models.BroadcastMessage{
		Type:      models.BroadcastTypeReadings,
		DeviceID:  deviceID,
		Readings:  batch,
		Timestamp: f.now(),
	}

	if err := f.broadcaster.Broadcast(ctx, msg); err != nil {
		f.logger.Warn().Err(err).Str("device_id", deviceID).Msg("Broadcast failed")
	}
}

func (f *Fanout) enqueue(ctx context.Context, signalID string, r *models.Reading) {
	recordMapped(ctx, r.DeviceID)

	if f.queue == nil {
		return
	}

	msg := &models.QueueMessage{
		ID:        f.newID(),
		SignalID:  signalID,
		Value:     r.Value,
		Timestamp: r.Timestamp,
	}

	if err := f.queue.Enqueue(ctx, msg); err != nil {
		f.logger.Warn().Err(err).
			Str("device_id", r.DeviceID).
			Str("signal_id", signalID).
			Msg("Failed to enqueue reading")
	}
}
