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

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/carverauto/modbus-poller/pkg/logger"
	"github.com/carverauto/modbus-poller/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

var (
	errLookup = errors.New("lookup failed")
	errQueue  = errors.New("queue unavailable")
)

func sequentialIDs() func() string {
	n := 0

	return func() string {
		n++

		return fmt.Sprintf("msg-%d", n)
	}
}

func reading(address int, value float64, ts time.Time) models.Reading {
	return models.Reading{
		DeviceID:        "dev1",
		SlaveID:         "slave1",
		UnitID:          1,
		RegisterID:      fmt.Sprintf("reg-%d", address),
		RegisterAddress: address,
		DataType:        models.DataTypeFloat32,
		Value:           value,
		Unit:            "kW",
		Timestamp:       ts,
	}
}

func TestPublish_MappedAndUnmapped(t *testing.T) {
	ctrl := gomock.NewController(t)
	ctx := context.Background()
	ts := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	now := ts.Add(time.Second)

	lookup := NewMockSignalLookup(ctrl)
	queue := NewMockQueueSink(ctrl)
	broadcaster := NewMockBroadcaster(ctrl)

	lookup.EXPECT().SignalsForDevice(ctx, "dev1").Return(map[string]string{
		"dev1_40001": "sig-a",
		"dev1_40003": "sig-b",
	}, nil)

	gomock.InOrder(
		queue.EXPECT().Enqueue(ctx, &models.QueueMessage{ID: "msg-1", SignalID: "sig-a", Value: 1.5, Timestamp: ts}).Return(nil),
		queue.EXPECT().Enqueue(ctx, &models.QueueMessage{ID: "msg-2", SignalID: "sig-b", Value: 3.5, Timestamp: ts}).Return(nil),
	)

	broadcaster.EXPECT().Broadcast(ctx, gomock.Any()).DoAndReturn(
		func(_ context.Context, msg *models.BroadcastMessage) error {
			assert.Equal(t, models.BroadcastTypeReadings, msg.Type)
			assert.Equal(t, "dev1", msg.DeviceID)
			assert.Equal(t, now, msg.Timestamp)
			require.Len(t, msg.Readings, 2)
			assert.Equal(t, models.BroadcastReading{
				SlaveIndex:      1,
				RegisterAddress: 40001,
				SignalID:        "sig-a",
				SignalType:      "float32",
				Value:           1.5,
				Unit:            "kW",
				Timestamp:       ts,
			}, msg.Readings[0])
			assert.Equal(t, "sig-b", msg.Readings[1].SignalID)

			return nil
		})

	f := New(lookup, queue, broadcaster, logger.NewTestLogger(),
		WithClock(func() time.Time { return now }),
		WithIDGenerator(sequentialIDs()))

	f.Publish(ctx, "dev1", []models.Reading{
		reading(40001, 1.5, ts),
		reading(40002, 2.5, ts),
		reading(40003, 3.5, ts),
	})

	assert.Equal(t, int64(1), f.Unmapped())
}

func TestPublish_NothingMappedSkipsBroadcast(t *testing.T) {
	ctrl := gomock.NewController(t)
	ctx := context.Background()

	lookup := NewMockSignalLookup(ctrl)
	queue := NewMockQueueSink(ctrl)
	broadcaster := NewMockBroadcaster(ctrl)

	lookup.EXPECT().SignalsForDevice(ctx, "dev1").Return(map[string]string{}, nil)

	f := New(lookup, queue, broadcaster, logger.NewTestLogger())
	f.Publish(ctx, "dev1", []models.Reading{reading(40001, 1, time.Now()), reading(40002, 2, time.Now())})

	assert.Equal(t, int64(2), f.Unmapped())
}

func TestPublish_LookupFailureDropsBatch(t *testing.T) {
	ctrl := gomock.NewController(t)
	ctx := context.Background()

	lookup := NewMockSignalLookup(ctrl)
	lookup.EXPECT().SignalsForDevice(ctx, "dev1").Return(nil, errLookup)

	f := New(lookup, NewMockQueueSink(ctrl), NewMockBroadcaster(ctrl), logger.NewTestLogger())
	f.Publish(ctx, "dev1", []models.Reading{reading(40001, 1, time.Now())})

	assert.Equal(t, int64(0), f.Unmapped())
}

func TestPublish_QueueErrorStillBroadcasts(t *testing.T) {
	ctrl := gomock.NewController(t)
	ctx := context.Background()

	lookup := NewMockSignalLookup(ctrl)
	queue := NewMockQueueSink(ctrl)
	broadcaster := NewMockBroadcaster(ctrl)

	lookup.EXPECT().SignalsForDevice(ctx, "dev1").Return(map[string]string{"dev1_40001": "sig-a"}, nil)
	queue.EXPECT().Enqueue(ctx, gomock.Any()).Return(errQueue)
	broadcaster.EXPECT().Broadcast(ctx, gomock.Any()).Return(nil).Times(1)

	f := New(lookup, queue, broadcaster, logger.NewTestLogger())
	f.Publish(ctx, "dev1", []models.Reading{reading(40001, 1, time.Now())})
}

func TestPublish_EmptyReadings(t *testing.T) {
	ctrl := gomock.NewController(t)

	f := New(NewMockSignalLookup(ctrl), NewMockQueueSink(ctrl), NewMockBroadcaster(ctrl), logger.NewTestLogger())
	f.Publish(context.Background(), "dev1", nil)
}

func TestPublish_NilSinks(t *testing.T) {
	ctrl := gomock.NewController(t)
	ctx := context.Background()

	lookup := NewMockSignalLookup(ctrl)
	lookup.EXPECT().SignalsForDevice(ctx, "dev1").Return(map[string]string{"dev1_40001": "sig-a"}, nil)

	f := New(lookup, nil, nil, logger.NewTestLogger())
	f.Publish(ctx, "dev1", []models.Reading{reading(40001, 1, time.Now())})

	assert.Equal(t, int64(0), f.Unmapped())
}
