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
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const (
	meterName             = "modbus-poller.fanout"
	metricMappedReadings  = "modbus_fanout_mapped_readings_total"
	metricUnmappedReading = "modbus_fanout_unmapped_readings_total"
)

var (
	//nolint:gochecknoglobals // metrics instruments are shared across the process intentionally
	meterOnce sync.Once
	//nolint:gochecknoglobals // metrics instruments are shared across the process intentionally
	mappedCounter metric.Int64Counter
	//nolint:gochecknoglobals // metrics instruments are shared across the process intentionally
	unmappedCounter metric.Int64Counter
)

func initMeter() {
	meter := otel.Meter(meterName)

	mapped, err := meter.Int64Counter(
		metricMappedReadings,
		metric.WithDescription("Readings resolved to a signal and dispatched"),
	)
	if err != nil {
		otel.Handle(err)
	}
	mappedCounter = mapped

	unmapped, err := meter.Int64Counter(
		metricUnmappedReading,
		metric.WithDescription("Readings dropped because no signal is mapped to the register"),
	)
	if err != nil {
		otel.Handle(err)
	}
	unmappedCounter = unmapped
}

func recordMapped(ctx context.Context, deviceID string) {
	meterOnce.Do(initMeter)
	if mappedCounter == nil {
		return
	}

	mappedCounter.Add(ctx, 1, metric.WithAttributes(attribute.String("device_id", deviceID)))
}

func recordUnmapped(ctx context.Context, deviceID string, count int) {
	meterOnce.Do(initMeter)
	if unmappedCounter == nil {
		return
	}

	unmappedCounter.Add(ctx, int64(count), metric.WithAttributes(attribute.String("device_id", deviceID)))
}
