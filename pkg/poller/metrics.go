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

package poller

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const (
	meterName  = "modbus-poller.poller"
	tracerName = "modbus-poller.poller"

	metricCycles        = "modbus_poll_cycles_total"
	metricCycleDuration = "modbus_poll_cycle_duration_seconds"
	metricRangeReads    = "modbus_range_reads_total"
	metricQuarantines   = "modbus_register_quarantines_total"
	metricRunningLoops  = "modbus_poller_running_loops"
)

var (
	//nolint:gochecknoglobals // metrics instruments are shared across the process intentionally
	meterOnce sync.Once
	//nolint:gochecknoglobals // metrics instruments are shared across the process intentionally
	cycleCounter metric.Int64Counter
	//nolint:gochecknoglobals // metrics instruments are shared across the process intentionally
	cycleHistogram metric.Float64Histogram
	//nolint:gochecknoglobals // metrics instruments are shared across the process intentionally
	rangeCounter metric.Int64Counter
	//nolint:gochecknoglobals // metrics instruments are shared across the process intentionally
	quarantineCounter metric.Int64Counter
	//nolint:gochecknoglobals // observed by the running loops gauge
	runningLoops atomic.Int64
)

func initMeter() {
	meter := otel.Meter(meterName)

	var err error

	cycleCounter, err = meter.Int64Counter(
		metricCycles,
		metric.WithDescription("Device poll cycles by outcome"),
	)
	if err != nil {
		otel.Handle(err)
	}

	cycleHistogram, err = meter.Float64Histogram(
		metricCycleDuration,
		metric.WithDescription("Wall time of one device poll cycle"),
		metric.WithUnit("s"),
	)
	if err != nil {
		otel.Handle(err)
	}

	rangeCounter, err = meter.Int64Counter(
		metricRangeReads,
		metric.WithDescription("Range reads by result"),
	)
	if err != nil {
		otel.Handle(err)
	}

	quarantineCounter, err = meter.Int64Counter(
		metricQuarantines,
		metric.WithDescription("Registers quarantined after repeated slave exceptions"),
	)
	if err != nil {
		otel.Handle(err)
	}

	if _, err := meter.Int64ObservableGauge(
		metricRunningLoops,
		metric.WithDescription("Device loops currently running"),
		metric.WithInt64Callback(func(_ context.Context, o metric.Int64Observer) error {
			o.Observe(runningLoops.Load())
			return nil
		}),
	); err != nil {
		otel.Handle(err)
	}
}

func recordCycle(ctx context.Context, deviceID string, outcome CycleOutcome, elapsed time.Duration) {
	meterOnce.Do(initMeter)

	attrs := metric.WithAttributes(
		attribute.String("device_id", deviceID),
		attribute.String("outcome", string(outcome)),
	)

	if cycleCounter != nil {
		cycleCounter.Add(ctx, 1, attrs)
	}

	if cycleHistogram != nil {
		cycleHistogram.Record(ctx, elapsed.Seconds(), attrs)
	}
}

func recordRangeRead(ctx context.Context, deviceID, result string) {
	meterOnce.Do(initMeter)
	if rangeCounter == nil {
		return
	}

	rangeCounter.Add(ctx, 1, metric.WithAttributes(
		attribute.String("device_id", deviceID),
		attribute.String("result", result),
	))
}

func recordQuarantines(ctx context.Context, deviceID string, count int) {
	meterOnce.Do(initMeter)
	if quarantineCounter == nil || count == 0 {
		return
	}

	quarantineCounter.Add(ctx, int64(count), metric.WithAttributes(attribute.String("device_id", deviceID)))
}
