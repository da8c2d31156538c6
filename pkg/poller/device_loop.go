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
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/carverauto/modbus-poller/pkg/decoder"
	"github.com/carverauto/modbus-poller/pkg/models"
	"github.com/carverauto/modbus-poller/pkg/modbus"
	"github.com/carverauto/modbus-poller/pkg/planner"
)

// CycleOutcome summarizes how a device cycle ended.
type CycleOutcome string

const (
	OutcomePending       CycleOutcome = "pending"
	OutcomeOK            CycleOutcome = "ok"
	OutcomeNoRegisters   CycleOutcome = "no_registers"
	OutcomeStoreError    CycleOutcome = "store_error"
	OutcomeConnectFailed CycleOutcome = "connect_failed"
	OutcomeAborted       CycleOutcome = "aborted"
	OutcomePanic         CycleOutcome = "panic"
	OutcomeCancelled     CycleOutcome = "cancelled"
)

const (
	rangeResultOK        = "ok"
	rangeResultException = "exception"
	rangeResultError     = "error"
)

var errCyclePanic = errors.New("device cycle panicked")

// DeviceStatus is the externally visible state of one device loop.
type DeviceStatus struct {
	DeviceID    string       `json:"device_id"`
	StartedAt   time.Time    `json:"started_at"`
	LastCycleAt time.Time    `json:"last_cycle_at,omitempty"`
	Outcome     CycleOutcome `json:"outcome"`
	Readings    int          `json:"readings"`
	Error       string       `json:"error,omitempty"`
}

type slavePlan struct {
	slave  models.Slave
	ranges []planner.Range
}

type deviceLoop struct {
	id     string
	s      *Scheduler
	logger zerolog.Logger

	mu     sync.Mutex
	status DeviceStatus
}

func newDeviceLoop(s *Scheduler, id string) *deviceLoop {
	return &deviceLoop{
		id:     id,
		s:      s,
		logger: s.logger.With().Str("device_id", id).Logger(),
		status: DeviceStatus{
			DeviceID:  id,
			StartedAt: s.clock.Now(),
			Outcome:   OutcomePending,
		},
	}
}

func (l *deviceLoop) snapshot() DeviceStatus {
	l.mu.Lock()
	defer l.mu.Unlock()

	return l.status
}

func (l *deviceLoop) setOutcome(outcome CycleOutcome, readings int, err error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.status.LastCycleAt = l.s.clock.Now()
	l.status.Outcome = outcome
	l.status.Readings = readings
	l.status.Error = ""

	if err != nil {
		l.status.Error = err.Error()
	}
}

func (l *deviceLoop) run(ctx context.Context) {
	defer l.s.wg.Done()
	defer runningLoops.Add(-1)
	defer l.s.deregister(l)

	l.logger.Info().Msg("Device loop started")

	for !l.s.stopped(ctx) {
		wait, exit := l.iterate(ctx)
		if exit {
			return
		}

		if !l.s.sleep(ctx, wait) {
			break
		}
	}

	l.logger.Debug().Msg("Device loop stopped")
}

// iterate runs one cycle and returns how long to sleep before the next one.
// exit is true when the device is gone and the loop should end.
func (l *deviceLoop) iterate(ctx context.Context) (wait time.Duration, exit bool) {
	wait = time.Duration(l.s.config.DefaultPollInterval)

	defer func() {
		if r := recover(); r != nil {
			l.logger.Error().Interface("panic", r).Msg("Recovered from panic in device cycle")
			l.setOutcome(OutcomePanic, 0, fmt.Errorf("%w: %v", errCyclePanic, r))

			exit = false
		}
	}()

	device, err := l.s.store.GetDevice(ctx, l.id)

	switch {
	case errors.Is(err, models.ErrDeviceNotFound):
		l.logger.Info().Msg("Device no longer configured, ending loop")

		return 0, true
	case err != nil:
		l.logger.Warn().Err(err).Msg("Failed to load device")
		l.setOutcome(OutcomeStoreError, 0, err)

		return time.Duration(l.s.config.MissingDeviceInterval), false
	case !device.Pollable():
		l.logger.Info().
			Bool("is_active", device.IsActive).
			Bool("is_deleted", device.IsDeleted).
			Msg("Device disabled or deleted, ending loop")

		return 0, true
	}

	l.cycle(ctx, device)

	return l.s.config.pollInterval(device), false
}

func (l *deviceLoop) cycle(ctx context.Context, device *models.Device) {
	ctx, span := l.s.tracer.Start(ctx, "modbus.poll_cycle", trace.WithAttributes(
		attribute.String("device_id", device.ID),
		attribute.String("address", device.Address()),
	))
	defer span.End()

	start := l.s.clock.Now()

	outcome, readings, err := l.poll(ctx, device)

	span.SetAttributes(
		attribute.String("outcome", string(outcome)),
		attribute.Int("readings", len(readings)),
	)

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, string(outcome))
	}

	l.setOutcome(outcome, len(readings), err)
	recordCycle(ctx, device.ID, outcome, l.s.clock.Now().Sub(start))

	if len(readings) > 0 {
		l.s.publisher.Publish(ctx, device.ID, readings)
	}
}

// poll performs the I/O of one cycle. Readings are returned only when every
// range completed without a transport or framing error.
func (l *deviceLoop) poll(ctx context.Context, device *models.Device) (CycleOutcome, []models.Reading, error) {
	slaves, err := l.s.store.ListSlaves(ctx, device.ID)
	if err != nil {
		l.logger.Warn().Err(err).Msg("Failed to load slaves")

		return OutcomeStoreError, nil, err
	}

	plans := l.plan(device, slaves)
	if len(plans) == 0 {
		l.logger.Debug().Msg("No healthy registers to poll")

		return OutcomeNoRegisters, nil, nil
	}

	if err := l.s.limiter.Acquire(ctx, 1); err != nil {
		return OutcomeCancelled, nil, err
	}
	defer l.s.limiter.Release(1)

	client, err := l.s.dialer.Dial(ctx, device.Address(),
		time.Duration(l.s.config.ConnectTimeout), l.s.config.requestTimeout(device))
	if err != nil {
		l.logger.Warn().Err(err).Str("address", device.Address()).Msg("Failed to connect to device")

		return OutcomeConnectFailed, nil, err
	}

	defer func() {
		if cerr := client.Close(); cerr != nil {
			l.logger.Debug().Err(cerr).Msg("Failed to close device connection")
		}
	}()

	readings, err := l.readAll(ctx, client, plans)
	if err != nil {
		l.logger.Warn().Err(err).Msg("Aborting device cycle")

		return OutcomeAborted, nil, err
	}

	return OutcomeOK, readings, nil
}

// plan filters out disabled slaves and quarantined registers and plans the
// rest, ordered by unit id.
func (l *deviceLoop) plan(device *models.Device, slaves []models.Slave) []slavePlan {
	var addresses []int

	for i := range slaves {
		for j := range slaves[i].Registers {
			addresses = append(addresses, slaves[i].Registers[j].Address)
		}
	}

	mode := planner.ResolveAddressing(device.Addressing, addresses)

	sort.SliceStable(slaves, func(i, j int) bool { return slaves[i].UnitID < slaves[j].UnitID })

	plans := make([]slavePlan, 0, len(slaves))

	for i := range slaves {
		sl := slaves[i]
		if !sl.IsHealthy {
			continue
		}

		healthy := make([]models.Register, 0, len(sl.Registers))

		for _, reg := range sl.Registers {
			if reg.IsHealthy && l.s.tracker.IsHealthy(reg.ID) {
				healthy = append(healthy, reg)
			}
		}

		ranges := l.s.planner.Plan(healthy, mode)
		if len(ranges) == 0 {
			continue
		}

		plans = append(plans, slavePlan{slave: sl, ranges: ranges})
	}

	return plans
}

func (l *deviceLoop) readAll(ctx context.Context, client RegisterReader, plans []slavePlan) ([]models.Reading, error) {
	var readings []models.Reading

	for _, p := range plans {
		for _, rg := range p.ranges {
			words, err := client.ReadHoldingRegisters(ctx, p.slave.UnitID, rg.Start, rg.Quantity)

			switch {
			case err == nil:
				recordRangeRead(ctx, l.id, rangeResultOK)
				readings = append(readings, l.decodeRange(p.slave, rg, words)...)
			case modbus.IsSlaveException(err):
				recordRangeRead(ctx, l.id, rangeResultException)

				isolated, ierr := l.rangeFailed(ctx, client, p.slave, rg, err)
				if ierr != nil {
					return nil, ierr
				}

				readings = append(readings, isolated...)
			default:
				recordRangeRead(ctx, l.id, rangeResultError)

				return nil, err
			}
		}
	}

	return readings, nil
}

// rangeFailed charges a slave exception to the registers of rg. With
// isolation enabled each entry is re-read alone so healthy registers still
// produce readings.
func (l *deviceLoop) rangeFailed(
	ctx context.Context, client RegisterReader, slave models.Slave, rg planner.Range, cause error,
) ([]models.Reading, error) {
	code, _ := modbus.ExceptionCode(cause)

	l.logger.Warn().
		Err(cause).
		Uint8("unit_id", slave.UnitID).
		Uint16("start", rg.Start).
		Uint16("quantity", rg.Quantity).
		Uint8("exception_code", code).
		Msg("Slave exception on range read")

	if !l.s.config.IsolateFailedRanges || len(rg.Entries) == 1 {
		ids := make([]string, len(rg.Entries))
		for i, e := range rg.Entries {
			ids[i] = e.Register.ID
		}

		l.failed(ctx, ids...)

		return nil, nil
	}

	var readings []models.Reading

	for _, e := range rg.Entries {
		single := planner.Range{Start: e.Address, Quantity: e.Length, Entries: []planner.Entry{e}}

		words, err := client.ReadHoldingRegisters(ctx, slave.UnitID, single.Start, single.Quantity)

		switch {
		case err == nil:
			readings = append(readings, l.decodeRange(slave, single, words)...)
		case modbus.IsSlaveException(err):
			l.failed(ctx, e.Register.ID)
		default:
			return nil, err
		}
	}

	return readings, nil
}

func (l *deviceLoop) failed(ctx context.Context, ids ...string) {
	quarantined := l.s.tracker.RecordFailure(ids...)
	if len(quarantined) == 0 {
		return
	}

	recordQuarantines(ctx, l.id, len(quarantined))

	l.logger.Warn().
		Strs("register_ids", quarantined).
		Int("threshold", l.s.tracker.Threshold()).
		Msg("Registers quarantined after repeated slave exceptions")
}

func (l *deviceLoop) decodeRange(slave models.Slave, rg planner.Range, words []uint16) []models.Reading {
	now := l.s.clock.Now()
	readings := make([]models.Reading, 0, len(rg.Entries))

	for _, e := range rg.Entries {
		reg := e.Register

		v, ok := decoder.Decode(reg, words, rg.Offset(e), int(e.Length))
		if !ok {
			l.logger.Debug().
				Str("register_id", reg.ID).
				Int("address", reg.Address).
				Int("words", len(words)).
				Msg("Skipping register outside returned words")

			continue
		}

		if v.Fallback {
			l.logger.Debug().Str("register_id", reg.ID).Msg("Implausible float, using raw word")
		}

		l.s.tracker.RecordSuccess(reg.ID)

		dataType := reg.DataType
		if dataType == "" {
			dataType = models.DataTypeUint16
		}

		readings = append(readings, models.Reading{
			DeviceID:        l.id,
			SlaveID:         slave.ID,
			UnitID:          slave.UnitID,
			RegisterID:      reg.ID,
			RegisterAddress: reg.Address,
			DataType:        dataType,
			Value:           v.Value,
			Unit:            reg.Unit,
			Timestamp:       now,
		})
	}

	return readings
}
