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

// Package poller runs one polling loop per Modbus device behind a shared
// concurrency limit.
package poller

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/semaphore"

	"github.com/carverauto/modbus-poller/pkg/health"
	"github.com/carverauto/modbus-poller/pkg/logger"
	"github.com/carverauto/modbus-poller/pkg/planner"
)

var (
	errStoreRequired     = errors.New("config store is required")
	errPublisherRequired = errors.New("publisher is required")
	errAlreadyStarted    = errors.New("scheduler already started")
)

// Scheduler supervises device loops. The supervisor only ever adds loops;
// each loop removes itself when its device disappears.
type Scheduler struct {
	config    Config
	store     ConfigStore
	publisher Publisher
	tracker   *health.Tracker
	planner   *planner.Planner
	dialer    Dialer
	clock     Clock
	logger    logger.Logger
	limiter   *semaphore.Weighted
	tracer    trace.Tracer

	mu       sync.Mutex
	loops    map[string]*deviceLoop
	stopping bool

	wg        sync.WaitGroup
	done      chan struct{}
	closeOnce sync.Once
	started   atomic.Bool
	cancel    context.CancelFunc
}

type Option func(*Scheduler)

// WithDialer replaces the Modbus/TCP dialer.
func WithDialer(d Dialer) Option {
	return func(s *Scheduler) {
		s.dialer = d
	}
}

// WithClock replaces the wall clock.
func WithClock(c Clock) Option {
	return func(s *Scheduler) {
		s.clock = c
	}
}

// WithTracker shares an existing failure table, e.g. one whose transition
// hook publishes register health events.
func WithTracker(t *health.Tracker) Option {
	return func(s *Scheduler) {
		s.tracker = t
	}
}

// New validates config and builds a scheduler.
func New(config *Config, store ConfigStore, publisher Publisher, log logger.Logger, opts ...Option) (*Scheduler, error) {
	if store == nil {
		return nil, errStoreRequired
	}

	if publisher == nil {
		return nil, errPublisherRequired
	}

	cfg := *config
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid poller config: %w", err)
	}

	s := &Scheduler{
		config:    cfg,
		store:     store,
		publisher: publisher,
		dialer:    tcpDialer{},
		clock:     realClock{},
		logger:    log,
		limiter:   semaphore.NewWeighted(int64(cfg.MaxConcurrentDevices)),
		tracer:    otel.Tracer(tracerName),
		loops:     make(map[string]*deviceLoop),
		done:      make(chan struct{}),
	}

	for _, opt := range opts {
		opt(s)
	}

	if s.tracker == nil {
		s.tracker = health.New(cfg.FailureThreshold)
	}

	s.planner = planner.New(log, planner.WithMaxQuantity(cfg.MaxRegistersPerRead))

	return s, nil
}

// Tracker returns the failure table used by every loop.
func (s *Scheduler) Tracker() *health.Tracker {
	return s.tracker
}

// Start runs the supervisor until ctx ends or Stop is called.
func (s *Scheduler) Start(ctx context.Context) error {
	if !s.started.CompareAndSwap(false, true) {
		return errAlreadyStarted
	}

	runCtx, cancel := context.WithCancel(ctx)

	s.mu.Lock()
	if s.stopping {
		s.mu.Unlock()
		cancel()

		return nil
	}

	s.cancel = cancel
	s.wg.Add(1)
	s.mu.Unlock()

	defer s.wg.Done()

	rescan := time.Duration(s.config.RescanInterval)

	s.logger.Info().
		Str("poller_id", s.config.PollerID).
		Int("max_concurrent_devices", s.config.MaxConcurrentDevices).
		Dur("rescan_interval", rescan).
		Msg("Starting Modbus scheduler")

	ticker := s.clock.Ticker(rescan)
	defer ticker.Stop()

	s.rescan(runCtx)

	for {
		select {
		case <-s.done:
			return nil
		case <-runCtx.Done():
			return nil
		case <-ticker.Chan():
			s.rescan(runCtx)
		}
	}
}

// Stop asks every loop to finish its current cycle and waits for all of
// them. There is no internal timeout; when ctx ends first, in-flight I/O is
// cancelled and Stop still waits for the loops before returning ctx.Err().
func (s *Scheduler) Stop(ctx context.Context) error {
	s.closeOnce.Do(func() {
		s.mu.Lock()
		s.stopping = true
		s.mu.Unlock()

		close(s.done)
	})

	waited := make(chan struct{})

	go func() {
		s.wg.Wait()
		close(waited)
	}()

	select {
	case <-waited:
		s.logger.Info().Msg("Modbus scheduler stopped")

		return nil
	case <-ctx.Done():
	}

	s.mu.Lock()
	cancel := s.cancel
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}

	<-waited

	s.logger.Warn().Msg("Modbus scheduler stopped after cancelling in-flight cycles")

	return ctx.Err()
}

func (s *Scheduler) rescan(ctx context.Context) {
	devices, err := s.store.ListDevices(ctx)
	if err != nil {
		s.logger.Warn().Err(err).Msg("Failed to list devices")

		return
	}

	started := 0

	for i := range devices {
		if !devices[i].Pollable() {
			continue
		}

		if s.ensureLoop(ctx, devices[i].ID) {
			started++
		}
	}

	if started > 0 {
		s.logger.Info().Int("started", started).Int("devices", len(devices)).Msg("Started device loops")
	}
}

// ensureLoop starts a loop for id unless one is running.
func (s *Scheduler) ensureLoop(ctx context.Context, id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stopping {
		return false
	}

	if _, ok := s.loops[id]; ok {
		return false
	}

	l := newDeviceLoop(s, id)
	s.loops[id] = l
	s.wg.Add(1)
	runningLoops.Add(1)

	go l.run(ctx)

	return true
}

func (s *Scheduler) deregister(l *deviceLoop) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.loops[l.id] == l {
		delete(s.loops, l.id)
	}
}

// sleep waits for d and reports false when the scheduler is stopping.
func (s *Scheduler) sleep(ctx context.Context, d time.Duration) bool {
	select {
	case <-s.done:
		return false
	case <-ctx.Done():
		return false
	case <-s.clock.After(d):
		return true
	}
}

func (s *Scheduler) stopped(ctx context.Context) bool {
	select {
	case <-s.done:
		return true
	case <-ctx.Done():
		return true
	default:
		return false
	}
}

// Status lists the running loops ordered by device id.
func (s *Scheduler) Status() []DeviceStatus {
	s.mu.Lock()
	loops := make([]*deviceLoop, 0, len(s.loops))
	for _, l := range s.loops {
		loops = append(loops, l)
	}
	s.mu.Unlock()

	out := make([]DeviceStatus, 0, len(loops))
	for _, l := range loops {
		out = append(out, l.snapshot())
	}

	sort.Slice(out, func(i, j int) bool { return out[i].DeviceID < out[j].DeviceID })

	return out
}
