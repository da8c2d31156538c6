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

package main

import (
	"context"
	"sync"

	"github.com/hashicorp/go-multierror"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/nats-io/nats.go"
	"golang.org/x/sync/errgroup"

	"github.com/carverauto/modbus-poller/pkg/api"
	"github.com/carverauto/modbus-poller/pkg/logger"
	"github.com/carverauto/modbus-poller/pkg/natsutil"
	"github.com/carverauto/modbus-poller/pkg/poller"
	"github.com/carverauto/modbus-poller/pkg/stream"
)

// service runs the scheduler, the HTTP API and the health event publisher
// together and tears down their shared resources on Stop.
type service struct {
	listenAddr string
	scheduler  *poller.Scheduler
	api        *api.Server
	hub        *stream.Hub
	notifier   *healthNotifier
	queue      *natsutil.QueuePublisher
	nc         *nats.Conn
	pool       *pgxpool.Pool
	logger     logger.Logger

	mu      sync.Mutex
	cancel  context.CancelFunc
	stopped bool
}

// Start blocks until ctx ends or one component fails.
func (s *service) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()

		return nil
	}

	s.cancel = cancel
	s.mu.Unlock()

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return s.scheduler.Start(gctx)
	})

	g.Go(func() error {
		return s.api.Start(gctx, s.listenAddr)
	})

	g.Go(func() error {
		return s.notifier.run(gctx)
	})

	return g.Wait()
}

// Stop waits for device loops to finish, then releases sinks and stores.
func (s *service) Stop(ctx context.Context) error {
	var result *multierror.Error

	if err := s.scheduler.Stop(ctx); err != nil {
		result = multierror.Append(result, err)
	}

	s.mu.Lock()
	s.stopped = true
	cancel := s.cancel
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}

	s.hub.Close()

	if s.queue != nil {
		if err := s.queue.Flush(ctx); err != nil {
			s.logger.Warn().Err(err).Msg("Queue flush incomplete")
		}
	}

	if s.nc != nil {
		if err := s.nc.Drain(); err != nil {
			s.logger.Warn().Err(err).Msg("Failed to drain NATS connection")
		}
	}

	if s.pool != nil {
		s.pool.Close()
	}

	return result.ErrorOrNil()
}

// release closes connections of a service that never started.
func (s *service) release() {
	if s.hub != nil {
		s.hub.Close()
	}

	if s.nc != nil {
		s.nc.Close()
		s.nc = nil
	}

	if s.pool != nil {
		s.pool.Close()
		s.pool = nil
	}
}
