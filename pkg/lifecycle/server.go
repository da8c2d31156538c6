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

package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/carverauto/modbus-poller/pkg/logger"
)

var errServiceRequired = errors.New("service is required")

// Service is a long-running component with an explicit start and stop.
type Service interface {
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
}

type ServerOptions struct {
	ServiceName string
	Service     Service
	Logger      logger.Logger
	// ShutdownTimeout bounds Stop. Zero means wait indefinitely.
	ShutdownTimeout time.Duration
}

// RunServer starts the service and blocks until SIGINT/SIGTERM, the parent
// context ends, or Start fails. It then stops the service.
func RunServer(ctx context.Context, opts *ServerOptions) error {
	if opts == nil || opts.Service == nil {
		return errServiceRequired
	}

	log := opts.Logger
	if log == nil {
		log = logger.NewTestLogger()
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)

	go func() {
		errCh <- opts.Service.Start(ctx)
	}()

	log.Info().Str("service", opts.ServiceName).Msg("Service started")

	var runErr error

	select {
	case <-ctx.Done():
		log.Info().Str("service", opts.ServiceName).Msg("Shutdown signal received")
	case err := <-errCh:
		if err != nil && ctx.Err() == nil {
			runErr = fmt.Errorf("%s: %w", opts.ServiceName, err)
		}
	}

	stopCtx := context.WithoutCancel(ctx)

	if opts.ShutdownTimeout > 0 {
		var cancel context.CancelFunc

		stopCtx, cancel = context.WithTimeout(stopCtx, opts.ShutdownTimeout)
		defer cancel()
	}

	if err := opts.Service.Stop(stopCtx); err != nil {
		log.Error().Err(err).Str("service", opts.ServiceName).Msg("Error during shutdown")

		if runErr == nil {
			runErr = err
		}
	}

	log.Info().Str("service", opts.ServiceName).Msg("Service stopped")

	return runErr
}
