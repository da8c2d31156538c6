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
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/nats-io/nats.go"

	"github.com/carverauto/modbus-poller/pkg/api"
	"github.com/carverauto/modbus-poller/pkg/config"
	"github.com/carverauto/modbus-poller/pkg/db"
	"github.com/carverauto/modbus-poller/pkg/fanout"
	"github.com/carverauto/modbus-poller/pkg/health"
	"github.com/carverauto/modbus-poller/pkg/inventory"
	"github.com/carverauto/modbus-poller/pkg/lifecycle"
	"github.com/carverauto/modbus-poller/pkg/logger"
	"github.com/carverauto/modbus-poller/pkg/models"
	"github.com/carverauto/modbus-poller/pkg/natsutil"
	"github.com/carverauto/modbus-poller/pkg/poller"
	"github.com/carverauto/modbus-poller/pkg/stream"
	"github.com/carverauto/modbus-poller/pkg/version"
)

var (
	errFailedToLoadConfig = fmt.Errorf("failed to load config")
)

// deviceSource is what both inventory backends provide.
type deviceSource interface {
	poller.ConfigStore
	fanout.SignalLookup
}

func main() {
	if err := run(); err != nil {
		log.Fatalf("Fatal error: %v", err)
	}
}

func run() error {
	configPath := flag.String("config", "/etc/modbus-poller/poller.json", "Path to poller config file")
	showVersion := flag.Bool("version", false, "Print version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Fprintln(os.Stdout, version.GetFullVersion())
		return nil
	}

	ctx := context.Background()

	// Step 1: Load configuration
	var cfg Config

	if err := config.NewConfig(nil).LoadAndValidate(ctx, *configPath, &cfg); err != nil {
		return fmt.Errorf("%w: %w", errFailedToLoadConfig, err)
	}

	// Step 2: Create logger from loaded config
	logConfig := cfg.loggingConfig()

	mainLogger, err := lifecycle.CreateComponentLogger(ctx, "modbus-poller", logConfig)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}

	defer func() {
		if err := lifecycle.ShutdownLogger(); err != nil {
			log.Printf("Failed to shut down logger: %v", err)
		}
	}()

	shutdownTracing := initTelemetry(ctx, &cfg, mainLogger)
	defer shutdownTracing()

	// Step 3: Build the service graph
	svc, err := buildService(ctx, &cfg, logConfig)
	if err != nil {
		return err
	}

	return lifecycle.RunServer(ctx, &lifecycle.ServerOptions{
		ServiceName:     cfg.ServiceName,
		Service:         svc,
		Logger:          mainLogger,
		ShutdownTimeout: time.Duration(cfg.ShutdownTimeout),
	})
}

// initTelemetry starts OTLP metric and trace export as configured and
// returns a function that flushes the tracer provider.
func initTelemetry(ctx context.Context, cfg *Config, log logger.Logger) func() {
	otelCfg := cfg.loggingConfig().OTel

	if cfg.Telemetry.Metrics {
		_, err := logger.InitializeMetrics(ctx, logger.MetricsConfig{
			ServiceName:    cfg.ServiceName,
			ServiceVersion: version.GetVersion(),
			OTel:           &otelCfg,
			ExportInterval: time.Duration(cfg.Telemetry.ExportInterval),
		})

		switch {
		case errors.Is(err, logger.ErrOTelMetricsDisabled):
			log.Info().Msg("OTLP metric export disabled")
		case err != nil:
			log.Warn().Err(err).Msg("Failed to initialize metrics export")
		}
	}

	if !cfg.Telemetry.Tracing {
		return func() {}
	}

	tp, err := logger.InitializeTracing(ctx, logger.TracingConfig{
		ServiceName:    cfg.ServiceName,
		ServiceVersion: version.GetVersion(),
		Logger:         log,
		OTel:           &otelCfg,
	})
	if err != nil {
		log.Warn().Err(err).Msg("Failed to initialize tracing")

		return func() {}
	}

	return func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := tp.Shutdown(shutdownCtx); err != nil {
			log.Warn().Err(err).Msg("Failed to flush traces")
		}
	}
}

// buildService wires the service graph. Connections opened along the way are
// closed again when a later step fails.
func buildService(ctx context.Context, cfg *Config, logConfig *logger.Config) (_ *service, err error) {
	componentLogger := func(name string) (logger.Logger, error) {
		return lifecycle.CreateComponentLogger(ctx, name, logConfig)
	}

	mainLogger, err := componentLogger("service")
	if err != nil {
		return nil, err
	}

	svc := &service{listenAddr: cfg.ListenAddr, logger: mainLogger}

	defer func() {
		if err != nil {
			svc.release()
		}
	}()

	source, pool, err := openDeviceSource(ctx, cfg, componentLogger)
	if err != nil {
		return nil, err
	}

	svc.pool = pool

	queue, nc, err := openQueue(ctx, cfg, componentLogger)
	if err != nil {
		return nil, err
	}

	svc.queue = queue
	svc.nc = nc

	streamLogger, err := componentLogger("stream")
	if err != nil {
		return nil, err
	}

	svc.hub = stream.NewHub(cfg.Stream, streamLogger)

	var healthPublisher healthEventPublisher
	if queue != nil {
		healthPublisher = queue
	}

	svc.notifier = newHealthNotifier(healthPublisher, cfg.PollerID, mainLogger)

	tracker := health.New(cfg.FailureThreshold, health.WithTransitionHook(svc.notifier.hook))

	fanoutLogger, err := componentLogger("fanout")
	if err != nil {
		return nil, err
	}

	var sink fanout.QueueSink
	if queue != nil {
		sink = queue
	}

	fan := fanout.New(source, sink, svc.hub, fanoutLogger)

	pollerLogger, err := componentLogger("poller")
	if err != nil {
		return nil, err
	}

	svc.scheduler, err = poller.New(&cfg.Config, source, fan, pollerLogger, poller.WithTracker(tracker))
	if err != nil {
		return nil, err
	}

	apiLogger, err := componentLogger("api")
	if err != nil {
		return nil, err
	}

	svc.api = api.NewServer(svc.scheduler, tracker, apiLogger,
		api.WithStream(svc.hub),
		api.WithAllowedOrigins(cfg.Stream.AllowedOrigins),
		api.WithPollerID(cfg.PollerID),
	)

	return svc, nil
}

func openDeviceSource(
	ctx context.Context, cfg *Config, componentLogger func(string) (logger.Logger, error),
) (deviceSource, *pgxpool.Pool, error) {
	log, err := componentLogger("inventory")
	if err != nil {
		return nil, nil, err
	}

	if cfg.Inventory.Source == models.InventoryCNPG {
		pool, err := db.NewCNPGPool(ctx, cfg.CNPG, log)
		if err != nil {
			return nil, nil, err
		}

		return db.NewStore(pool, log), pool, nil
	}

	store, err := inventory.NewFileStore(cfg.Inventory.Path, log)
	if err != nil {
		return nil, nil, err
	}

	return store, nil, nil
}

func openQueue(
	ctx context.Context, cfg *Config, componentLogger func(string) (logger.Logger, error),
) (*natsutil.QueuePublisher, *nats.Conn, error) {
	log, err := componentLogger("queue")
	if err != nil {
		return nil, nil, err
	}

	if cfg.NATS == nil {
		log.Warn().Msg("NATS not configured, readings are only broadcast")

		return nil, nil, nil
	}

	nc, err := natsutil.Connect(ctx, cfg.NATS, log)
	if err != nil {
		return nil, nil, err
	}

	queue, err := natsutil.NewQueuePublisher(ctx, nc, cfg.NATS, log)
	if err != nil {
		nc.Close()

		return nil, nil, err
	}

	return queue, nc, nil
}
