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
	"errors"
	"fmt"
	"time"

	"github.com/hashicorp/go-multierror"

	"github.com/carverauto/modbus-poller/pkg/logger"
	"github.com/carverauto/modbus-poller/pkg/models"
	"github.com/carverauto/modbus-poller/pkg/poller"
)

const (
	defaultServiceName    = "modbus-poller"
	defaultListenAddr     = ":8090"
	defaultExportInterval = 15 * time.Second
)

var (
	errInventoryPathRequired = errors.New("inventory.path is required for the file source")
	errCNPGRequired          = errors.New("cnpg settings are required for the cnpg source")
	errInvalidInventory      = errors.New("invalid inventory source")
	errNATSURLRequired       = errors.New("nats.url is required when nats is configured")
)

// TelemetryConfig turns on OTLP metric and trace export. The endpoint and
// credentials come from logging.otel.
type TelemetryConfig struct {
	Metrics        bool            `json:"metrics"`
	Tracing        bool            `json:"tracing"`
	ExportInterval models.Duration `json:"export_interval"`
}

// Config is the service configuration file.
type Config struct {
	poller.Config

	ServiceName     string                 `json:"service_name"`
	ListenAddr      string                 `json:"listen_addr"`
	ShutdownTimeout models.Duration        `json:"shutdown_timeout"`
	Inventory       models.InventoryConfig `json:"inventory"`
	CNPG            *models.CNPGDatabase   `json:"cnpg,omitempty"`
	NATS            *models.NATSConfig     `json:"nats,omitempty"`
	Stream          models.StreamConfig    `json:"stream"`
	Logging         *logger.Config         `json:"logging,omitempty"`
	Telemetry       TelemetryConfig        `json:"telemetry"`
}

// Validate implements config.Validator.
func (c *Config) Validate() error {
	var result *multierror.Error

	if err := c.Config.Validate(); err != nil {
		result = multierror.Append(result, err)
	}

	if c.ServiceName == "" {
		c.ServiceName = defaultServiceName
	}

	if c.PollerID == "" {
		c.PollerID = c.ServiceName
	}

	if c.ListenAddr == "" {
		c.ListenAddr = defaultListenAddr
	}

	if c.Inventory.Source == "" {
		c.Inventory.Source = models.InventoryFile
	}

	switch c.Inventory.Source {
	case models.InventoryFile:
		if c.Inventory.Path == "" {
			result = multierror.Append(result, errInventoryPathRequired)
		}
	case models.InventoryCNPG:
		if c.CNPG == nil {
			result = multierror.Append(result, errCNPGRequired)
		}
	default:
		result = multierror.Append(result, fmt.Errorf("%w: %q", errInvalidInventory, c.Inventory.Source))
	}

	if c.NATS != nil && c.NATS.URL == "" {
		result = multierror.Append(result, errNATSURLRequired)
	}

	if c.Telemetry.ExportInterval <= 0 {
		c.Telemetry.ExportInterval = models.Duration(defaultExportInterval)
	}

	return result.ErrorOrNil()
}

func (c *Config) loggingConfig() *logger.Config {
	if c.Logging != nil {
		return c.Logging
	}

	return &logger.Config{
		Level:  "info",
		Output: "stdout",
	}
}
