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
	"errors"
	"fmt"
	"time"

	"github.com/hashicorp/go-multierror"

	"github.com/carverauto/modbus-poller/pkg/health"
	"github.com/carverauto/modbus-poller/pkg/models"
	"github.com/carverauto/modbus-poller/pkg/modbus"
)

const (
	defaultMaxConcurrentDevices  = 10
	defaultRescanInterval        = 5 * time.Second
	defaultPollInterval          = 10 * time.Second
	defaultMissingDeviceInterval = 5 * time.Second
	defaultConnectTimeout        = 3 * time.Second
	defaultRequestTimeout        = 3 * time.Second
)

var (
	errNegativeConcurrency = errors.New("max_concurrent_devices must not be negative")
	errNegativeInterval    = errors.New("interval must not be negative")
	errNegativeThreshold   = errors.New("failure_threshold must not be negative")
	errMaxRegistersRange   = fmt.Errorf("max_registers_per_read must be between 0 and %d", modbus.MaxQuantity)
)

// Config controls the scheduler. Zero values select defaults.
type Config struct {
	PollerID              string          `json:"poller_id"`
	MaxConcurrentDevices  int             `json:"max_concurrent_devices"`
	RescanInterval        models.Duration `json:"rescan_interval"`
	DefaultPollInterval   models.Duration `json:"default_poll_interval"`
	MissingDeviceInterval models.Duration `json:"missing_device_interval"`
	ConnectTimeout        models.Duration `json:"connect_timeout"`
	RequestTimeout        models.Duration `json:"request_timeout"`
	FailureThreshold      int             `json:"failure_threshold"`
	// IsolateFailedRanges re-reads each register of a range that returned a
	// slave exception so only the offending registers accumulate failures.
	IsolateFailedRanges bool `json:"isolate_failed_ranges"`
	MaxRegistersPerRead int  `json:"max_registers_per_read"`
}

// Validate rejects negative settings and fills in defaults.
func (c *Config) Validate() error {
	var result *multierror.Error

	if c.MaxConcurrentDevices < 0 {
		result = multierror.Append(result, errNegativeConcurrency)
	}

	if c.FailureThreshold < 0 {
		result = multierror.Append(result, errNegativeThreshold)
	}

	if c.MaxRegistersPerRead < 0 || c.MaxRegistersPerRead > modbus.MaxQuantity {
		result = multierror.Append(result, fmt.Errorf("%w: %d", errMaxRegistersRange, c.MaxRegistersPerRead))
	}

	durations := []struct {
		name string
		val  *models.Duration
		def  time.Duration
	}{
		{"rescan_interval", &c.RescanInterval, defaultRescanInterval},
		{"default_poll_interval", &c.DefaultPollInterval, defaultPollInterval},
		{"missing_device_interval", &c.MissingDeviceInterval, defaultMissingDeviceInterval},
		{"connect_timeout", &c.ConnectTimeout, defaultConnectTimeout},
		{"request_timeout", &c.RequestTimeout, defaultRequestTimeout},
	}

	for _, d := range durations {
		switch {
		case *d.val < 0:
			result = multierror.Append(result, fmt.Errorf("%s: %w", d.name, errNegativeInterval))
		case *d.val == 0:
			*d.val = models.Duration(d.def)
		}
	}

	if err := result.ErrorOrNil(); err != nil {
		return err
	}

	if c.MaxConcurrentDevices == 0 {
		c.MaxConcurrentDevices = defaultMaxConcurrentDevices
	}

	if c.FailureThreshold == 0 {
		c.FailureThreshold = health.DefaultThreshold
	}

	if c.MaxRegistersPerRead == 0 {
		c.MaxRegistersPerRead = modbus.MaxQuantity
	}

	return nil
}

// pollInterval is the device interval, or the default when unset.
func (c *Config) pollInterval(d *models.Device) time.Duration {
	if d != nil && d.PollInterval > 0 {
		return time.Duration(d.PollInterval)
	}

	return time.Duration(c.DefaultPollInterval)
}

func (c *Config) requestTimeout(d *models.Device) time.Duration {
	if d != nil && d.RequestTimeout > 0 {
		return time.Duration(d.RequestTimeout)
	}

	return time.Duration(c.RequestTimeout)
}
