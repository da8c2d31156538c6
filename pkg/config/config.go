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

// Package config loads service configuration from a JSON file or from the
// environment, selected by CONFIG_SOURCE, and validates it.
package config

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/carverauto/modbus-poller/pkg/logger"
	"github.com/rs/zerolog"
)

var (
	errInvalidConfigSource = errors.New("invalid CONFIG_SOURCE value")
)

const (
	configSourceFile = "file"
	configSourceEnv  = "env"

	defaultEnvPrefix = "MODBUS_POLLER_"
)

// ConfigLoader fills dst from some source. path may be ignored.
type ConfigLoader interface {
	Load(ctx context.Context, path string, dst interface{}) error
}

// Validator is implemented by configs that check and default themselves.
type Validator interface {
	Validate() error
}

// Config holds the configuration loading dependencies.
type Config struct {
	defaultLoader ConfigLoader
	logger        logger.Logger
}

// NewConfig returns a loader that reads files by default. A nil logger is
// replaced with a warn-level stderr logger.
func NewConfig(log logger.Logger) *Config {
	if log == nil {
		log = &bootLogger{logger: zerolog.New(os.Stderr).Level(zerolog.WarnLevel).With().Timestamp().Logger()}
	}

	return &Config{
		defaultLoader: &FileConfigLoader{},
		logger:        log,
	}
}

// ValidateConfig validates a configuration if it implements Validator.
func ValidateConfig(cfg interface{}) error {
	v, ok := cfg.(Validator)
	if !ok {
		return nil
	}

	return v.Validate()
}

// LoadAndValidate loads cfg using the loader chosen by CONFIG_SOURCE and then
// validates it.
func (c *Config) LoadAndValidate(ctx context.Context, path string, cfg interface{}) error {
	loader, err := c.loaderFor(strings.ToLower(os.Getenv("CONFIG_SOURCE")))
	if err != nil {
		return err
	}

	if err := loader.Load(ctx, path, cfg); err != nil {
		return err
	}

	return ValidateConfig(cfg)
}

func (c *Config) loaderFor(source string) (ConfigLoader, error) {
	switch source {
	case configSourceFile, "":
		return c.defaultLoader, nil
	case configSourceEnv:
		prefix := os.Getenv("CONFIG_ENV_PREFIX")
		if prefix == "" {
			prefix = defaultEnvPrefix
		}

		return NewEnvConfigLoader(c.logger, prefix), nil
	default:
		return nil, fmt.Errorf("%w: %s (expected '%s' or '%s')",
			errInvalidConfigSource, source, configSourceFile, configSourceEnv)
	}
}

// bootLogger is used before the service logger exists.
type bootLogger struct {
	logger zerolog.Logger
}

func (b *bootLogger) Trace() *zerolog.Event { return b.logger.Trace() }
func (b *bootLogger) Debug() *zerolog.Event { return b.logger.Debug() }
func (b *bootLogger) Info() *zerolog.Event  { return b.logger.Info() }
func (b *bootLogger) Warn() *zerolog.Event  { return b.logger.Warn() }
func (b *bootLogger) Error() *zerolog.Event { return b.logger.Error() }
func (b *bootLogger) Fatal() *zerolog.Event { return b.logger.Fatal() }
func (b *bootLogger) With() zerolog.Context { return b.logger.With() }

func (b *bootLogger) WithComponent(component string) zerolog.Logger {
	return b.logger.With().Str("component", component).Logger()
}

func (b *bootLogger) WithFields(fields map[string]interface{}) zerolog.Logger {
	return b.logger.With().Fields(fields).Logger()
}

func (b *bootLogger) SetLevel(level zerolog.Level) { b.logger = b.logger.Level(level) }

func (b *bootLogger) SetDebug(debug bool) {
	if debug {
		b.SetLevel(zerolog.DebugLevel)
	} else {
		b.SetLevel(zerolog.InfoLevel)
	}
}
