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

// Package db reads the device inventory and signal mappings from the
// PostgreSQL (CloudNativePG) cluster.
package db

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/carverauto/modbus-poller/pkg/logger"
	"github.com/carverauto/modbus-poller/pkg/models"
)

const defaultCNPGPort = 5432

var (
	ErrCNPGConfigRequired = errors.New("cnpg: configuration is required")
	ErrCNPGTLSDisabled    = errors.New("cnpg: tls is configured but sslmode is disable")
	ErrCNPGTLSIncomplete  = errors.New("cnpg tls: cert_file, key_file, and ca_file are required")
	ErrCNPGInvalidSSLMode = errors.New("cnpg: invalid sslmode")
)

//nolint:gochecknoglobals // lookup table
var validSSLModes = map[string]struct{}{
	"disable":     {},
	"allow":       {},
	"prefer":      {},
	"require":     {},
	"verify-ca":   {},
	"verify-full": {},
}

// NewCNPGPool dials the configured CNPG cluster and returns a pgx pool.
func NewCNPGPool(ctx context.Context, cfg *models.CNPGDatabase, log logger.Logger) (*pgxpool.Pool, error) {
	connURL, err := buildCNPGConnURL(cfg)
	if err != nil {
		return nil, err
	}

	poolConfig, err := pgxpool.ParseConfig(connURL.String())
	if err != nil {
		return nil, fmt.Errorf("cnpg: failed to parse connection string: %w", err)
	}

	if cfg.MaxConnections > 0 {
		poolConfig.MaxConns = cfg.MaxConnections
	}

	if cfg.MinConnections > 0 {
		poolConfig.MinConns = cfg.MinConnections
	}

	if cfg.MaxConnLifetime > 0 {
		poolConfig.MaxConnLifetime = time.Duration(cfg.MaxConnLifetime)
	}

	if cfg.HealthCheckPeriod > 0 {
		poolConfig.HealthCheckPeriod = time.Duration(cfg.HealthCheckPeriod)
	}

	if cfg.StatementTimeout > 0 {
		if poolConfig.ConnConfig.RuntimeParams == nil {
			poolConfig.ConnConfig.RuntimeParams = make(map[string]string)
		}

		timeout := time.Duration(cfg.StatementTimeout) / time.Millisecond
		poolConfig.ConnConfig.RuntimeParams["statement_timeout"] = strconv.FormatInt(int64(timeout), 10)
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("cnpg: failed to initialize pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()

		return nil, fmt.Errorf("cnpg: failed to reach cluster: %w", err)
	}

	log.Info().
		Str("host", cfg.Host).
		Str("database", cfg.Database).
		Int32("max_conns", poolConfig.MaxConns).
		Msg("Connected to CNPG cluster")

	return pool, nil
}

func buildCNPGConnURL(cfg *models.CNPGDatabase) (*url.URL, error) {
	if cfg == nil {
		return nil, ErrCNPGConfigRequired
	}

	port := cfg.Port
	if port == 0 {
		port = defaultCNPGPort
	}

	connURL := &url.URL{
		Scheme: "postgres",
		Host:   fmt.Sprintf("%s:%d", cfg.Host, port),
		Path:   "/" + cfg.Database,
	}

	if cfg.Username != "" {
		if cfg.Password != "" {
			connURL.User = url.UserPassword(cfg.Username, cfg.Password)
		} else {
			connURL.User = url.User(cfg.Username)
		}
	}

	sslMode, err := resolveCNPGSSLMode(cfg)
	if err != nil {
		return nil, err
	}

	query := connURL.Query()
	query.Set("sslmode", sslMode)

	if cfg.ApplicationName != "" {
		query.Set("application_name", cfg.ApplicationName)
	}

	for k, v := range cfg.ExtraRuntimeParams {
		if k == "" || strings.EqualFold(k, "sslmode") {
			continue
		}

		query.Set(k, v)
	}

	if cfg.TLS != nil {
		certFile := resolveCertPath(cfg.CertDir, cfg.TLS.CertFile)
		keyFile := resolveCertPath(cfg.CertDir, cfg.TLS.KeyFile)
		caFile := resolveCertPath(cfg.CertDir, cfg.TLS.CAFile)

		if certFile == "" || keyFile == "" || caFile == "" {
			return nil, ErrCNPGTLSIncomplete
		}

		query.Set("sslcert", certFile)
		query.Set("sslkey", keyFile)
		query.Set("sslrootcert", caFile)
	}

	connURL.RawQuery = query.Encode()

	return connURL, nil
}

// resolveCNPGSSLMode prefers the explicit ssl_mode, then a runtime param,
// then verify-full when TLS files are configured and disable otherwise.
func resolveCNPGSSLMode(cfg *models.CNPGDatabase) (string, error) {
	mode := strings.ToLower(strings.TrimSpace(cfg.SSLMode))

	if mode == "" {
		for k, v := range cfg.ExtraRuntimeParams {
			if strings.EqualFold(k, "sslmode") {
				mode = strings.ToLower(strings.TrimSpace(v))
			}
		}
	}

	if mode == "" {
		if cfg.TLS != nil {
			return "verify-full", nil
		}

		return "disable", nil
	}

	if _, ok := validSSLModes[mode]; !ok {
		return "", fmt.Errorf("%w: %q", ErrCNPGInvalidSSLMode, mode)
	}

	if cfg.TLS != nil && mode == "disable" {
		return "", ErrCNPGTLSDisabled
	}

	return mode, nil
}

func resolveCertPath(certDir, path string) string {
	if path == "" || filepath.IsAbs(path) || certDir == "" {
		return path
	}

	return filepath.Join(certDir, path)
}
