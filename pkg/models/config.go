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

package models

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"gopkg.in/yaml.v3"
)

var errInvalidDuration = errors.New("invalid duration")

// Duration is a time.Duration that reads "10s" style strings or nanosecond
// numbers from JSON and YAML.
type Duration time.Duration

func (d *Duration) UnmarshalJSON(b []byte) error {
	var v interface{}
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}

	switch value := v.(type) {
	case float64:
		*d = Duration(time.Duration(value))

		return nil
	case string:
		return d.parse(value)
	default:
		return fmt.Errorf("%w: %v", errInvalidDuration, v)
	}
}

func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}

func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.ScalarNode {
		return fmt.Errorf("%w: line %d", errInvalidDuration, node.Line)
	}

	if node.ShortTag() == "!!int" {
		var n int64
		if err := node.Decode(&n); err != nil {
			return err
		}

		*d = Duration(time.Duration(n))

		return nil
	}

	return d.parse(node.Value)
}

func (d *Duration) parse(s string) error {
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("%w: %w", errInvalidDuration, err)
	}

	*d = Duration(parsed)

	return nil
}

// TLSConfig names PEM files for a client TLS connection.
type TLSConfig struct {
	CertFile string `json:"cert_file" yaml:"cert_file"`
	KeyFile  string `json:"key_file" yaml:"key_file"`
	CAFile   string `json:"ca_file" yaml:"ca_file"`
}

// CNPGDatabase describes the PostgreSQL (CloudNativePG) cluster holding the
// device inventory and signal mappings.
type CNPGDatabase struct {
	Host               string            `json:"host"`
	Port               int               `json:"port"`
	Database           string            `json:"database"`
	Username           string            `json:"username"`
	Password           string            `json:"password"`
	ApplicationName    string            `json:"application_name"`
	SSLMode            string            `json:"ssl_mode"`
	CertDir            string            `json:"cert_dir"`
	TLS                *TLSConfig        `json:"tls,omitempty"`
	MaxConnections     int32             `json:"max_connections"`
	MinConnections     int32             `json:"min_connections"`
	MaxConnLifetime    Duration          `json:"max_conn_lifetime"`
	HealthCheckPeriod  Duration          `json:"health_check_period"`
	StatementTimeout   Duration          `json:"statement_timeout"`
	ExtraRuntimeParams map[string]string `json:"extra_runtime_params,omitempty"`
}

// NATSConfig configures the JetStream telemetry queue.
type NATSConfig struct {
	URL           string     `json:"url"`
	Domain        string     `json:"domain,omitempty"`
	Stream        string     `json:"stream"`
	SubjectPrefix string     `json:"subject_prefix"`
	EventsSubject string     `json:"events_subject"`
	CredsFile     string     `json:"creds_file,omitempty"`
	TLS           *TLSConfig `json:"tls,omitempty"`
}

// StreamConfig configures the websocket broadcast endpoint.
type StreamConfig struct {
	AllowedOrigins []string `json:"allowed_origins"`
	SendBuffer     int      `json:"send_buffer"`
	PingInterval   Duration `json:"ping_interval"`
	WriteTimeout   Duration `json:"write_timeout"`
}

// InventorySource selects where device configuration is read from.
type InventorySource string

const (
	InventoryFile InventorySource = "file"
	InventoryCNPG InventorySource = "cnpg"
)

type InventoryConfig struct {
	Source InventorySource `json:"source"`
	Path   string          `json:"path,omitempty"`
}
