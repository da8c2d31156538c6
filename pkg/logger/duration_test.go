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

package logger

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDuration_UnmarshalJSON(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected Duration
		wantErr  bool
	}{
		{name: "string duration", input: `"250ms"`, expected: Duration(250 * time.Millisecond)},
		{name: "nanoseconds", input: `3000000000`, expected: Duration(3 * time.Second)},
		{name: "compound string", input: `"1m30s"`, expected: Duration(90 * time.Second)},
		{name: "garbage string", input: `"soon"`, wantErr: true},
		{name: "wrong type", input: `true`, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var d Duration

			err := json.Unmarshal([]byte(tt.input), &d)
			if tt.wantErr {
				require.Error(t, err)
				return
			}

			require.NoError(t, err)
			assert.Equal(t, tt.expected, d)
		})
	}
}

func TestDuration_MarshalRoundTrip(t *testing.T) {
	out, err := json.Marshal(Duration(5 * time.Second))
	require.NoError(t, err)
	assert.JSONEq(t, `"5s"`, string(out))
}

func TestOTelConfig_JSONUnmarshaling(t *testing.T) {
	raw := `{
		"enabled": true,
		"endpoint": "otel-collector:4317",
		"service_name": "modbus-poller-test",
		"batch_timeout": "10s",
		"insecure": true,
		"headers": {"x-api-key": "k"}
	}`

	var config OTelConfig
	require.NoError(t, json.Unmarshal([]byte(raw), &config))

	assert.True(t, config.Enabled)
	assert.Equal(t, "otel-collector:4317", config.Endpoint)
	assert.Equal(t, "modbus-poller-test", config.ServiceName)
	assert.Equal(t, Duration(10*time.Second), config.BatchTimeout)
	assert.True(t, config.Insecure)
	assert.Equal(t, "k", config.Headers["x-api-key"])
}
