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

package inventory

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/carverauto/modbus-poller/pkg/logger"
	"github.com/carverauto/modbus-poller/pkg/models"
)

const sampleInventory = `
devices:
  - id: meter-2
    host: 10.0.0.6
    disabled: true
  - id: meter-1
    name: Main meter
    host: 10.0.0.5
    port: 1502
    addressing: five_digit
    poll_interval: 2s
    request_timeout: 500ms
    slaves:
      - unit_id: 2
        registers:
          - address: 40010
            data_type: int16
      - id: pm
        unit_id: 1
        registers:
          - id: kw
            address: 40001
            data_type: float32
            scale: 0.001
            unit: kW
            byte_order: little
            word_swap: true
            signal_id: plant.kw
          - address: 40003
            disabled: true
            signal_id: plant.status
  - id: meter-3
    host: 10.0.0.7
    deleted: true
`

func writeInventory(t *testing.T, dir, body string) string {
	t.Helper()

	path := filepath.Join(dir, "devices.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))

	return path
}

func TestFileStore_ListDevices(t *testing.T) {
	path := writeInventory(t, t.TempDir(), sampleInventory)

	store, err := NewFileStore(path, logger.NewTestLogger())
	require.NoError(t, err)

	devices, err := store.ListDevices(context.Background())
	require.NoError(t, err)
	require.Len(t, devices, 1)

	assert.Equal(t, models.Device{
		ID:             "meter-1",
		Name:           "Main meter",
		Host:           "10.0.0.5",
		Port:           1502,
		Addressing:     models.AddressingFiveDigit,
		PollInterval:   models.Duration(2 * time.Second),
		RequestTimeout: models.Duration(500 * time.Millisecond),
		IsActive:       true,
	}, devices[0])
}

func TestFileStore_GetDevice(t *testing.T) {
	path := writeInventory(t, t.TempDir(), sampleInventory)

	store, err := NewFileStore(path, logger.NewTestLogger())
	require.NoError(t, err)

	ctx := context.Background()

	d, err := store.GetDevice(ctx, "meter-2")
	require.NoError(t, err)
	assert.False(t, d.IsActive)
	assert.Equal(t, models.AddressingAuto, d.Addressing)

	d, err = store.GetDevice(ctx, "meter-3")
	require.NoError(t, err)
	assert.True(t, d.IsDeleted)

	_, err = store.GetDevice(ctx, "nope")
	require.ErrorIs(t, err, models.ErrDeviceNotFound)
}

func TestFileStore_ListSlaves(t *testing.T) {
	path := writeInventory(t, t.TempDir(), sampleInventory)

	store, err := NewFileStore(path, logger.NewTestLogger())
	require.NoError(t, err)

	slaves, err := store.ListSlaves(context.Background(), "meter-1")
	require.NoError(t, err)
	require.Len(t, slaves, 2)

	pm := slaves[0]
	assert.Equal(t, "pm", pm.ID)
	assert.Equal(t, uint8(1), pm.UnitID)
	require.Len(t, pm.Registers, 2)
	assert.Equal(t, models.Register{
		ID:        "kw",
		SlaveID:   "pm",
		Address:   40001,
		DataType:  models.DataTypeFloat32,
		Scale:     0.001,
		Unit:      "kW",
		ByteOrder: models.ByteOrderLittle,
		WordSwap:  true,
		IsHealthy: true,
	}, pm.Registers[0])
	assert.Equal(t, "pm-40003", pm.Registers[1].ID)
	assert.False(t, pm.Registers[1].IsHealthy)
	assert.Equal(t, models.DataTypeUint16, pm.Registers[1].DataType)

	assert.Equal(t, "meter-1-2", slaves[1].ID)

	// callers may mutate the result without touching the store
	slaves[0].Registers[0].Address = 1

	again, err := store.ListSlaves(context.Background(), "meter-1")
	require.NoError(t, err)
	assert.Equal(t, 40001, again[0].Registers[0].Address)
}

func TestFileStore_SignalsForDevice(t *testing.T) {
	path := writeInventory(t, t.TempDir(), sampleInventory)

	store, err := NewFileStore(path, logger.NewTestLogger())
	require.NoError(t, err)

	signals, err := store.SignalsForDevice(context.Background(), "meter-1")
	require.NoError(t, err)
	assert.Equal(t, map[string]string{
		"meter-1_40001": "plant.kw",
		"meter-1_40003": "plant.status",
	}, signals)

	signals, err = store.SignalsForDevice(context.Background(), "unknown")
	require.NoError(t, err)
	assert.Empty(t, signals)
}

func TestFileStore_ReloadsOnChange(t *testing.T) {
	dir := t.TempDir()
	path := writeInventory(t, dir, sampleInventory)

	store, err := NewFileStore(path, logger.NewTestLogger())
	require.NoError(t, err)

	writeInventory(t, dir, "devices:\n  - id: meter-9\n    host: 10.0.0.9\n")
	future := time.Now().Add(time.Minute)
	require.NoError(t, os.Chtimes(path, future, future))

	devices, err := store.ListDevices(context.Background())
	require.NoError(t, err)
	require.Len(t, devices, 1)
	assert.Equal(t, "meter-9", devices[0].ID)
}

func TestFileStore_KeepsPreviousOnBadReload(t *testing.T) {
	dir := t.TempDir()
	path := writeInventory(t, dir, sampleInventory)

	store, err := NewFileStore(path, logger.NewTestLogger())
	require.NoError(t, err)

	writeInventory(t, dir, "devices: [")
	future := time.Now().Add(time.Minute)
	require.NoError(t, os.Chtimes(path, future, future))

	devices, err := store.ListDevices(context.Background())
	require.NoError(t, err)
	require.Len(t, devices, 1)
	assert.Equal(t, "meter-1", devices[0].ID)
}

func TestNewFileStore_Errors(t *testing.T) {
	_, err := NewFileStore(filepath.Join(t.TempDir(), "missing.yaml"), logger.NewTestLogger())
	require.Error(t, err)

	invalid := `
devices:
  - host: 10.0.0.1
  - id: a
    addressing: two_based
    slaves:
      - unit_id: 300
        registers:
          - address: 1
            data_type: float64
            byte_order: middle
  - id: a
    host: 10.0.0.2
`
	path := writeInventory(t, t.TempDir(), invalid)

	_, err = NewFileStore(path, logger.NewTestLogger())
	require.Error(t, err)

	for _, want := range []error{
		errDeviceIDRequired, errDuplicateDevice, errHostRequired, errInvalidAddressing,
		errUnitIDOutOfRange, errInvalidDataType, errInvalidByteOrder,
	} {
		assert.ErrorIs(t, err, want)
	}
}

func TestNewFileStore_RejectsInvalidSlavesAndRegisters(t *testing.T) {
	tests := []struct {
		name  string
		slave string
		want  error
	}{
		{
			name:  "broadcast unit id",
			slave: "unit_id: 0\n        registers:\n          - address: 1",
			want:  errUnitIDOutOfRange,
		},
		{
			name:  "reserved unit id",
			slave: "unit_id: 248\n        registers:\n          - address: 1",
			want:  errUnitIDOutOfRange,
		},
		{
			name:  "negative scale",
			slave: "unit_id: 1\n        registers:\n          - address: 1\n            scale: -2",
			want:  models.ErrNegativeScale,
		},
		{
			name:  "float32 with one word",
			slave: "unit_id: 1\n        registers:\n          - address: 1\n            data_type: float32\n            length: 1",
			want:  models.ErrLengthTooShort,
		},
		{
			name:  "int32 with one word",
			slave: "unit_id: 1\n        registers:\n          - address: 1\n            data_type: int32\n            length: 1",
			want:  models.ErrLengthTooShort,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			body := "devices:\n  - id: m\n    host: 10.0.0.1\n    slaves:\n      - " + tt.slave + "\n"
			path := writeInventory(t, t.TempDir(), body)

			_, err := NewFileStore(path, logger.NewTestLogger())
			require.ErrorIs(t, err, tt.want)
		})
	}
}

func TestNewFileStore_AcceptsBoundaryUnitIDs(t *testing.T) {
	body := `
devices:
  - id: m
    host: 10.0.0.1
    slaves:
      - unit_id: 1
        registers:
          - address: 1
            data_type: float32
            length: 2
      - unit_id: 247
        registers:
          - address: 1
`
	store, err := NewFileStore(writeInventory(t, t.TempDir(), body), logger.NewTestLogger())
	require.NoError(t, err)

	slaves, err := store.ListSlaves(context.Background(), "m")
	require.NoError(t, err)
	require.Len(t, slaves, 2)
	assert.Equal(t, uint8(1), slaves[0].UnitID)
	assert.Equal(t, uint8(247), slaves[1].UnitID)
}
