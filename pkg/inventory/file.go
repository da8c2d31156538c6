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

// Package inventory serves device configuration and signal mappings from a
// YAML file that is re-read whenever it changes on disk.
package inventory

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/hashicorp/go-multierror"
	"gopkg.in/yaml.v3"

	"github.com/carverauto/modbus-poller/pkg/logger"
	"github.com/carverauto/modbus-poller/pkg/models"
)

var (
	errDeviceIDRequired  = errors.New("device id is required")
	errDuplicateDevice   = errors.New("duplicate device id")
	errHostRequired      = errors.New("device host is required")
	errUnitIDOutOfRange  = errors.New("unit id out of range")
	errInvalidDataType   = errors.New("invalid data type")
	errInvalidByteOrder  = errors.New("invalid byte order")
	errInvalidAddressing = errors.New("invalid addressing")
)

type fileConfig struct {
	Devices []fileDevice `yaml:"devices"`
}

type fileDevice struct {
	ID             string            `yaml:"id"`
	Name           string            `yaml:"name"`
	Host           string            `yaml:"host"`
	Port           int               `yaml:"port"`
	Addressing     models.Addressing `yaml:"addressing"`
	PollInterval   models.Duration   `yaml:"poll_interval"`
	RequestTimeout models.Duration   `yaml:"request_timeout"`
	Disabled       bool              `yaml:"disabled"`
	Deleted        bool              `yaml:"deleted"`
	Slaves         []fileSlave       `yaml:"slaves"`
}

type fileSlave struct {
	ID        string         `yaml:"id"`
	UnitID    int            `yaml:"unit_id"`
	Disabled  bool           `yaml:"disabled"`
	Registers []fileRegister `yaml:"registers"`
}

type fileRegister struct {
	ID        string           `yaml:"id"`
	Address   int              `yaml:"address"`
	Length    int              `yaml:"length"`
	DataType  models.DataType  `yaml:"data_type"`
	Scale     float64          `yaml:"scale"`
	Unit      string           `yaml:"unit"`
	ByteOrder models.ByteOrder `yaml:"byte_order"`
	WordSwap  bool             `yaml:"word_swap"`
	Disabled  bool             `yaml:"disabled"`
	SignalID  string           `yaml:"signal_id"`
}

type snapshot struct {
	order   []string
	devices map[string]models.Device
	slaves  map[string][]models.Slave
	signals map[string]map[string]string
}

// FileStore implements the poller's configuration store and the fan-out
// signal lookup on top of one YAML file.
type FileStore struct {
	path   string
	logger logger.Logger

	mu      sync.RWMutex
	modTime time.Time
	size    int64
	current *snapshot
}

// NewFileStore loads path and fails if it cannot be parsed.
func NewFileStore(path string, log logger.Logger) (*FileStore, error) {
	s := &FileStore{path: path, logger: log}

	if _, err := s.snapshot(); err != nil {
		return nil, err
	}

	return s, nil
}

// ListDevices returns enabled, non-deleted devices ordered by id.
func (s *FileStore) ListDevices(_ context.Context) ([]models.Device, error) {
	snap, err := s.snapshot()
	if err != nil {
		return nil, err
	}

	devices := make([]models.Device, 0, len(snap.order))

	for _, id := range snap.order {
		d := snap.devices[id]
		if d.Pollable() {
			devices = append(devices, d)
		}
	}

	return devices, nil
}

// GetDevice returns a device including disabled or deleted ones.
func (s *FileStore) GetDevice(_ context.Context, id string) (*models.Device, error) {
	snap, err := s.snapshot()
	if err != nil {
		return nil, err
	}

	d, ok := snap.devices[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", models.ErrDeviceNotFound, id)
	}

	return &d, nil
}

// ListSlaves returns a copy of the device's slaves ordered by unit id.
func (s *FileStore) ListSlaves(_ context.Context, deviceID string) ([]models.Slave, error) {
	snap, err := s.snapshot()
	if err != nil {
		return nil, err
	}

	src := snap.slaves[deviceID]
	out := make([]models.Slave, len(src))

	for i := range src {
		out[i] = src[i]
		out[i].Registers = append([]models.Register(nil), src[i].Registers...)
	}

	return out, nil
}

// SignalsForDevice returns the register to signal mapping of deviceID.
func (s *FileStore) SignalsForDevice(_ context.Context, deviceID string) (map[string]string, error) {
	snap, err := s.snapshot()
	if err != nil {
		return nil, err
	}

	out := make(map[string]string, len(snap.signals[deviceID]))
	for k, v := range snap.signals[deviceID] {
		out[k] = v
	}

	return out, nil
}

// snapshot returns the parsed file, re-reading it when its modification
// time or size changed. A file that fails to parse after a successful load
// is logged and the previous snapshot is kept.
func (s *FileStore) snapshot() (*snapshot, error) {
	info, err := os.Stat(s.path)
	if err != nil {
		return s.fallback(fmt.Errorf("failed to stat inventory %s: %w", s.path, err))
	}

	s.mu.RLock()
	current := s.current
	fresh := current != nil && info.ModTime().Equal(s.modTime) && info.Size() == s.size
	s.mu.RUnlock()

	if fresh {
		return current, nil
	}

	snap, err := s.load()
	if err != nil {
		return s.fallback(err)
	}

	s.mu.Lock()
	s.current = snap
	s.modTime = info.ModTime()
	s.size = info.Size()
	s.mu.Unlock()

	s.logger.Info().
		Str("path", s.path).
		Int("devices", len(snap.order)).
		Msg("Loaded device inventory")

	return snap, nil
}

func (s *FileStore) fallback(err error) (*snapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.current == nil {
		return nil, err
	}

	s.logger.Warn().Err(err).Str("path", s.path).Msg("Keeping previous inventory")

	return s.current, nil
}

func (s *FileStore) load() (*snapshot, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		return nil, fmt.Errorf("failed to read inventory %s: %w", s.path, err)
	}

	var cfg fileConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse inventory %s: %w", s.path, err)
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid inventory %s: %w", s.path, err)
	}

	return cfg.build(), nil
}

func (c *fileConfig) validate() error {
	var result *multierror.Error

	seen := make(map[string]struct{}, len(c.Devices))

	for i := range c.Devices {
		d := &c.Devices[i]

		if d.ID == "" {
			result = multierror.Append(result, fmt.Errorf("devices[%d]: %w", i, errDeviceIDRequired))

			continue
		}

		if _, dup := seen[d.ID]; dup {
			result = multierror.Append(result, fmt.Errorf("%w: %s", errDuplicateDevice, d.ID))
		}

		seen[d.ID] = struct{}{}

		if d.Host == "" {
			result = multierror.Append(result, fmt.Errorf("device %s: %w", d.ID, errHostRequired))
		}

		switch d.Addressing {
		case "", models.AddressingAuto, models.AddressingFiveDigit, models.AddressingOneBased, models.AddressingZeroBased:
		default:
			result = multierror.Append(result, fmt.Errorf("device %s: %w: %q", d.ID, errInvalidAddressing, d.Addressing))
		}

		for _, sl := range d.Slaves {
			if !models.ValidUnitID(sl.UnitID) {
				result = multierror.Append(result, fmt.Errorf("device %s: %w: %d", d.ID, errUnitIDOutOfRange, sl.UnitID))
			}

			for _, r := range sl.Registers {
				if r.DataType != "" && !r.DataType.Valid() {
					result = multierror.Append(result,
						fmt.Errorf("device %s register %d: %w: %q", d.ID, r.Address, errInvalidDataType, r.DataType))
				}

				switch r.ByteOrder {
				case "", models.ByteOrderBig, models.ByteOrderLittle:
				default:
					result = multierror.Append(result,
						fmt.Errorf("device %s register %d: %w: %q", d.ID, r.Address, errInvalidByteOrder, r.ByteOrder))
				}

				reg := models.Register{DataType: r.DataType, Length: r.Length, Scale: r.Scale}
				if err := reg.Validate(); err != nil {
					result = multierror.Append(result, fmt.Errorf("device %s register %d: %w", d.ID, r.Address, err))
				}
			}
		}
	}

	return result.ErrorOrNil()
}

func (c *fileConfig) build() *snapshot {
	snap := &snapshot{
		devices: make(map[string]models.Device, len(c.Devices)),
		slaves:  make(map[string][]models.Slave, len(c.Devices)),
		signals: make(map[string]map[string]string, len(c.Devices)),
	}

	for i := range c.Devices {
		fd := &c.Devices[i]

		addressing := fd.Addressing
		if addressing == "" {
			addressing = models.AddressingAuto
		}

		snap.order = append(snap.order, fd.ID)
		snap.devices[fd.ID] = models.Device{
			ID:             fd.ID,
			Name:           fd.Name,
			Host:           fd.Host,
			Port:           fd.Port,
			Addressing:     addressing,
			PollInterval:   fd.PollInterval,
			RequestTimeout: fd.RequestTimeout,
			IsActive:       !fd.Disabled,
			IsDeleted:      fd.Deleted,
		}

		signals := make(map[string]string)
		slaves := make([]models.Slave, 0, len(fd.Slaves))

		for _, fs := range fd.Slaves {
			slaveID := fs.ID
			if slaveID == "" {
				slaveID = fd.ID + "-" + strconv.Itoa(fs.UnitID)
			}

			slave := models.Slave{
				ID:        slaveID,
				DeviceID:  fd.ID,
				UnitID:    uint8(fs.UnitID),
				IsHealthy: !fs.Disabled,
			}

			for _, fr := range fs.Registers {
				slave.Registers = append(slave.Registers, fr.register(slaveID))

				if fr.SignalID != "" {
					signals[models.SignalKey(fd.ID, fr.Address)] = fr.SignalID
				}
			}

			slaves = append(slaves, slave)
		}

		sort.SliceStable(slaves, func(a, b int) bool { return slaves[a].UnitID < slaves[b].UnitID })

		snap.slaves[fd.ID] = slaves
		snap.signals[fd.ID] = signals
	}

	sort.Strings(snap.order)

	return snap
}

func (r *fileRegister) register(slaveID string) models.Register {
	id := r.ID
	if id == "" {
		id = slaveID + "-" + strconv.Itoa(r.Address)
	}

	dataType := r.DataType
	if dataType == "" {
		dataType = models.DataTypeUint16
	}

	byteOrder := r.ByteOrder
	if byteOrder == "" {
		byteOrder = models.ByteOrderBig
	}

	return models.Register{
		ID:        id,
		SlaveID:   slaveID,
		Address:   r.Address,
		Length:    r.Length,
		DataType:  dataType,
		Scale:     r.Scale,
		Unit:      r.Unit,
		ByteOrder: byteOrder,
		WordSwap:  r.WordSwap,
		IsHealthy: !r.Disabled,
	}
}
