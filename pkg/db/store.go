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

package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/carverauto/modbus-poller/pkg/logger"
	"github.com/carverauto/modbus-poller/pkg/models"
)

// querier is the subset of pgxpool.Pool the store reads through.
type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Store serves device configuration and signal mappings from CNPG.
type Store struct {
	db     querier
	logger logger.Logger
}

func NewStore(db querier, log logger.Logger) *Store {
	return &Store{db: db, logger: log}
}

// ListDevices returns active, non-deleted devices ordered by id.
func (s *Store) ListDevices(ctx context.Context) ([]models.Device, error) {
	rows, err := s.db.Query(ctx, listPollableDevicesSQL)
	if err != nil {
		return nil, fmt.Errorf("failed to query devices: %w", err)
	}
	defer rows.Close()

	var devices []models.Device

	for rows.Next() {
		d, err := scanDevice(rows)
		if err != nil {
			return nil, err
		}

		devices = append(devices, d)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate devices: %w", err)
	}

	return devices, nil
}

// GetDevice returns a device regardless of its active or deleted flags.
func (s *Store) GetDevice(ctx context.Context, id string) (*models.Device, error) {
	d, err := scanDevice(s.db.QueryRow(ctx, getDeviceSQL, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", models.ErrDeviceNotFound, id)
		}

		return nil, err
	}

	return &d, nil
}

// ListSlaves returns the device's slaves ordered by unit id, each with its
// registers ordered by address.
func (s *Store) ListSlaves(ctx context.Context, deviceID string) ([]models.Slave, error) {
	slaves, err := s.querySlaves(ctx, deviceID)
	if err != nil || len(slaves) == 0 {
		return nil, err
	}

	index := make(map[string]int, len(slaves))
	for i := range slaves {
		index[slaves[i].ID] = i
	}

	rows, err := s.db.Query(ctx, listRegistersSQL, deviceID)
	if err != nil {
		return nil, fmt.Errorf("failed to query registers: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		reg, err := scanRegister(rows)
		if err != nil {
			return nil, err
		}

		i, ok := index[reg.SlaveID]
		if !ok {
			continue
		}

		if err := reg.Validate(); err != nil {
			s.logger.Warn().
				Err(err).
				Str("register_id", reg.ID).
				Int("address", reg.Address).
				Msg("Skipping invalid register")

			continue
		}

		slaves[i].Registers = append(slaves[i].Registers, reg)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate registers: %w", err)
	}

	return slaves, nil
}

func (s *Store) querySlaves(ctx context.Context, deviceID string) ([]models.Slave, error) {
	rows, err := s.db.Query(ctx, listSlavesSQL, deviceID)
	if err != nil {
		return nil, fmt.Errorf("failed to query slaves: %w", err)
	}
	defer rows.Close()

	var slaves []models.Slave

	for rows.Next() {
		var (
			slave  models.Slave
			unitID int32
		)

		if err := rows.Scan(&slave.ID, &slave.DeviceID, &unitID, &slave.IsHealthy); err != nil {
			return nil, fmt.Errorf("failed to scan slave: %w", err)
		}

		if !models.ValidUnitID(int(unitID)) {
			s.logger.Warn().
				Str("slave_id", slave.ID).
				Int32("unit_id", unitID).
				Msg("Skipping slave with out-of-range unit id")

			continue
		}

		slave.UnitID = uint8(unitID)
		slaves = append(slaves, slave)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate slaves: %w", err)
	}

	return slaves, nil
}

// SignalsForDevice returns the device's register to signal mapping keyed by
// models.SignalKey.
func (s *Store) SignalsForDevice(ctx context.Context, deviceID string) (map[string]string, error) {
	rows, err := s.db.Query(ctx, listSignalMappingsSQL, deviceID)
	if err != nil {
		return nil, fmt.Errorf("failed to query signal mappings: %w", err)
	}
	defer rows.Close()

	signals := make(map[string]string)

	for rows.Next() {
		var (
			address  int32
			signalID string
		)

		if err := rows.Scan(&address, &signalID); err != nil {
			return nil, fmt.Errorf("failed to scan signal mapping: %w", err)
		}

		signals[models.SignalKey(deviceID, int(address))] = signalID
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate signal mappings: %w", err)
	}

	return signals, nil
}

func scanDevice(row pgx.Row) (models.Device, error) {
	var (
		d              models.Device
		name           sql.NullString
		port           sql.NullInt32
		addressing     sql.NullString
		pollInterval   sql.NullInt64
		requestTimeout sql.NullInt64
	)

	err := row.Scan(&d.ID, &name, &d.Host, &port, &addressing, &pollInterval, &requestTimeout, &d.IsActive, &d.IsDeleted)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return d, err
		}

		return d, fmt.Errorf("failed to scan device: %w", err)
	}

	d.Name = name.String
	d.Port = int(port.Int32)
	d.Addressing = models.Addressing(addressing.String)

	if d.Addressing == "" {
		d.Addressing = models.AddressingAuto
	}

	if pollInterval.Valid {
		d.PollInterval = models.Duration(time.Duration(pollInterval.Int64) * time.Millisecond)
	}

	if requestTimeout.Valid {
		d.RequestTimeout = models.Duration(time.Duration(requestTimeout.Int64) * time.Millisecond)
	}

	return d, nil
}

func scanRegister(row pgx.Row) (models.Register, error) {
	var (
		reg       models.Register
		address   int32
		length    sql.NullInt32
		dataType  sql.NullString
		scale     sql.NullFloat64
		unit      sql.NullString
		byteOrder sql.NullString
	)

	err := row.Scan(&reg.ID, &reg.SlaveID, &address, &length, &dataType, &scale, &unit, &byteOrder, &reg.WordSwap, &reg.IsHealthy)
	if err != nil {
		return reg, fmt.Errorf("failed to scan register: %w", err)
	}

	reg.Address = int(address)
	reg.Length = int(length.Int32)
	reg.DataType = models.DataType(dataType.String)
	reg.Scale = scale.Float64
	reg.Unit = unit.String
	reg.ByteOrder = models.ByteOrder(byteOrder.String)

	if reg.DataType == "" {
		reg.DataType = models.DataTypeUint16
	}

	if reg.ByteOrder == "" {
		reg.ByteOrder = models.ByteOrderBig
	}

	return reg, nil
}
