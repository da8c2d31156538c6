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
	"fmt"
	"time"
)

// Addressing is the numbering convention used by a device's register list.
type Addressing string

const (
	// AddressingAuto picks five-digit when any register address is >= 40001.
	AddressingAuto Addressing = "auto"
	// AddressingFiveDigit treats 4xxxx as holding registers, one-based.
	AddressingFiveDigit Addressing = "five_digit"
	// AddressingOneBased subtracts one from every address.
	AddressingOneBased Addressing = "one_based"
	// AddressingZeroBased uses addresses as sent on the wire.
	AddressingZeroBased Addressing = "zero_based"
)

// DataType tags how a register's words are interpreted.
type DataType string

const (
	DataTypeInt16   DataType = "int16"
	DataTypeUint16  DataType = "uint16"
	DataTypeInt32   DataType = "int32"
	DataTypeUint32  DataType = "uint32"
	DataTypeFloat32 DataType = "float32"
)

// Words returns the natural register width of the data type.
func (t DataType) Words() int {
	switch t {
	case DataTypeInt32, DataTypeUint32, DataTypeFloat32:
		return 2
	case DataTypeInt16, DataTypeUint16:
		return 1
	default:
		return 1
	}
}

// Valid reports whether t is a known data type.
func (t DataType) Valid() bool {
	switch t {
	case DataTypeInt16, DataTypeUint16, DataTypeInt32, DataTypeUint32, DataTypeFloat32:
		return true
	default:
		return false
	}
}

// ByteOrder of the assembled multi-word buffer. Big is the wire default.
type ByteOrder string

const (
	ByteOrderBig    ByteOrder = "big"
	ByteOrderLittle ByteOrder = "little"
)

const DefaultModbusPort = 502

// Valid Modbus slave addresses. 0 is broadcast and 248..255 are reserved.
const (
	MinUnitID = 1
	MaxUnitID = 247
)

// ValidUnitID reports whether id is an addressable slave unit id.
func ValidUnitID(id int) bool {
	return id >= MinUnitID && id <= MaxUnitID
}

// Device is one Modbus/TCP endpoint.
type Device struct {
	ID             string     `json:"id" yaml:"id"`
	Name           string     `json:"name" yaml:"name"`
	Host           string     `json:"host" yaml:"host"`
	Port           int        `json:"port" yaml:"port"`
	Addressing     Addressing `json:"addressing" yaml:"addressing"`
	PollInterval   Duration   `json:"poll_interval" yaml:"poll_interval"`
	RequestTimeout Duration   `json:"request_timeout,omitempty" yaml:"request_timeout,omitempty"`
	IsActive       bool       `json:"is_active" yaml:"is_active"`
	IsDeleted      bool       `json:"is_deleted" yaml:"is_deleted"`
}

// Pollable reports whether the device should have a running loop.
func (d *Device) Pollable() bool {
	return d != nil && d.IsActive && !d.IsDeleted
}

// Address returns host:port, defaulting the port to 502.
func (d *Device) Address() string {
	port := d.Port
	if port <= 0 {
		port = DefaultModbusPort
	}

	return joinHostPort(d.Host, port)
}

// Slave is a unit id behind a device connection.
type Slave struct {
	ID        string     `json:"id" yaml:"id"`
	DeviceID  string     `json:"device_id" yaml:"device_id"`
	UnitID    uint8      `json:"unit_id" yaml:"unit_id"`
	IsHealthy bool       `json:"is_healthy" yaml:"is_healthy"`
	Registers []Register `json:"registers" yaml:"registers"`
}

// Register is one configured value on a slave.
type Register struct {
	ID        string    `json:"id" yaml:"id"`
	SlaveID   string    `json:"slave_id" yaml:"slave_id"`
	Address   int       `json:"address" yaml:"address"`
	Length    int       `json:"length" yaml:"length"`
	DataType  DataType  `json:"data_type" yaml:"data_type"`
	Scale     float64   `json:"scale" yaml:"scale"`
	Unit      string    `json:"unit" yaml:"unit"`
	ByteOrder ByteOrder `json:"byte_order" yaml:"byte_order"`
	WordSwap  bool      `json:"word_swap" yaml:"word_swap"`
	IsHealthy bool      `json:"is_healthy" yaml:"is_healthy"`
}

// WordLength is the configured length, never less than the data type width.
func (r *Register) WordLength() int {
	return max(r.Length, r.DataType.Words())
}

// Validate checks the register fields a store cannot default.
func (r *Register) Validate() error {
	if r.Scale < 0 {
		return fmt.Errorf("%w: %v", ErrNegativeScale, r.Scale)
	}

	if r.Length < 0 || (r.Length > 0 && r.Length < r.DataType.Words()) {
		return fmt.Errorf("%w: %s needs %d words, length is %d",
			ErrLengthTooShort, r.DataType, r.DataType.Words(), r.Length)
	}

	return nil
}

// ScaleFactor returns the scale, treating non-positive values as 1.
func (r *Register) ScaleFactor() float64 {
	if r.Scale <= 0 {
		return 1
	}

	return r.Scale
}

// Reading is one decoded value from one poll cycle.
type Reading struct {
	DeviceID        string    `json:"device_id"`
	SlaveID         string    `json:"slave_id"`
	UnitID          uint8     `json:"unit_id"`
	RegisterID      string    `json:"register_id"`
	RegisterAddress int       `json:"register_address"`
	DataType        DataType  `json:"data_type"`
	Value           float64   `json:"value"`
	Unit            string    `json:"unit"`
	Timestamp       time.Time `json:"timestamp"`
}
