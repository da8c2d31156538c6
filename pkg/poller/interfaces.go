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

//go:generate mockgen -destination=mock_poller.go -package=poller github.com/carverauto/modbus-poller/pkg/poller ConfigStore,Publisher,RegisterReader,Dialer,Clock,Ticker

import (
	"context"
	"time"

	"github.com/carverauto/modbus-poller/pkg/models"
)

// ConfigStore is the read-only view of device configuration the scheduler
// polls from. ListDevices returns pollable devices only; GetDevice returns
// inactive and deleted devices as well so that a running loop can observe
// them, and wraps models.ErrDeviceNotFound when the id is unknown.
type ConfigStore interface {
	ListDevices(ctx context.Context) ([]models.Device, error)
	GetDevice(ctx context.Context, id string) (*models.Device, error)
	ListSlaves(ctx context.Context, deviceID string) ([]models.Slave, error)
}

// Publisher receives every reading of one device cycle in a single call.
type Publisher interface {
	Publish(ctx context.Context, deviceID string, readings []models.Reading)
}

// RegisterReader is one open connection to a device.
type RegisterReader interface {
	ReadHoldingRegisters(ctx context.Context, unitID uint8, address, quantity uint16) ([]uint16, error)
	Close() error
}

// Dialer opens a RegisterReader for one cycle.
type Dialer interface {
	Dial(ctx context.Context, address string, connectTimeout, requestTimeout time.Duration) (RegisterReader, error)
}

// Clock abstracts time-related operations.
type Clock interface {
	Now() time.Time
	After(d time.Duration) <-chan time.Time
	Ticker(d time.Duration) Ticker
}

// Ticker abstracts the ticker behavior.
type Ticker interface {
	Chan() <-chan time.Time
	Stop()
}
