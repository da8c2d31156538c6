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
	"context"
	"time"

	"github.com/carverauto/modbus-poller/pkg/modbus"
)

// tcpDialer opens a fresh Modbus/TCP connection per cycle.
type tcpDialer struct{}

func (tcpDialer) Dial(ctx context.Context, address string, connectTimeout, requestTimeout time.Duration) (RegisterReader, error) {
	client, err := modbus.Dial(ctx, address, connectTimeout, requestTimeout)
	if err != nil {
		return nil, err
	}

	return client, nil
}
