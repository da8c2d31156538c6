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

package api

import (
	"net/http"

	"github.com/carverauto/modbus-poller/pkg/poller"
)

// StatusProvider reports running device loops.
type StatusProvider interface {
	Status() []poller.DeviceStatus
}

// RegisterHealth is the quarantine table.
type RegisterHealth interface {
	Unhealthy() []string
	Failures(id string) int
	Threshold() int
	Reenable(id string) bool
}

// StreamHandler upgrades websocket subscribers.
type StreamHandler interface {
	ServeWS(w http.ResponseWriter, r *http.Request)
	SubscriberCount() int
	Dropped() int64
}
