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

const (
	listPollableDevicesSQL = `
SELECT id, name, host, port, addressing, poll_interval_ms, request_timeout_ms, is_active, is_deleted
FROM modbus_devices
WHERE is_active = TRUE AND is_deleted = FALSE
ORDER BY id`

	getDeviceSQL = `
SELECT id, name, host, port, addressing, poll_interval_ms, request_timeout_ms, is_active, is_deleted
FROM modbus_devices
WHERE id = $1`

	listSlavesSQL = `
SELECT id, device_id, unit_id, is_healthy
FROM modbus_slaves
WHERE device_id = $1
ORDER BY unit_id, id`

	listRegistersSQL = `
SELECT r.id, r.slave_id, r.address, r.length, r.data_type, r.scale, r.unit, r.byte_order, r.word_swap, r.is_healthy
FROM modbus_registers r
JOIN modbus_slaves s ON s.id = r.slave_id
WHERE s.device_id = $1
ORDER BY r.slave_id, r.address, r.id`

	listSignalMappingsSQL = `
SELECT register_address, signal_id
FROM modbus_signal_mappings
WHERE device_id = $1`
)
