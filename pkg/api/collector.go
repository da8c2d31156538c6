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
	"github.com/prometheus/client_golang/prometheus"

	"github.com/carverauto/modbus-poller/pkg/poller"
)

const namespace = "modbus_poller"

// collector exposes the scheduler and quarantine state at scrape time.
type collector struct {
	status StatusProvider
	health RegisterHealth
	stream StreamHandler

	deviceUp       *prometheus.Desc
	deviceReadings *prometheus.Desc
	loops          *prometheus.Desc
	quarantined    *prometheus.Desc
	subscribers    *prometheus.Desc
	dropped        *prometheus.Desc
}

func newCollector(status StatusProvider, health RegisterHealth, stream StreamHandler) *collector {
	return &collector{
		status: status,
		health: health,
		stream: stream,
		deviceUp: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "device", "up"),
			"Whether the last poll cycle of the device completed.",
			[]string{"device_id", "outcome"}, nil,
		),
		deviceReadings: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "device", "readings"),
			"Readings produced by the last poll cycle of the device.",
			[]string{"device_id"}, nil,
		),
		loops: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "", "device_loops"),
			"Running device loops.",
			nil, nil,
		),
		quarantined: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "", "quarantined_registers"),
			"Registers excluded from polling after repeated slave exceptions.",
			nil, nil,
		),
		subscribers: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "stream", "subscribers"),
			"Connected websocket subscribers.",
			nil, nil,
		),
		dropped: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "stream", "dropped_messages_total"),
			"Broadcast messages dropped because a subscriber was too slow.",
			nil, nil,
		),
	}
}

func (c *collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.deviceUp
	ch <- c.deviceReadings
	ch <- c.loops
	ch <- c.quarantined

	if c.stream != nil {
		ch <- c.subscribers
		ch <- c.dropped
	}
}

func (c *collector) Collect(ch chan<- prometheus.Metric) {
	statuses := c.status.Status()

	for _, st := range statuses {
		up := 0.0
		if st.Outcome == poller.OutcomeOK {
			up = 1
		}

		ch <- prometheus.MustNewConstMetric(c.deviceUp, prometheus.GaugeValue, up, st.DeviceID, string(st.Outcome))
		ch <- prometheus.MustNewConstMetric(c.deviceReadings, prometheus.GaugeValue, float64(st.Readings), st.DeviceID)
	}

	ch <- prometheus.MustNewConstMetric(c.loops, prometheus.GaugeValue, float64(len(statuses)))
	ch <- prometheus.MustNewConstMetric(c.quarantined, prometheus.GaugeValue, float64(len(c.health.Unhealthy())))

	if c.stream != nil {
		ch <- prometheus.MustNewConstMetric(c.subscribers, prometheus.GaugeValue, float64(c.stream.SubscriberCount()))
		ch <- prometheus.MustNewConstMetric(c.dropped, prometheus.CounterValue, float64(c.stream.Dropped()))
	}
}
