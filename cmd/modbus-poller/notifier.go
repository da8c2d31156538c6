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

package main

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/carverauto/modbus-poller/pkg/health"
	"github.com/carverauto/modbus-poller/pkg/logger"
	"github.com/carverauto/modbus-poller/pkg/models"
)

const (
	healthEventBuffer  = 256
	healthEventTimeout = 5 * time.Second
)

type healthEventPublisher interface {
	PublishRegisterHealth(ctx context.Context, ev *models.RegisterHealthEvent) error
}

// healthNotifier turns quarantine transitions into register health events.
// The tracker hook never blocks a device loop; events beyond the buffer are
// dropped and logged.
type healthNotifier struct {
	events    chan models.RegisterHealthEvent
	publisher healthEventPublisher
	pollerID  string
	logger    logger.Logger
	now       func() time.Time
}

func newHealthNotifier(publisher healthEventPublisher, pollerID string, log logger.Logger) *healthNotifier {
	return &healthNotifier{
		events:    make(chan models.RegisterHealthEvent, healthEventBuffer),
		publisher: publisher,
		pollerID:  pollerID,
		logger:    log,
		now:       time.Now,
	}
}

func (n *healthNotifier) hook(tr health.Transition) {
	state := models.RegisterReenabled
	if tr.Quarantined {
		state = models.RegisterQuarantined
	}

	ev := models.RegisterHealthEvent{
		ID:         uuid.NewString(),
		RegisterID: tr.RegisterID,
		State:      state,
		Failures:   tr.Failures,
		PollerID:   n.pollerID,
		Timestamp:  n.now().UTC(),
	}

	n.logger.Info().
		Str("register_id", ev.RegisterID).
		Str("state", string(ev.State)).
		Int("failures", ev.Failures).
		Msg("Register health changed")

	if n.publisher == nil {
		return
	}

	select {
	case n.events <- ev:
	default:
		n.logger.Warn().Str("register_id", ev.RegisterID).Msg("Health event buffer full, dropping event")
	}
}

// run publishes queued events until ctx ends.
func (n *healthNotifier) run(ctx context.Context) error {
	if n.publisher == nil {
		return nil
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev := <-n.events:
			pubCtx, cancel := context.WithTimeout(ctx, healthEventTimeout)

			if err := n.publisher.PublishRegisterHealth(pubCtx, &ev); err != nil {
				n.logger.Error().Err(err).Str("register_id", ev.RegisterID).Msg("Failed to publish register health event")
			}

			cancel()
		}
	}
}
