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

package natsutil

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/carverauto/modbus-poller/pkg/logger"
	"github.com/carverauto/modbus-poller/pkg/models"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
)

const (
	DefaultStream        = "MODBUS_TELEMETRY"
	DefaultSubjectPrefix = "telemetry.modbus"
	DefaultEventsSubject = "events.modbus.registers"

	registerHealthEventType = "com.carverauto.modbus.register.health"
	eventSource             = "modbus-poller"
	maxPendingAsync         = 4096
)

var errNilConnection = errors.New("nats connection is nil")

// cloudEvent is the CloudEvents 1.0 envelope used for health events.
type cloudEvent struct {
	SpecVersion     string      `json:"specversion"`
	ID              string      `json:"id"`
	Source          string      `json:"source"`
	Type            string      `json:"type"`
	DataContentType string      `json:"datacontenttype"`
	Subject         string      `json:"subject"`
	Time            time.Time   `json:"time"`
	Data            interface{} `json:"data"`
}

// QueuePublisher writes telemetry messages and register health events to
// one JetStream stream. Telemetry is published asynchronously; the message
// id doubles as the JetStream dedup id.
type QueuePublisher struct {
	js            jetstream.JetStream
	stream        string
	subjectPrefix string
	eventsSubject string
	logger        logger.Logger
}

// NewQueuePublisher binds a publisher to nc, creating or widening the
// configured stream so it captures telemetry and event subjects.
func NewQueuePublisher(ctx context.Context, nc *nats.Conn, cfg *models.NATSConfig, log logger.Logger) (*QueuePublisher, error) {
	if nc == nil {
		return nil, errNilConnection
	}

	p := &QueuePublisher{
		stream:        DefaultStream,
		subjectPrefix: DefaultSubjectPrefix,
		eventsSubject: DefaultEventsSubject,
		logger:        log,
	}

	var domain string

	if cfg != nil {
		domain = cfg.Domain

		if cfg.Stream != "" {
			p.stream = cfg.Stream
		}

		if cfg.SubjectPrefix != "" {
			p.subjectPrefix = cfg.SubjectPrefix
		}

		if cfg.EventsSubject != "" {
			p.eventsSubject = cfg.EventsSubject
		}
	}

	jsOpts := []jetstream.JetStreamOpt{
		jetstream.WithPublishAsyncMaxPending(maxPendingAsync),
		jetstream.WithPublishAsyncErrHandler(p.asyncError),
	}

	var err error

	if domain != "" {
		p.js, err = jetstream.NewWithDomain(nc, domain, jsOpts...)
	} else {
		p.js, err = jetstream.New(nc, jsOpts...)
	}

	if err != nil {
		return nil, fmt.Errorf("failed to create JetStream context: %w", err)
	}

	subjects := []string{p.subjectPrefix + ".>", p.eventsSubject + ".>"}

	if err := ensureStream(ctx, p.js, p.stream, subjects); err != nil {
		return nil, err
	}

	log.Info().
		Str("stream", p.stream).
		Strs("subjects", subjects).
		Msg("JetStream publisher ready")

	return p, nil
}

// TelemetrySubject is the subject a signal's messages are published on.
func (p *QueuePublisher) TelemetrySubject(signalID string) string {
	return p.subjectPrefix + "." + subjectToken(signalID)
}

// Enqueue publishes msg without waiting for the stream ack. Ack failures
// are logged by the async error handler.
func (p *QueuePublisher) Enqueue(_ context.Context, msg *models.QueueMessage) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to marshal queue message: %w", err)
	}

	if _, err := p.js.PublishAsync(p.TelemetrySubject(msg.SignalID), data, jetstream.WithMsgID(msg.ID)); err != nil {
		return fmt.Errorf("failed to publish queue message %s: %w", msg.ID, err)
	}

	return nil
}

// PublishRegisterHealth publishes ev as a CloudEvent on
// "<events subject>.<state>" and waits for the ack.
func (p *QueuePublisher) PublishRegisterHealth(ctx context.Context, ev *models.RegisterHealthEvent) error {
	subject := p.eventsSubject + "." + string(ev.State)

	event := cloudEvent{
		SpecVersion:     "1.0",
		ID:              ev.ID,
		Source:          eventSource,
		Type:            registerHealthEventType,
		DataContentType: "application/json",
		Subject:         subject,
		Time:            ev.Timestamp,
		Data:            ev,
	}

	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal register health event: %w", err)
	}

	ack, err := p.js.Publish(ctx, subject, data, jetstream.WithMsgID(ev.ID))
	if err != nil {
		return fmt.Errorf("failed to publish register health event: %w", err)
	}

	p.logger.Debug().
		Str("register_id", ev.RegisterID).
		Str("state", string(ev.State)).
		Uint64("seq", ack.Sequence).
		Msg("Published register health event")

	return nil
}

// Flush waits until every pending async publish is acknowledged.
func (p *QueuePublisher) Flush(ctx context.Context) error {
	select {
	case <-p.js.PublishAsyncComplete():
		return nil
	case <-ctx.Done():
		return fmt.Errorf("flush interrupted with %d pending: %w", p.js.PublishAsyncPending(), ctx.Err())
	}
}

func (p *QueuePublisher) asyncError(_ jetstream.JetStream, msg *nats.Msg, err error) {
	p.logger.Warn().Err(err).
		Str("subject", msg.Subject).
		Str("msg_id", msg.Header.Get(jetstream.MsgIDHeader)).
		Msg("Async publish failed")
}
