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
	"testing"
	"time"

	"github.com/carverauto/modbus-poller/pkg/logger"
	"github.com/carverauto/modbus-poller/pkg/models"
	"github.com/nats-io/nats-server/v2/server"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func runJetStreamServer(t *testing.T) *server.Server {
	t.Helper()

	opts := &server.Options{
		Host:      "127.0.0.1",
		Port:      -1,
		JetStream: true,
		StoreDir:  t.TempDir(),
	}

	srv, err := server.NewServer(opts)
	require.NoError(t, err)

	go srv.Start()

	if !srv.ReadyForConnections(10 * time.Second) {
		srv.Shutdown()
		t.Fatalf("embedded NATS server not ready for connections")
	}

	require.Eventually(t, func() bool {
		return srv.JetStreamEnabled()
	}, 5*time.Second, 50*time.Millisecond, "embedded NATS server not ready for JetStream")

	t.Cleanup(srv.Shutdown)

	return srv
}

func newTestPublisher(t *testing.T, cfg *models.NATSConfig) (*QueuePublisher, jetstream.JetStream) {
	t.Helper()

	srv := runJetStreamServer(t)
	ctx := context.Background()

	cfg.URL = srv.ClientURL()

	nc, err := Connect(ctx, cfg, logger.NewTestLogger())
	require.NoError(t, err)
	t.Cleanup(nc.Close)

	p, err := NewQueuePublisher(ctx, nc, cfg, logger.NewTestLogger())
	require.NoError(t, err)

	js, err := jetstream.New(nc)
	require.NoError(t, err)

	return p, js
}

func TestQueuePublisher_Enqueue(t *testing.T) {
	ctx := context.Background()
	p, js := newTestPublisher(t, &models.NATSConfig{})

	ts := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	msg := &models.QueueMessage{ID: "11111111-2222-3333-4444-555555555555", SignalID: "sig.a", Value: 12.5, Timestamp: ts}

	require.NoError(t, p.Enqueue(ctx, msg))
	// the same id again is deduplicated by the stream
	require.NoError(t, p.Enqueue(ctx, msg))

	flushCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	require.NoError(t, p.Flush(flushCtx))

	stream, err := js.Stream(ctx, DefaultStream)
	require.NoError(t, err)

	info, err := stream.Info(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), info.State.Msgs)

	raw, err := stream.GetLastMsgForSubject(ctx, "telemetry.modbus.sig_a")
	require.NoError(t, err)
	assert.Equal(t, msg.ID, raw.Header.Get(jetstream.MsgIDHeader))

	var got models.QueueMessage
	require.NoError(t, json.Unmarshal(raw.Data, &got))
	assert.Equal(t, *msg, got)
}

func TestQueuePublisher_PublishRegisterHealth(t *testing.T) {
	ctx := context.Background()
	p, js := newTestPublisher(t, &models.NATSConfig{
		Stream:        "TEST_MODBUS",
		SubjectPrefix: "test.telemetry",
		EventsSubject: "test.events",
	})

	ev := &models.RegisterHealthEvent{
		ID:         "evt-1",
		RegisterID: "reg-1",
		State:      models.RegisterQuarantined,
		Failures:   3,
		PollerID:   "poller-1",
		Timestamp:  time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC),
	}

	require.NoError(t, p.PublishRegisterHealth(ctx, ev))

	stream, err := js.Stream(ctx, "TEST_MODBUS")
	require.NoError(t, err)

	raw, err := stream.GetLastMsgForSubject(ctx, "test.events.quarantined")
	require.NoError(t, err)

	var envelope struct {
		ID   string                     `json:"id"`
		Type string                     `json:"type"`
		Data models.RegisterHealthEvent `json:"data"`
	}

	require.NoError(t, json.Unmarshal(raw.Data, &envelope))
	assert.Equal(t, "evt-1", envelope.ID)
	assert.Equal(t, registerHealthEventType, envelope.Type)
	assert.Equal(t, *ev, envelope.Data)
}

func TestNewQueuePublisher_WidensExistingStream(t *testing.T) {
	srv := runJetStreamServer(t)
	ctx := context.Background()

	nc, err := nats.Connect(srv.ClientURL())
	require.NoError(t, err)
	t.Cleanup(nc.Close)

	js, err := jetstream.New(nc)
	require.NoError(t, err)

	_, err = js.CreateStream(ctx, jetstream.StreamConfig{Name: DefaultStream, Subjects: []string{"legacy.>"}})
	require.NoError(t, err)

	_, err = NewQueuePublisher(ctx, nc, nil, logger.NewTestLogger())
	require.NoError(t, err)

	stream, err := js.Stream(ctx, DefaultStream)
	require.NoError(t, err)

	info, err := stream.Info(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"legacy.>", DefaultSubjectPrefix + ".>", DefaultEventsSubject + ".>"}, info.Config.Subjects)
}

func TestConnect_RequiresURL(t *testing.T) {
	_, err := Connect(context.Background(), &models.NATSConfig{}, logger.NewTestLogger())
	require.ErrorIs(t, err, errNATSURLRequired)

	_, err = NewQueuePublisher(context.Background(), nil, nil, logger.NewTestLogger())
	require.ErrorIs(t, err, errNilConnection)
}
