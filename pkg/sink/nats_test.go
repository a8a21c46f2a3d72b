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

package sink

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/nats-io/nats-server/v2/server"
	"github.com/nats-io/nats.go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/carverauto/tagradar/pkg/logger"
	"github.com/carverauto/tagradar/pkg/models"
	"github.com/carverauto/tagradar/pkg/natsutil"
)

func runJetStreamServer(t *testing.T) *server.Server {
	t.Helper()

	opts := &server.Options{
		Host:      "127.0.0.1",
		Port:      -1,
		JetStream: true,
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

	return srv
}

func TestNATSSinkPublishesChangedRecords(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	srv := runJetStreamServer(t)
	t.Cleanup(srv.Shutdown)

	nc, err := natsutil.Connect(srv.ClientURL(), nil, logger.NewTestLogger())
	require.NoError(t, err)
	t.Cleanup(nc.Close)

	publisher, err := natsutil.CreateEventPublisher(ctx, nc, natsutil.DefaultStreamName, nil)
	require.NoError(t, err)

	sub, err := nc.SubscribeSync("tagradar.sightings.>")
	require.NoError(t, err)

	s := NewNATSSink(publisher, logger.NewTestLogger())

	update := &models.GatewayUpdate{
		Response: &models.HistoryResponse{
			Timestamp:  100,
			GatewayMAC: "AA:BB:CC:DD:EE:FF",
			Tags: []models.TagRecord{
				{MAC: "11:22:33:44:55:66", RSSI: -70, Timestamp: 95, Data: models.HexBytes{0x02, 0x01, 0x06}},
				{MAC: "77:88:99:AA:BB:CC", RSSI: -52, Timestamp: 98, Data: models.HexBytes{0xff}},
			},
		},
		PolledAt: time.Now().UTC(),
	}
	update.Changed = update.Response.Tags

	require.NoError(t, s.HandleUpdate(ctx, update))

	first, err := sub.NextMsg(5 * time.Second)
	require.NoError(t, err)
	assert.Equal(t, "tagradar.sightings.112233445566", first.Subject)

	second, err := sub.NextMsg(5 * time.Second)
	require.NoError(t, err)
	assert.Equal(t, "tagradar.sightings.778899aabbcc", second.Subject)

	var event models.CloudEvent
	require.NoError(t, json.Unmarshal(first.Data, &event))
	assert.Equal(t, "com.carverauto.tagradar.sighting", event.Type)
}

func TestNATSSinkQuietWhenNothingChanged(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	srv := runJetStreamServer(t)
	t.Cleanup(srv.Shutdown)

	nc, err := natsutil.Connect(srv.ClientURL(), nil, logger.NewTestLogger())
	require.NoError(t, err)
	t.Cleanup(nc.Close)

	publisher, err := natsutil.CreateEventPublisher(ctx, nc, natsutil.DefaultStreamName, nil)
	require.NoError(t, err)

	sub, err := nc.SubscribeSync("tagradar.sightings.>")
	require.NoError(t, err)

	s := NewNATSSink(publisher, logger.NewTestLogger())

	update := &models.GatewayUpdate{
		Response: &models.HistoryResponse{
			Timestamp:  100,
			GatewayMAC: "AA:BB:CC:DD:EE:FF",
			Tags: []models.TagRecord{
				{MAC: "11:22:33:44:55:66", RSSI: -70, Timestamp: 95, Data: models.HexBytes{0x02, 0x01, 0x06}},
			},
		},
		PolledAt: time.Now().UTC(),
	}

	require.NoError(t, s.HandleUpdate(ctx, update))

	// The record is unchanged, so nothing may reach the stream. The
	// failure path is equally quiet.
	s.HandleError(ctx, assert.AnError)

	_, err = sub.NextMsg(500 * time.Millisecond)
	require.ErrorIs(t, err, nats.ErrTimeout)
}
