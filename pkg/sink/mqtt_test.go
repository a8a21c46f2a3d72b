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
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/carverauto/tagradar/pkg/advert"
	"github.com/carverauto/tagradar/pkg/gateway"
	"github.com/carverauto/tagradar/pkg/logger"
	"github.com/carverauto/tagradar/pkg/models"
)

func newTestMQTTSink(t *testing.T, decoder advert.Decoder) *MQTTSink {
	t.Helper()

	cfg := models.MQTTConfig{
		Enabled: true,
		Broker:  "mqtt://localhost:1883",
	}
	require.NoError(t, cfg.Validate())

	s := NewMQTTSink(cfg, decoder, logger.NewTestLogger())
	s.suffix = "EE:FF"

	return s
}

func TestMQTTSinkTopicLayout(t *testing.T) {
	s := newTestMQTTSink(t, nil)

	tests := []struct {
		name string
		got  string
		want string
	}{
		{"availability", s.availabilityTopic(), "tagradar/EE:FF/bridge/availability"},
		{"state", s.stateTopic("11:22:33:44:55:66"), "tagradar/EE:FF/112233445566/state"},
		{"discovery", s.discoveryTopic("11:22:33:44:55:66"), "homeassistant/sensor/tagradar_112233445566/rssi/config"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.got)
		})
	}
}

func TestMacToken(t *testing.T) {
	assert.Equal(t, "112233445566", macToken("11:22:33:44:55:66"))
	assert.Equal(t, "aabbccddeeff", macToken("AA:BB:CC:DD:EE:FF"))
	assert.Equal(t, "eeff", macToken("EE:FF"))
}

func TestMQTTSinkSensorConfig(t *testing.T) {
	s := newTestMQTTSink(t, nil)

	cfg := s.sensorConfig("11:22:33:44:55:66")

	assert.Equal(t, "RSSI", cfg.Name)
	assert.True(t, cfg.HasEntityName)
	assert.Equal(t, "tagradar_112233445566_rssi", cfg.UniqueID)
	assert.Equal(t, "tagradar_112233445566_rssi", cfg.ObjectID)
	assert.Equal(t, "tagradar/EE:FF/112233445566/state", cfg.StateTopic)
	assert.Equal(t, cfg.StateTopic, cfg.JsonAttributesTopic)
	assert.Equal(t, "tagradar/EE:FF/bridge/availability", cfg.AvailabilityTopic)
	assert.Equal(t, []string{"tagradar_112233445566"}, cfg.Device.Identifiers)
	assert.Equal(t, "Tag 11:22:33:44:55:66", cfg.Device.Name)
	assert.Equal(t, "signal_strength", cfg.DeviceClass)
	assert.Equal(t, "dBm", cfg.UnitOfMeasurement)
	assert.Equal(t, "measurement", cfg.StateClass)
	assert.Equal(t, "{{ value_json.rssi }}", cfg.ValueTemplate)
}

func TestMQTTSinkTagStateEnrichment(t *testing.T) {
	s := newTestMQTTSink(t, nil)

	age := int64(5)
	update := &models.GatewayUpdate{
		Response: &models.HistoryResponse{
			Timestamp:   100,
			GatewayMAC:  "AA:BB:CC:DD:EE:FF",
			Coordinates: "60.17,24.94",
		},
		PolledAt: time.Unix(1700000000, 0),
	}
	rec := models.TagRecord{
		MAC:        "11:22:33:44:55:66",
		RSSI:       -70,
		Timestamp:  95,
		Data:       models.HexBytes{0x02, 0x01, 0x06, 0x03, 0x03, 0xaa, 0xfe},
		AgeSeconds: &age,
	}

	state := s.tagState(update, rec)

	assert.Equal(t, -70, state.RSSI)
	assert.Equal(t, int64(95), state.Timestamp)
	require.NotNil(t, state.AgeSeconds)
	assert.Equal(t, int64(5), *state.AgeSeconds)
	assert.Equal(t, "AA:BB:CC:DD:EE:FF", state.GatewayMAC)
	assert.Equal(t, "60.17,24.94", state.Coordinates)
	assert.Equal(t, []string{"feaa"}, state.ServiceUUIDs)
}

func TestMQTTSinkTagStateDecodeFailureKeepsRawFields(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	decoder := advert.NewMockDecoder(ctrl)
	decoder.EXPECT().Decode(gomock.Any()).Return(nil, errors.New("vendor framing"))

	s := newTestMQTTSink(t, decoder)

	update := &models.GatewayUpdate{
		Response: &models.HistoryResponse{Timestamp: 100, GatewayMAC: "AA:BB:CC:DD:EE:FF"},
		PolledAt: time.Unix(1700000000, 0),
	}
	rec := models.TagRecord{
		MAC:       "11:22:33:44:55:66",
		RSSI:      -70,
		Timestamp: 95,
		Data:      models.HexBytes{0xde, 0xad},
	}

	state := s.tagState(update, rec)

	assert.Equal(t, -70, state.RSSI)
	assert.Equal(t, models.HexBytes{0xde, 0xad}, state.Data)
	assert.Empty(t, state.LocalName)
	assert.Nil(t, state.TxPower)
	assert.Empty(t, state.ServiceUUIDs)
	assert.Empty(t, state.CompanyID)
}

func TestMQTTSinkStateJSONShape(t *testing.T) {
	state := TagState{
		RSSI:       -70,
		Timestamp:  95,
		Data:       models.HexBytes{0x02, 0x01, 0x06},
		GatewayMAC: "AA:BB:CC:DD:EE:FF",
	}

	b, err := json.Marshal(state)
	require.NoError(t, err)

	assert.Contains(t, string(b), `"data":"020106"`)
	assert.NotContains(t, string(b), "age_s", "absent age must be omitted")
	assert.NotContains(t, string(b), "local_name")
}

func TestMQTTSinkHandleErrorBeforeSessionIsNoop(t *testing.T) {
	s := newTestMQTTSink(t, nil)

	// No session yet; nothing to mark offline.
	s.HandleError(context.Background(), gateway.ErrCannotConnect)

	assert.False(t, s.isOnline())
}

func TestMQTTSinkConfigDefaults(t *testing.T) {
	cfg := models.MQTTConfig{Enabled: true, Broker: "mqtt://broker:1883"}
	require.NoError(t, cfg.Validate())

	assert.Equal(t, "tagradar-bridge", cfg.ClientID)
	assert.Equal(t, "tagradar", cfg.TopicPrefix)
	assert.Equal(t, "homeassistant", cfg.DiscoveryPrefix)

	disabled := models.MQTTConfig{}
	require.NoError(t, disabled.Validate(), "disabled sink needs no broker")

	missing := models.MQTTConfig{Enabled: true}
	require.Error(t, missing.Validate())
}
