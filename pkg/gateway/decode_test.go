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

package gateway

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/carverauto/tagradar/pkg/models"
)

func TestDecodeHistory(t *testing.T) {
	body := []byte(`{
		"data": {
			"timestamp": 100,
			"gw_mac": "AA:BB:CC:DD:EE:FF",
			"coordinates": "office",
			"tags": {
				"11:22:33:44:55:66": {"rssi": -70, "timestamp": 95, "data": "0201060303aafe"},
				"01:02:03:04:05:06": {"rssi": -40, "timestamp": 100, "data": "ff"}
			}
		}
	}`)

	resp, err := DecodeHistory(body)
	require.NoError(t, err)

	assert.Equal(t, int64(100), resp.Timestamp)
	assert.Equal(t, "AA:BB:CC:DD:EE:FF", resp.GatewayMAC)
	assert.Equal(t, "office", resp.Coordinates)
	assert.Equal(t, "EE:FF", resp.GatewaySuffix())

	require.Len(t, resp.Tags, 2)

	// Records are sorted by identifier.
	assert.Equal(t, "01:02:03:04:05:06", resp.Tags[0].MAC)
	assert.Equal(t, "11:22:33:44:55:66", resp.Tags[1].MAC)

	rec := resp.Tags[1]
	assert.Equal(t, -70, rec.RSSI)
	assert.Equal(t, int64(95), rec.Timestamp)
	assert.Equal(t, models.HexBytes{0x02, 0x01, 0x06, 0x03, 0x03, 0xaa, 0xfe}, rec.Data)
	require.NotNil(t, rec.AgeSeconds)
	assert.Equal(t, int64(5), *rec.AgeSeconds)

	zeroAge := resp.Tags[0]
	require.NotNil(t, zeroAge.AgeSeconds)
	assert.Equal(t, int64(0), *zeroAge.AgeSeconds)
}

func TestDecodeHistoryIsDeterministic(t *testing.T) {
	body := []byte(`{
		"data": {
			"timestamp": 100,
			"gw_mac": "AA:BB:CC:DD:EE:FF",
			"tags": {
				"cc:cc:cc:cc:cc:cc": {"rssi": -1, "timestamp": 1, "data": "01"},
				"aa:aa:aa:aa:aa:aa": {"rssi": -2, "timestamp": 2, "data": "02"},
				"bb:bb:bb:bb:bb:bb": {"rssi": -3, "timestamp": 3, "data": "03"}
			}
		}
	}`)

	first, err := DecodeHistory(body)
	require.NoError(t, err)

	second, err := DecodeHistory(body)
	require.NoError(t, err)

	assert.Equal(t, first, second)

	// Identifiers come back upper-cased and ordered.
	macs := make([]string, 0, len(first.Tags))
	for _, rec := range first.Tags {
		macs = append(macs, rec.MAC)
	}

	assert.Equal(t, []string{"AA:AA:AA:AA:AA:AA", "BB:BB:BB:BB:BB:BB", "CC:CC:CC:CC:CC:CC"}, macs)
}

func TestDecodeHistoryZeroResponseTimestampOmitsAge(t *testing.T) {
	body := []byte(`{
		"data": {
			"timestamp": 0,
			"gw_mac": "AA:BB:CC:DD:EE:FF",
			"tags": {
				"11:22:33:44:55:66": {"rssi": -70, "timestamp": 95, "data": "0201"}
			}
		}
	}`)

	resp, err := DecodeHistory(body)
	require.NoError(t, err)
	require.Len(t, resp.Tags, 1)
	assert.Nil(t, resp.Tags[0].AgeSeconds)
}

func TestDecodeHistoryNoTags(t *testing.T) {
	body := []byte(`{"data": {"timestamp": 100, "gw_mac": "AA:BB:CC:DD:EE:FF"}}`)

	resp, err := DecodeHistory(body)
	require.NoError(t, err)
	assert.Empty(t, resp.Tags)
	assert.Empty(t, resp.Coordinates)
}

func TestDecodeHistoryRejectsBadBodies(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{
			name: "missing data object",
			body: `{"other": 1}`,
		},
		{
			name: "missing response timestamp",
			body: `{"data": {"gw_mac": "AA:BB:CC:DD:EE:FF"}}`,
		},
		{
			name: "missing gw_mac",
			body: `{"data": {"timestamp": 100}}`,
		},
		{
			name: "string response timestamp",
			body: `{"data": {"timestamp": "100", "gw_mac": "AA:BB:CC:DD:EE:FF"}}`,
		},
		{
			name: "tag missing rssi",
			body: `{"data": {"timestamp": 100, "gw_mac": "AA:BB:CC:DD:EE:FF",
				"tags": {"11:22:33:44:55:66": {"timestamp": 95, "data": "0201"}}}}`,
		},
		{
			name: "tag missing timestamp",
			body: `{"data": {"timestamp": 100, "gw_mac": "AA:BB:CC:DD:EE:FF",
				"tags": {"11:22:33:44:55:66": {"rssi": -70, "data": "0201"}}}}`,
		},
		{
			name: "tag missing data",
			body: `{"data": {"timestamp": 100, "gw_mac": "AA:BB:CC:DD:EE:FF",
				"tags": {"11:22:33:44:55:66": {"rssi": -70, "timestamp": 95}}}}`,
		},
		{
			name: "tag with non-hex data",
			body: `{"data": {"timestamp": 100, "gw_mac": "AA:BB:CC:DD:EE:FF",
				"tags": {"11:22:33:44:55:66": {"rssi": -70, "timestamp": 95, "data": "zzzz"}}}}`,
		},
		{
			name: "tag with odd-length hex",
			body: `{"data": {"timestamp": 100, "gw_mac": "AA:BB:CC:DD:EE:FF",
				"tags": {"11:22:33:44:55:66": {"rssi": -70, "timestamp": 95, "data": "020"}}}}`,
		},
		{
			name: "tag with empty payload",
			body: `{"data": {"timestamp": 100, "gw_mac": "AA:BB:CC:DD:EE:FF",
				"tags": {"11:22:33:44:55:66": {"rssi": -70, "timestamp": 95, "data": ""}}}}`,
		},
		{
			name: "string rssi",
			body: `{"data": {"timestamp": 100, "gw_mac": "AA:BB:CC:DD:EE:FF",
				"tags": {"11:22:33:44:55:66": {"rssi": "-70", "timestamp": 95, "data": "0201"}}}}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, err := DecodeHistory([]byte(tt.body))
			require.ErrorIs(t, err, ErrDecode)
			assert.Nil(t, resp, "no partial response on decode failure")
		})
	}
}

func TestDecodeHistoryNonJSONIsCannotConnect(t *testing.T) {
	_, err := DecodeHistory([]byte("<html></html>"))
	require.ErrorIs(t, err, ErrCannotConnect)

	_, err = DecodeHistory([]byte(`{"data": {`))
	require.ErrorIs(t, err, ErrCannotConnect)
}
