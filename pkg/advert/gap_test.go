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

package advert

import (
	"encoding/hex"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustHex(t *testing.T, s string) []byte {
	t.Helper()

	b, err := hex.DecodeString(s)
	require.NoError(t, err)

	return b
}

func TestGAPDecodeFlagsAndServiceList(t *testing.T) {
	adv, err := NewGAPDecoder().Decode(mustHex(t, "0201060303aafe"))
	require.NoError(t, err)

	require.NotNil(t, adv.Flags)
	assert.Equal(t, byte(0x06), *adv.Flags)
	assert.Equal(t, []uint16{0xfeaa}, adv.ServiceUUIDs)
	assert.Empty(t, adv.LocalName)
	assert.Nil(t, adv.ManufacturerData)
}

func TestGAPDecodeManufacturerData(t *testing.T) {
	// Ruuvi RAWv2 frame: the manufacturer payload is carried through
	// uninspected, company identifier first.
	payload := mustHex(t, "0201061bff99040512fc5394c37c0004fffc040cac364200cdcbb8334c884f")

	adv, err := NewGAPDecoder().Decode(payload)
	require.NoError(t, err)

	company, ok := adv.CompanyID()
	require.True(t, ok)
	assert.Equal(t, uint16(0x0499), company)

	require.Len(t, adv.ManufacturerData, 26)
	assert.Equal(t, byte(0x05), adv.ManufacturerData[2], "vendor bytes pass through unchanged")
}

func TestGAPDecodeLocalNameAndTxPower(t *testing.T) {
	// 020106 | 07 09 "Ruuvi!" | 02 0a 04
	payload := mustHex(t, "0201060709527575766921020a04")

	adv, err := NewGAPDecoder().Decode(payload)
	require.NoError(t, err)

	assert.Equal(t, "Ruuvi!", adv.LocalName)
	require.NotNil(t, adv.TxPower)
	assert.Equal(t, int8(4), *adv.TxPower)
}

func TestGAPDecodeServiceData(t *testing.T) {
	adv, err := NewGAPDecoder().Decode(mustHex(t, "0516aafe0102"))
	require.NoError(t, err)

	require.Len(t, adv.ServiceData, 1)
	assert.Equal(t, uint16(0xfeaa), adv.ServiceData[0].UUID)
	assert.Equal(t, []byte{0x01, 0x02}, adv.ServiceData[0].Data)
}

func TestGAPDecodeCompleteNameWinsOverShortened(t *testing.T) {
	// 04 08 "abc" | 04 09 "xyz"
	payload := append(mustHex(t, "0408"), []byte("abc")...)
	payload = append(payload, mustHex(t, "0409")...)
	payload = append(payload, []byte("xyz")...)

	adv, err := NewGAPDecoder().Decode(payload)
	require.NoError(t, err)
	assert.Equal(t, "xyz", adv.LocalName)
}

func TestGAPDecodeRejectsMalformedPayloads(t *testing.T) {
	tests := []struct {
		name     string
		payload  []byte
		expected error
	}{
		{name: "empty", payload: nil, expected: ErrEmptyPayload},
		{name: "zero length structure", payload: []byte{0x00, 0x01, 0x02}, expected: ErrZeroLengthStructure},
		{name: "truncated structure", payload: []byte{0x04, 0x01}, expected: ErrTruncatedStructure},
		{name: "flags without value", payload: []byte{0x01, 0x01}, expected: ErrShortStructureValue},
		{name: "odd uuid list", payload: []byte{0x04, 0x03, 0xaa, 0xfe, 0x01}, expected: ErrShortStructureValue},
		{name: "service data without uuid", payload: []byte{0x02, 0x16, 0xaa}, expected: ErrShortStructureValue},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewGAPDecoder().Decode(tt.payload)
			require.ErrorIs(t, err, tt.expected)
		})
	}
}

func TestGAPDecodeSkipsUnknownTypes(t *testing.T) {
	// 03 1a 0102 (advertising interval) should be skipped, flags still parsed.
	adv, err := NewGAPDecoder().Decode(mustHex(t, "031a0102020106"))
	require.NoError(t, err)

	require.NotNil(t, adv.Flags)
	assert.Equal(t, byte(0x06), *adv.Flags)
}
