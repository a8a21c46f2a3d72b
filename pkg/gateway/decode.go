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
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/carverauto/tagradar/pkg/models"
)

// Wire shapes for the history body. Pointers distinguish absent
// required fields from zero values.
type historyEnvelope struct {
	Data *historyData `json:"data"`
}

type historyData struct {
	Timestamp   *int64              `json:"timestamp"`
	GatewayMAC  *string             `json:"gw_mac"`
	Coordinates string              `json:"coordinates"`
	Tags        map[string]tagEntry `json:"tags"`
}

type tagEntry struct {
	RSSI      *int    `json:"rssi"`
	Timestamp *int64  `json:"timestamp"`
	Data      *string `json:"data"`
}

// DecodeHistory converts a raw history body into a HistoryResponse.
//
// The body is parsed regardless of the content type the gateway
// declared. A body that is not JSON at all classifies as
// ErrCannotConnect; well-formed JSON with missing or mistyped fields,
// or an unparsable hex payload, classifies as ErrDecode and rejects
// the whole response. No partial record list is ever returned.
func DecodeHistory(body []byte) (*models.HistoryResponse, error) {
	var envelope historyEnvelope

	if err := json.Unmarshal(body, &envelope); err != nil {
		var typeErr *json.UnmarshalTypeError
		if errors.As(err, &typeErr) {
			return nil, fmt.Errorf("%w: unexpected type for field %q", ErrDecode, typeErr.Field)
		}

		var syntaxErr *json.SyntaxError
		if errors.As(err, &syntaxErr) || errors.Is(err, io.ErrUnexpectedEOF) {
			return nil, fmt.Errorf("%w: response body is not JSON", ErrCannotConnect)
		}

		return nil, fmt.Errorf("%w: %w", ErrDecode, err)
	}

	data := envelope.Data
	if data == nil {
		return nil, fmt.Errorf("%w: missing field data", ErrDecode)
	}

	if data.Timestamp == nil {
		return nil, fmt.Errorf("%w: missing field timestamp", ErrDecode)
	}

	if data.GatewayMAC == nil {
		return nil, fmt.Errorf("%w: missing field gw_mac", ErrDecode)
	}

	resp := &models.HistoryResponse{
		Timestamp:   *data.Timestamp,
		GatewayMAC:  *data.GatewayMAC,
		Coordinates: data.Coordinates,
		Tags:        make([]models.TagRecord, 0, len(data.Tags)),
	}

	for mac, entry := range data.Tags {
		record, err := decodeTag(mac, &entry, resp.Timestamp)
		if err != nil {
			return nil, err
		}

		resp.Tags = append(resp.Tags, *record)
	}

	// Map iteration order is random; sort for deterministic output.
	sort.Slice(resp.Tags, func(i, j int) bool {
		return resp.Tags[i].MAC < resp.Tags[j].MAC
	})

	return resp, nil
}

// decodeTag validates one tags entry. responseTimestamp 0 is treated
// as absent, so no age is computed for any record in that response.
func decodeTag(mac string, entry *tagEntry, responseTimestamp int64) (*models.TagRecord, error) {
	if entry.RSSI == nil {
		return nil, fmt.Errorf("%w: tag %s: missing field rssi", ErrDecode, mac)
	}

	if entry.Timestamp == nil {
		return nil, fmt.Errorf("%w: tag %s: missing field timestamp", ErrDecode, mac)
	}

	if entry.Data == nil {
		return nil, fmt.Errorf("%w: tag %s: missing field data", ErrDecode, mac)
	}

	payload, err := hex.DecodeString(*entry.Data)
	if err != nil {
		return nil, fmt.Errorf("%w: tag %s: invalid hex data: %w", ErrDecode, mac, err)
	}

	if len(payload) == 0 {
		return nil, fmt.Errorf("%w: tag %s: empty payload", ErrDecode, mac)
	}

	record := &models.TagRecord{
		MAC:       strings.ToUpper(mac),
		RSSI:      *entry.RSSI,
		Timestamp: *entry.Timestamp,
		Data:      payload,
	}

	if responseTimestamp != 0 {
		age := responseTimestamp - record.Timestamp
		record.AgeSeconds = &age
	}

	return record, nil
}
