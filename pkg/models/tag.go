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

package models

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// HexBytes is a byte slice that marshals to and from a hex string
// instead of base64, matching the gateway's wire encoding.
type HexBytes []byte

func (h HexBytes) MarshalJSON() ([]byte, error) {
	return json.Marshal(hex.EncodeToString(h))
}

func (h *HexBytes) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}

	decoded, err := hex.DecodeString(s)
	if err != nil {
		return fmt.Errorf("invalid hex payload: %w", err)
	}

	*h = decoded

	return nil
}

// TagRecord is one beacon sighting reported by the gateway.
// Data carries the raw advertisement bytes and is opaque here;
// change detection compares it byte for byte.
type TagRecord struct {
	MAC        string   `json:"mac"`
	RSSI       int      `json:"rssi"`
	Timestamp  int64    `json:"timestamp"`
	Data       HexBytes `json:"data"`
	AgeSeconds *int64   `json:"age_s,omitempty"`
}

// HistoryResponse is the decoded body of one /history poll.
type HistoryResponse struct {
	Timestamp   int64       `json:"timestamp"`
	GatewayMAC  string      `json:"gw_mac"`
	Coordinates string      `json:"coordinates,omitempty"`
	Tags        []TagRecord `json:"tags,omitempty"`
}

const gatewaySuffixLen = 5

// GatewaySuffix returns the trailing portion of the gateway MAC,
// upper-cased, for human-facing labels only.
func (r *HistoryResponse) GatewaySuffix() string {
	mac := strings.ToUpper(r.GatewayMAC)
	if len(mac) <= gatewaySuffixLen {
		return mac
	}

	return mac[len(mac)-gatewaySuffixLen:]
}

// GatewayUpdate is the result of one successful poll cycle fanned out
// to update handlers. Changed holds only the records whose payload
// differs from the previous cycle.
type GatewayUpdate struct {
	Response *HistoryResponse `json:"response"`
	Changed  []TagRecord      `json:"changed"`
	PolledAt time.Time        `json:"polled_at"`
}
