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

//go:generate mockgen -destination=mock_advert.go -package=advert github.com/carverauto/tagradar/pkg/advert Decoder

// Package advert describes BLE advertisement payloads at the generic
// AD-structure level. Vendor payload contents stay opaque; consumers
// that need them bring their own Decoder.
package advert

// ServiceData is one 16-bit UUID service data structure.
type ServiceData struct {
	UUID uint16
	Data []byte
}

// Advertisement is the structured view of one advertisement payload.
// Only fields present in the payload are populated.
type Advertisement struct {
	LocalName string
	Flags     *byte
	TxPower   *int8
	// ManufacturerData is the raw manufacturer specific structure
	// value, company identifier first (little endian). Its contents
	// are not interpreted here.
	ManufacturerData []byte
	ServiceUUIDs     []uint16
	ServiceData      []ServiceData
}

// CompanyID returns the manufacturer company identifier, if any.
func (a *Advertisement) CompanyID() (uint16, bool) {
	if len(a.ManufacturerData) < 2 {
		return 0, false
	}

	return uint16(a.ManufacturerData[0]) | uint16(a.ManufacturerData[1])<<8, true
}

// Decoder turns raw advertisement bytes into a structured description.
// Implementations may fail on payloads they do not understand; callers
// must treat that as a per-record condition, not a cycle failure.
type Decoder interface {
	Decode(payload []byte) (*Advertisement, error)
}
