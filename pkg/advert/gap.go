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

import "errors"

var (
	ErrEmptyPayload        = errors.New("empty advertisement payload")
	ErrTruncatedStructure  = errors.New("truncated advertisement structure")
	ErrZeroLengthStructure = errors.New("zero-length advertisement structure")
	ErrShortStructureValue = errors.New("advertisement structure value too short")
)

// AD structure types, Bluetooth Assigned Numbers §2.3.
const (
	adFlags              = 0x01
	adIncompleteUUID16   = 0x02
	adCompleteUUID16     = 0x03
	adShortenedLocalName = 0x08
	adCompleteLocalName  = 0x09
	adTxPower            = 0x0a
	adServiceData16      = 0x16
	adManufacturerData   = 0xff
)

const uuid16Len = 2

// GAPDecoder splits a payload into its length/type/value structures.
// It interprets structure framing only; unknown types are skipped and
// manufacturer data is carried through uninspected.
type GAPDecoder struct{}

// NewGAPDecoder returns the stock structure-level decoder.
func NewGAPDecoder() *GAPDecoder {
	return &GAPDecoder{}
}

// Decode implements Decoder.
func (*GAPDecoder) Decode(payload []byte) (*Advertisement, error) {
	if len(payload) == 0 {
		return nil, ErrEmptyPayload
	}

	adv := &Advertisement{}

	for i := 0; i < len(payload); {
		length := int(payload[i])
		if length == 0 {
			return nil, ErrZeroLengthStructure
		}

		if i+1+length > len(payload) {
			return nil, ErrTruncatedStructure
		}

		adType := payload[i+1]
		value := payload[i+2 : i+1+length]

		if err := applyStructure(adv, adType, value); err != nil {
			return nil, err
		}

		i += 1 + length
	}

	return adv, nil
}

func applyStructure(adv *Advertisement, adType byte, value []byte) error {
	switch adType {
	case adFlags:
		if len(value) < 1 {
			return ErrShortStructureValue
		}

		flags := value[0]
		adv.Flags = &flags

	case adIncompleteUUID16, adCompleteUUID16:
		if len(value)%uuid16Len != 0 {
			return ErrShortStructureValue
		}

		for i := 0; i < len(value); i += uuid16Len {
			adv.ServiceUUIDs = append(adv.ServiceUUIDs, uint16(value[i])|uint16(value[i+1])<<8)
		}

	case adShortenedLocalName:
		if adv.LocalName == "" {
			adv.LocalName = string(value)
		}

	case adCompleteLocalName:
		adv.LocalName = string(value)

	case adTxPower:
		if len(value) < 1 {
			return ErrShortStructureValue
		}

		power := int8(value[0])
		adv.TxPower = &power

	case adServiceData16:
		if len(value) < uuid16Len {
			return ErrShortStructureValue
		}

		adv.ServiceData = append(adv.ServiceData, ServiceData{
			UUID: uint16(value[0]) | uint16(value[1])<<8,
			Data: value[uuid16Len:],
		})

	case adManufacturerData:
		adv.ManufacturerData = value

	default:
		// Unknown structure types are legal; skip them.
	}

	return nil
}
