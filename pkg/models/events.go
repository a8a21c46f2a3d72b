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
	"fmt"
	"time"
)

// NATSConfig configures NATS connectivity.
type NATSConfig struct {
	URL      string          `json:"url"`
	Domain   string          `json:"domain,omitempty"`
	Security *SecurityConfig `json:"security,omitempty"`
}

// Validate ensures the NATS configuration is valid.
func (c *NATSConfig) Validate() error {
	if c.URL == "" {
		return fmt.Errorf("nats url is required")
	}

	return nil
}

// EventsConfig configures the sighting event stream.
type EventsConfig struct {
	Enabled    bool     `json:"enabled"`
	StreamName string   `json:"stream_name"`
	Subjects   []string `json:"subjects"`
}

// Validate ensures the events configuration is valid and fills defaults.
func (c *EventsConfig) Validate() error {
	if !c.Enabled {
		return nil
	}

	if c.StreamName == "" {
		c.StreamName = "TAGRADAR"
	}

	if len(c.Subjects) == 0 {
		c.Subjects = []string{"tagradar.>"}
	}

	return nil
}

// MQTTConfig configures the Home Assistant MQTT sink.
type MQTTConfig struct {
	Enabled         bool   `json:"enabled"`
	Broker          string `json:"broker"`
	Username        string `json:"username,omitempty"`
	Password        string `json:"password,omitempty"`
	ClientID        string `json:"client_id,omitempty"`
	TopicPrefix     string `json:"topic_prefix,omitempty"`
	DiscoveryPrefix string `json:"discovery_prefix,omitempty"`
}

// Validate ensures the MQTT configuration is valid and fills defaults.
func (c *MQTTConfig) Validate() error {
	if !c.Enabled {
		return nil
	}

	if c.Broker == "" {
		return fmt.Errorf("mqtt broker url is required")
	}

	if c.ClientID == "" {
		c.ClientID = "tagradar-bridge"
	}

	if c.TopicPrefix == "" {
		c.TopicPrefix = "tagradar"
	}

	if c.DiscoveryPrefix == "" {
		c.DiscoveryPrefix = "homeassistant"
	}

	return nil
}

// CloudEvent is a CloudEvents 1.0 envelope.
type CloudEvent struct {
	SpecVersion     string      `json:"specversion"`
	ID              string      `json:"id"`
	Source          string      `json:"source"`
	Type            string      `json:"type"`
	DataContentType string      `json:"datacontenttype"`
	Subject         string      `json:"subject,omitempty"`
	Time            *time.Time  `json:"time,omitempty"`
	Data            interface{} `json:"data,omitempty"`
}

// SightingEventData is the payload of a tag sighting event: one changed
// record plus the gateway context it was observed under.
type SightingEventData struct {
	GatewayMAC  string    `json:"gw_mac"`
	Coordinates string    `json:"coordinates,omitempty"`
	Tag         TagRecord `json:"tag"`
	PolledAt    time.Time `json:"polled_at"`
}
