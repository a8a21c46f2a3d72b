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
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/eclipse/paho.golang/autopaho"
	"github.com/eclipse/paho.golang/paho"

	"github.com/carverauto/tagradar/pkg/advert"
	"github.com/carverauto/tagradar/pkg/gateway"
	"github.com/carverauto/tagradar/pkg/logger"
	"github.com/carverauto/tagradar/pkg/models"
)

const (
	mqttKeepAlive      = 30
	mqttConnectTimeout = 30 * time.Second

	availabilityOnline  = "online"
	availabilityOffline = "offline"
)

// MQTTSink mirrors tag sightings into Home Assistant over MQTT. The
// broker session starts lazily on the first successful update, once the
// gateway identity that anchors the topic layout is known. Each beacon
// is announced through HA discovery the first time it changes.
type MQTTSink struct {
	cfg     models.MQTTConfig
	decoder advert.Decoder
	logger  logger.Logger

	cm     *autopaho.ConnectionManager
	suffix string

	// mu guards announced and online, which the autopaho connection
	// callbacks touch from their own goroutine.
	mu        sync.Mutex
	announced map[string]bool
	online    bool
}

// NewMQTTSink creates an MQTT sink. A nil decoder selects the stock GAP
// structure decoder.
func NewMQTTSink(cfg models.MQTTConfig, decoder advert.Decoder, log logger.Logger) *MQTTSink {
	if decoder == nil {
		decoder = advert.NewGAPDecoder()
	}

	return &MQTTSink{
		cfg:       cfg,
		decoder:   decoder,
		logger:    log,
		announced: make(map[string]bool),
	}
}

// HandleUpdate implements poller.Handler.
func (s *MQTTSink) HandleUpdate(ctx context.Context, update *models.GatewayUpdate) error {
	if err := s.ensureSession(ctx, update.Response.GatewaySuffix()); err != nil {
		return err
	}

	if !s.isOnline() {
		s.publishAvailability(ctx, s.cm, availabilityOnline)
		s.setOnline(true)
	}

	var errs []error

	for _, rec := range update.Changed {
		if !s.isAnnounced(rec.MAC) {
			if err := s.publishDiscovery(ctx, s.cm, rec.MAC); err != nil {
				errs = append(errs, fmt.Errorf("tag %s: discovery: %w", rec.MAC, err))
			} else {
				s.markAnnounced(rec.MAC)
			}
		}

		if err := s.publishState(ctx, update, rec); err != nil {
			errs = append(errs, fmt.Errorf("tag %s: state: %w", rec.MAC, err))
		}
	}

	return errors.Join(errs...)
}

// HandleError implements poller.Handler. Connectivity and auth failures
// drop availability to offline so the HA entities go unavailable; the
// next successful update restores it.
func (s *MQTTSink) HandleError(ctx context.Context, err error) {
	if s.cm == nil {
		return
	}

	if !errors.Is(err, gateway.ErrCannotConnect) && !errors.Is(err, gateway.ErrInvalidAuth) {
		return
	}

	if s.isOnline() {
		s.publishAvailability(ctx, s.cm, availabilityOffline)
		s.setOnline(false)
	}
}

// Stop publishes a final offline message and closes the broker session.
func (s *MQTTSink) Stop(ctx context.Context) error {
	if s.cm == nil {
		return nil
	}

	s.publishAvailability(ctx, s.cm, availabilityOffline)

	return s.cm.Disconnect(ctx)
}

// ensureSession connects on first use. The suffix is fixed for the life
// of the session; gateways do not change MAC mid-flight.
func (s *MQTTSink) ensureSession(ctx context.Context, suffix string) error {
	if s.cm != nil {
		return nil
	}

	s.suffix = suffix

	brokerURL, err := url.Parse(s.cfg.Broker)
	if err != nil {
		return fmt.Errorf("parse mqtt broker url: %w", err)
	}

	pahoCfg := autopaho.ClientConfig{
		ServerUrls:      []*url.URL{brokerURL},
		KeepAlive:       mqttKeepAlive,
		ConnectUsername: s.cfg.Username,
		ConnectPassword: []byte(s.cfg.Password),
		WillMessage: &paho.WillMessage{
			Topic:   s.availabilityTopic(),
			Payload: []byte(availabilityOffline),
			QoS:     1,
			Retain:  true,
		},
		OnConnectionUp: func(cm *autopaho.ConnectionManager, _ *paho.Connack) {
			s.logger.Info().Str("broker", s.cfg.Broker).Msg("MQTT connected")
			s.republish(ctx, cm)
		},
		OnConnectError: func(err error) {
			s.logger.Warn().Err(err).Msg("MQTT connection error")
		},
		ClientConfig: paho.ClientConfig{
			ClientID: s.cfg.ClientID,
		},
	}

	// Enable TLS for mqtts:// or ssl:// schemes.
	if brokerURL.Scheme == "mqtts" || brokerURL.Scheme == "ssl" {
		pahoCfg.TlsCfg = &tls.Config{
			MinVersion: tls.VersionTLS12,
		}
	}

	cm, err := autopaho.NewConnection(ctx, pahoCfg)
	if err != nil {
		return fmt.Errorf("mqtt connect: %w", err)
	}

	connCtx, cancel := context.WithTimeout(ctx, mqttConnectTimeout)
	defer cancel()

	if err := cm.AwaitConnection(connCtx); err != nil {
		// autopaho keeps retrying in the background.
		s.logger.Warn().Err(err).Msg("MQTT initial connection timed out, retrying in background")
	}

	s.cm = cm

	return nil
}

// republish runs on every (re-)connect: availability first, then the
// discovery configs for everything announced so far.
func (s *MQTTSink) republish(ctx context.Context, cm *autopaho.ConnectionManager) {
	s.publishAvailability(ctx, cm, availabilityOnline)

	s.mu.Lock()
	macs := make([]string, 0, len(s.announced))
	for mac := range s.announced {
		macs = append(macs, mac)
	}
	s.online = true
	s.mu.Unlock()

	for _, mac := range macs {
		if err := s.publishDiscovery(ctx, cm, mac); err != nil {
			s.logger.Warn().Err(err).Str("mac", mac).Msg("MQTT discovery republish failed")
		}
	}
}

func (s *MQTTSink) publishAvailability(ctx context.Context, cm *autopaho.ConnectionManager, status string) {
	if _, err := cm.Publish(ctx, &paho.Publish{
		Topic:   s.availabilityTopic(),
		Payload: []byte(status),
		QoS:     1,
		Retain:  true,
	}); err != nil {
		s.logger.Warn().Err(err).Str("status", status).Msg("MQTT availability publish failed")
		return
	}

	s.logger.Info().Str("status", status).Msg("MQTT availability published")
}

func (s *MQTTSink) publishDiscovery(ctx context.Context, cm *autopaho.ConnectionManager, mac string) error {
	payload, err := json.Marshal(s.sensorConfig(mac))
	if err != nil {
		return fmt.Errorf("marshal discovery payload: %w", err)
	}

	if _, err := cm.Publish(ctx, &paho.Publish{
		Topic:   s.discoveryTopic(mac),
		Payload: payload,
		QoS:     1,
		Retain:  true,
	}); err != nil {
		return err
	}

	s.logger.Debug().Str("mac", mac).Str("topic", s.discoveryTopic(mac)).Msg("MQTT discovery published")

	return nil
}

func (s *MQTTSink) publishState(ctx context.Context, update *models.GatewayUpdate, rec models.TagRecord) error {
	payload, err := json.Marshal(s.tagState(update, rec))
	if err != nil {
		return fmt.Errorf("marshal state payload: %w", err)
	}

	_, err = s.cm.Publish(ctx, &paho.Publish{
		Topic:   s.stateTopic(rec.MAC),
		Payload: payload,
		QoS:     0,
		Retain:  true,
	})

	return err
}

// tagState builds the state document for one record. Decoder failures
// only cost the enrichment fields; the raw record always goes out.
func (s *MQTTSink) tagState(update *models.GatewayUpdate, rec models.TagRecord) TagState {
	state := TagState{
		RSSI:        rec.RSSI,
		Timestamp:   rec.Timestamp,
		AgeSeconds:  rec.AgeSeconds,
		Data:        rec.Data,
		GatewayMAC:  update.Response.GatewayMAC,
		Coordinates: update.Response.Coordinates,
	}

	adv, err := s.decoder.Decode(rec.Data)
	if err != nil {
		s.logger.Debug().Err(err).Str("mac", rec.MAC).Msg("Advertisement decode failed")
		return state
	}

	state.LocalName = adv.LocalName
	state.TxPower = adv.TxPower

	if company, ok := adv.CompanyID(); ok {
		state.CompanyID = fmt.Sprintf("%04x", company)
	}

	for _, u := range adv.ServiceUUIDs {
		state.ServiceUUIDs = append(state.ServiceUUIDs, fmt.Sprintf("%04x", u))
	}

	return state
}

func (s *MQTTSink) sensorConfig(mac string) SensorConfig {
	token := macToken(mac)
	stateTopic := s.stateTopic(mac)

	return SensorConfig{
		Name:                "RSSI",
		ObjectID:            "tagradar_" + token + "_rssi",
		HasEntityName:       true,
		UniqueID:            "tagradar_" + token + "_rssi",
		StateTopic:          stateTopic,
		AvailabilityTopic:   s.availabilityTopic(),
		JsonAttributesTopic: stateTopic,
		Device: DeviceInfo{
			Identifiers:  []string{"tagradar_" + token},
			Name:         "Tag " + strings.ToUpper(mac),
			Manufacturer: "Carver Automation",
			Model:        "BLE beacon",
		},
		DeviceClass:       "signal_strength",
		UnitOfMeasurement: "dBm",
		StateClass:        "measurement",
		ValueTemplate:     "{{ value_json.rssi }}",
		EntityCategory:    "diagnostic",
	}
}

func (s *MQTTSink) baseTopic() string {
	return s.cfg.TopicPrefix + "/" + s.suffix
}

func (s *MQTTSink) availabilityTopic() string {
	return s.baseTopic() + "/bridge/availability"
}

func (s *MQTTSink) stateTopic(mac string) string {
	return s.baseTopic() + "/" + macToken(mac) + "/state"
}

func (s *MQTTSink) discoveryTopic(mac string) string {
	return s.cfg.DiscoveryPrefix + "/sensor/tagradar_" + macToken(mac) + "/rssi/config"
}

// macToken flattens a MAC into a single topic segment.
func macToken(mac string) string {
	return strings.ToLower(strings.ReplaceAll(mac, ":", ""))
}

func (s *MQTTSink) isAnnounced(mac string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.announced[mac]
}

func (s *MQTTSink) markAnnounced(mac string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.announced[mac] = true
}

func (s *MQTTSink) isOnline() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.online
}

func (s *MQTTSink) setOnline(v bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.online = v
}
