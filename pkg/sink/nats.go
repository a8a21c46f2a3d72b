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

// Package sink contains the update handlers fed by the poll loop: the
// JetStream event sink and the Home Assistant MQTT sink.
package sink

import (
	"context"
	"errors"
	"fmt"

	"github.com/carverauto/tagradar/pkg/logger"
	"github.com/carverauto/tagradar/pkg/models"
	"github.com/carverauto/tagradar/pkg/natsutil"
)

// NATSSink publishes one CloudEvent per changed record.
type NATSSink struct {
	publisher *natsutil.EventPublisher
	logger    logger.Logger
}

// NewNATSSink creates a sink that writes sightings through the given
// publisher.
func NewNATSSink(publisher *natsutil.EventPublisher, log logger.Logger) *NATSSink {
	return &NATSSink{
		publisher: publisher,
		logger:    log,
	}
}

// HandleUpdate implements poller.Handler. Each changed record becomes
// its own event; a failed publish does not stop the remaining records.
func (s *NATSSink) HandleUpdate(ctx context.Context, update *models.GatewayUpdate) error {
	var errs []error

	for _, rec := range update.Changed {
		data := &models.SightingEventData{
			GatewayMAC:  update.Response.GatewayMAC,
			Coordinates: update.Response.Coordinates,
			Tag:         rec,
			PolledAt:    update.PolledAt,
		}

		if err := s.publisher.PublishSighting(ctx, data); err != nil {
			errs = append(errs, fmt.Errorf("tag %s: %w", rec.MAC, err))
		}
	}

	return errors.Join(errs...)
}

// HandleError implements poller.Handler. Gateway failures produce no
// events; the poll loop already logs them.
func (s *NATSSink) HandleError(_ context.Context, err error) {
	s.logger.Debug().Err(err).Msg("Skipping event publish for failed poll cycle")
}
