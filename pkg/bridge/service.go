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

// Package bridge composes the gateway client, the poll loop, and the
// configured sinks into the long-running bridge service.
package bridge

import (
	"context"
	"errors"
	"sync"

	"github.com/nats-io/nats.go"

	"github.com/carverauto/tagradar/pkg/gateway"
	"github.com/carverauto/tagradar/pkg/lifecycle"
	"github.com/carverauto/tagradar/pkg/logger"
	"github.com/carverauto/tagradar/pkg/natsutil"
	"github.com/carverauto/tagradar/pkg/poller"
	"github.com/carverauto/tagradar/pkg/sink"
)

// Service owns the poll loop and the sinks it feeds.
type Service struct {
	cfg      *Config
	poller   *poller.Poller
	nc       *nats.Conn
	mqttSink *sink.MQTTSink
	wg       sync.WaitGroup
	logger   logger.Logger
}

// New validates the configuration and builds the service. Connections
// are not opened until Start.
func New(cfg *Config, log logger.Logger) (*Service, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &Service{cfg: cfg, logger: log}, nil
}

// Start connects the enabled sinks and begins polling the gateway.
func (s *Service) Start(ctx context.Context) error {
	client := gateway.NewClient(&s.cfg.Gateway, s.logger)

	handlers, err := s.buildHandlers(ctx)
	if err != nil {
		return err
	}

	if len(handlers) == 0 {
		s.logger.Warn().Msg("No sinks enabled, updates are only logged")
	}

	p, err := poller.New(&poller.Config{PollInterval: s.cfg.PollInterval}, client, handlers, nil, s.logger)
	if err != nil {
		s.closeSinks(ctx)
		return err
	}

	s.poller = p

	s.wg.Add(1)

	go func() {
		defer s.wg.Done()

		if err := p.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
			s.logger.Error().Err(err).Msg("Poll loop terminated")
		}
	}()

	s.logger.Info().
		Str("gateway", s.cfg.Gateway.Host).
		Int("sinks", len(handlers)).
		Msg("Bridge started")

	return nil
}

func (s *Service) buildHandlers(ctx context.Context) ([]poller.Handler, error) {
	var handlers []poller.Handler

	if s.cfg.Events != nil && s.cfg.Events.Enabled {
		nc, err := natsutil.Connect(s.cfg.NATS.URL, s.cfg.NATS.Security, s.logger)
		if err != nil {
			return nil, err
		}

		s.nc = nc

		publisher, err := natsutil.CreateEventPublisherWithDomain(
			ctx, nc, s.cfg.NATS.Domain, s.cfg.Events.StreamName, s.cfg.Events.Subjects)
		if err != nil {
			nc.Close()
			s.nc = nil

			return nil, err
		}

		handlers = append(handlers, sink.NewNATSSink(publisher, s.logger))
	}

	if s.cfg.MQTT != nil && s.cfg.MQTT.Enabled {
		s.mqttSink = sink.NewMQTTSink(*s.cfg.MQTT, nil, s.logger)
		handlers = append(handlers, s.mqttSink)
	}

	return handlers, nil
}

// Stop halts the poll loop, then shuts the sinks down so the last
// in-flight update still reaches them.
func (s *Service) Stop(ctx context.Context) error {
	if s.poller != nil {
		if err := s.poller.Stop(ctx); err != nil {
			return err
		}
	}

	s.wg.Wait()

	s.closeSinks(ctx)

	s.logger.Info().Msg("Bridge stopped")

	return nil
}

func (s *Service) closeSinks(ctx context.Context) {
	if s.mqttSink != nil {
		if err := s.mqttSink.Stop(ctx); err != nil {
			s.logger.Warn().Err(err).Msg("MQTT sink shutdown failed")
		}

		s.mqttSink = nil
	}

	if s.nc != nil {
		s.nc.Close()
		s.nc = nil
	}
}

var _ lifecycle.Service = (*Service)(nil)
