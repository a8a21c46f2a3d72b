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

// Package poller drives the periodic fetch/diff/publish cycle against a
// single gateway and fans each outcome out to the registered handlers.
package poller

import (
	"context"
	"errors"
	"sync"

	"github.com/carverauto/tagradar/pkg/logger"
	"github.com/carverauto/tagradar/pkg/models"
)

var errNilFetcher = errors.New("fetcher is required")

// Poller periodically fetches one gateway's history snapshot, diffs it
// against the change cache, and hands the result to its handlers.
type Poller struct {
	config    Config
	fetcher   Fetcher
	handlers  []Handler
	cache     *ChangeCache
	clock     Clock
	ticker    Ticker
	done      chan struct{}
	closeOnce sync.Once
	wg        sync.WaitGroup
	logger    logger.Logger
}

// New creates a poller instance. A nil clock selects the wall clock.
func New(config *Config, fetcher Fetcher, handlers []Handler, clock Clock, log logger.Logger) (*Poller, error) {
	if fetcher == nil {
		return nil, errNilFetcher
	}

	if clock == nil {
		clock = realClock{}
	}

	return &Poller{
		config:   *config,
		fetcher:  fetcher,
		handlers: handlers,
		cache:    NewChangeCache(),
		clock:    clock,
		done:     make(chan struct{}),
		logger:   log,
	}, nil
}

// Start implements the lifecycle.Service interface. It polls once
// immediately, then once per tick until the context is canceled or Stop
// is called. Cycles run on the loop goroutine and therefore never
// overlap; a slow cycle swallows the ticks it missed.
func (p *Poller) Start(ctx context.Context) error {
	interval := p.config.interval()
	p.ticker = p.clock.Ticker(interval)

	defer p.ticker.Stop()

	p.logger.Info().Dur("interval", interval).Msg("Starting gateway poller")

	p.wg.Add(1)
	defer p.wg.Done()

	p.poll(ctx)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-p.done:
			return nil
		case <-p.ticker.Chan():
			p.poll(ctx)
		}
	}
}

// Stop implements the lifecycle.Service interface. It returns once the
// loop, including any in-flight cycle, has finished.
func (p *Poller) Stop(_ context.Context) error {
	p.closeOnce.Do(func() { close(p.done) })
	p.wg.Wait()

	return nil
}

// poll runs one cycle: fetch and decode the snapshot, diff it against
// the cache, commit, fan out. A failed fetch reaches HandleError and
// leaves the cache untouched, so nothing is lost across an outage.
func (p *Poller) poll(ctx context.Context) {
	resp, err := p.fetcher.FetchHistory(ctx)
	if err != nil {
		if ctx.Err() != nil {
			// Shutdown, not a gateway failure.
			return
		}

		p.logger.Error().Err(err).Msg("Poll cycle failed")

		for _, h := range p.handlers {
			h.HandleError(ctx, err)
		}

		return
	}

	changed := p.cache.Diff(resp.Tags)
	p.cache.Commit(resp.Tags)

	update := &models.GatewayUpdate{
		Response: resp,
		Changed:  changed,
		PolledAt: p.clock.Now(),
	}

	p.logger.Debug().
		Str("gw_mac", resp.GatewayMAC).
		Int("tags", len(resp.Tags)).
		Int("changed", len(changed)).
		Msg("Poll cycle complete")

	for _, h := range p.handlers {
		if err := h.HandleUpdate(ctx, update); err != nil {
			p.logger.Error().Err(err).Msg("Update handler failed")
		}
	}
}
