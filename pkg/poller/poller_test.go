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

package poller

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/carverauto/tagradar/pkg/logger"
	"github.com/carverauto/tagradar/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

const testWait = 2 * time.Second

type pollerHarness struct {
	clock   *MockClock
	ticker  *MockTicker
	fetcher *MockFetcher
	handler *MockHandler
	tickCh  chan time.Time
	updates chan *models.GatewayUpdate
	failure chan error
}

func newPollerHarness(t *testing.T, ctrl *gomock.Controller, interval time.Duration) *pollerHarness {
	t.Helper()

	h := &pollerHarness{
		clock:   NewMockClock(ctrl),
		ticker:  NewMockTicker(ctrl),
		fetcher: NewMockFetcher(ctrl),
		handler: NewMockHandler(ctrl),
		tickCh:  make(chan time.Time),
		updates: make(chan *models.GatewayUpdate, 4),
		failure: make(chan error, 4),
	}

	h.clock.EXPECT().Ticker(interval).Return(h.ticker)
	h.clock.EXPECT().Now().Return(time.Unix(1700000000, 0)).AnyTimes()
	h.ticker.EXPECT().Chan().Return(h.tickCh).AnyTimes()
	h.ticker.EXPECT().Stop()

	return h
}

// collectUpdates wires the mock handler so each outcome lands on a channel
// the test can wait on.
func (h *pollerHarness) collectUpdates(times int) {
	h.handler.EXPECT().HandleUpdate(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, update *models.GatewayUpdate) error {
			h.updates <- update
			return nil
		}).Times(times)
}

func (h *pollerHarness) collectFailures(times int) {
	h.handler.EXPECT().HandleError(gomock.Any(), gomock.Any()).
		Do(func(_ context.Context, err error) {
			h.failure <- err
		}).Times(times)
}

func (h *pollerHarness) waitUpdate(t *testing.T) *models.GatewayUpdate {
	t.Helper()

	select {
	case update := <-h.updates:
		return update
	case <-time.After(testWait):
		t.Fatal("timed out waiting for update")
		return nil
	}
}

func (h *pollerHarness) waitFailure(t *testing.T) error {
	t.Helper()

	select {
	case err := <-h.failure:
		return err
	case <-time.After(testWait):
		t.Fatal("timed out waiting for failure")
		return nil
	}
}

func snapshot(tags ...models.TagRecord) *models.HistoryResponse {
	return &models.HistoryResponse{
		Timestamp:  100,
		GatewayMAC: "AA:BB:CC:DD:EE:FF",
		Tags:       tags,
	}
}

func TestPollerRequiresFetcher(t *testing.T) {
	_, err := New(&Config{}, nil, nil, nil, logger.NewTestLogger())
	require.ErrorIs(t, err, errNilFetcher)
}

func TestPollerPollsImmediatelyOnStart(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	h := newPollerHarness(t, ctrl, defaultPollInterval)
	h.fetcher.EXPECT().FetchHistory(gomock.Any()).
		Return(snapshot(record("11:22:33:44:55:66", -70, 95, 0x02, 0x01, 0x06)), nil)
	h.collectUpdates(1)

	p, err := New(&Config{}, h.fetcher, []Handler{h.handler}, h.clock, logger.NewTestLogger())
	require.NoError(t, err)

	errCh := make(chan error, 1)
	go func() { errCh <- p.Start(context.Background()) }()

	update := h.waitUpdate(t)
	require.Len(t, update.Changed, 1)
	assert.Equal(t, "11:22:33:44:55:66", update.Changed[0].MAC)
	assert.Equal(t, time.Unix(1700000000, 0), update.PolledAt)

	require.NoError(t, p.Stop(context.Background()))
	assert.NoError(t, <-errCh)
}

func TestPollerHonorsConfiguredInterval(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	interval := 250 * time.Millisecond
	h := newPollerHarness(t, ctrl, interval)
	h.fetcher.EXPECT().FetchHistory(gomock.Any()).Return(snapshot(), nil)
	h.collectUpdates(1)

	cfg := &Config{PollInterval: models.Duration(interval)}

	p, err := New(cfg, h.fetcher, []Handler{h.handler}, h.clock, logger.NewTestLogger())
	require.NoError(t, err)

	errCh := make(chan error, 1)
	go func() { errCh <- p.Start(context.Background()) }()

	h.waitUpdate(t)

	require.NoError(t, p.Stop(context.Background()))
	assert.NoError(t, <-errCh)
}

func TestPollerReportsOnlyChangedRecords(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	h := newPollerHarness(t, ctrl, defaultPollInterval)

	// Second cycle: same payload, different signal strength.
	gomock.InOrder(
		h.fetcher.EXPECT().FetchHistory(gomock.Any()).
			Return(snapshot(record("11:22:33:44:55:66", -70, 95, 0x02, 0x01, 0x06)), nil),
		h.fetcher.EXPECT().FetchHistory(gomock.Any()).
			Return(snapshot(record("11:22:33:44:55:66", -41, 99, 0x02, 0x01, 0x06)), nil),
	)
	h.collectUpdates(2)

	p, err := New(&Config{}, h.fetcher, []Handler{h.handler}, h.clock, logger.NewTestLogger())
	require.NoError(t, err)

	errCh := make(chan error, 1)
	go func() { errCh <- p.Start(context.Background()) }()

	first := h.waitUpdate(t)
	require.Len(t, first.Changed, 1)

	h.tickCh <- time.Time{}

	second := h.waitUpdate(t)
	assert.Empty(t, second.Changed)
	require.NotNil(t, second.Response)
	assert.Equal(t, -41, second.Response.Tags[0].RSSI)

	require.NoError(t, p.Stop(context.Background()))
	assert.NoError(t, <-errCh)
}

func TestPollerFansOutFailuresAndKeepsCache(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	h := newPollerHarness(t, ctrl, defaultPollInterval)
	fetchErr := errors.New("gateway unreachable")

	// Success, failure, then the same payload again. The failed cycle
	// must not disturb the cache, so the third cycle reports no changes.
	gomock.InOrder(
		h.fetcher.EXPECT().FetchHistory(gomock.Any()).
			Return(snapshot(record("11:22:33:44:55:66", -70, 95, 0x02, 0x01, 0x06)), nil),
		h.fetcher.EXPECT().FetchHistory(gomock.Any()).Return(nil, fetchErr),
		h.fetcher.EXPECT().FetchHistory(gomock.Any()).
			Return(snapshot(record("11:22:33:44:55:66", -70, 180, 0x02, 0x01, 0x06)), nil),
	)
	h.collectUpdates(2)
	h.collectFailures(1)

	p, err := New(&Config{}, h.fetcher, []Handler{h.handler}, h.clock, logger.NewTestLogger())
	require.NoError(t, err)

	errCh := make(chan error, 1)
	go func() { errCh <- p.Start(context.Background()) }()

	first := h.waitUpdate(t)
	require.Len(t, first.Changed, 1)

	h.tickCh <- time.Time{}
	assert.ErrorIs(t, h.waitFailure(t), fetchErr)

	h.tickCh <- time.Time{}
	third := h.waitUpdate(t)
	assert.Empty(t, third.Changed)

	require.NoError(t, p.Stop(context.Background()))
	assert.NoError(t, <-errCh)
}

func TestPollerHandlerErrorDoesNotAbortCycle(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	h := newPollerHarness(t, ctrl, defaultPollInterval)
	failing := NewMockHandler(ctrl)

	gomock.InOrder(
		h.fetcher.EXPECT().FetchHistory(gomock.Any()).
			Return(snapshot(record("11:22:33:44:55:66", -70, 95, 0x02, 0x01, 0x06)), nil),
		h.fetcher.EXPECT().FetchHistory(gomock.Any()).
			Return(snapshot(record("11:22:33:44:55:66", -70, 96, 0x02, 0x01, 0x06)), nil),
	)

	failing.EXPECT().HandleUpdate(gomock.Any(), gomock.Any()).
		Return(errors.New("sink offline")).Times(2)
	h.collectUpdates(2)

	handlers := []Handler{failing, h.handler}

	p, err := New(&Config{}, h.fetcher, handlers, h.clock, logger.NewTestLogger())
	require.NoError(t, err)

	errCh := make(chan error, 1)
	go func() { errCh <- p.Start(context.Background()) }()

	// The healthy handler still sees the update despite the failing one,
	// and the cache still commits: cycle two reports nothing changed.
	first := h.waitUpdate(t)
	require.Len(t, first.Changed, 1)

	h.tickCh <- time.Time{}

	second := h.waitUpdate(t)
	assert.Empty(t, second.Changed)

	require.NoError(t, p.Stop(context.Background()))
	assert.NoError(t, <-errCh)
}

func TestPollerStopsOnContextCancel(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	h := newPollerHarness(t, ctrl, defaultPollInterval)
	h.fetcher.EXPECT().FetchHistory(gomock.Any()).Return(snapshot(), nil)
	h.collectUpdates(1)

	p, err := New(&Config{}, h.fetcher, []Handler{h.handler}, h.clock, logger.NewTestLogger())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())

	errCh := make(chan error, 1)
	go func() { errCh <- p.Start(ctx) }()

	h.waitUpdate(t)
	cancel()

	select {
	case err := <-errCh:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(testWait):
		t.Fatal("poller did not exit on cancel")
	}

	require.NoError(t, p.Stop(context.Background()))
}

func TestPollerCancelMidCycleSkipsHandlers(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	h := newPollerHarness(t, ctrl, defaultPollInterval)

	ctx, cancel := context.WithCancel(context.Background())

	// The fetch observes cancellation; no handler may hear about it.
	h.fetcher.EXPECT().FetchHistory(gomock.Any()).
		DoAndReturn(func(fetchCtx context.Context) (*models.HistoryResponse, error) {
			cancel()
			return nil, fetchCtx.Err()
		})

	p, err := New(&Config{}, h.fetcher, []Handler{h.handler}, h.clock, logger.NewTestLogger())
	require.NoError(t, err)

	errCh := make(chan error, 1)
	go func() { errCh <- p.Start(ctx) }()

	select {
	case err := <-errCh:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(testWait):
		t.Fatal("poller did not exit on cancel")
	}

	require.NoError(t, p.Stop(context.Background()))
}
