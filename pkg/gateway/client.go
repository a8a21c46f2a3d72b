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

// Package gateway fetches and decodes the beacon sighting history
// exposed by a BLE listening gateway over HTTP.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/carverauto/tagradar/pkg/logger"
	"github.com/carverauto/tagradar/pkg/models"
)

const historyPath = "/history"

// Client issues one authenticated GET per poll cycle against the
// gateway's history endpoint and classifies every failure as
// ErrInvalidAuth or ErrCannotConnect.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
	logger     logger.Logger
}

// NewClient creates a gateway client from config. The bearer token is
// trimmed once here; an empty result disables the Authorization header.
func NewClient(cfg *Config, log logger.Logger) *Client {
	return &Client{
		baseURL: "http://" + cfg.Host,
		token:   strings.TrimSpace(cfg.Token),
		httpClient: &http.Client{
			Timeout: time.Duration(cfg.Timeout),
		},
		logger: log,
	}
}

// FetchRaw performs the history GET and returns the raw body. The body
// is returned unparsed; callers pass it to DecodeHistory.
func (c *Client) FetchRaw(ctx context.Context) ([]byte, error) {
	reqURL := c.baseURL + historyPath

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to create request: %w", ErrCannotConnect, err)
	}

	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if isTimeout(err) {
			return nil, fmt.Errorf("%w: timeout communicating with gateway", ErrCannotConnect)
		}

		return nil, fmt.Errorf("%w: error communicating with gateway: %w", ErrCannotConnect, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized {
		return nil, ErrInvalidAuth
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: unexpected response from gateway: HTTP %d", ErrCannotConnect, resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: error reading gateway response: %w", ErrCannotConnect, err)
	}

	return body, nil
}

// FetchHistory fetches and decodes one history snapshot.
func (c *Client) FetchHistory(ctx context.Context) (*models.HistoryResponse, error) {
	body, err := c.FetchRaw(ctx)
	if err != nil {
		return nil, err
	}

	resp, err := DecodeHistory(body)
	if err != nil {
		return nil, err
	}

	c.logger.Debug().
		Str("gw_mac", resp.GatewayMAC).
		Int("tags", len(resp.Tags)).
		Msg("Fetched gateway history")

	return resp, nil
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	var netErr net.Error

	return errors.As(err, &netErr) && netErr.Timeout()
}
