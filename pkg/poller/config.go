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
	"time"

	"github.com/carverauto/tagradar/pkg/models"
)

const defaultPollInterval = 5 * time.Second

// Config represents poll loop configuration.
type Config struct {
	// PollInterval is the time between cycle starts. Cycles never
	// overlap; a cycle that outruns the interval delays the next one.
	PollInterval models.Duration `json:"poll_interval"`
}

// interval returns the configured poll interval, falling back to the
// default when unset or nonsensical.
func (c *Config) interval() time.Duration {
	d := time.Duration(c.PollInterval)
	if d <= 0 {
		return defaultPollInterval
	}

	return d
}
