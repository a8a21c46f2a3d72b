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

package gateway

import "errors"

// The three failure classes of a poll cycle. Everything this package
// returns wraps exactly one of them, so callers branch with errors.Is.
var (
	// ErrInvalidAuth indicates the gateway rejected the bearer token (HTTP 401).
	ErrInvalidAuth = errors.New("invalid gateway authentication")
	// ErrCannotConnect covers transport failures, timeouts, unexpected
	// status codes, and bodies that are not JSON at all.
	ErrCannotConnect = errors.New("cannot connect to gateway")
	// ErrDecode covers well-formed JSON with missing or mistyped fields
	// or an invalid hex payload.
	ErrDecode = errors.New("invalid response from gateway")

	// ErrHostRequired indicates the gateway host is missing from configuration.
	ErrHostRequired = errors.New("gateway host is required")
)
