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

package lifecycle

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/carverauto/tagradar/pkg/logger"
)

const defaultShutdownTimeout = 10 * time.Second

// Service is implemented by the long-running components the binaries host.
type Service interface {
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
}

// RunOptions holds the service and identity passed to Run.
type RunOptions struct {
	ServiceName string
	Service     Service
	Logger      logger.Logger
}

// Run starts the service, blocks until the context is canceled or the
// process receives SIGINT/SIGTERM, then stops the service and flushes
// pending log output.
func Run(ctx context.Context, opts *RunOptions) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	if err := opts.Service.Start(ctx); err != nil {
		return fmt.Errorf("failed to start %s: %w", opts.ServiceName, err)
	}

	opts.Logger.Info().Str("service", opts.ServiceName).Msg("Service started")

	select {
	case sig := <-sigCh:
		opts.Logger.Info().Str("signal", sig.String()).Msg("Received shutdown signal")
	case <-ctx.Done():
		opts.Logger.Info().Msg("Context canceled, shutting down")
	}

	// Cancel the run context first so workers stop pulling new work
	// before Stop tears down connections.
	cancel()

	stopCtx, stopCancel := context.WithTimeout(context.Background(), defaultShutdownTimeout)
	defer stopCancel()

	if err := opts.Service.Stop(stopCtx); err != nil {
		return fmt.Errorf("failed to stop %s: %w", opts.ServiceName, err)
	}

	_ = ShutdownLogger()

	return nil
}
