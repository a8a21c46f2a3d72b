package recorder

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/carverauto/tagradar/pkg/lifecycle"
	"github.com/carverauto/tagradar/pkg/logger"
	"github.com/carverauto/tagradar/pkg/natsutil"
)

// Service hosts the recorder: a durable JetStream pull consumer feeding
// sighting events into Postgres.
type Service struct {
	cfg       *Config
	nc        *nats.Conn
	js        jetstream.JetStream
	pool      *pgxpool.Pool
	consumer  *Consumer
	processor *Processor
	wg        sync.WaitGroup
	logger    logger.Logger
}

// NewService initializes the service.
func NewService(cfg *Config, log logger.Logger) (*Service, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &Service{cfg: cfg, logger: log}, nil
}

// Start connects to Postgres and NATS and begins processing messages.
func (s *Service) Start(ctx context.Context) error {
	pool, err := NewPool(ctx, &s.cfg.Database, s.logger)
	if err != nil {
		return err
	}

	s.pool = pool
	s.processor = NewProcessor(pool, s.cfg.Table, s.logger)

	nc, err := natsutil.Connect(s.cfg.NATSURL, s.cfg.Security, s.logger)
	if err != nil {
		pool.Close()
		return err
	}

	s.nc = nc

	var js jetstream.JetStream

	if s.cfg.Domain != "" {
		js, err = jetstream.NewWithDomain(nc, s.cfg.Domain)
	} else {
		js, err = jetstream.New(nc)
	}

	if err != nil {
		s.closeConnections()
		return err
	}

	s.js = js

	stream, err := js.Stream(ctx, s.cfg.StreamName)
	if errors.Is(err, jetstream.ErrStreamNotFound) {
		sc := jetstream.StreamConfig{
			Name:     s.cfg.StreamName,
			Subjects: natsutil.DefaultSubjects,
		}

		stream, err = js.CreateOrUpdateStream(ctx, sc)
		if err != nil {
			s.closeConnections()
			return fmt.Errorf("failed to create stream %s: %w", s.cfg.StreamName, err)
		}
	} else if err != nil {
		s.closeConnections()

		return fmt.Errorf("failed to get stream %s: %w", s.cfg.StreamName, err)
	}

	if _, err = stream.Info(ctx); err != nil {
		s.closeConnections()

		return fmt.Errorf("failed to get stream info: %w", err)
	}

	s.consumer, err = NewConsumer(ctx, js, s.cfg.StreamName, s.cfg.ConsumerName, s.cfg.Subject, s.logger)
	if err != nil {
		s.closeConnections()
		return err
	}

	s.wg.Add(1)

	go func() {
		defer s.wg.Done()

		if err := s.consumer.ProcessMessages(ctx, s.processor); err != nil {
			s.logger.Error().Err(err).Msg("Message processing terminated")
		}
	}()

	s.logger.Info().
		Str("stream_name", s.cfg.StreamName).
		Str("consumer_name", s.cfg.ConsumerName).
		Str("table", s.cfg.Table).
		Msg("Sighting recorder started")

	return nil
}

// Stop shuts down the service. Closing the NATS connection unblocks any
// in-flight fetch so the worker can observe cancellation.
func (s *Service) Stop(_ context.Context) error {
	s.closeConnections()

	s.wg.Wait()

	s.logger.Info().Msg("Sighting recorder stopped")

	return nil
}

func (s *Service) closeConnections() {
	if s.nc != nil {
		s.nc.Close()
	}

	if s.pool != nil {
		s.pool.Close()
	}
}

var _ lifecycle.Service = (*Service)(nil)
