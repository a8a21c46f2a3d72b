package recorder

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/carverauto/tagradar/pkg/logger"
)

const (
	defaultMaxPullMessages = 50
	defaultPullExpiry      = 30 * time.Second
	defaultMaxRetries      = 3
	defaultAckWait         = 30 * time.Second
	defaultMaxAckPending   = 1000
)

// batchProcessor is satisfied by *Processor.
type batchProcessor interface {
	ProcessBatch(ctx context.Context, msgs []jetstream.Msg) ([]jetstream.Msg, error)
}

// pullConsumer is the slice of jetstream.Consumer the fetch loop uses.
type pullConsumer interface {
	Fetch(batch int, opts ...jetstream.FetchOpt) (jetstream.MessageBatch, error)
}

// Consumer wraps a JetStream pull consumer.
type Consumer struct {
	js           jetstream.JetStream
	streamName   string
	consumerName string
	consumer     pullConsumer
	logger       logger.Logger
}

// NewConsumer creates or retrieves a durable pull consumer for the stream.
func NewConsumer(ctx context.Context, js jetstream.JetStream, streamName, consumerName, filterSubject string, log logger.Logger) (*Consumer, error) {
	consumer, err := js.Consumer(ctx, streamName, consumerName)
	if err != nil {
		cfg := jetstream.ConsumerConfig{
			Durable:       consumerName,
			AckPolicy:     jetstream.AckExplicitPolicy,
			AckWait:       defaultAckWait,
			MaxDeliver:    defaultMaxRetries,
			MaxAckPending: defaultMaxAckPending,
			FilterSubject: filterSubject,
		}

		consumer, err = js.CreateConsumer(ctx, streamName, cfg)
		if err != nil {
			return nil, fmt.Errorf("failed to create consumer %s on stream %s: %w", consumerName, streamName, err)
		}
	}

	log.Info().
		Str("stream", streamName).
		Str("consumer", consumerName).
		Str("filter_subject", filterSubject).
		Msg("Pull consumer created or retrieved")

	return &Consumer{js: js, streamName: streamName, consumerName: consumerName, consumer: consumer, logger: log}, nil
}

func (c *Consumer) handleBatch(ctx context.Context, msgs []jetstream.Msg, processor batchProcessor) {
	processed, err := processor.ProcessBatch(ctx, msgs)
	if err != nil {
		c.logger.Error().Err(err).Int("messages", len(msgs)).Msg("Failed to process message batch")

		for _, msg := range processed {
			metadata, _ := msg.Metadata()

			if metadata != nil && metadata.NumDelivered >= defaultMaxRetries {
				_ = msg.Ack()
			} else {
				_ = msg.Nak()
			}
		}

		return
	}

	for _, msg := range processed {
		_ = msg.Ack()
	}
}

// ProcessMessages continuously fetches and processes messages. It returns
// nil once the context is canceled and an error when the connection is
// gone for good.
func (c *Consumer) ProcessMessages(ctx context.Context, processor batchProcessor) error {
	c.logger.Info().
		Str("stream", c.streamName).
		Str("consumer", c.consumerName).
		Msg("Starting pull consumer")

	for {
		select {
		case <-ctx.Done():
			c.logger.Info().Msg("Stopping message processing due to context cancellation")
			return nil
		default:
			msgs, err := c.consumer.Fetch(defaultMaxPullMessages, jetstream.FetchMaxWait(defaultPullExpiry))
			if err != nil {
				if isFatalFetchErr(err) {
					// The connection closing under us is how shutdown
					// interrupts a blocked fetch.
					if ctx.Err() != nil {
						return nil
					}

					return fmt.Errorf("fetch messages: %w", err)
				}

				c.logger.Error().Err(err).Msg("Failed to fetch messages")
				time.Sleep(time.Second)

				continue
			}

			batch := make([]jetstream.Msg, 0, defaultMaxPullMessages)
			for msg := range msgs.Messages() {
				batch = append(batch, msg)
			}

			if len(batch) > 0 {
				c.handleBatch(ctx, batch, processor)
			}

			if fetchErr := msgs.Error(); fetchErr != nil {
				c.logger.Warn().Err(fetchErr).Msg("Fetch ended with error")
			}
		}
	}
}

func isFatalFetchErr(err error) bool {
	return errors.Is(err, nats.ErrConnectionClosed) || errors.Is(err, nats.ErrNoResponders)
}
