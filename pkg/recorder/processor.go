package recorder

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/carverauto/tagradar/pkg/logger"
	"github.com/carverauto/tagradar/pkg/models"
)

// Processor writes sighting events to a Postgres table.
type Processor struct {
	pool   *pgxpool.Pool
	table  string
	logger logger.Logger
}

// NewProcessor creates a Processor writing to the given table.
func NewProcessor(pool *pgxpool.Pool, table string, log logger.Logger) *Processor {
	return &Processor{pool: pool, table: table, logger: log}
}

// sightingRow is one row of the sightings table.
type sightingRow struct {
	MAC        string
	GatewayMAC string
	Timestamp  int64
	RSSI       int
	Data       []byte
	AgeSeconds *int64
	ReceivedAt time.Time
}

// buildSightingRow extracts a sighting from a CloudEvents envelope.
func buildSightingRow(b []byte, receivedAt time.Time) (*sightingRow, error) {
	var ce struct {
		Data json.RawMessage `json:"data"`
	}

	if err := json.Unmarshal(b, &ce); err != nil {
		return nil, fmt.Errorf("parse cloud event: %w", err)
	}

	if len(ce.Data) == 0 {
		return nil, errNoEventData
	}

	var payload models.SightingEventData
	if err := json.Unmarshal(ce.Data, &payload); err != nil {
		return nil, fmt.Errorf("parse sighting payload: %w", err)
	}

	return &sightingRow{
		MAC:        payload.Tag.MAC,
		GatewayMAC: payload.GatewayMAC,
		Timestamp:  payload.Tag.Timestamp,
		RSSI:       payload.Tag.RSSI,
		Data:       payload.Tag.Data,
		AgeSeconds: payload.Tag.AgeSeconds,
		ReceivedAt: receivedAt,
	}, nil
}

// ProcessBatch writes a batch of messages to the table and returns the
// processed messages. A message that fails to parse aborts the batch
// before anything is sent, so the caller's redelivery accounting decides
// its fate.
func (p *Processor) ProcessBatch(ctx context.Context, msgs []jetstream.Msg) ([]jetstream.Msg, error) {
	if len(msgs) == 0 {
		return nil, nil
	}

	query := fmt.Sprintf(
		"INSERT INTO %s (mac, gw_mac, ts, rssi, data, age_s, received_at) VALUES ($1,$2,$3,$4,$5,$6,$7)",
		p.table)

	batch := &pgx.Batch{}
	processed := make([]jetstream.Msg, 0, len(msgs))
	receivedAt := time.Now().UTC()

	for _, msg := range msgs {
		row, err := buildSightingRow(msg.Data(), receivedAt)
		if err != nil {
			processed = append(processed, msg)
			return processed, fmt.Errorf("build sighting row (%s): %w", msg.Subject(), err)
		}

		batch.Queue(query,
			row.MAC, row.GatewayMAC, row.Timestamp, row.RSSI, row.Data, row.AgeSeconds, row.ReceivedAt)
		processed = append(processed, msg)
	}

	if err := sendBatchExecAll(ctx, batch, p.pool.SendBatch, "sightings"); err != nil {
		return processed, err
	}

	p.logger.Debug().Int("rows", batch.Len()).Str("table", p.table).Msg("Inserted sighting batch")

	return processed, nil
}

func sendBatchExecAll(ctx context.Context, batch *pgx.Batch, send func(context.Context, *pgx.Batch) pgx.BatchResults, operation string) (err error) {
	if batch == nil || batch.Len() == 0 {
		return nil
	}

	br := send(ctx, batch)
	defer func() {
		if closeErr := br.Close(); closeErr != nil && err == nil {
			err = fmt.Errorf("%s batch close: %w", operation, closeErr)
		}
	}()

	for i := 0; i < batch.Len(); i++ {
		if _, err = br.Exec(); err != nil {
			return fmt.Errorf("%s batch exec (command %d): %w", operation, i, err)
		}
	}

	return nil
}
