package poller

//go:generate mockgen -destination=mock_poller.go -package=poller github.com/carverauto/tagradar/pkg/poller Clock,Ticker,Fetcher,Handler

import (
	"context"
	"time"

	"github.com/carverauto/tagradar/pkg/models"
)

// Clock abstracts time-related operations.
type Clock interface {
	Now() time.Time
	Ticker(d time.Duration) Ticker
}

// Ticker abstracts the ticker behavior.
type Ticker interface {
	Chan() <-chan time.Time
	Stop()
}

// Fetcher retrieves and decodes one gateway history snapshot.
// gateway.Client is the production implementation.
type Fetcher interface {
	FetchHistory(ctx context.Context) (*models.HistoryResponse, error)
}

// Handler consumes the outcome of each poll cycle. HandleUpdate receives
// every successful cycle, including cycles with no changed records.
// HandleError receives the classified failure when a cycle cannot produce
// an update. Handler failures never abort the cycle.
type Handler interface {
	HandleUpdate(ctx context.Context, update *models.GatewayUpdate) error
	HandleError(ctx context.Context, err error)
}
