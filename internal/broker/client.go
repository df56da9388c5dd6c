package broker

import (
	"context"

	"equity-trading-bot/internal/market"
)

// Client defines the broker operations the core consumes. The scheduler
// never talks to a concrete broker implementation directly.
type Client interface {
	// FetchHistorical returns bars for the instrument over the half-open
	// window [from, to) at the given interval. Errors are classified into
	// the broker error taxonomy.
	FetchHistorical(ctx context.Context, symbol string, interval market.Interval, window market.Window) (*market.BarSeries, error)
}

// Ensure the mock implements the interface
var _ Client = (*MockClient)(nil)
