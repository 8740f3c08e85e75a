package port

import (
	"context"

	"mktmetrics/internal/domain"
)

// PriceFeed is a cached view over the external price/funding feed.
type PriceFeed interface {
	// Start launches the background refresh loop. Calling it more than once has no effect.
	Start(ctx context.Context)
	// Read returns the cached entry for coin without waiting on a refresh.
	Read(coin string) (domain.PriceFeedEntry, bool)
	// ReadFresh refreshes synchronously, then reads.
	ReadFresh(ctx context.Context, coin string) (domain.PriceFeedEntry, error)
}
