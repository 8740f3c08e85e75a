package port

import "mktmetrics/internal/domain"

// OrderBookSource answers snapshot queries from the local order-book engine.
type OrderBookSource interface {
	// Snapshot returns the current ladders for coin, or false when no snapshot exists.
	Snapshot(coin string) (domain.BookSnapshot, bool)
}
