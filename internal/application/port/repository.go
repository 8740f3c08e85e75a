package port

import (
	"context"
	"errors"

	"mktmetrics/internal/domain"
)

// ErrDuplicateSample is returned by Insert when a record for the same
// (timestamp, coin) already exists. The sample is dropped; it is not retried.
var ErrDuplicateSample = errors.New("duplicate metrics sample")

type MetricsStore interface {
	// EnsureTable provisions storage for coin. Idempotent.
	EnsureTable(ctx context.Context, coin string) error
	// Insert appends one record.
	Insert(ctx context.Context, m *domain.MarketMetrics) error

	Close() error
}
