package port

import (
	"context"

	"mktmetrics/internal/domain"
)

// MetricsSink receives every stored sample on a best-effort basis
// (latest-value caches, streams).
type MetricsSink interface {
	Publish(ctx context.Context, m *domain.MarketMetrics) error
	Close() error
}
