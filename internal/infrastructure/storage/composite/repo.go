package composite

import (
	"context"
	"errors"

	"github.com/rs/zerolog/log"

	"mktmetrics/internal/application/port"
	"mktmetrics/internal/domain"
)

// Store writes to one authoritative MetricsStore and fans stored samples out
// to best-effort sinks.
type Store struct {
	primary port.MetricsStore
	sinks   []port.MetricsSink
}

func New(primary port.MetricsStore, sinks ...port.MetricsSink) *Store {
	// nil sinks are allowed; filter in constructor
	out := make([]port.MetricsSink, 0, len(sinks))
	for _, s := range sinks {
		if s != nil {
			out = append(out, s)
		}
	}
	return &Store{primary: primary, sinks: out}
}

func (s *Store) EnsureTable(ctx context.Context, coin string) error {
	return s.primary.EnsureTable(ctx, coin)
}

// Insert returns the primary store's error. Sinks only see samples the
// primary accepted.
func (s *Store) Insert(ctx context.Context, m *domain.MarketMetrics) error {
	if err := s.primary.Insert(ctx, m); err != nil {
		return err
	}
	for _, sink := range s.sinks {
		if err := sink.Publish(ctx, m); err != nil {
			log.Warn().Err(err).Str("coin", m.Coin).Msg("metrics sink publish failed")
		}
	}
	return nil
}

func (s *Store) Close() error {
	var errs []error
	for _, sink := range s.sinks {
		if err := sink.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if err := s.primary.Close(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

var _ port.MetricsStore = (*Store)(nil)
