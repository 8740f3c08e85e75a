package monitor

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"mktmetrics/internal/application/port"
	"mktmetrics/internal/domain"
)

const DefaultInterval = time.Second

type ServiceDeps struct {
	Coins    []string
	Interval time.Duration
	Feed     port.PriceFeed
	// Books may be nil when no order-book source is wired; book fields are
	// then always absent.
	Books port.OrderBookSource
	Store port.MetricsStore
	Clock func() time.Time
	// StatusEvery is the period of the summary log line; zero disables it.
	StatusEvery time.Duration
}

type Service struct {
	deps ServiceDeps
	st   *State
	fmt  *Formatter
}

func NewService(deps ServiceDeps) *Service {
	if deps.Interval <= 0 {
		deps.Interval = DefaultInterval
	}
	if deps.Clock == nil {
		deps.Clock = time.Now
	}
	st := NewState(deps.Coins)
	deps.Coins = st.Symbols()
	return &Service{
		deps: deps,
		st:   st,
		fmt:  NewFormatter(false),
	}
}

// State exposes the per-coin tallies.
func (s *Service) State() *State { return s.st }

// Run provisions storage for every coin, starts the price feed and one
// sampling loop per coin, then blocks until ctx is done. A provisioning
// failure is returned before any loop starts.
func (s *Service) Run(ctx context.Context) error {
	if len(s.deps.Coins) == 0 {
		return ErrNoMarkets
	}
	for _, coin := range s.deps.Coins {
		if err := s.deps.Store.EnsureTable(ctx, coin); err != nil {
			return fmt.Errorf("provision %s: %w", coin, err)
		}
	}

	s.deps.Feed.Start(ctx)
	log.Info().
		Strs("markets", s.deps.Coins).
		Dur("interval", s.deps.Interval).
		Msg("starting market metrics monitoring")

	var wg sync.WaitGroup
	for _, coin := range s.deps.Coins {
		wg.Add(1)
		go func(coin string) {
			defer wg.Done()
			s.monitorMarket(ctx, coin)
		}(coin)
	}
	log.Info().Int("markets", len(s.deps.Coins)).Msg("all market monitoring tasks started")

	if s.deps.StatusEvery > 0 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.statusLoop(ctx)
		}()
	}

	<-ctx.Done()
	wg.Wait()
	return ctx.Err()
}

func (s *Service) monitorMarket(ctx context.Context, coin string) {
	ticker := time.NewTicker(s.deps.Interval)
	defer ticker.Stop()
	log.Info().Str("coin", coin).Msg("started monitoring")

	s.sample(ctx, coin)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.sample(ctx, coin)
		}
	}
}

func (s *Service) sample(ctx context.Context, coin string) {
	m, err := s.CollectOnce(ctx, coin)
	switch {
	case err == nil:
		s.st.Apply(coin, OutcomeStored, m)
		ev := log.Debug().Str("coin", coin)
		if m.MarkPrice.Valid {
			ev = ev.Str("mark_price", m.MarkPrice.Decimal.String())
		}
		ev.Msg("metrics inserted")
	case errors.Is(err, port.ErrDuplicateSample):
		s.st.Apply(coin, OutcomeDuplicate, m)
		log.Warn().Err(err).Str("coin", coin).Msg("duplicate sample skipped")
	case ctx.Err() != nil:
		// shutting down
	default:
		s.st.Apply(coin, OutcomeFailed, m)
		log.Error().Err(err).Str("coin", coin).Msg("failed to collect metrics")
	}
}

// CollectOnce builds one record for coin from the cached price feed and the
// current order book, stores it and returns it. The record is returned even
// when the store rejects it.
func (s *Service) CollectOnce(ctx context.Context, coin string) (*domain.MarketMetrics, error) {
	ts := s.deps.Clock().UTC().Truncate(time.Microsecond)
	m := domain.NewMarketMetrics(coin, ts)

	if entry, ok := s.deps.Feed.Read(coin); ok {
		m.MergePriceFeed(entry)
	} else {
		log.Warn().Str("coin", coin).Msg("no price feed data available")
	}

	if s.deps.Books != nil {
		if ob, ok := s.bookMetrics(coin); ok {
			m.MergeOrderBook(ob)
		} else {
			log.Warn().Str("coin", coin).Msg("no order book data available")
		}
	}

	if err := s.deps.Store.Insert(ctx, m); err != nil {
		return m, err
	}
	return m, nil
}

func (s *Service) bookMetrics(coin string) (domain.OrderBookMetrics, bool) {
	snap, ok := s.deps.Books.Snapshot(coin)
	if !ok {
		return domain.OrderBookMetrics{}, false
	}
	return domain.ComputeOrderBookMetrics(snap.Bids, snap.Asks)
}

func (s *Service) statusLoop(ctx context.Context) {
	ticker := time.NewTicker(s.deps.StatusEvery)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			log.Info().Msg(s.fmt.RenderStatus(s.st))
		}
	}
}
