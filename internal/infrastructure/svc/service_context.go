package svc

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"mktmetrics/internal/application/port"
	"mktmetrics/internal/application/usecase/monitor"
	"mktmetrics/internal/infrastructure/config"
	"mktmetrics/internal/infrastructure/exchange/hyperliquid"
	"mktmetrics/internal/infrastructure/orderbook"
	"mktmetrics/internal/infrastructure/storage/composite"
	"mktmetrics/internal/infrastructure/storage/postgres"
	redisrepo "mktmetrics/internal/infrastructure/storage/redis"
	sqliterepo "mktmetrics/internal/infrastructure/storage/sqlite"
	"mktmetrics/internal/interfaces/console"
)

type ServiceContext struct {
	Ctx    context.Context
	Config *config.Config

	cancel context.CancelFunc
	wg     sync.WaitGroup

	// storage
	pgStore     *postgres.Store
	sqliteStore *sqliterepo.Store
	publisher   *redisrepo.Publisher
	store       port.MetricsStore

	// market data
	client   *hyperliquid.Client
	feed     *hyperliquid.PriceFeedCache
	books    *orderbook.Memory
	bookFeed *hyperliquid.BookFeed

	closerChain []func() error
}

// New builds every component in dependency order. On failure whatever was
// already built is closed before the error is returned.
func New(ctx context.Context, cfg *config.Config) (*ServiceContext, error) {
	ctx, cancel := context.WithCancel(ctx)
	sc := &ServiceContext{
		Ctx:         ctx,
		Config:      cfg,
		cancel:      cancel,
		closerChain: make([]func() error, 0),
	}

	if err := sc.initializeComponents(); err != nil {
		_ = sc.Close()
		return nil, err
	}
	return sc, nil
}

func (sc *ServiceContext) initializeComponents() error {
	if err := sc.initializeStorage(); err != nil {
		return fmt.Errorf("%w: %w", ErrStorageInitFailed, err)
	}
	sc.initializeMarketData()

	log.Info().
		Str("driver", sc.Config.Storage.Driver).
		Bool("redis", sc.publisher != nil).
		Bool("order_book", sc.bookFeed != nil).
		Msg("all components initialized")
	return nil
}

func (sc *ServiceContext) initializeStorage() error {
	switch sc.Config.Storage.Driver {
	case config.DriverPostgres:
		if err := sc.initPostgres(); err != nil {
			return err
		}
	case config.DriverSQLite:
		if err := sc.initSQLite(); err != nil {
			return err
		}
	default:
		return fmt.Errorf("%w: %q", ErrUnknownDriver, sc.Config.Storage.Driver)
	}

	if sc.Config.Redis.Enabled {
		if err := sc.initRedis(); err != nil {
			return fmt.Errorf("redis initialization failed: %w", err)
		}
	}

	var sinks []port.MetricsSink
	if sc.publisher != nil {
		sinks = append(sinks, sc.publisher)
	}
	if sc.Config.App.Console {
		sinks = append(sinks, console.NewSink(true))
	}
	if len(sinks) > 0 {
		sc.store = composite.New(sc.primaryStore(), sinks...)
	} else {
		sc.store = sc.primaryStore()
	}
	return nil
}

func (sc *ServiceContext) primaryStore() port.MetricsStore {
	if sc.pgStore != nil {
		return sc.pgStore
	}
	return sc.sqliteStore
}

func (sc *ServiceContext) initPostgres() error {
	ctx, cancel := context.WithTimeout(sc.Ctx, 10*time.Second)
	defer cancel()

	st, err := postgres.New(ctx, sc.Config.Storage.DatabaseURL,
		sc.Config.Storage.MinDBConnections, sc.Config.Storage.MaxDBConnections)
	if err != nil {
		return fmt.Errorf("postgres: %w", err)
	}
	sc.pgStore = st
	sc.closerChain = append(sc.closerChain, func() error {
		log.Info().Msg("closing postgres pool")
		return st.Close()
	})
	log.Info().
		Int32("min_conns", sc.Config.Storage.MinDBConnections).
		Int32("max_conns", sc.Config.Storage.MaxDBConnections).
		Msg("postgres initialized")
	return nil
}

func (sc *ServiceContext) initSQLite() error {
	st, err := sqliterepo.New(sc.Config.Storage.SQLitePath)
	if err != nil {
		return fmt.Errorf("sqlite: %w", err)
	}
	sc.sqliteStore = st
	sc.closerChain = append(sc.closerChain, func() error {
		log.Info().Msg("closing sqlite connection")
		return st.Close()
	})
	log.Info().Str("path", sc.Config.Storage.SQLitePath).Msg("sqlite initialized")
	return nil
}

func (sc *ServiceContext) initRedis() error {
	ctx, cancel := context.WithTimeout(sc.Ctx, 5*time.Second)
	defer cancel()

	rc := sc.Config.Redis
	ttl := time.Duration(rc.TTLSeconds) * time.Second
	pub, err := redisrepo.Dial(ctx, rc.Addr, rc.Password, rc.DB, rc.Prefix, ttl, rc.Stream, rc.StreamMax)
	if err != nil {
		return err
	}
	sc.publisher = pub
	sc.closerChain = append(sc.closerChain, func() error {
		log.Info().Msg("closing redis connection")
		return pub.Close()
	})
	log.Info().Str("addr", rc.Addr).Int("db", rc.DB).Msg("redis initialized")
	return nil
}

func (sc *ServiceContext) initializeMarketData() {
	hc := sc.Config.Hyperliquid
	sc.client = hyperliquid.NewClient(
		hyperliquid.WithInfoURL(hc.APIURL),
		hyperliquid.WithRequestTimeout(sc.Config.RequestTimeout()),
		hyperliquid.WithRateLimit(hc.RequestsPerSecond, 5),
	)
	sc.feed = hyperliquid.NewPriceFeedCache(sc.client, sc.Config.PollInterval())

	if sc.Config.OrderBookEnabled() {
		sc.books = orderbook.NewMemory()
		sc.bookFeed = hyperliquid.NewBookFeed(hc.WsURL, sc.Config.Markets.List, sc.books)
	}
}

// StartBookFeed launches the order-book subscription in the background. It
// stops when Close is called or the parent context ends.
func (sc *ServiceContext) StartBookFeed() {
	if sc.bookFeed == nil {
		return
	}
	sc.wg.Add(1)
	go func() {
		defer sc.wg.Done()
		sc.bookFeed.Run(sc.Ctx)
	}()
	log.Info().Str("feed", sc.bookFeed.Name()).Strs("markets", sc.Config.Markets.List).Msg("order book feed started")
}

// WaitForBooks polls until every configured coin has a snapshot or timeout
// elapses. Returns the coins still missing.
func (sc *ServiceContext) WaitForBooks(ctx context.Context, timeout time.Duration) []string {
	if sc.books == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()
	for {
		var missing []string
		for _, coin := range sc.Config.Markets.List {
			if _, ok := sc.books.Snapshot(coin); !ok {
				missing = append(missing, coin)
			}
		}
		if len(missing) == 0 {
			return nil
		}
		select {
		case <-ctx.Done():
			return missing
		case <-ticker.C:
		}
	}
}

// BuildMonitorServiceDeps assembles the monitor's dependencies.
func (sc *ServiceContext) BuildMonitorServiceDeps() monitor.ServiceDeps {
	deps := monitor.ServiceDeps{
		Coins:       sc.Config.Markets.List,
		Interval:    sc.Config.MonitoringInterval(),
		Feed:        sc.feed,
		Store:       sc.store,
		Clock:       time.Now,
		StatusEvery: sc.Config.StatusInterval(),
	}
	// a nil *orderbook.Memory must not become a non-nil interface
	if sc.books != nil {
		deps.Books = sc.books
	}
	return deps
}

func (sc *ServiceContext) PriceFeed() *hyperliquid.PriceFeedCache { return sc.feed }

func (sc *ServiceContext) Store() port.MetricsStore { return sc.store }

// SQLite returns the sqlite store, or nil when another driver is selected.
func (sc *ServiceContext) SQLite() *sqliterepo.Store { return sc.sqliteStore }

// Close stops background feeds and closes resources in reverse order.
func (sc *ServiceContext) Close() error {
	sc.cancel()
	sc.wg.Wait()

	for i := len(sc.closerChain) - 1; i >= 0; i-- {
		if err := sc.closerChain[i](); err != nil {
			log.Error().Err(err).Msg("error closing resource")
		}
	}
	sc.closerChain = nil
	return nil
}
