package hyperliquid

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"mktmetrics/internal/application/port"
	"mktmetrics/internal/domain"
)

const defaultPollInterval = time.Second

// ErrCoinNotFound is returned by ReadFresh when the coin is not listed.
var ErrCoinNotFound = errors.New("hyperliquid: coin not found in market data")

// MarketsFetcher loads the whole market universe in one call.
type MarketsFetcher interface {
	MetaAndAssetCtxs(ctx context.Context) (*MetaAndAssetCtxsResponse, error)
}

// PriceFeedCache keeps the latest price-feed entry of every market. A single
// refresh goroutine swaps the whole map; readers never wait on the network.
type PriceFeedCache struct {
	fetcher  MarketsFetcher
	interval time.Duration

	mu          sync.RWMutex
	entries     map[string]domain.PriceFeedEntry
	aliases     map[string]string // upper-cased name -> listed name
	lastRefresh time.Time

	startOnce sync.Once
}

func NewPriceFeedCache(fetcher MarketsFetcher, interval time.Duration) *PriceFeedCache {
	if interval <= 0 {
		interval = defaultPollInterval
	}
	return &PriceFeedCache{
		fetcher:  fetcher,
		interval: interval,
		entries:  map[string]domain.PriceFeedEntry{},
		aliases:  map[string]string{},
	}
}

// Start runs Refresh now and then every poll interval until ctx is done.
func (c *PriceFeedCache) Start(ctx context.Context) {
	c.startOnce.Do(func() {
		go c.run(ctx)
		log.Info().Dur("interval", c.interval).Msg("price feed polling started")
	})
}

func (c *PriceFeedCache) run(ctx context.Context) {
	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	_ = c.Refresh(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			// failures are logged inside Refresh; keep polling
			_ = c.Refresh(ctx)
		}
	}
}

// Refresh fetches every market and replaces the cache. On failure the
// previous contents stay in place.
func (c *PriceFeedCache) Refresh(ctx context.Context) error {
	resp, err := c.fetcher.MetaAndAssetCtxs(ctx)
	if err != nil {
		log.Error().Err(err).Msg("failed to fetch market data")
		return fmt.Errorf("refresh price feed: %w", err)
	}

	entries := ParseMarkets(resp.Universe, resp.AssetCtxs)
	aliases := make(map[string]string, len(entries))
	for name := range entries {
		aliases[strings.ToUpper(name)] = name
	}
	if len(resp.Universe) != len(resp.AssetCtxs) {
		log.Warn().
			Int("universe", len(resp.Universe)).
			Int("contexts", len(resp.AssetCtxs)).
			Msg("market universe and contexts differ in length, truncated")
	}

	c.mu.Lock()
	c.entries = entries
	c.aliases = aliases
	c.lastRefresh = time.Now()
	c.mu.Unlock()

	log.Debug().Int("markets", len(entries)).Msg("updated market data cache")
	return nil
}

// Read returns the cached entry for coin. Lookups fall back to a
// case-insensitive match so "KPEPE" finds "kPEPE".
func (c *PriceFeedCache) Read(coin string) (domain.PriceFeedEntry, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if e, ok := c.entries[coin]; ok {
		return e, true
	}
	if name, ok := c.aliases[strings.ToUpper(strings.TrimSpace(coin))]; ok {
		e, ok := c.entries[name]
		return e, ok
	}
	return domain.PriceFeedEntry{}, false
}

// ReadFresh refreshes synchronously and then reads coin.
func (c *PriceFeedCache) ReadFresh(ctx context.Context, coin string) (domain.PriceFeedEntry, error) {
	if err := c.Refresh(ctx); err != nil {
		return domain.PriceFeedEntry{}, err
	}
	e, ok := c.Read(coin)
	if !ok {
		return domain.PriceFeedEntry{}, fmt.Errorf("%w: %s", ErrCoinNotFound, coin)
	}
	return e, nil
}

// Len is the number of cached markets.
func (c *PriceFeedCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// LastRefresh is the time of the last successful refresh, zero if none.
func (c *PriceFeedCache) LastRefresh() time.Time {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.lastRefresh
}

var _ port.PriceFeed = (*PriceFeedCache)(nil)
