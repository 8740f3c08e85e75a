package monitor

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mktmetrics/internal/application/port"
	"mktmetrics/internal/domain"
	"mktmetrics/internal/infrastructure/storage"
)

type fakeFeed struct {
	entries map[string]domain.PriceFeedEntry
	starts  atomic.Int32
}

func (f *fakeFeed) Start(ctx context.Context) { f.starts.Add(1) }

func (f *fakeFeed) Read(coin string) (domain.PriceFeedEntry, bool) {
	e, ok := f.entries[coin]
	return e, ok
}

func (f *fakeFeed) ReadFresh(ctx context.Context, coin string) (domain.PriceFeedEntry, error) {
	e, ok := f.entries[coin]
	if !ok {
		return e, errors.New("not found")
	}
	return e, nil
}

type fakeBooks map[string]domain.BookSnapshot

func (b fakeBooks) Snapshot(coin string) (domain.BookSnapshot, bool) {
	s, ok := b[coin]
	return s, ok
}

// stallingStore blocks every insert for one coin until ctx is done.
type stallingStore struct {
	*storage.Memory
	stall string
}

func (s *stallingStore) Insert(ctx context.Context, m *domain.MarketMetrics) error {
	if m.Coin == s.stall {
		<-ctx.Done()
		return ctx.Err()
	}
	return s.Memory.Insert(ctx, m)
}

type failingEnsureStore struct {
	*storage.Memory
}

func (failingEnsureStore) EnsureTable(ctx context.Context, coin string) error {
	return errors.New("connection refused")
}

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func linkFeed() *fakeFeed {
	return &fakeFeed{entries: map[string]domain.PriceFeedEntry{
		"LINK": {
			Coin:           "LINK",
			MarkPrice:      d("14.25"),
			OraclePrice:    d("14.24"),
			MidPrice:       d("14.255"),
			FundingRatePct: d("0.00125"),
			OpenInterest:   d("1425000"),
			Volume24h:      d("5000000"),
			Premium:        d("0.0001"),
		},
	}}
}

func linkBook() fakeBooks {
	return fakeBooks{"LINK": {
		Coin: "LINK",
		Bids: []domain.Level{{Price: d("99"), Size: d("2")}, {Price: d("94"), Size: d("1")}},
		Asks: []domain.Level{{Price: d("101"), Size: d("3")}, {Price: d("106"), Size: d("1")}},
	}}
}

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

func TestCollectOnceMergesFeedAndBook(t *testing.T) {
	store := storage.NewMemory()
	now := time.Date(2026, 3, 1, 12, 0, 0, 123456789, time.FixedZone("X", 3600))
	svc := NewService(ServiceDeps{
		Coins: []string{"LINK"},
		Feed:  linkFeed(),
		Books: linkBook(),
		Store: store,
		Clock: fixedClock(now),
	})

	m, err := svc.CollectOnce(context.Background(), "LINK")
	require.NoError(t, err)

	assert.Equal(t, time.UTC, m.Timestamp.Location())
	assert.True(t, m.Timestamp.Equal(now.Truncate(time.Microsecond)))
	assert.Equal(t, 123456000, m.Timestamp.Nanosecond())

	assert.True(t, m.MarkPrice.Decimal.Equal(d("14.25")))
	assert.True(t, m.FundingRatePct.Decimal.Equal(d("0.00125")))
	assert.True(t, m.MidPrice.Decimal.Equal(d("100")), "mid comes from the book")
	assert.True(t, m.BestBid.Decimal.Equal(d("99")))
	assert.True(t, m.BidDepth5Pct.Decimal.Equal(d("198")))
	assert.True(t, m.BidDepth10Pct.Decimal.Equal(d("292")))
	assert.True(t, m.AskDepth5Pct.Decimal.Equal(d("303")))
	assert.True(t, m.TotalDepth10Pct.Decimal.Equal(d("701")))
	assert.Nil(t, m.TotalLatencyMs)

	require.Len(t, store.Records("LINK"), 1)
}

func TestCollectOnceWithoutBookStoresPartialRecord(t *testing.T) {
	store := storage.NewMemory()
	svc := NewService(ServiceDeps{
		Coins: []string{"LINK"},
		Feed:  linkFeed(),
		Books: fakeBooks{},
		Store: store,
	})

	m, err := svc.CollectOnce(context.Background(), "LINK")
	require.NoError(t, err)
	assert.True(t, m.HasPriceFeed())
	assert.False(t, m.HasOrderBook())
	assert.False(t, m.MidPrice.Valid)

	rows := store.Records("LINK")
	require.Len(t, rows, 1)
	assert.False(t, rows[0].BestAsk.Valid)
}

func TestCollectOnceOneSidedBook(t *testing.T) {
	books := fakeBooks{"LINK": {
		Coin: "LINK",
		Bids: []domain.Level{{Price: d("99"), Size: d("2")}},
	}}
	svc := NewService(ServiceDeps{
		Coins: []string{"LINK"},
		Feed:  &fakeFeed{},
		Books: books,
		Store: storage.NewMemory(),
	})

	m, err := svc.CollectOnce(context.Background(), "LINK")
	require.NoError(t, err)
	assert.False(t, m.HasPriceFeed())
	assert.False(t, m.HasOrderBook())
}

func TestCollectOnceDuplicateTimestamp(t *testing.T) {
	store := storage.NewMemory()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	svc := NewService(ServiceDeps{
		Coins: []string{"LINK"},
		Feed:  linkFeed(),
		Books: linkBook(),
		Store: store,
		Clock: fixedClock(now),
	})
	ctx := context.Background()

	svc.sample(ctx, "LINK")
	svc.sample(ctx, "LINK")

	_, err := svc.CollectOnce(ctx, "LINK")
	assert.ErrorIs(t, err, port.ErrDuplicateSample)

	stats, ok := svc.State().Stats("LINK")
	require.True(t, ok)
	assert.Equal(t, int64(1), stats.Stored)
	assert.Equal(t, int64(1), stats.Duplicates)
	assert.Len(t, store.Records("LINK"), 1)
}

func TestRunFailsWhenProvisioningFails(t *testing.T) {
	feed := linkFeed()
	svc := NewService(ServiceDeps{
		Coins: []string{"LINK"},
		Feed:  feed,
		Store: failingEnsureStore{storage.NewMemory()},
	})

	err := svc.Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "provision LINK")
	assert.Zero(t, feed.starts.Load())
}

func TestRunWithoutMarkets(t *testing.T) {
	svc := NewService(ServiceDeps{Coins: []string{" "}, Feed: &fakeFeed{}, Store: storage.NewMemory()})
	assert.ErrorIs(t, svc.Run(context.Background()), ErrNoMarkets)
}

func TestStalledCoinDoesNotBlockOthers(t *testing.T) {
	store := &stallingStore{Memory: storage.NewMemory(), stall: "BTC"}
	feed := linkFeed()
	svc := NewService(ServiceDeps{
		Coins:    []string{"LINK", "BTC"},
		Interval: 5 * time.Millisecond,
		Feed:     feed,
		Books:    linkBook(),
		Store:    store,
	})

	ctx, cancel := context.WithCancel(context.Background())
	var (
		wg     sync.WaitGroup
		runErr error
	)
	wg.Add(1)
	go func() {
		defer wg.Done()
		runErr = svc.Run(ctx)
	}()

	require.Eventually(t, func() bool {
		return len(store.Records("LINK")) >= 3
	}, 2*time.Second, 5*time.Millisecond)
	assert.Empty(t, store.Records("BTC"))
	assert.Equal(t, []string{"btc_metrics_raw", "link_metrics_raw"}, store.Tables())

	cancel()
	wg.Wait()
	assert.ErrorIs(t, runErr, context.Canceled)
	assert.Equal(t, int32(1), feed.starts.Load())

	rows := store.Records("LINK")
	for i := 1; i < len(rows); i++ {
		assert.True(t, rows[i].Timestamp.After(rows[i-1].Timestamp), "samples within a coin are sequential")
	}
}
