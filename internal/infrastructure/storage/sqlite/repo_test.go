package sqlite

import (
	"context"
	"database/sql"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mktmetrics/internal/application/port"
	"mktmetrics/internal/domain"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := New(filepath.Join(t.TempDir(), "nested", "metrics.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func dec(s string) decimal.NullDecimal {
	return decimal.NewNullDecimal(decimal.RequireFromString(s))
}

func TestEnsureTableIsIdempotent(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, s.EnsureTable(ctx, "LINK"))
		}()
	}
	wg.Wait()
	require.NoError(t, s.EnsureTable(ctx, "link"))

	assert.Equal(t, 1, s.ddlRuns)

	n, err := s.Count(ctx, "LINK")
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestInsertAndLatestRoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.EnsureTable(ctx, "LINK"))

	ts := time.Date(2026, 3, 1, 12, 0, 0, 123456000, time.UTC)
	m := domain.NewMarketMetrics("LINK", ts)
	m.MarkPrice = dec("14.2512345678")
	m.FundingRatePct = dec("0.00125")
	m.MidPrice = dec("14.25")
	m.BidDepth5Pct = dec("1006.00")
	latency := int32(42)
	m.TotalLatencyMs = &latency
	require.NoError(t, s.Insert(ctx, m))

	got, err := s.Latest(ctx, "LINK")
	require.NoError(t, err)
	assert.Equal(t, "LINK", got.Coin)
	assert.True(t, got.Timestamp.Equal(ts))
	assert.True(t, got.MarkPrice.Decimal.Equal(decimal.RequireFromString("14.2512345678")))
	assert.True(t, got.FundingRatePct.Decimal.Equal(decimal.RequireFromString("0.00125")))
	assert.True(t, got.BidDepth5Pct.Decimal.Equal(decimal.NewFromInt(1006)))
	assert.False(t, got.OraclePrice.Valid)
	assert.False(t, got.AskDepth25Pct.Valid)
	assert.Nil(t, got.NodeLatencyMs)
	require.NotNil(t, got.TotalLatencyMs)
	assert.Equal(t, int32(42), *got.TotalLatencyMs)
}

func TestDuplicateSampleRejected(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	ts := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	first := domain.NewMarketMetrics("BTC", ts)
	first.MarkPrice = dec("97000")
	require.NoError(t, s.Insert(ctx, first))

	second := domain.NewMarketMetrics("BTC", ts)
	second.MarkPrice = dec("1")
	err := s.Insert(ctx, second)
	require.Error(t, err)
	assert.ErrorIs(t, err, port.ErrDuplicateSample)

	n, err := s.Count(ctx, "BTC")
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	got, err := s.Latest(ctx, "BTC")
	require.NoError(t, err)
	assert.True(t, got.MarkPrice.Decimal.Equal(decimal.NewFromInt(97000)))
}

func TestOneSidedRecordPersisted(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	ts := time.Date(2026, 3, 1, 12, 0, 1, 0, time.UTC)

	m := domain.NewMarketMetrics("ETH", ts)
	m.MergePriceFeed(domain.PriceFeedEntry{
		Coin:      "ETH",
		MarkPrice: decimal.NewFromInt(3200),
		MidPrice:  decimal.NewFromInt(3199),
	})
	require.NoError(t, s.Insert(ctx, m))

	got, err := s.Latest(ctx, "ETH")
	require.NoError(t, err)
	assert.True(t, got.MarkPrice.Valid)
	assert.False(t, got.BestBid.Valid)
	assert.False(t, got.TotalDepth10Pct.Valid)
}

func TestLatestOnEmptyTable(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.EnsureTable(ctx, "SOL"))

	_, err := s.Latest(ctx, "SOL")
	assert.ErrorIs(t, err, sql.ErrNoRows)
}

func TestLatestOrdersByTimestamp(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	for _, off := range []time.Duration{2 * time.Second, 0, time.Second} {
		m := domain.NewMarketMetrics("LINK", base.Add(off))
		m.MarkPrice = decimal.NewNullDecimal(decimal.NewFromInt(int64(off / time.Second)))
		require.NoError(t, s.Insert(ctx, m))
	}

	got, err := s.Latest(ctx, "LINK")
	require.NoError(t, err)
	assert.True(t, got.Timestamp.Equal(base.Add(2*time.Second)))
	assert.Equal(t, int64(2), got.MarkPrice.Decimal.IntPart())
}
