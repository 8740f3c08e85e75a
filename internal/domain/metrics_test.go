package domain

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleEntry() PriceFeedEntry {
	return PriceFeedEntry{
		Coin:           "LINK",
		MarkPrice:      decimal.RequireFromString("14.25"),
		OraclePrice:    decimal.RequireFromString("14.26"),
		MidPrice:       decimal.RequireFromString("14.255"),
		FundingRatePct: decimal.RequireFromString("0.00125"),
		OpenInterest:   decimal.RequireFromString("1425000"),
		Volume24h:      decimal.RequireFromString("9800000"),
		Premium:        decimal.RequireFromString("-0.0003"),
		ImpactPxBid:    decimal.NewNullDecimal(decimal.RequireFromString("14.24")),
	}
}

func sampleBook(t *testing.T) OrderBookMetrics {
	t.Helper()
	ob, ok := ComputeOrderBookMetrics(
		[]Level{lvl("100", "2"), lvl("99", "3")},
		[]Level{lvl("101", "1"), lvl("102", "4")},
	)
	require.True(t, ok)
	return ob
}

func TestMergeIsCommutative(t *testing.T) {
	ts := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

	a := NewMarketMetrics("LINK", ts)
	a.MergePriceFeed(sampleEntry())
	a.MergeOrderBook(sampleBook(t))

	b := NewMarketMetrics("LINK", ts)
	b.MergeOrderBook(sampleBook(t))
	b.MergePriceFeed(sampleEntry())

	assert.Equal(t, a, b)
}

func TestMergePriceFeedLeavesBookFieldsAbsent(t *testing.T) {
	m := NewMarketMetrics("LINK", time.Now())
	m.MergePriceFeed(sampleEntry())

	assert.True(t, m.HasPriceFeed())
	assert.False(t, m.HasOrderBook())
	assert.False(t, m.BestBid.Valid)
	assert.False(t, m.TotalDepth25Pct.Valid)
	assert.True(t, m.ImpactPxBid.Valid)
	assert.False(t, m.ImpactPxAsk.Valid)
	assert.Nil(t, m.TotalLatencyMs)
}

func TestComputeOrderBookMetrics(t *testing.T) {
	ob := sampleBook(t)

	assert.Equal(t, "100", ob.BestBid.String())
	assert.Equal(t, "101", ob.BestAsk.String())
	assert.Equal(t, "100.5", ob.MidPrice.String())
	assert.Equal(t, "1", ob.Spread.String())
	assert.True(t, ob.SpreadPct.Round(6).Equal(decimal.RequireFromString("0.995025")), ob.SpreadPct.String())
	assert.Equal(t, 2, ob.TotalBids)
	assert.Equal(t, "1006", ob.Depth.Total5().String())

	m := NewMarketMetrics("LINK", time.Now())
	m.MergeOrderBook(ob)
	assert.Equal(t, "1006", m.TotalDepth5Pct.Decimal.String())
}

func TestComputeOrderBookMetricsOneSided(t *testing.T) {
	_, ok := ComputeOrderBookMetrics([]Level{lvl("100", "2")}, nil)
	assert.False(t, ok)

	_, ok = ComputeOrderBookMetrics(nil, []Level{lvl("101", "1")})
	assert.False(t, ok)
}
