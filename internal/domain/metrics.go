package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// MarketMetrics is one persisted sample for a coin. Every metric is optional:
// price-feed fields stay absent until the feed knows the coin, order-book
// fields stay absent until a two-sided snapshot exists.
type MarketMetrics struct {
	Coin      string
	Timestamp time.Time

	// price feed
	MarkPrice      decimal.NullDecimal
	OraclePrice    decimal.NullDecimal
	FundingRatePct decimal.NullDecimal
	OpenInterest   decimal.NullDecimal
	Volume24h      decimal.NullDecimal
	Premium        decimal.NullDecimal
	ImpactPxBid    decimal.NullDecimal
	ImpactPxAsk    decimal.NullDecimal

	// order book
	MidPrice        decimal.NullDecimal
	BestBid         decimal.NullDecimal
	BestAsk         decimal.NullDecimal
	Spread          decimal.NullDecimal
	SpreadPct       decimal.NullDecimal
	BidDepth5Pct    decimal.NullDecimal
	AskDepth5Pct    decimal.NullDecimal
	TotalDepth5Pct  decimal.NullDecimal
	BidDepth10Pct   decimal.NullDecimal
	AskDepth10Pct   decimal.NullDecimal
	TotalDepth10Pct decimal.NullDecimal
	BidDepth25Pct   decimal.NullDecimal
	AskDepth25Pct   decimal.NullDecimal
	TotalDepth25Pct decimal.NullDecimal

	// reserved for latency instrumentation
	NodeLatencyMs      *int32
	WebsocketLatencyMs *int32
	TotalLatencyMs     *int32
}

// NewMarketMetrics returns an empty record for coin stamped at ts.
func NewMarketMetrics(coin string, ts time.Time) *MarketMetrics {
	return &MarketMetrics{Coin: coin, Timestamp: ts}
}

// PriceFeedEntry is the cached price-feed view of one market. It is replaced
// wholesale on every refresh, never patched.
type PriceFeedEntry struct {
	Coin           string
	MarkPrice      decimal.Decimal
	OraclePrice    decimal.Decimal
	MidPrice       decimal.Decimal
	FundingRatePct decimal.Decimal
	OpenInterest   decimal.Decimal
	Volume24h      decimal.Decimal
	Premium        decimal.Decimal
	ImpactPxBid    decimal.NullDecimal
	ImpactPxAsk    decimal.NullDecimal
}

// MergePriceFeed copies the price-feed fields into m. The feed's mid price is
// not copied; mid price is owned by the order book side.
func (m *MarketMetrics) MergePriceFeed(e PriceFeedEntry) {
	m.MarkPrice = present(e.MarkPrice)
	m.OraclePrice = present(e.OraclePrice)
	m.FundingRatePct = present(e.FundingRatePct)
	m.OpenInterest = present(e.OpenInterest)
	m.Volume24h = present(e.Volume24h)
	m.Premium = present(e.Premium)
	m.ImpactPxBid = e.ImpactPxBid
	m.ImpactPxAsk = e.ImpactPxAsk
}

// MergeOrderBook copies the order-book derived fields into m.
func (m *MarketMetrics) MergeOrderBook(ob OrderBookMetrics) {
	m.BestBid = present(ob.BestBid)
	m.BestAsk = present(ob.BestAsk)
	m.MidPrice = present(ob.MidPrice)
	m.Spread = present(ob.Spread)
	m.SpreadPct = present(ob.SpreadPct)
	m.BidDepth5Pct = present(ob.Depth.Bid5)
	m.AskDepth5Pct = present(ob.Depth.Ask5)
	m.TotalDepth5Pct = present(ob.Depth.Total5())
	m.BidDepth10Pct = present(ob.Depth.Bid10)
	m.AskDepth10Pct = present(ob.Depth.Ask10)
	m.TotalDepth10Pct = present(ob.Depth.Total10())
	m.BidDepth25Pct = present(ob.Depth.Bid25)
	m.AskDepth25Pct = present(ob.Depth.Ask25)
	m.TotalDepth25Pct = present(ob.Depth.Total25())
}

// HasPriceFeed reports whether any price-feed field was merged.
func (m *MarketMetrics) HasPriceFeed() bool {
	return m.MarkPrice.Valid
}

// HasOrderBook reports whether order-book fields were merged.
func (m *MarketMetrics) HasOrderBook() bool {
	return m.MidPrice.Valid
}

func present(d decimal.Decimal) decimal.NullDecimal {
	return decimal.NullDecimal{Decimal: d, Valid: true}
}
