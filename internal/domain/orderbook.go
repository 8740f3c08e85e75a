package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

var (
	two     = decimal.NewFromInt(2)
	hundred = decimal.NewFromInt(100)
)

// Level is one resting price level.
type Level struct {
	Price decimal.Decimal
	Size  decimal.Decimal
}

// BookSnapshot is a read-only projection of one coin's book: bids best
// (highest) first, asks best (lowest) first.
type BookSnapshot struct {
	Coin string
	Bids []Level
	Asks []Level
	Time time.Time
}

// OrderBookMetrics holds the figures derived from a two-sided snapshot.
type OrderBookMetrics struct {
	BestBid   decimal.Decimal
	BestAsk   decimal.Decimal
	MidPrice  decimal.Decimal
	Spread    decimal.Decimal
	SpreadPct decimal.Decimal
	TotalBids int
	TotalAsks int
	Depth     Depth
}

// ComputeOrderBookMetrics derives top-of-book, spread and depth figures. It
// returns false when either ladder is empty.
func ComputeOrderBookMetrics(bids, asks []Level) (OrderBookMetrics, bool) {
	if len(bids) == 0 || len(asks) == 0 {
		return OrderBookMetrics{}, false
	}

	bestBid := bids[0].Price
	bestAsk := asks[0].Price
	mid := bestBid.Add(bestAsk).Div(two)
	if !mid.IsPositive() {
		return OrderBookMetrics{}, false
	}
	spread := bestAsk.Sub(bestBid)

	return OrderBookMetrics{
		BestBid:   bestBid,
		BestAsk:   bestAsk,
		MidPrice:  mid,
		Spread:    spread,
		SpreadPct: spread.Div(mid).Mul(hundred),
		TotalBids: len(bids),
		TotalAsks: len(asks),
		Depth:     ComputeDepth(bids, asks, mid),
	}, true
}
