package domain

import "github.com/shopspring/decimal"

var (
	band5  = decimal.RequireFromString("0.05")
	band10 = decimal.RequireFromString("0.10")
	band25 = decimal.RequireFromString("0.25")
)

// Depth is resting notional (price * size) within ±5/10/25% of mid.
type Depth struct {
	Bid5, Ask5   decimal.Decimal
	Bid10, Ask10 decimal.Decimal
	Bid25, Ask25 decimal.Decimal
}

func (d Depth) Total5() decimal.Decimal  { return d.Bid5.Add(d.Ask5) }
func (d Depth) Total10() decimal.Decimal { return d.Bid10.Add(d.Ask10) }
func (d Depth) Total25() decimal.Decimal { return d.Bid25.Add(d.Ask25) }

// ComputeDepth sums notional per band. A bid counts when its price is at or
// above mid*(1-p), an ask when at or below mid*(1+p). Levels are filtered by
// threshold, so input order does not affect the result.
func ComputeDepth(bids, asks []Level, mid decimal.Decimal) Depth {
	bid5, ask5 := bandDepth(bids, asks, mid, band5)
	bid10, ask10 := bandDepth(bids, asks, mid, band10)
	bid25, ask25 := bandDepth(bids, asks, mid, band25)
	return Depth{
		Bid5: bid5, Ask5: ask5,
		Bid10: bid10, Ask10: ask10,
		Bid25: bid25, Ask25: ask25,
	}
}

func bandDepth(bids, asks []Level, mid, pct decimal.Decimal) (bid, ask decimal.Decimal) {
	bidFloor := mid.Mul(decimal.NewFromInt(1).Sub(pct))
	askCeil := mid.Mul(decimal.NewFromInt(1).Add(pct))

	bid = decimal.Zero
	for _, l := range bids {
		if l.Price.GreaterThanOrEqual(bidFloor) {
			bid = bid.Add(l.Price.Mul(l.Size))
		}
	}
	ask = decimal.Zero
	for _, l := range asks {
		if l.Price.LessThanOrEqual(askCeil) {
			ask = ask.Add(l.Price.Mul(l.Size))
		}
	}
	return bid, ask
}
