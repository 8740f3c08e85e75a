package hyperliquid

import (
	"strings"

	"github.com/shopspring/decimal"

	"mktmetrics/internal/domain"
)

var hundred = decimal.NewFromInt(100)

// ParseMarkets zips the universe with the context array by index. The two
// arrays are matched purely by position; when their lengths differ the
// surplus of the longer one is ignored.
//
// Positional matching trusts upstream ordering. Nothing in the payload lets us
// verify that ctxs[i] really belongs to universe[i].
func ParseMarkets(universe []UniverseEntry, ctxs []AssetCtx) map[string]domain.PriceFeedEntry {
	n := min(len(universe), len(ctxs))
	out := make(map[string]domain.PriceFeedEntry, n)
	for i := 0; i < n; i++ {
		name := strings.TrimSpace(universe[i].Name)
		if name == "" {
			continue
		}
		out[name] = entryFromCtx(name, ctxs[i])
	}
	return out
}

func entryFromCtx(coin string, c AssetCtx) domain.PriceFeedEntry {
	mark := c.MarkPx.DecimalOrZero()
	return domain.PriceFeedEntry{
		Coin:           coin,
		MarkPrice:      mark,
		OraclePrice:    c.OraclePx.DecimalOrZero(),
		MidPrice:       c.MidPx.DecimalOrZero(),
		FundingRatePct: c.Funding.DecimalOrZero().Mul(hundred),
		// open interest arrives in contracts; store notional
		OpenInterest: c.OpenInterest.DecimalOrZero().Mul(mark),
		Volume24h:    c.DayNtlVlm.DecimalOrZero(),
		Premium:      c.Premium.DecimalOrZero(),
		ImpactPxBid:  impactPx(c.ImpactPxs, 0),
		ImpactPxAsk:  impactPx(c.ImpactPxs, 1),
	}
}

func impactPx(pxs []Num, i int) decimal.NullDecimal {
	if i >= len(pxs) {
		return decimal.NullDecimal{}
	}
	d, ok := pxs[i].Decimal()
	if !ok {
		return decimal.NullDecimal{}
	}
	return decimal.NewNullDecimal(d)
}
