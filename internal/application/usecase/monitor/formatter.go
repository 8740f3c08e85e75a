package monitor

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"mktmetrics/internal/domain"
)

const (
	ansiReset  = "\033[0m"
	ansiRed    = "\033[31m"
	ansiGreen  = "\033[32m"
	ansiYellow = "\033[33m"
	ansiDim    = "\033[2m"
)

type Formatter struct {
	Color bool
}

func NewFormatter(color bool) *Formatter {
	return &Formatter{Color: color}
}

func (f *Formatter) colorize(s, c string) string {
	if !f.Color {
		return s
	}
	return c + s + ansiReset
}

// RenderStatus renders one line summarising every coin in st.
func (f *Formatter) RenderStatus(st *State) string {
	snap := st.Snapshot()

	var sb strings.Builder
	sb.WriteString(f.colorize("[MKT] ", ansiDim))
	for i, coin := range st.Symbols() {
		if i > 0 {
			sb.WriteString(f.colorize("  ||  ", ansiDim))
		}
		cs := snap[coin]

		px := "--"
		col := ansiYellow
		if cs.HasMark {
			px = cs.LastMark.String()
			switch cs.Dir {
			case DirUp:
				col = ansiGreen
			case DirDown:
				col = ansiRed
			}
		}
		book := "book:--"
		if cs.HasBook {
			book = "book:ok"
		}

		sb.WriteString(coin)
		sb.WriteString(" ")
		sb.WriteString(f.colorize(px, col))
		fmt.Fprintf(&sb, " ok=%d dup=%d err=%d %s", cs.Stored, cs.Duplicates, cs.Failures, book)
	}
	return sb.String()
}

// RenderSample renders one record as a single line. Absent values print "--".
func (f *Formatter) RenderSample(m *domain.MarketMetrics) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "%s %s", m.Coin, m.Timestamp.Format("2006-01-02T15:04:05.000000Z07:00"))
	fmt.Fprintf(&sb, " mark=%s oracle=%s funding%%=%s oi=%s vol24h=%s",
		show(m.MarkPrice), show(m.OraclePrice), show(m.FundingRatePct), show(m.OpenInterest), show(m.Volume24h))
	fmt.Fprintf(&sb, " bid=%s ask=%s mid=%s spread=%s (%s%%)",
		show(m.BestBid), show(m.BestAsk), show(m.MidPrice), show(m.Spread), show(m.SpreadPct))
	fmt.Fprintf(&sb, " depth5=%s/%s depth10=%s/%s depth25=%s/%s",
		show(m.BidDepth5Pct), show(m.AskDepth5Pct),
		show(m.BidDepth10Pct), show(m.AskDepth10Pct),
		show(m.BidDepth25Pct), show(m.AskDepth25Pct))
	return sb.String()
}

func show(d decimal.NullDecimal) string {
	if !d.Valid {
		return "--"
	}
	return d.Decimal.String()
}
