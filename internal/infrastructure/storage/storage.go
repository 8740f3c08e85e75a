package storage

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"mktmetrics/internal/application/port"
	"mktmetrics/internal/domain"
)

// DecimalColumn binds a numeric column to its MarketMetrics field.
type DecimalColumn struct {
	Name   string
	PGType string
	Field  func(m *domain.MarketMetrics) *decimal.NullDecimal
}

// IntColumn binds an integer column to its MarketMetrics field.
type IntColumn struct {
	Name  string
	Field func(m *domain.MarketMetrics) **int32
}

// DecimalColumns is the insert order of every numeric metric column.
var DecimalColumns = []DecimalColumn{
	{"mark_price", "NUMERIC(20, 8)", func(m *domain.MarketMetrics) *decimal.NullDecimal { return &m.MarkPrice }},
	{"oracle_price", "NUMERIC(20, 8)", func(m *domain.MarketMetrics) *decimal.NullDecimal { return &m.OraclePrice }},
	{"mid_price", "NUMERIC(20, 8)", func(m *domain.MarketMetrics) *decimal.NullDecimal { return &m.MidPrice }},
	{"best_bid", "NUMERIC(20, 8)", func(m *domain.MarketMetrics) *decimal.NullDecimal { return &m.BestBid }},
	{"best_ask", "NUMERIC(20, 8)", func(m *domain.MarketMetrics) *decimal.NullDecimal { return &m.BestAsk }},
	{"spread", "NUMERIC(20, 8)", func(m *domain.MarketMetrics) *decimal.NullDecimal { return &m.Spread }},
	{"spread_pct", "NUMERIC(10, 6)", func(m *domain.MarketMetrics) *decimal.NullDecimal { return &m.SpreadPct }},
	{"funding_rate_pct", "NUMERIC(12, 10)", func(m *domain.MarketMetrics) *decimal.NullDecimal { return &m.FundingRatePct }},
	{"open_interest", "NUMERIC(24, 8)", func(m *domain.MarketMetrics) *decimal.NullDecimal { return &m.OpenInterest }},
	{"volume_24h", "NUMERIC(24, 8)", func(m *domain.MarketMetrics) *decimal.NullDecimal { return &m.Volume24h }},
	{"bid_depth_5pct", "NUMERIC(24, 8)", func(m *domain.MarketMetrics) *decimal.NullDecimal { return &m.BidDepth5Pct }},
	{"ask_depth_5pct", "NUMERIC(24, 8)", func(m *domain.MarketMetrics) *decimal.NullDecimal { return &m.AskDepth5Pct }},
	{"total_depth_5pct", "NUMERIC(24, 8)", func(m *domain.MarketMetrics) *decimal.NullDecimal { return &m.TotalDepth5Pct }},
	{"bid_depth_10pct", "NUMERIC(24, 8)", func(m *domain.MarketMetrics) *decimal.NullDecimal { return &m.BidDepth10Pct }},
	{"ask_depth_10pct", "NUMERIC(24, 8)", func(m *domain.MarketMetrics) *decimal.NullDecimal { return &m.AskDepth10Pct }},
	{"total_depth_10pct", "NUMERIC(24, 8)", func(m *domain.MarketMetrics) *decimal.NullDecimal { return &m.TotalDepth10Pct }},
	{"bid_depth_25pct", "NUMERIC(24, 8)", func(m *domain.MarketMetrics) *decimal.NullDecimal { return &m.BidDepth25Pct }},
	{"ask_depth_25pct", "NUMERIC(24, 8)", func(m *domain.MarketMetrics) *decimal.NullDecimal { return &m.AskDepth25Pct }},
	{"total_depth_25pct", "NUMERIC(24, 8)", func(m *domain.MarketMetrics) *decimal.NullDecimal { return &m.TotalDepth25Pct }},
	{"premium", "NUMERIC(12, 10)", func(m *domain.MarketMetrics) *decimal.NullDecimal { return &m.Premium }},
	{"impact_px_bid", "NUMERIC(20, 8)", func(m *domain.MarketMetrics) *decimal.NullDecimal { return &m.ImpactPxBid }},
	{"impact_px_ask", "NUMERIC(20, 8)", func(m *domain.MarketMetrics) *decimal.NullDecimal { return &m.ImpactPxAsk }},
}

// IntColumns follow DecimalColumns in insert order.
var IntColumns = []IntColumn{
	{"node_latency_ms", func(m *domain.MarketMetrics) **int32 { return &m.NodeLatencyMs }},
	{"websocket_latency_ms", func(m *domain.MarketMetrics) **int32 { return &m.WebsocketLatencyMs }},
	{"total_latency_ms", func(m *domain.MarketMetrics) **int32 { return &m.TotalLatencyMs }},
}

// MetricColumnNames returns decimal then integer column names.
func MetricColumnNames() []string {
	out := make([]string, 0, len(DecimalColumns)+len(IntColumns))
	for _, c := range DecimalColumns {
		out = append(out, c.Name)
	}
	for _, c := range IntColumns {
		out = append(out, c.Name)
	}
	return out
}

// CoinKey is the identifier-safe, lower-cased form of coin: anything outside
// [a-z0-9_] becomes '_'.
func CoinKey(coin string) string {
	coin = strings.ToLower(strings.TrimSpace(coin))
	var b strings.Builder
	b.Grow(len(coin))
	for _, r := range coin {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '_':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}
	return b.String()
}

// TableName is the per-coin table name, e.g. "link_metrics_raw".
func TableName(coin string) string {
	return CoinKey(coin) + "_metrics_raw"
}

// IndexNames returns the timestamp and (coin, timestamp) index names.
func IndexNames(coin string) (byTime, byCoinTime string) {
	key := CoinKey(coin)
	return "idx_" + key + "_metrics_timestamp", "idx_" + key + "_metrics_coin_timestamp"
}

// Memory is an in-process MetricsStore with the same uniqueness rule as the
// SQL stores.
type Memory struct {
	mu      sync.Mutex
	tables  map[string][]*domain.MarketMetrics
	seen    map[string]struct{}
	ensured int
}

func NewMemory() *Memory {
	return &Memory{
		tables: make(map[string][]*domain.MarketMetrics),
		seen:   make(map[string]struct{}),
	}
}

func (s *Memory) EnsureTable(ctx context.Context, coin string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	name := TableName(coin)
	if _, ok := s.tables[name]; !ok {
		s.tables[name] = nil
		s.ensured++
	}
	return nil
}

func (s *Memory) Insert(ctx context.Context, m *domain.MarketMetrics) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := m.Coin + "|" + m.Timestamp.UTC().Format(time.RFC3339Nano)
	if _, dup := s.seen[key]; dup {
		return fmt.Errorf("insert %s at %s: %w", m.Coin, m.Timestamp.Format(time.RFC3339Nano), port.ErrDuplicateSample)
	}
	s.seen[key] = struct{}{}
	cp := *m
	name := TableName(m.Coin)
	s.tables[name] = append(s.tables[name], &cp)
	return nil
}

// Records returns a copy of coin's rows in insert order.
func (s *Memory) Records(coin string) []*domain.MarketMetrics {
	s.mu.Lock()
	defer s.mu.Unlock()
	rows := s.tables[TableName(coin)]
	out := make([]*domain.MarketMetrics, len(rows))
	copy(out, rows)
	return out
}

// Tables lists provisioned or written tables, sorted.
func (s *Memory) Tables() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.tables))
	for name := range s.tables {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

func (s *Memory) Close() error { return nil }

var _ port.MetricsStore = (*Memory)(nil)
