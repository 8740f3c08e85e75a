package monitor

import (
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"mktmetrics/internal/domain"
)

type Dir int

const (
	DirSame Dir = 0
	DirUp   Dir = +1
	DirDown Dir = -1
)

// CoinStats is the running tally for one coin.
type CoinStats struct {
	Stored     int64
	Duplicates int64
	Failures   int64
	LastAt     time.Time
	LastMark   decimal.Decimal
	HasMark    bool
	Dir        Dir
	HasBook    bool
}

type State struct {
	mu sync.Mutex

	order []string
	coins map[string]*CoinStats
}

func NewState(coins []string) *State {
	order := make([]string, 0, len(coins))
	stats := make(map[string]*CoinStats, len(coins))
	for _, coin := range coins {
		u := strings.ToUpper(strings.TrimSpace(coin))
		if u == "" {
			continue
		}
		if _, dup := stats[u]; dup {
			continue
		}
		order = append(order, u)
		stats[u] = &CoinStats{}
	}
	return &State{order: order, coins: stats}
}

func (s *State) Symbols() []string {
	return s.order
}

// Apply records the outcome of one sample. m may be nil when no record was
// built. Returns false for coins the state does not track.
func (s *State) Apply(coin string, outcome Outcome, m *domain.MarketMetrics) bool {
	coin = strings.ToUpper(strings.TrimSpace(coin))

	s.mu.Lock()
	defer s.mu.Unlock()

	st := s.coins[coin]
	if st == nil {
		return false
	}

	switch outcome {
	case OutcomeStored:
		st.Stored++
	case OutcomeDuplicate:
		st.Duplicates++
	default:
		st.Failures++
	}
	if m == nil || outcome != OutcomeStored {
		return true
	}

	st.LastAt = m.Timestamp
	st.HasBook = m.HasOrderBook()
	if !m.MarkPrice.Valid {
		return true
	}
	mark := m.MarkPrice.Decimal
	switch {
	case !st.HasMark:
		st.Dir = DirSame
	case mark.GreaterThan(st.LastMark):
		st.Dir = DirUp
	case mark.LessThan(st.LastMark):
		st.Dir = DirDown
	default:
		st.Dir = DirSame
	}
	st.LastMark = mark
	st.HasMark = true
	return true
}

// Stats returns a copy of coin's tally.
func (s *State) Stats(coin string) (CoinStats, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := s.coins[strings.ToUpper(strings.TrimSpace(coin))]
	if st == nil {
		return CoinStats{}, false
	}
	return *st, true
}

func (s *State) Snapshot() map[string]CoinStats {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make(map[string]CoinStats, len(s.coins))
	for k, v := range s.coins {
		out[k] = *v
	}
	return out
}
