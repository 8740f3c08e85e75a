package orderbook

import (
	"sort"
	"strings"
	"sync"

	"mktmetrics/internal/application/port"
	"mktmetrics/internal/domain"
)

// Memory holds the latest snapshot per coin. Snapshots are replaced whole on
// Update and never mutated afterwards, so readers may keep the ladders they
// receive.
type Memory struct {
	mu    sync.RWMutex
	books map[string]domain.BookSnapshot
}

func NewMemory() *Memory {
	return &Memory{books: make(map[string]domain.BookSnapshot)}
}

// Update replaces the snapshot for s.Coin.
func (m *Memory) Update(s domain.BookSnapshot) {
	key := normalize(s.Coin)
	if key == "" {
		return
	}
	m.mu.Lock()
	m.books[key] = s
	m.mu.Unlock()
}

func (m *Memory) Snapshot(coin string) (domain.BookSnapshot, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.books[normalize(coin)]
	return s, ok
}

// Coins lists coins with a snapshot, sorted.
func (m *Memory) Coins() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]string, 0, len(m.books))
	for k := range m.books {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func normalize(coin string) string {
	return strings.ToUpper(strings.TrimSpace(coin))
}

var _ port.OrderBookSource = (*Memory)(nil)
