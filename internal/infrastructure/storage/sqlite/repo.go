package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"mktmetrics/internal/application/port"
	"mktmetrics/internal/domain"
	"mktmetrics/internal/infrastructure/storage"
)

// Store keeps per-coin metrics tables in one SQLite file. Decimals are
// stored as TEXT to keep them exact; timestamps as unix microseconds.
type Store struct {
	db *sql.DB

	mu          sync.Mutex
	provisioned map[string]struct{}
	ddlRuns     int
}

func New(path string) (*Store, error) {
	// ensure directory exists
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create sqlite dir: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("open sqlite %s: %w", path, err)
	}
	return &Store{db: db, provisioned: make(map[string]struct{})}, nil
}

func (s *Store) Close() error { return s.db.Close() }

func (s *Store) EnsureTable(ctx context.Context, coin string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ensureLocked(ctx, coin)
}

func (s *Store) ensureLocked(ctx context.Context, coin string) error {
	name := storage.TableName(coin)
	if _, ok := s.provisioned[name]; ok {
		return nil
	}
	s.ddlRuns++
	if _, err := s.db.ExecContext(ctx, createTableSQL(coin)); err != nil {
		return fmt.Errorf("create table %s: %w", name, err)
	}
	s.provisioned[name] = struct{}{}
	log.Debug().Str("coin", coin).Str("table", name).Msg("sqlite metrics table ready")
	return nil
}

func (s *Store) Insert(ctx context.Context, m *domain.MarketMetrics) error {
	s.mu.Lock()
	_, ok := s.provisioned[storage.TableName(m.Coin)]
	var err error
	if !ok {
		err = s.ensureLocked(ctx, m.Coin)
	}
	s.mu.Unlock()
	if err != nil {
		return err
	}

	args := make([]any, 0, 2+len(storage.DecimalColumns)+len(storage.IntColumns))
	args = append(args, m.Timestamp.UTC().UnixMicro(), m.Coin)
	for _, c := range storage.DecimalColumns {
		args = append(args, *c.Field(m))
	}
	for _, c := range storage.IntColumns {
		args = append(args, *c.Field(m))
	}

	if _, err := s.db.ExecContext(ctx, insertSQL(m.Coin), args...); err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("insert %s at %s: %w", m.Coin, m.Timestamp.Format(time.RFC3339Nano), port.ErrDuplicateSample)
		}
		return fmt.Errorf("insert %s: %w", m.Coin, err)
	}
	return nil
}

// Latest returns the newest record for coin, or sql.ErrNoRows.
func (s *Store) Latest(ctx context.Context, coin string) (*domain.MarketMetrics, error) {
	names := append([]string{"timestamp", "coin"}, storage.MetricColumnNames()...)
	q := fmt.Sprintf("SELECT %s FROM %s ORDER BY timestamp DESC LIMIT 1",
		strings.Join(names, ", "), quote(storage.TableName(coin)))

	m := &domain.MarketMetrics{}
	var ts int64
	ints := make([]sql.NullInt32, len(storage.IntColumns))
	dest := []any{&ts, &m.Coin}
	for _, c := range storage.DecimalColumns {
		dest = append(dest, c.Field(m))
	}
	for i := range ints {
		dest = append(dest, &ints[i])
	}

	if err := s.db.QueryRowContext(ctx, q).Scan(dest...); err != nil {
		return nil, err
	}
	m.Timestamp = time.UnixMicro(ts).UTC()
	for i, c := range storage.IntColumns {
		if ints[i].Valid {
			v := ints[i].Int32
			*c.Field(m) = &v
		}
	}
	return m, nil
}

// Count returns the number of stored records for coin.
func (s *Store) Count(ctx context.Context, coin string) (int64, error) {
	var n int64
	err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM "+quote(storage.TableName(coin))).Scan(&n)
	return n, err
}

func quote(ident string) string {
	return `"` + strings.ReplaceAll(ident, `"`, `""`) + `"`
}

func createTableSQL(coin string) string {
	table := quote(storage.TableName(coin))
	var b strings.Builder
	fmt.Fprintf(&b, "CREATE TABLE IF NOT EXISTS %s (\n  id INTEGER PRIMARY KEY AUTOINCREMENT,\n  timestamp INTEGER NOT NULL,\n  coin TEXT NOT NULL", table)
	for _, c := range storage.DecimalColumns {
		fmt.Fprintf(&b, ",\n  %s TEXT", c.Name)
	}
	for _, c := range storage.IntColumns {
		fmt.Fprintf(&b, ",\n  %s INTEGER", c.Name)
	}
	b.WriteString(",\n  created_at INTEGER NOT NULL DEFAULT (CAST(strftime('%s','now') AS INTEGER)),\n  UNIQUE (timestamp, coin)\n);\n")

	byTime, byCoinTime := storage.IndexNames(coin)
	fmt.Fprintf(&b, "CREATE INDEX IF NOT EXISTS %s ON %s (timestamp DESC);\n", quote(byTime), table)
	fmt.Fprintf(&b, "CREATE INDEX IF NOT EXISTS %s ON %s (coin, timestamp DESC);\n", quote(byCoinTime), table)
	return b.String()
}

func insertSQL(coin string) string {
	names := append([]string{"timestamp", "coin"}, storage.MetricColumnNames()...)
	marks := strings.TrimSuffix(strings.Repeat("?, ", len(names)), ", ")
	return fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		quote(storage.TableName(coin)), strings.Join(names, ", "), marks)
}

func isUniqueViolation(err error) bool {
	var sqlErr *sqlite.Error
	if errors.As(err, &sqlErr) && sqlErr.Code() == sqlite3.SQLITE_CONSTRAINT_UNIQUE {
		return true
	}
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}

var _ port.MetricsStore = (*Store)(nil)
