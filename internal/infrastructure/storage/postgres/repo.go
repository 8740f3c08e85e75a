package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"mktmetrics/internal/application/port"
	"mktmetrics/internal/domain"
	"mktmetrics/internal/infrastructure/storage"
)

// Schema holds every per-coin metrics table.
const Schema = "market_metrics"

const uniqueViolation = "23505"

// execer is the subset of *pgxpool.Pool the store writes through.
type execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

type Store struct {
	db    execer
	close func()

	mu          sync.Mutex
	provisioned map[string]struct{}
}

// New opens a pool bounded by minConns/maxConns, pings it and creates the
// metrics schema.
func New(ctx context.Context, url string, minConns, maxConns int32) (*Store, error) {
	cfg, err := pgxpool.ParseConfig(url)
	if err != nil {
		return nil, fmt.Errorf("parse database url: %w", err)
	}
	if minConns > 0 {
		cfg.MinConns = minConns
	}
	if maxConns > 0 {
		cfg.MaxConns = maxConns
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	s := newStore(pool, pool.Close)
	if _, err := pool.Exec(ctx, "CREATE SCHEMA IF NOT EXISTS "+pgx.Identifier{Schema}.Sanitize()); err != nil {
		pool.Close()
		return nil, fmt.Errorf("create schema %s: %w", Schema, err)
	}
	log.Info().Int32("min_conns", cfg.MinConns).Int32("max_conns", cfg.MaxConns).Msg("postgres pool ready")
	return s, nil
}

func newStore(db execer, closeFn func()) *Store {
	return &Store{db: db, close: closeFn, provisioned: make(map[string]struct{})}
}

func (s *Store) Close() error {
	if s.close != nil {
		s.close()
	}
	return nil
}

// EnsureTable creates the coin's table and indexes once per process.
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
	for _, stmt := range createTableSQL(coin) {
		if _, err := s.db.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("create table %s: %w", name, err)
		}
	}
	s.provisioned[name] = struct{}{}
	log.Info().Str("coin", coin).Str("table", Schema+"."+name).Msg("metrics table ready")
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

	if _, err := s.db.Exec(ctx, insertSQL(m.Coin), insertArgs(m)...); err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("insert %s at %s: %w", m.Coin, m.Timestamp.Format(time.RFC3339Nano), port.ErrDuplicateSample)
		}
		return fmt.Errorf("insert %s: %w", m.Coin, err)
	}
	return nil
}

func qualified(coin string) string {
	return pgx.Identifier{Schema, storage.TableName(coin)}.Sanitize()
}

func createTableSQL(coin string) []string {
	table := qualified(coin)
	var cols strings.Builder
	cols.WriteString("id BIGSERIAL PRIMARY KEY,\n  timestamp TIMESTAMPTZ NOT NULL,\n  coin VARCHAR(20) NOT NULL")
	for _, c := range storage.DecimalColumns {
		fmt.Fprintf(&cols, ",\n  %s %s", c.Name, c.PGType)
	}
	for _, c := range storage.IntColumns {
		fmt.Fprintf(&cols, ",\n  %s INTEGER", c.Name)
	}
	cols.WriteString(",\n  created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),\n  UNIQUE (timestamp, coin)")

	byTime, byCoinTime := storage.IndexNames(coin)
	return []string{
		fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (\n  %s\n)", table, cols.String()),
		fmt.Sprintf("CREATE INDEX IF NOT EXISTS %s ON %s (timestamp DESC)", pgx.Identifier{byTime}.Sanitize(), table),
		fmt.Sprintf("CREATE INDEX IF NOT EXISTS %s ON %s (coin, timestamp DESC)", pgx.Identifier{byCoinTime}.Sanitize(), table),
	}
}

func insertSQL(coin string) string {
	names := append([]string{"timestamp", "coin"}, storage.MetricColumnNames()...)
	params := make([]string, len(names))
	for i := range names {
		params[i] = fmt.Sprintf("$%d", i+1)
	}
	return fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		qualified(coin), strings.Join(names, ", "), strings.Join(params, ", "))
}

func insertArgs(m *domain.MarketMetrics) []any {
	args := make([]any, 0, 2+len(storage.DecimalColumns)+len(storage.IntColumns))
	args = append(args, m.Timestamp.UTC(), m.Coin)
	for _, c := range storage.DecimalColumns {
		args = append(args, numeric(*c.Field(m)))
	}
	for _, c := range storage.IntColumns {
		if v := *c.Field(m); v != nil {
			args = append(args, *v)
		} else {
			args = append(args, nil)
		}
	}
	return args
}

func numeric(d decimal.NullDecimal) pgtype.Numeric {
	if !d.Valid {
		return pgtype.Numeric{}
	}
	return pgtype.Numeric{Int: d.Decimal.Coefficient(), Exp: d.Decimal.Exponent(), Valid: true}
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}

var _ port.MetricsStore = (*Store)(nil)
