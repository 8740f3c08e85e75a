package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

type Config struct {
	App struct {
		MonitoringIntervalSecs float64 `toml:"monitoring_interval_secs"`
		LogLevel               string  `toml:"log_level"`
		LogFile                string  `toml:"log_file"`
		StatusIntervalSecs     float64 `toml:"status_interval_secs"`
		Console                bool    `toml:"console"`
	} `toml:"app"`

	Markets struct {
		List []string `toml:"list"`
	} `toml:"markets"`

	Hyperliquid struct {
		APIURL             string  `toml:"api_url"`
		WsURL              string  `toml:"ws_url"`
		PollIntervalSecs   float64 `toml:"poll_interval_secs"`
		RequestTimeoutSecs float64 `toml:"request_timeout_secs"`
		RequestsPerSecond  float64 `toml:"requests_per_second"`
		OrderBookEnabled   *bool   `toml:"order_book_enabled"`
	} `toml:"hyperliquid"`

	Storage struct {
		Driver           string `toml:"driver"`
		DatabaseURL      string `toml:"database_url"`
		MinDBConnections int32  `toml:"min_db_connections"`
		MaxDBConnections int32  `toml:"max_db_connections"`
		SQLitePath       string `toml:"sqlite_path"`
	} `toml:"storage"`

	Redis struct {
		Enabled    bool   `toml:"enabled"`
		Addr       string `toml:"addr"`
		Password   string `toml:"password"`
		DB         int    `toml:"db"`
		Prefix     string `toml:"prefix"`
		TTLSeconds int    `toml:"ttl_seconds"`
		Stream     string `toml:"stream"`
		StreamMax  int64  `toml:"stream_max_len"`
	} `toml:"redis"`
}

// Load reads path (when it exists), applies environment overrides and
// defaults, and validates the result. An empty path means environment only.
func Load(path string) (*Config, error) {
	LoadDotenv()

	var cfg Config
	if path != "" {
		if _, err := os.Stat(path); err == nil {
			if _, err := toml.DecodeFile(path, &cfg); err != nil {
				return nil, fmt.Errorf("decode %s: %w", path, err)
			}
		} else if !errors.Is(err, os.ErrNotExist) {
			return nil, err
		}
	}
	if err := applyEnv(&cfg); err != nil {
		return nil, err
	}
	applyDefaults(&cfg)
	if err := validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) MonitoringInterval() time.Duration {
	return secs(c.App.MonitoringIntervalSecs)
}

// StatusInterval is the period of the summary log line. A negative setting
// disables it.
func (c *Config) StatusInterval() time.Duration {
	if c.App.StatusIntervalSecs < 0 {
		return 0
	}
	return secs(c.App.StatusIntervalSecs)
}

func (c *Config) PollInterval() time.Duration {
	return secs(c.Hyperliquid.PollIntervalSecs)
}

func (c *Config) RequestTimeout() time.Duration {
	return secs(c.Hyperliquid.RequestTimeoutSecs)
}

func (c *Config) OrderBookEnabled() bool {
	return c.Hyperliquid.OrderBookEnabled == nil || *c.Hyperliquid.OrderBookEnabled
}

func secs(v float64) time.Duration {
	return time.Duration(v * float64(time.Second))
}

// applyEnv overlays the deployment environment variables on top of the file.
func applyEnv(cfg *Config) error {
	if v, ok := lookup("DATABASE_URL"); ok {
		cfg.Storage.DatabaseURL = v
	}
	if v, ok := lookup("TARGET_MARKETS"); ok {
		cfg.Markets.List = strings.Split(v, ",")
	}
	if v, ok := lookup("HYPERLIQUID_API_URL"); ok {
		cfg.Hyperliquid.APIURL = v
	}
	if v, ok := lookup("STORAGE_DRIVER"); ok {
		cfg.Storage.Driver = v
	}
	if v, ok := lookup("LOG_LEVEL"); ok {
		cfg.App.LogLevel = v
	}
	for _, f := range []struct {
		key string
		dst *float64
	}{
		{"MONITORING_INTERVAL", &cfg.App.MonitoringIntervalSecs},
		{"POLL_INTERVAL", &cfg.Hyperliquid.PollIntervalSecs},
	} {
		v, ok := lookup(f.key)
		if !ok {
			continue
		}
		n, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("%s: %w", f.key, err)
		}
		*f.dst = n
	}
	return nil
}

func lookup(key string) (string, bool) {
	v, ok := os.LookupEnv(key)
	v = strings.TrimSpace(v)
	return v, ok && v != ""
}

func applyDefaults(cfg *Config) {
	if cfg.App.MonitoringIntervalSecs == 0 {
		cfg.App.MonitoringIntervalSecs = 1.0
	}
	if cfg.App.StatusIntervalSecs == 0 {
		cfg.App.StatusIntervalSecs = 60
	}
	if cfg.App.LogLevel == "" {
		cfg.App.LogLevel = "info"
	}
	if cfg.Hyperliquid.APIURL == "" {
		cfg.Hyperliquid.APIURL = "https://api.hyperliquid.xyz/info"
	}
	if cfg.Hyperliquid.WsURL == "" {
		cfg.Hyperliquid.WsURL = "wss://api.hyperliquid.xyz/ws"
	}
	if cfg.Hyperliquid.PollIntervalSecs == 0 {
		cfg.Hyperliquid.PollIntervalSecs = 1.0
	}
	if cfg.Hyperliquid.RequestTimeoutSecs == 0 {
		cfg.Hyperliquid.RequestTimeoutSecs = 5
	}
	if cfg.Hyperliquid.RequestsPerSecond == 0 {
		cfg.Hyperliquid.RequestsPerSecond = 10
	}
	if cfg.Storage.Driver == "" {
		cfg.Storage.Driver = DriverPostgres
	}
	if cfg.Storage.MinDBConnections == 0 {
		cfg.Storage.MinDBConnections = 5
	}
	if cfg.Storage.MaxDBConnections == 0 {
		cfg.Storage.MaxDBConnections = 20
	}
	if cfg.Storage.SQLitePath == "" {
		cfg.Storage.SQLitePath = "data/metrics.db"
	}
	if cfg.Redis.Prefix == "" {
		cfg.Redis.Prefix = "mktmetrics"
	}
	if cfg.Redis.Addr == "" {
		cfg.Redis.Addr = "127.0.0.1:6379"
	}
}

func validate(cfg *Config) error {
	cfg.Markets.List = normalizeSymbols(cfg.Markets.List)
	if len(cfg.Markets.List) == 0 {
		return errors.New("markets.list is empty")
	}
	if cfg.App.MonitoringIntervalSecs < 0 {
		return errors.New("app.monitoring_interval_secs must be positive")
	}
	if cfg.Hyperliquid.PollIntervalSecs < 0 {
		return errors.New("hyperliquid.poll_interval_secs must be positive")
	}
	if cfg.Hyperliquid.RequestTimeoutSecs < 0 {
		return errors.New("hyperliquid.request_timeout_secs must be positive")
	}

	cfg.Storage.Driver = strings.ToLower(strings.TrimSpace(cfg.Storage.Driver))
	switch cfg.Storage.Driver {
	case DriverPostgres:
		if strings.TrimSpace(cfg.Storage.DatabaseURL) == "" {
			return errors.New("storage.database_url (or DATABASE_URL) empty but driver is postgres")
		}
	case DriverSQLite:
		if strings.TrimSpace(cfg.Storage.SQLitePath) == "" {
			return errors.New("storage.sqlite_path empty but driver is sqlite")
		}
	default:
		return fmt.Errorf("storage.driver %q not supported", cfg.Storage.Driver)
	}
	if cfg.Storage.MinDBConnections < 0 || cfg.Storage.MaxDBConnections <= 0 {
		return errors.New("storage db connection limits must be positive")
	}
	if cfg.Storage.MinDBConnections > cfg.Storage.MaxDBConnections {
		return fmt.Errorf("storage.min_db_connections %d exceeds max_db_connections %d",
			cfg.Storage.MinDBConnections, cfg.Storage.MaxDBConnections)
	}

	if cfg.Redis.Enabled && strings.TrimSpace(cfg.Redis.Addr) == "" {
		return errors.New("redis.addr empty but enabled")
	}
	return nil
}

func normalizeSymbols(in []string) []string {
	out := make([]string, 0, len(in))
	seen := map[string]struct{}{}
	for _, s := range in {
		u := strings.ToUpper(strings.TrimSpace(s))
		if u == "" {
			continue
		}
		if _, ok := seen[u]; ok {
			continue
		}
		seen[u] = struct{}{}
		out = append(out, u)
	}
	return out
}
