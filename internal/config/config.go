// Package config defines the top-level configuration for the cycle scanner
// and provides validation helpers.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/alanyoungcy/cyclebot/internal/domain"
)

// Config is the root configuration structure. Fields are populated from a TOML
// or YAML file and then optionally overridden by CYCLEBOT_* environment
// variables. It is read-only once the run starts.
type Config struct {
	Engine    EngineConfig     `toml:"engine" yaml:"engine"`
	Graph     GraphConfig      `toml:"graph" yaml:"graph"`
	Exchanges []ExchangeConfig `toml:"exchanges" yaml:"exchanges"`
	Redis     RedisConfig      `toml:"redis" yaml:"redis"`
	Postgres  PostgresConfig   `toml:"postgres" yaml:"postgres"`
	SQLite    SQLiteConfig     `toml:"sqlite" yaml:"sqlite"`
	S3        S3Config         `toml:"s3" yaml:"s3"`
	Server    ServerConfig     `toml:"server" yaml:"server"`
	Metrics   MetricsConfig    `toml:"metrics" yaml:"metrics"`
	Notify    NotifyConfig     `toml:"notify" yaml:"notify"`
	Executor  ExecutorConfig   `toml:"executor" yaml:"executor"`
	Mode      string           `toml:"mode" yaml:"mode"`
	LogLevel  string           `toml:"log_level" yaml:"log_level"`
}

// EngineConfig holds detection and loop parameters.
type EngineConfig struct {
	// Strategy selects the cycle detector: "bf" or "tri".
	Strategy        string   `toml:"strategy" yaml:"strategy"`
	MinHops         int      `toml:"min_hops" yaml:"min_hops"`
	MaxHops         int      `toml:"max_hops" yaml:"max_hops"`
	MinNet          float64  `toml:"min_net" yaml:"min_net"`
	Top             int      `toml:"top" yaml:"top"`
	DetectTimeout   duration `toml:"detect_timeout" yaml:"detect_timeout"`
	IterationBudget duration `toml:"iteration_budget" yaml:"iteration_budget"`
	// Repeat is the number of iterations to run; 0 runs until shutdown.
	Repeat      int      `toml:"repeat" yaml:"repeat"`
	RepeatSleep duration `toml:"repeat_sleep" yaml:"repeat_sleep"`
	Simulate    bool     `toml:"simulate" yaml:"simulate"`
	// InitialBaseline seeds the simulated wallet compounded in simulate mode.
	InitialBaseline float64 `toml:"initial_baseline" yaml:"initial_baseline"`
}

// GraphConfig holds graph building filters shared by all exchanges.
type GraphConfig struct {
	Quotes           []string `toml:"quotes" yaml:"quotes"`
	FeeBps           uint32   `toml:"fee_bps" yaml:"fee_bps"`
	MinQuoteVol      float64  `toml:"min_quote_vol" yaml:"min_quote_vol"`
	RequireTopOfBook bool     `toml:"require_topofbook" yaml:"require_topofbook"`
	RequireQuote     bool     `toml:"require_quote" yaml:"require_quote"`
	RequireDualQuote bool     `toml:"require_dual_quote" yaml:"require_dual_quote"`
	CurrenciesLimit  int      `toml:"currencies_limit" yaml:"currencies_limit"`
	RankByQVol       bool     `toml:"rank_by_qvol" yaml:"rank_by_qvol"`
	MaxTickerAge     duration `toml:"max_ticker_age" yaml:"max_ticker_age"`
}

// ExchangeConfig describes one market data source.
type ExchangeConfig struct {
	Name string `toml:"name" yaml:"name"`
	// Kind selects the adapter: "binance", "kucoin" or "snapshot".
	Kind         string   `toml:"kind" yaml:"kind"`
	BaseURL      string   `toml:"base_url" yaml:"base_url"`
	SnapshotPath string   `toml:"snapshot_path" yaml:"snapshot_path"`
	FeeBps       *uint32  `toml:"fee_bps" yaml:"fee_bps"`
	Timeout      duration `toml:"timeout" yaml:"timeout"`
	MarketsTTL   duration `toml:"markets_ttl" yaml:"markets_ttl"`
	// RateLimit caps REST calls per RateWindow across all instances sharing
	// Redis. Zero disables limiting.
	RateLimit  int      `toml:"rate_limit" yaml:"rate_limit"`
	RateWindow duration `toml:"rate_window" yaml:"rate_window"`
}

// Fee returns the exchange fee, falling back to the graph default.
func (e ExchangeConfig) Fee(def uint32) uint32 {
	if e.FeeBps != nil {
		return *e.FeeBps
	}
	return def
}

// RedisConfig holds Redis connection parameters.
type RedisConfig struct {
	Enabled      bool     `toml:"enabled" yaml:"enabled"`
	Addr         string   `toml:"addr" yaml:"addr"`
	Password     string   `toml:"password" yaml:"password" secret:"true"`
	DB           int      `toml:"db" yaml:"db"`
	PoolSize     int      `toml:"pool_size" yaml:"pool_size"`
	MaxRetries   int      `toml:"max_retries" yaml:"max_retries"`
	TLSEnabled   bool     `toml:"tls_enabled" yaml:"tls_enabled"`
	Channel      string   `toml:"channel" yaml:"channel"`
	Stream       string   `toml:"stream" yaml:"stream"`
	StreamMaxLen int64    `toml:"stream_max_len" yaml:"stream_max_len"`
	LockKey      string   `toml:"lock_key" yaml:"lock_key"`
	LockTTL      duration `toml:"lock_ttl" yaml:"lock_ttl"`
}

// PostgresConfig holds PostgreSQL connection parameters.
type PostgresConfig struct {
	Enabled       bool   `toml:"enabled" yaml:"enabled"`
	DSN           string `toml:"dsn" yaml:"dsn" secret:"true"`
	Host          string `toml:"host" yaml:"host"`
	Port          int    `toml:"port" yaml:"port"`
	Database      string `toml:"database" yaml:"database"`
	User          string `toml:"user" yaml:"user"`
	Password      string `toml:"password" yaml:"password" secret:"true"`
	SSLMode       string `toml:"ssl_mode" yaml:"ssl_mode"`
	PoolMaxConns  int    `toml:"pool_max_conns" yaml:"pool_max_conns"`
	PoolMinConns  int    `toml:"pool_min_conns" yaml:"pool_min_conns"`
	RunMigrations bool   `toml:"run_migrations" yaml:"run_migrations"`
}

// SQLiteConfig holds the local iteration store location.
type SQLiteConfig struct {
	Enabled bool   `toml:"enabled" yaml:"enabled"`
	Path    string `toml:"path" yaml:"path"`
}

// S3Config holds S3-compatible object storage parameters.
type S3Config struct {
	Enabled        bool   `toml:"enabled" yaml:"enabled"`
	Endpoint       string `toml:"endpoint" yaml:"endpoint"`
	Region         string `toml:"region" yaml:"region"`
	Bucket         string `toml:"bucket" yaml:"bucket"`
	AccessKey      string `toml:"access_key" yaml:"access_key" secret:"true"`
	SecretKey      string `toml:"secret_key" yaml:"secret_key" secret:"true"`
	UseSSL         bool   `toml:"use_ssl" yaml:"use_ssl"`
	ForcePathStyle bool   `toml:"force_path_style" yaml:"force_path_style"`
	Prefix         string `toml:"prefix" yaml:"prefix"`
}

// ServerConfig holds HTTP server parameters.
type ServerConfig struct {
	Enabled     bool     `toml:"enabled" yaml:"enabled"`
	Port        int      `toml:"port" yaml:"port"`
	CORSOrigins []string `toml:"cors_origins" yaml:"cors_origins"`
	// APIKey, when set, is required on every /api request.
	APIKey string `toml:"api_key" yaml:"api_key" secret:"true"`
	// RateLimit caps requests per client IP per RateWindow; needs Redis.
	RateLimit  int      `toml:"rate_limit" yaml:"rate_limit"`
	RateWindow duration `toml:"rate_window" yaml:"rate_window"`
}

// MetricsConfig controls the Prometheus registry.
type MetricsConfig struct {
	Enabled   bool   `toml:"enabled" yaml:"enabled"`
	Namespace string `toml:"namespace" yaml:"namespace"`
}

// NotifyConfig holds notification channel credentials.
type NotifyConfig struct {
	TelegramToken     string   `toml:"telegram_token" yaml:"telegram_token" secret:"true"`
	TelegramChatID    string   `toml:"telegram_chat_id" yaml:"telegram_chat_id"`
	DiscordWebhookURL string   `toml:"discord_webhook_url" yaml:"discord_webhook_url" secret:"true"`
	Events            []string `toml:"events" yaml:"events"`
	// MinNet is the net profit the top opportunity must reach to alert.
	MinNet float64 `toml:"min_net" yaml:"min_net"`
}

// ExecutorConfig controls the log-only swap executor.
type ExecutorConfig struct {
	Enabled  bool     `toml:"enabled" yaml:"enabled"`
	DedupTTL duration `toml:"dedup_ttl" yaml:"dedup_ttl"`
}

// duration is a wrapper around time.Duration that supports string decoding
// (e.g. "5m", "30s") from both TOML and YAML.
type duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler so the TOML decoder can
// parse duration strings like "5m" or "30s".
func (d *duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return err
}

// MarshalText implements encoding.TextMarshaler for round-trip encoding.
func (d duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *duration) UnmarshalYAML(node *yaml.Node) error {
	return d.UnmarshalText([]byte(node.Value))
}

func uint32p(v uint32) *uint32 { return &v }

// Defaults returns a Config populated with reasonable default values.
// These match the values in config.example.toml.
func Defaults() Config {
	return Config{
		Engine: EngineConfig{
			Strategy:        "bf",
			MinHops:         3,
			MaxHops:         4,
			MinNet:          0.001,
			Top:             10,
			DetectTimeout:   duration{5 * time.Second},
			IterationBudget: duration{20 * time.Second},
			Repeat:          0,
			RepeatSleep:     duration{10 * time.Second},
			Simulate:        false,
			InitialBaseline: 1000,
		},
		Graph: GraphConfig{
			Quotes:           []string{"USDT", "BTC", "ETH"},
			FeeBps:           10,
			MinQuoteVol:      0,
			RequireTopOfBook: true,
			RankByQVol:       true,
		},
		Exchanges: []ExchangeConfig{
			{
				Name:       "binance",
				Kind:       "binance",
				BaseURL:    "https://api.binance.com",
				FeeBps:     uint32p(10),
				Timeout:    duration{10 * time.Second},
				MarketsTTL: duration{time.Hour},
				RateWindow: duration{time.Second},
			},
			{
				Name:       "kucoin",
				Kind:       "kucoin",
				BaseURL:    "https://api.kucoin.com",
				FeeBps:     uint32p(10),
				Timeout:    duration{10 * time.Second},
				MarketsTTL: duration{time.Hour},
				RateWindow: duration{time.Second},
			},
		},
		Redis: RedisConfig{
			Enabled:      false,
			Addr:         "localhost:6379",
			PoolSize:     10,
			MaxRetries:   3,
			Channel:      "cyclebot:iterations",
			Stream:       "cyclebot:iterations:log",
			StreamMaxLen: 10_000,
			LockKey:      "cyclebot:engine",
			LockTTL:      duration{24 * time.Hour},
		},
		Postgres: PostgresConfig{
			Host:          "localhost",
			Port:          5432,
			Database:      "cyclebot",
			User:          "postgres",
			SSLMode:       "disable",
			PoolMaxConns:  5,
			PoolMinConns:  1,
			RunMigrations: true,
		},
		SQLite: SQLiteConfig{
			Path: "cyclebot.db",
		},
		S3: S3Config{
			Endpoint:       "http://localhost:9000",
			Region:         "us-east-1",
			Bucket:         "cyclebot-data",
			ForcePathStyle: true,
			Prefix:         "iterations",
		},
		Server: ServerConfig{
			Enabled:     true,
			Port:        8000,
			CORSOrigins: []string{"http://localhost:3000"},
			RateWindow:  duration{time.Second},
		},
		Metrics: MetricsConfig{
			Enabled:   true,
			Namespace: "cyclebot",
		},
		Notify: NotifyConfig{
			Events: []string{"cycle_detected", "exchange_failed"},
			MinNet: 0.01,
		},
		Executor: ExecutorConfig{
			Enabled:  true,
			DedupTTL: duration{time.Minute},
		},
		Mode:     "full",
		LogLevel: "info",
	}
}

// validModes enumerates the accepted values for Config.Mode.
var validModes = map[string]bool{
	"scan":   true,
	"server": true,
	"full":   true,
}

// validLogLevels enumerates the accepted values for Config.LogLevel.
var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

var validStrategies = map[string]bool{
	"bf":  true,
	"tri": true,
}

var validKinds = map[string]bool{
	"binance":  true,
	"kucoin":   true,
	"snapshot": true,
}

// Validate checks Config for invalid or missing values. It returns a
// *domain.ConfigError describing every problem found, or nil.
func (c *Config) Validate() error {
	errs := &domain.ConfigError{}

	if !validModes[strings.ToLower(c.Mode)] {
		errs.Add("unknown mode %q (valid: scan, server, full)", c.Mode)
	}
	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		errs.Add("unknown log_level %q (valid: debug, info, warn, error)", c.LogLevel)
	}

	// Engine
	e := c.Engine
	if !validStrategies[strings.ToLower(e.Strategy)] {
		errs.Add("engine: unknown strategy %q (valid: bf, tri)", e.Strategy)
	}
	if e.MinHops < 2 {
		errs.Add("engine: min_hops must be >= 2, got %d", e.MinHops)
	}
	if e.MinHops > e.MaxHops {
		errs.Add("engine: min_hops (%d) must not exceed max_hops (%d)", e.MinHops, e.MaxHops)
	}
	if e.MinNet <= -1 {
		errs.Add("engine: min_net must be > -1, got %g", e.MinNet)
	}
	if e.Top < 1 {
		errs.Add("engine: top must be >= 1")
	}
	if e.DetectTimeout.Duration <= 0 {
		errs.Add("engine: detect_timeout must be > 0")
	}
	if e.IterationBudget.Duration <= 0 {
		errs.Add("engine: iteration_budget must be > 0")
	}
	if e.Repeat < 0 {
		errs.Add("engine: repeat must be >= 0")
	}
	if e.RepeatSleep.Duration < 0 {
		errs.Add("engine: repeat_sleep must be >= 0")
	}
	if e.Simulate && e.InitialBaseline <= 0 {
		errs.Add("engine: initial_baseline must be > 0 when simulate is set")
	}

	// Graph
	if len(c.Graph.Quotes) == 0 {
		errs.Add("graph: quotes allowlist must not be empty")
	}
	if c.Graph.FeeBps >= 10000 {
		errs.Add("graph: fee_bps must be < 10000, got %d", c.Graph.FeeBps)
	}
	if c.Graph.MinQuoteVol < 0 {
		errs.Add("graph: min_quote_vol must be >= 0")
	}
	if c.Graph.CurrenciesLimit < 0 {
		errs.Add("graph: currencies_limit must be >= 0")
	}

	// Exchanges
	if len(c.Exchanges) == 0 && !strings.EqualFold(c.Mode, "server") {
		errs.Add("exchanges: at least one exchange must be configured")
	}
	seen := make(map[string]bool, len(c.Exchanges))
	for i, ex := range c.Exchanges {
		if ex.Name == "" {
			errs.Add("exchanges[%d]: name must not be empty", i)
		} else if seen[ex.Name] {
			errs.Add("exchanges[%d]: duplicate name %q", i, ex.Name)
		}
		seen[ex.Name] = true
		if !validKinds[ex.Kind] {
			errs.Add("exchanges[%d]: unknown kind %q (valid: binance, kucoin, snapshot)", i, ex.Kind)
		}
		if ex.Kind == "snapshot" && ex.SnapshotPath == "" {
			errs.Add("exchanges[%d]: snapshot_path is required for kind snapshot", i)
		}
		if (ex.Kind == "binance" || ex.Kind == "kucoin") && ex.BaseURL == "" {
			errs.Add("exchanges[%d]: base_url must not be empty", i)
		}
		if ex.FeeBps != nil && *ex.FeeBps >= 10000 {
			errs.Add("exchanges[%d]: fee_bps must be < 10000", i)
		}
		if ex.RateLimit < 0 {
			errs.Add("exchanges[%d]: rate_limit must be >= 0", i)
		}
		if ex.RateLimit > 0 && ex.RateWindow.Duration <= 0 {
			errs.Add("exchanges[%d]: rate_window must be > 0 when rate_limit is set", i)
		}
	}

	// Redis
	if c.Redis.Enabled {
		if c.Redis.Addr == "" {
			errs.Add("redis: addr must not be empty")
		}
		if c.Redis.PoolSize < 1 {
			errs.Add("redis: pool_size must be >= 1")
		}
	}

	// Postgres
	if c.Postgres.Enabled && strings.TrimSpace(c.Postgres.DSN) == "" {
		if c.Postgres.Host == "" {
			errs.Add("postgres: host must not be empty (or set postgres.dsn)")
		}
		if c.Postgres.Port <= 0 || c.Postgres.Port > 65535 {
			errs.Add("postgres: port must be 1-65535, got %d", c.Postgres.Port)
		}
		if c.Postgres.Database == "" {
			errs.Add("postgres: database must not be empty")
		}
	}
	if c.Postgres.Enabled && c.Postgres.PoolMinConns > c.Postgres.PoolMaxConns {
		errs.Add("postgres: pool_min_conns must not exceed pool_max_conns")
	}

	if c.SQLite.Enabled && c.SQLite.Path == "" {
		errs.Add("sqlite: path must not be empty")
	}

	// S3
	if c.S3.Enabled {
		if c.S3.Bucket == "" {
			errs.Add("s3: bucket must not be empty")
		}
		if c.S3.Region == "" {
			errs.Add("s3: region must not be empty")
		}
	}

	// Server
	if c.Server.Enabled || strings.EqualFold(c.Mode, "server") {
		if c.Server.Port <= 0 || c.Server.Port > 65535 {
			errs.Add("server: port must be 1-65535, got %d", c.Server.Port)
		}
		if c.Server.RateLimit < 0 {
			errs.Add("server: rate_limit must be >= 0")
		}
		if c.Server.RateLimit > 0 && c.Server.RateWindow.Duration <= 0 {
			errs.Add("server: rate_window must be > 0 when rate_limit is set")
		}
	}

	return errs.OrNil()
}

// FormatError renders the problems of a validation error one per line.
func FormatError(err error) string {
	var ce *domain.ConfigError
	if !errors.As(err, &ce) {
		return err.Error()
	}
	return fmt.Sprintf("config validation failed:\n  - %s", strings.Join(ce.Problems, "\n  - "))
}
