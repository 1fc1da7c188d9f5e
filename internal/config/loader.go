package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Load reads a configuration file at path, merges it on top of the built-in
// defaults, applies CYCLEBOT_* environment variable overrides, and returns the
// final Config. Files ending in .yaml or .yml are decoded as YAML, everything
// else as TOML. An empty path skips the file and uses defaults. The returned
// Config has NOT been validated; the caller should invoke Config.Validate()
// after Load.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	// Exchange lists replace the defaults wholesale; per-exchange gaps are
	// filled afterwards.
	defaultExchanges := cfg.Exchanges
	cfg.Exchanges = nil
	if path != "" {
		if err := decodeFile(path, &cfg); err != nil {
			return nil, err
		}
	}
	if len(cfg.Exchanges) == 0 {
		cfg.Exchanges = defaultExchanges
	}
	for i := range cfg.Exchanges {
		fillExchangeDefaults(&cfg.Exchanges[i])
	}

	// Load .env file if present (silently ignore if missing).
	_ = godotenv.Load()

	applyEnvOverrides(&cfg)

	return &cfg, nil
}

func decodeFile(path string, cfg *Config) error {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("config: read %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return fmt.Errorf("config: decode yaml %s: %w", path, err)
		}
	default:
		if _, err := toml.DecodeFile(path, cfg); err != nil {
			return fmt.Errorf("config: decode toml %s: %w", path, err)
		}
	}
	return nil
}

var defaultBaseURLs = map[string]string{
	"binance": "https://api.binance.com",
	"kucoin":  "https://api.kucoin.com",
}

func fillExchangeDefaults(ex *ExchangeConfig) {
	if ex.Kind == "" {
		ex.Kind = ex.Name
	}
	if ex.BaseURL == "" {
		ex.BaseURL = defaultBaseURLs[ex.Kind]
	}
	if ex.Timeout.Duration == 0 {
		ex.Timeout.Duration = 10 * time.Second
	}
	if ex.MarketsTTL.Duration == 0 {
		ex.MarketsTTL.Duration = time.Hour
	}
	if ex.RateWindow.Duration == 0 {
		ex.RateWindow.Duration = time.Second
	}
}

// applyEnvOverrides reads well-known CYCLEBOT_* environment variables and
// overwrites the corresponding Config fields when a variable is set (i.e. not
// empty). This lets operators inject secrets at deploy time without touching
// the config file.
func applyEnvOverrides(cfg *Config) {
	// ── Engine ──
	setStr(&cfg.Engine.Strategy, "CYCLEBOT_ENGINE_STRATEGY")
	setInt(&cfg.Engine.MinHops, "CYCLEBOT_ENGINE_MIN_HOPS")
	setInt(&cfg.Engine.MaxHops, "CYCLEBOT_ENGINE_MAX_HOPS")
	setFloat64(&cfg.Engine.MinNet, "CYCLEBOT_ENGINE_MIN_NET")
	setInt(&cfg.Engine.Top, "CYCLEBOT_ENGINE_TOP")
	setDuration(&cfg.Engine.DetectTimeout, "CYCLEBOT_ENGINE_DETECT_TIMEOUT")
	setDuration(&cfg.Engine.IterationBudget, "CYCLEBOT_ENGINE_ITERATION_BUDGET")
	setInt(&cfg.Engine.Repeat, "CYCLEBOT_ENGINE_REPEAT")
	setDuration(&cfg.Engine.RepeatSleep, "CYCLEBOT_ENGINE_REPEAT_SLEEP")
	setBool(&cfg.Engine.Simulate, "CYCLEBOT_ENGINE_SIMULATE")
	setFloat64(&cfg.Engine.InitialBaseline, "CYCLEBOT_ENGINE_INITIAL_BASELINE")

	// ── Graph ──
	setStringSlice(&cfg.Graph.Quotes, "CYCLEBOT_GRAPH_QUOTES")
	setUint32(&cfg.Graph.FeeBps, "CYCLEBOT_GRAPH_FEE_BPS")
	setFloat64(&cfg.Graph.MinQuoteVol, "CYCLEBOT_GRAPH_MIN_QUOTE_VOL")
	setBool(&cfg.Graph.RequireTopOfBook, "CYCLEBOT_GRAPH_REQUIRE_TOPOFBOOK")
	setBool(&cfg.Graph.RequireQuote, "CYCLEBOT_GRAPH_REQUIRE_QUOTE")
	setBool(&cfg.Graph.RequireDualQuote, "CYCLEBOT_GRAPH_REQUIRE_DUAL_QUOTE")
	setInt(&cfg.Graph.CurrenciesLimit, "CYCLEBOT_GRAPH_CURRENCIES_LIMIT")
	setBool(&cfg.Graph.RankByQVol, "CYCLEBOT_GRAPH_RANK_BY_QVOL")
	setDuration(&cfg.Graph.MaxTickerAge, "CYCLEBOT_GRAPH_MAX_TICKER_AGE")

	// ── Exchanges ──
	if names := os.Getenv("CYCLEBOT_EXCHANGES"); names != "" {
		cfg.Exchanges = filterExchanges(cfg.Exchanges, names)
	}

	// ── Redis ──
	setBool(&cfg.Redis.Enabled, "CYCLEBOT_REDIS_ENABLED")
	setStr(&cfg.Redis.Addr, "CYCLEBOT_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "CYCLEBOT_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "CYCLEBOT_REDIS_DB")
	setInt(&cfg.Redis.PoolSize, "CYCLEBOT_REDIS_POOL_SIZE")
	setInt(&cfg.Redis.MaxRetries, "CYCLEBOT_REDIS_MAX_RETRIES")
	setBool(&cfg.Redis.TLSEnabled, "CYCLEBOT_REDIS_TLS_ENABLED")
	setStr(&cfg.Redis.Channel, "CYCLEBOT_REDIS_CHANNEL")
	setStr(&cfg.Redis.Stream, "CYCLEBOT_REDIS_STREAM")
	setInt64(&cfg.Redis.StreamMaxLen, "CYCLEBOT_REDIS_STREAM_MAX_LEN")
	setStr(&cfg.Redis.LockKey, "CYCLEBOT_REDIS_LOCK_KEY")
	setDuration(&cfg.Redis.LockTTL, "CYCLEBOT_REDIS_LOCK_TTL")

	// ── Postgres ──
	setBool(&cfg.Postgres.Enabled, "CYCLEBOT_POSTGRES_ENABLED")
	setStr(&cfg.Postgres.DSN, "CYCLEBOT_POSTGRES_DSN")
	setStr(&cfg.Postgres.DSN, "DATABASE_URL") // compatibility alias
	setStr(&cfg.Postgres.Host, "CYCLEBOT_POSTGRES_HOST")
	setInt(&cfg.Postgres.Port, "CYCLEBOT_POSTGRES_PORT")
	setStr(&cfg.Postgres.Database, "CYCLEBOT_POSTGRES_DATABASE")
	setStr(&cfg.Postgres.User, "CYCLEBOT_POSTGRES_USER")
	setStr(&cfg.Postgres.Password, "CYCLEBOT_POSTGRES_PASSWORD")
	setStr(&cfg.Postgres.SSLMode, "CYCLEBOT_POSTGRES_SSL_MODE")
	setInt(&cfg.Postgres.PoolMaxConns, "CYCLEBOT_POSTGRES_POOL_MAX_CONNS")
	setInt(&cfg.Postgres.PoolMinConns, "CYCLEBOT_POSTGRES_POOL_MIN_CONNS")
	setBool(&cfg.Postgres.RunMigrations, "CYCLEBOT_POSTGRES_RUN_MIGRATIONS")

	// ── SQLite ──
	setBool(&cfg.SQLite.Enabled, "CYCLEBOT_SQLITE_ENABLED")
	setStr(&cfg.SQLite.Path, "CYCLEBOT_SQLITE_PATH")

	// ── S3 ──
	setBool(&cfg.S3.Enabled, "CYCLEBOT_S3_ENABLED")
	setStr(&cfg.S3.Endpoint, "CYCLEBOT_S3_ENDPOINT")
	setStr(&cfg.S3.Region, "CYCLEBOT_S3_REGION")
	setStr(&cfg.S3.Bucket, "CYCLEBOT_S3_BUCKET")
	setStr(&cfg.S3.AccessKey, "CYCLEBOT_S3_ACCESS_KEY")
	setStr(&cfg.S3.SecretKey, "CYCLEBOT_S3_SECRET_KEY")
	setBool(&cfg.S3.UseSSL, "CYCLEBOT_S3_USE_SSL")
	setBool(&cfg.S3.ForcePathStyle, "CYCLEBOT_S3_FORCE_PATH_STYLE")
	setStr(&cfg.S3.Prefix, "CYCLEBOT_S3_PREFIX")

	// ── Server ──
	setBool(&cfg.Server.Enabled, "CYCLEBOT_SERVER_ENABLED")
	setInt(&cfg.Server.Port, "CYCLEBOT_SERVER_PORT")
	setStringSlice(&cfg.Server.CORSOrigins, "CYCLEBOT_SERVER_CORS_ORIGINS")
	setStr(&cfg.Server.APIKey, "CYCLEBOT_SERVER_API_KEY")
	setInt(&cfg.Server.RateLimit, "CYCLEBOT_SERVER_RATE_LIMIT")
	setDuration(&cfg.Server.RateWindow, "CYCLEBOT_SERVER_RATE_WINDOW")

	// ── Metrics ──
	setBool(&cfg.Metrics.Enabled, "CYCLEBOT_METRICS_ENABLED")
	setStr(&cfg.Metrics.Namespace, "CYCLEBOT_METRICS_NAMESPACE")

	// ── Notify ──
	setStr(&cfg.Notify.TelegramToken, "CYCLEBOT_NOTIFY_TELEGRAM_TOKEN")
	setStr(&cfg.Notify.TelegramChatID, "CYCLEBOT_NOTIFY_TELEGRAM_CHAT_ID")
	setStr(&cfg.Notify.DiscordWebhookURL, "CYCLEBOT_NOTIFY_DISCORD_WEBHOOK_URL")
	setStringSlice(&cfg.Notify.Events, "CYCLEBOT_NOTIFY_EVENTS")
	setFloat64(&cfg.Notify.MinNet, "CYCLEBOT_NOTIFY_MIN_NET")

	// ── Executor ──
	setBool(&cfg.Executor.Enabled, "CYCLEBOT_EXECUTOR_ENABLED")
	setDuration(&cfg.Executor.DedupTTL, "CYCLEBOT_EXECUTOR_DEDUP_TTL")

	// ── Top-level ──
	setStr(&cfg.Mode, "CYCLEBOT_MODE")
	setStr(&cfg.LogLevel, "CYCLEBOT_LOG_LEVEL")
}

// filterExchanges keeps only the exchanges named in the comma separated list,
// in the order they were configured.
func filterExchanges(all []ExchangeConfig, names string) []ExchangeConfig {
	want := make(map[string]bool)
	for _, n := range strings.Split(names, ",") {
		if n = strings.TrimSpace(n); n != "" {
			want[n] = true
		}
	}
	out := make([]ExchangeConfig, 0, len(want))
	for _, ex := range all {
		if want[ex.Name] {
			out = append(out, ex)
		}
	}
	return out
}

// ---------------------------------------------------------------------------
// Typed env-var helpers. Each only mutates the target when the environment
// variable is present and non-empty.
// ---------------------------------------------------------------------------

func setStr(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setInt64(dst *int64, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			*dst = n
		}
	}
}

func setUint32(dst *uint32, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseUint(v, 10, 32); err == nil {
			*dst = uint32(n)
		}
	}
}

func setFloat64(dst *float64, key string) {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = f
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setDuration(dst *duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			dst.Duration = d
		}
	}
}

func setStringSlice(dst *[]string, key string) {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		cleaned := make([]string, 0, len(parts))
		for _, p := range parts {
			p = strings.TrimSpace(p)
			if p != "" {
				cleaned = append(cleaned, p)
			}
		}
		if len(cleaned) > 0 {
			*dst = cleaned
		}
	}
}
