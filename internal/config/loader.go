package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Load reads a TOML configuration file at path, merges it on top of the
// built-in defaults, applies UPDOWN_* environment variable overrides, and
// returns the final Config. The caller should invoke Config.Validate after
// Load. An empty path skips the file and uses defaults plus environment.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if path != "" {
		if _, err := toml.DecodeFile(path, &cfg); err != nil {
			return nil, err
		}
	}

	// Load .env if present; missing files are fine.
	_ = godotenv.Load()

	applyEnvOverrides(&cfg)
	return &cfg, nil
}

// applyEnvOverrides reads well-known UPDOWN_* environment variables and
// overwrites the corresponding fields when set, so operators can inject
// secrets at deploy time without touching the TOML file.
func applyEnvOverrides(cfg *Config) {
	setStr(&cfg.Polymarket.GammaHost, "UPDOWN_POLYMARKET_GAMMA_HOST")
	setStr(&cfg.Polymarket.WSHost, "UPDOWN_POLYMARKET_WS_HOST")

	setDuration(&cfg.Feed.PingInterval, "UPDOWN_FEED_PING_INTERVAL")
	setDuration(&cfg.Feed.ReconnectInterval, "UPDOWN_FEED_RECONNECT_INTERVAL")

	setStr(&cfg.Market.Coin, "UPDOWN_MARKET_COIN")
	setDuration(&cfg.Market.CheckInterval, "UPDOWN_MARKET_CHECK_INTERVAL")
	setDuration(&cfg.Market.SwitchThreshold, "UPDOWN_MARKET_SWITCH_THRESHOLD")
	setDuration(&cfg.Market.DataTimeout, "UPDOWN_MARKET_DATA_TIMEOUT")

	setDuration(&cfg.Strategy.Lookback, "UPDOWN_STRATEGY_LOOKBACK")
	setFloat64(&cfg.Strategy.DropTrigger, "UPDOWN_STRATEGY_DROP_TRIGGER")
	setInt(&cfg.Strategy.HistoryCap, "UPDOWN_STRATEGY_HISTORY_CAP")
	setDuration(&cfg.Strategy.TickInterval, "UPDOWN_STRATEGY_TICK_INTERVAL")
	setDuration(&cfg.Strategy.Cooldown, "UPDOWN_STRATEGY_COOLDOWN")
	setFloat64(&cfg.Strategy.Size, "UPDOWN_STRATEGY_SIZE")
	setInt(&cfg.Strategy.MaxPositions, "UPDOWN_STRATEGY_MAX_POSITIONS")
	setFloat64(&cfg.Strategy.TakeProfit, "UPDOWN_STRATEGY_TAKE_PROFIT")
	setFloat64(&cfg.Strategy.StopLoss, "UPDOWN_STRATEGY_STOP_LOSS")
	setFloat64(&cfg.Strategy.Slippage, "UPDOWN_STRATEGY_SLIPPAGE")

	setBool(&cfg.Redis.Enabled, "UPDOWN_REDIS_ENABLED")
	setStr(&cfg.Redis.Addr, "UPDOWN_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "UPDOWN_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "UPDOWN_REDIS_DB")
	setInt(&cfg.Redis.PoolSize, "UPDOWN_REDIS_POOL_SIZE")
	setInt(&cfg.Redis.MaxRetries, "UPDOWN_REDIS_MAX_RETRIES")
	setBool(&cfg.Redis.TLSEnabled, "UPDOWN_REDIS_TLS_ENABLED")

	setBool(&cfg.Database.Enabled, "UPDOWN_DATABASE_ENABLED")
	setStr(&cfg.Database.DSN, "UPDOWN_DATABASE_DSN")
	setStr(&cfg.Database.Host, "UPDOWN_DATABASE_HOST")
	setInt(&cfg.Database.Port, "UPDOWN_DATABASE_PORT")
	setStr(&cfg.Database.Database, "UPDOWN_DATABASE_NAME")
	setStr(&cfg.Database.User, "UPDOWN_DATABASE_USER")
	setStr(&cfg.Database.Password, "UPDOWN_DATABASE_PASSWORD")
	setStr(&cfg.Database.SSLMode, "UPDOWN_DATABASE_SSL_MODE")
	setInt(&cfg.Database.PoolMaxConns, "UPDOWN_DATABASE_POOL_MAX_CONNS")
	setInt(&cfg.Database.PoolMinConns, "UPDOWN_DATABASE_POOL_MIN_CONNS")
	setBool(&cfg.Database.RunMigrations, "UPDOWN_DATABASE_RUN_MIGRATIONS")

	setStr(&cfg.S3.Endpoint, "UPDOWN_S3_ENDPOINT")
	setStr(&cfg.S3.Region, "UPDOWN_S3_REGION")
	setStr(&cfg.S3.Bucket, "UPDOWN_S3_BUCKET")
	setStr(&cfg.S3.AccessKey, "UPDOWN_S3_ACCESS_KEY")
	setStr(&cfg.S3.SecretKey, "UPDOWN_S3_SECRET_KEY")
	setBool(&cfg.S3.ForcePathStyle, "UPDOWN_S3_FORCE_PATH_STYLE")

	setBool(&cfg.Archive.Enabled, "UPDOWN_ARCHIVE_ENABLED")
	setDuration(&cfg.Archive.FlushInterval, "UPDOWN_ARCHIVE_FLUSH_INTERVAL")
	setInt(&cfg.Archive.MaxBatchBytes, "UPDOWN_ARCHIVE_MAX_BATCH_BYTES")

	setStr(&cfg.Notify.TelegramToken, "UPDOWN_NOTIFY_TELEGRAM_TOKEN")
	setStr(&cfg.Notify.TelegramChatID, "UPDOWN_NOTIFY_TELEGRAM_CHAT_ID")
	setStr(&cfg.Notify.DiscordWebhookURL, "UPDOWN_NOTIFY_DISCORD_WEBHOOK_URL")
	setStringSlice(&cfg.Notify.Events, "UPDOWN_NOTIFY_EVENTS")

	setStr(&cfg.Mode, "UPDOWN_MODE")
	setStr(&cfg.LogLevel, "UPDOWN_LOG_LEVEL")
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
			if p = strings.TrimSpace(p); p != "" {
				cleaned = append(cleaned, p)
			}
		}
		if len(cleaned) > 0 {
			*dst = cleaned
		}
	}
}
