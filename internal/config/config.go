// Package config defines the top-level configuration for the updown bot and
// provides validation helpers.
package config

import (
	"fmt"
	"strings"
	"time"
)

// Config is the root configuration structure. Fields are populated from a
// TOML file and then optionally overridden by UPDOWN_* environment variables.
type Config struct {
	Polymarket PolymarketConfig `toml:"polymarket"`
	Feed       FeedConfig       `toml:"feed"`
	Market     MarketConfig     `toml:"market"`
	Strategy   StrategyConfig   `toml:"strategy"`
	Redis      RedisConfig      `toml:"redis"`
	Database   DatabaseConfig   `toml:"database"`
	S3         S3Config         `toml:"s3"`
	Archive    ArchiveConfig    `toml:"archive"`
	Notify     NotifyConfig     `toml:"notify"`
	Mode       string           `toml:"mode"`
	LogLevel   string           `toml:"log_level"`
}

// PolymarketConfig holds the Polymarket API endpoints.
type PolymarketConfig struct {
	GammaHost string `toml:"gamma_host"`
	WSHost    string `toml:"ws_host"`
}

// FeedConfig holds websocket feed tunables.
type FeedConfig struct {
	PingInterval      duration `toml:"ping_interval"`
	ReconnectInterval duration `toml:"reconnect_interval"`
}

// MarketConfig holds market discovery and rollover tunables.
type MarketConfig struct {
	Coin            string   `toml:"coin"`
	CheckInterval   duration `toml:"check_interval"`
	SwitchThreshold duration `toml:"switch_threshold"`
	DataTimeout     duration `toml:"data_timeout"`
}

// StrategyConfig holds flash-crash detection and position parameters.
type StrategyConfig struct {
	Lookback     duration `toml:"lookback"`
	DropTrigger  float64  `toml:"drop_trigger"`
	HistoryCap   int      `toml:"history_cap"`
	TickInterval duration `toml:"tick_interval"`
	Cooldown     duration `toml:"cooldown"`
	Size         float64  `toml:"size"`
	MaxPositions int      `toml:"max_positions"`
	TakeProfit   float64  `toml:"take_profit"`
	StopLoss     float64  `toml:"stop_loss"`
	Slippage     float64  `toml:"slippage"`
}

// RedisConfig holds Redis connection parameters. The whole subsystem is
// optional; when disabled the price cache and signal bus are skipped.
type RedisConfig struct {
	Enabled    bool   `toml:"enabled"`
	Addr       string `toml:"addr"`
	Password   string `toml:"password"`
	DB         int    `toml:"db"`
	PoolSize   int    `toml:"pool_size"`
	MaxRetries int    `toml:"max_retries"`
	TLSEnabled bool   `toml:"tls_enabled"`
}

// DatabaseConfig holds PostgreSQL connection parameters for the trade
// journal. Optional; when disabled closed trades are only logged.
type DatabaseConfig struct {
	Enabled       bool   `toml:"enabled"`
	DSN           string `toml:"dsn"`
	Host          string `toml:"host"`
	Port          int    `toml:"port"`
	Database      string `toml:"database"`
	User          string `toml:"user"`
	Password      string `toml:"password"`
	SSLMode       string `toml:"ssl_mode"`
	PoolMaxConns  int    `toml:"pool_max_conns"`
	PoolMinConns  int    `toml:"pool_min_conns"`
	RunMigrations bool   `toml:"run_migrations"`
}

// S3Config holds S3-compatible object storage parameters.
type S3Config struct {
	Endpoint       string `toml:"endpoint"`
	Region         string `toml:"region"`
	Bucket         string `toml:"bucket"`
	AccessKey      string `toml:"access_key"`
	SecretKey      string `toml:"secret_key"`
	ForcePathStyle bool   `toml:"force_path_style"`
}

// ArchiveConfig controls the order-book archiver. Optional; requires S3.
type ArchiveConfig struct {
	Enabled       bool     `toml:"enabled"`
	FlushInterval duration `toml:"flush_interval"`
	MaxBatchBytes int      `toml:"max_batch_bytes"`
}

// NotifyConfig holds operator alerting channels and the event filter.
type NotifyConfig struct {
	TelegramToken     string   `toml:"telegram_token"`
	TelegramChatID    string   `toml:"telegram_chat_id"`
	DiscordWebhookURL string   `toml:"discord_webhook_url"`
	Events            []string `toml:"events"`
}

// duration wraps time.Duration for TOML text decoding ("5s", "2m").
type duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return err
}

// MarshalText implements encoding.TextMarshaler for round-trip encoding.
func (d duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// Defaults returns a Config with every field set to a sensible default. A
// default config runs in paper mode against the production endpoints with no
// external services.
func Defaults() Config {
	return Config{
		Polymarket: PolymarketConfig{
			GammaHost: "https://gamma-api.polymarket.com",
			WSHost:    "wss://ws-subscriptions-clob.polymarket.com/ws/market",
		},
		Feed: FeedConfig{
			PingInterval:      duration{20 * time.Second},
			ReconnectInterval: duration{5 * time.Second},
		},
		Market: MarketConfig{
			Coin:            "btc",
			CheckInterval:   duration{15 * time.Second},
			SwitchThreshold: duration{30 * time.Second},
			DataTimeout:     duration{10 * time.Second},
		},
		Strategy: StrategyConfig{
			Lookback:     duration{10 * time.Second},
			DropTrigger:  0.30,
			HistoryCap:   100,
			TickInterval: duration{500 * time.Millisecond},
			Cooldown:     duration{5 * time.Second},
			Size:         10.0,
			MaxPositions: 1,
			TakeProfit:   0.15,
			StopLoss:     0.10,
			Slippage:     0.01,
		},
		Redis: RedisConfig{
			Enabled:  false,
			Addr:     "localhost:6379",
			PoolSize: 10,
		},
		Database: DatabaseConfig{
			Enabled:       false,
			Host:          "localhost",
			Port:          5432,
			Database:      "updownbot",
			User:          "updownbot",
			SSLMode:       "disable",
			PoolMaxConns:  4,
			PoolMinConns:  0,
			RunMigrations: true,
		},
		Archive: ArchiveConfig{
			Enabled:       false,
			FlushInterval: duration{time.Minute},
			MaxBatchBytes: 4 * 1024 * 1024,
		},
		Notify: NotifyConfig{
			Events: []string{"flash_crash", "position_opened", "position_closed", "error"},
		},
		Mode:     "paper",
		LogLevel: "info",
	}
}

// validModes enumerates the accepted values for Config.Mode.
var validModes = map[string]bool{
	"trade":   true,
	"paper":   true,
	"monitor": true,
}

// validLogLevels enumerates the accepted values for Config.LogLevel.
var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

// validCoins enumerates the Up/Down market series Polymarket runs.
var validCoins = map[string]bool{
	"btc": true,
	"eth": true,
	"sol": true,
	"xrp": true,
}

// Validate checks the Config and returns a combined error describing every
// problem found.
func (c *Config) Validate() error {
	var errs []string

	if !validModes[strings.ToLower(c.Mode)] {
		errs = append(errs, fmt.Sprintf("unknown mode %q (valid: trade, paper, monitor)", c.Mode))
	}
	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		errs = append(errs, fmt.Sprintf("unknown log_level %q (valid: debug, info, warn, error)", c.LogLevel))
	}

	if c.Polymarket.GammaHost == "" {
		errs = append(errs, "polymarket: gamma_host must not be empty")
	}
	if c.Polymarket.WSHost == "" {
		errs = append(errs, "polymarket: ws_host must not be empty")
	}

	if c.Feed.PingInterval.Duration <= 0 {
		errs = append(errs, "feed: ping_interval must be > 0")
	}
	if c.Feed.ReconnectInterval.Duration <= 0 {
		errs = append(errs, "feed: reconnect_interval must be > 0")
	}

	if !validCoins[strings.ToLower(c.Market.Coin)] {
		errs = append(errs, fmt.Sprintf("market: unknown coin %q (valid: btc, eth, sol, xrp)", c.Market.Coin))
	}
	if c.Market.CheckInterval.Duration <= 0 {
		errs = append(errs, "market: check_interval must be > 0")
	}

	if c.Strategy.Lookback.Duration <= 0 {
		errs = append(errs, "strategy: lookback must be > 0")
	}
	if c.Strategy.DropTrigger <= 0 || c.Strategy.DropTrigger >= 1 {
		errs = append(errs, fmt.Sprintf("strategy: drop_trigger must be in (0, 1), got %g", c.Strategy.DropTrigger))
	}
	if c.Strategy.HistoryCap < 2 {
		errs = append(errs, "strategy: history_cap must be >= 2")
	}
	if c.Strategy.Size <= 0 {
		errs = append(errs, "strategy: size must be > 0")
	}
	if c.Strategy.MaxPositions < 1 {
		errs = append(errs, "strategy: max_positions must be >= 1")
	}
	if c.Strategy.TakeProfit <= 0 {
		errs = append(errs, "strategy: take_profit must be > 0")
	}
	if c.Strategy.StopLoss <= 0 {
		errs = append(errs, "strategy: stop_loss must be > 0")
	}

	if c.Redis.Enabled {
		if c.Redis.Addr == "" {
			errs = append(errs, "redis: addr must not be empty when enabled")
		}
		if c.Redis.PoolSize < 1 {
			errs = append(errs, "redis: pool_size must be >= 1")
		}
	}

	if c.Database.Enabled {
		if strings.TrimSpace(c.Database.DSN) == "" {
			if c.Database.Host == "" {
				errs = append(errs, "database: host must not be empty (or set database.dsn)")
			}
			if c.Database.Port <= 0 || c.Database.Port > 65535 {
				errs = append(errs, fmt.Sprintf("database: port must be 1-65535, got %d", c.Database.Port))
			}
			if c.Database.Database == "" {
				errs = append(errs, "database: database must not be empty")
			}
		}
		if c.Database.PoolMaxConns < 1 {
			errs = append(errs, "database: pool_max_conns must be >= 1")
		}
		if c.Database.PoolMinConns < 0 || c.Database.PoolMinConns > c.Database.PoolMaxConns {
			errs = append(errs, "database: pool_min_conns must be between 0 and pool_max_conns")
		}
	}

	if c.Archive.Enabled {
		if c.S3.Bucket == "" {
			errs = append(errs, "s3: bucket must not be empty when archive is enabled")
		}
		if c.S3.Region == "" {
			errs = append(errs, "s3: region must not be empty when archive is enabled")
		}
		if c.Archive.FlushInterval.Duration <= 0 {
			errs = append(errs, "archive: flush_interval must be > 0")
		}
	}

	if c.Notify.TelegramToken != "" && c.Notify.TelegramChatID == "" {
		errs = append(errs, "notify: telegram_chat_id is required when telegram_token is set")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}
