package app

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	s3blob "github.com/alanyoungcy/updownbot/internal/blob/s3"
	"github.com/alanyoungcy/updownbot/internal/cache/redis"
	"github.com/alanyoungcy/updownbot/internal/config"
	"github.com/alanyoungcy/updownbot/internal/domain"
	"github.com/alanyoungcy/updownbot/internal/executor"
	"github.com/alanyoungcy/updownbot/internal/market"
	"github.com/alanyoungcy/updownbot/internal/notify"
	"github.com/alanyoungcy/updownbot/internal/platform/polymarket"
	"github.com/alanyoungcy/updownbot/internal/store/postgres"
	"github.com/alanyoungcy/updownbot/internal/strategy"
)

// Dependencies bundles everything the operating modes need. It is
// constructed by Wire and torn down by the returned cleanup function.
type Dependencies struct {
	Feed    *polymarket.FeedClient
	Gamma   *polymarket.GammaClient
	Manager *market.Manager

	Prices    *strategy.PriceTracker
	Positions *strategy.PositionTracker
	Runner    *strategy.FlashCrashRunner

	Executor domain.OrderSubmitter

	PriceCache domain.PriceCache
	SignalBus  *redis.SignalBus
	Journal    domain.TradeJournal
	Archiver   *s3blob.BookArchiver
	Notifier   *notify.Notifier
}

// Wire constructs the concrete dependency graph from the configuration and
// returns it with a cleanup function for shutdown.
func Wire(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Dependencies, func(), error) {
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	deps := &Dependencies{}
	mode := strings.ToLower(cfg.Mode)

	// --- Feed and discovery ---
	deps.Feed = polymarket.NewFeedClient(polymarket.FeedConfig{
		URL:               cfg.Polymarket.WSHost,
		PingInterval:      cfg.Feed.PingInterval.Duration,
		ReconnectInterval: cfg.Feed.ReconnectInterval.Duration,
	}, logger)
	deps.Gamma = polymarket.NewGammaClient(cfg.Polymarket.GammaHost, logger)
	deps.Manager = market.NewManager(market.Config{
		Coin:            strings.ToLower(cfg.Market.Coin),
		CheckInterval:   cfg.Market.CheckInterval.Duration,
		SwitchThreshold: cfg.Market.SwitchThreshold.Duration,
	}, deps.Gamma, deps.Feed, logger)

	// --- Trackers ---
	deps.Prices = strategy.NewPriceTracker(strategy.TrackerConfig{
		HistoryCap:  cfg.Strategy.HistoryCap,
		Lookback:    cfg.Strategy.Lookback.Duration,
		DropTrigger: cfg.Strategy.DropTrigger,
	})
	deps.Positions = strategy.NewPositionTracker(strategy.PositionConfig{
		MaxPositions:    cfg.Strategy.MaxPositions,
		Size:            cfg.Strategy.Size,
		TakeProfitDelta: cfg.Strategy.TakeProfit,
		StopLossDelta:   cfg.Strategy.StopLoss,
	})

	// --- Order submission ---
	switch mode {
	case "paper", "monitor":
		deps.Executor = executor.NewPaperExecutor(cfg.Strategy.Slippage, logger)
	case "trade":
		// Live submission needs CLOB credentials and order signing, which
		// this build does not carry.
		cleanup()
		return nil, nil, fmt.Errorf("wire: mode %q has no live order submitter; use mode \"paper\"", cfg.Mode)
	}

	// --- Redis (optional) ---
	if cfg.Redis.Enabled {
		rdb, err := redis.New(ctx, redis.ClientConfig{
			Addr:       cfg.Redis.Addr,
			Password:   cfg.Redis.Password,
			DB:         cfg.Redis.DB,
			PoolSize:   cfg.Redis.PoolSize,
			MaxRetries: cfg.Redis.MaxRetries,
			TLSEnabled: cfg.Redis.TLSEnabled,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: redis: %w", err)
		}
		closers = append(closers, func() { _ = rdb.Close() })
		deps.PriceCache = redis.NewPriceCache(rdb)
		deps.SignalBus = redis.NewSignalBus(rdb)
	}

	// --- PostgreSQL journal (optional) ---
	if cfg.Database.Enabled {
		pgClient, err := postgres.New(ctx, postgres.ClientConfig{
			DSN:      cfg.Database.DSN,
			Host:     cfg.Database.Host,
			Port:     cfg.Database.Port,
			Database: cfg.Database.Database,
			User:     cfg.Database.User,
			Password: cfg.Database.Password,
			SSLMode:  cfg.Database.SSLMode,
			MaxConns: cfg.Database.PoolMaxConns,
			MinConns: cfg.Database.PoolMinConns,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: postgres: %w", err)
		}
		closers = append(closers, pgClient.Close)

		if cfg.Database.RunMigrations {
			if err := pgClient.RunMigrations(ctx); err != nil {
				cleanup()
				return nil, nil, fmt.Errorf("wire: postgres migrations: %w", err)
			}
		}
		deps.Journal = postgres.NewJournal(pgClient.Pool())
	}

	// --- S3 archiver (optional) ---
	if cfg.Archive.Enabled {
		s3Client, err := s3blob.New(ctx, s3blob.ClientConfig{
			Endpoint:       cfg.S3.Endpoint,
			Region:         cfg.S3.Region,
			Bucket:         cfg.S3.Bucket,
			AccessKey:      cfg.S3.AccessKey,
			SecretKey:      cfg.S3.SecretKey,
			ForcePathStyle: cfg.S3.ForcePathStyle,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: s3: %w", err)
		}
		deps.Archiver = s3blob.NewBookArchiver(s3blob.ArchiverConfig{
			Coin:          strings.ToLower(cfg.Market.Coin),
			FlushInterval: cfg.Archive.FlushInterval.Duration,
			MaxBatchBytes: cfg.Archive.MaxBatchBytes,
		}, s3blob.NewWriter(s3Client), logger)
	}

	// --- Notifications ---
	var senders []notify.Sender
	if cfg.Notify.TelegramToken != "" && cfg.Notify.TelegramChatID != "" {
		senders = append(senders, notify.NewTelegramSender(cfg.Notify.TelegramToken, cfg.Notify.TelegramChatID))
	}
	if cfg.Notify.DiscordWebhookURL != "" {
		senders = append(senders, notify.NewDiscordSender(cfg.Notify.DiscordWebhookURL))
	}
	deps.Notifier = notify.NewNotifier(senders, cfg.Notify.Events, logger)

	// --- Strategy runner ---
	deps.Runner = strategy.NewFlashCrashRunner(strategy.RunnerConfig{
		TickInterval: cfg.Strategy.TickInterval.Duration,
		Cooldown:     cfg.Strategy.Cooldown.Duration,
		DryRun:       mode == "monitor",
	}, deps.Manager, deps.Prices, deps.Positions, deps.Executor, logger)
	if deps.PriceCache != nil {
		deps.Runner.WithPriceCache(deps.PriceCache)
	}
	if deps.SignalBus != nil {
		deps.Runner.WithSignalBus(deps.SignalBus)
	}
	if deps.Journal != nil {
		deps.Runner.WithJournal(deps.Journal)
	}
	deps.Runner.WithNotifier(deps.Notifier)

	return deps, cleanup, nil
}
