package app

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/alanyoungcy/updownbot/internal/domain"
	"github.com/alanyoungcy/updownbot/internal/notify"
)

const statusInterval = 30 * time.Second

// runEngine drives the shared engine: the market manager (feed plus
// rollover), the strategy runner, the optional archiver, and a periodic
// status log. In monitor mode the runner detects and alerts without orders.
func (a *App) runEngine(ctx context.Context, deps *Dependencies, dryRun bool) error {
	// Handlers must be registered before the feed starts delivering.
	deps.Feed.OnBook(deps.Runner.HandleBook)
	deps.Manager.OnMarketChange(deps.Runner.HandleMarketChange)
	if deps.Archiver != nil {
		deps.Feed.OnBook(deps.Archiver.Add)
	}
	deps.Feed.OnError(func(err error) {
		_ = deps.Notifier.Notify(context.WithoutCancel(ctx), notify.EventError,
			"Feed error", err.Error())
	})

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return deps.Manager.Run(gctx)
	})
	g.Go(func() error {
		if err := deps.Manager.WaitForData(gctx, a.cfg.Market.DataTimeout.Duration); err != nil {
			a.logger.Warn("order book data late", slog.Any("error", err))
		}
		return deps.Runner.Run(gctx)
	})
	if deps.Archiver != nil {
		g.Go(func() error {
			return deps.Archiver.Run(gctx)
		})
	}
	g.Go(func() error {
		return a.statusLoop(gctx, deps, dryRun)
	})

	err := g.Wait()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// statusLoop logs a compact engine snapshot on a fixed cadence.
func (a *App) statusLoop(ctx context.Context, deps *Dependencies, dryRun bool) error {
	ticker := time.NewTicker(statusInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			cur, ok := deps.Manager.Market()
			if !ok {
				a.logger.Info("status: no market yet")
				continue
			}
			attrs := []any{
				slog.String("market", cur.Slug),
				slog.Bool("connected", deps.Feed.IsConnected()),
				slog.Float64("up_mid", deps.Manager.MidPrice(domain.SideUp)),
				slog.Float64("down_mid", deps.Manager.MidPrice(domain.SideDown)),
			}
			if remaining, known := cur.Countdown(); known {
				attrs = append(attrs, slog.Duration("remaining", remaining))
			}
			if !dryRun {
				stats := deps.Positions.Stats()
				attrs = append(attrs,
					slog.Int("open", stats.OpenPositions),
					slog.Int("opened", stats.OpenedTrades),
					slog.Int("closed", stats.ClosedTrades),
					slog.Float64("realized", stats.RealizedPnL),
				)
			}
			a.logger.Info("status", attrs...)
		}
	}
}
