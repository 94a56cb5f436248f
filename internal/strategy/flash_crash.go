package strategy

import (
	"context"
	"log/slog"
	"time"

	"github.com/alanyoungcy/updownbot/internal/domain"
	"github.com/alanyoungcy/updownbot/internal/notify"
)

const (
	defaultTickInterval = 500 * time.Millisecond
	defaultCooldown     = 5 * time.Second
	cacheQueueSize      = 256
)

// MarketView is the slice of the market orchestrator the runner reads.
type MarketView interface {
	Market() (domain.MarketInfo, bool)
	TokenID(side domain.Side) string
	MidPrice(side domain.Side) float64
}

// EventPublisher fans engine events out to external consumers. Satisfied by
// the Redis signal bus.
type EventPublisher interface {
	PublishEvent(ctx context.Context, kind string, payload any) error
}

// RunnerConfig tunes the flash-crash runner. Zero values use defaults.
type RunnerConfig struct {
	// TickInterval is the cadence of detection and exit checks.
	TickInterval time.Duration

	// Cooldown is the minimum gap between two entries.
	Cooldown time.Duration

	// DryRun detects and alerts without submitting orders. Used by the
	// monitor mode.
	DryRun bool
}

// priceUpdate is one cache write queued off the feed's read loop.
type priceUpdate struct {
	assetID string
	price   float64
	ts      time.Time
}

// FlashCrashRunner trades sharp probability collapses: book updates feed the
// price tracker, a fixed-cadence tick detects crashes and buys the crashed
// side, and open positions are closed on take-profit or stop-loss. Closed
// trades go to the journal, the signal bus, and the notifier.
type FlashCrashRunner struct {
	cfg       RunnerConfig
	view      MarketView
	tracker   *PriceTracker
	positions *PositionTracker
	executor  domain.OrderSubmitter
	logger    *slog.Logger

	// Optional sinks; nil disables each.
	priceCache domain.PriceCache
	bus        EventPublisher
	journal    domain.TradeJournal
	notifier   *notify.Notifier

	cacheCh   chan priceUpdate
	lastEntry time.Time
}

// NewFlashCrashRunner wires the runner over its collaborators. priceCache,
// bus, journal, and notifier may each be nil.
func NewFlashCrashRunner(
	cfg RunnerConfig,
	view MarketView,
	tracker *PriceTracker,
	positions *PositionTracker,
	executor domain.OrderSubmitter,
	logger *slog.Logger,
) *FlashCrashRunner {
	if cfg.TickInterval <= 0 {
		cfg.TickInterval = defaultTickInterval
	}
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = defaultCooldown
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &FlashCrashRunner{
		cfg:       cfg,
		view:      view,
		tracker:   tracker,
		positions: positions,
		executor:  executor,
		logger:    logger.With(slog.String("component", "flash_crash")),
		cacheCh:   make(chan priceUpdate, cacheQueueSize),
	}
}

// WithPriceCache mirrors mid prices into the external price cache.
func (r *FlashCrashRunner) WithPriceCache(pc domain.PriceCache) *FlashCrashRunner {
	r.priceCache = pc
	return r
}

// WithSignalBus publishes engine events on the bus.
func (r *FlashCrashRunner) WithSignalBus(bus EventPublisher) *FlashCrashRunner {
	r.bus = bus
	return r
}

// WithJournal persists closed trades.
func (r *FlashCrashRunner) WithJournal(j domain.TradeJournal) *FlashCrashRunner {
	r.journal = j
	return r
}

// WithNotifier sends operator alerts.
func (r *FlashCrashRunner) WithNotifier(n *notify.Notifier) *FlashCrashRunner {
	r.notifier = n
	return r
}

// HandleBook records the snapshot's mid price for the matching side and
// queues a cache write. It runs on the feed's read loop and never blocks:
// a full cache queue drops the update.
func (r *FlashCrashRunner) HandleBook(snap domain.OrderbookSnapshot) {
	side, ok := r.sideOf(snap.AssetID)
	if !ok {
		return
	}
	mid := snap.MidPrice()
	r.tracker.Record(side, mid)

	if r.priceCache == nil {
		return
	}
	select {
	case r.cacheCh <- priceUpdate{assetID: snap.AssetID, price: mid, ts: snap.Timestamp}:
	default:
	}
}

// HandleMarketChange clears price history so observations from the expiring
// market never feed detection on the next one. Open positions are left to
// exit through their own checks.
func (r *FlashCrashRunner) HandleMarketChange(oldMarket, newMarket domain.MarketInfo) {
	r.tracker.Clear()
	r.logger.Info("price history cleared on rollover",
		slog.String("from", oldMarket.Slug), slog.String("to", newMarket.Slug))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	r.publish(ctx, notify.EventMarketChange, map[string]string{
		"from": oldMarket.Slug,
		"to":   newMarket.Slug,
	})
	if r.notifier != nil {
		title, msg := notify.MarketChangeAlert(oldMarket, newMarket)
		_ = r.notifier.Notify(ctx, notify.EventMarketChange, title, msg)
	}
}

// Run drives detection and exit checks until ctx is cancelled.
func (r *FlashCrashRunner) Run(ctx context.Context) error {
	ticker := time.NewTicker(r.cfg.TickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case upd := <-r.cacheCh:
			if err := r.priceCache.SetPrice(ctx, upd.assetID, upd.price, upd.ts); err != nil {
				r.logger.Warn("price cache write failed", slog.Any("error", err))
			}
		case <-ticker.C:
			r.tick(ctx)
		}
	}
}

// tick runs exit checks first so capital frees up before a new entry.
func (r *FlashCrashRunner) tick(ctx context.Context) {
	prices := map[domain.Side]float64{
		domain.SideUp:   r.view.MidPrice(domain.SideUp),
		domain.SideDown: r.view.MidPrice(domain.SideDown),
	}
	for _, sig := range r.positions.CheckAllExits(prices) {
		r.closePosition(ctx, sig)
	}

	ev, ok := r.tracker.DetectAll()
	if !ok {
		return
	}
	if time.Since(r.lastEntry) < r.cfg.Cooldown {
		return
	}
	if !r.positions.CanOpen(ev.Side) {
		return
	}
	r.openPosition(ctx, ev)
}

func (r *FlashCrashRunner) openPosition(ctx context.Context, ev domain.FlashCrashEvent) {
	market, ok := r.view.Market()
	if !ok {
		return
	}
	token := r.view.TokenID(ev.Side)
	price := r.view.MidPrice(ev.Side)
	if token == "" || price <= 0 {
		return
	}

	r.logger.Info("flash crash detected",
		slog.String("side", string(ev.Side)),
		slog.Float64("old", ev.OldPrice),
		slog.Float64("new", ev.NewPrice),
		slog.Float64("drop", ev.Drop))
	r.publish(ctx, notify.EventFlashCrash, ev)
	if r.notifier != nil {
		title, msg := notify.FlashCrashAlert(market.Slug, ev)
		_ = r.notifier.Notify(ctx, notify.EventFlashCrash, title, msg)
	}

	if r.cfg.DryRun {
		// Cooldown still applies so a sustained crash alerts once.
		r.lastEntry = time.Now()
		return
	}

	orderID, err := r.executor.SubmitMarketBuy(ctx, token, price, r.positions.Size())
	if err != nil {
		r.logger.Error("entry order failed",
			slog.String("side", string(ev.Side)), slog.Any("error", err))
		return
	}

	pos, err := r.positions.Open(ev.Side, token, price, orderID)
	if err != nil {
		r.logger.Error("open position failed", slog.Any("error", err))
		return
	}
	r.lastEntry = time.Now()

	r.logger.Info("position opened",
		slog.String("id", pos.ID),
		slog.String("side", string(pos.Side)),
		slog.Float64("entry", pos.EntryPrice),
		slog.Float64("size", pos.Size))
	r.publish(ctx, notify.EventPositionOpened, pos)
	if r.notifier != nil {
		title, msg := notify.PositionOpenedAlert(market.Slug, pos)
		_ = r.notifier.Notify(ctx, notify.EventPositionOpened, title, msg)
	}
}

func (r *FlashCrashRunner) closePosition(ctx context.Context, sig ExitSignal) {
	pos := sig.Position

	if _, err := r.executor.SubmitMarketSell(ctx, pos.TokenID, sig.Price, pos.Size); err != nil {
		// Keep the position; the next tick retries the exit.
		r.logger.Error("exit order failed",
			slog.String("id", pos.ID), slog.Any("error", err))
		return
	}

	closed, realized, err := r.positions.Close(pos.Side, sig.Price)
	if err != nil {
		r.logger.Error("close position failed", slog.Any("error", err))
		return
	}

	marketSlug := ""
	if m, ok := r.view.Market(); ok {
		marketSlug = m.Slug
	}
	trade := domain.TradeRecord{
		ID:         closed.ID,
		MarketSlug: marketSlug,
		Side:       closed.Side,
		TokenID:    closed.TokenID,
		EntryPrice: closed.EntryPrice,
		ExitPrice:  sig.Price,
		Size:       closed.Size,
		PnL:        realized,
		ExitReason: sig.Reason,
		OpenedAt:   closed.EntryTime,
		ClosedAt:   time.Now(),
	}

	r.logger.Info("position closed",
		slog.String("id", trade.ID),
		slog.String("side", string(trade.Side)),
		slog.String("reason", string(trade.ExitReason)),
		slog.Float64("pnl", realized))

	if r.journal != nil {
		if err := r.journal.Record(ctx, trade); err != nil {
			r.logger.Error("journal write failed", slog.Any("error", err))
		}
	}
	r.publish(ctx, notify.EventPositionClosed, trade)
	if r.notifier != nil {
		title, msg := notify.PositionClosedAlert(trade)
		_ = r.notifier.Notify(ctx, notify.EventPositionClosed, title, msg)
	}
}

func (r *FlashCrashRunner) publish(ctx context.Context, kind string, payload any) {
	if r.bus == nil {
		return
	}
	if err := r.bus.PublishEvent(ctx, kind, payload); err != nil {
		r.logger.Warn("event publish failed",
			slog.String("kind", kind), slog.Any("error", err))
	}
}

func (r *FlashCrashRunner) sideOf(assetID string) (domain.Side, bool) {
	for _, side := range domain.Sides() {
		if r.view.TokenID(side) == assetID {
			return side, true
		}
	}
	return "", false
}
