package market

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/alanyoungcy/updownbot/internal/domain"
	"github.com/alanyoungcy/updownbot/internal/platform/polymarket"
)

const (
	defaultCheckInterval   = 15 * time.Second
	defaultSwitchThreshold = 30 * time.Second
	rolloverPollInterval   = 2 * time.Second
	dataPollInterval       = 100 * time.Millisecond
)

// Feed is the slice of the websocket client the manager drives.
type Feed interface {
	Run(ctx context.Context, autoReconnect bool) error
	Stop()
	Subscribe(ctx context.Context, assetIDs []string, replace bool) bool
	Unsubscribe(ctx context.Context, assetIDs []string) bool
	IsConnected() bool
	Orderbook(assetID string) (domain.OrderbookSnapshot, bool)
	MidPrice(assetID string) float64
	OnBook(polymarket.BookHandler)
	OnPriceChange(polymarket.PriceChangeHandler)
	OnTrade(polymarket.TradeHandler)
	OnConnect(polymarket.ConnHandler)
	OnDisconnect(polymarket.ConnHandler)
	OnError(polymarket.ErrorHandler)
}

// MarketChangeHandler is notified after the manager rolls from one market
// to another. It does not fire on the initial discovery.
type MarketChangeHandler func(oldMarket, newMarket domain.MarketInfo)

// Config carries orchestration tunables. Zero values use defaults.
type Config struct {
	// Coin selects the Up/Down series, e.g. "btc", "eth", "sol", "xrp".
	Coin string

	// CheckInterval is how often the rollover loop inspects the current
	// market's remaining lifetime.
	CheckInterval time.Duration

	// SwitchThreshold tightens the discovery poll when the current market
	// has this much or less lifetime left.
	SwitchThreshold time.Duration
}

// Manager keeps the bot pointed at the live 15-minute market: it discovers
// the current market, subscribes its two outcome tokens on the feed, and
// rolls the subscription over as each window expires.
type Manager struct {
	cfg        Config
	discoverer domain.Discoverer
	feed       Feed
	logger     *slog.Logger

	mu         sync.RWMutex
	market     domain.MarketInfo
	haveMarket bool

	handlerMu sync.RWMutex
	handlers  []MarketChangeHandler
}

// NewManager wires a manager over a discoverer and a feed.
func NewManager(cfg Config, discoverer domain.Discoverer, feed Feed, logger *slog.Logger) *Manager {
	if cfg.CheckInterval <= 0 {
		cfg.CheckInterval = defaultCheckInterval
	}
	if cfg.SwitchThreshold <= 0 {
		cfg.SwitchThreshold = defaultSwitchThreshold
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		cfg:        cfg,
		discoverer: discoverer,
		feed:       feed,
		logger:     logger.With(slog.String("component", "market")),
	}
}

// Feed exposes the underlying feed for handler registration.
func (m *Manager) Feed() Feed { return m.feed }

// OnMarketChange registers a rollover handler. Handlers run on the loop
// that performed the switch, after the subscription and state update.
func (m *Manager) OnMarketChange(h MarketChangeHandler) {
	m.handlerMu.Lock()
	m.handlers = append(m.handlers, h)
	m.handlerMu.Unlock()
}

// Run discovers the initial market, then drives the feed and the rollover
// loop until ctx is cancelled. The initial discovery must succeed.
func (m *Manager) Run(ctx context.Context) error {
	if err := m.Refresh(ctx); err != nil {
		return fmt.Errorf("market: initial discovery: %w", err)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return m.feed.Run(gctx, true)
	})
	g.Go(func() error {
		return m.checkLoop(gctx)
	})
	err := g.Wait()
	m.feed.Stop()
	if ctx.Err() != nil {
		return ctx.Err()
	}
	return err
}

// Refresh discovers the market for the configured coin and applies it.
func (m *Manager) Refresh(ctx context.Context) error {
	info, err := m.discoverer.Discover(ctx, m.cfg.Coin)
	if err != nil {
		return err
	}
	m.apply(ctx, info)
	return nil
}

// apply decides whether the discovered market replaces, refreshes, or is
// rejected against the current one.
func (m *Manager) apply(ctx context.Context, next domain.MarketInfo) {
	m.mu.Lock()
	cur := m.market
	have := m.haveMarket

	if have && sameTokens(cur, next) {
		// Same instruments: keep the subscription, refresh metadata.
		m.market = next
		m.mu.Unlock()
		return
	}

	if have {
		curKey, curOK := cur.SortKey()
		nextKey, nextOK := next.SortKey()
		if curOK && nextOK && nextKey <= curKey {
			m.mu.Unlock()
			m.logger.Warn("ignoring stale market",
				slog.String("current", cur.Slug), slog.String("candidate", next.Slug))
			return
		}
	}
	m.mu.Unlock()

	// Resubscribe first so no event for the old instruments lands after the
	// state flips.
	m.feed.Subscribe(ctx, next.Tokens(), true)

	m.mu.Lock()
	m.market = next
	m.haveMarket = true
	m.mu.Unlock()

	m.logger.Info("market switched",
		slog.String("from", cur.Slug), slog.String("to", next.Slug))

	if have && cur.Slug != next.Slug {
		m.handlerMu.RLock()
		handlers := m.handlers
		m.handlerMu.RUnlock()
		for _, h := range handlers {
			m.safeNotify(h, cur, next)
		}
	}
}

// safeNotify invokes one rollover handler, containing any panic so a faulty
// listener cannot take down the check loop.
func (m *Manager) safeNotify(h MarketChangeHandler, old, next domain.MarketInfo) {
	defer func() {
		if r := recover(); r != nil {
			m.logger.Error("market change handler panicked", slog.Any("panic", r))
		}
	}()
	h(old, next)
}

// checkLoop re-runs discovery every interval. Mid-window this usually lands
// in the same-tokens branch and only refreshes the cached metadata; near the
// window boundary it picks up the next market and rolls the subscription.
func (m *Manager) checkLoop(ctx context.Context) error {
	timer := time.NewTimer(m.checkDelay())
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-timer.C:
			if err := m.Refresh(ctx); err != nil {
				m.logger.Warn("market refresh failed", slog.Any("error", err))
			}
			timer.Reset(m.checkDelay())
		}
	}
}

// checkDelay returns the wait before the next discovery. Within
// SwitchThreshold of the window boundary the loop polls faster so the
// rollover lands promptly.
func (m *Manager) checkDelay() time.Duration {
	cur, ok := m.Market()
	if ok && cur.IsEndingSoon(m.cfg.SwitchThreshold) && rolloverPollInterval < m.cfg.CheckInterval {
		return rolloverPollInterval
	}
	return m.cfg.CheckInterval
}

// WaitForData blocks until the feed is connected and holds an orderbook
// snapshot for at least one token of the current market, or the timeout
// elapses. One side's book is enough; the other usually trails by a frame.
func (m *Manager) WaitForData(ctx context.Context, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	ticker := time.NewTicker(dataPollInterval)
	defer ticker.Stop()

	for {
		if cur, ok := m.Market(); ok && m.feed.IsConnected() {
			for _, token := range cur.Tokens() {
				if _, found := m.feed.Orderbook(token); found {
					return nil
				}
			}
		}
		if time.Now().After(deadline) {
			return fmt.Errorf("market: no orderbook data within %s", timeout)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// Market returns the current market snapshot.
func (m *Manager) Market() (domain.MarketInfo, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.market, m.haveMarket
}

// TokenID returns the instrument ID for one side of the current market.
func (m *Manager) TokenID(side domain.Side) string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.market.TokenIDs[side]
}

// Orderbook returns the cached snapshot for one side.
func (m *Manager) Orderbook(side domain.Side) (domain.OrderbookSnapshot, bool) {
	token := m.TokenID(side)
	if token == "" {
		return domain.OrderbookSnapshot{}, false
	}
	return m.feed.Orderbook(token)
}

// MidPrice returns the mid price for one side, or 0 without data.
func (m *Manager) MidPrice(side domain.Side) float64 {
	snap, ok := m.Orderbook(side)
	if !ok {
		return 0
	}
	return snap.MidPrice()
}

// BestBid returns the best bid for one side, or 0 without data.
func (m *Manager) BestBid(side domain.Side) float64 {
	snap, ok := m.Orderbook(side)
	if !ok {
		return 0
	}
	return snap.BestBid()
}

// BestAsk returns the best ask for one side, or 1 without data.
func (m *Manager) BestAsk(side domain.Side) float64 {
	snap, ok := m.Orderbook(side)
	if !ok {
		return 1
	}
	return snap.BestAsk()
}

// Spread returns the bid/ask spread for one side, or 0 without data.
func (m *Manager) Spread(side domain.Side) float64 {
	snap, ok := m.Orderbook(side)
	if !ok {
		return 0
	}
	return snap.Spread()
}

// sameTokens reports whether two markets reference the same instruments.
func sameTokens(a, b domain.MarketInfo) bool {
	if len(a.TokenIDs) != len(b.TokenIDs) {
		return false
	}
	for side, id := range a.TokenIDs {
		if b.TokenIDs[side] != id {
			return false
		}
	}
	return true
}
