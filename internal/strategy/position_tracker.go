package strategy

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/alanyoungcy/updownbot/internal/domain"
)

const (
	defaultMaxPositions   = 1
	defaultPositionSize   = 10.0
	defaultTakeProfit     = 0.15
	defaultStopLoss       = 0.10
)

// PositionConfig tunes position sizing and exit targets. Zero values use
// defaults.
type PositionConfig struct {
	// MaxPositions caps concurrently open positions across both sides.
	MaxPositions int

	// Size is the share count of each opened position.
	Size float64

	// TakeProfitDelta exits when price rises this far above entry.
	TakeProfitDelta float64

	// StopLossDelta exits when price falls this far below entry.
	StopLossDelta float64
}

// ExitSignal pairs a position due for closing with the triggering price and
// the unrealized profit at that price.
type ExitSignal struct {
	Position domain.Position
	Reason   domain.ExitReason
	Price    float64
	PnL      float64
}

// PositionTracker holds at most one open position per side, enforces the
// global cap, and accumulates realized results across closes. Safe for
// concurrent use.
type PositionTracker struct {
	cfg PositionConfig

	mu        sync.RWMutex
	positions map[domain.Side]domain.Position

	opened   int
	closed   int
	wins     int
	losses   int
	realized float64
}

// TrackerStats summarizes open and realized position state.
type TrackerStats struct {
	OpenPositions int
	OpenedTrades  int
	ClosedTrades  int
	Wins          int
	Losses        int
	RealizedPnL   float64
}

// NewPositionTracker creates an empty tracker.
func NewPositionTracker(cfg PositionConfig) *PositionTracker {
	if cfg.MaxPositions <= 0 {
		cfg.MaxPositions = defaultMaxPositions
	}
	if cfg.Size <= 0 {
		cfg.Size = defaultPositionSize
	}
	if cfg.TakeProfitDelta <= 0 {
		cfg.TakeProfitDelta = defaultTakeProfit
	}
	if cfg.StopLossDelta <= 0 {
		cfg.StopLossDelta = defaultStopLoss
	}
	return &PositionTracker{
		cfg:       cfg,
		positions: make(map[domain.Side]domain.Position, 2),
	}
}

// Size returns the configured per-position share count.
func (t *PositionTracker) Size() float64 { return t.cfg.Size }

// CanOpen reports whether a new position on the side would be accepted.
func (t *PositionTracker) CanOpen(side domain.Side) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if _, exists := t.positions[side]; exists {
		return false
	}
	return len(t.positions) < t.cfg.MaxPositions
}

// Open records a new position on the side at the entry price. TP/SL deltas
// are copied from the configuration so later reconfiguration leaves live
// positions untouched.
func (t *PositionTracker) Open(side domain.Side, tokenID string, entryPrice float64, orderID string) (domain.Position, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if _, exists := t.positions[side]; exists {
		return domain.Position{}, fmt.Errorf("strategy: open %s: %w", side, domain.ErrPositionExists)
	}
	if len(t.positions) >= t.cfg.MaxPositions {
		return domain.Position{}, fmt.Errorf("strategy: open %s: %w", side, domain.ErrMaxPositions)
	}

	pos := domain.Position{
		ID:              uuid.NewString()[:8],
		Side:            side,
		TokenID:         tokenID,
		EntryPrice:      entryPrice,
		Size:            t.cfg.Size,
		EntryTime:       time.Now(),
		OrderID:         orderID,
		TakeProfitDelta: t.cfg.TakeProfitDelta,
		StopLossDelta:   t.cfg.StopLossDelta,
	}
	t.positions[side] = pos
	t.opened++
	return pos, nil
}

// Close removes the position on the side and returns it with the realized
// profit at the exit price. A break-even close counts as a win.
func (t *PositionTracker) Close(side domain.Side, exitPrice float64) (domain.Position, float64, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	pos, exists := t.positions[side]
	if !exists {
		return domain.Position{}, 0, fmt.Errorf("strategy: close %s: %w", side, domain.ErrNotFound)
	}
	delete(t.positions, side)

	realized := pos.PnL(exitPrice)
	t.closed++
	t.realized += realized
	if realized >= 0 {
		t.wins++
	} else {
		t.losses++
	}
	return pos, realized, nil
}

// CheckExit evaluates TP/SL for the side's open position at the price.
func (t *PositionTracker) CheckExit(side domain.Side, price float64) (ExitSignal, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	pos, exists := t.positions[side]
	if !exists || price <= 0 {
		return ExitSignal{}, false
	}
	reason := pos.CheckExit(price)
	if reason == domain.ExitNone {
		return ExitSignal{}, false
	}
	return ExitSignal{Position: pos, Reason: reason, Price: price, PnL: pos.PnL(price)}, true
}

// CheckAllExits evaluates every open position against the per-side prices
// and returns the positions due for closing, in side order.
func (t *PositionTracker) CheckAllExits(prices map[domain.Side]float64) []ExitSignal {
	var out []ExitSignal
	for _, side := range domain.Sides() {
		if sig, ok := t.CheckExit(side, prices[side]); ok {
			out = append(out, sig)
		}
	}
	return out
}

// Position returns the open position on the side.
func (t *PositionTracker) Position(side domain.Side) (domain.Position, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	pos, exists := t.positions[side]
	return pos, exists
}

// HasPosition reports whether a position is open on the side.
func (t *PositionTracker) HasPosition(side domain.Side) bool {
	_, exists := t.Position(side)
	return exists
}

// Positions returns all open positions in side order.
func (t *PositionTracker) Positions() []domain.Position {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]domain.Position, 0, len(t.positions))
	for _, side := range domain.Sides() {
		if pos, exists := t.positions[side]; exists {
			out = append(out, pos)
		}
	}
	return out
}

// UnrealizedPnL sums open-position profit at the per-side prices. Sides
// without a price contribute zero.
func (t *PositionTracker) UnrealizedPnL(prices map[domain.Side]float64) float64 {
	t.mu.RLock()
	defer t.mu.RUnlock()
	var total float64
	for side, pos := range t.positions {
		if price, ok := prices[side]; ok && price > 0 {
			total += pos.PnL(price)
		}
	}
	return total
}

// RealizedPnL returns the accumulated profit of closed trades.
func (t *PositionTracker) RealizedPnL() float64 {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.realized
}

// WinRate returns the fraction of closed trades that were not losses, or 0
// before the first close.
func (t *PositionTracker) WinRate() float64 {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if t.closed == 0 {
		return 0
	}
	return float64(t.wins) / float64(t.closed)
}

// Stats returns a snapshot of open and realized state.
func (t *PositionTracker) Stats() TrackerStats {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return TrackerStats{
		OpenPositions: len(t.positions),
		OpenedTrades:  t.opened,
		ClosedTrades:  t.closed,
		Wins:          t.wins,
		Losses:        t.losses,
		RealizedPnL:   t.realized,
	}
}

// ResetStats zeroes the trade counters without touching open positions.
func (t *PositionTracker) ResetStats() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.opened, t.closed, t.wins, t.losses = 0, 0, 0, 0
	t.realized = 0
}

// Clear abandons all open positions without touching realized stats.
func (t *PositionTracker) Clear() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.positions = make(map[domain.Side]domain.Position, 2)
}
