package domain

import "time"

// ExitReason tags the outcome of an exit check.
type ExitReason string

const (
	ExitNone       ExitReason = ""
	ExitTakeProfit ExitReason = "take_profit"
	ExitStopLoss   ExitReason = "stop_loss"
)

// Position is one open trade on a single side of a market. TP/SL deltas are
// copied from the tracker's configuration at open time, so reconfiguring the
// tracker never retroactively moves the targets of a live position.
type Position struct {
	ID              string
	Side            Side
	TokenID         string
	EntryPrice      float64
	Size            float64
	EntryTime       time.Time
	OrderID         string
	TakeProfitDelta float64
	StopLossDelta   float64
}

// TakeProfitPrice is the price at which the position exits in profit.
func (p Position) TakeProfitPrice() float64 {
	return p.EntryPrice + p.TakeProfitDelta
}

// StopLossPrice is the price at which the position is cut.
func (p Position) StopLossPrice() float64 {
	return p.EntryPrice - p.StopLossDelta
}

// PnL returns the unrealized profit at the given price.
func (p Position) PnL(currentPrice float64) float64 {
	return (currentPrice - p.EntryPrice) * p.Size
}

// PnLPercent returns the unrealized profit as a percentage of the entry.
func (p Position) PnLPercent(currentPrice float64) float64 {
	if p.EntryPrice <= 0 {
		return 0
	}
	return (currentPrice - p.EntryPrice) / p.EntryPrice * 100
}

// HoldTime returns how long the position has been open.
func (p Position) HoldTime() time.Duration {
	return time.Since(p.EntryTime)
}

// CheckExit evaluates TP/SL at the given price. Take-profit is checked first
// and both boundaries are inclusive, so a price sitting exactly on both lines
// resolves as take-profit.
func (p Position) CheckExit(currentPrice float64) ExitReason {
	if currentPrice >= p.TakeProfitPrice() {
		return ExitTakeProfit
	}
	if currentPrice <= p.StopLossPrice() {
		return ExitStopLoss
	}
	return ExitNone
}

// FlashCrashEvent is a detected short-window probability collapse on one side.
type FlashCrashEvent struct {
	Side      Side
	OldPrice  float64
	NewPrice  float64
	Drop      float64
	Timestamp time.Time
}

// DropPercent returns the drop relative to the reference price.
func (e FlashCrashEvent) DropPercent() float64 {
	if e.OldPrice <= 0 {
		return 0
	}
	return e.Drop / e.OldPrice * 100
}
