package strategy

import (
	"math"
	"sync"
	"time"

	"github.com/alanyoungcy/updownbot/internal/domain"
)

const (
	defaultHistoryCap  = 100
	defaultLookback    = 10 * time.Second
	defaultDropTrigger = 0.30
)

// PricePoint records a single price observation at a point in time.
type PricePoint struct {
	Price float64
	Time  time.Time
}

// TrackerConfig tunes the per-side price history and crash detection.
// Zero values use defaults.
type TrackerConfig struct {
	// HistoryCap bounds the number of points kept per side.
	HistoryCap int

	// Lookback is how far back the crash reference price may be taken from.
	Lookback time.Duration

	// DropTrigger is the absolute price drop that flags a flash crash.
	DropTrigger float64
}

// PriceTracker maintains a bounded price history per side and detects flash
// crashes: a drop of at least DropTrigger against the oldest price inside
// the lookback window. Safe for concurrent use.
type PriceTracker struct {
	cfg     TrackerConfig
	mu      sync.RWMutex
	history map[domain.Side][]PricePoint

	// now is stubbed in tests.
	now func() time.Time
}

// NewPriceTracker creates a tracker with empty history for both sides.
func NewPriceTracker(cfg TrackerConfig) *PriceTracker {
	if cfg.HistoryCap <= 0 {
		cfg.HistoryCap = defaultHistoryCap
	}
	if cfg.Lookback <= 0 {
		cfg.Lookback = defaultLookback
	}
	if cfg.DropTrigger <= 0 {
		cfg.DropTrigger = defaultDropTrigger
	}
	return &PriceTracker{
		cfg:     cfg,
		history: make(map[domain.Side][]PricePoint, 2),
		now:     time.Now,
	}
}

// Record appends a price observation for a side. Non-positive prices are
// ignored so empty-book placeholders never enter the history.
func (pt *PriceTracker) Record(side domain.Side, price float64) {
	if price <= 0 {
		return
	}
	pt.mu.Lock()
	defer pt.mu.Unlock()

	h := append(pt.history[side], PricePoint{Price: price, Time: pt.now()})
	if len(h) > pt.cfg.HistoryCap {
		h = h[len(h)-pt.cfg.HistoryCap:]
	}
	pt.history[side] = h
}

// RecordPrices records one observation per side.
func (pt *PriceTracker) RecordPrices(prices map[domain.Side]float64) {
	for side, price := range prices {
		pt.Record(side, price)
	}
}

// CurrentPrice returns the most recent observation for a side.
func (pt *PriceTracker) CurrentPrice(side domain.Side) (float64, bool) {
	pt.mu.RLock()
	defer pt.mu.RUnlock()
	h := pt.history[side]
	if len(h) == 0 {
		return 0, false
	}
	return h[len(h)-1].Price, true
}

// PriceAt returns the oldest observation for a side no older than age.
func (pt *PriceTracker) PriceAt(side domain.Side, age time.Duration) (float64, bool) {
	pt.mu.RLock()
	defer pt.mu.RUnlock()
	p, ok := pt.reference(side, age)
	if !ok {
		return 0, false
	}
	return p.Price, true
}

// reference finds the oldest point within the window. Caller holds pt.mu.
func (pt *PriceTracker) reference(side domain.Side, age time.Duration) (PricePoint, bool) {
	cutoff := pt.now().Add(-age)
	for _, p := range pt.history[side] {
		if !p.Time.Before(cutoff) {
			return p, true
		}
	}
	return PricePoint{}, false
}

// DetectFlashCrash checks one side for a qualifying drop. It compares the
// current price against the oldest price inside the lookback window and
// signals when the fall is at least DropTrigger.
func (pt *PriceTracker) DetectFlashCrash(side domain.Side) (domain.FlashCrashEvent, bool) {
	pt.mu.RLock()
	defer pt.mu.RUnlock()

	h := pt.history[side]
	if len(h) < 2 {
		return domain.FlashCrashEvent{}, false
	}
	ref, ok := pt.reference(side, pt.cfg.Lookback)
	if !ok {
		return domain.FlashCrashEvent{}, false
	}
	current := h[len(h)-1]
	drop := ref.Price - current.Price
	if drop < pt.cfg.DropTrigger {
		return domain.FlashCrashEvent{}, false
	}
	return domain.FlashCrashEvent{
		Side:      side,
		OldPrice:  ref.Price,
		NewPrice:  current.Price,
		Drop:      drop,
		Timestamp: current.Time,
	}, true
}

// DetectAll checks both sides in fixed order (up, then down) and returns the
// first qualifying crash.
func (pt *PriceTracker) DetectAll() (domain.FlashCrashEvent, bool) {
	for _, side := range domain.Sides() {
		if ev, ok := pt.DetectFlashCrash(side); ok {
			return ev, true
		}
	}
	return domain.FlashCrashEvent{}, false
}

// PriceRange returns the min and max observed for a side within the window.
func (pt *PriceTracker) PriceRange(side domain.Side, window time.Duration) (min, max float64, ok bool) {
	pt.mu.RLock()
	defer pt.mu.RUnlock()

	cutoff := pt.now().Add(-window)
	min, max = math.Inf(1), math.Inf(-1)
	for _, p := range pt.history[side] {
		if p.Time.Before(cutoff) {
			continue
		}
		if p.Price < min {
			min = p.Price
		}
		if p.Price > max {
			max = p.Price
		}
		ok = true
	}
	if !ok {
		return 0, 0, false
	}
	return min, max, true
}

// Volatility returns the price range (max minus min) observed within the
// window, or 0 without observations.
func (pt *PriceTracker) Volatility(side domain.Side, window time.Duration) float64 {
	min, max, ok := pt.PriceRange(side, window)
	if !ok {
		return 0
	}
	return max - min
}

// History returns a copy of one side's observations, oldest first.
func (pt *PriceTracker) History(side domain.Side) []PricePoint {
	pt.mu.RLock()
	defer pt.mu.RUnlock()
	src := pt.history[side]
	if len(src) == 0 {
		return nil
	}
	out := make([]PricePoint, len(src))
	copy(out, src)
	return out
}

// HistoryCount returns the number of stored observations for a side.
func (pt *PriceTracker) HistoryCount(side domain.Side) int {
	pt.mu.RLock()
	defer pt.mu.RUnlock()
	return len(pt.history[side])
}

// Clear drops all history, typically on a market rollover so prices from
// the expiring market never feed detection on the next one.
func (pt *PriceTracker) Clear() {
	pt.mu.Lock()
	defer pt.mu.Unlock()
	pt.history = make(map[domain.Side][]PricePoint, 2)
}

// ClearSide drops one side's history, leaving the other side intact.
func (pt *PriceTracker) ClearSide(side domain.Side) {
	pt.mu.Lock()
	defer pt.mu.Unlock()
	delete(pt.history, side)
}
