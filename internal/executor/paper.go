package executor

import (
	"context"
	"log/slog"
	"sync"

	"github.com/google/uuid"
)

// PaperFill is one simulated execution kept for inspection.
type PaperFill struct {
	OrderID string
	TokenID string
	Side    string // "buy" or "sell"
	Price   float64
	Size    float64
}

// PaperExecutor simulates order placement: every submission fills
// immediately at the requested price shifted by a fixed slippage. It keeps
// an in-memory fill log and is safe for concurrent use.
type PaperExecutor struct {
	slippage float64
	logger   *slog.Logger

	mu    sync.Mutex
	fills []PaperFill
}

// NewPaperExecutor creates a paper executor. Slippage is an absolute price
// offset applied against the caller (added on buys, subtracted on sells).
func NewPaperExecutor(slippage float64, logger *slog.Logger) *PaperExecutor {
	if logger == nil {
		logger = slog.Default()
	}
	return &PaperExecutor{
		slippage: slippage,
		logger:   logger.With(slog.String("component", "paper")),
	}
}

// SubmitMarketBuy simulates an immediate buy fill.
func (e *PaperExecutor) SubmitMarketBuy(ctx context.Context, tokenID string, price, size float64) (string, error) {
	return e.fill(ctx, "buy", tokenID, price+e.slippage, size)
}

// SubmitMarketSell simulates an immediate sell fill.
func (e *PaperExecutor) SubmitMarketSell(ctx context.Context, tokenID string, price, size float64) (string, error) {
	return e.fill(ctx, "sell", tokenID, price-e.slippage, size)
}

func (e *PaperExecutor) fill(ctx context.Context, side, tokenID string, price, size float64) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	orderID := "paper-" + uuid.NewString()[:8]

	e.mu.Lock()
	e.fills = append(e.fills, PaperFill{
		OrderID: orderID,
		TokenID: tokenID,
		Side:    side,
		Price:   price,
		Size:    size,
	})
	e.mu.Unlock()

	e.logger.Info("paper fill",
		slog.String("order_id", orderID),
		slog.String("side", side),
		slog.String("token", tokenID),
		slog.Float64("price", price),
		slog.Float64("size", size))
	return orderID, nil
}

// Fills returns a copy of the fill log, oldest first.
func (e *PaperExecutor) Fills() []PaperFill {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]PaperFill, len(e.fills))
	copy(out, e.fills)
	return out
}
