package domain

import (
	"context"
	"time"
)

// PriceCache provides fast access to the latest per-side prices for external
// consumers (dashboards, other processes).
type PriceCache interface {
	SetPrice(ctx context.Context, assetID string, price float64, ts time.Time) error
	GetPrice(ctx context.Context, assetID string) (float64, time.Time, error)
	GetPrices(ctx context.Context, assetIDs []string) (map[string]float64, error)
}

// SignalBus provides pub/sub fan-out of engine events (flash crashes,
// position lifecycle, market changes) to consumers outside the process.
type SignalBus interface {
	Publish(ctx context.Context, channel string, payload []byte) error
	Subscribe(ctx context.Context, channel string) (<-chan []byte, error)
}
