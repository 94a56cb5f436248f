package domain

import "context"

// Discoverer finds the currently active 15-minute market for an underlying
// coin. Implementations block on network I/O; callers must invoke them off
// the event-dispatch path.
type Discoverer interface {
	Discover(ctx context.Context, coin string) (MarketInfo, error)
}

// OrderSubmitter places marketable orders and returns an order identifier.
// Signing and request authentication live behind this port.
type OrderSubmitter interface {
	SubmitMarketBuy(ctx context.Context, tokenID string, price, size float64) (orderID string, err error)
	SubmitMarketSell(ctx context.Context, tokenID string, price, size float64) (orderID string, err error)
}
