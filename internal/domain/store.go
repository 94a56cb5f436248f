package domain

import (
	"context"
	"time"
)

// TradeRecord is one closed flash-crash trade as persisted in the journal.
type TradeRecord struct {
	ID         string
	MarketSlug string
	Side       Side
	TokenID    string
	EntryPrice float64
	ExitPrice  float64
	Size       float64
	PnL        float64
	ExitReason ExitReason
	OpenedAt   time.Time
	ClosedAt   time.Time
}

// JournalStats are aggregates over the persisted journal.
type JournalStats struct {
	TradesClosed  int
	TotalPnL      float64
	WinningTrades int
	LosingTrades  int
}

// TradeJournal persists closed trades and serves history queries.
type TradeJournal interface {
	Record(ctx context.Context, trade TradeRecord) error
	ListRecent(ctx context.Context, limit int) ([]TradeRecord, error)
	Stats(ctx context.Context) (JournalStats, error)
}
