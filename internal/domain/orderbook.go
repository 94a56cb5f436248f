package domain

import "time"

// OrderbookLevel is a single price+size entry in an orderbook ladder.
type OrderbookLevel struct {
	Price float64
	Size  float64
}

// OrderbookSnapshot is a full two-sided snapshot of the book for one asset.
// Bids are sorted descending by price and asks ascending; the feed client
// re-sorts on every parse rather than trusting wire order. Snapshots are
// replaced wholesale on every book event and are read-only to handlers.
type OrderbookSnapshot struct {
	AssetID   string
	Market    string
	Timestamp time.Time
	Bids      []OrderbookLevel
	Asks      []OrderbookLevel
	Hash      string
}

// BestBid returns the highest bid price, or 0 when the bid side is empty.
func (s OrderbookSnapshot) BestBid() float64 {
	if len(s.Bids) == 0 {
		return 0
	}
	return s.Bids[0].Price
}

// BestAsk returns the lowest ask price, or 1 when the ask side is empty.
func (s OrderbookSnapshot) BestAsk() float64 {
	if len(s.Asks) == 0 {
		return 1
	}
	return s.Asks[0].Price
}

// MidPrice returns the midpoint of the book. When only one side is present
// that side's best price is used; an empty book yields the neutral prior 0.5.
func (s OrderbookSnapshot) MidPrice() float64 {
	bid, ask := s.BestBid(), s.BestAsk()
	switch {
	case bid > 0 && ask < 1:
		return (bid + ask) / 2
	case bid > 0:
		return bid
	case ask < 1:
		return ask
	}
	return 0.5
}

// Spread returns best ask minus best bid, or 0 when there is no bid.
func (s OrderbookSnapshot) Spread() float64 {
	if bid := s.BestBid(); bid > 0 {
		return s.BestAsk() - bid
	}
	return 0
}

// PriceChange is a single incremental price tick inside a price_change batch.
// It is forwarded to handlers as-is and never folded into the cached book.
type PriceChange struct {
	AssetID string
	Price   float64
	Size    float64
	Side    string // "BUY" or "SELL"
	BestBid float64
	BestAsk float64
	Hash    string
}

// LastTradePrice is the most recent trade execution for an asset.
type LastTradePrice struct {
	AssetID    string
	Market     string
	Price      float64
	Size       float64
	Side       string
	Timestamp  time.Time
	FeeRateBps int
}
