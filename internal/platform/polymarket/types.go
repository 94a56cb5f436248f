package polymarket

import (
	"encoding/json"
	"sort"
	"strconv"
	"time"

	"github.com/alanyoungcy/updownbot/internal/domain"
)

// --------------------------------------------------------------------------
// WebSocket DTOs
// --------------------------------------------------------------------------

// wsEnvelope carries just enough of a frame to route it by event type.
type wsEnvelope struct {
	EventType string `json:"event_type"`
}

// wsLevel is a single bid/ask level as delivered on the wire. Prices and
// sizes arrive as decimal strings.
type wsLevel struct {
	Price string `json:"price"`
	Size  string `json:"size"`
}

// wsBookMessage is a full orderbook replacement for one asset.
type wsBookMessage struct {
	EventType string    `json:"event_type"`
	AssetID   string    `json:"asset_id"`
	Market    string    `json:"market"`
	Timestamp string    `json:"timestamp"`
	Bids      []wsLevel `json:"bids"`
	Asks      []wsLevel `json:"asks"`
	Hash      string    `json:"hash"`
}

// wsPriceChange is one tick inside a price_change batch.
type wsPriceChange struct {
	AssetID string `json:"asset_id"`
	Price   string `json:"price"`
	Size    string `json:"size"`
	Side    string `json:"side"`
	BestBid string `json:"best_bid"`
	BestAsk string `json:"best_ask"`
	Hash    string `json:"hash"`
}

// wsPriceChangeMessage is a batch of incremental price ticks for one market.
type wsPriceChangeMessage struct {
	EventType    string          `json:"event_type"`
	Market       string          `json:"market"`
	PriceChanges []wsPriceChange `json:"price_changes"`
}

// wsLastTradeMessage is the most recent trade execution for an asset.
type wsLastTradeMessage struct {
	EventType  string `json:"event_type"`
	AssetID    string `json:"asset_id"`
	Market     string `json:"market"`
	Price      string `json:"price"`
	Size       string `json:"size"`
	Side       string `json:"side"`
	Timestamp  string `json:"timestamp"`
	FeeRateBps string `json:"fee_rate_bps"`
}

// marketSubscription is the frame sent on (re)connect or full replace.
type marketSubscription struct {
	AssetsIDs []string `json:"assets_ids"`
	Type      string   `json:"type"` // always "MARKET"
}

// subscriptionOp is the frame sent for incremental subscribe/unsubscribe.
type subscriptionOp struct {
	AssetsIDs []string `json:"assets_ids"`
	Operation string   `json:"operation"` // "subscribe" or "unsubscribe"
}

// --------------------------------------------------------------------------
// Conversion helpers: wire -> domain
// --------------------------------------------------------------------------

// toSnapshot converts a book message into a domain snapshot. Bids are sorted
// descending and asks ascending regardless of wire order.
func (b *wsBookMessage) toSnapshot() domain.OrderbookSnapshot {
	snap := domain.OrderbookSnapshot{
		AssetID:   b.AssetID,
		Market:    b.Market,
		Timestamp: parseTimestamp(b.Timestamp),
		Hash:      b.Hash,
	}

	snap.Bids = make([]domain.OrderbookLevel, 0, len(b.Bids))
	for _, lvl := range b.Bids {
		snap.Bids = append(snap.Bids, domain.OrderbookLevel{
			Price: parseFloat(lvl.Price),
			Size:  parseFloat(lvl.Size),
		})
	}
	snap.Asks = make([]domain.OrderbookLevel, 0, len(b.Asks))
	for _, lvl := range b.Asks {
		snap.Asks = append(snap.Asks, domain.OrderbookLevel{
			Price: parseFloat(lvl.Price),
			Size:  parseFloat(lvl.Size),
		})
	}

	sort.Slice(snap.Bids, func(i, j int) bool { return snap.Bids[i].Price > snap.Bids[j].Price })
	sort.Slice(snap.Asks, func(i, j int) bool { return snap.Asks[i].Price < snap.Asks[j].Price })

	return snap
}

// toDomain converts every tick in the batch, preserving wire order.
func (m *wsPriceChangeMessage) toDomain() []domain.PriceChange {
	out := make([]domain.PriceChange, 0, len(m.PriceChanges))
	for i := range m.PriceChanges {
		out = append(out, m.PriceChanges[i].toDomain())
	}
	return out
}

// toDomain converts one price tick.
func (p *wsPriceChange) toDomain() domain.PriceChange {
	return domain.PriceChange{
		AssetID: p.AssetID,
		Price:   parseFloat(p.Price),
		Size:    parseFloat(p.Size),
		Side:    p.Side,
		BestBid: parseFloat(p.BestBid),
		BestAsk: parseFloat(p.BestAsk),
		Hash:    p.Hash,
	}
}

// toDomain converts a last trade message.
func (t *wsLastTradeMessage) toDomain() domain.LastTradePrice {
	fee, _ := strconv.Atoi(t.FeeRateBps)
	return domain.LastTradePrice{
		AssetID:    t.AssetID,
		Market:     t.Market,
		Price:      parseFloat(t.Price),
		Size:       parseFloat(t.Size),
		Side:       t.Side,
		Timestamp:  parseTimestamp(t.Timestamp),
		FeeRateBps: fee,
	}
}

func parseFloat(s string) float64 {
	f, _ := strconv.ParseFloat(s, 64)
	return f
}

// parseTimestamp handles the feed's unix timestamps, which arrive as second
// or millisecond strings depending on the event, plus an RFC3339 fallback.
func parseTimestamp(s string) time.Time {
	if ts, err := strconv.ParseInt(s, 10, 64); err == nil {
		if ts > 1_000_000_000_000 { // milliseconds
			return time.UnixMilli(ts)
		}
		return time.Unix(ts, 0)
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t
	}
	return time.Now()
}

// --------------------------------------------------------------------------
// Gamma API DTOs
// --------------------------------------------------------------------------

// gammaMarket is the market document returned by the Gamma API. The
// clobTokenIds, outcomes, and outcomePrices fields arrive either as JSON
// arrays or as JSON-encoded strings, depending on the endpoint.
type gammaMarket struct {
	Slug            string          `json:"slug"`
	Question        string          `json:"question"`
	EndDate         string          `json:"endDate"`
	AcceptingOrders bool            `json:"acceptingOrders"`
	ClobTokenIDs    json.RawMessage `json:"clobTokenIds"`
	Outcomes        json.RawMessage `json:"outcomes"`
	OutcomePrices   json.RawMessage `json:"outcomePrices"`
}

// decodeStringList decodes a field that is either a JSON array of strings or
// a JSON string containing such an array.
func decodeStringList(raw json.RawMessage) []string {
	if len(raw) == 0 {
		return nil
	}
	var list []string
	if err := json.Unmarshal(raw, &list); err == nil {
		return list
	}
	var encoded string
	if err := json.Unmarshal(raw, &encoded); err != nil {
		return nil
	}
	if err := json.Unmarshal([]byte(encoded), &list); err != nil {
		return nil
	}
	return list
}

// toMarketInfo maps outcome labels to sides and builds the domain record.
func (g *gammaMarket) toMarketInfo() domain.MarketInfo {
	info := domain.MarketInfo{
		Slug:            g.Slug,
		Question:        g.Question,
		EndDate:         g.EndDate,
		TokenIDs:        make(map[domain.Side]string, 2),
		Prices:          make(map[domain.Side]float64, 2),
		AcceptingOrders: g.AcceptingOrders,
	}

	outcomes := decodeStringList(g.Outcomes)
	if len(outcomes) == 0 {
		outcomes = []string{"Up", "Down"}
	}
	tokens := decodeStringList(g.ClobTokenIDs)
	prices := decodeStringList(g.OutcomePrices)

	for i, outcome := range outcomes {
		side, ok := domain.ParseSide(outcome)
		if !ok {
			continue
		}
		if i < len(tokens) {
			info.TokenIDs[side] = tokens[i]
		}
		if i < len(prices) {
			info.Prices[side] = parseFloat(prices[i])
		}
	}

	return info
}
