package polymarket

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/alanyoungcy/updownbot/internal/domain"
)

// DefaultWSURL is the public market-data channel of the Polymarket CLOB.
const DefaultWSURL = "wss://ws-subscriptions-clob.polymarket.com/ws/market"

const (
	defaultReconnectInterval = 5 * time.Second
	defaultPingInterval      = 20 * time.Second
	writeWait                = 10 * time.Second
	handshakeTimeout         = 15 * time.Second
	frameBuffer              = 64
)

// Handler types invoked by the feed client. Handlers run on the read loop
// goroutine, in registration order; a panic in one handler is recovered and
// logged without affecting the others.
type (
	BookHandler        func(domain.OrderbookSnapshot)
	PriceChangeHandler func(market string, changes []domain.PriceChange)
	TradeHandler       func(domain.LastTradePrice)
	ConnHandler        func()
	ErrorHandler       func(error)
)

// FeedConfig carries the tunables of a FeedClient. Zero values fall back to
// the package defaults.
type FeedConfig struct {
	URL               string
	ReconnectInterval time.Duration
	PingInterval      time.Duration
	Header            http.Header
}

// FeedClient maintains a websocket subscription to the CLOB market channel.
// It caches the latest order book per asset and fans events out to
// registered handlers. Subscriptions survive reconnects: the full subscribed
// set is resent on every successful connect.
type FeedClient struct {
	url               string
	reconnectInterval time.Duration
	pingInterval      time.Duration
	header            http.Header
	logger            *slog.Logger

	running atomic.Bool

	mu         sync.RWMutex
	conn       *websocket.Conn
	connected  bool
	subscribed map[string]struct{}
	books      map[string]domain.OrderbookSnapshot

	writeMu sync.Mutex

	handlerMu          sync.RWMutex
	bookHandlers       []BookHandler
	priceHandlers      []PriceChangeHandler
	tradeHandlers      []TradeHandler
	connectHandlers    []ConnHandler
	disconnectHandlers []ConnHandler
	errorHandlers      []ErrorHandler
}

// NewFeedClient builds a client; it does not connect.
func NewFeedClient(cfg FeedConfig, logger *slog.Logger) *FeedClient {
	if cfg.URL == "" {
		cfg.URL = DefaultWSURL
	}
	if cfg.ReconnectInterval <= 0 {
		cfg.ReconnectInterval = defaultReconnectInterval
	}
	if cfg.PingInterval <= 0 {
		cfg.PingInterval = defaultPingInterval
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &FeedClient{
		url:               cfg.URL,
		reconnectInterval: cfg.ReconnectInterval,
		pingInterval:      cfg.PingInterval,
		header:            cfg.Header,
		logger:            logger.With(slog.String("component", "feed")),
		subscribed:        make(map[string]struct{}),
		books:             make(map[string]domain.OrderbookSnapshot),
	}
}

// OnBook registers a handler for full order-book snapshots.
func (c *FeedClient) OnBook(h BookHandler) {
	c.handlerMu.Lock()
	c.bookHandlers = append(c.bookHandlers, h)
	c.handlerMu.Unlock()
}

// OnPriceChange registers a handler for batched top-of-book updates.
func (c *FeedClient) OnPriceChange(h PriceChangeHandler) {
	c.handlerMu.Lock()
	c.priceHandlers = append(c.priceHandlers, h)
	c.handlerMu.Unlock()
}

// OnTrade registers a handler for last-trade-price events.
func (c *FeedClient) OnTrade(h TradeHandler) {
	c.handlerMu.Lock()
	c.tradeHandlers = append(c.tradeHandlers, h)
	c.handlerMu.Unlock()
}

// OnConnect registers a handler fired after each successful connect.
func (c *FeedClient) OnConnect(h ConnHandler) {
	c.handlerMu.Lock()
	c.connectHandlers = append(c.connectHandlers, h)
	c.handlerMu.Unlock()
}

// OnDisconnect registers a handler fired once per connection loss.
func (c *FeedClient) OnDisconnect(h ConnHandler) {
	c.handlerMu.Lock()
	c.disconnectHandlers = append(c.disconnectHandlers, h)
	c.handlerMu.Unlock()
}

// OnError registers a handler for transport and parse errors.
func (c *FeedClient) OnError(h ErrorHandler) {
	c.handlerMu.Lock()
	c.errorHandlers = append(c.errorHandlers, h)
	c.handlerMu.Unlock()
}

// IsConnected reports whether the socket is currently established.
func (c *FeedClient) IsConnected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.connected
}

// Orderbook returns the latest cached snapshot for an asset.
func (c *FeedClient) Orderbook(assetID string) (domain.OrderbookSnapshot, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	snap, ok := c.books[assetID]
	return snap, ok
}

// MidPrice returns the cached mid price for an asset, or 0 if no snapshot
// has been received yet.
func (c *FeedClient) MidPrice(assetID string) float64 {
	snap, ok := c.Orderbook(assetID)
	if !ok {
		return 0
	}
	return snap.MidPrice()
}

// SubscribedAssets returns a copy of the current subscription set.
func (c *FeedClient) SubscribedAssets() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]string, 0, len(c.subscribed))
	for id := range c.subscribed {
		out = append(out, id)
	}
	return out
}

// Subscribe adds asset IDs to the subscription set. With replace the set and
// the book cache are reset first and a full MARKET subscription frame is
// sent; otherwise an incremental subscribe operation goes out. The returned
// bool reports whether a frame was written. When disconnected the set is
// still updated and pushed on the next connect.
func (c *FeedClient) Subscribe(ctx context.Context, assetIDs []string, replace bool) bool {
	if len(assetIDs) == 0 && !replace {
		return false
	}

	c.mu.Lock()
	if replace {
		c.subscribed = make(map[string]struct{}, len(assetIDs))
		c.books = make(map[string]domain.OrderbookSnapshot, len(assetIDs))
	}
	for _, id := range assetIDs {
		c.subscribed[id] = struct{}{}
	}
	all := make([]string, 0, len(c.subscribed))
	for id := range c.subscribed {
		all = append(all, id)
	}
	connected := c.connected
	c.mu.Unlock()

	if !connected {
		c.logger.Debug("not connected, subscription deferred", slog.Int("assets", len(all)))
		return false
	}

	var err error
	if replace {
		err = c.writeJSON(marketSubscription{AssetsIDs: all, Type: "MARKET"})
	} else {
		err = c.writeJSON(subscriptionOp{AssetsIDs: assetIDs, Operation: "subscribe"})
	}
	if err != nil {
		c.fireError(fmt.Errorf("polymarket: subscribe: %w", err))
		return false
	}
	c.logger.Info("subscribed", slog.Int("assets", len(assetIDs)), slog.Bool("replace", replace))
	return true
}

// Unsubscribe removes asset IDs from the subscription set and, when
// connected, sends an unsubscribe operation.
func (c *FeedClient) Unsubscribe(ctx context.Context, assetIDs []string) bool {
	if len(assetIDs) == 0 {
		return false
	}

	c.mu.Lock()
	for _, id := range assetIDs {
		delete(c.subscribed, id)
		delete(c.books, id)
	}
	connected := c.connected
	c.mu.Unlock()

	if !connected {
		return false
	}
	if err := c.writeJSON(subscriptionOp{AssetsIDs: assetIDs, Operation: "unsubscribe"}); err != nil {
		c.fireError(fmt.Errorf("polymarket: unsubscribe: %w", err))
		return false
	}
	c.logger.Info("unsubscribed", slog.Int("assets", len(assetIDs)))
	return true
}

// Run connects and consumes the feed until ctx is cancelled or Stop is
// called. With autoReconnect it reconnects on a fixed interval after any
// connection loss; otherwise it returns after the first disconnect.
func (c *FeedClient) Run(ctx context.Context, autoReconnect bool) error {
	c.running.Store(true)
	defer c.running.Store(false)

	for c.running.Load() {
		if err := c.connect(ctx); err != nil {
			c.fireError(err)
			if !autoReconnect {
				return err
			}
			c.logger.Warn("connect failed, retrying",
				slog.Duration("in", c.reconnectInterval), slog.Any("error", err))
			if !sleepCtx(ctx, c.reconnectInterval) {
				return ctx.Err()
			}
			continue
		}

		c.resendSubscriptions()
		c.readLoop(ctx)
		c.closeConn()

		if ctx.Err() != nil {
			return ctx.Err()
		}
		if !c.running.Load() {
			return nil
		}
		if !autoReconnect {
			return domain.ErrWSDisconnect
		}
		c.logger.Warn("connection lost, reconnecting",
			slog.Duration("in", c.reconnectInterval))
		if !sleepCtx(ctx, c.reconnectInterval) {
			return ctx.Err()
		}
	}
	return nil
}

// Stop ends the Run loop and closes the current connection.
func (c *FeedClient) Stop() {
	c.running.Store(false)
	c.closeConn()
}

func (c *FeedClient) connect(ctx context.Context) error {
	dialer := websocket.Dialer{HandshakeTimeout: handshakeTimeout}
	conn, resp, err := dialer.DialContext(ctx, c.url, c.header)
	if err != nil {
		if resp != nil {
			return fmt.Errorf("polymarket: dial %s: status %d: %w", c.url, resp.StatusCode, err)
		}
		return fmt.Errorf("polymarket: dial %s: %w", c.url, err)
	}

	pongWait := c.pingInterval + 10*time.Second
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	c.mu.Lock()
	c.conn = conn
	c.connected = true
	c.mu.Unlock()

	c.logger.Info("connected", slog.String("url", c.url))
	c.fireConn(c.connectHandlersCopy(), "connect")
	return nil
}

// closeConn tears down the socket and fires disconnect handlers exactly
// once per established connection.
func (c *FeedClient) closeConn() {
	c.mu.Lock()
	conn := c.conn
	wasConnected := c.connected
	c.conn = nil
	c.connected = false
	c.mu.Unlock()

	if conn != nil {
		c.writeMu.Lock()
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(writeWait))
		c.writeMu.Unlock()
		_ = conn.Close()
	}
	if wasConnected {
		c.logger.Info("disconnected")
		c.fireConn(c.disconnectHandlersCopy(), "disconnect")
	}
}

// resendSubscriptions pushes the full subscribed set after a (re)connect so
// the server rebuilds state for every tracked asset.
func (c *FeedClient) resendSubscriptions() {
	c.mu.RLock()
	all := make([]string, 0, len(c.subscribed))
	for id := range c.subscribed {
		all = append(all, id)
	}
	c.mu.RUnlock()

	if len(all) == 0 {
		return
	}
	if err := c.writeJSON(marketSubscription{AssetsIDs: all, Type: "MARKET"}); err != nil {
		c.fireError(fmt.Errorf("polymarket: resubscribe: %w", err))
		return
	}
	c.logger.Info("resubscribed", slog.Int("assets", len(all)))
}

// readLoop consumes frames until the connection dies or ctx is cancelled.
// Frames are pumped by a dedicated reader goroutine so a quiet socket shows
// up as a timer tick here, logged as a warning, instead of ending the read.
func (c *FeedClient) readLoop(ctx context.Context) {
	c.mu.RLock()
	conn := c.conn
	c.mu.RUnlock()
	if conn == nil {
		return
	}

	frames := make(chan []byte, frameBuffer)
	done := make(chan struct{})
	defer close(done)
	go c.readPump(conn, frames, done)

	pingStop := make(chan struct{})
	defer close(pingStop)
	go c.pingLoop(conn, pingStop)

	recvTimeout := c.pingInterval + 5*time.Second
	timer := time.NewTimer(recvTimeout)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-frames:
			if !ok {
				return
			}
			c.handleFrame(msg)
			if !timer.Stop() {
				select {
				case <-timer.C:
				default:
				}
			}
			timer.Reset(recvTimeout)
		case <-timer.C:
			c.logger.Warn("receive timeout, still waiting",
				slog.Duration("timeout", recvTimeout))
			timer.Reset(recvTimeout)
		}
	}
}

func (c *FeedClient) readPump(conn *websocket.Conn, frames chan<- []byte, done <-chan struct{}) {
	defer close(frames)
	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				c.fireError(fmt.Errorf("polymarket: read: %w", err))
			}
			return
		}
		select {
		case frames <- msg:
		case <-done:
			return
		}
	}
}

func (c *FeedClient) pingLoop(conn *websocket.Conn, stop <-chan struct{}) {
	ticker := time.NewTicker(c.pingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			c.writeMu.Lock()
			err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait))
			c.writeMu.Unlock()
			if err != nil {
				return
			}
		}
	}
}

// handleFrame accepts a single event object or a JSON array of events and
// processes elements in order. A malformed element is logged and skipped.
func (c *FeedClient) handleFrame(msg []byte) {
	msg = bytes.TrimSpace(msg)
	if len(msg) == 0 {
		return
	}
	if msg[0] == '[' {
		var events []json.RawMessage
		if err := json.Unmarshal(msg, &events); err != nil {
			c.logger.Error("bad event batch", slog.Any("error", err))
			return
		}
		for _, ev := range events {
			c.handleEvent(ev)
		}
		return
	}
	c.handleEvent(msg)
}

func (c *FeedClient) handleEvent(raw []byte) {
	var env wsEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		c.logger.Error("bad event", slog.Any("error", err))
		return
	}

	switch env.EventType {
	case "book":
		var msg wsBookMessage
		if err := json.Unmarshal(raw, &msg); err != nil {
			c.logger.Error("bad book event", slog.Any("error", err))
			return
		}
		snap := msg.toSnapshot()
		c.mu.Lock()
		c.books[snap.AssetID] = snap
		c.mu.Unlock()
		c.handlerMu.RLock()
		handlers := c.bookHandlers
		c.handlerMu.RUnlock()
		for _, h := range handlers {
			c.safeInvoke("book", func() { h(snap) })
		}

	case "price_change":
		var msg wsPriceChangeMessage
		if err := json.Unmarshal(raw, &msg); err != nil {
			c.logger.Error("bad price_change event", slog.Any("error", err))
			return
		}
		changes := msg.toDomain()
		c.handlerMu.RLock()
		handlers := c.priceHandlers
		c.handlerMu.RUnlock()
		for _, h := range handlers {
			c.safeInvoke("price_change", func() { h(msg.Market, changes) })
		}

	case "last_trade_price":
		var msg wsLastTradeMessage
		if err := json.Unmarshal(raw, &msg); err != nil {
			c.logger.Error("bad last_trade_price event", slog.Any("error", err))
			return
		}
		trade := msg.toDomain()
		c.handlerMu.RLock()
		handlers := c.tradeHandlers
		c.handlerMu.RUnlock()
		for _, h := range handlers {
			c.safeInvoke("last_trade_price", func() { h(trade) })
		}

	case "tick_size_change":
		c.logger.Debug("tick size change", slog.String("raw", string(raw)))

	default:
		c.logger.Debug("unknown event type", slog.String("type", env.EventType))
	}
}

func (c *FeedClient) writeJSON(v any) error {
	c.mu.RLock()
	conn := c.conn
	c.mu.RUnlock()
	if conn == nil {
		return domain.ErrNotConnected
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
	return conn.WriteJSON(v)
}

func (c *FeedClient) connectHandlersCopy() []ConnHandler {
	c.handlerMu.RLock()
	defer c.handlerMu.RUnlock()
	return c.connectHandlers
}

func (c *FeedClient) disconnectHandlersCopy() []ConnHandler {
	c.handlerMu.RLock()
	defer c.handlerMu.RUnlock()
	return c.disconnectHandlers
}

func (c *FeedClient) fireConn(handlers []ConnHandler, label string) {
	for _, h := range handlers {
		c.safeInvoke(label, h)
	}
}

func (c *FeedClient) fireError(err error) {
	c.logger.Error("feed error", slog.Any("error", err))
	c.handlerMu.RLock()
	handlers := c.errorHandlers
	c.handlerMu.RUnlock()
	for _, h := range handlers {
		c.safeInvoke("error", func() { h(err) })
	}
}

// safeInvoke runs a handler and recovers any panic so one misbehaving
// callback cannot take down the read loop.
func (c *FeedClient) safeInvoke(label string, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			c.logger.Error("handler panic",
				slog.String("event", label), slog.Any("panic", r))
		}
	}()
	fn()
}

// sleepCtx waits for d, returning false if ctx was cancelled first.
func sleepCtx(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
