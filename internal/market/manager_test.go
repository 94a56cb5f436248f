package market

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/updownbot/internal/domain"
	"github.com/alanyoungcy/updownbot/internal/platform/polymarket"
)

// fakeDiscoverer returns a scripted sequence of markets.
type fakeDiscoverer struct {
	results []domain.MarketInfo
	calls   int
}

func (d *fakeDiscoverer) Discover(_ context.Context, _ string) (domain.MarketInfo, error) {
	i := d.calls
	d.calls++
	if i >= len(d.results) {
		i = len(d.results) - 1
	}
	return d.results[i], nil
}

// fakeFeed records subscription calls and serves canned orderbooks.
type fakeFeed struct {
	subscribes   []subscribeCall
	books        map[string]domain.OrderbookSnapshot
	disconnected bool
}

type subscribeCall struct {
	assetIDs []string
	replace  bool
}

func newFakeFeed() *fakeFeed {
	return &fakeFeed{books: make(map[string]domain.OrderbookSnapshot)}
}

func (f *fakeFeed) Run(ctx context.Context, _ bool) error {
	<-ctx.Done()
	return ctx.Err()
}
func (f *fakeFeed) Stop() {}
func (f *fakeFeed) Subscribe(_ context.Context, assetIDs []string, replace bool) bool {
	f.subscribes = append(f.subscribes, subscribeCall{assetIDs: assetIDs, replace: replace})
	return true
}
func (f *fakeFeed) Unsubscribe(_ context.Context, _ []string) bool { return true }
func (f *fakeFeed) IsConnected() bool                              { return !f.disconnected }
func (f *fakeFeed) Orderbook(assetID string) (domain.OrderbookSnapshot, bool) {
	snap, ok := f.books[assetID]
	return snap, ok
}
func (f *fakeFeed) MidPrice(assetID string) float64 {
	snap, ok := f.books[assetID]
	if !ok {
		return 0
	}
	return snap.MidPrice()
}
func (f *fakeFeed) OnBook(polymarket.BookHandler)               {}
func (f *fakeFeed) OnPriceChange(polymarket.PriceChangeHandler) {}
func (f *fakeFeed) OnTrade(polymarket.TradeHandler)             {}
func (f *fakeFeed) OnConnect(polymarket.ConnHandler)            {}
func (f *fakeFeed) OnDisconnect(polymarket.ConnHandler)         {}
func (f *fakeFeed) OnError(polymarket.ErrorHandler)             {}

func TestRefreshSubscribesInitialMarket(t *testing.T) {
	feed := newFakeFeed()
	first := domain.MarketInfo{
		Slug:     "btc-updown-15m-1766671200",
		TokenIDs: map[domain.Side]string{domain.SideUp: "up-1", domain.SideDown: "down-1"},
	}
	disc := &fakeDiscoverer{results: []domain.MarketInfo{first}}
	m := NewManager(Config{Coin: "btc"}, disc, feed, nil)

	require.NoError(t, m.Refresh(context.Background()))

	cur, ok := m.Market()
	require.True(t, ok)
	assert.Equal(t, first.Slug, cur.Slug)
	require.Len(t, feed.subscribes, 1)
	assert.True(t, feed.subscribes[0].replace)
	assert.Equal(t, []string{"up-1", "down-1"}, feed.subscribes[0].assetIDs)
}

func TestRefreshSameTokensSkipsResubscribe(t *testing.T) {
	feed := newFakeFeed()
	first := domain.MarketInfo{
		Slug:     "btc-updown-15m-1766671200",
		TokenIDs: map[domain.Side]string{domain.SideUp: "up-1", domain.SideDown: "down-1"},
	}
	refreshed := first
	refreshed.Question = "Bitcoin Up or Down?"
	disc := &fakeDiscoverer{results: []domain.MarketInfo{first, refreshed}}
	m := NewManager(Config{Coin: "btc"}, disc, feed, nil)

	var changes int
	m.OnMarketChange(func(_, _ domain.MarketInfo) { changes++ })

	require.NoError(t, m.Refresh(context.Background()))
	require.NoError(t, m.Refresh(context.Background()))

	assert.Len(t, feed.subscribes, 1, "metadata refresh must not resubscribe")
	assert.Equal(t, 0, changes, "neither discovery is a rollover")

	cur, _ := m.Market()
	assert.Equal(t, "Bitcoin Up or Down?", cur.Question)
}

func TestInitialDiscoveryFiresNoChangeHandler(t *testing.T) {
	feed := newFakeFeed()
	first := domain.MarketInfo{
		Slug:     "btc-updown-15m-1766671200",
		TokenIDs: map[domain.Side]string{domain.SideUp: "up-1", domain.SideDown: "down-1"},
	}
	disc := &fakeDiscoverer{results: []domain.MarketInfo{first}}
	m := NewManager(Config{Coin: "btc"}, disc, feed, nil)

	var changes int
	m.OnMarketChange(func(_, _ domain.MarketInfo) { changes++ })

	require.NoError(t, m.Refresh(context.Background()))

	assert.Equal(t, 0, changes, "there is no old market to roll from")
	require.Len(t, feed.subscribes, 1)
}

func TestRefreshRejectsStaleMarket(t *testing.T) {
	feed := newFakeFeed()
	current := domain.MarketInfo{
		Slug:     "btc-updown-15m-1766672100",
		TokenIDs: map[domain.Side]string{domain.SideUp: "up-2", domain.SideDown: "down-2"},
	}
	stale := domain.MarketInfo{
		Slug:     "btc-updown-15m-1766671200",
		TokenIDs: map[domain.Side]string{domain.SideUp: "up-1", domain.SideDown: "down-1"},
	}
	disc := &fakeDiscoverer{results: []domain.MarketInfo{current, stale}}
	m := NewManager(Config{Coin: "btc"}, disc, feed, nil)

	require.NoError(t, m.Refresh(context.Background()))
	require.NoError(t, m.Refresh(context.Background()))

	cur, _ := m.Market()
	assert.Equal(t, current.Slug, cur.Slug)
	assert.Len(t, feed.subscribes, 1)
}

func TestRefreshSwitchesToNewerMarket(t *testing.T) {
	feed := newFakeFeed()
	first := domain.MarketInfo{
		Slug:     "btc-updown-15m-1766671200",
		TokenIDs: map[domain.Side]string{domain.SideUp: "up-1", domain.SideDown: "down-1"},
	}
	next := domain.MarketInfo{
		Slug:     "btc-updown-15m-1766672100",
		TokenIDs: map[domain.Side]string{domain.SideUp: "up-2", domain.SideDown: "down-2"},
	}
	disc := &fakeDiscoverer{results: []domain.MarketInfo{first, next}}
	m := NewManager(Config{Coin: "btc"}, disc, feed, nil)

	var gotOld, gotNew domain.MarketInfo
	m.OnMarketChange(func(oldMarket, newMarket domain.MarketInfo) {
		gotOld, gotNew = oldMarket, newMarket
	})

	require.NoError(t, m.Refresh(context.Background()))
	require.NoError(t, m.Refresh(context.Background()))

	require.Len(t, feed.subscribes, 2)
	assert.True(t, feed.subscribes[1].replace)
	assert.Equal(t, []string{"up-2", "down-2"}, feed.subscribes[1].assetIDs)
	assert.Equal(t, first.Slug, gotOld.Slug)
	assert.Equal(t, next.Slug, gotNew.Slug)
}

func TestPanickingChangeHandlerIsIsolated(t *testing.T) {
	feed := newFakeFeed()
	first := domain.MarketInfo{
		Slug:     "btc-updown-15m-1766671200",
		TokenIDs: map[domain.Side]string{domain.SideUp: "up-1", domain.SideDown: "down-1"},
	}
	next := domain.MarketInfo{
		Slug:     "btc-updown-15m-1766672100",
		TokenIDs: map[domain.Side]string{domain.SideUp: "up-2", domain.SideDown: "down-2"},
	}
	disc := &fakeDiscoverer{results: []domain.MarketInfo{first, next}}
	m := NewManager(Config{Coin: "btc"}, disc, feed, nil)

	var after int
	m.OnMarketChange(func(_, _ domain.MarketInfo) { panic("boom") })
	m.OnMarketChange(func(_, _ domain.MarketInfo) { after++ })

	require.NoError(t, m.Refresh(context.Background()))
	require.NotPanics(t, func() {
		require.NoError(t, m.Refresh(context.Background()))
	})

	assert.Equal(t, 1, after, "later handlers still run")
}

func TestRunRediscoversEveryInterval(t *testing.T) {
	feed := newFakeFeed()
	// A market in the middle of its window: the loop must still poll
	// discovery so cached metadata stays fresh.
	info := domain.MarketInfo{
		Slug:     "btc-updown-15m-1766671200",
		EndDate:  time.Now().Add(10 * time.Minute).UTC().Format(time.RFC3339),
		TokenIDs: map[domain.Side]string{domain.SideUp: "up-1", domain.SideDown: "down-1"},
	}
	disc := &fakeDiscoverer{results: []domain.MarketInfo{info}}
	m := NewManager(Config{Coin: "btc", CheckInterval: 20 * time.Millisecond}, disc, feed, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 300*time.Millisecond)
	defer cancel()
	err := m.Run(ctx)
	require.ErrorIs(t, err, context.DeadlineExceeded)

	assert.Greater(t, disc.calls, 3, "discovery must run each cycle, not just once")
	assert.Len(t, feed.subscribes, 1, "same tokens never resubscribe")
}

func TestSideAccessors(t *testing.T) {
	feed := newFakeFeed()
	feed.books["up-1"] = domain.OrderbookSnapshot{
		AssetID: "up-1",
		Bids:    []domain.OrderbookLevel{{Price: 0.48, Size: 100}},
		Asks:    []domain.OrderbookLevel{{Price: 0.52, Size: 80}},
	}
	info := domain.MarketInfo{
		Slug:     "btc-updown-15m-1766671200",
		TokenIDs: map[domain.Side]string{domain.SideUp: "up-1", domain.SideDown: "down-1"},
	}
	disc := &fakeDiscoverer{results: []domain.MarketInfo{info}}
	m := NewManager(Config{Coin: "btc"}, disc, feed, nil)
	require.NoError(t, m.Refresh(context.Background()))

	assert.Equal(t, "up-1", m.TokenID(domain.SideUp))
	assert.InDelta(t, 0.50, m.MidPrice(domain.SideUp), 1e-9)
	assert.Equal(t, 0.48, m.BestBid(domain.SideUp))
	assert.Equal(t, 0.52, m.BestAsk(domain.SideUp))
	assert.InDelta(t, 0.04, m.Spread(domain.SideUp), 1e-9)

	// Side with no cached book.
	assert.Equal(t, 0.0, m.MidPrice(domain.SideDown))
	assert.Equal(t, 1.0, m.BestAsk(domain.SideDown))
}

func TestWaitForData(t *testing.T) {
	feed := newFakeFeed()
	info := domain.MarketInfo{
		Slug:     "btc-updown-15m-1766671200",
		TokenIDs: map[domain.Side]string{domain.SideUp: "up-1", domain.SideDown: "down-1"},
	}
	disc := &fakeDiscoverer{results: []domain.MarketInfo{info}}
	m := NewManager(Config{Coin: "btc"}, disc, feed, nil)
	require.NoError(t, m.Refresh(context.Background()))

	err := m.WaitForData(context.Background(), 150*time.Millisecond)
	assert.Error(t, err, "no books cached yet")

	// One side's book is enough; the other often trails by a frame.
	feed.books["up-1"] = domain.OrderbookSnapshot{AssetID: "up-1"}
	assert.NoError(t, m.WaitForData(context.Background(), time.Second))
}

func TestWaitForDataRequiresConnection(t *testing.T) {
	feed := newFakeFeed()
	feed.disconnected = true
	feed.books["up-1"] = domain.OrderbookSnapshot{AssetID: "up-1"}
	info := domain.MarketInfo{
		Slug:     "btc-updown-15m-1766671200",
		TokenIDs: map[domain.Side]string{domain.SideUp: "up-1", domain.SideDown: "down-1"},
	}
	disc := &fakeDiscoverer{results: []domain.MarketInfo{info}}
	m := NewManager(Config{Coin: "btc"}, disc, feed, nil)
	require.NoError(t, m.Refresh(context.Background()))

	err := m.WaitForData(context.Background(), 150*time.Millisecond)
	assert.Error(t, err, "a cached book without a live connection is stale")
}
