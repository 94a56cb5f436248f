package polymarket

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/updownbot/internal/domain"
)

func TestUpdownSlug(t *testing.T) {
	// 14:07 floors to the 14:00 window.
	at := time.Date(2025, 12, 25, 14, 7, 33, 0, time.UTC)
	want := fmt.Sprintf("btc-updown-15m-%d", time.Date(2025, 12, 25, 14, 0, 0, 0, time.UTC).Unix())
	assert.Equal(t, want, UpdownSlug("btc", at))

	// An exact boundary maps to its own window.
	boundary := time.Date(2025, 12, 25, 14, 15, 0, 0, time.UTC)
	want = fmt.Sprintf("eth-updown-15m-%d", boundary.Unix())
	assert.Equal(t, want, UpdownSlug("eth", boundary))
}

// gammaServer serves canned market documents keyed by slug.
func gammaServer(t *testing.T, markets map[string]string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		const prefix = "/markets/slug/"
		slug := r.URL.Path[len(prefix):]
		body, ok := markets[slug]
		if !ok {
			http.Error(w, `{"error":"market not found"}`, http.StatusNotFound)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, body)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func newTestGamma(t *testing.T, markets map[string]string, now time.Time) *GammaClient {
	t.Helper()
	srv := gammaServer(t, markets)
	g := NewGammaClient(srv.URL, nil)
	g.now = func() time.Time { return now }
	return g
}

func marketJSON(slug string, accepting bool) string {
	return fmt.Sprintf(`{
		"slug": %q,
		"question": "Up or Down?",
		"endDate": "2025-12-25T14:15:00Z",
		"acceptingOrders": %t,
		"clobTokenIds": "[\"tok-up\",\"tok-down\"]",
		"outcomes": "[\"Up\",\"Down\"]",
		"outcomePrices": "[\"0.5\",\"0.5\"]"
	}`, slug, accepting)
}

func TestGetMarketBySlug(t *testing.T) {
	g := newTestGamma(t, map[string]string{
		"btc-updown-15m-100": marketJSON("btc-updown-15m-100", true),
	}, time.Now())

	info, err := g.GetMarketBySlug(context.Background(), "btc-updown-15m-100")
	require.NoError(t, err)
	assert.Equal(t, "btc-updown-15m-100", info.Slug)
	assert.Equal(t, "tok-up", info.TokenIDs[domain.SideUp])

	_, err = g.GetMarketBySlug(context.Background(), "no-such-market")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestGetMarketBySlugArrayBody(t *testing.T) {
	g := newTestGamma(t, map[string]string{
		"btc-updown-15m-100": "[" + marketJSON("btc-updown-15m-100", true) + "]",
	}, time.Now())

	info, err := g.GetMarketBySlug(context.Background(), "btc-updown-15m-100")
	require.NoError(t, err)
	assert.Equal(t, "btc-updown-15m-100", info.Slug)
}

func TestDiscoverCurrentWindow(t *testing.T) {
	now := time.Date(2025, 12, 25, 14, 7, 0, 0, time.UTC)
	cur := UpdownSlug("btc", now)

	g := newTestGamma(t, map[string]string{
		cur: marketJSON(cur, true),
	}, now)

	info, err := g.Discover(context.Background(), "btc")
	require.NoError(t, err)
	assert.Equal(t, cur, info.Slug)
}

func TestDiscoverProbesAdjacentWindows(t *testing.T) {
	now := time.Date(2025, 12, 25, 14, 14, 50, 0, time.UTC)
	next := UpdownSlug("btc", now.Add(15*time.Minute))

	// Only the next window exists and accepts orders.
	g := newTestGamma(t, map[string]string{
		next: marketJSON(next, true),
	}, now)

	info, err := g.Discover(context.Background(), "btc")
	require.NoError(t, err)
	assert.Equal(t, next, info.Slug)
}

func TestDiscoverRejectsClosedMarkets(t *testing.T) {
	now := time.Date(2025, 12, 25, 14, 7, 0, 0, time.UTC)
	cur := UpdownSlug("btc", now)
	prev := UpdownSlug("btc", now.Add(-15*time.Minute))

	// Every probed window exists but no longer accepts orders.
	g := newTestGamma(t, map[string]string{
		cur:  marketJSON(cur, false),
		prev: marketJSON(prev, false),
	}, now)

	_, err := g.Discover(context.Background(), "btc")
	assert.ErrorIs(t, err, domain.ErrNoMarket)
}

func TestDiscoverNoMarket(t *testing.T) {
	g := newTestGamma(t, map[string]string{}, time.Now())
	_, err := g.Discover(context.Background(), "btc")
	assert.ErrorIs(t, err, domain.ErrNoMarket)
}
