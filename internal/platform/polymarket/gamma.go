package polymarket

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/alanyoungcy/updownbot/internal/domain"
)

// DefaultGammaURL is the Gamma API root.
const DefaultGammaURL = "https://gamma-api.polymarket.com"

// updownWindow is the cadence of the Up/Down markets this bot trades.
const updownWindow = 15 * time.Minute

// GammaClient is the REST client for the Polymarket Gamma API, used to
// discover the active 15-minute Up/Down market for a coin.
type GammaClient struct {
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger

	// now is stubbed in tests.
	now func() time.Time
}

// NewGammaClient creates a Gamma API client. An empty baseURL selects the
// production endpoint.
func NewGammaClient(baseURL string, logger *slog.Logger) *GammaClient {
	if baseURL == "" {
		baseURL = DefaultGammaURL
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &GammaClient{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		logger:     logger.With(slog.String("component", "gamma")),
		now:        time.Now,
	}
}

// GetMarketBySlug returns a single market looked up by its URL slug.
func (g *GammaClient) GetMarketBySlug(ctx context.Context, slug string) (domain.MarketInfo, error) {
	path := "/markets/slug/" + url.PathEscape(slug)

	body, err := g.doGet(ctx, path)
	if err != nil {
		return domain.MarketInfo{}, fmt.Errorf("polymarket/gamma: get market %s: %w", slug, err)
	}

	var market gammaMarket
	if err := json.Unmarshal(body, &market); err != nil {
		// Some deployments return a one-element array.
		var markets []gammaMarket
		if err2 := json.Unmarshal(body, &markets); err2 != nil || len(markets) == 0 {
			return domain.MarketInfo{}, fmt.Errorf("polymarket/gamma: decode market %s: %w", slug, err)
		}
		market = markets[0]
	}

	return market.toMarketInfo(), nil
}

// UpdownSlug builds the slug of the 15-minute Up/Down market for a coin
// whose window starts at the given time. The window start is floored to the
// 15-minute boundary.
func UpdownSlug(coin string, windowStart time.Time) string {
	start := windowStart.UTC().Truncate(updownWindow)
	return fmt.Sprintf("%s-updown-15m-%d", coin, start.Unix())
}

// Discover finds the live Up/Down market for a coin (e.g. "btc", "eth").
// It probes the current 15-minute window first, then the next, then the
// previous, and returns the first market that is accepting orders. A market
// that exists but no longer accepts orders is not a result: callers retry
// on their next cycle instead of trading into a closed window.
func (g *GammaClient) Discover(ctx context.Context, coin string) (domain.MarketInfo, error) {
	now := g.now()
	offsets := []time.Duration{0, updownWindow, -updownWindow}

	for _, off := range offsets {
		slug := UpdownSlug(coin, now.Add(off))
		info, err := g.GetMarketBySlug(ctx, slug)
		if err != nil {
			if !errors.Is(err, domain.ErrNotFound) {
				g.logger.Warn("market lookup failed",
					slog.String("slug", slug), slog.Any("error", err))
			}
			continue
		}
		if info.AcceptingOrders {
			g.logger.Info("discovered market",
				slog.String("slug", info.Slug), slog.String("coin", coin))
			return info, nil
		}
		g.logger.Debug("market not accepting orders", slog.String("slug", info.Slug))
	}

	return domain.MarketInfo{}, fmt.Errorf("polymarket/gamma: discover %s: %w", coin, domain.ErrNoMarket)
}

// doGet sends an unauthenticated GET request to the Gamma API.
func (g *GammaClient) doGet(ctx context.Context, path string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, g.baseURL+path, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if err := checkHTTPStatus(resp.StatusCode, body); err != nil {
		return nil, err
	}
	return body, nil
}

// checkHTTPStatus maps non-2xx status codes to domain errors.
func checkHTTPStatus(statusCode int, body []byte) error {
	if statusCode >= 200 && statusCode < 300 {
		return nil
	}
	if statusCode == http.StatusNotFound {
		return fmt.Errorf("%w: %s", domain.ErrNotFound, string(body))
	}
	return fmt.Errorf("HTTP %d: %s", statusCode, string(body))
}
