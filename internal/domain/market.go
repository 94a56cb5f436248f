package domain

import (
	"strconv"
	"strings"
	"time"
)

// MarketInfo is an immutable snapshot of one discovery call for a 15-minute
// Up/Down market. It is superseded wholesale by the next discovery.
type MarketInfo struct {
	Slug            string
	Question        string
	EndDate         string // ISO-8601 as delivered by the API
	TokenIDs        map[Side]string
	Prices          map[Side]float64
	AcceptingOrders bool
}

// UpToken returns the instrument ID of the Up outcome, or "".
func (m MarketInfo) UpToken() string { return m.TokenIDs[SideUp] }

// DownToken returns the instrument ID of the Down outcome, or "".
func (m MarketInfo) DownToken() string { return m.TokenIDs[SideDown] }

// Tokens returns both instrument IDs in side order (up, down), skipping
// missing entries.
func (m MarketInfo) Tokens() []string {
	out := make([]string, 0, 2)
	for _, side := range Sides() {
		if id := m.TokenIDs[side]; id != "" {
			out = append(out, id)
		}
	}
	return out
}

// SlugTimestamp extracts the unix-seconds suffix embedded in 15-minute market
// slugs such as "eth-updown-15m-1766671200".
func (m MarketInfo) SlugTimestamp() (int64, bool) {
	if m.Slug == "" {
		return 0, false
	}
	parts := strings.Split(m.Slug, "-")
	ts, err := strconv.ParseInt(parts[len(parts)-1], 10, 64)
	if err != nil || ts <= 0 {
		return 0, false
	}
	return ts, true
}

// EndTimestamp parses EndDate into unix seconds.
func (m MarketInfo) EndTimestamp() (int64, bool) {
	if m.EndDate == "" {
		return 0, false
	}
	t, err := time.Parse(time.RFC3339, m.EndDate)
	if err != nil {
		return 0, false
	}
	return t.Unix(), true
}

// SortKey returns a monotonic ordering key used to decide whether a newly
// discovered market supersedes the current one. The slug suffix is preferred;
// the parsed end date is the fallback.
func (m MarketInfo) SortKey() (int64, bool) {
	if ts, ok := m.SlugTimestamp(); ok {
		return ts, true
	}
	return m.EndTimestamp()
}

// Countdown returns the time remaining until the market ends, clamped at
// zero. The second return is false when EndDate is absent or unparseable.
func (m MarketInfo) Countdown() (time.Duration, bool) {
	ts, ok := m.EndTimestamp()
	if !ok {
		return 0, false
	}
	remaining := time.Until(time.Unix(ts, 0))
	if remaining < 0 {
		remaining = 0
	}
	return remaining, true
}

// IsEndingSoon reports whether the market ends within threshold.
func (m MarketInfo) IsEndingSoon(threshold time.Duration) bool {
	remaining, ok := m.Countdown()
	return ok && remaining <= threshold
}

// HasEnded reports whether the market's end date has passed.
func (m MarketInfo) HasEnded() bool {
	remaining, ok := m.Countdown()
	return ok && remaining == 0
}
