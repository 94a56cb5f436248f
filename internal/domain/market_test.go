package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSlugTimestamp(t *testing.T) {
	m := MarketInfo{Slug: "eth-updown-15m-1766671200"}
	ts, ok := m.SlugTimestamp()
	require.True(t, ok)
	assert.Equal(t, int64(1766671200), ts)

	for _, slug := range []string{"", "will-it-rain-tomorrow", "btc-updown-15m-abc"} {
		_, ok := MarketInfo{Slug: slug}.SlugTimestamp()
		assert.False(t, ok, "slug %q", slug)
	}
}

func TestSortKeyPrefersSlug(t *testing.T) {
	m := MarketInfo{
		Slug:    "btc-updown-15m-1766671200",
		EndDate: "2025-12-25T14:15:00Z",
	}
	key, ok := m.SortKey()
	require.True(t, ok)
	assert.Equal(t, int64(1766671200), key)

	// Without a parseable slug the end date is the fallback.
	end := time.Date(2025, 12, 25, 14, 15, 0, 0, time.UTC)
	m2 := MarketInfo{Slug: "something-else", EndDate: end.Format(time.RFC3339)}
	key2, ok := m2.SortKey()
	require.True(t, ok)
	assert.Equal(t, end.Unix(), key2)

	_, ok = MarketInfo{Slug: "x", EndDate: "not a date"}.SortKey()
	assert.False(t, ok)
}

func TestCountdown(t *testing.T) {
	future := MarketInfo{EndDate: time.Now().Add(5 * time.Minute).Format(time.RFC3339)}
	remaining, ok := future.Countdown()
	require.True(t, ok)
	assert.Greater(t, remaining, 4*time.Minute)
	assert.False(t, future.HasEnded())
	assert.False(t, future.IsEndingSoon(30*time.Second))
	assert.True(t, future.IsEndingSoon(10*time.Minute))

	past := MarketInfo{EndDate: time.Now().Add(-time.Minute).Format(time.RFC3339)}
	remaining, ok = past.Countdown()
	require.True(t, ok)
	assert.Equal(t, time.Duration(0), remaining)
	assert.True(t, past.HasEnded())

	_, ok = MarketInfo{}.Countdown()
	assert.False(t, ok)
	assert.False(t, MarketInfo{}.HasEnded())
}

func TestTokens(t *testing.T) {
	m := MarketInfo{TokenIDs: map[Side]string{SideUp: "tok-up", SideDown: "tok-down"}}
	assert.Equal(t, []string{"tok-up", "tok-down"}, m.Tokens())
	assert.Equal(t, "tok-up", m.UpToken())
	assert.Equal(t, "tok-down", m.DownToken())

	partial := MarketInfo{TokenIDs: map[Side]string{SideDown: "tok-down"}}
	assert.Equal(t, []string{"tok-down"}, partial.Tokens())
}

func TestParseSide(t *testing.T) {
	for in, want := range map[string]Side{"Up": SideUp, "DOWN": SideDown, " up ": SideUp} {
		side, ok := ParseSide(in)
		require.True(t, ok, "input %q", in)
		assert.Equal(t, want, side)
	}
	_, ok := ParseSide("Yes")
	assert.False(t, ok)
}
