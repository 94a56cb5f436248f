package strategy

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/updownbot/internal/domain"
)

func newTestPositions() *PositionTracker {
	return NewPositionTracker(PositionConfig{
		MaxPositions:    1,
		Size:            10,
		TakeProfitDelta: 0.15,
		StopLossDelta:   0.10,
	})
}

func TestOpenAndClose(t *testing.T) {
	pt := newTestPositions()

	pos, err := pt.Open(domain.SideUp, "tok-up", 0.50, "order-1")
	require.NoError(t, err)
	assert.Len(t, pos.ID, 8)
	assert.Equal(t, 10.0, pos.Size)
	assert.InDelta(t, 0.15, pos.TakeProfitDelta, 1e-9)
	assert.True(t, pt.HasPosition(domain.SideUp))

	closed, realized, err := pt.Close(domain.SideUp, 0.65)
	require.NoError(t, err)
	assert.Equal(t, pos.ID, closed.ID)
	assert.InDelta(t, 1.5, realized, 1e-9)
	assert.False(t, pt.HasPosition(domain.SideUp))

	stats := pt.Stats()
	assert.Equal(t, 1, stats.OpenedTrades)
	assert.Equal(t, 1, stats.ClosedTrades)
	assert.Equal(t, 1, stats.Wins)
	assert.InDelta(t, 1.5, stats.RealizedPnL, 1e-9)
}

func TestOpenDuplicateSide(t *testing.T) {
	pt := NewPositionTracker(PositionConfig{MaxPositions: 2})

	_, err := pt.Open(domain.SideUp, "tok-up", 0.50, "order-1")
	require.NoError(t, err)

	_, err = pt.Open(domain.SideUp, "tok-up", 0.45, "order-2")
	assert.ErrorIs(t, err, domain.ErrPositionExists)
	assert.Equal(t, 1, pt.Stats().OpenedTrades, "a rejected open is not counted")
}

func TestOpenRespectsMaxPositions(t *testing.T) {
	pt := newTestPositions() // cap 1

	_, err := pt.Open(domain.SideUp, "tok-up", 0.50, "order-1")
	require.NoError(t, err)
	assert.False(t, pt.CanOpen(domain.SideDown))

	_, err = pt.Open(domain.SideDown, "tok-down", 0.30, "order-2")
	assert.ErrorIs(t, err, domain.ErrMaxPositions)
	assert.Equal(t, 1, pt.Stats().OpenedTrades, "a rejected open is not counted")
}

func TestCloseUnknownSide(t *testing.T) {
	pt := newTestPositions()
	_, _, err := pt.Close(domain.SideDown, 0.50)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestBreakEvenCountsAsWin(t *testing.T) {
	pt := newTestPositions()
	_, err := pt.Open(domain.SideUp, "tok-up", 0.50, "order-1")
	require.NoError(t, err)

	_, realized, err := pt.Close(domain.SideUp, 0.50)
	require.NoError(t, err)
	assert.Equal(t, 0.0, realized)
	assert.Equal(t, 1.0, pt.WinRate())
}

func TestCheckExit(t *testing.T) {
	pt := newTestPositions()
	_, err := pt.Open(domain.SideUp, "tok-up", 0.50, "order-1")
	require.NoError(t, err)

	_, ok := pt.CheckExit(domain.SideUp, 0.55)
	assert.False(t, ok)

	sig, ok := pt.CheckExit(domain.SideUp, 0.65)
	require.True(t, ok)
	assert.Equal(t, domain.ExitTakeProfit, sig.Reason)
	assert.Equal(t, 0.65, sig.Price)
	assert.InDelta(t, 1.5, sig.PnL, 1e-9)

	sig, ok = pt.CheckExit(domain.SideUp, 0.40)
	require.True(t, ok)
	assert.Equal(t, domain.ExitStopLoss, sig.Reason)
	assert.InDelta(t, -1.0, sig.PnL, 1e-9)

	// Missing or zero prices never trigger an exit.
	_, ok = pt.CheckExit(domain.SideUp, 0)
	assert.False(t, ok)
	_, ok = pt.CheckExit(domain.SideDown, 0.40)
	assert.False(t, ok)
}

func TestCheckAllExits(t *testing.T) {
	pt := NewPositionTracker(PositionConfig{
		MaxPositions:    2,
		Size:            10,
		TakeProfitDelta: 0.15,
		StopLossDelta:   0.10,
	})
	_, err := pt.Open(domain.SideUp, "tok-up", 0.50, "order-1")
	require.NoError(t, err)
	_, err = pt.Open(domain.SideDown, "tok-down", 0.50, "order-2")
	require.NoError(t, err)

	sigs := pt.CheckAllExits(map[domain.Side]float64{
		domain.SideUp:   0.70, // take profit
		domain.SideDown: 0.35, // stop loss
	})
	require.Len(t, sigs, 2)
	assert.Equal(t, domain.SideUp, sigs[0].Position.Side)
	assert.Equal(t, domain.ExitTakeProfit, sigs[0].Reason)
	assert.Equal(t, domain.SideDown, sigs[1].Position.Side)
	assert.Equal(t, domain.ExitStopLoss, sigs[1].Reason)
}

func TestUnrealizedPnL(t *testing.T) {
	pt := NewPositionTracker(PositionConfig{MaxPositions: 2, Size: 10})
	_, err := pt.Open(domain.SideUp, "tok-up", 0.50, "order-1")
	require.NoError(t, err)

	pnl := pt.UnrealizedPnL(map[domain.Side]float64{domain.SideUp: 0.55})
	assert.InDelta(t, 0.5, pnl, 1e-9)

	// No price for the side contributes zero.
	assert.Equal(t, 0.0, pt.UnrealizedPnL(nil))
}

func TestClearKeepsRealizedStats(t *testing.T) {
	pt := newTestPositions()
	_, err := pt.Open(domain.SideUp, "tok-up", 0.50, "order-1")
	require.NoError(t, err)
	_, _, err = pt.Close(domain.SideUp, 0.60)
	require.NoError(t, err)

	_, err = pt.Open(domain.SideDown, "tok-down", 0.30, "order-2")
	require.NoError(t, err)
	pt.Clear()

	assert.Empty(t, pt.Positions())
	stats := pt.Stats()
	assert.Equal(t, 2, stats.OpenedTrades)
	assert.Equal(t, 1, stats.ClosedTrades)
	assert.InDelta(t, 1.0, stats.RealizedPnL, 1e-9)

	pt.ResetStats()
	stats = pt.Stats()
	assert.Equal(t, 0, stats.OpenedTrades)
	assert.Equal(t, 0, stats.ClosedTrades)
	assert.Equal(t, 0.0, stats.RealizedPnL)
}
