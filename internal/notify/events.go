package notify

import (
	"fmt"

	"github.com/alanyoungcy/updownbot/internal/domain"
)

// FlashCrashAlert formats a crash detection for operators.
func FlashCrashAlert(marketSlug string, ev domain.FlashCrashEvent) (title, message string) {
	title = "Flash crash detected"
	message = fmt.Sprintf("%s %s: %.3f -> %.3f (drop %.3f, %.1f%%)",
		marketSlug, ev.Side, ev.OldPrice, ev.NewPrice, ev.Drop, ev.DropPercent())
	return title, message
}

// PositionOpenedAlert formats an entry fill.
func PositionOpenedAlert(marketSlug string, pos domain.Position) (title, message string) {
	title = "Position opened"
	message = fmt.Sprintf("%s %s: %.2f shares @ %.3f (TP %.3f / SL %.3f) [%s]",
		marketSlug, pos.Side, pos.Size, pos.EntryPrice,
		pos.TakeProfitPrice(), pos.StopLossPrice(), pos.ID)
	return title, message
}

// PositionClosedAlert formats an exit fill with the realized result.
func PositionClosedAlert(trade domain.TradeRecord) (title, message string) {
	title = "Position closed"
	message = fmt.Sprintf("%s %s: %.3f -> %.3f, pnl %+.2f (%s) [%s]",
		trade.MarketSlug, trade.Side, trade.EntryPrice, trade.ExitPrice,
		trade.PnL, trade.ExitReason, trade.ID)
	return title, message
}

// MarketChangeAlert formats a rollover to a new market window.
func MarketChangeAlert(oldMarket, newMarket domain.MarketInfo) (title, message string) {
	title = "Market rollover"
	from := oldMarket.Slug
	if from == "" {
		from = "(none)"
	}
	message = fmt.Sprintf("%s -> %s", from, newMarket.Slug)
	return title, message
}
