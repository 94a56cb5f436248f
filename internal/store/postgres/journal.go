package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/updownbot/internal/domain"
)

// Journal implements domain.TradeJournal on the flash_trades table.
type Journal struct {
	pool *pgxpool.Pool
}

// NewJournal creates a Journal backed by the given connection pool.
func NewJournal(pool *pgxpool.Pool) *Journal {
	return &Journal{pool: pool}
}

const journalSelectCols = `id, market_slug, side, token_id, entry_price,
	exit_price, size, pnl, exit_reason, opened_at, closed_at`

// Record persists one closed trade. Re-recording the same trade ID is a
// no-op so a retried close never double-counts.
func (j *Journal) Record(ctx context.Context, trade domain.TradeRecord) error {
	const query = `
		INSERT INTO flash_trades (
			id, market_slug, side, token_id, entry_price,
			exit_price, size, pnl, exit_reason, opened_at, closed_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (id) DO NOTHING`

	_, err := j.pool.Exec(ctx, query,
		trade.ID, trade.MarketSlug, string(trade.Side), trade.TokenID,
		trade.EntryPrice, trade.ExitPrice, trade.Size, trade.PnL,
		string(trade.ExitReason), trade.OpenedAt, trade.ClosedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: record trade %s: %w", trade.ID, err)
	}
	return nil
}

// ListRecent returns the most recently closed trades, newest first.
func (j *Journal) ListRecent(ctx context.Context, limit int) ([]domain.TradeRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	query := fmt.Sprintf(
		`SELECT %s FROM flash_trades ORDER BY closed_at DESC LIMIT $1`,
		journalSelectCols,
	)
	rows, err := j.pool.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("postgres: list recent trades: %w", err)
	}
	defer rows.Close()

	trades, err := scanTradeRecords(rows)
	if err != nil {
		return nil, fmt.Errorf("postgres: scan trades: %w", err)
	}
	return trades, nil
}

// Stats aggregates the whole journal. A break-even trade counts as a win.
func (j *Journal) Stats(ctx context.Context) (domain.JournalStats, error) {
	const query = `
		SELECT
			COUNT(*),
			COALESCE(SUM(pnl), 0),
			COUNT(*) FILTER (WHERE pnl >= 0),
			COUNT(*) FILTER (WHERE pnl < 0)
		FROM flash_trades`

	var stats domain.JournalStats
	err := j.pool.QueryRow(ctx, query).Scan(
		&stats.TradesClosed, &stats.TotalPnL,
		&stats.WinningTrades, &stats.LosingTrades,
	)
	if err != nil {
		return domain.JournalStats{}, fmt.Errorf("postgres: journal stats: %w", err)
	}
	return stats, nil
}

func scanTradeRecords(rows pgx.Rows) ([]domain.TradeRecord, error) {
	var trades []domain.TradeRecord
	for rows.Next() {
		var t domain.TradeRecord
		var side, reason string
		if err := rows.Scan(
			&t.ID, &t.MarketSlug, &side, &t.TokenID, &t.EntryPrice,
			&t.ExitPrice, &t.Size, &t.PnL, &reason, &t.OpenedAt, &t.ClosedAt,
		); err != nil {
			return nil, err
		}
		t.Side = domain.Side(side)
		t.ExitReason = domain.ExitReason(reason)
		trades = append(trades, t)
	}
	return trades, rows.Err()
}

var _ domain.TradeJournal = (*Journal)(nil)
