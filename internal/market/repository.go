package market

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/wonny/fundfolio/backend/internal/contracts"
)

// Repository stores daily closes (fund NAVs, index levels)
// ⭐ SSOT: 기준가 데이터 저장소는 여기서만
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a new price repository
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// PriceOn returns the latest close on or before date
func (r *Repository) PriceOn(ctx context.Context, code string, date time.Time) (decimal.Decimal, bool, error) {
	query := `
		SELECT price
		FROM market.daily_prices
		WHERE code = $1 AND trade_date <= $2
		ORDER BY trade_date DESC
		LIMIT 1
	`

	var price decimal.Decimal
	err := r.pool.QueryRow(ctx, query, code, dateOnly(date)).Scan(&price)
	if errors.Is(err, pgx.ErrNoRows) {
		return decimal.Zero, false, nil
	}
	if err != nil {
		return decimal.Zero, false, fmt.Errorf("failed to get price of %s: %w", code, err)
	}
	return price, true, nil
}

// Latest returns the most recent close of a code
func (r *Repository) Latest(ctx context.Context, code string) (*contracts.PricePoint, error) {
	query := `
		SELECT trade_date, price::float8
		FROM market.daily_prices
		WHERE code = $1
		ORDER BY trade_date DESC
		LIMIT 1
	`

	var p contracts.PricePoint
	err := r.pool.QueryRow(ctx, query, code).Scan(&p.Date, &p.Price)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get latest price of %s: %w", code, err)
	}
	return &p, nil
}

// History returns ascending closes of code within [from, to]
func (r *Repository) History(ctx context.Context, code string, from, to time.Time) ([]contracts.PricePoint, error) {
	query := `
		SELECT trade_date, price::float8
		FROM market.daily_prices
		WHERE code = $1 AND trade_date BETWEEN $2 AND $3
		ORDER BY trade_date ASC
	`

	rows, err := r.pool.Query(ctx, query, code, dateOnly(from), dateOnly(to))
	if err != nil {
		return nil, fmt.Errorf("failed to query history of %s: %w", code, err)
	}
	defer rows.Close()

	points := make([]contracts.PricePoint, 0)
	for rows.Next() {
		var p contracts.PricePoint
		if err := rows.Scan(&p.Date, &p.Price); err != nil {
			return nil, fmt.Errorf("failed to scan price: %w", err)
		}
		points = append(points, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}
	return points, nil
}

// Upsert saves closes of one code; non-positive prices are skipped
func (r *Repository) Upsert(ctx context.Context, code string, points []contracts.PricePoint) (int, error) {
	if len(points) == 0 {
		return 0, nil
	}

	batch := &pgx.Batch{}
	for _, p := range points {
		if p.Price <= 0 {
			continue
		}
		batch.Queue(`
			INSERT INTO market.daily_prices (code, trade_date, price, updated_at)
			VALUES ($1, $2, $3, NOW())
			ON CONFLICT (code, trade_date) DO UPDATE SET
				price = EXCLUDED.price,
				updated_at = NOW()
		`, code, dateOnly(p.Date), decimal.NewFromFloat(p.Price))
	}
	if batch.Len() == 0 {
		return 0, nil
	}

	if err := r.pool.SendBatch(ctx, batch).Close(); err != nil {
		return 0, fmt.Errorf("failed to upsert prices of %s: %w", code, err)
	}
	return batch.Len(), nil
}

// LastDate returns the latest stored trade date of code, or zero time
func (r *Repository) LastDate(ctx context.Context, code string) (time.Time, error) {
	var last *time.Time
	err := r.pool.QueryRow(ctx,
		"SELECT MAX(trade_date) FROM market.daily_prices WHERE code = $1", code,
	).Scan(&last)
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to get last date of %s: %w", code, err)
	}
	if last == nil {
		return time.Time{}, nil
	}
	return *last, nil
}

// LoadHistory reads histories of many codes into a PriceHistory
func LoadHistory(ctx context.Context, reader contracts.HistoryReader, codes []string, from, to time.Time) (contracts.PriceHistory, error) {
	history := make(contracts.PriceHistory, len(codes))
	for _, code := range codes {
		points, err := reader.History(ctx, code, from, to)
		if err != nil {
			return nil, err
		}
		history[code] = points
	}
	return history, nil
}

func dateOnly(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
