package ledger

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/wonny/fundfolio/backend/internal/contracts"
	"github.com/wonny/fundfolio/backend/pkg/database"
)

// DBTX is satisfied by *pgxpool.Pool and pgx.Tx
type DBTX interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Apply returns pos after a fill of signedShares at price.
// Buys move the average cost; sells keep it. Selling more than held fails.
func Apply(pos contracts.Position, signedShares, price decimal.Decimal) (contracts.Position, error) {
	if signedShares.IsZero() {
		return pos, contracts.InvalidInput("executed_shares", "must be non-zero").WithCode(pos.Code)
	}
	if !price.IsPositive() {
		return pos, contracts.InvalidInput("executed_price", "must be > 0").WithCode(pos.Code)
	}

	if signedShares.IsPositive() {
		shares := pos.Shares.Add(signedShares)
		cost := pos.Shares.Mul(pos.CostBasis).Add(signedShares.Mul(price)).Div(shares)
		return contracts.Position{Code: pos.Code, Shares: shares, CostBasis: cost.Round(6)}, nil
	}

	sold := signedShares.Neg()
	if sold.GreaterThan(pos.Shares) {
		return pos, contracts.Mismatch("cannot sell %s shares of %s; %s held",
			sold.String(), pos.Code, pos.Shares.String())
	}
	shares := pos.Shares.Sub(sold)
	cost := pos.CostBasis
	if shares.IsZero() {
		cost = decimal.Zero
	}
	return contracts.Position{Code: pos.Code, Shares: shares, CostBasis: cost}, nil
}

// ApplyTrade applies a fill on db, which should be the caller's transaction
// so the ledger write commits or rolls back together with the order status.
func ApplyTrade(ctx context.Context, db DBTX, accountID int64, code string, signedShares, price decimal.Decimal) (*contracts.Position, error) {
	pos := contracts.Position{Code: code}
	err := db.QueryRow(ctx, `
		SELECT shares, cost_basis
		FROM ledger.positions
		WHERE account_id = $1 AND code = $2
		FOR UPDATE
	`, accountID, code).Scan(&pos.Shares, &pos.CostBasis)
	if err != nil && !errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("failed to read position: %w", err)
	}

	next, err := Apply(pos, signedShares, price)
	if err != nil {
		return nil, err
	}

	_, err = db.Exec(ctx, `
		INSERT INTO ledger.positions (account_id, code, shares, cost_basis, updated_at)
		VALUES ($1, $2, $3, $4, NOW())
		ON CONFLICT (account_id, code) DO UPDATE SET
			shares = EXCLUDED.shares,
			cost_basis = EXCLUDED.cost_basis,
			updated_at = NOW()
	`, accountID, code, next.Shares, next.CostBasis)
	if err != nil {
		return nil, fmt.Errorf("failed to write position: %w", err)
	}
	return &next, nil
}

// Repository is the position ledger adapter
// ⭐ SSOT: ledger 스키마 저장/조회는 여기서만
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a new ledger repository
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Snapshot returns positions with shares > 0 restricted to codes (all codes when empty)
func (r *Repository) Snapshot(ctx context.Context, accountID int64, codes []string) (map[string]contracts.Position, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT code, shares, cost_basis
		FROM ledger.positions
		WHERE account_id = $1 AND shares > 0
		  AND (cardinality($2::text[]) = 0 OR code = ANY($2))
	`, accountID, codes)
	if err != nil {
		return nil, fmt.Errorf("failed to query positions: %w", err)
	}
	defer rows.Close()

	positions := make(map[string]contracts.Position)
	for rows.Next() {
		var p contracts.Position
		if err := rows.Scan(&p.Code, &p.Shares, &p.CostBasis); err != nil {
			return nil, fmt.Errorf("failed to scan position: %w", err)
		}
		positions[p.Code] = p
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}
	return positions, nil
}

// ApplyExecutedTrade applies one fill in its own transaction
func (r *Repository) ApplyExecutedTrade(ctx context.Context, accountID int64, code string, signedShares, price decimal.Decimal) (*contracts.Position, error) {
	var out *contracts.Position
	err := database.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		var err error
		out, err = ApplyTrade(ctx, tx, accountID, code, signedShares, price)
		return err
	})
	return out, err
}

// Upsert sets a position outright (manual import)
func (r *Repository) Upsert(ctx context.Context, accountID int64, pos contracts.Position) error {
	if pos.Shares.IsNegative() {
		return contracts.InvalidInput("shares", "must be >= 0").WithCode(pos.Code)
	}
	_, err := r.pool.Exec(ctx, `
		INSERT INTO ledger.positions (account_id, code, shares, cost_basis, updated_at)
		VALUES ($1, $2, $3, $4, NOW())
		ON CONFLICT (account_id, code) DO UPDATE SET
			shares = EXCLUDED.shares,
			cost_basis = EXCLUDED.cost_basis,
			updated_at = NOW()
	`, accountID, pos.Code, pos.Shares, pos.CostBasis)
	if err != nil {
		return fmt.Errorf("failed to upsert position: %w", err)
	}
	return nil
}
