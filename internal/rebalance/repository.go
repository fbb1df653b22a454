package rebalance

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/wonny/fundfolio/backend/internal/contracts"
	"github.com/wonny/fundfolio/backend/internal/ledger"
	"github.com/wonny/fundfolio/backend/pkg/database"
)

// Repository handles rebalance batch/order persistence
// ⭐ SSOT: rebalance 스키마 저장/조회는 여기서만
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a new rebalance repository
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const batchColumns = `
	id, portfolio_id, account_id, version_id, title, source, capital_adjustment,
	fee_rate::float8, min_deviation::float8, buy_amount, sell_amount, net_amount,
	pending_orders, status, created_at, updated_at, completed_at
`

const orderColumns = `
	id, batch_id, fund_code, action, current_weight::float8, target_weight::float8,
	deviation::float8, price, current_shares, target_shares, delta_shares,
	delta_value, trade_amount, fee, status, executed_shares, executed_price, executed_at
`

func scanBatch(row pgx.Row) (*contracts.RebalanceBatch, error) {
	var (
		b         contracts.RebalanceBatch
		versionID *int64
	)
	err := row.Scan(
		&b.ID, &b.PortfolioID, &b.AccountID, &versionID, &b.Title, &b.Source, &b.CapitalAdjustment,
		&b.FeeRate, &b.MinDeviation, &b.BuyAmount, &b.SellAmount, &b.NetAmount,
		&b.PendingOrders, &b.Status, &b.CreatedAt, &b.UpdatedAt, &b.CompletedAt,
	)
	if err != nil {
		return nil, err
	}
	if versionID != nil {
		b.VersionID = *versionID
	}
	return &b, nil
}

func scanOrder(row pgx.Row) (*contracts.RebalanceOrder, error) {
	var (
		o              contracts.RebalanceOrder
		executedShares decimal.NullDecimal
		executedPrice  decimal.NullDecimal
	)
	err := row.Scan(
		&o.ID, &o.BatchID, &o.FundCode, &o.Action, &o.CurrentWeight, &o.TargetWeight,
		&o.Deviation, &o.Price, &o.CurrentShares, &o.TargetShares, &o.DeltaShares,
		&o.DeltaValue, &o.TradeAmount, &o.Fee, &o.Status, &executedShares, &executedPrice, &o.ExecutedAt,
	)
	if err != nil {
		return nil, err
	}
	if executedShares.Valid {
		o.ExecutedShares = &executedShares.Decimal
	}
	if executedPrice.Valid {
		o.ExecutedPrice = &executedPrice.Decimal
	}
	return &o, nil
}

func collectOrders(rows pgx.Rows) ([]contracts.RebalanceOrder, error) {
	defer rows.Close()

	orders := make([]contracts.RebalanceOrder, 0)
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan order: %w", err)
		}
		orders = append(orders, *o)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}
	return orders, nil
}

// CreateBatch inserts a batch and its orders in one transaction
func (r *Repository) CreateBatch(ctx context.Context, batch *contracts.RebalanceBatch, orders []contracts.RebalanceOrder) error {
	return database.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		err := tx.QueryRow(ctx, `
			INSERT INTO rebalance.batches (
				portfolio_id, account_id, version_id, title, source, capital_adjustment,
				fee_rate, min_deviation, buy_amount, sell_amount, net_amount, pending_orders, status
			) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
			RETURNING id, created_at, updated_at
		`,
			batch.PortfolioID, batch.AccountID, batch.VersionID, batch.Title, batch.Source, batch.CapitalAdjustment,
			batch.FeeRate, batch.MinDeviation, batch.BuyAmount, batch.SellAmount, batch.NetAmount,
			batch.PendingOrders, batch.Status,
		).Scan(&batch.ID, &batch.CreatedAt, &batch.UpdatedAt)
		if err != nil {
			return fmt.Errorf("failed to insert batch: %w", err)
		}

		for i := range orders {
			o := &orders[i]
			o.BatchID = batch.ID
			err := tx.QueryRow(ctx, `
				INSERT INTO rebalance.orders (
					batch_id, fund_code, action, current_weight, target_weight, deviation,
					price, current_shares, target_shares, delta_shares, delta_value,
					trade_amount, fee, status
				) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
				RETURNING id
			`,
				o.BatchID, o.FundCode, o.Action, o.CurrentWeight, o.TargetWeight, o.Deviation,
				o.Price, o.CurrentShares, o.TargetShares, o.DeltaShares, o.DeltaValue,
				o.TradeAmount, o.Fee, o.Status,
			).Scan(&o.ID)
			if err != nil {
				return fmt.Errorf("failed to insert order %s: %w", o.FundCode, err)
			}
		}
		return nil
	})
}

// GetBatch loads one batch
func (r *Repository) GetBatch(ctx context.Context, batchID int64) (*contracts.RebalanceBatch, error) {
	return getBatch(ctx, r.pool, batchID, false)
}

// ListBatches lists batches newest first; accountID 0 means any account
func (r *Repository) ListBatches(ctx context.Context, portfolioID, accountID int64) ([]contracts.RebalanceBatch, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+batchColumns+`
		FROM rebalance.batches
		WHERE portfolio_id = $1 AND ($2::bigint = 0 OR account_id = $2)
		ORDER BY created_at DESC, id DESC
	`, portfolioID, accountID)
	if err != nil {
		return nil, fmt.Errorf("failed to query batches: %w", err)
	}
	return collectBatches(rows)
}

// ListOpenBatches lists every open batch, oldest first
func (r *Repository) ListOpenBatches(ctx context.Context) ([]contracts.RebalanceBatch, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+batchColumns+`
		FROM rebalance.batches
		WHERE status = 'open'
		ORDER BY id
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query open batches: %w", err)
	}
	return collectBatches(rows)
}

func collectBatches(rows pgx.Rows) ([]contracts.RebalanceBatch, error) {
	defer rows.Close()

	batches := make([]contracts.RebalanceBatch, 0)
	for rows.Next() {
		b, err := scanBatch(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan batch: %w", err)
		}
		batches = append(batches, *b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}
	return batches, nil
}

// ListOrders lists a batch's orders; empty status means all
func (r *Repository) ListOrders(ctx context.Context, batchID int64, status contracts.OrderStatus) ([]contracts.RebalanceOrder, error) {
	return listOrders(ctx, r.pool, batchID, status)
}

// GetOrder loads one order
func (r *Repository) GetOrder(ctx context.Context, orderID int64) (*contracts.RebalanceOrder, error) {
	return getOrder(ctx, r.pool, orderID, false)
}

// WithTx runs fn inside a database transaction
func (r *Repository) WithTx(ctx context.Context, fn func(tx TxStore) error) error {
	return database.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(&txRepository{tx: tx})
	})
}

func getBatch(ctx context.Context, db ledger.DBTX, batchID int64, forUpdate bool) (*contracts.RebalanceBatch, error) {
	query := "SELECT " + batchColumns + " FROM rebalance.batches WHERE id = $1"
	if forUpdate {
		query += " FOR UPDATE"
	}
	b, err := scanBatch(db.QueryRow(ctx, query, batchID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, contracts.NotFound("batch", batchID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get batch: %w", err)
	}
	return b, nil
}

func getOrder(ctx context.Context, db ledger.DBTX, orderID int64, forUpdate bool) (*contracts.RebalanceOrder, error) {
	query := "SELECT " + orderColumns + " FROM rebalance.orders WHERE id = $1"
	if forUpdate {
		query += " FOR UPDATE"
	}
	o, err := scanOrder(db.QueryRow(ctx, query, orderID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, contracts.NotFound("order", orderID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get order: %w", err)
	}
	return o, nil
}

func listOrders(ctx context.Context, db ledger.DBTX, batchID int64, status contracts.OrderStatus) ([]contracts.RebalanceOrder, error) {
	rows, err := db.Query(ctx, `
		SELECT `+orderColumns+`
		FROM rebalance.orders
		WHERE batch_id = $1 AND ($2::text = '' OR status = $2)
		ORDER BY ABS(trade_amount) DESC, fund_code
	`, batchID, string(status))
	if err != nil {
		return nil, fmt.Errorf("failed to query orders: %w", err)
	}
	return collectOrders(rows)
}

// txRepository is the TxStore bound to one pgx transaction
type txRepository struct {
	tx pgx.Tx
}

func (t *txRepository) LockBatch(ctx context.Context, batchID int64) (*contracts.RebalanceBatch, error) {
	return getBatch(ctx, t.tx, batchID, true)
}

func (t *txRepository) LockOrder(ctx context.Context, orderID int64) (*contracts.RebalanceOrder, error) {
	return getOrder(ctx, t.tx, orderID, true)
}

func (t *txRepository) ListOrders(ctx context.Context, batchID int64, status contracts.OrderStatus) ([]contracts.RebalanceOrder, error) {
	return listOrders(ctx, t.tx, batchID, status)
}

func (t *txRepository) UpdateOrderStatus(ctx context.Context, orderID int64, status contracts.OrderStatus, fill *contracts.Fill) error {
	var (
		shares, price decimal.NullDecimal
		at            *time.Time
	)
	if fill != nil {
		shares = decimal.NewNullDecimal(fill.Shares)
		price = decimal.NewNullDecimal(fill.Price)
		at = &fill.ExecutedAt
	}
	tag, err := t.tx.Exec(ctx, `
		UPDATE rebalance.orders SET
			status = $2,
			executed_shares = $3,
			executed_price = $4,
			executed_at = $5,
			updated_at = NOW()
		WHERE id = $1
	`, orderID, status, shares, price, at)
	if err != nil {
		return fmt.Errorf("failed to update order status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return contracts.NotFound("order", orderID)
	}
	return nil
}

func (t *txRepository) ReplaceOrderFields(ctx context.Context, o contracts.RebalanceOrder) error {
	_, err := t.tx.Exec(ctx, `
		UPDATE rebalance.orders SET
			action = $2,
			current_weight = $3,
			target_weight = $4,
			deviation = $5,
			price = $6,
			current_shares = $7,
			target_shares = $8,
			delta_shares = $9,
			delta_value = $10,
			trade_amount = $11,
			fee = $12,
			updated_at = NOW()
		WHERE id = $1 AND status = 'suggested'
	`,
		o.ID, o.Action, o.CurrentWeight, o.TargetWeight, o.Deviation,
		o.Price, o.CurrentShares, o.TargetShares, o.DeltaShares, o.DeltaValue,
		o.TradeAmount, o.Fee,
	)
	if err != nil {
		return fmt.Errorf("failed to update order %d: %w", o.ID, err)
	}
	return nil
}

func (t *txRepository) ApplyExecutedTrade(ctx context.Context, accountID int64, code string, signedShares, price decimal.Decimal) error {
	_, err := ledger.ApplyTrade(ctx, t.tx, accountID, code, signedShares, price)
	return err
}

func (t *txRepository) RefreshBatchTotals(ctx context.Context, batchID int64) (*contracts.RebalanceBatch, error) {
	orders, err := listOrders(ctx, t.tx, batchID, "")
	if err != nil {
		return nil, err
	}
	buy, sell, pending := Totals(orders)

	b, err := scanBatch(t.tx.QueryRow(ctx, `
		UPDATE rebalance.batches SET
			buy_amount = $2,
			sell_amount = $3,
			net_amount = $4,
			pending_orders = $5,
			updated_at = NOW()
		WHERE id = $1
		RETURNING `+batchColumns,
		batchID, buy, sell, buy.Sub(sell), pending,
	))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, contracts.NotFound("batch", batchID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to refresh batch totals: %w", err)
	}
	return b, nil
}

func (t *txRepository) CompleteBatch(ctx context.Context, batchID int64, at time.Time) error {
	tag, err := t.tx.Exec(ctx, `
		UPDATE rebalance.batches SET
			status = 'completed',
			completed_at = $2,
			updated_at = NOW()
		WHERE id = $1 AND status = 'open'
	`, batchID, at)
	if err != nil {
		return fmt.Errorf("failed to complete batch: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return contracts.InvalidTransition("batch %d is not open", batchID)
	}
	return nil
}
