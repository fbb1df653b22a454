package rebalance

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/wonny/fundfolio/backend/internal/contracts"
)

// Store persists batches and orders
type Store interface {
	// CreateBatch inserts the batch and its orders, assigning ids
	CreateBatch(ctx context.Context, batch *contracts.RebalanceBatch, orders []contracts.RebalanceOrder) error
	GetBatch(ctx context.Context, batchID int64) (*contracts.RebalanceBatch, error)
	ListBatches(ctx context.Context, portfolioID, accountID int64) ([]contracts.RebalanceBatch, error)
	ListOpenBatches(ctx context.Context) ([]contracts.RebalanceBatch, error)
	ListOrders(ctx context.Context, batchID int64, status contracts.OrderStatus) ([]contracts.RebalanceOrder, error)
	GetOrder(ctx context.Context, orderID int64) (*contracts.RebalanceOrder, error)

	// WithTx runs fn atomically: every write inside commits together or not at all
	WithTx(ctx context.Context, fn func(tx TxStore) error) error
}

// TxStore is the write surface available inside a transaction
type TxStore interface {
	LockBatch(ctx context.Context, batchID int64) (*contracts.RebalanceBatch, error)
	LockOrder(ctx context.Context, orderID int64) (*contracts.RebalanceOrder, error)
	ListOrders(ctx context.Context, batchID int64, status contracts.OrderStatus) ([]contracts.RebalanceOrder, error)
	UpdateOrderStatus(ctx context.Context, orderID int64, status contracts.OrderStatus, fill *contracts.Fill) error
	ReplaceOrderFields(ctx context.Context, order contracts.RebalanceOrder) error
	ApplyExecutedTrade(ctx context.Context, accountID int64, code string, signedShares, price decimal.Decimal) error
	RefreshBatchTotals(ctx context.Context, batchID int64) (*contracts.RebalanceBatch, error)
	CompleteBatch(ctx context.Context, batchID int64, at time.Time) error
}

// Totals recomputes a batch's stored aggregates from its orders.
// Skipped legs are ignored; executed legs count at their fill.
func Totals(orders []contracts.RebalanceOrder) (buy, sell decimal.Decimal, pending int) {
	buy, sell = decimal.Zero, decimal.Zero
	for _, o := range orders {
		if o.Status == contracts.OrderSkipped || !o.IsActionable() {
			continue
		}
		amount := o.TradeAmount.Abs()
		if o.Status == contracts.OrderExecuted && o.ExecutedShares != nil && o.ExecutedPrice != nil {
			amount = o.ExecutedShares.Mul(*o.ExecutedPrice).Round(4)
		}
		if o.Action == contracts.ActionBuy {
			buy = buy.Add(amount)
		} else {
			sell = sell.Add(amount)
		}
		if o.IsPending() {
			pending++
		}
	}
	return buy, sell, pending
}
