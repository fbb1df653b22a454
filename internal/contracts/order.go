package contracts

import (
	"time"

	"github.com/shopspring/decimal"
)

// OrderAction is derived from the sign of delta_shares
type OrderAction string

const (
	ActionBuy  OrderAction = "buy"
	ActionSell OrderAction = "sell"
	ActionHold OrderAction = "hold"
)

// OrderStatus represents rebalance order status
type OrderStatus string

const (
	OrderSuggested OrderStatus = "suggested"
	OrderExecuted  OrderStatus = "executed"
	OrderSkipped   OrderStatus = "skipped"
)

// RebalanceOrder is one leg of a rebalance batch
// ⭐ SSOT: 리밸런싱 주문 정의
type RebalanceOrder struct {
	ID            int64       `json:"id"`
	BatchID       int64       `json:"batch_id"`
	FundCode      string      `json:"fund_code"`
	Action        OrderAction `json:"action"`
	CurrentWeight float64     `json:"current_weight"`
	TargetWeight  float64     `json:"target_weight"`
	Deviation     float64     `json:"deviation"` // target - current

	Price         decimal.Decimal `json:"price"`
	CurrentShares decimal.Decimal `json:"current_shares"`
	TargetShares  decimal.Decimal `json:"target_shares"`
	DeltaShares   decimal.Decimal `json:"delta_shares"` // signed
	DeltaValue    decimal.Decimal `json:"delta_value"`  // unrounded value gap
	TradeAmount   decimal.Decimal `json:"trade_amount"` // delta_shares * price
	Fee           decimal.Decimal `json:"fee"`

	Status         OrderStatus      `json:"status"`
	ExecutedShares *decimal.Decimal `json:"executed_shares,omitempty"`
	ExecutedPrice  *decimal.Decimal `json:"executed_price,omitempty"`
	ExecutedAt     *time.Time       `json:"executed_at,omitempty"`
}

// IsActionable reports whether the order trades anything
func (o *RebalanceOrder) IsActionable() bool {
	return o.Action != ActionHold
}

// IsPending reports whether the order still waits for execution or skip
func (o *RebalanceOrder) IsPending() bool {
	return o.Status == OrderSuggested && o.IsActionable()
}

// BatchSource tells why a batch was generated
type BatchSource string

const (
	SourceManual         BatchSource = "manual"
	SourceSmartRebalance BatchSource = "smart_rebalance"
	SourceAdd            BatchSource = "add"
	SourceReduce         BatchSource = "reduce"
)

// Valid reports whether s is a known source
func (s BatchSource) Valid() bool {
	switch s {
	case SourceManual, SourceSmartRebalance, SourceAdd, SourceReduce:
		return true
	}
	return false
}

// BatchStatus is the stored batch state
type BatchStatus string

const (
	BatchOpen      BatchStatus = "open"
	BatchCompleted BatchStatus = "completed"
)

// RebalanceBatch groups the orders of one rebalance computation
type RebalanceBatch struct {
	ID                int64           `json:"id"`
	PortfolioID       int64           `json:"portfolio_id"`
	AccountID         int64           `json:"account_id"`
	VersionID         int64           `json:"version_id"`
	Title             string          `json:"title"`
	Source            BatchSource     `json:"source"`
	CapitalAdjustment decimal.Decimal `json:"capital_adjustment"`
	FeeRate           float64         `json:"fee_rate"`
	MinDeviation      float64         `json:"min_deviation"`
	BuyAmount         decimal.Decimal `json:"buy_amount"`
	SellAmount        decimal.Decimal `json:"sell_amount"`
	NetAmount         decimal.Decimal `json:"net_amount"` // buy - sell
	PendingOrders     int             `json:"pending_orders"`
	Status            BatchStatus     `json:"status"`
	CreatedAt         time.Time       `json:"created_at"`
	UpdatedAt         time.Time       `json:"updated_at"`
	CompletedAt       *time.Time      `json:"completed_at,omitempty"`
}

// Completable is the derived "all orders settled" condition
func (b *RebalanceBatch) Completable() bool {
	return b.Status == BatchOpen && b.PendingOrders == 0
}

// Warning is a non-fatal problem attached to a result
type Warning struct {
	Code   string `json:"code,omitempty"`
	Field  string `json:"field"`
	Reason string `json:"reason"`
}

// PlanSummary aggregates one generated plan
type PlanSummary struct {
	TotalAssets     decimal.Decimal `json:"total_assets"`
	ActionableCount int             `json:"actionable_count"`
	BuyAmount       decimal.Decimal `json:"buy_amount"`
	SellAmount      decimal.Decimal `json:"sell_amount"`
	NetAmount       decimal.Decimal `json:"net_amount"`
	EstimatedFee    decimal.Decimal `json:"estimated_fee"`
	FeeRate         float64         `json:"fee_rate"`
	ScopeSize       int             `json:"scope_size"`
	WeightSum       float64         `json:"weight_sum"`
}

// RebalancePlan is the unpersisted output of the order generator
type RebalancePlan struct {
	Orders   []RebalanceOrder `json:"orders"`
	Summary  PlanSummary      `json:"summary"`
	Warnings []Warning        `json:"warnings"`
}

// BatchView is a batch with its orders
type BatchView struct {
	Batch    RebalanceBatch   `json:"batch"`
	Orders   []RebalanceOrder `json:"orders"`
	Warnings []Warning        `json:"warnings,omitempty"`
}

// Fill is the caller-supplied execution confirmation
type Fill struct {
	Shares     decimal.Decimal `json:"executed_shares"`
	Price      decimal.Decimal `json:"executed_price"`
	ExecutedAt time.Time       `json:"executed_at"`
}
