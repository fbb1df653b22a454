package rebalance

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/wonny/fundfolio/backend/internal/contracts"
	"github.com/wonny/fundfolio/backend/internal/strategy"
	"github.com/wonny/fundfolio/backend/pkg/logger"
)

// MaxMinDeviation bounds the hold band a caller may request
const MaxMinDeviation = 0.2

// PortfolioReader resolves a portfolio with its active targets
type PortfolioReader interface {
	GetDetail(ctx context.Context, portfolioID int64) (*contracts.PortfolioDetail, error)
}

// Settings are the generator defaults
type Settings struct {
	MinDeviation float64
	LotSize      decimal.Decimal
}

// Manager owns rebalance batches and their order lifecycle
// ⭐ SSOT: 배치 상태 전이는 여기서만
type Manager struct {
	store      Store
	portfolios PortfolioReader
	positions  contracts.PositionSnapshot
	prices     contracts.PriceLookup
	locker     contracts.Locker
	settings   Settings
	logger     *logger.Logger
	now        func() time.Time
}

// NewManager creates a batch manager
func NewManager(
	store Store,
	portfolios PortfolioReader,
	positions contracts.PositionSnapshot,
	prices contracts.PriceLookup,
	locker contracts.Locker,
	settings Settings,
	log *logger.Logger,
) *Manager {
	return &Manager{
		store:      store,
		portfolios: portfolios,
		positions:  positions,
		prices:     prices,
		locker:     locker,
		settings:   settings,
		logger:     log,
		now:        time.Now,
	}
}

// GenerateRequest asks for a rebalance plan of one portfolio/account
type GenerateRequest struct {
	PortfolioID       int64                 `json:"portfolio_id"`
	AccountID         int64                 `json:"account_id"`
	Title             string                `json:"title"`
	Source            contracts.BatchSource `json:"source"`
	CapitalAdjustment decimal.Decimal       `json:"capital_adjustment"`
	MinDeviation      *float64              `json:"min_deviation,omitempty"`
	FeeRate           *float64              `json:"fee_rate,omitempty"`
	Persist           bool                  `json:"persist"`
	AsOf              time.Time             `json:"as_of"`
}

func (r *GenerateRequest) validate() error {
	if r.AccountID <= 0 {
		return contracts.InvalidInput("account_id", "account_id is required")
	}
	if r.Source == "" {
		r.Source = contracts.SourceManual
	}
	if !r.Source.Valid() {
		return contracts.InvalidInput("source", "unknown source %q", r.Source)
	}
	if r.Source == contracts.SourceAdd && !r.CapitalAdjustment.IsPositive() {
		return contracts.InvalidInput("capital_adjustment", "add requires a positive amount")
	}
	if r.Source == contracts.SourceReduce && !r.CapitalAdjustment.IsNegative() {
		return contracts.InvalidInput("capital_adjustment", "reduce requires a negative amount")
	}
	if r.MinDeviation != nil && (*r.MinDeviation < 0 || *r.MinDeviation > MaxMinDeviation) {
		return contracts.InvalidInput("min_deviation", "must be within [0, %v]", MaxMinDeviation)
	}
	if r.FeeRate != nil {
		if err := strategy.ValidateFeeRate(*r.FeeRate); err != nil {
			return err
		}
	}
	return nil
}

// PlanResult is a generated plan and, when persisted, its batch
type PlanResult struct {
	Batch *contracts.RebalanceBatch `json:"batch,omitempty"`
	contracts.RebalancePlan
}

// GeneratePlan computes orders from the active version, current positions and prices.
// With Persist the plan is stored as a new open batch.
func (m *Manager) GeneratePlan(ctx context.Context, req GenerateRequest) (*PlanResult, error) {
	if err := req.validate(); err != nil {
		return nil, err
	}
	if req.AsOf.IsZero() {
		req.AsOf = m.now()
	}

	release, err := m.lock(ctx, fmt.Sprintf("portfolio:%d", req.PortfolioID))
	if err != nil {
		return nil, err
	}
	defer release()

	detail, err := m.portfolios.GetDetail(ctx, req.PortfolioID)
	if err != nil {
		return nil, err
	}
	if detail.ActiveVersion == nil {
		return nil, contracts.InvalidInput("portfolio_id", "portfolio %d has no active version", req.PortfolioID)
	}

	feeRate := detail.Portfolio.FeeRate
	if req.FeeRate != nil {
		feeRate = *req.FeeRate
	}
	minDev := m.settings.MinDeviation
	if req.MinDeviation != nil {
		minDev = *req.MinDeviation
	}

	plan, err := m.plan(ctx, detail, detail.ActiveTargets, req.AccountID, req.AsOf, feeRate, minDev, req.CapitalAdjustment)
	if err != nil {
		return nil, err
	}

	result := &PlanResult{RebalancePlan: *plan}
	if !req.Persist {
		return result, nil
	}

	title := strings.TrimSpace(req.Title)
	if title == "" {
		title = fmt.Sprintf("%s rebalance %s", detail.Portfolio.Name, req.AsOf.Format("2006-01-02"))
	}

	buy, sell, pending := Totals(plan.Orders)
	batch := &contracts.RebalanceBatch{
		PortfolioID:       req.PortfolioID,
		AccountID:         req.AccountID,
		VersionID:         detail.ActiveVersion.ID,
		Title:             title,
		Source:            req.Source,
		CapitalAdjustment: req.CapitalAdjustment,
		FeeRate:           feeRate,
		MinDeviation:      minDev,
		BuyAmount:         buy,
		SellAmount:        sell,
		NetAmount:         buy.Sub(sell),
		PendingOrders:     pending,
		Status:            contracts.BatchOpen,
	}
	if err := m.store.CreateBatch(ctx, batch, plan.Orders); err != nil {
		return nil, fmt.Errorf("failed to persist batch: %w", err)
	}
	result.Batch = batch
	result.Orders = plan.Orders

	m.logger.WithFields(map[string]interface{}{
		"batch_id":     batch.ID,
		"portfolio_id": batch.PortfolioID,
		"account_id":   batch.AccountID,
		"source":       batch.Source,
		"actionable":   plan.Summary.ActionableCount,
		"warnings":     len(plan.Warnings),
	}).Info("Rebalance batch generated")

	return result, nil
}

// plan gathers the snapshot and runs the generator
func (m *Manager) plan(
	ctx context.Context,
	detail *contracts.PortfolioDetail,
	targets contracts.TargetSet,
	accountID int64,
	asOf time.Time,
	feeRate, minDev float64,
	adjustment decimal.Decimal,
) (*contracts.RebalancePlan, error) {
	codes := strategy.MergeScope(detail.Portfolio.ScopeCodes, targets)

	positions, err := m.positions.Snapshot(ctx, accountID, codes)
	if err != nil {
		return nil, fmt.Errorf("failed to read positions: %w", err)
	}

	prices := make(map[string]decimal.Decimal, len(codes))
	for _, code := range codes {
		price, ok, err := m.prices.PriceOn(ctx, code, asOf)
		if err != nil {
			return nil, fmt.Errorf("failed to look up price of %s: %w", code, err)
		}
		if ok {
			prices[code] = price
		}
	}

	plan, err := Generate(GenerateInput{
		Positions:         positions,
		Prices:            prices,
		Scope:             codes,
		Targets:           targets,
		FeeRate:           feeRate,
		MinDeviation:      minDev,
		LotSize:           m.settings.LotSize,
		CapitalAdjustment: adjustment,
	})
	if err != nil {
		return nil, err
	}

	for _, w := range plan.Warnings {
		m.logger.WithFields(map[string]interface{}{
			"portfolio_id": detail.Portfolio.ID,
			"code":         w.Code,
			"field":        w.Field,
		}).Warn(w.Reason)
	}
	return plan, nil
}

// Refresh recomputes the batch's suggested orders in place against current prices.
// Executed and skipped orders are never touched.
func (m *Manager) Refresh(ctx context.Context, batchID int64) (*contracts.BatchView, error) {
	batch, err := m.store.GetBatch(ctx, batchID)
	if err != nil {
		return nil, err
	}

	release, err := m.lock(ctx, fmt.Sprintf("portfolio:%d", batch.PortfolioID))
	if err != nil {
		return nil, err
	}
	defer release()

	if batch.Status == contracts.BatchCompleted {
		return nil, contracts.InvalidTransition("batch %d is completed and cannot be refreshed", batchID)
	}

	detail, err := m.portfolios.GetDetail(ctx, batch.PortfolioID)
	if err != nil {
		return nil, err
	}
	targets, err := batchTargets(detail, batch)
	if err != nil {
		return nil, err
	}

	existing, err := m.store.ListOrders(ctx, batchID, "")
	if err != nil {
		return nil, err
	}

	// fills already moved cash in or out of positions; only the rest is still to deploy
	remaining := batch.CapitalAdjustment
	for _, o := range existing {
		if o.Status == contracts.OrderExecuted && o.ExecutedShares != nil && o.ExecutedPrice != nil {
			amount := o.ExecutedShares.Mul(*o.ExecutedPrice)
			if o.Action == contracts.ActionSell {
				amount = amount.Neg()
			}
			remaining = remaining.Sub(amount)
		}
	}

	plan, err := m.plan(ctx, detail, targets, batch.AccountID, m.now(), batch.FeeRate, batch.MinDeviation, remaining)
	if err != nil {
		return nil, err
	}

	fresh := make(map[string]contracts.RebalanceOrder, len(plan.Orders))
	for _, o := range plan.Orders {
		fresh[o.FundCode] = o
	}

	var view contracts.BatchView
	err = m.store.WithTx(ctx, func(tx TxStore) error {
		locked, err := tx.LockBatch(ctx, batchID)
		if err != nil {
			return err
		}
		if locked.Status == contracts.BatchCompleted {
			return contracts.InvalidTransition("batch %d is completed and cannot be refreshed", batchID)
		}

		suggested, err := tx.ListOrders(ctx, batchID, contracts.OrderSuggested)
		if err != nil {
			return err
		}
		for _, old := range suggested {
			next, ok := fresh[old.FundCode]
			if !ok {
				continue // no price today: keep previous figures, warning already in plan
			}
			next.ID = old.ID
			next.BatchID = old.BatchID
			next.Status = contracts.OrderSuggested
			if err := tx.ReplaceOrderFields(ctx, next); err != nil {
				return err
			}
		}

		updated, err := tx.RefreshBatchTotals(ctx, batchID)
		if err != nil {
			return err
		}
		orders, err := tx.ListOrders(ctx, batchID, "")
		if err != nil {
			return err
		}
		view = contracts.BatchView{Batch: *updated, Orders: orders, Warnings: plan.Warnings}
		return nil
	})
	if err != nil {
		return nil, err
	}

	m.logger.WithFields(map[string]interface{}{
		"batch_id": batchID,
		"pending":  view.Batch.PendingOrders,
	}).Info("Rebalance batch refreshed")

	return &view, nil
}

// batchTargets are the targets of the version the batch was generated from.
// A later activation does not retarget an open batch.
func batchTargets(detail *contracts.PortfolioDetail, batch *contracts.RebalanceBatch) (contracts.TargetSet, error) {
	if detail.ActiveVersion != nil && detail.ActiveVersion.ID == batch.VersionID {
		return detail.ActiveTargets, nil
	}
	for _, v := range detail.Versions {
		if v.ID == batch.VersionID {
			return v.Targets, nil
		}
	}
	return nil, contracts.NotFound("version", batch.VersionID)
}

// ExecuteResult is the outcome of one execution confirmation
type ExecuteResult struct {
	Order contracts.RebalanceOrder `json:"order"`
	Batch contracts.RebalanceBatch `json:"batch"`
}

// Execute marks a suggested order executed and applies the fill to the ledger atomically.
// On any failure the order stays suggested and the ledger is unchanged.
func (m *Manager) Execute(ctx context.Context, orderID int64, fill contracts.Fill) (*ExecuteResult, error) {
	if !fill.Shares.IsPositive() {
		return nil, contracts.InvalidInput("executed_shares", "must be > 0")
	}
	if !fill.Price.IsPositive() {
		return nil, contracts.InvalidInput("executed_price", "must be > 0")
	}
	if fill.ExecutedAt.IsZero() {
		fill.ExecutedAt = m.now()
	}

	batchID, release, err := m.lockOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	defer release()

	var result ExecuteResult
	err = m.store.WithTx(ctx, func(tx TxStore) error {
		batch, order, err := lockRows(ctx, tx, batchID, orderID)
		if err != nil {
			return err
		}

		if batch.Status == contracts.BatchCompleted {
			return contracts.Mismatch("batch %d is already completed", batch.ID)
		}
		if order.Status != contracts.OrderSuggested {
			return contracts.Mismatch("order %d is already %s", orderID, order.Status)
		}
		if !order.IsActionable() {
			return contracts.Mismatch("order %d is a hold and has nothing to execute", orderID)
		}

		signed := fill.Shares
		if order.Action == contracts.ActionSell {
			signed = signed.Neg()
		}
		if err := tx.ApplyExecutedTrade(ctx, batch.AccountID, order.FundCode, signed, fill.Price); err != nil {
			return err
		}
		if err := tx.UpdateOrderStatus(ctx, orderID, contracts.OrderExecuted, &fill); err != nil {
			return err
		}
		updated, err := tx.RefreshBatchTotals(ctx, batch.ID)
		if err != nil {
			return err
		}

		order.Status = contracts.OrderExecuted
		order.ExecutedShares = &fill.Shares
		order.ExecutedPrice = &fill.Price
		order.ExecutedAt = &fill.ExecutedAt
		result = ExecuteResult{Order: *order, Batch: *updated}
		return nil
	})
	if err != nil {
		return nil, err
	}

	m.logger.WithFields(map[string]interface{}{
		"order_id": orderID,
		"batch_id": result.Batch.ID,
		"code":     result.Order.FundCode,
		"action":   result.Order.Action,
		"shares":   fill.Shares.String(),
		"price":    fill.Price.String(),
	}).Info("Rebalance order executed")

	return &result, nil
}

// Skip marks a suggested order skipped
func (m *Manager) Skip(ctx context.Context, orderID int64) (*ExecuteResult, error) {
	batchID, release, err := m.lockOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	defer release()

	var result ExecuteResult
	err = m.store.WithTx(ctx, func(tx TxStore) error {
		batch, order, err := lockRows(ctx, tx, batchID, orderID)
		if err != nil {
			return err
		}
		if batch.Status == contracts.BatchCompleted {
			return contracts.InvalidTransition("batch %d is already completed", batch.ID)
		}
		if order.Status != contracts.OrderSuggested {
			return contracts.InvalidTransition("order %d is %s; only suggested orders can be skipped", orderID, order.Status)
		}

		if err := tx.UpdateOrderStatus(ctx, orderID, contracts.OrderSkipped, nil); err != nil {
			return err
		}
		updated, err := tx.RefreshBatchTotals(ctx, batch.ID)
		if err != nil {
			return err
		}
		order.Status = contracts.OrderSkipped
		result = ExecuteResult{Order: *order, Batch: *updated}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &result, nil
}

// Complete closes a batch. It fails while any buy/sell is still suggested;
// suggested holds are skipped in the same transaction.
func (m *Manager) Complete(ctx context.Context, batchID int64) (*contracts.BatchView, error) {
	batch, err := m.store.GetBatch(ctx, batchID)
	if err != nil {
		return nil, err
	}

	release, err := m.lock(ctx, fmt.Sprintf("portfolio:%d", batch.PortfolioID))
	if err != nil {
		return nil, err
	}
	defer release()

	var view contracts.BatchView
	err = m.store.WithTx(ctx, func(tx TxStore) error {
		locked, err := tx.LockBatch(ctx, batchID)
		if err != nil {
			return err
		}
		if locked.Status == contracts.BatchCompleted {
			return contracts.InvalidTransition("batch %d is already completed", batchID)
		}

		suggested, err := tx.ListOrders(ctx, batchID, contracts.OrderSuggested)
		if err != nil {
			return err
		}
		pending := 0
		for _, o := range suggested {
			if o.IsPending() {
				pending++
			}
		}
		if pending > 0 {
			return contracts.InvalidTransition("batch %d still has %d pending orders", batchID, pending)
		}

		for _, o := range suggested {
			if err := tx.UpdateOrderStatus(ctx, o.ID, contracts.OrderSkipped, nil); err != nil {
				return err
			}
		}
		if _, err := tx.RefreshBatchTotals(ctx, batchID); err != nil {
			return err
		}
		if err := tx.CompleteBatch(ctx, batchID, m.now()); err != nil {
			return err
		}

		done, err := tx.LockBatch(ctx, batchID)
		if err != nil {
			return err
		}
		orders, err := tx.ListOrders(ctx, batchID, "")
		if err != nil {
			return err
		}
		view = contracts.BatchView{Batch: *done, Orders: orders}
		return nil
	})
	if err != nil {
		return nil, err
	}

	m.logger.WithField("batch_id", batchID).Info("Rebalance batch completed")
	return &view, nil
}

// GetBatch returns a batch with its orders
func (m *Manager) GetBatch(ctx context.Context, batchID int64) (*contracts.BatchView, error) {
	batch, err := m.store.GetBatch(ctx, batchID)
	if err != nil {
		return nil, err
	}
	orders, err := m.store.ListOrders(ctx, batchID, "")
	if err != nil {
		return nil, err
	}
	return &contracts.BatchView{Batch: *batch, Orders: orders}, nil
}

// ListBatches lists a portfolio's batches for one account, newest first
func (m *Manager) ListBatches(ctx context.Context, portfolioID, accountID int64) ([]contracts.RebalanceBatch, error) {
	return m.store.ListBatches(ctx, portfolioID, accountID)
}

// ListOrders lists a batch's orders, optionally filtered by status
func (m *Manager) ListOrders(ctx context.Context, batchID int64, status contracts.OrderStatus) ([]contracts.RebalanceOrder, error) {
	switch status {
	case "", contracts.OrderSuggested, contracts.OrderExecuted, contracts.OrderSkipped:
	default:
		return nil, contracts.InvalidInput("status", "unknown status %q", status)
	}
	return m.store.ListOrders(ctx, batchID, status)
}

// RefreshOpen refreshes every open batch; failures are logged and counted
func (m *Manager) RefreshOpen(ctx context.Context) (refreshed int, failed int, err error) {
	batches, err := m.store.ListOpenBatches(ctx)
	if err != nil {
		return 0, 0, err
	}
	for _, b := range batches {
		if ctx.Err() != nil {
			return refreshed, failed, ctx.Err()
		}
		if _, err := m.Refresh(ctx, b.ID); err != nil {
			failed++
			m.logger.WithError(err).WithField("batch_id", b.ID).Warn("Open batch refresh failed")
			continue
		}
		refreshed++
	}
	return refreshed, failed, nil
}

// lockOrder serializes an order mutation with every other mutation of its portfolio.
// The portfolio key is always taken before the order key.
func (m *Manager) lockOrder(ctx context.Context, orderID int64) (int64, func(), error) {
	order, err := m.store.GetOrder(ctx, orderID)
	if err != nil {
		return 0, nil, err
	}
	batch, err := m.store.GetBatch(ctx, order.BatchID)
	if err != nil {
		return 0, nil, err
	}

	releasePortfolio, err := m.lock(ctx, fmt.Sprintf("portfolio:%d", batch.PortfolioID))
	if err != nil {
		return 0, nil, err
	}
	releaseOrder, err := m.lock(ctx, fmt.Sprintf("order:%d", orderID))
	if err != nil {
		releasePortfolio()
		return 0, nil, err
	}
	return batch.ID, func() {
		releaseOrder()
		releasePortfolio()
	}, nil
}

// lockRows takes the row locks batch first, then order, the same order Refresh and Complete use
func lockRows(ctx context.Context, tx TxStore, batchID, orderID int64) (*contracts.RebalanceBatch, *contracts.RebalanceOrder, error) {
	batch, err := tx.LockBatch(ctx, batchID)
	if err != nil {
		return nil, nil, err
	}
	order, err := tx.LockOrder(ctx, orderID)
	if err != nil {
		return nil, nil, err
	}
	if order.BatchID != batchID {
		return nil, nil, contracts.Mismatch("order %d moved to batch %d", orderID, order.BatchID)
	}
	return batch, order, nil
}

func (m *Manager) lock(ctx context.Context, key string) (func(), error) {
	release, err := m.locker.Acquire(ctx, key)
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return nil, err
		}
		return nil, contracts.Conflict(key, err)
	}
	return release, nil
}
