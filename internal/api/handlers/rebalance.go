package handlers

import (
	"context"
	"net/http"

	"github.com/shopspring/decimal"

	"github.com/wonny/fundfolio/backend/internal/contracts"
	"github.com/wonny/fundfolio/backend/internal/rebalance"
	"github.com/wonny/fundfolio/backend/pkg/logger"
)

// RebalanceService is satisfied by *rebalance.Manager
type RebalanceService interface {
	GeneratePlan(ctx context.Context, req rebalance.GenerateRequest) (*rebalance.PlanResult, error)
	ListBatches(ctx context.Context, portfolioID, accountID int64) ([]contracts.RebalanceBatch, error)
	GetBatch(ctx context.Context, batchID int64) (*contracts.BatchView, error)
	ListOrders(ctx context.Context, batchID int64, status contracts.OrderStatus) ([]contracts.RebalanceOrder, error)
	Refresh(ctx context.Context, batchID int64) (*contracts.BatchView, error)
	Complete(ctx context.Context, batchID int64) (*contracts.BatchView, error)
	Execute(ctx context.Context, orderID int64, fill contracts.Fill) (*rebalance.ExecuteResult, error)
	Skip(ctx context.Context, orderID int64) (*rebalance.ExecuteResult, error)
}

// RebalanceHandler handles rebalance batch and order endpoints
// ⭐ SSOT: 리밸런싱 API 핸들러는 이 구조체에서만
type RebalanceHandler struct {
	manager RebalanceService
	logger  *logger.Logger
}

// NewRebalanceHandler creates a new rebalance handler
func NewRebalanceHandler(manager RebalanceService, log *logger.Logger) *RebalanceHandler {
	return &RebalanceHandler{manager: manager, logger: log}
}

// GenerateBody is the rebalance request body; persist defaults to true
type GenerateBody struct {
	AccountID         int64                 `json:"account_id"`
	Title             string                `json:"title"`
	Source            contracts.BatchSource `json:"source"`
	CapitalAdjustment decimal.Decimal       `json:"capital_adjustment"`
	MinDeviation      *float64              `json:"min_deviation,omitempty"`
	FeeRate           *float64              `json:"fee_rate,omitempty"`
	Persist           *bool                 `json:"persist,omitempty"`
}

// Generate computes rebalance orders and optionally stores them as a batch
// POST /api/strategy/portfolios/{id}/rebalance
func (h *RebalanceHandler) Generate(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		respondErr(w, h.logger, err, "Invalid portfolio")
		return
	}
	var body GenerateBody
	if err := decodeJSON(r, &body); err != nil {
		respondErr(w, h.logger, err, "Invalid request")
		return
	}

	req := rebalance.GenerateRequest{
		PortfolioID:       id,
		AccountID:         body.AccountID,
		Title:             body.Title,
		Source:            body.Source,
		CapitalAdjustment: body.CapitalAdjustment,
		MinDeviation:      body.MinDeviation,
		FeeRate:           body.FeeRate,
		Persist:           body.Persist == nil || *body.Persist,
	}

	plan, err := h.manager.GeneratePlan(r.Context(), req)
	if err != nil {
		respondErr(w, h.logger, err, "Failed to generate rebalance")
		return
	}

	status := http.StatusOK
	if plan.Batch != nil {
		status = http.StatusCreated
	}
	respondJSON(w, status, plan)
}

// ListBatches lists a portfolio's batches, newest first
// GET /api/strategy/portfolios/{id}/batches?account_id=
func (h *RebalanceHandler) ListBatches(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		respondErr(w, h.logger, err, "Invalid portfolio")
		return
	}
	accountID, _, err := queryID(r, "account_id")
	if err != nil {
		respondErr(w, h.logger, err, "Invalid account")
		return
	}

	batches, err := h.manager.ListBatches(r.Context(), id, accountID)
	if err != nil {
		respondErr(w, h.logger, err, "Failed to list batches")
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"batches": batches,
	})
}

// GetBatch returns a batch with its orders
// GET /api/rebalance/batches/{batchID}
func (h *RebalanceHandler) GetBatch(w http.ResponseWriter, r *http.Request) {
	h.batchAction(w, r, h.manager.GetBatch, "Failed to get batch")
}

// ListOrders lists a batch's orders, optionally by status
// GET /api/rebalance/batches/{batchID}/orders?status=
func (h *RebalanceHandler) ListOrders(w http.ResponseWriter, r *http.Request) {
	batchID, err := pathID(r, "batchID")
	if err != nil {
		respondErr(w, h.logger, err, "Invalid batch")
		return
	}

	status := contracts.OrderStatus(r.URL.Query().Get("status"))
	orders, err := h.manager.ListOrders(r.Context(), batchID, status)
	if err != nil {
		respondErr(w, h.logger, err, "Failed to list orders")
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"orders": orders,
	})
}

// RefreshBatch recomputes a batch's suggested orders from current prices
// POST /api/rebalance/batches/{batchID}/refresh
func (h *RebalanceHandler) RefreshBatch(w http.ResponseWriter, r *http.Request) {
	h.batchAction(w, r, h.manager.Refresh, "Failed to refresh batch")
}

// CompleteBatch closes a batch once nothing is pending
// POST /api/rebalance/batches/{batchID}/complete
func (h *RebalanceHandler) CompleteBatch(w http.ResponseWriter, r *http.Request) {
	h.batchAction(w, r, h.manager.Complete, "Failed to complete batch")
}

func (h *RebalanceHandler) batchAction(
	w http.ResponseWriter,
	r *http.Request,
	action func(context.Context, int64) (*contracts.BatchView, error),
	msg string,
) {
	batchID, err := pathID(r, "batchID")
	if err != nil {
		respondErr(w, h.logger, err, "Invalid batch")
		return
	}

	view, err := action(r.Context(), batchID)
	if err != nil {
		respondErr(w, h.logger, err, msg)
		return
	}
	respondJSON(w, http.StatusOK, view)
}

// ExecuteOrder confirms a fill and applies it to the ledger
// POST /api/rebalance/orders/{orderID}/execute
func (h *RebalanceHandler) ExecuteOrder(w http.ResponseWriter, r *http.Request) {
	orderID, err := pathID(r, "orderID")
	if err != nil {
		respondErr(w, h.logger, err, "Invalid order")
		return
	}
	var fill contracts.Fill
	if err := decodeJSON(r, &fill); err != nil {
		respondErr(w, h.logger, err, "Invalid request")
		return
	}

	result, err := h.manager.Execute(r.Context(), orderID, fill)
	if err != nil {
		respondErr(w, h.logger, err, "Failed to execute order")
		return
	}
	respondJSON(w, http.StatusOK, result)
}

// SkipOrder marks a suggested order skipped
// POST /api/rebalance/orders/{orderID}/skip
func (h *RebalanceHandler) SkipOrder(w http.ResponseWriter, r *http.Request) {
	orderID, err := pathID(r, "orderID")
	if err != nil {
		respondErr(w, h.logger, err, "Invalid order")
		return
	}

	result, err := h.manager.Skip(r.Context(), orderID)
	if err != nil {
		respondErr(w, h.logger, err, "Failed to skip order")
		return
	}
	respondJSON(w, http.StatusOK, result)
}
