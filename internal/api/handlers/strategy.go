package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/wonny/fundfolio/backend/internal/contracts"
	"github.com/wonny/fundfolio/backend/internal/strategy"
	"github.com/wonny/fundfolio/backend/pkg/logger"
)

// StrategyService is satisfied by *strategy.Service
type StrategyService interface {
	ListPortfolios(ctx context.Context, accountID *int64) ([]contracts.Portfolio, error)
	CreatePortfolio(ctx context.Context, in strategy.CreatePortfolioInput) (*strategy.Created, error)
	GetDetail(ctx context.Context, portfolioID int64) (*contracts.PortfolioDetail, error)
	DeletePortfolio(ctx context.Context, portfolioID int64) error
	CreateVersion(ctx context.Context, portfolioID int64, in strategy.CreateVersionInput) (*strategy.Created, error)
	ActivateVersion(ctx context.Context, portfolioID, versionID int64) (*contracts.PortfolioDetail, error)
	UpdateScope(ctx context.Context, portfolioID int64, codes []string) (*contracts.Portfolio, error)
}

// PerformanceService is satisfied by *performance.Service
type PerformanceService interface {
	ComputePerformance(ctx context.Context, portfolioID, accountID int64, now time.Time) (*contracts.PerformanceResult, error)
}

// StrategyHandler handles strategy portfolio endpoints
// ⭐ SSOT: 전략 API 핸들러는 이 구조체에서만
type StrategyHandler struct {
	strategies  StrategyService
	performance PerformanceService
	logger      *logger.Logger
	now         func() time.Time
}

// NewStrategyHandler creates a new strategy handler
func NewStrategyHandler(strategies StrategyService, perf PerformanceService, log *logger.Logger) *StrategyHandler {
	return &StrategyHandler{
		strategies:  strategies,
		performance: perf,
		logger:      log,
		now:         time.Now,
	}
}

// ListPortfolios lists portfolios, optionally for one account
// GET /api/strategy/portfolios?account_id=
func (h *StrategyHandler) ListPortfolios(w http.ResponseWriter, r *http.Request) {
	accountID, ok, err := queryID(r, "account_id")
	if err != nil {
		respondErr(w, h.logger, err, "Invalid account")
		return
	}
	var filter *int64
	if ok {
		filter = &accountID
	}

	portfolios, err := h.strategies.ListPortfolios(r.Context(), filter)
	if err != nil {
		respondErr(w, h.logger, err, "Failed to list portfolios")
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"portfolios": portfolios,
	})
}

// CreatePortfolio creates a portfolio with its first version
// POST /api/strategy/portfolios
func (h *StrategyHandler) CreatePortfolio(w http.ResponseWriter, r *http.Request) {
	var in strategy.CreatePortfolioInput
	if err := decodeJSON(r, &in); err != nil {
		respondErr(w, h.logger, err, "Invalid request")
		return
	}

	created, err := h.strategies.CreatePortfolio(r.Context(), in)
	if err != nil {
		respondErr(w, h.logger, err, "Failed to create portfolio")
		return
	}
	respondJSON(w, http.StatusCreated, created)
}

// GetPortfolio returns a portfolio with its versions
// GET /api/strategy/portfolios/{id}
func (h *StrategyHandler) GetPortfolio(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		respondErr(w, h.logger, err, "Invalid portfolio")
		return
	}

	detail, err := h.strategies.GetDetail(r.Context(), id)
	if err != nil {
		respondErr(w, h.logger, err, "Failed to get portfolio")
		return
	}
	respondJSON(w, http.StatusOK, detail)
}

// DeletePortfolio removes a portfolio with its versions and batches
// DELETE /api/strategy/portfolios/{id}
func (h *StrategyHandler) DeletePortfolio(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		respondErr(w, h.logger, err, "Invalid portfolio")
		return
	}

	if err := h.strategies.DeletePortfolio(r.Context(), id); err != nil {
		respondErr(w, h.logger, err, "Failed to delete portfolio")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// CreateVersion adds a target version
// POST /api/strategy/portfolios/{id}/versions
func (h *StrategyHandler) CreateVersion(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		respondErr(w, h.logger, err, "Invalid portfolio")
		return
	}
	var in strategy.CreateVersionInput
	if err := decodeJSON(r, &in); err != nil {
		respondErr(w, h.logger, err, "Invalid request")
		return
	}

	created, err := h.strategies.CreateVersion(r.Context(), id, in)
	if err != nil {
		respondErr(w, h.logger, err, "Failed to create version")
		return
	}
	respondJSON(w, http.StatusCreated, created)
}

// ActivateVersion makes a version the active one
// POST /api/strategy/portfolios/{id}/versions/{versionID}/activate
func (h *StrategyHandler) ActivateVersion(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		respondErr(w, h.logger, err, "Invalid portfolio")
		return
	}
	versionID, err := pathID(r, "versionID")
	if err != nil {
		respondErr(w, h.logger, err, "Invalid version")
		return
	}

	detail, err := h.strategies.ActivateVersion(r.Context(), id, versionID)
	if err != nil {
		respondErr(w, h.logger, err, "Failed to activate version")
		return
	}
	respondJSON(w, http.StatusOK, detail)
}

// ScopeRequest replaces a portfolio's scope
type ScopeRequest struct {
	ScopeCodes []string `json:"scope_codes"`
}

// UpdateScope replaces the code scope
// PUT /api/strategy/portfolios/{id}/scope
func (h *StrategyHandler) UpdateScope(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		respondErr(w, h.logger, err, "Invalid portfolio")
		return
	}
	var req ScopeRequest
	if err := decodeJSON(r, &req); err != nil {
		respondErr(w, h.logger, err, "Invalid request")
		return
	}

	portfolio, err := h.strategies.UpdateScope(r.Context(), id, req.ScopeCodes)
	if err != nil {
		respondErr(w, h.logger, err, "Failed to update scope")
		return
	}
	respondJSON(w, http.StatusOK, portfolio)
}

// GetPerformance returns the live performance view
// GET /api/strategy/portfolios/{id}/performance?account_id=
func (h *StrategyHandler) GetPerformance(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		respondErr(w, h.logger, err, "Invalid portfolio")
		return
	}
	accountID, ok, err := queryID(r, "account_id")
	if err == nil && !ok {
		err = contracts.InvalidInput("account_id", "account_id is required")
	}
	if err != nil {
		respondErr(w, h.logger, err, "Invalid account")
		return
	}

	result, err := h.performance.ComputePerformance(r.Context(), id, accountID, h.now())
	if err != nil {
		respondErr(w, h.logger, err, "Failed to compute performance")
		return
	}
	respondJSON(w, http.StatusOK, result)
}
