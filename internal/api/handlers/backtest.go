package handlers

import (
	"context"
	"net/http"

	"github.com/wonny/fundfolio/backend/internal/backtest"
	"github.com/wonny/fundfolio/backend/internal/contracts"
	"github.com/wonny/fundfolio/backend/pkg/logger"
)

// BacktestService is satisfied by *backtest.Service
type BacktestService interface {
	PortfolioRequest(ctx context.Context, portfolioID int64, p backtest.PortfolioParams) (contracts.BacktestRequest, error)
	Run(ctx context.Context, req contracts.BacktestRequest) (*contracts.BacktestResult, error)
}

// BacktestHandler handles backtest endpoints
// ⭐ SSOT: 백테스트 API 핸들러는 이 구조체에서만
type BacktestHandler struct {
	backtests BacktestService
	logger    *logger.Logger
}

// NewBacktestHandler creates a new backtest handler
func NewBacktestHandler(backtests BacktestService, log *logger.Logger) *BacktestHandler {
	return &BacktestHandler{backtests: backtests, logger: log}
}

// BacktestBody is the backtest request body; dates are YYYY-MM-DD
type BacktestBody struct {
	StartDate      string                  `json:"start_date"`
	EndDate        string                  `json:"end_date"`
	InitialCapital float64                 `json:"initial_capital"`
	Mode           contracts.RebalanceMode `json:"rebalance_mode"`
	Threshold      float64                 `json:"threshold"`
	PeriodicDays   int                     `json:"periodic_days"`
	FeeRate        *float64                `json:"fee_rate,omitempty"`
	BenchmarkCode  string                  `json:"benchmark_code"`
	LotSize        float64                 `json:"lot_size"`
	FromInception  bool                    `json:"from_inception"`
}

func (b BacktestBody) params() (backtest.PortfolioParams, error) {
	start, err := parseDay("start_date", b.StartDate)
	if err != nil {
		return backtest.PortfolioParams{}, err
	}
	end, err := parseDay("end_date", b.EndDate)
	if err != nil {
		return backtest.PortfolioParams{}, err
	}
	return backtest.PortfolioParams{
		StartDate:      start,
		EndDate:        end,
		InitialCapital: b.InitialCapital,
		Mode:           b.Mode,
		Threshold:      b.Threshold,
		PeriodicDays:   b.PeriodicDays,
		FeeRate:        b.FeeRate,
		BenchmarkCode:  b.BenchmarkCode,
		LotSize:        b.LotSize,
		FromInception:  b.FromInception,
	}, nil
}

// Run backtests a stored portfolio
// POST /api/strategy/portfolios/{id}/backtest
func (h *BacktestHandler) Run(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		respondErr(w, h.logger, err, "Invalid portfolio")
		return
	}
	var body BacktestBody
	if err := decodeJSON(r, &body); err != nil {
		respondErr(w, h.logger, err, "Invalid request")
		return
	}
	params, err := body.params()
	if err != nil {
		respondErr(w, h.logger, err, "Invalid request")
		return
	}

	req, err := h.backtests.PortfolioRequest(r.Context(), id, params)
	if err != nil {
		respondErr(w, h.logger, err, "Failed to build backtest")
		return
	}

	result, err := h.backtests.Run(r.Context(), req)
	if err != nil {
		respondErr(w, h.logger, err, "Backtest failed")
		return
	}
	respondJSON(w, http.StatusOK, result)
}
