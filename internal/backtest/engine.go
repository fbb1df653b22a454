package backtest

import (
	"context"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/wonny/fundfolio/backend/internal/analytics"
	"github.com/wonny/fundfolio/backend/internal/contracts"
	"github.com/wonny/fundfolio/backend/internal/strategy"
	"github.com/wonny/fundfolio/backend/pkg/logger"
)

// Engine runs backtesting simulations
// ⭐ SSOT: 백테스팅 실행은 여기서만
type Engine struct {
	logger *logger.Logger
}

// NewEngine creates a new backtest engine
func NewEngine(log *logger.Logger) *Engine {
	return &Engine{logger: log}
}

// Validate normalizes req in place and rejects unusable requests
func Validate(req *contracts.BacktestRequest) error {
	if len(req.Versions) == 0 {
		return contracts.InvalidInput("versions", "at least one target set is required")
	}
	for i, v := range req.Versions {
		if len(v.Targets) == 0 {
			return contracts.InvalidInput(fmt.Sprintf("versions[%d].targets", i), "target set is empty")
		}
		for j, t := range v.Targets {
			if t.Code == "" {
				return contracts.InvalidInput(fmt.Sprintf("versions[%d].targets[%d].code", i, j), "code is required")
			}
			if math.IsNaN(t.Weight) || t.Weight <= 0 || t.Weight > 1 {
				return contracts.InvalidInput(fmt.Sprintf("versions[%d].targets[%d].weight", i, j),
					"weight must be in (0, 1]").WithCode(t.Code)
			}
		}
	}
	sort.SliceStable(req.Versions, func(i, j int) bool {
		return req.Versions[i].EffectiveDate.Before(req.Versions[j].EffectiveDate)
	})

	if req.StartDate.IsZero() {
		return contracts.InvalidInput("start_date", "start_date is required")
	}
	if req.EndDate.IsZero() {
		return contracts.InvalidInput("end_date", "end_date is required")
	}
	req.StartDate, req.EndDate = dayKey(req.StartDate), dayKey(req.EndDate)
	if req.EndDate.Before(req.StartDate) {
		return contracts.InvalidInput("end_date", "end_date %s is before start_date %s",
			req.EndDate.Format("2006-01-02"), req.StartDate.Format("2006-01-02"))
	}

	if math.IsNaN(req.InitialCapital) || req.InitialCapital <= 0 {
		return contracts.InvalidInput("initial_capital", "must be > 0")
	}

	if req.Mode == "" {
		req.Mode = contracts.ModeNone
	}
	if !req.Mode.Valid() {
		return contracts.InvalidInput("rebalance_mode", "unknown mode %q", req.Mode)
	}
	if req.Mode == contracts.ModeThreshold || req.Mode == contracts.ModeHybrid {
		if math.IsNaN(req.Threshold) || req.Threshold <= 0 || req.Threshold >= 1 {
			return contracts.InvalidInput("threshold", "must be in (0, 1) for %s mode", req.Mode)
		}
	}
	if req.Mode == contracts.ModePeriodic || req.Mode == contracts.ModeHybrid {
		if req.PeriodicDays <= 0 {
			return contracts.InvalidInput("periodic_days", "must be > 0 for %s mode", req.Mode)
		}
	}

	if err := strategy.ValidateFeeRate(req.FeeRate); err != nil {
		return err
	}
	if math.IsNaN(req.LotSize) || req.LotSize < 0 {
		return contracts.InvalidInput("lot_size", "must be >= 0")
	}
	return nil
}

// Run replays req over history one trading day at a time.
// ctx is checked between days so long ranges can be cancelled.
func (e *Engine) Run(ctx context.Context, req contracts.BacktestRequest, history contracts.PriceHistory) (*contracts.BacktestResult, error) {
	if err := Validate(&req); err != nil {
		return nil, err
	}

	runID := uuid.NewString()
	log := e.logger.WithFields(map[string]interface{}{
		"run_id":         runID,
		"start_date":     req.StartDate.Format("2006-01-02"),
		"end_date":       req.EndDate.Format("2006-01-02"),
		"rebalance_mode": req.Mode,
		"versions":       len(req.Versions),
	})
	log.Debug("Starting backtest")
	startTime := time.Now()

	calendar := tradingDays(req, history)
	if len(calendar) == 0 {
		return nil, contracts.Unavailable("", "no prices for any targeted code between %s and %s",
			req.StartDate.Format("2006-01-02"), req.EndDate.Format("2006-01-02"))
	}

	sim := newSimulation(req, history)
	for i, day := range calendar {
		if err := ctx.Err(); err != nil {
			log.WithField("day", i).Warn("Backtest cancelled")
			return nil, err
		}
		if err := sim.step(i, day); err != nil {
			return nil, fmt.Errorf("backtest failed on %s: %w", day.Format("2006-01-02"), err)
		}
	}

	result := sim.result(runID)

	log.WithFields(map[string]interface{}{
		"trading_days":    len(calendar),
		"rebalance_count": result.RebalanceSummary.RebalanceCount,
		"trade_count":     result.RebalanceSummary.TradeCount,
		"final_nav":       result.Capital.MarketValue,
		"notes":           len(result.Notes),
		"duration":        time.Since(startTime).String(),
	}).Info("Backtest completed")

	return result, nil
}

// tradingDays is the ascending union of targeted codes' dates within the range
func tradingDays(req contracts.BacktestRequest, history contracts.PriceHistory) []time.Time {
	seen := make(map[time.Time]bool)
	for _, v := range req.Versions {
		for _, t := range v.Targets {
			for _, p := range history[t.Code] {
				d := dayKey(p.Date)
				if p.Price > 0 && !d.Before(req.StartDate) && !d.After(req.EndDate) {
					seen[d] = true
				}
			}
		}
	}

	days := make([]time.Time, 0, len(seen))
	for d := range seen {
		days = append(days, d)
	}
	sort.Slice(days, func(i, j int) bool { return days[i].Before(days[j]) })
	return days
}

// summarize feeds the curves through analytics
func summarize(result *contracts.BacktestResult) {
	strategyReturns := analytics.DailyReturns(result.Series.Strategy)
	benchmarkReturns := analytics.DailyReturns(result.Series.Benchmark)

	result.Metrics = analytics.Metrics(strategyReturns, benchmarkReturns)
	result.BenchmarkMetrics = analytics.Metrics(benchmarkReturns, nil)
	result.TailRisk = analytics.TailRisk(strategyReturns)
	if n := len(result.Series.Strategy); n > 0 {
		result.PeriodReturns = analytics.PeriodReturns(result.Series.Strategy, result.Series.Strategy[n-1].Date)
	}
}
