package performance

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/wonny/fundfolio/backend/internal/analytics"
	"github.com/wonny/fundfolio/backend/internal/contracts"
	"github.com/wonny/fundfolio/backend/internal/market"
	"github.com/wonny/fundfolio/backend/internal/strategy"
	"github.com/wonny/fundfolio/backend/pkg/logger"
)

// PortfolioReader loads a portfolio with its active version
type PortfolioReader interface {
	GetDetail(ctx context.Context, portfolioID int64) (*contracts.PortfolioDetail, error)
}

// Service computes the live performance view of a portfolio
type Service struct {
	portfolios PortfolioReader
	positions  contracts.PositionSnapshot
	prices     contracts.PriceLookup
	history    contracts.HistoryReader
	benchmark  string
	logger     *logger.Logger
}

// NewService creates a performance service; benchmark is used when a portfolio has none
func NewService(
	portfolios PortfolioReader,
	positions contracts.PositionSnapshot,
	prices contracts.PriceLookup,
	history contracts.HistoryReader,
	benchmark string,
	log *logger.Logger,
) *Service {
	return &Service{
		portfolios: portfolios,
		positions:  positions,
		prices:     prices,
		history:    history,
		benchmark:  benchmark,
		logger:     log,
	}
}

// ComputePerformance compares the target allocation, the account's real holdings
// and the benchmark since the active version took effect.
// ⭐ SSOT: 실시간 성과 계산은 여기서만
func (s *Service) ComputePerformance(ctx context.Context, portfolioID, accountID int64, now time.Time) (*contracts.PerformanceResult, error) {
	if accountID <= 0 {
		return nil, contracts.InvalidInput("account_id", "account_id is required")
	}

	detail, err := s.portfolios.GetDetail(ctx, portfolioID)
	if err != nil {
		return nil, err
	}

	now = dayKey(now)
	start := now
	if detail.ActiveVersion != nil {
		start = dayKey(detail.ActiveVersion.EffectiveDate)
	}
	benchmark := detail.Portfolio.BenchmarkCode
	if benchmark == "" {
		benchmark = s.benchmark
	}

	universe := strategy.MergeScope(detail.Portfolio.ScopeCodes, detail.ActiveTargets)
	result := &contracts.PerformanceResult{
		AsOf:                now,
		Portfolio:           detail.Portfolio,
		ActiveVersion:       detail.ActiveVersion,
		TargetHoldings:      detail.ActiveTargets,
		ScopeCodes:          strategy.NormalizeCodes(detail.Portfolio.ScopeCodes),
		CalculationUniverse: universe,
	}

	actualWeights, err := s.capital(ctx, result, accountID, universe, now)
	if err != nil {
		return nil, err
	}

	codes := append(append([]string{}, universe...), benchmark)
	history, err := market.LoadHistory(ctx, s.history, codes, start, now)
	if err != nil {
		return nil, fmt.Errorf("failed to load performance history: %w", err)
	}

	for _, code := range universe {
		if len(history[code]) == 0 {
			result.Warnings = append(result.Warnings, contracts.Warning{
				Code:   code,
				Field:  "history",
				Reason: "no price history since " + start.Format("2006-01-02"),
			})
		}
	}

	strategyReturns := WeightedReturns(detail.ActiveTargets.Weights(), history)
	actualReturns := WeightedReturns(actualWeights, history)
	benchmarkReturns := WeightedReturns(map[string]float64{benchmark: 1}, history)

	result.Series = contracts.Series{
		Strategy:  orStart(Curve(strategyReturns), start),
		Benchmark: orStart(Curve(benchmarkReturns), start),
	}
	result.ActualSeries = Curve(actualReturns)

	result.Metrics = contracts.StrategyActual[contracts.Metrics]{
		Strategy: analytics.Metrics(strategyReturns, benchmarkReturns),
		Actual:   analytics.Metrics(actualReturns, benchmarkReturns),
	}
	result.PeriodReturns = contracts.StrategyActual[contracts.PeriodReturns]{
		Strategy: analytics.PeriodReturns(Curve(strategyReturns), now),
		Actual:   analytics.PeriodReturns(result.ActualSeries, now),
	}

	s.logger.WithFields(map[string]interface{}{
		"portfolio_id": portfolioID,
		"account_id":   accountID,
		"universe":     len(universe),
		"days":         len(strategyReturns),
		"warnings":     len(result.Warnings),
	}).Info("Performance computed")

	return result, nil
}

// capital fills the capital block and returns the account's current weights.
// Codes without a price are left out of both principal and market value.
func (s *Service) capital(ctx context.Context, result *contracts.PerformanceResult, accountID int64, universe []string, now time.Time) (map[string]float64, error) {
	positions, err := s.positions.Snapshot(ctx, accountID, universe)
	if err != nil {
		return nil, fmt.Errorf("failed to read positions: %w", err)
	}

	principal := decimal.Zero
	marketValue := decimal.Zero
	values := make(map[string]decimal.Decimal, len(positions))
	for _, code := range universe {
		pos, ok := positions[code]
		if !ok || !pos.Shares.IsPositive() {
			continue
		}
		price, ok, err := s.prices.PriceOn(ctx, code, now)
		if err != nil {
			return nil, fmt.Errorf("failed to price %s: %w", code, err)
		}
		if !ok || !price.IsPositive() {
			result.Warnings = append(result.Warnings, contracts.Warning{
				Code:   code,
				Field:  "price",
				Reason: "no price available; excluded from capital",
			})
			continue
		}
		values[code] = pos.MarketValue(price)
		marketValue = marketValue.Add(values[code])
		principal = principal.Add(pos.Shares.Mul(pos.CostBasis))
	}

	profit := marketValue.Sub(principal)
	result.Capital = contracts.Capital{
		Principal:   principal.Round(2).InexactFloat64(),
		MarketValue: marketValue.Round(2).InexactFloat64(),
		Profit:      profit.Round(2).InexactFloat64(),
	}
	if principal.IsPositive() {
		rate := profit.Div(principal).InexactFloat64()
		result.Capital.ProfitRate = &rate
	}

	weights := make(map[string]float64, len(values))
	if marketValue.IsPositive() {
		for code, v := range values {
			weights[code] = v.Div(marketValue).InexactFloat64()
		}
	}
	return weights, nil
}

// orStart keeps an empty curve renderable as a single flat point
func orStart(curve []contracts.ReturnPoint, start time.Time) []contracts.ReturnPoint {
	if len(curve) == 0 {
		return []contracts.ReturnPoint{{Date: start, Return: 0}}
	}
	return curve
}
