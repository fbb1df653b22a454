package contracts

import "time"

// Metrics holds risk/return statistics. nil means "not computable" and renders as null.
type Metrics struct {
	AnnualReturn     *float64 `json:"annual_return"`
	AnnualVolatility *float64 `json:"annual_volatility"`
	Sharpe           *float64 `json:"sharpe"`
	Alpha            *float64 `json:"alpha"`
	Beta             *float64 `json:"beta"`
	Calmar           *float64 `json:"calmar"`
	InformationRatio *float64 `json:"information_ratio"`
	MaxDrawdown      *float64 `json:"max_drawdown"`
}

// PeriodReturns are compounded returns from each period start to the latest point
type PeriodReturns struct {
	Week    *float64 `json:"week"`
	Month   *float64 `json:"month"`
	Quarter *float64 `json:"quarter"`
	Year    *float64 `json:"year"` // trailing 365 days
	YTD     *float64 `json:"ytd"`
}

// TailRisk is historical one-day VaR / CVaR at 95%
type TailRisk struct {
	VaR95  *float64 `json:"var_95"`
	CVaR95 *float64 `json:"cvar_95"`
}

// StrategyActual pairs a statistic for the target allocation and the real holdings
type StrategyActual[T any] struct {
	Strategy T `json:"strategy"`
	Actual   T `json:"actual"`
}

// PerformanceResult is the live performance view of a portfolio
type PerformanceResult struct {
	AsOf                time.Time                     `json:"as_of"`
	Portfolio           Portfolio                     `json:"portfolio"`
	ActiveVersion       *PortfolioVersion             `json:"active_version,omitempty"`
	TargetHoldings      TargetSet                     `json:"target_holdings"`
	ScopeCodes          []string                      `json:"scope_codes"`
	CalculationUniverse []string                      `json:"calculation_universe"`
	Capital             Capital                       `json:"capital"`
	PeriodReturns       StrategyActual[PeriodReturns] `json:"period_returns"`
	Metrics             StrategyActual[Metrics]       `json:"metrics"`
	Series              Series                        `json:"series"`
	ActualSeries        []ReturnPoint                 `json:"actual_series"`
	Warnings            []Warning                     `json:"warnings,omitempty"`
}
