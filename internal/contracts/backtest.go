package contracts

import "time"

// RebalanceMode is the backtest trigger policy
type RebalanceMode string

const (
	ModeNone      RebalanceMode = "none"
	ModeThreshold RebalanceMode = "threshold"
	ModePeriodic  RebalanceMode = "periodic"
	ModeHybrid    RebalanceMode = "hybrid"
)

// Valid reports whether m is a known mode
func (m RebalanceMode) Valid() bool {
	switch m {
	case ModeNone, ModeThreshold, ModePeriodic, ModeHybrid:
		return true
	}
	return false
}

// PricePoint is one daily close
type PricePoint struct {
	Date  time.Time `json:"date"`
	Price float64   `json:"price"`
}

// PriceHistory maps code -> ascending daily closes
type PriceHistory map[string][]PricePoint

// VersionTargets is one entry of a target set sequence
type VersionTargets struct {
	VersionNo     int       `json:"version_no"`
	EffectiveDate time.Time `json:"effective_date"`
	Targets       TargetSet `json:"targets"`
}

// BacktestRequest describes one simulation
type BacktestRequest struct {
	Versions       []VersionTargets `json:"versions"` // ascending effective dates
	StartDate      time.Time        `json:"start_date"`
	EndDate        time.Time        `json:"end_date"`
	InitialCapital float64          `json:"initial_capital"`
	Mode           RebalanceMode    `json:"rebalance_mode"`
	Threshold      float64          `json:"threshold"`
	PeriodicDays   int              `json:"periodic_days"`
	FeeRate        float64          `json:"fee_rate"`
	BenchmarkCode  string           `json:"benchmark_code"`
	LotSize        float64          `json:"lot_size"` // 0 = fractional shares
}

// Codes returns every code targeted by any version plus the benchmark
func (r *BacktestRequest) Codes() []string {
	seen := map[string]bool{}
	var codes []string
	for _, v := range r.Versions {
		for _, t := range v.Targets {
			if !seen[t.Code] {
				seen[t.Code] = true
				codes = append(codes, t.Code)
			}
		}
	}
	if r.BenchmarkCode != "" && !seen[r.BenchmarkCode] {
		codes = append(codes, r.BenchmarkCode)
	}
	return codes
}

// ReturnPoint is one cumulative return observation
type ReturnPoint struct {
	Date   time.Time `json:"date"`
	Return float64   `json:"return"` // NAV / base - 1
}

// Series holds the strategy and benchmark curves
type Series struct {
	Strategy  []ReturnPoint `json:"strategy"`
	Benchmark []ReturnPoint `json:"benchmark"`
}

// Capital summarizes invested vs current value
type Capital struct {
	Principal   float64  `json:"principal"`
	MarketValue float64  `json:"market_value"`
	Profit      float64  `json:"profit"`
	ProfitRate  *float64 `json:"profit_rate"`
}

// RebalanceSummary aggregates simulated trading activity
type RebalanceSummary struct {
	RebalanceCount int     `json:"rebalance_count"`
	TradeCount     int     `json:"trade_count"`
	Turnover       float64 `json:"turnover"`       // traded notional
	TurnoverRatio  float64 `json:"turnover_ratio"` // turnover / average NAV
	FeeTotal       float64 `json:"fee_total"`
}

// TradeLogEntry is one simulated fill
type TradeLogEntry struct {
	Date   time.Time   `json:"date"`
	Code   string      `json:"code"`
	Action OrderAction `json:"action"`
	Shares float64     `json:"shares"`
	Price  float64     `json:"price"`
	Amount float64     `json:"amount"`
	Fee    float64     `json:"fee"`
}

// DataQualityNote flags a carried-forward or missing price
type DataQualityNote struct {
	Date   time.Time `json:"date"`
	Code   string    `json:"code"`
	Reason string    `json:"reason"`
}

// BacktestResult is computed on demand and never persisted
type BacktestResult struct {
	RunID            string            `json:"run_id"`
	Series           Series            `json:"series"`
	Capital          Capital           `json:"capital"`
	Metrics          Metrics           `json:"metrics"`
	BenchmarkMetrics Metrics           `json:"benchmark_metrics"`
	PeriodReturns    PeriodReturns     `json:"period_returns"`
	TailRisk         TailRisk          `json:"tail_risk"`
	RebalanceSummary RebalanceSummary  `json:"rebalance_summary"`
	RebalanceDates   []time.Time       `json:"rebalance_dates"`
	Trades           []TradeLogEntry   `json:"trades"`
	Notes            []DataQualityNote `json:"notes"`
}
