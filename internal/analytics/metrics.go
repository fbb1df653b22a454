package analytics

import (
	"math"
	"time"

	"gonum.org/v1/gonum/stat"

	"github.com/wonny/fundfolio/backend/internal/contracts"
)

// TradingDaysPerYear is the annualization convention
const TradingDaysPerYear = 252

const (
	minVolatility = 1e-8
	minVariance   = 1e-12
)

// DailyReturn is one simple daily return
type DailyReturn struct {
	Date  time.Time
	Value float64
}

// DailyReturns derives simple daily returns from a cumulative return curve
func DailyReturns(curve []contracts.ReturnPoint) []DailyReturn {
	if len(curve) < 2 {
		return nil
	}
	out := make([]DailyReturn, 0, len(curve)-1)
	for i := 1; i < len(curve); i++ {
		prev := 1 + curve[i-1].Return
		if prev <= 0 {
			continue
		}
		out = append(out, DailyReturn{Date: curve[i].Date, Value: (1+curve[i].Return)/prev - 1})
	}
	return out
}

// Metrics computes risk/return statistics of strategy against an optional benchmark.
// Any statistic that cannot be computed is nil.
// ⭐ SSOT: 성과 지표 계산은 여기서만
func Metrics(strategy, benchmark []DailyReturn) contracts.Metrics {
	var m contracts.Metrics
	if len(strategy) < 2 {
		return m
	}

	values := valuesOf(strategy)

	annual := annualize(values)
	m.AnnualReturn = ptr(annual)

	_, std := stat.PopMeanStdDev(values, nil)
	vol := std * math.Sqrt(TradingDaysPerYear)
	m.AnnualVolatility = ptr(vol)
	if vol > minVolatility {
		m.Sharpe = ptr(annual / vol)
	}

	mdd := MaxDrawdown(values)
	m.MaxDrawdown = ptr(mdd)
	if mdd < 0 {
		m.Calmar = ptr(annual / math.Abs(mdd))
	}

	if len(benchmark) < 2 {
		return m
	}

	p, b := align(strategy, benchmark)
	if len(p) < 2 {
		return m
	}

	if beta, ok := Beta(p, b); ok {
		m.Beta = ptr(beta)
		m.Alpha = ptr(annual - beta*annualize(valuesOf(benchmark)))
	}

	active := make([]float64, len(p))
	for i := range p {
		active[i] = p[i] - b[i]
	}
	mean, activeStd := stat.PopMeanStdDev(active, nil)
	if activeStd > minVariance {
		m.InformationRatio = ptr(mean / activeStd * math.Sqrt(TradingDaysPerYear))
	}

	return m
}

// Beta is cov(p, b) / var(b); ok is false when b has no variance
func Beta(p, b []float64) (float64, bool) {
	if len(p) < 2 || len(p) != len(b) {
		return 0, false
	}
	varB := stat.Variance(b, nil)
	if varB <= minVariance {
		return 0, false
	}
	return stat.Covariance(p, b, nil) / varB, true
}

// MaxDrawdown is min(NAV / running max - 1) over a NAV starting at 1; zero or negative
func MaxDrawdown(returns []float64) float64 {
	nav, peak, worst := 1.0, 1.0, 0.0
	for _, r := range returns {
		nav *= 1 + r
		if nav > peak {
			peak = nav
		}
		if dd := nav/peak - 1; dd < worst {
			worst = dd
		}
	}
	return worst
}

// TotalReturn compounds simple returns
func TotalReturn(returns []float64) float64 {
	nav := 1.0
	for _, r := range returns {
		nav *= 1 + r
	}
	return nav - 1
}

// annualize scales the compounded return to TradingDaysPerYear
func annualize(returns []float64) float64 {
	n := len(returns)
	if n == 0 {
		return 0
	}
	return math.Pow(1+TotalReturn(returns), float64(TradingDaysPerYear)/float64(n)) - 1
}

// align keeps the dates present in both series
func align(strategy, benchmark []DailyReturn) ([]float64, []float64) {
	bench := make(map[time.Time]float64, len(benchmark))
	for _, r := range benchmark {
		bench[dayKey(r.Date)] = r.Value
	}

	p := make([]float64, 0, len(strategy))
	b := make([]float64, 0, len(strategy))
	for _, r := range strategy {
		if v, ok := bench[dayKey(r.Date)]; ok {
			p = append(p, r.Value)
			b = append(b, v)
		}
	}
	return p, b
}

func valuesOf(returns []DailyReturn) []float64 {
	out := make([]float64, len(returns))
	for i, r := range returns {
		out[i] = r.Value
	}
	return out
}

func dayKey(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func ptr(v float64) *float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return nil
	}
	return &v
}
