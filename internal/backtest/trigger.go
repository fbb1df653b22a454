package backtest

import (
	"math"

	"github.com/wonny/fundfolio/backend/internal/contracts"
)

// trigger decides whether day i rebalances
type trigger struct {
	mode         contracts.RebalanceMode
	threshold    float64
	periodicDays int
}

func (t trigger) fire(i, lastRebalance int, maxDeviation float64) bool {
	return t.scheduled(i, lastRebalance) || t.drifting(maxDeviation)
}

// scheduled reports a calendar rebalance, which counts even when nothing trades
func (t trigger) scheduled(i, lastRebalance int) bool {
	switch t.mode {
	case contracts.ModePeriodic, contracts.ModeHybrid:
		return t.periodicDays > 0 && i-lastRebalance >= t.periodicDays
	default:
		return false
	}
}

// drifting reports a deviation past the threshold. It counts only when a trade closes part of it.
func (t trigger) drifting(maxDeviation float64) bool {
	switch t.mode {
	case contracts.ModeThreshold, contracts.ModeHybrid:
		return maxDeviation > t.threshold
	default:
		return false
	}
}

// maxDeviation is max |weight - target| over held and targeted codes
func maxDeviation(b *book, prices map[string]float64, targets contracts.TargetSet, nav float64) float64 {
	if nav <= 0 {
		return 0
	}
	weights := targets.Weights()
	worst := 0.0
	for code, n := range b.shares {
		w := n * prices[code] / nav
		worst = math.Max(worst, math.Abs(w-weights[code]))
	}
	for code, target := range weights {
		if _, ok := b.shares[code]; !ok && prices[code] > 0 {
			worst = math.Max(worst, target)
		}
	}
	return worst
}
