package analytics

import (
	"math"
	"sort"

	"github.com/wonny/fundfolio/backend/internal/contracts"
)

// MinTailSamples is the fewest daily returns a historical VaR is reported on
const MinTailSamples = 20

// TailRisk is historical-simulation VaR/CVaR at 95%, losses as positive fractions
func TailRisk(returns []DailyReturn) contracts.TailRisk {
	if len(returns) < MinTailSamples {
		return contracts.TailRisk{}
	}
	v, cv := historicalVaR(valuesOf(returns), 0.95)
	return contracts.TailRisk{VaR95: ptr(v), CVaR95: ptr(cv)}
}

// historicalVaR returns the (1-confidence) quantile loss and the mean loss beyond it
func historicalVaR(returns []float64, confidence float64) (float64, float64) {
	sorted := make([]float64, len(returns))
	copy(sorted, returns)
	sort.Float64s(sorted)

	idx := int(math.Floor((1 - confidence) * float64(len(sorted))))
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}

	var sum float64
	for i := 0; i <= idx; i++ {
		sum += sorted[i]
	}
	tail := sum / float64(idx+1)

	return math.Max(0, -sorted[idx]), math.Max(0, -tail)
}
