package strategy

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/wonny/fundfolio/backend/internal/contracts"
)

// WeightSumTolerance is how far Σweight may drift from 1 before a warning is raised
const WeightSumTolerance = 0.01

// RawTarget is an unvalidated (code, weight) pair as submitted by a caller.
// Weight may be a fraction (0.25) or a percentage (25).
type RawTarget struct {
	Code   string  `json:"code" yaml:"code"`
	Weight float64 `json:"weight" yaml:"weight"`
}

// ParseWeight converts a submitted weight into a fraction in (0, 1]
func ParseWeight(w float64) (float64, error) {
	if math.IsNaN(w) || math.IsInf(w, 0) {
		return 0, fmt.Errorf("weight must be a finite number")
	}
	if w <= 0 {
		return 0, fmt.Errorf("weight must be > 0")
	}
	if w > 1 {
		w = w / 100
	}
	if w > 1 {
		return 0, fmt.Errorf("weight must be in (0, 1] or a percentage up to 100")
	}
	return w, nil
}

// NormalizeTargets validates raw targets and merges duplicate codes.
// With rescale the result sums to exactly 1; otherwise the residual is implicit cash
// and a warning is returned when the sum drifts past WeightSumTolerance.
func NormalizeTargets(raw []RawTarget, rescale bool) (contracts.TargetSet, []contracts.Warning, error) {
	if len(raw) == 0 {
		return nil, nil, contracts.InvalidInput("holdings", "at least one target is required")
	}

	merged := make(map[string]float64, len(raw))
	order := make([]string, 0, len(raw))
	for i, item := range raw {
		code := strings.TrimSpace(item.Code)
		if code == "" {
			return nil, nil, contracts.InvalidInput(fmt.Sprintf("holdings[%d].code", i), "code is required")
		}
		w, err := ParseWeight(item.Weight)
		if err != nil {
			return nil, nil, contracts.InvalidInput(fmt.Sprintf("holdings[%d].weight", i), "%s", err.Error()).WithCode(code)
		}
		if _, ok := merged[code]; !ok {
			order = append(order, code)
		}
		merged[code] += w
	}

	total := 0.0
	for _, w := range merged {
		total += w
	}

	targets := make(contracts.TargetSet, 0, len(order))
	for _, code := range order {
		w := merged[code]
		if rescale {
			w = w / total
		}
		targets = append(targets, contracts.WeightTarget{Code: code, Weight: w})
	}

	return targets, CheckWeightSum(targets), nil
}

// CheckWeightSum warns when Σweight deviates from 1 by more than WeightSumTolerance
func CheckWeightSum(targets contracts.TargetSet) []contracts.Warning {
	sum := targets.Sum()
	if math.Abs(sum-1) <= WeightSumTolerance {
		return nil
	}
	reason := fmt.Sprintf("target weights sum to %.4f; residual %.4f is held as cash", sum, 1-sum)
	if sum > 1 {
		reason = fmt.Sprintf("target weights sum to %.4f which exceeds 1", sum)
	}
	return []contracts.Warning{{Field: "weight_sum", Reason: reason}}
}

// NormalizeCodes trims, de-duplicates and sorts codes, dropping blanks
func NormalizeCodes(codes []string) []string {
	seen := make(map[string]bool, len(codes))
	out := make([]string, 0, len(codes))
	for _, c := range codes {
		c = strings.TrimSpace(c)
		if c == "" || seen[c] {
			continue
		}
		seen[c] = true
		out = append(out, c)
	}
	sort.Strings(out)
	return out
}

// MergeScope returns the sorted union of scope and the targeted codes
func MergeScope(scope []string, targets contracts.TargetSet) []string {
	all := append(append([]string{}, scope...), targets.Codes()...)
	return NormalizeCodes(all)
}

// ValidateFeeRate checks the accepted fee range
func ValidateFeeRate(rate float64) error {
	if math.IsNaN(rate) || rate < 0 || rate > MaxFeeRate {
		return contracts.InvalidInput("fee_rate", "must be within [0, %v]", MaxFeeRate)
	}
	return nil
}

// MaxFeeRate bounds portfolio fee rates
const MaxFeeRate = 0.02
