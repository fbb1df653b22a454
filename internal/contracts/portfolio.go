package contracts

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"
)

// WeightTarget is one (code, weight) pair of a strategy version
type WeightTarget struct {
	Code   string  `json:"code"`
	Weight float64 `json:"weight"` // fraction in (0, 1]
}

// TargetSet is the ordered target list of one PortfolioVersion.
// Weights need not sum to 1; the residual is implicit cash.
type TargetSet []WeightTarget

// Sum returns the total weight
func (ts TargetSet) Sum() float64 {
	total := 0.0
	for _, t := range ts {
		total += t.Weight
	}
	return total
}

// Weights returns code -> weight
func (ts TargetSet) Weights() map[string]float64 {
	m := make(map[string]float64, len(ts))
	for _, t := range ts {
		m[t.Code] += t.Weight
	}
	return m
}

// Codes returns the targeted codes, sorted
func (ts TargetSet) Codes() []string {
	codes := make([]string, 0, len(ts))
	for _, t := range ts {
		codes = append(codes, t.Code)
	}
	sort.Strings(codes)
	return codes
}

// Portfolio is a strategy portfolio (target-weight allocation)
// ⭐ SSOT: 전략 포트폴리오 정의
type Portfolio struct {
	ID              int64     `json:"id"`
	Name            string    `json:"name"`
	AccountID       *int64    `json:"account_id,omitempty"`
	BenchmarkCode   string    `json:"benchmark_code"`
	FeeRate         float64   `json:"fee_rate"`
	ScopeCodes      []string  `json:"scope_codes"` // superset of active target codes
	ActiveVersionID *int64    `json:"active_version_id,omitempty"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// PortfolioVersion is an immutable target set with an effective date
type PortfolioVersion struct {
	ID            int64     `json:"id"`
	PortfolioID   int64     `json:"portfolio_id"`
	VersionNo     int       `json:"version_no"`
	EffectiveDate time.Time `json:"effective_date"`
	Note          string    `json:"note"`
	IsActive      bool      `json:"is_active"`
	Targets       TargetSet `json:"targets"`
	CreatedAt     time.Time `json:"created_at"`
}

// PortfolioDetail bundles a portfolio with its version history
type PortfolioDetail struct {
	Portfolio     Portfolio          `json:"portfolio"`
	Versions      []PortfolioVersion `json:"versions"` // newest first
	ActiveVersion *PortfolioVersion  `json:"active_version,omitempty"`
	ActiveTargets TargetSet          `json:"active_targets"`
}

// Position is one ledger line of an account.
// CostBasis is the average cost per share.
type Position struct {
	Code      string          `json:"code"`
	Shares    decimal.Decimal `json:"shares"`
	CostBasis decimal.Decimal `json:"cost_basis"`
}

// MarketValue returns shares * price
func (p Position) MarketValue(price decimal.Decimal) decimal.Decimal {
	return p.Shares.Mul(price)
}
