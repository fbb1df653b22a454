package rebalance

import (
	"fmt"
	"math"
	"sort"

	"github.com/shopspring/decimal"

	"github.com/wonny/fundfolio/backend/internal/contracts"
	"github.com/wonny/fundfolio/backend/internal/strategy"
)

// DefaultMinDeviation is the hold band used when a caller does not pass one
const DefaultMinDeviation = 0.005

// GenerateInput is everything one order computation looks at.
// It is a value snapshot: the generator performs no I/O.
type GenerateInput struct {
	Positions         map[string]contracts.Position
	Prices            map[string]decimal.Decimal // as-of prices; a missing code is excluded
	Scope             []string
	Targets           contracts.TargetSet
	FeeRate           float64
	MinDeviation      float64
	LotSize           decimal.Decimal // zero means fractional shares
	CapitalAdjustment decimal.Decimal // + fresh cash, - withdrawal
}

func (in *GenerateInput) validate() error {
	if len(in.Targets) == 0 {
		return contracts.InvalidInput("targets", "target set is empty")
	}
	for i, t := range in.Targets {
		if t.Code == "" {
			return contracts.InvalidInput(fmt.Sprintf("targets[%d].code", i), "code is required")
		}
		if math.IsNaN(t.Weight) || t.Weight <= 0 || t.Weight > 1 {
			return contracts.InvalidInput(fmt.Sprintf("targets[%d].weight", i), "weight must be in (0, 1]").WithCode(t.Code)
		}
	}
	if math.IsNaN(in.FeeRate) || in.FeeRate < 0 {
		return contracts.InvalidInput("fee_rate", "must be >= 0")
	}
	if math.IsNaN(in.MinDeviation) || in.MinDeviation < 0 {
		return contracts.InvalidInput("min_deviation", "must be >= 0")
	}
	if in.LotSize.IsNegative() {
		return contracts.InvalidInput("lot_size", "must be >= 0")
	}
	return nil
}

// Generate computes current vs target weights over scope ∪ targets and proposes
// lot-rounded buy/sell/hold orders. Identical inputs always yield identical orders.
// ⭐ SSOT: 리밸런싱 주문 계산은 여기서만
func Generate(in GenerateInput) (*contracts.RebalancePlan, error) {
	if err := in.validate(); err != nil {
		return nil, err
	}

	weights := in.Targets.Weights()
	codes := strategy.MergeScope(in.Scope, in.Targets)

	plan := &contracts.RebalancePlan{
		Orders:   make([]contracts.RebalanceOrder, 0, len(codes)),
		Warnings: strategy.CheckWeightSum(in.Targets),
	}

	// 1. value the priced part of scope
	priced := make([]string, 0, len(codes))
	total := decimal.Zero
	for _, code := range codes {
		price, ok := in.Prices[code]
		if !ok || !price.IsPositive() {
			plan.Warnings = append(plan.Warnings, contracts.Warning{
				Code:   code,
				Field:  "price",
				Reason: "no price available; excluded from this rebalance",
			})
			continue
		}
		priced = append(priced, code)
		total = total.Add(in.Positions[code].MarketValue(price))
	}

	base := total.Add(in.CapitalAdjustment)
	if base.IsNegative() {
		return nil, contracts.InvalidInput("capital_adjustment",
			"withdrawal %s exceeds portfolio value %s", in.CapitalAdjustment.Neg().StringFixed(2), total.StringFixed(2))
	}
	if base.IsZero() && len(priced) > 0 {
		plan.Warnings = append(plan.Warnings, contracts.Warning{
			Field:  "total_assets",
			Reason: "no holdings or capital to allocate",
		})
	}

	feeRate := decimal.NewFromFloat(in.FeeRate)

	// 2..7 per code
	for _, code := range priced {
		price := in.Prices[code]
		pos := in.Positions[code]
		value := pos.MarketValue(price)

		order := contracts.RebalanceOrder{
			FundCode:      code,
			Action:        contracts.ActionHold,
			TargetWeight:  weights[code],
			Price:         price,
			CurrentShares: pos.Shares,
			TargetShares:  pos.Shares,
			DeltaShares:   decimal.Zero,
			DeltaValue:    decimal.Zero,
			TradeAmount:   decimal.Zero,
			Fee:           decimal.Zero,
			Status:        contracts.OrderSuggested,
		}

		if base.IsPositive() {
			order.CurrentWeight = value.Div(base).InexactFloat64()
			targetValue := base.Mul(decimal.NewFromFloat(order.TargetWeight))
			order.DeltaValue = targetValue.Sub(value).Round(4)
			order.TargetShares = targetValue.Div(price).Round(6)

			order.Deviation = order.TargetWeight - order.CurrentWeight
			if math.Abs(order.Deviation) >= in.MinDeviation {
				delta := roundToLot(targetValue.Sub(value).Div(price), in.LotSize)
				if !delta.IsZero() {
					order.DeltaShares = delta
					order.TradeAmount = delta.Mul(price).Round(4)
					order.Fee = order.TradeAmount.Abs().Mul(feeRate).Round(4)
					order.Action = contracts.ActionBuy
					if delta.IsNegative() {
						order.Action = contracts.ActionSell
					}
				}
			}
		}

		plan.Orders = append(plan.Orders, order)
	}

	SortOrders(plan.Orders)
	plan.Summary = Summarize(plan.Orders, total, in.FeeRate, len(codes))
	plan.Summary.WeightSum = in.Targets.Sum()

	return plan, nil
}

// roundToLot truncates toward zero to a multiple of lot, so a correction
// never overshoots target. A zero lot leaves the quantity fractional.
func roundToLot(raw, lot decimal.Decimal) decimal.Decimal {
	if lot.IsZero() {
		return raw
	}
	return raw.Div(lot).Truncate(0).Mul(lot)
}

// SortOrders orders legs by |trade_amount| desc, then code
func SortOrders(orders []contracts.RebalanceOrder) {
	sort.SliceStable(orders, func(i, j int) bool {
		ai, aj := orders[i].TradeAmount.Abs(), orders[j].TradeAmount.Abs()
		if c := ai.Cmp(aj); c != 0 {
			return c > 0
		}
		return orders[i].FundCode < orders[j].FundCode
	})
}

// Summarize aggregates buy/sell totals and fees of a set of orders
func Summarize(orders []contracts.RebalanceOrder, totalAssets decimal.Decimal, feeRate float64, scopeSize int) contracts.PlanSummary {
	s := contracts.PlanSummary{
		TotalAssets:  totalAssets.Round(4),
		BuyAmount:    decimal.Zero,
		SellAmount:   decimal.Zero,
		EstimatedFee: decimal.Zero,
		FeeRate:      feeRate,
		ScopeSize:    scopeSize,
	}
	for _, o := range orders {
		switch o.Action {
		case contracts.ActionBuy:
			s.BuyAmount = s.BuyAmount.Add(o.TradeAmount)
		case contracts.ActionSell:
			s.SellAmount = s.SellAmount.Add(o.TradeAmount.Abs())
		default:
			continue
		}
		s.ActionableCount++
		s.EstimatedFee = s.EstimatedFee.Add(o.Fee)
	}
	s.NetAmount = s.BuyAmount.Sub(s.SellAmount)
	return s
}
