package rebalance

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wonny/fundfolio/backend/internal/contracts"
)

func d(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func pos(code, shares string) contracts.Position {
	return contracts.Position{Code: code, Shares: d(shares), CostBasis: d("10")}
}

func orderFor(t *testing.T, plan *contracts.RebalancePlan, code string) contracts.RebalanceOrder {
	t.Helper()
	for _, o := range plan.Orders {
		if o.FundCode == code {
			return o
		}
	}
	t.Fatalf("no order for %s", code)
	return contracts.RebalanceOrder{}
}

func TestGenerate_SixtyFortyFromEqualWeights(t *testing.T) {
	plan, err := Generate(GenerateInput{
		Positions:    map[string]contracts.Position{"A": pos("A", "50"), "B": pos("B", "50")},
		Prices:       map[string]decimal.Decimal{"A": d("10"), "B": d("10")},
		Targets:      contracts.TargetSet{
			{Code: "A", Weight: 0.6},
			{Code: "B", Weight: 0.4},
		},
		FeeRate:      0.001,
		MinDeviation: 0.05,
		LotSize:      d("1"),
	})
	require.NoError(t, err)
	require.Len(t, plan.Orders, 2)

	a := orderFor(t, plan, "A")
	assert.Equal(t, contracts.ActionBuy, a.Action)
	assert.True(t, a.DeltaShares.Equal(d("10")), a.DeltaShares.String())
	assert.True(t, a.TradeAmount.Equal(d("100")))
	assert.True(t, a.Fee.Equal(d("0.1")))
	assert.InDelta(t, 0.5, a.CurrentWeight, 1e-12)
	assert.InDelta(t, 0.1, a.Deviation, 1e-12)

	b := orderFor(t, plan, "B")
	assert.Equal(t, contracts.ActionSell, b.Action)
	assert.True(t, b.DeltaShares.Equal(d("-10")))
	assert.True(t, b.TradeAmount.Equal(d("-100")))

	assert.Equal(t, 2, plan.Summary.ActionableCount)
	assert.True(t, plan.Summary.TotalAssets.Equal(d("1000")))
	assert.True(t, plan.Summary.NetAmount.IsZero())
	assert.Empty(t, plan.Warnings)
}

func TestGenerate_HoldBand(t *testing.T) {
	tests := []struct {
		name   string
		minDev float64
		want   contracts.OrderAction
	}{
		{"gap above band", 0.05, contracts.ActionBuy},
		{"gap just above band", 0.09, contracts.ActionBuy},
		{"gap below band", 0.11, contracts.ActionHold},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			plan, err := Generate(GenerateInput{
				Positions:    map[string]contracts.Position{"A": pos("A", "50"), "B": pos("B", "50")},
				Prices:       map[string]decimal.Decimal{"A": d("10"), "B": d("10")},
				Targets:      contracts.TargetSet{{Code: "A", Weight: 0.6}, {Code: "B", Weight: 0.4}},
				MinDeviation: tt.minDev,
				LotSize:      d("1"),
			})
			require.NoError(t, err)
			a := orderFor(t, plan, "A")
			assert.Equal(t, tt.want, a.Action)
			if tt.want == contracts.ActionHold {
				assert.True(t, a.DeltaShares.IsZero())
				assert.True(t, a.TradeAmount.IsZero())
			}
		})
	}
}

func TestGenerate_LotTruncation(t *testing.T) {
	// base = 300 held + 700 cash; A needs 300/3 = 100 shares, B needs 400/7 = 57.14
	plan, err := Generate(GenerateInput{
		Positions:         map[string]contracts.Position{"A": pos("A", "100")},
		Prices:            map[string]decimal.Decimal{"A": d("3"), "B": d("7")},
		Targets:           contracts.TargetSet{{Code: "A", Weight: 0.6}, {Code: "B", Weight: 0.4}},
		LotSize:           d("1"),
		CapitalAdjustment: d("700"),
	})
	require.NoError(t, err)

	a := orderFor(t, plan, "A")
	assert.True(t, a.DeltaShares.Equal(d("100")), a.DeltaShares.String())

	b := orderFor(t, plan, "B")
	// 400 / 7 = 57.14 -> truncated to 57
	assert.True(t, b.DeltaShares.Equal(d("57")), b.DeltaShares.String())
	assert.True(t, b.TradeAmount.Equal(d("399")))

	for _, o := range plan.Orders {
		assert.True(t, o.DeltaShares.Mod(d("1")).IsZero(), "%s not a lot multiple", o.FundCode)
	}
}

func TestGenerate_FractionalWhenLotZero(t *testing.T) {
	plan, err := Generate(GenerateInput{
		Prices:            map[string]decimal.Decimal{"A": d("3")},
		Targets:           contracts.TargetSet{{Code: "A", Weight: 1}},
		CapitalAdjustment: d("100"),
	})
	require.NoError(t, err)

	a := orderFor(t, plan, "A")
	assert.Equal(t, contracts.ActionBuy, a.Action)
	assert.True(t, a.DeltaShares.Mul(d("3")).Sub(d("100")).Abs().LessThan(d("0.0001")))
}

func TestGenerate_TinyGapRoundsToHold(t *testing.T) {
	plan, err := Generate(GenerateInput{
		Positions:         map[string]contracts.Position{"A": pos("A", "99")},
		Prices:            map[string]decimal.Decimal{"A": d("10")},
		Targets:           contracts.TargetSet{{Code: "A", Weight: 1}},
		LotSize:           d("10"),
		CapitalAdjustment: d("10"), // gap of one share is below the lot
	})
	require.NoError(t, err)
	assert.Equal(t, contracts.ActionHold, plan.Orders[0].Action)
	assert.Equal(t, 0, plan.Summary.ActionableCount)
}

func TestGenerate_EmptyAccountBuysFromAdjustment(t *testing.T) {
	plan, err := Generate(GenerateInput{
		Prices:            map[string]decimal.Decimal{"A": d("10"), "B": d("20")},
		Targets:           contracts.TargetSet{{Code: "A", Weight: 0.5}, {Code: "B", Weight: 0.5}},
		LotSize:           d("1"),
		CapitalAdjustment: d("1000"),
	})
	require.NoError(t, err)
	require.Len(t, plan.Orders, 2)

	for _, o := range plan.Orders {
		assert.Equal(t, contracts.ActionBuy, o.Action)
		assert.True(t, o.TradeAmount.Equal(d("500")), "%s: %s", o.FundCode, o.TradeAmount)
		assert.Zero(t, o.CurrentWeight)
	}
	assert.True(t, plan.Summary.TotalAssets.IsZero())
	assert.True(t, plan.Summary.BuyAmount.Equal(d("1000")))
}

func TestGenerate_NothingToAllocate(t *testing.T) {
	plan, err := Generate(GenerateInput{
		Prices:  map[string]decimal.Decimal{"A": d("10")},
		Targets: contracts.TargetSet{{Code: "A", Weight: 1}},
		LotSize: d("1"),
	})
	require.NoError(t, err)
	assert.Equal(t, contracts.ActionHold, plan.Orders[0].Action)
	require.NotEmpty(t, plan.Warnings)
	assert.Equal(t, "total_assets", plan.Warnings[len(plan.Warnings)-1].Field)
}

func TestGenerate_MissingPriceIsExcludedWithWarning(t *testing.T) {
	plan, err := Generate(GenerateInput{
		Positions: map[string]contracts.Position{"A": pos("A", "50"), "B": pos("B", "50")},
		Prices:    map[string]decimal.Decimal{"A": d("10"), "B": d("0")},
		Targets:   contracts.TargetSet{{Code: "A", Weight: 0.5}, {Code: "B", Weight: 0.5}},
		LotSize:   d("1"),
	})
	require.NoError(t, err)
	require.Len(t, plan.Orders, 1)
	assert.Equal(t, "A", plan.Orders[0].FundCode)

	require.Len(t, plan.Warnings, 1)
	assert.Equal(t, "B", plan.Warnings[0].Code)
	assert.Equal(t, "price", plan.Warnings[0].Field)
}

func TestGenerate_ScopeOnlyCodeIsSoldDown(t *testing.T) {
	plan, err := Generate(GenerateInput{
		Positions: map[string]contracts.Position{"A": pos("A", "50"), "C": pos("C", "50")},
		Prices:    map[string]decimal.Decimal{"A": d("10"), "C": d("10")},
		Scope:     []string{"A", "C"},
		Targets:   contracts.TargetSet{{Code: "A", Weight: 1}},
		LotSize:   d("1"),
	})
	require.NoError(t, err)

	c := orderFor(t, plan, "C")
	assert.Equal(t, contracts.ActionSell, c.Action)
	assert.Zero(t, c.TargetWeight)
	assert.True(t, c.DeltaShares.Equal(d("-50")))
}

func TestGenerate_WithdrawalLargerThanValue(t *testing.T) {
	_, err := Generate(GenerateInput{
		Positions:         map[string]contracts.Position{"A": pos("A", "10")},
		Prices:            map[string]decimal.Decimal{"A": d("10")},
		Targets:           contracts.TargetSet{{Code: "A", Weight: 1}},
		CapitalAdjustment: d("-101"),
	})
	require.Error(t, err)
	assert.True(t, contracts.IsKind(err, contracts.KindInputValidation))
}

func TestGenerate_RejectsBadInput(t *testing.T) {
	tests := []struct {
		name string
		in   GenerateInput
	}{
		{"empty targets", GenerateInput{}},
		{"zero weight", GenerateInput{Targets: contracts.TargetSet{{Code: "A", Weight: 0}}}},
		{"weight above one", GenerateInput{Targets: contracts.TargetSet{{Code: "A", Weight: 1.5}}}},
		{"negative fee", GenerateInput{Targets: contracts.TargetSet{{Code: "A", Weight: 1}}, FeeRate: -0.1}},
		{"negative lot", GenerateInput{Targets: contracts.TargetSet{{Code: "A", Weight: 1}}, LotSize: d("-1")}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Generate(tt.in)
			require.Error(t, err)
			assert.True(t, contracts.IsKind(err, contracts.KindInputValidation))
		})
	}
}

func TestGenerate_Deterministic(t *testing.T) {
	in := GenerateInput{
		Positions: map[string]contracts.Position{"A": pos("A", "13"), "B": pos("B", "71"), "C": pos("C", "5")},
		Prices:    map[string]decimal.Decimal{"A": d("12.5"), "B": d("3.3"), "C": d("40")},
		Scope:     []string{"C", "B", "A"},
		Targets:   contracts.TargetSet{{Code: "B", Weight: 0.3}, {Code: "A", Weight: 0.5}},
		FeeRate:   0.0015,
		LotSize:   d("0.01"),
	}
	first, err := Generate(in)
	require.NoError(t, err)
	for i := 0; i < 5; i++ {
		again, err := Generate(in)
		require.NoError(t, err)
		assert.Equal(t, first, again)
	}
}

func TestGenerate_WeightSumWarning(t *testing.T) {
	plan, err := Generate(GenerateInput{
		Prices:            map[string]decimal.Decimal{"A": d("10")},
		Targets:           contracts.TargetSet{{Code: "A", Weight: 0.5}},
		CapitalAdjustment: d("100"),
	})
	require.NoError(t, err)
	assert.InDelta(t, 0.5, plan.Summary.WeightSum, 1e-12)
	require.NotEmpty(t, plan.Warnings)
	assert.Equal(t, "weight_sum", plan.Warnings[0].Field)
}

func TestSortOrders(t *testing.T) {
	orders := []contracts.RebalanceOrder{
		{FundCode: "B", TradeAmount: d("10")},
		{FundCode: "A", TradeAmount: d("-10")},
		{FundCode: "C", TradeAmount: d("-50")},
		{FundCode: "D", TradeAmount: d("0")},
	}
	SortOrders(orders)

	got := make([]string, len(orders))
	for i, o := range orders {
		got[i] = o.FundCode
	}
	assert.Equal(t, []string{"C", "A", "B", "D"}, got)
}

func TestTotals(t *testing.T) {
	shares, price := d("3"), d("11")
	orders := []contracts.RebalanceOrder{
		{Action: contracts.ActionBuy, TradeAmount: d("100"), Status: contracts.OrderSuggested},
		{Action: contracts.ActionSell, TradeAmount: d("-40"), Status: contracts.OrderSkipped},
		{Action: contracts.ActionBuy, TradeAmount: d("30"), Status: contracts.OrderExecuted, ExecutedShares: &shares, ExecutedPrice: &price},
		{Action: contracts.ActionSell, TradeAmount: d("-20"), Status: contracts.OrderSuggested},
		{Action: contracts.ActionHold, Status: contracts.OrderSuggested},
	}

	buy, sell, pending := Totals(orders)
	assert.True(t, buy.Equal(d("133")), buy.String())
	assert.True(t, sell.Equal(d("20")), sell.String())
	assert.Equal(t, 2, pending)
}
