package contracts

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestTargetSet(t *testing.T) {
	ts := TargetSet{
		{Code: "B", Weight: 0.4},
		{Code: "A", Weight: 0.6},
	}

	assert.InDelta(t, 1.0, ts.Sum(), 1e-12)
	assert.Equal(t, []string{"A", "B"}, ts.Codes())
	assert.Equal(t, map[string]float64{"A": 0.6, "B": 0.4}, ts.Weights())
}

func TestBatchCompletable(t *testing.T) {
	tests := []struct {
		name  string
		batch RebalanceBatch
		want  bool
	}{
		{"open with pending", RebalanceBatch{Status: BatchOpen, PendingOrders: 2}, false},
		{"open settled", RebalanceBatch{Status: BatchOpen}, true},
		{"completed", RebalanceBatch{Status: BatchCompleted}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.batch.Completable())
		})
	}
}

func TestOrderPending(t *testing.T) {
	buy := RebalanceOrder{Action: ActionBuy, Status: OrderSuggested}
	hold := RebalanceOrder{Action: ActionHold, Status: OrderSuggested}
	done := RebalanceOrder{Action: ActionSell, Status: OrderExecuted}

	assert.True(t, buy.IsPending())
	assert.False(t, hold.IsPending())
	assert.False(t, done.IsPending())
}

func TestPositionMarketValue(t *testing.T) {
	p := Position{Code: "A", Shares: decimal.RequireFromString("100.5")}
	assert.True(t, p.MarketValue(decimal.RequireFromString("2")).Equal(decimal.RequireFromString("201")))
}

func TestBacktestRequestCodes(t *testing.T) {
	req := BacktestRequest{
		Versions: []VersionTargets{
			{Targets: TargetSet{{Code: "A", Weight: 0.5}, {Code: "B", Weight: 0.5}}},
			{Targets: TargetSet{{Code: "B", Weight: 0.3}, {Code: "C", Weight: 0.7}}},
		},
		BenchmarkCode: "000300",
	}
	assert.Equal(t, []string{"A", "B", "C", "000300"}, req.Codes())
	assert.True(t, ModeHybrid.Valid())
	assert.False(t, RebalanceMode("weekly").Valid())
	assert.True(t, SourceReduce.Valid())
}
