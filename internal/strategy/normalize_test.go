package strategy

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wonny/fundfolio/backend/internal/contracts"
)

func TestParseWeight(t *testing.T) {
	tests := []struct {
		name    string
		in      float64
		want    float64
		wantErr bool
	}{
		{"fraction", 0.25, 0.25, false},
		{"one", 1, 1, false},
		{"percentage", 40, 0.4, false},
		{"hundred percent", 100, 1, false},
		{"zero", 0, 0, true},
		{"negative", -0.1, 0, true},
		{"over hundred", 150, 0, true},
		{"nan", math.NaN(), 0, true},
		{"inf", math.Inf(1), 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseWeight(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.InDelta(t, tt.want, got, 1e-12)
		})
	}
}

func TestNormalizeTargets(t *testing.T) {
	t.Run("merges duplicates and keeps order", func(t *testing.T) {
		targets, warnings, err := NormalizeTargets([]RawTarget{
			{Code: " B ", Weight: 30},
			{Code: "A", Weight: 0.5},
			{Code: "B", Weight: 0.2},
		}, false)
		require.NoError(t, err)
		assert.Empty(t, warnings)
		require.Len(t, targets, 2)
		assert.Equal(t, "B", targets[0].Code)
		assert.InDelta(t, 0.5, targets[0].Weight, 1e-12)
		assert.Equal(t, "A", targets[1].Code)
	})

	t.Run("residual cash warns", func(t *testing.T) {
		targets, warnings, err := NormalizeTargets([]RawTarget{{Code: "A", Weight: 0.6}}, false)
		require.NoError(t, err)
		assert.InDelta(t, 0.6, targets.Sum(), 1e-12)
		require.Len(t, warnings, 1)
		assert.Equal(t, "weight_sum", warnings[0].Field)
	})

	t.Run("over-allocation warns not fails", func(t *testing.T) {
		_, warnings, err := NormalizeTargets([]RawTarget{{Code: "A", Weight: 0.7}, {Code: "B", Weight: 0.6}}, false)
		require.NoError(t, err)
		require.Len(t, warnings, 1)
		assert.Contains(t, warnings[0].Reason, "exceeds 1")
	})

	t.Run("rescale sums to one", func(t *testing.T) {
		targets, warnings, err := NormalizeTargets([]RawTarget{{Code: "A", Weight: 75}, {Code: "B", Weight: 25}}, true)
		require.NoError(t, err)
		assert.Empty(t, warnings)
		assert.InDelta(t, 1.0, targets.Sum(), 1e-12)
		assert.InDelta(t, 0.75, targets[0].Weight, 1e-12)

		targets, _, err = NormalizeTargets([]RawTarget{{Code: "A", Weight: 0.3}, {Code: "B", Weight: 0.1}}, true)
		require.NoError(t, err)
		assert.InDelta(t, 0.75, targets[0].Weight, 1e-12)
		assert.InDelta(t, 0.25, targets[1].Weight, 1e-12)
	})

	t.Run("percent applies per item before rescale", func(t *testing.T) {
		// 3 reads as 3%, 1 reads as 100%
		targets, _, err := NormalizeTargets([]RawTarget{{Code: "A", Weight: 3}, {Code: "B", Weight: 1}}, true)
		require.NoError(t, err)
		assert.InDelta(t, 0.03/1.03, targets[0].Weight, 1e-12)
		assert.InDelta(t, 1/1.03, targets[1].Weight, 1e-12)
		assert.InDelta(t, 1.0, targets.Sum(), 1e-12)
	})

	t.Run("rejections", func(t *testing.T) {
		cases := map[string][]RawTarget{
			"holdings":           nil,
			"holdings[1].code":   {{Code: "A", Weight: 0.5}, {Code: "  ", Weight: 0.5}},
			"holdings[0].weight": {{Code: "A", Weight: 0}},
		}
		for field, raw := range cases {
			_, _, err := NormalizeTargets(raw, false)
			require.Error(t, err, field)
			assert.True(t, contracts.IsKind(err, contracts.KindInputValidation))
			var e *contracts.Error
			require.ErrorAs(t, err, &e)
			assert.Equal(t, field, e.Field)
		}
	})
}

func TestNormalizeCodesAndScope(t *testing.T) {
	assert.Equal(t, []string{"A", "B", "C"}, NormalizeCodes([]string{" C", "A", "", "B", "A"}))
	assert.Empty(t, NormalizeCodes(nil))

	scope := MergeScope([]string{"Z"}, contracts.TargetSet{{Code: "A", Weight: 1}})
	assert.Equal(t, []string{"A", "Z"}, scope)
}

func TestValidateFeeRate(t *testing.T) {
	assert.NoError(t, ValidateFeeRate(0))
	assert.NoError(t, ValidateFeeRate(0.02))
	assert.Error(t, ValidateFeeRate(-0.001))
	assert.Error(t, ValidateFeeRate(0.021))
}
