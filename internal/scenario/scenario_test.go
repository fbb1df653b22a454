package scenario

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wonny/fundfolio/backend/internal/contracts"
)

const sample = `
name: core 60/40
start_date: 2023-01-02
end_date: 2023-12-29
initial_capital: 100000
rebalance:
  mode: hybrid
  threshold: 0.05
  periodic_days: 20
fee_rate: 0.001
benchmark: "000300"
versions:
  - effective_date: 2023-01-02
    holdings:
      - {code: "110011", weight: 60}
      - {code: "000216", weight: 40}
  - effective_date: 2023-07-03
    holdings:
      - {code: "110011", weight: 0.5}
      - {code: "000216", weight: 0.5}
`

func TestParseAndRequest(t *testing.T) {
	sc, err := Parse([]byte(sample))
	require.NoError(t, err)
	assert.Equal(t, "core 60/40", sc.Name)

	req, warnings, err := sc.Request()
	require.NoError(t, err)
	assert.Empty(t, warnings)

	assert.Equal(t, contracts.ModeHybrid, req.Mode)
	assert.Equal(t, 20, req.PeriodicDays)
	assert.Equal(t, time.Date(2023, 1, 2, 0, 0, 0, 0, time.UTC), req.StartDate)
	require.Len(t, req.Versions, 2)
	assert.InDelta(t, 0.6, req.Versions[0].Targets.Weights()["110011"], 1e-12)
	assert.Equal(t, 2, req.Versions[1].VersionNo)
	assert.Equal(t, time.Date(2023, 7, 3, 0, 0, 0, 0, time.UTC), req.Versions[1].EffectiveDate)
}

func TestParseRejectsUnknownField(t *testing.T) {
	_, err := Parse([]byte("name: x\nstart_dat: 2023-01-02\n"))
	require.Error(t, err)
	assert.True(t, contracts.IsKind(err, contracts.KindInputValidation))
}

func TestRequestValidation(t *testing.T) {
	tests := []struct {
		name  string
		yaml  string
		field string
	}{
		{"bad start", "start_date: 02/01/2023\nend_date: 2023-12-29\nversions: [{holdings: [{code: A, weight: 1}]}]", "start_date"},
		{"missing end", "start_date: 2023-01-02\nversions: [{holdings: [{code: A, weight: 1}]}]", "end_date"},
		{"no versions", "start_date: 2023-01-02\nend_date: 2023-12-29", "versions"},
		{"zero weight", "start_date: 2023-01-02\nend_date: 2023-12-29\nversions: [{holdings: [{code: A, weight: 0}]}]", "versions[0].holdings[0].weight"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sc, err := Parse([]byte(tt.yaml))
			require.NoError(t, err)
			_, _, err = sc.Request()
			var e *contracts.Error
			require.ErrorAs(t, err, &e)
			assert.Equal(t, tt.field, e.Field)
		})
	}
}

func TestHashIsStable(t *testing.T) {
	sc, err := Parse([]byte(sample))
	require.NoError(t, err)
	a, _, err := sc.Request()
	require.NoError(t, err)
	b, _, err := sc.Request()
	require.NoError(t, err)

	ha, err := Hash(a)
	require.NoError(t, err)
	hb, err := Hash(b)
	require.NoError(t, err)
	assert.Len(t, ha, 64)
	assert.Equal(t, ha, hb)

	b.FeeRate = 0.002
	hc, err := Hash(b)
	require.NoError(t, err)
	assert.NotEqual(t, ha, hc)
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "scenario.yaml")
	require.NoError(t, os.WriteFile(path, []byte(sample), 0o600))

	sc, raw, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, sample, string(raw))
	assert.Len(t, sc.Versions, 2)

	_, _, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}
