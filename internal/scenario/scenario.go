package scenario

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/wonny/fundfolio/backend/internal/contracts"
	"github.com/wonny/fundfolio/backend/internal/strategy"
)

// Scenario is a backtest described in a YAML file
type Scenario struct {
	Name           string    `yaml:"name"`
	StartDate      string    `yaml:"start_date"`
	EndDate        string    `yaml:"end_date"`
	InitialCapital float64   `yaml:"initial_capital"`
	Rebalance      Rebalance `yaml:"rebalance"`
	FeeRate        float64   `yaml:"fee_rate"`
	LotSize        float64   `yaml:"lot_size"`
	Benchmark      string    `yaml:"benchmark"`
	Normalize      bool      `yaml:"normalize"`
	Versions       []Version `yaml:"versions"`
}

// Rebalance is the trigger policy block
type Rebalance struct {
	Mode         string  `yaml:"mode"`
	Threshold    float64 `yaml:"threshold"`
	PeriodicDays int     `yaml:"periodic_days"`
}

// Version is one target set with its activation date
type Version struct {
	EffectiveDate string               `yaml:"effective_date"`
	Holdings      []strategy.RawTarget `yaml:"holdings"`
}

// Load reads a scenario file.
// Unknown fields fail immediately so a typo never silently changes a run.
func Load(path string) (*Scenario, []byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, err
	}
	sc, err := Parse(data)
	if err != nil {
		return nil, data, err
	}
	return sc, data, nil
}

// Parse decodes scenario YAML strictly
func Parse(data []byte) (*Scenario, error) {
	var sc Scenario
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&sc); err != nil {
		return nil, contracts.InvalidInput("scenario", "invalid scenario yaml: %v", err)
	}
	return &sc, nil
}

// Request converts the scenario into a backtest request
func (s *Scenario) Request() (contracts.BacktestRequest, []contracts.Warning, error) {
	req := contracts.BacktestRequest{
		InitialCapital: s.InitialCapital,
		Mode:           contracts.RebalanceMode(strings.ToLower(strings.TrimSpace(s.Rebalance.Mode))),
		Threshold:      s.Rebalance.Threshold,
		PeriodicDays:   s.Rebalance.PeriodicDays,
		FeeRate:        s.FeeRate,
		BenchmarkCode:  strings.TrimSpace(s.Benchmark),
		LotSize:        s.LotSize,
	}

	var err error
	if req.StartDate, err = parseDate("start_date", s.StartDate); err != nil {
		return req, nil, err
	}
	if req.EndDate, err = parseDate("end_date", s.EndDate); err != nil {
		return req, nil, err
	}

	if len(s.Versions) == 0 {
		return req, nil, contracts.InvalidInput("versions", "at least one version is required")
	}

	var warnings []contracts.Warning
	for i, v := range s.Versions {
		targets, w, err := strategy.NormalizeTargets(v.Holdings, s.Normalize)
		if err != nil {
			var e *contracts.Error
			if errors.As(err, &e) {
				e.Field = fmt.Sprintf("versions[%d].%s", i, e.Field)
			}
			return req, nil, err
		}
		warnings = append(warnings, w...)

		effective := req.StartDate
		if v.EffectiveDate != "" {
			if effective, err = parseDate(fmt.Sprintf("versions[%d].effective_date", i), v.EffectiveDate); err != nil {
				return req, nil, err
			}
		}
		req.Versions = append(req.Versions, contracts.VersionTargets{
			VersionNo:     i + 1,
			EffectiveDate: effective,
			Targets:       targets,
		})
	}

	return req, warnings, nil
}

// Hash is the SHA-256 of the request's canonical JSON.
// Struct fields marshal in declaration order, so equal requests hash equally.
func Hash(req contracts.BacktestRequest) (string, error) {
	data, err := json.Marshal(req)
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:]), nil
}

func parseDate(field, raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, contracts.InvalidInput(field, "%s is required", field)
	}
	t, err := time.Parse("2006-01-02", raw)
	if err != nil {
		return time.Time{}, contracts.InvalidInput(field, "expected YYYY-MM-DD, got %q", raw)
	}
	return t, nil
}
