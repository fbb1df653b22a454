package strategy

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/wonny/fundfolio/backend/internal/contracts"
	"github.com/wonny/fundfolio/backend/pkg/logger"
)

// Store persists portfolios and their versions
type Store interface {
	InsertPortfolio(ctx context.Context, p *contracts.Portfolio, v *contracts.PortfolioVersion) error
	InsertVersion(ctx context.Context, v *contracts.PortfolioVersion, activate bool, scope []string) error
	ActivateVersion(ctx context.Context, portfolioID, versionID int64) error
	UpdateScope(ctx context.Context, portfolioID int64, scope []string) error
	DeletePortfolio(ctx context.Context, portfolioID int64) error
	GetPortfolio(ctx context.Context, portfolioID int64) (*contracts.Portfolio, error)
	ListPortfolios(ctx context.Context, accountID *int64) ([]contracts.Portfolio, error)
	ListVersions(ctx context.Context, portfolioID int64) ([]contracts.PortfolioVersion, error)
}

// Defaults are applied when a request leaves a field empty
type Defaults struct {
	Benchmark string
	FeeRate   float64
}

// Service implements the weight target model operations
// ⭐ SSOT: 전략 포트폴리오/버전 변경은 여기서만
type Service struct {
	store    Store
	locker   contracts.Locker
	defaults Defaults
	logger   *logger.Logger
	now      func() time.Time
}

// NewService creates a strategy service
func NewService(store Store, locker contracts.Locker, defaults Defaults, log *logger.Logger) *Service {
	return &Service{
		store:    store,
		locker:   locker,
		defaults: defaults,
		logger:   log,
		now:      time.Now,
	}
}

// CreatePortfolioInput describes a new strategy portfolio
type CreatePortfolioInput struct {
	Name          string      `json:"name"`
	AccountID     *int64      `json:"account_id,omitempty"`
	Holdings      []RawTarget `json:"holdings"`
	Benchmark     string      `json:"benchmark"`
	FeeRate       *float64    `json:"fee_rate,omitempty"`
	EffectiveDate string      `json:"effective_date"` // YYYY-MM-DD, default today
	Note          string      `json:"note"`
	ScopeCodes    []string    `json:"scope_codes"`
	Rescale       bool        `json:"normalize"`
}

// CreateVersionInput describes a new target version
type CreateVersionInput struct {
	Holdings      []RawTarget `json:"holdings"`
	EffectiveDate string      `json:"effective_date"`
	Note          string      `json:"note"`
	Activate      *bool       `json:"activate,omitempty"` // default true
	ScopeCodes    []string    `json:"scope_codes"`
	Rescale       bool        `json:"normalize"`
}

// Created is returned by the create operations
type Created struct {
	Portfolio contracts.Portfolio        `json:"portfolio"`
	Version   contracts.PortfolioVersion `json:"version"`
	Warnings  []contracts.Warning        `json:"warnings,omitempty"`
}

// CreatePortfolio creates a portfolio and its active version 1
func (s *Service) CreatePortfolio(ctx context.Context, in CreatePortfolioInput) (*Created, error) {
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return nil, contracts.InvalidInput("name", "name is required")
	}

	targets, warnings, err := NormalizeTargets(in.Holdings, in.Rescale)
	if err != nil {
		return nil, err
	}

	feeRate := s.defaults.FeeRate
	if in.FeeRate != nil {
		feeRate = *in.FeeRate
	}
	if err := ValidateFeeRate(feeRate); err != nil {
		return nil, err
	}

	effective, err := s.parseEffectiveDate(in.EffectiveDate)
	if err != nil {
		return nil, err
	}

	benchmark := strings.TrimSpace(in.Benchmark)
	if benchmark == "" {
		benchmark = s.defaults.Benchmark
	}

	p := &contracts.Portfolio{
		Name:          name,
		AccountID:     in.AccountID,
		BenchmarkCode: benchmark,
		FeeRate:       feeRate,
		ScopeCodes:    MergeScope(in.ScopeCodes, targets),
	}
	v := &contracts.PortfolioVersion{
		VersionNo:     1,
		EffectiveDate: effective,
		Note:          in.Note,
		IsActive:      true,
		Targets:       targets,
	}

	if err := s.store.InsertPortfolio(ctx, p, v); err != nil {
		return nil, fmt.Errorf("failed to create portfolio: %w", err)
	}

	s.logger.WithFields(map[string]interface{}{
		"portfolio_id": p.ID,
		"version_id":   v.ID,
		"targets":      len(targets),
		"scope_size":   len(p.ScopeCodes),
	}).Info("Strategy portfolio created")

	return &Created{Portfolio: *p, Version: *v, Warnings: warnings}, nil
}

// CreateVersion appends a version (version_no = max+1) and activates it unless told otherwise
func (s *Service) CreateVersion(ctx context.Context, portfolioID int64, in CreateVersionInput) (*Created, error) {
	targets, warnings, err := NormalizeTargets(in.Holdings, in.Rescale)
	if err != nil {
		return nil, err
	}
	effective, err := s.parseEffectiveDate(in.EffectiveDate)
	if err != nil {
		return nil, err
	}
	activate := in.Activate == nil || *in.Activate

	release, err := s.lock(ctx, portfolioID)
	if err != nil {
		return nil, err
	}
	defer release()

	p, err := s.store.GetPortfolio(ctx, portfolioID)
	if err != nil {
		return nil, err
	}

	// an active version's codes must stay inside scope; inactive ones are added on activation
	scope := NormalizeCodes(in.ScopeCodes)
	if len(scope) == 0 {
		scope = p.ScopeCodes
	}
	if activate {
		scope = MergeScope(scope, targets)
	}

	v := &contracts.PortfolioVersion{
		PortfolioID:   portfolioID,
		EffectiveDate: effective,
		Note:          in.Note,
		IsActive:      activate,
		Targets:       targets,
	}
	if err := s.store.InsertVersion(ctx, v, activate, scope); err != nil {
		return nil, fmt.Errorf("failed to create version: %w", err)
	}

	p.ScopeCodes = scope
	if activate {
		p.ActiveVersionID = &v.ID
	}

	s.logger.WithFields(map[string]interface{}{
		"portfolio_id": portfolioID,
		"version_id":   v.ID,
		"version_no":   v.VersionNo,
		"active":       activate,
	}).Info("Strategy version created")

	return &Created{Portfolio: *p, Version: *v, Warnings: warnings}, nil
}

// ActivateVersion makes versionID the portfolio's active version and widens scope to cover it
func (s *Service) ActivateVersion(ctx context.Context, portfolioID, versionID int64) (*contracts.PortfolioDetail, error) {
	release, err := s.lock(ctx, portfolioID)
	if err != nil {
		return nil, err
	}
	defer release()

	detail, err := s.detail(ctx, portfolioID)
	if err != nil {
		return nil, err
	}

	var target *contracts.PortfolioVersion
	for i := range detail.Versions {
		if detail.Versions[i].ID == versionID {
			target = &detail.Versions[i]
		}
	}
	if target == nil {
		return nil, contracts.NotFound("version", versionID)
	}

	if err := s.store.ActivateVersion(ctx, portfolioID, versionID); err != nil {
		return nil, fmt.Errorf("failed to activate version: %w", err)
	}
	scope := MergeScope(detail.Portfolio.ScopeCodes, target.Targets)
	if len(scope) != len(detail.Portfolio.ScopeCodes) {
		if err := s.store.UpdateScope(ctx, portfolioID, scope); err != nil {
			return nil, fmt.Errorf("failed to widen scope: %w", err)
		}
	}

	return s.detail(ctx, portfolioID)
}

// UpdateScope replaces the scope; it may not drop an actively targeted code
func (s *Service) UpdateScope(ctx context.Context, portfolioID int64, codes []string) (*contracts.Portfolio, error) {
	scope := NormalizeCodes(codes)

	release, err := s.lock(ctx, portfolioID)
	if err != nil {
		return nil, err
	}
	defer release()

	detail, err := s.detail(ctx, portfolioID)
	if err != nil {
		return nil, err
	}

	in := make(map[string]bool, len(scope))
	for _, c := range scope {
		in[c] = true
	}
	for _, c := range detail.ActiveTargets.Codes() {
		if !in[c] {
			return nil, contracts.InvalidInput("scope_codes", "scope must include targeted code").WithCode(c)
		}
	}

	if err := s.store.UpdateScope(ctx, portfolioID, scope); err != nil {
		return nil, fmt.Errorf("failed to update scope: %w", err)
	}

	p := detail.Portfolio
	p.ScopeCodes = scope
	return &p, nil
}

// DeletePortfolio removes a portfolio with its versions and batches
func (s *Service) DeletePortfolio(ctx context.Context, portfolioID int64) error {
	release, err := s.lock(ctx, portfolioID)
	if err != nil {
		return err
	}
	defer release()

	if err := s.store.DeletePortfolio(ctx, portfolioID); err != nil {
		return err
	}

	s.logger.WithField("portfolio_id", portfolioID).Info("Strategy portfolio deleted")
	return nil
}

// ListPortfolios lists portfolios, optionally for one account
func (s *Service) ListPortfolios(ctx context.Context, accountID *int64) ([]contracts.Portfolio, error) {
	return s.store.ListPortfolios(ctx, accountID)
}

// GetDetail returns the portfolio, its versions (newest first) and active targets
func (s *Service) GetDetail(ctx context.Context, portfolioID int64) (*contracts.PortfolioDetail, error) {
	return s.detail(ctx, portfolioID)
}

// VersionSchedule returns every version in ascending effective-date order for backtests.
// Versions sharing an effective date resolve to the highest version_no.
func (s *Service) VersionSchedule(ctx context.Context, portfolioID int64) ([]contracts.VersionTargets, error) {
	versions, err := s.store.ListVersions(ctx, portfolioID)
	if err != nil {
		return nil, err
	}
	if len(versions) == 0 {
		return nil, contracts.NotFound("versions of portfolio", portfolioID)
	}

	sort.SliceStable(versions, func(i, j int) bool {
		if !versions[i].EffectiveDate.Equal(versions[j].EffectiveDate) {
			return versions[i].EffectiveDate.Before(versions[j].EffectiveDate)
		}
		return versions[i].VersionNo < versions[j].VersionNo
	})

	out := make([]contracts.VersionTargets, 0, len(versions))
	for _, v := range versions {
		entry := contracts.VersionTargets{VersionNo: v.VersionNo, EffectiveDate: v.EffectiveDate, Targets: v.Targets}
		if n := len(out); n > 0 && out[n-1].EffectiveDate.Equal(v.EffectiveDate) {
			out[n-1] = entry
			continue
		}
		out = append(out, entry)
	}
	return out, nil
}

func (s *Service) detail(ctx context.Context, portfolioID int64) (*contracts.PortfolioDetail, error) {
	p, err := s.store.GetPortfolio(ctx, portfolioID)
	if err != nil {
		return nil, err
	}
	versions, err := s.store.ListVersions(ctx, portfolioID)
	if err != nil {
		return nil, err
	}

	sort.Slice(versions, func(i, j int) bool { return versions[i].VersionNo > versions[j].VersionNo })

	d := &contracts.PortfolioDetail{Portfolio: *p, Versions: versions, ActiveTargets: contracts.TargetSet{}}
	for i := range versions {
		if versions[i].IsActive {
			d.ActiveVersion = &versions[i]
			d.ActiveTargets = versions[i].Targets
			break
		}
	}
	return d, nil
}

func (s *Service) lock(ctx context.Context, portfolioID int64) (func(), error) {
	key := fmt.Sprintf("portfolio:%d", portfolioID)
	release, err := s.locker.Acquire(ctx, key)
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return nil, err
		}
		return nil, contracts.Conflict(key, err)
	}
	return release, nil
}

func (s *Service) parseEffectiveDate(raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		now := s.now()
		return time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC), nil
	}
	d, err := time.Parse("2006-01-02", raw)
	if err != nil {
		return time.Time{}, contracts.InvalidInput("effective_date", "expected YYYY-MM-DD, got %q", raw)
	}
	return d, nil
}
