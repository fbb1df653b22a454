package strategy

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wonny/fundfolio/backend/internal/contracts"
	"github.com/wonny/fundfolio/backend/internal/lock"
	"github.com/wonny/fundfolio/backend/pkg/logger"
)

// memStore is an in-memory Store
type memStore struct {
	mu         sync.Mutex
	nextID     int64
	portfolios map[int64]*contracts.Portfolio
	versions   map[int64][]contracts.PortfolioVersion
}

func newMemStore() *memStore {
	return &memStore{
		portfolios: map[int64]*contracts.Portfolio{},
		versions:   map[int64][]contracts.PortfolioVersion{},
	}
}

func (m *memStore) id() int64 {
	m.nextID++
	return m.nextID
}

func (m *memStore) InsertPortfolio(_ context.Context, p *contracts.Portfolio, v *contracts.PortfolioVersion) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p.ID = m.id()
	v.ID = m.id()
	v.PortfolioID = p.ID
	p.ActiveVersionID = &v.ID
	cp := *p
	m.portfolios[p.ID] = &cp
	m.versions[p.ID] = []contracts.PortfolioVersion{*v}
	return nil
}

func (m *memStore) InsertVersion(_ context.Context, v *contracts.PortfolioVersion, activate bool, scope []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.portfolios[v.PortfolioID]
	if !ok {
		return contracts.NotFound("portfolio", v.PortfolioID)
	}
	vs := m.versions[v.PortfolioID]
	v.ID = m.id()
	v.VersionNo = len(vs) + 1
	if activate {
		for i := range vs {
			vs[i].IsActive = false
		}
		p.ActiveVersionID = &v.ID
	}
	p.ScopeCodes = scope
	m.versions[v.PortfolioID] = append(vs, *v)
	return nil
}

func (m *memStore) ActivateVersion(_ context.Context, portfolioID, versionID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	vs := m.versions[portfolioID]
	for i := range vs {
		vs[i].IsActive = vs[i].ID == versionID
	}
	m.portfolios[portfolioID].ActiveVersionID = &versionID
	return nil
}

func (m *memStore) UpdateScope(_ context.Context, portfolioID int64, scope []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.portfolios[portfolioID].ScopeCodes = scope
	return nil
}

func (m *memStore) DeletePortfolio(_ context.Context, portfolioID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.portfolios[portfolioID]; !ok {
		return contracts.NotFound("portfolio", portfolioID)
	}
	delete(m.portfolios, portfolioID)
	delete(m.versions, portfolioID)
	return nil
}

func (m *memStore) GetPortfolio(_ context.Context, portfolioID int64) (*contracts.Portfolio, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.portfolios[portfolioID]
	if !ok {
		return nil, contracts.NotFound("portfolio", portfolioID)
	}
	cp := *p
	return &cp, nil
}

func (m *memStore) ListPortfolios(_ context.Context, accountID *int64) ([]contracts.Portfolio, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []contracts.Portfolio{}
	for _, p := range m.portfolios {
		if accountID == nil || (p.AccountID != nil && *p.AccountID == *accountID) {
			out = append(out, *p)
		}
	}
	return out, nil
}

func (m *memStore) ListVersions(_ context.Context, portfolioID int64) ([]contracts.PortfolioVersion, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]contracts.PortfolioVersion{}, m.versions[portfolioID]...), nil
}

func newTestService() (*Service, *memStore) {
	store := newMemStore()
	svc := NewService(store, lock.NewLocal(time.Second), Defaults{Benchmark: "000300", FeeRate: 0.001}, logger.NewNop())
	svc.now = func() time.Time { return time.Date(2024, 3, 15, 10, 0, 0, 0, time.UTC) }
	return svc, store
}

func createSample(t *testing.T, svc *Service) *Created {
	t.Helper()
	account := int64(1)
	created, err := svc.CreatePortfolio(context.Background(), CreatePortfolioInput{
		Name:       "core",
		AccountID:  &account,
		Holdings:   []RawTarget{{Code: "A", Weight: 60}, {Code: "B", Weight: 40}},
		ScopeCodes: []string{"C"},
	})
	require.NoError(t, err)
	return created
}

func TestCreatePortfolio(t *testing.T) {
	svc, _ := newTestService()
	created := createSample(t, svc)

	assert.Equal(t, "000300", created.Portfolio.BenchmarkCode)
	assert.Equal(t, 0.001, created.Portfolio.FeeRate)
	assert.Equal(t, []string{"A", "B", "C"}, created.Portfolio.ScopeCodes)
	assert.Equal(t, 1, created.Version.VersionNo)
	assert.True(t, created.Version.IsActive)
	assert.Equal(t, time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC), created.Version.EffectiveDate)
	assert.Empty(t, created.Warnings)
}

func TestCreatePortfolioRejects(t *testing.T) {
	svc, _ := newTestService()
	bad := 0.5

	tests := []struct {
		name  string
		in    CreatePortfolioInput
		field string
	}{
		{"no name", CreatePortfolioInput{Holdings: []RawTarget{{Code: "A", Weight: 1}}}, "name"},
		{"no holdings", CreatePortfolioInput{Name: "x"}, "holdings"},
		{"fee too high", CreatePortfolioInput{Name: "x", Holdings: []RawTarget{{Code: "A", Weight: 1}}, FeeRate: &bad}, "fee_rate"},
		{"bad date", CreatePortfolioInput{Name: "x", Holdings: []RawTarget{{Code: "A", Weight: 1}}, EffectiveDate: "15/03/2024"}, "effective_date"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.CreatePortfolio(context.Background(), tt.in)
			var e *contracts.Error
			require.ErrorAs(t, err, &e)
			assert.Equal(t, contracts.KindInputValidation, e.Kind)
			assert.Equal(t, tt.field, e.Field)
		})
	}
}

func TestCreateVersionSupersedesActive(t *testing.T) {
	svc, _ := newTestService()
	created := createSample(t, svc)
	ctx := context.Background()

	v2, err := svc.CreateVersion(ctx, created.Portfolio.ID, CreateVersionInput{
		Holdings:      []RawTarget{{Code: "A", Weight: 0.5}, {Code: "D", Weight: 0.5}},
		EffectiveDate: "2024-06-01",
	})
	require.NoError(t, err)
	assert.Equal(t, 2, v2.Version.VersionNo)
	assert.Equal(t, []string{"A", "B", "C", "D"}, v2.Portfolio.ScopeCodes)

	detail, err := svc.GetDetail(ctx, created.Portfolio.ID)
	require.NoError(t, err)
	require.Len(t, detail.Versions, 2)
	assert.Equal(t, 2, detail.Versions[0].VersionNo, "newest first")
	require.NotNil(t, detail.ActiveVersion)
	assert.Equal(t, v2.Version.ID, detail.ActiveVersion.ID)
	assert.False(t, detail.Versions[1].IsActive, "history retained but inactive")
	assert.Equal(t, []string{"A", "D"}, detail.ActiveTargets.Codes())
}

func TestCreateVersionInactiveKeepsActive(t *testing.T) {
	svc, _ := newTestService()
	created := createSample(t, svc)
	off := false

	_, err := svc.CreateVersion(context.Background(), created.Portfolio.ID, CreateVersionInput{
		Holdings: []RawTarget{{Code: "E", Weight: 1}},
		Activate: &off,
	})
	require.NoError(t, err)

	detail, err := svc.GetDetail(context.Background(), created.Portfolio.ID)
	require.NoError(t, err)
	assert.Equal(t, created.Version.ID, detail.ActiveVersion.ID)
	assert.NotContains(t, detail.Portfolio.ScopeCodes, "E")
}

func TestActivateVersionWidensScope(t *testing.T) {
	svc, _ := newTestService()
	created := createSample(t, svc)
	off := false
	ctx := context.Background()

	v2, err := svc.CreateVersion(ctx, created.Portfolio.ID, CreateVersionInput{
		Holdings: []RawTarget{{Code: "E", Weight: 1}},
		Activate: &off,
	})
	require.NoError(t, err)

	detail, err := svc.ActivateVersion(ctx, created.Portfolio.ID, v2.Version.ID)
	require.NoError(t, err)
	assert.Equal(t, v2.Version.ID, detail.ActiveVersion.ID)
	assert.Contains(t, detail.Portfolio.ScopeCodes, "E")

	_, err = svc.ActivateVersion(ctx, created.Portfolio.ID, 999)
	assert.True(t, contracts.IsKind(err, contracts.KindNotFound))
}

func TestUpdateScope(t *testing.T) {
	svc, _ := newTestService()
	created := createSample(t, svc)
	ctx := context.Background()

	p, err := svc.UpdateScope(ctx, created.Portfolio.ID, []string{"B", "A", "X"})
	require.NoError(t, err)
	assert.Equal(t, []string{"A", "B", "X"}, p.ScopeCodes)

	_, err = svc.UpdateScope(ctx, created.Portfolio.ID, []string{"A"})
	var e *contracts.Error
	require.ErrorAs(t, err, &e)
	assert.Equal(t, contracts.KindInputValidation, e.Kind)
	assert.Equal(t, "B", e.Code)
}

func TestVersionSchedule(t *testing.T) {
	svc, _ := newTestService()
	created := createSample(t, svc)
	ctx := context.Background()

	for _, in := range []CreateVersionInput{
		{Holdings: []RawTarget{{Code: "A", Weight: 1}}, EffectiveDate: "2024-09-01"},
		{Holdings: []RawTarget{{Code: "B", Weight: 1}}, EffectiveDate: "2024-06-01"},
		{Holdings: []RawTarget{{Code: "C", Weight: 1}}, EffectiveDate: "2024-06-01"},
	} {
		_, err := svc.CreateVersion(ctx, created.Portfolio.ID, in)
		require.NoError(t, err)
	}

	schedule, err := svc.VersionSchedule(ctx, created.Portfolio.ID)
	require.NoError(t, err)
	require.Len(t, schedule, 3)
	assert.Equal(t, 1, schedule[0].VersionNo)
	assert.Equal(t, 4, schedule[1].VersionNo, "same date resolves to the later version")
	assert.Equal(t, []string{"C"}, schedule[1].Targets.Codes())
	assert.Equal(t, 2, schedule[2].VersionNo)
}

func TestDeletePortfolio(t *testing.T) {
	svc, _ := newTestService()
	created := createSample(t, svc)
	ctx := context.Background()

	require.NoError(t, svc.DeletePortfolio(ctx, created.Portfolio.ID))
	_, err := svc.GetDetail(ctx, created.Portfolio.ID)
	assert.True(t, contracts.IsKind(err, contracts.KindNotFound))
}

type busyLocker struct{}

func (busyLocker) Acquire(context.Context, string) (func(), error) {
	return nil, lock.ErrTimeout
}

func TestLockFailureIsRetryableConflict(t *testing.T) {
	svc, _ := newTestService()
	created := createSample(t, svc)
	svc.locker = busyLocker{}

	_, err := svc.UpdateScope(context.Background(), created.Portfolio.ID, []string{"A", "B"})
	assert.True(t, contracts.Retryable(err))
	assert.ErrorIs(t, err, lock.ErrTimeout)
}

func TestLockDeadlinePassesThrough(t *testing.T) {
	svc, _ := newTestService()
	created := createSample(t, svc)

	release, err := svc.locker.Acquire(context.Background(), fmt.Sprintf("portfolio:%d", created.Portfolio.ID))
	require.NoError(t, err)
	defer release()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	err = svc.DeletePortfolio(ctx, created.Portfolio.ID)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.False(t, contracts.Retryable(err))
}
