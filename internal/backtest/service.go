package backtest

import (
	"context"
	"time"

	"github.com/wonny/fundfolio/backend/internal/contracts"
	"github.com/wonny/fundfolio/backend/internal/market"
	"github.com/wonny/fundfolio/backend/internal/scenario"
	"github.com/wonny/fundfolio/backend/pkg/logger"
	"github.com/wonny/fundfolio/backend/pkg/redis"
)

// lookback is how far before start_date history is loaded so day 0 can carry a price forward
const lookback = 14 * 24 * time.Hour

// ScheduleSource resolves a portfolio's versions; *strategy.Service satisfies it
type ScheduleSource interface {
	GetDetail(ctx context.Context, portfolioID int64) (*contracts.PortfolioDetail, error)
	VersionSchedule(ctx context.Context, portfolioID int64) ([]contracts.VersionTargets, error)
}

// Service loads history, runs the engine, and caches results by request hash
type Service struct {
	engine    *Engine
	schedules ScheduleSource
	history   contracts.HistoryReader
	cache     *redis.Cache
	ttl       time.Duration
	logger    *logger.Logger
}

// NewService creates a backtest service
func NewService(
	engine *Engine,
	schedules ScheduleSource,
	history contracts.HistoryReader,
	cache *redis.Cache,
	ttl time.Duration,
	log *logger.Logger,
) *Service {
	return &Service{
		engine:    engine,
		schedules: schedules,
		history:   history,
		cache:     cache,
		ttl:       ttl,
		logger:    log,
	}
}

// PortfolioParams are the knobs of a backtest over a stored portfolio
type PortfolioParams struct {
	StartDate      time.Time               `json:"start_date"`
	EndDate        time.Time               `json:"end_date"`
	InitialCapital float64                 `json:"initial_capital"`
	Mode           contracts.RebalanceMode `json:"rebalance_mode"`
	Threshold      float64                 `json:"threshold"`
	PeriodicDays   int                     `json:"periodic_days"`
	FeeRate        *float64                `json:"fee_rate,omitempty"`
	BenchmarkCode  string                  `json:"benchmark_code"`
	LotSize        float64                 `json:"lot_size"`
	// FromInception replays every version at its effective date instead of
	// holding the active version over the whole range
	FromInception bool `json:"from_inception"`
}

// PortfolioRequest builds a request from a stored portfolio
func (s *Service) PortfolioRequest(ctx context.Context, portfolioID int64, p PortfolioParams) (contracts.BacktestRequest, error) {
	detail, err := s.schedules.GetDetail(ctx, portfolioID)
	if err != nil {
		return contracts.BacktestRequest{}, err
	}

	req := contracts.BacktestRequest{
		StartDate:      p.StartDate,
		EndDate:        p.EndDate,
		InitialCapital: p.InitialCapital,
		Mode:           p.Mode,
		Threshold:      p.Threshold,
		PeriodicDays:   p.PeriodicDays,
		FeeRate:        detail.Portfolio.FeeRate,
		BenchmarkCode:  detail.Portfolio.BenchmarkCode,
		LotSize:        p.LotSize,
	}
	if p.FeeRate != nil {
		req.FeeRate = *p.FeeRate
	}
	if p.BenchmarkCode != "" {
		req.BenchmarkCode = p.BenchmarkCode
	}

	if p.FromInception {
		req.Versions, err = s.schedules.VersionSchedule(ctx, portfolioID)
		if err != nil {
			return req, err
		}
		return req, nil
	}

	if detail.ActiveVersion == nil {
		return req, contracts.InvalidInput("portfolio_id", "portfolio %d has no active version", portfolioID)
	}
	req.Versions = []contracts.VersionTargets{{
		VersionNo:     detail.ActiveVersion.VersionNo,
		EffectiveDate: p.StartDate,
		Targets:       detail.ActiveTargets,
	}}
	return req, nil
}

// Run validates req, serves a cached result when one exists, and otherwise simulates
func (s *Service) Run(ctx context.Context, req contracts.BacktestRequest) (*contracts.BacktestResult, error) {
	if err := Validate(&req); err != nil {
		return nil, err
	}

	hash, err := scenario.Hash(req)
	if err != nil {
		return nil, err
	}
	key := redis.BacktestKey(hash)

	var cached contracts.BacktestResult
	if hit, err := s.cache.Get(ctx, key, &cached); err != nil {
		s.logger.WithError(err).WithField("key", key).Warn("Backtest cache read failed")
	} else if hit {
		s.logger.WithField("run_id", cached.RunID).Debug("Backtest served from cache")
		return &cached, nil
	}

	history, err := market.LoadHistory(ctx, s.history, req.Codes(), req.StartDate.Add(-lookback), req.EndDate)
	if err != nil {
		return nil, err
	}

	result, err := s.engine.Run(ctx, req, history)
	if err != nil {
		return nil, err
	}

	if err := s.cache.Set(ctx, key, result, s.ttl); err != nil {
		s.logger.WithError(err).WithField("key", key).Warn("Backtest cache write failed")
	}
	return result, nil
}
