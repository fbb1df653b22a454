package commands

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/wonny/fundfolio/backend/internal/backtest"
	"github.com/wonny/fundfolio/backend/internal/external/navfeed"
	"github.com/wonny/fundfolio/backend/internal/ledger"
	"github.com/wonny/fundfolio/backend/internal/lock"
	"github.com/wonny/fundfolio/backend/internal/market"
	"github.com/wonny/fundfolio/backend/internal/performance"
	"github.com/wonny/fundfolio/backend/internal/rebalance"
	"github.com/wonny/fundfolio/backend/internal/strategy"
	"github.com/wonny/fundfolio/backend/pkg/config"
	"github.com/wonny/fundfolio/backend/pkg/database"
	"github.com/wonny/fundfolio/backend/pkg/httputil"
	"github.com/wonny/fundfolio/backend/pkg/logger"
	"github.com/wonny/fundfolio/backend/pkg/redis"
)

const (
	cachePrefix = "fundfolio"
	feedTimeout = 30 * time.Second
)

// app is the wired object graph shared by every command
type app struct {
	cfg   *config.Config
	log   *logger.Logger
	db    *database.DB
	redis *redis.Client
	cache *redis.Cache

	strategyRepo *strategy.Repository
	marketRepo   *market.Repository
	ledgerRepo   *ledger.Repository

	strategies  *strategy.Service
	manager     *rebalance.Manager
	performance *performance.Service
	backtests   *backtest.Service
	syncer      *navfeed.Syncer
}

// newApp loads config, connects to postgres and redis, and wires the services
func newApp() (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if verbose {
		cfg.LogLevel = "debug"
	}
	log := logger.New(cfg)

	db, err := database.New(cfg)
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}

	rdb, err := redis.New(cfg)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("connect to redis: %w", err)
	}

	a := &app{
		cfg:          cfg,
		log:          log,
		db:           db,
		redis:        rdb,
		cache:        redis.NewCache(rdb, cachePrefix),
		strategyRepo: strategy.NewRepository(db.Pool),
		marketRepo:   market.NewRepository(db.Pool),
		ledgerRepo:   ledger.NewRepository(db.Pool),
	}

	locker := lock.New(rdb, cfg.Engine.LockTTL, cfg.Engine.LockTimeout)
	prices := market.NewCachedLookup(a.marketRepo, a.cache, log)

	a.strategies = strategy.NewService(a.strategyRepo, locker, strategy.Defaults{
		Benchmark: cfg.Engine.Benchmark,
		FeeRate:   cfg.Engine.FeeRate,
	}, log)

	a.manager = rebalance.NewManager(
		rebalance.NewRepository(db.Pool),
		a.strategies,
		a.ledgerRepo,
		prices,
		locker,
		rebalance.Settings{
			MinDeviation: cfg.Engine.MinDeviation,
			LotSize:      decimal.NewFromFloat(cfg.Engine.LotSize),
		},
		log,
	)

	a.performance = performance.NewService(a.strategies, a.ledgerRepo, prices, a.marketRepo, cfg.Engine.Benchmark, log)
	a.backtests = backtest.NewService(backtest.NewEngine(log), a.strategies, a.marketRepo, a.cache, cfg.Engine.BacktestCacheTTL, log)

	feed := navfeed.NewClient(httputil.New(log, feedTimeout), cfg.NavFeed.BaseURL, cfg.NavFeed.RateLimit, log)
	a.syncer = navfeed.NewSyncer(feed, a.marketRepo, log)

	return a, nil
}

// Close releases the database pool and redis connection
func (a *app) Close() {
	if err := a.redis.Close(); err != nil {
		a.log.WithError(err).Warn("Failed to close redis")
	}
	a.db.Close()
}
