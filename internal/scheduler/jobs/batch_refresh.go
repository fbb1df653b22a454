package jobs

import (
	"context"
	"fmt"

	"github.com/wonny/fundfolio/backend/pkg/logger"
)

// BatchRefresher is satisfied by *rebalance.Manager
type BatchRefresher interface {
	RefreshOpen(ctx context.Context) (refreshed int, failed int, err error)
}

// BatchRefreshJob re-prices every open batch after the nightly NAV sync
type BatchRefreshJob struct {
	manager  BatchRefresher
	schedule string
	logger   *logger.Logger
}

// NewBatchRefreshJob creates the batch refresh job
func NewBatchRefreshJob(manager BatchRefresher, schedule string, log *logger.Logger) *BatchRefreshJob {
	return &BatchRefreshJob{
		manager:  manager,
		schedule: schedule,
		logger:   log,
	}
}

// Name returns the job name
func (j *BatchRefreshJob) Name() string {
	return "batch_refresh"
}

// Schedule returns the cron schedule
func (j *BatchRefreshJob) Schedule() string {
	return j.schedule
}

// Run refreshes open batches
func (j *BatchRefreshJob) Run(ctx context.Context) error {
	refreshed, failed, err := j.manager.RefreshOpen(ctx)
	if err != nil {
		return fmt.Errorf("refresh open batches: %w", err)
	}
	if failed > 0 {
		return fmt.Errorf("refresh open batches: %d failed, %d refreshed", failed, refreshed)
	}
	if refreshed > 0 {
		j.logger.WithField("refreshed", refreshed).Info("Open batches refreshed")
	}
	return nil
}
