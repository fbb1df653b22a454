package jobs

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/wonny/fundfolio/backend/internal/external/navfeed"
	"github.com/wonny/fundfolio/backend/pkg/logger"
)

// CodeSource lists every code some portfolio tracks
type CodeSource interface {
	AllScopeCodes(ctx context.Context) ([]string, error)
}

// NavSyncer is satisfied by *navfeed.Syncer
type NavSyncer interface {
	Sync(ctx context.Context, codes []string, from time.Time) (*navfeed.SyncResult, error)
}

// NavSyncJob pulls fresh NAVs for every tracked code
// ⭐ SSOT: 기준가 수집 스케줄은 이 Job에서만
type NavSyncJob struct {
	codes    CodeSource
	syncer   NavSyncer
	schedule string
	lookback time.Duration
	logger   *logger.Logger
	now      func() time.Time
}

// NewNavSyncJob creates the nav sync job. Codes with nothing stored are
// fetched from lookback before now; others resume from their last date.
func NewNavSyncJob(codes CodeSource, syncer NavSyncer, schedule string, lookback time.Duration, log *logger.Logger) *NavSyncJob {
	return &NavSyncJob{
		codes:    codes,
		syncer:   syncer,
		schedule: schedule,
		lookback: lookback,
		logger:   log,
		now:      time.Now,
	}
}

// Name returns the job name
func (j *NavSyncJob) Name() string {
	return "nav_sync"
}

// Schedule returns the cron schedule
func (j *NavSyncJob) Schedule() string {
	return j.schedule
}

// Run syncs every tracked code; any failed code fails the run so it is retried
func (j *NavSyncJob) Run(ctx context.Context) error {
	codes, err := j.codes.AllScopeCodes(ctx)
	if err != nil {
		return fmt.Errorf("list codes: %w", err)
	}
	if len(codes) == 0 {
		j.logger.Debug("No tracked codes to sync")
		return nil
	}

	result, err := j.syncer.Sync(ctx, codes, j.now().Add(-j.lookback))
	if err != nil {
		return fmt.Errorf("sync navs: %w", err)
	}
	if len(result.Failed) > 0 {
		return fmt.Errorf("sync navs: %d of %d codes failed (%s)",
			len(result.Failed), result.Codes, strings.Join(result.Failed, ","))
	}
	return nil
}
