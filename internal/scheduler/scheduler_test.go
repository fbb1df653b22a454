package scheduler

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wonny/fundfolio/backend/pkg/logger"
)

// flakyJob fails its first failures runs
type flakyJob struct {
	name     string
	failures int32
	calls    atomic.Int32
}

func (j *flakyJob) Name() string { return j.name }
func (j *flakyJob) Schedule() string { return "0 0 3 * * *" }

func (j *flakyJob) Run(context.Context) error {
	if j.calls.Add(1) <= j.failures {
		return errors.New("upstream down")
	}
	return nil
}

func newTestScheduler(opts ...Option) *Scheduler {
	return New(logger.NewNop(), append([]Option{WithRetry(2, time.Millisecond)}, opts...)...)
}

func TestRunJob_RetriesUntilSuccess(t *testing.T) {
	s := newTestScheduler()
	job := &flakyJob{name: "nav_sync", failures: 2}
	require.NoError(t, s.AddJob(job))

	result, err := s.RunJob(context.Background(), "nav_sync")
	require.NoError(t, err)

	assert.True(t, result.Success)
	assert.Equal(t, 3, result.Attempts)
	assert.Empty(t, result.Error)
	assert.Equal(t, int32(3), job.calls.Load())
}

func TestRunJob_GivesUp(t *testing.T) {
	s := newTestScheduler()
	job := &flakyJob{name: "batch_refresh", failures: 10}
	require.NoError(t, s.AddJob(job))

	result, err := s.RunJob(context.Background(), "batch_refresh")
	require.NoError(t, err)

	assert.False(t, result.Success)
	assert.Equal(t, 3, result.Attempts, "one try plus two retries")
	assert.Equal(t, "upstream down", result.Error)

	stats := s.Stats()["batch_refresh"]
	assert.Equal(t, 1, stats.TotalRuns)
	assert.Equal(t, 1, stats.FailureCount)
	assert.NotNil(t, stats.LastFailure)
	assert.Nil(t, stats.LastSuccess)
}

func TestRunJob_CancelledDuringRetry(t *testing.T) {
	s := New(logger.NewNop(), WithRetry(5, time.Hour))
	job := &flakyJob{name: "nav_sync", failures: 10}
	require.NoError(t, s.AddJob(job))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	result, err := s.RunJob(ctx, "nav_sync")
	require.NoError(t, err)
	assert.False(t, result.Success)
	assert.Equal(t, 1, result.Attempts)
}

func TestAddRemoveJob(t *testing.T) {
	s := newTestScheduler()
	require.NoError(t, s.AddJob(&flakyJob{name: "b"}))
	require.NoError(t, s.AddJob(&flakyJob{name: "a"}))
	assert.Error(t, s.AddJob(&flakyJob{name: "a"}), "duplicate name")
	assert.Equal(t, []string{"a", "b"}, s.Jobs())

	require.NoError(t, s.RemoveJob("a"))
	assert.Equal(t, []string{"b"}, s.Jobs())
	assert.Error(t, s.RemoveJob("a"))

	_, err := s.RunJob(context.Background(), "a")
	assert.Error(t, err)
}

type badScheduleJob struct{ flakyJob }

func (*badScheduleJob) Schedule() string { return "every tuesday" }

func TestAddJob_BadSchedule(t *testing.T) {
	s := newTestScheduler()
	err := s.AddJob(&badScheduleJob{flakyJob{name: "x"}})
	assert.Error(t, err)
	assert.Empty(t, s.Jobs())
}

func TestHistoryIsBounded(t *testing.T) {
	s := newTestScheduler(WithHistoryLimit(3))
	require.NoError(t, s.AddJob(&flakyJob{name: "nav_sync"}))

	for i := 0; i < 5; i++ {
		_, err := s.RunJob(context.Background(), "nav_sync")
		require.NoError(t, err)
	}

	results, err := s.History("nav_sync", 10)
	require.NoError(t, err)
	assert.Len(t, results, 3)

	stats := s.Stats()["nav_sync"]
	assert.Equal(t, 3, stats.TotalRuns)
	assert.Equal(t, 1.0, stats.SuccessRate)
}

func TestJobHistory(t *testing.T) {
	h := NewJobHistory(0)
	assert.Equal(t, 0.0, h.SuccessRate())
	assert.Empty(t, h.Latest(5))

	h.Add(JobResult{JobName: "x", Success: true})
	h.Add(JobResult{JobName: "x", Success: false, Error: "boom"})
	h.Add(JobResult{JobName: "x", Success: true})
	h.Add(JobResult{JobName: "x", Success: true})

	assert.Equal(t, 4, h.Len())
	assert.InDelta(t, 0.75, h.SuccessRate(), 1e-12)
	require.Len(t, h.Failed(), 1)
	assert.Equal(t, "boom", h.Failed()[0].Error)
	assert.Len(t, h.Latest(2), 2)
}

func TestStartStop(t *testing.T) {
	s := newTestScheduler()
	require.NoError(t, s.AddJob(&flakyJob{name: "nav_sync"}))
	s.Start()
	s.Stop()
	assert.Error(t, s.ctx.Err(), "stop cancels running jobs")
}
