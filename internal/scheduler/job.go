package scheduler

import (
	"context"
	"time"
)

// Job is one cron-driven unit of work
// ⭐ SSOT: 스케줄 작업 인터페이스는 여기서만 정의
type Job interface {
	Name() string

	// Run executes the job once; a returned error triggers a retry
	Run(ctx context.Context) error

	// Schedule is a cron expression with seconds, e.g. "0 30 21 * * 1-5"
	Schedule() string
}

// JobResult is one finished run including its retries
type JobResult struct {
	JobName   string        `json:"job_name"`
	StartTime time.Time     `json:"start_time"`
	EndTime   time.Time     `json:"end_time"`
	Duration  time.Duration `json:"duration"`
	Attempts  int           `json:"attempts"`
	Success   bool          `json:"success"`
	Error     string        `json:"error,omitempty"`
}

// DefaultHistoryLimit bounds the results kept per job
const DefaultHistoryLimit = 100

// JobHistory keeps the most recent results of one job
type JobHistory struct {
	limit   int
	results []JobResult
}

// NewJobHistory creates a history bounded to limit results
func NewJobHistory(limit int) *JobHistory {
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}
	return &JobHistory{limit: limit}
}

// Add records a result, dropping the oldest beyond the limit
func (h *JobHistory) Add(result JobResult) {
	h.results = append(h.results, result)
	if len(h.results) > h.limit {
		h.results = append([]JobResult(nil), h.results[len(h.results)-h.limit:]...)
	}
}

// Len is the number of results kept
func (h *JobHistory) Len() int {
	return len(h.results)
}

// Latest returns up to n most recent results, oldest first
func (h *JobHistory) Latest(n int) []JobResult {
	if n > len(h.results) {
		n = len(h.results)
	}
	out := make([]JobResult, n)
	copy(out, h.results[len(h.results)-n:])
	return out
}

// Failed returns every failed result kept
func (h *JobHistory) Failed() []JobResult {
	failed := make([]JobResult, 0)
	for _, r := range h.results {
		if !r.Success {
			failed = append(failed, r)
		}
	}
	return failed
}

// SuccessRate is in [0, 1]; an empty history reports 0
func (h *JobHistory) SuccessRate() float64 {
	if len(h.results) == 0 {
		return 0
	}
	return float64(len(h.results)-len(h.Failed())) / float64(len(h.results))
}
