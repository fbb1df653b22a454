package navfeed

import (
	"context"
	"time"

	"github.com/wonny/fundfolio/backend/internal/contracts"
	"github.com/wonny/fundfolio/backend/pkg/logger"
)

// PriceStore is where fetched closes land
type PriceStore interface {
	Upsert(ctx context.Context, code string, points []contracts.PricePoint) (int, error)
	LastDate(ctx context.Context, code string) (time.Time, error)
}

// Fetcher is satisfied by *Client
type Fetcher interface {
	History(ctx context.Context, code string, from time.Time) ([]contracts.PricePoint, error)
}

// SyncResult summarizes one sync run
type SyncResult struct {
	Codes  int      `json:"codes"`
	Saved  int      `json:"saved"`
	Failed []string `json:"failed,omitempty"`
}

// Syncer pulls feed history into the price store
type Syncer struct {
	fetcher Fetcher
	store   PriceStore
	logger  *logger.Logger
}

// NewSyncer creates a syncer
func NewSyncer(fetcher Fetcher, store PriceStore, log *logger.Logger) *Syncer {
	return &Syncer{fetcher: fetcher, store: store, logger: log}
}

// Sync fetches each code from its last stored date (or from, when nothing is stored
// or from is later). One failing code does not stop the others.
func (s *Syncer) Sync(ctx context.Context, codes []string, from time.Time) (*SyncResult, error) {
	result := &SyncResult{Codes: len(codes)}

	for _, code := range codes {
		if err := ctx.Err(); err != nil {
			return result, err
		}

		start := from
		last, err := s.store.LastDate(ctx, code)
		if err != nil {
			s.logger.WithError(err).WithField("code", code).Warn("Failed to read last nav date")
			result.Failed = append(result.Failed, code)
			continue
		}
		if !last.IsZero() && last.After(start) {
			start = last
		}

		points, err := s.fetcher.History(ctx, code, start)
		if err != nil {
			s.logger.WithError(err).WithField("code", code).Warn("Nav fetch failed")
			result.Failed = append(result.Failed, code)
			continue
		}

		n, err := s.store.Upsert(ctx, code, points)
		if err != nil {
			s.logger.WithError(err).WithField("code", code).Warn("Nav save failed")
			result.Failed = append(result.Failed, code)
			continue
		}
		result.Saved += n
	}

	s.logger.WithFields(map[string]interface{}{
		"codes":  result.Codes,
		"saved":  result.Saved,
		"failed": len(result.Failed),
	}).Info("Nav sync finished")

	return result, nil
}
