package navfeed

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wonny/fundfolio/backend/internal/contracts"
	"github.com/wonny/fundfolio/backend/pkg/httputil"
	"github.com/wonny/fundfolio/backend/pkg/logger"
)

func TestParseRows(t *testing.T) {
	tests := []struct {
		name        string
		rows        []navRow
		wantCount   int
		wantSkipped int
	}{
		{
			name:      "numbers and strings",
			rows:      []navRow{{Date: "2024-01-03", NAV: "1.01"}, {Date: "2024-01-02", NAV: "1"}},
			wantCount: 2,
		},
		{
			name:        "bad date and bad nav",
			rows:        []navRow{{Date: "20240102", NAV: "1"}, {Date: "2024-01-02", NAV: "abc"}, {Date: "2024-01-03", NAV: "0"}},
			wantCount:   0,
			wantSkipped: 3,
		},
		{
			name:      "duplicate dates collapse",
			rows:      []navRow{{Date: "2024-01-02", NAV: "1"}, {Date: "2024-01-02", NAV: "1.5"}},
			wantCount: 1,
		},
		{
			name: "empty",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			points, skipped := parseRows(tt.rows)
			assert.Len(t, points, tt.wantCount)
			assert.Equal(t, tt.wantSkipped, skipped)
			for i := 1; i < len(points); i++ {
				assert.True(t, points[i-1].Date.Before(points[i].Date))
			}
		})
	}

	points, _ := parseRows([]navRow{{Date: "2024-01-02", NAV: "1"}, {Date: "2024-01-02", NAV: "1.5"}})
	assert.Equal(t, 1.5, points[0].Price)
}

func TestClientHistory(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/funds/F100/nav" {
			http.NotFound(w, r)
			return
		}
		assert.Equal(t, "2024-01-01", r.URL.Query().Get("from"))
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode([]map[string]interface{}{
			{"date": "2024-01-02", "nav": 1.0},
			{"date": "2024-01-03", "nav": "1.02"},
		})
	}))
	defer srv.Close()

	c := NewClient(httputil.New(logger.NewNop(), 5*time.Second).DisableRetry(), srv.URL+"/", 100, logger.NewNop())

	points, err := c.History(context.Background(), "F100", time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	require.Len(t, points, 2)
	assert.Equal(t, 1.02, points[1].Price)

	_, err = c.History(context.Background(), "NOPE", time.Now())
	var statusErr *httputil.StatusError
	require.ErrorAs(t, err, &statusErr)
	assert.Equal(t, http.StatusNotFound, statusErr.StatusCode)
}

type stubFetcher struct {
	from map[string]time.Time
}

func (s *stubFetcher) History(_ context.Context, code string, from time.Time) ([]contracts.PricePoint, error) {
	if code == "BROKEN" {
		return nil, errors.New("feed down")
	}
	s.from[code] = from
	return []contracts.PricePoint{{Date: from, Price: 1}}, nil
}

type stubStore struct {
	last  map[string]time.Time
	saved map[string]int
}

func (s *stubStore) Upsert(_ context.Context, code string, points []contracts.PricePoint) (int, error) {
	s.saved[code] += len(points)
	return len(points), nil
}

func (s *stubStore) LastDate(_ context.Context, code string) (time.Time, error) {
	return s.last[code], nil
}

func TestSyncerResumesFromLastDate(t *testing.T) {
	from := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	last := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)

	fetcher := &stubFetcher{from: map[string]time.Time{}}
	store := &stubStore{last: map[string]time.Time{"A": last}, saved: map[string]int{}}
	syncer := NewSyncer(fetcher, store, logger.NewNop())

	res, err := syncer.Sync(context.Background(), []string{"A", "B", "BROKEN"}, from)
	require.NoError(t, err)

	assert.Equal(t, 3, res.Codes)
	assert.Equal(t, 2, res.Saved)
	assert.Equal(t, []string{"BROKEN"}, res.Failed)
	assert.Equal(t, last, fetcher.from["A"])
	assert.Equal(t, from, fetcher.from["B"])
}

func TestSyncerStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	syncer := NewSyncer(&stubFetcher{from: map[string]time.Time{}}, &stubStore{saved: map[string]int{}}, logger.NewNop())
	_, err := syncer.Sync(ctx, []string{"A"}, time.Now())
	assert.ErrorIs(t, err, context.Canceled)
}
