package navfeed

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"sort"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/wonny/fundfolio/backend/internal/contracts"
	"github.com/wonny/fundfolio/backend/pkg/httputil"
	"github.com/wonny/fundfolio/backend/pkg/logger"
)

// Client fetches daily NAV history from the NAV feed
// ⭐ SSOT: 기준가 피드 API 호출은 이 클라이언트에서만
type Client struct {
	httpClient *httputil.Client
	logger     *logger.Logger
	baseURL    string
}

// NewClient creates a feed client paced at perSecond requests
func NewClient(httpClient *httputil.Client, baseURL string, perSecond int, log *logger.Logger) *Client {
	if perSecond <= 0 {
		perSecond = 1
	}
	httpClient.WithPacer(rate.NewLimiter(rate.Limit(perSecond), perSecond))

	return &Client{
		httpClient: httpClient,
		logger:     log,
		baseURL:    strings.TrimRight(baseURL, "/"),
	}
}

// navRow is one feed record; nav may arrive as a number or a string
type navRow struct {
	Date string      `json:"date"`
	NAV  json.Number `json:"nav"`
}

// History returns ascending closes of code from the given date onward
func (c *Client) History(ctx context.Context, code string, from time.Time) ([]contracts.PricePoint, error) {
	fullURL := fmt.Sprintf("%s/funds/%s/nav?from=%s",
		c.baseURL, url.PathEscape(code), from.Format("2006-01-02"))

	var rows []navRow
	if err := c.httpClient.GetJSON(ctx, fullURL, &rows); err != nil {
		return nil, fmt.Errorf("failed to fetch nav of %s: %w", code, err)
	}

	points, skipped := parseRows(rows)

	c.logger.WithFields(map[string]interface{}{
		"code":    code,
		"count":   len(points),
		"skipped": skipped,
	}).Debug("Fetched nav history")

	return points, nil
}

// parseRows converts feed records, dropping malformed or non-positive ones
func parseRows(rows []navRow) ([]contracts.PricePoint, int) {
	points := make([]contracts.PricePoint, 0, len(rows))
	skipped := 0
	seen := make(map[time.Time]int, len(rows))

	for _, row := range rows {
		date, err := time.Parse("2006-01-02", strings.TrimSpace(row.Date))
		if err != nil {
			skipped++
			continue
		}
		nav, err := row.NAV.Float64()
		if err != nil || nav <= 0 {
			skipped++
			continue
		}
		// later duplicates win
		if i, ok := seen[date]; ok {
			points[i].Price = nav
			continue
		}
		seen[date] = len(points)
		points = append(points, contracts.PricePoint{Date: date, Price: nav})
	}

	sort.Slice(points, func(i, j int) bool { return points[i].Date.Before(points[j].Date) })
	return points, skipped
}
