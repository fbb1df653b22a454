package market

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/wonny/fundfolio/backend/internal/contracts"
	"github.com/wonny/fundfolio/backend/pkg/logger"
	"github.com/wonny/fundfolio/backend/pkg/redis"
)

// CachedLookup is a read-through redis cache in front of a PriceLookup.
// Cache errors are logged and fall through to the inner lookup.
type CachedLookup struct {
	inner  contracts.PriceLookup
	cache  *redis.Cache
	ttl    time.Duration
	logger *logger.Logger
}

// NewCachedLookup wraps inner; a disabled redis client makes it a pass-through
func NewCachedLookup(inner contracts.PriceLookup, cache *redis.Cache, log *logger.Logger) *CachedLookup {
	return &CachedLookup{
		inner:  inner,
		cache:  cache,
		ttl:    redis.TTLDaily,
		logger: log,
	}
}

type cachedPrice struct {
	Price decimal.Decimal `json:"price"`
	Found bool            `json:"found"`
}

// PriceOn implements contracts.PriceLookup
func (c *CachedLookup) PriceOn(ctx context.Context, code string, date time.Time) (decimal.Decimal, bool, error) {
	key := redis.LatestPriceKey(code, date.Format("2006-01-02"))

	var hit cachedPrice
	found, err := c.cache.Get(ctx, key, &hit)
	if err != nil {
		c.logger.WithError(err).WithField("key", key).Warn("Price cache read failed")
	}
	if found && hit.Found {
		return hit.Price, true, nil
	}

	price, ok, err := c.inner.PriceOn(ctx, code, date)
	if err != nil {
		return decimal.Zero, false, err
	}
	if ok {
		// misses are not cached so a later sync is seen immediately
		if err := c.cache.Set(ctx, key, cachedPrice{Price: price, Found: true}, c.ttl); err != nil {
			c.logger.WithError(err).WithField("key", key).Warn("Price cache write failed")
		}
	}
	return price, ok, nil
}

// Invalidate drops cached lookups of code for the given dates
func (c *CachedLookup) Invalidate(ctx context.Context, code string, dates ...time.Time) error {
	keys := make([]string, len(dates))
	for i, d := range dates {
		keys[i] = redis.LatestPriceKey(code, d.Format("2006-01-02"))
	}
	return c.cache.Delete(ctx, keys...)
}
