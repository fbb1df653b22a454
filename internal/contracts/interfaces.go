package contracts

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// PriceLookup resolves the latest close on or before date.
// ok is false when no price exists; err is reserved for infrastructure failures.
// ⭐ SSOT: 기준가 조회 인터페이스
type PriceLookup interface {
	PriceOn(ctx context.Context, code string, date time.Time) (price decimal.Decimal, ok bool, err error)
}

// HistoryReader serves ascending daily closes in [from, to]
type HistoryReader interface {
	History(ctx context.Context, code string, from, to time.Time) ([]PricePoint, error)
}

// PositionSnapshot reads current holdings of an account restricted to codes
type PositionSnapshot interface {
	Snapshot(ctx context.Context, accountID int64, codes []string) (map[string]Position, error)
}

// Locker serializes mutations per key ("portfolio:1", "order:7")
type Locker interface {
	Acquire(ctx context.Context, key string) (release func(), err error)
}
