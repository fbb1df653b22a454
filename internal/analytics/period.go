package analytics

import (
	"time"

	"github.com/wonny/fundfolio/backend/internal/contracts"
)

// PeriodReturns compounds the curve from each period start to its last point.
// The base is the last NAV on or before the period start, else the first NAV.
func PeriodReturns(curve []contracts.ReturnPoint, now time.Time) contracts.PeriodReturns {
	if len(curve) == 0 {
		return contracts.PeriodReturns{}
	}

	today := dayKey(now)
	weekday := (int(today.Weekday()) + 6) % 7 // Monday = 0
	quarterMonth := time.Month(((int(today.Month())-1)/3)*3 + 1)

	latest := 1 + curve[len(curve)-1].Return

	since := func(start time.Time) *float64 {
		base := 1 + curve[0].Return
		for _, p := range curve {
			if dayKey(p.Date).After(start) {
				break
			}
			base = 1 + p.Return
		}
		if base <= 0 {
			return nil
		}
		return ptr(latest/base - 1)
	}

	return contracts.PeriodReturns{
		Week:    since(today.AddDate(0, 0, -weekday)),
		Month:   since(time.Date(today.Year(), today.Month(), 1, 0, 0, 0, 0, time.UTC)),
		Quarter: since(time.Date(today.Year(), quarterMonth, 1, 0, 0, 0, 0, time.UTC)),
		Year:    since(today.AddDate(0, 0, -365)),
		YTD:     since(time.Date(today.Year(), 1, 1, 0, 0, 0, 0, time.UTC)),
	}
}
