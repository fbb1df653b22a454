package performance

import (
	"sort"
	"time"

	"github.com/wonny/fundfolio/backend/internal/analytics"
	"github.com/wonny/fundfolio/backend/internal/contracts"
)

// WeightedReturns is the daily return of a portfolio held at constant weights
// and rebalanced every day. Codes with no history are dropped and the rest
// rescaled to sum 1. Missing days carry the last close forward, so a code
// contributes nothing until its second close. The first day returns 0.
func WeightedReturns(weights map[string]float64, history contracts.PriceHistory) []analytics.DailyReturn {
	closes := make(map[string]map[time.Time]float64)
	calendar := make(map[time.Time]bool)
	sum := 0.0
	for code, w := range weights {
		if w <= 0 {
			continue
		}
		for _, p := range history[code] {
			if p.Price <= 0 {
				continue
			}
			day := dayKey(p.Date)
			if closes[code] == nil {
				closes[code] = make(map[time.Time]float64)
			}
			closes[code][day] = p.Price
			calendar[day] = true
		}
		if closes[code] != nil {
			sum += w
		}
	}
	if sum <= 0 {
		return nil
	}

	days := make([]time.Time, 0, len(calendar))
	for day := range calendar {
		days = append(days, day)
	}
	sort.Slice(days, func(i, j int) bool { return days[i].Before(days[j]) })

	codes := make([]string, 0, len(closes))
	for code := range closes {
		codes = append(codes, code)
	}
	sort.Strings(codes)

	last := make(map[string]float64, len(codes))
	out := make([]analytics.DailyReturn, 0, len(days))
	for _, day := range days {
		r := 0.0
		for _, code := range codes {
			price, ok := closes[code][day]
			prev := last[code]
			if !ok {
				continue
			}
			if prev > 0 {
				r += weights[code] / sum * (price/prev - 1)
			}
			last[code] = price
		}
		out = append(out, analytics.DailyReturn{Date: day, Value: r})
	}
	return out
}

// Curve compounds daily returns into a cumulative return curve
func Curve(returns []analytics.DailyReturn) []contracts.ReturnPoint {
	curve := make([]contracts.ReturnPoint, 0, len(returns))
	nav := 1.0
	for _, r := range returns {
		nav *= 1 + r.Value
		curve = append(curve, contracts.ReturnPoint{Date: r.Date, Return: nav - 1})
	}
	return curve
}

func dayKey(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
