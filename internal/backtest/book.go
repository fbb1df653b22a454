package backtest

import (
	"math"
	"sort"
	"time"

	"github.com/wonny/fundfolio/backend/internal/contracts"
)

// tape walks one code's ascending closes forward in time
type tape struct {
	points []contracts.PricePoint
	next   int
	last   float64
	lastAt time.Time
}

func newTape(points []contracts.PricePoint) *tape {
	sorted := make([]contracts.PricePoint, 0, len(points))
	for _, p := range points {
		if p.Price > 0 && !math.IsNaN(p.Price) {
			sorted = append(sorted, p)
		}
	}
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Date.Before(sorted[j].Date) })
	return &tape{points: sorted}
}

// at advances to day and returns the last close on or before it.
// exact is false when the price was carried forward.
func (t *tape) at(day time.Time) (price float64, exact bool, ok bool) {
	for t.next < len(t.points) && !dayKey(t.points[t.next].Date).After(day) {
		t.last = t.points[t.next].Price
		t.lastAt = dayKey(t.points[t.next].Date)
		t.next++
	}
	if t.last == 0 {
		return 0, false, false
	}
	return t.last, t.lastAt.Equal(day), true
}

// book is the simulated account: shares per code plus cash
type book struct {
	shares map[string]float64
	cash   float64
}

func newBook(cash float64) *book {
	return &book{shares: make(map[string]float64), cash: cash}
}

// nav marks holdings to prices; codes without a price contribute nothing
func (b *book) nav(prices map[string]float64) float64 {
	total := b.cash
	for code, n := range b.shares {
		total += n * prices[code]
	}
	return total
}

// held returns codes with a positive position, sorted
func (b *book) held() []string {
	codes := make([]string, 0, len(b.shares))
	for code, n := range b.shares {
		if n > 0 {
			codes = append(codes, code)
		}
	}
	sort.Strings(codes)
	return codes
}

func (b *book) buy(code string, units, price, feeRate float64) (amount, fee float64) {
	amount = units * price
	fee = amount * feeRate
	b.shares[code] += units
	b.cash -= amount + fee
	return amount, fee
}

func (b *book) sell(code string, units, price, feeRate float64) (amount, fee float64) {
	if units > b.shares[code] {
		units = b.shares[code]
	}
	amount = units * price
	fee = amount * feeRate
	b.shares[code] -= units
	if b.shares[code] <= 0 {
		delete(b.shares, code)
	}
	b.cash += amount - fee
	return amount, fee
}

// floorLot truncates units to a lot multiple; lot 0 keeps fractions
func floorLot(units, lot float64) float64 {
	if lot <= 0 {
		return units
	}
	return math.Floor(units/lot+1e-9) * lot
}

func dayKey(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
