package backtest

import (
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/wonny/fundfolio/backend/internal/contracts"
	"github.com/wonny/fundfolio/backend/internal/rebalance"
)

// simulation is the per-run state of one backtest
type simulation struct {
	req     contracts.BacktestRequest
	trigger trigger
	book    *book
	tapes   map[string]*tape
	bench   *tape

	version       int // index into req.Versions
	lastRebalance int

	benchBase float64
	navSum    float64
	navCount  int

	summary   contracts.RebalanceSummary
	series    contracts.Series
	rebalDays []time.Time
	trades    []contracts.TradeLogEntry
	notes     []contracts.DataQualityNote
}

func newSimulation(req contracts.BacktestRequest, history contracts.PriceHistory) *simulation {
	s := &simulation{
		req: req,
		trigger: trigger{
			mode:         req.Mode,
			threshold:    req.Threshold,
			periodicDays: req.PeriodicDays,
		},
		book:    newBook(req.InitialCapital),
		tapes:   make(map[string]*tape),
		version: -1,
	}
	for _, v := range req.Versions {
		for _, t := range v.Targets {
			if _, ok := s.tapes[t.Code]; !ok {
				s.tapes[t.Code] = newTape(history[t.Code])
			}
		}
	}
	if req.BenchmarkCode != "" {
		s.bench = newTape(history[req.BenchmarkCode])
	}
	return s
}

// activeVersion is the last version effective on or before day.
// Days before the first effective date use the first version.
func (s *simulation) activeVersion(day time.Time) int {
	idx := 0
	for i, v := range s.req.Versions {
		if !dayKey(v.EffectiveDate).After(day) {
			idx = i
		}
	}
	return idx
}

// mark returns the day's price per code, carrying the last close forward
func (s *simulation) mark(day time.Time, targets contracts.TargetSet) map[string]float64 {
	weights := targets.Weights()
	prices := make(map[string]float64, len(s.tapes))

	codes := make([]string, 0, len(s.tapes))
	for code := range s.tapes {
		codes = append(codes, code)
	}
	sort.Strings(codes)

	for _, code := range codes {
		price, exact, ok := s.tapes[code].at(day)
		_, held := s.book.shares[code]
		_, targeted := weights[code]
		switch {
		case ok:
			prices[code] = price
			if !exact && (held || targeted) {
				s.note(day, code, "price carried forward from last close")
			}
		case targeted:
			s.note(day, code, "no price yet; target weight held as cash")
		}
	}
	return prices
}

func (s *simulation) step(i int, day time.Time) error {
	version := s.activeVersion(day)
	changed := version != s.version
	s.version = version
	targets := s.req.Versions[version].Targets

	prices := s.mark(day, targets)

	var nav float64
	if i == 0 {
		s.allocate(day, prices, targets)
		s.rebalanced(i, day)
		nav = s.req.InitialCapital
	} else {
		nav = s.book.nav(prices)
		forced := changed || s.trigger.scheduled(i, s.lastRebalance)
		if forced || s.trigger.drifting(maxDeviation(s.book, prices, targets, nav)) {
			trades, err := s.rebalance(day, prices, targets)
			if err != nil {
				return err
			}
			if forced || trades > 0 {
				s.rebalanced(i, day)
			}
			nav = s.book.nav(prices)
		}
	}

	s.record(day, nav)
	return nil
}

// allocate is the day-0 buy-only allocation of initial capital
func (s *simulation) allocate(day time.Time, prices map[string]float64, targets contracts.TargetSet) {
	weights := targets.Weights()
	codes := targets.Codes()
	for _, code := range codes {
		price, ok := prices[code]
		if !ok {
			continue
		}
		notional := s.req.InitialCapital * weights[code] / (1 + s.req.FeeRate)
		units := floorLot(notional/price, s.req.LotSize)
		if units <= 0 {
			continue
		}
		amount, fee := s.book.buy(code, units, price, s.req.FeeRate)
		s.trade(day, code, contracts.ActionBuy, units, price, amount, fee)
	}
}

// rebalance trades the book back to targets with the live order generator:
// no hold band, sells first, then buys scaled to the cash on hand.
// It returns the number of trades placed.
func (s *simulation) rebalance(day time.Time, prices map[string]float64, targets contracts.TargetSet) (int, error) {
	positions := make(map[string]contracts.Position, len(s.book.shares))
	for code, n := range s.book.shares {
		positions[code] = contracts.Position{Code: code, Shares: decimal.NewFromFloat(n)}
	}
	decPrices := make(map[string]decimal.Decimal, len(prices))
	for code, p := range prices {
		decPrices[code] = decimal.NewFromFloat(p)
	}

	plan, err := rebalance.Generate(rebalance.GenerateInput{
		Positions:         positions,
		Prices:            decPrices,
		Scope:             s.book.held(),
		Targets:           targets,
		FeeRate:           s.req.FeeRate,
		MinDeviation:      0,
		LotSize:           decimal.NewFromFloat(s.req.LotSize),
		CapitalAdjustment: decimal.NewFromFloat(math.Max(0, s.book.cash)),
	})
	if err != nil {
		return 0, fmt.Errorf("failed to plan rebalance: %w", err)
	}

	before := s.summary.TradeCount
	var buys []contracts.RebalanceOrder
	for _, o := range plan.Orders {
		switch o.Action {
		case contracts.ActionSell:
			units := o.DeltaShares.Neg().InexactFloat64()
			price := prices[o.FundCode]
			amount, fee := s.book.sell(o.FundCode, units, price, s.req.FeeRate)
			s.trade(day, o.FundCode, contracts.ActionSell, units, price, amount, fee)
		case contracts.ActionBuy:
			buys = append(buys, o)
		}
	}

	need := 0.0
	for _, o := range buys {
		need += o.TradeAmount.InexactFloat64() * (1 + s.req.FeeRate)
	}
	scale := 1.0
	if need > s.book.cash {
		scale = math.Max(0, s.book.cash) / need
	}
	for _, o := range buys {
		price := prices[o.FundCode]
		units := floorLot(o.DeltaShares.InexactFloat64()*scale, s.req.LotSize)
		if units <= 0 {
			continue
		}
		amount, fee := s.book.buy(o.FundCode, units, price, s.req.FeeRate)
		s.trade(day, o.FundCode, contracts.ActionBuy, units, price, amount, fee)
	}
	return s.summary.TradeCount - before, nil
}

func (s *simulation) rebalanced(i int, day time.Time) {
	s.lastRebalance = i
	s.summary.RebalanceCount++
	s.rebalDays = append(s.rebalDays, day)
}

func (s *simulation) trade(day time.Time, code string, action contracts.OrderAction, units, price, amount, fee float64) {
	s.summary.TradeCount++
	s.summary.Turnover += amount
	s.summary.FeeTotal += fee
	s.trades = append(s.trades, contracts.TradeLogEntry{
		Date:   day,
		Code:   code,
		Action: action,
		Shares: units,
		Price:  price,
		Amount: amount,
		Fee:    fee,
	})
}

func (s *simulation) note(day time.Time, code, reason string) {
	s.notes = append(s.notes, contracts.DataQualityNote{Date: day, Code: code, Reason: reason})
}

// record appends the day's strategy and benchmark points
func (s *simulation) record(day time.Time, nav float64) {
	s.navSum += nav
	s.navCount++
	s.series.Strategy = append(s.series.Strategy, contracts.ReturnPoint{
		Date:   day,
		Return: nav/s.req.InitialCapital - 1,
	})

	if s.bench == nil {
		return
	}
	price, exact, ok := s.bench.at(day)
	if !ok {
		s.note(day, s.req.BenchmarkCode, "benchmark has no price yet")
		return
	}
	if !exact {
		s.note(day, s.req.BenchmarkCode, "benchmark price carried forward from last close")
	}
	if s.benchBase == 0 {
		s.benchBase = price
	}
	s.series.Benchmark = append(s.series.Benchmark, contracts.ReturnPoint{
		Date:   day,
		Return: price/s.benchBase - 1,
	})
}

func (s *simulation) result(runID string) *contracts.BacktestResult {
	finalNAV := s.req.InitialCapital
	if n := len(s.series.Strategy); n > 0 {
		finalNAV = s.req.InitialCapital * (1 + s.series.Strategy[n-1].Return)
	}
	profit := finalNAV - s.req.InitialCapital
	profitRate := profit / s.req.InitialCapital

	summary := s.summary
	if s.navCount > 0 && s.navSum > 0 {
		summary.TurnoverRatio = summary.Turnover / (s.navSum / float64(s.navCount))
	}

	result := &contracts.BacktestResult{
		RunID:  runID,
		Series: s.series,
		Capital: contracts.Capital{
			Principal:   s.req.InitialCapital,
			MarketValue: finalNAV,
			Profit:      profit,
			ProfitRate:  &profitRate,
		},
		RebalanceSummary: summary,
		RebalanceDates:   s.rebalDays,
		Trades:           s.trades,
		Notes:            s.notes,
	}
	if result.Trades == nil {
		result.Trades = []contracts.TradeLogEntry{}
	}
	if result.Notes == nil {
		result.Notes = []contracts.DataQualityNote{}
	}
	summarize(result)
	return result
}
