package commands

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/wonny/fundfolio/backend/internal/backtest"
	"github.com/wonny/fundfolio/backend/internal/contracts"
	"github.com/wonny/fundfolio/backend/internal/scenario"
)

var backtestCmd = &cobra.Command{
	Use:   "backtest",
	Short: "백테스트 실행",
	Long: `목표 비중 포트폴리오를 과거 기준가로 시뮬레이션합니다.

Subcommands:
  run   시나리오 파일 또는 저장된 포트폴리오로 백테스트 실행`,
}

var backtestRunCmd = &cobra.Command{
	Use:   "run",
	Short: "백테스트 실행",
	Long: `시나리오(YAML) 파일 또는 저장된 포트폴리오로 백테스트를 실행합니다.

Examples:
  go run ./cmd/folio backtest run --scenario scenarios/balanced.yaml
  go run ./cmd/folio backtest run --portfolio 1 --from 2023-01-02 --to 2024-12-30 --mode threshold --threshold 0.05
  go run ./cmd/folio backtest run --portfolio 1 --from-inception --json`,
	RunE: runBacktest,
}

var (
	btScenario      string
	btPortfolio     int64
	btFrom          string
	btTo            string
	btCapital       float64
	btMode          string
	btThreshold     float64
	btPeriodicDays  int
	btFee           float64
	btLot           float64
	btBenchmark     string
	btFromInception bool
	btTrades        bool
)

func init() {
	rootCmd.AddCommand(backtestCmd)
	backtestCmd.AddCommand(backtestRunCmd)

	f := backtestRunCmd.Flags()
	f.StringVar(&btScenario, "scenario", "", "시나리오 YAML 파일")
	f.Int64Var(&btPortfolio, "portfolio", 0, "저장된 포트폴리오 ID")
	f.StringVar(&btFrom, "from", "", "시작일 (YYYY-MM-DD)")
	f.StringVar(&btTo, "to", "", "종료일 (YYYY-MM-DD)")
	f.Float64Var(&btCapital, "capital", 10_000_000, "초기 자본")
	f.StringVar(&btMode, "mode", string(contracts.ModeNone), "리밸런싱 모드 (none|threshold|periodic|hybrid)")
	f.Float64Var(&btThreshold, "threshold", 0, "편차 임계값 (0.05 = 5%p)")
	f.IntVar(&btPeriodicDays, "periodic-days", 0, "주기 (거래일)")
	f.Float64Var(&btFee, "fee", -1, "수수료율 (기본: 포트폴리오 설정)")
	f.Float64Var(&btLot, "lot", 0, "최소 거래 단위 (0 = 소수 단위)")
	f.StringVar(&btBenchmark, "benchmark", "", "벤치마크 코드 (기본: 포트폴리오 설정)")
	f.BoolVar(&btFromInception, "from-inception", false, "모든 버전을 적용일 기준으로 재생")
	f.BoolVar(&btTrades, "trades", false, "체결 내역 출력")
}

func runBacktest(cmd *cobra.Command, args []string) error {
	if (btScenario == "") == (btPortfolio == 0) {
		return fmt.Errorf("exactly one of --scenario or --portfolio is required")
	}

	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()

	ctx := cmd.Context()

	var req contracts.BacktestRequest
	if btScenario != "" {
		sc, _, err := scenario.Load(btScenario)
		if err != nil {
			return err
		}
		var warnings []contracts.Warning
		req, warnings, err = sc.Request()
		if err != nil {
			return err
		}
		for _, w := range warnings {
			PrintWarning(fmt.Sprintf("%s: %s", w.Field, w.Reason))
		}
	} else {
		params, err := portfolioParams()
		if err != nil {
			return err
		}
		req, err = a.backtests.PortfolioRequest(ctx, btPortfolio, params)
		if err != nil {
			return err
		}
	}

	result, err := a.backtests.Run(ctx, req)
	if err != nil {
		return err
	}

	if jsonOutput {
		return PrintJSON(result)
	}
	printBacktest(req, result)
	return nil
}

func portfolioParams() (backtest.PortfolioParams, error) {
	start, err := parseDay("from", btFrom)
	if err != nil {
		return backtest.PortfolioParams{}, err
	}
	end, err := parseDay("to", btTo)
	if err != nil {
		return backtest.PortfolioParams{}, err
	}
	p := backtest.PortfolioParams{
		StartDate:      start,
		EndDate:        end,
		InitialCapital: btCapital,
		Mode:           contracts.RebalanceMode(btMode),
		Threshold:      btThreshold,
		PeriodicDays:   btPeriodicDays,
		BenchmarkCode:  btBenchmark,
		LotSize:        btLot,
		FromInception:  btFromInception,
	}
	if btFee >= 0 {
		fee := btFee
		p.FeeRate = &fee
	}
	return p, nil
}

func printBacktest(req contracts.BacktestRequest, r *contracts.BacktestResult) {
	PrintHeader("Backtest " + r.RunID)
	PrintKeyValue("Period", req.StartDate.Format(dateLayout)+" ~ "+req.EndDate.Format(dateLayout), 14)
	PrintKeyValue("Mode", string(req.Mode), 14)
	PrintKeyValue("Benchmark", req.BenchmarkCode, 14)
	PrintSeparator()
	PrintKeyValue("Principal", fmt.Sprintf("%.2f", r.Capital.Principal), 14)
	PrintKeyValue("Market value", fmt.Sprintf("%.2f", r.Capital.MarketValue), 14)
	PrintKeyValue("Profit", fmt.Sprintf("%.2f (%s)", r.Capital.Profit, pct(r.Capital.ProfitRate)), 14)
	PrintSeparator()

	widths := []int{18, 12, 12}
	PrintTableHeader([]string{"Metric", "Strategy", "Benchmark"}, widths)
	rows := []struct {
		name    string
		s, b    *float64
		asRatio bool
	}{
		{"Annual return", r.Metrics.AnnualReturn, r.BenchmarkMetrics.AnnualReturn, true},
		{"Volatility", r.Metrics.AnnualVolatility, r.BenchmarkMetrics.AnnualVolatility, true},
		{"Max drawdown", r.Metrics.MaxDrawdown, r.BenchmarkMetrics.MaxDrawdown, true},
		{"Sharpe", r.Metrics.Sharpe, r.BenchmarkMetrics.Sharpe, false},
		{"Calmar", r.Metrics.Calmar, r.BenchmarkMetrics.Calmar, false},
		{"Alpha", r.Metrics.Alpha, nil, true},
		{"Beta", r.Metrics.Beta, nil, false},
		{"Info ratio", r.Metrics.InformationRatio, nil, false},
	}
	for _, row := range rows {
		format := num
		if row.asRatio {
			format = pct
		}
		PrintTableRow([]string{row.name, format(row.s), format(row.b)}, widths)
	}
	PrintSeparator()

	s := r.RebalanceSummary
	PrintKeyValue("Rebalances", strconv.Itoa(s.RebalanceCount), 14)
	PrintKeyValue("Trades", strconv.Itoa(s.TradeCount), 14)
	PrintKeyValue("Turnover", fmt.Sprintf("%.2f (x%.2f)", s.Turnover, s.TurnoverRatio), 14)
	PrintKeyValue("Fees", fmt.Sprintf("%.2f", s.FeeTotal), 14)

	if btTrades && len(r.Trades) > 0 {
		PrintSeparator()
		tw := []int{10, 8, 4, 14, 12, 14}
		PrintTableHeader([]string{"Date", "Code", "Side", "Shares", "Price", "Amount"}, tw)
		for _, t := range r.Trades {
			PrintTableRow([]string{
				t.Date.Format(dateLayout),
				t.Code,
				string(t.Action),
				fmt.Sprintf("%.4f", t.Shares),
				fmt.Sprintf("%.4f", t.Price),
				fmt.Sprintf("%.2f", t.Amount),
			}, tw)
		}
	}

	if len(r.Notes) > 0 {
		PrintSeparator()
		PrintWarning(fmt.Sprintf("%d data quality notes (use --json for details)", len(r.Notes)))
	}
	PrintDoubleSeparator()
}
