package commands

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/wonny/fundfolio/backend/internal/contracts"
)

var strategyCmd = &cobra.Command{
	Use:   "strategy",
	Short: "전략 포트폴리오 조회",
	Long: `전략 포트폴리오와 버전, 성과를 조회합니다.

Subcommands:
  list          포트폴리오 목록
  show          포트폴리오 상세 (버전 이력 포함)
  performance   계좌 기준 성과`,
}

var (
	stAccount int64
)

var strategyListCmd = &cobra.Command{
	Use:   "list",
	Short: "포트폴리오 목록",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.Close()

		var account *int64
		if stAccount > 0 {
			account = &stAccount
		}
		portfolios, err := a.strategies.ListPortfolios(cmd.Context(), account)
		if err != nil {
			return err
		}
		if jsonOutput {
			return PrintJSON(portfolios)
		}

		widths := []int{6, 24, 10, 8, 8}
		PrintTableHeader([]string{"ID", "Name", "Benchmark", "Fee", "Scope"}, widths)
		for _, p := range portfolios {
			fee := p.FeeRate
			PrintTableRow([]string{
				strconv.FormatInt(p.ID, 10),
				p.Name,
				p.BenchmarkCode,
				pct(&fee),
				strconv.Itoa(len(p.ScopeCodes)),
			}, widths)
		}
		return nil
	},
}

var strategyShowCmd = &cobra.Command{
	Use:   "show PORTFOLIO_ID",
	Short: "포트폴리오 상세",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseID(args[0])
		if err != nil {
			return err
		}
		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.Close()

		detail, err := a.strategies.GetDetail(cmd.Context(), id)
		if err != nil {
			return err
		}
		if jsonOutput {
			return PrintJSON(detail)
		}

		p := detail.Portfolio
		PrintHeader(fmt.Sprintf("Portfolio #%d %s", p.ID, p.Name))
		PrintKeyValue("Benchmark", p.BenchmarkCode, 10)
		PrintKeyValue("Scope", strings.Join(p.ScopeCodes, ", "), 10)
		for _, v := range detail.Versions {
			PrintSeparator()
			marker := ""
			if v.IsActive {
				marker = " (active)"
			}
			fmt.Printf("  v%d  effective %s%s\n", v.VersionNo, v.EffectiveDate.Format(dateLayout), marker)
			printTargets(v.Targets)
		}
		PrintDoubleSeparator()
		return nil
	},
}

var strategyPerformanceCmd = &cobra.Command{
	Use:   "performance PORTFOLIO_ID",
	Short: "계좌 기준 성과",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseID(args[0])
		if err != nil {
			return err
		}
		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.Close()

		perf, err := a.performance.ComputePerformance(cmd.Context(), id, stAccount, time.Now())
		if err != nil {
			return err
		}
		if jsonOutput {
			return PrintJSON(perf)
		}

		PrintHeader(fmt.Sprintf("Performance #%d %s (as of %s)", perf.Portfolio.ID, perf.Portfolio.Name, perf.AsOf.Format(dateLayout)))
		PrintKeyValue("Principal", fmt.Sprintf("%.2f", perf.Capital.Principal), 12)
		PrintKeyValue("Market value", fmt.Sprintf("%.2f", perf.Capital.MarketValue), 12)
		PrintKeyValue("Profit", fmt.Sprintf("%.2f (%s)", perf.Capital.Profit, pct(perf.Capital.ProfitRate)), 12)
		PrintSeparator()

		s, ac := perf.PeriodReturns.Strategy, perf.PeriodReturns.Actual
		widths := []int{10, 12, 12}
		PrintTableHeader([]string{"Period", "Strategy", "Actual"}, widths)
		PrintTableRow([]string{"1W", pct(s.Week), pct(ac.Week)}, widths)
		PrintTableRow([]string{"1M", pct(s.Month), pct(ac.Month)}, widths)
		PrintTableRow([]string{"3M", pct(s.Quarter), pct(ac.Quarter)}, widths)
		PrintTableRow([]string{"1Y", pct(s.Year), pct(ac.Year)}, widths)
		PrintTableRow([]string{"YTD", pct(s.YTD), pct(ac.YTD)}, widths)
		PrintSeparator()

		m := perf.Metrics.Strategy
		PrintKeyValue("Annual", pct(m.AnnualReturn), 12)
		PrintKeyValue("Volatility", pct(m.AnnualVolatility), 12)
		PrintKeyValue("Sharpe", num(m.Sharpe), 12)
		PrintKeyValue("Max DD", pct(m.MaxDrawdown), 12)
		printWarnings(perf.Warnings)
		PrintDoubleSeparator()
		return nil
	},
}

func printTargets(targets contracts.TargetSet) {
	for _, t := range targets {
		w := t.Weight
		fmt.Printf("      %-10s %s\n", t.Code, pct(&w))
	}
	if cash := 1 - targets.Sum(); cash > 1e-9 {
		fmt.Printf("      %-10s %s\n", "(cash)", pct(&cash))
	}
}

func init() {
	rootCmd.AddCommand(strategyCmd)
	strategyCmd.AddCommand(strategyListCmd, strategyShowCmd, strategyPerformanceCmd)

	strategyListCmd.Flags().Int64Var(&stAccount, "account", 0, "계좌 ID 필터")
	strategyPerformanceCmd.Flags().Int64Var(&stAccount, "account", 0, "계좌 ID")
	_ = strategyPerformanceCmd.MarkFlagRequired("account")
}
