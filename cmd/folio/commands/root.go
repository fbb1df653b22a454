package commands

import (
	"github.com/spf13/cobra"
)

var (
	// Global flags
	verbose    bool
	jsonOutput bool
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "folio",
	Short: "Fundfolio - 펀드 포트폴리오 리밸런싱 & 백테스트 엔진",
	Long: `Fundfolio Unified CLI

목표 비중 전략 포트폴리오의 리밸런싱 주문 생성, 체결 관리,
백테스트와 성과 분석을 제공합니다.

Usage:
  go run ./cmd/folio [command]

Examples:
  go run ./cmd/folio api
  go run ./cmd/folio migrate
  go run ./cmd/folio backtest run --scenario scenarios/balanced.yaml
  go run ./cmd/folio rebalance generate --portfolio 1 --account 1
  go run ./cmd/folio nav sync`,
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "debug logging")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "print results as JSON")
}
