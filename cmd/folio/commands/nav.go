package commands

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"
)

var navCmd = &cobra.Command{
	Use:   "nav",
	Short: "기준가 데이터 관리",
}

var (
	navCodes []string
	navFrom  string
)

var navSyncCmd = &cobra.Command{
	Use:   "sync",
	Short: "기준가 동기화",
	Long: `NAV 피드에서 기준가 이력을 가져와 저장합니다.
코드를 지정하지 않으면 모든 포트폴리오 scope의 코드를 동기화합니다.
각 코드는 마지막 저장일부터 이어서 가져옵니다.

Examples:
  go run ./cmd/folio nav sync
  go run ./cmd/folio nav sync --code 000001 --code 110022 --from 2020-01-01`,
	RunE: func(cmd *cobra.Command, args []string) error {
		from, err := parseDay("from", navFrom)
		if err != nil {
			return err
		}
		if from.IsZero() {
			from = time.Now().AddDate(-1, 0, 0)
		}

		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.Close()

		ctx := cmd.Context()
		codes := navCodes
		if len(codes) == 0 {
			if codes, err = a.strategyRepo.AllScopeCodes(ctx); err != nil {
				return err
			}
		}
		if len(codes) == 0 {
			PrintInfo("No codes to sync")
			return nil
		}

		result, err := a.syncer.Sync(ctx, codes, from)
		if err != nil {
			return err
		}
		if jsonOutput {
			return PrintJSON(result)
		}

		PrintSuccess(fmt.Sprintf("Synced %d codes, %d closes saved", result.Codes, result.Saved))
		if len(result.Failed) > 0 {
			PrintWarning("Failed: " + strings.Join(result.Failed, ", "))
			return fmt.Errorf("%d codes failed", len(result.Failed))
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(navCmd)
	navCmd.AddCommand(navSyncCmd)

	navSyncCmd.Flags().StringSliceVar(&navCodes, "code", nil, "펀드 코드 (반복 지정 가능)")
	navSyncCmd.Flags().StringVar(&navFrom, "from", "", "시작일 (YYYY-MM-DD, 기본: 1년 전)")
}
