package commands

import (
	"context"
	"time"

	"github.com/spf13/cobra"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "스키마 생성/갱신",
	Long: `포트폴리오, 버전, 배치, 주문, 포지션, 가격 테이블을 생성합니다.
이미 존재하는 테이블은 건드리지 않습니다 (idempotent).

Example:
  go run ./cmd/folio migrate`,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.Close()

		ctx, cancel := context.WithTimeout(cmd.Context(), time.Minute)
		defer cancel()

		if err := a.db.Migrate(ctx); err != nil {
			PrintError(err.Error())
			return err
		}
		PrintSuccess("Schema is up to date")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(migrateCmd)
}
