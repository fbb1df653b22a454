package commands

import (
	"fmt"
	"strconv"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"github.com/wonny/fundfolio/backend/internal/contracts"
	"github.com/wonny/fundfolio/backend/internal/rebalance"
)

var rebalanceCmd = &cobra.Command{
	Use:   "rebalance",
	Short: "리밸런싱 배치 관리",
	Long: `리밸런싱 주문 배치를 생성하고 체결/스킵/완료 처리합니다.

Subcommands:
  generate   목표 비중 대비 주문 생성 (배치 저장)
  list       포트폴리오 배치 목록
  show       배치 상세 (주문 포함)
  refresh    최신 가격으로 미체결 주문 재계산
  execute    주문 체결 기록 (포지션 반영)
  skip       주문 스킵
  complete   배치 완료`,
}

var (
	rbPortfolio    int64
	rbAccount      int64
	rbTitle        string
	rbSource       string
	rbAdjust       string
	rbMinDeviation float64
	rbFee          float64
	rbDryRun       bool

	rbShares string
	rbPrice  string
	rbAt     string
)

func init() {
	rootCmd.AddCommand(rebalanceCmd)
	rebalanceCmd.AddCommand(rbGenerateCmd, rbListCmd, rbShowCmd, rbRefreshCmd, rbExecuteCmd, rbSkipCmd, rbCompleteCmd)

	g := rbGenerateCmd.Flags()
	g.Int64Var(&rbPortfolio, "portfolio", 0, "포트폴리오 ID")
	g.Int64Var(&rbAccount, "account", 0, "계좌 ID")
	g.StringVar(&rbTitle, "title", "", "배치 제목")
	g.StringVar(&rbSource, "source", string(contracts.SourceManual), "manual|smart_rebalance|add|reduce")
	g.StringVar(&rbAdjust, "adjust", "0", "추가(+)/인출(-) 금액")
	g.Float64Var(&rbMinDeviation, "min-deviation", -1, "최소 편차 (기본: 설정값)")
	g.Float64Var(&rbFee, "fee", -1, "수수료율 (기본: 포트폴리오 설정)")
	g.BoolVar(&rbDryRun, "dry-run", false, "배치를 저장하지 않고 계획만 출력")
	_ = rbGenerateCmd.MarkFlagRequired("portfolio")
	_ = rbGenerateCmd.MarkFlagRequired("account")

	rbListCmd.Flags().Int64Var(&rbPortfolio, "portfolio", 0, "포트폴리오 ID")
	rbListCmd.Flags().Int64Var(&rbAccount, "account", 0, "계좌 ID")
	_ = rbListCmd.MarkFlagRequired("portfolio")
	_ = rbListCmd.MarkFlagRequired("account")

	e := rbExecuteCmd.Flags()
	e.StringVar(&rbShares, "shares", "", "체결 좌수")
	e.StringVar(&rbPrice, "price", "", "체결 가격")
	e.StringVar(&rbAt, "at", "", "체결일 (YYYY-MM-DD, 기본: 오늘)")
	_ = rbExecuteCmd.MarkFlagRequired("shares")
	_ = rbExecuteCmd.MarkFlagRequired("price")
}

var rbGenerateCmd = &cobra.Command{
	Use:   "generate",
	Short: "리밸런싱 주문 생성",
	Example: `  go run ./cmd/folio rebalance generate --portfolio 1 --account 1
  go run ./cmd/folio rebalance generate --portfolio 1 --account 1 --source add --adjust 1000000
  go run ./cmd/folio rebalance generate --portfolio 1 --account 1 --dry-run`,
	RunE: func(cmd *cobra.Command, args []string) error {
		adjust, err := decimal.NewFromString(rbAdjust)
		if err != nil {
			return fmt.Errorf("--adjust: %w", err)
		}
		req := rebalance.GenerateRequest{
			PortfolioID:       rbPortfolio,
			AccountID:         rbAccount,
			Title:             rbTitle,
			Source:            contracts.BatchSource(rbSource),
			CapitalAdjustment: adjust,
			Persist:           !rbDryRun,
		}
		if rbMinDeviation >= 0 {
			v := rbMinDeviation
			req.MinDeviation = &v
		}
		if rbFee >= 0 {
			v := rbFee
			req.FeeRate = &v
		}

		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.Close()

		plan, err := a.manager.GeneratePlan(cmd.Context(), req)
		if err != nil {
			return err
		}
		if jsonOutput {
			return PrintJSON(plan)
		}

		title := "Rebalance plan (dry run)"
		if plan.Batch != nil {
			title = fmt.Sprintf("Rebalance batch #%d", plan.Batch.ID)
		}
		PrintHeader(title)
		printOrders(plan.Orders)
		printWarnings(plan.Warnings)
		PrintDoubleSeparator()
		return nil
	},
}

var rbListCmd = &cobra.Command{
	Use:   "list",
	Short: "배치 목록",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.Close()

		batches, err := a.manager.ListBatches(cmd.Context(), rbPortfolio, rbAccount)
		if err != nil {
			return err
		}
		if jsonOutput {
			return PrintJSON(batches)
		}

		widths := []int{6, 10, 16, 14, 14, 7, 10}
		PrintTableHeader([]string{"ID", "Status", "Source", "Buy", "Sell", "Pending", "Created"}, widths)
		for _, b := range batches {
			PrintTableRow([]string{
				strconv.FormatInt(b.ID, 10),
				string(b.Status),
				string(b.Source),
				money(b.BuyAmount),
				money(b.SellAmount),
				strconv.Itoa(b.PendingOrders),
				b.CreatedAt.Format(dateLayout),
			}, widths)
		}
		return nil
	},
}

var rbShowCmd = &cobra.Command{
	Use:   "show BATCH_ID",
	Short: "배치 상세",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return batchCommand(cmd, args, func(a *app, id int64) (*contracts.BatchView, error) {
			return a.manager.GetBatch(cmd.Context(), id)
		})
	},
}

var rbRefreshCmd = &cobra.Command{
	Use:   "refresh BATCH_ID",
	Short: "미체결 주문 재계산",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return batchCommand(cmd, args, func(a *app, id int64) (*contracts.BatchView, error) {
			return a.manager.Refresh(cmd.Context(), id)
		})
	},
}

var rbCompleteCmd = &cobra.Command{
	Use:   "complete BATCH_ID",
	Short: "배치 완료",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return batchCommand(cmd, args, func(a *app, id int64) (*contracts.BatchView, error) {
			return a.manager.Complete(cmd.Context(), id)
		})
	},
}

var rbExecuteCmd = &cobra.Command{
	Use:     "execute ORDER_ID",
	Short:   "주문 체결 기록",
	Args:    cobra.ExactArgs(1),
	Example: `  go run ./cmd/folio rebalance execute 42 --shares 120.5 --price 1034.22`,
	RunE: func(cmd *cobra.Command, args []string) error {
		shares, err := decimal.NewFromString(rbShares)
		if err != nil {
			return fmt.Errorf("--shares: %w", err)
		}
		price, err := decimal.NewFromString(rbPrice)
		if err != nil {
			return fmt.Errorf("--price: %w", err)
		}
		at, err := parseDay("at", rbAt)
		if err != nil {
			return err
		}
		if at.IsZero() {
			at = time.Now()
		}
		fill := contracts.Fill{Shares: shares, Price: price, ExecutedAt: at}

		return orderCommand(cmd, args, func(a *app, id int64) (*rebalance.ExecuteResult, error) {
			return a.manager.Execute(cmd.Context(), id, fill)
		})
	},
}

var rbSkipCmd = &cobra.Command{
	Use:   "skip ORDER_ID",
	Short: "주문 스킵",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return orderCommand(cmd, args, func(a *app, id int64) (*rebalance.ExecuteResult, error) {
			return a.manager.Skip(cmd.Context(), id)
		})
	},
}

func parseID(raw string) (int64, error) {
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid id %q", raw)
	}
	return id, nil
}

func batchCommand(cmd *cobra.Command, args []string, fn func(a *app, id int64) (*contracts.BatchView, error)) error {
	id, err := parseID(args[0])
	if err != nil {
		return err
	}
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()

	view, err := fn(a, id)
	if err != nil {
		return err
	}
	if jsonOutput {
		return PrintJSON(view)
	}

	b := view.Batch
	PrintHeader(fmt.Sprintf("Batch #%d [%s]", b.ID, b.Status))
	PrintKeyValue("Portfolio", strconv.FormatInt(b.PortfolioID, 10), 10)
	PrintKeyValue("Account", strconv.FormatInt(b.AccountID, 10), 10)
	PrintKeyValue("Net", money(b.NetAmount), 10)
	PrintSeparator()
	printOrders(view.Orders)
	printWarnings(view.Warnings)
	PrintDoubleSeparator()
	return nil
}

func orderCommand(cmd *cobra.Command, args []string, fn func(a *app, id int64) (*rebalance.ExecuteResult, error)) error {
	id, err := parseID(args[0])
	if err != nil {
		return err
	}
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()

	res, err := fn(a, id)
	if err != nil {
		return err
	}
	if jsonOutput {
		return PrintJSON(res)
	}
	PrintSuccess(fmt.Sprintf("Order #%d %s %s → %s", res.Order.ID, res.Order.Action, res.Order.FundCode, res.Order.Status))
	PrintInfo(fmt.Sprintf("Batch #%d: %d pending", res.Batch.ID, res.Batch.PendingOrders))
	return nil
}

func printOrders(orders []contracts.RebalanceOrder) {
	widths := []int{6, 8, 4, 8, 8, 14, 14, 10}
	PrintTableHeader([]string{"ID", "Code", "Side", "Current", "Target", "Delta", "Amount", "Status"}, widths)
	for _, o := range orders {
		cur, tgt := o.CurrentWeight, o.TargetWeight
		PrintTableRow([]string{
			strconv.FormatInt(o.ID, 10),
			o.FundCode,
			string(o.Action),
			pct(&cur),
			pct(&tgt),
			o.DeltaShares.StringFixed(4),
			money(o.TradeAmount),
			string(o.Status),
		}, widths)
	}
}

func printWarnings(warnings []contracts.Warning) {
	for _, w := range warnings {
		PrintWarning(fmt.Sprintf("%s: %s", w.Field, w.Reason))
	}
}
