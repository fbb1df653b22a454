package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/wonny/fundfolio/backend/internal/api"
	"github.com/wonny/fundfolio/backend/internal/api/handlers"
	"github.com/wonny/fundfolio/backend/pkg/redis"
)

// apiCmd represents the api command
var apiCmd = &cobra.Command{
	Use:   "api",
	Short: "API 서버 시작",
	Long: `REST API 서버를 시작합니다.

Endpoints:
  GET    /health
  GET    /api/strategy/portfolios
  POST   /api/strategy/portfolios
  GET    /api/strategy/portfolios/{id}/performance?account_id=
  POST   /api/strategy/portfolios/{id}/rebalance
  POST   /api/strategy/portfolios/{id}/backtest
  POST   /api/rebalance/orders/{orderID}/execute
  POST   /api/rebalance/batches/{batchID}/complete

Example:
  go run ./cmd/folio api
  go run ./cmd/folio api --port 8080`,
	RunE: runAPIServer,
}

var (
	apiPort string
)

func init() {
	rootCmd.AddCommand(apiCmd)

	apiCmd.Flags().StringVar(&apiPort, "port", "", "API 서버 포트 (기본: PORT 환경변수)")
}

func runAPIServer(cmd *cobra.Command, args []string) error {
	fmt.Println("=== Fundfolio API Server ===")

	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()

	if apiPort != "" {
		a.cfg.Port = apiPort
	}

	a.log.WithFields(map[string]interface{}{
		"port": a.cfg.Port,
		"env":  a.cfg.Env,
	}).Info("Initializing API server")

	router := api.NewRouter(
		api.Handlers{
			Strategy:  handlers.NewStrategyHandler(a.strategies, a.performance, a.log),
			Rebalance: handlers.NewRebalanceHandler(a.manager, a.log),
			Backtest:  handlers.NewBacktestHandler(a.backtests, a.log),
		},
		api.RateLimit{
			Limiter:   redis.NewRateLimiter(a.redis, cachePrefix),
			PerMinute: a.cfg.Engine.BacktestRateLimit,
		},
		a.log,
	)

	server := api.New(a.cfg, a.log, router)

	go func() {
		if err := server.Start(); err != nil {
			a.log.WithError(err).Fatal("Failed to start server")
		}
	}()

	a.log.Info("API server started successfully")
	fmt.Printf("\n✅ Server running on http://localhost:%s\n", a.cfg.Port)
	fmt.Println("\nPress Ctrl+C to stop")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	a.log.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	a.log.Info("Server stopped")
	return nil
}
