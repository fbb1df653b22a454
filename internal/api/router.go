package api

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/wonny/fundfolio/backend/internal/api/handlers"
	"github.com/wonny/fundfolio/backend/pkg/logger"
)

// Handlers bundles the endpoint groups
type Handlers struct {
	Strategy  *handlers.StrategyHandler
	Rebalance *handlers.RebalanceHandler
	Backtest  *handlers.BacktestHandler
}

// RateLimit configures the backtest limiter; a nil Limiter disables it
type RateLimit struct {
	Limiter   Limiter
	PerMinute int
}

// NewRouter creates and configures the HTTP router
// ⭐ SSOT: 라우팅 설정은 이 함수에서만
func NewRouter(h Handlers, limit RateLimit, log *logger.Logger) http.Handler {
	r := mux.NewRouter()

	r.HandleFunc("/health", healthCheckHandler).Methods("GET")

	api := r.PathPrefix("/api").Subrouter()

	// Strategy portfolios
	sp := api.PathPrefix("/strategy/portfolios").Subrouter()
	sp.HandleFunc("", h.Strategy.ListPortfolios).Methods("GET")
	sp.HandleFunc("", h.Strategy.CreatePortfolio).Methods("POST")
	sp.HandleFunc("/{id:[0-9]+}", h.Strategy.GetPortfolio).Methods("GET")
	sp.HandleFunc("/{id:[0-9]+}", h.Strategy.DeletePortfolio).Methods("DELETE")
	sp.HandleFunc("/{id:[0-9]+}/versions", h.Strategy.CreateVersion).Methods("POST")
	sp.HandleFunc("/{id:[0-9]+}/versions/{versionID:[0-9]+}/activate", h.Strategy.ActivateVersion).Methods("POST")
	sp.HandleFunc("/{id:[0-9]+}/scope", h.Strategy.UpdateScope).Methods("PUT")
	sp.HandleFunc("/{id:[0-9]+}/performance", h.Strategy.GetPerformance).Methods("GET")
	sp.HandleFunc("/{id:[0-9]+}/rebalance", h.Rebalance.Generate).Methods("POST")
	sp.HandleFunc("/{id:[0-9]+}/batches", h.Rebalance.ListBatches).Methods("GET")

	bt := sp.PathPrefix("/{id:[0-9]+}/backtest").Subrouter()
	bt.HandleFunc("", h.Backtest.Run).Methods("POST")
	bt.Use(backtestRateLimit(limit.Limiter, limit.PerMinute, log))

	// Rebalance batches and orders
	api.HandleFunc("/rebalance/batches/{batchID:[0-9]+}", h.Rebalance.GetBatch).Methods("GET")
	api.HandleFunc("/rebalance/batches/{batchID:[0-9]+}/orders", h.Rebalance.ListOrders).Methods("GET")
	api.HandleFunc("/rebalance/batches/{batchID:[0-9]+}/refresh", h.Rebalance.RefreshBatch).Methods("POST")
	api.HandleFunc("/rebalance/batches/{batchID:[0-9]+}/complete", h.Rebalance.CompleteBatch).Methods("POST")
	api.HandleFunc("/rebalance/orders/{orderID:[0-9]+}/execute", h.Rebalance.ExecuteOrder).Methods("POST")
	api.HandleFunc("/rebalance/orders/{orderID:[0-9]+}/skip", h.Rebalance.SkipOrder).Methods("POST")

	r.Use(requestIDMiddleware)
	r.Use(loggingMiddleware(log))
	r.Use(recoveryMiddleware(log))

	return r
}

// healthCheckHandler returns server health status
func healthCheckHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"status":  "ok",
		"service": "fundfolio-api",
	})
}
