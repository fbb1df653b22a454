package database

import (
	"context"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wonny/fundfolio/backend/pkg/config"
)

func TestSchemaEmbedded(t *testing.T) {
	schema := Schema()
	for _, table := range []string{
		"strategy.portfolios",
		"strategy.versions",
		"strategy.holdings",
		"rebalance.batches",
		"rebalance.orders",
		"ledger.positions",
		"market.daily_prices",
	} {
		assert.True(t, strings.Contains(schema, "CREATE TABLE IF NOT EXISTS "+table), table)
	}
	assert.Contains(t, schema, "ON DELETE CASCADE")
}

func connect(t *testing.T) *DB {
	t.Helper()
	if testing.Short() || os.Getenv("DATABASE_URL") == "" {
		t.Skip("DATABASE_URL not set, skipping integration test")
	}

	cfg, err := config.Load()
	require.NoError(t, err)

	db, err := New(cfg)
	require.NoError(t, err)
	t.Cleanup(db.Close)
	return db
}

func TestMigrateAndHealthCheck(t *testing.T) {
	db := connect(t)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	require.NoError(t, db.Migrate(ctx))
	require.NoError(t, db.Migrate(ctx), "schema must be re-runnable")

	status, err := db.HealthCheck(ctx)
	require.NoError(t, err)
	assert.True(t, status.Healthy)
	assert.Greater(t, status.Stats.MaxConns, int32(0))
}

func TestWithTxRollsBackOnError(t *testing.T) {
	db := connect(t)
	ctx := context.Background()
	require.NoError(t, db.Migrate(ctx))

	sentinel := assert.AnError
	err := WithTx(ctx, db.Pool, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, `INSERT INTO market.daily_prices (code, trade_date, price) VALUES ('TXTEST', '1999-01-04', 1)`)
		require.NoError(t, err)
		return sentinel
	})
	assert.ErrorIs(t, err, sentinel)

	var n int
	require.NoError(t, db.Pool.QueryRow(ctx, `SELECT COUNT(*) FROM market.daily_prices WHERE code = 'TXTEST'`).Scan(&n))
	assert.Equal(t, 0, n)
}
