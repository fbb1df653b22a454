package redis

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wonny/fundfolio/backend/pkg/config"
)

func disabledClient(t *testing.T) *Client {
	t.Helper()
	client, err := New(&config.Config{Redis: config.RedisConfig{Enabled: false}})
	require.NoError(t, err)
	return client
}

func TestNewClient_Disabled(t *testing.T) {
	client := disabledClient(t)
	assert.False(t, client.Enabled())
	assert.NoError(t, client.Close())
}

func TestNilClientIsDisabled(t *testing.T) {
	var client *Client
	assert.False(t, client.Enabled())
}

func TestRateLimiter_DisabledAllowsAll(t *testing.T) {
	limiter := NewRateLimiter(disabledClient(t), "test")
	cfg := BacktestRateLimit("127.0.0.1", 30)

	for i := 0; i < 100; i++ {
		allowed, remaining, err := limiter.Allow(context.Background(), cfg)
		require.NoError(t, err)
		assert.True(t, allowed)
		assert.Equal(t, 30, remaining)
	}
}

func TestCache_Disabled(t *testing.T) {
	cache := NewCache(disabledClient(t), "test")
	ctx := context.Background()

	require.NoError(t, cache.Set(ctx, PriceKey("110011", "2024-01-02"), 1.23, TTLDaily))

	var got float64
	found, err := cache.Get(ctx, PriceKey("110011", "2024-01-02"), &got)
	require.NoError(t, err)
	assert.False(t, found)
	assert.NoError(t, cache.Delete(ctx, "a", "b"))
}

func TestMutex_DisabledRefuses(t *testing.T) {
	m := NewMutex(disabledClient(t), "test", time.Second)
	_, err := m.Acquire(context.Background(), "portfolio:1")
	assert.Error(t, err)
}

func TestKeys(t *testing.T) {
	assert.Equal(t, "price:110011:2024-01-02", PriceKey("110011", "2024-01-02"))
	assert.Equal(t, "price:latest:110011:2024-01-02", LatestPriceKey("110011", "2024-01-02"))
	assert.Equal(t, "backtest:abc", BacktestKey("abc"))
	assert.Equal(t, "backtest:10.0.0.1", BacktestRateLimit("10.0.0.1", 5).Key)
}

func TestMutex_Live(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping redis integration test")
	}
	cfg := &config.Config{Redis: config.RedisConfig{Host: "localhost", Port: "6379", Enabled: true}}
	client, err := New(cfg)
	if err != nil {
		t.Skipf("redis not reachable: %v", err)
	}
	defer client.Close()

	m := NewMutex(client, "fundfolio-test", 5*time.Second)
	release, err := m.Acquire(context.Background(), "order:1")
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 150*time.Millisecond)
	defer cancel()
	_, err = m.Acquire(ctx, "order:1")
	assert.ErrorIs(t, err, ErrLockHeld)

	release()
	release()

	again, err := m.Acquire(context.Background(), "order:1")
	require.NoError(t, err)
	again()
}
