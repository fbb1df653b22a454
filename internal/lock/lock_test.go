package lock

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wonny/fundfolio/backend/pkg/redis"
)

func TestLocal_SerializesSameKey(t *testing.T) {
	l := NewLocal(time.Second)

	var inside, maxInside int32
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			release, err := l.Acquire(context.Background(), "portfolio:1")
			if !assert.NoError(t, err) {
				return
			}
			n := atomic.AddInt32(&inside, 1)
			for {
				m := atomic.LoadInt32(&maxInside)
				if n <= m || atomic.CompareAndSwapInt32(&maxInside, m, n) {
					break
				}
			}
			time.Sleep(time.Millisecond)
			atomic.AddInt32(&inside, -1)
			release()
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), maxInside)
	assert.Empty(t, l.slots)
}

func TestLocal_IndependentKeys(t *testing.T) {
	l := NewLocal(50 * time.Millisecond)

	r1, err := l.Acquire(context.Background(), "portfolio:1")
	require.NoError(t, err)
	defer r1()

	r2, err := l.Acquire(context.Background(), "portfolio:2")
	require.NoError(t, err)
	r2()
}

func TestLocal_Timeout(t *testing.T) {
	l := NewLocal(20 * time.Millisecond)

	release, err := l.Acquire(context.Background(), "order:7")
	require.NoError(t, err)

	_, err = l.Acquire(context.Background(), "order:7")
	assert.ErrorIs(t, err, ErrTimeout)

	release()
	release() // idempotent

	again, err := l.Acquire(context.Background(), "order:7")
	require.NoError(t, err)
	again()
}

func TestLocal_ContextCancelled(t *testing.T) {
	l := NewLocal(time.Second)

	release, err := l.Acquire(context.Background(), "k")
	require.NoError(t, err)
	defer release()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = l.Acquire(ctx, "k")
	assert.ErrorIs(t, err, context.Canceled)
}

func TestNewFallsBackToLocal(t *testing.T) {
	l := New(redis.Disabled(), time.Second, time.Second)
	_, ok := l.(*Local)
	assert.True(t, ok)
}
