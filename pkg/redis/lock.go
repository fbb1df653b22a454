package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// ErrLockHeld is returned when another holder owns the key past the wait deadline
var ErrLockHeld = errors.New("lock held by another owner")

// Mutex is a SET NX PX lock shared by every api/scheduler process
type Mutex struct {
	client *Client
	prefix string
	ttl    time.Duration
	retry  time.Duration
}

// NewMutex creates a distributed mutex helper
func NewMutex(client *Client, prefix string, ttl time.Duration) *Mutex {
	return &Mutex{
		client: client,
		prefix: prefix,
		ttl:    ttl,
		retry:  50 * time.Millisecond,
	}
}

// only the owner token may delete the key
var unlockScript = redis.NewScript(`
	if redis.call('GET', KEYS[1]) == ARGV[1] then
		return redis.call('DEL', KEYS[1])
	end
	return 0
`)

// Acquire polls until the key is taken or ctx expires.
// The returned release func is safe to call more than once.
func (m *Mutex) Acquire(ctx context.Context, key string) (func(), error) {
	if !m.client.Enabled() {
		return nil, fmt.Errorf("redis disabled")
	}

	fullKey := fmt.Sprintf("%s:lock:%s", m.prefix, key)
	token := uuid.NewString()
	rdb := m.client.Redis()

	for {
		ok, err := rdb.SetNX(ctx, fullKey, token, m.ttl).Result()
		if err != nil && !errors.Is(err, context.DeadlineExceeded) && !errors.Is(err, context.Canceled) {
			return nil, fmt.Errorf("lock acquire failed: %w", err)
		}
		if ok {
			released := false
			return func() {
				if released {
					return
				}
				released = true
				// fresh context: the caller's may already be cancelled
				releaseCtx, cancel := context.WithTimeout(context.Background(), time.Second)
				defer cancel()
				_ = unlockScript.Run(releaseCtx, rdb, []string{fullKey}, token).Err()
			}, nil
		}

		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("%w: %s", ErrLockHeld, key)
		case <-time.After(m.retry):
		}
	}
}
