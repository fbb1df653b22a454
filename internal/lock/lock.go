package lock

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/wonny/fundfolio/backend/pkg/redis"
)

// ErrTimeout is returned when a key stays held past the wait budget
var ErrTimeout = errors.New("lock wait timed out")

// Local is an in-process keyed mutex.
// Waiting is bounded by timeout and by the caller's context.
type Local struct {
	mu      sync.Mutex
	slots   map[string]*slot
	timeout time.Duration
}

type slot struct {
	ch   chan struct{}
	refs int
}

// NewLocal creates an in-process locker
func NewLocal(timeout time.Duration) *Local {
	return &Local{slots: make(map[string]*slot), timeout: timeout}
}

// Acquire blocks until key is free
func (l *Local) Acquire(ctx context.Context, key string) (func(), error) {
	l.mu.Lock()
	s, ok := l.slots[key]
	if !ok {
		s = &slot{ch: make(chan struct{}, 1)}
		l.slots[key] = s
	}
	s.refs++
	l.mu.Unlock()

	timer := time.NewTimer(l.timeout)
	defer timer.Stop()

	select {
	case s.ch <- struct{}{}:
	case <-ctx.Done():
		l.unref(key, s)
		return nil, ctx.Err()
	case <-timer.C:
		l.unref(key, s)
		return nil, fmt.Errorf("%w: %s", ErrTimeout, key)
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			<-s.ch
			l.unref(key, s)
		})
	}, nil
}

func (l *Local) unref(key string, s *slot) {
	l.mu.Lock()
	defer l.mu.Unlock()
	s.refs--
	if s.refs == 0 {
		delete(l.slots, key)
	}
}

// Distributed serializes across processes through redis SET NX
type Distributed struct {
	mutex   *redis.Mutex
	timeout time.Duration
}

// NewDistributed creates a redis-backed locker
func NewDistributed(client *redis.Client, ttl, timeout time.Duration) *Distributed {
	return &Distributed{
		mutex:   redis.NewMutex(client, "fundfolio", ttl),
		timeout: timeout,
	}
}

// Acquire polls redis until key is taken or the wait budget runs out
func (d *Distributed) Acquire(ctx context.Context, key string) (func(), error) {
	waitCtx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()
	return d.mutex.Acquire(waitCtx, key)
}

// Locker is satisfied by Local and Distributed
type Locker interface {
	Acquire(ctx context.Context, key string) (func(), error)
}

// New picks the redis locker when redis is enabled, the in-process one otherwise
func New(client *redis.Client, ttl, timeout time.Duration) Locker {
	if client.Enabled() {
		return NewDistributed(client, ttl, timeout)
	}
	return NewLocal(timeout)
}
