// Package idempotency serializes in-flight checkouts that share an
// idempotency token, so a retried request waits for the first attempt and
// then replays its result instead of reserving stock a second time.
package idempotency

import (
	"context"
	"errors"
	"strconv"
	"sync"
)

// ErrLockTimeout is returned when another holder kept the key past the wait limit
var ErrLockTimeout = errors.New("idempotency key is held by another request")

// Guard hands out exclusive, per-key locks.
type Guard interface {
	// Acquire blocks until the key is free or ctx ends. The returned release
	// func must be called exactly once.
	Acquire(ctx context.Context, key string) (release func(), err error)
}

// Key builds the lock key for a principal's token. The principal is length
// prefixed so no (principal, token) pair can collide with another.
func Key(principal, token string) string {
	return "checkout:" + strconv.Itoa(len(principal)) + ":" + principal + ":" + token
}

type keyLock struct {
	sem  chan struct{}
	refs int
}

// LocalGuard is a process-local Guard
type LocalGuard struct {
	mu    sync.Mutex
	locks map[string]*keyLock
}

func NewLocalGuard() *LocalGuard {
	return &LocalGuard{locks: make(map[string]*keyLock)}
}

func (g *LocalGuard) Acquire(ctx context.Context, key string) (func(), error) {
	g.mu.Lock()
	l, ok := g.locks[key]
	if !ok {
		l = &keyLock{sem: make(chan struct{}, 1)}
		g.locks[key] = l
	}
	l.refs++
	g.mu.Unlock()

	select {
	case l.sem <- struct{}{}:
	case <-ctx.Done():
		g.unref(key, l)
		return nil, errors.Join(ErrLockTimeout, ctx.Err())
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			<-l.sem
			g.unref(key, l)
		})
	}, nil
}

func (g *LocalGuard) unref(key string, l *keyLock) {
	g.mu.Lock()
	defer g.mu.Unlock()

	l.refs--
	if l.refs == 0 {
		delete(g.locks, key)
	}
}

// held reports the number of keys with waiters or holders
func (g *LocalGuard) held() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.locks)
}
