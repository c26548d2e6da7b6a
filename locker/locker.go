// Package locker provides named, reentrant mutual exclusion.
//
// A Manager hands out one Lock per key. Acquire returns a derived context
// carrying ownership of the lock; passing that context to a nested Acquire
// for the same key succeeds immediately. Distinct keys never block each
// other. Locks are created lazily and live for the lifetime of the Manager.
package locker

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jacentio/relval/internal/metrics"
	"github.com/jacentio/relval/internal/shard"
)

// ErrLockTimeout is returned when a lock is not acquired within Config.Timeout.
var ErrLockTimeout = errors.New("relval: timed out waiting for lock")

// Config configures a Manager.
type Config struct {
	// Shards is the number of registry partitions.
	// Default: 32
	Shards int

	// Timeout bounds how long Acquire waits. Zero waits until the context
	// is cancelled.
	Timeout time.Duration
}

// DefaultConfig returns a config with default values.
func DefaultConfig() Config {
	return Config{Shards: 32}
}

func (c *Config) validate() {
	if c.Shards < 1 {
		c.Shards = 32
	}
	if c.Timeout < 0 {
		c.Timeout = 0
	}
}

// Lock is one named lock.
type Lock struct {
	key string
	sem chan struct{}
}

// Key returns the lock name.
func (l *Lock) Key() string { return l.key }

type partition struct {
	mu    sync.Mutex
	locks map[string]*Lock
}

// Manager is a registry of named locks.
type Manager struct {
	config  Config
	parts   []*partition
	logger  *slog.Logger
	metrics *metrics.Metrics
}

// New creates a Manager. logger and m may be nil.
func New(config Config, logger *slog.Logger, m *metrics.Metrics) *Manager {
	config.validate()
	if logger == nil {
		logger = slog.Default()
	}
	parts := make([]*partition, config.Shards)
	for i := range parts {
		parts[i] = &partition{locks: make(map[string]*Lock)}
	}
	return &Manager{
		config:  config,
		parts:   parts,
		logger:  logger,
		metrics: m,
	}
}

// Lock returns the lock for key, creating it on first use. The same key
// always yields the same *Lock.
func (m *Manager) Lock(key string) *Lock {
	p := m.parts[shard.Index(key, len(m.parts))]
	p.mu.Lock()
	defer p.mu.Unlock()
	l, ok := p.locks[key]
	if !ok {
		l = &Lock{key: key, sem: make(chan struct{}, 1)}
		p.locks[key] = l
	}
	return l
}

// Len returns the number of locks created so far.
func (m *Manager) Len() int {
	n := 0
	for _, p := range m.parts {
		p.mu.Lock()
		n += len(p.locks)
		p.mu.Unlock()
	}
	return n
}

type heldKey struct{}

// holding is one link of the ownership chain carried by a context.
type holding struct {
	lock     *Lock
	released atomic.Bool
	next     *holding
}

func owns(ctx context.Context, l *Lock) bool {
	h, _ := ctx.Value(heldKey{}).(*holding)
	for ; h != nil; h = h.next {
		if h.lock == l && !h.released.Load() {
			return true
		}
	}
	return false
}

// Held reports whether ctx owns the lock for key.
func (m *Manager) Held(ctx context.Context, key string) bool {
	return owns(ctx, m.Lock(key))
}

// Acquire blocks until the lock for key is held, ctx is done, or the
// configured timeout elapses. It returns a context carrying ownership and an
// idempotent release function. When ctx already owns the lock, Acquire
// returns immediately and the release function does nothing.
func (m *Manager) Acquire(ctx context.Context, key string) (context.Context, func(), error) {
	l := m.Lock(key)
	if owns(ctx, l) {
		return ctx, func() {}, nil
	}

	start := time.Now()
	if err := m.wait(ctx, l); err != nil {
		m.logger.Warn("lock not acquired", "key", key, "waited", time.Since(start), "error", err)
		return ctx, func() {}, err
	}
	m.metrics.ObserveLockWait(time.Since(start))

	prev, _ := ctx.Value(heldKey{}).(*holding)
	h := &holding{lock: l, next: prev}
	var once sync.Once
	release := func() {
		once.Do(func() {
			h.released.Store(true)
			<-l.sem
		})
	}
	return context.WithValue(ctx, heldKey{}, h), release, nil
}

func (m *Manager) wait(ctx context.Context, l *Lock) error {
	select {
	case l.sem <- struct{}{}:
		return nil
	default:
	}

	var timeout <-chan time.Time
	if m.config.Timeout > 0 {
		timer := time.NewTimer(m.config.Timeout)
		defer timer.Stop()
		timeout = timer.C
	}

	select {
	case l.sem <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-timeout:
		return ErrLockTimeout
	}
}

// Do runs fn while holding the lock for key.
func (m *Manager) Do(ctx context.Context, key string, fn func(ctx context.Context) error) error {
	ctx, release, err := m.Acquire(ctx, key)
	if err != nil {
		return err
	}
	defer release()
	return fn(ctx)
}
