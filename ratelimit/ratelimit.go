// Package ratelimit implements fixed window counters for the auth routes.
// The redis limiter is shared by every server instance, the memory limiter
// is used when no redis address is configured.
package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	DefaultLimit  = 10
	DefaultWindow = time.Minute
	DefaultPrefix = "s2s:ratelimit:"
)

var ErrRedisNotConfigured = errors.New("redis_not_configured")

// Options shared by both limiters
type Options struct {
	Limit  int
	Window time.Duration
	Prefix string
}

func (o Options) normalized() Options {
	if o.Limit <= 0 {
		o.Limit = DefaultLimit
	}
	if o.Window <= 0 {
		o.Window = DefaultWindow
	}
	if o.Prefix == "" {
		o.Prefix = DefaultPrefix
	}
	return o
}

// Redis counts hits with INCR, the first hit of a window sets the expiry
type Redis struct {
	client *redis.Client
	opts   Options
}

func NewRedis(client *redis.Client, opts Options) *Redis {
	return &Redis{client: client, opts: opts.normalized()}
}

func (r *Redis) Allow(ctx context.Context, key string) (bool, error) {
	if r.client == nil {
		return false, ErrRedisNotConfigured
	}

	k := r.opts.Prefix + key

	count, err := r.client.Incr(ctx, k).Result()
	if err != nil {
		return false, fmt.Errorf("ratelimit incr %s: %w", k, err)
	}

	if count == 1 {
		if err := r.client.Expire(ctx, k, r.opts.Window).Err(); err != nil {
			return false, fmt.Errorf("ratelimit expire %s: %w", k, err)
		}
	}

	return count <= int64(r.opts.Limit), nil
}

// Reset drops the counter for key
func (r *Redis) Reset(ctx context.Context, key string) error {
	if r.client == nil {
		return ErrRedisNotConfigured
	}
	return r.client.Del(ctx, r.opts.Prefix+key).Err()
}

type window struct {
	start time.Time
	count int
}

// Memory is a process local limiter
type Memory struct {
	mu      sync.Mutex
	opts    Options
	windows map[string]*window
	now     func() time.Time
}

func NewMemory(opts Options) *Memory {
	return &Memory{
		opts:    opts.normalized(),
		windows: map[string]*window{},
		now:     time.Now,
	}
}

// WithClock overrides time.Now
func (m *Memory) WithClock(now func() time.Time) *Memory {
	if now != nil {
		m.now = now
	}
	return m
}

func (m *Memory) Allow(ctx context.Context, key string) (bool, error) {
	select {
	case <-ctx.Done():
		return false, ctx.Err()
	default:
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	m.sweep(now)

	w, ok := m.windows[key]
	if !ok {
		w = &window{start: now}
		m.windows[key] = w
	}
	w.count++

	return w.count <= m.opts.Limit, nil
}

func (m *Memory) Reset(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.windows, key)
	return nil
}

// sweep drops expired windows, caller holds the lock
func (m *Memory) sweep(now time.Time) {
	for k, w := range m.windows {
		if now.Sub(w.start) >= m.opts.Window {
			delete(m.windows, k)
		}
	}
}
