// Package cache stores rendered reports. Writes bump a generation counter so
// entries computed before the write are never read again.
package cache

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// Reports caches report payloads keyed by kind and parameters.
type Reports interface {
	// Generation returns the current generation. Callers read it before
	// computing a report and hand it back to Set.
	Generation(ctx context.Context) (int64, error)
	Get(ctx context.Context, kind string, params ...string) ([]byte, bool, error)
	// Set stores value under gen. A value computed under an older
	// generation is never visible to Get.
	Set(ctx context.Context, gen int64, kind string, value []byte, params ...string) error
	// Invalidate drops every cached report.
	Invalidate(ctx context.Context) error
}

func entryKey(prefix string, gen int64, kind string, params []string) string {
	return prefix + ":" + strconv.FormatInt(gen, 10) + ":" + kind + ":" + strings.Join(params, "|")
}

// Redis keeps reports in Redis with a TTL.
type Redis struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// NewRedis creates a Redis-backed cache under prefix.
func NewRedis(client *redis.Client, prefix string, ttl time.Duration) *Redis {
	if prefix == "" {
		prefix = "rollcall:reports"
	}
	return &Redis{client: client, prefix: prefix, ttl: ttl}
}

func (r *Redis) genKey() string { return r.prefix + ":gen" }

func (r *Redis) Generation(ctx context.Context) (int64, error) {
	gen, err := r.client.Get(ctx, r.genKey()).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	return gen, err
}

func (r *Redis) Get(ctx context.Context, kind string, params ...string) ([]byte, bool, error) {
	gen, err := r.Generation(ctx)
	if err != nil {
		return nil, false, err
	}
	val, err := r.client.Get(ctx, entryKey(r.prefix, gen, kind, params)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return val, true, nil
}

func (r *Redis) Set(ctx context.Context, gen int64, kind string, value []byte, params ...string) error {
	return r.client.Set(ctx, entryKey(r.prefix, gen, kind, params), value, r.ttl).Err()
}

func (r *Redis) Invalidate(ctx context.Context) error {
	return r.client.Incr(ctx, r.genKey()).Err()
}

// Memory is a process-local cache for dev and single-instance deployments.
type Memory struct {
	mu      sync.Mutex
	gen     int64
	ttl     time.Duration
	entries map[string]memoryEntry
	now     func() time.Time
}

type memoryEntry struct {
	value   []byte
	expires time.Time
}

func NewMemory(ttl time.Duration) *Memory {
	return &Memory{ttl: ttl, entries: make(map[string]memoryEntry), now: time.Now}
}

func (m *Memory) Generation(ctx context.Context) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.gen, nil
}

func (m *Memory) Get(ctx context.Context, kind string, params ...string) ([]byte, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := entryKey("", m.gen, kind, params)
	e, ok := m.entries[key]
	if !ok {
		return nil, false, nil
	}
	if m.ttl > 0 && !m.now().Before(e.expires) {
		delete(m.entries, key)
		return nil, false, nil
	}
	return e.value, true, nil
}

func (m *Memory) Set(ctx context.Context, gen int64, kind string, value []byte, params ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if gen != m.gen {
		return nil
	}
	m.entries[entryKey("", gen, kind, params)] = memoryEntry{
		value:   append([]byte(nil), value...),
		expires: m.now().Add(m.ttl),
	}
	return nil
}

// Invalidate bumps the generation and drops the old entries.
func (m *Memory) Invalidate(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.gen++
	m.entries = make(map[string]memoryEntry)
	return nil
}

// Nop never caches.
type Nop struct{}

func (Nop) Generation(context.Context) (int64, error)                    { return 0, nil }
func (Nop) Get(context.Context, string, ...string) ([]byte, bool, error) { return nil, false, nil }
func (Nop) Set(context.Context, int64, string, []byte, ...string) error  { return nil }
func (Nop) Invalidate(context.Context) error                             { return nil }

var (
	_ Reports = (*Redis)(nil)
	_ Reports = (*Memory)(nil)
	_ Reports = Nop{}
)
