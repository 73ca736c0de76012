// Package store holds the persistence adapters: the relational rule
// store, the fast KV state cache and the append-only suppression log.
package store

import (
	"context"
	"strconv"
	"sync"
	"time"

	redis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

// KVStore is the fast read/write surface used for alert states and
// budget counters. Implementations must make IncrWithTTL atomic.
type KVStore interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key string, value string, ttl time.Duration) error
	GetInt(ctx context.Context, key string) (int64, error)
	IncrWithTTL(ctx context.Context, key string, ttl time.Duration) (int64, error)
	Expire(ctx context.Context, key string, ttl time.Duration) error
}

// RedisKV backs KVStore with Redis.
type RedisKV struct {
	client *redis.Client
}

// NewRedisKV wraps an existing client.
func NewRedisKV(client *redis.Client) *RedisKV {
	return &RedisKV{client: client}
}

// NewKV connects to Redis when addr is set and reachable, otherwise
// degrades to a process-local map. In degraded mode TTLs and atomic
// increments are best-effort and not shared across replicas.
func NewKV(ctx context.Context, addr string) KVStore {
	if addr == "" {
		log.Warn().Msg("No KV address configured, using in-process store")
		return NewMemoryKV()
	}
	client := redis.NewClient(&redis.Options{Addr: addr})
	pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		log.Warn().Err(err).Str("addr", addr).Msg("KV unreachable, degrading to in-process store")
		return NewMemoryKV()
	}
	log.Info().Str("addr", addr).Msg("KV store connected")
	return NewRedisKV(client)
}

func (r *RedisKV) Get(ctx context.Context, key string) (string, bool, error) {
	v, err := r.client.Get(ctx, key).Result()
	if err == redis.Nil {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return v, true, nil
}

func (r *RedisKV) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	return r.client.Set(ctx, key, value, ttl).Err()
}

func (r *RedisKV) GetInt(ctx context.Context, key string) (int64, error) {
	v, err := r.client.Get(ctx, key).Int64()
	if err == redis.Nil {
		return 0, nil
	}
	return v, err
}

// IncrWithTTL pipelines INCR and EXPIRE so concurrent callers cannot
// observe a counter without its expiry.
func (r *RedisKV) IncrWithTTL(ctx context.Context, key string, ttl time.Duration) (int64, error) {
	pipe := r.client.TxPipeline()
	incr := pipe.Incr(ctx, key)
	pipe.Expire(ctx, key, ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, err
	}
	return incr.Val(), nil
}

func (r *RedisKV) Expire(ctx context.Context, key string, ttl time.Duration) error {
	return r.client.Expire(ctx, key, ttl).Err()
}

type memEntry struct {
	value   string
	expires time.Time
}

// MemoryKV is the in-process fallback.
type MemoryKV struct {
	mu  sync.Mutex
	m   map[string]memEntry
	now func() time.Time
}

// NewMemoryKV builds an empty in-process store.
func NewMemoryKV() *MemoryKV {
	return &MemoryKV{m: make(map[string]memEntry), now: time.Now}
}

func (c *MemoryKV) get(key string) (memEntry, bool) {
	e, ok := c.m[key]
	if !ok {
		return memEntry{}, false
	}
	if !e.expires.IsZero() && c.now().After(e.expires) {
		delete(c.m, key)
		return memEntry{}, false
	}
	return e, true
}

func (c *MemoryKV) Get(_ context.Context, key string) (string, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.get(key)
	if !ok {
		return "", false, nil
	}
	return e.value, true, nil
}

func (c *MemoryKV) Set(_ context.Context, key, value string, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	e := memEntry{value: value}
	if ttl > 0 {
		e.expires = c.now().Add(ttl)
	}
	c.m[key] = e
	return nil
}

func (c *MemoryKV) GetInt(_ context.Context, key string) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.get(key)
	if !ok {
		return 0, nil
	}
	return strconv.ParseInt(e.value, 10, 64)
}

func (c *MemoryKV) IncrWithTTL(_ context.Context, key string, ttl time.Duration) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	var n int64
	if e, ok := c.get(key); ok {
		parsed, err := strconv.ParseInt(e.value, 10, 64)
		if err != nil {
			return 0, err
		}
		n = parsed
	}
	n++
	e := memEntry{value: strconv.FormatInt(n, 10)}
	if ttl > 0 {
		e.expires = c.now().Add(ttl)
	}
	c.m[key] = e
	return n, nil
}

func (c *MemoryKV) Expire(_ context.Context, key string, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.get(key)
	if !ok {
		return nil
	}
	e.expires = c.now().Add(ttl)
	c.m[key] = e
	return nil
}
