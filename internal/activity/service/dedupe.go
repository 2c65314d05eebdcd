package service

import (
	"context"
	"errors"
	"sync"
	"time"

	"learnhub/internal/common/cache"

	"github.com/zeromicro/go-zero/core/collection"
)

// Deduper claims short-lived keys. Claim stores value under key unless the key is
// already held, in which case it returns the value of the current holder.
type Deduper interface {
	Claim(ctx context.Context, key, value string, ttl time.Duration) (existing string, claimed bool, err error)
	Replace(ctx context.Context, key, value string, ttl time.Duration) error
	// Release drops keys so a failed write can be retried.
	Release(ctx context.Context, keys ...string) error
}

// RedisDeduper claims keys with SET NX so the window is shared across instances.
type RedisDeduper struct {
	cache cache.Cache
}

func NewRedisDeduper(cacheClient cache.Cache) *RedisDeduper {
	return &RedisDeduper{cache: cacheClient}
}

func (d *RedisDeduper) Claim(ctx context.Context, key, value string, ttl time.Duration) (string, bool, error) {
	ok, err := d.cache.SetNX(ctx, key, value, ttl)
	if err != nil {
		return "", false, err
	}
	if ok {
		return "", true, nil
	}
	existing, err := d.cache.Get(ctx, key)
	if errors.Is(err, cache.ErrCacheMiss) {
		// expired between the two calls
		return d.Claim(ctx, key, value, ttl)
	}
	if err != nil {
		return "", false, err
	}
	return existing, false, nil
}

func (d *RedisDeduper) Replace(ctx context.Context, key, value string, ttl time.Duration) error {
	return d.cache.Set(ctx, key, value, ttl)
}

func (d *RedisDeduper) Release(ctx context.Context, keys ...string) error {
	return d.cache.Del(ctx, keys...)
}

// MemoryDeduper is the single-instance Deduper used when Redis is not configured.
type MemoryDeduper struct {
	mu    sync.Mutex
	store *collection.Cache
}

func NewMemoryDeduper() (*MemoryDeduper, error) {
	store, err := collection.NewCache(time.Hour, collection.WithName("activity-dedupe"))
	if err != nil {
		return nil, err
	}
	return &MemoryDeduper{store: store}, nil
}

func (d *MemoryDeduper) Claim(_ context.Context, key, value string, ttl time.Duration) (string, bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if v, ok := d.store.Get(key); ok {
		return v.(string), false, nil
	}
	d.store.SetWithExpire(key, value, ttl)
	return "", true, nil
}

func (d *MemoryDeduper) Replace(_ context.Context, key, value string, ttl time.Duration) error {
	d.store.SetWithExpire(key, value, ttl)
	return nil
}

func (d *MemoryDeduper) Release(_ context.Context, keys ...string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, key := range keys {
		d.store.Del(key)
	}
	return nil
}
