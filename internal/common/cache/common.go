package cache

import (
	"context"
	"crypto/rand"
	"errors"
	"math/big"
	"time"
)

// ErrCacheMiss is returned by Get and GetDel when the key does not exist.
var ErrCacheMiss = errors.New("cache miss")

// NullCacheValue is a sentinel value to represent null/empty data in cache
// This prevents cache penetration by caching the absence of data
const NullCacheValue = "$NULL$"

// GetWithCached implements cache-aside pattern with null value caching.
// It tries the cache first; on a miss it calls fn and stores the result.
// Empty results are cached for emptyTTL so repeated misses do not reach the source.
//
// Example:
//
//	p, err := GetWithCached(ctx, c, "progress:alice", time.Hour, time.Minute,
//		func(p *Progress) bool { return p == nil },
//		marshalProgress, unmarshalProgress,
//		func(ctx context.Context) (*Progress, error) { return repo.Get(ctx, "alice") })
func GetWithCached[T any](
	ctx context.Context,
	cache BasicOps,
	key string,
	ttl time.Duration,
	emptyTTL time.Duration,
	isEmpty func(T) bool,
	marshal func(T) string,
	unmarshal func(string) (T, error),
	fn func(context.Context) (T, error),
) (T, error) {
	var zero T

	if cached, err := cache.Get(ctx, key); err == nil && cached != "" {
		if cached == NullCacheValue {
			return zero, nil
		}
		if result, err := unmarshal(cached); err == nil {
			return result, nil
		}
	}

	data, err := fn(ctx)
	if err != nil {
		return zero, err
	}

	if isEmpty(data) {
		_ = cache.Set(ctx, key, NullCacheValue, emptyTTL)
		return zero, nil
	}

	_ = cache.Set(ctx, key, marshal(data), JitterTTL(ttl))
	return data, nil
}

// UpdateCached runs fn and invalidates key when it succeeds.
func UpdateCached(
	ctx context.Context,
	cache BasicOps,
	key string,
	fn func(context.Context) error,
) error {
	if err := fn(ctx); err != nil {
		return err
	}

	_ = cache.Del(ctx, key)
	return nil
}

// JitterTTL shortens ttl by up to 10% so keys written together do not expire together.
func JitterTTL(ttl time.Duration) time.Duration {
	if ttl <= 0 {
		return ttl
	}
	maxJitter := int64(ttl / 10)
	if maxJitter <= 0 {
		return ttl
	}
	n, err := rand.Int(rand.Reader, big.NewInt(maxJitter+1))
	if err != nil {
		return ttl
	}
	return ttl - time.Duration(n.Int64())
}
