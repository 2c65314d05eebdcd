package cache

import (
	"context"
	"errors"
	"strconv"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newTestCache(t *testing.T) (*RedisCache, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	c, err := NewRedisCacheWithClient(redis.NewClient(&redis.Options{Addr: mr.Addr()}))
	if err != nil {
		t.Fatalf("new cache: %v", err)
	}
	return c, mr
}

func TestRedisCacheBasicOps(t *testing.T) {
	c, mr := newTestCache(t)
	ctx := context.Background()

	if _, err := c.Get(ctx, "missing"); !errors.Is(err, ErrCacheMiss) {
		t.Fatalf("expected cache miss, got %v", err)
	}
	ok, err := c.SetNX(ctx, "k", "v1", time.Minute)
	if err != nil || !ok {
		t.Fatalf("first SetNX: %v %v", ok, err)
	}
	ok, err = c.SetNX(ctx, "k", "v2", time.Minute)
	if err != nil || ok {
		t.Fatalf("second SetNX should lose: %v %v", ok, err)
	}
	if v, _ := c.Get(ctx, "k"); v != "v1" {
		t.Fatalf("unexpected value %q", v)
	}
	if v, err := c.GetDel(ctx, "k"); err != nil || v != "v1" {
		t.Fatalf("GetDel: %q %v", v, err)
	}
	if n, _ := c.Exists(ctx, "k"); n != 0 {
		t.Fatalf("key should be gone")
	}

	if n, _ := c.Incr(ctx, "counter"); n != 1 {
		t.Fatalf("unexpected incr %d", n)
	}
	if err := c.Expire(ctx, "counter", time.Second); err != nil {
		t.Fatalf("expire: %v", err)
	}
	mr.FastForward(2 * time.Second)
	if _, err := c.Get(ctx, "counter"); !errors.Is(err, ErrCacheMiss) {
		t.Fatalf("expected expiry, got %v", err)
	}
}

func TestRedisCacheListOps(t *testing.T) {
	c, _ := newTestCache(t)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		if err := c.LPush(ctx, "list", strconv.Itoa(i)); err != nil {
			t.Fatalf("lpush: %v", err)
		}
	}
	if err := c.LTrim(ctx, "list", 0, 2); err != nil {
		t.Fatalf("ltrim: %v", err)
	}
	items, err := c.LRange(ctx, "list", 0, -1)
	if err != nil {
		t.Fatalf("lrange: %v", err)
	}
	if len(items) != 3 || items[0] != "4" || items[2] != "2" {
		t.Fatalf("unexpected items %v", items)
	}
	if n, _ := c.LLen(ctx, "list"); n != 3 {
		t.Fatalf("unexpected len %d", n)
	}
}

func TestGetWithCached(t *testing.T) {
	c, _ := newTestCache(t)
	ctx := context.Background()
	calls := 0
	load := func(value string) func(context.Context) (string, error) {
		return func(context.Context) (string, error) {
			calls++
			return value, nil
		}
	}
	isEmpty := func(s string) bool { return s == "" }
	identity := func(s string) string { return s }
	parse := func(s string) (string, error) { return s, nil }

	for i := 0; i < 2; i++ {
		v, err := GetWithCached(ctx, c, "xp:ada", time.Minute, time.Second, isEmpty, identity, parse, load("120"))
		if err != nil || v != "120" {
			t.Fatalf("round %d: %q %v", i, v, err)
		}
	}
	if calls != 1 {
		t.Fatalf("loader should run once, ran %d", calls)
	}

	for i := 0; i < 2; i++ {
		v, _ := GetWithCached(ctx, c, "xp:nobody", time.Minute, time.Second, isEmpty, identity, parse, load(""))
		if v != "" {
			t.Fatalf("expected empty value")
		}
	}
	if calls != 2 {
		t.Fatalf("empty result should be cached, loader ran %d", calls)
	}

	if err := UpdateCached(ctx, c, "xp:ada", func(context.Context) error { return nil }); err != nil {
		t.Fatalf("update: %v", err)
	}
	if _, err := c.Get(ctx, "xp:ada"); !errors.Is(err, ErrCacheMiss) {
		t.Fatalf("update should invalidate key")
	}
}

func TestJitterTTL(t *testing.T) {
	for i := 0; i < 20; i++ {
		got := JitterTTL(time.Hour)
		if got > time.Hour || got < 54*time.Minute {
			t.Fatalf("jitter out of range: %s", got)
		}
	}
	if JitterTTL(0) != 0 {
		t.Fatalf("zero ttl must stay zero")
	}
}
