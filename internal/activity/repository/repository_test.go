package repository

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"learnhub/internal/activity/model"
	"learnhub/internal/common/cache"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func activity(i int) *model.Activity {
	return &model.Activity{
		ID:        fmt.Sprintf("id-%d", i),
		Username:  "alice",
		Action:    model.ActionGeneral,
		Status:    model.StatusCompleted,
		CreatedAt: time.Unix(int64(i), 0).UTC(),
	}
}

func exercise(t *testing.T, repo Repository) {
	t.Helper()
	ctx := context.Background()
	for i := 1; i <= 3; i++ {
		if err := repo.Save(ctx, activity(i)); err != nil {
			t.Fatalf("Save: %v", err)
		}
	}
	if err := repo.Save(ctx, activity(2)); !errors.Is(err, ErrDuplicate) {
		t.Fatalf("expected ErrDuplicate, got %v", err)
	}
	items, err := repo.History(ctx, "alice", 2)
	if err != nil {
		t.Fatalf("History: %v", err)
	}
	if len(items) != 2 || items[0].ID != "id-3" || items[1].ID != "id-2" {
		t.Fatalf("unexpected history: %+v", items)
	}
	items, _ = repo.History(ctx, "nobody", 5)
	if len(items) != 0 {
		t.Fatalf("expected empty history")
	}
}

func TestMemoryRepository(t *testing.T) {
	exercise(t, NewMemoryRepository())
}

func TestMemoryRepositoryRequestID(t *testing.T) {
	repo := NewMemoryRepository()
	a := activity(1)
	a.RequestID = "r"
	b := activity(2)
	b.RequestID = "r"
	if err := repo.Save(context.Background(), a); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if err := repo.Save(context.Background(), b); !errors.Is(err, ErrDuplicate) {
		t.Fatalf("expected duplicate request id, got %v", err)
	}
}

func TestRedisListRepository(t *testing.T) {
	mr := miniredis.RunT(t)
	c, err := cache.NewRedisCacheWithClient(redis.NewClient(&redis.Options{Addr: mr.Addr()}))
	if err != nil {
		t.Fatalf("cache: %v", err)
	}
	repo := NewRedisListRepository(c)
	repo.capacity = 3
	exercise(t, repo)

	if err := repo.Save(context.Background(), activity(4)); err != nil {
		t.Fatalf("Save: %v", err)
	}
	n, _ := c.LLen(context.Background(), historyKeyPrefix+"alice")
	if n != 3 {
		t.Fatalf("expected list trimmed to 3, got %d", n)
	}
}
