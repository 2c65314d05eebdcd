package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"learnhub/internal/common/cache"
	"learnhub/internal/quiz/model"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func sample() *model.Question {
	return &model.Question{
		ID:          "q1",
		Language:    "python",
		Question:    "What does len([1, 2]) return?",
		Options:     []string{"1", "2", "3", "error"},
		AnswerIndex: 1,
		Explanation: "The list has two items.",
	}
}

func TestRedisStoreExpires(t *testing.T) {
	mr := miniredis.RunT(t)
	c, err := cache.NewRedisCacheWithClient(redis.NewClient(&redis.Options{Addr: mr.Addr()}))
	if err != nil {
		t.Fatalf("cache: %v", err)
	}
	s := NewRedisStore(c)
	ctx := context.Background()
	if err := s.Put(ctx, sample(), time.Hour); err != nil {
		t.Fatalf("Put: %v", err)
	}
	q, err := s.Get(ctx, "q1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if q.AnswerIndex != 1 || len(q.Options) != 4 {
		t.Fatalf("unexpected question: %+v", q)
	}
	mr.FastForward(time.Hour + time.Second)
	if _, err := s.Get(ctx, "q1"); !errors.Is(err, ErrQuestionNotFound) {
		t.Fatalf("expected expiry, got %v", err)
	}
}

func TestMemoryStore(t *testing.T) {
	s, err := NewMemoryStore(time.Hour)
	if err != nil {
		t.Fatalf("NewMemoryStore: %v", err)
	}
	ctx := context.Background()
	if _, err := s.Get(ctx, "q1"); !errors.Is(err, ErrQuestionNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	orig := sample()
	if err := s.Put(ctx, orig, time.Hour); err != nil {
		t.Fatalf("Put: %v", err)
	}
	orig.Options[0] = "changed"
	q, err := s.Get(ctx, "q1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if q.Options[0] != "1" {
		t.Fatalf("store must keep its own copy")
	}
}
