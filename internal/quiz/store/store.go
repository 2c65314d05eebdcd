// Package store keeps generated quiz questions until they are answered or expire.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"learnhub/internal/common/cache"
	"learnhub/internal/quiz/model"

	"github.com/zeromicro/go-zero/core/collection"
)

const questionKeyPrefix = "quiz:question:"

// ErrQuestionNotFound reports an unknown or expired question id.
var ErrQuestionNotFound = errors.New("question not found")

// QuestionStore holds questions with their answers.
type QuestionStore interface {
	Put(ctx context.Context, q *model.Question, ttl time.Duration) error
	Get(ctx context.Context, id string) (*model.Question, error)
}

// RedisStore keeps questions in Redis so any instance can grade them.
type RedisStore struct {
	cache cache.Cache
}

func NewRedisStore(cacheClient cache.Cache) *RedisStore {
	return &RedisStore{cache: cacheClient}
}

func (s *RedisStore) Put(ctx context.Context, q *model.Question, ttl time.Duration) error {
	data, err := json.Marshal(q)
	if err != nil {
		return fmt.Errorf("encode question: %w", err)
	}
	return s.cache.Set(ctx, questionKeyPrefix+q.ID, string(data), ttl)
}

func (s *RedisStore) Get(ctx context.Context, id string) (*model.Question, error) {
	raw, err := s.cache.Get(ctx, questionKeyPrefix+id)
	if errors.Is(err, cache.ErrCacheMiss) {
		return nil, ErrQuestionNotFound
	}
	if err != nil {
		return nil, err
	}
	var q model.Question
	if err := json.Unmarshal([]byte(raw), &q); err != nil {
		return nil, fmt.Errorf("decode question: %w", err)
	}
	return &q, nil
}

// MemoryStore is a process-local store with expiry.
type MemoryStore struct {
	items *collection.Cache
}

func NewMemoryStore(ttl time.Duration) (*MemoryStore, error) {
	items, err := collection.NewCache(ttl, collection.WithName("quiz-questions"))
	if err != nil {
		return nil, err
	}
	return &MemoryStore{items: items}, nil
}

func (s *MemoryStore) Put(_ context.Context, q *model.Question, ttl time.Duration) error {
	cp := *q
	cp.Options = append([]string(nil), q.Options...)
	s.items.SetWithExpire(q.ID, &cp, ttl)
	return nil
}

func (s *MemoryStore) Get(_ context.Context, id string) (*model.Question, error) {
	v, ok := s.items.Get(id)
	if !ok {
		return nil, ErrQuestionNotFound
	}
	cp := *v.(*model.Question)
	return &cp, nil
}
