package repository

import (
	"context"
	"errors"
	"sync"

	"learnhub/internal/activity/model"
)

const defaultHistoryCap = 1000

// ErrDuplicate reports an activity whose id or request id is already stored.
var ErrDuplicate = errors.New("activity already stored")

// Repository persists activity entries.
type Repository interface {
	// Save appends a. It returns ErrDuplicate when a was stored before.
	Save(ctx context.Context, a *model.Activity) error
	// History returns up to limit entries for username, newest first.
	History(ctx context.Context, username string, limit int) ([]model.Activity, error)
}

// MemoryRepository keeps a bounded history per user in process memory.
type MemoryRepository struct {
	mu       sync.Mutex
	byUser   map[string][]model.Activity
	seen     map[string]struct{}
	capacity int
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		byUser:   make(map[string][]model.Activity),
		seen:     make(map[string]struct{}),
		capacity: defaultHistoryCap,
	}
}

func (r *MemoryRepository) Save(_ context.Context, a *model.Activity) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	keys := []string{"id:" + a.ID}
	if a.RequestID != "" {
		keys = append(keys, "req:"+a.RequestID)
	}
	for _, k := range keys {
		if _, ok := r.seen[k]; ok {
			return ErrDuplicate
		}
	}
	for _, k := range keys {
		r.seen[k] = struct{}{}
	}
	list := append(r.byUser[a.Username], *a)
	if len(list) > r.capacity {
		list = list[len(list)-r.capacity:]
	}
	r.byUser[a.Username] = list
	return nil
}

func (r *MemoryRepository) History(_ context.Context, username string, limit int) ([]model.Activity, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	list := r.byUser[username]
	out := make([]model.Activity, 0, min(limit, len(list)))
	for i := len(list) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, list[i])
	}
	return out, nil
}
