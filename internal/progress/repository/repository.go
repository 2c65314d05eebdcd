// Package repository stores learner progress in MySQL or in memory.
package repository

import (
	"context"
	"errors"
	"sync"

	"learnhub/internal/progress/model"
)

// ErrProgressNotFound is returned by Get for unknown users.
var ErrProgressNotFound = errors.New("progress not found")

// Repository persists progress. Update is atomic per username and creates the record when missing.
type Repository interface {
	Get(ctx context.Context, username string) (*model.Progress, error)
	Update(ctx context.Context, username string, fn func(p *model.Progress) error) (*model.Progress, error)
}

// MemoryRepository keeps progress in process. It is used when no database is configured.
type MemoryRepository struct {
	mu   sync.Mutex
	data map[string]*model.Progress
}

// NewMemoryRepository creates an empty in-memory repository.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{data: make(map[string]*model.Progress)}
}

func (r *MemoryRepository) Get(_ context.Context, username string) (*model.Progress, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.data[username]
	if !ok {
		return nil, ErrProgressNotFound
	}
	return p.Clone(), nil
}

func (r *MemoryRepository) Update(_ context.Context, username string, fn func(p *model.Progress) error) (*model.Progress, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	current, ok := r.data[username]
	if !ok {
		current = model.New(username)
	}
	next := current.Clone()
	if err := fn(next); err != nil {
		return nil, err
	}
	r.data[username] = next
	return next.Clone(), nil
}
