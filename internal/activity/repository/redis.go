package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"learnhub/internal/activity/model"
	"learnhub/internal/common/cache"
)

const (
	historyKeyPrefix = "activity:history:"
	storedKeyPrefix  = "activity:stored:"
	storedMarkerTTL  = 24 * time.Hour
)

// RedisListRepository keeps a capped history list per user in Redis.
// It serves deployments without MySQL.
type RedisListRepository struct {
	cache    cache.Cache
	capacity int64
}

func NewRedisListRepository(cacheClient cache.Cache) *RedisListRepository {
	return &RedisListRepository{cache: cacheClient, capacity: defaultHistoryCap}
}

func (r *RedisListRepository) Save(ctx context.Context, a *model.Activity) error {
	ok, err := r.cache.SetNX(ctx, storedKeyPrefix+a.ID, "1", storedMarkerTTL)
	if err != nil {
		return err
	}
	if !ok {
		return ErrDuplicate
	}
	data, err := json.Marshal(a)
	if err != nil {
		return fmt.Errorf("encode activity: %w", err)
	}
	key := historyKeyPrefix + a.Username
	if err := r.cache.LPush(ctx, key, string(data)); err != nil {
		return err
	}
	return r.cache.LTrim(ctx, key, 0, r.capacity-1)
}

func (r *RedisListRepository) History(ctx context.Context, username string, limit int) ([]model.Activity, error) {
	items, err := r.cache.LRange(ctx, historyKeyPrefix+username, 0, int64(limit)-1)
	if err != nil {
		return nil, err
	}
	out := make([]model.Activity, 0, len(items))
	for _, item := range items {
		var a model.Activity
		if err := json.Unmarshal([]byte(item), &a); err != nil {
			continue
		}
		out = append(out, a)
	}
	return out, nil
}
