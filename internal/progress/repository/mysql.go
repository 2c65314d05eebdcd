package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"learnhub/internal/common/cache"
	"learnhub/internal/common/db"
	"learnhub/internal/progress/model"
)

const (
	defaultProgressTTL      = 10 * time.Minute
	defaultProgressEmptyTTL = time.Minute
	progressKeyPrefix       = "progress:"
)

// Schema creates the progress tables.
var Schema = []string{
	`CREATE TABLE IF NOT EXISTS learner_progress (
		username VARCHAR(64) NOT NULL PRIMARY KEY,
		xp BIGINT NOT NULL DEFAULT 0,
		badges TEXT NOT NULL,
		created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
		updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP ON UPDATE CURRENT_TIMESTAMP
	)`,
	`CREATE TABLE IF NOT EXISTS learner_completion (
		id BIGINT NOT NULL AUTO_INCREMENT PRIMARY KEY,
		username VARCHAR(64) NOT NULL,
		challenge_id VARCHAR(128) NOT NULL,
		title VARCHAR(255) NOT NULL,
		difficulty VARCHAR(16) NOT NULL,
		language VARCHAR(16) NOT NULL,
		completed_at TIMESTAMP NOT NULL,
		UNIQUE KEY uk_user_challenge (username, challenge_id)
	)`,
}

// MySQLRepository stores progress in MySQL with a cache-aside read path.
type MySQLRepository struct {
	db       db.Database
	cache    cache.Cache
	ttl      time.Duration
	emptyTTL time.Duration
}

// NewMySQLRepository creates a repository. cacheClient may be nil.
func NewMySQLRepository(database db.Database, cacheClient cache.Cache, ttl time.Duration) *MySQLRepository {
	if ttl <= 0 {
		ttl = defaultProgressTTL
	}
	return &MySQLRepository{
		db:       database,
		cache:    cacheClient,
		ttl:      ttl,
		emptyTTL: defaultProgressEmptyTTL,
	}
}

func (r *MySQLRepository) Get(ctx context.Context, username string) (*model.Progress, error) {
	if r.cache == nil {
		return r.load(ctx, r.db, username, false)
	}
	p, err := cache.GetWithCached[*model.Progress](
		ctx,
		r.cache,
		progressKey(username),
		r.ttl,
		r.emptyTTL,
		func(p *model.Progress) bool { return p == nil },
		marshalProgress,
		unmarshalProgress,
		func(ctx context.Context) (*model.Progress, error) {
			p, err := r.load(ctx, r.db, username, false)
			if errors.Is(err, ErrProgressNotFound) {
				return nil, nil
			}
			return p, err
		},
	)
	if err != nil {
		return nil, err
	}
	if p == nil {
		return nil, ErrProgressNotFound
	}
	return p, nil
}

func (r *MySQLRepository) Update(ctx context.Context, username string, fn func(p *model.Progress) error) (*model.Progress, error) {
	var out *model.Progress
	write := func(ctx context.Context) error {
		return r.db.Transaction(ctx, func(tx db.Transaction) error {
			if _, err := tx.Exec(ctx,
				"INSERT IGNORE INTO learner_progress (username, xp, badges) VALUES (?, 0, '[]')", username); err != nil {
				return err
			}
			p, err := r.load(ctx, tx, username, true)
			if err != nil {
				return err
			}
			before := len(p.CompletedChallenges)
			if err := fn(p); err != nil {
				return err
			}
			badges, err := json.Marshal(p.Badges)
			if err != nil {
				return err
			}
			if _, err := tx.Exec(ctx, "UPDATE learner_progress SET xp = ?, badges = ? WHERE username = ?",
				p.XP, string(badges), username); err != nil {
				return err
			}
			for _, c := range p.CompletedChallenges[before:] {
				if _, err := tx.Exec(ctx,
					"INSERT INTO learner_completion (username, challenge_id, title, difficulty, language, completed_at) VALUES (?, ?, ?, ?, ?, ?)",
					username, c.ID, c.Title, c.Difficulty, c.Language, c.CompletedAt.UTC()); err != nil {
					return err
				}
			}
			out = p
			return nil
		})
	}
	if r.cache == nil {
		if err := write(ctx); err != nil {
			return nil, err
		}
		return out, nil
	}
	if err := cache.UpdateCached(ctx, r.cache, progressKey(username), write); err != nil {
		return nil, err
	}
	return out, nil
}

func (r *MySQLRepository) load(ctx context.Context, q db.Querier, username string, forUpdate bool) (*model.Progress, error) {
	query := "SELECT xp, badges FROM learner_progress WHERE username = ?"
	if forUpdate {
		query += " FOR UPDATE"
	}
	var (
		xp     int64
		badges string
	)
	if err := q.QueryRow(ctx, query, username).Scan(&xp, &badges); err != nil {
		if db.IsNoRows(err) {
			return nil, ErrProgressNotFound
		}
		return nil, err
	}
	p := model.New(username)
	p.XP = xp
	if badges != "" {
		if err := json.Unmarshal([]byte(badges), &p.Badges); err != nil {
			return nil, fmt.Errorf("decode badges: %w", err)
		}
	}

	rows, err := q.Query(ctx,
		"SELECT challenge_id, title, difficulty, language, completed_at FROM learner_completion WHERE username = ? ORDER BY id",
		username)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var c model.CompletedChallenge
		if err := rows.Scan(&c.ID, &c.Title, &c.Difficulty, &c.Language, &c.CompletedAt); err != nil {
			return nil, err
		}
		p.CompletedChallengeIDs = append(p.CompletedChallengeIDs, c.ID)
		p.CompletedChallenges = append(p.CompletedChallenges, c)
	}
	return p, rows.Err()
}

func progressKey(username string) string {
	return progressKeyPrefix + username
}

func marshalProgress(p *model.Progress) string {
	data, err := json.Marshal(p)
	if err != nil {
		return ""
	}
	return string(data)
}

func unmarshalProgress(s string) (*model.Progress, error) {
	var p model.Progress
	if err := json.Unmarshal([]byte(s), &p); err != nil {
		return nil, err
	}
	return p.Clone(), nil
}
