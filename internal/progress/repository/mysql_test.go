package repository

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"learnhub/internal/common/cache"
	"learnhub/internal/common/db"
	"learnhub/internal/progress/model"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

// fakeDB serves one progress row and records writes.
type fakeDB struct {
	mu      sync.Mutex
	xp      int64
	badges  string
	exists  bool
	execs   []string
	queries int
}

type fakeRow struct {
	err  error
	vals []any
}

func (r fakeRow) Scan(dest ...any) error {
	if r.err != nil {
		return r.err
	}
	for i := range dest {
		switch d := dest[i].(type) {
		case *int64:
			*d = r.vals[i].(int64)
		case *string:
			*d = r.vals[i].(string)
		}
	}
	return nil
}

type emptyRows struct{}

func (emptyRows) Next() bool                 { return false }
func (emptyRows) Scan(...any) error          { return nil }
func (emptyRows) Close() error               { return nil }
func (emptyRows) Err() error                 { return nil }
func (f *fakeDB) Ping(context.Context) error { return nil }
func (f *fakeDB) Close() error               { return nil }

type fakeResult struct{}

func (fakeResult) LastInsertId() (int64, error) { return 0, nil }
func (fakeResult) RowsAffected() (int64, error) { return 1, nil }

func (f *fakeDB) Query(context.Context, string, ...any) (db.Rows, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.queries++
	return emptyRows{}, nil
}

func (f *fakeDB) QueryRow(context.Context, string, ...any) db.Row {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.queries++
	if !f.exists {
		return fakeRow{err: sql.ErrNoRows}
	}
	return fakeRow{vals: []any{f.xp, f.badges}}
}

func (f *fakeDB) Exec(_ context.Context, query string, args ...any) (db.Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.execs = append(f.execs, query)
	switch {
	case strings.HasPrefix(query, "INSERT IGNORE INTO learner_progress"):
		if !f.exists {
			f.exists, f.badges = true, "[]"
		}
	case strings.HasPrefix(query, "UPDATE learner_progress"):
		f.xp = args[0].(int64)
		f.badges = args[1].(string)
	}
	return fakeResult{}, nil
}

func (f *fakeDB) Transaction(ctx context.Context, fn func(tx db.Transaction) error) error {
	return fn(fakeTx{f})
}

type fakeTx struct{ *fakeDB }

func (fakeTx) Commit() error   { return nil }
func (fakeTx) Rollback() error { return nil }

func newCache(t *testing.T) (cache.Cache, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	c, err := cache.NewRedisCacheWithClient(redis.NewClient(&redis.Options{Addr: mr.Addr()}))
	if err != nil {
		t.Fatalf("cache: %v", err)
	}
	return c, mr
}

func TestMySQLGetNotFoundIsCached(t *testing.T) {
	c, mr := newCache(t)
	fdb := &fakeDB{}
	repo := NewMySQLRepository(fdb, c, time.Minute)

	if _, err := repo.Get(context.Background(), "ghost"); !errors.Is(err, ErrProgressNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	if v, _ := mr.Get(progressKey("ghost")); v != cache.NullCacheValue {
		t.Fatalf("expected null marker, got %q", v)
	}
	before := fdb.queries
	if _, err := repo.Get(context.Background(), "ghost"); !errors.Is(err, ErrProgressNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	if fdb.queries != before {
		t.Fatalf("second miss should be served from cache")
	}
}

func TestMySQLUpdateWritesAndInvalidates(t *testing.T) {
	c, mr := newCache(t)
	fdb := &fakeDB{}
	repo := NewMySQLRepository(fdb, c, time.Minute)
	ctx := context.Background()

	if _, err := repo.Get(ctx, "amy"); !errors.Is(err, ErrProgressNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	p, err := repo.Update(ctx, "amy", func(p *model.Progress) error {
		p.XP += 10
		p.AddBadges("First Solve")
		p.Complete(model.CompletedChallenge{ID: "c1", Title: "C1", Difficulty: "easy", Language: "python", CompletedAt: time.Now()})
		return nil
	})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if p.XP != 10 || fdb.xp != 10 || fdb.badges != `["First Solve"]` {
		t.Fatalf("unexpected state %+v xp=%d badges=%s", p, fdb.xp, fdb.badges)
	}
	if mr.Exists(progressKey("amy")) {
		t.Fatalf("cache entry should be invalidated")
	}
	inserted := 0
	for _, q := range fdb.execs {
		if strings.HasPrefix(q, "INSERT INTO learner_completion") {
			inserted++
		}
	}
	if inserted != 1 {
		t.Fatalf("expected one completion insert, got %d", inserted)
	}

	got, err := repo.Get(ctx, "amy")
	if err != nil || got.XP != 10 || len(got.Badges) != 1 {
		t.Fatalf("unexpected reload %+v err=%v", got, err)
	}
	if !mr.Exists(progressKey("amy")) {
		t.Fatalf("reload should populate the cache")
	}
}

func TestMySQLUpdateErrorKeepsCache(t *testing.T) {
	c, mr := newCache(t)
	repo := NewMySQLRepository(&fakeDB{exists: true, badges: "[]"}, c, time.Minute)
	ctx := context.Background()
	if _, err := repo.Get(ctx, "zed"); err != nil {
		t.Fatalf("get: %v", err)
	}
	boom := errors.New("boom")
	if _, err := repo.Update(ctx, "zed", func(*model.Progress) error { return boom }); !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}
	if !mr.Exists(progressKey("zed")) {
		t.Fatalf("failed update must not invalidate")
	}
}
