package repository

import (
	"context"
	"errors"
	"strings"
	"testing"

	"learnhub/internal/common/db"

	"github.com/go-sql-driver/mysql"
)

type execDB struct {
	err   error
	query string
	args  []any
}

func (d *execDB) Exec(_ context.Context, query string, args ...interface{}) (db.Result, error) {
	d.query = query
	d.args = args
	return nil, d.err
}

func (d *execDB) Query(context.Context, string, ...interface{}) (db.Rows, error) {
	return nil, errors.New("not implemented")
}

func (d *execDB) QueryRow(context.Context, string, ...interface{}) db.Row { return nil }

func (d *execDB) Transaction(context.Context, func(db.Transaction) error) error {
	return errors.New("not implemented")
}

func (d *execDB) Ping(context.Context) error { return nil }
func (d *execDB) Close() error               { return nil }

func TestMySQLSaveMapsDuplicate(t *testing.T) {
	d := &execDB{err: &mysql.MySQLError{Number: 1062, Message: "Duplicate entry 'r' for key 'uk_request_id'"}}
	repo := NewMySQLRepository(d)
	a := activity(1)
	a.RequestID = "r"
	if err := repo.Save(context.Background(), a); !errors.Is(err, ErrDuplicate) {
		t.Fatalf("expected ErrDuplicate, got %v", err)
	}
}

func TestMySQLSaveStoresNullRequestID(t *testing.T) {
	d := &execDB{}
	repo := NewMySQLRepository(d)
	if err := repo.Save(context.Background(), activity(1)); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if !strings.HasPrefix(d.query, "INSERT INTO learner_activity") {
		t.Fatalf("unexpected query: %s", d.query)
	}
	if d.args[4] != nil || d.args[5] != nil {
		t.Fatalf("expected NULL request id and details, got %v %v", d.args[4], d.args[5])
	}
}
