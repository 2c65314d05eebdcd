package db

import (
	"database/sql"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/go-sql-driver/mysql"
)

func TestIsDuplicate(t *testing.T) {
	err := fmt.Errorf("insert: %w", &mysql.MySQLError{
		Number:  1062,
		Message: "Duplicate entry 'req-1' for key 'learner_activity.uk_request_id'",
	})
	if !IsDuplicate(err) {
		t.Fatalf("expected unique violation")
	}
	if IsDuplicate(&mysql.MySQLError{Number: 1213}) {
		t.Fatalf("deadlock is not a unique violation")
	}
	if IsDuplicate(errors.New("boom")) {
		t.Fatalf("plain error is not a unique violation")
	}
}

func TestIsNoRows(t *testing.T) {
	if !IsNoRows(fmt.Errorf("get: %w", sql.ErrNoRows)) {
		t.Fatalf("wrapped ErrNoRows should match")
	}
	if IsNoRows(errors.New("other")) {
		t.Fatalf("other errors should not match")
	}
}

func TestMySQLConfigDefaults(t *testing.T) {
	cfg := MySQLConfig{DSN: "x", MaxOpenConnections: 7}.withDefaults()
	if cfg.MaxOpenConnections != 7 || cfg.MaxIdleConnections != 5 || cfg.ConnMaxLifetime != 5*time.Minute {
		t.Fatalf("unexpected defaults: %+v", cfg)
	}
	if _, err := OpenMySQL(MySQLConfig{}); err == nil {
		t.Fatalf("expected error for empty dsn")
	}
}
