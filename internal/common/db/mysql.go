package db

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/go-sql-driver/mysql"
)

const pingTimeout = 5 * time.Second

// MySQLConfig configures the progress and activity store. An empty DSN keeps
// both in process memory.
type MySQLConfig struct {
	// DSN, e.g. "user:pass@tcp(host:3306)/learnhub?parseTime=true".
	DSN                string        `yaml:"dsn"`
	MaxOpenConnections int           `yaml:"maxOpenConnections"`
	MaxIdleConnections int           `yaml:"maxIdleConnections"`
	ConnMaxLifetime    time.Duration `yaml:"connMaxLifetime"`
	ConnMaxIdleTime    time.Duration `yaml:"connMaxIdleTime"`
	// MigrateOnStart applies the repositories' schema statements at startup.
	MigrateOnStart bool `yaml:"migrateOnStart"`
}

func (c MySQLConfig) withDefaults() MySQLConfig {
	if c.MaxOpenConnections == 0 {
		c.MaxOpenConnections = 25
	}
	if c.MaxIdleConnections == 0 {
		c.MaxIdleConnections = 5
	}
	if c.ConnMaxLifetime == 0 {
		c.ConnMaxLifetime = 5 * time.Minute
	}
	if c.ConnMaxIdleTime == 0 {
		c.ConnMaxIdleTime = 10 * time.Minute
	}
	return c
}

// sqlConn is the subset of *sql.DB and *sql.Tx used by conn.
type sqlConn interface {
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}

type conn struct {
	c sqlConn
}

func (q conn) Query(ctx context.Context, query string, args ...interface{}) (Rows, error) {
	rows, err := q.c.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query failed: %w", err)
	}
	return rows, nil
}

func (q conn) QueryRow(ctx context.Context, query string, args ...interface{}) Row {
	return q.c.QueryRowContext(ctx, query, args...)
}

func (q conn) Exec(ctx context.Context, query string, args ...interface{}) (Result, error) {
	res, err := q.c.ExecContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("exec failed: %w", err)
	}
	return res, nil
}

// MySQL is a pooled MySQL connection.
type MySQL struct {
	conn
	db *sql.DB
}

// OpenMySQL opens the pool and pings it once.
func OpenMySQL(cfg MySQLConfig) (*MySQL, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("mysql dsn is empty")
	}
	cfg = cfg.withDefaults()
	pool, err := sql.Open("mysql", cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("open mysql failed: %w", err)
	}
	pool.SetMaxOpenConns(cfg.MaxOpenConnections)
	pool.SetMaxIdleConns(cfg.MaxIdleConnections)
	pool.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	pool.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)

	ctx, cancel := context.WithTimeout(context.Background(), pingTimeout)
	defer cancel()
	if err := pool.PingContext(ctx); err != nil {
		_ = pool.Close()
		return nil, fmt.Errorf("ping mysql failed: %w", err)
	}
	return &MySQL{conn: conn{c: pool}, db: pool}, nil
}

func (m *MySQL) Transaction(ctx context.Context, fn func(tx Transaction) error) error {
	sqlTx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction failed: %w", err)
	}
	t := &tx{conn: conn{c: sqlTx}, tx: sqlTx}
	if err := fn(t); err != nil {
		_ = sqlTx.Rollback()
		return err
	}
	return t.Commit()
}

func (m *MySQL) Close() error {
	return m.db.Close()
}

// Migrate runs idempotent schema statements in order.
func (m *MySQL) Migrate(ctx context.Context, statements ...string) error {
	for _, stmt := range statements {
		if _, err := m.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate failed: %w", err)
		}
	}
	return nil
}

type tx struct {
	conn
	tx *sql.Tx
}

func (t *tx) Commit() error {
	if err := t.tx.Commit(); err != nil {
		return fmt.Errorf("commit failed: %w", err)
	}
	return nil
}

func (t *tx) Rollback() error {
	return t.tx.Rollback()
}

var (
	_ Database    = (*MySQL)(nil)
	_ Transaction = (*tx)(nil)
)
