package repository

import (
	"context"
	"database/sql"
	"encoding/json"

	"learnhub/internal/activity/model"
	"learnhub/internal/common/db"
)

// Schema creates the activity table.
var Schema = []string{
	`CREATE TABLE IF NOT EXISTS learner_activity (
		id VARCHAR(36) NOT NULL PRIMARY KEY,
		username VARCHAR(64) NOT NULL,
		action VARCHAR(32) NOT NULL,
		status VARCHAR(16) NOT NULL,
		request_id VARCHAR(128) NULL,
		details TEXT NULL,
		created_at TIMESTAMP(3) NOT NULL,
		UNIQUE KEY uk_request_id (request_id),
		KEY idx_user_created (username, created_at)
	)`,
}

// MySQLRepository stores activity rows in MySQL.
type MySQLRepository struct {
	db db.Database
}

func NewMySQLRepository(database db.Database) *MySQLRepository {
	return &MySQLRepository{db: database}
}

func (r *MySQLRepository) Save(ctx context.Context, a *model.Activity) error {
	var requestID, details any
	if a.RequestID != "" {
		requestID = a.RequestID
	}
	if len(a.Details) > 0 {
		details = string(a.Details)
	}
	_, err := r.db.Exec(ctx,
		"INSERT INTO learner_activity (id, username, action, status, request_id, details, created_at) VALUES (?, ?, ?, ?, ?, ?, ?)",
		a.ID, a.Username, a.Action, a.Status, requestID, details, a.CreatedAt.UTC())
	if db.IsDuplicate(err) {
		return ErrDuplicate
	}
	return err
}

func (r *MySQLRepository) History(ctx context.Context, username string, limit int) ([]model.Activity, error) {
	rows, err := r.db.Query(ctx,
		"SELECT id, username, action, status, request_id, details, created_at FROM learner_activity WHERE username = ? ORDER BY created_at DESC, id DESC LIMIT ?",
		username, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]model.Activity, 0, limit)
	for rows.Next() {
		var (
			a         model.Activity
			requestID sql.NullString
			details   sql.NullString
		)
		if err := rows.Scan(&a.ID, &a.Username, &a.Action, &a.Status, &requestID, &details, &a.CreatedAt); err != nil {
			return nil, err
		}
		a.RequestID = requestID.String
		if details.Valid && details.String != "" {
			a.Details = json.RawMessage(details.String)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}
