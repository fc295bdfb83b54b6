package db

import (
	"context"
	"database/sql"

	"github.com/hpungsan/promptbench/internal/errors"
	"github.com/hpungsan/promptbench/internal/prompt"
)

// PutWorkspace inserts or replaces a workspace by token.
func PutWorkspace(ctx context.Context, db *sql.DB, w *prompt.Workspace) error {
	positive, err := recordsToJSON(w.Positive)
	if err != nil {
		return errors.NewInternal(err)
	}
	negative, err := recordsToJSON(w.Negative)
	if err != nil {
		return errors.NewInternal(err)
	}

	query := `
		INSERT INTO workspaces (token, topic, positive_json, negative_json, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(token) DO UPDATE SET
			topic = excluded.topic,
			positive_json = excluded.positive_json,
			negative_json = excluded.negative_json,
			updated_at = excluded.updated_at
	`
	_, err = db.ExecContext(ctx, query, w.Token, w.Topic, positive, negative, w.CreatedAt, w.UpdatedAt)
	if err != nil {
		return errors.NewInternal(err)
	}
	return nil
}

// GetWorkspace retrieves a workspace by token.
func GetWorkspace(ctx context.Context, db *sql.DB, token string) (*prompt.Workspace, error) {
	query := `
		SELECT token, topic, positive_json, negative_json, created_at, updated_at
		FROM workspaces
		WHERE token = ?
	`
	var (
		w        prompt.Workspace
		positive string
		negative string
	)
	err := db.QueryRowContext(ctx, query, token).Scan(&w.Token, &w.Topic, &positive, &negative, &w.CreatedAt, &w.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, errors.NewNotFound("workspace", token)
	}
	if err != nil {
		return nil, errors.NewInternal(err)
	}
	if w.Positive, err = recordsFromJSON(positive); err != nil {
		return nil, errors.NewInternal(err)
	}
	if w.Negative, err = recordsFromJSON(negative); err != nil {
		return nil, errors.NewInternal(err)
	}
	return &w, nil
}

// DeleteWorkspace removes a workspace. Missing tokens are not an error.
func DeleteWorkspace(ctx context.Context, db *sql.DB, token string) error {
	if _, err := db.ExecContext(ctx, "DELETE FROM workspaces WHERE token = ?", token); err != nil {
		return errors.NewInternal(err)
	}
	return nil
}

// DeleteIdleWorkspaces removes workspaces not updated since cutoff (Unix seconds).
func DeleteIdleWorkspaces(ctx context.Context, db *sql.DB, cutoff int64) (int, error) {
	result, err := db.ExecContext(ctx, "DELETE FROM workspaces WHERE updated_at < ?", cutoff)
	if err != nil {
		return 0, errors.NewInternal(err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, errors.NewInternal(err)
	}
	return int(n), nil
}
