package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/hpungsan/promptbench/internal/errors"
	"github.com/hpungsan/promptbench/internal/keyword"
	"github.com/hpungsan/promptbench/internal/prompt"
)

const promptColumns = `
	id, topic, body, instructions, model,
	tags_json, positive_json, negative_json,
	status, task_id, revision, created_at, updated_at, deleted_at`

// InsertPrompt stores a new prompt.
func InsertPrompt(ctx context.Context, db *sql.DB, p *prompt.Prompt) error {
	tagsJSON, err := tagsToJSON(p.Tags)
	if err != nil {
		return errors.NewInternal(err)
	}
	positive, err := recordsToJSON(p.Positive)
	if err != nil {
		return errors.NewInternal(err)
	}
	negative, err := recordsToJSON(p.Negative)
	if err != nil {
		return errors.NewInternal(err)
	}
	if p.Status == "" {
		p.Status = prompt.StatusDraft
	}
	if p.Revision == 0 {
		p.Revision = 1
	}

	query := `
		INSERT INTO prompts (` + promptColumns + `
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, NULL)
	`
	_, err = db.ExecContext(ctx, query,
		p.ID, p.Topic, p.Body, p.Instructions, p.Model,
		tagsJSON, positive, negative,
		string(p.Status), toNullString(p.TaskID), p.Revision, p.CreatedAt, p.UpdatedAt,
	)
	if err != nil {
		return errors.NewInternal(err)
	}
	return nil
}

// GetPrompt retrieves a prompt by its ULID.
// If includeDeleted is false, soft-deleted prompts are excluded.
func GetPrompt(ctx context.Context, db *sql.DB, id string, includeDeleted bool) (*prompt.Prompt, error) {
	query := `SELECT ` + promptColumns + ` FROM prompts WHERE id = ?`
	if !includeDeleted {
		query += " AND deleted_at IS NULL"
	}

	p, err := scanPrompt(db.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, errors.NewNotFound("draft", id)
	}
	if err != nil {
		return nil, errors.NewInternal(err)
	}
	return p, nil
}

// UpdatePrompt writes the content, status and task of an existing prompt,
// bumps its revision and sets updated_at. The struct is updated in place.
func UpdatePrompt(ctx context.Context, db *sql.DB, p *prompt.Prompt) error {
	tagsJSON, err := tagsToJSON(p.Tags)
	if err != nil {
		return errors.NewInternal(err)
	}
	positive, err := recordsToJSON(p.Positive)
	if err != nil {
		return errors.NewInternal(err)
	}
	negative, err := recordsToJSON(p.Negative)
	if err != nil {
		return errors.NewInternal(err)
	}

	now := time.Now().Unix()
	query := `
		UPDATE prompts
		SET topic = ?, body = ?, instructions = ?, model = ?,
			tags_json = ?, positive_json = ?, negative_json = ?,
			status = ?, task_id = ?, revision = revision + 1, updated_at = ?
		WHERE id = ? AND deleted_at IS NULL
		RETURNING revision
	`
	var revision int
	err = db.QueryRowContext(ctx, query,
		p.Topic, p.Body, p.Instructions, p.Model,
		tagsJSON, positive, negative,
		string(p.Status), toNullString(p.TaskID), now,
		p.ID,
	).Scan(&revision)
	if err == sql.ErrNoRows {
		return errors.NewNotFound("draft", p.ID)
	}
	if err != nil {
		return errors.NewInternal(err)
	}

	p.Revision = revision
	p.UpdatedAt = now
	return nil
}

// SoftDeletePrompt marks a prompt as deleted by setting deleted_at.
func SoftDeletePrompt(ctx context.Context, db *sql.DB, id string) error {
	query := `
		UPDATE prompts
		SET deleted_at = ?
		WHERE id = ? AND deleted_at IS NULL
	`
	result, err := db.ExecContext(ctx, query, time.Now().Unix(), id)
	if err != nil {
		return errors.NewInternal(err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return errors.NewInternal(err)
	}
	if rowsAffected == 0 {
		return errors.NewNotFound("draft", id)
	}
	return nil
}

// ListFilter narrows ListPrompts.
type ListFilter struct {
	Status         *prompt.Status // nil: any status
	IncludeDeleted bool
}

// ListPrompts returns prompt summaries, most recently updated first, plus
// the total count matching the filter.
func ListPrompts(ctx context.Context, db *sql.DB, filter ListFilter, limit, offset int) ([]prompt.Summary, int, error) {
	where := " WHERE 1=1"
	var args []any
	if !filter.IncludeDeleted {
		where += " AND deleted_at IS NULL"
	}
	if filter.Status != nil {
		where += " AND status = ?"
		args = append(args, string(*filter.Status))
	}

	var total int
	if err := db.QueryRowContext(ctx, "SELECT COUNT(*) FROM prompts"+where, args...).Scan(&total); err != nil {
		return nil, 0, errors.NewInternal(err)
	}

	query := `SELECT ` + promptColumns + ` FROM prompts` + where +
		` ORDER BY updated_at DESC, id DESC LIMIT ? OFFSET ?`
	rows, err := db.QueryContext(ctx, query, append(args, limit, offset)...)
	if err != nil {
		return nil, 0, errors.NewInternal(err)
	}
	defer rows.Close()

	var summaries []prompt.Summary
	for rows.Next() {
		p, err := scanPrompt(rows)
		if err != nil {
			return nil, 0, errors.NewInternal(err)
		}
		summaries = append(summaries, p.ToSummary())
	}
	if err := rows.Err(); err != nil {
		return nil, 0, errors.NewInternal(err)
	}
	return summaries, total, nil
}

// PurgeDeleted permanently deletes soft-deleted prompts, optionally only those
// deleted more than olderThanDays days ago.
func PurgeDeleted(ctx context.Context, db *sql.DB, olderThanDays *int) (int, error) {
	query := "DELETE FROM prompts WHERE deleted_at IS NOT NULL"
	var args []any
	if olderThanDays != nil {
		cutoff := time.Now().Add(-time.Duration(*olderThanDays) * 24 * time.Hour).Unix()
		query += " AND deleted_at < ?"
		args = append(args, cutoff)
	}

	result, err := db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, errors.NewInternal(err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, errors.NewInternal(err)
	}
	return int(n), nil
}

// rowScanner is satisfied by *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

// scanPrompt scans a single row into a Prompt.
func scanPrompt(row rowScanner) (*prompt.Prompt, error) {
	var (
		p         prompt.Prompt
		status    string
		tagsJSON  sql.NullString
		positive  string
		negative  string
		taskID    sql.NullString
		deletedAt sql.NullInt64
	)

	err := row.Scan(
		&p.ID, &p.Topic, &p.Body, &p.Instructions, &p.Model,
		&tagsJSON, &positive, &negative,
		&status, &taskID, &p.Revision, &p.CreatedAt, &p.UpdatedAt, &deletedAt,
	)
	if err != nil {
		return nil, err
	}

	p.Status = prompt.Status(status)
	p.TaskID = fromNullString(taskID)
	if deletedAt.Valid {
		p.DeletedAt = &deletedAt.Int64
	}
	if tagsJSON.Valid && tagsJSON.String != "" {
		if err := json.Unmarshal([]byte(tagsJSON.String), &p.Tags); err != nil {
			return nil, err
		}
	}
	if p.Positive, err = recordsFromJSON(positive); err != nil {
		return nil, err
	}
	if p.Negative, err = recordsFromJSON(negative); err != nil {
		return nil, err
	}

	return &p, nil
}

// tagsToJSON encodes tags; an empty list is stored as NULL.
func tagsToJSON(tags []string) (sql.NullString, error) {
	if len(tags) == 0 {
		return sql.NullString{}, nil
	}
	data, err := json.Marshal(tags)
	if err != nil {
		return sql.NullString{}, err
	}
	return sql.NullString{String: string(data), Valid: true}, nil
}

// recordsToJSON encodes a keyword collection; nil is stored as "[]".
func recordsToJSON(records []keyword.Record) (string, error) {
	if records == nil {
		records = []keyword.Record{}
	}
	data, err := json.Marshal(records)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func recordsFromJSON(s string) ([]keyword.Record, error) {
	records := []keyword.Record{}
	if s == "" {
		return records, nil
	}
	if err := json.Unmarshal([]byte(s), &records); err != nil {
		return nil, err
	}
	return records, nil
}

// toNullString converts a *string to sql.NullString.
func toNullString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

// fromNullString converts a sql.NullString to *string.
func fromNullString(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	return &ns.String
}
