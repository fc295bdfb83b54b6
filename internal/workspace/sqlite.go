package workspace

import (
	"context"
	"database/sql"
	"time"

	"github.com/hpungsan/promptbench/internal/db"
	"github.com/hpungsan/promptbench/internal/errors"
	"github.com/hpungsan/promptbench/internal/prompt"
)

// SQLStore keeps workspaces in the workspaces table. Idle rows are treated as
// missing on read and removed by Cleanup.
type SQLStore struct {
	db  *sql.DB
	ttl time.Duration
	now func() time.Time
}

// NewSQLStore creates a store over an initialized database. ttl <= 0 disables expiry.
func NewSQLStore(database *sql.DB, ttl time.Duration) *SQLStore {
	return &SQLStore{db: database, ttl: ttl, now: time.Now}
}

func (s *SQLStore) Get(ctx context.Context, token string) (*prompt.Workspace, error) {
	w, err := db.GetWorkspace(ctx, s.db, token)
	if err != nil {
		return nil, err
	}
	if expired(w, s.ttl, s.now()) {
		return nil, errors.NewNotFound("workspace", token)
	}
	return w, nil
}

// Put writes w and stamps UpdatedAt (and CreatedAt on first write).
func (s *SQLStore) Put(ctx context.Context, w *prompt.Workspace) error {
	now := s.now().Unix()
	if w.CreatedAt == 0 {
		w.CreatedAt = now
	}
	w.UpdatedAt = now
	return db.PutWorkspace(ctx, s.db, w)
}

func (s *SQLStore) Delete(ctx context.Context, token string) error {
	return db.DeleteWorkspace(ctx, s.db, token)
}

// Cleanup deletes workspaces idle for longer than the TTL.
func (s *SQLStore) Cleanup(ctx context.Context) (int, error) {
	if s.ttl <= 0 {
		return 0, nil
	}
	return db.DeleteIdleWorkspaces(ctx, s.db, s.now().Add(-s.ttl).Unix())
}

// Close is a no-op; the database belongs to the caller.
func (s *SQLStore) Close() error {
	return nil
}
