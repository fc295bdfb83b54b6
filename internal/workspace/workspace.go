// Package workspace stores scratch keyword workspaces behind a small
// interface with a SQLite and a Redis implementation.
package workspace

import (
	"context"
	"database/sql"
	"time"

	"github.com/hpungsan/promptbench/internal/config"
	"github.com/hpungsan/promptbench/internal/errors"
	"github.com/hpungsan/promptbench/internal/prompt"
)

// Store persists workspaces by token. Get returns NOT_FOUND for unknown or
// expired tokens.
type Store interface {
	Get(ctx context.Context, token string) (*prompt.Workspace, error)
	Put(ctx context.Context, w *prompt.Workspace) error
	Delete(ctx context.Context, token string) error
	Close() error
}

// Open returns the store selected by cfg.WorkspaceBackend. The SQLite store
// shares db and does not close it.
func Open(cfg *config.Config, db *sql.DB) (Store, error) {
	switch cfg.WorkspaceBackend {
	case "", config.WorkspaceBackendSQLite:
		if db == nil {
			return nil, errors.NewInvalidRequest("sqlite workspace store requires a database")
		}
		return NewSQLStore(db, cfg.WorkspaceTTL()), nil
	case config.WorkspaceBackendRedis:
		return NewRedisStore(cfg.RedisURL, cfg.WorkspaceTTL())
	default:
		return nil, errors.NewInvalidRequest("unknown workspace backend: " + cfg.WorkspaceBackend)
	}
}

func expired(w *prompt.Workspace, ttl time.Duration, now time.Time) bool {
	return ttl > 0 && now.Unix()-w.UpdatedAt > int64(ttl/time.Second)
}
