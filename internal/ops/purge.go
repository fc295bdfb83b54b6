package ops

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/hpungsan/promptbench/internal/db"
	"github.com/hpungsan/promptbench/internal/errors"
)

// PurgeDraftsInput contains parameters for the PurgeDrafts operation.
type PurgeDraftsInput struct {
	OlderThanDays *int // optional, only purge if deleted_at < (now - N days)
}

// PurgeDraftsOutput contains the result of the PurgeDrafts operation.
type PurgeDraftsOutput struct {
	Purged  int    `json:"purged"`
	Message string `json:"message"`
}

// PurgeDrafts permanently deletes soft-deleted drafts.
func PurgeDrafts(ctx context.Context, database *sql.DB, input PurgeDraftsInput) (*PurgeDraftsOutput, error) {
	if input.OlderThanDays != nil && *input.OlderThanDays < 0 {
		return nil, errors.NewInvalidRequest("older_than_days must not be negative")
	}

	count, err := db.PurgeDeleted(ctx, database, input.OlderThanDays)
	if err != nil {
		return nil, err
	}

	return &PurgeDraftsOutput{
		Purged:  count,
		Message: formatPurgeMessage(count, input.OlderThanDays),
	}, nil
}

// formatPurgeMessage creates a human-readable message for the purge result.
func formatPurgeMessage(count int, olderThanDays *int) string {
	if count == 0 {
		return "No deleted drafts to purge"
	}

	draftWord := "draft"
	if count > 1 {
		draftWord = "drafts"
	}

	msg := fmt.Sprintf("Permanently deleted %d %s", count, draftWord)

	if olderThanDays != nil {
		msg += fmt.Sprintf(" (deleted more than %d days ago)", *olderThanDays)
	}

	return msg
}
