package ops

import (
	"context"
	"database/sql"
	"strings"

	"github.com/hpungsan/promptbench/internal/db"
	"github.com/hpungsan/promptbench/internal/errors"
)

// DeleteDraftInput contains parameters for the DeleteDraft operation.
type DeleteDraftInput struct {
	ID string
}

// DeleteDraftOutput contains the result of the DeleteDraft operation.
type DeleteDraftOutput struct {
	Deleted bool   `json:"deleted"`
	ID      string `json:"id"`
}

// DeleteDraft soft-deletes a draft.
func DeleteDraft(ctx context.Context, database *sql.DB, input DeleteDraftInput) (*DeleteDraftOutput, error) {
	id := strings.TrimSpace(input.ID)
	if id == "" {
		return nil, errors.NewInvalidRequest("id is required")
	}

	if err := db.SoftDeletePrompt(ctx, database, id); err != nil {
		return nil, err
	}

	return &DeleteDraftOutput{
		Deleted: true,
		ID:      id,
	}, nil
}
