package ops

import (
	"context"
	"database/sql"
	"strings"

	"github.com/hpungsan/promptbench/internal/db"
	"github.com/hpungsan/promptbench/internal/errors"
	"github.com/hpungsan/promptbench/internal/prompt"
)

// FetchDraftInput contains parameters for the FetchDraft operation.
type FetchDraftInput struct {
	ID             string
	IncludeDeleted bool
	IncludeBody    *bool // default: true (nil means default)
}

// FetchDraftOutput contains the result of the FetchDraft operation.
type FetchDraftOutput struct {
	prompt.Prompt      // embedded (copy, not pointer)
	BodyChars      int `json:"body_chars"`
	TokensEstimate int `json:"tokens_estimate"`
}

// FetchDraft retrieves a draft by ID.
func FetchDraft(ctx context.Context, database *sql.DB, input FetchDraftInput) (*FetchDraftOutput, error) {
	id := strings.TrimSpace(input.ID)
	if id == "" {
		return nil, errors.NewInvalidRequest("id is required")
	}

	p, err := db.GetPrompt(ctx, database, id, input.IncludeDeleted)
	if err != nil {
		return nil, err
	}

	output := &FetchDraftOutput{
		Prompt:         *p, // copy, not pointer
		BodyChars:      prompt.CountChars(p.Body),
		TokensEstimate: prompt.EstimateTokens(prompt.Compose(p)),
	}

	includeBody := true
	if input.IncludeBody != nil {
		includeBody = *input.IncludeBody
	}
	if !includeBody {
		output.Body = ""
	}
	return output, nil
}
