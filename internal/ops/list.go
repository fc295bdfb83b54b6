package ops

import (
	"context"
	"database/sql"
	"strings"

	"github.com/hpungsan/promptbench/internal/db"
	"github.com/hpungsan/promptbench/internal/errors"
	"github.com/hpungsan/promptbench/internal/prompt"
)

// ListDraftsInput contains parameters for the ListDrafts operation.
type ListDraftsInput struct {
	Status         string // optional: "draft" or "published"
	Limit          int    // default: 20, max: 100
	Offset         int    // default: 0
	IncludeDeleted bool
}

// ListDraftsOutput contains the result of the ListDrafts operation.
type ListDraftsOutput struct {
	Items      []prompt.Summary `json:"items"`
	Pagination Pagination       `json:"pagination"`
	Sort       string           `json:"sort"`
}

// ListDrafts retrieves draft summaries with pagination, most recent first.
func ListDrafts(ctx context.Context, database *sql.DB, input ListDraftsInput) (*ListDraftsOutput, error) {
	filter := db.ListFilter{IncludeDeleted: input.IncludeDeleted}
	if s := strings.TrimSpace(input.Status); s != "" {
		status, ok := prompt.ParseStatus(s)
		if !ok {
			return nil, errors.NewInvalidRequest("status must be one of: draft, published")
		}
		filter.Status = &status
	}

	page := newPagination(input.Limit, input.Offset)
	summaries, total, err := db.ListPrompts(ctx, database, filter, page.Limit, page.Offset)
	if err != nil {
		return nil, err
	}

	// Ensure we return an empty array rather than nil
	if summaries == nil {
		summaries = []prompt.Summary{}
	}

	page.Total = total
	page.HasMore = page.Offset+len(summaries) < total

	return &ListDraftsOutput{
		Items:      summaries,
		Pagination: page,
		Sort:       "updated_at_desc",
	}, nil
}
