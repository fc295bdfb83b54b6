// Package prompt holds the server-side records: stored prompt drafts and
// scratch keyword workspaces.
package prompt

import (
	"github.com/hpungsan/promptbench/internal/keyword"
)

// Status is the lifecycle state of a stored prompt.
type Status string

const (
	StatusDraft     Status = "draft"
	StatusPublished Status = "published"
)

// ParseStatus parses a status name, case-insensitively.
func ParseStatus(s string) (Status, bool) {
	st := Status(keyword.Normalize(s))
	return st, st == StatusDraft || st == StatusPublished
}

// Prompt is a stored draft: the whole artifact the workbench edits.
type Prompt struct {
	// ID is a ULID that uniquely identifies this prompt
	ID string `json:"id"`

	Topic        string `json:"topic"`
	Body         string `json:"body"`
	Instructions string `json:"instructions"`
	Model        string `json:"model"`

	// Tags classify the prompt (stored as JSON in DB)
	Tags []string `json:"tags"`

	// Positive and Negative are the ordered keyword collections (stored as JSON in DB)
	Positive []keyword.Record `json:"positive"`
	Negative []keyword.Record `json:"negative"`

	Status Status `json:"status"`

	// TaskID is the asynchronous generation task started by the last publish (nullable)
	TaskID *string `json:"task_id,omitempty"`

	// Revision increments on every save, starting at 1
	Revision int `json:"revision"`

	// CreatedAt is the Unix timestamp when the prompt was created
	CreatedAt int64 `json:"created_at"`

	// UpdatedAt is the Unix timestamp when the prompt was last saved
	UpdatedAt int64 `json:"updated_at"`

	// DeletedAt is the Unix timestamp for soft delete (nullable)
	DeletedAt *int64 `json:"deleted_at,omitempty"`
}
