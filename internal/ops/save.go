package ops

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/hpungsan/promptbench/internal/config"
	"github.com/hpungsan/promptbench/internal/db"
	"github.com/hpungsan/promptbench/internal/draft"
	"github.com/hpungsan/promptbench/internal/errors"
	"github.com/hpungsan/promptbench/internal/keyword"
	"github.com/hpungsan/promptbench/internal/prompt"
)

// SaveDraftInput contains parameters for the SaveDraft operation.
type SaveDraftInput struct {
	ID           string // empty: create a new draft
	Topic        string
	Body         string
	Instructions string
	Model        string
	Tags         []string
	Positive     []keyword.Record
	Negative     []keyword.Record
	Publish      bool
}

// SaveDraftOutput contains the result of the SaveDraft operation.
type SaveDraftOutput struct {
	ID       string           `json:"id"`
	Revision int              `json:"revision"`
	Status   prompt.Status    `json:"status"`
	TaskID   *string          `json:"task_id,omitempty"`
	Created  bool             `json:"created"`
	Positive []keyword.Record `json:"positive"`
	Negative []keyword.Record `json:"negative"`
}

// SaveDraft creates a draft or replaces the content of an existing one.
// Publish validates every required field first and, when it passes, marks
// the draft published and starts a generation task. A plain save keeps the
// current status.
func SaveDraft(ctx context.Context, database *sql.DB, cfg *config.Config, input SaveDraftInput) (*SaveDraftOutput, error) {
	tags, err := cleanTags(cfg, input.Tags)
	if err != nil {
		return nil, err
	}
	positive, err := cleanKeywords(cfg, keyword.Positive, input.Positive)
	if err != nil {
		return nil, err
	}
	negative, err := cleanKeywords(cfg, keyword.Negative, input.Negative)
	if err != nil {
		return nil, err
	}

	if input.Publish {
		if err := draft.ValidatePublish(publishState(input, tags, positive, negative)); err != nil {
			return nil, err
		}
	}

	var taskID *string
	if input.Publish {
		id, err := generateULID()
		if err != nil {
			return nil, errors.NewInternal(err)
		}
		taskID = &id
	}

	id := strings.TrimSpace(input.ID)
	if id == "" {
		newID, err := generateULID()
		if err != nil {
			return nil, errors.NewInternal(err)
		}
		now := time.Now().Unix()
		p := &prompt.Prompt{
			ID:           newID,
			Topic:        input.Topic,
			Body:         input.Body,
			Instructions: input.Instructions,
			Model:        input.Model,
			Tags:         tags,
			Positive:     positive,
			Negative:     negative,
			Status:       prompt.StatusDraft,
			TaskID:       taskID,
			CreatedAt:    now,
			UpdatedAt:    now,
		}
		if input.Publish {
			p.Status = prompt.StatusPublished
		}
		if err := db.InsertPrompt(ctx, database, p); err != nil {
			return nil, err
		}
		return saveOutput(p, true), nil
	}

	p, err := db.GetPrompt(ctx, database, id, false)
	if err != nil {
		return nil, err
	}
	p.Topic = input.Topic
	p.Body = input.Body
	p.Instructions = input.Instructions
	p.Model = input.Model
	p.Tags = tags
	p.Positive = positive
	p.Negative = negative
	if input.Publish {
		p.Status = prompt.StatusPublished
		p.TaskID = taskID
	}
	if err := db.UpdatePrompt(ctx, database, p); err != nil {
		return nil, err
	}
	return saveOutput(p, false), nil
}

func saveOutput(p *prompt.Prompt, created bool) *SaveDraftOutput {
	return &SaveDraftOutput{
		ID:       p.ID,
		Revision: p.Revision,
		Status:   p.Status,
		TaskID:   p.TaskID,
		Created:  created,
		Positive: p.Positive,
		Negative: p.Negative,
	}
}

// publishState builds the draft state the publish rules are checked against.
func publishState(input SaveDraftInput, tags []string, positive, negative []keyword.Record) draft.State {
	st := draft.State{
		Topic:        input.Topic,
		Body:         input.Body,
		Instructions: input.Instructions,
		Model:        input.Model,
		Tags:         tags,
	}
	for _, r := range positive {
		st.Positive = append(st.Positive, keyword.FromRecord(keyword.Positive, r, 0))
	}
	for _, r := range negative {
		st.Negative = append(st.Negative, keyword.FromRecord(keyword.Negative, r, 0))
	}
	return st
}
