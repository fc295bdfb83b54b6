// Package remote names the collaborators the workbench consumes: AI-assisted
// keyword calls, single keyword create/remove, preview generation, draft
// save/publish and workspace keyword sync.
package remote

import (
	"context"

	"github.com/hpungsan/promptbench/internal/draft"
	"github.com/hpungsan/promptbench/internal/keyword"
)

// Service is everything the workbench asks of the server side.
type Service interface {
	Interpret(ctx context.Context, req InterpretRequest) (*InterpretResult, error)
	Augment(ctx context.Context, req AugmentRequest) (*AugmentResult, error)
	CreateKeyword(ctx context.Context, req CreateKeywordRequest) (*keyword.Record, error)
	RemoveKeyword(ctx context.Context, req RemoveKeywordRequest) error
	GeneratePreview(ctx context.Context, req PreviewRequest) (*PreviewResult, error)
	SaveDraft(ctx context.Context, req SaveDraftRequest) (*SaveDraftResult, error)
	SyncKeywords(ctx context.Context, req SyncKeywordsRequest) (*SyncKeywordsResult, error)
}

// Draft is the server-facing form of a draft.
type Draft struct {
	Topic        string           `json:"topic"`
	Body         string           `json:"body"`
	Instructions string           `json:"instructions"`
	Model        string           `json:"model"`
	Tags         []string         `json:"tags"`
	Positive     []keyword.Record `json:"positive"`
	Negative     []keyword.Record `json:"negative"`
}

// DraftFromState converts workbench state to its server-facing form.
func DraftFromState(s draft.State) Draft {
	tags := s.Tags
	if tags == nil {
		tags = []string{}
	}
	return Draft{
		Topic:        s.Topic,
		Body:         s.Body,
		Instructions: s.Instructions,
		Model:        s.Model,
		Tags:         tags,
		Positive:     keyword.Records(s.Positive),
		Negative:     keyword.Records(s.Negative),
	}
}

// State converts a server draft back into workbench state. Keyword words
// are clamped to maxChars.
func (d Draft) State(maxChars int) draft.State {
	st := draft.State{
		Topic:        d.Topic,
		Body:         d.Body,
		Instructions: d.Instructions,
		Model:        d.Model,
		Tags:         d.Tags,
		Positive:     make([]keyword.Token, 0, len(d.Positive)),
		Negative:     make([]keyword.Token, 0, len(d.Negative)),
	}
	for _, r := range d.Positive {
		st.Positive = append(st.Positive, keyword.FromRecord(keyword.Positive, r, maxChars))
	}
	for _, r := range d.Negative {
		st.Negative = append(st.Negative, keyword.FromRecord(keyword.Negative, r, maxChars))
	}
	return st
}

// InterpretRequest turns natural language into a topic and starting keywords.
// An empty WorkspaceToken asks the server to open a new workspace.
type InterpretRequest struct {
	WorkspaceToken string `json:"workspace_token,omitempty"`
	Text           string `json:"text"`
}

// InterpretResult carries the workspace the keywords now live in.
type InterpretResult struct {
	WorkspaceToken string           `json:"workspace_token"`
	Topic          string           `json:"topic"`
	Positive       []keyword.Record `json:"positive"`
	Negative       []keyword.Record `json:"negative"`
}

// AugmentRequest asks for more keywords of one polarity.
type AugmentRequest struct {
	WorkspaceToken string           `json:"workspace_token,omitempty"`
	Topic          string           `json:"topic"`
	Polarity       keyword.Polarity `json:"polarity"`
	Positive       []keyword.Record `json:"positive"`
	Negative       []keyword.Record `json:"negative"`
}

// AugmentResult is the full replacement list for the requested polarity.
// It may be longer than the local capacity.
type AugmentResult struct {
	WorkspaceToken string           `json:"workspace_token"`
	Polarity       keyword.Polarity `json:"polarity"`
	Keywords       []keyword.Record `json:"keywords"`
}

// CreateKeywordRequest adds one keyword to a workspace.
type CreateKeywordRequest struct {
	WorkspaceToken string           `json:"workspace_token"`
	Polarity       keyword.Polarity `json:"polarity"`
	Word           string           `json:"word"`
	Weight         int              `json:"weight"`
}

// RemoveKeywordRequest removes a workspace keyword by polarity and word.
type RemoveKeywordRequest struct {
	WorkspaceToken string           `json:"workspace_token"`
	Polarity       keyword.Polarity `json:"polarity"`
	Word           string           `json:"word"`
}

// PreviewRequest asks for generated preview output of a draft.
type PreviewRequest struct {
	DraftID string `json:"draft_id,omitempty"`
	Draft   Draft  `json:"draft"`
}

// PreviewResult is the generated text plus its rendered HTML.
type PreviewResult struct {
	Text string `json:"text"`
	HTML string `json:"html"`
}

// SaveDraftRequest creates (empty DraftID) or updates a draft.
type SaveDraftRequest struct {
	DraftID string `json:"draft_id,omitempty"`
	Draft   Draft  `json:"draft"`
	Publish bool   `json:"publish,omitempty"`
}

// SaveDraftResult identifies the stored draft. TaskID is set when publishing
// started an asynchronous generation task.
type SaveDraftResult struct {
	DraftID string `json:"draft_id"`
	TaskID  string `json:"task_id,omitempty"`
	Status  string `json:"status"`
}

// SyncKeywordsRequest is a full snapshot of both collections.
type SyncKeywordsRequest struct {
	WorkspaceToken string           `json:"workspace_token"`
	Positive       []keyword.Record `json:"positive"`
	Negative       []keyword.Record `json:"negative"`
}

// SyncKeywordsResult echoes the stored snapshot with remote ids assigned.
type SyncKeywordsResult struct {
	Positive []keyword.Record `json:"positive"`
	Negative []keyword.Record `json:"negative"`
}
