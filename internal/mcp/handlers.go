package mcp

import (
	"context"
	"database/sql"
	"encoding/json"
	stderrors "errors"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/hpungsan/promptbench/internal/config"
	"github.com/hpungsan/promptbench/internal/errors"
	"github.com/hpungsan/promptbench/internal/keyword"
	"github.com/hpungsan/promptbench/internal/ops"
	"github.com/hpungsan/promptbench/internal/prompt"
	"github.com/hpungsan/promptbench/internal/workspace"
)

// Generator produces text for a composed draft. *assist.Client implements it.
type Generator interface {
	Configured() bool
	Generate(ctx context.Context, composed string) (string, error)
}

// Handlers holds dependencies for MCP tool handlers.
type Handlers struct {
	db         *sql.DB
	workspaces workspace.Store
	assistant  Generator
	cfg        *config.Config
}

// NewHandlers creates a new Handlers instance.
func NewHandlers(db *sql.DB, workspaces workspace.Store, assistant Generator, cfg *config.Config) *Handlers {
	return &Handlers{db: db, workspaces: workspaces, assistant: assistant, cfg: cfg}
}

// Request types for each tool

// DraftSaveRequest represents the arguments for draft_save.
type DraftSaveRequest struct {
	ID           string           `json:"id,omitempty"`
	Topic        string           `json:"topic"`
	Body         string           `json:"body"`
	Instructions string           `json:"instructions"`
	Model        string           `json:"model"`
	Tags         []string         `json:"tags,omitempty"`
	Positive     []keyword.Record `json:"positive,omitempty"`
	Negative     []keyword.Record `json:"negative,omitempty"`
	Publish      bool             `json:"publish,omitempty"`
}

// DraftFetchRequest represents the arguments for draft_fetch.
type DraftFetchRequest struct {
	ID             string `json:"id"`
	IncludeDeleted bool   `json:"include_deleted,omitempty"`
	IncludeBody    *bool  `json:"include_body,omitempty"`
}

// DraftListRequest represents the arguments for draft_list.
type DraftListRequest struct {
	Status         string `json:"status,omitempty"`
	Limit          int    `json:"limit,omitempty"`
	Offset         int    `json:"offset,omitempty"`
	IncludeDeleted bool   `json:"include_deleted,omitempty"`
}

// DraftDeleteRequest represents the arguments for draft_delete.
type DraftDeleteRequest struct {
	ID string `json:"id"`
}

// DraftPurgeRequest represents the arguments for draft_purge.
type DraftPurgeRequest struct {
	OlderThanDays *int `json:"older_than_days,omitempty"`
}

// DraftPreviewRequest represents the arguments for draft_preview.
type DraftPreviewRequest struct {
	ID       string `json:"id"`
	Generate bool   `json:"generate,omitempty"`
}

// WorkspaceOpenRequest represents the arguments for workspace_open.
type WorkspaceOpenRequest struct {
	Topic    string           `json:"topic,omitempty"`
	Positive []keyword.Record `json:"positive,omitempty"`
	Negative []keyword.Record `json:"negative,omitempty"`
}

// WorkspaceFetchRequest represents the arguments for workspace_fetch.
type WorkspaceFetchRequest struct {
	Token string `json:"token"`
}

// WorkspaceSyncRequest represents the arguments for workspace_sync.
type WorkspaceSyncRequest struct {
	Token    string           `json:"token"`
	Topic    *string          `json:"topic,omitempty"`
	Positive []keyword.Record `json:"positive,omitempty"`
	Negative []keyword.Record `json:"negative,omitempty"`
}

// WorkspaceKeywordAddRequest represents the arguments for workspace_keyword_add.
type WorkspaceKeywordAddRequest struct {
	Token    string `json:"token"`
	Polarity string `json:"polarity"`
	Word     string `json:"word"`
	Weight   *int   `json:"weight,omitempty"`
}

// WorkspaceKeywordRemoveRequest represents the arguments for workspace_keyword_remove.
type WorkspaceKeywordRemoveRequest struct {
	Token    string `json:"token"`
	Polarity string `json:"polarity"`
	Word     string `json:"word"`
}

// Handler implementations

// HandleDraftSave handles the draft_save tool call.
func (h *Handlers) HandleDraftSave(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[DraftSaveRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}

	result, err := ops.SaveDraft(ctx, h.db, h.cfg, ops.SaveDraftInput{
		ID:           input.ID,
		Topic:        input.Topic,
		Body:         input.Body,
		Instructions: input.Instructions,
		Model:        input.Model,
		Tags:         input.Tags,
		Positive:     withSource(input.Positive),
		Negative:     withSource(input.Negative),
		Publish:      input.Publish,
	})
	if err != nil {
		return errorResult(err), nil
	}

	return successResult(result)
}

// HandleDraftFetch handles the draft_fetch tool call.
func (h *Handlers) HandleDraftFetch(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[DraftFetchRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}

	result, err := ops.FetchDraft(ctx, h.db, ops.FetchDraftInput{
		ID:             input.ID,
		IncludeDeleted: input.IncludeDeleted,
		IncludeBody:    input.IncludeBody,
	})
	if err != nil {
		return errorResult(err), nil
	}

	return successResult(result)
}

// HandleDraftList handles the draft_list tool call.
func (h *Handlers) HandleDraftList(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[DraftListRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}

	result, err := ops.ListDrafts(ctx, h.db, ops.ListDraftsInput{
		Status:         input.Status,
		Limit:          input.Limit,
		Offset:         input.Offset,
		IncludeDeleted: input.IncludeDeleted,
	})
	if err != nil {
		return errorResult(err), nil
	}

	return successResult(result)
}

// HandleDraftDelete handles the draft_delete tool call.
func (h *Handlers) HandleDraftDelete(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[DraftDeleteRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}

	result, err := ops.DeleteDraft(ctx, h.db, ops.DeleteDraftInput{ID: input.ID})
	if err != nil {
		return errorResult(err), nil
	}

	return successResult(result)
}

// HandleDraftPurge handles the draft_purge tool call.
func (h *Handlers) HandleDraftPurge(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[DraftPurgeRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}

	result, err := ops.PurgeDrafts(ctx, h.db, ops.PurgeDraftsInput{OlderThanDays: input.OlderThanDays})
	if err != nil {
		return errorResult(err), nil
	}

	return successResult(result)
}

// HandleDraftPreview handles the draft_preview tool call.
func (h *Handlers) HandleDraftPreview(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[DraftPreviewRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}

	previewInput := ops.RenderPreviewInput{ID: input.ID}
	if input.Generate {
		if h.assistant == nil || !h.assistant.Configured() {
			return errorResult(errors.NewInvalidRequest("assistant not configured (set OPENAI_API_KEY)")), nil
		}
		fetched, err := ops.FetchDraft(ctx, h.db, ops.FetchDraftInput{ID: input.ID})
		if err != nil {
			return errorResult(err), nil
		}
		generated, err := h.assistant.Generate(ctx, prompt.Compose(&fetched.Prompt))
		if err != nil {
			return errorResult(err), nil
		}
		previewInput = ops.RenderPreviewInput{Draft: &fetched.Prompt, Generated: generated}
	}

	result, err := ops.RenderPreview(ctx, h.db, previewInput)
	if err != nil {
		return errorResult(err), nil
	}

	return successResult(result)
}

// HandleWorkspaceOpen handles the workspace_open tool call.
func (h *Handlers) HandleWorkspaceOpen(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[WorkspaceOpenRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}

	result, err := ops.OpenWorkspace(ctx, h.workspaces, h.cfg, ops.OpenWorkspaceInput{
		Topic:    input.Topic,
		Positive: withSource(input.Positive),
		Negative: withSource(input.Negative),
	})
	if err != nil {
		return errorResult(err), nil
	}

	return successResult(result)
}

// HandleWorkspaceFetch handles the workspace_fetch tool call.
func (h *Handlers) HandleWorkspaceFetch(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[WorkspaceFetchRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}

	result, err := ops.FetchWorkspace(ctx, h.workspaces, input.Token)
	if err != nil {
		return errorResult(err), nil
	}

	return successResult(result)
}

// HandleWorkspaceSync handles the workspace_sync tool call.
func (h *Handlers) HandleWorkspaceSync(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[WorkspaceSyncRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}

	result, err := ops.SyncWorkspace(ctx, h.workspaces, h.cfg, ops.SyncWorkspaceInput{
		Token:    input.Token,
		Topic:    input.Topic,
		Positive: withSource(input.Positive),
		Negative: withSource(input.Negative),
	})
	if err != nil {
		return errorResult(err), nil
	}

	return successResult(result)
}

// HandleWorkspaceKeywordAdd handles the workspace_keyword_add tool call.
func (h *Handlers) HandleWorkspaceKeywordAdd(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[WorkspaceKeywordAddRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}

	result, err := ops.AddWorkspaceKeyword(ctx, h.workspaces, h.cfg, ops.AddWorkspaceKeywordInput{
		Token:    input.Token,
		Polarity: input.Polarity,
		Word:     input.Word,
		Weight:   input.Weight,
		Source:   keyword.SourceAPI,
	})
	if err != nil {
		return errorResult(err), nil
	}

	return successResult(result)
}

// HandleWorkspaceKeywordRemove handles the workspace_keyword_remove tool call.
func (h *Handlers) HandleWorkspaceKeywordRemove(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[WorkspaceKeywordRemoveRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}

	result, err := ops.RemoveWorkspaceKeyword(ctx, h.workspaces, h.cfg, ops.RemoveWorkspaceKeywordInput{
		Token:    input.Token,
		Polarity: input.Polarity,
		Word:     input.Word,
	})
	if err != nil {
		return errorResult(err), nil
	}

	return successResult(result)
}

// Result helpers

// errorResult creates an MCP error result from any error.
// Uses IsError: true so MCP clients recognize failures properly.
// Note: Internal error details are not exposed to prevent leaking sensitive info.
func errorResult(err error) *mcp.CallToolResult {
	var payload map[string]any

	var bErr *errors.BenchError
	if stderrors.As(err, &bErr) {
		msg := bErr.Message
		if err != error(bErr) && bErr.Code != errors.ErrInternal {
			// Keep the wrapper's context, e.g. "positive[2]: ...".
			msg = err.Error()
		}
		errorObj := map[string]any{
			"code":    bErr.Code,
			"message": msg,
			"status":  bErr.Status,
		}
		// Only include details for non-internal errors to avoid leaking
		// sensitive info like file paths or SQL errors
		if bErr.Code != errors.ErrInternal && bErr.Details != nil {
			errorObj["details"] = bErr.Details
		}
		payload = map[string]any{"error": errorObj}
	} else {
		payload = map[string]any{
			"error": map[string]any{
				"code":    "INTERNAL",
				"message": "an internal error occurred",
				"status":  500,
			},
		}
	}

	content, _ := json.Marshal(payload)
	return &mcp.CallToolResult{
		Content: []mcp.Content{mcp.TextContent{Type: "text", Text: string(content)}},
		IsError: true,
	}
}

// successResult creates an MCP success result from any data.
func successResult(data any) (*mcp.CallToolResult, error) {
	return mcp.NewToolResultJSON(data)
}
