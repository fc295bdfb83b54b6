package mcp

import (
	"github.com/mark3labs/mcp-go/mcp"
)

// keywordListSchema describes one polarity collection in tool arguments.
var keywordListSchema = map[string]any{
	"type": "object",
	"properties": map[string]any{
		"word":      map[string]any{"type": "string", "description": "Keyword text; clamped to the configured length"},
		"weight":    map[string]any{"type": "integer", "minimum": 0, "maximum": 5, "description": "Influence 0-5"},
		"remote_id": map[string]any{"type": "string", "description": "Server id; omit for new keywords"},
		"source":    map[string]any{"type": "string", "enum": []string{"manual", "model", "api"}},
	},
	"required": []string{"word"},
}

var draftSaveToolDef = mcp.NewTool("draft_save",
	mcp.WithDescription("Create a draft (no id) or replace the content of an existing one. "+
		"With publish=true every field, at least one tag and one keyword of each polarity are required; "+
		"the draft is marked published and a generation task id is returned."),
	mcp.WithString("id", mcp.Description("Draft id to update; omit to create")),
	mcp.WithString("topic", mcp.Description("Draft topic")),
	mcp.WithString("body", mcp.Description("Draft body (markdown)")),
	mcp.WithString("instructions", mcp.Description("Generation instructions")),
	mcp.WithString("model", mcp.Description("Target model name")),
	mcp.WithArray("tags", mcp.Description("Tags (deduplicated case-insensitively)"), mcp.Items(map[string]any{"type": "string"})),
	mcp.WithArray("positive", mcp.Description("Positive keywords in display order"), mcp.Items(keywordListSchema)),
	mcp.WithArray("negative", mcp.Description("Negative keywords in display order"), mcp.Items(keywordListSchema)),
	mcp.WithBoolean("publish", mcp.Description("Validate and publish")),
)

var draftFetchToolDef = mcp.NewTool("draft_fetch",
	mcp.WithDescription("Fetch a draft by id."),
	mcp.WithString("id", mcp.Required(), mcp.Description("Draft id")),
	mcp.WithBoolean("include_deleted", mcp.Description("Also return soft-deleted drafts")),
	mcp.WithBoolean("include_body", mcp.Description("Include the body (default true)")),
	mcp.WithReadOnlyHintAnnotation(true),
)

var draftListToolDef = mcp.NewTool("draft_list",
	mcp.WithDescription("List draft summaries, most recently updated first."),
	mcp.WithString("status", mcp.Description("Filter by status"), mcp.Enum("draft", "published")),
	mcp.WithNumber("limit", mcp.Description("Page size (default 20, max 100)")),
	mcp.WithNumber("offset", mcp.Description("Page offset")),
	mcp.WithBoolean("include_deleted", mcp.Description("Include soft-deleted drafts")),
	mcp.WithReadOnlyHintAnnotation(true),
)

var draftDeleteToolDef = mcp.NewTool("draft_delete",
	mcp.WithDescription("Soft-delete a draft. It can be purged later."),
	mcp.WithString("id", mcp.Required(), mcp.Description("Draft id")),
	mcp.WithDestructiveHintAnnotation(true),
)

var draftPurgeToolDef = mcp.NewTool("draft_purge",
	mcp.WithDescription("Permanently delete soft-deleted drafts."),
	mcp.WithNumber("older_than_days", mcp.Description("Only purge drafts deleted more than this many days ago")),
	mcp.WithDestructiveHintAnnotation(true),
)

var draftPreviewToolDef = mcp.NewTool("draft_preview",
	mcp.WithDescription("Render a stored draft as markdown and HTML. "+
		"With generate=true the assistant's output for the draft is appended."),
	mcp.WithString("id", mcp.Required(), mcp.Description("Draft id")),
	mcp.WithBoolean("generate", mcp.Description("Ask the assistant for generated text (requires OPENAI_API_KEY)")),
	mcp.WithReadOnlyHintAnnotation(true),
)

var workspaceOpenToolDef = mcp.NewTool("workspace_open",
	mcp.WithDescription("Open a scratch keyword workspace and return its token."),
	mcp.WithString("topic", mcp.Description("Workspace topic")),
	mcp.WithArray("positive", mcp.Description("Initial positive keywords"), mcp.Items(keywordListSchema)),
	mcp.WithArray("negative", mcp.Description("Initial negative keywords"), mcp.Items(keywordListSchema)),
)

var workspaceFetchToolDef = mcp.NewTool("workspace_fetch",
	mcp.WithDescription("Fetch a workspace by token."),
	mcp.WithString("token", mcp.Required(), mcp.Description("Workspace token")),
	mcp.WithReadOnlyHintAnnotation(true),
)

var workspaceSyncToolDef = mcp.NewTool("workspace_sync",
	mcp.WithDescription("Replace both keyword collections of a workspace with a full snapshot. "+
		"Keywords without a remote id are assigned one."),
	mcp.WithString("token", mcp.Required(), mcp.Description("Workspace token")),
	mcp.WithString("topic", mcp.Description("New topic; omit to keep the current one")),
	mcp.WithArray("positive", mcp.Description("Positive keywords in display order"), mcp.Items(keywordListSchema)),
	mcp.WithArray("negative", mcp.Description("Negative keywords in display order"), mcp.Items(keywordListSchema)),
)

var workspaceKeywordAddToolDef = mcp.NewTool("workspace_keyword_add",
	mcp.WithDescription("Add one keyword to a workspace. A duplicate or a full collection fails with REMOTE_LIMIT."),
	mcp.WithString("token", mcp.Required(), mcp.Description("Workspace token")),
	mcp.WithString("polarity", mcp.Required(), mcp.Enum("positive", "negative")),
	mcp.WithString("word", mcp.Required(), mcp.Description("Keyword text")),
	mcp.WithNumber("weight", mcp.Description("Influence 0-5 (default 5)")),
)

var workspaceKeywordRemoveToolDef = mcp.NewTool("workspace_keyword_remove",
	mcp.WithDescription("Remove a keyword from a workspace by polarity and word. Absent words are not an error."),
	mcp.WithString("token", mcp.Required(), mcp.Description("Workspace token")),
	mcp.WithString("polarity", mcp.Required(), mcp.Enum("positive", "negative")),
	mcp.WithString("word", mcp.Required(), mcp.Description("Keyword text")),
	mcp.WithDestructiveHintAnnotation(true),
)
