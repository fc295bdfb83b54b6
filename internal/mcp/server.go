package mcp

import (
	"context"
	"database/sql"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/hpungsan/promptbench/internal/config"
	"github.com/hpungsan/promptbench/internal/workspace"
)

// KnownTypes lists all valid type names.
var KnownTypes = []string{"draft", "workspace"}

// toolEntry pairs a tool definition with a handler factory.
type toolEntry struct {
	def     mcp.Tool
	handler func(*Handlers) server.ToolHandlerFunc
}

// toolRegistry maps tool names to their definitions and handler factories.
var toolRegistry = map[string]toolEntry{
	"draft_save": {
		def:     draftSaveToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleDraftSave },
	},
	"draft_fetch": {
		def:     draftFetchToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleDraftFetch },
	},
	"draft_list": {
		def:     draftListToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleDraftList },
	},
	"draft_delete": {
		def:     draftDeleteToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleDraftDelete },
	},
	"draft_purge": {
		def:     draftPurgeToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleDraftPurge },
	},
	"draft_preview": {
		def:     draftPreviewToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleDraftPreview },
	},
	"workspace_open": {
		def:     workspaceOpenToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleWorkspaceOpen },
	},
	"workspace_fetch": {
		def:     workspaceFetchToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleWorkspaceFetch },
	},
	"workspace_sync": {
		def:     workspaceSyncToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleWorkspaceSync },
	},
	"workspace_keyword_add": {
		def:     workspaceKeywordAddToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleWorkspaceKeywordAdd },
	},
	"workspace_keyword_remove": {
		def:     workspaceKeywordRemoveToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleWorkspaceKeywordRemove },
	},
}

// AllToolNames returns a list of all valid tool names.
func AllToolNames() []string {
	names := make([]string, 0, len(toolRegistry))
	for name := range toolRegistry {
		names = append(names, name)
	}
	return names
}

// ValidateDisabledTools returns a list of unknown tool names from the given list.
func ValidateDisabledTools(names []string) []string {
	unknown := make([]string, 0)
	for _, name := range names {
		if _, ok := toolRegistry[name]; !ok {
			unknown = append(unknown, name)
		}
	}
	return unknown
}

// ValidateDisabledTypes returns a list of unknown type names from the given list.
func ValidateDisabledTypes(names []string) []string {
	known := make(map[string]bool, len(KnownTypes))
	for _, t := range KnownTypes {
		known[t] = true
	}

	unknown := make([]string, 0)
	for _, name := range names {
		if !known[name] {
			unknown = append(unknown, name)
		}
	}
	return unknown
}

// GetTypeForTool extracts the type name from a tool name.
// Tool names follow the pattern "type_action" (e.g., "draft_save" → "draft").
func GetTypeForTool(toolName string) string {
	if idx := strings.Index(toolName, "_"); idx > 0 {
		return toolName[:idx]
	}
	return ""
}

// ExpandTypesToTools returns all tool names belonging to the given types.
func ExpandTypesToTools(types []string) []string {
	if len(types) == 0 {
		return nil
	}

	typeSet := make(map[string]bool, len(types))
	for _, t := range types {
		typeSet[t] = true
	}

	tools := make([]string, 0)
	for name := range toolRegistry {
		if typeSet[GetTypeForTool(name)] {
			tools = append(tools, name)
		}
	}
	return tools
}

// NewServer creates a new MCP server with the draft and workspace tools
// registered. Tools listed in cfg.DisabledTools or belonging to
// cfg.DisabledTypes are excluded from registration. assistant may be nil;
// draft_preview then renders without generated text.
func NewServer(db *sql.DB, workspaces workspace.Store, assistant Generator, cfg *config.Config, version string) *server.MCPServer {
	s := server.NewMCPServer(
		"promptbench",
		version,
		server.WithToolCapabilities(true),
	)

	h := NewHandlers(db, workspaces, assistant, cfg)

	// Build set of disabled tools: first expand types, then add individual tools
	disabled := make(map[string]bool)
	for _, tool := range ExpandTypesToTools(cfg.DisabledTypes) {
		disabled[tool] = true
	}
	for _, name := range cfg.DisabledTools {
		disabled[name] = true
	}

	for name, entry := range toolRegistry {
		if disabled[name] {
			continue
		}
		s.AddTool(entry.def, entry.handler(h))
	}

	return s
}

// Run starts the MCP server using stdio transport.
func Run(db *sql.DB, workspaces workspace.Store, assistant Generator, cfg *config.Config, version string) error {
	s := NewServer(db, workspaces, assistant, cfg, version)
	return server.ServeStdio(s)
}

// ToolHandlerFunc is the signature for tool handlers.
type ToolHandlerFunc func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error)
