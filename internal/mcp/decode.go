package mcp

import (
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/hpungsan/promptbench/internal/keyword"
)

// decode unmarshals MCP request arguments into a typed struct.
// Avoids unsafe type assertions and handles JSON decoding safely.
func decode[T any](req mcp.CallToolRequest) (T, error) {
	var result T
	args := req.GetArguments()
	b, err := json.Marshal(args)
	if err != nil {
		return result, fmt.Errorf("marshal args: %w", err)
	}
	if err := json.Unmarshal(b, &result); err != nil {
		return result, fmt.Errorf("unmarshal args: %w", err)
	}
	return result, nil
}

// withSource marks keywords that arrive through the tool surface as api
// unless the caller named a source.
func withSource(records []keyword.Record) []keyword.Record {
	out := make([]keyword.Record, len(records))
	for i, r := range records {
		if r.Source == "" {
			r.Source = keyword.SourceAPI
		}
		out[i] = r
	}
	return out
}
