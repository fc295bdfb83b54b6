package ops

import (
	"bytes"
	"context"
	"database/sql"
	"strings"

	"github.com/yuin/goldmark"

	"github.com/hpungsan/promptbench/internal/db"
	"github.com/hpungsan/promptbench/internal/errors"
	"github.com/hpungsan/promptbench/internal/prompt"
)

// RenderPreviewInput contains parameters for the RenderPreview operation.
// Exactly one of ID or Draft must be set.
type RenderPreviewInput struct {
	ID        string
	Draft     *prompt.Prompt
	Generated string // optional assistant output appended to the preview
}

// RenderPreviewOutput contains the result of the RenderPreview operation.
type RenderPreviewOutput struct {
	Markdown       string `json:"markdown"`
	HTML           string `json:"html"`
	TokensEstimate int    `json:"tokens_estimate"`
}

// RenderPreview composes a draft into markdown and renders it to HTML.
// Raw HTML in the draft is not passed through.
func RenderPreview(ctx context.Context, database *sql.DB, input RenderPreviewInput) (*RenderPreviewOutput, error) {
	id := strings.TrimSpace(input.ID)
	if (id == "") == (input.Draft == nil) {
		return nil, errors.NewInvalidRequest("must specify exactly one of id or draft")
	}

	p := input.Draft
	if id != "" {
		var err error
		if p, err = db.GetPrompt(ctx, database, id, false); err != nil {
			return nil, err
		}
	}

	md := prompt.Compose(p)
	if generated := strings.TrimSpace(input.Generated); generated != "" {
		md += "\n## Generated preview\n\n" + generated + "\n"
	}

	html, err := renderMarkdown(md)
	if err != nil {
		return nil, errors.NewInternal(err)
	}

	return &RenderPreviewOutput{
		Markdown:       md,
		HTML:           html,
		TokensEstimate: prompt.EstimateTokens(md),
	}, nil
}

// renderMarkdown converts markdown text to HTML using goldmark.
func renderMarkdown(md string) (string, error) {
	var buf bytes.Buffer
	if err := goldmark.Convert([]byte(md), &buf); err != nil {
		return "", err
	}
	return buf.String(), nil
}
