package ops

import (
	"context"
	"strings"
	"testing"

	"github.com/hpungsan/promptbench/internal/errors"
	"github.com/hpungsan/promptbench/internal/keyword"
	"github.com/hpungsan/promptbench/internal/prompt"
)

func TestRenderPreview_StoredDraft(t *testing.T) {
	ctx := context.Background()
	database := openTestDB(t)

	saved, err := SaveDraft(ctx, database, testConfig(), completeInput())
	if err != nil {
		t.Fatalf("SaveDraft failed: %v", err)
	}

	out, err := RenderPreview(ctx, database, RenderPreviewInput{ID: saved.ID, Generated: "Hooks let you use state."})
	if err != nil {
		t.Fatalf("RenderPreview failed: %v", err)
	}
	for _, want := range []string{"# React", "## Emphasize", "- hooks (weight 5)", "## Generated preview"} {
		if !strings.Contains(out.Markdown, want) {
			t.Errorf("markdown missing %q:\n%s", want, out.Markdown)
		}
	}
	for _, want := range []string{"<h1>React</h1>", "<li>classes (weight 3)</li>", "<p>Hooks let you use state.</p>"} {
		if !strings.Contains(out.HTML, want) {
			t.Errorf("html missing %q:\n%s", want, out.HTML)
		}
	}
	if out.TokensEstimate <= 0 {
		t.Errorf("TokensEstimate = %d", out.TokensEstimate)
	}
}

func TestRenderPreview_InlineDraftEscapesHTML(t *testing.T) {
	p := &prompt.Prompt{
		Topic:    "Inline",
		Body:     "<script>alert(1)</script>",
		Positive: []keyword.Record{{Word: "safe", Weight: 4}},
	}
	out, err := RenderPreview(context.Background(), nil, RenderPreviewInput{Draft: p})
	if err != nil {
		t.Fatalf("RenderPreview failed: %v", err)
	}
	if strings.Contains(out.HTML, "<script>") {
		t.Errorf("raw html passed through:\n%s", out.HTML)
	}
	if strings.Contains(out.Markdown, "Generated preview") {
		t.Error("no generated section expected")
	}
}

func TestRenderPreview_Addressing(t *testing.T) {
	ctx := context.Background()
	database := openTestDB(t)

	if _, err := RenderPreview(ctx, database, RenderPreviewInput{}); !errors.Is(err, errors.ErrInvalidRequest) {
		t.Errorf("neither err = %v, want INVALID_REQUEST", err)
	}
	both := RenderPreviewInput{ID: "01X", Draft: &prompt.Prompt{}}
	if _, err := RenderPreview(ctx, database, both); !errors.Is(err, errors.ErrInvalidRequest) {
		t.Errorf("both err = %v, want INVALID_REQUEST", err)
	}
	if _, err := RenderPreview(ctx, database, RenderPreviewInput{ID: "01MISSING"}); !errors.Is(err, errors.ErrNotFound) {
		t.Errorf("missing err = %v, want NOT_FOUND", err)
	}
}
