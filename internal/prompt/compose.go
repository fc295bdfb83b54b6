package prompt

import (
	"fmt"
	"math"
	"strings"
	"unicode/utf8"

	"github.com/hpungsan/promptbench/internal/keyword"
)

// CountChars returns the character count as runes (not bytes).
func CountChars(text string) int {
	return utf8.RuneCountInString(text)
}

// EstimateTokens estimates token count using a word-based heuristic (1.3 per word).
func EstimateTokens(text string) int {
	words := strings.Fields(strings.TrimSpace(text))
	return int(math.Ceil(float64(len(words)) * 1.3))
}

// Compose renders a prompt as markdown: topic heading, body, instructions,
// then both weighted keyword lists in order. Empty parts are skipped.
func Compose(p *Prompt) string {
	var b strings.Builder

	if topic := strings.TrimSpace(p.Topic); topic != "" {
		fmt.Fprintf(&b, "# %s\n\n", topic)
	}
	if body := strings.TrimSpace(p.Body); body != "" {
		b.WriteString(body)
		b.WriteString("\n\n")
	}
	if instr := strings.TrimSpace(p.Instructions); instr != "" {
		b.WriteString("## Instructions\n\n")
		b.WriteString(instr)
		b.WriteString("\n\n")
	}
	writeKeywords(&b, "Emphasize", p.Positive)
	writeKeywords(&b, "Avoid", p.Negative)
	if model := strings.TrimSpace(p.Model); model != "" {
		fmt.Fprintf(&b, "_Target model: %s_\n", model)
	}

	return strings.TrimRight(b.String(), "\n") + "\n"
}

func writeKeywords(b *strings.Builder, heading string, records []keyword.Record) {
	if len(records) == 0 {
		return
	}
	fmt.Fprintf(b, "## %s\n\n", heading)
	for _, r := range records {
		fmt.Fprintf(b, "- %s (weight %d)\n", r.Word, r.Weight)
	}
	b.WriteString("\n")
}
