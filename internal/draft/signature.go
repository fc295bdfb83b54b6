package draft

import (
	"encoding/json"

	"github.com/hpungsan/promptbench/internal/keyword"
)

// Scope selects which part of the draft a signature covers.
type Scope string

const (
	ScopeKeywords  Scope = "keywords"
	ScopeFullDraft Scope = "full_draft"
)

// sigKeyword is the semantic part of a token: stored word and weight.
// ID, RemoteID and OverflowCount never take part.
type sigKeyword struct {
	W string `json:"w"`
	X int    `json:"x"`
}

type sigKeywords struct {
	Positive []sigKeyword `json:"p"`
	Negative []sigKeyword `json:"n"`
}

type sigDraft struct {
	Topic        string      `json:"topic"`
	Body         string      `json:"body"`
	Instructions string      `json:"instructions"`
	Model        string      `json:"model"`
	Tags         []string    `json:"tags"`
	Keywords     sigKeywords `json:"keywords"`
}

func toSigKeywords(tokens []keyword.Token) []sigKeyword {
	out := make([]sigKeyword, 0, len(tokens))
	for _, t := range tokens {
		out = append(out, sigKeyword{W: t.StoredWord(), X: t.Weight})
	}
	return out
}

func keywordsShape(s State) sigKeywords {
	return sigKeywords{
		Positive: toSigKeywords(s.Positive),
		Negative: toSigKeywords(s.Negative),
	}
}

// KeywordsSignature is the order-sensitive fingerprint of both collections.
func KeywordsSignature(s State) string {
	b, _ := json.Marshal(keywordsShape(s))
	return string(b)
}

// FullDraftSignature fingerprints every saved field of the draft.
// DraftID and WorkspaceToken are identity, not content.
func FullDraftSignature(s State) string {
	tags := s.Tags
	if tags == nil {
		tags = []string{}
	}
	b, _ := json.Marshal(sigDraft{
		Topic:        s.Topic,
		Body:         s.Body,
		Instructions: s.Instructions,
		Model:        s.Model,
		Tags:         tags,
		Keywords:     keywordsShape(s),
	})
	return string(b)
}
