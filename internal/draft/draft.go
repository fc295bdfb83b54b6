package draft

import (
	"slices"

	"github.com/hpungsan/promptbench/internal/config"
	"github.com/hpungsan/promptbench/internal/keyword"
)

// Limits are the collection bounds a Store enforces.
type Limits struct {
	KeywordCapacity int // K, per polarity
	TagCapacity     int // T
	WordMaxChars    int
	TagMaxChars     int
}

// LimitsFromConfig extracts store limits from config.
func LimitsFromConfig(cfg *config.Config) Limits {
	return Limits{
		KeywordCapacity: cfg.KeywordCapacity,
		TagCapacity:     cfg.TagCapacity,
		WordMaxChars:    cfg.WordMaxChars,
		TagMaxChars:     cfg.TagMaxChars,
	}
}

// State is the whole draft being edited on the workbench.
type State struct {
	// DraftID is empty until the first successful remote save
	DraftID string `json:"draft_id,omitempty"`

	// WorkspaceToken is empty until the first AI-assisted interaction opens a workspace
	WorkspaceToken string `json:"workspace_token,omitempty"`

	Topic        string          `json:"topic"`
	Body         string          `json:"body"`
	Instructions string          `json:"instructions"`
	Model        string          `json:"model"`
	Tags         []string        `json:"tags"`
	Positive     []keyword.Token `json:"positive"`
	Negative     []keyword.Token `json:"negative"`
}

// Clone returns a deep copy of the state.
func (s State) Clone() State {
	out := s
	out.Tags = slices.Clone(s.Tags)
	out.Positive = cloneTokens(s.Positive)
	out.Negative = cloneTokens(s.Negative)
	return out
}

// Collection returns the token slice for polarity p (not a copy).
func (s State) Collection(p keyword.Polarity) []keyword.Token {
	if p == keyword.Negative {
		return s.Negative
	}
	return s.Positive
}

// Locate finds a token by local ID in either collection.
func (s State) Locate(id string) (keyword.Polarity, int, bool) {
	for i, t := range s.Positive {
		if t.ID == id {
			return keyword.Positive, i, true
		}
	}
	for i, t := range s.Negative {
		if t.ID == id {
			return keyword.Negative, i, true
		}
	}
	return "", -1, false
}

// cloneTokens deep-copies a token slice, including RemoteID pointers.
func cloneTokens(in []keyword.Token) []keyword.Token {
	if in == nil {
		return nil
	}
	out := make([]keyword.Token, len(in))
	for i, t := range in {
		if t.RemoteID != nil {
			rid := *t.RemoteID
			t.RemoteID = &rid
		}
		out[i] = t
	}
	return out
}
