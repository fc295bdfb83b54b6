package prompt

import (
	"github.com/hpungsan/promptbench/internal/keyword"
)

// Workspace is a scratch editing session for AI-assisted keyword work.
// It is addressed by an opaque token and only ever holds keywords.
type Workspace struct {
	Token    string           `json:"token"`
	Topic    string           `json:"topic"`
	Positive []keyword.Record `json:"positive"`
	Negative []keyword.Record `json:"negative"`

	CreatedAt int64 `json:"created_at"`
	UpdatedAt int64 `json:"updated_at"`
}

// Collection returns the records of polarity p.
func (w *Workspace) Collection(p keyword.Polarity) []keyword.Record {
	if p == keyword.Negative {
		return w.Negative
	}
	return w.Positive
}

// SetCollection replaces the records of polarity p.
func (w *Workspace) SetCollection(p keyword.Polarity, records []keyword.Record) {
	if p == keyword.Negative {
		w.Negative = records
	} else {
		w.Positive = records
	}
}
