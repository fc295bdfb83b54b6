package keyword

import (
	"github.com/google/uuid"
)

// Polarity says whether a keyword pushes generation toward or away from a concept.
type Polarity string

const (
	Positive Polarity = "positive"
	Negative Polarity = "negative"
)

// Valid reports whether p is a known polarity.
func (p Polarity) Valid() bool {
	return p == Positive || p == Negative
}

// Opposite returns the other polarity.
func (p Polarity) Opposite() Polarity {
	if p == Positive {
		return Negative
	}
	return Positive
}

// ParsePolarity parses a polarity name, case-insensitively.
func ParsePolarity(s string) (Polarity, bool) {
	p := Polarity(Normalize(s))
	return p, p.Valid()
}

// Source records how a keyword entered the collection. Display only.
type Source string

const (
	SourceManual Source = "manual"
	SourceModel  Source = "model"
	SourceAPI    Source = "api"
)

// Weight bounds.
const (
	MinWeight     = 0
	MaxWeight     = 5
	DefaultWeight = 5
)

// Token is a weighted keyword in a polarity collection.
type Token struct {
	// ID is a locally generated identifier, stable across reorders and never reused
	ID string `json:"id"`

	// RemoteID is assigned once the server has persisted the keyword (nullable)
	RemoteID *string `json:"remote_id,omitempty"`

	// Word is the text as entered; it may be longer than the stored form
	Word string `json:"word"`

	// OverflowCount is how many runes the clamp cut from Word
	OverflowCount int `json:"overflow_count"`

	Polarity Polarity `json:"polarity"`
	Source   Source   `json:"source"`

	// Weight is always within [MinWeight, MaxWeight]
	Weight int `json:"weight"`
}

// New creates a token with a fresh local ID, a clamped weight and overflow bookkeeping.
func New(p Polarity, word string, weight int, source Source, maxChars int) Token {
	word = trimSpace(word)
	_, overflow := Clamp(word, maxChars)
	if source == "" {
		source = SourceManual
	}
	return Token{
		ID:            NewID(),
		Word:          word,
		OverflowCount: overflow,
		Polarity:      p,
		Source:        source,
		Weight:        ClampWeight(weight),
	}
}

// NewID returns a new local token identifier.
func NewID() string {
	return uuid.NewString()
}

// StoredWord is the clamped form of Word used for storage, dedup and signatures.
func (t Token) StoredWord() string {
	r := []rune(t.Word)
	keep := len(r) - t.OverflowCount
	if keep < 0 {
		keep = 0
	}
	if keep > len(r) {
		keep = len(r)
	}
	return string(r[:keep])
}

// DedupeKey returns the per-polarity uniqueness key of the token.
func (t Token) DedupeKey() string {
	return DedupeKey(t.Polarity, t.StoredWord())
}

// Record is the server-facing form of a keyword.
type Record struct {
	RemoteID string `json:"remote_id,omitempty"`
	Word     string `json:"word"`
	Weight   int    `json:"weight"`
	Source   Source `json:"source,omitempty"`
}

// ToRecord converts a token to its server-facing form (clamped word).
func (t Token) ToRecord() Record {
	r := Record{
		Word:   t.StoredWord(),
		Weight: t.Weight,
		Source: t.Source,
	}
	if t.RemoteID != nil {
		r.RemoteID = *t.RemoteID
	}
	return r
}

// FromRecord builds a local token from a server record.
func FromRecord(p Polarity, r Record, maxChars int) Token {
	source := r.Source
	if source == "" {
		source = SourceAPI
	}
	t := New(p, r.Word, r.Weight, source, maxChars)
	if r.RemoteID != "" {
		id := r.RemoteID
		t.RemoteID = &id
	}
	return t
}

// Records converts a collection to server records, preserving order.
func Records(tokens []Token) []Record {
	out := make([]Record, 0, len(tokens))
	for _, t := range tokens {
		out = append(out, t.ToRecord())
	}
	return out
}
