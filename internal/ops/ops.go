package ops

import (
	"crypto/rand"
	"fmt"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/hpungsan/promptbench/internal/config"
	"github.com/hpungsan/promptbench/internal/errors"
	"github.com/hpungsan/promptbench/internal/keyword"
)

// Pagination limits
const (
	DefaultListLimit = 20
	MaxListLimit     = 100
)

// Pagination contains pagination metadata for list operations.
type Pagination struct {
	Limit   int  `json:"limit"`
	Offset  int  `json:"offset"`
	HasMore bool `json:"has_more"`
	Total   int  `json:"total"`
}

// newPagination applies limit defaults and bounds and a non-negative offset.
func newPagination(limit, offset int) Pagination {
	if limit <= 0 {
		limit = DefaultListLimit
	}
	if limit > MaxListLimit {
		limit = MaxListLimit
	}
	return Pagination{Limit: limit, Offset: max(offset, 0)}
}

func generateULID() (string, error) {
	entropy := ulid.Monotonic(rand.Reader, 0)
	id, err := ulid.New(ulid.Timestamp(time.Now()), entropy)
	if err != nil {
		return "", err
	}
	return id.String(), nil
}

// cleanKeywords enforces the server-side rules for one polarity collection:
// words are trimmed and clamped, weights clamped, blanks rejected, the
// clamped word unique per polarity and the collection within capacity.
func cleanKeywords(cfg *config.Config, p keyword.Polarity, records []keyword.Record) ([]keyword.Record, error) {
	if len(records) > cfg.KeywordCapacity {
		return nil, errors.NewRemoteLimit(string(p), errors.ReasonCapacity,
			fmt.Sprintf("%s keywords exceed capacity (%d > %d)", p, len(records), cfg.KeywordCapacity))
	}

	out := make([]keyword.Record, 0, len(records))
	seen := make(map[string]bool, len(records))
	for _, r := range records {
		clean, err := cleanKeyword(cfg, p, r)
		if err != nil {
			return nil, err
		}
		key := keyword.DedupeKey(p, clean.Word)
		if seen[key] {
			return nil, errors.NewRemoteLimit(string(p), errors.ReasonDuplicate,
				fmt.Sprintf("duplicate %s keyword %q", p, clean.Word))
		}
		seen[key] = true
		out = append(out, clean)
	}
	return out, nil
}

func cleanKeyword(cfg *config.Config, p keyword.Polarity, r keyword.Record) (keyword.Record, error) {
	word, _ := keyword.Clamp(strings.TrimSpace(r.Word), cfg.WordMaxChars)
	if word == "" {
		return keyword.Record{}, errors.NewInvalidRequest(fmt.Sprintf("%s keyword word must not be empty", p))
	}
	r.Word = word
	r.Weight = keyword.ClampWeight(r.Weight)
	if r.Source == "" {
		r.Source = keyword.SourceAPI
	}
	return r, nil
}

// cleanTags trims and clamps tags, drops blanks and case-insensitive repeats,
// and enforces the tag capacity.
func cleanTags(cfg *config.Config, tags []string) ([]string, error) {
	var out []string
	seen := make(map[string]bool, len(tags))
	for _, tag := range tags {
		tag, _ = keyword.Clamp(strings.TrimSpace(tag), cfg.TagMaxChars)
		key := keyword.Normalize(tag)
		if key == "" || seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, tag)
	}
	if len(out) > cfg.TagCapacity {
		return nil, errors.NewRemoteLimit("tags", errors.ReasonCapacity,
			fmt.Sprintf("tags exceed capacity (%d > %d)", len(out), cfg.TagCapacity))
	}
	return out, nil
}
