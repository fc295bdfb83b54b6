package ops

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/hpungsan/promptbench/internal/config"
	"github.com/hpungsan/promptbench/internal/errors"
	"github.com/hpungsan/promptbench/internal/keyword"
	"github.com/hpungsan/promptbench/internal/prompt"
	"github.com/hpungsan/promptbench/internal/workspace"
)

// workspaceMu serializes read-modify-write cycles on workspaces within this process.
var workspaceMu sync.Mutex

// OpenWorkspaceInput contains parameters for the OpenWorkspace operation.
type OpenWorkspaceInput struct {
	Topic    string
	Positive []keyword.Record
	Negative []keyword.Record
}

// OpenWorkspace creates a workspace under a fresh token. Initial keywords
// follow the same rules as SyncWorkspace.
func OpenWorkspace(ctx context.Context, store workspace.Store, cfg *config.Config, input OpenWorkspaceInput) (*prompt.Workspace, error) {
	token, err := generateULID()
	if err != nil {
		return nil, errors.NewInternal(err)
	}
	w := &prompt.Workspace{Token: token, Topic: strings.TrimSpace(input.Topic)}
	if err := replaceKeywords(cfg, w, input.Positive, input.Negative); err != nil {
		return nil, err
	}
	if err := store.Put(ctx, w); err != nil {
		return nil, err
	}
	return w, nil
}

// FetchWorkspace retrieves a workspace by token.
func FetchWorkspace(ctx context.Context, store workspace.Store, token string) (*prompt.Workspace, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, errors.NewInvalidRequest("workspace_token is required")
	}
	return store.Get(ctx, token)
}

// SyncWorkspaceInput contains parameters for the SyncWorkspace operation.
type SyncWorkspaceInput struct {
	Token    string
	Topic    *string // nil keeps the current topic
	Positive []keyword.Record
	Negative []keyword.Record
}

// SyncWorkspace replaces both keyword collections with a full snapshot.
// Keywords without a remote id are assigned one; existing ids are kept.
func SyncWorkspace(ctx context.Context, store workspace.Store, cfg *config.Config, input SyncWorkspaceInput) (*prompt.Workspace, error) {
	workspaceMu.Lock()
	defer workspaceMu.Unlock()

	w, err := FetchWorkspace(ctx, store, input.Token)
	if err != nil {
		return nil, err
	}
	if input.Topic != nil {
		w.Topic = strings.TrimSpace(*input.Topic)
	}
	if err := replaceKeywords(cfg, w, input.Positive, input.Negative); err != nil {
		return nil, err
	}
	if err := store.Put(ctx, w); err != nil {
		return nil, err
	}
	return w, nil
}

// AddWorkspaceKeywordInput contains parameters for the AddWorkspaceKeyword operation.
type AddWorkspaceKeywordInput struct {
	Token    string
	Polarity string
	Word     string
	Weight   *int // default: 5
	Source   keyword.Source
}

// AddWorkspaceKeyword appends one keyword to a workspace collection and
// returns it with its remote id. A duplicate word or a full collection
// fails with REMOTE_LIMIT.
func AddWorkspaceKeyword(ctx context.Context, store workspace.Store, cfg *config.Config, input AddWorkspaceKeywordInput) (*keyword.Record, error) {
	p, ok := keyword.ParsePolarity(input.Polarity)
	if !ok {
		return nil, errors.NewInvalidRequest("polarity must be one of: positive, negative")
	}
	weight := keyword.DefaultWeight
	if input.Weight != nil {
		weight = *input.Weight
	}
	source := input.Source
	if source == "" {
		source = keyword.SourceManual
	}
	rec, err := cleanKeyword(cfg, p, keyword.Record{Word: input.Word, Weight: weight, Source: source})
	if err != nil {
		return nil, err
	}

	workspaceMu.Lock()
	defer workspaceMu.Unlock()

	w, err := FetchWorkspace(ctx, store, input.Token)
	if err != nil {
		return nil, err
	}
	existing := w.Collection(p)
	key := keyword.DedupeKey(p, rec.Word)
	for _, r := range existing {
		if keyword.DedupeKey(p, r.Word) == key {
			return nil, errors.NewRemoteLimit(string(p), errors.ReasonDuplicate,
				fmt.Sprintf("duplicate %s keyword %q", p, rec.Word))
		}
	}
	if len(existing) >= cfg.KeywordCapacity {
		return nil, errors.NewRemoteLimit(string(p), errors.ReasonCapacity,
			fmt.Sprintf("%s keywords are at capacity (%d)", p, cfg.KeywordCapacity))
	}

	if rec.RemoteID, err = generateULID(); err != nil {
		return nil, errors.NewInternal(err)
	}
	w.SetCollection(p, append(existing, rec))
	if err := store.Put(ctx, w); err != nil {
		return nil, err
	}
	return &rec, nil
}

// RemoveWorkspaceKeywordInput contains parameters for the RemoveWorkspaceKeyword operation.
type RemoveWorkspaceKeywordInput struct {
	Token    string
	Polarity string
	Word     string
}

// RemoveWorkspaceKeywordOutput contains the result of the RemoveWorkspaceKeyword operation.
type RemoveWorkspaceKeywordOutput struct {
	Removed bool `json:"removed"`
}

// RemoveWorkspaceKeyword deletes a keyword by polarity and word
// (case-insensitive, compared after clamping). Absent words are not an error.
func RemoveWorkspaceKeyword(ctx context.Context, store workspace.Store, cfg *config.Config, input RemoveWorkspaceKeywordInput) (*RemoveWorkspaceKeywordOutput, error) {
	p, ok := keyword.ParsePolarity(input.Polarity)
	if !ok {
		return nil, errors.NewInvalidRequest("polarity must be one of: positive, negative")
	}
	word, _ := keyword.Clamp(strings.TrimSpace(input.Word), cfg.WordMaxChars)
	if word == "" {
		return nil, errors.NewInvalidRequest("word is required")
	}

	workspaceMu.Lock()
	defer workspaceMu.Unlock()

	w, err := FetchWorkspace(ctx, store, input.Token)
	if err != nil {
		return nil, err
	}
	key := keyword.DedupeKey(p, word)
	existing := w.Collection(p)
	kept := make([]keyword.Record, 0, len(existing))
	for _, r := range existing {
		if keyword.DedupeKey(p, r.Word) != key {
			kept = append(kept, r)
		}
	}
	if len(kept) == len(existing) {
		return &RemoveWorkspaceKeywordOutput{Removed: false}, nil
	}
	w.SetCollection(p, kept)
	if err := store.Put(ctx, w); err != nil {
		return nil, err
	}
	return &RemoveWorkspaceKeywordOutput{Removed: true}, nil
}

// replaceKeywords validates both collections, assigns missing remote ids
// and stores them on w.
func replaceKeywords(cfg *config.Config, w *prompt.Workspace, positive, negative []keyword.Record) error {
	pos, err := cleanKeywords(cfg, keyword.Positive, positive)
	if err != nil {
		return err
	}
	neg, err := cleanKeywords(cfg, keyword.Negative, negative)
	if err != nil {
		return err
	}
	for _, recs := range [][]keyword.Record{pos, neg} {
		for i := range recs {
			if recs[i].RemoteID != "" {
				continue
			}
			if recs[i].RemoteID, err = generateULID(); err != nil {
				return errors.NewInternal(err)
			}
		}
	}
	w.Positive = pos
	w.Negative = neg
	return nil
}
