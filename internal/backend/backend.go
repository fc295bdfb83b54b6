// Package backend implements the remote service in-process on top of the
// draft database, the workspace store and the assistant.
package backend

import (
	"context"
	"database/sql"

	"github.com/hpungsan/promptbench/internal/assist"
	"github.com/hpungsan/promptbench/internal/config"
	"github.com/hpungsan/promptbench/internal/errors"
	"github.com/hpungsan/promptbench/internal/keyword"
	"github.com/hpungsan/promptbench/internal/logger"
	"github.com/hpungsan/promptbench/internal/ops"
	"github.com/hpungsan/promptbench/internal/prompt"
	"github.com/hpungsan/promptbench/internal/remote"
	"github.com/hpungsan/promptbench/internal/workspace"
)

// Assistant is the AI collaborator. *assist.Client implements it.
type Assistant interface {
	Configured() bool
	Interpret(ctx context.Context, text string, limit int) (*assist.Interpretation, error)
	Augment(ctx context.Context, input assist.AugmentInput) ([]keyword.Record, error)
	Generate(ctx context.Context, composed string) (string, error)
}

// Local serves the workbench without a network hop.
type Local struct {
	db         *sql.DB
	workspaces workspace.Store
	assistant  Assistant
	cfg        *config.Config
	log        *logger.Logger
}

var _ remote.Service = (*Local)(nil)

// New creates a local backend. assistant may be nil or unconfigured; the AI
// calls then fail with INVALID_REQUEST.
func New(cfg *config.Config, database *sql.DB, workspaces workspace.Store, assistant Assistant, log *logger.Logger) *Local {
	return &Local{
		db:         database,
		workspaces: workspaces,
		assistant:  assistant,
		cfg:        cfg,
		log:        logger.OrNop(log).With("component", "backend"),
	}
}

// Interpret asks the assistant for a topic and keywords and stores them in
// the request's workspace, opening one when no token is given. Keywords past
// the capacity are returned without remote ids and are not stored.
func (l *Local) Interpret(ctx context.Context, req remote.InterpretRequest) (*remote.InterpretResult, error) {
	if err := l.requireAssistant(); err != nil {
		return nil, err
	}
	got, err := l.assistant.Interpret(ctx, req.Text, l.cfg.KeywordCapacity)
	if err != nil {
		return nil, err
	}

	posKeep, posRest := l.fit(keyword.Positive, got.Positive)
	negKeep, negRest := l.fit(keyword.Negative, got.Negative)

	var w *prompt.Workspace
	if req.WorkspaceToken == "" {
		w, err = ops.OpenWorkspace(ctx, l.workspaces, l.cfg, ops.OpenWorkspaceInput{
			Topic: got.Topic, Positive: posKeep, Negative: negKeep,
		})
	} else {
		topic := got.Topic
		w, err = ops.SyncWorkspace(ctx, l.workspaces, l.cfg, ops.SyncWorkspaceInput{
			Token: req.WorkspaceToken, Topic: &topic, Positive: posKeep, Negative: negKeep,
		})
	}
	if err != nil {
		return nil, err
	}

	l.log.Debug("interpreted", "workspace", logger.HashToken(w.Token),
		"positive", len(got.Positive), "negative", len(got.Negative))
	return &remote.InterpretResult{
		WorkspaceToken: w.Token,
		Topic:          w.Topic,
		Positive:       append(w.Positive, posRest...),
		Negative:       append(w.Negative, negRest...),
	}, nil
}

// Augment returns the requested polarity extended with assistant
// suggestions. The part that fits replaces the stored collection, opening a
// workspace when no token is given.
func (l *Local) Augment(ctx context.Context, req remote.AugmentRequest) (*remote.AugmentResult, error) {
	if !req.Polarity.Valid() {
		return nil, errors.NewInvalidRequest("polarity must be one of: positive, negative")
	}
	if err := l.requireAssistant(); err != nil {
		return nil, err
	}

	existing := req.Positive
	if req.Polarity == keyword.Negative {
		existing = req.Negative
	}
	suggested, err := l.assistant.Augment(ctx, assist.AugmentInput{
		Topic:    req.Topic,
		Polarity: req.Polarity,
		Positive: words(req.Positive),
		Negative: words(req.Negative),
		Count:    l.cfg.KeywordCapacity,
	})
	if err != nil {
		return nil, err
	}

	combined := append(append([]keyword.Record{}, existing...), suggested...)
	keep, rest := l.fit(req.Polarity, combined)

	pos, neg := req.Positive, req.Negative
	if req.Polarity == keyword.Negative {
		neg = keep
	} else {
		pos = keep
	}

	var w *prompt.Workspace
	if req.WorkspaceToken == "" {
		w, err = ops.OpenWorkspace(ctx, l.workspaces, l.cfg, ops.OpenWorkspaceInput{
			Topic: req.Topic, Positive: pos, Negative: neg,
		})
	} else {
		w, err = ops.SyncWorkspace(ctx, l.workspaces, l.cfg, ops.SyncWorkspaceInput{
			Token: req.WorkspaceToken, Positive: pos, Negative: neg,
		})
	}
	if err != nil {
		return nil, err
	}

	l.log.Debug("augmented", "workspace", logger.HashToken(w.Token),
		"polarity", req.Polarity, "suggested", len(suggested))
	return &remote.AugmentResult{
		WorkspaceToken: w.Token,
		Polarity:       req.Polarity,
		Keywords:       append(w.Collection(req.Polarity), rest...),
	}, nil
}

func (l *Local) CreateKeyword(ctx context.Context, req remote.CreateKeywordRequest) (*keyword.Record, error) {
	weight := req.Weight
	return ops.AddWorkspaceKeyword(ctx, l.workspaces, l.cfg, ops.AddWorkspaceKeywordInput{
		Token:    req.WorkspaceToken,
		Polarity: string(req.Polarity),
		Word:     req.Word,
		Weight:   &weight,
		Source:   keyword.SourceManual,
	})
}

func (l *Local) RemoveKeyword(ctx context.Context, req remote.RemoveKeywordRequest) error {
	_, err := ops.RemoveWorkspaceKeyword(ctx, l.workspaces, l.cfg, ops.RemoveWorkspaceKeywordInput{
		Token:    req.WorkspaceToken,
		Polarity: string(req.Polarity),
		Word:     req.Word,
	})
	return err
}

// GeneratePreview asks the assistant for the text the draft describes and
// renders it together with the composed draft.
func (l *Local) GeneratePreview(ctx context.Context, req remote.PreviewRequest) (*remote.PreviewResult, error) {
	if err := l.requireAssistant(); err != nil {
		return nil, err
	}
	p := promptFromDraft(req.DraftID, req.Draft)
	text, err := l.assistant.Generate(ctx, prompt.Compose(p))
	if err != nil {
		return nil, err
	}
	out, err := ops.RenderPreview(ctx, l.db, ops.RenderPreviewInput{Draft: p, Generated: text})
	if err != nil {
		return nil, err
	}
	return &remote.PreviewResult{Text: text, HTML: out.HTML}, nil
}

func (l *Local) SaveDraft(ctx context.Context, req remote.SaveDraftRequest) (*remote.SaveDraftResult, error) {
	out, err := ops.SaveDraft(ctx, l.db, l.cfg, ops.SaveDraftInput{
		ID:           req.DraftID,
		Topic:        req.Draft.Topic,
		Body:         req.Draft.Body,
		Instructions: req.Draft.Instructions,
		Model:        req.Draft.Model,
		Tags:         req.Draft.Tags,
		Positive:     req.Draft.Positive,
		Negative:     req.Draft.Negative,
		Publish:      req.Publish,
	})
	if err != nil {
		return nil, err
	}
	res := &remote.SaveDraftResult{DraftID: out.ID, Status: string(out.Status)}
	if out.TaskID != nil {
		res.TaskID = *out.TaskID
	}
	l.log.Debug("draft saved", "id", out.ID, "revision", out.Revision, "publish", req.Publish)
	return res, nil
}

func (l *Local) SyncKeywords(ctx context.Context, req remote.SyncKeywordsRequest) (*remote.SyncKeywordsResult, error) {
	w, err := ops.SyncWorkspace(ctx, l.workspaces, l.cfg, ops.SyncWorkspaceInput{
		Token:    req.WorkspaceToken,
		Positive: req.Positive,
		Negative: req.Negative,
	})
	if err != nil {
		return nil, err
	}
	return &remote.SyncKeywordsResult{Positive: w.Positive, Negative: w.Negative}, nil
}

func (l *Local) requireAssistant() error {
	if l.assistant == nil || !l.assistant.Configured() {
		return errors.NewInvalidRequest("assistant not configured (set OPENAI_API_KEY)")
	}
	return nil
}

// fit clamps words, drops repeats that only appear after clamping and splits
// the list at the keyword capacity.
func (l *Local) fit(p keyword.Polarity, records []keyword.Record) (keep, rest []keyword.Record) {
	seen := make(map[string]bool, len(records))
	clean := make([]keyword.Record, 0, len(records))
	for _, r := range records {
		r.Word, _ = keyword.Clamp(r.Word, l.cfg.WordMaxChars)
		key := keyword.DedupeKey(p, r.Word)
		if r.Word == "" || seen[key] {
			continue
		}
		seen[key] = true
		clean = append(clean, r)
	}
	if len(clean) <= l.cfg.KeywordCapacity {
		return clean, nil
	}
	k := l.cfg.KeywordCapacity
	return clean[:k:k], clean[k:]
}

func promptFromDraft(id string, d remote.Draft) *prompt.Prompt {
	return &prompt.Prompt{
		ID:           id,
		Topic:        d.Topic,
		Body:         d.Body,
		Instructions: d.Instructions,
		Model:        d.Model,
		Tags:         d.Tags,
		Positive:     d.Positive,
		Negative:     d.Negative,
	}
}

func words(records []keyword.Record) []string {
	out := make([]string, 0, len(records))
	for _, r := range records {
		out = append(out, r.Word)
	}
	return out
}
