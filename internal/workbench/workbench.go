// Package workbench is the editing surface a UI drives: one draft store with
// its reorder engine, the keyword sync and autosave channels, the generation
// gate and a notifier for transient messages.
package workbench

import (
	"context"
	"fmt"
	"slices"

	"github.com/hpungsan/promptbench/internal/config"
	"github.com/hpungsan/promptbench/internal/draft"
	"github.com/hpungsan/promptbench/internal/errors"
	"github.com/hpungsan/promptbench/internal/gate"
	"github.com/hpungsan/promptbench/internal/keyword"
	"github.com/hpungsan/promptbench/internal/logger"
	"github.com/hpungsan/promptbench/internal/remote"
	"github.com/hpungsan/promptbench/internal/reorder"
	"github.com/hpungsan/promptbench/internal/syncer"
)

// Level grades a notice.
type Level string

const (
	LevelInfo  Level = "info"
	LevelWarn  Level = "warn"
	LevelError Level = "error"
)

// Notice is a transient message for the user.
type Notice struct {
	Level   Level            `json:"level"`
	Code    errors.ErrorCode `json:"code,omitempty"`
	Message string           `json:"message"`
}

// Notifier receives notices. It may be called from scheduler goroutines.
type Notifier func(Notice)

// Options configures a Workbench.
type Options struct {
	Notify Notifier
	Logger *logger.Logger
}

// Status is what a UI shows next to the draft.
type Status struct {
	Dirty         bool `json:"dirty"`
	KeywordsDirty bool `json:"keywords_dirty"`
	Saving        bool `json:"saving"`
	Syncing       bool `json:"syncing"`
	Generating    bool `json:"generating"`
}

// Workbench owns one draft being edited.
type Workbench struct {
	cfg      *config.Config
	svc      remote.Service
	store    *draft.Store
	engine   *reorder.Engine
	keywords *syncer.KeywordSync
	autosave *syncer.Autosave
	gate     *gate.Gate
	notify   Notifier
	log      *logger.Logger
}

// New wires a workbench against svc with limits and delays from cfg.
func New(cfg *config.Config, svc remote.Service, opts Options) *Workbench {
	log := logger.OrNop(opts.Logger)
	w := &Workbench{
		cfg:    cfg,
		svc:    svc,
		store:  draft.NewStore(draft.LimitsFromConfig(cfg)),
		notify: opts.Notify,
		log:    log.With("component", "workbench"),
	}
	if w.notify == nil {
		w.notify = func(Notice) {}
	}
	w.engine = reorder.NewEngine(w.store)
	w.keywords = syncer.NewKeywordSync(w.store, svc, syncer.KeywordSyncOptions{
		Delay:   cfg.KeywordSyncDelay(),
		OnError: w.fail,
		Logger:  log,
	})
	w.autosave = syncer.NewAutosave(w.store, svc, syncer.AutosaveOptions{
		Delay:   cfg.AutosaveDelay(),
		OnError: w.fail,
		Logger:  log,
	})
	w.gate = gate.New(cfg.MinGenerateVisible(), log)
	return w
}

// fail reports err as a notice. SUPERSEDED results are dropped silently.
func (w *Workbench) fail(err error) {
	if err == nil || errors.Is(err, errors.ErrSuperseded) {
		return
	}
	n := Notice{Level: LevelError, Code: errors.Code(err), Message: errors.Notice(err)}
	switch n.Code {
	case errors.ErrSyncFailure, errors.ErrDuplicateKeyword, errors.ErrCapacityExceeded,
		errors.ErrRemoteLimit, errors.ErrConflict:
		n.Level = LevelWarn
	}
	w.notify(n)
}

func (w *Workbench) trimmed(what string, capacity int) {
	w.notify(Notice{Level: LevelInfo, Message: fmt.Sprintf("only the first %d %s were kept", capacity, what)})
}

// Snapshot returns a copy of the draft.
func (w *Workbench) Snapshot() draft.State {
	return w.store.Snapshot()
}

// Store exposes the underlying store for subscribers.
func (w *Workbench) Store() *draft.Store {
	return w.store
}

// SetTopic sets the draft topic.
func (w *Workbench) SetTopic(v string) { w.store.SetTopic(v) }

// SetBody sets the draft body.
func (w *Workbench) SetBody(v string) { w.store.SetBody(v) }

// SetInstructions sets the generation instructions.
func (w *Workbench) SetInstructions(v string) { w.store.SetInstructions(v) }

// SetModel sets the target model name.
func (w *Workbench) SetModel(v string) { w.store.SetModel(v) }

// SetTags replaces the tag set; extra tags past capacity are dropped with a notice.
func (w *Workbench) SetTags(tags []string) {
	if w.store.SetTags(tags) {
		w.trimmed("tags", w.cfg.TagCapacity)
	}
}

// AddTag adds one tag; duplicates and a full tag set are rejected with a notice.
func (w *Workbench) AddTag(tag string) error {
	if err := w.store.AddTag(tag); err != nil {
		w.fail(err)
		return err
	}
	return nil
}

// RemoveTag removes a tag, case-insensitively. It reports whether one was removed.
func (w *Workbench) RemoveTag(tag string) bool {
	return w.store.RemoveTag(tag)
}

// AddKeywordInput is a manual keyword entry.
type AddKeywordInput struct {
	Polarity keyword.Polarity
	Word     string
	Weight   *int
}

// AddKeyword adds a keyword locally, then to the workspace when one exists.
// A remote duplicate or capacity rejection rolls the local add back and
// shows the same notice a local rejection would.
func (w *Workbench) AddKeyword(ctx context.Context, in AddKeywordInput) (keyword.Token, error) {
	tok, err := w.store.Add(draft.AddInput{
		Polarity: in.Polarity,
		Word:     in.Word,
		Weight:   in.Weight,
		Source:   keyword.SourceManual,
	})
	if err != nil {
		w.fail(err)
		return keyword.Token{}, err
	}

	token := w.store.Snapshot().WorkspaceToken
	if token == "" {
		return tok, nil
	}
	rec, err := w.svc.CreateKeyword(ctx, remote.CreateKeywordRequest{
		WorkspaceToken: token,
		Polarity:       tok.Polarity,
		Word:           tok.StoredWord(),
		Weight:         tok.Weight,
	})
	if errors.Is(err, errors.ErrRemoteLimit) {
		w.store.Remove(tok.ID)
		w.log.Debug("remote rejected keyword", "workspace", logger.HashToken(token), "error", err)
		w.fail(err)
		return keyword.Token{}, err
	}
	if err != nil {
		// The keyword stays; the next keyword sync carries it.
		w.log.Warn("create keyword failed", "workspace", logger.HashToken(token), "error", err)
		w.fail(errors.NewSyncFailure("keywords", err))
		return tok, nil
	}
	if rec != nil && rec.RemoteID != "" {
		w.store.SetRemoteID(tok.ID, rec.RemoteID)
		tok.RemoteID = &rec.RemoteID
	}
	return tok, nil
}

// RemoveKeyword deletes a keyword locally and from the workspace. The last
// positive keyword cannot be removed.
func (w *Workbench) RemoveKeyword(ctx context.Context, id string) error {
	var removed keyword.Token
	err := w.store.Transform(func(pos, neg []keyword.Token) ([]keyword.Token, []keyword.Token, error) {
		if i := slices.IndexFunc(pos, func(t keyword.Token) bool { return t.ID == id }); i >= 0 {
			if len(pos) == 1 {
				return nil, nil, errors.NewInvalidRequest("at least one positive keyword is required")
			}
			removed = pos[i]
			return slices.Delete(pos, i, i+1), neg, nil
		}
		if i := slices.IndexFunc(neg, func(t keyword.Token) bool { return t.ID == id }); i >= 0 {
			removed = neg[i]
			return pos, slices.Delete(neg, i, i+1), nil
		}
		return pos, neg, nil
	})
	if err != nil {
		w.fail(err)
		return err
	}
	if removed.ID == "" {
		return nil
	}

	token := w.store.Snapshot().WorkspaceToken
	if token == "" {
		return nil
	}
	err = w.svc.RemoveKeyword(ctx, remote.RemoveKeywordRequest{
		WorkspaceToken: token,
		Polarity:       removed.Polarity,
		Word:           removed.StoredWord(),
	})
	if err != nil {
		w.log.Warn("remove keyword failed", "workspace", logger.HashToken(token), "error", err)
		w.fail(errors.NewSyncFailure("keywords", err))
	}
	return nil
}

// UpdateWeight clamps and sets a keyword weight. False means the id is unknown.
func (w *Workbench) UpdateWeight(id string, weight int) bool {
	return w.store.UpdateWeight(id, weight)
}

// SortByWeight orders one collection by weight, heaviest first.
func (w *Workbench) SortByWeight(p keyword.Polarity) {
	w.store.SortByWeight(p)
}

// DragStart begins dragging a keyword. False means the id is unknown.
func (w *Workbench) DragStart(id string) bool {
	return w.engine.Start(id)
}

// DragOver returns the advisory drop position for target, if any.
func (w *Workbench) DragOver(id string, target *reorder.Target) (reorder.Preview, bool) {
	return w.engine.Over(id, target)
}

// DragEnd commits a drop. A rejected drop leaves order untouched and notifies.
func (w *Workbench) DragEnd(id string, target *reorder.Target) error {
	if err := w.engine.End(id, target); err != nil {
		w.fail(err)
		return err
	}
	return nil
}

// DragCancel abandons the current drag.
func (w *Workbench) DragCancel() {
	w.engine.Cancel()
}

// Interpret turns text into a topic and starting keywords. The response
// replaces both collections and establishes the workspace token.
func (w *Workbench) Interpret(ctx context.Context, text string) error {
	token := w.store.Snapshot().WorkspaceToken
	res, err := w.svc.Interpret(ctx, remote.InterpretRequest{WorkspaceToken: token, Text: text})
	if err != nil {
		w.fail(err)
		return err
	}

	if res.Topic != "" {
		w.store.SetTopic(res.Topic)
	}
	trimmed := w.store.ReplaceCollections(res.Positive, res.Negative)
	w.adoptWorkspace(token, res.WorkspaceToken)
	if trimmed {
		w.trimmed("keywords", w.cfg.KeywordCapacity)
	}
	w.log.Debug("interpreted", "workspace", logger.HashToken(res.WorkspaceToken),
		"positive", len(res.Positive), "negative", len(res.Negative))
	return nil
}

// Augment asks for more keywords of polarity p and bulk-replaces that
// collection with the answer. Overflow past capacity is truncated with a
// single notice.
func (w *Workbench) Augment(ctx context.Context, p keyword.Polarity) error {
	if !p.Valid() {
		err := errors.NewInvalidRequest("polarity must be one of: positive, negative")
		w.fail(err)
		return err
	}
	st := w.store.Snapshot()
	res, err := w.svc.Augment(ctx, remote.AugmentRequest{
		WorkspaceToken: st.WorkspaceToken,
		Topic:          st.Topic,
		Polarity:       p,
		Positive:       keyword.Records(st.Positive),
		Negative:       keyword.Records(st.Negative),
	})
	if err != nil {
		w.fail(err)
		return err
	}

	trimmed := w.store.ReplaceCollection(p, res.Keywords)
	w.adoptWorkspace(st.WorkspaceToken, res.WorkspaceToken)
	if trimmed {
		w.trimmed("keywords", w.cfg.KeywordCapacity)
	}
	return nil
}

// adoptWorkspace records the token an AI call answered with. Either way the
// server now holds the collections just applied, so they become the sync
// baseline: a new token takes them on arrival, a known one is acknowledged.
func (w *Workbench) adoptWorkspace(sent, got string) {
	switch {
	case got == "":
	case got != sent:
		w.store.SetWorkspaceToken(got)
	default:
		w.keywords.Acknowledge(w.store.Signature(draft.ScopeKeywords))
	}
}

// Generate produces preview output through the gate. A call replaced by a
// newer one returns SUPERSEDED and shows nothing.
func (w *Workbench) Generate(ctx context.Context) (*remote.PreviewResult, error) {
	st := w.store.Snapshot()
	req := remote.PreviewRequest{DraftID: st.DraftID, Draft: remote.DraftFromState(st)}

	var res *remote.PreviewResult
	err := w.gate.Run(ctx, func(ctx context.Context) error {
		r, err := w.svc.GeneratePreview(ctx, req)
		res = r
		return err
	})
	if err != nil {
		w.fail(err)
		return nil, err
	}
	return res, nil
}

// SaveDraft saves now, bypassing the autosave debounce.
func (w *Workbench) SaveDraft(ctx context.Context) (*remote.SaveDraftResult, error) {
	res, err := w.autosave.Save(ctx, false)
	if err != nil {
		w.fail(err)
		return nil, err
	}
	return res, nil
}

// Publish validates the draft and saves it with publish set. A draft
// missing required fields fails with VALIDATION_FAILED and makes no call.
func (w *Workbench) Publish(ctx context.Context) (*remote.SaveDraftResult, error) {
	res, err := w.autosave.Save(ctx, true)
	if err != nil {
		w.fail(err)
		return nil, err
	}
	w.log.Info("draft published", "draft_id", res.DraftID, "task_id", res.TaskID)
	return res, nil
}

// LoadVersion opens a stored version. Its content counts as saved.
func (w *Workbench) LoadVersion(st draft.State) {
	w.engine.Cancel()
	trimmed := w.store.Load(st)
	w.autosave.Rebase()
	if trimmed {
		w.notify(Notice{Level: LevelInfo, Message: "some keywords or tags did not fit and were dropped"})
	}
}

// Cancel discards the draft.
func (w *Workbench) Cancel() {
	w.engine.Cancel()
	w.store.Reset()
	w.autosave.Rebase()
}

// Status reports the dirty and in-flight flags of both channels and the gate.
func (w *Workbench) Status() Status {
	kw := w.keywords.Dirty()
	return Status{
		Dirty:         kw || w.autosave.Dirty(),
		KeywordsDirty: kw,
		Saving:        w.autosave.Saving(),
		Syncing:       w.keywords.InFlight(),
		Generating:    w.gate.Loading(),
	}
}

// Close stops both channels and the gate. Pending timers are dropped.
func (w *Workbench) Close() {
	w.engine.Cancel()
	w.keywords.Close()
	w.autosave.Close()
	w.gate.Close()
}
