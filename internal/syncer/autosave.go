package syncer

import (
	"context"
	"sync"
	"time"

	"github.com/hpungsan/promptbench/internal/draft"
	"github.com/hpungsan/promptbench/internal/errors"
	"github.com/hpungsan/promptbench/internal/logger"
	"github.com/hpungsan/promptbench/internal/remote"
)

// DraftSaver persists a whole draft.
type DraftSaver interface {
	SaveDraft(ctx context.Context, req remote.SaveDraftRequest) (*remote.SaveDraftResult, error)
}

// AutosaveOptions configures an Autosave.
type AutosaveOptions struct {
	Delay   time.Duration
	OnError func(error) // background save failures only; manual saves return their error
	OnSaved func(*remote.SaveDraftResult)
	Logger  *logger.Logger
}

// Autosave persists the whole draft on a longer debounce than keyword sync.
// A save is scheduled only while topic and body are both non-blank.
//
// The baseline is the full-draft signature captured when the last successful
// save was dispatched, so edits that land mid-flight stay unsaved.
type Autosave struct {
	store   *draft.Store
	saver   DraftSaver
	onError func(error)
	onSaved func(*remote.SaveDraftResult)
	log     *logger.Logger

	mu            sync.Mutex
	timer         debounce
	dirty         bool
	inFlight      bool
	done          chan struct{} // closed when the current flight completes
	pendingReplay bool
	baseline      string
	draftID       string // id from the last successful save, until the store catches up
	epoch         uint64
	closed        bool
	saves         int

	unsubscribe func()
}

// NewAutosave subscribes an autosave channel to store. The store's current
// content counts as saved.
func NewAutosave(store *draft.Store, saver DraftSaver, opts AutosaveOptions) *Autosave {
	a := &Autosave{
		store:   store,
		saver:   saver,
		onError: opts.OnError,
		onSaved: opts.OnSaved,
		log:     logger.OrNop(opts.Logger).With("channel", "autosave"),
	}
	a.timer.delay = opts.Delay
	if a.onError == nil {
		a.onError = func(error) {}
	}
	if a.onSaved == nil {
		a.onSaved = func(*remote.SaveDraftResult) {}
	}

	a.mu.Lock()
	a.baseline = store.Signature(draft.ScopeFullDraft)
	a.mu.Unlock()

	a.unsubscribe = store.Subscribe(a.onChange)
	return a
}

func (a *Autosave) onChange(c draft.Change) {
	if !c.Has(draft.ChangeKeywords | draft.ChangeFields) {
		return
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return
	}

	sig, st := a.store.DraftSnapshot()
	a.dirty = sig != a.baseline
	if !draft.Autosavable(st) {
		a.timer.stop()
		return
	}
	a.timer.arm(a.fire)
}

func (a *Autosave) fire(gen uint64) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed || !a.timer.take(gen) {
		return
	}
	a.evaluateLocked()
}

// evaluateLocked dispatches a background save when one is due. Caller holds mu.
func (a *Autosave) evaluateLocked() {
	if a.inFlight {
		a.pendingReplay = true
		return
	}
	sig, st := a.store.DraftSnapshot()
	if sig == a.baseline {
		a.dirty = false
		return
	}
	if !draft.Autosavable(st) {
		return
	}
	epoch := a.beginLocked()
	req := remote.SaveDraftRequest{DraftID: a.draftIDLocked(st), Draft: remote.DraftFromState(st)}
	a.log.Debug("autosaving draft", "draft_id", req.DraftID)
	go func() {
		res, err := a.saver.SaveDraft(context.Background(), req)
		a.complete(epoch, sig, res, err, true)
	}()
}

// draftIDLocked picks the id to save under. Caller holds mu.
func (a *Autosave) draftIDLocked(st draft.State) string {
	if st.DraftID != "" {
		return st.DraftID
	}
	return a.draftID
}

// beginLocked marks a flight as started. Caller holds mu.
func (a *Autosave) beginLocked() uint64 {
	a.inFlight = true
	a.done = make(chan struct{})
	a.saves++
	return a.epoch
}

// complete applies a finished save. Background failures are reported through
// OnError. A pending replay is re-evaluated right away on success or
// failure; a failure with no replay pending is not retried.
func (a *Autosave) complete(epoch uint64, sig string, res *remote.SaveDraftResult, err error, background bool) {
	a.mu.Lock()
	if a.done != nil && epoch == a.epoch {
		close(a.done)
		a.done = nil
	}
	if a.closed || epoch != a.epoch {
		a.mu.Unlock()
		return
	}
	a.inFlight = false
	replay := a.pendingReplay
	a.pendingReplay = false

	if err != nil {
		if replay {
			a.evaluateLocked()
		}
		a.mu.Unlock()
		if background {
			a.log.Warn("autosave failed", "error", err)
			a.onError(errors.NewSyncFailure("autosave", err))
		}
		return
	}

	a.baseline = sig
	a.dirty = a.store.Signature(draft.ScopeFullDraft) != sig
	if res != nil && res.DraftID != "" {
		a.draftID = res.DraftID
	}
	if replay {
		a.evaluateLocked()
	}
	a.mu.Unlock()

	if res != nil && res.DraftID != "" {
		a.store.SetDraftID(res.DraftID)
	}
	a.onSaved(res)
}

// Save bypasses the debounce and saves the current draft now, waiting for a
// background save in flight to finish first. With publish set the draft must
// pass publish validation; on failure no call is made.
func (a *Autosave) Save(ctx context.Context, publish bool) (*remote.SaveDraftResult, error) {
	a.mu.Lock()
	for {
		if a.closed {
			a.mu.Unlock()
			return nil, errors.NewInvalidRequest("workbench is closed")
		}
		if !a.inFlight {
			break
		}
		done := a.done
		a.mu.Unlock()
		select {
		case <-done:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
		a.mu.Lock()
	}

	sig, st := a.store.DraftSnapshot()
	if publish {
		if err := draft.ValidatePublish(st); err != nil {
			a.mu.Unlock()
			return nil, err
		}
	}
	a.timer.stop()
	epoch := a.beginLocked()
	req := remote.SaveDraftRequest{
		DraftID: a.draftIDLocked(st),
		Draft:   remote.DraftFromState(st),
		Publish: publish,
	}
	a.mu.Unlock()

	a.log.Info("saving draft", "draft_id", req.DraftID, "publish", publish)
	res, err := a.saver.SaveDraft(ctx, req)
	a.complete(epoch, sig, res, err, false)
	if err != nil {
		return nil, err
	}
	return res, nil
}

// Rebase declares the store's current content saved and drops any pending
// or in-flight autosave. Used after loading a stored version or resetting.
func (a *Autosave) Rebase() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.timer.stop()
	if a.done != nil {
		close(a.done)
		a.done = nil
	}
	a.epoch++
	a.inFlight = false
	a.pendingReplay = false
	a.dirty = false
	sig, st := a.store.DraftSnapshot()
	a.baseline = sig
	a.draftID = st.DraftID
}

// Dirty reports unsaved draft edits.
func (a *Autosave) Dirty() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.dirty
}

// Saving reports whether a save is running.
func (a *Autosave) Saving() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.inFlight
}

// Saves returns how many saves have been dispatched, manual ones included.
func (a *Autosave) Saves() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.saves
}

// Close cancels the pending timer and detaches from the store.
func (a *Autosave) Close() {
	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		return
	}
	a.closed = true
	a.inFlight = false
	a.timer.stop()
	if a.done != nil {
		close(a.done)
		a.done = nil
	}
	a.epoch++
	a.mu.Unlock()
	a.unsubscribe()
}
