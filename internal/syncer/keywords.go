package syncer

import (
	"context"
	"sync"
	"time"

	"github.com/hpungsan/promptbench/internal/draft"
	"github.com/hpungsan/promptbench/internal/errors"
	"github.com/hpungsan/promptbench/internal/keyword"
	"github.com/hpungsan/promptbench/internal/logger"
	"github.com/hpungsan/promptbench/internal/remote"
)

// KeywordPusher pushes a full keyword snapshot to a workspace.
type KeywordPusher interface {
	SyncKeywords(ctx context.Context, req remote.SyncKeywordsRequest) (*remote.SyncKeywordsResult, error)
}

// KeywordSyncOptions configures a KeywordSync.
type KeywordSyncOptions struct {
	Delay   time.Duration
	OnError func(error) // transient notice; never blocks the edit
	Logger  *logger.Logger
}

// KeywordSync keeps a remote workspace's keyword order and weights in step
// with the store. It is active only while the draft has a workspace token.
//
// State machine: {timer, dirty, inFlight, pendingReplay, baseline}. The
// baseline is the keywords signature of the last successful push.
type KeywordSync struct {
	store   *draft.Store
	pusher  KeywordPusher
	onError func(error)
	log     *logger.Logger

	mu            sync.Mutex
	timer         debounce
	token         string
	dirty         bool
	inFlight      bool
	pendingReplay bool
	baseline      string
	epoch         uint64 // bumped on token change and teardown; stale flights are dropped
	closed        bool
	pushes        int

	unsubscribe func()
}

// NewKeywordSync subscribes a keyword sync channel to store.
func NewKeywordSync(store *draft.Store, pusher KeywordPusher, opts KeywordSyncOptions) *KeywordSync {
	k := &KeywordSync{
		store:   store,
		pusher:  pusher,
		onError: opts.OnError,
		log:     logger.OrNop(opts.Logger).With("channel", "keywords"),
	}
	k.timer.delay = opts.Delay
	if k.onError == nil {
		k.onError = func(error) {}
	}

	k.mu.Lock()
	sig, _, _, token := store.KeywordSnapshot()
	k.token = token
	k.baseline = sig
	k.mu.Unlock()

	k.unsubscribe = store.Subscribe(k.onChange)
	return k
}

// onChange runs after every committed store mutation.
func (k *KeywordSync) onChange(c draft.Change) {
	k.mu.Lock()
	defer k.mu.Unlock()
	if k.closed {
		return
	}

	sig, _, _, token := k.store.KeywordSnapshot()
	if token != k.token {
		k.resetLocked(token, sig)
		return
	}
	if token == "" || !c.Has(draft.ChangeKeywords) {
		return
	}
	k.dirty = true
	k.timer.arm(k.fire)
}

// resetLocked tears down the current session. A new token starts clean:
// whatever the workspace was opened with is the baseline.
func (k *KeywordSync) resetLocked(token, sig string) {
	k.timer.stop()
	k.epoch++
	k.token = token
	k.dirty = false
	k.inFlight = false
	k.pendingReplay = false
	k.baseline = sig
	if token != "" {
		k.log.Debug("workspace attached", "workspace", logger.HashToken(token))
	} else {
		k.log.Debug("workspace detached")
	}
}

func (k *KeywordSync) fire(gen uint64) {
	k.mu.Lock()
	defer k.mu.Unlock()
	if k.closed || !k.timer.take(gen) {
		return
	}
	k.evaluateLocked()
}

// evaluateLocked decides whether to push now. Caller holds mu.
func (k *KeywordSync) evaluateLocked() {
	if k.token == "" {
		return
	}
	if k.inFlight {
		k.pendingReplay = true
		return
	}
	sig, pos, neg, token := k.store.KeywordSnapshot()
	if sig == k.baseline {
		k.dirty = false
		return
	}

	k.inFlight = true
	k.pushes++
	epoch := k.epoch
	req := remote.SyncKeywordsRequest{
		WorkspaceToken: token,
		Positive:       keyword.Records(pos),
		Negative:       keyword.Records(neg),
	}
	k.log.Debug("pushing keywords", "workspace", logger.HashToken(token), "positive", len(pos), "negative", len(neg))
	go k.push(epoch, sig, req)
}

func (k *KeywordSync) push(epoch uint64, sig string, req remote.SyncKeywordsRequest) {
	res, err := k.pusher.SyncKeywords(context.Background(), req)

	k.mu.Lock()
	if k.closed || epoch != k.epoch {
		k.mu.Unlock()
		return
	}
	k.inFlight = false
	replay := k.pendingReplay
	k.pendingReplay = false

	if err != nil {
		// Stay dirty. A replay waits for the timer instead of resending the
		// same snapshot inside this completion.
		if replay {
			k.timer.arm(k.fire)
		}
		k.mu.Unlock()
		k.log.Warn("keyword sync failed", "workspace", logger.HashToken(req.WorkspaceToken), "error", err)
		k.onError(errors.NewSyncFailure("keywords", err))
		return
	}

	k.baseline = sig
	current := k.store.Signature(draft.ScopeKeywords)
	k.dirty = current != sig
	if replay {
		k.evaluateLocked()
	}
	k.mu.Unlock()

	if res != nil {
		k.applyRemoteIDs(res)
	}
}

// applyRemoteIDs records server ids for tokens that still match the pushed
// snapshot position and word. Identity changes leave signatures untouched.
func (k *KeywordSync) applyRemoteIDs(res *remote.SyncKeywordsResult) {
	st := k.store.Snapshot()
	assign := func(local []keyword.Token, records []keyword.Record) {
		for i, r := range records {
			if i >= len(local) || r.RemoteID == "" {
				continue
			}
			t := local[i]
			if t.RemoteID != nil || keyword.Normalize(t.StoredWord()) != keyword.Normalize(r.Word) {
				continue
			}
			k.store.SetRemoteID(t.ID, r.RemoteID)
		}
	}
	assign(st.Positive, res.Positive)
	assign(st.Negative, res.Negative)
}

// Acknowledge records sig as already stored on the server, for collections
// applied from a server response. A pending timer then finds nothing to push
// unless the store has moved past sig.
func (k *KeywordSync) Acknowledge(sig string) {
	k.mu.Lock()
	defer k.mu.Unlock()
	if k.closed || k.token == "" {
		return
	}
	k.baseline = sig
	k.dirty = k.store.Signature(draft.ScopeKeywords) != sig
}

// Dirty reports unsynced keyword edits.
func (k *KeywordSync) Dirty() bool {
	k.mu.Lock()
	defer k.mu.Unlock()
	return k.dirty
}

// InFlight reports whether a push is running.
func (k *KeywordSync) InFlight() bool {
	k.mu.Lock()
	defer k.mu.Unlock()
	return k.inFlight
}

// Pushes returns how many pushes have been dispatched.
func (k *KeywordSync) Pushes() int {
	k.mu.Lock()
	defer k.mu.Unlock()
	return k.pushes
}

// Close cancels the pending timer and detaches from the store. A push in
// flight runs to completion but its result is dropped.
func (k *KeywordSync) Close() {
	k.mu.Lock()
	if k.closed {
		k.mu.Unlock()
		return
	}
	k.closed = true
	k.timer.stop()
	k.epoch++
	k.mu.Unlock()
	k.unsubscribe()
}
