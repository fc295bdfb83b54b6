// Package reorder implements the drag lifecycle for keyword tokens: a
// start/over/end/cancel state machine that previews insertion points and
// commits moves within or across polarity collections.
package reorder

import (
	"slices"
	"sync"

	"github.com/hpungsan/promptbench/internal/draft"
	"github.com/hpungsan/promptbench/internal/keyword"
)

// Target is where a token is dragged over or dropped: either a container
// sentinel (the drop zone of a whole collection) or another token.
type Target struct {
	Container keyword.Polarity
	TokenID   string
}

// ContainerTarget returns the drop-zone target of a collection.
func ContainerTarget(p keyword.Polarity) *Target {
	return &Target{Container: p}
}

// TokenTarget returns a target pointing at another token.
func TokenTarget(id string) *Target {
	return &Target{TokenID: id}
}

// Preview is the advisory insertion point shown while dragging.
type Preview struct {
	Polarity keyword.Polarity `json:"polarity"`
	Index    int              `json:"index"`
}

// Engine tracks one drag at a time. It only reads the store while dragging
// and commits through a single atomic Transform on End.
type Engine struct {
	store *draft.Store

	mu      sync.Mutex
	active  string
	preview *Preview
}

// NewEngine creates a reorder engine over store.
func NewEngine(store *draft.Store) *Engine {
	return &Engine{store: store}
}

// Start records the dragged token. Unknown tokens are ignored.
func (e *Engine) Start(tokenID string) bool {
	if _, ok := e.store.Find(tokenID); !ok {
		return false
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.active = tokenID
	e.preview = nil
	return true
}

// Active returns the dragged token ID, or "".
func (e *Engine) Active() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.active
}

// Preview returns the current insertion preview.
func (e *Engine) Preview() (Preview, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.preview == nil {
		return Preview{}, false
	}
	return *e.preview, true
}

// Over computes the insertion preview for dragging tokenID over target.
// The preview is cleared when it would land the token where it already is.
// Capacity and duplicate rules are not checked here.
func (e *Engine) Over(tokenID string, target *Target) (Preview, bool) {
	st := e.store.Snapshot()
	dest, ok := resolve(st, tokenID, target)

	e.mu.Lock()
	defer e.mu.Unlock()
	if !ok {
		e.preview = nil
		return Preview{}, false
	}
	e.preview = &dest
	return dest, true
}

// End commits the move of tokenID onto target. A nil target (drop outside
// any zone) leaves order untouched. A cross-collection drop into a full
// collection fails with CAPACITY_EXCEEDED and leaves order untouched.
func (e *Engine) End(tokenID string, target *Target) error {
	e.mu.Lock()
	e.active = ""
	e.preview = nil
	e.mu.Unlock()

	if target == nil {
		return nil
	}
	return e.store.Transform(func(pos, neg []keyword.Token) ([]keyword.Token, []keyword.Token, error) {
		st := draft.State{Positive: pos, Negative: neg}
		dest, ok := resolve(st, tokenID, target)
		if !ok {
			return pos, neg, nil
		}
		srcPol, srcIdx, _ := st.Locate(tokenID)
		return move(st, srcPol, srcIdx, dest)
	})
}

// Cancel drops the drag state. Committed collections are never touched.
func (e *Engine) Cancel() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.active = ""
	e.preview = nil
}

// resolve maps a target to a destination (polarity, index) for tokenID.
// It returns false when there is nothing to move: unknown token or target,
// or a destination equal to the token's current position.
func resolve(st draft.State, tokenID string, target *Target) (Preview, bool) {
	if target == nil {
		return Preview{}, false
	}
	srcPol, srcIdx, ok := st.Locate(tokenID)
	if !ok {
		return Preview{}, false
	}

	var dest Preview
	switch {
	case target.TokenID != "":
		p, i, ok := st.Locate(target.TokenID)
		if !ok {
			return Preview{}, false
		}
		dest = Preview{Polarity: p, Index: i}
	case target.Container.Valid():
		dest = Preview{Polarity: target.Container, Index: len(st.Collection(target.Container))}
	default:
		return Preview{}, false
	}

	if dest.Polarity == srcPol {
		// Removing the dragged item first shifts later indices down by one.
		dest.Index = min(dest.Index, len(st.Collection(srcPol))-1)
		if dest.Index == srcIdx {
			return Preview{}, false
		}
	}
	return dest, true
}

// move removes the token at (srcPol, srcIdx) and inserts it at dest,
// rewriting its polarity on a cross-collection move. No duplicate check is
// made across collections: a word may appear once per polarity.
func move(st draft.State, srcPol keyword.Polarity, srcIdx int, dest Preview) ([]keyword.Token, []keyword.Token, error) {
	src := st.Collection(srcPol)
	tok := src[srcIdx]
	src = slices.Delete(src, srcIdx, srcIdx+1)

	if dest.Polarity == srcPol {
		src = slices.Insert(src, min(dest.Index, len(src)), tok)
		if srcPol == keyword.Negative {
			return st.Positive, src, nil
		}
		return src, st.Negative, nil
	}

	dst := st.Collection(dest.Polarity)
	tok.Polarity = dest.Polarity
	dst = slices.Insert(dst, min(dest.Index, len(dst)), tok)
	if dest.Polarity == keyword.Negative {
		return src, dst, nil
	}
	return dst, src, nil
}
