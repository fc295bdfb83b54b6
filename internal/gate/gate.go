// Package gate keeps a loading state visible for a minimum duration around
// the AI generate call, and drops results of calls that a newer call replaced.
package gate

import (
	"context"
	"sync"
	"time"

	"github.com/hpungsan/promptbench/internal/errors"
	"github.com/hpungsan/promptbench/internal/logger"
)

// Gate runs one generation at a time from the caller's point of view: a new
// Run supersedes the previous one, cancelling its pending delay.
type Gate struct {
	minVisible time.Duration
	log        *logger.Logger

	mu      sync.Mutex
	seq     uint64
	cancel  chan struct{} // closed when the current call is superseded
	loading bool
	closed  bool
}

// New creates a gate with the given minimum visible duration.
func New(minVisible time.Duration, log *logger.Logger) *Gate {
	return &Gate{minVisible: minVisible, log: logger.OrNop(log).With("component", "gate")}
}

// Run calls fn and surfaces its result no sooner than the minimum visible
// duration after the start. A call that is superseded by a newer Run, or by
// Close, returns SUPERSEDED instead of its result.
func (g *Gate) Run(ctx context.Context, fn func(ctx context.Context) error) error {
	g.mu.Lock()
	if g.closed {
		g.mu.Unlock()
		return errors.NewSuperseded("generate")
	}
	if g.cancel != nil {
		close(g.cancel)
	}
	g.seq++
	seq := g.seq
	cancel := make(chan struct{})
	g.cancel = cancel
	g.loading = true
	g.mu.Unlock()

	start := time.Now()
	err := fn(ctx)
	elapsed := time.Since(start)

	if remaining := g.minVisible - elapsed; remaining > 0 {
		timer := time.NewTimer(remaining)
		defer timer.Stop()
		select {
		case <-timer.C:
		case <-cancel:
			g.log.Debug("generation superseded during delay", "seq", seq)
			return errors.NewSuperseded("generate")
		case <-ctx.Done():
			g.finish(seq)
			return ctx.Err()
		}
	}

	if !g.finish(seq) {
		g.log.Debug("generation superseded", "seq", seq)
		return errors.NewSuperseded("generate")
	}
	g.log.Debug("generation surfaced", "seq", seq, "elapsed_ms", elapsed.Milliseconds())
	return err
}

// finish clears the loading state if seq is still the current call.
func (g *Gate) finish(seq uint64) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.closed || seq != g.seq {
		return false
	}
	g.loading = false
	g.cancel = nil
	return true
}

// Loading reports whether the loading indicator should be shown.
func (g *Gate) Loading() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.loading
}

// Close cancels any pending delay. Later calls return SUPERSEDED.
func (g *Gate) Close() {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.closed {
		return
	}
	g.closed = true
	g.loading = false
	if g.cancel != nil {
		close(g.cancel)
		g.cancel = nil
	}
}
