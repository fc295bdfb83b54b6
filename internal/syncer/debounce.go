// Package syncer holds the two debounced, single-flight synchronization
// channels of the workbench: workspace keyword sync (Channel A) and whole
// draft autosave (Channel B). The channels share no state.
package syncer

import (
	"time"
)

// debounce is a restartable one-shot timer. It has no lock of its own;
// the owning scheduler's mutex guards every call.
type debounce struct {
	delay time.Duration
	t     *time.Timer
	gen   uint64
}

// arm (re)starts the timer. fire receives the generation it was armed with
// and must check it with take under the owner's lock.
func (d *debounce) arm(fire func(gen uint64)) {
	d.stop()
	gen := d.gen
	d.t = time.AfterFunc(d.delay, func() { fire(gen) })
}

// stop cancels a pending fire. A callback already running becomes stale.
func (d *debounce) stop() {
	if d.t != nil {
		d.t.Stop()
		d.t = nil
	}
	d.gen++
}

// take reports whether gen is the live arming and consumes it.
func (d *debounce) take(gen uint64) bool {
	if d.t == nil || gen != d.gen {
		return false
	}
	d.t = nil
	d.gen++
	return true
}

func (d *debounce) pending() bool {
	return d.t != nil
}
