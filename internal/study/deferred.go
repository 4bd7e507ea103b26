package study

import (
	"sync"
	"time"
)

// Deferred runs at most one delayed callback. Scheduling again supersedes the
// pending callback, and a superseded callback never runs, even when its timer
// already fired and is waiting on the lock.
type Deferred struct {
	mu    sync.Mutex
	timer *time.Timer
	seq   uint64
}

// Schedule arranges for fn to run after delay, replacing any pending callback.
func (d *Deferred) Schedule(delay time.Duration, fn func()) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.stopLocked()
	d.seq++
	seq := d.seq
	d.timer = time.AfterFunc(delay, func() {
		d.mu.Lock()
		if d.seq != seq {
			d.mu.Unlock()
			return
		}
		d.timer = nil
		d.mu.Unlock()
		fn()
	})
}

// Cancel drops the pending callback. It reports whether one was pending.
func (d *Deferred) Cancel() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	pending := d.timer != nil
	d.stopLocked()
	d.seq++
	return pending
}

// Pending reports whether a callback is waiting to run.
func (d *Deferred) Pending() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.timer != nil
}

func (d *Deferred) stopLocked() {
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
}
