package signal

import (
	"sync"
	"time"
)

// Debouncer coalesces rapid triggers into one invocation of the most recent
// callback after the window elapses. Content, title and cursor emission all
// share this discipline instead of carrying their own timer bookkeeping.
type Debouncer struct {
	mu      sync.Mutex
	window  time.Duration
	timer   *time.Timer
	pending func()
	stopped bool
}

func NewDebouncer(window time.Duration) *Debouncer {
	return &Debouncer{window: window}
}

// Trigger schedules fn to run after the window. A trigger inside the window
// replaces the pending callback and restarts the timer, so only the latest
// arguments captured by fn survive a burst.
func (d *Debouncer) Trigger(fn func()) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.stopped {
		return
	}
	d.pending = fn
	if d.timer == nil {
		d.timer = time.AfterFunc(d.window, d.fire)
		return
	}
	d.timer.Reset(d.window)
}

func (d *Debouncer) fire() {
	d.mu.Lock()
	fn := d.pending
	d.pending = nil
	d.timer = nil
	d.mu.Unlock()
	if fn != nil {
		fn()
	}
}

// Flush runs any pending callback immediately.
func (d *Debouncer) Flush() {
	d.mu.Lock()
	fn := d.pending
	d.pending = nil
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
	d.mu.Unlock()
	if fn != nil {
		fn()
	}
}

// Cancel drops any pending callback but keeps the debouncer usable.
func (d *Debouncer) Cancel() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.pending = nil
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
}

// Stop drops any pending callback and rejects further triggers.
func (d *Debouncer) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.stopped = true
	d.pending = nil
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
}
