// Package deadline provides a single-shot, cancelable timer that guards one
// asynchronous operation.
//
// A Deadline fires its callback at most once, and only if Stop is not called
// before it expires. Callers arm it before issuing an operation and stop it in
// the completion path before touching the result:
//
//	d := deadline.New(timeout, onTimeout)
//	d.Start()
//	issue(func(res Result) {
//		if !d.Stop() {
//			return // the timeout path owns this operation
//		}
//		consume(res)
//	})
package deadline

import (
	"sync"
	"time"
)

// State is the arming state of a Deadline.
type State int

const (
	Disarmed State = iota
	Armed
	Fired
)

func (s State) String() string {
	switch s {
	case Disarmed:
		return "disarmed"
	case Armed:
		return "armed"
	case Fired:
		return "fired"
	default:
		return "unknown"
	}
}

// Deadline is a single-shot timer. The zero value is not usable; use New.
type Deadline struct {
	mu       sync.Mutex
	duration time.Duration
	callback func()
	timer    *time.Timer
	state    State
	gen      uint64
}

// New returns a disarmed Deadline. A non-positive duration never expires,
// so Stop on such a deadline always succeeds once started.
func New(d time.Duration, callback func()) *Deadline {
	return &Deadline{
		duration: d,
		callback: callback,
	}
}

// Duration returns the configured countdown.
func (d *Deadline) Duration() time.Duration {
	return d.duration
}

// State returns the current state.
func (d *Deadline) State() State {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.state
}

// Start arms the deadline. Starting an armed deadline restarts its countdown,
// starting a fired one re-arms it for a new operation.
func (d *Deadline) Start() {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
	d.state = Armed
	d.gen++
	if d.duration <= 0 {
		return
	}
	gen := d.gen
	d.timer = time.AfterFunc(d.duration, func() { d.fire(gen) })
}

// Stop disarms the deadline. It reports true when the callback is guaranteed
// never to run for the current arming, and false when the deadline already
// fired (or was never started).
func (d *Deadline) Stop() bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.state != Armed {
		return false
	}
	d.state = Disarmed
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
	return true
}

// Renew restarts the countdown of an armed deadline. It reports false if the
// deadline is not armed or is already firing.
func (d *Deadline) Renew() bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.state != Armed {
		return false
	}
	if d.timer == nil {
		return true
	}
	if !d.timer.Stop() {
		// fire is already scheduled and will take the lock after us.
		return false
	}
	d.timer.Reset(d.duration)
	return true
}

func (d *Deadline) fire(gen uint64) {
	d.mu.Lock()
	if d.state != Armed || d.gen != gen {
		d.mu.Unlock()
		return
	}
	d.state = Fired
	d.timer = nil
	cb := d.callback
	d.mu.Unlock()

	if cb != nil {
		cb()
	}
}
