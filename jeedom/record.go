package jeedom

import (
	"sync"
	"time"

	"github.com/cloudkucooland/jeedombridge/accessory"
)

// Record is one switch: its configuration plus the last known (or assumed) state.
// The configuration fields are fixed once the record is in a Registry; re-applying
// a config replaces the record.
type Record struct {
	accessory.Config

	PollInterval   time.Duration
	CommandTimeout time.Duration

	mu    sync.Mutex
	state bool
	// pending pulse revert, see scheduleRevert
	revert *time.Timer
}

// NewRecord builds a record from a validated config.
// Switches that only have an off command start out on.
func NewRecord(c accessory.Config) *Record {
	return &Record{
		Config:         c,
		PollInterval:   time.Duration(c.Interval) * time.Second,
		CommandTimeout: time.Duration(c.Timeout) * time.Second,
		state:          c.OffCmd != "" && c.OnCmd == "",
	}
}

// State returns the cached state
func (r *Record) State() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// setState stores s and reports whether it differs from what was cached
func (r *Record) setState(s bool) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	changed := r.state != s
	r.state = s
	return changed
}

func (r *Record) command(on bool) string {
	if on {
		return r.OnCmd
	}
	return r.OffCmd
}

// isPulse is true when setting the switch to `on` cannot be held: the switch has a
// command for that direction only and no state command to confirm it.
func (r *Record) isPulse(on bool) bool {
	return r.command(on) != "" && r.command(!on) == "" && r.StateCmd == ""
}

func (r *Record) polled() bool {
	return r.Polling && r.StateCmd != ""
}

// scheduleRevert arms fn after d, replacing any revert already pending
func (r *Record) scheduleRevert(d time.Duration, fn func()) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.revert != nil {
		r.revert.Stop()
	}
	var t *time.Timer
	t = time.AfterFunc(d, func() {
		r.mu.Lock()
		if r.revert != t {
			// superseded between firing and locking
			r.mu.Unlock()
			return
		}
		r.revert = nil
		r.mu.Unlock()
		fn()
	})
	r.revert = t
}

func (r *Record) cancelRevert() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.revert != nil {
		r.revert.Stop()
		r.revert = nil
	}
}
