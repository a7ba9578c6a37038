package jeedom

import (
	"context"
	"time"
)

type pollHandle struct {
	cancel context.CancelFunc
	done   chan struct{}
}

// startPollingLocked cancels any poll loop for name and starts a new one without
// waiting for the old loop to exit. reg.mu must be held.
func (reg *Registry) startPollingLocked(name string) {
	reg.stopPollingLocked(name)

	ctx, cancel := context.WithCancel(reg.ctx)
	h := &pollHandle{cancel: cancel, done: make(chan struct{})}
	reg.polls[name] = h
	go reg.pollLoop(ctx, name, h.done)
}

// stopPollingLocked cancels the poll loop for name, if any. reg.mu must be held.
func (reg *Registry) stopPollingLocked(name string) {
	if h, ok := reg.polls[name]; ok {
		h.cancel()
		delete(reg.polls, name)
	}
}

// Polling reports whether a poll loop is running for name
func (reg *Registry) Polling(name string) bool {
	reg.mu.Lock()
	defer reg.mu.Unlock()
	_, ok := reg.polls[name]
	return ok
}

// pollLoop polls now, then every PollInterval of whatever record currently holds name
func (reg *Registry) pollLoop(ctx context.Context, name string, done chan struct{}) {
	defer close(done)

	for {
		rec, ok := reg.Get(name)
		if !ok {
			return
		}
		reg.pollOnce(ctx, rec)

		// the interval may have changed while we were waiting on Jeedom
		if cur, ok := reg.Get(name); ok {
			rec = cur
		}
		t := time.NewTimer(rec.PollInterval)
		select {
		case <-ctx.Done():
			t.Stop()
			return
		case <-t.C:
		}
	}
}

func (reg *Registry) pollOnce(ctx context.Context, rec *Record) {
	on, err := reg.ResolveState(ctx, rec)
	if err != nil || ctx.Err() != nil {
		// already logged; a cancelled loop must not touch the cache
		return
	}
	// rec may have been replaced or removed while Jeedom answered
	if !reg.current(rec) {
		return
	}
	if rec.setState(on) && reg.current(rec) {
		reg.logger(rec).Infof("%s changed to %s", rec.Name, onOff(on))
		reg.notify(rec.Name, on)
	}
}
