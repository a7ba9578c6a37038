package jeedom

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/cloudkucooland/jeedombridge/accessory"

	"github.com/sirupsen/logrus"
)

// DefaultPulseDelay is how long a single-command switch stays in its commanded state
const DefaultPulseDelay = time.Second

// Notifier is told whenever a cached state changes outside of a caller's request:
// a poll found a different state, or a pulse switch went back to rest.
type Notifier interface {
	StateChanged(name string, on bool)
}

// NotifierFunc adapts a function to Notifier
type NotifierFunc func(name string, on bool)

// StateChanged calls f
func (f NotifierFunc) StateChanged(name string, on bool) {
	f(name, on)
}

// Registry owns every switch record and its poll loop
type Registry struct {
	// PulseDelay is read when a pulse revert is scheduled
	PulseDelay time.Duration

	client Sender
	log    logrus.FieldLogger

	mu      sync.Mutex
	ctx     context.Context
	cancel  context.CancelFunc
	records map[string]*Record
	polls   map[string]*pollHandle

	notifyMu  sync.RWMutex
	notifiers []Notifier
}

// NewRegistry returns an empty registry sending commands through client
func NewRegistry(client Sender, log logrus.FieldLogger) *Registry {
	if log == nil {
		log = logrus.StandardLogger()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Registry{
		PulseDelay: DefaultPulseDelay,
		client:     client,
		log:        log,
		ctx:        ctx,
		cancel:     cancel,
		records:    make(map[string]*Record),
		polls:      make(map[string]*pollHandle),
	}
}

// Subscribe adds n to the notification fan-out
func (reg *Registry) Subscribe(n Notifier) {
	reg.notifyMu.Lock()
	reg.notifiers = append(reg.notifiers, n)
	reg.notifyMu.Unlock()
}

func (reg *Registry) notify(name string, on bool) {
	reg.notifyMu.RLock()
	ns := make([]Notifier, len(reg.notifiers))
	copy(ns, reg.notifiers)
	reg.notifyMu.RUnlock()

	for _, n := range ns {
		n.StateChanged(name, on)
	}
}

// Apply creates or replaces the record for c.Name and starts polling when configured
func (reg *Registry) Apply(c accessory.Config) *Record {
	rec := NewRecord(c)
	reg.Add(rec)
	return rec
}

// Add installs rec, replacing (and tearing down) any record of the same name.
// A replaced record hands its cached state on to rec.
func (reg *Registry) Add(rec *Record) {
	reg.mu.Lock()
	defer reg.mu.Unlock()

	if old, ok := reg.records[rec.Name]; ok {
		reg.stopPollingLocked(rec.Name)
		old.cancelRevert()
		rec.setState(old.State())
	}
	reg.records[rec.Name] = rec
	reg.logger(rec).Debugf("switch configured: %+v", rec.Config)

	if rec.polled() {
		reg.startPollingLocked(rec.Name)
	}
}

// Remove discards the named record and stops its poll loop; unknown names are ignored
func (reg *Registry) Remove(name string) bool {
	reg.mu.Lock()
	defer reg.mu.Unlock()

	rec, ok := reg.records[name]
	if !ok {
		return false
	}
	reg.stopPollingLocked(name)
	rec.cancelRevert()
	delete(reg.records, name)
	reg.logger(rec).Info("switch removed")
	return true
}

// Get looks up a record by name
func (reg *Registry) Get(name string) (*Record, bool) {
	reg.mu.Lock()
	defer reg.mu.Unlock()
	rec, ok := reg.records[name]
	return rec, ok
}

// Records returns every record, sorted by name
func (reg *Registry) Records() []*Record {
	reg.mu.Lock()
	out := make([]*Record, 0, len(reg.records))
	for _, rec := range reg.records {
		out = append(out, rec)
	}
	reg.mu.Unlock()

	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Clear stops every poll loop and pending revert, aborts in-flight commands and
// forgets all records. The registry can be filled again afterwards.
func (reg *Registry) Clear() {
	reg.mu.Lock()
	var waits []chan struct{}
	for name, h := range reg.polls {
		h.cancel()
		waits = append(waits, h.done)
		delete(reg.polls, name)
	}
	for name, rec := range reg.records {
		rec.cancelRevert()
		delete(reg.records, name)
	}
	reg.cancel()
	reg.ctx, reg.cancel = context.WithCancel(context.Background())
	reg.mu.Unlock()

	for _, done := range waits {
		<-done
	}
}

// GetPowerState answers a read. Polled switches answer from the cache; others query
// Jeedom and keep the answer when the switch has a state command.
func (reg *Registry) GetPowerState(ctx context.Context, name string) (bool, error) {
	rec, ok := reg.Get(name)
	if !ok {
		return false, fmt.Errorf("%w: %s", ErrUnknownSwitch, name)
	}

	if rec.Polling {
		on := rec.State()
		reg.logger(rec).Debugf("%s is %s", rec.Name, onOff(on))
		return on, nil
	}

	on, err := reg.ResolveState(ctx, rec)
	if err != nil {
		return false, err
	}
	if rec.StateCmd != "" {
		rec.setState(on)
	}
	reg.logger(rec).Debugf("%s is %s", rec.Name, onOff(on))
	return on, nil
}

// SetPowerState turns the named switch on or off. See setPowerState for how long it waits.
// The command runs on the registry's lifetime, so cancelling ctx does not abort it.
func (reg *Registry) SetPowerState(_ context.Context, name string, on bool) error {
	rec, ok := reg.Get(name)
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownSwitch, name)
	}
	return reg.setPowerState(rec, on)
}

// Announce tells every subscriber the cached state of the named switch. Front ends
// call it after a set of their own so the other front ends catch up.
func (reg *Registry) Announce(name string) {
	if rec, ok := reg.Get(name); ok {
		reg.notify(name, rec.State())
	}
}

func (reg *Registry) lifetime() context.Context {
	reg.mu.Lock()
	defer reg.mu.Unlock()
	return reg.ctx
}

func (reg *Registry) current(rec *Record) bool {
	cur, ok := reg.Get(rec.Name)
	return ok && cur == rec
}

func (reg *Registry) logger(rec *Record) logrus.FieldLogger {
	return reg.log.WithField("switch", rec.Name)
}

func onOff(on bool) string {
	if on {
		return "on"
	}
	return "off"
}
