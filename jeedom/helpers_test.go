package jeedom

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/cloudkucooland/jeedombridge/accessory"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/require"
)

// fakeSender records every command and answers through fn
type fakeSender struct {
	mu    sync.Mutex
	calls []string
	fn    func(ctx context.Context, cmd string) ([]byte, error)
}

func (f *fakeSender) Send(ctx context.Context, cmd string) ([]byte, error) {
	f.mu.Lock()
	f.calls = append(f.calls, cmd)
	fn := f.fn
	f.mu.Unlock()
	if fn == nil {
		return []byte(`1`), nil
	}
	return fn(ctx, cmd)
}

func (f *fakeSender) set(fn func(ctx context.Context, cmd string) ([]byte, error)) {
	f.mu.Lock()
	f.fn = fn
	f.mu.Unlock()
}

func (f *fakeSender) count(cmd string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.calls {
		if c == cmd {
			n++
		}
	}
	return n
}

func (f *fakeSender) total() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func reply(body string) func(context.Context, string) ([]byte, error) {
	return func(context.Context, string) ([]byte, error) {
		return []byte(body), nil
	}
}

// blockUntilDone never answers before the context is cancelled
func blockUntilDone(ctx context.Context, cmd string) ([]byte, error) {
	<-ctx.Done()
	return nil, &TransportError{Command: cmd, Err: ctx.Err()}
}

type event struct {
	name string
	on   bool
}

type recorder struct {
	mu     sync.Mutex
	events []event
	ch     chan event
}

func newRecorder() *recorder {
	return &recorder{ch: make(chan event, 64)}
}

func (r *recorder) StateChanged(name string, on bool) {
	r.mu.Lock()
	r.events = append(r.events, event{name, on})
	r.mu.Unlock()
	r.ch <- event{name, on}
}

func (r *recorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.events)
}

func (r *recorder) next(t *testing.T, within time.Duration) event {
	t.Helper()
	select {
	case e := <-r.ch:
		return e
	case <-time.After(within):
		t.Fatalf("no notification within %s", within)
	}
	return event{}
}

func newTestRegistry(t *testing.T, s Sender) (*Registry, *recorder, *test.Hook) {
	t.Helper()
	logger, hook := test.NewNullLogger()
	logger.SetLevel(logrus.DebugLevel)

	reg := NewRegistry(s, logger)
	reg.PulseDelay = 50 * time.Millisecond
	rec := newRecorder()
	reg.Subscribe(rec)
	t.Cleanup(reg.Clear)
	return reg, rec, hook
}

func mustParse(t *testing.T, r accessory.Raw) accessory.Config {
	t.Helper()
	c, err := accessory.Parse(r)
	require.NoError(t, err)
	return c
}

// fastRecord is a record whose durations are scaled down for tests
func fastRecord(t *testing.T, r accessory.Raw, timeout, interval time.Duration) *Record {
	t.Helper()
	rec := NewRecord(mustParse(t, r))
	rec.CommandTimeout = timeout
	rec.PollInterval = interval
	return rec
}

func hasEntry(hook *test.Hook, msg string) bool {
	for _, e := range hook.AllEntries() {
		if e.Message == msg {
			return true
		}
	}
	return false
}

// hub is a fake Jeedom server
type hub struct {
	mu      sync.Mutex
	replies map[string]string
	calls   map[string]int
	srv     *httptest.Server
}

func newHub(t *testing.T) *hub {
	t.Helper()
	h := &hub{replies: map[string]string{}, calls: map[string]int{}}
	h.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		if r.URL.Path != apiPath || q.Get("apikey") != "secret" || q.Get("type") != "cmd" {
			http.Error(w, "bad request", http.StatusBadRequest)
			return
		}
		id := q.Get("id")
		h.mu.Lock()
		h.calls[id]++
		body := h.replies[id]
		h.mu.Unlock()
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(h.srv.Close)
	return h
}

func (h *hub) set(id, body string) {
	h.mu.Lock()
	h.replies[id] = body
	h.mu.Unlock()
}

func (h *hub) count(id string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.calls[id]
}

func (h *hub) client() *Client {
	return NewClient(h.srv.URL, "secret", time.Second)
}
