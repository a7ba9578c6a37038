package jeedom

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/cloudkucooland/jeedombridge/accessory"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var polledLamp = accessory.Raw{Name: "Lamp", OnCmd: "10", OffCmd: "11", StateCmd: "12", Polling: true}

func TestPollerNotifiesOnFlip(t *testing.T) {
	h := newHub(t)
	h.set("12", "0")
	reg, notes, _ := newTestRegistry(t, h.client())
	rec := fastRecord(t, polledLamp, time.Second, 20*time.Millisecond)
	reg.Add(rec)

	h.set("12", "1")
	assert.Equal(t, event{"Lamp", true}, notes.next(t, time.Second))
	assert.True(t, rec.State())

	h.set("12", "0")
	assert.Equal(t, event{"Lamp", false}, notes.next(t, time.Second))
	assert.False(t, rec.State())
}

func TestPollerSilentWhenUnchanged(t *testing.T) {
	h := newHub(t)
	h.set("12", "0")
	reg, notes, _ := newTestRegistry(t, h.client())
	reg.Add(fastRecord(t, polledLamp, time.Second, 10*time.Millisecond))

	assert.Eventually(t, func() bool { return h.count("12") >= 5 }, time.Second, 5*time.Millisecond)
	assert.Zero(t, notes.count())
}

func TestPollerSurvivesErrors(t *testing.T) {
	var n int32
	s := &fakeSender{fn: func(_ context.Context, cmd string) ([]byte, error) {
		switch atomic.AddInt32(&n, 1) {
		case 1:
			return nil, &TransportError{Command: cmd, Err: errors.New("unreachable")}
		case 2:
			return []byte(`"garbage"`), nil
		}
		return []byte(`1`), nil
	}}
	reg, notes, hook := newTestRegistry(t, s)
	reg.Add(fastRecord(t, polledLamp, time.Second, 10*time.Millisecond))

	assert.Equal(t, event{"Lamp", true}, notes.next(t, time.Second))
	assert.True(t, hasEntry(hook, "failed to determine state"))
	assert.True(t, reg.Polling("Lamp"))
}

func TestPollerNeedsStateCommand(t *testing.T) {
	s := &fakeSender{}
	reg, _, _ := newTestRegistry(t, s)
	reg.Apply(mustParse(t, accessory.Raw{Name: "Fan", OnCmd: "1", OffCmd: "2", Polling: true}))

	assert.False(t, reg.Polling("Fan"))
	assert.Zero(t, s.total())
}

func TestReapplyReplacesPollLoop(t *testing.T) {
	h := newHub(t)
	h.set("12", "0")
	reg, _, _ := newTestRegistry(t, h.client())

	var handles []*pollHandle
	for i := 0; i < 3; i++ {
		reg.Add(fastRecord(t, polledLamp, time.Second, 10*time.Millisecond))
		reg.mu.Lock()
		require.Len(t, reg.polls, 1)
		handles = append(handles, reg.polls["Lamp"])
		reg.mu.Unlock()
	}

	for _, old := range handles[:2] {
		select {
		case <-old.done:
		case <-time.After(time.Second):
			t.Fatal("replaced poll loop is still running")
		}
	}
	select {
	case <-handles[2].done:
		t.Fatal("current poll loop stopped")
	default:
	}
}

func TestReapplyKeepsCachedState(t *testing.T) {
	reg, _, _ := newTestRegistry(t, &fakeSender{})
	rec := reg.Apply(mustParse(t, accessory.Raw{Name: "Lamp", OnCmd: "10", OffCmd: "11"}))
	rec.setState(true)

	next := reg.Apply(mustParse(t, accessory.Raw{Name: "Lamp", OnCmd: "10", OffCmd: "11", Timeout: 5}))
	assert.True(t, next.State())
	assert.Equal(t, 5*time.Second, next.CommandTimeout)
}

func TestRemoveIsIdempotent(t *testing.T) {
	h := newHub(t)
	reg, _, _ := newTestRegistry(t, h.client())

	assert.False(t, reg.Remove("never-added"))

	reg.Add(fastRecord(t, polledLamp, time.Second, 10*time.Millisecond))
	reg.mu.Lock()
	handle := reg.polls["Lamp"]
	reg.mu.Unlock()
	require.NotNil(t, handle)

	assert.True(t, reg.Remove("Lamp"))
	assert.False(t, reg.Remove("Lamp"))
	assert.False(t, reg.Polling("Lamp"))

	select {
	case <-handle.done:
	case <-time.After(time.Second):
		t.Fatal("poll loop survived Remove")
	}
	_, ok := reg.Get("Lamp")
	assert.False(t, ok)
}

func TestClearStopsEverything(t *testing.T) {
	h := newHub(t)
	reg, _, _ := newTestRegistry(t, h.client())
	reg.Add(fastRecord(t, polledLamp, time.Second, 10*time.Millisecond))
	reg.Apply(mustParse(t, accessory.Raw{Name: "Doorbell", OnCmd: "20"}))

	reg.Clear()
	assert.Empty(t, reg.Records())
	assert.False(t, reg.Polling("Lamp"))

	// let a request aborted by Clear reach the hub before counting
	time.Sleep(20 * time.Millisecond)
	calls := h.count("12")
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, calls, h.count("12"))

	// usable again after Clear
	reg.Apply(mustParse(t, accessory.Raw{Name: "Doorbell", OnCmd: "20"}))
	require.NoError(t, reg.SetPowerState(context.Background(), "Doorbell", true))
}

func TestStalePollResultIsDropped(t *testing.T) {
	h := newHub(t)
	h.set("12", "1")
	reg, notes, _ := newTestRegistry(t, h.client())

	lamp := accessory.Raw{Name: "Lamp", OnCmd: "10", OffCmd: "11", StateCmd: "12"}
	old := reg.Apply(mustParse(t, lamp))
	cur := reg.Apply(mustParse(t, lamp))

	// a loop still holding the replaced record gets its answer late
	reg.pollOnce(context.Background(), old)
	assert.False(t, old.State())
	assert.False(t, cur.State())

	reg.Remove("Lamp")
	reg.pollOnce(context.Background(), cur)
	assert.False(t, cur.State())
	assert.Zero(t, notes.count())
}
