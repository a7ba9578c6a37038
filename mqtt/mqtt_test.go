package mqtt

import (
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cloudkucooland/jeedombridge/accessory"
	"github.com/cloudkucooland/jeedombridge/jeedom"
)

type doneToken struct{}

func (doneToken) Wait() bool                     { return true }
func (doneToken) WaitTimeout(time.Duration) bool { return true }
func (doneToken) Done() <-chan struct{} {
	ch := make(chan struct{})
	close(ch)
	return ch
}
func (doneToken) Error() error { return nil }

type published struct {
	topic    string
	retained bool
	payload  interface{}
}

// fakeClient only implements what the platform calls
type fakeClient struct {
	pahomqtt.Client

	mu  sync.Mutex
	out []published
}

func (f *fakeClient) Publish(topic string, _ byte, retained bool, payload interface{}) pahomqtt.Token {
	f.mu.Lock()
	f.out = append(f.out, published{topic, retained, payload})
	f.mu.Unlock()
	return doneToken{}
}

func (f *fakeClient) last() published {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.out) == 0 {
		return published{}
	}
	return f.out[len(f.out)-1]
}

type fakeMessage struct {
	pahomqtt.Message
	topic   string
	payload string
}

func (m fakeMessage) Topic() string   { return m.topic }
func (m fakeMessage) Payload() []byte { return []byte(m.payload) }

func newPlatform(t *testing.T) (*Platform, *fakeClient) {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	t.Cleanup(srv.Close)

	logger, _ := test.NewNullLogger()
	reg := jeedom.NewRegistry(jeedom.NewClient(srv.URL, "secret", 0), logger)
	t.Cleanup(reg.Clear)

	c, err := accessory.Parse(accessory.Raw{Name: "Lamp", OnCmd: "10", OffCmd: "11"})
	require.NoError(t, err)
	reg.Apply(c)

	p := New(reg)
	fc := &fakeClient{}
	p.client = fc
	p.prefix = "house"
	return p, fc
}

func TestTopics(t *testing.T) {
	assert.Equal(t, "house/Lamp/state", StateTopic("house", "Lamp"))
	assert.Equal(t, "house/Lamp/set", SetTopic("house", "Lamp"))
}

func TestSwitchFromSetTopic(t *testing.T) {
	name, ok := switchFromSetTopic("house", "house/Front Door/set")
	assert.True(t, ok)
	assert.Equal(t, "Front Door", name)

	for _, topic := range []string{"other/Lamp/set", "house/Lamp/state", "house//set", "house/a/b/set"} {
		_, ok := switchFromSetTopic("house", topic)
		assert.False(t, ok, topic)
	}
}

func TestParseCommand(t *testing.T) {
	for _, in := range []string{"on", "ON", "true", "1", " on\n"} {
		on, err := parseCommand([]byte(in))
		require.NoError(t, err, in)
		assert.True(t, on, in)
	}
	for _, in := range []string{"off", "False", "0"} {
		on, err := parseCommand([]byte(in))
		require.NoError(t, err, in)
		assert.False(t, on, in)
	}
	_, err := parseCommand([]byte("toggle"))
	assert.Error(t, err)
}

func TestStateChangedPublishesRetained(t *testing.T) {
	p, fc := newPlatform(t)

	p.StateChanged("Lamp", true)
	assert.Equal(t, published{"house/Lamp/state", true, "on"}, fc.last())
}

func TestHandleSet(t *testing.T) {
	p, fc := newPlatform(t)

	p.handleSet(nil, fakeMessage{topic: "house/Lamp/set", payload: "on"})
	rec, _ := p.Registry.Get("Lamp")
	assert.True(t, rec.State())
	assert.Equal(t, published{"house/Lamp/state", true, "on"}, fc.last())

	p.handleSet(nil, fakeMessage{topic: "house/Lamp/set", payload: "bogus"})
	assert.True(t, rec.State())
}

func TestDisabledWithoutClient(t *testing.T) {
	p, _ := newPlatform(t)
	p.client = nil

	// nothing to publish to, must not panic
	p.StateChanged("Lamp", true)
	p.RemoveAccessory("Lamp")
	p.Background()
}
