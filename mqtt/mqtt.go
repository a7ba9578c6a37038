package mqtt

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/brutella/hc/log"
	pahomqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/cloudkucooland/jeedombridge/accessory"
	"github.com/cloudkucooland/jeedombridge/config"
	"github.com/cloudkucooland/jeedombridge/jeedom"
	"github.com/cloudkucooland/jeedombridge/platform"
)

const (
	connectTimeout = 10 * time.Second
	publishTimeout = 5 * time.Second
	qos            = 1
)

// Platform mirrors switch state to MQTT and takes set commands from it.
// Leave MQTT.Broker empty to disable.
type Platform struct {
	Registry *jeedom.Registry
	Running  bool

	mu     sync.Mutex
	prefix string
	client pahomqtt.Client
}

// New returns the MQTT platform and subscribes it to state changes
func New(reg *jeedom.Registry) *Platform {
	p := &Platform{Registry: reg, prefix: "jeedom"}
	reg.Subscribe(p)
	return p
}

// StateTopic is where the retained on/off state of a switch is published
func StateTopic(prefix, name string) string {
	return fmt.Sprintf("%s/%s/state", prefix, name)
}

// SetTopic is where on/off commands for a switch are accepted
func SetTopic(prefix, name string) string {
	return fmt.Sprintf("%s/%s/set", prefix, name)
}

// Startup connects to the broker
func (p *Platform) Startup(c *config.Config) platform.Control {
	if c.MQTT.Broker == "" {
		log.Info.Print("no MQTT broker set, MQTT disabled")
		return p
	}
	p.mu.Lock()
	p.prefix = c.MQTT.TopicPrefix
	p.mu.Unlock()

	opts := pahomqtt.NewClientOptions().
		AddBroker(c.MQTT.Broker).
		SetClientID(c.MQTT.ClientID).
		SetUsername(c.MQTT.Username).
		SetPassword(c.MQTT.Password).
		SetAutoReconnect(true).
		SetConnectTimeout(connectTimeout)
	// subscriptions do not survive a reconnect on a clean session
	opts.SetOnConnectHandler(func(cl pahomqtt.Client) {
		p.subscribe(cl)
	})
	opts.SetConnectionLostHandler(func(_ pahomqtt.Client, err error) {
		log.Info.Printf("MQTT connection lost: %s", err.Error())
	})

	client := pahomqtt.NewClient(opts)
	token := client.Connect()
	if !token.WaitTimeout(connectTimeout) {
		log.Info.Printf("MQTT connect to %s timed out", c.MQTT.Broker)
		return p
	}
	if err := token.Error(); err != nil {
		log.Info.Printf("MQTT connect to %s: %s", c.MQTT.Broker, err.Error())
		return p
	}

	p.mu.Lock()
	p.client = client
	p.mu.Unlock()
	p.Running = true
	log.Info.Printf("connected to MQTT broker %s", c.MQTT.Broker)
	return p
}

// Shutdown disconnects from the broker
func (p *Platform) Shutdown() platform.Control {
	p.mu.Lock()
	client := p.client
	p.client = nil
	p.mu.Unlock()

	if client != nil {
		client.Disconnect(250)
	}
	p.Running = false
	return p
}

// Background publishes the current state of every switch once
func (p *Platform) Background() {
	for _, rec := range p.Registry.Records() {
		p.publish(rec.Name, rec.State())
	}
}

// AddAccessory - nothing to do, set commands come in on a wildcard
func (p *Platform) AddAccessory(c accessory.Config) error {
	return nil
}

// RemoveAccessory clears the retained state of the switch
func (p *Platform) RemoveAccessory(name string) {
	client, prefix := p.conn()
	if client == nil {
		return
	}
	client.Publish(StateTopic(prefix, name), qos, true, []byte{})
}

// StateChanged publishes the new state
func (p *Platform) StateChanged(name string, on bool) {
	p.publish(name, on)
}

func (p *Platform) conn() (pahomqtt.Client, string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.client, p.prefix
}

func (p *Platform) publish(name string, on bool) {
	client, prefix := p.conn()
	if client == nil {
		return
	}
	payload := "off"
	if on {
		payload = "on"
	}
	token := client.Publish(StateTopic(prefix, name), qos, true, payload)
	if !token.WaitTimeout(publishTimeout) {
		log.Info.Printf("MQTT publish for [%s] timed out", name)
		return
	}
	if err := token.Error(); err != nil {
		log.Info.Printf("MQTT publish for [%s]: %s", name, err.Error())
	}
}

func (p *Platform) subscribe(cl pahomqtt.Client) {
	_, prefix := p.conn()
	token := cl.Subscribe(SetTopic(prefix, "+"), qos, p.handleSet)
	if token.WaitTimeout(publishTimeout) && token.Error() != nil {
		log.Info.Printf("MQTT subscribe: %s", token.Error().Error())
	}
}

func (p *Platform) handleSet(_ pahomqtt.Client, m pahomqtt.Message) {
	_, prefix := p.conn()
	name, ok := switchFromSetTopic(prefix, m.Topic())
	if !ok {
		return
	}
	on, err := parseCommand(m.Payload())
	if err != nil {
		log.Info.Printf("MQTT set for [%s]: %s", name, err.Error())
		return
	}

	log.Info.Printf("setting [%s] to [%t] from MQTT handler", name, on)
	if err := p.Registry.SetPowerState(context.Background(), name, on); err != nil {
		log.Info.Println(err.Error())
		if rec, ok := p.Registry.Get(name); ok {
			p.publish(name, rec.State())
		}
		return
	}
	// publishes back to us through StateChanged
	p.Registry.Announce(name)
}

func switchFromSetTopic(prefix, topic string) (string, bool) {
	name := strings.TrimPrefix(topic, prefix+"/")
	if name == topic || !strings.HasSuffix(name, "/set") {
		return "", false
	}
	name = strings.TrimSuffix(name, "/set")
	if name == "" || strings.Contains(name, "/") {
		return "", false
	}
	return name, true
}

func parseCommand(payload []byte) (bool, error) {
	switch strings.ToLower(strings.TrimSpace(string(payload))) {
	case "on", "true", "1":
		return true, nil
	case "off", "false", "0":
		return false, nil
	}
	return false, fmt.Errorf("unknown command %q", payload)
}
