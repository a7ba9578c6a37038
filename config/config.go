package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/brutella/hc"
	"gopkg.in/yaml.v3"

	"github.com/cloudkucooland/jeedombridge/accessory"
)

// Config is the primary daemon configuration...
type Config struct {
	ConfigDir   string    `yaml:"-"` // passed in from CLI
	ConfigFile  string    `yaml:"-"` // server.json or server.yaml
	HTTPAddress string    // net.Dial address format, :port is good enough -- empty disables the control channel
	Name        string    // what this bridge shows as
	ID          string    // displayed serial number -- if you run multiple instances, make sure each has a distinct ID
	HCConfig    hc.Config // base HomeControl configuration
	Jeedom      Jeedom
	MQTT        MQTT
	Switches    []accessory.Raw // inline switch definitions, in addition to <dir>/accessories
}

// Jeedom is where commands are sent
type Jeedom struct {
	URL            string // e.g. http://jeedom.local, the API path is appended
	APIKey         string
	RequestTimeout int // (seconds) hard limit on a single request -- unset uses 30
}

// MQTT is optional, leave Broker empty to disable
type MQTT struct {
	Broker      string // tcp://host:1883
	ClientID    string
	Username    string
	Password    string
	TopicPrefix string // defaults to "jeedom"
}

// Timeout is RequestTimeout as a duration, zero when unset
func (j Jeedom) Timeout() time.Duration {
	return time.Duration(j.RequestTimeout) * time.Second
}

var (
	mu            sync.RWMutex
	runningConfig *Config
)

// Get a pointer to the global config
func Get() *Config {
	mu.RLock()
	defer mu.RUnlock()
	return runningConfig
}

// should only be called by the bootstrap
func Set(c *Config) {
	mu.Lock()
	runningConfig = c
	mu.Unlock()
}

// Load reads the daemon configuration; .yaml/.yml files are YAML, anything else JSON
func Load(file string) (*Config, error) {
	full, err := filepath.Abs(file)
	if err != nil {
		return nil, err
	}
	raw, err := os.ReadFile(full)
	if err != nil {
		return nil, err
	}

	var c Config
	switch strings.ToLower(filepath.Ext(full)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(raw, &c)
	default:
		err = json.Unmarshal(raw, &c)
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w", full, err)
	}

	c.ConfigDir = filepath.Dir(full)
	c.ConfigFile = full
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", full, err)
	}
	return &c, nil
}

// Validate checks what the daemon cannot run without
func (c *Config) Validate() error {
	if c.Jeedom.URL == "" {
		return fmt.Errorf("Jeedom.URL is required")
	}
	if c.Jeedom.RequestTimeout < 0 {
		return fmt.Errorf("Jeedom.RequestTimeout must not be negative")
	}
	if c.Name == "" {
		c.Name = "Jeedom"
	}
	if c.MQTT.TopicPrefix == "" {
		c.MQTT.TopicPrefix = "jeedom"
	}
	if c.MQTT.ClientID == "" {
		c.MQTT.ClientID = "jeedombridge"
	}
	return nil
}

// AccessoryDir is where per-switch definition files live
func (c *Config) AccessoryDir() string {
	return filepath.Join(c.ConfigDir, "accessories")
}
