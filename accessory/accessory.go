package accessory

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	hcaccessory "github.com/brutella/hc/accessory"
)

const (
	defaultManufacturer = "Jeedom"
	defaultModel        = "jeedom-switch"
	defaultSerial       = "Default-SerialNumber"

	// FirmwareRevision is reported for every switch accessory
	FirmwareRevision = "0.1.0"
)

// Raw is a switch definition as it is written in server.json or an accessory file.
// Command identifiers may be numbers or strings, polling may be a bool or "true"/"false".
type Raw struct {
	Name         string      `json:"name" yaml:"name"`
	OnCmd        interface{} `json:"on_cmd,omitempty" yaml:"on_cmd,omitempty"`
	OffCmd       interface{} `json:"off_cmd,omitempty" yaml:"off_cmd,omitempty"`
	StateCmd     interface{} `json:"state_cmd,omitempty" yaml:"state_cmd,omitempty"`
	Polling      interface{} `json:"polling,omitempty" yaml:"polling,omitempty"`
	Interval     interface{} `json:"interval,omitempty" yaml:"interval,omitempty"`
	Timeout      interface{} `json:"timeout,omitempty" yaml:"timeout,omitempty"`
	Manufacturer interface{} `json:"manufacturer,omitempty" yaml:"manufacturer,omitempty"`
	Model        interface{} `json:"model,omitempty" yaml:"model,omitempty"`
	Serial       interface{} `json:"serial,omitempty" yaml:"serial,omitempty"`
}

// Config is a validated switch definition.
// An empty command means the command is not configured.
type Config struct {
	Name     string
	OnCmd    string
	OffCmd   string
	StateCmd string
	Polling  bool
	Interval int // seconds between state polls
	Timeout  int // seconds to wait for a command before assuming success

	Manufacturer string
	Model        string
	Serial       string
}

// ConfigError reports a switch definition that cannot be turned into a Config
type ConfigError struct {
	Name  string
	Field string
	Err   error
}

func (e *ConfigError) Error() string {
	if e.Name == "" {
		return fmt.Sprintf("switch config: %s: %v", e.Field, e.Err)
	}
	return fmt.Sprintf("switch config [%s]: %s: %v", e.Name, e.Field, e.Err)
}

func (e *ConfigError) Unwrap() error {
	return e.Err
}

// Parse validates a raw definition
func Parse(r Raw) (Config, error) {
	c := Config{Name: strings.TrimSpace(r.Name)}
	if c.Name == "" {
		return Config{}, &ConfigError{Field: "name", Err: fmt.Errorf("missing")}
	}

	var err error
	fields := []struct {
		field string
		in    interface{}
		out   *string
	}{
		{"on_cmd", r.OnCmd, &c.OnCmd},
		{"off_cmd", r.OffCmd, &c.OffCmd},
		{"state_cmd", r.StateCmd, &c.StateCmd},
		{"manufacturer", r.Manufacturer, &c.Manufacturer},
		{"model", r.Model, &c.Model},
		{"serial", r.Serial, &c.Serial},
	}
	for _, f := range fields {
		if *f.out, err = text(f.in); err != nil {
			return Config{}, &ConfigError{Name: c.Name, Field: f.field, Err: err}
		}
	}

	if c.Polling, err = flag(r.Polling); err != nil {
		return Config{}, &ConfigError{Name: c.Name, Field: "polling", Err: err}
	}
	if c.Interval, err = seconds(r.Interval); err != nil {
		return Config{}, &ConfigError{Name: c.Name, Field: "interval", Err: err}
	}
	if c.Timeout, err = seconds(r.Timeout); err != nil {
		return Config{}, &ConfigError{Name: c.Name, Field: "timeout", Err: err}
	}
	return c, nil
}

// Info builds the HomeKit accessory information for the switch
func (c Config) Info() hcaccessory.Info {
	info := hcaccessory.Info{
		Name:             c.Name,
		Manufacturer:     c.Manufacturer,
		Model:            c.Model,
		SerialNumber:     c.Serial,
		FirmwareRevision: FirmwareRevision,
	}
	if info.Manufacturer == "" {
		info.Manufacturer = defaultManufacturer
	}
	if info.Model == "" {
		info.Model = defaultModel
	}
	if info.SerialNumber == "" {
		info.SerialNumber = defaultSerial
	}
	return info
}

// ToRaw is the inverse of Parse, used when writing the running switch list back out
func (c Config) ToRaw() Raw {
	r := Raw{
		Name:     c.Name,
		Polling:  c.Polling,
		Interval: c.Interval,
		Timeout:  c.Timeout,
	}
	set := func(dst *interface{}, v string) {
		if v != "" {
			*dst = v
		}
	}
	set(&r.OnCmd, c.OnCmd)
	set(&r.OffCmd, c.OffCmd)
	set(&r.StateCmd, c.StateCmd)
	set(&r.Manufacturer, c.Manufacturer)
	set(&r.Model, c.Model)
	set(&r.Serial, c.Serial)
	return r
}

func text(v interface{}) (string, error) {
	switch t := v.(type) {
	case nil:
		return "", nil
	case string:
		return strings.TrimSpace(t), nil
	case json.Number:
		return t.String(), nil
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64), nil
	case int:
		return strconv.Itoa(t), nil
	case int64:
		return strconv.FormatInt(t, 10), nil
	case uint64:
		return strconv.FormatUint(t, 10), nil
	default:
		return "", fmt.Errorf("unsupported value %v (%T)", v, v)
	}
}

func flag(v interface{}) (bool, error) {
	switch t := v.(type) {
	case nil:
		return false, nil
	case bool:
		return t, nil
	case string:
		s := strings.TrimSpace(t)
		switch {
		case s == "":
			return false, nil
		case strings.EqualFold(s, "true"):
			return true, nil
		case strings.EqualFold(s, "false"):
			return false, nil
		}
	}
	return false, fmt.Errorf("expected true or false, got %v", v)
}

// seconds accepts a positive whole number, defaulting to 1 when unset
// maxSeconds is the longest interval or timeout that still fits a time.Duration
const maxSeconds = math.MaxInt64 / int64(time.Second)

func seconds(v interface{}) (int, error) {
	var n int
	switch t := v.(type) {
	case nil:
		return 1, nil
	case int:
		n = t
	case int64:
		n = int(t)
	case uint64:
		if t > uint64(maxSeconds) {
			return 0, fmt.Errorf("must be at most %d, got %d", maxSeconds, t)
		}
		n = int(t)
	case float64:
		if t != math.Trunc(t) {
			return 0, fmt.Errorf("not a whole number: %v", t)
		}
		if t > float64(maxSeconds) {
			return 0, fmt.Errorf("must be at most %d, got %v", maxSeconds, t)
		}
		n = int(t)
	case json.Number:
		i, err := t.Int64()
		if err != nil {
			return 0, err
		}
		n = int(i)
	case string:
		s := strings.TrimSpace(t)
		if s == "" {
			return 1, nil
		}
		i, err := strconv.Atoi(s)
		if err != nil {
			return 0, err
		}
		n = i
	default:
		return 0, fmt.Errorf("unsupported value %v (%T)", v, v)
	}
	if n < 1 {
		return 0, fmt.Errorf("must be at least 1, got %d", n)
	}
	if int64(n) > maxSeconds {
		return 0, fmt.Errorf("must be at most %d, got %d", maxSeconds, n)
	}
	return n, nil
}
