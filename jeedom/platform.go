package jeedom

import (
	"context"
	"fmt"

	"github.com/cloudkucooland/jeedombridge/accessory"
	"github.com/cloudkucooland/jeedombridge/config"
	"github.com/cloudkucooland/jeedombridge/platform"
)

// Platform is the platform handle for the Jeedom switches
type Platform struct {
	Registry *Registry
	Running  bool
}

// Startup is called by the platform management to start the platform up
func (p *Platform) Startup(c *config.Config) platform.Control {
	p.Running = true
	return p
}

// Shutdown is called by the platform management to shut things down
func (p *Platform) Shutdown() platform.Control {
	p.Registry.Clear()
	p.Running = false
	return p
}

// Background does nothing: poll loops start as switches are added
func (p *Platform) Background() {}

// AddAccessory configures a switch, hands it to HC for the GUI, then reads its initial state
func (p *Platform) AddAccessory(c accessory.Config) error {
	rec := p.Registry.Apply(c)
	p.Registry.logger(rec).Infof("initializing switch %s", c.Name)

	if hc, ok := platform.GetPlatform("HomeControl"); ok {
		if err := hc.AddAccessory(c); err != nil {
			p.Registry.Remove(c.Name)
			return err
		}
	}

	// polled switches get their first state from the poll loop
	if !rec.Polling {
		go func() {
			_ = p.Registry.Refresh(context.Background(), c.Name)
		}()
	}
	return nil
}

// RemoveAccessory drops the switch from the registry and from HC
func (p *Platform) RemoveAccessory(name string) {
	p.Registry.Remove(name)
	if hc, ok := platform.GetPlatform("HomeControl"); ok {
		hc.RemoveAccessory(name)
	}
}

// Refresh reads the switch through GetPowerState and notifies when the cached state moved
func (reg *Registry) Refresh(ctx context.Context, name string) error {
	rec, ok := reg.Get(name)
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownSwitch, name)
	}
	before := rec.State()
	on, err := reg.GetPowerState(ctx, name)
	if err != nil {
		return err
	}
	if on != before && reg.current(rec) {
		reg.notify(name, on)
	}
	return nil
}
