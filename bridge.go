package jeedombridge

import (
	"fmt"

	"github.com/brutella/hc/log"
	"github.com/sirupsen/logrus"

	"github.com/cloudkucooland/jeedombridge/accessory"
	"github.com/cloudkucooland/jeedombridge/config"
	"github.com/cloudkucooland/jeedombridge/homecontrol"
	"github.com/cloudkucooland/jeedombridge/jeedom"
	"github.com/cloudkucooland/jeedombridge/mqtt"
	"github.com/cloudkucooland/jeedombridge/platform"
	"github.com/cloudkucooland/jeedombridge/tfhttp"
)

// BootstrapPlatforms sets up all the platforms around a single switch registry
func BootstrapPlatforms(c *config.Config, logger logrus.FieldLogger) *jeedom.Registry {
	client := jeedom.NewClient(c.Jeedom.URL, c.Jeedom.APIKey, c.Jeedom.Timeout())
	reg := jeedom.NewRegistry(client, logger)

	platform.RegisterPlatform("Jeedom", &jeedom.Platform{Registry: reg})
	platform.RegisterPlatform("HomeControl", homecontrol.New(reg))
	platform.RegisterPlatform("HTTP", &tfhttp.Platform{Registry: reg})
	platform.RegisterPlatform("MQTT", mqtt.New(reg))

	platform.StartupAllPlatforms(c)
	return reg
}

// AddAccessory validates a switch definition and hands it to the Jeedom platform,
// no need to expose each platform to the daemon
func AddAccessory(r accessory.Raw) error {
	c, err := accessory.Parse(r)
	if err != nil {
		log.Info.Print(err)
		return err
	}

	p, ok := platform.GetPlatform("Jeedom")
	if !ok {
		err := fmt.Errorf("jeedom platform not registered, cannot add [%s]", c.Name)
		log.Info.Print(err)
		return err
	}
	return p.AddAccessory(c)
}

// RemoveAccessory takes a switch away from every platform
func RemoveAccessory(name string) {
	if p, ok := platform.GetPlatform("Jeedom"); ok {
		p.RemoveAccessory(name)
	}
	if p, ok := platform.GetPlatform("MQTT"); ok {
		p.RemoveAccessory(name)
	}
}

// StartHC is just a wrapper, no need to expose homecontrol to the daemon
func StartHC(c *config.Config) error {
	p, ok := platform.GetPlatform("HomeControl")
	if !ok {
		return fmt.Errorf("HomeControl platform not registered")
	}
	hcp, ok := p.(*homecontrol.Platform)
	if !ok {
		return fmt.Errorf("unexpected HomeControl platform %T", p)
	}
	return hcp.StartHC(c)
}
