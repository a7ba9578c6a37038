package homecontrol

import (
	"context"
	"fmt"
	"hash/fnv"
	"path/filepath"
	"sort"
	"sync"

	"github.com/brutella/hc"
	hcaccessory "github.com/brutella/hc/accessory"
	"github.com/brutella/hc/log"
	"github.com/brutella/hc/util"

	"github.com/cloudkucooland/jeedombridge/accessory"
	"github.com/cloudkucooland/jeedombridge/config"
	"github.com/cloudkucooland/jeedombridge/jeedom"
	"github.com/cloudkucooland/jeedombridge/platform"
)

// Platform is the platform handle for HomeControl
type Platform struct {
	Registry *jeedom.Registry
	Running  bool

	mu        sync.Mutex
	switches  map[string]*hcaccessory.Switch
	transport hc.Transport
}

// New returns the HC platform and subscribes it to state changes
func New(reg *jeedom.Registry) *Platform {
	p := &Platform{
		Registry: reg,
		switches: make(map[string]*hcaccessory.Switch),
	}
	reg.Subscribe(p)
	return p
}

// Startup is called by the platform bootstrap
func (p *Platform) Startup(c *config.Config) platform.Control {
	p.Running = true
	return p
}

// StartHC is called after all switches are registered to start operation
func (p *Platform) StartHC(c *config.Config) error {
	storage, err := util.NewFileStorage(filepath.Join(c.ConfigDir, "serials"))
	if err != nil {
		log.Info.Println("unable to get storage")
		return err
	}
	serial := c.ID
	if serial == "" {
		serial = util.GetSerialNumberForAccessoryName("JeedomRoot", storage)
	}

	root := hcaccessory.NewBridge(hcaccessory.Info{
		Name:             c.Name,
		ID:               1,
		SerialNumber:     serial,
		Manufacturer:     "Jeedom",
		Model:            "jeedombridge",
		FirmwareRevision: accessory.FirmwareRevision,
	})
	root.Accessory.OnIdentify(func() {
		log.Info.Printf("bridge root identify called: %+v", root.Accessory)
	})

	transport, err := hc.NewIPTransport(c.HCConfig, root.Accessory, p.accessories()...)
	if err != nil {
		return err
	}

	p.mu.Lock()
	p.transport = transport
	p.mu.Unlock()

	go transport.Start()
	uri, _ := transport.XHMURI()
	log.Info.Printf("add this bridge with: %s", uri)
	return nil
}

// Shutdown is called at process teardown
func (p *Platform) Shutdown() platform.Control {
	p.mu.Lock()
	t := p.transport
	p.transport = nil
	p.mu.Unlock()

	if t != nil {
		<-t.Stop()
	}
	p.Running = false
	return p
}

// Background runs the various background tasks: none for HC, the registry polls
func (p *Platform) Background() {}

// AddAccessory exposes a configured switch to HC. The switch must already be in the registry.
func (p *Platform) AddAccessory(c accessory.Config) error {
	rec, ok := p.Registry.Get(c.Name)
	if !ok {
		return fmt.Errorf("%w: %s", jeedom.ErrUnknownSwitch, c.Name)
	}

	// HC cannot swap an accessory it already publishes; keep the one it knows
	p.mu.Lock()
	if cur, ok := p.switches[c.Name]; ok && p.transport != nil {
		p.mu.Unlock()
		log.Info.Printf("[%s] reconfigured, HC keeps the published switch", c.Name)
		cur.Switch.On.SetValue(rec.State())
		return nil
	}
	p.mu.Unlock()

	info := c.Info()
	info.ID = accessoryID(c.Name)
	sw := hcaccessory.NewSwitch(info)
	sw.Switch.On.SetValue(rec.State())

	name := c.Name
	sw.Switch.On.OnValueRemoteUpdate(func(on bool) {
		p.set(name, on)
	})
	sw.Switch.On.OnValueRemoteGet(func() bool {
		return p.get(name)
	})
	sw.Accessory.OnIdentify(func() {
		log.Info.Printf("%s identify requested!", name)
	})

	p.mu.Lock()
	if p.transport != nil {
		log.Info.Printf("HC is already running, [%s] shows up after a restart", name)
	}
	p.switches[name] = sw
	p.mu.Unlock()
	return nil
}

// RemoveAccessory forgets the HC switch; HC drops it on the next restart
func (p *Platform) RemoveAccessory(name string) {
	p.mu.Lock()
	delete(p.switches, name)
	p.mu.Unlock()
	log.Info.Printf("%s is removed from HC", name)
}

// StateChanged updates the HC GUI when the registry's state moves on its own
func (p *Platform) StateChanged(name string, on bool) {
	sw, ok := p.lookup(name)
	if !ok {
		return
	}
	log.Debug.Printf("setting [%s] HC GUI to: %t", name, on)
	sw.Switch.On.SetValue(on)
}

func (p *Platform) set(name string, on bool) {
	log.Info.Printf("setting [%s] to [%t] from HC handler", name, on)
	err := p.Registry.SetPowerState(context.Background(), name, on)
	if err == nil {
		p.Registry.Announce(name)
		return
	}
	log.Info.Println(err.Error())

	// put the GUI back to what we believe
	if rec, ok := p.Registry.Get(name); ok {
		if sw, ok := p.lookup(name); ok {
			sw.Switch.On.SetValue(rec.State())
		}
	}
}

func (p *Platform) get(name string) bool {
	on, err := p.Registry.GetPowerState(context.Background(), name)
	if err != nil {
		log.Info.Println(err.Error())
		if rec, ok := p.Registry.Get(name); ok {
			return rec.State()
		}
	}
	return on
}

func (p *Platform) lookup(name string) (*hcaccessory.Switch, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	sw, ok := p.switches[name]
	return sw, ok
}

// accessories in name order, so HC sees the same layout every start
func (p *Platform) accessories() []*hcaccessory.Accessory {
	p.mu.Lock()
	defer p.mu.Unlock()

	names := make([]string, 0, len(p.switches))
	for name := range p.switches {
		names = append(names, name)
	}
	sort.Strings(names)

	out := make([]*hcaccessory.Accessory, 0, len(names))
	for _, name := range names {
		out = append(out, p.switches[name].Accessory)
	}
	return out
}

// accessoryID derives a stable HC accessory ID from the switch name; 1 is the bridge
func accessoryID(name string) uint64 {
	h := fnv.New64a()
	h.Write([]byte(name))
	id := h.Sum64()
	if id <= 1 {
		id += 2
	}
	return id
}
