package platform

import (
	"sort"
	"sync"

	"github.com/brutella/hc/log"

	"github.com/cloudkucooland/jeedombridge/accessory"
	"github.com/cloudkucooland/jeedombridge/config"
)

// Control is the interface which all platforms must satisfy
type Control interface {
	Startup(*config.Config) Control
	Background()
	Shutdown() Control
	AddAccessory(accessory.Config) error
	RemoveAccessory(name string)
}

var (
	mu        sync.Mutex
	platforms = make(map[string]Control)
)

// RegisterPlatform is called whenever a new platform is instantiated
func RegisterPlatform(name string, control Control) {
	mu.Lock()
	defer mu.Unlock()
	if _, ok := platforms[name]; !ok {
		platforms[name] = control
	}
}

// GetPlatform looks up a registered platform by name
func GetPlatform(name string) (Control, bool) {
	mu.Lock()
	defer mu.Unlock()
	pc, ok := platforms[name]
	return pc, ok
}

// UnregisterAll forgets every platform, without shutting anything down
func UnregisterAll() {
	mu.Lock()
	platforms = make(map[string]Control)
	mu.Unlock()
}

// names in a stable order so startup and shutdown logs read the same every run
func names() []string {
	mu.Lock()
	defer mu.Unlock()
	out := make([]string, 0, len(platforms))
	for name := range platforms {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// ShutdownAllPlatforms is called at process stop to shutdown all platforms
func ShutdownAllPlatforms() {
	for _, name := range names() {
		log.Debug.Printf("Shutting down: %s", name)
		p, _ := GetPlatform(name)
		set(name, p.Shutdown())
	}
}

// StartupAllPlatforms is called at process start to initialize all platforms
func StartupAllPlatforms(c *config.Config) {
	for _, name := range names() {
		log.Debug.Printf("Starting up: %s", name)
		p, _ := GetPlatform(name)
		set(name, p.Startup(c))
	}
}

// Background starts the background processes for every process
func Background() {
	for _, name := range names() {
		log.Debug.Printf("Starting background processes: %s", name)
		p, _ := GetPlatform(name)
		p.Background()
	}
}

func set(name string, c Control) {
	mu.Lock()
	platforms[name] = c
	mu.Unlock()
}
