package accessory

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// LoadFile reads a single switch definition from a .json or .yaml file.
// When the file does not name the switch, the file name (minus extension) is used.
func LoadFile(file string) (Raw, error) {
	raw, err := os.ReadFile(file)
	if err != nil {
		return Raw{}, err
	}

	var r Raw
	ext := strings.ToLower(filepath.Ext(file))
	switch ext {
	case ".json":
		err = json.Unmarshal(raw, &r)
	case ".yaml", ".yml":
		err = yaml.Unmarshal(raw, &r)
	default:
		return Raw{}, fmt.Errorf("unsupported accessory file type: %s", file)
	}
	if err != nil {
		return Raw{}, fmt.Errorf("%s: %w", file, err)
	}

	if r.Name == "" {
		base := filepath.Base(file)
		r.Name = base[:len(base)-len(ext)]
	}
	return r, nil
}

// LoadDir reads every accessory file in dir, skipping anything that is not .json/.yaml/.yml
func LoadDir(dir string) ([]Raw, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}

	var out []Raw
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		switch strings.ToLower(filepath.Ext(e.Name())) {
		case ".json", ".yaml", ".yml":
		default:
			continue
		}
		r, err := LoadFile(filepath.Join(dir, e.Name()))
		if err != nil {
			return out, err
		}
		out = append(out, r)
	}
	return out, nil
}
