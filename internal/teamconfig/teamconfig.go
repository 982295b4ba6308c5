package teamconfig

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/tailscale/hujson"
)

const (
	// FileName is the team configuration file name.
	FileName = "zowe.config.json"
	// UserFileName holds per-user overrides next to FileName.
	UserFileName = "zowe.config.user.json"
)

// Profile is one named profile of a configuration layer.
type Profile struct {
	Type       string             `json:"type,omitempty"`
	Properties map[string]any     `json:"properties,omitempty"`
	Secure     []string           `json:"secure,omitempty"`
	Profiles   map[string]Profile `json:"profiles,omitempty"`
}

// Layer is one parsed configuration file.
type Layer struct {
	Path     string             `json:"-"`
	Global   bool               `json:"-"`
	Profiles map[string]Profile `json:"profiles"`
	Defaults map[string]string  `json:"defaults"`
}

// Config is the merged view over all configuration layers. Later layers
// take precedence.
type Config struct {
	Layers []Layer
}

// Load reads the global layers from home and the project layers from the
// nearest directory at or above cwd that holds a configuration file.
func Load(cwd, home string) (*Config, error) {
	cfg := &Config{}
	if home != "" {
		if err := cfg.loadDir(home, true); err != nil {
			return nil, err
		}
	}
	if cwd != "" {
		if dir, ok := findProjectDir(cwd, home); ok {
			if err := cfg.loadDir(dir, false); err != nil {
				return nil, err
			}
		}
	}
	return cfg, nil
}

func (c *Config) loadDir(dir string, global bool) error {
	for _, name := range []string{FileName, UserFileName} {
		layer, ok, err := ReadLayer(filepath.Join(dir, name))
		if err != nil {
			return err
		}
		if ok {
			layer.Global = global
			c.Layers = append(c.Layers, layer)
		}
	}
	return nil
}

func findProjectDir(cwd, home string) (string, bool) {
	dir, err := filepath.Abs(cwd)
	if err != nil {
		return "", false
	}
	homeAbs, _ := filepath.Abs(home)
	for {
		if dir != homeAbs {
			for _, name := range []string{FileName, UserFileName} {
				if _, err := os.Stat(filepath.Join(dir, name)); err == nil {
					return dir, true
				}
			}
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return "", false
		}
		dir = parent
	}
}

// ReadLayer parses one configuration file. Comments and trailing commas are
// allowed. The bool is false when the file does not exist.
func ReadLayer(path string) (Layer, bool, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Layer{}, false, nil
		}
		return Layer{}, false, err
	}
	layer, err := ParseLayer(data)
	if err != nil {
		return Layer{}, false, fmt.Errorf("parse %s: %w", path, err)
	}
	layer.Path = path
	return layer, true, nil
}

// ParseLayer parses configuration file content.
func ParseLayer(data []byte) (Layer, error) {
	std, err := hujson.Standardize(data)
	if err != nil {
		return Layer{}, err
	}
	var layer Layer
	if err := json.Unmarshal(std, &layer); err != nil {
		return Layer{}, err
	}
	return layer, nil
}

// DefaultProfile returns the default profile name for typ.
func (c *Config) DefaultProfile(typ string) (string, bool) {
	for i := len(c.Layers) - 1; i >= 0; i-- {
		if name, ok := c.Layers[i].Defaults[typ]; ok && name != "" {
			return name, true
		}
	}
	return "", false
}

// Properties returns the merged properties of the named profile. Nested
// profiles are addressed with dots, e.g. "lpar1.zosmf"; a nested profile
// inherits the properties of its parents.
func (c *Config) Properties(name string) (map[string]any, bool) {
	out := map[string]any{}
	found := false
	for _, layer := range c.Layers {
		chain, ok := lookup(layer.Profiles, name)
		if !ok {
			continue
		}
		found = true
		for _, p := range chain {
			for k, v := range p.Properties {
				out[k] = v
			}
		}
	}
	return out, found
}

func lookup(profiles map[string]Profile, name string) ([]Profile, bool) {
	parts := strings.Split(name, ".")
	var chain []Profile
	current := profiles
	for _, part := range parts {
		p, ok := current[part]
		if !ok {
			return nil, false
		}
		chain = append(chain, p)
		current = p.Profiles
	}
	return chain, true
}
