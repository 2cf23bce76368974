// Package config handles reactor.toml project configuration.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
)

// Config represents a reactor.toml project configuration.
type Config struct {
	Project Project `toml:"project"`
	Run     Run     `toml:"run"`
	Cache   Cache   `toml:"cache"`

	// Dir is the directory containing the reactor.toml file (set at load time).
	Dir string `toml:"-"`
}

// Project contains project metadata.
type Project struct {
	Name string `toml:"name"`
}

// Run configures module resolution and trace behavior.
type Run struct {
	ModuleRoot string `toml:"module-root"`
	Trace      bool   `toml:"trace"`
	Debug      bool   `toml:"debug"`
}

// Cache configures the compiled-program cache.
type Cache struct {
	Path    string `toml:"path"`
	Disable bool   `toml:"disable"`
}

// Load parses a reactor.toml file from the given directory.
func Load(dir string) (*Config, error) {
	path := filepath.Join(dir, "reactor.toml")
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read %s: %w", path, err)
	}

	var c Config
	if err := toml.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("parse error in %s: %w", path, err)
	}

	c.Dir, err = filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("cannot resolve path %s: %w", dir, err)
	}

	if c.Run.ModuleRoot == "" {
		c.Run.ModuleRoot = "."
	}
	if c.Cache.Path == "" {
		c.Cache.Path = ".reactor-cache"
	}

	return &c, nil
}

// FindAndLoad walks up from startDir to find a reactor.toml file, then loads
// and returns the config. Returns nil if no config file is found: an absent
// reactor.toml is not an error (module.NewFromConfig then roots at the
// current directory with no cache).
func FindAndLoad(startDir string) (*Config, error) {
	dir, err := filepath.Abs(startDir)
	if err != nil {
		return nil, err
	}

	for {
		path := filepath.Join(dir, "reactor.toml")
		if _, err := os.Stat(path); err == nil {
			return Load(dir)
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			return nil, nil
		}
		dir = parent
	}
}

// ModuleRootPath returns the absolute path of the configured module root.
func (c *Config) ModuleRootPath() string {
	return filepath.Join(c.Dir, c.Run.ModuleRoot)
}

// CachePath returns the absolute path of the configured cache file.
func (c *Config) CachePath() string {
	return filepath.Join(c.Dir, c.Cache.Path)
}
