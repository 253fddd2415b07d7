// Package manifest handles lox.toml interpreter configuration.
package manifest

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
)

// Manifest represents a lox.toml configuration. Every section has working
// defaults; command-line flags override whatever the file sets.
type Manifest struct {
	GC    GCConfig    `toml:"gc"`
	Debug DebugConfig `toml:"debug"`
	Cache CacheConfig `toml:"cache"`

	// Dir is the directory containing the lox.toml file (set at load time).
	Dir string `toml:"-"`
}

// GCConfig tunes the collector.
type GCConfig struct {
	// GrowFactor scales the next collection threshold from the live heap
	// after each cycle.
	GrowFactor int `toml:"grow-factor"`

	// InitialThreshold is the heap size in bytes that triggers the first
	// collection.
	InitialThreshold int `toml:"initial-threshold"`

	// Stress collects on every allocation. Slow; for debugging the
	// engine, not programs.
	Stress bool `toml:"stress"`

	// Log emits a log line per collection cycle.
	Log bool `toml:"log"`
}

// DebugConfig controls engine diagnostics.
type DebugConfig struct {
	// Trace dumps the stack and each instruction as it executes.
	Trace bool `toml:"trace"`

	// Disasm dumps each chunk as it finishes compiling.
	Disasm bool `toml:"disasm"`
}

// CacheConfig configures the compiled-chunk cache.
type CacheConfig struct {
	Enabled bool   `toml:"enabled"`
	Path    string `toml:"path"`
}

// Default returns a manifest with every knob at its default.
func Default() *Manifest {
	return &Manifest{
		GC: GCConfig{
			GrowFactor:       2,
			InitialThreshold: 1024 * 1024,
		},
	}
}

// Load parses a lox.toml file from the given directory.
func Load(dir string) (*Manifest, error) {
	path := filepath.Join(dir, "lox.toml")
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read %s: %w", path, err)
	}

	m := Default()
	if err := toml.Unmarshal(data, m); err != nil {
		return nil, fmt.Errorf("parse error in %s: %w", path, err)
	}

	m.Dir, err = filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("cannot resolve path %s: %w", dir, err)
	}

	if m.GC.GrowFactor < 2 {
		m.GC.GrowFactor = 2
	}
	if m.GC.InitialThreshold <= 0 {
		m.GC.InitialThreshold = 1024 * 1024
	}

	return m, nil
}

// FindAndLoad walks up from startDir to find a lox.toml file, then loads
// and returns the manifest. Returns the defaults if no manifest is found.
func FindAndLoad(startDir string) (*Manifest, error) {
	dir, err := filepath.Abs(startDir)
	if err != nil {
		return nil, err
	}

	for {
		path := filepath.Join(dir, "lox.toml")
		if _, err := os.Stat(path); err == nil {
			return Load(dir)
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			// Reached root
			return Default(), nil
		}
		dir = parent
	}
}

// CachePath returns the configured cache location, defaulting to
// .lox/cache.db next to the manifest (or the working directory when no
// manifest file was found).
func (m *Manifest) CachePath() string {
	if m.Cache.Path != "" {
		if filepath.IsAbs(m.Cache.Path) || m.Dir == "" {
			return m.Cache.Path
		}
		return filepath.Join(m.Dir, m.Cache.Path)
	}
	return filepath.Join(m.Dir, ".lox", "cache.db")
}
