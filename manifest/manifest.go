// Package manifest handles kosvm.toml engine configuration.
package manifest

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
	"github.com/caarlos0/env/v11"

	"github.com/chazu/kosvm/vm"
)

// FileName is the configuration file looked up by Load and FindAndLoad.
const FileName = "kosvm.toml"

// Manifest represents a kosvm.toml configuration.
type Manifest struct {
	CPU   CPU   `toml:"cpu"`
	Boot  Boot  `toml:"boot"`
	Stats Stats `toml:"stats"`

	// Dir is the directory containing the kosvm.toml file (set at load time).
	// Relative paths are resolved against it.
	Dir string `toml:"-"`
}

// CPU configures the execution engine.
type CPU struct {
	InstructionsPerUpdate int     `toml:"instructions-per-update" env:"KOSVM_IPU"`
	ShowStatistics        bool    `toml:"show-statistics" env:"KOSVM_SHOW_STATISTICS"`
	ArgumentStackSize     int     `toml:"argument-stack-size" env:"KOSVM_ARGUMENT_STACK_SIZE"`
	ScopeStackSize        int     `toml:"scope-stack-size" env:"KOSVM_SCOPE_STACK_SIZE"`
	TickRate              float64 `toml:"tick-rate" env:"KOSVM_TICK_RATE"` // ticks per second
}

// Boot configures what the CPU runs on boot.
type Boot struct {
	File   string `toml:"file" env:"KOSVM_BOOT_FILE"`
	Banner string `toml:"banner" env:"KOSVM_BANNER"`
}

// Stats configures the run history database. An empty path disables it.
type Stats struct {
	Database string `toml:"database" env:"KOSVM_STATS_DB"`
}

// Default returns the stock configuration.
func Default() *Manifest {
	d := vm.DefaultConfig()
	return &Manifest{
		CPU: CPU{
			InstructionsPerUpdate: d.InstructionsPerUpdate,
			ArgumentStackSize:     d.ArgumentStackSize,
			ScopeStackSize:        d.ScopeStackSize,
			TickRate:              50,
		},
		Boot: Boot{Banner: d.Banner},
	}
}

// Load parses a kosvm.toml file from the given directory. Keys missing from
// the file keep their defaults.
func Load(dir string) (*Manifest, error) {
	path := filepath.Join(dir, FileName)
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
	if err := m.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return m, nil
}

// FindAndLoad walks up from startDir to find a kosvm.toml file,
// then loads and returns the manifest. Returns nil if no manifest is found.
func FindAndLoad(startDir string) (*Manifest, error) {
	dir, err := filepath.Abs(startDir)
	if err != nil {
		return nil, err
	}

	for {
		path := filepath.Join(dir, FileName)
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

// ApplyEnv overrides fields from KOSVM_* environment variables. Variables
// that are not set leave the field alone.
func (m *Manifest) ApplyEnv() error {
	if err := env.Parse(m); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	return m.Validate()
}

// Validate rejects settings the engine cannot run with.
func (m *Manifest) Validate() error {
	switch {
	case m.CPU.InstructionsPerUpdate < 0:
		return fmt.Errorf("cpu.instructions-per-update must not be negative")
	case m.CPU.ArgumentStackSize < 0 || m.CPU.ScopeStackSize < 0:
		return fmt.Errorf("cpu stack sizes must not be negative")
	case m.CPU.TickRate <= 0:
		return fmt.Errorf("cpu.tick-rate must be positive")
	}
	return nil
}

// Resolve returns path relative to the manifest directory. Absolute and
// empty paths are returned unchanged.
func (m *Manifest) Resolve(path string) string {
	if path == "" || filepath.IsAbs(path) || m.Dir == "" {
		return path
	}
	return filepath.Join(m.Dir, path)
}

// CPUConfig returns the vm configuration described by the manifest.
func (m *Manifest) CPUConfig() vm.Config {
	return vm.Config{
		InstructionsPerUpdate: m.CPU.InstructionsPerUpdate,
		ShowStatistics:        m.CPU.ShowStatistics,
		ArgumentStackSize:     m.CPU.ArgumentStackSize,
		ScopeStackSize:        m.CPU.ScopeStackSize,
		BootFile:              m.Resolve(m.Boot.File),
		Banner:                m.Boot.Banner,
	}
}

// StatsPath returns the resolved run history database path, or "" when
// history is disabled.
func (m *Manifest) StatsPath() string {
	return m.Resolve(m.Stats.Database)
}
