package vm

import (
	"errors"
	"time"
)

// Host is everything the core consumes from the surrounding game layer.
//
// All methods except Compile are called on the CPU's goroutine. Compile is
// called from detector worker goroutines and must not touch host state.
type Host interface {
	// Print writes a line to the terminal.
	Print(text string)

	// PreUpdate and PostUpdate bracket every tick (binding refresh).
	PreUpdate(cpu *CPU)
	PostUpdate(cpu *CPU)

	// LoadBindings (re)installs host-bound variables. Called on Boot.
	LoadBindings(cpu *CPU)

	// ToggleFlyByWire turns a control binding on or off.
	ToggleFlyByWire(binding string, enabled bool)

	// InputBuffered returns the number of unread terminal keystrokes.
	InputBuffered() int

	// Compile turns a source file into a program.
	Compile(path string) (Program, error)
}

// ErrNoCompiler is returned by hosts without a compiler.
var ErrNoCompiler = errors.New("no compiler available")

// NopHost is a Host that does nothing. Embed it to implement only the
// methods a host cares about.
type NopHost struct{}

func (NopHost) Print(string)                    {}
func (NopHost) PreUpdate(*CPU)                  {}
func (NopHost) PostUpdate(*CPU)                 {}
func (NopHost) LoadBindings(*CPU)               {}
func (NopHost) ToggleFlyByWire(string, bool)    {}
func (NopHost) InputBuffered() int              { return 0 }
func (NopHost) Compile(string) (Program, error) { return nil, ErrNoCompiler }

// ---------------------------------------------------------------------------
// Configuration
// ---------------------------------------------------------------------------

// Config holds the CPU's tunables.
type Config struct {
	// InstructionsPerUpdate is the per-tick execution budget.
	InstructionsPerUpdate int
	// ShowStatistics enables per-opcode profiling and prints statistics
	// when a program ends.
	ShowStatistics bool

	ArgumentStackSize int
	ScopeStackSize    int

	// BootFile is compiled and run by Boot when set.
	BootFile string
	Banner   string
}

// DefaultConfig returns the stock configuration.
func DefaultConfig() Config {
	return Config{
		InstructionsPerUpdate: 200,
		ArgumentStackSize:     3000,
		ScopeStackSize:        3000,
		Banner:                "kosvm ready.",
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.InstructionsPerUpdate <= 0 {
		c.InstructionsPerUpdate = d.InstructionsPerUpdate
	}
	if c.ArgumentStackSize <= 0 {
		c.ArgumentStackSize = d.ArgumentStackSize
	}
	if c.ScopeStackSize <= 0 {
		c.ScopeStackSize = d.ScopeStackSize
	}
	return c
}

// ---------------------------------------------------------------------------
// Run statistics
// ---------------------------------------------------------------------------

// RunStatistics summarises one finished program context.
type RunStatistics struct {
	RunID        string
	ContextID    int
	Started      time.Time
	Duration     time.Duration
	Instructions uint64
	Aborted      bool
}

// RunRecorder receives statistics for every program context that ends.
type RunRecorder interface {
	RecordRun(stats RunStatistics) error
}
