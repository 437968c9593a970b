// Package host connects a kosvm CPU to the outside world: a console host
// that prints to a writer, buffers terminal input, tracks fly-by-wire
// bindings and loads program images, and a worker that owns the CPU and
// ticks it in real time.
package host

import (
	"fmt"
	"io"
	"path/filepath"
	"sort"
	"sync"

	"github.com/tliron/commonlog"

	"github.com/chazu/kosvm/vm"
	"github.com/chazu/kosvm/vm/image"
	"github.com/chazu/kosvm/vm/ops"
)

var log = commonlog.GetLogger("kosvm.host")

// binding is a host variable re-installed on every boot.
type binding struct {
	name string
	get  func() any
	set  func(any) error
}

// Console is a vm.Host for terminals. Print and input methods are safe for
// concurrent use; the rest is called from the CPU goroutine.
type Console struct {
	vm.NopHost

	// Dir resolves relative program paths passed to Compile.
	Dir string
	// Registry rebuilds opcodes from images. Defaults to ops.Builtins.
	Registry ops.Registry

	outMu sync.Mutex
	out   io.Writer

	inMu  sync.Mutex
	input []string

	bindings  []binding
	flyByWire map[string]bool
}

// NewConsole creates a console printing to out.
func NewConsole(out io.Writer) *Console {
	return &Console{
		Registry:  ops.Builtins,
		out:       out,
		flyByWire: make(map[string]bool),
	}
}

// Print writes one line of program output.
func (c *Console) Print(text string) {
	c.outMu.Lock()
	defer c.outMu.Unlock()
	fmt.Fprintln(c.out, text)
}

// ---------------------------------------------------------------------------
// Terminal input
// ---------------------------------------------------------------------------

// Feed queues a line of terminal input.
func (c *Console) Feed(line string) {
	c.inMu.Lock()
	defer c.inMu.Unlock()
	c.input = append(c.input, line)
}

// ReadInput takes the oldest queued line.
func (c *Console) ReadInput() (string, bool) {
	c.inMu.Lock()
	defer c.inMu.Unlock()
	if len(c.input) == 0 {
		return "", false
	}
	line := c.input[0]
	c.input = c.input[1:]
	return line, true
}

// InputBuffered returns the number of queued lines.
func (c *Console) InputBuffered() int {
	c.inMu.Lock()
	defer c.inMu.Unlock()
	return len(c.input)
}

// ---------------------------------------------------------------------------
// Bindings
// ---------------------------------------------------------------------------

// Bind registers a host variable. set may be nil for a read-only binding.
// Bindings are installed as global bound variables on every boot.
func (c *Console) Bind(name string, get func() any, set func(any) error) {
	c.bindings = append(c.bindings, binding{name: name, get: get, set: set})
}

// LoadBindings installs the built-in and registered bindings.
func (c *Console) LoadBindings(cpu *vm.CPU) {
	cpu.AddBoundVariable("time", func() any { return cpu.SessionTime() }, nil)
	cpu.AddBoundVariable("terminalinput", func() any {
		line, _ := c.ReadInput()
		return line
	}, nil)
	for _, b := range c.bindings {
		cpu.AddBoundVariable(b.name, b.get, b.set)
	}
	log.Debugf("installed %d bindings", len(c.bindings)+2)
}

// ToggleFlyByWire records a control binding being taken or released.
func (c *Console) ToggleFlyByWire(binding string, enabled bool) {
	if enabled {
		c.flyByWire[binding] = true
	} else {
		delete(c.flyByWire, binding)
	}
	log.Infof("fly-by-wire %s: %t", binding, enabled)
}

// FlyByWire returns the bindings currently under program control.
func (c *Console) FlyByWire() []string {
	names := make([]string, 0, len(c.flyByWire))
	for name := range c.flyByWire {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ---------------------------------------------------------------------------
// Programs
// ---------------------------------------------------------------------------

// Compile loads the program image at path. It runs on a worker goroutine.
func (c *Console) Compile(path string) (vm.Program, error) {
	if !filepath.IsAbs(path) && c.Dir != "" {
		path = filepath.Join(c.Dir, path)
	}
	reg := c.Registry
	if reg == nil {
		reg = ops.Builtins
	}
	return image.Load(path, reg)
}
