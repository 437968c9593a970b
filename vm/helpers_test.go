package vm

import (
	"errors"
	"strings"
	"sync"
	"testing"
)

// fnOp is a test opcode running an arbitrary function.
type fnOp struct {
	OpcodeBase
	delta int
	fn    func(cpu *CPU) error
}

func (o *fnOp) DeltaInstructionPointer() int { return o.delta }

func (o *fnOp) Execute(cpu *CPU) error {
	if o.fn == nil {
		return nil
	}
	return o.fn(cpu)
}

// step runs fn and advances by one.
func step(fn func(cpu *CPU) error) *fnOp {
	return &fnOp{delta: 1, fn: fn}
}

// jumpy runs fn, which sets the instruction pointer itself.
func jumpy(fn func(cpu *CPU) error) *fnOp {
	return &fnOp{delta: 0, fn: fn}
}

// line tags op with a source line.
func line(n int, op *fnOp) *fnOp {
	op.SetSource(SourceLocation{Path: "test.ks", Line: n, Column: 1})
	return op
}

func ret(value any) *fnOp {
	return jumpy(func(cpu *CPU) error { return cpu.ReturnFromSubroutine(value) })
}

func fail(msg string) *fnOp {
	return step(func(*CPU) error { return errors.New(msg) })
}

// testHost records everything the CPU tells it.
type testHost struct {
	NopHost

	mu       sync.Mutex
	lines    []string
	toggles  []string
	input    int
	programs map[string]Program
	bindings func(cpu *CPU)
}

func (h *testHost) Print(text string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.lines = append(h.lines, text)
}

func (h *testHost) ToggleFlyByWire(binding string, enabled bool) {
	state := "off"
	if enabled {
		state = "on"
	}
	h.toggles = append(h.toggles, binding+" "+state)
}

func (h *testHost) InputBuffered() int { return h.input }

func (h *testHost) LoadBindings(cpu *CPU) {
	if h.bindings != nil {
		h.bindings(cpu)
	}
}

func (h *testHost) Compile(path string) (Program, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	p, ok := h.programs[path]
	if !ok {
		return nil, errors.New("no such file: " + path)
	}
	return p, nil
}

func (h *testHost) output() string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return strings.Join(h.lines, "\n")
}

func (h *testHost) count(text string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	n := 0
	for _, l := range h.lines {
		if l == text {
			n++
		}
	}
	return n
}

func newTestCPU(t *testing.T, config Config) (*CPU, *testHost) {
	t.Helper()
	host := &testHost{}
	cpu := NewCPU(host, config)
	cpu.Boot()
	return cpu, host
}

// trace collects markers written by test opcodes.
type trace struct {
	events []string
}

func (tr *trace) mark(name string) *fnOp {
	return step(func(*CPU) error {
		tr.events = append(tr.events, name)
		return nil
	})
}

func (tr *trace) String() string {
	return strings.Join(tr.events, " ")
}

// widget is a scope-observing value.
type widget struct {
	ScopeLink
	lostCount int
}

func newWidget() *widget {
	w := &widget{}
	w.OnLost = func() { w.lostCount++ }
	return w
}
