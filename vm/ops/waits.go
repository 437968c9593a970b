package ops

import (
	"github.com/chazu/kosvm/vm"
)

// Wait pops a duration in seconds and suspends the running code for that
// much session time. A duration of zero still waits for the next tick.
type Wait struct{ vm.OpcodeBase }

func (*Wait) Name() string    { return "wait" }
func (*Wait) Operands() []any { return nil }

func (op *Wait) Execute(cpu *vm.CPU) error {
	seconds, err := popNumber(cpu)
	if err != nil {
		return err
	}
	if seconds < 0 {
		seconds = 0
	}
	return cpu.YieldProgram(&vm.WaitDetector{Duration: seconds})
}

// WaitNext suspends until the next tick.
type WaitNext struct{ vm.OpcodeBase }

func (*WaitNext) Name() string    { return "waitnext" }
func (*WaitNext) Operands() []any { return nil }

func (op *WaitNext) Execute(cpu *vm.CPU) error {
	return cpu.YieldProgram(vm.NextTickDetector{})
}

// WaitInput suspends until the terminal has unread input.
type WaitInput struct{ vm.OpcodeBase }

func (*WaitInput) Name() string    { return "waitinput" }
func (*WaitInput) Operands() []any { return nil }

func (op *WaitInput) Execute(cpu *vm.CPU) error {
	return cpu.YieldProgram(vm.InputDetector{})
}

// Load pushes the entry point of a script file, compiling and appending it
// to the running program the first time. Compilation runs off the tick
// thread; the program waits for it.
type Load struct {
	vm.OpcodeBase
	Path string
}

func (*Load) Name() string       { return "load" }
func (op *Load) Operands() []any { return []any{op.Path} }

func (op *Load) Execute(cpu *vm.CPU) error {
	if entry, ok := cpu.CurrentContext().EntryPoint(op.Path); ok {
		return cpu.PushArgument(entry)
	}
	return cpu.YieldProgram(vm.NewCompileDetector(op.Path))
}
