package ops

import (
	"github.com/chazu/kosvm/vm"
)

// Nop does nothing.
type Nop struct{ vm.OpcodeBase }

func (*Nop) Name() string          { return "nop" }
func (*Nop) Operands() []any       { return nil }
func (*Nop) Execute(*vm.CPU) error { return nil }

// Push pushes a constant.
type Push struct {
	vm.OpcodeBase
	Value any
}

func (*Push) Name() string       { return "push" }
func (op *Push) Operands() []any { return []any{op.Value} }

func (op *Push) Execute(cpu *vm.CPU) error {
	return cpu.PushArgument(op.Value)
}

// Pop discards the top value.
type Pop struct{ vm.OpcodeBase }

func (*Pop) Name() string    { return "pop" }
func (*Pop) Operands() []any { return nil }

func (op *Pop) Execute(cpu *vm.CPU) error {
	_, err := cpu.PopArgument()
	return err
}

// Dup duplicates the top value.
type Dup struct{ vm.OpcodeBase }

func (*Dup) Name() string    { return "dup" }
func (*Dup) Operands() []any { return nil }

func (op *Dup) Execute(cpu *vm.CPU) error {
	v, err := cpu.PeekArgument(0)
	if err != nil {
		return err
	}
	return cpu.PushArgument(v)
}

// Swap exchanges the top two values.
type Swap struct{ vm.OpcodeBase }

func (*Swap) Name() string    { return "swap" }
func (*Swap) Operands() []any { return nil }

func (op *Swap) Execute(cpu *vm.CPU) error {
	left, right, err := pop2(cpu)
	if err != nil {
		return err
	}
	if err := cpu.PushArgument(right); err != nil {
		return err
	}
	return cpu.PushArgument(left)
}

// PushMarker pushes the argument marker that starts a call's arguments.
type PushMarker struct{ vm.OpcodeBase }

func (*PushMarker) Name() string    { return "pushmarker" }
func (*PushMarker) Operands() []any { return nil }

func (op *PushMarker) Execute(cpu *vm.CPU) error {
	return cpu.PushArgument(vm.ArgMarker)
}

// ArgBottom runs after a function has popped its parameters and checks that
// the caller passed exactly that many.
type ArgBottom struct{ vm.OpcodeBase }

func (*ArgBottom) Name() string    { return "argbottom" }
func (*ArgBottom) Operands() []any { return nil }

func (op *ArgBottom) Execute(cpu *vm.CPU) error {
	v, err := cpu.PopArgument()
	if err != nil {
		return vm.Errorf("too few arguments passed")
	}
	if !vm.IsArgMarker(v) {
		return vm.Errorf("too many arguments passed")
	}
	return nil
}
