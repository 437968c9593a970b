package ops

import (
	"github.com/chazu/kosvm/vm"
)

// Jump moves the instruction pointer to Target.
type Jump struct {
	vm.OpcodeBase
	Target int
}

func (*Jump) Name() string                 { return "jump" }
func (op *Jump) Operands() []any           { return []any{op.Target} }
func (*Jump) DeltaInstructionPointer() int { return 0 }

func (op *Jump) Relocated(base int) vm.Opcode {
	c := *op
	c.Target += base
	return &c
}

func (op *Jump) Execute(cpu *vm.CPU) error {
	cpu.SetInstructionPointer(op.Target)
	return nil
}

// Branch pops a condition and jumps to Target when its truth equals When;
// otherwise execution falls through.
type Branch struct {
	vm.OpcodeBase
	Target int
	When   bool
}

func (op *Branch) Name() string {
	if op.When {
		return "br.true"
	}
	return "br.false"
}

func (op *Branch) Operands() []any           { return []any{op.Target} }
func (*Branch) DeltaInstructionPointer() int { return 0 }

func (op *Branch) Relocated(base int) vm.Opcode {
	c := *op
	c.Target += base
	return &c
}

func (op *Branch) Execute(cpu *vm.CPU) error {
	v, err := cpu.PopArgument()
	if err != nil {
		return err
	}
	if vm.Truthy(v) == op.When {
		cpu.SetInstructionPointer(op.Target)
	} else {
		cpu.SetInstructionPointer(cpu.InstructionPointer() + 1)
	}
	return nil
}

// Call enters a subroutine. A non-negative Entry is a direct call; a
// negative Entry pops the callee, pushed after the arguments, which may be
// a delegate or an entry point.
type Call struct {
	vm.OpcodeBase
	Entry int
}

func (*Call) Name() string                 { return "call" }
func (op *Call) Operands() []any           { return []any{op.Entry} }
func (*Call) DeltaInstructionPointer() int { return 0 }

func (op *Call) Relocated(base int) vm.Opcode {
	if op.Entry < 0 {
		return op
	}
	c := *op
	c.Entry += base
	return &c
}

func (op *Call) Execute(cpu *vm.CPU) error {
	if op.Entry >= 0 {
		return cpu.CallSubroutine(op.Entry)
	}
	callee, err := cpu.PopArgument()
	if err != nil {
		return err
	}
	switch target := callee.(type) {
	case *vm.UserDelegate:
		return cpu.CallDelegate(target)
	default:
		if entry, ok := toInt(target); ok {
			return cpu.CallSubroutine(entry)
		}
		return &vm.NotInvokableError{Value: callee}
	}
}

// Return pops the return value and leaves the innermost subroutine.
type Return struct{ vm.OpcodeBase }

func (*Return) Name() string                 { return "return" }
func (*Return) Operands() []any              { return nil }
func (*Return) DeltaInstructionPointer() int { return 0 }

func (op *Return) Execute(cpu *vm.CPU) error {
	v, err := cpu.PopArgument()
	if err != nil {
		return err
	}
	return cpu.ReturnFromSubroutine(v)
}

// Delegate pushes a callable reference to the function at Entry. With
// Closure set the scopes visible here are captured.
type Delegate struct {
	vm.OpcodeBase
	Entry   int
	Closure bool
}

func (*Delegate) Name() string       { return "delegate" }
func (op *Delegate) Operands() []any { return []any{op.Entry, op.Closure} }

func (op *Delegate) Relocated(base int) vm.Opcode {
	c := *op
	c.Entry += base
	return &c
}

func (op *Delegate) Execute(cpu *vm.CPU) error {
	return cpu.PushArgument(cpu.MakeUserDelegate(op.Entry, op.Closure))
}
