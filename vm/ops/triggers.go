package ops

import (
	"github.com/chazu/kosvm/vm"
)

// AddTrigger registers the routine at Entry as a trigger of the running
// program and pushes its TriggerInfo, which RemoveTrigger accepts.
type AddTrigger struct {
	vm.OpcodeBase
	Entry     int
	Priority  vm.InterruptPriority
	Immediate bool
	Closure   bool
}

func (*AddTrigger) Name() string { return "addtrigger" }

func (op *AddTrigger) Operands() []any {
	return []any{op.Entry, int(op.Priority), op.Immediate, op.Closure}
}

func (op *AddTrigger) Relocated(base int) vm.Opcode {
	c := *op
	c.Entry += base
	return &c
}

func (op *AddTrigger) Execute(cpu *vm.CPU) error {
	var closure []*vm.VariableScope
	if op.Closure {
		closure = cpu.MakeUserDelegate(op.Entry, true).Closure
	}
	t, err := cpu.AddTrigger(op.Entry, op.Priority, op.Immediate, closure)
	if err != nil {
		return err
	}
	return cpu.PushArgument(t)
}

// RemoveTrigger pops a TriggerInfo and cancels it.
type RemoveTrigger struct{ vm.OpcodeBase }

func (*RemoveTrigger) Name() string    { return "removetrigger" }
func (*RemoveTrigger) Operands() []any { return nil }

func (op *RemoveTrigger) Execute(cpu *vm.CPU) error {
	v, err := cpu.PopArgument()
	if err != nil {
		return err
	}
	t, ok := v.(*vm.TriggerInfo)
	if !ok {
		return vm.Errorf("removetrigger expects a trigger, got %s", Format(v))
	}
	cpu.RemoveTrigger(t)
	return nil
}

// FlyByWire turns a control binding on or off for the running program.
type FlyByWire struct {
	vm.OpcodeBase
	Binding string
	Enabled bool
}

func (*FlyByWire) Name() string       { return "fbw" }
func (op *FlyByWire) Operands() []any { return []any{op.Binding, op.Enabled} }

func (op *FlyByWire) Execute(cpu *vm.CPU) error {
	cpu.ToggleFlyByWire(op.Binding, op.Enabled)
	return nil
}
