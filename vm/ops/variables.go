package ops

import (
	"github.com/chazu/kosvm/vm"
)

// Get pushes the value of a variable. With Bareword set an undefined name
// pushes the name itself instead of failing.
type Get struct {
	vm.OpcodeBase
	Ident    string
	Bareword bool
}

func (*Get) Name() string       { return "get" }
func (op *Get) Operands() []any { return []any{op.Ident, op.Bareword} }

func (op *Get) Execute(cpu *vm.CPU) error {
	v, err := cpu.GetValue(op.Ident, op.Bareword)
	if err != nil {
		return err
	}
	return cpu.PushArgument(v)
}

// Store pops a value into the nearest visible variable of that name,
// creating a global when there is none.
type Store struct {
	vm.OpcodeBase
	Ident string
}

func (*Store) Name() string       { return "store" }
func (op *Store) Operands() []any { return []any{op.Ident} }

func (op *Store) Execute(cpu *vm.CPU) error {
	v, err := cpu.PopArgument()
	if err != nil {
		return err
	}
	return cpu.SetValue(op.Ident, v)
}

// StoreLocal pops a value into a variable of the innermost scope.
type StoreLocal struct {
	vm.OpcodeBase
	Ident string
}

func (*StoreLocal) Name() string       { return "storelocal" }
func (op *StoreLocal) Operands() []any { return []any{op.Ident} }

func (op *StoreLocal) Execute(cpu *vm.CPU) error {
	v, err := cpu.PopArgument()
	if err != nil {
		return err
	}
	return cpu.SetNewLocal(op.Ident, v)
}

// StoreGlobal pops a value into a global variable.
type StoreGlobal struct {
	vm.OpcodeBase
	Ident string
}

func (*StoreGlobal) Name() string       { return "storeglobal" }
func (op *StoreGlobal) Operands() []any { return []any{op.Ident} }

func (op *StoreGlobal) Execute(cpu *vm.CPU) error {
	v, err := cpu.PopArgument()
	if err != nil {
		return err
	}
	return cpu.SetGlobal(op.Ident, v)
}

// Unset removes the nearest visible variable of that name. Bound variables
// are only removed with Force.
type Unset struct {
	vm.OpcodeBase
	Ident string
	Force bool
}

func (*Unset) Name() string       { return "unset" }
func (op *Unset) Operands() []any { return []any{op.Ident, op.Force} }

func (op *Unset) Execute(cpu *vm.CPU) error {
	return cpu.RemoveVariable(op.Ident, op.Force)
}

// PushScope enters a lexical block.
type PushScope struct {
	vm.OpcodeBase
	ID       int
	ParentID int
}

func (*PushScope) Name() string       { return "pushscope" }
func (op *PushScope) Operands() []any { return []any{op.ID, op.ParentID} }

func (op *PushScope) Execute(cpu *vm.CPU) error {
	return cpu.PushNewScope(op.ID, op.ParentID)
}

// PopScope leaves Count lexical blocks.
type PopScope struct {
	vm.OpcodeBase
	Count int
}

func (*PopScope) Name() string       { return "popscope" }
func (op *PopScope) Operands() []any { return []any{op.Count} }

func (op *PopScope) Execute(cpu *vm.CPU) error {
	return cpu.PopScopes(op.Count)
}
