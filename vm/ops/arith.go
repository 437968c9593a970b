package ops

import (
	"github.com/chazu/kosvm/vm"
)

// Binary is an arithmetic or comparison opcode popping two operands and
// pushing one result. The right operand is on top.
type Binary struct {
	vm.OpcodeBase
	Kind BinaryKind
}

// BinaryKind selects the operation performed by Binary.
type BinaryKind uint8

const (
	OpAdd BinaryKind = iota // numeric sum, or concatenation if either side is a string
	OpSub
	OpMul
	OpDiv
	OpEq // equality, numbers compared by value
	OpLt
	OpGt
)

var binaryNames = [...]string{
	OpAdd: "add",
	OpSub: "sub",
	OpMul: "mul",
	OpDiv: "div",
	OpEq:  "eq",
	OpLt:  "lt",
	OpGt:  "gt",
}

func (k BinaryKind) String() string {
	if int(k) < len(binaryNames) {
		return binaryNames[k]
	}
	return "binary?"
}

func (op *Binary) Name() string { return op.Kind.String() }
func (*Binary) Operands() []any { return nil }

func (op *Binary) Execute(cpu *vm.CPU) error {
	left, right, err := pop2(cpu)
	if err != nil {
		return err
	}
	result, err := Apply(op.Kind, left, right)
	if err != nil {
		return err
	}
	return cpu.PushArgument(result)
}

// Apply evaluates a binary operation on two script values.
func Apply(kind BinaryKind, left, right any) (any, error) {
	if kind == OpEq {
		return equal(left, right), nil
	}
	if kind == OpAdd {
		_, ls := left.(string)
		_, rs := right.(string)
		if ls || rs {
			return Format(left) + Format(right), nil
		}
	}

	l, lok := toNumber(left)
	r, rok := toNumber(right)
	if !lok || !rok {
		return nil, vm.Errorf("cannot %s %s and %s", kind, Format(left), Format(right))
	}
	switch kind {
	case OpAdd:
		return l + r, nil
	case OpSub:
		return l - r, nil
	case OpMul:
		return l * r, nil
	case OpDiv:
		if r == 0 {
			return nil, vm.Errorf("division by zero")
		}
		return l / r, nil
	case OpLt:
		return l < r, nil
	case OpGt:
		return l > r, nil
	}
	return nil, vm.Errorf("unknown binary operation %d", kind)
}

func equal(left, right any) bool {
	l, lok := toNumber(left)
	r, rok := toNumber(right)
	if lok && rok {
		return l == r
	}
	if ls, ok := left.(string); ok {
		if rs, ok := right.(string); ok {
			return foldEqual(ls, rs)
		}
		return false
	}
	return left == right
}

// Not pushes the logical negation of the top value.
type Not struct{ vm.OpcodeBase }

func (*Not) Name() string    { return "not" }
func (*Not) Operands() []any { return nil }

func (op *Not) Execute(cpu *vm.CPU) error {
	v, err := cpu.PopArgument()
	if err != nil {
		return err
	}
	return cpu.PushArgument(!vm.Truthy(v))
}

// Neg pushes the arithmetic negation of the top value.
type Neg struct{ vm.OpcodeBase }

func (*Neg) Name() string    { return "neg" }
func (*Neg) Operands() []any { return nil }

func (op *Neg) Execute(cpu *vm.CPU) error {
	f, err := popNumber(cpu)
	if err != nil {
		return err
	}
	return cpu.PushArgument(-f)
}

// Print pops a value and writes it to the terminal.
type Print struct{ vm.OpcodeBase }

func (*Print) Name() string    { return "print" }
func (*Print) Operands() []any { return nil }

func (op *Print) Execute(cpu *vm.CPU) error {
	v, err := cpu.PopArgument()
	if err != nil {
		return err
	}
	cpu.Print(Format(v))
	return nil
}
