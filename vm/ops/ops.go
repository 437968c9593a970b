// Package ops is the built-in opcode set executed by the kosvm CPU.
//
// Each opcode is a small struct embedding vm.OpcodeBase. The set is listed
// explicitly in Builtins, which the image codec uses to rebuild programs; no
// opcode is discovered at runtime.
//
// Jump targets and entry points are absolute program indexes relative to the
// start of the compiled unit. Opcodes holding them implement vm.Relocatable;
// a shifted copy is appended when a unit joins a running context.
package ops

import (
	"fmt"
	"math"
	"strconv"

	"github.com/chazu/kosvm/vm"
)

// Op is implemented by every opcode in this package.
type Op interface {
	vm.Opcode
	// Name is the registry key.
	Name() string
	// Operands are the factory arguments that rebuild the opcode.
	Operands() []any
}

// ============================================================================
// Stack helpers
// ============================================================================

func pop2(cpu *vm.CPU) (left, right any, err error) {
	right, err = cpu.PopArgument()
	if err != nil {
		return nil, nil, err
	}
	left, err = cpu.PopArgument()
	if err != nil {
		return nil, nil, err
	}
	return left, right, nil
}

func popNumber(cpu *vm.CPU) (float64, error) {
	v, err := cpu.PopArgument()
	if err != nil {
		return 0, err
	}
	f, ok := toNumber(v)
	if !ok {
		return 0, vm.Errorf("expected a number, got %s", Format(v))
	}
	return f, nil
}

// ============================================================================
// Values
// ============================================================================

func toNumber(v any) (float64, bool) {
	switch x := v.(type) {
	case float64:
		return x, true
	case int:
		return float64(x), true
	case int64:
		return float64(x), true
	case uint64:
		return float64(x), true
	}
	return 0, false
}

// toInt converts an integral value to int.
func toInt(v any) (int, bool) {
	switch x := v.(type) {
	case int:
		return x, true
	case int64:
		return int(x), true
	case uint64:
		return int(x), true
	case float64:
		if x == math.Trunc(x) {
			return int(x), true
		}
	}
	return 0, false
}

// normalize maps decoded integer types onto int so operands compare equal
// however they were produced.
func normalize(v any) any {
	switch x := v.(type) {
	case int64:
		return int(x)
	case uint64:
		return int(x)
	case float32:
		return float64(x)
	}
	return v
}

// foldEqual compares strings the way identifiers are compared.
func foldEqual(a, b string) bool {
	return a == b || vm.FoldCase(a) == vm.FoldCase(b)
}

// Format renders a script value for the terminal.
func Format(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case bool:
		if x {
			return "True"
		}
		return "False"
	case string:
		return x
	}
	return fmt.Sprint(v)
}

// ============================================================================
// Factory argument decoding
// ============================================================================

func argCount(name string, args []any, n int) error {
	if len(args) != n {
		return fmt.Errorf("%s: expected %d operands, got %d", name, n, len(args))
	}
	return nil
}

func intArg(name string, args []any, i int) (int, error) {
	n, ok := toInt(args[i])
	if !ok {
		return 0, fmt.Errorf("%s: operand %d must be an integer, got %T", name, i, args[i])
	}
	return n, nil
}

func stringArg(name string, args []any, i int) (string, error) {
	s, ok := args[i].(string)
	if !ok {
		return "", fmt.Errorf("%s: operand %d must be a string, got %T", name, i, args[i])
	}
	return s, nil
}

func boolArg(name string, args []any, i int) (bool, error) {
	b, ok := args[i].(bool)
	if !ok {
		return false, fmt.Errorf("%s: operand %d must be a bool, got %T", name, i, args[i])
	}
	return b, nil
}
