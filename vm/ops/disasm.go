package ops

import (
	"fmt"
	"strings"

	"github.com/chazu/kosvm/vm"
)

// Disassemble returns a human-readable listing of program.
func Disassemble(program vm.Program) string {
	return DisassembleWithName(program, "")
}

// DisassembleWithName returns a human-readable listing with a name header.
func DisassembleWithName(program vm.Program, name string) string {
	var sb strings.Builder

	if name != "" {
		sb.WriteString(fmt.Sprintf("; === %s ===\n", name))
	}
	sb.WriteString(fmt.Sprintf("; %d opcodes\n", len(program)))

	for ip, op := range program {
		if label := op.Label(); label != "" {
			sb.WriteString(fmt.Sprintf("%s:\n", label))
		}
		line := disassembleOpcode(op)
		if loc := op.Source(); !loc.IsZero() {
			sb.WriteString(fmt.Sprintf("%04d  %-30s ; %s\n", ip, line, loc))
		} else {
			sb.WriteString(fmt.Sprintf("%04d  %s\n", ip, line))
		}
	}
	return sb.String()
}

func disassembleOpcode(op vm.Opcode) string {
	name, args, err := Describe(op)
	if err != nil {
		return fmt.Sprintf("<%T>", op)
	}
	if len(args) == 0 {
		return strings.ToUpper(name)
	}
	parts := make([]string, len(args))
	for i, a := range args {
		parts[i] = formatOperand(a)
	}
	return strings.ToUpper(name) + " " + strings.Join(parts, " ")
}

func formatOperand(v any) string {
	switch x := v.(type) {
	case string:
		display := x
		if len(display) > 20 {
			display = display[:17] + "..."
		}
		return fmt.Sprintf("%q", display)
	case nil:
		return "nil"
	case float64:
		return Format(x)
	}
	return fmt.Sprint(v)
}
