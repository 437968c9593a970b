package vm

import "fmt"

// SourceLocation tags an opcode with the statement it was compiled from.
// Consecutive opcodes of one statement share a location.
type SourceLocation struct {
	Path   string
	Line   int
	Column int
}

// IsZero reports whether the location is unset.
func (l SourceLocation) IsZero() bool {
	return l == SourceLocation{}
}

func (l SourceLocation) String() string {
	path := l.Path
	if path == "" {
		path = "<interpreter>"
	}
	return fmt.Sprintf("%s:%d:%d", path, l.Line, l.Column)
}

// Opcode is one instruction of a compiled program.
//
// Execute runs the instruction against the CPU. After a successful Execute
// the CPU advances the instruction pointer by DeltaInstructionPointer, so
// opcodes that set the instruction pointer themselves report a delta of 0.
// An opcode that needs more than one tick calls CPU.YieldProgram from
// Execute; the advance is then deferred until the detector finishes.
type Opcode interface {
	Label() string
	Source() SourceLocation
	Execute(cpu *CPU) error
	DeltaInstructionPointer() int
}

// Program is a jump-resolved opcode list produced by the compiler. Jump
// targets are relative to the start of the program.
type Program []Opcode

// Relocatable is implemented by opcodes holding absolute jump targets.
// ProgramContext.AddProgram replaces them with copies shifted by the offset
// the program was appended at; the original opcode is never modified.
type Relocatable interface {
	Relocated(base int) Opcode
}

// OpcodeBase carries the label and source tag shared by all opcodes and
// supplies the default delta of 1. Concrete opcodes embed it.
type OpcodeBase struct {
	label  string
	source SourceLocation
}

func (b *OpcodeBase) Label() string                     { return b.label }
func (b *OpcodeBase) SetLabel(label string)             { b.label = label }
func (b *OpcodeBase) Source() SourceLocation            { return b.source }
func (b *OpcodeBase) SetSource(location SourceLocation) { b.source = location }
func (b *OpcodeBase) DeltaInstructionPointer() int      { return 1 }

// ---------------------------------------------------------------------------
// Sentinels
// ---------------------------------------------------------------------------

// EndOfInput terminates interpreter chunks. It holds the instruction pointer
// in place and ends the tick, so the interpreter idles until more input is
// appended with CPU.Interpret.
type EndOfInput struct {
	OpcodeBase
}

func (op *EndOfInput) Name() string                 { return "eof" }
func (op *EndOfInput) Operands() []any              { return nil }
func (op *EndOfInput) DeltaInstructionPointer() int { return 0 }

func (op *EndOfInput) Execute(cpu *CPU) error {
	cpu.StopTick()
	return nil
}

// EndOfProgram terminates a program: the current context is popped.
type EndOfProgram struct {
	OpcodeBase
}

func (op *EndOfProgram) Name() string                 { return "eop" }
func (op *EndOfProgram) Operands() []any              { return nil }
func (op *EndOfProgram) DeltaInstructionPointer() int { return 0 }

func (op *EndOfProgram) Execute(cpu *CPU) error {
	if cpu.CurrentContext().IsInterpreter {
		cpu.StopTick()
		return nil
	}
	cpu.BreakExecution(false)
	return nil
}
