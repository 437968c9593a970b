// Package vm implements the kosvm execution core.
//
// This package contains:
//   - The Opcode and Program contracts consumed from an external compiler
//   - A dual bounded stack (argument values, scope records)
//   - Lexically scoped variables with closure capture
//   - The per-tick CPU loop with its interrupt (trigger) scheduler
//   - Yield detectors for multi-tick opcodes, including goroutine-backed work
//
// # Execution model
//
// A CPU is driven by its host once per update via Tick. Each tick first
// fires every eligible trigger of the current ProgramContext, then runs at
// most Config.InstructionsPerUpdate opcodes. Opcodes that cannot finish
// within one tick call CPU.YieldProgram with a YieldFinishedDetector; the
// instruction pointer stays on that opcode until the detector reports
// completion on a later tick.
//
// # Calling convention
//
// Callers push ArgMarker followed by the arguments, then transfer control
// with CallSubroutine or CallDelegate, which push a SubroutineContext onto
// the scope stack. The callee pops its parameters, consumes the marker and
// eventually calls ReturnFromSubroutine. Triggers are entered through the
// same convention, so a trigger body is indistinguishable from a function
// body.
//
// # Scoping
//
// Variable lookup walks the scope stack through lexical parent links
// (VariableScope.ParentScopeID) rather than runtime adjacency, then falls
// back to the single global scope. A SubroutineContext is never crossed by a
// plain scan; only a parent link can reach a scope below it.
//
// The CPU is not safe for concurrent use. Hosts that need to reach it from
// several goroutines should serialise access (see package host).
package vm
