package vm

import (
	"errors"
	"fmt"
)

// ---------------------------------------------------------------------------
// Error taxonomy
// ---------------------------------------------------------------------------

// StackKind identifies one half of the dual stack.
type StackKind int

const (
	ArgumentStack StackKind = iota
	ScopeStack
)

func (k StackKind) String() string {
	switch k {
	case ArgumentStack:
		return "argument stack"
	case ScopeStack:
		return "scope stack"
	}
	return fmt.Sprintf("StackKind(%d)", int(k))
}

// StackOverflowError is raised when a push would exceed a stack's capacity.
// The stack is left untouched at capacity.
type StackOverflowError struct {
	Stack    StackKind
	Capacity int
}

func (e *StackOverflowError) Error() string {
	return fmt.Sprintf("stack overflow: %s capacity of %d exceeded", e.Stack, e.Capacity)
}

// UndefinedIdentifierError is raised when a variable lookup fails and the
// caller did not allow the identifier to stand for itself.
type UndefinedIdentifierError struct {
	Name string
}

func (e *UndefinedIdentifierError) Error() string {
	return fmt.Sprintf("undefined variable name '%s'", e.Name)
}

// NotInvokableError is raised when a value that cannot be called is used as
// a call target.
type NotInvokableError struct {
	Value any
}

func (e *NotInvokableError) Error() string {
	return fmt.Sprintf("value %v (%T) is not invokable", e.Value, e.Value)
}

// BadJumpError means the instruction pointer left the program. Programs are
// jump-resolved by the compiler, so this indicates a corrupt program.
type BadJumpError struct {
	IP   int
	Size int
}

func (e *BadJumpError) Error() string {
	return fmt.Sprintf("instruction pointer %d outside program of %d opcodes", e.IP, e.Size)
}

// InvalidDelegateContextError is raised when a UserDelegate is invoked after
// the program that created it is no longer current.
type InvalidDelegateContextError struct {
	EntryPoint     int
	OwnerContextID int
	CurrentID      int
}

func (e *InvalidDelegateContextError) Error() string {
	return fmt.Sprintf("delegate at %d belongs to program context %d, current context is %d",
		e.EntryPoint, e.OwnerContextID, e.CurrentID)
}

// RuntimeError is the generic error raised by opcodes.
type RuntimeError struct {
	Message string
}

func (e *RuntimeError) Error() string {
	return e.Message
}

// Errorf builds a RuntimeError.
func Errorf(format string, args ...any) error {
	return &RuntimeError{Message: fmt.Sprintf(format, args...)}
}

// ScriptError annotates an opcode failure with where it happened.
type ScriptError struct {
	Err       error
	Label     string
	Location  SourceLocation
	ContextID int
}

func (e *ScriptError) Error() string {
	if e.Location.IsZero() {
		return fmt.Sprintf("%v [%s]", e.Err, e.Label)
	}
	return fmt.Sprintf("%v [%s at %s]", e.Err, e.Label, e.Location)
}

func (e *ScriptError) Unwrap() error {
	return e.Err
}

// ThreadError carries a failure captured on a detector's worker goroutine.
type ThreadError struct {
	Err error
}

func (e *ThreadError) Error() string {
	return fmt.Sprintf("background work failed: %v", e.Err)
}

func (e *ThreadError) Unwrap() error {
	return e.Err
}

var errStackUnderflow = errors.New("stack underflow")

// panicError converts a recovered panic into an error.
func panicError(r any) error {
	if err, ok := r.(error); ok {
		return fmt.Errorf("panic: %w", err)
	}
	return Errorf("panic: %v", r)
}
