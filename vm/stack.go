package vm

// ---------------------------------------------------------------------------
// Argument marker
// ---------------------------------------------------------------------------

type argMarker struct{}

func (argMarker) String() string { return "<argstart>" }

// ArgMarker is pushed on the argument stack below a call's arguments so the
// callee can verify it consumed exactly what the caller supplied.
var ArgMarker any = argMarker{}

// IsArgMarker reports whether v is the argument marker.
func IsArgMarker(v any) bool {
	_, ok := v.(argMarker)
	return ok
}

// ---------------------------------------------------------------------------
// Stack: argument values + scope records
// ---------------------------------------------------------------------------

// Stack is the CPU's dual stack. The argument stack holds expression values
// and is used strictly push/pop. The scope stack holds *VariableScope and
// *SubroutineContext records and is walked in place for variable lookup.
//
// Both stacks have a fixed capacity; a push past it fails with
// StackOverflowError and leaves the stack unchanged.
type Stack struct {
	args     []any
	argCount int

	scopes     []any
	scopeCount int

	// Trigger call frames currently on the scope stack, and how many of
	// those were not immediate.
	triggerFrames             int
	nonImmediateTriggerFrames int
}

// NewStack creates a stack with the given capacities.
func NewStack(argumentCapacity, scopeCapacity int) *Stack {
	return &Stack{
		args:   make([]any, argumentCapacity),
		scopes: make([]any, scopeCapacity),
	}
}

// PushArgument pushes an expression value.
func (s *Stack) PushArgument(v any) error {
	if s.argCount >= len(s.args) {
		return &StackOverflowError{Stack: ArgumentStack, Capacity: len(s.args)}
	}
	s.args[s.argCount] = v
	s.argCount++
	return nil
}

// PopArgument pops the top expression value.
func (s *Stack) PopArgument() (any, error) {
	if s.argCount == 0 {
		return nil, Errorf("%v: argument stack is empty", errStackUnderflow)
	}
	s.argCount--
	v := s.args[s.argCount]
	s.args[s.argCount] = nil
	return v, nil
}

// PeekArgument returns the value depth entries below the top (0 = top).
func (s *Stack) PeekArgument(depth int) (any, error) {
	v, ok := s.PeekCheckArgument(depth)
	if !ok {
		return nil, Errorf("%v: argument stack has %d entries, peeked at depth %d",
			errStackUnderflow, s.argCount, depth)
	}
	return v, nil
}

// PeekCheckArgument is PeekArgument that distinguishes a stored nil
// (nil, true) from digging past the bottom (nil, false).
func (s *Stack) PeekCheckArgument(depth int) (any, bool) {
	idx := s.argCount - 1 - depth
	if depth < 0 || idx < 0 {
		return nil, false
	}
	return s.args[idx], true
}

// ArgumentCount returns the number of values on the argument stack.
func (s *Stack) ArgumentCount() int {
	return s.argCount
}

// ArgumentCapacity returns the argument stack's fixed capacity.
func (s *Stack) ArgumentCapacity() int {
	return len(s.args)
}

// PushScope pushes a *VariableScope or *SubroutineContext.
func (s *Stack) PushScope(v any) error {
	switch v.(type) {
	case *VariableScope, *SubroutineContext:
	default:
		return Errorf("cannot push %T onto the scope stack", v)
	}
	if s.scopeCount >= len(s.scopes) {
		return &StackOverflowError{Stack: ScopeStack, Capacity: len(s.scopes)}
	}
	s.scopes[s.scopeCount] = v
	s.scopeCount++
	switch rec := v.(type) {
	case *SubroutineContext:
		if rec.IsTrigger() {
			s.triggerFrames++
			if !rec.Trigger.Immediate {
				s.nonImmediateTriggerFrames++
			}
		}
	case *VariableScope:
		rec.pushes++
	}
	return nil
}

// PopScope pops the top scope record. A popped VariableScope that is not
// captured and not pushed elsewhere is released, which unlinks its
// variables.
func (s *Stack) PopScope() (any, error) {
	if s.scopeCount == 0 {
		return nil, Errorf("%v: scope stack is empty", errStackUnderflow)
	}
	s.scopeCount--
	v := s.scopes[s.scopeCount]
	s.scopes[s.scopeCount] = nil
	s.forget(v)
	return v, nil
}

// PeekScope returns the record depth entries below the top (0 = top).
func (s *Stack) PeekScope(depth int) (any, error) {
	v, ok := s.PeekCheckScope(depth)
	if !ok {
		return nil, Errorf("%v: scope stack has %d entries, peeked at depth %d",
			errStackUnderflow, s.scopeCount, depth)
	}
	return v, nil
}

// PeekCheckScope is PeekScope that reports digging past the bottom with
// ok == false instead of an error.
func (s *Stack) PeekCheckScope(depth int) (any, bool) {
	idx := s.scopeCount - 1 - depth
	if depth < 0 || idx < 0 {
		return nil, false
	}
	return s.scopes[idx], true
}

// ScopeCount returns the number of records on the scope stack.
func (s *Stack) ScopeCount() int {
	return s.scopeCount
}

// ScopeCapacity returns the scope stack's fixed capacity.
func (s *Stack) ScopeCapacity() int {
	return len(s.scopes)
}

// HasTriggerContexts reports in O(1) whether execution is inside a trigger.
func (s *Stack) HasTriggerContexts() bool {
	return s.triggerFrames > 0
}

// HasNonImmediateTriggerContexts reports whether any trigger frame on the
// stack was entered through the normal (non-immediate) path.
func (s *Stack) HasNonImmediateTriggerContexts() bool {
	return s.nonImmediateTriggerFrames > 0
}

// TriggerFrames returns the number of trigger call frames on the stack.
func (s *Stack) TriggerFrames() int {
	return s.triggerFrames
}

// TruncateArguments pops argument values until n remain.
func (s *Stack) TruncateArguments(n int) {
	for s.argCount > n && s.argCount > 0 {
		s.argCount--
		s.args[s.argCount] = nil
	}
}

// TruncateScopes pops scope records until n remain.
func (s *Stack) TruncateScopes(n int) {
	for s.scopeCount > n && s.scopeCount > 0 {
		s.PopScope()
	}
}

// Clear empties both stacks, dropping every reference they held.
func (s *Stack) Clear() {
	s.TruncateScopes(0)
	s.TruncateArguments(0)
	s.triggerFrames = 0
	s.nonImmediateTriggerFrames = 0
}

func (s *Stack) forget(v any) {
	switch rec := v.(type) {
	case *SubroutineContext:
		if rec.IsTrigger() {
			s.triggerFrames--
			if !rec.Trigger.Immediate {
				s.nonImmediateTriggerFrames--
			}
		}
	case *VariableScope:
		rec.pushes--
		rec.releaseIfUnused()
	}
}
