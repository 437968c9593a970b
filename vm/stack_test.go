package vm

import (
	"errors"
	"testing"
)

func TestArgumentStackOverflowLeavesStackIntact(t *testing.T) {
	const capacity = 4
	s := NewStack(capacity, capacity)
	for i := 0; i < capacity; i++ {
		if err := s.PushArgument(i); err != nil {
			t.Fatalf("push %d: %v", i, err)
		}
	}

	err := s.PushArgument(capacity)
	var overflow *StackOverflowError
	if !errors.As(err, &overflow) {
		t.Fatalf("expected StackOverflowError, got %v", err)
	}
	if overflow.Stack != ArgumentStack || overflow.Capacity != capacity {
		t.Errorf("unexpected overflow details: %+v", overflow)
	}
	if s.ArgumentCount() != capacity {
		t.Errorf("ArgumentCount = %d, want %d", s.ArgumentCount(), capacity)
	}

	v, err := s.PopArgument()
	if err != nil {
		t.Fatalf("pop after overflow: %v", err)
	}
	if v != capacity-1 {
		t.Errorf("pop after overflow = %v, want %d", v, capacity-1)
	}
	if err := s.PushArgument("again"); err != nil {
		t.Errorf("push after pop: %v", err)
	}
}

func TestScopeStackOverflow(t *testing.T) {
	s := NewStack(1, 2)
	s.PushScope(NewVariableScope(1, 0))
	s.PushScope(NewVariableScope(2, 1))

	err := s.PushScope(NewVariableScope(3, 2))
	var overflow *StackOverflowError
	if !errors.As(err, &overflow) || overflow.Stack != ScopeStack {
		t.Fatalf("expected scope stack overflow, got %v", err)
	}
	top, _ := s.PeekScope(0)
	if top.(*VariableScope).ScopeID != 2 {
		t.Errorf("top scope changed after overflow: %v", top)
	}
}

func TestPeekCheckDistinguishesNilFromBottom(t *testing.T) {
	s := NewStack(4, 4)
	s.PushArgument(nil)

	v, ok := s.PeekCheckArgument(0)
	if !ok || v != nil {
		t.Errorf("PeekCheckArgument(0) = %v, %v; want nil, true", v, ok)
	}
	if _, ok := s.PeekCheckArgument(1); ok {
		t.Error("PeekCheckArgument past the bottom should report false")
	}
	if _, err := s.PeekArgument(1); err == nil {
		t.Error("PeekArgument past the bottom should fail")
	}
	if _, ok := s.PeekCheckScope(0); ok {
		t.Error("empty scope stack should report false")
	}
}

func TestPopEmptyStacks(t *testing.T) {
	s := NewStack(1, 1)
	if _, err := s.PopArgument(); err == nil {
		t.Error("expected error popping empty argument stack")
	}
	if _, err := s.PopScope(); err == nil {
		t.Error("expected error popping empty scope stack")
	}
}

func TestPushScopeRejectsValues(t *testing.T) {
	s := NewStack(1, 1)
	if err := s.PushScope(42); err == nil {
		t.Error("scope stack accepted a plain value")
	}
	if s.ScopeCount() != 0 {
		t.Errorf("ScopeCount = %d after rejected push", s.ScopeCount())
	}
}

func TestTriggerFrameCounters(t *testing.T) {
	s := NewStack(8, 8)
	normal := &SubroutineContext{ReturnIP: 1}
	trigger := &SubroutineContext{Trigger: &TriggerInfo{EntryPoint: 5, Priority: PriorityRecurring}}
	immediate := &SubroutineContext{Trigger: &TriggerInfo{EntryPoint: 9, Priority: PriorityCallbackOnce, IsCallback: true, Immediate: true}}

	s.PushScope(normal)
	if s.HasTriggerContexts() {
		t.Fatal("plain call counted as trigger frame")
	}
	s.PushScope(immediate)
	if !s.HasTriggerContexts() || s.HasNonImmediateTriggerContexts() {
		t.Fatalf("after immediate frame: trigger=%v nonImmediate=%v",
			s.HasTriggerContexts(), s.HasNonImmediateTriggerContexts())
	}
	s.PushScope(trigger)
	if s.TriggerFrames() != 2 || !s.HasNonImmediateTriggerContexts() {
		t.Fatalf("TriggerFrames = %d, nonImmediate = %v", s.TriggerFrames(), s.HasNonImmediateTriggerContexts())
	}

	s.PopScope()
	if s.HasNonImmediateTriggerContexts() {
		t.Error("non-immediate count not decremented on pop")
	}
	s.Clear()
	if s.HasTriggerContexts() || s.ScopeCount() != 0 {
		t.Error("Clear left trigger frames behind")
	}
}

func TestPopScopeReleasesVariables(t *testing.T) {
	s := NewStack(1, 4)
	w := newWidget()
	scope := NewVariableScope(1, 0)
	scope.Add(NewVariable("w", w))
	s.PushScope(scope)

	s.PopScope()
	if w.lostCount != 1 {
		t.Errorf("lostCount = %d after scope pop, want 1", w.lostCount)
	}
}

func TestCapturedScopeReleasedByLastHolder(t *testing.T) {
	s := NewStack(1, 4)
	w := newWidget()
	scope := NewVariableScope(1, 0)
	scope.Add(NewVariable("w", w))
	scope.Retain()
	scope.Retain()
	s.PushScope(scope)

	s.Clear()
	if w.lostCount != 0 {
		t.Error("captured scope was torn down when popped")
	}
	if v, ok := scope.Get("w"); !ok || v.Value() != w {
		t.Error("captured scope lost its variable")
	}

	scope.Unretain()
	if w.lostCount != 0 || scope.Captures() != 1 {
		t.Errorf("lostCount=%d captures=%d with one capture left", w.lostCount, scope.Captures())
	}
	scope.Unretain()
	if w.lostCount != 1 {
		t.Errorf("lostCount = %d after the last capture, want 1", w.lostCount)
	}
}

func TestCapturedScopeStillPushedIsKept(t *testing.T) {
	s := NewStack(1, 4)
	w := newWidget()
	scope := NewVariableScope(1, 0)
	scope.Add(NewVariable("w", w))
	s.PushScope(scope)
	scope.Retain()
	scope.Unretain()
	if w.lostCount != 0 {
		t.Fatal("scope on the stack was released")
	}
	s.PopScope()
	if w.lostCount != 1 {
		t.Errorf("lostCount = %d after pop, want 1", w.lostCount)
	}
}
