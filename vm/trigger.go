package vm

import "fmt"

// InterruptPriority orders triggers. A trigger may only interrupt code
// running at a strictly lower priority.
type InterruptPriority int

const (
	// PriorityNoChange marks call frames that do not alter the priority
	// when they return.
	PriorityNoChange InterruptPriority = -1
	// PriorityNormal is mainline code.
	PriorityNormal InterruptPriority = 0
	// PriorityCallbackOnce is for one-shot host callbacks.
	PriorityCallbackOnce InterruptPriority = 10
	// PriorityRecurring is for WHEN/ON triggers.
	PriorityRecurring InterruptPriority = 20
	// PriorityRecurringControl is for control locks (steering, throttle),
	// which may interrupt Recurring trigger bodies.
	PriorityRecurringControl InterruptPriority = 30
)

func (p InterruptPriority) String() string {
	switch p {
	case PriorityNoChange:
		return "NoChange"
	case PriorityNormal:
		return "Normal"
	case PriorityCallbackOnce:
		return "CallbackOnce"
	case PriorityRecurring:
		return "Recurring"
	case PriorityRecurringControl:
		return "RecurringControl"
	}
	return fmt.Sprintf("InterruptPriority(%d)", int(p))
}

// ---------------------------------------------------------------------------
// TriggerInfo
// ---------------------------------------------------------------------------

// TriggerInfo identifies one interrupt routine. Non-callback triggers are
// equal when they share an entry point, so re-declaring a WHEN never queues
// it twice. Callbacks are unique per TriggerInfo value.
type TriggerInfo struct {
	EntryPoint int
	ContextID  int
	Priority   InterruptPriority

	// IsCallback marks a host callback: it runs once and stores its return
	// value instead of re-arming.
	IsCallback bool

	// Immediate triggers enter the active set directly and do not count as
	// trigger frames for the fairness rule.
	Immediate bool

	// Closure is re-pushed below the trigger's call frame.
	Closure []*VariableScope

	// Args are pushed after the argument marker (callbacks only).
	Args []any

	returnValue any
	finished    bool
}

// Equals implements trigger identity.
func (t *TriggerInfo) Equals(other *TriggerInfo) bool {
	if t == other {
		return true
	}
	if t == nil || other == nil || t.IsCallback || other.IsCallback {
		return false
	}
	return t.EntryPoint == other.EntryPoint
}

// IsFinished reports whether a callback has returned.
func (t *TriggerInfo) IsFinished() bool {
	return t.finished
}

// ReturnValue is the value a finished callback returned.
func (t *TriggerInfo) ReturnValue() any {
	return t.returnValue
}

func (t *TriggerInfo) complete(v any) {
	t.returnValue = v
	t.finished = true
}

func (t *TriggerInfo) String() string {
	kind := "trigger"
	if t.IsCallback {
		kind = "callback"
	}
	return fmt.Sprintf("%s@%d(%s)", kind, t.EntryPoint, t.Priority)
}

// ---------------------------------------------------------------------------
// SubroutineContext
// ---------------------------------------------------------------------------

// SubroutineContext is a call record on the scope stack.
type SubroutineContext struct {
	ReturnIP int

	// Trigger is set when the frame was synthesised by the trigger
	// scheduler rather than a call opcode.
	Trigger *TriggerInfo

	// CameFromPriority is restored when a trigger frame returns.
	CameFromPriority InterruptPriority

	// ClosureDepth scopes were pushed directly below this record and are
	// popped with it.
	ClosureDepth int
}

// IsTrigger reports whether this is a trigger call frame.
func (s *SubroutineContext) IsTrigger() bool {
	return s.Trigger != nil
}
