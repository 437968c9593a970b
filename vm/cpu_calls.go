package vm

// ---------------------------------------------------------------------------
// Calling convention
//
// The caller pushes ArgMarker and then the arguments, and calls
// CallSubroutine (or CallDelegate). The callee pops its parameters and the
// marker, runs, and leaves through ReturnFromSubroutine, which unwinds the
// scope stack down to the call record and pushes the return value. Trigger
// frames are built the same way by the scheduler; their return value decides
// whether they re-arm and is never pushed.
// ---------------------------------------------------------------------------

// CallSubroutine enters the function at entry. The call returns to the
// opcode after the current one.
func (c *CPU) CallSubroutine(entry int) error {
	return c.enter(entry, nil)
}

func (c *CPU) enter(entry int, closure []*VariableScope) error {
	ctx := c.CurrentContext()
	if entry < 0 || entry >= len(ctx.Program) {
		return &BadJumpError{IP: entry, Size: len(ctx.Program)}
	}
	pushed := 0
	for _, scope := range closure {
		if err := c.stack.PushScope(scope); err != nil {
			c.dropScopes(pushed)
			return err
		}
		pushed++
	}
	frame := &SubroutineContext{
		ReturnIP:         ctx.InstructionPointer + 1,
		CameFromPriority: PriorityNoChange,
		ClosureDepth:     len(closure),
	}
	if err := c.stack.PushScope(frame); err != nil {
		c.dropScopes(pushed)
		return err
	}
	ctx.InstructionPointer = entry
	return nil
}

func (c *CPU) dropScopes(n int) {
	for i := 0; i < n; i++ {
		c.stack.PopScope()
	}
}

// ReturnFromSubroutine leaves the innermost call.
func (c *CPU) ReturnFromSubroutine(value any) error {
	ctx := c.CurrentContext()
	var frame *SubroutineContext
	for frame == nil {
		rec, err := c.stack.PopScope()
		if err != nil {
			return Errorf("return without a matching call")
		}
		frame, _ = rec.(*SubroutineContext)
	}
	c.dropScopes(frame.ClosureDepth)
	ctx.InstructionPointer = frame.ReturnIP

	t := frame.Trigger
	if t == nil {
		return c.stack.PushArgument(value)
	}
	if frame.CameFromPriority != PriorityNoChange {
		ctx.CurrentPriority = frame.CameFromPriority
	}
	switch {
	case t.IsCallback:
		t.complete(value)
	case Truthy(value):
		ctx.AddPendingTrigger(t)
	}
	return nil
}

// Truthy is the boolean reading of a script value.
func Truthy(v any) bool {
	switch x := v.(type) {
	case nil:
		return false
	case bool:
		return x
	case int:
		return x != 0
	case int64:
		return x != 0
	case float64:
		return x != 0
	case string:
		return x != ""
	}
	return true
}

// ---------------------------------------------------------------------------
// Trigger API
// ---------------------------------------------------------------------------

// AddTrigger registers the routine at entry as a trigger of the current
// context. A trigger equal to an already registered one is not added twice;
// the registered one is returned. Non-immediate triggers wait in the pending
// set until mainline code has run.
func (c *CPU) AddTrigger(entry int, priority InterruptPriority, immediate bool, closure []*VariableScope) (*TriggerInfo, error) {
	if priority <= PriorityNormal {
		return nil, Errorf("trigger priority %s must be above %s", priority, PriorityNormal)
	}
	ctx := c.CurrentContext()
	t := &TriggerInfo{
		EntryPoint: entry,
		ContextID:  ctx.ID,
		Priority:   priority,
		Immediate:  immediate,
		Closure:    closure,
	}
	return c.schedule(ctx, t), nil
}

// AddCallback schedules one run of d with args on behalf of the host. The
// returned TriggerInfo reports completion and the return value.
func (c *CPU) AddCallback(d *UserDelegate, priority InterruptPriority, immediate bool, args ...any) (*TriggerInfo, error) {
	if err := c.AssertValidDelegateCall(d); err != nil {
		return nil, err
	}
	if priority <= PriorityNormal {
		return nil, Errorf("callback priority %s must be above %s", priority, PriorityNormal)
	}
	t := &TriggerInfo{
		EntryPoint: d.EntryPoint,
		ContextID:  d.Context.ID,
		Priority:   priority,
		IsCallback: true,
		Immediate:  immediate,
		Closure:    d.Closure,
		Args:       args,
	}
	return c.schedule(d.Context, t), nil
}

func (c *CPU) schedule(ctx *ProgramContext, t *TriggerInfo) *TriggerInfo {
	if t.Immediate {
		return ctx.AddActiveTrigger(t)
	}
	return ctx.AddPendingTrigger(t)
}

// RemoveTrigger cancels t if it is pending or active. Removing a trigger
// whose body is already running has no effect.
func (c *CPU) RemoveTrigger(t *TriggerInfo) {
	if t == nil {
		return
	}
	for _, ctx := range c.contexts {
		if ctx.ID == t.ContextID {
			ctx.RemoveTrigger(t)
			return
		}
	}
}
