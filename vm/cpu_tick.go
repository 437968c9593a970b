package vm

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// ---------------------------------------------------------------------------
// Tick: the per-update entry point
// ---------------------------------------------------------------------------

// Tick runs one host update: triggers first, then up to
// InstructionsPerUpdate opcodes. Errors raised by opcodes are reported and
// recovered from here; nothing escapes to the host.
func (c *CPU) Tick(deltaTime float64) {
	if len(c.contexts) == 0 {
		return
	}
	c.sessionTime += deltaTime
	c.tickCount++
	start := time.Now()

	c.safeHook("pre-update", c.host.PreUpdate)
	executed, err := c.runTick()
	if err != nil {
		c.handleTickError(err)
	}
	c.safeHook("post-update", c.host.PostUpdate)

	c.profiler.RecordTick(executed, time.Since(start))
}

func (c *CPU) safeHook(name string, hook func(*CPU)) {
	defer func() {
		if r := recover(); r != nil {
			log.Errorf("host %s hook panicked: %v", name, r)
		}
	}()
	hook(c)
}

func (c *CPU) runTick() (executed int, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = panicError(r)
		}
	}()
	c.executing = c.CurrentContext()
	if err := c.processTriggers(); err != nil {
		return 0, err
	}
	return c.continueExecution()
}

// ---------------------------------------------------------------------------
// Trigger scheduling
// ---------------------------------------------------------------------------

// processTriggers enters every active trigger that may interrupt the current
// priority. Each is entered exactly like a function call. They are pushed in
// reverse so that the first registered trigger runs first and returns into
// the entry point of the second, and so on; the last returns to the
// interrupted instruction.
func (c *CPU) processTriggers() error {
	ctx := c.CurrentContext()
	fire := ctx.takeFireable(ctx.CurrentPriority)
	if len(fire) == 0 {
		return nil
	}
	returnIP := ctx.InstructionPointer
	cameFrom := ctx.CurrentPriority
	for i := len(fire) - 1; i >= 0; i-- {
		t := fire[i]
		if err := c.stack.PushArgument(ArgMarker); err != nil {
			return err
		}
		for _, arg := range t.Args {
			if err := c.stack.PushArgument(arg); err != nil {
				return err
			}
		}
		for _, scope := range t.Closure {
			if err := c.stack.PushScope(scope); err != nil {
				return err
			}
		}
		frame := &SubroutineContext{
			ReturnIP:         returnIP,
			Trigger:          t,
			CameFromPriority: cameFrom,
			ClosureDepth:     len(t.Closure),
		}
		if err := c.stack.PushScope(frame); err != nil {
			return err
		}
		returnIP = t.EntryPoint
		cameFrom = t.Priority
		c.profiler.RecordTriggerFire()
	}
	ctx.InstructionPointer = returnIP
	ctx.CurrentPriority = cameFrom
	return nil
}

// fairnessPriority is the priority handed to
// ActivatePendingTriggersAbovePriority for code running at priority.
// Immediate callbacks are transparent: code running only inside them counts
// as mainline.
func (c *CPU) fairnessPriority(priority InterruptPriority) InterruptPriority {
	if !c.stack.HasNonImmediateTriggerContexts() {
		return PriorityNormal
	}
	return priority
}

// ---------------------------------------------------------------------------
// Fetch-decode-execute
// ---------------------------------------------------------------------------

func (c *CPU) continueExecution() (int, error) {
	executed := 0
	c.haltTick = false
	for executed < c.config.InstructionsPerUpdate && !c.haltTick {
		if c.status == StatusWaiting {
			break
		}
		ctx := c.CurrentContext()
		c.executing = ctx

		if y := ctx.topYield(); y != nil {
			depth := c.stack.TriggerFrames()
			if y.depth > depth {
				// The frame that yielded is gone.
				ctx.popYield()
				continue
			}
			if y.depth == depth {
				if y.tick == c.tickCount {
					break
				}
				done, err := y.detector.IsFinished(c)
				if err != nil {
					return executed, err
				}
				if !done {
					// Waiting code has had its turn.
					ctx.ActivatePendingTriggersAbovePriority(c.fairnessPriority(ctx.CurrentPriority))
					break
				}
				delta := y.delta
				ctx.popYield()
				ctx.InstructionPointer += delta
				continue
			}
		}

		op, err := c.fetch(ctx)
		if err != nil {
			return executed, err
		}
		// Fairness is judged by where the opcode ran, not where it left us:
		// a trigger's return does not re-arm anything until mainline has
		// run again.
		priority := c.fairnessPriority(ctx.CurrentPriority)
		c.yieldRequest = nil

		executed++
		ctx.instructions++
		start := time.Now()
		err = c.execute(op)
		c.profiler.RecordOpcode(op, time.Since(start))
		if err != nil {
			return executed, &ScriptError{Err: err, Label: op.Label(), Location: op.Source(), ContextID: ctx.ID}
		}

		if ctx.ended {
			// The opcode ended or rebooted its own context.
			continue
		}
		if y := c.yieldRequest; y != nil {
			c.yieldRequest = nil
			y.delta = op.DeltaInstructionPointer()
			ctx.pushYield(*y)
			break
		}
		ctx.InstructionPointer += op.DeltaInstructionPointer()
		ctx.ActivatePendingTriggersAbovePriority(priority)
	}
	return executed, nil
}

func (c *CPU) fetch(ctx *ProgramContext) (Opcode, error) {
	ip := ctx.InstructionPointer
	if ip < 0 || ip >= len(ctx.Program) {
		return nil, &BadJumpError{IP: ip, Size: len(ctx.Program)}
	}
	return ctx.Program[ip], nil
}

func (c *CPU) execute(op Opcode) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = panicError(r)
		}
	}()
	return op.Execute(c)
}

// ---------------------------------------------------------------------------
// Yielding
// ---------------------------------------------------------------------------

// YieldProgram suspends the executing opcode until detector reports it is
// finished. Begin is called immediately; IsFinished is polled from the next
// tick on.
func (c *CPU) YieldProgram(detector YieldFinishedDetector) error {
	if err := detector.Begin(c); err != nil {
		return err
	}
	c.yieldRequest = &pendingYield{
		detector: detector,
		depth:    c.stack.TriggerFrames(),
		tick:     c.tickCount,
	}
	return nil
}

// IsYielding reports whether the current context is waiting on a detector.
func (c *CPU) IsYielding() bool {
	ctx := c.CurrentContext()
	return ctx != nil && ctx.IsYielding()
}

// ---------------------------------------------------------------------------
// Error recovery
// ---------------------------------------------------------------------------

func (c *CPU) handleTickError(err error) {
	trace := c.GetCallTrace()
	log.Errorf("%s", err.Error())
	c.Print(err.Error())
	for _, entry := range trace {
		c.Print("  " + entry.String())
	}

	failedIn := c.executing
	c.yieldRequest = nil
	if len(c.contexts) == 1 && (failedIn == nil || failedIn == c.contexts[0]) {
		c.skipCurrentStatement()
		c.stack.Clear()
		return
	}
	for len(c.contexts) > 1 {
		c.popContext(true)
	}
	c.stack.Clear()
	c.abortInterpreter()
	var threadErr *ThreadError
	if !errors.As(err, &threadErr) {
		c.Print("Program aborted.")
	}
}

// skipCurrentStatement moves the interpreter past every remaining opcode of
// the statement that failed. If the failure happened inside a function the
// statement is the call site of the outermost call.
func (c *CPU) skipCurrentStatement() {
	ctx := c.InterpreterContext()
	ctx.yields = nil
	ctx.CurrentPriority = PriorityNormal

	ip := ctx.InstructionPointer
	for depth := c.stack.ScopeCount() - 1; depth >= 0; depth-- {
		v, _ := c.stack.PeekCheckScope(depth)
		if sub, ok := v.(*SubroutineContext); ok {
			ip = sub.ReturnIP
			if !sub.IsTrigger() {
				ip--
			}
			break
		}
	}
	last := len(ctx.Program) - 1
	if ip < 0 || ip > last {
		ctx.InstructionPointer = last
		return
	}
	tag := ctx.Program[ip].Source()
	for ip < last && ctx.Program[ip].Source() == tag {
		ip++
	}
	ctx.InstructionPointer = ip
}

// ---------------------------------------------------------------------------
// Introspection
// ---------------------------------------------------------------------------

// TraceEntry is one line of a call trace.
type TraceEntry struct {
	IP       int
	Label    string
	Location SourceLocation
	Trigger  bool
}

func (e TraceEntry) String() string {
	kind := "at"
	if e.Trigger {
		kind = "interrupted"
	}
	return fmt.Sprintf("%s %s (%s, ip %d)", kind, e.Location, e.Label, e.IP)
}

// GetCallTrace returns the current instruction followed by every call site
// on the scope stack, innermost first.
func (c *CPU) GetCallTrace() []TraceEntry {
	ctx := c.CurrentContext()
	if ctx == nil {
		return nil
	}
	entries := []TraceEntry{c.traceEntry(ctx, ctx.InstructionPointer, false)}
	for depth := 0; ; depth++ {
		v, ok := c.stack.PeekCheckScope(depth)
		if !ok {
			break
		}
		sub, ok := v.(*SubroutineContext)
		if !ok {
			continue
		}
		ip := sub.ReturnIP
		if !sub.IsTrigger() {
			ip--
		}
		entries = append(entries, c.traceEntry(ctx, ip, sub.IsTrigger()))
	}
	return entries
}

func (c *CPU) traceEntry(ctx *ProgramContext, ip int, trigger bool) TraceEntry {
	entry := TraceEntry{IP: ip, Trigger: trigger}
	if ip >= 0 && ip < len(ctx.Program) {
		entry.Label = ctx.Program[ip].Label()
		entry.Location = ctx.Program[ip].Source()
	}
	return entry
}

// StatisticsDump formats the collected statistics.
func (c *CPU) StatisticsDump() string {
	var b strings.Builder
	b.WriteString(c.profiler.Dump())
	if ctx := c.CurrentContext(); ctx != nil {
		fmt.Fprintf(&b, "\nContexts: %d, current %d at ip %d", len(c.contexts), ctx.ID, ctx.InstructionPointer)
	}
	return b.String()
}
