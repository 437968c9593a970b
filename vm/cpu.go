package vm

import (
	"fmt"
	"time"

	"github.com/tliron/commonlog"
)

var log = commonlog.GetLogger("kosvm.vm")

// Status is the CPU's run state.
type Status int

const (
	StatusRunning Status = iota
	// StatusWaiting suspends execution until the host sets the status back
	// to running (for example while the terminal is in an editor).
	StatusWaiting
)

func (s Status) String() string {
	if s == StatusWaiting {
		return "Waiting"
	}
	return "Running"
}

// CPU executes programs one host tick at a time.
type CPU struct {
	host     Host
	config   Config
	recorder RunRecorder

	contexts []*ProgramContext
	stack    *Stack
	globals  *VariableScope
	profiler *Profiler

	status      Status
	sessionTime float64
	tickCount   uint64
	nextContext int

	// Per-tick loop state.
	executing    *ProgramContext
	yieldRequest *pendingYield
	haltTick     bool
}

// Option configures a CPU.
type Option func(*CPU)

// WithRunRecorder reports every finished program context to r.
func WithRunRecorder(r RunRecorder) Option {
	return func(c *CPU) { c.recorder = r }
}

// NewCPU creates a CPU. It is not usable until Boot is called.
func NewCPU(host Host, config Config, opts ...Option) *CPU {
	if host == nil {
		host = NopHost{}
	}
	config = config.withDefaults()
	c := &CPU{
		host:     host,
		config:   config,
		stack:    NewStack(config.ArgumentStackSize, config.ScopeStackSize),
		globals:  NewVariableScope(GlobalScopeID, GlobalScopeID),
		profiler: NewProfiler(config.ShowStatistics),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// ---------------------------------------------------------------------------
// Accessors
// ---------------------------------------------------------------------------

// Host returns the host the CPU was created with.
func (c *CPU) Host() Host { return c.host }

// Config returns the active configuration.
func (c *CPU) Config() Config { return c.config }

// Stack returns the dual stack.
func (c *CPU) Stack() *Stack { return c.stack }

// Globals returns the global scope.
func (c *CPU) Globals() *VariableScope { return c.globals }

// Profiler returns the statistics collector.
func (c *CPU) Profiler() *Profiler { return c.profiler }

// SessionTime returns the simulated clock, advanced only by Tick.
func (c *CPU) SessionTime() float64 { return c.sessionTime }

// TickCount returns the number of ticks run so far.
func (c *CPU) TickCount() uint64 { return c.tickCount }

// Status returns the run state.
func (c *CPU) Status() Status { return c.status }

// SetStatus changes the run state.
func (c *CPU) SetStatus(s Status) { c.status = s }

// ContextCount returns the depth of the context stack (1 = interpreter only).
func (c *CPU) ContextCount() int { return len(c.contexts) }

// CurrentContext returns the context that is advancing.
func (c *CPU) CurrentContext() *ProgramContext {
	if len(c.contexts) == 0 {
		return nil
	}
	return c.contexts[len(c.contexts)-1]
}

// InterpreterContext returns context 0.
func (c *CPU) InterpreterContext() *ProgramContext {
	if len(c.contexts) == 0 {
		return nil
	}
	return c.contexts[0]
}

// InstructionPointer returns the current context's instruction pointer.
func (c *CPU) InstructionPointer() int {
	return c.CurrentContext().InstructionPointer
}

// SetInstructionPointer moves the current context's instruction pointer.
// Opcodes that do this report a delta of 0.
func (c *CPU) SetInstructionPointer(ip int) {
	c.CurrentContext().InstructionPointer = ip
}

// Print writes to the host terminal.
func (c *CPU) Print(text string) {
	c.host.Print(text)
}

// StopTick ends the current tick after the executing opcode.
func (c *CPU) StopTick() {
	c.haltTick = true
}

// PushArgument pushes onto the argument stack.
func (c *CPU) PushArgument(v any) error { return c.stack.PushArgument(v) }

// PopArgument pops from the argument stack.
func (c *CPU) PopArgument() (any, error) { return c.stack.PopArgument() }

// PeekArgument peeks into the argument stack.
func (c *CPU) PeekArgument(depth int) (any, error) { return c.stack.PeekArgument(depth) }

// PushNewScope enters a lexical block.
func (c *CPU) PushNewScope(id, parentID int) error {
	return c.stack.PushScope(NewVariableScope(id, parentID))
}

// PopScopes leaves n lexical blocks. Only variable scopes may be popped this
// way; call records are removed by ReturnFromSubroutine.
func (c *CPU) PopScopes(n int) error {
	for i := 0; i < n; i++ {
		top, err := c.stack.PeekScope(0)
		if err != nil {
			return err
		}
		if _, ok := top.(*VariableScope); !ok {
			return Errorf("popscope found a call record instead of a scope")
		}
		c.stack.PopScope()
	}
	return nil
}

// ---------------------------------------------------------------------------
// Boot and program lifecycle
// ---------------------------------------------------------------------------

// Boot resets the CPU to a fresh interpreter. It is safe to call from inside
// an opcode; whatever was running is discarded.
func (c *CPU) Boot() {
	for i := len(c.contexts) - 1; i >= 0; i-- {
		ctx := c.contexts[i]
		c.suspendFlyByWire(ctx)
		ctx.ClearTriggers()
		ctx.releaseDelegates()
		ctx.yields = nil
		ctx.ended = true
	}
	c.contexts = nil
	c.stack.Clear()
	c.globals.Release()
	c.globals = NewVariableScope(GlobalScopeID, GlobalScopeID)
	c.profiler.Reset()
	c.status = StatusRunning
	c.yieldRequest = nil
	c.haltTick = true

	interpreter := newProgramContext(c.newContextID(), true)
	interpreter.Program = Program{&EndOfInput{}}
	c.contexts = append(c.contexts, interpreter)

	c.host.LoadBindings(c)
	if c.config.Banner != "" {
		c.Print(c.config.Banner)
	}
	log.Infof("boot: interpreter context %d", interpreter.ID)

	if c.config.BootFile != "" {
		program, err := c.host.Compile(c.config.BootFile)
		if err != nil {
			log.Errorf("boot file %s: %s", c.config.BootFile, err.Error())
			c.Print(fmt.Sprintf("Error compiling boot file %s: %v", c.config.BootFile, err))
			return
		}
		c.RunProgram(program, false)
	}
}

// RunProgram starts program in a new context on top of the current one.
func (c *CPU) RunProgram(program Program, silent bool) *ProgramContext {
	ctx := newProgramContext(c.newContextID(), false)
	ctx.Silent = silent
	ctx.AddProgram("", program)
	c.pushContext(ctx)
	return ctx
}

// Interpret appends a chunk of interactive code to the interpreter context
// and points the interpreter at it. Anything the interpreter was still
// waiting on is dropped.
func (c *CPU) Interpret(program Program) {
	ctx := c.InterpreterContext()
	if ctx == nil {
		return
	}
	ctx.yields = nil
	ctx.CurrentPriority = PriorityNormal
	entry := ctx.AddProgram("", program)
	if n := len(ctx.Program); n == entry || !isEndOfInput(ctx.Program[n-1]) {
		ctx.AddProgram("", Program{&EndOfInput{}})
	}
	ctx.InstructionPointer = entry
}

func isEndOfInput(op Opcode) bool {
	_, ok := op.(*EndOfInput)
	return ok
}

func (c *CPU) newContextID() int {
	c.nextContext++
	return c.nextContext
}

func (c *CPU) pushContext(ctx *ProgramContext) {
	if prev := c.CurrentContext(); prev != nil {
		c.suspendFlyByWire(prev)
	}
	ctx.argBase = c.stack.ArgumentCount()
	ctx.scopeBase = c.stack.ScopeCount()
	c.contexts = append(c.contexts, ctx)
	log.Debugf("push context %d (run %s)", ctx.ID, ctx.RunID)
}

// popContext removes the current program context. The interpreter is never
// popped.
func (c *CPU) popContext(aborted bool) *ProgramContext {
	if len(c.contexts) <= 1 {
		return nil
	}
	ctx := c.contexts[len(c.contexts)-1]
	c.suspendFlyByWire(ctx)
	for _, binding := range ctx.EnabledBindings() {
		ctx.setFlyByWire(binding, false)
	}
	ctx.ClearTriggers()
	ctx.releaseDelegates()
	ctx.yields = nil
	ctx.ended = true
	if !aborted {
		c.stack.TruncateScopes(ctx.scopeBase)
		c.stack.TruncateArguments(ctx.argBase)
	}
	c.contexts[len(c.contexts)-1] = nil
	c.contexts = c.contexts[:len(c.contexts)-1]
	c.resumeFlyByWire(c.CurrentContext())

	log.Debugf("pop context %d after %d instructions", ctx.ID, ctx.instructions)
	c.recordRun(ctx, aborted)
	return ctx
}

func (c *CPU) recordRun(ctx *ProgramContext, aborted bool) {
	if c.config.ShowStatistics {
		c.Print(c.StatisticsDump())
	}
	if c.recorder == nil {
		return
	}
	stats := RunStatistics{
		RunID:        ctx.RunID.String(),
		ContextID:    ctx.ID,
		Started:      ctx.started,
		Duration:     time.Since(ctx.started),
		Instructions: ctx.instructions,
		Aborted:      aborted,
	}
	if err := c.recorder.RecordRun(stats); err != nil {
		log.Warningf("record run %s: %s", stats.RunID, err.Error())
	}
}

// BreakExecution stops the running program. A manual break unwinds every
// program context back to the interpreter; a natural end pops exactly one.
func (c *CPU) BreakExecution(manual bool) {
	c.haltTick = true
	c.yieldRequest = nil
	if len(c.contexts) <= 1 {
		if manual {
			c.abortInterpreter()
		}
		return
	}
	if manual {
		for len(c.contexts) > 1 {
			c.popContext(true)
		}
		c.stack.Clear()
		c.abortInterpreter()
		c.Print("Program aborted.")
	} else {
		ctx := c.popContext(false)
		if !ctx.Silent {
			c.Print("Program ended.")
		}
	}
	c.status = StatusRunning
}

// abortInterpreter drops whatever interactive code was in flight.
func (c *CPU) abortInterpreter() {
	ctx := c.InterpreterContext()
	ctx.yields = nil
	ctx.CurrentPriority = PriorityNormal
	ctx.InstructionPointer = len(ctx.Program) - 1
	c.stack.Clear()
}

// ---------------------------------------------------------------------------
// Fly-by-wire
// ---------------------------------------------------------------------------

// ToggleFlyByWire turns a control binding on or off on behalf of the current
// context. The binding is suspended whenever another context is current and
// released when the context ends.
func (c *CPU) ToggleFlyByWire(binding string, enabled bool) {
	ctx := c.CurrentContext()
	if ctx == nil || ctx.FlyByWireEnabled(binding) == enabled {
		return
	}
	ctx.setFlyByWire(binding, enabled)
	c.host.ToggleFlyByWire(binding, enabled)
}

func (c *CPU) suspendFlyByWire(ctx *ProgramContext) {
	for _, binding := range ctx.EnabledBindings() {
		c.host.ToggleFlyByWire(binding, false)
	}
}

func (c *CPU) resumeFlyByWire(ctx *ProgramContext) {
	if ctx == nil {
		return
	}
	for _, binding := range ctx.EnabledBindings() {
		c.host.ToggleFlyByWire(binding, true)
	}
}
