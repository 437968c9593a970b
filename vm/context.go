package vm

import (
	"sort"
	"time"

	"github.com/google/uuid"
)

// pendingYield is an opcode waiting on its detector. depth is the number of
// trigger frames on the stack when it yielded: only code at that depth is
// blocked, so triggers can still run above a waiting mainline.
type pendingYield struct {
	detector YieldFinishedDetector
	depth    int
	delta    int
	tick     uint64
}

// ProgramContext is one program's execution state.
type ProgramContext struct {
	ID    int
	RunID uuid.UUID

	Program            Program
	InstructionPointer int
	CurrentPriority    InterruptPriority

	IsInterpreter bool
	Silent        bool

	activeTriggers  []*TriggerInfo
	pendingTriggers []*TriggerInfo

	flyByWire   map[string]bool
	entryPoints map[string]int
	yields      []pendingYield
	delegates   map[*UserDelegate]struct{} // closures not yet released

	// Stack heights when the context was pushed; a natural end truncates
	// back to them.
	argBase   int
	scopeBase int

	started      time.Time
	instructions uint64
	ended        bool
}

func newProgramContext(id int, interpreter bool) *ProgramContext {
	return &ProgramContext{
		ID:              id,
		RunID:           uuid.New(),
		IsInterpreter:   interpreter,
		CurrentPriority: PriorityNormal,
		flyByWire:       make(map[string]bool),
		entryPoints:     make(map[string]int),
		delegates:       make(map[*UserDelegate]struct{}),
		started:         time.Now(),
	}
}

// ---------------------------------------------------------------------------
// Code
// ---------------------------------------------------------------------------

// AddProgram appends program and returns its entry point. Opcodes with jump
// targets are appended as relocated copies, so the same program may be added
// to any number of contexts. A file that was
// already added reuses its first entry point instead of appending again;
// file "" is never cached.
func (p *ProgramContext) AddProgram(file string, program Program) int {
	if file != "" {
		if entry, ok := p.entryPoints[file]; ok {
			return entry
		}
	}
	entry := len(p.Program)
	for _, op := range program {
		if r, ok := op.(Relocatable); ok && entry > 0 {
			op = r.Relocated(entry)
		}
		p.Program = append(p.Program, op)
	}
	if file != "" {
		p.entryPoints[file] = entry
	}
	return entry
}

// releaseDelegates drops every closure captured by the context's delegates.
func (p *ProgramContext) releaseDelegates() {
	for d := range p.delegates {
		d.Release()
	}
}

// EntryPoint returns the cached entry point of a previously added file.
func (p *ProgramContext) EntryPoint(file string) (int, bool) {
	entry, ok := p.entryPoints[file]
	return entry, ok
}

// Instructions returns how many opcodes this context has executed.
func (p *ProgramContext) Instructions() uint64 {
	return p.instructions
}

// Ended reports whether the context has been popped.
func (p *ProgramContext) Ended() bool {
	return p.ended
}

// ---------------------------------------------------------------------------
// Triggers
// ---------------------------------------------------------------------------

// AddPendingTrigger queues t. If an equal trigger is already pending or
// active, nothing is queued and the existing one is returned.
func (p *ProgramContext) AddPendingTrigger(t *TriggerInfo) *TriggerInfo {
	if existing := p.findTrigger(t); existing != nil {
		return existing
	}
	p.pendingTriggers = append(p.pendingTriggers, t)
	return t
}

// AddActiveTrigger makes t eligible at the next tick, skipping the pending
// stage.
func (p *ProgramContext) AddActiveTrigger(t *TriggerInfo) *TriggerInfo {
	for _, existing := range p.activeTriggers {
		if existing.Equals(t) {
			return existing
		}
	}
	p.pendingTriggers = removeTrigger(p.pendingTriggers, t)
	p.activeTriggers = append(p.activeTriggers, t)
	return t
}

// RemoveTrigger cancels t if it is pending or active. A trigger whose body
// is already on the call stack is unaffected.
func (p *ProgramContext) RemoveTrigger(t *TriggerInfo) {
	p.activeTriggers = removeTrigger(p.activeTriggers, t)
	p.pendingTriggers = removeTrigger(p.pendingTriggers, t)
}

// ContainsTrigger reports whether t is pending or active.
func (p *ProgramContext) ContainsTrigger(t *TriggerInfo) bool {
	return p.findTrigger(t) != nil
}

// ActiveTriggers returns a copy of the active set in registration order.
func (p *ProgramContext) ActiveTriggers() []*TriggerInfo {
	return append([]*TriggerInfo(nil), p.activeTriggers...)
}

// PendingTriggers returns a copy of the pending set in registration order.
func (p *ProgramContext) PendingTriggers() []*TriggerInfo {
	return append([]*TriggerInfo(nil), p.pendingTriggers...)
}

// ActiveTriggerCount returns the size of the active set.
func (p *ProgramContext) ActiveTriggerCount() int {
	return len(p.activeTriggers)
}

// PendingTriggerCount returns the size of the pending set.
func (p *ProgramContext) PendingTriggerCount() int {
	return len(p.pendingTriggers)
}

// ActivatePendingTriggersAbovePriority moves pending triggers whose priority
// exceeds priority into the active set, keeping registration order.
func (p *ProgramContext) ActivatePendingTriggersAbovePriority(priority InterruptPriority) {
	if len(p.pendingTriggers) == 0 {
		return
	}
	kept := p.pendingTriggers[:0]
	for _, t := range p.pendingTriggers {
		if t.Priority > priority {
			p.activeTriggers = append(p.activeTriggers, t)
		} else {
			kept = append(kept, t)
		}
	}
	for i := len(kept); i < len(p.pendingTriggers); i++ {
		p.pendingTriggers[i] = nil
	}
	p.pendingTriggers = kept
}

// ClearTriggers drops every pending and active trigger.
func (p *ProgramContext) ClearTriggers() {
	p.activeTriggers = nil
	p.pendingTriggers = nil
}

// takeFireable removes and returns the active triggers allowed to interrupt
// code running at priority.
func (p *ProgramContext) takeFireable(priority InterruptPriority) []*TriggerInfo {
	var fire []*TriggerInfo
	kept := p.activeTriggers[:0]
	for _, t := range p.activeTriggers {
		if t.Priority > priority {
			fire = append(fire, t)
		} else {
			kept = append(kept, t)
		}
	}
	for i := len(kept); i < len(p.activeTriggers); i++ {
		p.activeTriggers[i] = nil
	}
	p.activeTriggers = kept
	return fire
}

func (p *ProgramContext) findTrigger(t *TriggerInfo) *TriggerInfo {
	for _, existing := range p.activeTriggers {
		if existing.Equals(t) {
			return existing
		}
	}
	for _, existing := range p.pendingTriggers {
		if existing.Equals(t) {
			return existing
		}
	}
	return nil
}

func removeTrigger(list []*TriggerInfo, t *TriggerInfo) []*TriggerInfo {
	out := list[:0]
	for _, existing := range list {
		if !existing.Equals(t) {
			out = append(out, existing)
		}
	}
	for i := len(out); i < len(list); i++ {
		list[i] = nil
	}
	return out
}

// ---------------------------------------------------------------------------
// Fly-by-wire bindings
// ---------------------------------------------------------------------------

// FlyByWireEnabled reports whether this context has binding turned on.
func (p *ProgramContext) FlyByWireEnabled(binding string) bool {
	return p.flyByWire[binding]
}

// EnabledBindings lists the bindings this context has turned on.
func (p *ProgramContext) EnabledBindings() []string {
	var names []string
	for name, on := range p.flyByWire {
		if on {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}

func (p *ProgramContext) setFlyByWire(binding string, enabled bool) {
	if enabled {
		p.flyByWire[binding] = true
	} else {
		delete(p.flyByWire, binding)
	}
}

// ---------------------------------------------------------------------------
// Yields
// ---------------------------------------------------------------------------

func (p *ProgramContext) topYield() *pendingYield {
	if len(p.yields) == 0 {
		return nil
	}
	return &p.yields[len(p.yields)-1]
}

func (p *ProgramContext) pushYield(y pendingYield) {
	p.yields = append(p.yields, y)
}

func (p *ProgramContext) popYield() {
	if len(p.yields) > 0 {
		p.yields[len(p.yields)-1] = pendingYield{}
		p.yields = p.yields[:len(p.yields)-1]
	}
}

// IsYielding reports whether any opcode of this context is waiting.
func (p *ProgramContext) IsYielding() bool {
	return len(p.yields) > 0
}
