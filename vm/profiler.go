package vm

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

// OpcodeProfile holds profiling data for one opcode label.
type OpcodeProfile struct {
	Label    string
	Location SourceLocation
	Count    uint64
	Duration time.Duration
}

// Profiler tracks execution counts for the statistics dump. Tick-level
// totals are always collected; per-opcode counts and timings only when
// Enabled.
//
// The profiler belongs to its CPU and is not safe for concurrent use.
type Profiler struct {
	Enabled bool

	opcodes map[string]*OpcodeProfile

	ticks            uint64
	instructions     uint64
	maxTick          int
	minTick          int
	executionTime    time.Duration
	maxExecutionTime time.Duration
	triggersFired    uint64
	compileTime      time.Duration
	compiles         uint64
}

// NewProfiler creates a profiler.
func NewProfiler(enabled bool) *Profiler {
	return &Profiler{
		Enabled: enabled,
		opcodes: make(map[string]*OpcodeProfile),
		minTick: -1,
	}
}

// RecordOpcode counts one executed opcode.
func (p *Profiler) RecordOpcode(op Opcode, elapsed time.Duration) {
	if !p.Enabled {
		return
	}
	key := op.Label()
	if key == "" {
		key = fmt.Sprintf("%T", op)
	}
	profile, ok := p.opcodes[key]
	if !ok {
		profile = &OpcodeProfile{Label: key, Location: op.Source()}
		p.opcodes[key] = profile
	}
	profile.Count++
	profile.Duration += elapsed
}

// RecordTick accumulates one tick's instruction count and wall time.
func (p *Profiler) RecordTick(instructions int, elapsed time.Duration) {
	p.ticks++
	p.instructions += uint64(instructions)
	if instructions > p.maxTick {
		p.maxTick = instructions
	}
	if instructions > 0 && (p.minTick < 0 || instructions < p.minTick) {
		p.minTick = instructions
	}
	p.executionTime += elapsed
	if elapsed > p.maxExecutionTime {
		p.maxExecutionTime = elapsed
	}
}

// RecordTriggerFire counts one trigger entry.
func (p *Profiler) RecordTriggerFire() {
	p.triggersFired++
}

// RecordCompile accumulates time spent compiling on worker goroutines.
func (p *Profiler) RecordCompile(elapsed time.Duration) {
	p.compiles++
	p.compileTime += elapsed
}

// Reset discards everything collected so far.
func (p *Profiler) Reset() {
	enabled := p.Enabled
	*p = *NewProfiler(enabled)
}

// ProfilerStats holds aggregate statistics.
type ProfilerStats struct {
	Ticks               uint64
	Instructions        uint64
	MaxInstructionsTick int
	MinInstructionsTick int
	ExecutionTime       time.Duration
	MaxTickTime         time.Duration
	TriggersFired       uint64
	Compiles            uint64
	CompileTime         time.Duration
}

// Stats returns aggregate statistics.
func (p *Profiler) Stats() ProfilerStats {
	minTick := p.minTick
	if minTick < 0 {
		minTick = 0
	}
	return ProfilerStats{
		Ticks:               p.ticks,
		Instructions:        p.instructions,
		MaxInstructionsTick: p.maxTick,
		MinInstructionsTick: minTick,
		ExecutionTime:       p.executionTime,
		MaxTickTime:         p.maxExecutionTime,
		TriggersFired:       p.triggersFired,
		Compiles:            p.compiles,
		CompileTime:         p.compileTime,
	}
}

// HotOpcodes returns up to n opcode profiles, most executed first.
func (p *Profiler) HotOpcodes(n int) []OpcodeProfile {
	all := make([]OpcodeProfile, 0, len(p.opcodes))
	for _, profile := range p.opcodes {
		all = append(all, *profile)
	}
	sort.Slice(all, func(i, j int) bool {
		if all[i].Count != all[j].Count {
			return all[i].Count > all[j].Count
		}
		return all[i].Label < all[j].Label
	})
	if n > 0 && len(all) > n {
		all = all[:n]
	}
	return all
}

// Dump formats the statistics for the terminal.
func (p *Profiler) Dump() string {
	s := p.Stats()
	var b strings.Builder
	fmt.Fprintf(&b, "Total compile time: %s (%d files)\n", s.CompileTime, s.Compiles)
	fmt.Fprintf(&b, "Total execution time: %s over %d ticks\n", s.ExecutionTime, s.Ticks)
	fmt.Fprintf(&b, "Most tick time: %s\n", s.MaxTickTime)
	fmt.Fprintf(&b, "Instructions executed: %d\n", s.Instructions)
	fmt.Fprintf(&b, "Most instructions in one tick: %d\n", s.MaxInstructionsTick)
	fmt.Fprintf(&b, "Fewest instructions in one tick: %d\n", s.MinInstructionsTick)
	fmt.Fprintf(&b, "Triggers fired: %d", s.TriggersFired)
	if p.Enabled && len(p.opcodes) > 0 {
		b.WriteString("\nHottest opcodes:")
		for _, op := range p.HotOpcodes(10) {
			fmt.Fprintf(&b, "\n  %-12s %8d  %10s  %s", op.Label, op.Count, op.Duration, op.Location)
		}
	}
	return b.String()
}
