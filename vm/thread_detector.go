package vm

import (
	"time"
)

// ThreadWork is a unit of work run on its own goroutine while the program
// that requested it yields.
//
// Initialize and Finish run on the CPU's goroutine. Execute runs on the
// worker goroutine and must not touch the CPU, the host, or anything they
// own; it communicates only through the work value's own fields, which
// Finish reads after Execute has returned.
type ThreadWork interface {
	// Initialize prepares the work. Returning false postpones the start;
	// Initialize is called again on the next poll.
	Initialize(cpu *CPU) bool
	Execute() error
	Finish(cpu *CPU) error
}

// ThreadDetector runs a ThreadWork on one goroutine and finishes when it
// returns. IsFinished reports true exactly once; a failed worker breaks
// execution and its error is returned from that same poll.
type ThreadDetector struct {
	Work ThreadWork

	started  bool
	reported bool
	done     chan struct{}
	err      error
}

// NewThreadDetector wraps work.
func NewThreadDetector(work ThreadWork) *ThreadDetector {
	return &ThreadDetector{Work: work}
}

func (d *ThreadDetector) Begin(cpu *CPU) error {
	d.start(cpu)
	return nil
}

func (d *ThreadDetector) start(cpu *CPU) {
	if d.started || !d.Work.Initialize(cpu) {
		return
	}
	d.started = true
	d.done = make(chan struct{})
	go d.run()
}

func (d *ThreadDetector) run() {
	defer close(d.done)
	defer func() {
		if r := recover(); r != nil {
			d.err = panicError(r)
		}
	}()
	d.err = d.Work.Execute()
}

func (d *ThreadDetector) IsFinished(cpu *CPU) (bool, error) {
	if d.reported {
		return false, nil
	}
	if !d.started {
		d.start(cpu)
		return false, nil
	}
	select {
	case <-d.done:
	default:
		return false, nil
	}
	d.reported = true
	if d.err != nil {
		log.Errorf("thread detector worker failed: %s", d.err.Error())
		cpu.BreakExecution(true)
		return true, &ThreadError{Err: d.err}
	}
	return true, d.Work.Finish(cpu)
}

// Wait blocks until the worker has returned. Used by hosts shutting down.
func (d *ThreadDetector) Wait() {
	if d.started {
		<-d.done
	}
}

// ---------------------------------------------------------------------------
// Compiling
// ---------------------------------------------------------------------------

// NewCompileDetector returns a detector that compiles path through the host
// off the CPU goroutine, appends the result to the requesting context and
// pushes its entry point.
func NewCompileDetector(path string) *ThreadDetector {
	return NewThreadDetector(&compileWork{path: path})
}

type compileWork struct {
	path string

	host    Host
	ctx     *ProgramContext
	program Program
	elapsed time.Duration
}

func (w *compileWork) Initialize(cpu *CPU) bool {
	w.host = cpu.Host()
	w.ctx = cpu.CurrentContext()
	return true
}

func (w *compileWork) Execute() error {
	start := time.Now()
	program, err := w.host.Compile(w.path)
	w.elapsed = time.Since(start)
	if err != nil {
		return err
	}
	w.program = program
	return nil
}

func (w *compileWork) Finish(cpu *CPU) error {
	if cpu.CurrentContext() != w.ctx || w.ctx.Ended() {
		return Errorf("program changed while compiling %s", w.path)
	}
	cpu.Profiler().RecordCompile(w.elapsed)
	entry := w.ctx.AddProgram(w.path, w.program)
	log.Debugf("compiled %s at %d in %s", w.path, entry, w.elapsed)
	return cpu.PushArgument(entry)
}
