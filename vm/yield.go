package vm

// YieldFinishedDetector decides when a yielding opcode may retire.
//
// Begin is called once, from the opcode's Execute. IsFinished is polled once
// per tick from the following tick on; the opcode's instruction pointer
// advance happens after the first true. An error from IsFinished is handled
// like an error raised by the opcode.
type YieldFinishedDetector interface {
	Begin(cpu *CPU) error
	IsFinished(cpu *CPU) (bool, error)
}

// WaitDetector finishes once Duration seconds of session time have passed.
// Session time only advances with Tick, so a paused game pauses the wait.
type WaitDetector struct {
	Duration float64

	deadline float64
}

func (d *WaitDetector) Begin(cpu *CPU) error {
	d.deadline = cpu.SessionTime() + d.Duration
	return nil
}

func (d *WaitDetector) IsFinished(cpu *CPU) (bool, error) {
	return cpu.SessionTime() >= d.deadline, nil
}

// NextTickDetector finishes on the first poll, which is never in the tick
// that requested it.
type NextTickDetector struct{}

func (NextTickDetector) Begin(*CPU) error { return nil }

func (NextTickDetector) IsFinished(*CPU) (bool, error) { return true, nil }

// InputDetector finishes when the host has unread terminal input.
type InputDetector struct{}

func (InputDetector) Begin(*CPU) error { return nil }

func (InputDetector) IsFinished(cpu *CPU) (bool, error) {
	return cpu.Host().InputBuffered() > 0, nil
}
