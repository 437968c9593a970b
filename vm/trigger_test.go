package vm

import (
	"testing"
)

// mainline loops on itself for the rest of the tick.
func mainline(tr *trace) *fnOp {
	return jumpy(func(c *CPU) error {
		tr.events = append(tr.events, "main")
		c.StopTick()
		return nil
	})
}

func TestTriggersFireOncePerTickInRegistrationOrder(t *testing.T) {
	cpu, _ := newTestCPU(t, Config{})
	var tr trace
	cpu.RunProgram(Program{
		mainline(&tr),
		tr.mark("A"),
		ret(true),
		tr.mark("B"),
		ret(true),
	}, true)
	a, _ := cpu.AddTrigger(1, PriorityRecurring, false, nil)
	b, _ := cpu.AddTrigger(3, PriorityRecurring, false, nil)
	if cpu.CurrentContext().PendingTriggerCount() != 2 {
		t.Fatalf("pending = %d", cpu.CurrentContext().PendingTriggerCount())
	}

	for i := 0; i < 3; i++ {
		cpu.Tick(0.02)
	}
	if want := "main A B main A B main"; tr.String() != want {
		t.Errorf("trace = %q, want %q", tr.String(), want)
	}
	if !cpu.CurrentContext().ContainsTrigger(a) || !cpu.CurrentContext().ContainsTrigger(b) {
		t.Error("re-arming triggers were dropped")
	}
}

func TestTriggerReturningFalseDoesNotRearm(t *testing.T) {
	cpu, _ := newTestCPU(t, Config{})
	var tr trace
	cpu.RunProgram(Program{
		mainline(&tr),
		tr.mark("T"),
		ret(false),
	}, true)
	cpu.AddTrigger(1, PriorityRecurring, false, nil)

	for i := 0; i < 4; i++ {
		cpu.Tick(0.02)
	}
	if want := "main T main main main"; tr.String() != want {
		t.Errorf("trace = %q, want %q", tr.String(), want)
	}
	if n := cpu.CurrentContext().ActiveTriggerCount() + cpu.CurrentContext().PendingTriggerCount(); n != 0 {
		t.Errorf("%d triggers left registered", n)
	}
}

func TestTriggerDoesNotRearmBeforeMainlineRuns(t *testing.T) {
	cpu, _ := newTestCPU(t, Config{InstructionsPerUpdate: 2})
	var tr trace
	cpu.RunProgram(Program{
		mainline(&tr),
		tr.mark("T"),
		ret(true),
	}, true)
	cpu.AddTrigger(1, PriorityRecurring, false, nil)
	cpu.Tick(0.02) // main; T armed

	// The whole budget goes to T's body and return; mainline never runs.
	cpu.Tick(0.02)
	ctx := cpu.CurrentContext()
	if ctx.ActiveTriggerCount() != 0 || ctx.PendingTriggerCount() != 1 {
		t.Fatalf("active=%d pending=%d; trigger re-armed without a mainline instruction",
			ctx.ActiveTriggerCount(), ctx.PendingTriggerCount())
	}
	if tr.String() != "main T" {
		t.Errorf("trace = %q", tr.String())
	}
}

func TestTriggerDeduplication(t *testing.T) {
	cpu, _ := newTestCPU(t, Config{})
	first, err := cpu.AddTrigger(7, PriorityRecurring, false, nil)
	if err != nil {
		t.Fatal(err)
	}
	second, _ := cpu.AddTrigger(7, PriorityRecurring, false, nil)
	if first != second {
		t.Error("equal trigger registered twice")
	}
	if cpu.CurrentContext().PendingTriggerCount() != 1 {
		t.Errorf("pending = %d", cpu.CurrentContext().PendingTriggerCount())
	}

	d := cpu.MakeUserDelegate(7, false)
	c1, _ := cpu.AddCallback(d, PriorityCallbackOnce, false)
	c2, _ := cpu.AddCallback(d, PriorityCallbackOnce, false)
	if c1 == c2 || c1.Equals(c2) || c1.Equals(first) {
		t.Error("callbacks must be unique")
	}
}

func TestAddTriggerRejectsNormalPriority(t *testing.T) {
	cpu, _ := newTestCPU(t, Config{})
	if _, err := cpu.AddTrigger(1, PriorityNormal, false, nil); err == nil {
		t.Error("accepted a trigger that can never fire")
	}
}

func TestRemoveTriggerBeforeFiring(t *testing.T) {
	cpu, _ := newTestCPU(t, Config{})
	var tr trace
	cpu.RunProgram(Program{mainline(&tr), tr.mark("T"), ret(true)}, true)
	trig, _ := cpu.AddTrigger(1, PriorityRecurring, false, nil)
	cpu.Tick(0.02)
	cpu.RemoveTrigger(trig)
	cpu.Tick(0.02)
	if tr.String() != "main main" {
		t.Errorf("trace = %q", tr.String())
	}
}

func TestRemoveTriggerMidFireIsNoOp(t *testing.T) {
	cpu, _ := newTestCPU(t, Config{})
	var tr trace
	var self *TriggerInfo
	cpu.RunProgram(Program{
		mainline(&tr),
		step(func(c *CPU) error {
			tr.events = append(tr.events, "T")
			c.RemoveTrigger(self)
			return nil
		}),
		ret(true),
	}, true)
	self, _ = cpu.AddTrigger(1, PriorityRecurring, false, nil)

	for i := 0; i < 3; i++ {
		cpu.Tick(0.02)
	}
	if want := "main T main T main"; tr.String() != want {
		t.Errorf("trace = %q, want %q", tr.String(), want)
	}
}

func TestPriorityNesting(t *testing.T) {
	cpu, _ := newTestCPU(t, Config{})
	var tr trace
	var depthInControl int
	cpu.RunProgram(Program{
		mainline(&tr),
		// 1: R registers a control lock and another recurring trigger,
		// then ends the tick mid-body.
		step(func(c *CPU) error {
			tr.events = append(tr.events, "R1")
			if _, err := c.AddTrigger(4, PriorityRecurringControl, false, nil); err != nil {
				return err
			}
			if _, err := c.AddTrigger(7, PriorityRecurring, false, nil); err != nil {
				return err
			}
			c.StopTick()
			return nil
		}),
		tr.mark("R2"),
		ret(false),
		// 4: C, the control lock.
		step(func(c *CPU) error {
			tr.events = append(tr.events, "C")
			depthInControl = c.Stack().TriggerFrames()
			return nil
		}),
		ret(false),
		&EndOfProgram{},
		// 7: Q
		tr.mark("Q"),
		ret(false),
	}, true)
	cpu.AddTrigger(1, PriorityRecurring, false, nil)

	for i := 0; i < 4; i++ {
		cpu.Tick(0.02)
	}
	if want := "main R1 C R2 main Q main"; tr.String() != want {
		t.Errorf("trace = %q, want %q", tr.String(), want)
	}
	if depthInControl != 2 {
		t.Errorf("control lock ran with %d trigger frames, want 2 (inside R)", depthInControl)
	}
}

func TestImmediateCallbackReturnsValue(t *testing.T) {
	cpu, _ := newTestCPU(t, Config{})
	var tr trace
	cpu.RunProgram(Program{
		mainline(&tr),
		// 1: double(x)
		step(func(c *CPU) error {
			x, err := c.PopArgument()
			if err != nil {
				return err
			}
			marker, err := c.PopArgument()
			if err != nil {
				return err
			}
			if !IsArgMarker(marker) {
				return Errorf("argument count mismatch")
			}
			return c.PushArgument(x.(float64) * 2)
		}),
		jumpy(func(c *CPU) error {
			v, err := c.PopArgument()
			if err != nil {
				return err
			}
			return c.ReturnFromSubroutine(v)
		}),
	}, true)

	d := cpu.MakeUserDelegate(1, false)
	cb, err := cpu.AddCallback(d, PriorityCallbackOnce, true, 4.0)
	if err != nil {
		t.Fatal(err)
	}
	if cpu.CurrentContext().ActiveTriggerCount() != 1 {
		t.Fatal("immediate callback not active")
	}
	cpu.Tick(0.02)

	if !cb.IsFinished() || cb.ReturnValue() != 8.0 {
		t.Errorf("finished=%v value=%v", cb.IsFinished(), cb.ReturnValue())
	}
	if cpu.Stack().ArgumentCount() != 0 {
		t.Errorf("callback left %d values on the argument stack", cpu.Stack().ArgumentCount())
	}
	if cpu.CurrentContext().PendingTriggerCount() != 0 {
		t.Error("callback re-armed")
	}
}

func TestTriggersClearedWhenProgramEnds(t *testing.T) {
	cpu, _ := newTestCPU(t, Config{})
	ctx := cpu.RunProgram(Program{&EndOfProgram{}}, true)
	cpu.AddTrigger(0, PriorityRecurring, false, nil)
	cpu.Tick(0.02)
	if ctx.PendingTriggerCount() != 0 || !ctx.Ended() {
		t.Errorf("pending=%d ended=%v", ctx.PendingTriggerCount(), ctx.Ended())
	}
}
