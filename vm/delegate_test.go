package vm

import (
	"errors"
	"strings"
	"testing"
)

// counterProgram builds a function (scope 1) that declares count and
// returns a delegate to an inner function (scope 2) incrementing it.
func counterProgram(withClosure bool, result *[]any) Program {
	return Program{
		// 0: the outer function body, inlined
		step(func(c *CPU) error {
			if err := c.PushNewScope(1, GlobalScopeID); err != nil {
				return err
			}
			if err := c.SetNewLocal("count", 1.0); err != nil {
				return err
			}
			if err := c.SetGlobal("incr", c.MakeUserDelegate(5, withClosure)); err != nil {
				return err
			}
			return c.PopScopes(1)
		}),
		// 1: incr()
		jumpy(func(c *CPU) error {
			d, err := c.GetValue("incr", false)
			if err != nil {
				return err
			}
			if err := c.PushArgument(ArgMarker); err != nil {
				return err
			}
			return c.CallDelegate(d.(*UserDelegate))
		}),
		step(func(c *CPU) error {
			v, err := c.PopArgument()
			*result = append(*result, v)
			return err
		}),
		step(func(c *CPU) error {
			if c.VariableExists("count") {
				return errors.New("count leaked out of its scope")
			}
			return nil
		}),
		&EndOfProgram{},
		// 5: incr body
		step(func(c *CPU) error { return c.PushNewScope(2, 1) }),
		step(func(c *CPU) error {
			marker, err := c.PopArgument()
			if err != nil {
				return err
			}
			if !IsArgMarker(marker) {
				return errors.New("missing argument marker")
			}
			return nil
		}),
		step(func(c *CPU) error {
			n, err := c.GetValue("count", false)
			if err != nil {
				return err
			}
			return c.SetValue("count", n.(float64)+1)
		}),
		jumpy(func(c *CPU) error {
			n, err := c.GetValue("count", false)
			if err != nil {
				return err
			}
			return c.ReturnFromSubroutine(n)
		}),
	}
}

func TestClosureOutlivesDefiningScope(t *testing.T) {
	cpu, host := newTestCPU(t, Config{})
	var results []any
	cpu.RunProgram(counterProgram(true, &results), false)
	cpu.Tick(0.02)

	if len(results) != 1 || results[0] != 2.0 {
		t.Fatalf("results = %v, want [2]; output:\n%s", results, host.output())
	}
	if cpu.Stack().ScopeCount() != 0 {
		t.Errorf("closure scopes left on the stack: %d", cpu.Stack().ScopeCount())
	}
}

func TestDelegateWithoutClosureSeesOnlyCallTimeScopes(t *testing.T) {
	cpu, host := newTestCPU(t, Config{})
	var results []any
	cpu.RunProgram(counterProgram(false, &results), false)
	cpu.Tick(0.02)

	if len(results) != 0 {
		t.Fatalf("results = %v, want the call to fail", results)
	}
	if !strings.Contains(host.output(), "undefined variable name 'count'") {
		t.Errorf("output:\n%s", host.output())
	}
}

func TestCaptureMarksChainOutermostFirst(t *testing.T) {
	cpu, _ := newTestCPU(t, Config{})
	cpu.PushNewScope(1, GlobalScopeID)
	pushCall(t, cpu)
	cpu.PushNewScope(2, 1)
	cpu.PushNewScope(3, 2)

	d := cpu.MakeUserDelegate(0, true)
	if len(d.Closure) != 3 {
		t.Fatalf("closure has %d scopes", len(d.Closure))
	}
	for i, want := range []int{1, 2, 3} {
		if d.Closure[i].ScopeID != want || !d.Closure[i].IsClosure {
			t.Errorf("closure[%d] = %d (closure=%v), want %d", i, d.Closure[i].ScopeID, d.Closure[i].IsClosure, want)
		}
	}
}

// captureWidget declares a widget in a fresh scope, captures it in a
// delegate and pops the scope again.
func captureWidget(t *testing.T, cpu *CPU) (*widget, *UserDelegate) {
	t.Helper()
	w := newWidget()
	if err := cpu.PushNewScope(1, GlobalScopeID); err != nil {
		t.Fatal(err)
	}
	if err := cpu.SetNewLocal("w", w); err != nil {
		t.Fatal(err)
	}
	d := cpu.MakeUserDelegate(0, true)
	if err := cpu.PopScopes(1); err != nil {
		t.Fatal(err)
	}
	if w.lostCount != 0 {
		t.Fatal("captured scope released on pop")
	}
	return w, d
}

func TestReleasedDelegateFreesClosure(t *testing.T) {
	cpu, _ := newTestCPU(t, Config{})
	w, d := captureWidget(t, cpu)
	d.Release()
	d.Release()
	if w.lostCount != 1 {
		t.Errorf("lostCount = %d after Release, want 1", w.lostCount)
	}
}

func TestBootFreesInterpreterClosures(t *testing.T) {
	cpu, _ := newTestCPU(t, Config{})
	w, _ := captureWidget(t, cpu)
	cpu.Boot()
	if w.lostCount != 1 {
		t.Errorf("lostCount = %d after Boot, want 1", w.lostCount)
	}
}

func TestProgramEndFreesClosures(t *testing.T) {
	for _, abort := range []bool{false, true} {
		cpu, _ := newTestCPU(t, Config{})
		var w *widget
		cpu.RunProgram(Program{
			step(func(c *CPU) error {
				w, _ = captureWidget(t, c)
				return nil
			}),
			jumpy(func(c *CPU) error {
				c.BreakExecution(abort)
				return nil
			}),
		}, true)
		cpu.Tick(0.02)
		if cpu.ContextCount() != 1 {
			t.Fatalf("abort=%v: %d contexts left", abort, cpu.ContextCount())
		}
		if w == nil || w.lostCount != 1 {
			t.Errorf("abort=%v: closure not released when the program ended", abort)
		}
	}
}

func TestStaleDelegateIsRejected(t *testing.T) {
	cpu, _ := newTestCPU(t, Config{})
	var d *UserDelegate
	cpu.RunProgram(Program{
		step(func(c *CPU) error { d = c.MakeUserDelegate(0, false); return nil }),
		&EndOfProgram{},
	}, true)
	cpu.Tick(0.02)
	if d == nil {
		t.Fatal("delegate not created")
	}

	err := cpu.AssertValidDelegateCall(d)
	var stale *InvalidDelegateContextError
	if !errors.As(err, &stale) {
		t.Fatalf("expected InvalidDelegateContextError, got %v", err)
	}
	if stale.CurrentID != cpu.InterpreterContext().ID {
		t.Errorf("CurrentID = %d", stale.CurrentID)
	}
	if _, err := cpu.AddCallback(d, PriorityCallbackOnce, true); !errors.As(err, &stale) {
		t.Errorf("AddCallback accepted a stale delegate: %v", err)
	}
}

func TestCallSubroutineBadEntry(t *testing.T) {
	cpu, _ := newTestCPU(t, Config{})
	var bad *BadJumpError
	if err := cpu.CallSubroutine(42); !errors.As(err, &bad) {
		t.Errorf("expected BadJumpError, got %v", err)
	}
	if cpu.Stack().ScopeCount() != 0 {
		t.Error("failed call left a record behind")
	}
}

func TestReturnWithoutCall(t *testing.T) {
	cpu, _ := newTestCPU(t, Config{})
	cpu.PushNewScope(1, 0)
	if err := cpu.ReturnFromSubroutine(nil); err == nil {
		t.Error("return outside a call succeeded")
	}
}

func TestTruthy(t *testing.T) {
	cases := []struct {
		v    any
		want bool
	}{
		{nil, false},
		{false, false},
		{true, true},
		{0.0, false},
		{2.5, true},
		{0, false},
		{"", false},
		{"yes", true},
		{&UserDelegate{}, true},
	}
	for _, tc := range cases {
		if got := Truthy(tc.v); got != tc.want {
			t.Errorf("Truthy(%#v) = %v, want %v", tc.v, got, tc.want)
		}
	}
}
