package vm

import (
	"errors"
	"sync"
	"testing"
)

// pushCall puts a bare call record on the scope stack, as CallSubroutine
// would.
func pushCall(t *testing.T, cpu *CPU) {
	t.Helper()
	if err := cpu.Stack().PushScope(&SubroutineContext{ReturnIP: 0, CameFromPriority: PriorityNoChange}); err != nil {
		t.Fatal(err)
	}
}

func TestSiblingScopeDoesNotSeeNeighbour(t *testing.T) {
	cpu, _ := newTestCPU(t, Config{})
	cpu.PushNewScope(1, GlobalScopeID)
	cpu.SetNewLocal("x", 5.0)
	cpu.PushNewScope(2, GlobalScopeID)

	_, err := cpu.GetValue("x", false)
	var undefined *UndefinedIdentifierError
	if !errors.As(err, &undefined) || undefined.Name != "x" {
		t.Fatalf("expected UndefinedIdentifierError for x, got %v", err)
	}

	cpu.SetGlobal("x", 1.0)
	if v, _ := cpu.GetValue("x", false); v != 1.0 {
		t.Errorf("x from sibling = %v, want the global 1", v)
	}
}

func TestInnerScopeInvisibleAfterPop(t *testing.T) {
	cpu, _ := newTestCPU(t, Config{})
	cpu.PushNewScope(1, GlobalScopeID)
	cpu.SetNewLocal("inner", true)
	if !cpu.VariableExists("inner") {
		t.Fatal("local not visible inside its scope")
	}
	if err := cpu.PopScopes(1); err != nil {
		t.Fatal(err)
	}
	if cpu.VariableExists("inner") {
		t.Error("local still visible after its scope popped")
	}
}

func TestLexicalParentFoundAcrossRecursion(t *testing.T) {
	cpu, _ := newTestCPU(t, Config{})
	cpu.PushNewScope(1, GlobalScopeID)
	cpu.SetNewLocal("depth", 7.0)

	// Three recursive instances of a function whose body scope (2) is
	// lexically nested in scope 1.
	for i := 0; i < 3; i++ {
		pushCall(t, cpu)
		cpu.PushNewScope(2, 1)
		cpu.SetNewLocal("n", float64(i))
	}

	v, err := cpu.GetValue("depth", false)
	if err != nil || v != 7.0 {
		t.Fatalf("depth = %v, %v; want 7", v, err)
	}
	if v, _ := cpu.GetValue("n", false); v != 2.0 {
		t.Errorf("n = %v, want innermost 2", v)
	}

	top, _ := cpu.Stack().PeekScope(0)
	if skip := top.(*VariableScope).ParentSkipLevels; skip != 6 {
		t.Errorf("ParentSkipLevels = %d, want 6", skip)
	}
	// The memo is used on the second lookup and must still resolve.
	if v, _ := cpu.GetValue("depth", false); v != 7.0 {
		t.Errorf("memoized lookup = %v", v)
	}
}

func TestCallBoundaryHidesCallerLocals(t *testing.T) {
	cpu, _ := newTestCPU(t, Config{})
	cpu.PushNewScope(1, GlobalScopeID)
	cpu.SetNewLocal("secret", 1.0)
	pushCall(t, cpu)
	cpu.PushNewScope(3, GlobalScopeID)

	if cpu.VariableExists("secret") {
		t.Error("callee saw a caller local that is not its lexical parent")
	}

	// A call with no scope of its own only sees globals.
	pushCall(t, cpu)
	if cpu.VariableExists("secret") {
		t.Error("scope-less callee saw a caller local")
	}
}

func TestSetValueCreatesGlobal(t *testing.T) {
	cpu, _ := newTestCPU(t, Config{})
	cpu.PushNewScope(1, GlobalScopeID)
	cpu.SetValue("fresh", 3.0)
	cpu.PopScopes(1)

	if v, err := cpu.GetValue("fresh", false); err != nil || v != 3.0 {
		t.Errorf("fresh = %v, %v; want global 3", v, err)
	}
}

func TestSetValueUpdatesEnclosingLocal(t *testing.T) {
	cpu, _ := newTestCPU(t, Config{})
	cpu.PushNewScope(1, GlobalScopeID)
	cpu.SetNewLocal("x", 1.0)
	cpu.PushNewScope(2, 1)
	cpu.SetValue("x", 2.0)
	cpu.PopScopes(1)

	if v, _ := cpu.GetValue("x", false); v != 2.0 {
		t.Errorf("x = %v, want 2", v)
	}
	if cpu.Globals().Contains("x") {
		t.Error("SetValue created a global instead of updating the local")
	}
}

func TestSetNewLocalShadows(t *testing.T) {
	cpu, _ := newTestCPU(t, Config{})
	cpu.SetGlobal("x", "global")
	cpu.PushNewScope(1, GlobalScopeID)
	cpu.SetNewLocal("x", "local")

	if v, _ := cpu.GetValue("x", false); v != "local" {
		t.Errorf("x = %v, want local", v)
	}
	cpu.PopScopes(1)
	if v, _ := cpu.GetValue("x", false); v != "global" {
		t.Errorf("x = %v after pop, want global", v)
	}
}

func TestGetValueBareword(t *testing.T) {
	cpu, _ := newTestCPU(t, Config{})
	v, err := cpu.GetValue("prograde", true)
	if err != nil || v != "prograde" {
		t.Errorf("bareword = %v, %v", v, err)
	}
}

func TestRemoveVariable(t *testing.T) {
	cpu, _ := newTestCPU(t, Config{})
	w := newWidget()
	cpu.SetGlobal("w", w)
	if err := cpu.RemoveVariable("W", false); err != nil {
		t.Fatal(err)
	}
	if cpu.VariableExists("w") || w.lostCount != 1 {
		t.Errorf("exists=%v lostCount=%d after removal", cpu.VariableExists("w"), w.lostCount)
	}
	if err := cpu.RemoveVariable("never-declared", false); err != nil {
		t.Errorf("removing unknown name: %v", err)
	}
}

func TestBoundVariableRefusesRemoval(t *testing.T) {
	cpu, _ := newTestCPU(t, Config{})
	cpu.AddBoundVariable("ship", func() any { return "vessel" }, nil)

	if err := cpu.RemoveVariable("ship", false); err == nil {
		t.Fatal("bound variable removed without force")
	}
	if !cpu.VariableExists("ship") {
		t.Fatal("bound variable gone after refused removal")
	}
	if err := cpu.RemoveVariable("ship", true); err != nil {
		t.Fatal(err)
	}
	if cpu.VariableExists("ship") {
		t.Error("forced removal left the variable")
	}
}

func TestBootReloadsBindingsAndClearsGlobals(t *testing.T) {
	host := &testHost{}
	host.bindings = func(cpu *CPU) {
		cpu.AddBoundVariable("time", func() any { return cpu.SessionTime() }, nil)
	}
	cpu := NewCPU(host, Config{})
	cpu.Boot()
	cpu.SetGlobal("leftover", 1.0)

	cpu.Boot()
	if cpu.VariableExists("leftover") {
		t.Error("Boot kept a user global")
	}
	if !cpu.VariableExists("time") {
		t.Error("Boot did not reinstall bindings")
	}
}

func TestPopScopesRefusesCallRecord(t *testing.T) {
	cpu, _ := newTestCPU(t, Config{})
	pushCall(t, cpu)
	if err := cpu.PopScopes(1); err == nil {
		t.Error("PopScopes popped a call record")
	}
}

func TestFoldCase(t *testing.T) {
	cases := map[string]string{
		"Throttle":  "throttle",
		"already":   "already",
		"ÄPFEL":     "äpfel",
		"Ship_NAME": "ship_name",
	}
	for in, want := range cases {
		if got := FoldCase(in); got != want {
			t.Errorf("FoldCase(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestFoldCaseConcurrent(t *testing.T) {
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 200; j++ {
				if got := FoldCase("ÉTAGE"); got != "étage" {
					t.Errorf("FoldCase = %q", got)
					return
				}
			}
		}()
	}
	wg.Wait()
}
