package vm

import "fmt"

// UserDelegate is a first-class reference to a user function: an entry point
// in its owning context's program plus, optionally, the lexical scopes it
// closed over. Closure scopes are shared, not copied. The captures are
// dropped by Release, or when the owning context ends.
type UserDelegate struct {
	EntryPoint int
	Context    *ProgramContext
	Closure    []*VariableScope

	released bool
}

func (d *UserDelegate) String() string {
	return fmt.Sprintf("UserDelegate(%d@%d)", d.EntryPoint, d.Context.ID)
}

// MakeUserDelegate creates a delegate for entry in the current context. With
// withClosure the running code's scope chain is captured.
func (c *CPU) MakeUserDelegate(entry int, withClosure bool) *UserDelegate {
	d := &UserDelegate{EntryPoint: entry, Context: c.CurrentContext()}
	if withClosure {
		d.Closure = c.captureClosure()
		if len(d.Closure) > 0 && d.Context != nil {
			d.Context.delegates[d] = struct{}{}
		}
	}
	return d
}

// Release drops the delegate's hold on its closure scopes. A scope that is
// no longer captured or on the stack is torn down. Calling Release again is
// a no-op.
func (d *UserDelegate) Release() {
	if d.released {
		return
	}
	d.released = true
	if d.Context != nil {
		delete(d.Context.delegates, d)
	}
	for _, scope := range d.Closure {
		scope.Unretain()
	}
}

// captureClosure snapshots the lexical chain, outermost first, and retains
// every scope in it.
func (c *CPU) captureClosure() []*VariableScope {
	chain := c.scopeChain()
	closure := make([]*VariableScope, len(chain))
	for i, scope := range chain {
		scope.Retain()
		closure[len(chain)-1-i] = scope
	}
	return closure
}

// AssertValidDelegateCall fails when d belongs to a program that is no
// longer current.
func (c *CPU) AssertValidDelegateCall(d *UserDelegate) error {
	current := c.CurrentContext()
	if d.Context != current || d.Context.Ended() {
		return &InvalidDelegateContextError{
			EntryPoint:     d.EntryPoint,
			OwnerContextID: d.Context.ID,
			CurrentID:      current.ID,
		}
	}
	return nil
}

// CallDelegate enters d like CallSubroutine, re-pushing its closure below
// the call record. ReturnFromSubroutine pops the closure with the record.
func (c *CPU) CallDelegate(d *UserDelegate) error {
	if err := c.AssertValidDelegateCall(d); err != nil {
		return err
	}
	return c.enter(d.EntryPoint, d.Closure)
}
