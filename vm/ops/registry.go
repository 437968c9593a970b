package ops

import (
	"fmt"
	"sort"

	"github.com/chazu/kosvm/vm"
)

// Factory rebuilds an opcode from the operands its Operands method reported.
type Factory func(args []any) (vm.Opcode, error)

// OpInfo describes one registered opcode.
type OpInfo struct {
	Name     string
	Operands int // number of operands
	New      Factory
}

// Registry maps opcode names to their factories.
type Registry map[string]OpInfo

// New builds the opcode called name.
func (r Registry) New(name string, args []any) (vm.Opcode, error) {
	info, ok := r[name]
	if !ok {
		return nil, fmt.Errorf("unknown opcode %q", name)
	}
	if err := argCount(name, args, info.Operands); err != nil {
		return nil, err
	}
	return info.New(args)
}

// Names returns the registered opcode names in sorted order.
func (r Registry) Names() []string {
	names := make([]string, 0, len(r))
	for name := range r {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Describe returns the registry key and operands of op.
func Describe(op vm.Opcode) (string, []any, error) {
	o, ok := op.(Op)
	if !ok {
		return "", nil, fmt.Errorf("opcode %T is not registered", op)
	}
	return o.Name(), o.Operands(), nil
}

func register(r Registry, name string, operands int, f Factory) {
	r[name] = OpInfo{Name: name, Operands: operands, New: f}
}

func nullary(build func() vm.Opcode) Factory {
	return func([]any) (vm.Opcode, error) { return build(), nil }
}

func named(name string, build func(string) vm.Opcode) Factory {
	return func(args []any) (vm.Opcode, error) {
		s, err := stringArg(name, args, 0)
		if err != nil {
			return nil, err
		}
		return build(s), nil
	}
}

func targeted(name string, build func(int) vm.Opcode) Factory {
	return func(args []any) (vm.Opcode, error) {
		n, err := intArg(name, args, 0)
		if err != nil {
			return nil, err
		}
		return build(n), nil
	}
}

// Builtins is the complete built-in opcode set.
var Builtins = newBuiltins()

func newBuiltins() Registry {
	r := Registry{}

	// ========================================================================
	// Stack
	// ========================================================================

	register(r, "nop", 0, nullary(func() vm.Opcode { return &Nop{} }))
	register(r, "push", 1, func(args []any) (vm.Opcode, error) {
		return &Push{Value: normalize(args[0])}, nil
	})
	register(r, "pop", 0, nullary(func() vm.Opcode { return &Pop{} }))
	register(r, "dup", 0, nullary(func() vm.Opcode { return &Dup{} }))
	register(r, "swap", 0, nullary(func() vm.Opcode { return &Swap{} }))
	register(r, "pushmarker", 0, nullary(func() vm.Opcode { return &PushMarker{} }))
	register(r, "argbottom", 0, nullary(func() vm.Opcode { return &ArgBottom{} }))

	// ========================================================================
	// Variables and scopes
	// ========================================================================

	register(r, "get", 2, func(args []any) (vm.Opcode, error) {
		name, err := stringArg("get", args, 0)
		if err != nil {
			return nil, err
		}
		bare, err := boolArg("get", args, 1)
		if err != nil {
			return nil, err
		}
		return &Get{Ident: name, Bareword: bare}, nil
	})
	register(r, "store", 1, named("store", func(s string) vm.Opcode { return &Store{Ident: s} }))
	register(r, "storelocal", 1, named("storelocal", func(s string) vm.Opcode { return &StoreLocal{Ident: s} }))
	register(r, "storeglobal", 1, named("storeglobal", func(s string) vm.Opcode { return &StoreGlobal{Ident: s} }))
	register(r, "unset", 2, func(args []any) (vm.Opcode, error) {
		name, err := stringArg("unset", args, 0)
		if err != nil {
			return nil, err
		}
		force, err := boolArg("unset", args, 1)
		if err != nil {
			return nil, err
		}
		return &Unset{Ident: name, Force: force}, nil
	})
	register(r, "pushscope", 2, func(args []any) (vm.Opcode, error) {
		id, err := intArg("pushscope", args, 0)
		if err != nil {
			return nil, err
		}
		parent, err := intArg("pushscope", args, 1)
		if err != nil {
			return nil, err
		}
		return &PushScope{ID: id, ParentID: parent}, nil
	})
	register(r, "popscope", 1, targeted("popscope", func(n int) vm.Opcode { return &PopScope{Count: n} }))

	// ========================================================================
	// Arithmetic and output
	// ========================================================================

	for kind := OpAdd; kind <= OpGt; kind++ {
		kind := kind
		register(r, kind.String(), 0, nullary(func() vm.Opcode { return &Binary{Kind: kind} }))
	}
	register(r, "not", 0, nullary(func() vm.Opcode { return &Not{} }))
	register(r, "neg", 0, nullary(func() vm.Opcode { return &Neg{} }))
	register(r, "print", 0, nullary(func() vm.Opcode { return &Print{} }))

	// ========================================================================
	// Control flow
	// ========================================================================

	register(r, "jump", 1, targeted("jump", func(n int) vm.Opcode { return &Jump{Target: n} }))
	register(r, "br.true", 1, targeted("br.true", func(n int) vm.Opcode { return &Branch{Target: n, When: true} }))
	register(r, "br.false", 1, targeted("br.false", func(n int) vm.Opcode { return &Branch{Target: n} }))
	register(r, "call", 1, targeted("call", func(n int) vm.Opcode { return &Call{Entry: n} }))
	register(r, "return", 0, nullary(func() vm.Opcode { return &Return{} }))
	register(r, "delegate", 2, func(args []any) (vm.Opcode, error) {
		entry, err := intArg("delegate", args, 0)
		if err != nil {
			return nil, err
		}
		closure, err := boolArg("delegate", args, 1)
		if err != nil {
			return nil, err
		}
		return &Delegate{Entry: entry, Closure: closure}, nil
	})
	register(r, "eof", 0, nullary(func() vm.Opcode { return &vm.EndOfInput{} }))
	register(r, "eop", 0, nullary(func() vm.Opcode { return &vm.EndOfProgram{} }))

	// ========================================================================
	// Triggers and bindings
	// ========================================================================

	register(r, "addtrigger", 4, func(args []any) (vm.Opcode, error) {
		entry, err := intArg("addtrigger", args, 0)
		if err != nil {
			return nil, err
		}
		priority, err := intArg("addtrigger", args, 1)
		if err != nil {
			return nil, err
		}
		immediate, err := boolArg("addtrigger", args, 2)
		if err != nil {
			return nil, err
		}
		closure, err := boolArg("addtrigger", args, 3)
		if err != nil {
			return nil, err
		}
		return &AddTrigger{
			Entry:     entry,
			Priority:  vm.InterruptPriority(priority),
			Immediate: immediate,
			Closure:   closure,
		}, nil
	})
	register(r, "removetrigger", 0, nullary(func() vm.Opcode { return &RemoveTrigger{} }))
	register(r, "fbw", 2, func(args []any) (vm.Opcode, error) {
		binding, err := stringArg("fbw", args, 0)
		if err != nil {
			return nil, err
		}
		enabled, err := boolArg("fbw", args, 1)
		if err != nil {
			return nil, err
		}
		return &FlyByWire{Binding: binding, Enabled: enabled}, nil
	})

	// ========================================================================
	// Waits and loading
	// ========================================================================

	register(r, "wait", 0, nullary(func() vm.Opcode { return &Wait{} }))
	register(r, "waitnext", 0, nullary(func() vm.Opcode { return &WaitNext{} }))
	register(r, "waitinput", 0, nullary(func() vm.Opcode { return &WaitInput{} }))
	register(r, "load", 1, named("load", func(s string) vm.Opcode { return &Load{Path: s} }))

	return r
}
