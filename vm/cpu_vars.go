package vm

// ---------------------------------------------------------------------------
// Lexical lookup
// ---------------------------------------------------------------------------

// innermostScope returns the nearest VariableScope above the nearest call
// record, with its depth on the scope stack. A call record reached first
// means the running code has no local scope.
func (c *CPU) innermostScope() (*VariableScope, int) {
	for depth := 0; ; depth++ {
		v, ok := c.stack.PeekCheckScope(depth)
		if !ok {
			return nil, -1
		}
		switch rec := v.(type) {
		case *VariableScope:
			return rec, depth
		case *SubroutineContext:
			return nil, -1
		}
	}
}

// lexicalParent finds scope's lexical parent below depth. The parent may be
// any distance down the stack (recursive instances of a function sit between
// a body and its defining scope), so the distance found is memoized on the
// scope and verified before reuse.
func (c *CPU) lexicalParent(scope *VariableScope, depth int) (*VariableScope, int) {
	if scope.ParentScopeID == GlobalScopeID {
		return nil, -1
	}
	if skip := scope.ParentSkipLevels; skip > 0 {
		if v, ok := c.stack.PeekCheckScope(depth + skip); ok {
			if parent, ok := v.(*VariableScope); ok && parent.ScopeID == scope.ParentScopeID {
				return parent, depth + skip
			}
		}
	}
	for d := depth + 1; ; d++ {
		v, ok := c.stack.PeekCheckScope(d)
		if !ok {
			return nil, -1
		}
		if parent, ok := v.(*VariableScope); ok && parent.ScopeID == scope.ParentScopeID {
			scope.ParentSkipLevels = d - depth
			return parent, d
		}
	}
}

// scopeChain returns the lexical chain of the running code, innermost first.
// The global scope is not included.
func (c *CPU) scopeChain() []*VariableScope {
	var chain []*VariableScope
	scope, depth := c.innermostScope()
	for scope != nil {
		chain = append(chain, scope)
		scope, depth = c.lexicalParent(scope, depth)
	}
	return chain
}

func (c *CPU) findVariable(name string) (*Variable, *VariableScope) {
	scope, depth := c.innermostScope()
	for scope != nil {
		if v, ok := scope.Get(name); ok {
			return v, scope
		}
		scope, depth = c.lexicalParent(scope, depth)
	}
	if v, ok := c.globals.Get(name); ok {
		return v, c.globals
	}
	return nil, nil
}

// GetNestedDictionary returns the scope that declares name as seen from the
// running code, or nil when nothing does.
func (c *CPU) GetNestedDictionary(name string) *VariableScope {
	_, scope := c.findVariable(name)
	return scope
}

// ---------------------------------------------------------------------------
// Variable API
// ---------------------------------------------------------------------------

// VariableExists reports whether name resolves from the running code.
func (c *CPU) VariableExists(name string) bool {
	v, _ := c.findVariable(name)
	return v != nil
}

// GetValue resolves name. When barewordOkay is set an unknown identifier
// evaluates to its own name.
func (c *CPU) GetValue(name string, barewordOkay bool) (any, error) {
	v, _ := c.findVariable(name)
	if v == nil {
		if barewordOkay {
			return name, nil
		}
		return nil, &UndefinedIdentifierError{Name: name}
	}
	return v.Value(), nil
}

// SetValue assigns to the variable name resolves to, creating a global when
// it resolves to nothing.
func (c *CPU) SetValue(name string, value any) error {
	if v, _ := c.findVariable(name); v != nil {
		return v.SetValue(value)
	}
	c.globals.Add(NewVariable(name, value))
	return nil
}

// SetNewLocal declares name in the innermost scope (the global scope at top
// level), shadowing anything outside it.
func (c *CPU) SetNewLocal(name string, value any) error {
	scope, _ := c.innermostScope()
	if scope == nil {
		scope = c.globals
	}
	if existing, ok := scope.Get(name); ok {
		if existing.IsBound() {
			return existing.SetValue(value)
		}
	}
	scope.Add(NewVariable(name, value))
	return nil
}

// SetGlobal assigns name in the global scope regardless of locals.
func (c *CPU) SetGlobal(name string, value any) error {
	if v, ok := c.globals.Get(name); ok {
		return v.SetValue(value)
	}
	c.globals.Add(NewVariable(name, value))
	return nil
}

// AddBoundVariable installs a host-bound global.
func (c *CPU) AddBoundVariable(name string, get func() any, set func(any) error) {
	c.globals.Add(NewBoundVariable(name, get, set))
}

// RemoveVariable deletes the variable name resolves to. Bound variables
// survive unless force is set. Removing an unknown name is not an error.
func (c *CPU) RemoveVariable(name string, force bool) error {
	v, scope := c.findVariable(name)
	if v == nil {
		return nil
	}
	if v.IsBound() && !force {
		return Errorf("cannot remove bound variable '%s'", v.Name)
	}
	scope.Remove(name)
	v.Release()
	return nil
}
