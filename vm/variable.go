package vm

// ---------------------------------------------------------------------------
// Scope observation
// ---------------------------------------------------------------------------

// ScopeObserver is implemented by values that want to know when the last
// variable holding them goes away (a drawn vector that should vanish, a GUI
// widget that should close). Variables keep the link count; the value only
// stores it.
type ScopeObserver interface {
	ScopeLinkCount() int
	SetScopeLinkCount(n int)
	ScopeLost()
}

// ScopeLink is an embeddable ScopeObserver. OnLost runs at most once, even
// if the value is linked again after being lost.
type ScopeLink struct {
	OnLost func()

	links int
	lost  bool
}

func (l *ScopeLink) ScopeLinkCount() int { return l.links }

func (l *ScopeLink) SetScopeLinkCount(n int) { l.links = n }

func (l *ScopeLink) ScopeLost() {
	if l.lost {
		return
	}
	l.lost = true
	if l.OnLost != nil {
		l.OnLost()
	}
}

// IsScopeLost reports whether the notification has fired.
func (l *ScopeLink) IsScopeLost() bool { return l.lost }

func linkScope(v any) {
	if o, ok := v.(ScopeObserver); ok {
		o.SetScopeLinkCount(o.ScopeLinkCount() + 1)
	}
}

func unlinkScope(v any) {
	o, ok := v.(ScopeObserver)
	if !ok {
		return
	}
	n := o.ScopeLinkCount() - 1
	if n < 0 {
		n = 0
	}
	o.SetScopeLinkCount(n)
	if n == 0 {
		o.ScopeLost()
	}
}

// ---------------------------------------------------------------------------
// Variable
// ---------------------------------------------------------------------------

// Variable is a named value cell. A bound variable delegates to host-supplied
// accessors instead of storing a value.
type Variable struct {
	Name string

	value  any
	getter func() any
	setter func(any) error
}

// NewVariable creates a plain variable holding v.
func NewVariable(name string, v any) *Variable {
	linkScope(v)
	return &Variable{Name: name, value: v}
}

// NewBoundVariable creates a host-bound variable. A nil setter makes it
// read-only.
func NewBoundVariable(name string, get func() any, set func(any) error) *Variable {
	return &Variable{Name: name, getter: get, setter: set}
}

// IsBound reports whether the variable is backed by host accessors.
func (v *Variable) IsBound() bool {
	return v.getter != nil
}

// Value returns the current value.
func (v *Variable) Value() any {
	if v.getter != nil {
		return v.getter()
	}
	return v.value
}

// SetValue stores val, maintaining scope-observer link counts.
func (v *Variable) SetValue(val any) error {
	if v.getter != nil {
		if v.setter == nil {
			return Errorf("'%s' is read-only", v.Name)
		}
		return v.setter(val)
	}
	old := v.value
	// Link first so reassigning the same observer never touches zero.
	linkScope(val)
	v.value = val
	unlinkScope(old)
	return nil
}

// Release drops the held value, unlinking it. Called when the variable is
// removed or its scope is torn down.
func (v *Variable) Release() {
	if v.getter != nil {
		return
	}
	old := v.value
	v.value = nil
	unlinkScope(old)
}
