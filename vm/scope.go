package vm

import (
	"sort"
	"strings"
	"sync"
	"unicode/utf8"

	"golang.org/x/text/cases"
)

// GlobalScopeID is the id of the single global scope. A scope whose parent
// id is GlobalScopeID resolves straight to the global scope.
const GlobalScopeID = 0

// VariableScope is one lexical block's variables. ParentScopeID names the
// lexical parent, which may sit anywhere below this scope on the scope
// stack.
type VariableScope struct {
	ScopeID       int
	ParentScopeID int

	// IsClosure is set once a delegate has captured the scope. A captured
	// scope outlives its stack entries until every capture is dropped.
	IsClosure bool

	// ParentSkipLevels remembers how many scope stack entries separated
	// this scope from its parent on the last lookup.
	ParentSkipLevels int

	variables map[string]*Variable

	captures int // delegates holding the scope
	pushes   int // scope stack entries referring to the scope
}

// NewVariableScope creates an empty scope.
func NewVariableScope(id, parentID int) *VariableScope {
	return &VariableScope{
		ScopeID:       id,
		ParentScopeID: parentID,
		variables:     make(map[string]*Variable),
	}
}

// A Caser keeps state between calls and is not safe for concurrent use.
var folders = sync.Pool{New: func() any {
	c := cases.Fold()
	return &c
}}

// FoldCase returns the case-insensitive form of s used for identifiers and
// string comparison.
func FoldCase(s string) string {
	for i := 0; i < len(s); i++ {
		if s[i] >= utf8.RuneSelf {
			c := folders.Get().(*cases.Caser)
			defer folders.Put(c)
			return c.String(s)
		}
	}
	return strings.ToLower(s)
}

func foldName(name string) string {
	return FoldCase(name)
}

// Get returns the variable called name.
func (s *VariableScope) Get(name string) (*Variable, bool) {
	v, ok := s.variables[foldName(name)]
	return v, ok
}

// Contains reports whether name is declared in this scope.
func (s *VariableScope) Contains(name string) bool {
	_, ok := s.variables[foldName(name)]
	return ok
}

// Add declares v, replacing (and releasing) any previous variable of the
// same name.
func (s *VariableScope) Add(v *Variable) {
	key := foldName(v.Name)
	if old, ok := s.variables[key]; ok && old != v {
		old.Release()
	}
	s.variables[key] = v
}

// Remove deletes name without releasing it and returns what was removed.
func (s *VariableScope) Remove(name string) (*Variable, bool) {
	key := foldName(name)
	v, ok := s.variables[key]
	if ok {
		delete(s.variables, key)
	}
	return v, ok
}

// Len returns the number of declared variables.
func (s *VariableScope) Len() int {
	return len(s.variables)
}

// Names returns the declared names in sorted order.
func (s *VariableScope) Names() []string {
	names := make([]string, 0, len(s.variables))
	for _, v := range s.variables {
		names = append(names, v.Name)
	}
	sort.Strings(names)
	return names
}

// Retain records a capture of the scope.
func (s *VariableScope) Retain() {
	s.captures++
	s.IsClosure = true
}

// Unretain drops a capture. The scope is released once it is neither
// captured nor on the scope stack.
func (s *VariableScope) Unretain() {
	if s.captures > 0 {
		s.captures--
	}
	s.releaseIfUnused()
}

// Captures returns the number of live captures.
func (s *VariableScope) Captures() int {
	return s.captures
}

func (s *VariableScope) releaseIfUnused() {
	if s.captures == 0 && s.pushes == 0 {
		s.Release()
	}
}

// Release tears the scope down, unlinking every variable's value.
func (s *VariableScope) Release() {
	for key, v := range s.variables {
		v.Release()
		delete(s.variables, key)
	}
}
