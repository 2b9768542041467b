// Package scope tracks the lexical blocks of a query while it is parsed and
// the variables each block declares.
package scope

import (
	"sort"

	perrors "github.com/sambeau/aql/pkg/aql/errors"
)

// Kind enumerates the block types a query can open.
type Kind uint8

const (
	KindMain     Kind = iota // top-level query body
	KindSubquery             // parenthesized query body
	KindFor                  // opened by FOR, closed with its body
	KindCollect              // opened by COLLECT, hides earlier loop variables
)

func (k Kind) String() string {
	switch k {
	case KindMain:
		return "main"
	case KindSubquery:
		return "subquery"
	case KindFor:
		return "for"
	case KindCollect:
		return "collect"
	default:
		return "invalid"
	}
}

// isBody reports whether k starts a query body rather than nesting inside one.
func (k Kind) isBody() bool {
	return k == KindMain || k == KindSubquery
}

// Scope is one lexical block.
type Scope struct {
	Kind      Kind
	Depth     int
	variables map[string]int32
	order     []string
}

// DuplicateVariableError reports a name declared twice in the same scope.
type DuplicateVariableError struct {
	Name string
}

func (e *DuplicateVariableError) Error() string {
	return "variable '" + e.Name + "' is assigned multiple times"
}

// Tracker is the stack of open scopes for one parse. The zero value is
// ready to use.
type Tracker struct {
	scopes []*Scope
}

// New returns an empty tracker.
func New() *Tracker {
	return &Tracker{}
}

// Enter opens a scope of the given kind.
func (t *Tracker) Enter(kind Kind) *Scope {
	s := &Scope{
		Kind:      kind,
		Depth:     len(t.scopes),
		variables: make(map[string]int32),
	}
	t.scopes = append(t.scopes, s)
	return s
}

// Leave closes the innermost scope.
func (t *Tracker) Leave() *Scope {
	perrors.Assert(len(t.scopes) > 0, "scope left with no open scope")
	s := t.scopes[len(t.scopes)-1]
	t.scopes = t.scopes[:len(t.scopes)-1]
	return s
}

// LeaveNested closes every For and Collect scope opened inside the current
// query body, innermost first, and returns how many were closed.
func (t *Tracker) LeaveNested() int {
	n := 0
	for len(t.scopes) > 0 && !t.scopes[len(t.scopes)-1].Kind.isBody() {
		t.Leave()
		n++
	}
	return n
}

// Current returns the innermost open scope, or nil.
func (t *Tracker) Current() *Scope {
	if len(t.scopes) == 0 {
		return nil
	}
	return t.scopes[len(t.scopes)-1]
}

// NumActive returns the number of open scopes.
func (t *Tracker) NumActive() int {
	return len(t.scopes)
}

// Depth returns the index of the innermost scope, or -1 when none is open.
func (t *Tracker) Depth() int {
	return len(t.scopes) - 1
}

// Declare adds a variable to the current scope. Shadowing a name from an
// enclosing scope is allowed.
func (t *Tracker) Declare(name string, node int32) error {
	s := t.Current()
	perrors.Assert(s != nil, "variable %q declared with no open scope", name)

	if _, exists := s.variables[name]; exists {
		return &DuplicateVariableError{Name: name}
	}
	s.variables[name] = node
	s.order = append(s.order, name)
	return nil
}

// Lookup finds the innermost declaration of name that is visible from the
// current scope. A Collect scope hides the loop variables declared between
// it and the enclosing query body.
func (t *Tracker) Lookup(name string) (int32, bool) {
	hidden := false
	for i := len(t.scopes) - 1; i >= 0; i-- {
		s := t.scopes[i]
		if s.Kind.isBody() {
			hidden = false
		}
		if !hidden {
			if h, ok := s.variables[name]; ok {
				return h, true
			}
		}
		if s.Kind == KindCollect {
			hidden = true
		}
	}
	return 0, false
}

// IsInSubquery reports whether any subquery scope is open.
func (t *Tracker) IsInSubquery() bool {
	for _, s := range t.scopes {
		if s.Kind == KindSubquery {
			return true
		}
	}
	return false
}

// VariableNames returns the sorted names visible from the current scope.
func (t *Tracker) VariableNames() []string {
	seen := make(map[string]bool)
	var names []string
	for _, s := range t.scopes {
		for _, name := range s.order {
			if _, ok := t.Lookup(name); ok && !seen[name] {
				seen[name] = true
				names = append(names, name)
			}
		}
	}
	sort.Strings(names)
	return names
}
