package artifact

import (
	"slices"

	"github.com/matzehuels/depot/pkg/errors"
)

// Scope controls on which classpaths a dependency is visible.
type Scope string

const (
	ScopeCompile  Scope = "compile"
	ScopeProvided Scope = "provided"
	ScopeRuntime  Scope = "runtime"
	ScopeTest     Scope = "test"
	ScopeSystem   Scope = "system"
)

// OrDefault maps the empty scope to compile.
func (s Scope) OrDefault() Scope {
	if s == "" {
		return ScopeCompile
	}
	return s
}

// DefaultScopeOrder lists scopes from widest to narrowest.
var DefaultScopeOrder = []Scope{ScopeCompile, ScopeRuntime, ScopeProvided, ScopeSystem, ScopeTest}

// ScopeTable is a configurable scope dominance ordering. Scopes earlier in
// the order dominate (are wider than) later ones. Unknown scopes rank after
// every known scope.
//
// A ScopeTable is immutable and safe for concurrent use.
type ScopeTable struct {
	order []Scope
	rank  map[Scope]int
}

// NewScopeTable builds a table from order, widest first. Duplicate or empty
// entries are rejected.
func NewScopeTable(order []Scope) (*ScopeTable, error) {
	if len(order) == 0 {
		return nil, errors.New(errors.ErrCodeInvalidConfig, "scope order cannot be empty")
	}
	rank := make(map[Scope]int, len(order))
	for i, s := range order {
		if s == "" {
			return nil, errors.New(errors.ErrCodeInvalidConfig, "scope order contains an empty scope")
		}
		if _, dup := rank[s]; dup {
			return nil, errors.New(errors.ErrCodeInvalidConfig, "scope %q listed twice", s)
		}
		rank[s] = i
	}
	return &ScopeTable{order: slices.Clone(order), rank: rank}, nil
}

// DefaultScopeTable returns the table for [DefaultScopeOrder].
func DefaultScopeTable() *ScopeTable {
	t, _ := NewScopeTable(DefaultScopeOrder)
	return t
}

// Order returns a copy of the ordering, widest first.
func (t *ScopeTable) Order() []Scope { return slices.Clone(t.order) }

// Rank returns the position of s; lower is wider.
func (t *ScopeTable) Rank(s Scope) int {
	if r, ok := t.rank[s.OrDefault()]; ok {
		return r
	}
	return len(t.order)
}

// Widest returns whichever of a and b dominates. Ties keep a.
func (t *ScopeTable) Widest(a, b Scope) Scope {
	if t.Rank(b) < t.Rank(a) {
		return b.OrDefault()
	}
	return a.OrDefault()
}

// Derive computes the effective scope of a transitive dependency declared
// with child scope below a parent resolved with parent scope:
//   - test and provided parents pin their subtree to their own scope
//   - a runtime parent demotes compile children to runtime
//   - otherwise the child keeps its declared scope
func (t *ScopeTable) Derive(parent, child Scope) Scope {
	parent, child = parent.OrDefault(), child.OrDefault()
	switch parent {
	case ScopeTest, ScopeProvided:
		return parent
	case ScopeRuntime:
		if child == ScopeCompile {
			return ScopeRuntime
		}
	}
	return child
}
