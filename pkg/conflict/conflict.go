// Package conflict picks one version and one scope per artifact in a raw
// dependency graph.
//
// Versions are chosen nearest-wins: the occurrence closest to the root wins,
// and among equally near occurrences the first in breadth-first order. Only
// winners are expanded further, so a subtree hanging below a losing edge
// never claims a version. Scopes follow the same nearest rule and are then
// widened to the widest scope any non-optional path needs, using an
// [artifact.ScopeTable]. Groups that are only reachable through optional
// dependencies are dropped.
//
// Losing edges stay in the graph, marked with their [graph.Omission], so the
// full tree can still be rendered.
package conflict

import (
	"io"

	"github.com/charmbracelet/log"

	"github.com/matzehuels/depot/pkg/artifact"
	"github.com/matzehuels/depot/pkg/errors"
	"github.com/matzehuels/depot/pkg/graph"
)

// Options tune a [Resolver].
type Options struct {
	// IncludeOptional keeps groups that are optional on every path.
	IncludeOptional bool
}

// Resolver resolves conflicts in a collected graph. It is not safe to run
// on a graph that is still being collected.
type Resolver struct {
	Scopes  *artifact.ScopeTable
	Logger  *log.Logger
	Options Options
}

// New returns a resolver using scopes, or the default table when nil.
func New(scopes *artifact.ScopeTable, logger *log.Logger) *Resolver {
	return &Resolver{Scopes: scopes, Logger: logger}
}

// Conflict records a group that had more than one occurrence.
type Conflict struct {
	Key    string
	Winner graph.EdgeID
	Losers []graph.EdgeID
}

// Resolution is the winning set.
type Resolution struct {
	// Winners are the included edges in breadth-first order. The root edge
	// is listed first when it names an artifact.
	Winners []graph.EdgeID
	// Artifacts and Dependencies correspond to Winners one to one; the
	// dependencies carry the resolved scope and optional flag.
	Artifacts    []artifact.Artifact
	Dependencies []artifact.Dependency
	Conflicts    []Conflict
}

// occurrence is one visit of an edge during the breadth-first pass.
type occurrence struct {
	edge     *graph.Edge
	depth    int
	scope    artifact.Scope
	optional bool
}

type pass struct {
	winners  map[string]*occurrence
	order    []string // group keys by first reach
	occs     map[string][]*occurrence
	losers   map[graph.EdgeID]graph.EdgeID
	dropped  map[graph.EdgeID]bool
	winOrder []*occurrence
}

// Resolve marks every edge of g below root as included or omitted and
// returns the winners. Edges cut as cycles by the collector stay cut.
func (r *Resolver) Resolve(g *graph.Graph, root graph.EdgeID) (*Resolution, error) {
	if g == nil || root < 0 || int(root) >= g.EdgeCount() {
		return nil, errors.New(errors.ErrCodeUsage, "conflict resolution needs a graph and a valid root edge")
	}
	scopes := r.Scopes
	if scopes == nil {
		scopes = artifact.DefaultScopeTable()
	}
	logger := r.Logger
	if logger == nil {
		logger = log.NewWithOptions(io.Discard, log.Options{})
	}

	excluded := map[string]bool{}
	var p *pass
	// Dropping an optional-only group can strand further groups behind it,
	// so repeat until no group is added. Each round adds at least one key.
	for {
		p = r.walk(g, root, scopes, excluded)
		added := false
		if !r.Options.IncludeOptional {
			for _, k := range p.order {
				if excluded[k] || !allOptional(p.occs[k]) {
					continue
				}
				logger.Debug("optional group dropped", "key", k)
				excluded[k] = true
				added = true
			}
		}
		if !added {
			break
		}
	}
	return r.mark(g, root, scopes, p, excluded, logger), nil
}

// walk runs one breadth-first pass, expanding only winners.
func (r *Resolver) walk(g *graph.Graph, root graph.EdgeID, scopes *artifact.ScopeTable, excluded map[string]bool) *pass {
	p := &pass{
		winners: map[string]*occurrence{},
		occs:    map[string][]*occurrence{},
		losers:  map[graph.EdgeID]graph.EdgeID{},
		dropped: map[graph.EdgeID]bool{},
	}
	re := g.Edge(root)
	rootOcc := &occurrence{edge: re, scope: re.Dependency.Scope.OrDefault()}
	if hasArtifact(re) {
		k := re.Dependency.Artifact.Key()
		p.winners[k] = rootOcc
		p.order = append(p.order, k)
		p.occs[k] = []*occurrence{rootOcc}
		p.winOrder = append(p.winOrder, rootOcc)
	}

	expanded := map[graph.EdgeID]bool{root: true}
	level := r.children(g, rootOcc, scopes)
	for len(level) > 0 {
		p.choose(level)
		var next []*occurrence
		for _, o := range level {
			k := o.edge.Dependency.Artifact.Key()
			switch {
			case excluded[k]:
				p.dropped[o.edge.ID] = true
			case p.winners[k].edge != o.edge:
				if _, seen := p.losers[o.edge.ID]; !seen {
					p.losers[o.edge.ID] = p.winners[k].edge.ID
				}
			case !expanded[o.edge.ID]:
				expanded[o.edge.ID] = true
				next = append(next, r.children(g, o, scopes)...)
			}
		}
		level = next
	}
	return p
}

// choose records the level's occurrences and picks winners for groups
// first reached on this level. The first occurrence wins, except that a
// range loses to a pinned version it contains at the same depth.
func (p *pass) choose(level []*occurrence) {
	fresh := map[string][]*occurrence{}
	var keys []string
	for _, o := range level {
		k := o.edge.Dependency.Artifact.Key()
		if _, ok := p.occs[k]; !ok {
			p.order = append(p.order, k)
		}
		p.occs[k] = append(p.occs[k], o)
		if _, ok := p.winners[k]; ok {
			continue
		}
		if _, ok := fresh[k]; !ok {
			keys = append(keys, k)
		}
		fresh[k] = append(fresh[k], o)
	}
	for _, k := range keys {
		cands := fresh[k]
		w := cands[0]
		if w.edge.Constraint.IsRange() {
			for _, c := range cands[1:] {
				if !c.edge.Constraint.IsRange() && !c.edge.Version.IsZero() && w.edge.Constraint.Contains(c.edge.Version) {
					w = c
					break
				}
			}
		}
		p.winners[k] = w
		p.winOrder = append(p.winOrder, w)
	}
}

// children returns the occurrences below o, skipping cycle edges.
func (r *Resolver) children(g *graph.Graph, o *occurrence, scopes *artifact.ScopeTable) []*occurrence {
	var out []*occurrence
	for _, id := range g.Children(o.edge.ID) {
		e := g.Edge(id)
		if e.Omitted == graph.OmittedCycle {
			continue
		}
		c := &occurrence{edge: e, depth: o.depth + 1, scope: e.Dependency.Scope.OrDefault(), optional: o.optional}
		if c.depth > 1 {
			c.scope = scopes.Derive(o.scope, e.Dependency.Scope)
			c.optional = c.optional || e.Dependency.Optional
		}
		out = append(out, c)
	}
	return out
}

func allOptional(occs []*occurrence) bool {
	for _, o := range occs {
		if !o.optional {
			return false
		}
	}
	return len(occs) > 0
}

func hasArtifact(e *graph.Edge) bool { return e.Dependency.Artifact.ArtifactID != "" }

// mark writes the outcome of the final pass onto the graph.
func (r *Resolver) mark(g *graph.Graph, root graph.EdgeID, scopes *artifact.ScopeTable, p *pass, excluded map[string]bool, logger *log.Logger) *Resolution {
	win := map[graph.EdgeID]bool{root: true}
	for _, w := range p.winOrder {
		if !excluded[w.edge.Dependency.Artifact.Key()] {
			win[w.edge.ID] = true
		}
	}
	for _, e := range g.Edges() {
		e.Data.Delete(graph.KeyWinner)
		e.Data.Delete(graph.KeyConflictGroup)
		switch {
		case e.Omitted == graph.OmittedCycle:
		case win[e.ID]:
			e.Omitted = graph.Included
		case p.dropped[e.ID]:
			e.Omitted = graph.OmittedOptional
		default:
			if w, ok := p.losers[e.ID]; ok {
				e.Omitted = graph.OmittedConflict
				e.Data.Set(graph.KeyWinner, w)
			} else {
				e.Omitted = graph.OmittedUnreachable
			}
		}
	}

	res := &Resolution{}
	for _, w := range p.winOrder {
		k := w.edge.Dependency.Artifact.Key()
		if excluded[k] {
			continue
		}
		e := w.edge
		if e.ID != root {
			e.SetScope(r.scope(scopes, w, p.occs[k]))
			if w.depth > 1 {
				e.Dependency = e.Dependency.SetOptional(w.optional)
			}
		}
		n := g.Node(e.Target)
		n.Dependency = e.Dependency
		graph.SetNodeState(n, graph.ConflictResolved)

		res.Winners = append(res.Winners, e.ID)
		res.Artifacts = append(res.Artifacts, e.Dependency.Artifact)
		res.Dependencies = append(res.Dependencies, e.Dependency)

		occs := p.occs[k]
		if len(occs) > 1 {
			c := Conflict{Key: k, Winner: e.ID}
			for _, o := range occs {
				o.edge.Data.Set(graph.KeyConflictGroup, k)
				if o.edge != e {
					c.Losers = append(c.Losers, o.edge.ID)
				}
			}
			if len(c.Losers) > 0 {
				res.Conflicts = append(res.Conflicts, c)
				logger.Debug("conflict", "key", k, "winner", e.Dependency.Artifact.Version, "losers", len(c.Losers))
			}
		}
	}
	return res
}

// scope is the winner's nearest scope widened by every other non-optional
// occurrence. Direct dependencies keep their declared scope.
func (r *Resolver) scope(scopes *artifact.ScopeTable, w *occurrence, occs []*occurrence) artifact.Scope {
	s := w.scope
	if w.depth == 1 {
		return s
	}
	for _, o := range occs {
		if o.optional && !r.Options.IncludeOptional {
			continue
		}
		s = scopes.Widest(s, o.scope)
	}
	return s
}
