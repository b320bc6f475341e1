package collect

import (
	"context"
	"slices"
	"strings"
	"sync"

	"github.com/charmbracelet/log"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/matzehuels/depot/pkg/artifact"
	"github.com/matzehuels/depot/pkg/errors"
	"github.com/matzehuels/depot/pkg/event"
	"github.com/matzehuels/depot/pkg/graph"
	"github.com/matzehuels/depot/pkg/repository"
	"github.com/matzehuels/depot/pkg/session"
	"github.com/matzehuels/depot/pkg/version"
)

type run struct {
	c       *Collector
	sess    *session.Session
	opts    Options
	log     *log.Logger
	manager *repository.Manager
	req     Request
	memo    *memo
	pins    management

	g         *graph.Graph
	res       *Result
	truncated bool
}

// frontier is an edge waiting for its descriptor, with the context its
// children inherit.
type frontier struct {
	edge *graph.Edge
	node *graph.Node
	// path holds the identifiers from the root down to this edge.
	path   []string
	excl   []artifact.Exclusion
	manage management
	repos  []repository.RemoteRepository
	noRead bool
}

// outcome is the result of reading one edge's descriptor, computed off the
// graph so it can run concurrently.
type outcome struct {
	artifact    artifact.Artifact
	constraint  version.Constraint
	version     version.Version
	relocations []artifact.Artifact
	desc        *Descriptor
	err         error
}

func (r *run) collect(ctx context.Context) (*Result, error) {
	root := r.pins.pin(managed{dep: r.req.Root}).dep
	rootNode := r.g.AddNode(root)
	rootEdge := r.g.AddEdge(graph.NoNode, rootNode.ID, root)
	rootEdge.SetRequestContext(r.req.RequestContext)
	r.g.SetRoot(rootEdge.ID)
	r.res.Graph, r.res.Root = r.g, rootEdge.ID

	level := []*frontier{{
		edge:   rootEdge,
		node:   rootNode,
		excl:   slices.Clone(root.Exclusions),
		manage: newManagement(r.req.Managed),
		repos:  r.manager.AggregateRepositories(nil, r.req.Repositories, true),
		noRead: !r.req.HasRoot(),
	}}
	if r.req.HasRoot() {
		level[0].path = []string{root.Artifact.ID()}
	}

	for len(level) > 0 {
		if err := ctx.Err(); err != nil {
			return r.res, err
		}
		outcomes, err := r.readLevel(ctx, level)
		if err != nil {
			return r.res, err
		}
		var next []*frontier
		for i, f := range level {
			kids, err := r.expand(f, outcomes[i])
			if err != nil {
				return r.res, err
			}
			next = append(next, kids...)
		}
		level = next
	}
	return r.res, nil
}

// readLevel reads the descriptors of one level on the worker pool. Results
// are returned in level order.
func (r *run) readLevel(ctx context.Context, level []*frontier) ([]outcome, error) {
	out := make([]outcome, len(level))
	eg, ctx := errgroup.WithContext(ctx)
	eg.SetLimit(r.opts.Workers)
	for i, f := range level {
		if f.noRead {
			continue
		}
		graph.SetNodeState(f.node, graph.DescriptorRequested)
		a, repos := f.edge.Dependency.Artifact, f.repos
		eg.Go(func() error {
			out[i] = r.memo.do(ctx, a, repos, func() outcome { return r.read(ctx, a, repos) })
			if err := ctx.Err(); err != nil {
				return err
			}
			if r.opts.FailFast && out[i].err != nil {
				return &DescriptorError{Artifact: a, Err: out[i].err}
			}
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		if de, ok := err.(*DescriptorError); ok {
			r.fail(de.Artifact, de.Err)
		}
		return nil, err
	}
	return out, nil
}

// read resolves a's version and follows relocations until a descriptor
// without one is found.
func (r *run) read(ctx context.Context, a artifact.Artifact, repos []repository.RemoteRepository) outcome {
	var o outcome
	v, cons, err := r.pickVersion(ctx, a, repos)
	if err != nil {
		o.err = err
		return o
	}
	a = a.SetVersion(v.String())
	o.constraint = cons
	for {
		desc, err := r.c.Reader.Read(ctx, r.sess, a, repos)
		if err != nil {
			o.err = err
			break
		}
		if desc.Relocation == nil {
			o.desc = desc
			break
		}
		to := *desc.Relocation
		if len(o.relocations) >= r.opts.MaxRelocations {
			o.err = errors.New(errors.ErrCodeRelocationLimit,
				"relocation chain starting at %s exceeds %d steps", first(o.relocations, a), r.opts.MaxRelocations)
			break
		}
		if to.String() == a.String() || slices.ContainsFunc(o.relocations, func(x artifact.Artifact) bool { return x.String() == to.String() }) {
			o.err = errors.New(errors.ErrCodeRelocationLimit, "relocation of %s loops back to %s", a, to)
			break
		}
		r.log.Debug("relocated", "from", a, "to", to)
		o.relocations = append(o.relocations, a)
		a = to
		if v, err = version.Parse(a.Version); err != nil {
			o.err = err
			break
		}
	}
	o.artifact, o.version = a, v
	return o
}

func first(chain []artifact.Artifact, fallback artifact.Artifact) artifact.Artifact {
	if len(chain) > 0 {
		return chain[0]
	}
	return fallback
}

// pickVersion returns the concrete version for a, consulting the version
// lister for ranges.
func (r *run) pickVersion(ctx context.Context, a artifact.Artifact, repos []repository.RemoteRepository) (version.Version, version.Constraint, error) {
	cons, err := version.ParseConstraint(a.Version)
	if err != nil {
		return version.Version{}, cons, err
	}
	if v, ok := cons.Version(); ok {
		return v, cons, nil
	}
	if r.c.Versions == nil {
		return version.Version{}, cons, errors.New(errors.ErrCodeUnsupported, "cannot resolve range %s of %s without a version lister", cons, a.ID())
	}
	available, err := r.c.Versions.Versions(ctx, r.sess, a, repos)
	if err != nil {
		return version.Version{}, cons, err
	}
	v, ok := cons.Select(available)
	if !ok {
		return version.Version{}, cons, errors.New(errors.ErrCodeNotFound, "no version of %s matches %s", a.ID(), cons)
	}
	r.log.Debug("range resolved", "artifact", a.ID(), "range", cons, "version", v)
	return v, cons, nil
}

// expand applies o to f's edge and creates its children. It returns the
// children that still need a descriptor.
func (r *run) expand(f *frontier, o outcome) ([]*frontier, error) {
	e, n := f.edge, f.node
	if f.noRead {
		graph.SetNodeState(n, graph.Expanded)
		return r.addChildren(f, f.manage, f.repos, r.req.Dependencies), nil
	}
	if o.err != nil {
		r.fail(e.Dependency.Artifact, o.err)
		graph.SetNodeState(n, graph.Expanded)
		return nil, nil
	}

	e.Relocations = slices.Clone(o.relocations)
	e.Constraint, e.Version = o.constraint, o.version
	if o.artifact.String() != e.Dependency.Artifact.String() {
		e.SetArtifact(o.artifact.SetFile(e.Dependency.Artifact.File))
	}
	n.Dependency = e.Dependency
	n.Repositories = f.repos
	n.Aliases = o.desc.Aliases

	if len(o.relocations) > 0 && slices.Contains(f.path[:len(f.path)-1], o.artifact.ID()) {
		r.markCycle(e, n, f.path[:len(f.path)-1], o.artifact.ID())
		return nil, nil
	}
	if len(f.path) > 0 {
		f.path[len(f.path)-1] = o.artifact.ID()
	}

	graph.SetNodeState(n, graph.Expanded)
	switch {
	case e.Depth >= r.opts.MaxDepth:
		r.log.Debug("depth limit reached", "artifact", o.artifact, "depth", e.Depth)
		return nil, nil
	case r.opts.SkipOptional && e.Depth > 1 && e.Dependency.Optional:
		return nil, nil
	}

	deps := o.desc.Dependencies
	if e.Depth == 0 {
		deps = mergeDirect(r.req.Dependencies, deps)
	}
	repos := r.manager.AggregateRepositories(f.repos, o.desc.Repositories, true)
	kids := r.addChildren(f, f.manage.with(o.desc.Managed), repos, deps)
	r.log.Debug("expanded", "artifact", o.artifact, "depth", e.Depth, "children", len(n.Out))
	return kids, nil
}

// mergeDirect puts the request's dependencies in front of the root
// descriptor's, dropping declarations they replace.
func mergeDirect(request, declared []artifact.Dependency) []artifact.Dependency {
	if len(request) == 0 {
		return declared
	}
	out := slices.Clone(request)
	for _, d := range declared {
		if !slices.ContainsFunc(request, func(x artifact.Dependency) bool { return x.Artifact.Key() == d.Artifact.Key() }) {
			out = append(out, d)
		}
	}
	return out
}

// addChildren adds an edge per surviving dependency below f. childManage is
// the management the children pass on to their own children.
func (r *run) addChildren(f *frontier, childManage management, repos []repository.RemoteRepository, deps []artifact.Dependency) []*frontier {
	depth := f.edge.Depth + 1
	var kids []*frontier
	for _, d := range deps {
		if depth > 1 && slices.Contains(r.opts.DropTransitive, d.Scope.OrDefault()) {
			continue
		}
		m := managed{dep: d}
		if depth > 1 || r.opts.ManageDirect {
			m = f.manage.apply(d)
		}
		m = r.pins.pin(m)
		d = m.dep
		if excludedBy(f.excl, d.Artifact) {
			r.log.Debug("excluded", "artifact", d.Artifact, "parent", f.edge.Dependency.Artifact)
			continue
		}
		if r.g.NodeCount() >= r.opts.MaxNodes {
			if !r.truncated {
				r.truncated = true
				r.res.Errors = append(r.res.Errors, errors.New(errors.ErrCodeResolution,
					"dependency graph truncated at %d nodes", r.opts.MaxNodes))
			}
			return kids
		}

		child := r.g.AddNode(d)
		ce := r.g.AddEdge(f.node.ID, child.ID, d)
		ce.Depth = depth
		ce.PremanagedScope, ce.PremanagedVersion = m.premanagedScope, m.premanagedVersion
		ce.SetRequestContext(f.edge.RequestContext())
		child.Repositories = repos

		id := d.Artifact.ID()
		if slices.Contains(f.path, id) {
			r.markCycle(ce, child, f.path, id)
			continue
		}
		if d.Scope == artifact.ScopeSystem {
			if v, err := version.Parse(d.Artifact.Version); err == nil {
				ce.Constraint, ce.Version = version.Exact(v), v
			}
			graph.SetNodeState(child, graph.Expanded)
			continue
		}
		kids = append(kids, &frontier{
			edge:   ce,
			node:   child,
			path:   append(slices.Clone(f.path), id),
			excl:   append(slices.Clone(f.excl), d.Exclusions...),
			manage: childManage,
			repos:  repos,
		})
	}
	return kids
}

func excludedBy(excl []artifact.Exclusion, a artifact.Artifact) bool {
	return slices.ContainsFunc(excl, func(x artifact.Exclusion) bool { return x.Matches(a) })
}

// markCycle cuts e: it stays in the graph, omitted and without children.
func (r *run) markCycle(e *graph.Edge, n *graph.Node, path []string, id string) {
	i := slices.Index(path, id)
	cycle := append(slices.Clone(path[i:]), id)
	e.Omitted = graph.OmittedCycle
	e.Data.Set(graph.KeyCycle, cycle)
	graph.SetNodeState(n, graph.CycleDetected)
	if v, err := version.ParseConstraint(e.Dependency.Artifact.Version); err == nil {
		e.Constraint = v
		e.Version, _ = v.Version()
	}
	r.res.Cycles = append(r.res.Cycles, cycle)
	r.log.Debug("cycle", "path", strings.Join(cycle, " -> "))
}

// fail records a descriptor error and tells the session listener.
func (r *run) fail(a artifact.Artifact, err error) {
	r.res.Errors = append(r.res.Errors, &DescriptorError{Artifact: a, Err: err})
	t := event.ArtifactDescriptorInvalid
	switch errors.GetCode(err) {
	case errors.ErrCodeDescriptorMissing, errors.ErrCodeNotFound:
		t = event.ArtifactDescriptorMissing
	}
	r.sess.Fire(event.New(t, event.WithArtifact(a), event.WithErrors(err)))
	r.log.Debug("descriptor failed", "artifact", a, "err", err)
}

// memo deduplicates descriptor reads of one collection run.
type memo struct {
	sf   singleflight.Group
	mu   sync.Mutex
	done map[string]outcome
}

func newMemo() *memo {
	return &memo{done: map[string]outcome{}}
}

func (m *memo) do(ctx context.Context, a artifact.Artifact, repos []repository.RemoteRepository, fn func() outcome) outcome {
	key := memoKey(a, repos)
	m.mu.Lock()
	o, ok := m.done[key]
	m.mu.Unlock()
	if ok {
		return o
	}
	v, _, _ := m.sf.Do(key, func() (any, error) {
		o := fn()
		if ctx.Err() == nil {
			m.mu.Lock()
			m.done[key] = o
			m.mu.Unlock()
		}
		return o, nil
	})
	return v.(outcome)
}

func memoKey(a artifact.Artifact, repos []repository.RemoteRepository) string {
	var b strings.Builder
	b.WriteString(a.String())
	for _, r := range repos {
		b.WriteByte('|')
		b.WriteString(r.ID)
	}
	return b.String()
}
