package conflict

import (
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/matzehuels/depot/pkg/artifact"
	"github.com/matzehuels/depot/pkg/errors"
	"github.com/matzehuels/depot/pkg/graph"
	"github.com/matzehuels/depot/pkg/version"
)

// builder assembles raw graphs the way the collector leaves them.
type builder struct {
	g *graph.Graph
}

func newBuilder(rootCoord string) (*builder, graph.EdgeID) {
	b := &builder{g: graph.New()}
	var d artifact.Dependency
	if rootCoord != "" {
		d = artifact.NewDependency(artifact.MustParse(rootCoord), "")
	}
	n := b.g.AddNode(d)
	e := b.g.AddEdge(graph.NoNode, n.ID, d)
	b.g.SetRoot(e.ID)
	return b, e.ID
}

// add appends "g:a:v[@scope][?]" below parent. A version written
// "range=chosen" yields a range constraint resolved to chosen.
func (b *builder) add(parent graph.EdgeID, entry string) graph.EdgeID {
	optional := strings.HasSuffix(entry, "?")
	entry = strings.TrimSuffix(entry, "?")
	coord, scope, _ := strings.Cut(entry, "@")
	i := strings.LastIndex(coord, ":")
	ver, chosen, isRange := strings.Cut(coord[i+1:], "=")
	if !isRange {
		chosen = ver
	}
	a := artifact.MustParse(coord[:i+1] + chosen)
	d := artifact.NewDependency(a, artifact.Scope(scope)).SetOptional(optional)

	pe := b.g.Edge(parent)
	n := b.g.AddNode(d)
	e := b.g.AddEdge(pe.Target, n.ID, d)
	e.Depth = pe.Depth + 1
	e.Constraint = version.MustParseConstraint(ver)
	e.Version = version.MustParse(chosen)
	return e.ID
}

func resolve(t *testing.T, b *builder, root graph.EdgeID, opts Options) *Resolution {
	t.Helper()
	r := New(nil, nil)
	r.Options = opts
	res, err := r.Resolve(b.g, root)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	return res
}

func coords(res *Resolution) []string {
	var out []string
	for _, d := range res.Dependencies {
		out = append(out, d.Artifact.ID()+":"+d.Artifact.Version+"@"+string(d.Scope.OrDefault()))
	}
	return out
}

func TestResolve_DiamondNearestWins(t *testing.T) {
	b, root := newBuilder("")
	a := b.add(root, "g:a:1")
	bb := b.add(root, "g:b:1")
	c1 := b.add(a, "g:c:1")
	d := b.add(bb, "g:d:1")
	c2 := b.add(d, "g:c:2")

	res := resolve(t, b, root, Options{})
	want := []string{"g:a:1@compile", "g:b:1@compile", "g:c:1@compile", "g:d:1@compile"}
	if diff := cmp.Diff(want, coords(res)); diff != "" {
		t.Errorf("winners mismatch (-want +got):\n%s", diff)
	}
	loser := b.g.Edge(c2)
	if loser.Omitted != graph.OmittedConflict {
		t.Errorf("c:2 omission = %v", loser.Omitted)
	}
	if w, _ := graph.Lookup[graph.EdgeID](loser.Data, graph.KeyWinner); w != c1 {
		t.Errorf("c:2 winner = %d, want %d", w, c1)
	}
	if len(b.g.Children(c2)) != 0 {
		t.Error("loser lost its position in the raw graph")
	}
	if diff := cmp.Diff([]Conflict{{Key: "g:c:jar", Winner: c1, Losers: []graph.EdgeID{c2}}}, res.Conflicts); diff != "" {
		t.Errorf("Conflicts mismatch (-want +got):\n%s", diff)
	}
}

func TestResolve_TieBreaksByDeclarationOrder(t *testing.T) {
	b, root := newBuilder("")
	a := b.add(root, "g:a:1")
	bb := b.add(root, "g:b:1")
	b.add(a, "g:c:1")
	b.add(bb, "g:c:2")

	res := resolve(t, b, root, Options{})
	if got := coords(res)[2]; got != "g:c:1@compile" {
		t.Errorf("tie winner = %s, want the first declared", got)
	}
}

func TestResolve_LoserSubtreeIsUnreachable(t *testing.T) {
	b, root := newBuilder("")
	x := b.add(root, "g:x:1")
	a1 := b.add(x, "g:a:1")
	c1 := b.add(a1, "g:c:1")
	b.add(root, "g:a:2")
	y := b.add(root, "g:y:1")
	z := b.add(y, "g:z:1")
	w := b.add(z, "g:w:1")
	c2 := b.add(w, "g:c:2")

	res := resolve(t, b, root, Options{})
	want := []string{"g:x:1@compile", "g:a:2@compile", "g:y:1@compile", "g:z:1@compile", "g:w:1@compile", "g:c:2@compile"}
	if diff := cmp.Diff(want, coords(res)); diff != "" {
		t.Errorf("winners mismatch (-want +got):\n%s", diff)
	}
	if b.g.Edge(c1).Omitted != graph.OmittedUnreachable {
		t.Errorf("c:1 below a loser = %v, want unreachable", b.g.Edge(c1).Omitted)
	}
	if !b.g.Edge(c2).IsIncluded() {
		t.Error("deeper c:2 not included")
	}
}

func TestResolve_CycleEdgesStayCut(t *testing.T) {
	b, root := newBuilder("g:a:1")
	bb := b.add(root, "g:b:1")
	back := b.add(bb, "g:a:1")
	b.g.Edge(back).Omitted = graph.OmittedCycle

	res := resolve(t, b, root, Options{})
	if diff := cmp.Diff([]string{"g:a:1@compile", "g:b:1@compile"}, coords(res)); diff != "" {
		t.Errorf("winners mismatch (-want +got):\n%s", diff)
	}
	if b.g.Edge(back).Omitted != graph.OmittedCycle {
		t.Errorf("cycle edge = %v", b.g.Edge(back).Omitted)
	}
	if res.Winners[0] != root {
		t.Error("root artifact is not the first winner")
	}
}

func TestResolve_ScopeWidening(t *testing.T) {
	b, root := newBuilder("")
	x := b.add(root, "g:x:1@test")
	y := b.add(root, "g:y:1")
	b.add(x, "g:c:1")
	b.add(y, "g:c:1@runtime")

	res := resolve(t, b, root, Options{})
	want := []string{"g:x:1@test", "g:y:1@compile", "g:c:1@runtime"}
	if diff := cmp.Diff(want, coords(res)); diff != "" {
		t.Errorf("winners mismatch (-want +got):\n%s", diff)
	}
}

func TestResolve_DirectDependencyKeepsScope(t *testing.T) {
	b, root := newBuilder("")
	b.add(root, "g:c:1@test")
	y := b.add(root, "g:y:1")
	b.add(y, "g:c:1")

	res := resolve(t, b, root, Options{})
	if got := coords(res)[0]; got != "g:c:1@test" {
		t.Errorf("direct dependency = %s, want test scope kept", got)
	}
}

func TestResolve_CustomScopeOrder(t *testing.T) {
	b, root := newBuilder("")
	x := b.add(root, "g:x:1")
	y := b.add(root, "g:y:1")
	b.add(x, "g:c:1@runtime")
	b.add(y, "g:c:1@provided")

	order := []artifact.Scope{artifact.ScopeCompile, artifact.ScopeProvided, artifact.ScopeRuntime, artifact.ScopeSystem, artifact.ScopeTest}
	table, err := artifact.NewScopeTable(order)
	if err != nil {
		t.Fatal(err)
	}
	r := New(table, nil)
	res, err := r.Resolve(b.g, root)
	if err != nil {
		t.Fatal(err)
	}
	if got := coords(res)[2]; got != "g:c:1@provided" {
		t.Errorf("c = %s, want provided under the custom order", got)
	}
}

func TestResolve_OptionalOnlyGroupIsDropped(t *testing.T) {
	b, root := newBuilder("")
	a := b.add(root, "g:a:1")
	o := b.add(a, "g:o:1?")
	under := b.add(o, "g:u:1")

	res := resolve(t, b, root, Options{})
	if diff := cmp.Diff([]string{"g:a:1@compile"}, coords(res)); diff != "" {
		t.Errorf("winners mismatch (-want +got):\n%s", diff)
	}
	if b.g.Edge(o).Omitted != graph.OmittedOptional {
		t.Errorf("optional edge = %v", b.g.Edge(o).Omitted)
	}
	if b.g.Edge(under).Omitted != graph.OmittedUnreachable {
		t.Errorf("edge below optional = %v", b.g.Edge(under).Omitted)
	}

	res = resolve(t, b, root, Options{IncludeOptional: true})
	if len(res.Dependencies) != 3 || !res.Dependencies[1].Optional {
		t.Errorf("IncludeOptional winners = %v", coords(res))
	}
}

func TestResolve_OptionalOnOnePathOnly(t *testing.T) {
	b, root := newBuilder("")
	a := b.add(root, "g:a:1")
	bb := b.add(root, "g:b:1")
	b.add(a, "g:o:1?")
	b.add(bb, "g:o:1")

	res := resolve(t, b, root, Options{})
	if got := coords(res); len(got) != 3 || got[2] != "g:o:1@compile" {
		t.Errorf("winners = %v, want o kept", got)
	}
	if !res.Dependencies[2].Optional {
		t.Error("kept dependency did not inherit the optional flag of its nearest edge")
	}
}

func TestResolve_DroppingOptionalRevisitsStrandedGroups(t *testing.T) {
	b, root := newBuilder("")
	a := b.add(root, "g:a:1")
	o := b.add(a, "g:o:1?")
	m1 := b.add(o, "g:m:1")
	bb := b.add(root, "g:b:1")
	c := b.add(bb, "g:c:1")
	d := b.add(c, "g:d:1")
	m2 := b.add(d, "g:m:2")

	res := resolve(t, b, root, Options{})
	want := []string{"g:a:1@compile", "g:b:1@compile", "g:c:1@compile", "g:d:1@compile", "g:m:2@compile"}
	if diff := cmp.Diff(want, coords(res)); diff != "" {
		t.Errorf("winners mismatch (-want +got):\n%s", diff)
	}
	if b.g.Edge(m1).Omitted != graph.OmittedUnreachable || !b.g.Edge(m2).IsIncluded() {
		t.Errorf("m:1 = %v, m:2 = %v", b.g.Edge(m1).Omitted, b.g.Edge(m2).Omitted)
	}
}

func TestResolve_PinnedVersionBeatsRangeAtSameDepth(t *testing.T) {
	b, root := newBuilder("")
	a := b.add(root, "g:a:1")
	bb := b.add(root, "g:b:1")
	b.add(a, "g:c:[1,2)=1.9")
	pinned := b.add(bb, "g:c:1.5")

	res := resolve(t, b, root, Options{})
	if res.Winners[2] != pinned {
		t.Errorf("winner = %v, want the pinned 1.5", coords(res))
	}
}

func TestResolve_Idempotent(t *testing.T) {
	b, root := newBuilder("")
	a := b.add(root, "g:a:1")
	bb := b.add(root, "g:b:1")
	b.add(a, "g:c:1")
	b.add(bb, "g:c:2")

	first := coords(resolve(t, b, root, Options{}))
	second := coords(resolve(t, b, root, Options{}))
	if diff := cmp.Diff(first, second); diff != "" {
		t.Errorf("second run differs (-first +second):\n%s", diff)
	}
}

func TestResolve_InvalidInput(t *testing.T) {
	if _, err := New(nil, nil).Resolve(nil, 0); !errors.Is(err, errors.ErrCodeUsage) {
		t.Errorf("nil graph err = %v", err)
	}
	if _, err := New(nil, nil).Resolve(graph.New(), graph.NoEdge); !errors.Is(err, errors.ErrCodeUsage) {
		t.Errorf("no root err = %v", err)
	}
}
