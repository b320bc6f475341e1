package collect

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/matzehuels/depot/pkg/artifact"
	"github.com/matzehuels/depot/pkg/errors"
	"github.com/matzehuels/depot/pkg/event"
	"github.com/matzehuels/depot/pkg/graph"
	"github.com/matzehuels/depot/pkg/repository"
	"github.com/matzehuels/depot/pkg/session"
	"github.com/matzehuels/depot/pkg/version"
)

// fakeReader serves descriptors from memory, keyed by full coordinate.
type fakeReader struct {
	mu       sync.Mutex
	descs    map[string]*Descriptor
	reads    map[string]int
	versions map[string][]string
}

func newFakeReader() *fakeReader {
	return &fakeReader{descs: map[string]*Descriptor{}, reads: map[string]int{}, versions: map[string][]string{}}
}

// add registers coord with the given dependencies. A dependency is written
// "g:a:v", optionally followed by "@scope" and "?" for optional.
func (f *fakeReader) add(coord string, deps ...string) *Descriptor {
	a := artifact.MustParse(coord)
	d := &Descriptor{Artifact: a}
	for _, s := range deps {
		d.Dependencies = append(d.Dependencies, parseDep(s))
	}
	f.descs[a.String()] = d
	return d
}

func parseDep(s string) artifact.Dependency {
	optional := strings.HasSuffix(s, "?")
	s = strings.TrimSuffix(s, "?")
	coord, scope, _ := strings.Cut(s, "@")
	return artifact.NewDependency(artifact.MustParse(coord), artifact.Scope(scope)).SetOptional(optional)
}

func (f *fakeReader) Read(ctx context.Context, sess *session.Session, a artifact.Artifact, repos []repository.RemoteRepository) (*Descriptor, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reads[a.String()]++
	d, ok := f.descs[a.String()]
	if !ok {
		return nil, errors.New(errors.ErrCodeDescriptorMissing, "no descriptor for %s", a)
	}
	return d, nil
}

func (f *fakeReader) Versions(ctx context.Context, sess *session.Session, a artifact.Artifact, repos []repository.RemoteRepository) ([]version.Version, error) {
	var out []version.Version
	for _, v := range f.versions[a.ID()] {
		out = append(out, version.MustParse(v))
	}
	return out, nil
}

func collectFrom(t *testing.T, r *fakeReader, opts Options, req Request) *Result {
	t.Helper()
	c := New(r, r, nil, nil)
	c.Options = opts
	res, err := c.Collect(context.Background(), nil, req)
	if err != nil {
		t.Fatalf("Collect: %v", err)
	}
	return res
}

func rootReq(deps ...string) Request {
	var req Request
	for _, d := range deps {
		req.Dependencies = append(req.Dependencies, parseDep(d))
	}
	return req
}

// tree renders the included and omitted edges below the root, one per line,
// indented by depth.
func tree(res *Result) string {
	var b strings.Builder
	graph.Walk(res.Graph, res.Root, func(e *graph.Edge) graph.Action {
		if e.Depth == 0 {
			return graph.Continue
		}
		fmt.Fprintf(&b, "%s%s", strings.Repeat("  ", e.Depth-1), e.Dependency.Artifact.ID()+":"+e.Dependency.Artifact.Version)
		if !e.IsIncluded() {
			fmt.Fprintf(&b, " (%s)", e.Omitted)
		}
		b.WriteByte('\n')
		return graph.Continue
	}, nil)
	return b.String()
}

func TestCollect_Diamond(t *testing.T) {
	r := newFakeReader()
	r.add("g:a:1", "g:c:1")
	r.add("g:b:1", "g:d:1")
	r.add("g:d:1", "g:c:2")
	r.add("g:c:1")
	r.add("g:c:2")

	res := collectFrom(t, r, Options{}, rootReq("g:a:1", "g:b:1"))
	want := "g:a:1\n  g:c:1\ng:b:1\n  g:d:1\n    g:c:2\n"
	if diff := cmp.Diff(want, tree(res)); diff != "" {
		t.Errorf("tree mismatch (-want +got):\n%s", diff)
	}
	if len(res.Errors) != 0 {
		t.Errorf("Errors = %v", res.Errors)
	}
	for _, e := range res.Graph.Edges()[1:] {
		if e.Version.IsZero() {
			t.Errorf("edge %s has no concrete version", e.Dependency.Artifact)
		}
	}
}

func TestCollect_Cycle(t *testing.T) {
	r := newFakeReader()
	r.add("g:a:1", "g:b:1")
	r.add("g:b:1", "g:a:1")

	res := collectFrom(t, r, Options{}, Request{Root: parseDep("g:a:1")})
	want := "g:b:1\n  g:a:1 (omitted for cycle)\n"
	if diff := cmp.Diff(want, tree(res)); diff != "" {
		t.Errorf("tree mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([][]string{{"g:a", "g:b", "g:a"}}, res.Cycles); diff != "" {
		t.Errorf("Cycles mismatch (-want +got):\n%s", diff)
	}
	var cyc *graph.Edge
	for _, e := range res.Graph.Edges() {
		if e.Omitted == graph.OmittedCycle {
			cyc = e
		}
	}
	n := res.Graph.Node(cyc.Target)
	if len(n.Out) != 0 || graph.NodeState(n) != graph.CycleDetected {
		t.Errorf("cycle node has %d children, state %v", len(n.Out), graph.NodeState(n))
	}
}

func TestCollect_SameCoordinateInSiblingsIsNotACycle(t *testing.T) {
	r := newFakeReader()
	r.add("g:a:1", "g:c:1")
	r.add("g:b:1", "g:c:1")
	r.add("g:c:1")

	res := collectFrom(t, r, Options{}, rootReq("g:a:1", "g:b:1"))
	if len(res.Cycles) != 0 {
		t.Errorf("Cycles = %v, want none", res.Cycles)
	}
	if r.reads["g:c:jar:1"] != 1 {
		t.Errorf("g:c read %d times, want 1", r.reads["g:c:jar:1"])
	}
}

func TestCollect_Exclusions(t *testing.T) {
	r := newFakeReader()
	r.add("g:a:1", "g:b:1")
	r.add("g:b:1", "g:c:1", "g:d:1")
	r.add("g:c:1", "g:e:1")
	r.add("g:d:1")
	r.add("g:e:1")

	req := rootReq("g:a:1")
	req.Dependencies[0] = req.Dependencies[0].SetExclusions([]artifact.Exclusion{{GroupID: "g", ArtifactID: "c"}})
	res := collectFrom(t, r, Options{}, req)
	want := "g:a:1\n  g:b:1\n    g:d:1\n"
	if diff := cmp.Diff(want, tree(res)); diff != "" {
		t.Errorf("tree mismatch (-want +got):\n%s", diff)
	}
	if r.reads["g:c:jar:1"] != 0 {
		t.Error("excluded artifact was read")
	}
}

func TestCollect_Relocation(t *testing.T) {
	r := newFakeReader()
	r.add("g:a:1", "g:old:1")
	to := artifact.MustParse("h:new:2")
	r.add("g:old:1").Relocation = &to
	r.add("h:new:2", "g:x:1")
	r.add("g:x:1")

	res := collectFrom(t, r, Options{}, rootReq("g:a:1"))
	want := "g:a:1\n  h:new:2\n    g:x:1\n"
	if diff := cmp.Diff(want, tree(res)); diff != "" {
		t.Errorf("tree mismatch (-want +got):\n%s", diff)
	}
	e := res.Graph.Edge(res.Graph.Node(res.Graph.Edge(1).Target).Out[0])
	if len(e.Relocations) != 1 || e.Relocations[0].ID() != "g:old" {
		t.Errorf("Relocations = %v", e.Relocations)
	}
}

func TestCollect_RelocationLimit(t *testing.T) {
	build := func() *fakeReader {
		r := newFakeReader()
		for i := 0; i < 20; i++ {
			to := artifact.MustParse(fmt.Sprintf("g:r%d:1", i+1))
			r.add(fmt.Sprintf("g:r%d:1", i)).Relocation = &to
		}
		r.add("g:r20:1")
		return r
	}

	var msgs []string
	for range 2 {
		res := collectFrom(t, build(), Options{MaxRelocations: 4}, rootReq("g:r0:1"))
		if len(res.Errors) != 1 || !errors.Is(res.Errors[0], errors.ErrCodeRelocationLimit) {
			t.Fatalf("Errors = %v, want one relocation limit error", res.Errors)
		}
		msgs = append(msgs, res.Errors[0].Error())
		if n := res.Graph.Target(1); len(n.Out) != 0 {
			t.Error("relocated edge over the limit has children")
		}
	}
	if msgs[0] != msgs[1] {
		t.Errorf("relocation error differs between runs: %q vs %q", msgs[0], msgs[1])
	}

	res := collectFrom(t, build(), Options{}, rootReq("g:r0:1"))
	if len(res.Errors) != 1 {
		t.Errorf("20 relocations under the default limit of 16: Errors = %v", res.Errors)
	}
}

func TestCollect_RelocationLoop(t *testing.T) {
	r := newFakeReader()
	b, a := artifact.MustParse("g:b:1"), artifact.MustParse("g:a:1")
	r.add("g:a:1").Relocation = &b
	r.add("g:b:1").Relocation = &a

	res := collectFrom(t, r, Options{}, rootReq("g:a:1"))
	if len(res.Errors) != 1 || !errors.Is(res.Errors[0], errors.ErrCodeRelocationLimit) {
		t.Errorf("Errors = %v", res.Errors)
	}
}

type descriptorEvents struct {
	event.Base
	mu      sync.Mutex
	missing []string
}

func (l *descriptorEvents) ArtifactDescriptorMissing(e event.Event) {
	l.mu.Lock()
	defer l.mu.Unlock()
	a, _ := e.Artifact()
	l.missing = append(l.missing, a.ID())
}

func TestCollect_MissingDescriptorIsNonFatal(t *testing.T) {
	r := newFakeReader()
	r.add("g:a:1", "g:gone:1", "g:b:1")
	r.add("g:b:1")

	l := &descriptorEvents{}
	sess := session.New(t.TempDir())
	sess.Listener = l
	res, err := New(r, nil, nil, nil).Collect(context.Background(), sess, rootReq("g:a:1"))
	if err != nil {
		t.Fatal(err)
	}
	want := "g:a:1\n  g:gone:1\n  g:b:1\n"
	if diff := cmp.Diff(want, tree(res)); diff != "" {
		t.Errorf("tree mismatch (-want +got):\n%s", diff)
	}
	if len(res.Errors) != 1 {
		t.Fatalf("Errors = %v", res.Errors)
	}
	var de *DescriptorError
	if !asDescriptorError(res.Errors[0], &de) || de.Artifact.ID() != "g:gone" {
		t.Errorf("error = %v, want DescriptorError for g:gone", res.Errors[0])
	}
	if diff := cmp.Diff([]string{"g:gone"}, l.missing); diff != "" {
		t.Errorf("missing events (-want +got):\n%s", diff)
	}
	if res.Err() == nil {
		t.Error("Result.Err() = nil")
	}
}

func asDescriptorError(err error, target **DescriptorError) bool {
	de, ok := err.(*DescriptorError)
	*target = de
	return ok
}

func TestCollect_FailFast(t *testing.T) {
	r := newFakeReader()
	r.add("g:a:1", "g:gone:1")

	c := New(r, nil, nil, nil)
	c.Options.FailFast = true
	res, err := c.Collect(context.Background(), nil, rootReq("g:a:1"))
	if err == nil || !errors.Is(err, errors.ErrCodeDescriptorMissing) {
		t.Fatalf("err = %v, want descriptor missing", err)
	}
	if res == nil || len(res.Errors) != 1 {
		t.Errorf("partial result = %+v", res)
	}
}

func TestCollect_Management(t *testing.T) {
	r := newFakeReader()
	r.add("g:a:1", "g:b:1")
	r.add("g:b:1")
	r.add("g:b:2")
	r.add("g:a:9", "g:b:1")

	req := rootReq("g:a:1")
	req.Managed = []artifact.Dependency{parseDep("g:b:2@runtime"), parseDep("g:a:9")}
	res := collectFrom(t, r, Options{}, req)
	want := "g:a:1\n  g:b:2\n"
	if diff := cmp.Diff(want, tree(res)); diff != "" {
		t.Errorf("tree mismatch (-want +got):\n%s", diff)
	}
	b := res.Graph.Edge(2)
	if b.PremanagedVersion != "1" || b.PremanagedScope != artifact.ScopeCompile || b.Dependency.Scope != artifact.ScopeRuntime {
		t.Errorf("managed edge = premanaged %q/%q, scope %q", b.PremanagedVersion, b.PremanagedScope, b.Dependency.Scope)
	}

	res = collectFrom(t, r, Options{ManageDirect: true}, req)
	if want := "g:a:9\n  g:b:2\n"; tree(res) != want {
		t.Errorf("ManageDirect tree = %q, want %q", tree(res), want)
	}
}

func TestCollect_PinsHoldDirectRangesAcrossReleases(t *testing.T) {
	r := newFakeReader()
	r.versions["g:b"] = []string{"1.0", "1.5"}
	r.add("g:app:1", "g:b:[1.0,2.0)", "g:c:1")
	r.add("g:b:1.5")
	r.add("g:b:1.9")
	r.add("g:c:1", "g:b:1.0")
	r.add("g:b:1.0")

	req := Request{Root: parseDep("g:app:1")}
	if want := "g:b:1.5\ng:c:1\n  g:b:1.0\n"; tree(collectFrom(t, r, Options{}, req)) != want {
		t.Fatalf("unpinned tree = %q, want %q", tree(collectFrom(t, r, Options{}, req)), want)
	}

	r.versions["g:b"] = append(r.versions["g:b"], "1.9")
	tests := []struct {
		name string
		pins []artifact.Dependency
		want string
	}{
		{name: "new release wins without pins", want: "g:b:1.9\ng:c:1\n  g:b:1.0\n"},
		{name: "pin holds direct and transitive", pins: []artifact.Dependency{parseDep("g:b:1.5")}, want: "g:b:1.5\ng:c:1\n  g:b:1.5\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := Request{Root: parseDep("g:app:1"), Pins: tt.pins}
			res := collectFrom(t, r, Options{}, req)
			if diff := cmp.Diff(tt.want, tree(res)); diff != "" {
				t.Errorf("tree mismatch (-want +got):\n%s", diff)
			}
			if tt.pins == nil {
				return
			}
			if e := res.Graph.Edge(1); e.PremanagedVersion != "[1.0,2.0)" || e.Version.String() != "1.5" {
				t.Errorf("direct edge = premanaged %q, version %s", e.PremanagedVersion, e.Version)
			}
		})
	}
}

func TestCollect_PinsOverrideRoot(t *testing.T) {
	r := newFakeReader()
	r.add("g:app:1", "g:a:1")
	r.add("g:app:2", "g:a:2")
	r.add("g:a:1")
	r.add("g:a:2")

	req := Request{Root: parseDep("g:app:1"), Pins: []artifact.Dependency{parseDep("g:app:2")}}
	res := collectFrom(t, r, Options{}, req)
	if got := res.Graph.Edge(res.Root).Dependency.Artifact.Version; got != "2" {
		t.Errorf("root version = %q, want 2", got)
	}
	if want := "g:a:2\n"; tree(res) != want {
		t.Errorf("tree = %q, want %q", tree(res), want)
	}
}

func TestCollect_DescriptorManagementAppliesBelowDeclarer(t *testing.T) {
	r := newFakeReader()
	r.add("g:a:1", "g:b:1").Managed = []artifact.Dependency{parseDep("g:c:3")}
	r.add("g:b:1", "g:c:1")
	r.add("g:c:1")
	r.add("g:c:3")

	res := collectFrom(t, r, Options{}, rootReq("g:a:1"))
	if want := "g:a:1\n  g:b:1\n    g:c:3\n"; tree(res) != want {
		t.Errorf("tree = %q, want %q", tree(res), want)
	}
}

func TestCollect_RangeResolution(t *testing.T) {
	r := newFakeReader()
	r.versions["g:b"] = []string{"1.0", "1.5", "2.0"}
	r.add("g:a:1", "g:b:[1.0,2.0)")
	r.add("g:b:1.5")

	res := collectFrom(t, r, Options{}, rootReq("g:a:1"))
	e := res.Graph.Edge(2)
	if e.Version.String() != "1.5" || !e.Constraint.IsRange() || e.Dependency.Artifact.Version != "1.5" {
		t.Errorf("range edge = version %s, constraint %s, artifact %s", e.Version, e.Constraint, e.Dependency.Artifact)
	}
}

func TestCollect_RangeWithoutMatch(t *testing.T) {
	r := newFakeReader()
	r.versions["g:b"] = []string{"3.0"}
	r.add("g:a:1", "g:b:[1.0,2.0)")

	res := collectFrom(t, r, Options{}, rootReq("g:a:1"))
	if len(res.Errors) != 1 || !errors.Is(res.Errors[0], errors.ErrCodeNotFound) {
		t.Errorf("Errors = %v", res.Errors)
	}
}

func TestCollect_DropsTransitiveTestScope(t *testing.T) {
	r := newFakeReader()
	r.add("g:a:1", "g:t:1@test", "g:b:1")
	r.add("g:b:1")
	r.add("g:t:1")

	res := collectFrom(t, r, Options{}, rootReq("g:a:1", "g:t:1@test"))
	want := "g:a:1\n  g:b:1\ng:t:1\n"
	if diff := cmp.Diff(want, tree(res)); diff != "" {
		t.Errorf("tree mismatch (-want +got):\n%s", diff)
	}

	res = collectFrom(t, r, Options{DropTransitive: []artifact.Scope{}}, rootReq("g:a:1"))
	if want := "g:a:1\n  g:t:1\n  g:b:1\n"; tree(res) != want {
		t.Errorf("keep-all tree = %q, want %q", tree(res), want)
	}
}

func TestCollect_SkipOptional(t *testing.T) {
	r := newFakeReader()
	r.add("g:a:1", "g:o:1?")
	r.add("g:o:1", "g:x:1")
	r.add("g:x:1")

	res := collectFrom(t, r, Options{SkipOptional: true}, rootReq("g:a:1"))
	if want := "g:a:1\n  g:o:1\n"; tree(res) != want {
		t.Errorf("tree = %q, want %q", tree(res), want)
	}
	res = collectFrom(t, r, Options{}, rootReq("g:a:1"))
	if want := "g:a:1\n  g:o:1\n    g:x:1\n"; tree(res) != want {
		t.Errorf("tree = %q, want %q", tree(res), want)
	}
}

func TestCollect_MaxDepth(t *testing.T) {
	r := newFakeReader()
	for i := 0; i < 10; i++ {
		r.add(fmt.Sprintf("g:n%d:1", i), fmt.Sprintf("g:n%d:1", i+1))
	}
	res := collectFrom(t, r, Options{MaxDepth: 3}, rootReq("g:n0:1"))
	if want := "g:n0:1\n  g:n1:1\n    g:n2:1\n"; tree(res) != want {
		t.Errorf("tree = %q, want %q", tree(res), want)
	}
}

func TestCollect_MaxNodes(t *testing.T) {
	r := newFakeReader()
	r.add("g:a:1", "g:b:1", "g:c:1", "g:d:1")
	r.add("g:b:1")
	r.add("g:c:1")
	r.add("g:d:1")

	res := collectFrom(t, r, Options{MaxNodes: 3}, rootReq("g:a:1"))
	if res.Graph.NodeCount() != 3 {
		t.Errorf("NodeCount = %d, want 3", res.Graph.NodeCount())
	}
	if len(res.Errors) != 1 || !errors.Is(res.Errors[0], errors.ErrCodeResolution) {
		t.Errorf("Errors = %v", res.Errors)
	}
}

func TestCollect_RootDescriptorAndRequestOverride(t *testing.T) {
	r := newFakeReader()
	r.add("g:app:1", "g:a:1", "g:b:1")
	r.add("g:a:1")
	r.add("g:a:2")
	r.add("g:b:1")

	req := Request{Root: parseDep("g:app:1"), Dependencies: []artifact.Dependency{parseDep("g:a:2")}}
	res := collectFrom(t, r, Options{}, req)
	if want := "g:a:2\ng:b:1\n"; tree(res) != want {
		t.Errorf("tree = %q, want %q", tree(res), want)
	}
	if got := res.Graph.Edge(res.Root).RequestContext(); got != "project" {
		t.Errorf("RequestContext = %q", got)
	}
}

func TestCollect_InvalidRequest(t *testing.T) {
	if _, err := New(newFakeReader(), nil, nil, nil).Collect(context.Background(), nil, Request{}); !errors.Is(err, errors.ErrCodeUsage) {
		t.Errorf("empty request err = %v", err)
	}
	if _, err := (&Collector{}).Collect(context.Background(), nil, rootReq("g:a:1")); !errors.Is(err, errors.ErrCodeUsage) {
		t.Errorf("no reader err = %v", err)
	}
}

func TestCollect_Cancelled(t *testing.T) {
	r := newFakeReader()
	r.add("g:a:1")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := New(r, nil, nil, nil).Collect(ctx, nil, rootReq("g:a:1")); err == nil {
		t.Error("cancelled collection succeeded")
	}
}

func TestCollect_Deterministic(t *testing.T) {
	r := newFakeReader()
	var deps []string
	for i := 0; i < 30; i++ {
		c := fmt.Sprintf("g:n%d:1", i)
		deps = append(deps, c)
		r.add(c, fmt.Sprintf("g:leaf%d:1", i%7))
	}
	for i := 0; i < 7; i++ {
		r.add(fmt.Sprintf("g:leaf%d:1", i))
	}
	first := tree(collectFrom(t, r, Options{Workers: 16}, rootReq(deps...)))
	for range 5 {
		if got := tree(collectFrom(t, r, Options{Workers: 16}, rootReq(deps...))); got != first {
			t.Fatalf("tree differs between runs:\n%s\nvs\n%s", first, got)
		}
	}
}

func TestManagement_With(t *testing.T) {
	m := newManagement([]artifact.Dependency{parseDep("g:a:1")})
	m2 := m.with([]artifact.Dependency{parseDep("g:a:2"), parseDep("g:b:1")})
	if m2["g:a:jar"].Artifact.Version != "1" {
		t.Error("nearer management was replaced")
	}
	if _, ok := m["g:b:jar"]; ok {
		t.Error("with mutated the receiver")
	}
	if m3 := m.with([]artifact.Dependency{parseDep("g:a:3")}); len(m3) != 1 {
		t.Errorf("len = %d", len(m3))
	}
}
