package render

import (
	"bytes"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/matzehuels/depot/pkg/artifact"
	"github.com/matzehuels/depot/pkg/graph"
)

// diamond builds app -> {b, c}, b -> d:1.0 and c -> d:2.0 where d:2.0 lost
// the conflict to d:1.0.
func diamond() (*graph.Graph, graph.EdgeID) {
	g := graph.New()
	node := func(coord string, scope artifact.Scope) *graph.Node {
		return g.AddNode(artifact.NewDependency(artifact.MustParse(coord), scope))
	}
	edge := func(from, to *graph.Node) *graph.Edge {
		src := graph.NoNode
		if from != nil {
			src = from.ID
		}
		return g.AddEdge(src, to.ID, to.Dependency)
	}

	app := node("org.example:app:1.0", "")
	root := edge(nil, app)
	g.SetRoot(root.ID)

	b := node("org.example:b:1.0", artifact.ScopeCompile)
	c := node("org.example:c:1.0", artifact.ScopeRuntime)
	edge(app, b)
	edge(app, c)

	d1 := node("org.example:d:1.0", artifact.ScopeCompile)
	d2 := node("org.example:d:2.0", artifact.ScopeRuntime)
	winner := edge(b, d1)
	loser := edge(c, d2)
	loser.Omitted = graph.OmittedConflict
	loser.Data.Set(graph.KeyWinner, winner.ID)
	return g, root.ID
}

func TestTree(t *testing.T) {
	g, root := diamond()

	tests := []struct {
		name string
		opts Options
		want []string
	}{
		{
			name: "included only",
			want: []string{
				"org.example:app:jar:1.0",
				"+- org.example:b:jar:1.0:compile",
				"|  \\- org.example:d:jar:1.0:compile",
				"\\- org.example:c:jar:1.0:runtime",
			},
		},
		{
			name: "verbose",
			opts: Options{Verbose: true},
			want: []string{
				"org.example:app:jar:1.0",
				"+- org.example:b:jar:1.0:compile",
				"|  \\- org.example:d:jar:1.0:compile",
				"\\- org.example:c:jar:1.0:runtime",
				"   \\- (org.example:d:jar:2.0:runtime - omitted for conflict with 1.0)",
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			if err := Tree(&buf, g, root, tt.opts); err != nil {
				t.Fatalf("Tree: %v", err)
			}
			got := strings.Split(strings.TrimSuffix(buf.String(), "\n"), "\n")
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("tree mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestTree_ManagedAndOptional(t *testing.T) {
	g := graph.New()
	app := g.AddNode(artifact.NewDependency(artifact.MustParse("org.example:app:1.0"), ""))
	root := g.AddEdge(graph.NoNode, app.ID, app.Dependency)
	g.SetRoot(root.ID)

	dep := artifact.NewDependency(artifact.MustParse("org.example:lib:2.0"), artifact.ScopeTest)
	dep.Optional = true
	lib := g.AddNode(dep)
	e := g.AddEdge(app.ID, lib.ID, dep)
	e.PremanagedVersion = "1.0"

	var plain, verbose bytes.Buffer
	if err := Tree(&plain, g, root.ID, Options{}); err != nil {
		t.Fatal(err)
	}
	if err := Tree(&verbose, g, root.ID, Options{Verbose: true}); err != nil {
		t.Fatal(err)
	}
	if want := "\\- org.example:lib:jar:2.0:test (optional)\n"; !strings.HasSuffix(plain.String(), want) {
		t.Errorf("plain = %q, want suffix %q", plain.String(), want)
	}
	if want := "(optional) (version managed from 1.0)\n"; !strings.HasSuffix(verbose.String(), want) {
		t.Errorf("verbose = %q, want suffix %q", verbose.String(), want)
	}
}

func TestTree_SyntheticRoot(t *testing.T) {
	g := graph.New()
	top := g.AddNode(artifact.Dependency{})
	root := g.AddEdge(graph.NoNode, top.ID, top.Dependency)
	g.SetRoot(root.ID)

	var buf bytes.Buffer
	if err := Tree(&buf, g, root.ID, Options{}); err != nil {
		t.Fatal(err)
	}
	if got := buf.String(); got != "(dependencies)\n" {
		t.Errorf("got %q", got)
	}
}

func TestTree_NoGraph(t *testing.T) {
	var buf bytes.Buffer
	if err := Tree(&buf, nil, 0, Options{}); err == nil {
		t.Error("expected error for nil graph")
	}
	if err := Tree(&buf, graph.New(), graph.NoEdge, Options{}); err == nil {
		t.Error("expected error for missing root")
	}
}

func TestToDOT(t *testing.T) {
	g, root := diamond()

	dot := ToDOT(g, root, Options{})
	for _, want := range []string{
		"digraph G {",
		`n0 [label="org.example:app:jar:1.0", penwidth=2];`,
		`n1 [label="org.example:b:jar:1.0"];`,
		`n0 -> n1 [label="compile"];`,
		`n0 -> n2 [label="runtime"];`,
		`n1 -> n3 [label="compile"];`,
	} {
		if !strings.Contains(dot, want) {
			t.Errorf("DOT missing %q:\n%s", want, dot)
		}
	}
	if strings.Contains(dot, "n4") {
		t.Errorf("omitted node drawn without Verbose:\n%s", dot)
	}

	verbose := ToDOT(g, root, Options{Verbose: true})
	want := `n2 -> n4 [label="omitted for conflict with 1.0", style=dashed, color=grey, fontcolor=grey];`
	if !strings.Contains(verbose, want) {
		t.Errorf("verbose DOT missing %q:\n%s", want, verbose)
	}
}

func TestToDOT_Empty(t *testing.T) {
	dot := ToDOT(nil, 0, Options{})
	if !strings.HasPrefix(dot, "digraph G {") || !strings.HasSuffix(dot, "}\n") {
		t.Errorf("unexpected DOT:\n%s", dot)
	}
}

func TestNormalizeViewBox(t *testing.T) {
	in := []byte(`<svg width="100pt" height="50pt" viewBox="0.00 0.00 100.00 50.00" xmlns="http://www.w3.org/2000/svg"><g/></svg>`)
	got := string(normalizeViewBox(in))
	want := `<svg xmlns="http://www.w3.org/2000/svg" viewBox="0 0 100.00 50.00" width="100" height="50"><g/></svg>`
	if got != want {
		t.Errorf("got  %s\nwant %s", got, want)
	}

	plain := []byte(`<svg><g/></svg>`)
	if got := normalizeViewBox(plain); !bytes.Equal(got, plain) {
		t.Errorf("svg without viewBox changed: %s", got)
	}
}
