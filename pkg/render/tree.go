// Package render draws resolved dependency graphs.
//
// Three outputs are supported:
//
//   - [Tree] writes the indented text tree known from build tools.
//   - [ToDOT] converts the graph to Graphviz DOT.
//   - [RenderSVG] lays a DOT graph out with Graphviz; [ToPDF] and [ToPNG]
//     convert the SVG further through rsvg-convert.
//
// Edges omitted by conflict resolution are hidden unless Options.Verbose is
// set, in which case they are shown with the reason they lost.
//
//	render.Tree(os.Stdout, res.Graph, res.Root, render.Options{Verbose: true})
//	svg, err := render.RenderSVG(ctx, render.ToDOT(res.Graph, res.Root, render.Options{}))
package render

import (
	"fmt"
	"io"
	"strings"

	"github.com/matzehuels/depot/pkg/graph"
)

// Options controls what is drawn.
type Options struct {
	// Verbose includes omitted edges and version management notes.
	Verbose bool
}

// Tree writes the subtree under root as indented text:
//
//	org.example:app:jar:1.0
//	+- org.example:lib:jar:2.0:compile
//	|  \- org.example:util:jar:1.1:runtime
//	\- org.example:log:jar:3.0:compile
func Tree(w io.Writer, g *graph.Graph, root graph.EdgeID, opts Options) error {
	if g == nil || root < 0 || int(root) >= g.EdgeCount() {
		return fmt.Errorf("render: no graph to draw")
	}
	t := &tree{g: g, opts: opts}
	t.line("", rootLabel(g.Edge(root)))
	t.children(root, "")
	_, err := io.WriteString(w, t.b.String())
	return err
}

type tree struct {
	g    *graph.Graph
	opts Options
	b    strings.Builder
}

func (t *tree) line(prefix, label string) {
	t.b.WriteString(prefix)
	t.b.WriteString(label)
	t.b.WriteByte('\n')
}

func (t *tree) children(id graph.EdgeID, indent string) {
	var kids []*graph.Edge
	for _, c := range t.g.Children(id) {
		if e := t.g.Edge(c); e.IsIncluded() || t.opts.Verbose {
			kids = append(kids, e)
		}
	}
	for i, e := range kids {
		branch, next := "+- ", "|  "
		if i == len(kids)-1 {
			branch, next = "\\- ", "   "
		}
		t.line(indent+branch, t.label(e))
		if e.IsIncluded() {
			t.children(e.ID, indent+next)
		}
	}
}

func (t *tree) label(e *graph.Edge) string {
	s := EdgeLabel(e)
	if t.opts.Verbose && e.PremanagedVersion != "" {
		s += " (version managed from " + e.PremanagedVersion + ")"
	}
	if e.IsIncluded() {
		return s
	}
	return "(" + s + " - " + Omission(t.g, e) + ")"
}

// EdgeLabel is the coordinate of e's dependency followed by its scope and,
// when set, an optional marker.
func EdgeLabel(e *graph.Edge) string {
	d := e.Dependency
	s := d.Artifact.String() + ":" + string(d.Scope.OrDefault())
	if d.Optional {
		s += " (optional)"
	}
	return s
}

// Omission explains why e was left out, naming the winning version for
// conflict losers.
func Omission(g *graph.Graph, e *graph.Edge) string {
	reason := e.Omitted.String()
	if e.Omitted == graph.OmittedConflict {
		if w, ok := graph.Lookup[graph.EdgeID](e.Data, graph.KeyWinner); ok {
			reason += " with " + g.Edge(w).Dependency.Artifact.Version
		}
	}
	return reason
}

func rootLabel(e *graph.Edge) string {
	if e.Dependency.Artifact.ArtifactID == "" {
		return "(dependencies)"
	}
	return e.Dependency.Artifact.String()
}
