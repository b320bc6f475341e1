package render

import (
	"bytes"
	"context"
	"fmt"
	"regexp"
	"strconv"

	"github.com/goccy/go-graphviz"

	"github.com/matzehuels/depot/pkg/graph"
)

// ToDOT converts the subtree under root to Graphviz DOT. Each node is one
// resolved artifact; omitted edges, drawn only with Options.Verbose, are
// dashed and labelled with the reason.
func ToDOT(g *graph.Graph, root graph.EdgeID, opts Options) string {
	var buf bytes.Buffer
	buf.WriteString("digraph G {\n")
	buf.WriteString("  rankdir=TB;\n")
	buf.WriteString("  bgcolor=\"transparent\";\n")
	buf.WriteString("  node [shape=box, style=\"rounded,filled\", fillcolor=white, fontsize=14, margin=\"0.2,0.1\"];\n")
	buf.WriteString("  ranksep=0.5;\n")
	buf.WriteString("  nodesep=0.3;\n")
	buf.WriteString("\n")
	if g == nil || root < 0 || int(root) >= g.EdgeCount() {
		buf.WriteString("}\n")
		return buf.String()
	}

	var edges []*graph.Edge
	nodes := map[graph.NodeID]bool{}
	var order []graph.NodeID
	addNode := func(id graph.NodeID) {
		if !nodes[id] {
			nodes[id] = true
			order = append(order, id)
		}
	}
	seen := map[graph.EdgeID]bool{}
	graph.Walk(g, root, func(e *graph.Edge) graph.Action {
		if seen[e.ID] {
			return graph.SkipChildren
		}
		seen[e.ID] = true
		if !e.IsIncluded() && !opts.Verbose {
			return graph.SkipChildren
		}
		addNode(e.Target)
		if e.ID != root {
			edges = append(edges, e)
		}
		if !e.IsIncluded() {
			return graph.SkipChildren
		}
		return graph.Continue
	}, nil)

	rootTarget := g.Edge(root).Target
	for _, id := range order {
		n := g.Node(id)
		label := n.Dependency.Artifact.String()
		if id == rootTarget {
			label = rootLabel(g.Edge(root))
		}
		attrs := fmt.Sprintf("label=%q", label)
		if id == rootTarget {
			attrs += ", penwidth=2"
		}
		fmt.Fprintf(&buf, "  n%d [%s];\n", id, attrs)
	}

	buf.WriteString("\n")
	for _, e := range edges {
		attrs := fmt.Sprintf("label=%q", string(e.Dependency.Scope.OrDefault()))
		if !e.IsIncluded() {
			attrs = fmt.Sprintf("label=%q, style=dashed, color=grey, fontcolor=grey", Omission(g, e))
		}
		fmt.Fprintf(&buf, "  n%d -> n%d [%s];\n", e.Source, e.Target, attrs)
	}

	buf.WriteString("}\n")
	return buf.String()
}

// RenderSVG renders a DOT graph to SVG using Graphviz.
// Returns the SVG bytes ready for display or further conversion with [ToPDF] or [ToPNG].
func RenderSVG(ctx context.Context, dot string) ([]byte, error) {
	gv, err := graphviz.New(ctx)
	if err != nil {
		return nil, fmt.Errorf("init graphviz: %w", err)
	}
	defer gv.Close()

	g, err := graphviz.ParseBytes([]byte(dot))
	if err != nil {
		return nil, fmt.Errorf("parse DOT: %w", err)
	}
	defer g.Close()

	var buf bytes.Buffer
	if err := gv.Render(ctx, g, graphviz.SVG, &buf); err != nil {
		return nil, fmt.Errorf("render: %w", err)
	}
	return normalizeViewBox(buf.Bytes()), nil
}

var (
	svgTagRe  = regexp.MustCompile(`<svg[^>]*>`)
	viewBoxRe = regexp.MustCompile(`viewBox="([0-9.]+)\s+([0-9.]+)\s+([0-9.]+)\s+([0-9.]+)"`)
)

// normalizeViewBox replaces the root svg tag so the drawing starts at the
// origin and scales with its container.
func normalizeViewBox(svg []byte) []byte {
	match := viewBoxRe.FindSubmatch(svg)
	if match == nil {
		return svg
	}

	w, _ := strconv.ParseFloat(string(match[3]), 64)
	h, _ := strconv.ParseFloat(string(match[4]), 64)
	if w == 0 || h == 0 {
		return svg
	}

	newSvg := fmt.Sprintf(`<svg xmlns="http://www.w3.org/2000/svg" viewBox="0 0 %.2f %.2f" width="%.0f" height="%.0f">`,
		w, h, w, h)

	return svgTagRe.ReplaceAll(svg, []byte(newSvg))
}
