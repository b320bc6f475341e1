package cli

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/matzehuels/depot/pkg/graph"
	"github.com/matzehuels/depot/pkg/render"
)

// Tree output formats.
const (
	formatText = "text"
	formatJSON = "json"
	formatDOT  = "dot"
	formatSVG  = "svg"
	formatPDF  = "pdf"
	formatPNG  = "png"
)

var validFormats = map[string]bool{
	formatText: true, formatJSON: true, formatDOT: true,
	formatSVG: true, formatPDF: true, formatPNG: true,
}

// treeCommand creates the tree command.
func (c *CLI) treeCommand() *cobra.Command {
	var (
		opts    requestOpts
		format  string
		output  string
		omitted bool
	)

	cmd := &cobra.Command{
		Use:   "tree <group:artifact[:ext[:classifier]]:version>...",
		Short: "Print the resolved dependency tree",
		Long: `Tree collects the dependency graph, resolves conflicts and prints the
result without downloading any artifact.

Formats: text (default), json (graph document), dot, svg, pdf and png.
With --omitted, dependencies that lost a conflict or closed a cycle are shown
together with the reason.`,
		Example: `  depot tree org.example:app:1.0
  depot tree org.example:app:1.0 --omitted
  depot tree org.example:app:1.0 -f svg -o app.svg`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if !validFormats[format] {
				return fmt.Errorf("invalid format: %s (must be text, json, dot, svg, pdf or png)", format)
			}
			return c.runTree(cmd.Context(), args, &opts, format, output, omitted)
		},
	}

	opts.register(cmd)
	cmd.Flags().StringVarP(&format, "format", "f", formatText, "output format: text, json, dot, svg, pdf, png")
	cmd.Flags().StringVarP(&output, "output", "o", "", "output file (stdout if empty)")
	cmd.Flags().BoolVar(&omitted, "omitted", false, "show omitted dependencies")

	return cmd
}

func (c *CLI) runTree(ctx context.Context, args []string, opts *requestOpts, format, output string, omitted bool) error {
	logger := loggerFromContext(ctx)
	e, err := c.openEnv(ctx)
	if err != nil {
		return err
	}
	defer e.Close()

	req, err := opts.request(e, args)
	if err != nil {
		return err
	}
	res, err := e.sys.CollectDependencies(ctx, e.sess, req)
	if err != nil {
		return err
	}
	for _, line := range errorLines(res.Err()) {
		printWarning("%s", line)
	}
	resolution, err := e.sys.Resolver.Resolve(res.Graph, res.Root)
	if err != nil {
		return err
	}
	logger.Debug("tree resolved", "edges", res.Graph.EdgeCount(), "winners", len(resolution.Winners), "conflicts", len(resolution.Conflicts))

	data, err := renderTree(ctx, res.Graph, res.Root, format, render.Options{Verbose: omitted})
	if err != nil {
		return err
	}
	return writeOutput(output, data, logger.Infof)
}

// renderTree draws the graph in the requested format.
func renderTree(ctx context.Context, g *graph.Graph, root graph.EdgeID, format string, opts render.Options) ([]byte, error) {
	var buf bytes.Buffer
	switch format {
	case formatText:
		if err := render.Tree(&buf, g, root, opts); err != nil {
			return nil, err
		}
		return buf.Bytes(), nil
	case formatJSON:
		if err := graph.WriteGraph(g, &buf); err != nil {
			return nil, err
		}
		return buf.Bytes(), nil
	case formatDOT:
		return []byte(render.ToDOT(g, root, opts)), nil
	}

	svg, err := render.RenderSVG(ctx, render.ToDOT(g, root, opts))
	if err != nil {
		return nil, err
	}
	switch format {
	case formatPDF:
		return render.ToPDF(ctx, svg)
	case formatPNG:
		return render.ToPNG(ctx, svg, 2.0)
	}
	return svg, nil
}

// nopCloser wraps an io.Writer with a no-op Close method.
type nopCloser struct{ io.Writer }

func (nopCloser) Close() error { return nil }

// openOutput returns a WriteCloser for the given path.
// If path is empty, it returns os.Stdout wrapped in nopCloser.
func openOutput(path string) (io.WriteCloser, error) {
	if path == "" {
		return nopCloser{os.Stdout}, nil
	}
	return os.Create(path)
}

// writeOutput writes data to path or stdout and reports written files.
func writeOutput(path string, data []byte, report func(string, ...any)) error {
	out, err := openOutput(path)
	if err != nil {
		return err
	}
	if _, err := out.Write(data); err != nil {
		out.Close()
		return err
	}
	if err := out.Close(); err != nil {
		return err
	}
	if path != "" {
		report("Wrote %s", path)
	}
	return nil
}
