package cli

import (
	"context"
	stderrors "errors"
	"fmt"
	"os"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/spf13/cobra"

	"github.com/matzehuels/depot/pkg/artifact"
	"github.com/matzehuels/depot/pkg/collect"
	"github.com/matzehuels/depot/pkg/errors"
	"github.com/matzehuels/depot/pkg/lockfile"
	"github.com/matzehuels/depot/pkg/system"
)

// requestOpts are the flags shared by commands that collect a graph.
type requestOpts struct {
	scope    string
	managed  []string
	lockPath string
	locked   bool
}

func (o *requestOpts) register(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&o.scope, "scope", "s", string(artifact.ScopeCompile), "scope of the requested dependencies")
	cmd.Flags().StringSliceVarP(&o.managed, "manage", "m", nil, "pin a version for a transitive dependency (g:a:v), repeatable")
	cmd.Flags().StringVar(&o.lockPath, "lock", lockfile.DefaultFile, "lockfile path")
	cmd.Flags().BoolVar(&o.locked, "locked", false, "pin every version from the lockfile")
}

// request builds a collect request. A single coordinate becomes the root
// whose descriptor is read; several become direct dependencies of a
// synthetic root.
func (o *requestOpts) request(e *env, args []string) (collect.Request, error) {
	deps, err := parseDependencies(args, o.scope)
	if err != nil {
		return collect.Request{}, err
	}
	managed, err := parseDependencies(o.managed, "")
	if err != nil {
		return collect.Request{}, err
	}
	req := collect.Request{
		Managed:      managed,
		Repositories: e.cfg.Remotes(),
	}
	if o.locked {
		lf, err := lockfile.ReadFile(o.lockPath)
		if err != nil {
			return collect.Request{}, err
		}
		if req.Pins, err = lf.Pins(); err != nil {
			return collect.Request{}, err
		}
	}
	if len(deps) == 1 {
		req.Root = deps[0]
	} else {
		req.Dependencies = deps
	}
	return req, nil
}

// resolveCommand creates the resolve command.
func (c *CLI) resolveCommand() *cobra.Command {
	var (
		opts      requestOpts
		writeLock bool
		check     bool
	)

	cmd := &cobra.Command{
		Use:   "resolve <group:artifact[:ext[:classifier]]:version>...",
		Short: "Resolve and download the transitive dependencies of artifacts",
		Long: `Resolve collects the dependency graph of the given artifacts, picks one
version per artifact (nearest wins), downloads every winner into the local
repository and prints the winning set.

With --write-lock the winning set is stored in a lockfile; --locked pins every
version from that lockfile and --check fails if the resolution no longer
matches it.`,
		Example: `  depot resolve org.example:app:1.0
  depot resolve org.example:lib:2.1 org.example:util:1.4 --write-lock
  depot resolve org.example:app:1.0 --check`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.runResolve(cmd.Context(), args, &opts, writeLock, check)
		},
	}

	opts.register(cmd)
	cmd.Flags().BoolVarP(&writeLock, "write-lock", "w", false, "write the winning set to the lockfile")
	cmd.Flags().BoolVar(&check, "check", false, "fail if the resolution differs from the lockfile")

	return cmd
}

func (c *CLI) runResolve(ctx context.Context, args []string, opts *requestOpts, writeLock, check bool) error {
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

	prog := newProgress(logger)
	spinner := startSpinner(ctx, "Resolving dependencies...")
	res, err := e.sys.ResolveDependencies(ctx, e.sess, req)
	spinner.Stop()

	var resErr *system.ResolutionError
	if err != nil && !stderrors.As(err, &resErr) {
		return err
	}

	printNewline()
	printArtifactTable(res)
	printNewline()
	printStats(len(res.Artifacts), len(res.Resolution.Conflicts), len(res.Cycles))
	for _, line := range errorLines(stderrors.Join(res.CollectErrors...)) {
		printWarning("%s", line)
	}

	if resErr != nil {
		for _, line := range errorLines(resErr) {
			printError("%s", line)
		}
		if n := len(resErr.Missing()); n > 0 {
			return errors.New(errors.ErrCodeResolution, "%d artifacts could not be resolved", n)
		}
		return errors.New(errors.ErrCodeResolution, "%d collection errors in strict mode", len(res.CollectErrors))
	}
	prog.done(fmt.Sprintf("Resolved %d artifacts", len(res.Artifacts)))

	if !writeLock && !check {
		return nil
	}
	lf, err := lockfile.FromResolution(res)
	if err != nil {
		return err
	}
	if check {
		return checkLock(opts.lockPath, lf)
	}
	if err := lf.WriteFile(opts.lockPath); err != nil {
		return err
	}
	printSuccess("Wrote lockfile")
	printFile(opts.lockPath)
	return nil
}

// checkLock compares lf against the lockfile at path.
func checkLock(path string, lf *lockfile.Lockfile) error {
	existing, err := lockfile.ReadFile(path)
	if err != nil {
		return err
	}
	diff := existing.Diff(lf)
	if len(diff) == 0 {
		printSuccess("Lockfile is up to date")
		return nil
	}
	printWarning("Resolution differs from %s", path)
	for _, line := range diff {
		printDetail("%s", line)
	}
	return errors.New(errors.ErrCodeResolution, "lockfile %s is out of date (%d changes)", path, len(diff))
}

// =============================================================================
// Output
// =============================================================================

// printArtifactTable prints the resolved artifacts as a table.
func printArtifactTable(res *system.DependencyResult) {
	headerStyle := lipgloss.NewStyle().Foreground(colorGray).Bold(true)
	cell := lipgloss.NewStyle().PaddingRight(1)

	rows := make([][]string, 0, len(res.Artifacts))
	missing := map[int]bool{}
	for i, r := range res.Artifacts {
		scope := ""
		if r.Request.Edge >= 0 && int(r.Request.Edge) < res.Graph.EdgeCount() {
			scope = string(res.Graph.Edge(r.Request.Edge).Dependency.Scope.OrDefault())
		}
		source := r.Repository
		if !r.IsResolved() {
			source = iconError + " missing"
			missing[i] = true
		}
		rows = append(rows, []string{r.Request.Artifact.String(), scope, source})
	}

	t := table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(colorDim)).
		Headers("Artifact", "Scope", "Repository").
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			switch {
			case row == table.HeaderRow:
				return headerStyle
			case missing[row]:
				return cell.Foreground(colorRed)
			case col == 0:
				return cell.Foreground(colorWhite)
			}
			return cell.Foreground(colorGray)
		})
	fmt.Fprintln(os.Stdout, t.Render())
}
