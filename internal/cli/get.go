package cli

import (
	"context"
	stderrors "errors"
	"os"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"github.com/matzehuels/depot/pkg/errors"
	"github.com/matzehuels/depot/pkg/system"
	"github.com/matzehuels/depot/pkg/transfer"
)

// getCommand creates the get command.
func (c *CLI) getCommand() *cobra.Command {
	var plain bool

	cmd := &cobra.Command{
		Use:   "get <group:artifact[:ext[:classifier]]:version>...",
		Short: "Download artifacts without their dependencies",
		Long: `Get downloads the given artifacts into the local repository, trying the
configured repositories in order. Artifacts already present locally are not
downloaded again.

A live progress view is shown when stdout is a terminal; use --plain for
log output instead.`,
		Example: `  depot get org.example:lib:2.1
  depot get org.example:lib:jar:sources:2.1 --plain`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.runGet(cmd.Context(), args, plain || !isatty.IsTerminal(os.Stdout.Fd()))
		},
	}

	cmd.Flags().BoolVar(&plain, "plain", false, "disable the interactive progress view")

	return cmd
}

func (c *CLI) runGet(ctx context.Context, args []string, plain bool) error {
	e, err := c.openEnv(ctx)
	if err != nil {
		return err
	}
	defer e.Close()

	reqs := make([]system.ArtifactRequest, 0, len(args))
	for _, arg := range args {
		a, err := parseArtifact(arg, "")
		if err != nil {
			return err
		}
		reqs = append(reqs, system.ArtifactRequest{Artifact: a, Repositories: e.cfg.Remotes()})
	}

	var results []*system.ArtifactResult
	if plain {
		prog := newProgress(loggerFromContext(ctx))
		results, err = e.sys.ResolveArtifacts(ctx, e.sess, reqs)
		prog.done("Download finished")
	} else {
		results, err = resolveWithProgress(ctx, e, reqs)
	}

	var resErr *system.ResolutionError
	if err != nil && !stderrors.As(err, &resErr) {
		return err
	}
	for _, r := range results {
		if r.IsResolved() {
			printSuccess("%s %s", r.Artifact, StyleDim.Render("("+r.Repository+")"))
			printFile(r.Artifact.File)
			continue
		}
		printError("%s", r.Request.Artifact)
		for _, line := range errorLines(stderrors.Join(r.Errors...)) {
			printDetail("%s", line)
		}
	}
	if resErr != nil {
		return errors.New(errors.ErrCodeResolution, "%d of %d artifacts could not be downloaded", len(resErr.Missing()), len(results))
	}
	return nil
}

// resolveWithProgress runs the downloads while a bubbletea program renders
// their progress. Quitting the program cancels the downloads.
func resolveWithProgress(ctx context.Context, e *env, reqs []system.ArtifactRequest) ([]*system.ArtifactResult, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	p := tea.NewProgram(NewTransferModel(), tea.WithContext(ctx), tea.WithOutput(os.Stderr))
	e.sess.TransferListener = transfer.Multi(e.sess.TransferListener, teaListener{program: p})

	type outcome struct {
		results []*system.ArtifactResult
		err     error
	}
	done := make(chan outcome, 1)
	go func() {
		results, err := e.sys.ResolveArtifacts(ctx, e.sess, reqs)
		done <- outcome{results, err}
		p.Send(transfersDoneMsg{})
	}()

	final, err := p.Run()
	if m, ok := final.(TransferModel); ok && m.Quit {
		cancel()
	}
	out := <-done
	if err != nil && !stderrors.Is(err, tea.ErrProgramKilled) {
		return out.results, err
	}
	return out.results, out.err
}
