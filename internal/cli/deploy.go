package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/matzehuels/depot/pkg/repository"
	"github.com/matzehuels/depot/pkg/system"
)

// deployCommand creates the deploy command.
func (c *CLI) deployCommand() *cobra.Command {
	var (
		opts   publishOpts
		repoID string
		url    string
	)

	cmd := &cobra.Command{
		Use:   "deploy <file> <group:artifact[:ext[:classifier]]:version>",
		Short: "Upload an artifact to a remote repository",
		Long: `Deploy uploads a file and its checksum to a remote repository and adds
the version to the repository's maven-metadata.xml.

The target is a repository from the config (--repo) or an ad hoc URL (--url).`,
		Example: `  depot deploy target/app-1.0.jar org.example:app:1.0 --repo releases --pom pom.xml
  depot deploy app.jar org.example:app:1.0 --url http://localhost:8080/releases`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			if (repoID == "") == (url == "") {
				return fmt.Errorf("exactly one of --repo or --url is required")
			}
			return c.runDeploy(cmd.Context(), args[0], args[1], &opts, repoID, url)
		},
	}

	opts.register(cmd)
	cmd.Flags().StringVarP(&repoID, "repo", "r", "", "id of a configured repository")
	cmd.Flags().StringVar(&url, "url", "", "repository URL (file://, http(s):// or mongodb://)")

	return cmd
}

func (c *CLI) runDeploy(ctx context.Context, file, coord string, opts *publishOpts, repoID, url string) error {
	e, err := c.openEnv(ctx)
	if err != nil {
		return err
	}
	defer e.Close()

	repo := repository.NewRemote("deploy", url)
	if repoID != "" {
		if repo, err = e.cfg.Remote(repoID); err != nil {
			return err
		}
	}
	artifacts, err := opts.artifacts(file, coord)
	if err != nil {
		return err
	}

	spinner := startSpinner(ctx, fmt.Sprintf("Deploying to %s...", repo.URL))
	res, err := e.sys.Deploy(ctx, e.sess, system.DeployRequest{Repository: repo, Artifacts: artifacts})
	spinner.Stop()

	if res != nil {
		for _, a := range res.Artifacts {
			printSuccess("Deployed %s", a)
		}
		for _, m := range res.Metadata {
			printDetail("Updated metadata %s:%s", m.GroupID, m.ArtifactID)
		}
	}
	for _, line := range errorLines(err) {
		printError("%s", line)
	}
	return err
}
