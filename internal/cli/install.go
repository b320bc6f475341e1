package cli

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/matzehuels/depot/pkg/artifact"
	"github.com/matzehuels/depot/pkg/system"
)

// publishOpts are the flags shared by install and deploy.
type publishOpts struct {
	pom string
}

func (o *publishOpts) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&o.pom, "pom", "", "descriptor to publish alongside the artifact")
}

// artifacts returns the artifact bound to file, followed by its pom when
// one was given.
func (o *publishOpts) artifacts(file, coord string) ([]artifact.Artifact, error) {
	a, err := parseArtifact(coord, file)
	if err != nil {
		return nil, err
	}
	out := []artifact.Artifact{a}
	if o.pom != "" {
		out = append(out, pomFor(a, o.pom))
	}
	return out, nil
}

// installCommand creates the install command.
func (c *CLI) installCommand() *cobra.Command {
	var opts publishOpts

	cmd := &cobra.Command{
		Use:   "install <file> <group:artifact[:ext[:classifier]]:version>",
		Short: "Copy an artifact into the local repository",
		Long: `Install copies a file into the local repository under the given
coordinate and records the version in the local maven-metadata.`,
		Example: `  depot install target/app-1.0.jar org.example:app:1.0 --pom pom.xml`,
		Args:    cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.runInstall(cmd.Context(), args[0], args[1], &opts)
		},
	}

	opts.register(cmd)

	return cmd
}

func (c *CLI) runInstall(ctx context.Context, file, coord string, opts *publishOpts) error {
	e, err := c.openEnv(ctx)
	if err != nil {
		return err
	}
	defer e.Close()

	artifacts, err := opts.artifacts(file, coord)
	if err != nil {
		return err
	}
	res, err := e.sys.Install(ctx, e.sess, system.InstallRequest{Artifacts: artifacts})
	if res != nil {
		for _, a := range res.Artifacts {
			printSuccess("Installed %s", a)
			printFile(a.File)
		}
	}
	for _, line := range errorLines(err) {
		printError("%s", line)
	}
	if err != nil {
		return err
	}
	printDetail("Local repository: %s", e.sess.Local.Basedir)
	return nil
}
