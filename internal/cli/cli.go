// Package cli implements the depot command-line interface.
package cli

import (
	"context"
	stderrors "errors"
	"io"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"github.com/matzehuels/depot/pkg/artifact"
	"github.com/matzehuels/depot/pkg/buildinfo"
	"github.com/matzehuels/depot/pkg/cache"
	"github.com/matzehuels/depot/pkg/config"
	"github.com/matzehuels/depot/pkg/errors"
	"github.com/matzehuels/depot/pkg/event"
	"github.com/matzehuels/depot/pkg/repository"
	"github.com/matzehuels/depot/pkg/session"
	"github.com/matzehuels/depot/pkg/system"
)

// =============================================================================
// Constants
// =============================================================================

// appName is the application name used for display.
const appName = "depot"

// Log levels exported for use in main.go.
const (
	LogDebug = log.DebugLevel
	LogInfo  = log.InfoLevel
)

// =============================================================================
// CLI - Central CLI State
// =============================================================================

// CLI holds shared state for all commands.
type CLI struct {
	Logger *log.Logger

	configPath string
	offline    bool
	localRepo  string
}

// New creates a new CLI instance with a default logger.
func New(w io.Writer, level log.Level) *CLI {
	return &CLI{Logger: newLogger(w, level)}
}

// SetLogLevel updates the logger's level.
func (c *CLI) SetLogLevel(level log.Level) {
	c.Logger.SetLevel(level)
}

// RootCommand creates the root cobra command with all subcommands registered.
func (c *CLI) RootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:          appName,
		Short:        "Depot resolves, fetches and publishes Maven-style artifacts",
		Long:         `Depot collects the transitive dependencies of Maven-style artifacts, resolves version conflicts nearest-wins, downloads the winners into a local repository and installs or deploys artifacts of its own.`,
		Version:      buildinfo.Version,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cmd.SetContext(withLogger(cmd.Context(), c.Logger))
			return nil
		},
	}

	root.SetVersionTemplate(buildinfo.Template())
	root.PersistentFlags().StringVarP(&c.configPath, "config", "c", "", "config file (default $"+config.EnvConfig+" or ~/.config/depot/depot.toml)")
	root.PersistentFlags().BoolVar(&c.offline, "offline", false, "only use repositories on this machine")
	root.PersistentFlags().StringVar(&c.localRepo, "local", "", "local repository directory (overrides config)")

	root.AddCommand(c.resolveCommand())
	root.AddCommand(c.treeCommand())
	root.AddCommand(c.getCommand())
	root.AddCommand(c.installCommand())
	root.AddCommand(c.deployCommand())
	root.AddCommand(c.serveCommand())
	root.AddCommand(c.cacheCommand())
	root.AddCommand(c.completionCommand())

	return root
}

// =============================================================================
// Environment
// =============================================================================

// env is everything a command needs to talk to repositories.
type env struct {
	cfg     config.Config
	manager *repository.Manager
	cache   cache.Cache
	sess    *session.Session
	sys     *system.System
}

// loadConfig reads the config file and applies the global flags.
func (c *CLI) loadConfig() (config.Config, error) {
	cfg, err := config.Load(c.configPath)
	if err != nil {
		return config.Config{}, err
	}
	if c.offline {
		cfg.Offline = true
	}
	if c.localRepo != "" {
		cfg.Local = c.localRepo
	}
	return cfg, nil
}

// openEnv wires config, cache, manager, session and system. The caller
// must Close the result.
func (c *CLI) openEnv(ctx context.Context) (*env, error) {
	logger := loggerFromContext(ctx)
	cfg, err := c.loadConfig()
	if err != nil {
		return nil, err
	}
	ch, err := cfg.OpenCache(ctx, logger)
	if err != nil {
		return nil, err
	}
	m := cfg.Manager(logger)
	sys, err := cfg.System(m, ch, logger)
	if err != nil {
		ch.Close()
		return nil, err
	}
	sess := cfg.Session(logger)
	sess.Listener = event.NewChain(event.NewLogListener(logger)).OnError(func(ev event.Event, _ event.Listener, err error) {
		logger.Warn("listener failed", "event", ev.Type(), "error", err)
	})
	logger.Debug("environment ready", "local", cfg.Local, "offline", cfg.Offline, "repositories", len(cfg.Repositories))
	return &env{cfg: cfg, manager: m, cache: ch, sess: sess, sys: sys}, nil
}

// Close releases connectors and the cache.
func (e *env) Close() error {
	return stderrors.Join(e.sess.Close(), e.cache.Close())
}

// =============================================================================
// Argument Helpers
// =============================================================================

// parseDependencies converts coordinates to dependencies of the given scope.
func parseDependencies(args []string, scope string) ([]artifact.Dependency, error) {
	deps := make([]artifact.Dependency, 0, len(args))
	for _, arg := range args {
		a, err := artifact.Parse(arg)
		if err != nil {
			return nil, err
		}
		deps = append(deps, artifact.NewDependency(a, artifact.Scope(scope)))
	}
	return deps, nil
}

// parseArtifact parses a coordinate and binds it to file.
func parseArtifact(coord, file string) (artifact.Artifact, error) {
	a, err := artifact.Parse(coord)
	if err != nil {
		return artifact.Artifact{}, err
	}
	return a.SetFile(file), nil
}

// pomFor returns the pom artifact accompanying a, bound to file.
func pomFor(a artifact.Artifact, file string) artifact.Artifact {
	pom := artifact.New(a.GroupID, a.ArtifactID, "", "pom", a.Version)
	return pom.SetFile(file)
}

// errorLines flattens an aggregated error into one message per leaf.
func errorLines(err error) []string {
	var coded *errors.Error
	if stderrors.As(err, &coded) {
		if _, joined := coded.Cause.(interface{ Unwrap() []error }); joined {
			err = coded.Cause
		}
	}
	var out []string
	for _, e := range errors.Collect(err) {
		out = append(out, strings.TrimSpace(e.Error()))
	}
	return out
}
