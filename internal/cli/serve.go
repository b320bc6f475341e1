package cli

import (
	"context"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/matzehuels/depot/internal/server"
	"github.com/matzehuels/depot/pkg/connector"
	"github.com/matzehuels/depot/pkg/connector/file"
	"github.com/matzehuels/depot/pkg/connector/gridfs"
	"github.com/matzehuels/depot/pkg/metrics"
	"github.com/matzehuels/depot/pkg/repository"
)

type serveOpts struct {
	addr     string
	dir      string
	url      string
	readOnly bool
	metrics  bool
}

// serveCommand creates the serve command.
func (c *CLI) serveCommand() *cobra.Command {
	var opts serveOpts

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve a repository over HTTP",
		Long: `Serve exposes a directory (default: the local repository) or a MongoDB
GridFS bucket as an HTTP repository that depot and other Maven-compatible
clients can resolve from and deploy to.

Prometheus metrics are served at /metrics unless --metrics=false.`,
		Example: `  depot serve --addr :8080
  depot serve --dir /srv/releases --read-only
  depot serve --url "mongodb://localhost:27017/depot?bucket=releases"`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if opts.dir != "" && opts.url != "" {
				return fmt.Errorf("--dir and --url are mutually exclusive")
			}
			return c.runServe(cmd.Context(), &opts)
		},
	}

	cmd.Flags().StringVar(&opts.addr, "addr", ":8080", "listen address")
	cmd.Flags().StringVar(&opts.dir, "dir", "", "directory to serve (default: local repository)")
	cmd.Flags().StringVar(&opts.url, "url", "", "mongodb:// repository to serve instead of a directory")
	cmd.Flags().BoolVar(&opts.readOnly, "read-only", false, "reject uploads")
	cmd.Flags().BoolVar(&opts.metrics, "metrics", true, "expose Prometheus metrics at /metrics")

	return cmd
}

func (c *CLI) runServe(ctx context.Context, opts *serveOpts) error {
	logger := loggerFromContext(ctx)

	backend, source, err := c.serveBackend(ctx, opts)
	if err != nil {
		return err
	}
	defer backend.Close()

	srvOpts := server.Options{ReadOnly: opts.readOnly, Logger: logger}
	if opts.metrics {
		reg := prometheus.NewRegistry()
		reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
		metrics.New(reg).Install()
		srvOpts.Metrics = promhttp.HandlerFor(reg, promhttp.HandlerOpts{})
	}

	printSuccess("Serving %s", source)
	printKeyValue("Address", opts.addr)
	if opts.readOnly {
		printKeyValue("Mode", "read-only")
	}
	return server.New(backend, srvOpts).ListenAndServe(ctx, opts.addr)
}

// serveBackend opens the backend named by the flags.
func (c *CLI) serveBackend(ctx context.Context, opts *serveOpts) (connector.Backend, string, error) {
	if opts.url != "" {
		b, err := gridfs.Open(ctx, repository.NewRemote("serve", opts.url), loggerFromContext(ctx))
		return b, opts.url, err
	}
	dir := opts.dir
	if dir == "" {
		cfg, err := c.loadConfig()
		if err != nil {
			return nil, "", err
		}
		dir = cfg.Local
	}
	return file.New(dir), dir, nil
}
