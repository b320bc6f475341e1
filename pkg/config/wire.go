package config

import (
	"context"
	"path/filepath"

	"github.com/charmbracelet/log"

	"github.com/matzehuels/depot/pkg/artifact"
	"github.com/matzehuels/depot/pkg/cache"
	"github.com/matzehuels/depot/pkg/collect"
	"github.com/matzehuels/depot/pkg/conflict"
	"github.com/matzehuels/depot/pkg/connector"
	"github.com/matzehuels/depot/pkg/connector/file"
	"github.com/matzehuels/depot/pkg/connector/gridfs"
	"github.com/matzehuels/depot/pkg/connector/httprepo"
	"github.com/matzehuels/depot/pkg/descriptor"
	"github.com/matzehuels/depot/pkg/errors"
	"github.com/matzehuels/depot/pkg/repository"
	"github.com/matzehuels/depot/pkg/session"
	"github.com/matzehuels/depot/pkg/system"
)

// Remotes returns the configured repositories in declaration order.
func (c Config) Remotes() []repository.RemoteRepository {
	out := make([]repository.RemoteRepository, len(c.Repositories))
	for i, r := range c.Repositories {
		out[i] = r.Remote()
	}
	return out
}

// Remote returns the repository with the given ID.
func (c Config) Remote(id string) (repository.RemoteRepository, error) {
	for _, r := range c.Repositories {
		if r.ID == id {
			return r.Remote(), nil
		}
	}
	return repository.RemoteRepository{}, errors.New(errors.ErrCodeNotFound, "no repository %q in config", id)
}

// ScopeTable builds the scope widening table from Scopes.Order.
func (c Config) ScopeTable() (*artifact.ScopeTable, error) {
	order := make([]artifact.Scope, len(c.Scopes.Order))
	for i, s := range c.Scopes.Order {
		order[i] = artifact.Scope(s)
	}
	return artifact.NewScopeTable(order)
}

// CollectOptions converts the [collect] section.
func (c Config) CollectOptions() collect.Options {
	opts := collect.Options{
		Workers:        c.Collect.Workers,
		MaxDepth:       c.Collect.MaxDepth,
		MaxRelocations: c.Collect.MaxRelocations,
		MaxNodes:       c.Collect.MaxNodes,
		FailFast:       c.Collect.FailFast,
		ManageDirect:   c.Collect.ManageDirect,
	}
	if c.Collect.DropTransitive != nil {
		opts.DropTransitive = []artifact.Scope{}
		for _, s := range c.Collect.DropTransitive {
			opts.DropTransitive = append(opts.DropTransitive, artifact.Scope(s))
		}
	}
	return opts.WithDefaults()
}

// Manager creates a repository manager with connectors for file, http(s)
// and mongodb repositories, the configured mirrors and policy overrides.
func (c Config) Manager(logger *log.Logger) *repository.Manager {
	m := repository.NewManager(logger)
	m.Mirrors = c.Mirrors
	m.ChecksumPolicy = c.Transfer.Checksum
	m.UpdatePolicy = c.Transfer.Update
	m.Register(connector.Factory(file.Open), "file")
	m.Register(connector.Factory(c.openHTTP), "http", "https")
	m.Register(connector.Factory(gridfs.Open), "mongodb", "mongodb+srv")
	return m
}

func (c Config) openHTTP(_ context.Context, repo repository.RemoteRepository, logger *log.Logger) (connector.Backend, error) {
	opts := []httprepo.Option{httprepo.WithRetry(c.Transfer.Retries, c.Transfer.RetryDelay.Duration)}
	if logger != nil {
		opts = append(opts, httprepo.WithLogger(logger))
	}
	return httprepo.New(repo.URL, opts...)
}

// OpenCache opens the configured cache backend. A file cache that cannot
// be created falls back to no caching.
func (c Config) OpenCache(ctx context.Context, logger *log.Logger) (cache.Cache, error) {
	switch c.Cache.Backend {
	case CacheNone:
		return cache.NewNullCache(), nil
	case CacheRedis:
		rc, err := cache.NewRedisCache(ctx, cache.RedisOptions{
			Addr:     c.Cache.RedisAddr,
			Password: c.Cache.RedisPassword,
			DB:       c.Cache.RedisDB,
			Prefix:   c.Cache.RedisPrefix,
		})
		if err != nil {
			return nil, errors.Wrap(errors.ErrCodeNetwork, err, "connect to redis at %s", c.Cache.RedisAddr)
		}
		return rc, nil
	}
	fc, err := cache.NewFileCache(c.Cache.Dir)
	if err != nil {
		if logger != nil {
			logger.Warn("cache disabled", "dir", c.Cache.Dir, "error", err)
		}
		return cache.NewNullCache(), nil
	}
	return fc, nil
}

// Session creates a session over the local repository with the offline
// switch, worker count and an update tracker stored next to the local
// repository.
func (c Config) Session(logger *log.Logger) *session.Session {
	sess := session.New(c.Local)
	sess.Offline = c.Offline
	sess.Workers = c.Transfer.Workers
	sess.Logger = logger
	sess.Tracker = session.NewFileTracker(filepath.Join(c.Local, session.TrackerFile))
	return sess
}

// System wires a resolution system over m and ch.
func (c Config) System(m *repository.Manager, ch cache.Cache, logger *log.Logger) (*system.System, error) {
	scopes, err := c.ScopeTable()
	if err != nil {
		return nil, err
	}
	reader := descriptor.NewReader(m, ch, logger)
	reader.TTL = c.Cache.TTL.Duration
	return system.New(system.Config{
		Manager:  m,
		Reader:   reader,
		Versions: descriptor.NewLister(m, ch, logger),
		Scopes:   scopes,
		Collect:  c.CollectOptions(),
		Conflict: conflict.Options{IncludeOptional: c.Collect.IncludeOptional},
		Strict:   c.Collect.Strict,
		Logger:   logger,
	})
}
