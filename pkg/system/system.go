// Package system is the entry point of the resolution engine.
//
// A [System] wires a collector, a conflict resolver and a repository manager
// into the four operations a client needs:
//
//   - [System.CollectDependencies] builds the raw dependency graph.
//   - [System.ResolveDependencies] collects, picks winners and downloads
//     every winning artifact.
//   - [System.Install] copies artifacts into the local repository.
//   - [System.Deploy] uploads artifacts to a remote repository.
//
// All operations take a [session.Session], which names the local repository
// and carries the listeners and policy overrides of the run.
//
//	sys, err := system.New(system.Config{Manager: m, Reader: r, Versions: l})
//	res, err := sys.ResolveDependencies(ctx, sess, collect.Request{...})
package system

import (
	"context"
	"io"

	"github.com/charmbracelet/log"

	"github.com/matzehuels/depot/pkg/artifact"
	"github.com/matzehuels/depot/pkg/collect"
	"github.com/matzehuels/depot/pkg/conflict"
	"github.com/matzehuels/depot/pkg/errors"
	"github.com/matzehuels/depot/pkg/repository"
	"github.com/matzehuels/depot/pkg/session"
)

// Config assembles a [System].
type Config struct {
	// Manager looks up connectors and policies. Required.
	Manager *repository.Manager
	// Reader loads descriptors. Required.
	Reader collect.DescriptorReader
	// Versions resolves version ranges; nil turns ranges into errors.
	Versions collect.VersionLister
	// Scopes orders scopes for widening; nil means the default table.
	Scopes *artifact.ScopeTable

	Collect  collect.Options
	Conflict conflict.Options

	// Strict fails a resolution on collection errors even when every
	// winning artifact resolved.
	Strict bool

	Logger *log.Logger
}

// System runs collections, resolutions, installs and deploys.
type System struct {
	Collector *collect.Collector
	Resolver  *conflict.Resolver
	Manager   *repository.Manager
	Logger    *log.Logger
	Strict    bool
}

// New builds a system from cfg.
func New(cfg Config) (*System, error) {
	if cfg.Manager == nil {
		return nil, errors.New(errors.ErrCodeUsage, "system needs a repository manager")
	}
	if cfg.Reader == nil {
		return nil, errors.New(errors.ErrCodeUsage, "system needs a descriptor reader")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = log.NewWithOptions(io.Discard, log.Options{})
	}

	c := collect.New(cfg.Reader, cfg.Versions, cfg.Manager, logger)
	c.Options = cfg.Collect.WithDefaults()
	r := conflict.New(cfg.Scopes, logger)
	r.Options = cfg.Conflict

	return &System{
		Collector: c,
		Resolver:  r,
		Manager:   cfg.Manager,
		Logger:    logger,
		Strict:    cfg.Strict,
	}, nil
}

// CollectDependencies builds the raw dependency graph of req. Conflicts are
// left in the graph.
func (s *System) CollectDependencies(ctx context.Context, sess *session.Session, req collect.Request) (*collect.Result, error) {
	if sess == nil {
		return nil, errors.New(errors.ErrCodeUsage, "collect needs a session")
	}
	return s.Collector.Collect(ctx, sess, req)
}
