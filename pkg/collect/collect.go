// Package collect expands a dependency request into the raw dependency graph.
//
// The [Collector] reads one descriptor per edge, breadth first, and adds the
// declared dependencies as child edges. While doing so it applies dependency
// management, prunes excluded artifacts, follows relocations, resolves
// version ranges and cuts cycles. Conflicts are left in the graph; see
// package conflict for choosing winners.
//
// Descriptor reads of one depth level run concurrently on a bounded pool.
// The graph itself is only mutated between levels, by the calling goroutine,
// so the result does not depend on scheduling.
package collect

import (
	"context"
	stderrors "errors"
	"io"
	"slices"

	"github.com/charmbracelet/log"

	"github.com/matzehuels/depot/pkg/artifact"
	"github.com/matzehuels/depot/pkg/errors"
	"github.com/matzehuels/depot/pkg/graph"
	"github.com/matzehuels/depot/pkg/repository"
	"github.com/matzehuels/depot/pkg/session"
	"github.com/matzehuels/depot/pkg/version"
)

// Descriptor is what a [DescriptorReader] knows about one artifact.
type Descriptor struct {
	Artifact artifact.Artifact
	// Relocation is set when the artifact moved to another coordinate.
	Relocation   *artifact.Artifact
	Dependencies []artifact.Dependency
	Managed      []artifact.Dependency
	Repositories []repository.RemoteRepository
	Aliases      []artifact.Artifact
}

// DescriptorReader loads the descriptor of an artifact from the given
// repositories. Implementations must be safe for concurrent use.
//
// A descriptor that exists nowhere should be reported with an error coded
// [errors.ErrCodeDescriptorMissing] or [errors.ErrCodeNotFound].
type DescriptorReader interface {
	Read(ctx context.Context, sess *session.Session, a artifact.Artifact, repos []repository.RemoteRepository) (*Descriptor, error)
}

// VersionLister lists the known versions of an artifact, used to resolve
// version ranges.
type VersionLister interface {
	Versions(ctx context.Context, sess *session.Session, a artifact.Artifact, repos []repository.RemoteRepository) ([]version.Version, error)
}

// Defaults for [Options].
const (
	DefaultWorkers        = 8
	DefaultMaxDepth       = 64
	DefaultMaxRelocations = 16
	DefaultMaxNodes       = 100_000
)

// DefaultDropTransitive are the scopes of transitive dependencies that are
// not collected.
var DefaultDropTransitive = []artifact.Scope{artifact.ScopeTest, artifact.ScopeProvided}

// Options tune a [Collector].
type Options struct {
	Workers        int
	MaxDepth       int
	MaxRelocations int
	// MaxNodes bounds the size of the raw graph. Expansion stops adding
	// children once it is reached and records an error.
	MaxNodes int

	// FailFast aborts collection on the first descriptor error.
	FailFast bool
	// ManageDirect applies the request's managed dependencies to the direct
	// dependencies of the root as well.
	ManageDirect bool
	// SkipOptional collects optional transitive dependencies without
	// expanding their children.
	SkipOptional bool
	// DropTransitive lists scopes whose dependencies are ignored below the
	// first level. Nil means [DefaultDropTransitive]; use an empty slice to
	// keep everything.
	DropTransitive []artifact.Scope
}

// WithDefaults fills zero fields.
func (o Options) WithDefaults() Options {
	if o.Workers <= 0 {
		o.Workers = DefaultWorkers
	}
	if o.MaxDepth <= 0 {
		o.MaxDepth = DefaultMaxDepth
	}
	if o.MaxRelocations <= 0 {
		o.MaxRelocations = DefaultMaxRelocations
	}
	if o.MaxNodes <= 0 {
		o.MaxNodes = DefaultMaxNodes
	}
	if o.DropTransitive == nil {
		o.DropTransitive = slices.Clone(DefaultDropTransitive)
	}
	return o
}

// Request describes what to collect.
//
// With a Root artifact its descriptor is read and Dependencies are added in
// front of the declared ones, replacing declarations with the same key.
// Without one the graph gets a synthetic root whose children are exactly
// Dependencies.
type Request struct {
	Root         artifact.Dependency
	Dependencies []artifact.Dependency
	Managed      []artifact.Dependency
	// Pins force versions at every depth, the root and its direct
	// dependencies included, overriding declared and managed versions.
	Pins         []artifact.Dependency
	Repositories []repository.RemoteRepository
	// RequestContext is copied onto every edge; "project" when empty.
	RequestContext string
}

// HasRoot reports whether the request names a root artifact.
func (r Request) HasRoot() bool { return r.Root.Artifact.ArtifactID != "" }

// Result is the raw graph plus everything that went wrong on the way.
type Result struct {
	Graph *graph.Graph
	Root  graph.EdgeID
	// Errors holds non-fatal problems, mostly [*DescriptorError] values.
	Errors []error
	// Cycles lists each detected cycle as the path of "group:artifact"
	// identifiers, first and last entry equal.
	Cycles [][]string
}

// Err joins Errors, or returns nil.
func (r *Result) Err() error {
	return stderrors.Join(r.Errors...)
}

// Collector builds raw dependency graphs.
type Collector struct {
	Reader DescriptorReader
	// Versions resolves ranges. Without it a range is a descriptor error.
	Versions VersionLister
	Manager  *repository.Manager
	Logger   *log.Logger
	Options  Options
}

// New creates a collector with default options.
func New(reader DescriptorReader, versions VersionLister, manager *repository.Manager, logger *log.Logger) *Collector {
	return &Collector{Reader: reader, Versions: versions, Manager: manager, Logger: logger}
}

// Collect expands req. The returned error is reserved for invalid requests,
// cancellation and, with FailFast, the first descriptor error; in the last
// case the partial result is returned too.
func (c *Collector) Collect(ctx context.Context, sess *session.Session, req Request) (*Result, error) {
	if c == nil || c.Reader == nil {
		return nil, errors.New(errors.ErrCodeUsage, "collector has no descriptor reader")
	}
	if !req.HasRoot() && len(req.Dependencies) == 0 {
		return nil, errors.New(errors.ErrCodeUsage, "collect request names neither a root nor dependencies")
	}
	logger := c.Logger
	if logger == nil {
		logger = log.NewWithOptions(io.Discard, log.Options{})
	}
	manager := c.Manager
	if manager == nil {
		manager = repository.NewManager(logger)
	}
	if req.RequestContext == "" {
		req.RequestContext = "project"
	}
	r := &run{
		c:       c,
		sess:    sess,
		opts:    c.Options.WithDefaults(),
		log:     logger,
		manager: manager,
		req:     req,
		memo:    newMemo(),
		pins:    newManagement(req.Pins),
		g:       graph.New(),
		res:     &Result{},
	}
	return r.collect(ctx)
}
