// Package descriptor reads POM descriptors and repository metadata for the
// collector.
//
// A [Reader] turns the pom of an artifact into a [collect.Descriptor]: it
// merges the parent chain, expands ${...} properties, imports managed
// dependencies from BOMs and applies the pom's own dependency management to
// its dependencies. Poms are read from the session's local repository and
// downloaded from the remote repositories when missing. Parsed descriptors
// are cached.
//
// A [Lister] answers version range queries from maven-metadata.xml files,
// refreshing them according to the repository update policy.
package descriptor

import (
	"context"
	stderrors "errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"slices"
	"time"

	"github.com/charmbracelet/log"

	"github.com/matzehuels/depot/pkg/artifact"
	"github.com/matzehuels/depot/pkg/cache"
	"github.com/matzehuels/depot/pkg/collect"
	"github.com/matzehuels/depot/pkg/errors"
	"github.com/matzehuels/depot/pkg/repository"
	"github.com/matzehuels/depot/pkg/session"
	"github.com/matzehuels/depot/pkg/transfer"
)

const (
	// DefaultTTL is how long parsed descriptors stay cached.
	DefaultTTL = 24 * time.Hour
	// DefaultMaxParents bounds parent and BOM import chains.
	DefaultMaxParents = 32

	requestContext = "descriptor"
)

var discard = log.NewWithOptions(io.Discard, log.Options{})

// Reader reads pom descriptors. It is safe for concurrent use.
type Reader struct {
	Manager *repository.Manager
	// Cache holds parsed descriptors. Nil disables caching.
	Cache      cache.Cache
	Keyer      cache.Keyer
	TTL        time.Duration
	MaxParents int
	Logger     *log.Logger
}

var _ collect.DescriptorReader = (*Reader)(nil)

// NewReader creates a reader that downloads through m and caches in c.
func NewReader(m *repository.Manager, c cache.Cache, logger *log.Logger) *Reader {
	if logger == nil {
		logger = discard
	}
	return &Reader{
		Manager:    m,
		Cache:      cache.Observe(c, "descriptor"),
		Keyer:      cache.NewDefaultKeyer(),
		TTL:        DefaultTTL,
		MaxParents: DefaultMaxParents,
		Logger:     logger,
	}
}

func (r *Reader) log() *log.Logger {
	if r.Logger == nil {
		return discard
	}
	return r.Logger
}

func (r *Reader) keyer() cache.Keyer {
	if r.Keyer == nil {
		return cache.DefaultKeyer{}
	}
	return r.Keyer
}

// Read returns the descriptor of a. Errors are coded
// [errors.ErrCodeDescriptorMissing] when no repository has the pom and
// [errors.ErrCodeDescriptorInvalid] when it cannot be interpreted.
func (r *Reader) Read(ctx context.Context, sess *session.Session, a artifact.Artifact, repos []repository.RemoteRepository) (*collect.Descriptor, error) {
	if r.Manager == nil || sess == nil {
		return nil, errors.New(errors.ErrCodeUsage, "descriptor reader needs a repository manager and a session")
	}
	key := r.keyer().DescriptorKey(a)
	if r.Cache != nil {
		d, ok, err := cache.GetJSON[collect.Descriptor](ctx, r.Cache, key)
		if err != nil {
			r.log().Debug("descriptor cache read failed", "artifact", a, "err", err)
		} else if ok {
			return &d, nil
		}
	}

	m, err := r.build(ctx, sess, a.GroupID, a.ArtifactID, a.Version, repos, nil)
	if err != nil {
		return nil, err
	}
	d, err := m.descriptor(a, r.log())
	if err != nil {
		return nil, err
	}
	if r.Cache != nil {
		if err := cache.SetJSON(ctx, r.Cache, key, d, r.TTL); err != nil {
			r.log().Debug("descriptor cache write failed", "artifact", a, "err", err)
		}
	}
	return d, nil
}

// build returns the interpolated effective model of g:a:v. chain lists the
// coordinates already being built and guards against cycles.
func (r *Reader) build(ctx context.Context, sess *session.Session, g, a, v string, repos []repository.RemoteRepository, chain []string) (*model, error) {
	m, err := r.raw(ctx, sess, g, a, v, repos, chain)
	if err != nil {
		return nil, err
	}
	m.interpolate()
	if err := r.importManaged(ctx, sess, m, r.Manager.AggregateRepositories(repos, m.remoteRepositories(), true), append(slices.Clone(chain), m.coordinate())); err != nil {
		return nil, err
	}
	m.applyManagement()
	return m, nil
}

// raw loads the pom of g:a:v and merges its parents, without interpolation.
func (r *Reader) raw(ctx context.Context, sess *session.Session, g, a, v string, repos []repository.RemoteRepository, chain []string) (*model, error) {
	coord := g + ":" + a + ":" + v
	if slices.Contains(chain, coord) {
		return nil, errors.New(errors.ErrCodeDescriptorInvalid, "%s inherits from or imports itself", coord)
	}
	if limit := r.maxParents(); len(chain) >= limit {
		return nil, errors.New(errors.ErrCodeDescriptorInvalid, "%s: more than %d parents or imports", coord, limit)
	}
	pomArtifact := artifact.New(g, a, "", "pom", v)
	if err := pomArtifact.Validate(); err != nil {
		return nil, errors.Wrap(errors.ErrCodeDescriptorInvalid, err, "descriptor coordinates %s", coord)
	}
	p, err := r.load(ctx, sess, pomArtifact, repos)
	if err != nil {
		return nil, err
	}

	var parent *model
	if pp := p.Parent; pp != nil {
		own := newModel(p, nil)
		parentRepos := r.Manager.AggregateRepositories(repos, own.remoteRepositories(), true)
		parent, err = r.raw(ctx, sess, pp.GroupID, pp.ArtifactID, pp.Version, parentRepos, append(slices.Clone(chain), coord))
		if err != nil {
			if ctx.Err() != nil {
				return nil, err
			}
			return nil, errors.Wrap(errors.ErrCodeDescriptorInvalid, err, "%s: parent %s:%s:%s", coord, pp.GroupID, pp.ArtifactID, pp.Version)
		}
	}
	return newModel(p, parent), nil
}

// importManaged replaces import-scoped pom entries of the dependency
// management with the managed dependencies of the referenced BOMs.
func (r *Reader) importManaged(ctx context.Context, sess *session.Session, m *model, repos []repository.RemoteRepository, chain []string) error {
	var kept, imported []pomDependency
	for _, d := range m.managed {
		if d.Scope != "import" || d.Type != "pom" {
			kept = append(kept, d)
			continue
		}
		if unresolved(d.GroupID, d.ArtifactID, d.Version) || d.Version == "" {
			return errors.New(errors.ErrCodeDescriptorInvalid, "%s: cannot import %s:%s:%s", m.coordinate(), d.GroupID, d.ArtifactID, d.Version)
		}
		bom, err := r.build(ctx, sess, d.GroupID, d.ArtifactID, d.Version, repos, chain)
		if err != nil {
			if ctx.Err() != nil {
				return err
			}
			return errors.Wrap(errors.ErrCodeDescriptorInvalid, err, "%s: import %s:%s:%s", m.coordinate(), d.GroupID, d.ArtifactID, d.Version)
		}
		imported = mergeDependencies(imported, bom.managed)
	}
	m.managed = mergeDependencies(kept, imported)
	return nil
}

func (r *Reader) maxParents() int {
	if r.MaxParents <= 0 {
		return DefaultMaxParents
	}
	return r.MaxParents
}

// load returns the parsed pom, reading the local repository first.
func (r *Reader) load(ctx context.Context, sess *session.Session, pom artifact.Artifact, repos []repository.RemoteRepository) (*pomProject, error) {
	path := sess.Local.ArtifactPath(pom)
	data, err := os.ReadFile(path)
	if stderrors.Is(err, fs.ErrNotExist) {
		if err := r.download(ctx, sess, pom, path, repos); err != nil {
			return nil, err
		}
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeDescriptorMissing, err, "read %s", path)
	}
	p, err := parsePOM(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", pom, err)
	}
	return p, nil
}

// download fetches pom into path from the first repository that has it.
func (r *Reader) download(ctx context.Context, sess *session.Session, pom artifact.Artifact, path string, repos []repository.RemoteRepository) error {
	var errs []error
	snapshot := pom.IsSnapshot()
	for _, repo := range repos {
		if err := ctx.Err(); err != nil {
			return err
		}
		policy := sess.Policy(r.Manager, repo, !snapshot, snapshot)
		if !policy.Enabled {
			continue
		}
		conn, err := sess.Connector(ctx, r.Manager, repo)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		d := &transfer.ArtifactDownload{
			Artifact:       pom,
			File:           path,
			ChecksumPolicy: policy.ChecksumPolicy,
			RequestContext: requestContext,
		}
		if err := conn.Get(ctx, []*transfer.ArtifactDownload{d}, nil); err != nil {
			errs = append(errs, err)
			continue
		}
		if d.Err == nil {
			r.log().Debug("downloaded descriptor", "artifact", pom, "repository", repo.ID)
			return nil
		}
		errs = append(errs, d.Err)
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	return errors.Wrap(errors.ErrCodeDescriptorMissing, stderrors.Join(errs...), "descriptor %s not found in %d repositories", pom, len(repos))
}
