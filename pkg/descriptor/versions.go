package descriptor

import (
	"context"
	stderrors "errors"
	"os"
	"slices"
	"time"

	"github.com/charmbracelet/log"

	"github.com/matzehuels/depot/pkg/artifact"
	"github.com/matzehuels/depot/pkg/cache"
	"github.com/matzehuels/depot/pkg/collect"
	"github.com/matzehuels/depot/pkg/errors"
	"github.com/matzehuels/depot/pkg/event"
	"github.com/matzehuels/depot/pkg/repository"
	"github.com/matzehuels/depot/pkg/session"
	"github.com/matzehuels/depot/pkg/transfer"
	"github.com/matzehuels/depot/pkg/version"
)

// DefaultVersionsTTL is how long version lists stay cached.
const DefaultVersionsTTL = time.Hour

// Lister lists the versions of an artifact from the maven-metadata.xml of
// every repository plus the locally installed one.
//
// Downloaded metadata is kept in the local repository. It is fetched again
// only when the repository's update policy says so, as judged from the
// session's [session.Tracker].
type Lister struct {
	Manager *repository.Manager
	// Cache holds merged version lists. Nil disables caching.
	Cache  cache.Cache
	Keyer  cache.Keyer
	TTL    time.Duration
	Logger *log.Logger

	now func() time.Time
}

var _ collect.VersionLister = (*Lister)(nil)

// NewLister creates a lister that downloads through m.
func NewLister(m *repository.Manager, c cache.Cache, logger *log.Logger) *Lister {
	if logger == nil {
		logger = discard
	}
	return &Lister{
		Manager: m,
		Cache:   cache.Observe(c, "versions"),
		Keyer:   cache.NewDefaultKeyer(),
		TTL:     DefaultVersionsTTL,
		Logger:  logger,
		now:     time.Now,
	}
}

func (l *Lister) log() *log.Logger {
	if l.Logger == nil {
		return discard
	}
	return l.Logger
}

func (l *Lister) clock() time.Time {
	if l.now == nil {
		return time.Now()
	}
	return l.now()
}

// Versions returns the known versions of a in ascending order. An error is
// returned only when no version was found and some repository failed.
func (l *Lister) Versions(ctx context.Context, sess *session.Session, a artifact.Artifact, repos []repository.RemoteRepository) ([]version.Version, error) {
	if l.Manager == nil || sess == nil {
		return nil, errors.New(errors.ErrCodeUsage, "version lister needs a repository manager and a session")
	}
	ids := make([]string, len(repos))
	for i, r := range repos {
		ids[i] = r.ID
	}
	keyer := l.Keyer
	if keyer == nil {
		keyer = cache.DefaultKeyer{}
	}
	key := keyer.VersionsKey(a.GroupID, a.ArtifactID, ids)
	if l.Cache != nil {
		if raw, ok, err := cache.GetJSON[[]string](ctx, l.Cache, key); err == nil && ok {
			return parseVersions(raw), nil
		}
	}

	md := ArtifactMetadata(a.GroupID, a.ArtifactID)
	merged := NewMetadata(a.GroupID, a.ArtifactID)
	if local, err := ReadMetadata(sess.Local.MetadataPath(md, "")); err == nil {
		merged.Merge(local)
	}
	var errs []error
	for _, repo := range repos {
		path, err := l.fetch(ctx, sess, md, repo)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, ctxErr
			}
			errs = append(errs, err)
			continue
		}
		if path == "" {
			continue
		}
		m, err := ReadMetadata(path)
		if err != nil {
			sess.Fire(event.New(event.MetadataInvalid,
				event.WithMetadata(md.SetFile(path)), event.WithRepository(repo), event.WithErrors(err)))
			errs = append(errs, err)
			continue
		}
		merged.Merge(m)
	}

	raw := merged.AllVersions()
	if len(raw) == 0 && len(errs) > 0 {
		return nil, errors.Wrap(errors.ErrCodeNotFound, stderrors.Join(errs...), "no versions of %s:%s", a.GroupID, a.ArtifactID)
	}
	if l.Cache != nil && len(errs) == 0 {
		if err := cache.SetJSON(ctx, l.Cache, key, raw, l.TTL); err != nil {
			l.log().Debug("versions cache write failed", "artifact", a.ID(), "err", err)
		}
	}
	return parseVersions(raw), nil
}

func parseVersions(raw []string) []version.Version {
	out := make([]version.Version, 0, len(raw))
	for _, s := range raw {
		if v, err := version.Parse(s); err == nil {
			out = append(out, v)
		}
	}
	slices.SortFunc(out, version.Version.Compare)
	return out
}

// fetch returns the local path of repo's copy of md, downloading it when the
// update policy requires. It returns "" when the repository has none.
func (l *Lister) fetch(ctx context.Context, sess *session.Session, md artifact.Metadata, repo repository.RemoteRepository) (string, error) {
	policy := sess.Policy(l.Manager, repo, true, true)
	if !policy.Enabled {
		return "", nil
	}
	path := sess.Local.MetadataPath(md, repo.ID)
	_, statErr := os.Stat(path)
	exists := statErr == nil
	trackKey := session.TrackerKey(repo.ID, repository.Layout{}.MetadataPath(md))
	now := l.clock()
	if !l.updateRequired(ctx, sess, policy, trackKey, now) {
		if exists {
			return path, nil
		}
		// Checked recently and the repository had nothing.
		return "", nil
	}

	sess.Fire(event.New(event.MetadataResolving, event.WithMetadata(md), event.WithRepository(repo)))
	conn, err := sess.Connector(ctx, l.Manager, repo)
	if err != nil {
		if exists {
			l.log().Debug("using stale metadata", "repository", repo.ID, "metadata", md, "err", err)
			return path, nil
		}
		return "", err
	}
	d := &transfer.MetadataDownload{
		Metadata:       md,
		File:           path,
		ChecksumPolicy: policy.ChecksumPolicy,
		RequestContext: requestContext,
	}
	if err := conn.Get(ctx, nil, []*transfer.MetadataDownload{d}); err != nil {
		return "", err
	}
	notFound := errors.Is(d.Err, errors.ErrCodeNotFound)
	if d.Err == nil || notFound {
		l.touch(ctx, sess, trackKey, now)
	}
	sess.Fire(event.New(event.MetadataResolved,
		event.WithMetadata(md.SetFile(path)), event.WithRepository(repo), event.WithErrors(d.Err)))

	switch {
	case d.Err == nil:
		return path, nil
	case notFound:
		if exists {
			os.Remove(path)
		}
		return "", nil
	case exists:
		l.log().Debug("using stale metadata", "repository", repo.ID, "metadata", md, "err", d.Err)
		return path, nil
	}
	return "", d.Err
}

func (l *Lister) updateRequired(ctx context.Context, sess *session.Session, policy repository.Policy, key string, now time.Time) bool {
	if sess.Tracker == nil {
		return true
	}
	last, err := sess.Tracker.LastChecked(ctx, key)
	if err != nil {
		l.log().Debug("update tracker", "key", key, "err", err)
		return true
	}
	return policy.IsUpdateRequired(last, now)
}

func (l *Lister) touch(ctx context.Context, sess *session.Session, key string, at time.Time) {
	if sess.Tracker == nil {
		return
	}
	if err := sess.Tracker.Touch(ctx, key, at); err != nil {
		l.log().Debug("update tracker", "key", key, "err", err)
	}
}
