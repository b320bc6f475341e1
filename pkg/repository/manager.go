package repository

import (
	"context"
	"io"
	"slices"
	"strings"
	"sync"

	"github.com/charmbracelet/log"

	"github.com/matzehuels/depot/pkg/errors"
	"github.com/matzehuels/depot/pkg/transfer"
)

// ConnectorOptions are passed to a [Factory] when building a connector.
type ConnectorOptions struct {
	Listener transfer.Listener
	Workers  int
	Logger   *log.Logger
	// Offline refuses every repository that is not on the local machine.
	Offline bool
}

// Factory builds a connector for one repository.
type Factory func(ctx context.Context, repo RemoteRepository, opts ConnectorOptions) (transfer.Connector, error)

// Mirror redirects requests for matching repositories.
//
// MirrorOf is a comma-separated list of repository IDs. "*" matches every
// repository, "external:*" every repository not on localhost, and a "!id"
// entry excludes one repository.
type Mirror struct {
	ID       string `toml:"id"`
	URL      string `toml:"url"`
	MirrorOf string `toml:"mirror_of"`
}

// Matches reports whether the mirror applies to repo.
func (m Mirror) Matches(repo RemoteRepository) bool {
	matched := false
	for _, p := range strings.Split(m.MirrorOf, ",") {
		p = strings.TrimSpace(p)
		switch {
		case p == "":
		case strings.HasPrefix(p, "!"):
			if p[1:] == repo.ID {
				return false
			}
		case p == "*" || p == repo.ID:
			matched = true
		case p == "external:*":
			if !repo.IsLocalhost() {
				matched = true
			}
		}
	}
	return matched
}

// Manager hands out connectors and computes repository policies.
//
// The zero value is not usable; create one with [NewManager].
type Manager struct {
	// Mirrors are applied to raw repositories during aggregation.
	Mirrors []Mirror
	// ChecksumPolicy and UpdatePolicy override every repository's policy
	// when set.
	ChecksumPolicy string
	UpdatePolicy   string

	Logger *log.Logger

	mu        sync.RWMutex
	factories map[string]Factory
}

// NewManager creates a manager without any registered factories.
func NewManager(logger *log.Logger) *Manager {
	if logger == nil {
		logger = log.NewWithOptions(io.Discard, log.Options{})
	}
	return &Manager{Logger: logger, factories: make(map[string]Factory)}
}

// Register installs f for the given URL schemes, replacing earlier
// registrations.
func (m *Manager) Register(f Factory, schemes ...string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, s := range schemes {
		m.factories[strings.ToLower(s)] = f
	}
}

// Schemes lists the registered URL schemes in sorted order.
func (m *Manager) Schemes() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]string, 0, len(m.factories))
	for s := range m.factories {
		out = append(out, s)
	}
	slices.Sort(out)
	return out
}

// Connector returns a connector for repo. It fails with
// [errors.ErrCodeNoConnector] when no factory handles the repository's
// scheme or content type, and with [errors.ErrCodeOffline] when offline and
// the repository is remote.
func (m *Manager) Connector(ctx context.Context, repo RemoteRepository, opts ConnectorOptions) (transfer.Connector, error) {
	if ct := repo.ContentType; ct != "" && ct != DefaultContentType {
		return nil, errors.New(errors.ErrCodeNoConnector, "no connector for content type %q of repository %s", ct, repo.ID)
	}
	if opts.Offline && !repo.IsLocalhost() {
		return nil, errors.New(errors.ErrCodeOffline, "repository %s (%s) is not accessible in offline mode", repo.ID, repo.URL)
	}
	scheme := repo.Scheme()
	m.mu.RLock()
	f, ok := m.factories[scheme]
	m.mu.RUnlock()
	if !ok {
		return nil, errors.New(errors.ErrCodeNoConnector, "no connector for scheme %q of repository %s", scheme, repo.ID)
	}
	if opts.Logger == nil {
		opts.Logger = m.Logger
	}
	c, err := f(ctx, repo, opts)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeNoConnector, err, "create connector for %s", repo.ID)
	}
	m.Logger.Debug("connector created", "repository", repo.ID, "scheme", scheme)
	return c, nil
}

// Policy returns the effective policy for a request on repo. When both
// releases and snapshots are requested the two policies are merged: enabled
// if either is, the stricter checksum policy and the more frequent update
// policy. Manager-level overrides are applied last.
func (m *Manager) Policy(repo RemoteRepository, releases, snapshots bool) Policy {
	var p Policy
	switch {
	case releases && snapshots:
		p = mergePolicies(repo.Releases, repo.Snapshots)
	case releases:
		p = repo.Releases
	case snapshots:
		p = repo.Snapshots
	default:
		p = Policy{UpdatePolicy: UpdateNever, ChecksumPolicy: ChecksumIgnore}
	}
	if m.ChecksumPolicy != "" {
		p.ChecksumPolicy = m.ChecksumPolicy
	}
	if m.UpdatePolicy != "" {
		p.UpdatePolicy = m.UpdatePolicy
	}
	return p
}

func mergePolicies(a, b Policy) Policy {
	switch {
	case a.Enabled && !b.Enabled:
		return a
	case b.Enabled && !a.Enabled:
		return b
	}
	return Policy{
		Enabled:        a.Enabled,
		ChecksumPolicy: stricterChecksum(a.ChecksumPolicy, b.ChecksumPolicy),
		UpdatePolicy:   moreFrequentUpdate(a.UpdatePolicy, b.UpdatePolicy),
	}
}

var checksumRank = map[string]int{ChecksumFail: 0, ChecksumWarn: 1, "": 1, ChecksumIgnore: 2}

func stricterChecksum(a, b string) string {
	if checksumRank[b] < checksumRank[a] {
		return b
	}
	return a
}

func moreFrequentUpdate(a, b string) string {
	ra, errA := updateRank(a)
	rb, errB := updateRank(b)
	switch {
	case errA != nil:
		return b
	case errB != nil:
		return a
	case rb < ra:
		return b
	}
	return a
}

// Mirror returns the mirror repository standing in for repo, if any
// configured mirror matches. The first matching mirror wins; an exact ID
// match takes precedence over wildcards.
func (m *Manager) Mirror(repo RemoteRepository) (RemoteRepository, bool) {
	var chosen *Mirror
	for i := range m.Mirrors {
		mi := &m.Mirrors[i]
		if !mi.Matches(repo) {
			continue
		}
		if slices.Contains(strings.Split(mi.MirrorOf, ","), repo.ID) {
			chosen = mi
			break
		}
		if chosen == nil {
			chosen = mi
		}
	}
	if chosen == nil {
		return RemoteRepository{}, false
	}
	mirror := NewRemote(chosen.ID, chosen.URL)
	mirror.Releases = repo.Releases
	mirror.Snapshots = repo.Snapshots
	mirror.ContentType = repo.ContentType
	mirror.Mirrored = []RemoteRepository{repo}
	return mirror, true
}

// AggregateRepositories merges recessive repositories into the dominant
// list. The result starts with the dominant entries in order; a recessive
// entry whose ID is already present is dropped, except that two mirrors with
// the same ID combine the repositories they stand in for. Raw recessive
// repositories (as declared in a descriptor) are passed through the
// configured mirrors first.
func (m *Manager) AggregateRepositories(dominant, recessive []RemoteRepository, recessiveIsRaw bool) []RemoteRepository {
	if len(recessive) == 0 {
		return dominant
	}
	result := slices.Clone(dominant)
next:
	for _, repo := range recessive {
		if recessiveIsRaw {
			if mirror, ok := m.Mirror(repo); ok {
				repo = mirror
			}
		}
		for i, dom := range result {
			if dom.ID != repo.ID {
				continue
			}
			if len(dom.Mirrored) > 0 && len(repo.Mirrored) > 0 {
				result[i] = mergeMirrors(dom, repo)
			}
			continue next
		}
		result = append(result, repo)
	}
	return result
}

func mergeMirrors(dom, rec RemoteRepository) RemoteRepository {
	merged := dom
	merged.Mirrored = slices.Clone(dom.Mirrored)
	for _, r := range rec.Mirrored {
		if !slices.ContainsFunc(merged.Mirrored, func(x RemoteRepository) bool { return x.ID == r.ID }) {
			merged.Mirrored = append(merged.Mirrored, r)
			merged.Releases = mergePolicies(merged.Releases, r.Releases)
			merged.Snapshots = mergePolicies(merged.Snapshots, r.Snapshots)
		}
	}
	return merged
}
