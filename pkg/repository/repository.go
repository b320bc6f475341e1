package repository

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/matzehuels/depot/pkg/errors"
)

// DefaultContentType is the repository layout every connector understands.
const DefaultContentType = "default"

// Update policies.
const (
	UpdateAlways   = "always"
	UpdateDaily    = "daily"
	UpdateNever    = "never"
	UpdateInterval = "interval:" // followed by minutes
)

// Checksum policies.
const (
	ChecksumFail   = "fail"
	ChecksumWarn   = "warn"
	ChecksumIgnore = "ignore"
)

// Policy controls whether a repository is used for releases or snapshots,
// how often cached metadata is refreshed and how checksum mismatches are
// handled.
type Policy struct {
	Enabled        bool   `toml:"enabled" yaml:"enabled"`
	UpdatePolicy   string `toml:"update" yaml:"update"`
	ChecksumPolicy string `toml:"checksum" yaml:"checksum"`
}

// DefaultPolicy is enabled, refreshes daily and warns on checksum mismatch.
func DefaultPolicy() Policy {
	return Policy{Enabled: true, UpdatePolicy: UpdateDaily, ChecksumPolicy: ChecksumWarn}
}

// Validate checks the update and checksum policy names.
func (p Policy) Validate() error {
	if _, err := updateRank(p.UpdatePolicy); err != nil {
		return err
	}
	switch p.ChecksumPolicy {
	case "", ChecksumFail, ChecksumWarn, ChecksumIgnore:
		return nil
	}
	return errors.New(errors.ErrCodeInvalidConfig, "unknown checksum policy %q", p.ChecksumPolicy)
}

// IsUpdateRequired reports whether data last fetched at lastModified must be
// refreshed at now. A zero lastModified always requires an update.
func (p Policy) IsUpdateRequired(lastModified, now time.Time) bool {
	if lastModified.IsZero() {
		return true
	}
	switch {
	case p.UpdatePolicy == UpdateAlways:
		return true
	case p.UpdatePolicy == UpdateNever:
		return false
	case strings.HasPrefix(p.UpdatePolicy, UpdateInterval):
		minutes, err := strconv.Atoi(strings.TrimPrefix(p.UpdatePolicy, UpdateInterval))
		if err != nil {
			return true
		}
		return now.Sub(lastModified) >= time.Duration(minutes)*time.Minute
	default:
		// daily: refresh once the calendar day changed
		y1, m1, d1 := lastModified.In(now.Location()).Date()
		y2, m2, d2 := now.Date()
		return y1 != y2 || m1 != m2 || d1 != d2
	}
}

// updateRank orders update policies by frequency, most frequent first.
// Interval ranks between always and daily, shorter intervals first.
func updateRank(policy string) (int, error) {
	switch {
	case policy == UpdateAlways:
		return 0, nil
	case policy == "" || policy == UpdateDaily:
		return 1 << 20, nil
	case policy == UpdateNever:
		return 1 << 21, nil
	case strings.HasPrefix(policy, UpdateInterval):
		minutes, err := strconv.Atoi(strings.TrimPrefix(policy, UpdateInterval))
		if err != nil || minutes <= 0 {
			return 0, errors.New(errors.ErrCodeInvalidConfig, "invalid update interval %q", policy)
		}
		return min(minutes, 1<<20-1), nil
	}
	return 0, errors.New(errors.ErrCodeInvalidConfig, "unknown update policy %q", policy)
}

// RemoteRepository is a remote artifact source.
type RemoteRepository struct {
	ID          string `toml:"id" yaml:"id"`
	URL         string `toml:"url" yaml:"url"`
	ContentType string `toml:"content_type" yaml:"content_type,omitempty"`
	Releases    Policy `toml:"releases" yaml:"releases"`
	Snapshots   Policy `toml:"snapshots" yaml:"snapshots"`
	// Mirrored lists the repositories this one stands in for when it was
	// selected as a mirror.
	Mirrored []RemoteRepository `toml:"-" yaml:"-"`
}

// NewRemote creates a repository with default policies for both releases and
// snapshots.
func NewRemote(id, rawURL string) RemoteRepository {
	return RemoteRepository{
		ID:          id,
		URL:         rawURL,
		ContentType: DefaultContentType,
		Releases:    DefaultPolicy(),
		Snapshots:   DefaultPolicy(),
	}
}

// Validate checks the ID, URL and policies.
func (r RemoteRepository) Validate() error {
	if r.ID == "" {
		return errors.New(errors.ErrCodeInvalidConfig, "repository without id (url %q)", r.URL)
	}
	if err := errors.ValidateURL(r.URL); err != nil {
		return errors.Wrap(errors.ErrCodeInvalidConfig, err, "repository %s", r.ID)
	}
	if err := r.Releases.Validate(); err != nil {
		return fmt.Errorf("repository %s releases: %w", r.ID, err)
	}
	if err := r.Snapshots.Validate(); err != nil {
		return fmt.Errorf("repository %s snapshots: %w", r.ID, err)
	}
	return nil
}

// Scheme returns the lower-cased URL scheme, or "" if the URL is malformed.
func (r RemoteRepository) Scheme() string {
	u, err := url.Parse(r.URL)
	if err != nil {
		return ""
	}
	return strings.ToLower(u.Scheme)
}

// Policy returns the release or snapshot policy.
func (r RemoteRepository) Policy(snapshot bool) Policy {
	if snapshot {
		return r.Snapshots
	}
	return r.Releases
}

// IsLocalhost reports whether the repository is on this machine, which
// matters for "external:*" mirror patterns.
func (r RemoteRepository) IsLocalhost() bool {
	u, err := url.Parse(r.URL)
	if err != nil {
		return false
	}
	if u.Scheme == "file" {
		return true
	}
	host := u.Hostname()
	return host == "localhost" || host == "127.0.0.1" || host == "::1"
}

func (r RemoteRepository) String() string {
	var kinds []string
	if r.Releases.Enabled {
		kinds = append(kinds, "releases")
	}
	if r.Snapshots.Enabled {
		kinds = append(kinds, "snapshots")
	}
	ct := r.ContentType
	if ct == "" {
		ct = DefaultContentType
	}
	return fmt.Sprintf("%s (%s, %s, %s)", r.ID, r.URL, ct, strings.Join(kinds, "+"))
}
