package artifact

import (
	"maps"
	"regexp"
	"strings"

	"github.com/matzehuels/depot/pkg/errors"
)

const (
	// DefaultExtension is used when a coordinate omits the extension.
	DefaultExtension = "jar"

	snapshotSuffix = "-SNAPSHOT"
)

// timestamped snapshot versions look like 1.0-20240102.030405-7
var snapshotTimestamp = regexp.MustCompile(`^(.*-)?(\d{8}\.\d{6}-\d+)$`)

// Artifact identifies a versioned binary plus an optional local file.
//
// The zero value is not a valid artifact; use [New] or [Parse].
type Artifact struct {
	GroupID    string
	ArtifactID string
	Version    string // Resolved version (may be a timestamped snapshot)
	Classifier string
	Extension  string
	File       string            // Local path once resolved; empty otherwise
	Properties map[string]string // Arbitrary string properties (never shared between copies)
}

// New creates an artifact with the jar extension when ext is empty.
func New(groupID, artifactID, classifier, ext, version string) Artifact {
	if ext == "" {
		ext = DefaultExtension
	}
	return Artifact{
		GroupID:    groupID,
		ArtifactID: artifactID,
		Version:    version,
		Classifier: classifier,
		Extension:  ext,
	}
}

// Parse parses "g:a[:ext[:classifier]]:v". Every part is validated with
// [errors.ValidateCoordinatePart].
func Parse(coord string) (Artifact, error) {
	parts := strings.Split(strings.TrimSpace(coord), ":")
	var a Artifact
	switch len(parts) {
	case 3:
		a = New(parts[0], parts[1], "", "", parts[2])
	case 4:
		a = New(parts[0], parts[1], "", parts[2], parts[3])
	case 5:
		a = New(parts[0], parts[1], parts[3], parts[2], parts[4])
	default:
		return Artifact{}, errors.New(errors.ErrCodeInvalidCoordinate,
			"invalid coordinate %q (expected group:artifact[:extension[:classifier]]:version)", coord)
	}
	if err := a.Validate(); err != nil {
		return Artifact{}, err
	}
	return a, nil
}

// MustParse is like [Parse] but panics on error. Intended for tests and
// static tables.
func MustParse(coord string) Artifact {
	a, err := Parse(coord)
	if err != nil {
		panic(err)
	}
	return a
}

// Validate checks every coordinate part.
func (a Artifact) Validate() error {
	checks := []struct {
		kind, part string
		optional   bool
	}{
		{"groupId", a.GroupID, false},
		{"artifactId", a.ArtifactID, false},
		{"version", a.Version, false},
		{"classifier", a.Classifier, true},
		{"extension", a.Extension, false},
	}
	for _, c := range checks {
		if err := errors.ValidateCoordinatePart(c.kind, c.part, c.optional); err != nil {
			return err
		}
	}
	return nil
}

// BaseVersion returns the version with timestamped snapshots collapsed back
// to "-SNAPSHOT".
func (a Artifact) BaseVersion() string {
	return BaseVersion(a.Version)
}

// BaseVersion collapses a timestamped snapshot version to its base form.
// Other versions are returned unchanged.
func BaseVersion(v string) string {
	m := snapshotTimestamp.FindStringSubmatch(v)
	if m == nil {
		return v
	}
	return m[1][:max(len(m[1])-1, 0)] + snapshotSuffix
}

// IsSnapshot reports whether the artifact is a snapshot version.
func (a Artifact) IsSnapshot() bool {
	return IsSnapshot(a.Version)
}

// IsSnapshot reports whether v is a plain or timestamped snapshot.
func IsSnapshot(v string) bool {
	return strings.HasSuffix(v, snapshotSuffix) || snapshotTimestamp.MatchString(v)
}

// Key returns the versionless identity "g:a:ext[:classifier]" used to group
// conflicting edges.
func (a Artifact) Key() string {
	k := a.GroupID + ":" + a.ArtifactID + ":" + a.ext()
	if a.Classifier != "" {
		k += ":" + a.Classifier
	}
	return k
}

// ID returns "g:a", ignoring extension and classifier. Exclusions and
// cycle detection compare on this.
func (a Artifact) ID() string {
	return a.GroupID + ":" + a.ArtifactID
}

// String returns the full coordinate "g:a:ext[:classifier]:version".
func (a Artifact) String() string {
	return a.Key() + ":" + a.Version
}

// SetVersion returns a copy with the version replaced.
func (a Artifact) SetVersion(v string) Artifact {
	c := a.clone()
	c.Version = v
	return c
}

// SetFile returns a copy bound to the given local file.
func (a Artifact) SetFile(path string) Artifact {
	c := a.clone()
	c.File = path
	return c
}

// SetProperties returns a copy with a cloned property map.
func (a Artifact) SetProperties(props map[string]string) Artifact {
	c := a
	c.Properties = maps.Clone(props)
	return c
}

// Property returns the named property or def.
func (a Artifact) Property(key, def string) string {
	if v, ok := a.Properties[key]; ok {
		return v
	}
	return def
}

// Equal compares identity and version; file and properties are ignored.
func (a Artifact) Equal(b Artifact) bool {
	return a.Key() == b.Key() && a.Version == b.Version
}

func (a Artifact) ext() string {
	if a.Extension == "" {
		return DefaultExtension
	}
	return a.Extension
}

func (a Artifact) clone() Artifact {
	c := a
	c.Properties = maps.Clone(a.Properties)
	return c
}
