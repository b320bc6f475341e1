package artifact

import (
	"fmt"
	"slices"
	"strings"

	"github.com/matzehuels/depot/pkg/errors"
)

// Wildcard matches any value in an [Exclusion] field.
const Wildcard = "*"

// Exclusion removes matching artifacts from a dependency's subtree.
// Empty Classifier and Extension fields match anything, like [Wildcard].
type Exclusion struct {
	GroupID    string `toml:"group" yaml:"group"`
	ArtifactID string `toml:"artifact" yaml:"artifact"`
	Classifier string `toml:"classifier,omitempty" yaml:"classifier,omitempty"`
	Extension  string `toml:"extension,omitempty" yaml:"extension,omitempty"`
}

// ParseExclusion parses "group:artifact" patterns; either side may be "*".
func ParseExclusion(s string) (Exclusion, error) {
	g, a, ok := strings.Cut(strings.TrimSpace(s), ":")
	if !ok || g == "" || a == "" {
		return Exclusion{}, errors.New(errors.ErrCodeInvalidCoordinate, "invalid exclusion %q (expected group:artifact)", s)
	}
	return Exclusion{GroupID: g, ArtifactID: a}, nil
}

// Matches reports whether a falls under the exclusion pattern.
func (e Exclusion) Matches(a Artifact) bool {
	return match(e.GroupID, a.GroupID) &&
		match(e.ArtifactID, a.ArtifactID) &&
		match(e.Classifier, a.Classifier) &&
		match(e.Extension, a.Extension)
}

func (e Exclusion) String() string {
	return e.GroupID + ":" + e.ArtifactID
}

func match(pattern, value string) bool {
	return pattern == "" || pattern == Wildcard || pattern == value
}

// Dependency is a reference from one artifact to another.
type Dependency struct {
	Artifact   Artifact
	Scope      Scope
	Optional   bool
	Exclusions []Exclusion
}

// NewDependency creates a non-optional dependency without exclusions.
func NewDependency(a Artifact, scope Scope) Dependency {
	return Dependency{Artifact: a, Scope: scope}
}

// SetArtifact returns a copy pointing at a.
func (d Dependency) SetArtifact(a Artifact) Dependency {
	c := d.clone()
	c.Artifact = a
	return c
}

// SetScope returns a copy with the scope replaced.
func (d Dependency) SetScope(s Scope) Dependency {
	c := d.clone()
	c.Scope = s
	return c
}

// SetOptional returns a copy with the optional flag replaced.
func (d Dependency) SetOptional(optional bool) Dependency {
	c := d.clone()
	c.Optional = optional
	return c
}

// SetExclusions returns a copy carrying a clone of excl.
func (d Dependency) SetExclusions(excl []Exclusion) Dependency {
	c := d
	c.Exclusions = slices.Clone(excl)
	return c
}

// Excludes reports whether any of the dependency's exclusions match a.
func (d Dependency) Excludes(a Artifact) bool {
	return slices.ContainsFunc(d.Exclusions, func(e Exclusion) bool { return e.Matches(a) })
}

func (d Dependency) String() string {
	s := fmt.Sprintf("%s (%s)", d.Artifact, d.Scope.OrDefault())
	if d.Optional {
		s += " optional"
	}
	return s
}

func (d Dependency) clone() Dependency {
	c := d
	c.Artifact = d.Artifact.clone()
	c.Exclusions = slices.Clone(d.Exclusions)
	return c
}
