package collect

import (
	"maps"
	"slices"

	"github.com/matzehuels/depot/pkg/artifact"
)

// management maps a versionless key to its managed dependency. The nearest
// declaration wins, so entries are only ever added, never replaced.
type management map[string]artifact.Dependency

func newManagement(deps []artifact.Dependency) management {
	return management(nil).with(deps)
}

// with returns m extended by deps whose keys are not yet managed. m itself
// is returned when nothing is added.
func (m management) with(deps []artifact.Dependency) management {
	var out management
	for _, d := range deps {
		k := d.Artifact.Key()
		if _, ok := m[k]; ok {
			continue
		}
		if _, ok := out[k]; ok {
			continue
		}
		if out == nil {
			out = maps.Clone(m)
			if out == nil {
				out = management{}
			}
		}
		out[k] = d
	}
	if out == nil {
		return m
	}
	return out
}

// managed is the outcome of applying management to one dependency.
type managed struct {
	dep               artifact.Dependency
	premanagedScope   artifact.Scope
	premanagedVersion string
}

func (m management) apply(d artifact.Dependency) managed {
	out := managed{dep: d}
	md, ok := m[d.Artifact.Key()]
	if !ok {
		return out
	}
	if v := md.Artifact.Version; v != "" && v != d.Artifact.Version {
		out.premanagedVersion = d.Artifact.Version
		out.dep = out.dep.SetArtifact(d.Artifact.SetVersion(v))
	}
	if md.Scope != "" && md.Scope.OrDefault() != d.Scope.OrDefault() && d.Scope != artifact.ScopeSystem {
		out.premanagedScope = d.Scope.OrDefault()
		out.dep = out.dep.SetScope(md.Scope)
	}
	if len(md.Exclusions) > 0 {
		excl := slices.Clone(d.Exclusions)
		for _, e := range md.Exclusions {
			if !slices.Contains(excl, e) {
				excl = append(excl, e)
			}
		}
		out.dep = out.dep.SetExclusions(excl)
	}
	return out
}

// pin forces the version pinned for m's key, keeping the first premanaged
// version on record.
func (pins management) pin(m managed) managed {
	p, ok := pins[m.dep.Artifact.Key()]
	if !ok || p.Artifact.Version == "" || p.Artifact.Version == m.dep.Artifact.Version {
		return m
	}
	if m.premanagedVersion == "" {
		m.premanagedVersion = m.dep.Artifact.Version
	}
	m.dep = m.dep.SetArtifact(m.dep.Artifact.SetVersion(p.Artifact.Version))
	return m
}
