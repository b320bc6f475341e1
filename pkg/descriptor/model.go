package descriptor

import (
	"cmp"
	"maps"
	"regexp"
	"slices"
	"strings"

	"github.com/charmbracelet/log"

	"github.com/matzehuels/depot/pkg/artifact"
	"github.com/matzehuels/depot/pkg/collect"
	"github.com/matzehuels/depot/pkg/errors"
	"github.com/matzehuels/depot/pkg/repository"
)

// maxInterpolationPasses bounds nested property references such as
// ${a} -> ${b} -> value.
const maxInterpolationPasses = 8

var propertyRef = regexp.MustCompile(`\$\{([^}]+)\}`)

// model is a pom merged with the chain of its parents.
type model struct {
	groupID       string
	artifactID    string
	version       string
	packaging     string
	parentVersion string

	props      map[string]string
	deps       []pomDependency
	managed    []pomDependency
	repos      []pomRepository
	relocation *pomRelocation
}

// newModel merges p over its already merged parent. Values declared by p
// win; inherited dependencies follow p's own.
func newModel(p *pomProject, parent *model) *model {
	m := &model{
		groupID:    p.GroupID,
		artifactID: p.ArtifactID,
		version:    p.Version,
		packaging:  p.Packaging,
		props:      map[string]string{},
		relocation: p.Relocation,
	}
	if p.Parent != nil {
		m.parentVersion = p.Parent.Version
		if m.groupID == "" {
			m.groupID = p.Parent.GroupID
		}
		if m.version == "" {
			m.version = p.Parent.Version
		}
	}
	if m.packaging == "" {
		m.packaging = "jar"
	}
	if parent != nil {
		maps.Copy(m.props, parent.props)
		m.deps = mergeDependencies(p.Dependencies, parent.deps)
		m.managed = mergeDependencies(p.Managed, parent.managed)
		m.repos = mergeRepositories(p.Repositories, parent.repos)
	} else {
		m.deps = slices.Clone(p.Dependencies)
		m.managed = slices.Clone(p.Managed)
		m.repos = slices.Clone(p.Repositories)
	}
	maps.Copy(m.props, p.Properties)
	return m
}

func mergeDependencies(dominant, recessive []pomDependency) []pomDependency {
	out := slices.Clone(dominant)
	seen := make(map[string]bool, len(dominant)+len(recessive))
	for _, d := range dominant {
		seen[d.key()] = true
	}
	for _, d := range recessive {
		if k := d.key(); !seen[k] {
			seen[k] = true
			out = append(out, d)
		}
	}
	return out
}

func mergeRepositories(dominant, recessive []pomRepository) []pomRepository {
	out := slices.Clone(dominant)
	for _, r := range recessive {
		if !slices.ContainsFunc(out, func(o pomRepository) bool { return o.ID == r.ID }) {
			out = append(out, r)
		}
	}
	return out
}

func (m *model) coordinate() string {
	return m.groupID + ":" + m.artifactID + ":" + m.version
}

func (m *model) lookup(key string) (string, bool) {
	switch key {
	case "project.groupId", "pom.groupId", "groupId":
		return m.groupID, true
	case "project.artifactId", "pom.artifactId", "artifactId":
		return m.artifactID, true
	case "project.version", "pom.version", "version":
		return m.version, true
	case "project.packaging", "pom.packaging":
		return m.packaging, true
	case "project.parent.version", "parent.version":
		return m.parentVersion, m.parentVersion != ""
	}
	v, ok := m.props[key]
	return v, ok
}

// expand replaces ${...} references. Unknown references are left in place.
func (m *model) expand(s string) string {
	if !strings.Contains(s, "${") {
		return s
	}
	for range maxInterpolationPasses {
		next := propertyRef.ReplaceAllStringFunc(s, func(ref string) string {
			if v, ok := m.lookup(ref[2 : len(ref)-1]); ok {
				return v
			}
			return ref
		})
		if next == s {
			break
		}
		s = next
	}
	return s
}

// interpolate expands property references throughout the model.
func (m *model) interpolate() {
	m.groupID = m.expand(m.groupID)
	m.version = m.expand(m.version)
	for _, deps := range [][]pomDependency{m.deps, m.managed} {
		for i := range deps {
			d := &deps[i]
			for _, s := range []*string{&d.GroupID, &d.ArtifactID, &d.Version, &d.Type, &d.Classifier, &d.Scope, &d.Optional} {
				*s = m.expand(*s)
			}
			for j := range d.Exclusions {
				d.Exclusions[j].GroupID = m.expand(d.Exclusions[j].GroupID)
				d.Exclusions[j].ArtifactID = m.expand(d.Exclusions[j].ArtifactID)
			}
		}
	}
	for i := range m.repos {
		m.repos[i].URL = m.expand(m.repos[i].URL)
	}
	if r := m.relocation; r != nil {
		reloc := *r
		reloc.GroupID = m.expand(r.GroupID)
		reloc.ArtifactID = m.expand(r.ArtifactID)
		reloc.Version = m.expand(r.Version)
		m.relocation = &reloc
	}
}

// applyManagement fills the versions, scopes and exclusions of the model's
// own dependencies from its dependency management.
func (m *model) applyManagement() {
	managed := make(map[string]pomDependency, len(m.managed))
	for _, d := range m.managed {
		if _, ok := managed[d.key()]; !ok {
			managed[d.key()] = d
		}
	}
	for i := range m.deps {
		d := &m.deps[i]
		md, ok := managed[d.key()]
		if !ok {
			continue
		}
		if d.Version == "" {
			d.Version = md.Version
		}
		if d.Scope == "" {
			d.Scope = md.Scope
		}
		if len(d.Exclusions) == 0 {
			d.Exclusions = slices.Clone(md.Exclusions)
		}
	}
}

// remoteRepositories converts the declared repositories.
func (m *model) remoteRepositories() []repository.RemoteRepository {
	var out []repository.RemoteRepository
	for _, r := range m.repos {
		if r.ID == "" || r.URL == "" || strings.Contains(r.URL, "${") {
			continue
		}
		repo := repository.NewRemote(r.ID, r.URL)
		if r.Layout != "" {
			repo.ContentType = r.Layout
		}
		repo.Releases = r.Releases.policy()
		repo.Snapshots = r.Snapshots.policy()
		out = append(out, repo)
	}
	return out
}

func (p *pomPolicy) policy() repository.Policy {
	out := repository.DefaultPolicy()
	if p == nil {
		return out
	}
	out.Enabled = strings.TrimSpace(p.Enabled) != "false"
	if v := strings.TrimSpace(p.UpdatePolicy); v != "" {
		out.UpdatePolicy = v
	}
	if v := strings.TrimSpace(p.ChecksumPolicy); v != "" {
		out.ChecksumPolicy = v
	}
	return out
}

func unresolved(ss ...string) bool {
	for _, s := range ss {
		if strings.Contains(s, "${") {
			return true
		}
	}
	return false
}

// descriptor converts the model into what the collector consumes. a is the
// artifact the descriptor was requested for.
func (m *model) descriptor(a artifact.Artifact, logger *log.Logger) (*collect.Descriptor, error) {
	d := &collect.Descriptor{
		Artifact:     a,
		Repositories: m.remoteRepositories(),
	}
	if r := m.relocation; r != nil {
		to := artifact.New(
			cmp.Or(strings.TrimSpace(r.GroupID), a.GroupID),
			cmp.Or(strings.TrimSpace(r.ArtifactID), a.ArtifactID),
			a.Classifier, a.Extension,
			cmp.Or(strings.TrimSpace(r.Version), a.Version),
		)
		if to.GroupID != a.GroupID || to.ArtifactID != a.ArtifactID || to.Version != a.Version {
			if r.Message != "" {
				logger.Info("artifact relocated", "from", a, "to", to, "message", strings.TrimSpace(r.Message))
			}
			d.Relocation = &to
		}
	}
	for _, pd := range m.deps {
		if unresolved(pd.GroupID, pd.ArtifactID, pd.Version) {
			logger.Debug("skipping dependency with unresolved property", "descriptor", m.coordinate(), "dependency", pd.key())
			continue
		}
		if pd.Version == "" {
			return nil, errors.New(errors.ErrCodeDescriptorInvalid, "%s: dependency %s:%s has no version", a, pd.GroupID, pd.ArtifactID)
		}
		dep, err := pd.dependency()
		if err != nil {
			return nil, errors.Wrap(errors.ErrCodeDescriptorInvalid, err, "%s", a)
		}
		d.Dependencies = append(d.Dependencies, dep.SetScope(dep.Scope.OrDefault()))
	}
	for _, pd := range m.managed {
		if pd.Scope == "import" || unresolved(pd.GroupID, pd.ArtifactID, pd.Version) {
			continue
		}
		dep, err := pd.dependency()
		if err != nil {
			return nil, errors.Wrap(errors.ErrCodeDescriptorInvalid, err, "%s: managed dependency", a)
		}
		d.Managed = append(d.Managed, dep)
	}
	return d, nil
}

func (pd pomDependency) dependency() (artifact.Dependency, error) {
	ext, cls := typeExtension(pd.Type, pd.Classifier)
	a := artifact.New(pd.GroupID, pd.ArtifactID, cls, ext, pd.Version)
	for _, part := range []struct{ kind, value string }{{"groupId", a.GroupID}, {"artifactId", a.ArtifactID}} {
		if err := errors.ValidateCoordinatePart(part.kind, part.value, false); err != nil {
			return artifact.Dependency{}, err
		}
	}
	dep := artifact.NewDependency(a, artifact.Scope(pd.Scope)).SetOptional(pd.Optional == "true")
	if len(pd.Exclusions) > 0 {
		excl := make([]artifact.Exclusion, 0, len(pd.Exclusions))
		for _, e := range pd.Exclusions {
			excl = append(excl, artifact.Exclusion{GroupID: e.GroupID, ArtifactID: e.ArtifactID})
		}
		dep = dep.SetExclusions(excl)
	}
	return dep, nil
}
