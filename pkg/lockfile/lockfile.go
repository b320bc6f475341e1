// Package lockfile records the winning set of a resolution as YAML so it can
// be reviewed, diffed and replayed.
//
// A lockfile lists every winning artifact with its scope, the repository it
// came from and the SHA-1 of the resolved file:
//
//	apiVersion: depot/v1
//	kind: Lockfile
//	root: org.example:app:jar:1.0
//	artifacts:
//	  - coordinate: org.example:lib:jar:2.1
//	    scope: compile
//	    repository: central
//	    sha1: 3f786850e387550fdab836ed7e6dc881de23001b
//
// [Lockfile.Pins] turns the entries into version pins; feeding them to a
// collect request as its Pins reproduces the same winning set.
package lockfile

import (
	"bytes"
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"slices"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/matzehuels/depot/pkg/artifact"
	"github.com/matzehuels/depot/pkg/errors"
	"github.com/matzehuels/depot/pkg/system"
)

// Document header values.
const (
	APIVersion = "depot/v1"
	Kind       = "Lockfile"
)

// DefaultFile is the conventional lockfile name.
const DefaultFile = "depot.lock"

// Lockfile is the winning set of one resolution.
type Lockfile struct {
	APIVersion string  `yaml:"apiVersion"`
	Kind       string  `yaml:"kind"`
	Root       string  `yaml:"root,omitempty"`
	Artifacts  []Entry `yaml:"artifacts"`
}

// Entry is one winning artifact.
type Entry struct {
	Coordinate string         `yaml:"coordinate"`
	Scope      artifact.Scope `yaml:"scope,omitempty"`
	Optional   bool           `yaml:"optional,omitempty"`
	Repository string         `yaml:"repository,omitempty"`
	SHA1       string         `yaml:"sha1,omitempty"`
}

// Artifact parses the entry's coordinate.
func (e Entry) Artifact() (artifact.Artifact, error) {
	return artifact.Parse(e.Coordinate)
}

// FromResolution builds a lockfile from a finished resolution. The root
// artifact is recorded in Root, not in Artifacts. Entries are sorted by
// versionless key.
func FromResolution(res *system.DependencyResult) (*Lockfile, error) {
	if res == nil || res.Resolution == nil || res.Graph == nil {
		return nil, errors.New(errors.ErrCodeUsage, "lockfile needs a completed resolution")
	}
	lf := &Lockfile{APIVersion: APIVersion, Kind: Kind}
	if root := res.Graph.Edge(res.Root).Dependency.Artifact; root.ArtifactID != "" {
		lf.Root = root.String()
	}
	byEdge := make(map[int]*system.ArtifactResult, len(res.Artifacts))
	for _, a := range res.Artifacts {
		byEdge[int(a.Request.Edge)] = a
	}
	for i, id := range res.Resolution.Winners {
		if id == res.Root {
			continue
		}
		dep := res.Resolution.Dependencies[i]
		e := Entry{
			Coordinate: dep.Artifact.String(),
			Scope:      dep.Scope.OrDefault(),
			Optional:   dep.Optional,
		}
		if r, ok := byEdge[int(id)]; ok && r.IsResolved() {
			e.Repository = r.Repository
			sum, err := fileSHA1(r.Artifact.File)
			if err != nil {
				return nil, errors.Wrap(errors.ErrCodeInternal, err, "checksum of %s", dep.Artifact)
			}
			e.SHA1 = sum
		}
		lf.Artifacts = append(lf.Artifacts, e)
	}
	lf.sort()
	return lf, nil
}

func (lf *Lockfile) sort() {
	slices.SortFunc(lf.Artifacts, func(a, b Entry) int {
		return strings.Compare(entryKey(a), entryKey(b))
	})
}

// entryKey is the coordinate without its version.
func entryKey(e Entry) string {
	if i := strings.LastIndexByte(e.Coordinate, ':'); i >= 0 {
		return e.Coordinate[:i]
	}
	return e.Coordinate
}

func fileSHA1(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()
	h := sha1.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// Pins returns one version pin per entry. Scopes are not pinned; they
// follow from the paths of the new graph.
func (lf *Lockfile) Pins() ([]artifact.Dependency, error) {
	out := make([]artifact.Dependency, 0, len(lf.Artifacts))
	for _, e := range lf.Artifacts {
		a, err := e.Artifact()
		if err != nil {
			return nil, fmt.Errorf("lockfile entry %q: %w", e.Coordinate, err)
		}
		out = append(out, artifact.Dependency{Artifact: a})
	}
	return out, nil
}

// Diff lists the differences between lf and other, one line per changed
// key: "+coord" for added, "-coord" for removed and "~old -> new" for
// changed versions or checksums. Nil means the winning sets match.
func (lf *Lockfile) Diff(other *Lockfile) []string {
	index := func(l *Lockfile) map[string]Entry {
		m := make(map[string]Entry, len(l.Artifacts))
		for _, e := range l.Artifacts {
			m[entryKey(e)] = e
		}
		return m
	}
	a, b := index(lf), index(other)
	var out []string
	for k, ea := range a {
		eb, ok := b[k]
		switch {
		case !ok:
			out = append(out, "-"+ea.Coordinate)
		case ea.Coordinate != eb.Coordinate:
			out = append(out, "~"+ea.Coordinate+" -> "+eb.Coordinate)
		case ea.SHA1 != "" && eb.SHA1 != "" && ea.SHA1 != eb.SHA1:
			out = append(out, "~"+ea.Coordinate+" checksum "+ea.SHA1+" -> "+eb.SHA1)
		}
	}
	for k, eb := range b {
		if _, ok := a[k]; !ok {
			out = append(out, "+"+eb.Coordinate)
		}
	}
	slices.Sort(out)
	return out
}

// Write encodes lf as YAML.
func (lf *Lockfile) Write(w io.Writer) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(lf); err != nil {
		return fmt.Errorf("lockfile: encode: %w", err)
	}
	return enc.Close()
}

// WriteFile writes lf to path.
func (lf *Lockfile) WriteFile(path string) error {
	var buf bytes.Buffer
	if err := lf.Write(&buf); err != nil {
		return err
	}
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		return fmt.Errorf("lockfile: write %s: %w", path, err)
	}
	return nil
}

// Read decodes a lockfile and checks its header.
func Read(r io.Reader) (*Lockfile, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("lockfile: read: %w", err)
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, errors.New(errors.ErrCodeInvalidInput, "lockfile is empty")
	}
	var lf Lockfile
	if err := yaml.Unmarshal(data, &lf); err != nil {
		return nil, errors.Wrap(errors.ErrCodeInvalidInput, err, "decode lockfile")
	}
	if lf.APIVersion != APIVersion || lf.Kind != Kind {
		return nil, errors.New(errors.ErrCodeInvalidInput, "unsupported lockfile %s/%s", lf.APIVersion, lf.Kind)
	}
	for _, e := range lf.Artifacts {
		if _, err := e.Artifact(); err != nil {
			return nil, errors.Wrap(errors.ErrCodeInvalidInput, err, "lockfile entry %q", e.Coordinate)
		}
	}
	lf.sort()
	return &lf, nil
}

// ReadFile reads the lockfile at path.
func ReadFile(path string) (*Lockfile, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("lockfile: %w", err)
	}
	defer f.Close()
	lf, err := Read(f)
	if err != nil {
		return nil, fmt.Errorf("lockfile: %s: %w", path, err)
	}
	return lf, nil
}
