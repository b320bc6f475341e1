package descriptor

import (
	"bytes"
	"encoding/xml"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/matzehuels/depot/pkg/artifact"
	"github.com/matzehuels/depot/pkg/errors"
	"github.com/matzehuels/depot/pkg/version"
)

// MetadataFile is the name of repository metadata files.
const MetadataFile = "maven-metadata.xml"

// lastUpdatedLayout is the timestamp format of <lastUpdated>.
const lastUpdatedLayout = "20060102150405"

// Metadata is the content of an artifact-level maven-metadata.xml.
type Metadata struct {
	XMLName      xml.Name    `xml:"metadata"`
	ModelVersion string      `xml:"modelVersion,attr,omitempty"`
	GroupID      string      `xml:"groupId,omitempty"`
	ArtifactID   string      `xml:"artifactId,omitempty"`
	Version      string      `xml:"version,omitempty"`
	Versioning   *Versioning `xml:"versioning,omitempty"`
}

// Versioning lists the versions published for an artifact.
type Versioning struct {
	Latest      string    `xml:"latest,omitempty"`
	Release     string    `xml:"release,omitempty"`
	Snapshot    *Snapshot `xml:"snapshot,omitempty"`
	Versions    []string  `xml:"versions>version"`
	LastUpdated string    `xml:"lastUpdated,omitempty"`
}

// Snapshot identifies the newest build of a snapshot version.
type Snapshot struct {
	Timestamp   string `xml:"timestamp,omitempty"`
	BuildNumber int    `xml:"buildNumber,omitempty"`
	LocalCopy   bool   `xml:"localCopy,omitempty"`
}

// ArtifactMetadata returns the repository coordinates of the artifact-level
// metadata of groupID:artifactID.
func ArtifactMetadata(groupID, artifactID string) artifact.Metadata {
	return artifact.NewMetadata(groupID, artifactID, "", MetadataFile, artifact.ReleaseOrSnapshot)
}

// NewMetadata returns empty metadata for groupID:artifactID.
func NewMetadata(groupID, artifactID string) *Metadata {
	return &Metadata{ModelVersion: "1.1.0", GroupID: groupID, ArtifactID: artifactID}
}

// ParseMetadata decodes a maven-metadata.xml document.
func ParseMetadata(data []byte) (*Metadata, error) {
	var m Metadata
	dec := xml.NewDecoder(bytes.NewReader(data))
	if err := dec.Decode(&m); err != nil {
		return nil, errors.Wrap(errors.ErrCodeInvalidInput, err, "malformed repository metadata")
	}
	if v := m.Versioning; v != nil {
		for i, s := range v.Versions {
			v.Versions[i] = strings.TrimSpace(s)
		}
		v.Versions = slices.DeleteFunc(v.Versions, func(s string) bool { return s == "" })
	}
	return &m, nil
}

// ReadMetadata reads and decodes the metadata file at path.
func ReadMetadata(path string) (*Metadata, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	m, err := ParseMetadata(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return m, nil
}

// AllVersions returns the listed versions, or nil.
func (m *Metadata) AllVersions() []string {
	if m == nil || m.Versioning == nil {
		return nil
	}
	return m.Versioning.Versions
}

// AddVersion records v, keeping the list ordered and latest and release
// current.
func (m *Metadata) AddVersion(v string, now time.Time) {
	if m.Versioning == nil {
		m.Versioning = &Versioning{}
	}
	vs := m.Versioning
	if !slices.Contains(vs.Versions, v) {
		vs.Versions = append(vs.Versions, v)
	}
	m.normalize()
	vs.LastUpdated = now.UTC().Format(lastUpdatedLayout)
}

// Merge adds the versions listed by o.
func (m *Metadata) Merge(o *Metadata) {
	for _, v := range o.AllVersions() {
		if m.Versioning == nil {
			m.Versioning = &Versioning{}
		}
		if !slices.Contains(m.Versioning.Versions, v) {
			m.Versioning.Versions = append(m.Versioning.Versions, v)
		}
	}
	if m.Versioning != nil {
		m.normalize()
		if o.Versioning != nil && o.Versioning.LastUpdated > m.Versioning.LastUpdated {
			m.Versioning.LastUpdated = o.Versioning.LastUpdated
		}
	}
}

func (m *Metadata) normalize() {
	vs := m.Versioning
	slices.SortStableFunc(vs.Versions, func(a, b string) int {
		return version.MustParse(a).Compare(version.MustParse(b))
	})
	if len(vs.Versions) == 0 {
		return
	}
	vs.Latest = vs.Versions[len(vs.Versions)-1]
	vs.Release = ""
	for _, v := range slices.Backward(vs.Versions) {
		if !artifact.IsSnapshot(v) {
			vs.Release = v
			break
		}
	}
}

// Marshal encodes the metadata with an XML header.
func (m *Metadata) Marshal() ([]byte, error) {
	out, err := xml.MarshalIndent(m, "", "  ")
	if err != nil {
		return nil, err
	}
	return append([]byte(xml.Header), append(out, '\n')...), nil
}

// Write stores the metadata at path, replacing any previous file atomically.
func (m *Metadata) Write(path string) error {
	data, err := m.Marshal()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	tmp := path + "." + uuid.NewString() + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return err
	}
	return nil
}
