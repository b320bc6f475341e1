package artifact

import "strings"

// Nature says which kind of versions a metadata file describes.
type Nature int

const (
	Release Nature = iota
	Snapshot
	ReleaseOrSnapshot
)

// Metadata identifies a repository metadata file. GroupID, ArtifactID and
// Version narrow the level the file applies to: empty ArtifactID means a
// group-level file, empty Version an artifact-level file.
type Metadata struct {
	GroupID    string
	ArtifactID string
	Version    string
	Type       string // File name, e.g. "maven-metadata.xml"
	Nature     Nature
	File       string
}

// NewMetadata creates artifact-level metadata of the given type.
func NewMetadata(groupID, artifactID, version, typ string, nature Nature) Metadata {
	return Metadata{GroupID: groupID, ArtifactID: artifactID, Version: version, Type: typ, Nature: nature}
}

// SetFile returns a copy bound to the given local file.
func (m Metadata) SetFile(path string) Metadata {
	m.File = path
	return m
}

// String returns "g:a:v/type" omitting empty parts.
func (m Metadata) String() string {
	var parts []string
	for _, p := range []string{m.GroupID, m.ArtifactID, m.Version} {
		if p != "" {
			parts = append(parts, p)
		}
	}
	return strings.Join(parts, ":") + "/" + m.Type
}
