package repository

import (
	"path"
	"path/filepath"
	"strings"

	"github.com/matzehuels/depot/pkg/artifact"
)

// Checksum sidecar extension written next to uploaded files.
const ChecksumExtension = ".sha1"

// Layout maps coordinates to slash-separated paths using the Maven 2
// repository layout.
type Layout struct{}

// ArtifactPath returns group/as/dirs/artifactId/baseVersion/file.
func (Layout) ArtifactPath(a artifact.Artifact) string {
	return path.Join(groupPath(a.GroupID), a.ArtifactID, a.BaseVersion(), fileName(a, a.Version))
}

// MetadataPath returns the metadata location. Group-level, artifact-level
// and version-level metadata are told apart by which coordinates are set.
func (Layout) MetadataPath(m artifact.Metadata) string {
	parts := []string{}
	if m.GroupID != "" {
		parts = append(parts, groupPath(m.GroupID))
		if m.ArtifactID != "" {
			parts = append(parts, m.ArtifactID)
			if m.Version != "" {
				parts = append(parts, m.Version)
			}
		}
	}
	parts = append(parts, m.Type)
	return path.Join(parts...)
}

// ChecksumPath returns the SHA-1 sidecar location for p.
func (Layout) ChecksumPath(p string) string { return p + ChecksumExtension }

func groupPath(groupID string) string {
	return strings.ReplaceAll(groupID, ".", "/")
}

func fileName(a artifact.Artifact, v string) string {
	var b strings.Builder
	b.WriteString(a.ArtifactID)
	b.WriteByte('-')
	b.WriteString(v)
	if a.Classifier != "" {
		b.WriteByte('-')
		b.WriteString(a.Classifier)
	}
	b.WriteByte('.')
	ext := a.Extension
	if ext == "" {
		ext = artifact.DefaultExtension
	}
	b.WriteString(ext)
	return b.String()
}

// LocalRepository is the on-disk cache of artifacts and metadata.
type LocalRepository struct {
	Basedir string
}

// ArtifactPath returns the absolute file location for a. Snapshot files are
// stored under their base version.
func (l LocalRepository) ArtifactPath(a artifact.Artifact) string {
	rel := path.Join(groupPath(a.GroupID), a.ArtifactID, a.BaseVersion(), fileName(a, a.BaseVersion()))
	return filepath.Join(l.Basedir, filepath.FromSlash(rel))
}

// MetadataPath returns the file location for metadata fetched from the
// repository with the given ID. Locally installed metadata uses "local".
func (l LocalRepository) MetadataPath(m artifact.Metadata, repoID string) string {
	rel := Layout{}.MetadataPath(m)
	if repoID == "" {
		repoID = "local"
	}
	ext := path.Ext(rel)
	rel = strings.TrimSuffix(rel, ext) + "-" + repoID + ext
	return filepath.Join(l.Basedir, filepath.FromSlash(rel))
}
