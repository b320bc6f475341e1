package transfer

import (
	"context"

	"github.com/matzehuels/depot/pkg/artifact"
)

// Checksum policies applied to downloads.
const (
	ChecksumFail   = "fail"
	ChecksumWarn   = "warn"
	ChecksumIgnore = "ignore"
)

// ArtifactDownload requests an artifact from a repository into File.
type ArtifactDownload struct {
	Artifact       artifact.Artifact
	File           string
	ChecksumPolicy string
	RequestContext string
	// ExistenceCheck only asks the repository whether the artifact exists;
	// no bytes are written to File.
	ExistenceCheck bool
	// Err is nil on success. Set by the connector.
	Err error
}

// MetadataDownload requests repository metadata into File.
type MetadataDownload struct {
	Metadata       artifact.Metadata
	File           string
	ChecksumPolicy string
	RequestContext string
	Err            error
}

// ArtifactUpload publishes Artifact (whose File must be set) to a repository.
type ArtifactUpload struct {
	Artifact artifact.Artifact
	Err      error
}

// MetadataUpload publishes Metadata (whose File must be set).
type MetadataUpload struct {
	Metadata artifact.Metadata
	Err      error
}

// Connector moves batches of transfers to and from one repository.
//
// Get and Put block until every item of the batch has finished and record
// per-item outcomes in the items' Err fields. The returned error is reserved
// for misuse of the connector itself, such as calling it after Close.
type Connector interface {
	Get(ctx context.Context, artifacts []*ArtifactDownload, metadata []*MetadataDownload) error
	Put(ctx context.Context, artifacts []*ArtifactUpload, metadata []*MetadataUpload) error
	Close() error
}
