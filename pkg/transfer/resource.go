package transfer

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// Resource describes the remote object a transfer operates on. It is
// immutable; use [Resource.WithContentLength] to derive an updated copy.
type Resource struct {
	id            uuid.UUID
	repositoryURL string
	name          string
	file          string
	contentLength int64
	startTime     time.Time
}

// NewResource creates a resource. The repository URL is normalized to end in
// a slash and the name is stripped of leading slashes, so that
// RepositoryURL()+Name() is the full URL. A negative content length means
// unknown.
func NewResource(repositoryURL, name, file string, contentLength int64) Resource {
	if repositoryURL != "" && !strings.HasSuffix(repositoryURL, "/") {
		repositoryURL += "/"
	}
	if contentLength < 0 {
		contentLength = -1
	}
	return Resource{
		id:            uuid.New(),
		repositoryURL: repositoryURL,
		name:          strings.TrimLeft(name, "/"),
		file:          file,
		contentLength: contentLength,
		startTime:     time.Now(),
	}
}

func (r Resource) ID() uuid.UUID         { return r.id }
func (r Resource) RepositoryURL() string { return r.repositoryURL }
func (r Resource) Name() string          { return r.name }
func (r Resource) File() string          { return r.file }
func (r Resource) ContentLength() int64  { return r.contentLength }
func (r Resource) StartTime() time.Time  { return r.startTime }
func (r Resource) URL() string           { return r.repositoryURL + r.name }

// WithContentLength returns a copy with the given length. The ID and start
// time are kept.
func (r Resource) WithContentLength(n int64) Resource {
	if n < 0 {
		n = -1
	}
	r.contentLength = n
	return r
}

func (r Resource) String() string { return r.URL() }
