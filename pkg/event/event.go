package event

import (
	"slices"

	"github.com/matzehuels/depot/pkg/artifact"
	"github.com/matzehuels/depot/pkg/repository"
)

// Type identifies what happened.
type Type int

const (
	ArtifactDescriptorInvalid Type = iota
	ArtifactDescriptorMissing
	MetadataInvalid
	ArtifactResolving
	ArtifactResolved
	MetadataResolving
	MetadataResolved
	ArtifactInstalling
	ArtifactInstalled
	MetadataInstalling
	MetadataInstalled
	ArtifactDeploying
	ArtifactDeployed
	MetadataDeploying
	MetadataDeployed
)

var typeNames = [...]string{
	ArtifactDescriptorInvalid: "artifact-descriptor-invalid",
	ArtifactDescriptorMissing: "artifact-descriptor-missing",
	MetadataInvalid:           "metadata-invalid",
	ArtifactResolving:         "artifact-resolving",
	ArtifactResolved:          "artifact-resolved",
	MetadataResolving:         "metadata-resolving",
	MetadataResolved:          "metadata-resolved",
	ArtifactInstalling:        "artifact-installing",
	ArtifactInstalled:         "artifact-installed",
	MetadataInstalling:        "metadata-installing",
	MetadataInstalled:         "metadata-installed",
	ArtifactDeploying:         "artifact-deploying",
	ArtifactDeployed:          "artifact-deployed",
	MetadataDeploying:         "metadata-deploying",
	MetadataDeployed:          "metadata-deployed",
}

func (t Type) String() string {
	if t < 0 || int(t) >= len(typeNames) {
		return "unknown"
	}
	return typeNames[t]
}

// Types returns every event type in declaration order.
func Types() []Type {
	out := make([]Type, len(typeNames))
	for i := range out {
		out[i] = Type(i)
	}
	return out
}

// Event is an immutable notification about an artifact or metadata moving
// through the system. Build one with [New].
type Event struct {
	typ        Type
	artifact   *artifact.Artifact
	metadata   *artifact.Metadata
	repository *repository.RemoteRepository
	file       string
	errs       []error
}

// Option sets a field of an [Event] under construction.
type Option func(*Event)

// WithArtifact attaches the artifact the event is about.
func WithArtifact(a artifact.Artifact) Option {
	return func(e *Event) { e.artifact = &a }
}

// WithMetadata attaches the metadata the event is about.
func WithMetadata(m artifact.Metadata) Option {
	return func(e *Event) { e.metadata = &m }
}

// WithRepository attaches the remote repository involved.
func WithRepository(r repository.RemoteRepository) Option {
	return func(e *Event) { e.repository = &r }
}

// WithFile attaches the local file involved.
func WithFile(path string) Option {
	return func(e *Event) { e.file = path }
}

// WithErrors attaches errors; nil entries are dropped.
func WithErrors(errs ...error) Option {
	return func(e *Event) {
		for _, err := range errs {
			if err != nil {
				e.errs = append(e.errs, err)
			}
		}
	}
}

// New builds an event of type t.
func New(t Type, opts ...Option) Event {
	e := Event{typ: t}
	for _, opt := range opts {
		opt(&e)
	}
	return e
}

func (e Event) Type() Type { return e.typ }

// Artifact returns the artifact, if any.
func (e Event) Artifact() (artifact.Artifact, bool) {
	if e.artifact == nil {
		return artifact.Artifact{}, false
	}
	return *e.artifact, true
}

// Metadata returns the metadata, if any.
func (e Event) Metadata() (artifact.Metadata, bool) {
	if e.metadata == nil {
		return artifact.Metadata{}, false
	}
	return *e.metadata, true
}

// Repository returns the remote repository, if any.
func (e Event) Repository() (repository.RemoteRepository, bool) {
	if e.repository == nil {
		return repository.RemoteRepository{}, false
	}
	return *e.repository, true
}

func (e Event) File() string { return e.file }

// Errors returns a copy of the attached errors.
func (e Event) Errors() []error { return slices.Clone(e.errs) }

// Err returns the first attached error or nil.
func (e Event) Err() error {
	if len(e.errs) == 0 {
		return nil
	}
	return e.errs[0]
}

// Subject describes what the event is about, for logs.
func (e Event) Subject() string {
	switch {
	case e.artifact != nil:
		return e.artifact.String()
	case e.metadata != nil:
		return e.metadata.String()
	}
	return ""
}
