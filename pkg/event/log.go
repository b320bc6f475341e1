package event

import (
	"io"

	"github.com/charmbracelet/log"
)

// LogListener writes every event to a logger at debug level, or at warn
// level when the event carries errors.
type LogListener struct {
	Logger *log.Logger
}

// NewLogListener returns a listener logging to logger; nil discards.
func NewLogListener(logger *log.Logger) LogListener {
	if logger == nil {
		logger = log.NewWithOptions(io.Discard, log.Options{})
	}
	return LogListener{Logger: logger}
}

func (l LogListener) log(e Event) {
	kv := []any{"event", e.Type().String()}
	if s := e.Subject(); s != "" {
		kv = append(kv, "subject", s)
	}
	if r, ok := e.Repository(); ok {
		kv = append(kv, "repository", r.ID)
	}
	if e.File() != "" {
		kv = append(kv, "file", e.File())
	}
	if err := e.Err(); err != nil {
		l.Logger.Warn("repository event", append(kv, "err", err)...)
		return
	}
	l.Logger.Debug("repository event", kv...)
}

func (l LogListener) ArtifactDescriptorInvalid(e Event) { l.log(e) }
func (l LogListener) ArtifactDescriptorMissing(e Event) { l.log(e) }
func (l LogListener) MetadataInvalid(e Event)           { l.log(e) }
func (l LogListener) ArtifactResolving(e Event)         { l.log(e) }
func (l LogListener) ArtifactResolved(e Event)          { l.log(e) }
func (l LogListener) MetadataResolving(e Event)         { l.log(e) }
func (l LogListener) MetadataResolved(e Event)          { l.log(e) }
func (l LogListener) ArtifactInstalling(e Event)        { l.log(e) }
func (l LogListener) ArtifactInstalled(e Event)         { l.log(e) }
func (l LogListener) MetadataInstalling(e Event)        { l.log(e) }
func (l LogListener) MetadataInstalled(e Event)         { l.log(e) }
func (l LogListener) ArtifactDeploying(e Event)         { l.log(e) }
func (l LogListener) ArtifactDeployed(e Event)          { l.log(e) }
func (l LogListener) MetadataDeploying(e Event)         { l.log(e) }
func (l LogListener) MetadataDeployed(e Event)          { l.log(e) }
