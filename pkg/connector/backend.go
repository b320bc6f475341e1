package connector

import (
	"context"
	"errors"
	"io"

	"github.com/charmbracelet/log"

	"github.com/matzehuels/depot/pkg/repository"
	"github.com/matzehuels/depot/pkg/transfer"
)

// ErrResourceMissing is returned (possibly wrapped) by a [Backend] when the
// named resource does not exist.
var ErrResourceMissing = errors.New("resource does not exist")

// Backend moves bytes for one repository. Names are slash-separated paths
// relative to the repository root. Implementations must be safe for
// concurrent use.
type Backend interface {
	// Open returns a reader for name and its length, or -1 if unknown.
	Open(ctx context.Context, name string) (io.ReadCloser, int64, error)
	// Put stores size bytes read from r under name, replacing any existing
	// resource.
	Put(ctx context.Context, name string, r io.Reader, size int64) error
	// Exists reports whether name is present.
	Exists(ctx context.Context, name string) (bool, error)
	Close() error
}

// BackendFunc opens a backend for a repository.
type BackendFunc func(ctx context.Context, repo repository.RemoteRepository, logger *log.Logger) (Backend, error)

// Factory adapts a backend constructor to the repository manager: every
// connector it builds is a [Parallel] over a fresh backend.
func Factory(open BackendFunc) repository.Factory {
	return func(ctx context.Context, repo repository.RemoteRepository, opts repository.ConnectorOptions) (transfer.Connector, error) {
		b, err := open(ctx, repo, opts.Logger)
		if err != nil {
			return nil, err
		}
		return New(repo, b, Options{
			Workers:  opts.Workers,
			Listener: opts.Listener,
			Logger:   opts.Logger,
		}), nil
	}
}
