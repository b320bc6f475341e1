// Package file implements a repository backend over a local directory,
// serving "file://" repositories.
package file

import (
	"context"
	"fmt"
	"io"
	"io/fs"
	"net/url"
	"os"
	"path/filepath"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"

	"github.com/matzehuels/depot/pkg/connector"
	"github.com/matzehuels/depot/pkg/errors"
	"github.com/matzehuels/depot/pkg/repository"
)

// Backend stores resources as files below a root directory.
type Backend struct {
	root string
}

var _ connector.Backend = (*Backend)(nil)

// New creates a backend rooted at dir.
func New(dir string) *Backend {
	return &Backend{root: dir}
}

// Open is a [connector.BackendFunc] for file:// repositories.
func Open(_ context.Context, repo repository.RemoteRepository, logger *log.Logger) (connector.Backend, error) {
	u, err := url.Parse(repo.URL)
	if err != nil || u.Scheme != "file" {
		return nil, errors.New(errors.ErrCodeInvalidInput, "repository %s: not a file URL: %q", repo.ID, repo.URL)
	}
	dir := filepath.FromSlash(u.Path)
	if logger != nil {
		logger.Debug("file repository", "id", repo.ID, "dir", dir)
	}
	return New(dir), nil
}

// Root returns the repository directory.
func (b *Backend) Root() string { return b.root }

func (b *Backend) path(name string) (string, error) {
	if err := errors.ValidatePath(name); err != nil {
		return "", err
	}
	return filepath.Join(b.root, filepath.FromSlash(name)), nil
}

func (b *Backend) Open(ctx context.Context, name string) (io.ReadCloser, int64, error) {
	p, err := b.path(name)
	if err != nil {
		return nil, 0, err
	}
	f, err := os.Open(p)
	if os.IsNotExist(err) {
		return nil, 0, fmt.Errorf("%s: %w", name, connector.ErrResourceMissing)
	}
	if err != nil {
		return nil, 0, err
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, 0, err
	}
	if info.IsDir() {
		f.Close()
		return nil, 0, fmt.Errorf("%s is a directory: %w", name, connector.ErrResourceMissing)
	}
	return f, info.Size(), nil
}

// Put writes through a temporary file so readers never observe a partial
// resource.
func (b *Backend) Put(ctx context.Context, name string, r io.Reader, size int64) error {
	p, err := b.path(name)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		return err
	}
	tmp := p + "." + uuid.NewString() + ".part"
	f, err := os.Create(tmp)
	if err != nil {
		return err
	}
	n, err := io.Copy(f, r)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err == nil && size >= 0 && n != size {
		err = fmt.Errorf("%s: wrote %d bytes, expected %d", name, n, size)
	}
	if err != nil {
		_ = os.Remove(tmp)
		return err
	}
	return os.Rename(tmp, p)
}

func (b *Backend) Exists(ctx context.Context, name string) (bool, error) {
	p, err := b.path(name)
	if err != nil {
		return false, err
	}
	info, err := os.Stat(p)
	if os.IsNotExist(err) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return info.Mode().IsRegular(), nil
}

func (b *Backend) Close() error { return nil }

// Walk calls fn for every stored resource name, skipping staging files.
func (b *Backend) Walk(fn func(name string, size int64) error) error {
	return filepath.WalkDir(b.root, func(p string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() || filepath.Ext(p) == ".part" {
			return err
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(b.root, p)
		if err != nil {
			return err
		}
		return fn(filepath.ToSlash(rel), info.Size())
	})
}
