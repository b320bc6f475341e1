package connector

import (
	"context"
	"io"
	"sync"

	"github.com/charmbracelet/log"

	"github.com/matzehuels/depot/pkg/errors"
	"github.com/matzehuels/depot/pkg/repository"
	"github.com/matzehuels/depot/pkg/transfer"
)

// DefaultWorkers is the pool size when [Options.Workers] is not set.
const DefaultWorkers = 4

// Options configure a [Parallel] connector.
type Options struct {
	// Workers is the number of goroutines serving all batches.
	Workers  int
	Listener transfer.Listener
	Logger   *log.Logger
	// Checksums verifies downloads. Defaults to [SHA1].
	Checksums ChecksumVerifier
}

// WithDefaults returns a copy of Options with zero values replaced by
// defaults.
func (o Options) WithDefaults() Options {
	opts := o
	if opts.Workers <= 0 {
		opts.Workers = DefaultWorkers
	}
	if opts.Listener == nil {
		opts.Listener = transfer.BaseListener{}
	}
	if opts.Logger == nil {
		opts.Logger = log.NewWithOptions(io.Discard, log.Options{})
	}
	if opts.Checksums == nil {
		opts.Checksums = SHA1{}
	}
	return opts
}

// Parallel is a [transfer.Connector] running transfers on a worker pool.
type Parallel struct {
	repo    repository.RemoteRepository
	backend Backend
	layout  repository.Layout
	opts    Options

	jobs    chan func()
	workers sync.WaitGroup

	// mu is held for reading by every batch in flight and for writing by
	// Close, which therefore waits for running batches.
	mu     sync.RWMutex
	closed bool
}

var _ transfer.Connector = (*Parallel)(nil)

// New starts a connector for repo over backend. The connector owns the
// backend and closes it in [Parallel.Close].
func New(repo repository.RemoteRepository, backend Backend, opts Options) *Parallel {
	opts = opts.WithDefaults()
	p := &Parallel{
		repo:    repo,
		backend: backend,
		opts:    opts,
		jobs:    make(chan func()),
	}
	for range opts.Workers {
		p.workers.Add(1)
		go p.worker()
	}
	return p
}

func (p *Parallel) worker() {
	defer p.workers.Done()
	for job := range p.jobs {
		job()
	}
}

// Repository returns the repository the connector serves.
func (p *Parallel) Repository() repository.RemoteRepository { return p.repo }

// Get downloads the given artifacts and metadata. Nil slices are treated as
// empty and nil items are skipped. It returns a usage error if the connector
// is closed; otherwise it returns nil after every item has finished, with
// outcomes recorded in the items' Err fields.
func (p *Parallel) Get(ctx context.Context, artifacts []*transfer.ArtifactDownload, metadata []*transfer.MetadataDownload) error {
	var tasks []func(context.Context)
	for _, d := range artifacts {
		if d != nil {
			tasks = append(tasks, func(ctx context.Context) { p.getArtifact(ctx, d) })
		}
	}
	for _, d := range metadata {
		if d != nil {
			tasks = append(tasks, func(ctx context.Context) { p.getMetadata(ctx, d) })
		}
	}
	return p.run(ctx, tasks)
}

// Put uploads the given artifacts and metadata with the same contract as
// [Parallel.Get].
func (p *Parallel) Put(ctx context.Context, artifacts []*transfer.ArtifactUpload, metadata []*transfer.MetadataUpload) error {
	var tasks []func(context.Context)
	for _, u := range artifacts {
		if u != nil {
			tasks = append(tasks, func(ctx context.Context) { p.putArtifact(ctx, u) })
		}
	}
	for _, u := range metadata {
		if u != nil {
			tasks = append(tasks, func(ctx context.Context) { p.putMetadata(ctx, u) })
		}
	}
	return p.run(ctx, tasks)
}

func (p *Parallel) run(ctx context.Context, tasks []func(context.Context)) error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return errors.New(errors.ErrCodeUsage, "connector for repository %s is closed", p.repo.ID)
	}
	if len(tasks) == 0 {
		return nil
	}

	p.opts.Logger.Debug("transfer batch", "repository", p.repo.ID, "items", len(tasks))
	done := newLatch(len(tasks))
	for _, task := range tasks {
		p.jobs <- func() {
			defer done.countDown()
			task(ctx)
		}
	}
	done.wait()
	return nil
}

// Close rejects further batches, waits for batches in flight, stops the
// workers and closes the backend. Calling Close again is a no-op.
func (p *Parallel) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	close(p.jobs)
	p.mu.Unlock()

	p.workers.Wait()
	return p.backend.Close()
}

func (p *Parallel) String() string {
	return "parallel connector for " + p.repo.String()
}
