package repository

import (
	"context"
	stderrors "errors"
	"sync"

	"github.com/matzehuels/depot/pkg/errors"
	"github.com/matzehuels/depot/pkg/transfer"
)

// Pool keeps one open connector per repository. The zero value is ready to
// use. Connectors are created on first use and closed together by Close.
type Pool struct {
	mu     sync.Mutex
	conns  map[string]transfer.Connector
	closed bool
}

// Get returns the pooled connector for repo, creating it through m.
// Failures are not cached, so a later call retries.
func (p *Pool) Get(ctx context.Context, m *Manager, repo RemoteRepository, opts ConnectorOptions) (transfer.Connector, error) {
	key := repo.ID + "|" + repo.URL
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil, errors.New(errors.ErrCodeUsage, "connector pool is closed")
	}
	if c, ok := p.conns[key]; ok {
		return c, nil
	}
	c, err := m.Connector(ctx, repo, opts)
	if err != nil {
		return nil, err
	}
	if p.conns == nil {
		p.conns = map[string]transfer.Connector{}
	}
	p.conns[key] = c
	return c, nil
}

// Len returns the number of open connectors.
func (p *Pool) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.conns)
}

// Close closes every pooled connector and rejects further Gets.
func (p *Pool) Close() error {
	p.mu.Lock()
	conns := p.conns
	p.conns, p.closed = nil, true
	p.mu.Unlock()

	var errs []error
	for _, c := range conns {
		if err := c.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return stderrors.Join(errs...)
}
