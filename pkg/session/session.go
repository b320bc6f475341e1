// Package session holds the per-run settings shared by collection, resolution,
// installation and deployment.
//
// A [Session] names the local repository, the listeners that observe the
// run, the offline switch and policy overrides. Sessions are created once per
// command and passed down by pointer; they are not modified after the run
// starts.
//
//	sess := session.New("/home/me/.m2/repository")
//	sess.Listener = event.NewLogListener(logger)
//	sess.Offline = true
package session

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"io"
	"maps"
	"time"

	"github.com/charmbracelet/log"

	"github.com/matzehuels/depot/pkg/errors"
	"github.com/matzehuels/depot/pkg/event"
	"github.com/matzehuels/depot/pkg/repository"
	"github.com/matzehuels/depot/pkg/transfer"
)

var discard = log.NewWithOptions(io.Discard, log.Options{})

// Session is the context of one depot run.
type Session struct {
	ID string

	Local repository.LocalRepository

	// Listener observes repository events. Nil means no one listens.
	Listener event.Listener
	// TransferListener observes transfer events of every connector created
	// for this session.
	TransferListener transfer.Listener

	// Offline restricts transfers to repositories on the local machine.
	Offline bool
	// ChecksumPolicy and UpdatePolicy override every repository's policy
	// when set.
	ChecksumPolicy string
	UpdatePolicy   string

	// Tracker remembers when remote metadata was last fetched. Nil disables
	// update checks, so every lookup goes to the remote.
	Tracker Tracker

	// Workers sizes the worker pool of each connector; zero means the
	// connector default.
	Workers int

	// Config carries free-form settings, e.g. from depot.toml.
	Config map[string]string

	Logger    *log.Logger
	CreatedAt time.Time

	pool *repository.Pool
}

// New creates a session over the local repository at basedir.
func New(basedir string) *Session {
	return &Session{
		ID:        GenerateID(),
		Local:     repository.LocalRepository{Basedir: basedir},
		Config:    map[string]string{},
		CreatedAt: time.Now(),
		pool:      &repository.Pool{},
	}
}

// GenerateID returns a random URL-safe identifier.
func GenerateID() string {
	b := make([]byte, 12)
	_, _ = rand.Read(b)
	return base64.RawURLEncoding.EncodeToString(b)
}

// Fire delivers e to the session's listener, if any.
func (s *Session) Fire(e event.Event) {
	if s == nil {
		return
	}
	event.Dispatch(s.Listener, e)
}

// Log returns the session logger or a discarding one.
func (s *Session) Log() *log.Logger {
	if s == nil || s.Logger == nil {
		return discard
	}
	return s.Logger
}

// Value returns the config value for key, or def when unset.
func (s *Session) Value(key, def string) string {
	if s == nil {
		return def
	}
	if v, ok := s.Config[key]; ok {
		return v
	}
	return def
}

// Policy returns the effective policy for repo with the session overrides
// applied on top of the manager's answer.
func (s *Session) Policy(m *repository.Manager, repo repository.RemoteRepository, releases, snapshots bool) repository.Policy {
	p := m.Policy(repo, releases, snapshots)
	if s == nil {
		return p
	}
	if s.ChecksumPolicy != "" {
		p.ChecksumPolicy = s.ChecksumPolicy
	}
	if s.UpdatePolicy != "" {
		p.UpdatePolicy = s.UpdatePolicy
	}
	return p
}

// ConnectorOptions returns the options used to open connectors in this
// session.
func (s *Session) ConnectorOptions(workers int) repository.ConnectorOptions {
	return repository.ConnectorOptions{
		Listener: s.TransferListener,
		Workers:  workers,
		Logger:   s.Log(),
		Offline:  s.Offline,
	}
}

// Connector returns the session's connector for repo, opening it through m
// on first use. Connectors stay open until [Session.Close].
func (s *Session) Connector(ctx context.Context, m *repository.Manager, repo repository.RemoteRepository) (transfer.Connector, error) {
	if s.pool == nil {
		return nil, errors.New(errors.ErrCodeUsage, "session was not created with session.New")
	}
	return s.pool.Get(ctx, m, repo, s.ConnectorOptions(s.Workers))
}

// Close closes every connector opened by the session.
func (s *Session) Close() error {
	if s == nil || s.pool == nil {
		return nil
	}
	return s.pool.Close()
}

// Clone returns a shallow copy with its own Config map. The copy shares the
// parent's open connectors.
func (s *Session) Clone() *Session {
	c := *s
	c.Config = maps.Clone(s.Config)
	return &c
}
