package session

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Tracker records when a remote resource was last checked for updates.
type Tracker interface {
	// LastChecked returns the zero time when key was never checked.
	LastChecked(ctx context.Context, key string) (time.Time, error)
	Touch(ctx context.Context, key string, at time.Time) error
}

// TrackerKey identifies a resource fetched from a repository.
func TrackerKey(repoID, resource string) string {
	return repoID + "|" + resource
}

// FileTracker keeps all check times in one JSON file, normally
// "resolver-status.json" inside the local repository.
type FileTracker struct {
	mu   sync.Mutex
	path string
}

// TrackerFile is the default tracker file name.
const TrackerFile = "resolver-status.json"

// NewFileTracker creates a tracker backed by path. The file is created on
// the first Touch.
func NewFileTracker(path string) *FileTracker {
	return &FileTracker{path: path}
}

func (t *FileTracker) LastChecked(ctx context.Context, key string) (time.Time, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	m, err := t.load()
	if err != nil {
		return time.Time{}, err
	}
	return m[key], nil
}

func (t *FileTracker) Touch(ctx context.Context, key string, at time.Time) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	m, err := t.load()
	if err != nil {
		return err
	}
	m[key] = at.UTC()
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal tracker: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(t.path), 0o755); err != nil {
		return fmt.Errorf("create tracker dir: %w", err)
	}
	tmp := t.path + "." + uuid.NewString() + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write tracker: %w", err)
	}
	if err := os.Rename(tmp, t.path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("write tracker: %w", err)
	}
	return nil
}

// load reads the file; a missing or corrupt file yields an empty map.
func (t *FileTracker) load() (map[string]time.Time, error) {
	m := map[string]time.Time{}
	data, err := os.ReadFile(t.path)
	if os.IsNotExist(err) {
		return m, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read tracker: %w", err)
	}
	if err := json.Unmarshal(data, &m); err != nil {
		return map[string]time.Time{}, nil
	}
	return m, nil
}

// MemoryTracker keeps check times in memory.
type MemoryTracker struct {
	mu sync.Mutex
	m  map[string]time.Time
}

func NewMemoryTracker() *MemoryTracker {
	return &MemoryTracker{m: map[string]time.Time{}}
}

func (t *MemoryTracker) LastChecked(ctx context.Context, key string) (time.Time, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.m[key], nil
}

func (t *MemoryTracker) Touch(ctx context.Context, key string, at time.Time) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.m[key] = at
	return nil
}

var (
	_ Tracker = (*FileTracker)(nil)
	_ Tracker = (*MemoryTracker)(nil)
)
