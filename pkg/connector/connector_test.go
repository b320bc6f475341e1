package connector

import (
	"bytes"
	"context"
	"crypto/sha1"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/matzehuels/depot/pkg/artifact"
	derrors "github.com/matzehuels/depot/pkg/errors"
	"github.com/matzehuels/depot/pkg/repository"
	"github.com/matzehuels/depot/pkg/transfer"
)

// memBackend is an in-memory Backend with hooks for failure injection.
type memBackend struct {
	mu     sync.Mutex
	data   map[string][]byte
	cut    map[string]int // serve only this many bytes, then fail
	gate   func(name string)
	closed bool
}

func newMem() *memBackend {
	return &memBackend{data: map[string][]byte{}, cut: map[string]int{}}
}

func (m *memBackend) store(name, content string, withSum bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[name] = []byte(content)
	if withSum {
		sum := sha1.Sum([]byte(content))
		m.data[name+".sha1"] = []byte(hex.EncodeToString(sum[:]))
	}
}

func (m *memBackend) get(name string) ([]byte, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.data[name]
	return b, ok
}

func (m *memBackend) Open(ctx context.Context, name string) (io.ReadCloser, int64, error) {
	if m.gate != nil {
		m.gate(name)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.data[name]
	if !ok {
		return nil, 0, fmt.Errorf("%s: %w", name, ErrResourceMissing)
	}
	if n, ok := m.cut[name]; ok {
		return io.NopCloser(io.MultiReader(bytes.NewReader(b[:n]), failingReader{})), int64(len(b)), nil
	}
	return io.NopCloser(bytes.NewReader(b)), int64(len(b)), nil
}

func (m *memBackend) Put(ctx context.Context, name string, r io.Reader, size int64) error {
	b, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[name] = b
	return nil
}

func (m *memBackend) Exists(ctx context.Context, name string) (bool, error) {
	_, ok := m.get(name)
	return ok, nil
}

func (m *memBackend) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

type failingReader struct{}

func (failingReader) Read([]byte) (int, error) { return 0, errors.New("connection reset") }

// recorder keeps the event sequence per resource name.
type recorder struct {
	mu     sync.Mutex
	events map[string][]transfer.EventType
	veto   func(transfer.Event) error
}

func newRecorder() *recorder { return &recorder{events: map[string][]transfer.EventType{}} }

func (r *recorder) add(e transfer.Event) error {
	r.mu.Lock()
	r.events[e.Resource.Name()] = append(r.events[e.Resource.Name()], e.Type)
	r.mu.Unlock()
	if r.veto != nil {
		return r.veto(e)
	}
	return nil
}

func (r *recorder) TransferInitiated(e transfer.Event) error  { return r.add(e) }
func (r *recorder) TransferStarted(e transfer.Event) error    { return r.add(e) }
func (r *recorder) TransferProgressed(e transfer.Event) error { return r.add(e) }
func (r *recorder) TransferCorrupted(e transfer.Event) error  { return r.add(e) }
func (r *recorder) TransferSucceeded(e transfer.Event)        { _ = r.add(e) }
func (r *recorder) TransferFailed(e transfer.Event)           { _ = r.add(e) }

// compact collapses runs of Progressed events so sequences are comparable.
func (r *recorder) compact(name string) []transfer.EventType {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []transfer.EventType
	for _, t := range r.events[name] {
		if t == transfer.Progressed && len(out) > 0 && out[len(out)-1] == transfer.Progressed {
			continue
		}
		out = append(out, t)
	}
	return out
}

func terminalCount(seq []transfer.EventType) int {
	n := 0
	for _, t := range seq {
		if t == transfer.Succeeded || t == transfer.Failed {
			n++
		}
	}
	return n
}

var layout repository.Layout

func testRepo() repository.RemoteRepository {
	return repository.NewRemote("test", "mem://repo")
}

func downloads(t *testing.T, dir string, coords ...string) []*transfer.ArtifactDownload {
	t.Helper()
	var out []*transfer.ArtifactDownload
	for _, c := range coords {
		a := artifact.MustParse(c)
		out = append(out, &transfer.ArtifactDownload{
			Artifact: a,
			File:     filepath.Join(dir, a.ArtifactID+".jar"),
		})
	}
	return out
}

func TestGetBatchWithOneMissing(t *testing.T) {
	mem := newMem()
	coords := []string{"org:a:1.0", "org:b:1.0", "org:missing:1.0", "org:c:1.0", "org:d:1.0"}
	for _, c := range coords {
		if !strings.Contains(c, "missing") {
			mem.store(layout.ArtifactPath(artifact.MustParse(c)), "content of "+c, true)
		}
	}
	rec := newRecorder()
	p := New(testRepo(), mem, Options{Workers: 2, Listener: rec})
	defer p.Close()

	dir := t.TempDir()
	items := downloads(t, dir, coords...)
	if err := p.Get(context.Background(), items, nil); err != nil {
		t.Fatalf("Get: %v", err)
	}

	for _, d := range items {
		name := layout.ArtifactPath(d.Artifact)
		seq := rec.compact(name)
		if terminalCount(seq) != 1 {
			t.Errorf("%s: %d terminal events in %v", name, terminalCount(seq), seq)
		}
		if d.Artifact.ArtifactID == "missing" {
			if !errors.Is(d.Err, transfer.ErrNotFound) {
				t.Errorf("missing: Err = %v, want not found", d.Err)
			}
			if diff := cmp.Diff([]transfer.EventType{transfer.Initiated, transfer.Failed}, seq); diff != "" {
				t.Errorf("missing: events mismatch (-want +got):\n%s", diff)
			}
			if _, err := os.Stat(d.File); !os.IsNotExist(err) {
				t.Errorf("missing: target exists")
			}
			continue
		}
		if d.Err != nil {
			t.Errorf("%s: unexpected error %v", d.Artifact, d.Err)
		}
		want := []transfer.EventType{transfer.Initiated, transfer.Started, transfer.Progressed, transfer.Succeeded}
		if diff := cmp.Diff(want, seq); diff != "" {
			t.Errorf("%s: events mismatch (-want +got):\n%s", d.Artifact, diff)
		}
		got, err := os.ReadFile(d.File)
		if err != nil || string(got) != "content of "+d.Artifact.GroupID+":"+d.Artifact.ArtifactID+":1.0" {
			t.Errorf("%s: file = %q, %v", d.Artifact, got, err)
		}
	}
}

func TestGetRunsItemsConcurrently(t *testing.T) {
	const n = 4
	mem := newMem()
	var coords []string
	for i := range n {
		c := fmt.Sprintf("org:lib%d:1.0", i)
		coords = append(coords, c)
		mem.store(layout.ArtifactPath(artifact.MustParse(c)), c, true)
	}

	// Every Open waits until all n have arrived, which can only happen if
	// the items run at the same time.
	var mu sync.Mutex
	arrived := 0
	all := make(chan struct{})
	mem.gate = func(name string) {
		if strings.HasSuffix(name, ".sha1") {
			return
		}
		mu.Lock()
		arrived++
		if arrived == n {
			close(all)
		}
		mu.Unlock()
		select {
		case <-all:
		case <-time.After(5 * time.Second):
		}
	}

	p := New(testRepo(), mem, Options{Workers: n})
	defer p.Close()
	items := downloads(t, t.TempDir(), coords...)
	if err := p.Get(context.Background(), items, nil); err != nil {
		t.Fatalf("Get: %v", err)
	}
	select {
	case <-all:
	default:
		t.Fatal("items did not run concurrently")
	}
	for _, d := range items {
		if d.Err != nil {
			t.Errorf("%s: %v", d.Artifact, d.Err)
		}
	}
}

func TestInterruptedDownloadKeepsTarget(t *testing.T) {
	mem := newMem()
	a := artifact.MustParse("org:big:1.0")
	name := layout.ArtifactPath(a)
	mem.store(name, strings.Repeat("x", 1000), true)
	mem.cut[name] = 100

	dir := t.TempDir()
	target := filepath.Join(dir, "big.jar")
	if err := os.WriteFile(target, []byte("previous"), 0o644); err != nil {
		t.Fatal(err)
	}

	p := New(testRepo(), mem, Options{})
	defer p.Close()
	d := &transfer.ArtifactDownload{Artifact: a, File: target}
	if err := p.Get(context.Background(), []*transfer.ArtifactDownload{d}, nil); err != nil {
		t.Fatalf("Get: %v", err)
	}
	if !errors.Is(d.Err, transfer.ErrTransfer) {
		t.Errorf("Err = %v, want transfer error", d.Err)
	}
	got, _ := os.ReadFile(target)
	if string(got) != "previous" {
		t.Errorf("target = %q, want unchanged", got)
	}
	entries, _ := os.ReadDir(dir)
	if len(entries) != 1 {
		t.Errorf("staging files left behind: %v", entries)
	}
}

func TestListenerVetoCancelsOnlyThatTransfer(t *testing.T) {
	mem := newMem()
	coords := []string{"org:a:1.0", "org:vetoed:1.0", "org:c:1.0"}
	for _, c := range coords {
		mem.store(layout.ArtifactPath(artifact.MustParse(c)), c, true)
	}
	vetoed := layout.ArtifactPath(artifact.MustParse("org:vetoed:1.0"))
	rec := newRecorder()
	rec.veto = func(e transfer.Event) error {
		if e.Type == transfer.Started && e.Resource.Name() == vetoed {
			return transfer.ErrCancelled
		}
		return nil
	}

	p := New(testRepo(), mem, Options{Listener: rec})
	defer p.Close()
	items := downloads(t, t.TempDir(), coords...)
	if err := p.Get(context.Background(), items, nil); err != nil {
		t.Fatalf("Get: %v", err)
	}

	for _, d := range items {
		if d.Artifact.ArtifactID != "vetoed" {
			if d.Err != nil {
				t.Errorf("%s: %v", d.Artifact, d.Err)
			}
			continue
		}
		if !errors.Is(d.Err, transfer.ErrCancelled) {
			t.Errorf("vetoed: Err = %v, want cancelled", d.Err)
		}
		want := []transfer.EventType{transfer.Initiated, transfer.Started, transfer.Failed}
		if diff := cmp.Diff(want, rec.compact(vetoed)); diff != "" {
			t.Errorf("vetoed: events mismatch (-want +got):\n%s", diff)
		}
		if _, err := os.Stat(d.File); !os.IsNotExist(err) {
			t.Error("vetoed: target written")
		}
	}
}

type panickingListener struct{ transfer.BaseListener }

func (panickingListener) TransferProgressed(transfer.Event) error { panic("listener bug") }

func TestPanickingListenerFailsTransfer(t *testing.T) {
	mem := newMem()
	a := artifact.MustParse("org:a:1.0")
	mem.store(layout.ArtifactPath(a), "data", true)
	p := New(testRepo(), mem, Options{Listener: panickingListener{}})
	defer p.Close()

	d := &transfer.ArtifactDownload{Artifact: a, File: filepath.Join(t.TempDir(), "a.jar")}
	if err := p.Get(context.Background(), []*transfer.ArtifactDownload{d}, nil); err != nil {
		t.Fatalf("Get: %v", err)
	}
	if !errors.Is(d.Err, transfer.ErrCancelled) {
		t.Errorf("Err = %v, want cancelled", d.Err)
	}
}

func TestClosedConnectorRejectsBatches(t *testing.T) {
	mem := newMem()
	p := New(testRepo(), mem, Options{})
	if err := p.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := p.Close(); err != nil {
		t.Errorf("second Close: %v", err)
	}
	if !mem.closed {
		t.Error("backend not closed")
	}

	err := p.Get(context.Background(), nil, nil)
	if !derrors.Is(err, derrors.ErrCodeUsage) {
		t.Errorf("Get after Close = %v, want usage error", err)
	}
	err = p.Put(context.Background(), []*transfer.ArtifactUpload{{}}, nil)
	if !derrors.Is(err, derrors.ErrCodeUsage) {
		t.Errorf("Put after Close = %v, want usage error", err)
	}
}

func TestEmptyBatches(t *testing.T) {
	p := New(testRepo(), newMem(), Options{})
	defer p.Close()
	if err := p.Get(context.Background(), nil, []*transfer.MetadataDownload{nil}); err != nil {
		t.Errorf("Get(nil) = %v", err)
	}
	if err := p.Put(context.Background(), nil, nil); err != nil {
		t.Errorf("Put(nil) = %v", err)
	}
}

func TestChecksumPolicies(t *testing.T) {
	tests := []struct {
		name      string
		policy    string
		sidecar   string // "" means no sidecar
		wantErr   error
		corrupted bool
	}{
		{"FailMismatch", repository.ChecksumFail, strings.Repeat("0", 40), transfer.ErrChecksum, true},
		{"WarnMismatch", repository.ChecksumWarn, strings.Repeat("0", 40), nil, true},
		{"IgnoreMismatch", repository.ChecksumIgnore, strings.Repeat("0", 40), nil, false},
		{"FailMissing", repository.ChecksumFail, "", transfer.ErrChecksum, false},
		{"WarnMissing", repository.ChecksumWarn, "", nil, false},
		{"FailMatchSha1sumFormat", repository.ChecksumFail, "a17c9aaa61e80a1bf71d0d850af4e5baa9800bbd  a-1.0.jar\n", nil, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mem := newMem()
			a := artifact.MustParse("org:a:1.0")
			name := layout.ArtifactPath(a)
			mem.store(name, "data", false)
			if tt.sidecar != "" {
				mem.store(name+".sha1", tt.sidecar, false)
			}
			rec := newRecorder()
			p := New(testRepo(), mem, Options{Listener: rec})
			defer p.Close()

			d := &transfer.ArtifactDownload{Artifact: a, File: filepath.Join(t.TempDir(), "a.jar"), ChecksumPolicy: tt.policy}
			if err := p.Get(context.Background(), []*transfer.ArtifactDownload{d}, nil); err != nil {
				t.Fatalf("Get: %v", err)
			}
			if tt.wantErr == nil && d.Err != nil {
				t.Errorf("Err = %v, want nil", d.Err)
			}
			if tt.wantErr != nil && !errors.Is(d.Err, tt.wantErr) {
				t.Errorf("Err = %v, want %v", d.Err, tt.wantErr)
			}
			sawCorrupted := false
			for _, typ := range rec.compact(name) {
				sawCorrupted = sawCorrupted || typ == transfer.Corrupted
			}
			if sawCorrupted != tt.corrupted {
				t.Errorf("corrupted event = %v, want %v", sawCorrupted, tt.corrupted)
			}
			_, statErr := os.Stat(d.File)
			if (d.Err == nil) != (statErr == nil) {
				t.Errorf("target presence %v does not match outcome %v", statErr, d.Err)
			}
		})
	}
}

func TestPutWritesChecksumSidecar(t *testing.T) {
	mem := newMem()
	p := New(testRepo(), mem, Options{})
	defer p.Close()

	src := filepath.Join(t.TempDir(), "lib.jar")
	if err := os.WriteFile(src, []byte("library bytes"), 0o644); err != nil {
		t.Fatal(err)
	}
	a := artifact.MustParse("org:lib:2.0").SetFile(src)
	md := artifact.NewMetadata("org", "lib", "", "maven-metadata.xml", artifact.Release)
	mdFile := filepath.Join(t.TempDir(), "maven-metadata.xml")
	if err := os.WriteFile(mdFile, []byte("<metadata/>"), 0o644); err != nil {
		t.Fatal(err)
	}
	up := &transfer.ArtifactUpload{Artifact: a}
	mup := &transfer.MetadataUpload{Metadata: md.SetFile(mdFile)}
	if err := p.Put(context.Background(), []*transfer.ArtifactUpload{up}, []*transfer.MetadataUpload{mup}); err != nil {
		t.Fatalf("Put: %v", err)
	}
	if up.Err != nil || mup.Err != nil {
		t.Fatalf("upload errors: %v, %v", up.Err, mup.Err)
	}

	name := layout.ArtifactPath(a)
	sum := sha1.Sum([]byte("library bytes"))
	if got, _ := mem.get(name + ".sha1"); string(got) != hex.EncodeToString(sum[:]) {
		t.Errorf("sidecar = %q", got)
	}
	if _, ok := mem.get(layout.MetadataPath(md)); !ok {
		t.Error("metadata not uploaded")
	}

	// Round trip through Get with the strictest policy.
	d := &transfer.ArtifactDownload{Artifact: a, File: filepath.Join(t.TempDir(), "out.jar"), ChecksumPolicy: repository.ChecksumFail}
	if err := p.Get(context.Background(), []*transfer.ArtifactDownload{d}, nil); err != nil || d.Err != nil {
		t.Fatalf("Get: %v / %v", err, d.Err)
	}
}

func TestPutMissingSourceFails(t *testing.T) {
	p := New(testRepo(), newMem(), Options{})
	defer p.Close()
	up := &transfer.ArtifactUpload{Artifact: artifact.MustParse("org:lib:2.0").SetFile(filepath.Join(t.TempDir(), "nope.jar"))}
	if err := p.Put(context.Background(), []*transfer.ArtifactUpload{up}, nil); err != nil {
		t.Fatalf("Put: %v", err)
	}
	if !errors.Is(up.Err, transfer.ErrTransfer) {
		t.Errorf("Err = %v, want transfer error", up.Err)
	}
}

func TestExistenceCheck(t *testing.T) {
	mem := newMem()
	present := artifact.MustParse("org:present:1.0")
	mem.store(layout.ArtifactPath(present), "x", true)
	p := New(testRepo(), mem, Options{})
	defer p.Close()

	dir := t.TempDir()
	items := []*transfer.ArtifactDownload{
		{Artifact: present, File: filepath.Join(dir, "present.jar"), ExistenceCheck: true},
		{Artifact: artifact.MustParse("org:absent:1.0"), File: filepath.Join(dir, "absent.jar"), ExistenceCheck: true},
	}
	if err := p.Get(context.Background(), items, nil); err != nil {
		t.Fatalf("Get: %v", err)
	}
	if items[0].Err != nil {
		t.Errorf("present: %v", items[0].Err)
	}
	if !errors.Is(items[1].Err, transfer.ErrNotFound) {
		t.Errorf("absent: %v", items[1].Err)
	}
	if entries, _ := os.ReadDir(dir); len(entries) != 0 {
		t.Errorf("existence check wrote files: %v", entries)
	}
}

func TestCancelledContext(t *testing.T) {
	mem := newMem()
	a := artifact.MustParse("org:a:1.0")
	mem.store(layout.ArtifactPath(a), "data", true)
	p := New(testRepo(), mem, Options{})
	defer p.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	d := &transfer.ArtifactDownload{Artifact: a, File: filepath.Join(t.TempDir(), "a.jar")}
	if err := p.Get(ctx, []*transfer.ArtifactDownload{d}, nil); err != nil {
		t.Fatalf("Get: %v", err)
	}
	if !errors.Is(d.Err, transfer.ErrCancelled) {
		t.Errorf("Err = %v, want cancelled", d.Err)
	}
}

func TestCloseWaitsForBatchInFlight(t *testing.T) {
	mem := newMem()
	a := artifact.MustParse("org:slow:1.0")
	mem.store(layout.ArtifactPath(a), "data", true)
	release := make(chan struct{})
	entered := make(chan struct{}, 1)
	mem.gate = func(name string) {
		if strings.HasSuffix(name, ".sha1") {
			return
		}
		entered <- struct{}{}
		<-release
	}
	p := New(testRepo(), mem, Options{})

	d := &transfer.ArtifactDownload{Artifact: a, File: filepath.Join(t.TempDir(), "slow.jar")}
	done := make(chan error, 1)
	go func() { done <- p.Get(context.Background(), []*transfer.ArtifactDownload{d}, nil) }()
	<-entered

	closed := make(chan struct{})
	go func() {
		_ = p.Close()
		close(closed)
	}()
	select {
	case <-closed:
		t.Fatal("Close returned while a batch was running")
	case <-time.After(50 * time.Millisecond):
	}
	close(release)
	if err := <-done; err != nil {
		t.Errorf("Get: %v", err)
	}
	<-closed
	if d.Err != nil {
		t.Errorf("in-flight item failed: %v", d.Err)
	}
}

func TestLatch(t *testing.T) {
	l := newLatch(3)
	done := make(chan struct{})
	go func() {
		l.wait()
		close(done)
	}()
	l.countDown()
	l.countDown()
	select {
	case <-done:
		t.Fatal("wait returned early")
	case <-time.After(20 * time.Millisecond):
	}
	l.countDown()
	l.countDown()
	<-done
	newLatch(0).wait()
}
