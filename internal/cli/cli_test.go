package cli

import (
	"bytes"
	"context"
	stderrors "errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/google/go-cmp/cmp"

	"github.com/matzehuels/depot/pkg/artifact"
	"github.com/matzehuels/depot/pkg/config"
	"github.com/matzehuels/depot/pkg/errors"
	"github.com/matzehuels/depot/pkg/graph"
	"github.com/matzehuels/depot/pkg/lockfile"
	"github.com/matzehuels/depot/pkg/render"
	"github.com/matzehuels/depot/pkg/transfer"
)

func TestRootCommand_Subcommands(t *testing.T) {
	root := New(&bytes.Buffer{}, LogInfo).RootCommand()

	var got []string
	for _, cmd := range root.Commands() {
		got = append(got, cmd.Name())
	}
	want := []string{"cache", "completion", "deploy", "get", "install", "resolve", "serve", "tree"}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("subcommands mismatch (-want +got):\n%s", diff)
	}
}

func TestParseDependencies(t *testing.T) {
	deps, err := parseDependencies([]string{"org.example:a:1.0", "org.example:b:jar:tests:2.0"}, "test")
	if err != nil {
		t.Fatalf("parseDependencies: %v", err)
	}
	var got []string
	for _, d := range deps {
		got = append(got, d.Artifact.String()+"/"+string(d.Scope))
	}
	want := []string{"org.example:a:jar:1.0/test", "org.example:b:jar:tests:2.0/test"}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("dependencies mismatch (-want +got):\n%s", diff)
	}

	if _, err := parseDependencies([]string{"not-a-coordinate"}, "compile"); err == nil {
		t.Error("expected error for malformed coordinate")
	}
}

func TestPublishOpts_Artifacts(t *testing.T) {
	opts := publishOpts{pom: "pom.xml"}
	got, err := opts.artifacts("app.jar", "org.example:app:1.0")
	if err != nil {
		t.Fatalf("artifacts: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("got %d artifacts, want 2", len(got))
	}
	if got[0].File != "app.jar" || got[0].Extension != "jar" {
		t.Errorf("main artifact = %+v", got[0])
	}
	if got[1].File != "pom.xml" || got[1].Extension != "pom" || got[1].Version != "1.0" {
		t.Errorf("pom artifact = %+v", got[1])
	}

	got, err = (&publishOpts{}).artifacts("app.jar", "org.example:app:1.0")
	if err != nil || len(got) != 1 {
		t.Errorf("without pom: %d artifacts, err %v", len(got), err)
	}
}

func TestRequestOpts_Request(t *testing.T) {
	e := &env{cfg: config.Default()}

	t.Run("single root", func(t *testing.T) {
		opts := requestOpts{scope: "compile", managed: []string{"org.example:d:1.5"}}
		req, err := opts.request(e, []string{"org.example:app:1.0"})
		if err != nil {
			t.Fatalf("request: %v", err)
		}
		if !req.HasRoot() || req.Root.Artifact.ArtifactID != "app" {
			t.Errorf("root = %+v", req.Root)
		}
		if len(req.Dependencies) != 0 {
			t.Errorf("dependencies = %v, want none", req.Dependencies)
		}
		if len(req.Managed) != 1 || req.Managed[0].Artifact.Version != "1.5" {
			t.Errorf("managed = %+v", req.Managed)
		}
		if len(req.Repositories) != 1 || req.Repositories[0].ID != "central" {
			t.Errorf("repositories = %+v", req.Repositories)
		}
	})

	t.Run("synthetic root", func(t *testing.T) {
		opts := requestOpts{scope: "runtime"}
		req, err := opts.request(e, []string{"org.example:a:1.0", "org.example:b:1.0"})
		if err != nil {
			t.Fatalf("request: %v", err)
		}
		if req.HasRoot() {
			t.Errorf("unexpected root %+v", req.Root)
		}
		if len(req.Dependencies) != 2 || req.Dependencies[1].Scope != artifact.ScopeRuntime {
			t.Errorf("dependencies = %+v", req.Dependencies)
		}
	})

	t.Run("locked", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), lockfile.DefaultFile)
		lf := &lockfile.Lockfile{APIVersion: lockfile.APIVersion, Kind: lockfile.Kind, Artifacts: []lockfile.Entry{{Coordinate: "org.example:lib:jar:1.5"}}}
		if err := lf.WriteFile(path); err != nil {
			t.Fatal(err)
		}
		opts := requestOpts{scope: "compile", locked: true, lockPath: path, managed: []string{"org.example:d:1.0"}}
		req, err := opts.request(e, []string{"org.example:app:1.0"})
		if err != nil {
			t.Fatalf("request: %v", err)
		}
		if len(req.Pins) != 1 || req.Pins[0].Artifact.Version != "1.5" {
			t.Errorf("pins = %+v", req.Pins)
		}
		if len(req.Managed) != 1 || req.Managed[0].Artifact.ArtifactID != "d" {
			t.Errorf("managed = %+v", req.Managed)
		}
	})

	t.Run("locked without lockfile", func(t *testing.T) {
		opts := requestOpts{scope: "compile", locked: true, lockPath: filepath.Join(t.TempDir(), lockfile.DefaultFile)}
		if _, err := opts.request(e, []string{"org.example:app:1.0"}); err == nil {
			t.Error("expected error for missing lockfile")
		}
	})
}

func TestErrorLines(t *testing.T) {
	a := errors.New(errors.ErrCodeNotFound, "a missing")
	b := stderrors.New("b broke")

	tests := []struct {
		name string
		err  error
		want []string
	}{
		{name: "nil"},
		{name: "single", err: b, want: []string{"b broke"}},
		{name: "joined", err: stderrors.Join(a, b), want: []string{a.Error(), "b broke"}},
		{
			name: "coded around joined",
			err:  errors.Wrap(errors.ErrCodeResolution, stderrors.Join(a, b), "2 failed"),
			want: []string{a.Error(), "b broke"},
		},
		{
			name: "coded around single",
			err:  errors.Wrap(errors.ErrCodeResolution, b, "wrapped"),
			want: []string{errors.Wrap(errors.ErrCodeResolution, b, "wrapped").Error()},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if diff := cmp.Diff(tt.want, errorLines(tt.err)); diff != "" {
				t.Errorf("errorLines mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func chain() (*graph.Graph, graph.EdgeID) {
	g := graph.New()
	app := g.AddNode(artifact.NewDependency(artifact.MustParse("org.example:app:1.0"), ""))
	lib := g.AddNode(artifact.NewDependency(artifact.MustParse("org.example:lib:2.0"), artifact.ScopeCompile))
	root := g.AddEdge(graph.NoNode, app.ID, app.Dependency)
	g.SetRoot(root.ID)
	g.AddEdge(app.ID, lib.ID, lib.Dependency)
	return g, root.ID
}

func TestRenderTree(t *testing.T) {
	g, root := chain()

	tests := []struct {
		format string
		want   string
	}{
		{formatText, "\\- org.example:lib:jar:2.0:compile"},
		{formatDOT, "digraph"},
		{formatJSON, "org.example"},
	}
	for _, tt := range tests {
		t.Run(tt.format, func(t *testing.T) {
			data, err := renderTree(context.Background(), g, root, tt.format, render.Options{})
			if err != nil {
				t.Fatalf("renderTree: %v", err)
			}
			if !strings.Contains(string(data), tt.want) {
				t.Errorf("output missing %q:\n%s", tt.want, data)
			}
		})
	}
}

func TestWriteOutput(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tree.txt")
	var reported []string
	report := func(format string, args ...any) { reported = append(reported, format) }

	if err := writeOutput(path, []byte("hello"), report); err != nil {
		t.Fatalf("writeOutput: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "hello" {
		t.Errorf("file = %q", data)
	}
	if len(reported) != 1 {
		t.Errorf("reported %d times, want 1", len(reported))
	}
}

// =============================================================================
// Transfer progress
// =============================================================================

type recordingSender struct{ msgs []tea.Msg }

func (s *recordingSender) Send(msg tea.Msg) { s.msgs = append(s.msgs, msg) }

func TestTeaListener(t *testing.T) {
	s := &recordingSender{}
	l := teaListener{program: s}
	res := transfer.NewResource("http://repo/", "org/example/lib/2.0/lib-2.0.jar", "", 100)

	l.TransferInitiated(transfer.Event{RequestType: transfer.Get, Resource: res})
	l.TransferProgressed(transfer.Event{RequestType: transfer.Get, Resource: res, TransferredBytes: 40})
	l.TransferSucceeded(transfer.Event{RequestType: transfer.Get, Resource: res, TransferredBytes: 100})
	l.TransferStarted(transfer.Event{RequestType: transfer.GetExistence, Resource: res})

	if len(s.msgs) != 3 {
		t.Fatalf("sent %d messages, want 3 (existence checks skipped)", len(s.msgs))
	}
	last := s.msgs[2].(transferMsg)
	if last.name != "lib-2.0.jar" || last.state != stateDone || last.total != 100 {
		t.Errorf("last message = %+v", last)
	}
}

func TestTransferModel_Update(t *testing.T) {
	res := transfer.NewResource("http://repo/", "a/b/lib.jar", "", 200)
	var m tea.Model = NewTransferModel()

	m, _ = m.Update(transferMsg{id: res.ID(), name: "lib.jar", state: stateRunning, bytes: 50, total: 200})
	m, _ = m.Update(transferMsg{id: res.ID(), name: "lib.jar", state: stateRunning, bytes: 20})
	tm := m.(TransferModel)
	row := tm.rows[res.ID()]
	if row == nil || row.bytes != 50 || row.total != 200 {
		t.Fatalf("row = %+v, want 50 of 200 bytes", row)
	}
	if !strings.Contains(tm.View(), "lib.jar") {
		t.Errorf("view missing row:\n%s", tm.View())
	}

	m, cmd := m.Update(transfersDoneMsg{})
	if cmd == nil || !m.(TransferModel).finished {
		t.Error("done message should finish and quit")
	}

	_, cmd = NewTransferModel().Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("q")})
	if cmd == nil {
		t.Error("q should quit")
	}
}

func TestFormatBytes(t *testing.T) {
	tests := map[int64]string{
		12:            "12 B",
		2048:          "2.0 KiB",
		3 * (1 << 20): "3.0 MiB",
	}
	for n, want := range tests {
		if got := formatBytes(n); got != want {
			t.Errorf("formatBytes(%d) = %q, want %q", n, got, want)
		}
	}
}

func TestTruncate(t *testing.T) {
	if got := truncate("short", 10); got != "short" {
		t.Errorf("truncate = %q", got)
	}
	if got := truncate("0123456789", 5); got != "…6789" {
		t.Errorf("truncate = %q, want …6789", got)
	}
}
