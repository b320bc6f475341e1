package artifact

import (
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/matzehuels/depot/pkg/errors"
)

func TestParse(t *testing.T) {
	tests := []struct {
		coord   string
		want    Artifact
		wantErr bool
	}{
		{"org.example:lib:1.0", New("org.example", "lib", "", "jar", "1.0"), false},
		{"org.example:lib:pom:1.0", New("org.example", "lib", "", "pom", "1.0"), false},
		{"org.example:lib:jar:sources:1.0", New("org.example", "lib", "sources", "jar", "1.0"), false},
		{"org.example:lib", Artifact{}, true},
		{"org.example:lib:jar:sources:extra:1.0", Artifact{}, true},
		{"org.example::1.0", Artifact{}, true},
		{"../evil:lib:1.0", Artifact{}, true},
	}

	for _, tt := range tests {
		t.Run(tt.coord, func(t *testing.T) {
			got, err := Parse(tt.coord)
			if (err != nil) != tt.wantErr {
				t.Fatalf("Parse() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil {
				if !errors.Is(err, errors.ErrCodeInvalidCoordinate) {
					t.Errorf("error code = %v", errors.GetCode(err))
				}
				return
			}
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("Parse() mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestKeyAndString(t *testing.T) {
	a := MustParse("org.example:lib:jar:tests:1.0")
	if got := a.Key(); got != "org.example:lib:jar:tests" {
		t.Errorf("Key() = %q", got)
	}
	if got := a.String(); got != "org.example:lib:jar:tests:1.0" {
		t.Errorf("String() = %q", got)
	}
	if got := a.ID(); got != "org.example:lib" {
		t.Errorf("ID() = %q", got)
	}
	if a.Key() != a.SetVersion("2.0").Key() {
		t.Error("Key() must not depend on version")
	}
}

func TestBaseVersion(t *testing.T) {
	tests := []struct {
		version      string
		wantBase     string
		wantSnapshot bool
	}{
		{"1.0", "1.0", false},
		{"1.0-SNAPSHOT", "1.0-SNAPSHOT", true},
		{"1.0-20240102.030405-7", "1.0-SNAPSHOT", true},
		{"2.1.3-beta-20231201.101010-12", "2.1.3-beta-SNAPSHOT", true},
	}
	for _, tt := range tests {
		t.Run(tt.version, func(t *testing.T) {
			a := New("g", "a", "", "", tt.version)
			if got := a.BaseVersion(); got != tt.wantBase {
				t.Errorf("BaseVersion() = %q, want %q", got, tt.wantBase)
			}
			if got := a.IsSnapshot(); got != tt.wantSnapshot {
				t.Errorf("IsSnapshot() = %v, want %v", got, tt.wantSnapshot)
			}
		})
	}
}

func TestSettersDoNotAlias(t *testing.T) {
	orig := New("g", "a", "", "", "1.0").SetProperties(map[string]string{"type": "jar"})
	changed := orig.SetFile("/tmp/a.jar")
	changed.Properties["type"] = "pom"

	if orig.File != "" {
		t.Error("SetFile modified the original")
	}
	if orig.Property("type", "") != "jar" {
		t.Error("property map is shared between copies")
	}

	v2 := orig.SetVersion("2.0")
	if orig.Version != "1.0" || v2.Version != "2.0" {
		t.Errorf("SetVersion: orig=%s copy=%s", orig.Version, v2.Version)
	}
}

func TestDependencySettersDoNotAlias(t *testing.T) {
	d := NewDependency(MustParse("g:a:1.0"), ScopeCompile).
		SetExclusions([]Exclusion{{GroupID: "x", ArtifactID: "y"}})

	scoped := d.SetScope(ScopeTest)
	scoped.Exclusions[0].GroupID = "changed"

	if d.Scope != ScopeCompile {
		t.Errorf("SetScope modified the original: %s", d.Scope)
	}
	if d.Exclusions[0].GroupID != "x" {
		t.Error("exclusions are shared between copies")
	}

	moved := d.SetArtifact(MustParse("g:b:2.0"))
	if d.Artifact.ArtifactID != "a" || moved.Artifact.ArtifactID != "b" {
		t.Error("SetArtifact modified the original")
	}
}

func TestExclusionMatches(t *testing.T) {
	lib := MustParse("org.example:lib:1.0")
	tests := []struct {
		excl Exclusion
		want bool
	}{
		{Exclusion{GroupID: "org.example", ArtifactID: "lib"}, true},
		{Exclusion{GroupID: "org.example", ArtifactID: "*"}, true},
		{Exclusion{GroupID: "*", ArtifactID: "*"}, true},
		{Exclusion{GroupID: "org.example", ArtifactID: "other"}, false},
		{Exclusion{GroupID: "org.example", ArtifactID: "lib", Classifier: "sources"}, false},
		{Exclusion{GroupID: "org.example", ArtifactID: "lib", Extension: "jar"}, true},
	}
	for _, tt := range tests {
		t.Run(tt.excl.String(), func(t *testing.T) {
			if got := tt.excl.Matches(lib); got != tt.want {
				t.Errorf("Matches() = %v, want %v", got, tt.want)
			}
		})
	}

	if _, err := ParseExclusion("nocolon"); err == nil {
		t.Error("ParseExclusion should reject patterns without a colon")
	}
	e, err := ParseExclusion("org.example:*")
	if err != nil || e.GroupID != "org.example" || e.ArtifactID != "*" {
		t.Errorf("ParseExclusion() = %+v, %v", e, err)
	}
}
