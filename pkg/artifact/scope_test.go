package artifact

import "testing"

func TestDefaultScopeTable(t *testing.T) {
	st := DefaultScopeTable()

	tests := []struct {
		a, b Scope
		want Scope
	}{
		{ScopeCompile, ScopeRuntime, ScopeCompile},
		{ScopeTest, ScopeRuntime, ScopeRuntime},
		{ScopeTest, ScopeProvided, ScopeProvided},
		{"", ScopeTest, ScopeCompile},
		{ScopeRuntime, ScopeRuntime, ScopeRuntime},
		{Scope("custom"), ScopeTest, ScopeTest},
	}
	for _, tt := range tests {
		t.Run(string(tt.a)+"/"+string(tt.b), func(t *testing.T) {
			if got := st.Widest(tt.a, tt.b); got != tt.want {
				t.Errorf("Widest(%q, %q) = %q, want %q", tt.a, tt.b, got, tt.want)
			}
		})
	}
}

func TestCustomScopeOrder(t *testing.T) {
	st, err := NewScopeTable([]Scope{ScopeTest, ScopeCompile})
	if err != nil {
		t.Fatal(err)
	}
	if got := st.Widest(ScopeCompile, ScopeTest); got != ScopeTest {
		t.Errorf("custom order not honoured: got %q", got)
	}

	if _, err := NewScopeTable(nil); err == nil {
		t.Error("empty order should be rejected")
	}
	if _, err := NewScopeTable([]Scope{ScopeCompile, ScopeCompile}); err == nil {
		t.Error("duplicate scope should be rejected")
	}
}

func TestDerive(t *testing.T) {
	st := DefaultScopeTable()
	tests := []struct {
		parent, child, want Scope
	}{
		{ScopeCompile, ScopeCompile, ScopeCompile},
		{ScopeCompile, ScopeRuntime, ScopeRuntime},
		{ScopeRuntime, ScopeCompile, ScopeRuntime},
		{ScopeTest, ScopeCompile, ScopeTest},
		{ScopeProvided, ScopeRuntime, ScopeProvided},
		{"", "", ScopeCompile},
	}
	for _, tt := range tests {
		if got := st.Derive(tt.parent, tt.child); got != tt.want {
			t.Errorf("Derive(%q, %q) = %q, want %q", tt.parent, tt.child, got, tt.want)
		}
	}
}
