package main

import "testing"

func TestParsePlugins(t *testing.T) {
	tests := []struct {
		input      string
		wantModule string
		wantVer    string
	}{
		{"github.com/example/approver@v1.0.0", "github.com/example/approver", "v1.0.0"},
		{"github.com/example/approver", "github.com/example/approver", ""},
		{"github.com/org/repo@v2.3.4-beta", "github.com/org/repo", "v2.3.4-beta"},
	}

	for _, tt := range tests {
		plugins, err := parsePlugins([]string{tt.input})
		if err != nil {
			t.Fatalf("parsePlugins(%q): %v", tt.input, err)
		}
		if len(plugins) != 1 {
			t.Fatalf("expected 1 plugin, got %d", len(plugins))
		}
		p := plugins[0]
		if p.ModulePath != tt.wantModule {
			t.Errorf("parsePlugins(%q).ModulePath = %q, want %q", tt.input, p.ModulePath, tt.wantModule)
		}
		if p.Version != tt.wantVer {
			t.Errorf("parsePlugins(%q).Version = %q, want %q", tt.input, p.Version, tt.wantVer)
		}
	}
}

func TestParsePlugins_MissingModulePath(t *testing.T) {
	for _, input := range []string{"", "@v1.0.0"} {
		if _, err := parsePlugins([]string{input}); err == nil {
			t.Errorf("parsePlugins(%q): expected error", input)
		}
	}
}

func TestFilterModules(t *testing.T) {
	all := []string{
		"github.com/flemzord/tollgate/modules/approver/telegram",
		"github.com/flemzord/tollgate/modules/approver/terminal",
		"github.com/flemzord/tollgate/modules/ledger/sqlite",
	}

	got := filterModules(all, []string{"telegram"})
	if len(got) != 1 {
		t.Fatalf("expected 1 module, got %d: %v", len(got), got)
	}
	if got[0] != all[0] {
		t.Errorf("got %q, want %q", got[0], all[0])
	}
}

func TestFilterModules_NoMatch(t *testing.T) {
	all := []string{
		"github.com/flemzord/tollgate/modules/approver/telegram",
	}
	got := filterModules(all, []string{"nonexistent"})
	if len(got) != 0 {
		t.Errorf("expected empty, got %v", got)
	}
}

func TestPluginString(t *testing.T) {
	p := Plugin{ModulePath: "github.com/a/b", Version: "v1.0.0"}
	if got := p.String(); got != "github.com/a/b@v1.0.0" {
		t.Errorf("got %q, want %q", got, "github.com/a/b@v1.0.0")
	}

	p2 := Plugin{ModulePath: "github.com/a/b"}
	if got := p2.String(); got != "github.com/a/b" {
		t.Errorf("got %q, want %q", got, "github.com/a/b")
	}
}
