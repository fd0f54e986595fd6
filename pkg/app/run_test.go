package app

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/flemzord/tollgate/internal/config"
	"github.com/flemzord/tollgate/internal/security"
)

func TestResolveConfigPath_XDGConfigHome(t *testing.T) {
	dir := t.TempDir()
	cfgDir := filepath.Join(dir, "tollgate")
	if err := os.MkdirAll(cfgDir, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	cfgPath := filepath.Join(cfgDir, "tollgate.yaml")
	if err := os.WriteFile(cfgPath, []byte("version: \"1\""), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	t.Setenv("XDG_CONFIG_HOME", dir)

	got, err := ResolveConfigPath()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != cfgPath {
		t.Errorf("got %q, want %q", got, cfgPath)
	}
}

func TestResolveConfigPath_NotFound(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", "/nonexistent/path")

	// Also ensure there's no tollgate.yaml in the current directory.
	origDir, _ := os.Getwd()
	tmpDir := t.TempDir()
	if err := os.Chdir(tmpDir); err != nil {
		t.Fatalf("chdir: %v", err)
	}
	t.Cleanup(func() { _ = os.Chdir(origDir) })

	_, err := ResolveConfigPath()
	if err == nil {
		t.Error("expected error when no config file found")
	}
}

func TestDefaultDataDir_XDGDataHome(t *testing.T) {
	t.Setenv("XDG_DATA_HOME", "/custom/data")
	got := DefaultDataDir()
	want := "/custom/data/tollgate"
	if got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestDefaultDataDir_Fallback(t *testing.T) {
	t.Setenv("XDG_DATA_HOME", "")
	_ = os.Unsetenv("XDG_DATA_HOME")

	got := DefaultDataDir()
	home, _ := os.UserHomeDir()
	want := filepath.Join(home, ".local", "share", "tollgate")
	if got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestRun_InvalidConfigPath(t *testing.T) {
	err := Run(RunParams{ConfigPath: "/nonexistent/config.yaml"})
	if err == nil {
		t.Error("expected error for invalid config path")
	}
}

func TestRun_InvalidConfigContent(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bad.yaml")
	if err := os.WriteFile(path, []byte("not: valid: yaml: ["), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	err := Run(RunParams{ConfigPath: path})
	if err == nil {
		t.Error("expected error for invalid YAML")
	}
}

func TestRun_ValidationFailure(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "noservers.yaml")
	if err := os.WriteFile(path, []byte("version: \"1\"\n"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	err := Run(RunParams{ConfigPath: path})
	if err == nil {
		t.Error("expected validation error for config without servers")
	}
}

func TestSeedCredentials(t *testing.T) {
	store := security.NewCredentialStore()
	cfg := &config.Config{
		Servers: map[string]config.ServerConfig{
			"github": {Command: "gh-mcp", BearerToken: "ghp_secret"},
			"files":  {Command: "file-mcp"},
		},
		Heartbeat: &config.HeartbeatConfig{URL: "https://hb.example", Secret: "hb-secret"},
	}

	seedCredentials(store, cfg)

	values := store.Values()
	lookup := make(map[string]bool, len(values))
	for _, v := range values {
		lookup[v] = true
	}
	if !lookup["ghp_secret"] {
		t.Error("server bearer token not seeded")
	}
	if !lookup["hb-secret"] {
		t.Error("heartbeat secret not seeded")
	}
	if len(values) != 2 {
		t.Errorf("seeded %d credentials, want 2", len(values))
	}
}

func TestSeedCredentials_Empty(t *testing.T) {
	store := security.NewCredentialStore()
	seedCredentials(store, &config.Config{})
	if n := len(store.Values()); n != 0 {
		t.Errorf("seeded %d credentials from empty config, want 0", n)
	}
}

func TestTransportName(t *testing.T) {
	if got := transportName(config.ProxyConfig{}); got != "stdio" {
		t.Errorf("default transport = %q, want stdio", got)
	}
	if got := transportName(config.ProxyConfig{Transport: "http"}); got != "http" {
		t.Errorf("transport = %q, want http", got)
	}
}
