package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestFindConfig_Explicit(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "test.yaml")
	if err := os.WriteFile(path, []byte("tick_interval: 2s\n"), 0o600); err != nil {
		t.Fatal(err)
	}

	got, err := FindConfig(path)
	if err != nil {
		t.Fatalf("FindConfig(%q) error: %v", path, err)
	}
	if got != path {
		t.Errorf("FindConfig(%q) = %q, want %q", path, got, path)
	}
}

func TestFindConfig_ExplicitMissing(t *testing.T) {
	_, err := FindConfig("/nonexistent/config.yaml")
	if err == nil {
		t.Fatal("FindConfig with missing explicit path should error")
	}
}

func TestFindConfig_NoneFound(t *testing.T) {
	dir := t.TempDir()
	orig := searchPathsFunc
	searchPathsFunc = func() []string {
		return []string{filepath.Join(dir, "config.yaml")}
	}
	defer func() { searchPathsFunc = orig }()

	got, err := FindConfig("")
	if err != nil {
		t.Fatalf("FindConfig(\"\") unexpected error: %v", err)
	}
	if got != "" {
		t.Errorf("FindConfig(\"\") = %q, want empty when nothing found", got)
	}
}

func TestFindConfig_SearchPath(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte("tick_interval: 1s\n"), 0o600); err != nil {
		t.Fatal(err)
	}

	orig := searchPathsFunc
	searchPathsFunc = func() []string {
		return []string{path}
	}
	defer func() { searchPathsFunc = orig }()

	got, err := FindConfig("")
	if err != nil {
		t.Fatalf("FindConfig(\"\") error: %v", err)
	}
	if got != path {
		t.Errorf("FindConfig(\"\") = %q, want %q", got, path)
	}
}

func TestLoad_Defaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte(""), 0o600); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load error: %v", err)
	}
	if cfg.TickInterval != time.Second {
		t.Errorf("TickInterval = %s, want 1s default", cfg.TickInterval)
	}
	if cfg.StateDir != "./state" {
		t.Errorf("StateDir = %q, want./state", cfg.StateDir)
	}
	if cfg.MemoryDir != "./memory" {
		t.Errorf("MemoryDir = %q, want./memory", cfg.MemoryDir)
	}
	if cfg.OutputRoot != "./output" {
		t.Errorf("OutputRoot = %q, want./output", cfg.OutputRoot)
	}
}

func TestLoad_InvalidTickInterval(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte("tick_interval: -1s\n"), 0o600); err != nil {
		t.Fatal(err)
	}

	if _, err := Load(path); err == nil {
		t.Fatal("Load with negative tick_interval should error")
	}
}

func TestLoad_InvalidYAML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte("tick_interval: [this is not\n  a scalar"), 0o600); err != nil {
		t.Fatal(err)
	}

	if _, err := Load(path); err == nil {
		t.Fatal("Load with malformed YAML should error")
	}
}

func TestLoad_MissingFile(t *testing.T) {
	if _, err := Load("/nonexistent/config.yaml"); err == nil {
		t.Fatal("Load of missing file should error")
	}
}

func TestLoad_UnknownProviderChannel(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte("provider:\n  channel: carrier-pigeon\n"), 0o600); err != nil {
		t.Fatal(err)
	}

	if _, err := Load(path); err == nil {
		t.Fatal("Load with unknown provider.channel should error")
	}
}

func TestLoad_TildeExpansion(t *testing.T) {
	home, err := os.UserHomeDir()
	if err != nil {
		t.Skip("no home directory available")
	}

	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte("state_dir: \"~/o-state\"\n"), 0o600); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load error: %v", err)
	}
	want := filepath.Join(home, "o-state")
	if cfg.StateDir != want {
		t.Errorf("StateDir = %q, want %q", cfg.StateDir, want)
	}
}

func TestDefault(t *testing.T) {
	cfg := Default()
	if err := cfg.Validate(); err != nil {
		t.Errorf("Default() config should validate cleanly: %v", err)
	}
}

func TestParseLogLevel(t *testing.T) {
	cases := map[string]bool{
		"":      true,
		"info":  true,
		"trace": true,
		"debug": true,
		"warn":  true,
		"error": true,
		"bogus": false,
	}
	for level, ok := range cases {
		_, err := ParseLogLevel(level)
		if ok && err != nil {
			t.Errorf("ParseLogLevel(%q) unexpected error: %v", level, err)
		}
		if !ok && err == nil {
			t.Errorf("ParseLogLevel(%q) expected error", level)
		}
	}
}
