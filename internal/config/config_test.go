package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, dir, content string) string {
	t.Helper()
	path := filepath.Join(dir, DefaultFile)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	return path
}

func TestLoadFullConfig(t *testing.T) {
	path := writeConfig(t, t.TempDir(), `
server:
  url: wss://sim.example.com/ws
  max_retries: 3
  retry_base_delay: 500ms
history:
  max_per_sender: 100
  max_events: 50
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.URL != "wss://sim.example.com/ws" {
		t.Errorf("URL = %q", cfg.Server.URL)
	}
	if cfg.Server.MaxRetries != 3 {
		t.Errorf("MaxRetries = %d", cfg.Server.MaxRetries)
	}
	if time.Duration(cfg.Server.RetryBaseDelay) != 500*time.Millisecond {
		t.Errorf("RetryBaseDelay = %v", cfg.Server.RetryBaseDelay)
	}
	if cfg.History.MaxPerSender != 100 || cfg.History.MaxEvents != 50 {
		t.Errorf("history = %+v", cfg.History)
	}
}

func TestLoadPartialConfigFillsDefaults(t *testing.T) {
	path := writeConfig(t, t.TempDir(), `
server:
  url: ws://10.0.0.5:8000/ws
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	def := Default()
	if cfg.Server.URL != "ws://10.0.0.5:8000/ws" {
		t.Errorf("URL = %q", cfg.Server.URL)
	}
	if cfg.Server.MaxRetries != def.Server.MaxRetries {
		t.Errorf("MaxRetries = %d, want default", cfg.Server.MaxRetries)
	}
	if cfg.History.MaxPerSender != def.History.MaxPerSender {
		t.Errorf("MaxPerSender = %d, want default", cfg.History.MaxPerSender)
	}
}

func TestLoadRejectsBadScheme(t *testing.T) {
	path := writeConfig(t, t.TempDir(), `
server:
  url: http://sim.example.com/ws
`)
	if _, err := Load(path); err == nil {
		t.Error("expected error for non-websocket URL scheme")
	}
}

func TestLoadRejectsBadDuration(t *testing.T) {
	path := writeConfig(t, t.TempDir(), `
server:
  retry_base_delay: soon
`)
	if _, err := Load(path); err == nil {
		t.Error("expected error for unparseable duration")
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestDiscoverEnvVar(t *testing.T) {
	dir := t.TempDir()
	path := writeConfig(t, dir, "server:\n  url: ws://x/ws\n")
	t.Setenv("WORLDVIEW_CONFIG", path)

	got, err := Discover()
	if err != nil {
		t.Fatalf("Discover: %v", err)
	}
	if got != path {
		t.Errorf("got %q, want %q", got, path)
	}
}

func TestDiscoverEnvVarMissingFile(t *testing.T) {
	t.Setenv("WORLDVIEW_CONFIG", filepath.Join(t.TempDir(), "nope.yaml"))
	if _, err := Discover(); err == nil {
		t.Error("expected error when WORLDVIEW_CONFIG points nowhere")
	}
}

func TestDiscoverWalksUpParents(t *testing.T) {
	root := t.TempDir()
	path := writeConfig(t, root, "server:\n  url: ws://x/ws\n")
	nested := filepath.Join(root, "a", "b")
	if err := os.MkdirAll(nested, 0o755); err != nil {
		t.Fatalf("MkdirAll: %v", err)
	}
	t.Chdir(nested)

	got, err := Discover()
	if err != nil {
		t.Fatalf("Discover: %v", err)
	}
	// Compare by resolved path: the tempdir may be behind a symlink.
	wantInfo, _ := os.Stat(path)
	gotInfo, err := os.Stat(got)
	if err != nil || !os.SameFile(wantInfo, gotInfo) {
		t.Errorf("got %q, want %q", got, path)
	}
}

func TestDiscoverNotFound(t *testing.T) {
	t.Chdir(t.TempDir())
	got, err := Discover()
	if err != nil {
		t.Fatalf("Discover: %v", err)
	}
	if got != "" {
		t.Errorf("got %q, want empty (run on defaults)", got)
	}
}
