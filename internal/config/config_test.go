package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadDefaults(t *testing.T) {
	path := writeConfig(t, `
upstream:
  baseURL: "https://api.example.com"
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Addr != ":8090" {
		t.Fatalf("addr = %q, want :8090", cfg.Server.Addr)
	}
	if cfg.Storage.SQLitePath != "./data/wxassist.db" {
		t.Fatalf("sqlitePath = %q", cfg.Storage.SQLitePath)
	}
	if cfg.Upstream.UserAgent != "wxassist/1.0" {
		t.Fatalf("userAgent = %q", cfg.Upstream.UserAgent)
	}
	if cfg.Limits.GlobalBurst != 10 || cfg.Limits.PerAccountBurst != 2 {
		t.Fatalf("limits defaults: %+v", cfg.Limits)
	}
}

func TestLoadFull(t *testing.T) {
	path := writeConfig(t, `
server:
  addr: ":9000"
  cors:
    allowOrigins: ["https://admin.example.com"]
storage:
  sqlitePath: "/var/lib/wxassist/data.db"
upstream:
  baseURL: "https://api.example.com"
  timeoutMs: 5000
  userAgent: "custom/2.0"
  retry:
    count: 3
    waitMs: 100
    maxWaitMs: 800
limits:
  globalQPS: 20
  globalBurst: 40
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Addr != ":9000" {
		t.Fatalf("addr = %q", cfg.Server.Addr)
	}
	if len(cfg.Server.Cors.AllowOrigins) != 1 || cfg.Server.Cors.AllowOrigins[0] != "https://admin.example.com" {
		t.Fatalf("cors = %+v", cfg.Server.Cors)
	}
	if cfg.Upstream.Timeout() != 5*time.Second {
		t.Fatalf("timeout = %v", cfg.Upstream.Timeout())
	}
	if cfg.Upstream.Retry.Count != 3 || cfg.Upstream.Retry.Wait() != 100*time.Millisecond {
		t.Fatalf("retry = %+v", cfg.Upstream.Retry)
	}
	if cfg.Limits.GlobalQPS != 20 || cfg.Limits.GlobalBurst != 40 {
		t.Fatalf("limits = %+v", cfg.Limits)
	}
}

func TestLoadMissingBaseURL(t *testing.T) {
	path := writeConfig(t, `
server:
  addr: ":9000"
`)
	if _, err := Load(path); err == nil {
		t.Fatal("expected error for missing upstream.baseURL")
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestTimeoutDefault(t *testing.T) {
	var c UpstreamConfig
	if c.Timeout() != 20*time.Second {
		t.Fatalf("zero timeout = %v, want 20s", c.Timeout())
	}
}
