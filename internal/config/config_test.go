package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/nanoagent/nanoagent/internal/model"
)

func writeConfig(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadSaveRoundTrip(t *testing.T) {
	cfg := Default()
	cfg.Servers = []model.Endpoint{
		{Host: "a.example.com", Port: 9000, Token: "tok-a", Permission: model.ServiceControl},
		{Host: "b.example.com", Port: 9001, Token: "${B_TOKEN}", Permission: model.ReadOnly, TLSEnabled: true, TLSVerify: true},
	}
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := cfg.Save(path); err != nil {
		t.Fatal(err)
	}

	loaded, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if len(loaded.Servers) != 2 {
		t.Fatalf("expected 2 servers, got %d", len(loaded.Servers))
	}
	if loaded.Servers[0].Host != "a.example.com" || loaded.Servers[0].Permission != model.ServiceControl {
		t.Errorf("first server mismatch: %+v", loaded.Servers[0])
	}
	if loaded.Servers[1].Token != "${B_TOKEN}" {
		t.Errorf("token reference must survive round-trip unresolved, got %q", loaded.Servers[1].Token)
	}
	if loaded.Collector.RealtimeIntervalMs != cfg.Collector.RealtimeIntervalMs {
		t.Errorf("realtime interval mismatch: %d", loaded.Collector.RealtimeIntervalMs)
	}
	if loaded.ConfigVersion != CurrentVersion {
		t.Errorf("expected version %d, got %d", CurrentVersion, loaded.ConfigVersion)
	}
}

func TestLoadTOMLByExtension(t *testing.T) {
	path := writeConfig(t, "config.toml", `
config_version = 2

[[servers]]
host = "t.example.com"
port = 9000
token = "tok"
permission = 1

[buffer]
capacity = 100
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if len(cfg.Servers) != 1 || cfg.Servers[0].Host != "t.example.com" {
		t.Fatalf("unexpected servers: %+v", cfg.Servers)
	}
	if cfg.Buffer.Capacity != 100 {
		t.Errorf("expected capacity 100, got %d", cfg.Buffer.Capacity)
	}
}

func TestMigrationFoldsLegacyCPUInterval(t *testing.T) {
	path := writeConfig(t, "config.yaml", `
config_version: 1
collector:
  cpu_interval_ms: 2000
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Collector.RealtimeIntervalMs != 2000 {
		t.Errorf("expected realtime_interval_ms folded from cpu_interval_ms, got %d", cfg.Collector.RealtimeIntervalMs)
	}
	if cfg.Collector.CPUIntervalMs != 0 {
		t.Errorf("expected legacy cpu_interval_ms dropped, got %d", cfg.Collector.CPUIntervalMs)
	}
	if cfg.ConfigVersion != CurrentVersion {
		t.Errorf("expected version bumped to %d, got %d", CurrentVersion, cfg.ConfigVersion)
	}

	// The migration rewrites the file in place; a second load must be stable.
	again, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if again.Collector.RealtimeIntervalMs != 2000 || again.ConfigVersion != CurrentVersion {
		t.Errorf("migrated file did not reload stably: %+v", again.Collector)
	}
}

func TestRealtimeIntervalWinsOverLegacy(t *testing.T) {
	path := writeConfig(t, "config.yaml", `
config_version: 2
collector:
  realtime_interval_ms: 1000
  cpu_interval_ms: 9000
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Collector.RealtimeIntervalMs != 1000 {
		t.Errorf("realtime_interval_ms must win when both are set, got %d", cfg.Collector.RealtimeIntervalMs)
	}
}

func TestValidateRejectsOutOfRangePermission(t *testing.T) {
	cfg := Default()
	cfg.Servers = []model.Endpoint{{Host: "x", Port: 1, Permission: model.PermissionLevel(7)}}
	if err := cfg.Validate(); err == nil {
		t.Error("expected validation failure for permission 7")
	}
}

func TestValidateRejectsBareWildcardWhitelist(t *testing.T) {
	t.Setenv("NANOLINK_ALLOW_WILDCARD", "")
	cfg := Default()
	cfg.Shell.Whitelist = []string{"*"}
	if err := cfg.Validate(); err == nil {
		t.Error("expected validation failure for bare \"*\" whitelist entry")
	}
}
