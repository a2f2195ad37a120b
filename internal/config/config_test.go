package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestDefaultConfigIsValid(t *testing.T) {
	if err := DefaultConfig().Validate(); err != nil {
		t.Fatalf("default config should validate, got %v", err)
	}
}

func TestLoadCreatesDefaultWhenMissing(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "connwatch.yaml")

	m := NewManager(path)
	if err := m.Load(); err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if _, err := os.Stat(path); err != nil {
		t.Fatalf("expected default config to be written: %v", err)
	}

	cfg := m.Get()
	if cfg.Monitor.SamplingIntervalSeconds != 30 {
		t.Errorf("expected default interval 30, got %d", cfg.Monitor.SamplingIntervalSeconds)
	}
	if cfg.Policy.WatchedPorts[3389] != "Remote Desktop" {
		t.Errorf("expected port 3389 to be watched, got %q", cfg.Policy.WatchedPorts[3389])
	}
}

func TestLoadKeepsDefaultsForMissingKeys(t *testing.T) {
	path := filepath.Join(t.TempDir(), "connwatch.yaml")
	data := "version: 1\nmonitor:\n  sampling_interval_seconds: 5\n"
	if err := os.WriteFile(path, []byte(data), 0600); err != nil {
		t.Fatal(err)
	}

	m := NewManager(path)
	if err := m.Load(); err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	cfg := m.Get()
	if cfg.Monitor.SamplingIntervalSeconds != 5 {
		t.Errorf("expected interval 5, got %d", cfg.Monitor.SamplingIntervalSeconds)
	}
	if cfg.Monitor.Source != SourcePsutil {
		t.Errorf("expected default source, got %q", cfg.Monitor.Source)
	}
	if len(cfg.Policy.WatchedPorts) != 7 {
		t.Errorf("expected 7 default watched ports, got %d", len(cfg.Policy.WatchedPorts))
	}
	if cfg.Storage.Backend != BackendSQLite {
		t.Errorf("expected sqlite backend, got %q", cfg.Storage.Backend)
	}
}

func TestLoadReplacesWatchedPorts(t *testing.T) {
	path := filepath.Join(t.TempDir(), "connwatch.yaml")
	data := "version: 1\npolicy:\n  watched_ports:\n    6379: Redis\n"
	if err := os.WriteFile(path, []byte(data), 0600); err != nil {
		t.Fatal(err)
	}

	m := NewManager(path)
	if err := m.Load(); err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	ports := m.Get().Policy.WatchedPorts
	if len(ports) != 1 || ports[6379] != "Redis" {
		t.Errorf("expected only 6379 to be watched, got %v", ports)
	}
}

func TestLoadRejectsInvalidConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "connwatch.yaml")
	data := "version: 1\npolicy:\n  private_ranges: [\"not-a-cidr\"]\n"
	if err := os.WriteFile(path, []byte(data), 0600); err != nil {
		t.Fatal(err)
	}

	err := NewManager(path).Load()
	if err == nil {
		t.Fatal("expected validation error")
	}
	if !strings.Contains(err.Error(), "policy config") {
		t.Errorf("expected policy config error, got %v", err)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr string
	}{
		{"zero version", func(c *Config) { c.Version = 0 }, "version"},
		{"port out of range", func(c *Config) { c.Policy.WatchedPorts[70000] = "x" }, "watched port"},
		{"trusted port out of range", func(c *Config) { c.Policy.TrustedListenPorts = []int{0} }, "trusted listen port"},
		{"zero interval", func(c *Config) { c.Monitor.SamplingIntervalSeconds = 0 }, "sampling_interval_seconds"},
		{"unknown state", func(c *Config) { c.Monitor.States = []string{"BOGUS"} }, "unknown state"},
		{"empty states", func(c *Config) { c.Monitor.States = nil }, "states"},
		{"blank state name", func(c *Config) { c.Monitor.States = []string{"LISTEN", " "} }, "empty name"},
		{"unknown source", func(c *Config) { c.Monitor.Source = "netstat" }, "unknown source"},
		{"unknown backend", func(c *Config) { c.Storage.Backend = "postgres" }, "unknown backend"},
		{"missing sqlite path", func(c *Config) { c.Storage.SQLite.Path = "" }, "sqlite.path"},
		{"clickhouse without host", func(c *Config) {
			c.Storage.Backend = BackendClickHouse
			c.Storage.ClickHouse.Host = ""
		}, "clickhouse.host"},
		{"metrics without api", func(c *Config) { c.Metrics.Enabled = true }, "enable api"},
		{"nats without subject", func(c *Config) {
			c.NATS.Enabled = true
			c.NATS.Subject = ""
		}, "subject"},
		{"bad log level", func(c *Config) { c.Logging.Level = "loud" }, "level"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if err == nil {
				t.Fatalf("expected error containing %q", tt.wantErr)
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("expected error containing %q, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestValidateAcceptsEveryParserSpelling(t *testing.T) {
	for _, state := range []string{
		"ESTABLISHED", "LISTEN", "TIME_WAIT", "SYN_SENT",
		"SYN_RECV", "SYN_RECEIVED", "FIN_WAIT1", "FIN_WAIT_1",
		"FIN_WAIT2", "FIN_WAIT_2", "CLOSE_WAIT", "LAST_ACK", "CLOSING",
		"CLOSE", "CLOSED", "DELETE", "NONE", "established",
	} {
		cfg := DefaultConfig()
		cfg.Monitor.States = []string{state}
		if err := cfg.Validate(); err != nil {
			t.Errorf("state %q rejected: %v", state, err)
		}
	}
}

func TestDefaultFileReloads(t *testing.T) {
	path := filepath.Join(t.TempDir(), "connwatch.yaml")
	if err := NewManager(path).Load(); err != nil {
		t.Fatal(err)
	}

	reloaded := NewManager(path)
	if err := reloaded.Load(); err != nil {
		t.Fatalf("written default config does not load: %v", err)
	}
	cfg := reloaded.Get()
	if len(cfg.Policy.WatchedPorts) != 7 || cfg.Monitor.SamplingIntervalSeconds != 30 {
		t.Errorf("unexpected reloaded config: %+v", cfg)
	}
	if cfg.Logging.CaptureStderr {
		t.Error("stderr capture should be off by default")
	}
}

func TestLoadCaptureStderr(t *testing.T) {
	path := filepath.Join(t.TempDir(), "connwatch.yaml")
	data := "version: 1\nlogging:\n  level: debug\n  capture_stderr: true\n"
	if err := os.WriteFile(path, []byte(data), 0600); err != nil {
		t.Fatal(err)
	}

	m := NewManager(path)
	if err := m.Load(); err != nil {
		t.Fatal(err)
	}
	if !m.Get().Logging.CaptureStderr {
		t.Error("expected capture_stderr to be loaded")
	}
}
