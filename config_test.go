package warden

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadConfigMissingFileUsesDefaults(t *testing.T) {
	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "absent.yaml"))
	if err != nil {
		t.Fatal(err)
	}
	if !cfg.Sandbox.Enabled {
		t.Error("sandbox should default to enabled")
	}
	if cfg.Sandbox.Level != "auto" {
		t.Errorf("level = %q, want auto", cfg.Sandbox.Level)
	}
	if cfg.Sandbox.TimeoutSecs != 120 {
		t.Errorf("timeout = %d, want 120", cfg.Sandbox.TimeoutSecs)
	}
	if cfg.Sandbox.MaxOutputBytes != 1<<20 {
		t.Errorf("max output = %d, want 1MiB", cfg.Sandbox.MaxOutputBytes)
	}
	if cfg.Sandbox.Network.Policy != "deny" {
		t.Errorf("network = %q, want deny", cfg.Sandbox.Network.Policy)
	}
}

func TestLoadConfigPartialOverride(t *testing.T) {
	path := writeConfig(t, `
sandbox:
  level: standard
  timeout_secs: 30
security:
  strict_policy: true
`)
	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Sandbox.Level != "standard" {
		t.Errorf("level = %q", cfg.Sandbox.Level)
	}
	if cfg.Sandbox.TimeoutSecs != 30 {
		t.Errorf("timeout = %d", cfg.Sandbox.TimeoutSecs)
	}
	// Untouched keys keep defaults.
	if cfg.Sandbox.MaxProcesses != 64 {
		t.Errorf("max processes = %d, want 64", cfg.Sandbox.MaxProcesses)
	}
	if !cfg.Security.StrictPolicy {
		t.Error("strict_policy not applied")
	}
}

func TestLoadConfigRejectsUnknownKeys(t *testing.T) {
	path := writeConfig(t, `
sandbox:
  levl: standard
`)
	if _, err := LoadConfig(path); err == nil {
		t.Fatal("typo key should be rejected")
	}
}

func TestValidateAccumulatesErrors(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Sandbox.Level = "bogus"
	cfg.Sandbox.Network.Policy = "open"
	cfg.Sandbox.TimeoutSecs = -1

	err := cfg.Validate()
	if !errors.Is(err, ErrInvalidConfig) {
		t.Fatalf("got %v, want ErrInvalidConfig", err)
	}
	msg := err.Error()
	for _, want := range []string{"sandbox.level", "sandbox.network.policy", "sandbox.timeout_secs"} {
		if !strings.Contains(msg, want) {
			t.Errorf("error %q missing %q", msg, want)
		}
	}
}

func TestValidateRejectsRelativeAllowPaths(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Sandbox.AllowPaths.Read = []string{"relative/path"}
	if err := cfg.Validate(); !errors.Is(err, ErrInvalidConfig) {
		t.Fatalf("got %v, want ErrInvalidConfig", err)
	}
}

func TestLimitsZeroFallsBackToDefaults(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Sandbox.TimeoutSecs = 0
	cfg.Sandbox.MaxOutputBytes = 2048

	l := cfg.Limits()
	if l.TimeoutSecs != 120 {
		t.Errorf("timeout = %d, want default 120", l.TimeoutSecs)
	}
	if l.MaxOutputBytes != 2048 {
		t.Errorf("max output = %d, want 2048", l.MaxOutputBytes)
	}
}
