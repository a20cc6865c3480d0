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
		t.Fatal(err)
	}
	return path
}

const validYAML = `
telegram:
  token: "123:abc"
  owner_user_ids: [42]
  poll_timeout: "15s"
logging:
  level: debug
  console: true
storage:
  driver: sqlite
  path: /var/lib/tickbot/timers.db
timers:
  handler_timeout: "45s"
maintenance:
  enabled: true
  audit_retention: "168h"
plugins:
  modaction:
    enabled: false
`

func TestParseValidYAML(t *testing.T) {
	t.Parallel()

	m := NewManager(writeConfig(t, validYAML))
	cfg, err := m.Load()
	if err != nil {
		t.Fatal(err)
	}

	if cfg.Telegram.Token != "123:abc" {
		t.Errorf("token = %q", cfg.Telegram.Token)
	}
	if len(cfg.Telegram.OwnerUserIDs) != 1 || cfg.Telegram.OwnerUserIDs[0] != 42 {
		t.Errorf("owners = %v, want [42]", cfg.Telegram.OwnerUserIDs)
	}
	if cfg.Storage.Driver != "sqlite" {
		t.Errorf("storage driver = %q", cfg.Storage.Driver)
	}
	if cfg.Timers.HandlerTimeout != "45s" {
		t.Errorf("handler_timeout = %q", cfg.Timers.HandlerTimeout)
	}
	if !cfg.Maintenance.Enabled {
		t.Error("maintenance should be enabled")
	}

	// Get returns the committed config.
	if m.Get() != cfg {
		t.Error("Get() should return the loaded config")
	}
}

func TestParseRejectsUnknownFields(t *testing.T) {
	t.Parallel()

	m := NewManager(writeConfig(t, `
telegram:
  token: "123:abc"
  tokken_typo: "oops"
`))
	if _, err := m.Load(); err == nil {
		t.Fatal("expected unknown-field error")
	}
}

func TestPluginEnabled(t *testing.T) {
	t.Parallel()

	m := NewManager(writeConfig(t, validYAML))
	cfg, err := m.Load()
	if err != nil {
		t.Fatal(err)
	}

	if cfg.PluginEnabled("modaction") {
		t.Error("modaction is explicitly disabled")
	}
	// Unlisted plugins default to enabled.
	if !cfg.PluginEnabled("reminder") {
		t.Error("reminder should default to enabled")
	}
}

func TestParseDurationField(t *testing.T) {
	t.Parallel()

	d, err := ParseDurationField("x", "", 30*time.Second)
	if err != nil || d != 30*time.Second {
		t.Errorf("empty: %v, %v; want default", d, err)
	}
	d, err = ParseDurationField("x", "2h30m", 0)
	if err != nil || d != 2*time.Hour+30*time.Minute {
		t.Errorf("2h30m: %v, %v", d, err)
	}
	if _, err = ParseDurationField("x", "nonsense", 0); err == nil {
		t.Error("expected error for unparsable duration")
	}
}
