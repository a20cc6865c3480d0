package config

type Config struct {
	Telegram TelegramConfig `json:"telegram"`
	Logging  LoggingConfig  `json:"logging"`

	// Storage configures the durable timer store. The scheduler cannot run
	// without it; an invalid storage section is a startup failure, not a
	// degraded mode.
	Storage StorageConfig `json:"storage"`

	// Timers controls the dispatch loop and handler execution.
	Timers TimersConfig `json:"timers,omitempty"`

	// Maintenance controls periodic housekeeping (audit prune, checkpoint).
	Maintenance MaintenanceConfig `json:"maintenance,omitempty"`

	// Plugins toggles feature modules by name. Omitted plugins are enabled.
	Plugins map[string]PluginConfig `json:"plugins,omitempty"`
}

type TelegramConfig struct {
	Token        string  `json:"token"`
	OwnerUserIDs []int64 `json:"owner_user_ids,omitempty"`
	// PollTimeout is a Go duration string (e.g. "10s", "2m").
	PollTimeout string `json:"poll_timeout,omitempty"`
	// SendRatePerSec bounds outbound messages per second (0 = default).
	SendRatePerSec int `json:"send_rate_per_sec,omitempty"`
}

type LoggingConfig struct {
	Level   string      `json:"level"`
	Console bool        `json:"console"`
	File    LoggingFile `json:"file,omitempty"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path,omitempty"`
}

// StorageConfig selects a timer store driver.
//
// Driver values:
//   - "sqlite": SQLite database file (the normal deployment)
//   - "memory": process-local store, lost on restart (tests, dry runs)
type StorageConfig struct {
	Driver      string `json:"driver"`
	Path        string `json:"path,omitempty"`
	BusyTimeout string `json:"busy_timeout,omitempty"` // Go duration string (sqlite)
}

// TimersConfig controls the dispatch loop.
//
// All durations are Go duration strings (e.g. "500ms", "10s", "1m").
//
// Defaults (when fields are omitted):
//   - handler_timeout: "30s"
//   - max_wait: "960h" (40 days; the loop re-queries at least this often)
type TimersConfig struct {
	HandlerTimeout string `json:"handler_timeout,omitempty"`
	MaxWait        string `json:"max_wait,omitempty"`
}

type MaintenanceConfig struct {
	Enabled bool `json:"enabled"`
	// AuditRetention is how long fired-timer audit rows are kept ("720h").
	AuditRetention string `json:"audit_retention,omitempty"`
	// CheckpointSpec is a cron spec for the store checkpoint job ("0 4 * * *").
	CheckpointSpec string `json:"checkpoint_spec,omitempty"`
}

type PluginConfig struct {
	// Enabled is a pointer so "omitted" (default on) can be told apart from
	// an explicit false.
	Enabled *bool `json:"enabled,omitempty"`
}

// PluginEnabled reports whether the named plugin should run.
func (c *Config) PluginEnabled(name string) bool {
	if c == nil {
		return true
	}
	pc, ok := c.Plugins[name]
	if !ok || pc.Enabled == nil {
		return true
	}
	return *pc.Enabled
}
