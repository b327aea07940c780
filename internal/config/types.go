package config

import (
	"fmt"
	"strings"
	"time"
)

type Config struct {
	Logging  LoggingConfig   `json:"logging"`
	Storage  StorageConfig   `json:"storage"`
	Runner   RunnerConfig    `json:"runner"`
	Notifier *NotifierConfig `json:"notifier,omitempty"`
	Media    MediaConfig     `json:"media"`
	Export   ExportConfig    `json:"export,omitempty"`
}

type LoggingConfig struct {
	Level   string      `json:"level"`
	Console bool        `json:"console"`
	File    LoggingFile `json:"file"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

// StorageConfig controls the persistence layer.
//
// Example:
//
//	"storage": { "driver": "sqlite", "path": "./belltower.db" }
type StorageConfig struct {
	Driver      string `json:"driver"`
	Path        string `json:"path"`
	BusyTimeout string `json:"busy_timeout,omitempty"` // Go duration string
}

// RunnerConfig controls the per-minute resolution loop.
type RunnerConfig struct {
	Enabled bool `json:"enabled"`

	// Timezone is the IANA zone "today" is computed in (e.g. "Asia/Jakarta").
	// Empty means the process-local zone.
	Timezone string `json:"timezone,omitempty"`

	// CycleTimeout bounds one cycle's store read + enqueue work.
	// Go duration string; "0s" keeps the built-in default.
	CycleTimeout string `json:"cycle_timeout,omitempty"`
}

// NotifierConfig controls the async announcement pipeline.
//
// All durations are Go duration strings (e.g. "500ms", "10s", "2m").
// If the whole section is omitted, the notifier defaults to enabled=true.
type NotifierConfig struct {
	Enabled     bool   `json:"enabled"`
	Workers     int    `json:"workers"`
	QueueSize   int    `json:"queue_size"`
	RatePerSec  int    `json:"rate_per_sec"`
	RetryMax    int    `json:"retry_max"`
	RetryBase   string `json:"retry_base"`
	DedupWindow string `json:"dedup_window"`
	HistorySize int    `json:"history_size"`
}

// MediaConfig locates the voice library on disk.
type MediaConfig struct {
	// Dir is the root of the content-addressed voice store.
	Dir string `json:"dir"`
}

// ExportConfig controls the iCalendar day-plan export.
type ExportConfig struct {
	// CalendarName is the X-WR-CALNAME of exported plans.
	CalendarName string `json:"calendar_name,omitempty"`
}

// Validate checks every field that can be malformed: duration strings,
// the timezone, and the logging level. It is installed as the manager's
// validator so a broken edit never replaces a working config.
func (c *Config) Validate() error {
	if c == nil {
		return fmt.Errorf("config is nil")
	}
	switch strings.ToLower(strings.TrimSpace(c.Logging.Level)) {
	case "", "trace", "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level: unknown level %q", c.Logging.Level)
	}
	if c.Logging.File.Enabled && strings.TrimSpace(c.Logging.File.Path) == "" {
		return fmt.Errorf("logging.file.path: required when file logging is enabled")
	}
	if _, err := ParseDurationField("storage.busy_timeout", c.Storage.BusyTimeout); err != nil {
		return err
	}
	if tz := strings.TrimSpace(c.Runner.Timezone); tz != "" {
		if _, err := time.LoadLocation(tz); err != nil {
			return fmt.Errorf("runner.timezone: %w", err)
		}
	}
	if _, err := ParseDurationField("runner.cycle_timeout", c.Runner.CycleTimeout); err != nil {
		return err
	}
	if n := c.Notifier; n != nil {
		if n.Workers < 0 || n.QueueSize < 0 || n.RatePerSec < 0 || n.RetryMax < 0 || n.HistorySize < 0 {
			return fmt.Errorf("notifier: counts must be >= 0")
		}
		if _, err := ParseDurationField("notifier.retry_base", n.RetryBase); err != nil {
			return err
		}
		if _, err := ParseDurationField("notifier.dedup_window", n.DedupWindow); err != nil {
			return err
		}
	}
	return nil
}
