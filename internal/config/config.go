// Package config defines process configuration and its loading.
//
// One Config serves every binary: the collector reads the server fields,
// the simulator the tracker fields and the audit CLI the audit fields.
package config

import (
	"context"
	"time"
)

// Config contains process configuration.
type Config struct {
	// LogLevel controls verbosity: debug, info, warn, error.
	LogLevel string `koanf:"log_level" validate:"oneof=debug info warn error"`

	// Addr configures the collector listen address, e.g. ":9080".
	Addr string `koanf:"addr" validate:"required"`

	// DBPath is the sqlite event store file. ":memory:" keeps events in RAM.
	DBPath string `koanf:"db_path" validate:"required"`

	// QueueSize bounds the collector's in-memory batch queue.
	QueueSize int `koanf:"queue_size" validate:"min=1"`

	// WorkerCount sets the number of store workers. Zero picks a CPU multiple.
	WorkerCount int `koanf:"worker_count" validate:"min=0"`

	// DedupeSize bounds the batch deduplication cache.
	DedupeSize int `koanf:"dedupe_size" validate:"min=1"`

	// AllowedOrigins lists CORS origins for POST /events.
	AllowedOrigins []string `koanf:"allowed_origins" validate:"min=1"`

	// RateLimitPerMinute is the per-IP budget for POST /events.
	RateLimitPerMinute int `koanf:"rate_limit_per_minute" validate:"min=1"`

	// TrackerEndpoint is where simulated trackers flush. Empty disables flushing.
	TrackerEndpoint string `koanf:"tracker_endpoint" validate:"omitempty,url"`

	// TrackerEnabled turns tracking on.
	TrackerEnabled bool `koanf:"tracker_enabled"`

	// TrackerDebug mirrors every accepted event to the analytics logger.
	TrackerDebug bool `koanf:"tracker_debug"`

	// FlushIntervalMS is the periodic flush period.
	FlushIntervalMS int `koanf:"flush_interval_ms" validate:"min=100"`

	// TrackerQueueCapacity bounds the tracker's event ring.
	TrackerQueueCapacity int `koanf:"tracker_queue_capacity" validate:"min=1"`

	// Locale is the page locale reported with each event.
	Locale string `koanf:"locale" validate:"required"`

	// StoragePath is the badger directory for persistent visitor storage.
	// Empty keeps it in memory.
	StoragePath string `koanf:"storage_path"`

	// AuditBaseURL is the site the scan runners audit.
	AuditBaseURL string `koanf:"audit_base_url" validate:"omitempty,url"`

	// AuditRoutes are the paths scanned under AuditBaseURL.
	AuditRoutes []string `koanf:"audit_routes" validate:"dive,startswith=/"`

	// AuditDir holds checkpoints and findings.
	AuditDir string `koanf:"audit_dir" validate:"required"`

	// AxeScript is an optional local copy of axe.min.js injected by the scanner.
	AxeScript string `koanf:"axe_script"`

	// LighthouseBin names the lighthouse CLI.
	LighthouseBin string `koanf:"lighthouse_bin" validate:"required"`
}

// New creates a Config populated with defaults.
func New(_ context.Context) *Config {
	return &Config{
		LogLevel:             "info",
		Addr:                 ":9080",
		DBPath:               "convtrack.db",
		QueueSize:            10_000,
		WorkerCount:          0,
		DedupeSize:           50_000,
		AllowedOrigins:       []string{"*"},
		RateLimitPerMinute:   600,
		TrackerEndpoint:      "http://localhost:9080/events",
		TrackerEnabled:       true,
		TrackerDebug:         false,
		FlushIntervalMS:      5000,
		TrackerQueueCapacity: 200,
		Locale:               "en",
		AuditBaseURL:         "http://localhost:4321",
		AuditRoutes:          []string{"/"},
		AuditDir:             ".audit",
		LighthouseBin:        "lighthouse",
	}
}

// FlushInterval returns FlushIntervalMS as a duration.
func (c *Config) FlushInterval() time.Duration {
	return time.Duration(c.FlushIntervalMS) * time.Millisecond
}
