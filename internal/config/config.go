// Package config loads, defaults, and validates the daemon's configuration.
//
// Configuration file: /etc/aodv2/config.yaml (default). Schema version: 1.
//
// Validation accumulates every violation before returning, rather than
// failing on the first one, so a misconfigured deployment gets the whole
// list in one error instead of a fix-rerun-fix loop.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Version, GitCommit, BuildTime are injected by the build via -ldflags.
var (
	Version   = "dev"
	GitCommit = "unknown"
	BuildTime = "unknown"
)

// DefaultDBPath is the default path of the bbolt bookkeeping database.
const DefaultDBPath = "/var/lib/aodv2/aodv2.db"

// Config is the root configuration for the daemon.
type Config struct {
	SchemaVersion string `yaml:"schema_version"`

	// NodeID identifies this host in log output and ledger entries.
	NodeID string `yaml:"node_id"`

	// WatchIntervalSec is validated (must be >= 1) but no component reads
	// it: the Dispatcher and Watcher use their own fixed constants and the
	// Reclaimer ticks on Cleanup.CleanupIntervalSec.
	WatchIntervalSec int `yaml:"watch_interval_sec"`

	// AODOutputDir is the root under which batches/ bundles are written.
	AODOutputDir string `yaml:"aod_output_dir"`

	Shm        ShmConfig        `yaml:"shm"`
	Guardian   GuardianConfig   `yaml:"guardian"`
	Cleanup    CleanupConfig    `yaml:"cleanup"`
	Supervisor SupervisorConfig `yaml:"supervisor"`

	Storage       StorageConfig       `yaml:"storage"`
	Observability ObservabilityConfig `yaml:"observability"`
	Operator      OperatorConfig      `yaml:"operator"`
}

// ShmConfig configures the shared-memory ring.
type ShmConfig struct {
	// Name is the posix shared-memory object name. Default: /bpf_shm.
	Name string `yaml:"name"`
}

// GuardianConfig holds the anomaly-detection configuration.
type GuardianConfig struct {
	// Anomalies maps a configured anomaly entry's name to its detection
	// parameters. Map key is an operator-facing label, not the kind.
	Anomalies map[string]AnomalyConfig `yaml:"anomalies"`
}

// AnomalyConfig configures one anomaly-kind entry.
type AnomalyConfig struct {
	// Kind selects the handler: "latency" or "error".
	Kind string `yaml:"kind"`

	// ToolID is the Event.Tool value this anomaly entry watches.
	ToolID uint8 `yaml:"tool_id"`

	// Tool is the name of the external event-producer subprocess this
	// anomaly's detection window depends on (looked up in
	// Supervisor.ToolBinaries to build its argv). Empty if this anomaly
	// kind has no dedicated subprocess.
	Tool string `yaml:"tool"`

	// AcceptableCount is the minimum number of over-threshold records in a
	// batch before an anomaly fires.
	AcceptableCount int `yaml:"acceptable_count"`

	// DefaultThresholdMS applies to any tracked key with no per-key
	// override in Track.
	DefaultThresholdMS *int `yaml:"default_threshold_ms,omitempty"`

	// Track maps a command id (latency kind) or errno (error kind), as a
	// decimal string, to an optional per-key threshold in milliseconds.
	// A nil value falls back to DefaultThresholdMS.
	Track map[string]*int `yaml:"track"`

	// Exclude lists keys that must never appear in Track.
	Exclude []string `yaml:"exclude"`

	// Actions is the ordered list of action names the Collector runs when
	// this anomaly fires.
	Actions []string `yaml:"actions"`
}

// CleanupConfig configures the Reclaimer.
type CleanupConfig struct {
	MaxLogAgeDays      int    `yaml:"max_log_age_days"`
	MaxTotalLogSizeMB  int    `yaml:"max_total_log_size_mb"`
	CleanupIntervalSec int    `yaml:"cleanup_interval_sec"`
	ArchiveExtension   string `yaml:"archive_extension"`
}

// SupervisorConfig configures worker restart policy and subprocess
// supervision.
type SupervisorConfig struct {
	// RestartCooldownSec is the delay before restarting a crashed worker.
	RestartCooldownSec int `yaml:"restart_cooldown_sec"`

	// SubprocessShutdownTimeoutSec bounds how long a tool subprocess gets
	// to exit after SIGINT before the Supervisor kills it with SIGKILL.
	SubprocessShutdownTimeoutSec int `yaml:"subprocess_shutdown_timeout_sec"`

	// ToolBinaries maps a tool name (as referenced by AnomalyConfig.Tool)
	// to the executable path used to spawn it.
	ToolBinaries map[string]string `yaml:"tool_binaries"`
}

// StorageConfig configures the bbolt-backed bookkeeping store.
type StorageConfig struct {
	DBPath        string `yaml:"db_path"`
	RetentionDays int    `yaml:"retention_days"`
}

// ObservabilityConfig configures metrics and logging.
type ObservabilityConfig struct {
	MetricsAddr string `yaml:"metrics_addr"`
	LogLevel    string `yaml:"log_level"`
	LogFormat   string `yaml:"log_format"`
}

// OperatorConfig configures the read-only status/health socket.
type OperatorConfig struct {
	SocketPath string `yaml:"socket_path"`
	Enabled    bool   `yaml:"enabled"`
}

// Defaults returns a Config populated with every default value.
func Defaults() Config {
	hostname, _ := os.Hostname()
	return Config{
		SchemaVersion:    "1",
		NodeID:           hostname,
		WatchIntervalSec: 1,
		AODOutputDir:     "/var/log/aodv2",
		Shm: ShmConfig{
			Name: "/bpf_shm",
		},
		Guardian: GuardianConfig{
			Anomalies: map[string]AnomalyConfig{},
		},
		Cleanup: CleanupConfig{
			MaxLogAgeDays:      7,
			MaxTotalLogSizeMB:  1024,
			CleanupIntervalSec: 300,
			ArchiveExtension:   ".tar.zst",
		},
		Supervisor: SupervisorConfig{
			RestartCooldownSec:           1,
			SubprocessShutdownTimeoutSec: 5,
			ToolBinaries:                 map[string]string{},
		},
		Storage: StorageConfig{
			DBPath:        DefaultDBPath,
			RetentionDays: 30,
		},
		Observability: ObservabilityConfig{
			MetricsAddr: "127.0.0.1:9091",
			LogLevel:    "info",
			LogFormat:   "json",
		},
		Operator: OperatorConfig{
			Enabled:    true,
			SocketPath: "/run/aodv2/operator.sock",
		},
	}
}

// Load reads, parses, and validates a config file, overriding Defaults()
// with whatever the file sets. Returns an error if the file cannot be read,
// parsed, or validated.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config.Load: read %q: %w", path, err)
	}

	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config.Load: parse %q: %w", path, err)
	}

	if err := Validate(&cfg); err != nil {
		return nil, fmt.Errorf("config.Load: validation failed: %w", err)
	}

	return &cfg, nil
}

// Validate checks every field for correctness, returning a single error
// listing all violations found (not just the first).
func Validate(cfg *Config) error {
	var errs []string

	if cfg.SchemaVersion != "1" {
		errs = append(errs, fmt.Sprintf("schema_version must be \"1\", got %q", cfg.SchemaVersion))
	}
	if cfg.WatchIntervalSec < 1 {
		errs = append(errs, fmt.Sprintf("watch_interval_sec must be >= 1, got %d", cfg.WatchIntervalSec))
	}
	if cfg.AODOutputDir == "" {
		errs = append(errs, "aod_output_dir must not be empty")
	}
	if cfg.Shm.Name == "" {
		errs = append(errs, "shm.name must not be empty")
	}

	if len(cfg.Guardian.Anomalies) == 0 {
		errs = append(errs, "guardian.anomalies must define at least one anomaly entry")
	}
	seenKinds := make(map[string]string)
	for name, ac := range cfg.Guardian.Anomalies {
		prefix := fmt.Sprintf("guardian.anomalies[%s]", name)
		if ac.Kind != "latency" && ac.Kind != "error" {
			errs = append(errs, fmt.Sprintf("%s.kind must be \"latency\" or \"error\", got %q", prefix, ac.Kind))
		} else if other, dup := seenKinds[ac.Kind]; dup {
			errs = append(errs, fmt.Sprintf("%s: duplicate kind %q, already used by %q (only one entry per kind is allowed)", prefix, ac.Kind, other))
		} else {
			seenKinds[ac.Kind] = name
		}
		if len(ac.Track) == 0 {
			errs = append(errs, fmt.Sprintf("%s.track must be non-empty", prefix))
		}
		if ac.AcceptableCount < 1 {
			errs = append(errs, fmt.Sprintf("%s.acceptable_count must be >= 1, got %d", prefix, ac.AcceptableCount))
		}
		if ac.DefaultThresholdMS != nil && *ac.DefaultThresholdMS < 0 {
			errs = append(errs, fmt.Sprintf("%s.default_threshold_ms must be >= 0", prefix))
		}
		for key, ms := range ac.Track {
			if ms != nil && *ms < 0 {
				errs = append(errs, fmt.Sprintf("%s.track[%s] must be >= 0, got %d", prefix, key, *ms))
			}
			for _, excl := range ac.Exclude {
				if excl == key {
					errs = append(errs, fmt.Sprintf("%s: key %q appears in both track and exclude", prefix, key))
				}
			}
		}
		if len(ac.Actions) == 0 {
			errs = append(errs, fmt.Sprintf("%s.actions must list at least one action", prefix))
		}
	}

	if cfg.Cleanup.MaxLogAgeDays < 1 {
		errs = append(errs, fmt.Sprintf("cleanup.max_log_age_days must be >= 1, got %d", cfg.Cleanup.MaxLogAgeDays))
	}
	if cfg.Cleanup.MaxTotalLogSizeMB < 1 {
		errs = append(errs, fmt.Sprintf("cleanup.max_total_log_size_mb must be >= 1, got %d", cfg.Cleanup.MaxTotalLogSizeMB))
	}
	if cfg.Cleanup.CleanupIntervalSec < 1 {
		errs = append(errs, fmt.Sprintf("cleanup.cleanup_interval_sec must be >= 1, got %d", cfg.Cleanup.CleanupIntervalSec))
	}
	if cfg.Cleanup.ArchiveExtension == "" {
		errs = append(errs, "cleanup.archive_extension must not be empty")
	}

	if cfg.Supervisor.RestartCooldownSec < 0 {
		errs = append(errs, "supervisor.restart_cooldown_sec must be >= 0")
	}
	if cfg.Supervisor.SubprocessShutdownTimeoutSec < 1 {
		errs = append(errs, "supervisor.subprocess_shutdown_timeout_sec must be >= 1")
	}

	if cfg.Storage.DBPath == "" {
		errs = append(errs, "storage.db_path must not be empty")
	}
	if cfg.Storage.RetentionDays < 1 {
		errs = append(errs, fmt.Sprintf("storage.retention_days must be >= 1, got %d", cfg.Storage.RetentionDays))
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation errors:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}

// RestartCooldown returns the configured restart cooldown as a Duration.
func (c *Config) RestartCooldown() time.Duration {
	return time.Duration(c.Supervisor.RestartCooldownSec) * time.Second
}

// SubprocessShutdownTimeout returns the configured subprocess shutdown grace
// period as a Duration.
func (c *Config) SubprocessShutdownTimeout() time.Duration {
	return time.Duration(c.Supervisor.SubprocessShutdownTimeoutSec) * time.Second
}

// CleanupInterval returns the configured Reclaimer tick as a Duration.
func (c *Config) CleanupInterval() time.Duration {
	return time.Duration(c.Cleanup.CleanupIntervalSec) * time.Second
}
