// Package config loads and validates blackboard.yml.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/mercatus/blackboard/pkg/blackboard"
)

// Config represents the top-level blackboard.yml configuration.
type Config struct {
	Version string         `yaml:"version"`
	Storage StorageConfig  `yaml:"storage"`
	Daemon  *DaemonConfig  `yaml:"daemon,omitempty"`
	Monitor *MonitorConfig `yaml:"monitor,omitempty"`

	// Team overrides the default per-team limits applied to newly
	// created teams.
	Team *blackboard.TeamConfig `yaml:"team,omitempty"`
}

// StorageConfig holds the durable store and cache mirror settings.
type StorageConfig struct {
	SQLitePath      string `yaml:"sqlite_path"`
	RedisAddr       string `yaml:"redis_addr"`
	RedisPassword   string `yaml:"redis_password,omitempty"`
	RedisDB         int    `yaml:"redis_db,omitempty"`
	Instance        string `yaml:"instance"`
	CacheTTLSeconds int    `yaml:"cache_ttl_seconds,omitempty"`
}

// CacheTTL returns the mirror TTL as a duration.
func (s StorageConfig) CacheTTL() time.Duration {
	return time.Duration(s.CacheTTLSeconds) * time.Second
}

// DaemonConfig holds the background loop cadences and the HTTP listen
// address.
type DaemonConfig struct {
	ListenAddr              string `yaml:"listen_addr,omitempty"`
	MonitorIntervalSeconds  int    `yaml:"monitor_interval_seconds,omitempty"`
	ScalingIntervalSeconds  int    `yaml:"scaling_interval_seconds,omitempty"`
	AdvanceIntervalSeconds  int    `yaml:"advance_interval_seconds,omitempty"`
	ScheduleIntervalSeconds int    `yaml:"schedule_interval_seconds,omitempty"`
}

// MonitorInterval returns the health pass cadence.
func (d DaemonConfig) MonitorInterval() time.Duration {
	return time.Duration(d.MonitorIntervalSeconds) * time.Second
}

// ScalingInterval returns the auto-scaling cadence.
func (d DaemonConfig) ScalingInterval() time.Duration {
	return time.Duration(d.ScalingIntervalSeconds) * time.Second
}

// AdvanceInterval returns the workflow advance cadence.
func (d DaemonConfig) AdvanceInterval() time.Duration {
	return time.Duration(d.AdvanceIntervalSeconds) * time.Second
}

// ScheduleInterval returns the task assignment cadence.
func (d DaemonConfig) ScheduleInterval() time.Duration {
	return time.Duration(d.ScheduleIntervalSeconds) * time.Second
}

// MonitorConfig tunes health detection.
type MonitorConfig struct {
	TaskTimeoutMinutes  int `yaml:"task_timeout_minutes,omitempty"`
	DedupeWindowMinutes int `yaml:"dedupe_window_minutes,omitempty"`
}

// TaskTimeout returns the stuck-task threshold.
func (m MonitorConfig) TaskTimeout() time.Duration {
	return time.Duration(m.TaskTimeoutMinutes) * time.Minute
}

// DedupeWindow returns the alert suppression window.
func (m MonitorConfig) DedupeWindow() time.Duration {
	return time.Duration(m.DedupeWindowMinutes) * time.Minute
}

// TeamDefaults returns the configured per-team limits, falling back to the
// documented defaults.
func (c *Config) TeamDefaults() blackboard.TeamConfig {
	if c.Team != nil {
		return *c.Team
	}
	return blackboard.DefaultTeamConfig()
}

// Validate performs strict validation and applies defaults in place.
func (c *Config) Validate() error {
	if c.Version != "1.0" {
		return fmt.Errorf("unsupported version: %s (expected: 1.0)", c.Version)
	}

	if c.Storage.SQLitePath == "" {
		c.Storage.SQLitePath = "blackboard.db"
	}
	if c.Storage.RedisAddr == "" {
		c.Storage.RedisAddr = "localhost:6379"
	}
	if c.Storage.Instance == "" {
		c.Storage.Instance = "default"
	}
	if c.Storage.CacheTTLSeconds == 0 {
		c.Storage.CacheTTLSeconds = 300
	}
	if c.Storage.CacheTTLSeconds < 0 {
		return fmt.Errorf("storage.cache_ttl_seconds must be > 0, got %d", c.Storage.CacheTTLSeconds)
	}
	if c.Storage.RedisDB < 0 {
		return fmt.Errorf("storage.redis_db must be >= 0, got %d", c.Storage.RedisDB)
	}

	if c.Daemon == nil {
		c.Daemon = &DaemonConfig{}
	}
	if c.Daemon.ListenAddr == "" {
		c.Daemon.ListenAddr = ":8080"
	}
	if c.Daemon.MonitorIntervalSeconds == 0 {
		c.Daemon.MonitorIntervalSeconds = 60
	}
	if c.Daemon.ScalingIntervalSeconds == 0 {
		c.Daemon.ScalingIntervalSeconds = 120
	}
	if c.Daemon.AdvanceIntervalSeconds == 0 {
		c.Daemon.AdvanceIntervalSeconds = 15
	}
	if c.Daemon.ScheduleIntervalSeconds == 0 {
		c.Daemon.ScheduleIntervalSeconds = 15
	}
	for name, v := range map[string]int{
		"daemon.monitor_interval_seconds":  c.Daemon.MonitorIntervalSeconds,
		"daemon.scaling_interval_seconds":  c.Daemon.ScalingIntervalSeconds,
		"daemon.advance_interval_seconds":  c.Daemon.AdvanceIntervalSeconds,
		"daemon.schedule_interval_seconds": c.Daemon.ScheduleIntervalSeconds,
	} {
		if v < 1 {
			return fmt.Errorf("%s must be >= 1, got %d", name, v)
		}
	}

	if c.Monitor == nil {
		c.Monitor = &MonitorConfig{}
	}
	if c.Monitor.TaskTimeoutMinutes == 0 {
		c.Monitor.TaskTimeoutMinutes = 120
	}
	if c.Monitor.DedupeWindowMinutes == 0 {
		c.Monitor.DedupeWindowMinutes = 30
	}
	if c.Monitor.TaskTimeoutMinutes < 1 {
		return fmt.Errorf("monitor.task_timeout_minutes must be >= 1, got %d", c.Monitor.TaskTimeoutMinutes)
	}
	if c.Monitor.DedupeWindowMinutes < 1 {
		return fmt.Errorf("monitor.dedupe_window_minutes must be >= 1, got %d", c.Monitor.DedupeWindowMinutes)
	}

	if c.Team != nil {
		if err := c.Team.Validate(); err != nil {
			return fmt.Errorf("invalid team defaults: %w", err)
		}
	}
	return nil
}

// Default returns a fully defaulted configuration, as if an empty
// blackboard.yml with only the version line had been loaded.
func Default() *Config {
	c := &Config{Version: "1.0"}
	// Cannot fail: defaults satisfy every check.
	_ = c.Validate()
	return c
}

// Load reads and validates blackboard.yml from the specified path.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &config, nil
}
