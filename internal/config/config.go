// Package config provides configuration management for strands-bridge.
package config

import "time"

// Config holds all configuration options for the bridge.
type Config struct {
	// CLI
	CLIPath     string   `json:"cli_path" yaml:"cli_path"`
	WorkDir     string   `json:"work_dir" yaml:"work_dir"`
	Env         []string `json:"env" yaml:"env"`
	Profile     string   `json:"profile" yaml:"profile"`
	Region      string   `json:"region" yaml:"region"`
	CLILogLevel string   `json:"cli_log_level" yaml:"cli_log_level"`

	// Launches
	JoinOutput   bool          `json:"join_output" yaml:"join_output"`
	DrainTimeout time.Duration `json:"drain_timeout" yaml:"drain_timeout"`
	StopTimeout  time.Duration `json:"stop_timeout" yaml:"stop_timeout"`

	// Config file watches
	WatchPaths    []string      `json:"watch" yaml:"watch"`
	WatchInterval time.Duration `json:"watch_interval" yaml:"watch_interval"`
	WatchNotify   bool          `json:"watch_notify" yaml:"watch_notify"`

	// API
	ListenAddr     string        `json:"listen" yaml:"listen"`
	AllowedOrigins []string      `json:"allowed_origins" yaml:"allowed_origins"`
	KeepAlive      time.Duration `json:"keep_alive" yaml:"keep_alive"`
	EventBuffer    int           `json:"event_buffer" yaml:"event_buffer"`

	// Observability
	Verbose     bool   `json:"verbose" yaml:"verbose"`
	LogFormat   string `json:"log_format" yaml:"log_format"` // json, text
	LogLevel    string `json:"log_level" yaml:"log_level"`   // debug, info, warn, error
	TUIEnabled  bool   `json:"tui" yaml:"tui"`
	MetricsDump bool   `json:"metrics_dump" yaml:"metrics_dump"`

	// Diagnostic modes
	PrintCmd      bool `json:"print_cmd" yaml:"-"`
	SkipPreflight bool `json:"skip_preflight" yaml:"skip_preflight"`

	// ConfigFile is the YAML file the values above were loaded from.
	ConfigFile string `json:"config_file" yaml:"-"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		// CLI
		CLIPath: "strands",

		// Launches
		JoinOutput:   true,
		DrainTimeout: 5 * time.Second,
		StopTimeout:  5 * time.Second,

		// Watches
		WatchInterval: time.Second,
		WatchNotify:   true,

		// API
		ListenAddr:  "127.0.0.1:17100",
		KeepAlive:   15 * time.Second,
		EventBuffer: 256,

		// Observability
		Verbose:    false,
		LogFormat:  "json",
		LogLevel:   "info",
		TUIEnabled: false,
	}
}
