package config

import (
	"errors"
	"fmt"
	"net"
	"strings"
	"time"
)

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// Validate checks the configuration for errors and inconsistencies.
// Returns nil if valid, or every problem joined with errors.Join.
func Validate(cfg *Config) error {
	var errs []error

	// CLI binary path is required
	if strings.TrimSpace(cfg.CLIPath) == "" {
		errs = append(errs, ValidationError{
			Field:   "cli_path",
			Message: "must not be empty",
		})
	}

	// Extra environment entries must be KEY=VALUE
	for _, kv := range cfg.Env {
		if i := strings.IndexByte(kv, '='); i <= 0 {
			errs = append(errs, ValidationError{
				Field:   "env",
				Message: fmt.Sprintf("must be KEY=VALUE (got %q)", kv),
			})
		}
	}

	// CLI log level, when set, must be one the CLI accepts
	if cfg.CLILogLevel != "" {
		validCLILevels := map[string]bool{"debug": true, "info": true, "warning": true, "error": true}
		if !validCLILevels[cfg.CLILogLevel] {
			errs = append(errs, ValidationError{
				Field:   "cli_log_level",
				Message: fmt.Sprintf("must be one of: debug, info, warning, error (got %q)", cfg.CLILogLevel),
			})
		}
	}

	// Timeouts
	if cfg.JoinOutput && cfg.DrainTimeout <= 0 {
		errs = append(errs, ValidationError{
			Field:   "drain_timeout",
			Message: "must be positive when join_output is enabled",
		})
	}
	if cfg.StopTimeout <= 0 {
		errs = append(errs, ValidationError{
			Field:   "stop_timeout",
			Message: "must be positive",
		})
	}

	// Watch interval
	const minWatchInterval = 10 * time.Millisecond
	if cfg.WatchInterval < minWatchInterval {
		errs = append(errs, ValidationError{
			Field:   "watch_interval",
			Message: fmt.Sprintf("must be at least %v (got %v)", minWatchInterval, cfg.WatchInterval),
		})
	}
	for _, p := range cfg.WatchPaths {
		if strings.TrimSpace(p) == "" {
			errs = append(errs, ValidationError{
				Field:   "watch",
				Message: "paths must not be empty",
			})
			break
		}
	}

	// Listen address must be host:port
	if _, _, err := net.SplitHostPort(cfg.ListenAddr); err != nil {
		errs = append(errs, ValidationError{
			Field:   "listen",
			Message: err.Error(),
		})
	}

	if cfg.KeepAlive <= 0 {
		errs = append(errs, ValidationError{
			Field:   "keep_alive",
			Message: "must be positive",
		})
	}
	if cfg.EventBuffer < 1 {
		errs = append(errs, ValidationError{
			Field:   "event_buffer",
			Message: "must be at least 1",
		})
	}

	// Log format must be valid
	validFormats := map[string]bool{"json": true, "text": true}
	if !validFormats[cfg.LogFormat] {
		errs = append(errs, ValidationError{
			Field:   "log_format",
			Message: fmt.Sprintf("must be 'json' or 'text' (got %q)", cfg.LogFormat),
		})
	}

	// Log level must be valid
	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[cfg.LogLevel] {
		errs = append(errs, ValidationError{
			Field:   "log_level",
			Message: fmt.Sprintf("must be one of: debug, info, warn, error (got %q)", cfg.LogLevel),
		})
	}

	// Return combined errors
	if len(errs) > 0 {
		return errors.Join(errs...)
	}

	return nil
}
