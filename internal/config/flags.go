package config

import (
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
)

// stringList is a custom flag type for repeatable flags (-watch, -origin, -env).
type stringList []string

func (s *stringList) String() string {
	if s == nil {
		return ""
	}
	return strings.Join(*s, ", ")
}

func (s *stringList) Set(value string) error {
	*s = append(*s, value)
	return nil
}

// ParseFlags parses os.Args and returns a Config.
func ParseFlags() (*Config, error) {
	return Parse(os.Args[1:], os.Stderr)
}

// Parse builds a Config from args. Precedence is defaults < YAML file
// named by -config < flags. Repeatable flags add to the lists read from the
// file. Usage and parse errors are written to output.
func Parse(args []string, output io.Writer) (*Config, error) {
	// First pass only looks for -config.
	scratch := DefaultConfig()
	if err := newFlagSet(scratch, io.Discard).Parse(args); err != nil {
		// Re-parse with real output so the user sees the message or usage.
		_ = newFlagSet(DefaultConfig(), output).Parse(args)
		return nil, err
	}

	cfg := DefaultConfig()
	if scratch.ConfigFile != "" {
		if err := LoadFile(scratch.ConfigFile, cfg); err != nil {
			return nil, err
		}
	}

	fs := newFlagSet(cfg, output)
	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	if fs.NArg() > 0 {
		return nil, fmt.Errorf("unexpected argument %q", fs.Arg(0))
	}

	return cfg, nil
}

// newFlagSet binds every flag to cfg, using cfg's current values as defaults.
func newFlagSet(cfg *Config, output io.Writer) *flag.FlagSet {
	fs := flag.NewFlagSet("strands-bridge", flag.ContinueOnError)
	fs.SetOutput(output)

	fs.Usage = func() {
		fmt.Fprintf(output, `strands-bridge - runs the strands CLI and streams its output to UI clients

Usage:
  strands-bridge [flags]

CLI Flags:
`)
		printFlagCategory(fs, output, []string{"cli", "work-dir", "env", "profile", "region", "cli-log-level", "print-cmd"})

		fmt.Fprintf(output, "\nLaunches:\n")
		printFlagCategory(fs, output, []string{"join-output", "drain-timeout", "stop-timeout"})

		fmt.Fprintf(output, "\nConfig Watches:\n")
		printFlagCategory(fs, output, []string{"watch", "watch-interval", "watch-notify"})

		fmt.Fprintf(output, "\nAPI:\n")
		printFlagCategory(fs, output, []string{"listen", "origin", "keep-alive", "event-buffer"})

		fmt.Fprintf(output, "\nObservability:\n")
		printFlagCategory(fs, output, []string{"v", "log-format", "log-level", "tui", "metrics-dump"})

		fmt.Fprintf(output, "\nGeneral:\n")
		printFlagCategory(fs, output, []string{"config", "skip-preflight"})

		fmt.Fprintf(output, `
Examples:
  # Serve on the default address, watching one config file
  strands-bridge -watch ./strands.yaml

  # Custom binary and a live dashboard
  strands-bridge -cli /opt/strands/bin/strands -tui

  # Settings from a file, overridden by flags
  strands-bridge -config bridge.yaml -listen 0.0.0.0:17100

`)
	}

	// CLI
	fs.StringVar(&cfg.CLIPath, "cli", cfg.CLIPath, "Path to the strands CLI binary")
	fs.StringVar(&cfg.WorkDir, "work-dir", cfg.WorkDir, "Working directory for launched commands")
	fs.Var((*stringList)(&cfg.Env), "env", "Extra KEY=VALUE for launched commands (can repeat)")
	fs.StringVar(&cfg.Profile, "profile", cfg.Profile, "AWS profile passed as --profile")
	fs.StringVar(&cfg.Region, "region", cfg.Region, "Region passed as --region")
	fs.StringVar(&cfg.CLILogLevel, "cli-log-level", cfg.CLILogLevel, "CLI log level passed as --log-level")
	fs.BoolVar(&cfg.PrintCmd, "print-cmd", cfg.PrintCmd, "Print the CLI command prefix and exit")

	// Launches
	fs.BoolVar(&cfg.JoinOutput, "join-output", cfg.JoinOutput, "Wait for all output before reporting a result")
	fs.DurationVar(&cfg.DrainTimeout, "drain-timeout", cfg.DrainTimeout, "Max wait for output after exit")
	fs.DurationVar(&cfg.StopTimeout, "stop-timeout", cfg.StopTimeout, "Grace period between SIGTERM and SIGKILL")

	// Watches
	fs.Var((*stringList)(&cfg.WatchPaths), "watch", "Config file to watch from startup (can repeat)")
	fs.DurationVar(&cfg.WatchInterval, "watch-interval", cfg.WatchInterval, "Modification time polling interval")
	fs.BoolVar(&cfg.WatchNotify, "watch-notify", cfg.WatchNotify, "Use filesystem notifications to detect changes early")

	// API
	fs.StringVar(&cfg.ListenAddr, "listen", cfg.ListenAddr, "API listen address")
	fs.Var((*stringList)(&cfg.AllowedOrigins), "origin", "Allowed WebSocket origin (can repeat, * for any)")
	fs.DurationVar(&cfg.KeepAlive, "keep-alive", cfg.KeepAlive, "SSE keep-alive interval")
	fs.IntVar(&cfg.EventBuffer, "event-buffer", cfg.EventBuffer, "Events kept for replay to late clients")

	// Observability
	fs.BoolVar(&cfg.Verbose, "v", cfg.Verbose, "Verbose logging (every output line at debug)")
	fs.StringVar(&cfg.LogFormat, "log-format", cfg.LogFormat, `Log format: "json" or "text"`)
	fs.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, `Log level: "debug", "info", "warn", "error"`)
	fs.BoolVar(&cfg.TUIEnabled, "tui", cfg.TUIEnabled, "Enable live terminal dashboard")
	fs.BoolVar(&cfg.MetricsDump, "metrics-dump", cfg.MetricsDump, "Print Prometheus metrics on exit")

	// General
	fs.StringVar(&cfg.ConfigFile, "config", cfg.ConfigFile, "YAML config file")
	fs.BoolVar(&cfg.SkipPreflight, "skip-preflight", cfg.SkipPreflight, "Skip preflight checks")

	return fs
}

// printFlagCategory prints flags matching the given names (helper for usage).
func printFlagCategory(fs *flag.FlagSet, w io.Writer, names []string) {
	fs.VisitAll(func(f *flag.Flag) {
		for _, name := range names {
			if f.Name == name {
				fmt.Fprintf(w, "  -%s %s\n    \t%s", f.Name, flagType(f), f.Usage)
				if f.DefValue != "" && f.DefValue != "false" && f.DefValue != "0" && f.DefValue != "0s" && f.DefValue != "[]" {
					fmt.Fprintf(w, " (default %s)", f.DefValue)
				}
				fmt.Fprintln(w)
				return
			}
		}
	})
}

// flagType returns a type hint for the flag value.
func flagType(f *flag.Flag) string {
	// Infer type from default value format
	switch f.DefValue {
	case "true", "false":
		return ""
	}

	// Check if it looks like a duration
	if strings.HasSuffix(f.DefValue, "s") || strings.HasSuffix(f.DefValue, "m") || strings.HasSuffix(f.DefValue, "h") {
		return "duration"
	}

	// Check if numeric
	if _, err := fmt.Sscanf(f.DefValue, "%d", new(int)); err == nil {
		return "int"
	}

	return "string"
}
