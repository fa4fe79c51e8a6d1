// Package main provides the strands-bridge entry point.
//
// strands-bridge launches the strands CLI, forwards its output lines as
// events to UI clients, and reports modifications of config files.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/randomizedcoder/strands-bridge/internal/config"
	"github.com/randomizedcoder/strands-bridge/internal/logging"
	"github.com/randomizedcoder/strands-bridge/internal/orchestrator"
	"github.com/randomizedcoder/strands-bridge/internal/process"
)

// version is set at build time via ldflags:
//
//	go build -ldflags "-X main.version=1.0.0" ./cmd/strands-bridge
var version = "dev"

func main() {
	os.Exit(run())
}

func run() int {
	// Handle version flag early (before flag parsing)
	if len(os.Args) > 1 {
		arg := os.Args[1]
		if arg == "-version" || arg == "--version" || arg == "version" {
			fmt.Printf("strands-bridge %s\n", version)
			return 0
		}
	}

	cfg, err := config.ParseFlags()
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		fmt.Fprintf(os.Stderr, "Error parsing flags: %v\n", err)
		return 1
	}

	// The dashboard owns the terminal, so logs would corrupt it.
	var logger *slog.Logger
	if cfg.TUIEnabled {
		logger = logging.NewLoggerWithWriter(io.Discard, "json", "info")
	} else {
		logger = logging.NewLogger(cfg.LogFormat, cfg.LogLevel, cfg.Verbose)
	}
	logging.SetDefault(logger)

	if err := config.Validate(cfg); err != nil {
		fmt.Fprintf(os.Stderr, "Configuration error: %v\n", err)
		return 1
	}

	if cfg.PrintCmd {
		printCLICommand(cfg)
		return 0
	}

	logger.Info("starting",
		"version", version,
		"cli", cfg.CLIPath,
		"listen", cfg.ListenAddr,
		"watches", len(cfg.WatchPaths),
		"config_file", cfg.ConfigFile,
	)

	if !cfg.TUIEnabled {
		printBanner(cfg)
	}

	orch := orchestrator.New(cfg, logger, version)
	if err := orch.Run(context.Background()); err != nil {
		logger.Error("orchestrator_failed", "error", err)
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}

	return 0
}

// printBanner prints the startup banner.
func printBanner(cfg *config.Config) {
	fmt.Println()
	fmt.Println("╔═══════════════════════════════════════════════════════════════════╗")
	fmt.Println("║                          strands-bridge                           ║")
	fmt.Println("║          strands CLI output and config changes as events          ║")
	fmt.Println("╚═══════════════════════════════════════════════════════════════════╝")
	fmt.Println()
	fmt.Printf("  CLI:         %s\n", cfg.CLIPath)
	if cfg.WorkDir != "" {
		fmt.Printf("  Work dir:    %s\n", cfg.WorkDir)
	}
	fmt.Printf("  API:         http://%s/api\n", cfg.ListenAddr)
	fmt.Printf("  Events:      http://%s/events  ws://%s/ws\n", cfg.ListenAddr, cfg.ListenAddr)
	fmt.Printf("  Metrics:     http://%s/metrics\n", cfg.ListenAddr)
	for _, path := range cfg.WatchPaths {
		fmt.Printf("  Watching:    %s (every %s)\n", path, cfg.WatchInterval)
	}
	fmt.Println()
	fmt.Println("Press Ctrl+C to stop.")
	fmt.Println()
}

// printCLICommand prints the command prefix every launch starts with.
func printCLICommand(cfg *config.Config) {
	runner := process.NewCLIRunner(&process.CLIConfig{
		BinaryPath: cfg.CLIPath,
		WorkDir:    cfg.WorkDir,
		Env:        cfg.Env,
		Profile:    cfg.Profile,
		Region:     cfg.Region,
		LogLevel:   cfg.CLILogLevel,
	})

	fmt.Println("# strands command prefix for each launch (request args are appended):")
	fmt.Println()
	for _, kv := range cfg.Env {
		fmt.Printf("# env %s\n", kv)
	}
	if cfg.WorkDir != "" {
		fmt.Printf("# cwd %s\n", cfg.WorkDir)
	}
	fmt.Println(runner.CommandString(nil))
}
