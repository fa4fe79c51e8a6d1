package process

import (
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
)

// DefaultBinary is the CLI launched when no path is configured.
const DefaultBinary = "strands"

// CLIConfig holds configuration for the strands CLI process.
type CLIConfig struct {
	// BinaryPath is the path or PATH-relative name of the CLI binary.
	BinaryPath string

	// WorkDir is the working directory of launched commands.
	// Empty means the bridge's own working directory.
	WorkDir string

	// Env holds extra KEY=VALUE entries appended to the inherited environment.
	Env []string

	// Global CLI options, prepended to every launch when set.
	Profile  string // --profile (AWS profile)
	Region   string // --region
	LogLevel string // --log-level (debug, info, warning, error)
}

// DefaultCLIConfig returns a CLIConfig with sensible defaults.
func DefaultCLIConfig() *CLIConfig {
	return &CLIConfig{
		BinaryPath: DefaultBinary,
	}
}

// CLIRunner implements Runner for the strands CLI.
type CLIRunner struct {
	config *CLIConfig
}

// NewCLIRunner creates a new CLI runner with the given configuration.
func NewCLIRunner(cfg *CLIConfig) *CLIRunner {
	if cfg == nil {
		cfg = DefaultCLIConfig()
	}
	return &CLIRunner{config: cfg}
}

// Name returns the base name of the configured binary.
func (r *CLIRunner) Name() string {
	if r.config.BinaryPath == "" {
		return DefaultBinary
	}
	return filepath.Base(r.config.BinaryPath)
}

// BuildCommand creates an exec.Cmd for the CLI with the global options
// followed by args.
func (r *CLIRunner) BuildCommand(args []string) (*exec.Cmd, error) {
	if r.config.BinaryPath == "" {
		return nil, errors.New("cli binary path is empty")
	}

	cmd := exec.Command(r.config.BinaryPath, r.buildArgs(args)...)
	cmd.Dir = r.config.WorkDir
	if len(r.config.Env) > 0 {
		cmd.Env = append(os.Environ(), r.config.Env...)
	}
	return cmd, nil
}

// buildArgs constructs the full argument list.
func (r *CLIRunner) buildArgs(args []string) []string {
	out := make([]string, 0, len(args)+6)

	// Global options must precede the subcommand.
	if r.config.Profile != "" {
		out = append(out, "--profile", r.config.Profile)
	}
	if r.config.Region != "" {
		out = append(out, "--region", r.config.Region)
	}
	if r.config.LogLevel != "" {
		out = append(out, "--log-level", r.config.LogLevel)
	}

	return append(out, args...)
}

// Config returns the CLI configuration.
func (r *CLIRunner) Config() *CLIConfig {
	return r.config
}

// CommandString returns the command that would be executed (for debugging).
func (r *CLIRunner) CommandString(args []string) string {
	return strings.TrimSpace(r.config.BinaryPath + " " + strings.Join(r.buildArgs(args), " "))
}

var _ Runner = (*CLIRunner)(nil)
