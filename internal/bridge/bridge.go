// Package bridge exposes the operations the UI calls: launching the CLI,
// reading, writing and watching configuration files, and deployment status.
// Errors returned by these operations are flattened to their message.
package bridge

import (
	"context"
	"errors"
	"io"
	"log/slog"

	"github.com/randomizedcoder/strands-bridge/internal/configio"
	"github.com/randomizedcoder/strands-bridge/internal/deploy"
	"github.com/randomizedcoder/strands-bridge/internal/supervisor"
	"github.com/randomizedcoder/strands-bridge/internal/watcher"
)

var (
	// ErrUnknownLaunch is returned by Cancel for an ID that is not running.
	ErrUnknownLaunch = errors.New("unknown launch")

	// ErrUnknownWatch is returned by Unwatch for an ID that is not running.
	ErrUnknownWatch = errors.New("unknown watch")
)

// Config holds the components a Bridge delegates to.
type Config struct {
	Supervisor *supervisor.Supervisor
	Watcher    *watcher.Watcher
	Status     deploy.StatusProvider
	Logger     *slog.Logger

	// OnConfigOp is called after every config read ("read") or write
	// ("write") with its error, if any.
	OnConfigOp func(op string, err error)
}

// Bridge implements the UI-facing operations.
type Bridge struct {
	sup    *supervisor.Supervisor
	watch  *watcher.Watcher
	status deploy.StatusProvider
	logger *slog.Logger

	onConfigOp func(op string, err error)
}

// New creates a Bridge. A nil status provider reports no deployments.
func New(cfg Config) *Bridge {
	status := cfg.Status
	if status == nil {
		status = deploy.StubProvider{}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Bridge{
		sup:        cfg.Supervisor,
		watch:      cfg.Watcher,
		status:     status,
		logger:     logger,
		onConfigOp: cfg.OnConfigOp,
	}
}

// Launch runs the CLI with args and waits for it to exit. command is only
// recorded; the binary comes from configuration. The returned message is
// "Command executed successfully" for exit code 0.
func (b *Bridge) Launch(ctx context.Context, command string, args []string) (string, error) {
	b.logger.Info("launch_requested", "command", command, "args", args)

	result, err := b.sup.Run(ctx, args)
	if err != nil {
		return "", flatten(err)
	}
	return result.Message(), nil
}

// Start launches the CLI without waiting. The handle cancels the launch.
func (b *Bridge) Start(ctx context.Context, args []string) (*supervisor.Handle, error) {
	h, err := b.sup.Start(ctx, args)
	if err != nil {
		return nil, flatten(err)
	}
	return h, nil
}

// Cancel stops a running launch.
func (b *Bridge) Cancel(id string) error {
	h, ok := b.sup.Get(id)
	if !ok {
		return ErrUnknownLaunch
	}
	b.logger.Info("launch_cancel_requested", "launch_id", id)
	h.Cancel()
	return nil
}

// Launches lists running launches.
func (b *Bridge) Launches() []supervisor.Info {
	return b.sup.Active()
}

// ReadConfig returns the raw contents of path.
func (b *Bridge) ReadConfig(path string) (string, error) {
	content, err := configio.Read(path)
	b.configOp("read", err)
	if err != nil {
		return "", flatten(err)
	}
	return content, nil
}

// WriteConfig replaces the contents of path.
func (b *Bridge) WriteConfig(path, content string) error {
	err := configio.Write(path, content)
	b.configOp("write", err)
	if err != nil {
		return flatten(err)
	}
	b.logger.Debug("config_written", "path", path, "bytes", len(content))
	return nil
}

func (b *Bridge) configOp(op string, err error) {
	if b.onConfigOp != nil {
		b.onConfigOp(op, err)
	}
}

// WatchConfig starts watching path and returns the watch ID. Runtime
// failures of the watch are never reported here.
func (b *Bridge) WatchConfig(path string) (string, error) {
	wt, err := b.watch.Watch(path)
	if err != nil {
		return "", flatten(err)
	}
	return wt.ID(), nil
}

// Unwatch stops a watch started by WatchConfig.
func (b *Bridge) Unwatch(id string) error {
	if err := b.watch.Stop(id); err != nil {
		if errors.Is(err, watcher.ErrUnknownWatch) {
			return ErrUnknownWatch
		}
		return flatten(err)
	}
	return nil
}

// Watches lists running watches.
func (b *Bridge) Watches() []watcher.WatchInfo {
	return b.watch.Active()
}

// GetDeploymentStatus returns the status of every deployed resource.
func (b *Bridge) GetDeploymentStatus(ctx context.Context) ([]deploy.DeploymentUpdate, error) {
	updates, err := b.status.Status(ctx)
	if err != nil {
		return nil, flatten(err)
	}
	if updates == nil {
		updates = []deploy.DeploymentUpdate{}
	}
	return updates, nil
}

// flatten drops the error chain and keeps only the message.
func flatten(err error) error {
	if err == nil {
		return nil
	}
	return errors.New(err.Error())
}
