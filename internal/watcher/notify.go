package watcher

import (
	"log/slog"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
)

// notifier turns fsnotify events for one file into wake-ups of its watch
// loop. The parent directory is watched so that editors replacing the file
// by rename are still seen.
type notifier struct {
	fs     *fsnotify.Watcher
	target string
	wake   chan struct{}
	done   chan struct{}
	logger *slog.Logger
}

func newNotifier(path string, logger *slog.Logger) (*notifier, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}

	fs, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := fs.Add(filepath.Dir(abs)); err != nil {
		fs.Close()
		return nil, err
	}

	n := &notifier{
		fs:     fs,
		target: filepath.Clean(abs),
		wake:   make(chan struct{}, 1),
		done:   make(chan struct{}),
		logger: logger,
	}
	go n.forward()
	return n, nil
}

func (n *notifier) forward() {
	for {
		select {
		case ev, ok := <-n.fs.Events:
			if !ok {
				return
			}
			if filepath.Clean(ev.Name) != n.target {
				continue
			}
			// Coalesce: one pending wake-up is enough.
			select {
			case n.wake <- struct{}{}:
			default:
			}
		case err, ok := <-n.fs.Errors:
			if !ok {
				return
			}
			n.logger.Debug("watch_notify_error", "path", n.target, "error", err)
		case <-n.done:
			return
		}
	}
}

func (n *notifier) close() {
	close(n.done)
	if err := n.fs.Close(); err != nil {
		n.logger.Debug("watch_notify_close_failed", "path", n.target, "error", err)
	}
}
