// Package watcher detects modifications of configuration files by polling
// their modification time, optionally woken early by fsnotify.
package watcher

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/randomizedcoder/strands-bridge/internal/event"
)

const (
	// DefaultInterval is the polling period of a watch.
	DefaultInterval = time.Second

	// notifyDebounce is how long a watch waits after the last fsnotify
	// wake-up before checking, so a truncate followed by a write counts as
	// one modification.
	notifyDebounce = 100 * time.Millisecond
)

var (
	// ErrClosed is returned by Watch after Close.
	ErrClosed = errors.New("watcher is closed")

	// ErrUnknownWatch is returned by Stop for an ID that is not running.
	ErrUnknownWatch = errors.New("unknown watch")
)

// Options controls watcher behavior.
type Options struct {
	// Interval between modification time checks. Defaults to 1s.
	Interval time.Duration

	// Notify enables fsnotify wake-ups in addition to polling.
	Notify bool

	Emitter event.Emitter
	Logger  *slog.Logger

	// OnChange is called after config-file-changed was emitted.
	OnChange func(id, path string)

	// OnActiveChange is called with the number of running watches.
	OnActiveChange func(active int)
}

// Watcher owns a set of independent watch loops.
type Watcher struct {
	ctx     context.Context
	cancel  context.CancelFunc
	opts    Options
	emitter event.Emitter
	logger  *slog.Logger

	mu      sync.Mutex
	watches map[string]*Watch
	closed  bool
	wg      sync.WaitGroup
}

// NewWatcher creates a Watcher. Every loop ends when ctx is cancelled.
func NewWatcher(ctx context.Context, opts Options) *Watcher {
	if opts.Interval <= 0 {
		opts.Interval = DefaultInterval
	}
	emitter := opts.Emitter
	if emitter == nil {
		emitter = event.Discard
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	ctx, cancel := context.WithCancel(ctx)
	return &Watcher{
		ctx:     ctx,
		cancel:  cancel,
		opts:    opts,
		emitter: emitter,
		logger:  logger,
		watches: make(map[string]*Watch),
	}
}

// Watch records the file's current modification time and starts a loop
// that emits config-file-changed whenever it differs on a later check.
// A missing file is not an error: its later creation counts as a change.
// The only error for a running watcher is an empty path, which can never
// resolve to a file.
func (w *Watcher) Watch(path string) (*Watch, error) {
	if path == "" {
		return nil, errors.New("watch path is empty")
	}

	wt := &Watch{
		id:      uuid.NewString(),
		path:    path,
		started: time.Now(),
		stopCh:  make(chan struct{}),
		done:    make(chan struct{}),
	}
	if info, err := os.Stat(path); err == nil {
		wt.lastMod = info.ModTime()
		wt.exists = true
	}

	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return nil, ErrClosed
	}
	w.watches[wt.id] = wt
	active := len(w.watches)
	w.wg.Add(1)
	w.mu.Unlock()

	var wake <-chan struct{}
	if w.opts.Notify {
		n, err := newNotifier(path, w.logger)
		if err != nil {
			w.logger.Warn("watch_notify_unavailable",
				"watch_id", wt.id,
				"path", path,
				"error", err,
			)
		} else {
			wt.notifier = n
			wake = n.wake
		}
	}

	w.logger.Info("watch_started",
		"watch_id", wt.id,
		"path", path,
		"exists", wt.exists,
		"interval", w.opts.Interval.String(),
		"notify", wt.notifier != nil,
	)
	if w.opts.OnActiveChange != nil {
		w.opts.OnActiveChange(active)
	}

	go w.run(wt, wake)
	return wt, nil
}

func (w *Watcher) run(wt *Watch, wake <-chan struct{}) {
	defer w.wg.Done()
	defer close(wt.done)
	defer w.remove(wt)

	ticker := time.NewTicker(w.opts.Interval)
	defer ticker.Stop()

	// debounce is armed by fsnotify wake-ups and re-armed by each further one.
	debounce := time.NewTimer(notifyDebounce)
	debounce.Stop()
	defer debounce.Stop()
	var pending <-chan time.Time

	for {
		select {
		case <-w.ctx.Done():
			return
		case <-wt.stopCh:
			return
		case <-ticker.C:
			// A pending wake-up means a write may be in progress.
			if pending == nil {
				w.check(wt)
			}
		case <-wake:
			debounce.Reset(notifyDebounce)
			pending = debounce.C
		case <-pending:
			pending = nil
			w.check(wt)
		}
	}
}

// check compares the current modification time against the last observed
// one. A failed stat leaves the last observed time untouched.
func (w *Watcher) check(wt *Watch) {
	info, err := os.Stat(wt.path)
	if err != nil {
		w.logger.Debug("watch_stat_failed", "watch_id", wt.id, "path", wt.path, "error", err)
		return
	}

	mod := info.ModTime()
	wt.mu.Lock()
	changed := !wt.exists || !mod.Equal(wt.lastMod)
	if changed {
		wt.lastMod = mod
		wt.exists = true
	}
	wt.mu.Unlock()

	if !changed {
		return
	}
	wt.changes.Add(1)

	w.logger.Info("watch_changed", "watch_id", wt.id, "path", wt.path, "modified", mod)
	w.emitter.Emit(event.ConfigFileChanged, wt.path)
	if w.opts.OnChange != nil {
		w.opts.OnChange(wt.id, wt.path)
	}
}

func (w *Watcher) remove(wt *Watch) {
	if wt.notifier != nil {
		wt.notifier.close()
	}

	w.mu.Lock()
	delete(w.watches, wt.id)
	active := len(w.watches)
	w.mu.Unlock()

	w.logger.Info("watch_stopped", "watch_id", wt.id, "path", wt.path, "changes", wt.changes.Load())
	if w.opts.OnActiveChange != nil {
		w.opts.OnActiveChange(active)
	}
}

// Get returns the running watch with the given ID.
func (w *Watcher) Get(id string) (*Watch, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	wt, ok := w.watches[id]
	return wt, ok
}

// Stop ends the watch with the given ID.
func (w *Watcher) Stop(id string) error {
	wt, ok := w.Get(id)
	if !ok {
		return ErrUnknownWatch
	}
	wt.Stop()
	return nil
}

// Active returns a snapshot of every running watch.
func (w *Watcher) Active() []WatchInfo {
	w.mu.Lock()
	watches := make([]*Watch, 0, len(w.watches))
	for _, wt := range w.watches {
		watches = append(watches, wt)
	}
	w.mu.Unlock()

	infos := make([]WatchInfo, 0, len(watches))
	for _, wt := range watches {
		infos = append(infos, wt.Info())
	}
	return infos
}

// ActiveCount returns the number of running watches.
func (w *Watcher) ActiveCount() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.watches)
}

// Close stops every watch and waits for their loops to end.
func (w *Watcher) Close() error {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return nil
	}
	w.closed = true
	w.mu.Unlock()

	w.cancel()
	w.wg.Wait()
	return nil
}

// Watch is one running watch loop. Stop is its cancellation token.
type Watch struct {
	id      string
	path    string
	started time.Time

	mu      sync.Mutex
	lastMod time.Time
	exists  bool
	changes atomic.Int64

	notifier *notifier

	stopOnce sync.Once
	stopCh   chan struct{}
	done     chan struct{}
}

// WatchInfo is a point-in-time description of a watch.
type WatchInfo struct {
	ID           string    `json:"id"`
	Path         string    `json:"path"`
	StartTime    time.Time `json:"start_time"`
	LastModified time.Time `json:"last_modified,omitempty"`
	Exists       bool      `json:"exists"`
	Changes      int64     `json:"changes"`
}

// ID returns the watch ID.
func (wt *Watch) ID() string { return wt.id }

// Path returns the watched path.
func (wt *Watch) Path() string { return wt.path }

// Done is closed when the loop has ended.
func (wt *Watch) Done() <-chan struct{} { return wt.done }

// Stop ends the loop and waits for it to exit. No event is emitted after
// Stop returns.
func (wt *Watch) Stop() {
	wt.stopOnce.Do(func() {
		close(wt.stopCh)
	})
	<-wt.done
}

// Info returns a snapshot of the watch.
func (wt *Watch) Info() WatchInfo {
	wt.mu.Lock()
	defer wt.mu.Unlock()
	return WatchInfo{
		ID:           wt.id,
		Path:         wt.path,
		StartTime:    wt.started,
		LastModified: wt.lastMod,
		Exists:       wt.exists,
		Changes:      wt.changes.Load(),
	}
}
