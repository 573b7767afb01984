package ruleset

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Watcher watches a rule file or directory and triggers reloads. Rapid event
// bursts (editors often write several times per save) are debounced into one
// reload.
type Watcher struct {
	watcher  *fsnotify.Watcher
	logger   *slog.Logger
	debounce *debouncer
	exts     []string
}

// NewWatcher creates a watcher for the given path. Only files with a .yaml
// or .yml extension trigger reloads.
func NewWatcher(path string, logger *slog.Logger) (*Watcher, error) {
	if logger == nil {
		logger = slog.Default()
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("creating fsnotify watcher: %w", err)
	}
	if err := fsw.Add(path); err != nil {
		fsw.Close()
		return nil, fmt.Errorf("watching %q: %w", path, err)
	}

	return &Watcher{
		watcher:  fsw,
		logger:   logger,
		debounce: newDebouncer(100 * time.Millisecond),
		exts:     []string{".yaml", ".yml"},
	}, nil
}

// Watch blocks, invoking onReload after each debounced change, until the
// context is cancelled. Reload failures are logged and watching continues
// with the previous ruleset in effect.
func (w *Watcher) Watch(ctx context.Context, onReload func() error) error {
	defer w.Close()

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("rule watcher stopped")
			return nil

		case event, ok := <-w.watcher.Events:
			if !ok {
				return fmt.Errorf("watcher events channel closed")
			}
			if !w.relevant(event) {
				continue
			}
			w.logger.Debug("rule file event", "path", event.Name, "op", event.Op.String())
			w.debounce.trigger(func() {
				if err := onReload(); err != nil {
					w.logger.Error("rule reload failed", "error", err)
				} else {
					w.logger.Info("rules reloaded", "path", event.Name)
				}
			})

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return fmt.Errorf("watcher errors channel closed")
			}
			w.logger.Error("rule watcher error", "error", err)
		}
	}
}

// Close stops the underlying fsnotify watcher and cancels pending reloads.
func (w *Watcher) Close() error {
	w.debounce.stop()
	return w.watcher.Close()
}

func (w *Watcher) relevant(event fsnotify.Event) bool {
	if event.Op&fsnotify.Chmod == fsnotify.Chmod {
		return false
	}
	ext := strings.ToLower(filepath.Ext(event.Name))
	for _, valid := range w.exts {
		if ext == valid {
			return true
		}
	}
	return false
}

// debouncer collapses rapid triggers into one callback after a quiet period.
type debouncer struct {
	interval time.Duration
	mu       sync.Mutex
	timer    *time.Timer
	stopped  bool
}

func newDebouncer(interval time.Duration) *debouncer {
	return &debouncer{interval: interval}
}

func (d *debouncer) trigger(callback func()) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.stopped {
		return
	}
	if d.timer != nil {
		d.timer.Stop()
	}
	d.timer = time.AfterFunc(d.interval, callback)
}

func (d *debouncer) stop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.stopped = true
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
}
