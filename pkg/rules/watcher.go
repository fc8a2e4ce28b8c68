package rules

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// DefaultDebounce groups bursts of file events into one reload.
const DefaultDebounce = 100 * time.Millisecond

// Watcher reapplies a rules file when it changes. It watches the parent
// directory so that editors replacing the file by rename are seen.
type Watcher struct {
	loader   *Loader
	watcher  *fsnotify.Watcher
	debounce time.Duration
	logger   *slog.Logger

	mu      sync.Mutex
	running bool
	timer   *time.Timer
}

// NewWatcher creates a watcher for the loader's file.
func NewWatcher(loader *Loader, debounce time.Duration, logger *slog.Logger) (*Watcher, error) {
	if loader == nil || loader.Path() == "" {
		return nil, errors.New("rules watcher: a rules file path is required")
	}
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	if logger == nil {
		logger = slog.Default()
	}
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create fsnotify watcher: %w", err)
	}
	return &Watcher{
		loader:   loader,
		watcher:  fw,
		debounce: debounce,
		logger:   logger.With("component", "rules.watcher"),
	}, nil
}

// Watch blocks until ctx is done, reloading after each quiet period that
// follows a change to the file. Reload failures are logged and the
// previously applied rules stay in effect.
func (w *Watcher) Watch(ctx context.Context) error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return errors.New("rules watcher already running")
	}
	w.running = true
	w.mu.Unlock()

	defer func() {
		w.mu.Lock()
		w.running = false
		if w.timer != nil {
			w.timer.Stop()
			w.timer = nil
		}
		w.mu.Unlock()
		_ = w.watcher.Close()
	}()

	path, err := filepath.Abs(w.loader.Path())
	if err != nil {
		return fmt.Errorf("resolve rules path: %w", err)
	}
	if err := w.watcher.Add(filepath.Dir(path)); err != nil {
		return fmt.Errorf("failed to watch %q: %w", filepath.Dir(path), err)
	}
	w.logger.Info("rules watcher started", "path", path, "debounce_ms", w.debounce.Milliseconds())

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("rules watcher stopped")
			return nil

		case event, ok := <-w.watcher.Events:
			if !ok {
				return errors.New("watcher events channel closed")
			}
			if !relevant(event, path) {
				continue
			}
			w.logger.Debug("rules file event", "op", event.Op.String())
			w.schedule(ctx)

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return errors.New("watcher errors channel closed")
			}
			w.logger.Error("rules watcher error", "error", err)
		}
	}
}

func relevant(event fsnotify.Event, path string) bool {
	if event.Op&fsnotify.Chmod == fsnotify.Chmod {
		return false
	}
	if event.Op&(fsnotify.Remove|fsnotify.Rename) != 0 && event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
		return false
	}
	name, err := filepath.Abs(event.Name)
	if err != nil {
		return false
	}
	return name == path
}

func (w *Watcher) schedule(ctx context.Context) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.timer != nil {
		w.timer.Stop()
	}
	w.timer = time.AfterFunc(w.debounce, func() {
		if ctx.Err() != nil {
			return
		}
		_, _ = w.loader.Reload(ctx)
	})
}
