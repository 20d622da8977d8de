package engine

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/fsnotify/fsnotify"

	"github.com/papercomputeco/pulse/pkg/logger"
)

// Watcher reloads an engine table file whenever it changes on disk.
type Watcher struct {
	path     string
	onReload func([]Engine)
	logger   *slog.Logger
}

// NewWatcher returns a Watcher for path. onReload receives the engines of
// every successfully reloaded table; invalid files are logged and ignored.
func NewWatcher(path string, onReload func([]Engine), l *slog.Logger) *Watcher {
	return &Watcher{
		path:     path,
		onReload: onReload,
		logger:   logger.OrNop(l),
	}
}

// Run watches until ctx is cancelled. The parent directory is watched so
// that editors which replace the file on save are followed.
func (w *Watcher) Run(ctx context.Context) error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("creating engine table watcher: %w", err)
	}
	defer fw.Close()

	if err := fw.Add(filepath.Dir(w.path)); err != nil {
		return fmt.Errorf("watching engine table dir: %w", err)
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-fw.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != filepath.Clean(w.path) {
				continue
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			w.reload()
		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			return fmt.Errorf("engine table watcher error: %w", err)
		}
	}
}

func (w *Watcher) reload() {
	t, err := LoadTable(w.path)
	if err != nil {
		w.logger.Warn("ignoring invalid engine table", "path", w.path, "error", err)
		return
	}

	w.logger.Info("engine table reloaded", "path", w.path, "engines", len(t.Engines))
	w.onReload(t.Engines)
}
