package engine

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/fsnotify/fsnotify"

	"github.com/jormala/tablewatch/internal/registry"
)

// ArtifactWatcher notices when a materialized table file disappears from
// disk (deleted or renamed away) and reports it, so the scheduler can
// rebuild the artifact on its next pass even though the remote signal is
// unchanged.
//
// The watch set is fixed at construction from the records it is given;
// records added while the watcher runs are covered after a restart.
type ArtifactWatcher struct {
	watcher   *fsnotify.Watcher
	byPath    map[string]registry.Key
	onMissing func(project, table string)
	logger    *slog.Logger
}

// NewArtifactWatcher creates a watcher over the parent directories of the
// given records' local paths. onMissing is invoked once per disappeared
// artifact, from the watcher's goroutine.
func NewArtifactWatcher(records []registry.Record, onMissing func(project, table string), logger *slog.Logger) (*ArtifactWatcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("engine: creating artifact watcher: %w", err)
	}

	w := &ArtifactWatcher{
		watcher:   fsw,
		byPath:    make(map[string]registry.Key, len(records)),
		onMissing: onMissing,
		logger:    logger,
	}

	dirs := make(map[string]bool)

	for i := range records {
		rec := &records[i]
		path := filepath.Clean(rec.LocalPath)
		w.byPath[path] = rec.Key()

		dir := filepath.Dir(path)
		if dirs[dir] {
			continue
		}

		dirs[dir] = true

		if err := fsw.Add(dir); err != nil {
			// A missing directory just means the artifact is already gone;
			// the scheduler's stale handling covers it once it reappears.
			logger.Warn("cannot watch artifact directory",
				slog.String("dir", dir),
				slog.String("error", err.Error()),
			)
		}
	}

	return w, nil
}

// Run consumes filesystem events until the context is canceled. Always
// returns nil on clean shutdown.
func (w *ArtifactWatcher) Run(ctx context.Context) error {
	defer w.watcher.Close()

	w.logger.Debug("artifact watcher running",
		slog.Int("artifacts", len(w.byPath)),
	)

	for {
		select {
		case ev, ok := <-w.watcher.Events:
			if !ok {
				return nil
			}

			w.handleEvent(ev)

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return nil
			}

			w.logger.Warn("artifact watcher error", slog.String("error", err.Error()))

		case <-ctx.Done():
			return nil
		}
	}
}

// handleEvent reports watched artifacts that were removed or renamed away.
func (w *ArtifactWatcher) handleEvent(ev fsnotify.Event) {
	if ev.Op&(fsnotify.Remove|fsnotify.Rename) == 0 {
		return
	}

	key, ok := w.byPath[filepath.Clean(ev.Name)]
	if !ok {
		return
	}

	w.logger.Info("local artifact disappeared, marking for resync",
		slog.String("path", ev.Name),
		slog.String("table", key.Table),
	)

	w.onMissing(key.Project, key.Table)
}
