package config

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
)

// Watcher reloads the manager when the config file changes on disk.
// The UI edits the file directly, so the daemon has to pick changes up
// without a restart.
type Watcher struct {
	manager *Manager
	logger  zerolog.Logger
	onload  func(*Config)
}

func NewWatcher(manager *Manager, logger zerolog.Logger, onload func(*Config)) *Watcher {
	return &Watcher{
		manager: manager,
		logger:  logger.With().Str("component", "config-watch").Logger(),
		onload:  onload,
	}
}

// Start blocks until the context is cancelled. The directory is
// watched rather than the file: editors and atomic writers replace the
// inode, which drops a file-level watch.
func (w *Watcher) Start(ctx context.Context) error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer fw.Close()

	path := w.manager.path
	if err := fw.Add(filepath.Dir(path)); err != nil {
		return fmt.Errorf("watch %s: %w", filepath.Dir(path), err)
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case event := <-fw.Events:
			if event.Name != path {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			if err := w.manager.Reload(); err != nil {
				w.logger.Error().Err(err).Msg("config reload failed, keeping previous")
				continue
			}
			w.logger.Info().Str("path", path).Msg("config reloaded")
			if w.onload != nil {
				w.onload(w.manager.Current())
			}
		case err := <-fw.Errors:
			w.logger.Error().Err(err).Msg("config watcher error")
		}
	}
}
