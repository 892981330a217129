package config

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/fsnotify/fsnotify"

	"github.com/banshee-data/storyboard.xr/internal/monitoring"
)

// Watcher reloads a tuning file whenever it changes on disk and hands the
// validated result to onChange. Invalid edits are logged and skipped, so
// the last good configuration stays in effect.
type Watcher struct {
	path     string
	watcher  *fsnotify.Watcher
	onChange func(*TuningConfig)
}

// NewWatcher watches the directory containing path. Watching the directory
// rather than the file survives editors that save by rename.
func NewWatcher(path string, onChange func(*TuningConfig)) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create file watcher: %w", err)
	}
	clean := filepath.Clean(path)
	if err := fw.Add(filepath.Dir(clean)); err != nil {
		fw.Close()
		return nil, fmt.Errorf("failed to watch %s: %w", filepath.Dir(clean), err)
	}
	return &Watcher{path: clean, watcher: fw, onChange: onChange}, nil
}

// Run processes file events until ctx is cancelled, then releases the
// underlying watcher.
func (w *Watcher) Run(ctx context.Context) error {
	defer w.watcher.Close()
	logf := monitoring.Component("config")

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-w.watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != w.path {
				continue
			}
			if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) {
				continue
			}
			cfg, err := LoadTuningConfig(w.path)
			if err != nil {
				logf("ignoring tuning change in %s: %v", w.path, err)
				continue
			}
			logf("reloaded tuning from %s", w.path)
			w.onChange(cfg)
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return nil
			}
			logf("watch error: %v", err)
		}
	}
}
