package schema

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
)

// Watch reloads the mapping file at path into r each time it is written,
// until ctx is done. Invalid revisions are logged and leave the registry
// unchanged. The optional onReload callback observes each reload result.
func (r *Registry) Watch(ctx context.Context, path string, onReload func(error)) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("schema: watching mapping: %w", err)
	}
	defer w.Close()
	// Editors often replace the file, so watch its directory.
	if err := w.Add(filepath.Dir(path)); err != nil {
		return fmt.Errorf("schema: watching mapping: %w", err)
	}
	target := filepath.Clean(path)
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != target || !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) {
				continue
			}
			err := r.reload(path)
			if err != nil {
				r.log.Error("batchql: reloading mapping", "path", path, "error", err)
			} else {
				r.log.Info("batchql: mapping reloaded", "path", path, "entities", len(r.Entities()))
			}
			if onReload != nil {
				onReload(err)
			}
		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			r.log.Error("batchql: mapping watcher", "error", err)
		}
	}
}

func (r *Registry) reload(path string) error {
	m, err := LoadMapping(path)
	if err != nil {
		return err
	}
	// Validate every definition before touching the registry.
	if _, err := m.Definitions(); err != nil {
		return err
	}
	return r.Load(m)
}
