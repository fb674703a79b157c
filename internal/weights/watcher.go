package weights

import (
	"context"
	"fmt"
	"log"
	"path/filepath"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"

	"github.com/ramonehamilton/gammatrain/internal/features"
)

// Watcher serves the latest weights from a file and reloads them when the
// file is replaced. Readers always see a complete model.
type Watcher struct {
	path     string
	registry *features.Registry
	current  atomic.Pointer[Model]
	reloads  atomic.Uint64
	onReload func(*Model)
}

// NewWatcher loads path once. A missing file starts the watcher with neutral weights.
func NewWatcher(path string, reg *features.Registry) (*Watcher, error) {
	w := &Watcher{path: filepath.Clean(path), registry: reg}
	m, err := LoadFile(w.path, reg)
	if err != nil {
		return nil, err
	}
	w.current.Store(m)
	return w, nil
}

// Current returns the most recently loaded model.
func (w *Watcher) Current() *Model { return w.current.Load() }

// Reloads returns how many times the file has been reloaded.
func (w *Watcher) Reloads() uint64 { return w.reloads.Load() }

// OnReload registers a callback run after each successful reload.
// It must be set before Run.
func (w *Watcher) OnReload(fn func(*Model)) { w.onReload = fn }

// Reload reads the file now. On error the previous model stays in place.
func (w *Watcher) Reload() error {
	m, err := LoadFile(w.path, w.registry)
	if err != nil {
		return err
	}
	w.current.Store(m)
	w.reloads.Add(1)
	if w.onReload != nil {
		w.onReload(m)
	}
	return nil
}

// Run watches the file's directory until ctx is done. Watching the directory
// rather than the file keeps working across atomic renames.
func (w *Watcher) Run(ctx context.Context) (err error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create file watcher: %w", err)
	}
	defer func() {
		if closeErr := watcher.Close(); closeErr != nil && err == nil {
			err = closeErr
		}
	}()

	if err := watcher.Add(filepath.Dir(w.path)); err != nil {
		return fmt.Errorf("failed to watch %s: %w", filepath.Dir(w.path), err)
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != w.path {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}
			if err := w.Reload(); err != nil {
				log.Printf("Failed to reload weights from %s: %v", w.path, err)
				continue
			}
			log.Printf("Reloaded weights from %s", w.path)
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			log.Printf("Weights watcher error: %v", err)
		}
	}
}
