// Package watch feeds filesystem events into the highlight subsystem: new
// Markdown files become resources as soon as they appear, and edited files
// get a bulk cleanup pass so highlights whose text is gone don't pile up as
// permanently stale rows.
package watch

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"mdhl/internal/hl"
)

// settleWindow is how long writes to a path must be quiet before the cleanup
// pass runs. Editors that truncate and rewrite on save emit several Write
// events; cleaning up mid-save would see half-written content and delete
// highlights the finished save still contains.
const settleWindow = 500 * time.Millisecond

// Actions is the slice of the highlight service the watcher drives.
type Actions interface {
	RegisterResource(path, kind string) (*hl.Resource, error)
	CleanupResource(path string) (int, error)
}

// Watcher routes fsnotify events for a directory tree into Actions.
type Watcher struct {
	fsw     *fsnotify.Watcher
	actions Actions
	logger  hl.Logger
	done    chan struct{}
	settle  time.Duration

	mu      sync.Mutex
	pending map[string]*time.Timer
}

// New creates a Watcher over root and all of its subdirectories.
func New(root string, actions Actions, logger hl.Logger) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("creating watcher: %w", err)
	}

	err = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if path != root && strings.HasPrefix(d.Name(), ".") {
			return filepath.SkipDir
		}
		return fsw.Add(path)
	})
	if err != nil {
		fsw.Close()
		return nil, fmt.Errorf("watching %s: %w", root, err)
	}

	return &Watcher{
		fsw:     fsw,
		actions: actions,
		logger:  logger,
		done:    make(chan struct{}),
		settle:  settleWindow,
		pending: make(map[string]*time.Timer),
	}, nil
}

// Start consumes events until Close is called.
func (w *Watcher) Start() {
	go func() {
		for {
			select {
			case ev, ok := <-w.fsw.Events:
				if !ok {
					return
				}
				w.handle(ev)
			case err, ok := <-w.fsw.Errors:
				if !ok {
					return
				}
				w.logger.Warn("watcher error", "error", err)
			case <-w.done:
				return
			}
		}
	}()
}

// handle routes one event. Creates register resources (and extend the watch
// to new directories); writes arm the debounced delete-if-gone cleanup pass.
// Removes and renames take no direct action: the unreadable-file path of the
// next read marks the affected highlights stale instead.
func (w *Watcher) handle(ev fsnotify.Event) {
	switch {
	case ev.Op.Has(fsnotify.Create):
		info, err := os.Stat(ev.Name)
		if err != nil {
			return
		}
		if info.IsDir() {
			if err := w.fsw.Add(ev.Name); err != nil {
				w.logger.Warn("failed to watch new directory", "path", ev.Name, "error", err)
			}
			return
		}
		if !isMarkdown(ev.Name) {
			return
		}
		if _, err := w.actions.RegisterResource(ev.Name, hl.KindFile); err != nil {
			w.logger.Warn("failed to register resource", "path", ev.Name, "error", err)
		}

	case ev.Op.Has(fsnotify.Write):
		if !isMarkdown(ev.Name) {
			return
		}
		w.scheduleCleanup(ev.Name)
	}
}

// scheduleCleanup arms (or re-arms) the per-path settle timer. The cleanup
// pass runs only once writes to the path have stopped for the settle window,
// so a burst of events from one save coalesces into a single pass over the
// final content.
func (w *Watcher) scheduleCleanup(path string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if t, ok := w.pending[path]; ok {
		t.Reset(w.settle)
		return
	}
	w.pending[path] = time.AfterFunc(w.settle, func() {
		w.mu.Lock()
		delete(w.pending, path)
		w.mu.Unlock()
		w.cleanup(path)
	})
}

func (w *Watcher) cleanup(path string) {
	removed, err := w.actions.CleanupResource(path)
	if err != nil {
		w.logger.Warn("cleanup failed", "path", path, "error", err)
		return
	}
	if removed > 0 {
		w.logger.Info("cleanup after edit", "path", path, "removed", removed)
	}
}

// Close stops the event loop, cancels pending cleanups, and releases the
// underlying watcher.
func (w *Watcher) Close() error {
	close(w.done)
	w.mu.Lock()
	for path, t := range w.pending {
		t.Stop()
		delete(w.pending, path)
	}
	w.mu.Unlock()
	return w.fsw.Close()
}

func isMarkdown(path string) bool {
	return strings.EqualFold(filepath.Ext(path), ".md")
}
