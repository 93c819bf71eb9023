// Package watcher reports changes to a single file such as the policy file.
package watcher

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/bestyn/bestynapp-sub001/internal/logging"
)

const DefaultDebounce = 500 * time.Millisecond

type EventType int

const (
	EventCreate EventType = iota
	EventModify
	EventDelete
)

func (e EventType) String() string {
	switch e {
	case EventCreate:
		return "create"
	case EventModify:
		return "modify"
	default:
		return "delete"
	}
}

// FileWatcher watches the directory holding one file so that editors which
// save by renaming a temp file over it are seen too. Bursts of events are
// collapsed into one callback per debounce window.
type FileWatcher struct {
	path     string
	debounce time.Duration
	logger   *slog.Logger

	mu       sync.Mutex
	callback func(path string, event EventType)
	fsw      *fsnotify.Watcher
	timer    *time.Timer
}

func New(path string, debounce time.Duration, logger *slog.Logger) *FileWatcher {
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	return &FileWatcher{
		path:     filepath.Clean(path),
		debounce: debounce,
		logger:   logging.WithComponent(logging.OrDiscard(logger), "watcher"),
	}
}

func (w *FileWatcher) OnChange(callback func(path string, event EventType)) {
	w.mu.Lock()
	w.callback = callback
	w.mu.Unlock()
}

// Watch starts watching and returns once the watch is registered. Events are
// delivered until ctx is cancelled or Stop is called.
func (w *FileWatcher) Watch(ctx context.Context) error {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	if err := fsw.Add(filepath.Dir(w.path)); err != nil {
		_ = fsw.Close()
		return fmt.Errorf("watch %s: %w", filepath.Dir(w.path), err)
	}

	w.mu.Lock()
	w.fsw = fsw
	w.mu.Unlock()

	w.logger.Info("watching file", "path", w.path)
	go w.loop(ctx, fsw)
	return nil
}

func (w *FileWatcher) loop(ctx context.Context, fsw *fsnotify.Watcher) {
	defer fsw.Close()
	for {
		select {
		case <-ctx.Done():
			w.stopTimer()
			return
		case ev, ok := <-fsw.Events:
			if !ok {
				w.stopTimer()
				return
			}
			if filepath.Clean(ev.Name) != w.path {
				continue
			}
			kind, ok := eventType(ev.Op)
			if !ok {
				continue
			}
			w.logger.Debug("file changed", "path", w.path, "op", ev.Op.String())
			w.schedule(kind)
		case err, ok := <-fsw.Errors:
			if !ok {
				return
			}
			w.logger.Error("watcher error", "error", err)
		}
	}
}

func eventType(op fsnotify.Op) (EventType, bool) {
	switch {
	case op.Has(fsnotify.Create):
		return EventCreate, true
	case op.Has(fsnotify.Write):
		return EventModify, true
	case op.Has(fsnotify.Remove), op.Has(fsnotify.Rename):
		return EventDelete, true
	default:
		return 0, false
	}
}

// schedule restarts the debounce timer; the last event kind wins.
func (w *FileWatcher) schedule(kind EventType) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.timer != nil {
		w.timer.Stop()
	}
	w.timer = time.AfterFunc(w.debounce, func() {
		w.mu.Lock()
		cb := w.callback
		w.mu.Unlock()
		if cb != nil {
			cb(w.path, kind)
		}
	})
}

func (w *FileWatcher) stopTimer() {
	w.mu.Lock()
	if w.timer != nil {
		w.timer.Stop()
	}
	w.mu.Unlock()
}

// Stop ends the watch. It is safe to call more than once.
func (w *FileWatcher) Stop() error {
	w.mu.Lock()
	fsw := w.fsw
	w.fsw = nil
	w.mu.Unlock()
	if fsw == nil {
		return nil
	}
	return fsw.Close()
}
