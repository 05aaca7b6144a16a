// Package fswatch maps edits of files in a session workspace directory to
// field edits on the sync engine. Each regular file in the directory is one
// tracked field; its name is the field id and its contents the field value.
// This is how the agent CLI hosts the engine headlessly.
package fswatch

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/reviewlab/syncward/pkg/log"
)

// DefaultDebounce is the per-file quiet period before a change is applied.
// Editors often write a file several times in quick succession.
const DefaultDebounce = 100 * time.Millisecond

// FieldEditor is the slice of the sync engine the watcher drives.
type FieldEditor interface {
	Track(id, value string)
	OnFieldEdit(id, value string) error
}

// Watcher observes a workspace directory and forwards file edits as field
// edits.
type Watcher struct {
	dir      string
	editor   FieldEditor
	logger   log.Logger
	debounce time.Duration

	mu     sync.Mutex
	timers map[string]*time.Timer
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates a watcher for dir feeding editor.
func New(dir string, editor FieldEditor, logger log.Logger, debounce time.Duration) *Watcher {
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	if logger == nil {
		logger = log.NewNoopLogger()
	}
	return &Watcher{
		dir:      dir,
		editor:   editor,
		logger:   logger,
		debounce: debounce,
		timers:   make(map[string]*time.Timer),
	}
}

// Start scans the workspace, tracks every existing file as a field with its
// current content treated as already saved, then watches for changes.
func (w *Watcher) Start(ctx context.Context) error {
	entries, err := os.ReadDir(w.dir)
	if err != nil {
		return fmt.Errorf("read workspace: %w", err)
	}
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || skipName(name) {
			continue
		}
		content, err := os.ReadFile(filepath.Join(w.dir, name))
		if err != nil {
			w.logger.Warn("skipping unreadable workspace file",
				log.String("file", name), log.Err(err))
			continue
		}
		w.editor.Track(name, string(content))
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	if err := watcher.Add(w.dir); err != nil {
		_ = watcher.Close()
		return fmt.Errorf("watch workspace: %w", err)
	}

	watchCtx, cancel := context.WithCancel(ctx)
	w.cancel = cancel

	w.wg.Add(1)
	go w.loop(watchCtx, watcher)
	return nil
}

// Stop halts the watcher and any pending per-file debounce timers.
func (w *Watcher) Stop() {
	if w.cancel != nil {
		w.cancel()
	}
	w.wg.Wait()

	w.mu.Lock()
	for _, t := range w.timers {
		t.Stop()
	}
	w.timers = make(map[string]*time.Timer)
	w.mu.Unlock()
}

func (w *Watcher) loop(ctx context.Context, watcher *fsnotify.Watcher) {
	defer w.wg.Done()
	defer watcher.Close()

	for {
		select {
		case <-ctx.Done():
			return

		case event, ok := <-watcher.Events:
			if !ok {
				return
			}
			name := filepath.Base(event.Name)
			if skipName(name) {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			w.debounceApply(name)

		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			w.logger.Error("workspace watcher error", log.Err(err))
		}
	}
}

// debounceApply schedules the edit after the per-file quiet period,
// restarting the timer on every further event for the same file.
func (w *Watcher) debounceApply(name string) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if t, ok := w.timers[name]; ok {
		t.Reset(w.debounce)
		return
	}
	w.timers[name] = time.AfterFunc(w.debounce, func() {
		w.mu.Lock()
		delete(w.timers, name)
		w.mu.Unlock()
		w.apply(name)
	})
}

func (w *Watcher) apply(name string) {
	content, err := os.ReadFile(filepath.Join(w.dir, name))
	if err != nil {
		w.logger.Warn("read changed workspace file",
			log.String("file", name), log.Err(err))
		return
	}

	// New files become tracked fields on first sight.
	w.editor.Track(name, "")
	if err := w.editor.OnFieldEdit(name, string(content)); err != nil {
		w.logger.Warn("field edit rejected",
			log.String("field", name), log.Err(err))
	}
}

func skipName(name string) bool {
	return strings.HasPrefix(name, ".") || strings.HasSuffix(name, ".tmp")
}
