// Package watch re-analyzes logs when their files change.
package watch

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// DefaultDebounce is the quiet period after the last write before a
// change is reported.
const DefaultDebounce = 500 * time.Millisecond

// ChangeFunc is called with the name of a log whose file changed.
type ChangeFunc func(ctx context.Context, name string)

// Watcher monitors log files for changes and triggers updates.
type Watcher struct {
	watcher  *fsnotify.Watcher
	files    map[string]*fileState
	mu       sync.Mutex
	debounce time.Duration

	OnChange ChangeFunc
	OnError  func(path string, err error)

	wg sync.WaitGroup
}

type fileState struct {
	name         string
	path         string
	lastModified time.Time
	size         int64
	timer        *time.Timer
	processing   bool
	pending      bool
}

// NewWatcher creates a new file watcher. debounce <= 0 uses DefaultDebounce.
func NewWatcher(debounce time.Duration) (*Watcher, error) {
	fsWatcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create watcher: %w", err)
	}
	if debounce <= 0 {
		debounce = DefaultDebounce
	}

	return &Watcher{
		watcher:  fsWatcher,
		files:    make(map[string]*fileState),
		debounce: debounce,
	}, nil
}

// Watch starts watching the file of the named log.
func (w *Watcher) Watch(name, path string) error {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("failed to resolve path: %w", err)
	}

	stat, err := os.Stat(absPath)
	if err != nil {
		return fmt.Errorf("failed to stat file: %w", err)
	}
	if stat.IsDir() {
		return fmt.Errorf("%s is a directory", path)
	}

	w.mu.Lock()
	w.files[absPath] = &fileState{
		name:         name,
		path:         absPath,
		lastModified: stat.ModTime(),
		size:         stat.Size(),
	}
	w.mu.Unlock()

	// Watch the directory so replace-by-rename saves are seen too.
	if err := w.watcher.Add(filepath.Dir(absPath)); err != nil {
		return fmt.Errorf("failed to watch directory: %w", err)
	}
	return nil
}

// Run starts the watch loop. Blocks until ctx is cancelled and every
// running callback has returned.
func (w *Watcher) Run(ctx context.Context) error {
	defer w.wg.Wait()
	defer w.stopTimers()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case event, ok := <-w.watcher.Events:
			if !ok {
				return nil
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			absPath, err := filepath.Abs(event.Name)
			if err != nil {
				continue
			}
			w.schedule(ctx, absPath)

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return nil
			}
			w.reportError("", err)
		}
	}
}

// schedule debounces rapid changes of one file.
func (w *Watcher) schedule(ctx context.Context, path string) {
	w.mu.Lock()
	defer w.mu.Unlock()

	state, ok := w.files[path]
	if !ok {
		return
	}
	if state.timer != nil && state.timer.Stop() {
		w.wg.Done()
	}
	w.wg.Add(1)
	state.timer = time.AfterFunc(w.debounce, func() {
		defer w.wg.Done()
		w.handleChange(ctx, state)
	})
}

func (w *Watcher) stopTimers() {
	w.mu.Lock()
	defer w.mu.Unlock()
	for _, state := range w.files {
		if state.timer != nil && state.timer.Stop() {
			w.wg.Done()
		}
	}
}

func (w *Watcher) handleChange(ctx context.Context, state *fileState) {
	if ctx.Err() != nil {
		return
	}

	w.mu.Lock()
	if state.processing {
		state.pending = true
		w.mu.Unlock()
		return
	}
	state.processing = true
	w.mu.Unlock()

	for {
		if w.changed(state) && w.OnChange != nil {
			w.OnChange(ctx, state.name)
		}

		w.mu.Lock()
		if !state.pending || ctx.Err() != nil {
			state.processing = false
			w.mu.Unlock()
			return
		}
		state.pending = false
		w.mu.Unlock()
	}
}

// changed compares the file with its last known state and records the new one.
func (w *Watcher) changed(state *fileState) bool {
	stat, err := os.Stat(state.path)
	if err != nil {
		w.reportError(state.path, err)
		return false
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	if stat.ModTime().Equal(state.lastModified) && stat.Size() == state.size {
		return false
	}
	state.lastModified = stat.ModTime()
	state.size = stat.Size()
	return true
}

func (w *Watcher) reportError(path string, err error) {
	if w.OnError != nil {
		w.OnError(path, err)
	}
}

// Close stops the watcher.
func (w *Watcher) Close() error {
	return w.watcher.Close()
}
