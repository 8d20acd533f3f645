// Package signals watches a directory for control files dropped by an
// operator: a "kill" file stops the process and a "pause" file holds the
// queue driver until it is removed.
package signals

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

const (
	// KillFile cancels the running command when it appears.
	KillFile = "kill"
	// PauseFile pauses the driver while it exists.
	PauseFile = "pause"
)

// Option configures a Watcher.
type Option func(*Watcher)

// WithKillFunc sets a callback invoked once when a kill signal is seen.
func WithKillFunc(fn func()) Option {
	return func(w *Watcher) { w.onKill = fn }
}

// WithPauseFunc sets a callback invoked whenever the pause state changes.
func WithPauseFunc(fn func(paused bool)) Option {
	return func(w *Watcher) { w.onPause = fn }
}

// Watcher tracks kill and pause files in a signals directory.
type Watcher struct {
	dir string

	mu      sync.RWMutex
	killed  bool
	paused  bool
	onKill  func()
	onPause func(paused bool)

	watcher   *fsnotify.Watcher
	done      chan struct{}
	closeOnce sync.Once
}

// New creates the signals directory if needed and starts watching it. If a
// filesystem watcher cannot be started, ShouldStop and ShouldPause still
// work by checking the files directly.
func New(dir string, opts ...Option) (*Watcher, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, err
	}

	w := &Watcher{
		dir:  dir,
		done: make(chan struct{}),
	}
	for _, opt := range opts {
		opt(w)
	}

	// Files left behind by an earlier run count immediately.
	if exists(w.path(KillFile)) {
		w.setKilled()
	}
	if exists(w.path(PauseFile)) {
		w.setPaused(true)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return w, nil
	}
	if err := watcher.Add(dir); err != nil {
		watcher.Close()
		return w, nil
	}
	w.watcher = watcher

	go w.watch()

	return w, nil
}

func (w *Watcher) watch() {
	for {
		select {
		case <-w.done:
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			w.handle(event)
		case _, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
		}
	}
}

func (w *Watcher) handle(event fsnotify.Event) {
	// Events can arrive after the file is gone, so the file itself decides.
	switch filepath.Base(event.Name) {
	case KillFile:
		if exists(w.path(KillFile)) {
			w.setKilled()
		}
	case PauseFile:
		w.setPaused(exists(w.path(PauseFile)))
	}
}

func (w *Watcher) setKilled() {
	w.mu.Lock()
	if w.killed {
		w.mu.Unlock()
		return
	}
	w.killed = true
	fn := w.onKill
	w.mu.Unlock()

	if fn != nil {
		fn()
	}
}

func (w *Watcher) setPaused(paused bool) {
	w.mu.Lock()
	if w.paused == paused {
		w.mu.Unlock()
		return
	}
	w.paused = paused
	fn := w.onPause
	w.mu.Unlock()

	if fn != nil {
		fn(paused)
	}
}

// Context returns a child of parent that is cancelled when a kill signal
// arrives. The returned cancel func must be called to release it.
func (w *Watcher) Context(parent context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(parent)
	go func() {
		ticker := time.NewTicker(250 * time.Millisecond)
		defer ticker.Stop()
		for {
			if w.ShouldStop() {
				cancel()
				return
			}
			select {
			case <-ctx.Done():
				return
			case <-w.done:
				return
			case <-ticker.C:
			}
		}
	}()
	return ctx, cancel
}

// ShouldStop reports whether a kill signal has been received.
func (w *Watcher) ShouldStop() bool {
	// Also check the file directly in case the watcher missed it.
	if exists(w.path(KillFile)) {
		w.setKilled()
	}

	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.killed
}

// ShouldPause reports whether the pause file is present.
func (w *Watcher) ShouldPause() bool {
	w.setPaused(exists(w.path(PauseFile)))

	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.paused
}

// SendKill creates the kill file.
func (w *Watcher) SendKill() error {
	return Send(w.dir, KillFile)
}

// SendPause creates the pause file.
func (w *Watcher) SendPause() error {
	return Send(w.dir, PauseFile)
}

// Clear removes both signal files and resets the kill state.
func (w *Watcher) Clear() {
	os.Remove(w.path(KillFile))
	os.Remove(w.path(PauseFile))

	w.mu.Lock()
	w.killed = false
	w.mu.Unlock()
	w.setPaused(false)
}

// Dir returns the watched directory.
func (w *Watcher) Dir() string {
	return w.dir
}

// Close stops watching.
func (w *Watcher) Close() {
	w.closeOnce.Do(func() {
		close(w.done)
		if w.watcher != nil {
			w.watcher.Close()
		}
	})
}

func (w *Watcher) path(name string) string {
	return filepath.Join(w.dir, name)
}

// Send drops a signal file into dir. It is used by commands that control
// another conductor process.
func Send(dir, name string) error {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(dir, name), []byte(time.Now().Format(time.RFC3339)), 0644)
}

// Remove deletes a signal file from dir. A missing file is not an error.
func Remove(dir, name string) error {
	err := os.Remove(filepath.Join(dir, name))
	if os.IsNotExist(err) {
		return nil
	}
	return err
}

func exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
