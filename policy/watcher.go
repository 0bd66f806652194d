package policy

import (
	"context"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"github.com/wippyai/neuropil-go/engine"
	"github.com/wippyai/neuropil-go/errors"
	"github.com/wippyai/neuropil-go/node"
)

// DefaultDebounce is how long the watcher waits after the last change
// before reloading.
const DefaultDebounce = 500 * time.Millisecond

// Watcher keeps a Set in sync with its file. Policies obtained from a
// Watcher always evaluate the most recently loaded set; a file that fails
// to parse leaves the previous set in effect.
type Watcher struct {
	watcher  *fsnotify.Watcher
	current  atomic.Pointer[Set]
	onReload func(*Set, error)
	path     string
	debounce time.Duration
	closeMu  sync.Mutex
	closed   bool
}

// WatcherOption configures a Watcher.
type WatcherOption func(*Watcher)

// WithDebounce overrides DefaultDebounce.
func WithDebounce(d time.Duration) WatcherOption {
	return func(w *Watcher) {
		w.debounce = d
	}
}

// OnReload registers fn to be called after every reload attempt.
func OnReload(fn func(*Set, error)) WatcherOption {
	return func(w *Watcher) {
		w.onReload = fn
	}
}

// NewWatcher loads path and prepares to watch it. The file must exist and
// parse.
func NewWatcher(path string, opts ...WatcherOption) (*Watcher, error) {
	set, err := Load(path)
	if err != nil {
		return nil, err
	}

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, errors.Config("create file watcher", err)
	}
	// Editors often replace the file instead of writing it, so watch the
	// directory and filter by name.
	if err := fw.Add(filepath.Dir(path)); err != nil {
		fw.Close()
		return nil, errors.Config("watch "+path, err)
	}

	w := &Watcher{
		watcher:  fw,
		path:     filepath.Clean(path),
		debounce: DefaultDebounce,
	}
	for _, opt := range opts {
		opt(w)
	}
	w.current.Store(set)
	return w, nil
}

// Current returns the active set.
func (w *Watcher) Current() *Set {
	return w.current.Load()
}

// Policy returns a node policy that evaluates whatever set is current at
// decision time.
func (w *Watcher) Policy(seat node.Seat) node.Policy {
	return func(n *node.Node, tok *engine.Token) (bool, error) {
		return w.Current().Policy(seat)(n, tok)
	}
}

// Reload reads the file now. On failure the current set is kept.
func (w *Watcher) Reload() error {
	set, err := Load(w.path)
	if err == nil {
		w.current.Store(set)
		Logger().Info("policy reloaded", zap.String("path", w.path), zap.String("hash", set.Hash()))
	} else {
		Logger().Warn("policy reload failed, keeping previous policy", zap.String("path", w.path), zap.Error(err))
	}
	if w.onReload != nil {
		w.onReload(set, err)
	}
	return err
}

// Run watches for file changes and reloads. Blocks until ctx is cancelled
// or the watcher is closed.
func (w *Watcher) Run(ctx context.Context) error {
	defer w.Close()

	var debounce *time.Timer
	defer func() {
		if debounce != nil {
			debounce.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-w.watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != w.path {
				continue
			}
			if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) || event.Has(fsnotify.Rename) {
				if debounce != nil {
					debounce.Stop()
				}
				debounce = time.AfterFunc(w.debounce, func() {
					_ = w.Reload()
				})
			}

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return nil
			}
			Logger().Warn("policy watcher error", zap.Error(err))
		}
	}
}

// Close stops watching. It is safe to call more than once.
func (w *Watcher) Close() error {
	w.closeMu.Lock()
	defer w.closeMu.Unlock()
	if w.closed {
		return nil
	}
	w.closed = true
	return w.watcher.Close()
}
