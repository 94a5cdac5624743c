package dictionary

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

const defaultDebounce = 400 * time.Millisecond

// Reloader watches the custom dictionary file and swaps a new snapshot into the Store when
// the file changes. A file that fails to parse leaves the current snapshot in place.
type Reloader struct {
	path     string
	store    *Store
	debounce time.Duration
	onReload func(*Snapshot)
	logger   *zap.Logger

	mu       sync.Mutex
	watcher  *fsnotify.Watcher
	timer    *time.Timer
	done     chan struct{}
	started  bool
	stopOnce sync.Once
}

// ReloaderOption configures a Reloader.
type ReloaderOption func(*Reloader)

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) ReloaderOption {
	return func(r *Reloader) { r.logger = l }
}

// WithDebounce sets how long to wait after the last event before reloading.
func WithDebounce(d time.Duration) ReloaderOption {
	return func(r *Reloader) { r.debounce = d }
}

// OnReload registers a callback invoked with each snapshot published by the reloader.
func OnReload(fn func(*Snapshot)) ReloaderOption {
	return func(r *Reloader) { r.onReload = fn }
}

// NewReloader creates a reloader for the custom dictionary at path.
func NewReloader(path string, store *Store, opts ...ReloaderOption) *Reloader {
	r := &Reloader{
		path:     filepath.Clean(path),
		store:    store,
		debounce: defaultDebounce,
		logger:   zap.NewNop(),
		done:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Start begins watching. The parent directory is watched so that editors which replace the
// file by rename are still observed. It runs until ctx is cancelled or Stop is called.
func (r *Reloader) Start(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.started {
		return nil
	}
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create dictionary watcher: %w", err)
	}
	if err := w.Add(filepath.Dir(r.path)); err != nil {
		_ = w.Close()
		return fmt.Errorf("failed to watch %s: %w", filepath.Dir(r.path), err)
	}
	r.watcher = w
	r.started = true
	r.logger.Info("watching custom dictionary", zap.String("path", r.path))
	go r.run(ctx)
	return nil
}

// Stop stops watching. Safe to call more than once.
func (r *Reloader) Stop() {
	r.stopOnce.Do(func() {
		close(r.done)
		r.mu.Lock()
		defer r.mu.Unlock()
		if r.timer != nil {
			r.timer.Stop()
		}
		if r.watcher != nil {
			_ = r.watcher.Close()
		}
	})
}

func (r *Reloader) run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			r.Stop()
			return
		case <-r.done:
			return
		case ev, ok := <-r.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(ev.Name) != r.path {
				continue
			}
			if ev.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Rename) != 0 {
				r.schedule()
			}
		case err, ok := <-r.watcher.Errors:
			if !ok {
				return
			}
			r.logger.Warn("dictionary watcher error", zap.Error(err))
		}
	}
}

func (r *Reloader) schedule() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.timer != nil {
		r.timer.Stop()
	}
	r.timer = time.AfterFunc(r.debounce, func() {
		select {
		case <-r.done:
			return
		default:
		}
		r.Reload()
	})
}

// Reload parses the file now and swaps the snapshot. Errors are logged and returned.
func (r *Reloader) Reload() error {
	words, err := LoadCustom(r.path)
	if err != nil {
		r.logger.Warn("custom dictionary reload failed, keeping current snapshot",
			zap.String("path", r.path), zap.Error(err))
		return err
	}
	snap := r.store.Replace(words)
	r.logger.Info("custom dictionary reloaded",
		zap.String("path", r.path),
		zap.Int("custom_words", len(snap.CustomWords())),
		zap.Uint64("version", snap.Version()))
	if r.onReload != nil {
		r.onReload(snap)
	}
	return nil
}
