// Package watch re-runs a handler when Verilog sources under a directory
// change.
package watch

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"github.com/robert-at-pretension-io/tbgen/internal/config"
)

// DefaultDebounce is how long a file must stay quiet before it is reported.
const DefaultDebounce = 300 * time.Millisecond

// Handler receives a sorted batch of changed files that still exist.
type Handler func(ctx context.Context, files []string)

// Watcher watches a directory tree and batches settled changes.
type Watcher struct {
	// Filter selects the files to report; nil selects .v and .sv files
	Filter func(path string) bool

	// Debounce overrides DefaultDebounce when positive
	Debounce time.Duration

	mu          sync.Mutex
	watcher     *fsnotify.Watcher
	dir         string
	onChange    Handler
	logger      *zap.Logger
	debounceMap map[string]time.Time
	stopCh      chan struct{}
	doneCh      chan struct{}
	running     bool
}

// New creates a Watcher for dir. Call Start to begin watching.
func New(dir string, onChange Handler, logger *zap.Logger) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Watcher{
		watcher:     fw,
		dir:         dir,
		onChange:    onChange,
		logger:      logger,
		debounceMap: make(map[string]time.Time),
		stopCh:      make(chan struct{}),
		doneCh:      make(chan struct{}),
	}, nil
}

// Start adds every directory under the root and starts the event loop in
// a goroutine.
func (w *Watcher) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return nil
	}
	w.running = true
	w.mu.Unlock()

	if err := w.addTree(w.dir, false); err != nil {
		w.mu.Lock()
		w.running = false
		w.mu.Unlock()
		return err
	}
	w.logger.Info("watching sources", zap.String("dir", w.dir))

	go w.run(ctx)
	return nil
}

// Stop ends the event loop and releases the fsnotify watcher. It is safe to
// call more than once and after the context was cancelled.
func (w *Watcher) Stop() {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		_ = w.watcher.Close()
		return
	}
	w.running = false
	w.mu.Unlock()

	close(w.stopCh)
	<-w.doneCh

	if err := w.watcher.Close(); err != nil {
		w.logger.Warn("closing watcher", zap.Error(err))
	}
}

// Run starts the watcher and blocks until ctx is cancelled
func (w *Watcher) Run(ctx context.Context) error {
	if err := w.Start(ctx); err != nil {
		return err
	}
	<-ctx.Done()
	w.Stop()
	return nil
}

func (w *Watcher) run(ctx context.Context) {
	defer close(w.doneCh)

	ticker := time.NewTicker(w.tick())
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return

		case <-w.stopCh:
			return

		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			w.handleEvent(event)

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Warn("watch error", zap.Error(err))

		case <-ticker.C:
			w.processDebounced(ctx)
		}
	}
}

func (w *Watcher) debounce() time.Duration {
	if w.Debounce > 0 {
		return w.Debounce
	}
	return DefaultDebounce
}

func (w *Watcher) tick() time.Duration {
	d := w.debounce() / 3
	if d < 10*time.Millisecond {
		d = 10 * time.Millisecond
	}
	return d
}

func (w *Watcher) accepts(path string) bool {
	if w.Filter != nil {
		return w.Filter(path)
	}
	return config.IsVerilogFile(path)
}

func (w *Watcher) handleEvent(event fsnotify.Event) {
	if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Write) &&
		!event.Has(fsnotify.Remove) && !event.Has(fsnotify.Rename) {
		return
	}

	if event.Has(fsnotify.Create) {
		if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
			if err := w.addTree(event.Name, true); err != nil {
				w.logger.Warn("watching new directory", zap.String("dir", event.Name), zap.Error(err))
			}
			return
		}
	}

	if !w.accepts(event.Name) {
		return
	}
	w.logger.Debug("source event", zap.String("file", event.Name), zap.String("op", event.Op.String()))
	w.mark(event.Name)
}

func (w *Watcher) mark(path string) {
	w.mu.Lock()
	w.debounceMap[path] = time.Now()
	w.mu.Unlock()
}

// addTree watches dir and its subdirectories. When enqueue is set, files
// already present are reported too, since they may have been written before
// the watch was in place.
func (w *Watcher) addTree(dir string, enqueue bool) error {
	return filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if path == dir {
				return err
			}
			return nil
		}
		if d.IsDir() {
			if path != dir && strings.HasPrefix(d.Name(), ".") {
				return filepath.SkipDir
			}
			return w.watcher.Add(path)
		}
		if enqueue && w.accepts(path) {
			w.mark(path)
		}
		return nil
	})
}

// processDebounced hands settled files to the handler in one batch
func (w *Watcher) processDebounced(ctx context.Context) {
	w.mu.Lock()
	now := time.Now()
	var settled []string
	for path, at := range w.debounceMap {
		if now.Sub(at) >= w.debounce() {
			settled = append(settled, path)
			delete(w.debounceMap, path)
		}
	}
	w.mu.Unlock()

	var files []string
	for _, path := range settled {
		if _, err := os.Stat(path); err != nil {
			w.logger.Debug("source removed", zap.String("file", path))
			continue
		}
		files = append(files, path)
	}
	if len(files) == 0 {
		return
	}
	sort.Strings(files)
	w.onChange(ctx, files)
}
