package photos

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// DefaultDebounce is how long a file must stay unchanged before it is
// handed to the callback.
const DefaultDebounce = 500 * time.Millisecond

// HandleFunc receives settled file paths in sorted order.
type HandleFunc func(ctx context.Context, paths []string)

// Watcher reports files created or written below a directory once they have
// been quiet for the debounce period.
type Watcher struct {
	dir      string
	watcher  *fsnotify.Watcher
	filter   func(path string) bool
	debounce time.Duration
	logger   *slog.Logger
	pending  map[string]time.Time

	closeOnce sync.Once
	closeErr  error
}

// WatchOption configures a Watcher.
type WatchOption func(*Watcher)

// WithFilter selects which files are reported. The default is IsImage.
func WithFilter(filter func(path string) bool) WatchOption {
	return func(w *Watcher) {
		if filter != nil {
			w.filter = filter
		}
	}
}

// WithDebounce sets the quiet period.
func WithDebounce(d time.Duration) WatchOption {
	return func(w *Watcher) {
		if d > 0 {
			w.debounce = d
		}
	}
}

// WithWatchLogger sets the watcher logger.
func WithWatchLogger(logger *slog.Logger) WatchOption {
	return func(w *Watcher) {
		if logger != nil {
			w.logger = logger
		}
	}
}

// NewWatcher creates a watcher for dir and its subdirectories.
func NewWatcher(dir string, opts ...WatchOption) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	w := &Watcher{
		dir:      dir,
		watcher:  fw,
		filter:   IsImage,
		debounce: DefaultDebounce,
		logger:   slog.Default(),
		pending:  map[string]time.Time{},
	}
	for _, opt := range opts {
		opt(w)
	}
	return w, nil
}

// Close releases the underlying fsnotify watcher. It is safe to call more
// than once.
func (w *Watcher) Close() error {
	w.closeOnce.Do(func() { w.closeErr = w.watcher.Close() })
	return w.closeErr
}

// Watch blocks until ctx is cancelled, calling handle with settled files.
// The watcher is closed when Watch returns.
func (w *Watcher) Watch(ctx context.Context, handle HandleFunc) error {
	defer w.Close()
	if err := w.addDirs(w.dir); err != nil {
		return err
	}
	w.logger.Info("watching for files", "dir", w.dir)
	tick := w.debounce / 5
	if tick <= 0 {
		tick = time.Millisecond
	}
	ticker := time.NewTicker(tick)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			w.logger.Info("stopping watcher", "dir", w.dir)
			return w.Close()
		case event, ok := <-w.watcher.Events:
			if !ok {
				return nil
			}
			w.handleEvent(event)
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("watcher error", "error", err)
		case now := <-ticker.C:
			if settled := w.settled(now); len(settled) > 0 {
				handle(ctx, settled)
			}
		}
	}
}

func (w *Watcher) addDirs(root string) error {
	return filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			if path == root {
				return err
			}
			return nil
		}
		if !d.IsDir() {
			return nil
		}
		if path != root && strings.HasPrefix(d.Name(), ".") {
			return filepath.SkipDir
		}
		if err := w.watcher.Add(path); err != nil {
			w.logger.Warn("failed to watch directory", "path", path, "error", err)
		}
		return nil
	})
}

func (w *Watcher) handleEvent(event fsnotify.Event) {
	if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Write) {
		return
	}
	if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
		if event.Has(fsnotify.Create) {
			if err := w.addDirs(event.Name); err != nil {
				w.logger.Warn("failed to watch directory", "path", event.Name, "error", err)
			}
		}
		return
	}
	if !w.filter(event.Name) {
		return
	}
	w.pending[event.Name] = time.Now()
	w.logger.Debug("file changed", "path", event.Name, "op", event.Op.String())
}

func (w *Watcher) settled(now time.Time) []string {
	var out []string
	for path, changedAt := range w.pending {
		if now.Sub(changedAt) >= w.debounce {
			out = append(out, path)
			delete(w.pending, path)
		}
	}
	sort.Strings(out)
	return out
}
