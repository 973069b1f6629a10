// Package watch monitors a directory and reports log files once they stop
// growing, so in-progress files are never picked up mid-write.
package watch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

const (
	defaultSettle = 2 * time.Second
	defaultExt    = ".log"

	// sweepInterval is how often the pending set is checked for files whose
	// settle window has elapsed.
	sweepInterval = 500 * time.Millisecond
)

// Config describes what to watch and what to do with stable files.
type Config struct {
	// Dir is the directory to watch. Subdirectories are not followed.
	Dir string
	// Ext filters by file extension, dot included. Empty means ".log".
	Ext string
	// Settle is how long a file must go without events before it counts as
	// complete. Zero or negative means 2s.
	Settle time.Duration
	// MinSize drops files at or below this many bytes before they reach the
	// callback.
	MinSize int64
	// OnStable is called with the path of each file that settled. It runs on
	// the watch loop goroutine, so a slow callback delays later files, never
	// loses them.
	OnStable func(path string)
	// Logger receives operational messages; nil means slog.Default().
	Logger *slog.Logger
}

// Watcher tracks recently changed files and emits them once quiet.
type Watcher struct {
	dir      string
	ext      string
	settle   time.Duration
	minSize  int64
	onStable func(string)
	log      *slog.Logger

	fw *fsnotify.Watcher

	mu      sync.Mutex
	pending map[string]time.Time
}

// New validates cfg and prepares a watcher. Run starts it.
func New(cfg Config) (*Watcher, error) {
	if cfg.OnStable == nil {
		return nil, errors.New("watch: OnStable callback is required")
	}
	info, err := os.Stat(cfg.Dir)
	if err != nil {
		return nil, fmt.Errorf("watch: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("watch: %s is not a directory", cfg.Dir)
	}

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("watch: %w", err)
	}

	w := &Watcher{
		dir:      cfg.Dir,
		ext:      cfg.Ext,
		settle:   cfg.Settle,
		minSize:  cfg.MinSize,
		onStable: cfg.OnStable,
		log:      cfg.Logger,
		fw:       fw,
		pending:  make(map[string]time.Time),
	}
	if w.ext == "" {
		w.ext = defaultExt
	}
	if w.settle <= 0 {
		w.settle = defaultSettle
	}
	if w.log == nil {
		w.log = slog.Default()
	}
	return w, nil
}

// Run watches until ctx is canceled. Files already present at startup are
// treated as freshly changed, so a directory of finished logs drains after
// one settle window.
func (w *Watcher) Run(ctx context.Context) error {
	defer w.fw.Close()

	if err := w.fw.Add(w.dir); err != nil {
		return fmt.Errorf("watch: %w", err)
	}
	w.scanExisting()

	ticker := time.NewTicker(sweepInterval)
	defer ticker.Stop()

	w.log.Info("watching directory",
		slog.String("dir", w.dir),
		slog.String("ext", w.ext),
		slog.Duration("settle", w.settle),
	)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case ev, ok := <-w.fw.Events:
			if !ok {
				return nil
			}
			switch {
			case ev.Op&(fsnotify.Create|fsnotify.Write) != 0:
				w.mark(ev.Name, time.Now())
			case ev.Op&(fsnotify.Remove|fsnotify.Rename) != 0:
				w.forget(ev.Name)
			}

		case err, ok := <-w.fw.Errors:
			if !ok {
				return nil
			}
			w.log.Warn("watch error", slog.Any("err", err))

		case <-ticker.C:
			for _, path := range w.takeStable(time.Now()) {
				w.onStable(path)
			}
		}
	}
}

// Close releases the underlying notifier. Run returns once its event channel
// closes.
func (w *Watcher) Close() error {
	return w.fw.Close()
}

func (w *Watcher) scanExisting() {
	entries, err := os.ReadDir(w.dir)
	if err != nil {
		w.log.Warn("initial scan failed", slog.Any("err", err))
		return
	}
	now := time.Now()
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		w.mark(filepath.Join(w.dir, entry.Name()), now)
	}
}

// mark records an event for path at the given time. Files with the wrong
// extension never enter the pending set.
func (w *Watcher) mark(path string, now time.Time) {
	if !strings.EqualFold(filepath.Ext(path), w.ext) {
		return
	}
	w.mu.Lock()
	w.pending[path] = now
	w.mu.Unlock()
}

func (w *Watcher) forget(path string) {
	w.mu.Lock()
	delete(w.pending, path)
	w.mu.Unlock()
}

// takeStable removes and returns the pending paths whose settle window has
// elapsed as of now, dropping any that vanished or are too small to bother
// with. Results are sorted for deterministic delivery order.
func (w *Watcher) takeStable(now time.Time) []string {
	w.mu.Lock()
	var ready []string
	for path, last := range w.pending {
		if now.Sub(last) >= w.settle {
			ready = append(ready, path)
			delete(w.pending, path)
		}
	}
	w.mu.Unlock()

	var out []string
	for _, path := range ready {
		info, err := os.Stat(path)
		if err != nil || info.IsDir() {
			continue
		}
		if info.Size() <= w.minSize {
			continue
		}
		out = append(out, path)
	}
	sort.Strings(out)
	return out
}
