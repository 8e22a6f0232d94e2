package repo

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/AlanVerbner/kit/pkg/types"
)

// Watcher keeps an index fresh by re-extracting files as they change on
// disk. Events are debounced so editors that write in bursts trigger one
// refresh. Readers always see a complete snapshot: refreshes build a new
// Index and swap it in atomically.
type Watcher struct {
	repo    *Repository
	watcher *fsnotify.Watcher

	mu  sync.RWMutex
	idx *Index

	pendingMu sync.Mutex
	pending   map[string]time.Time
	debounce  time.Duration

	onRefresh func(paths []string)
}

// NewWatcher creates a watcher serving snapshots starting from idx.
func NewWatcher(r *Repository, idx *Index, debounce time.Duration) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if debounce <= 0 {
		debounce = 500 * time.Millisecond
	}
	return &Watcher{
		repo:     r,
		watcher:  fsw,
		idx:      idx,
		pending:  make(map[string]time.Time),
		debounce: debounce,
	}, nil
}

// OnRefresh registers a callback invoked after each refresh with the paths
// that changed. Consumers use it to drop derived per-file state, such as
// cached search lines. Must be set before Watch starts.
func (w *Watcher) OnRefresh(fn func(paths []string)) {
	w.onRefresh = fn
}

// Index returns the current index snapshot.
func (w *Watcher) Index() *Index {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.idx
}

// Watch blocks processing file events until ctx is cancelled.
func (w *Watcher) Watch(ctx context.Context) error {
	if err := w.addWatchDirs(); err != nil {
		return err
	}
	slog.Info("watching for file changes", "root", w.repo.Root())

	go w.processDebounced(ctx)

	for {
		select {
		case <-ctx.Done():
			slog.Info("stopping watcher")
			return w.watcher.Close()

		case event, ok := <-w.watcher.Events:
			if !ok {
				return nil
			}
			w.handleEvent(event)

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return nil
			}
			slog.Warn("watcher error", "error", err)
		}
	}
}

// Close stops the underlying filesystem watcher.
func (w *Watcher) Close() error {
	return w.watcher.Close()
}

func (w *Watcher) addWatchDirs() error {
	return filepath.WalkDir(w.repo.Root(), func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if !d.IsDir() {
			return nil
		}
		name := d.Name()
		if path != w.repo.Root() {
			if _, skip := skipDirs[name]; skip || strings.HasPrefix(name, ".") {
				return filepath.SkipDir
			}
		}
		if err := w.watcher.Add(path); err != nil {
			slog.Warn("failed to watch directory", "path", path, "error", err)
		}
		return nil
	})
}

func (w *Watcher) handleEvent(event fsnotify.Event) {
	if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Remove) && !event.Has(fsnotify.Rename) {
		return
	}
	rel, err := filepath.Rel(w.repo.Root(), event.Name)
	if err != nil {
		return
	}
	rel = filepath.ToSlash(rel)
	if strings.HasPrefix(filepath.Base(rel), ".") {
		return
	}

	w.pendingMu.Lock()
	w.pending[rel] = time.Now()
	w.pendingMu.Unlock()

	slog.Debug("file changed", "path", rel, "op", event.Op.String())
}

func (w *Watcher) processDebounced(ctx context.Context) {
	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.flushPending(ctx)
		}
	}
}

// flushPending refreshes files whose last event is older than the debounce
// window.
func (w *Watcher) flushPending(ctx context.Context) {
	w.pendingMu.Lock()
	now := time.Now()
	var ready []string
	for path, changedAt := range w.pending {
		if now.Sub(changedAt) >= w.debounce {
			ready = append(ready, path)
			delete(w.pending, path)
		}
	}
	w.pendingMu.Unlock()

	if len(ready) == 0 {
		return
	}
	w.refresh(ctx, ready)
}

// refresh re-extracts the given files against the current snapshot and swaps
// in a new Index. The file tree is re-walked so creations and deletions show
// up; symbols for untouched files carry over unchanged.
func (w *Watcher) refresh(ctx context.Context, paths []string) {
	slog.Info("refreshing changed files", "count", len(paths))

	cur := w.Index()

	entries, err := w.repo.walk()
	if err != nil {
		slog.Warn("refresh walk failed", "error", err)
		return
	}

	next := &Index{
		Root:    cur.Root,
		Files:   entries,
		Symbols: make(map[string][]types.Symbol, len(cur.Symbols)),
	}
	for path, syms := range cur.Symbols {
		next.Symbols[path] = syms
	}
	skips := make(map[string]string, len(cur.Report.Skips))
	for _, s := range cur.Report.Skips {
		skips[s.Path] = s.Reason
	}
	fails := make(map[string]string, len(cur.Report.Failures))
	for _, f := range cur.Report.Failures {
		fails[f.Path] = f.Reason
	}

	present := make(map[string]types.FileInfo, len(entries))
	for _, e := range entries {
		if !e.IsDir {
			present[e.Path] = e
		}
	}

	for _, path := range paths {
		if ctx.Err() != nil {
			return
		}
		delete(next.Symbols, path)
		delete(skips, path)
		delete(fails, path)

		f, ok := present[path]
		if !ok {
			continue // deleted, or a directory event
		}
		res := w.repo.extractOne(ctx, f)
		switch {
		case res.skip != "":
			skips[path] = res.skip
		case res.fail != "":
			fails[path] = res.fail
		default:
			next.Symbols[path] = res.symbols
		}
	}

	// Drop state for files that vanished outside the pending set too.
	for path := range next.Symbols {
		if _, ok := present[path]; !ok {
			delete(next.Symbols, path)
		}
	}

	for path, reason := range skips {
		if _, ok := present[path]; ok {
			next.Report.Skips = append(next.Report.Skips, types.FileFailure{Path: path, Reason: reason})
		}
	}
	for path, reason := range fails {
		if _, ok := present[path]; ok {
			next.Report.Failures = append(next.Report.Failures, types.FileFailure{Path: path, Reason: reason})
		}
	}
	sortFailures(next.Report.Skips)
	sortFailures(next.Report.Failures)
	next.Report.Analyzed = len(next.Symbols)
	next.Report.Skipped = len(next.Report.Skips)
	next.Report.Failed = len(next.Report.Failures)

	w.mu.Lock()
	w.idx = next
	w.mu.Unlock()

	if w.onRefresh != nil {
		w.onRefresh(paths)
	}
}
