package watch

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"golang.org/x/time/rate"
)

// Watcher combines fsnotify events with a periodic full scan of the watch
// root. Events give low latency; the scan pass catches files that were
// dropped while the process was down and files whose stability gate timed
// out earlier. The in-flight set guarantees a path is never handed out
// twice concurrently, and parked paths (unroutable files awaiting a tenant
// map reload) stay untouched until released.
type Watcher struct {
	root         string
	scanInterval time.Duration
	scanLimiter  *rate.Limiter
	observe      func(path string)

	mu       sync.Mutex
	inflight map[string]struct{}
	parked   map[string]struct{}
}

func NewWatcher(root string, scanInterval time.Duration, observe func(path string)) *Watcher {
	if scanInterval <= 0 {
		scanInterval = 30 * time.Second
	}
	return &Watcher{
		root:         root,
		scanInterval: scanInterval,
		scanLimiter:  rate.NewLimiter(rate.Every(scanInterval/2), 1),
		observe:      observe,
		inflight:     make(map[string]struct{}),
		parked:       make(map[string]struct{}),
	}
}

// Run blocks until ctx is done.
func (w *Watcher) Run(ctx context.Context) error {
	notifier, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create fsnotify watcher: %w", err)
	}
	defer notifier.Close()

	if err := notifier.Add(w.root); err != nil {
		return fmt.Errorf("watch %s: %w", w.root, err)
	}

	// Initial pass picks up whatever is already in the root.
	w.scan()

	ticker := time.NewTicker(w.scanInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case event, ok := <-notifier.Events:
			if !ok {
				return nil
			}
			if event.Op.Has(fsnotify.Create) || event.Op.Has(fsnotify.Write) {
				w.tryObserve(event.Name)
			}
		case err, ok := <-notifier.Errors:
			if !ok {
				return nil
			}
			slog.Warn("watcher_error", "error", err)
		case <-ticker.C:
			if w.scanLimiter.Allow() {
				w.scan()
			}
		}
	}
}

func (w *Watcher) scan() {
	entries, err := os.ReadDir(w.root)
	if err != nil {
		slog.Warn("scan_failed", "root", w.root, "error", err)
		return
	}
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		w.tryObserve(filepath.Join(w.root, entry.Name()))
	}
}

func (w *Watcher) tryObserve(path string) {
	name := filepath.Base(path)
	if strings.HasPrefix(name, ".") {
		return
	}
	if info, err := os.Stat(path); err != nil || info.IsDir() {
		return
	}

	w.mu.Lock()
	if _, busy := w.inflight[path]; busy {
		w.mu.Unlock()
		return
	}
	if _, parked := w.parked[path]; parked {
		w.mu.Unlock()
		return
	}
	w.inflight[path] = struct{}{}
	w.mu.Unlock()

	w.observe(path)
}

// Release frees a path so a later scan pass may pick it up again.
func (w *Watcher) Release(path string) {
	w.mu.Lock()
	delete(w.inflight, path)
	w.mu.Unlock()
}

// Park keeps an unroutable path out of circulation until the tenant map is
// reloaded.
func (w *Watcher) Park(path string) {
	w.mu.Lock()
	w.parked[path] = struct{}{}
	delete(w.inflight, path)
	w.mu.Unlock()
}

// ReleaseParked returns all parked paths to circulation; called after a
// tenant map reload.
func (w *Watcher) ReleaseParked() int {
	w.mu.Lock()
	n := len(w.parked)
	w.parked = make(map[string]struct{})
	w.mu.Unlock()
	return n
}
