// Package watch re-runs an action whenever one of a set of query files changes.
package watch

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/sambeau/aql/pkg/aql/logger"
)

// DefaultDebounce is how long a file must stay quiet before its change is reported.
const DefaultDebounce = 100 * time.Millisecond

// Watcher monitors files for changes. Directories are watched rather than
// the files themselves so that editors which save by renaming a new file
// into place are still seen.
type Watcher struct {
	watcher  *fsnotify.Watcher
	files    map[string]bool
	log      logger.Logger
	debounce time.Duration

	mu      sync.Mutex
	pending map[string]*time.Timer
	fire    chan string
	done    chan struct{}
}

// New creates a watcher for the given files.
func New(paths []string, log logger.Logger) (*Watcher, error) {
	if log == nil {
		log = logger.Nop()
	}
	fsWatcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	w := &Watcher{
		watcher:  fsWatcher,
		files:    make(map[string]bool, len(paths)),
		log:      log,
		debounce: DefaultDebounce,
		pending:  make(map[string]*time.Timer),
		fire:     make(chan string),
		done:     make(chan struct{}),
	}

	dirs := make(map[string]bool)
	for _, p := range paths {
		abs, err := filepath.Abs(p)
		if err != nil {
			fsWatcher.Close()
			return nil, fmt.Errorf("resolving %s: %w", p, err)
		}
		w.files[abs] = true
		dirs[filepath.Dir(abs)] = true
	}
	for dir := range dirs {
		if err := fsWatcher.Add(dir); err != nil {
			fsWatcher.Close()
			return nil, fmt.Errorf("watching %s: %w", dir, err)
		}
		log.Debugf("watching %s", dir)
	}
	return w, nil
}

// SetDebounce changes the quiet period. It must be called before Run.
func (w *Watcher) SetDebounce(d time.Duration) {
	w.debounce = d
}

// Run calls onChange with the path of each changed file until ctx is
// cancelled or the watcher is closed. Calls are made one at a time from the
// goroutine running Run. Run may be called only once.
func (w *Watcher) Run(ctx context.Context, onChange func(path string)) error {
	defer w.stopTimers()
	defer close(w.done)

	for {
		select {
		case <-ctx.Done():
			return nil

		case path := <-w.fire:
			onChange(path)

		case event, ok := <-w.watcher.Events:
			if !ok {
				return nil
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}
			path, err := filepath.Abs(event.Name)
			if err != nil || !w.files[path] {
				continue
			}
			w.schedule(path)

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return nil
			}
			w.log.Errorf("watcher error: %v", err)
		}
	}
}

// schedule reports path once it has been quiet for the debounce period.
// A timer that has already fired is left to deliver its report; the new
// change gets a timer of its own.
func (w *Watcher) schedule(path string) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if t, ok := w.pending[path]; ok && t.Stop() {
		t.Reset(w.debounce)
		return
	}

	var t *time.Timer
	t = time.AfterFunc(w.debounce, func() {
		w.mu.Lock()
		if w.pending[path] == t {
			delete(w.pending, path)
		}
		w.mu.Unlock()

		select {
		case w.fire <- path:
		case <-w.done:
		}
	})
	w.pending[path] = t
}

func (w *Watcher) stopTimers() {
	w.mu.Lock()
	defer w.mu.Unlock()
	for path, t := range w.pending {
		t.Stop()
		delete(w.pending, path)
	}
}

// Close stops watching.
func (w *Watcher) Close() error {
	return w.watcher.Close()
}
