package inbox

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// DefaultSettle is how long a file must stay unchanged before it is imported
const DefaultSettle = 500 * time.Millisecond

// Watcher imports files as they appear in a directory
type Watcher struct {
	importer *Importer
	watcher  *fsnotify.Watcher
	settle   time.Duration

	mu     sync.Mutex
	timers map[string]*pending
	wg     sync.WaitGroup
}

// NewWatcher creates a Watcher. Writes to a file restart its settle timer so
// a document still being copied is imported once, after the last write.
func NewWatcher(importer *Importer, settle time.Duration) (*Watcher, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("creating fsnotify watcher: %w", err)
	}
	if settle <= 0 {
		settle = DefaultSettle
	}
	return &Watcher{
		importer: importer,
		watcher:  w,
		settle:   settle,
		timers:   make(map[string]*pending),
	}, nil
}

// Watch blocks until ctx is done, importing new and rewritten files in dir
func (w *Watcher) Watch(ctx context.Context, dir string) error {
	if err := w.watcher.Add(dir); err != nil {
		return fmt.Errorf("watching %s: %w", dir, err)
	}
	slog.Info("Watching inbox", "dir", dir, "settle", w.settle)

	defer w.wg.Wait()
	defer w.stopTimers()

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-w.watcher.Events:
			if !ok {
				return nil
			}
			if !w.importer.accepts(event.Name) {
				continue
			}
			if event.Op&(fsnotify.Create|fsnotify.Write) == 0 {
				continue
			}
			w.schedule(ctx, event.Name)
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return nil
			}
			slog.Warn("Inbox watcher error", "error", err)
		}
	}
}

type pending struct {
	timer *time.Timer
}

func (w *Watcher) schedule(ctx context.Context, path string) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if p, ok := w.timers[path]; ok && p.timer.Stop() {
		p.timer.Reset(w.settle)
		return
	}

	p := &pending{}
	w.wg.Add(1)
	p.timer = time.AfterFunc(w.settle, func() {
		defer w.wg.Done()
		w.mu.Lock()
		if w.timers[path] == p {
			delete(w.timers, path)
		}
		w.mu.Unlock()

		if ctx.Err() != nil {
			return
		}
		outcome, err := w.importer.ImportFile(ctx, path)
		if err != nil {
			slog.Warn("Failed to import eBon", "path", path, "error", err)
			return
		}
		slog.Info("Imported eBon", "path", path, "id", outcome.Bill.ID, "existing", outcome.Existing)
	})
	w.timers[path] = p
}

func (w *Watcher) stopTimers() {
	w.mu.Lock()
	defer w.mu.Unlock()
	for path, p := range w.timers {
		if p.timer.Stop() {
			w.wg.Done()
		}
		delete(w.timers, path)
	}
}

// Close stops the underlying fsnotify watcher
func (w *Watcher) Close() error {
	return w.watcher.Close()
}
