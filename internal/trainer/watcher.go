package trainer

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/Iron-Ham/foresight/internal/logging"
)

// DefaultDebounce collapses the burst of events a single upload produces.
const DefaultDebounce = 50 * time.Millisecond

// Watcher trains a model whenever a new blob lands in the write bucket.
// The bucket must live on the OS filesystem.
type Watcher struct {
	trainer  *Trainer
	dir      string
	debounce time.Duration
	logger   *logging.Logger
	watcher  *fsnotify.Watcher

	// onResult is called after every training attempt.
	onResult func(*Result, error)

	mu       sync.Mutex
	started  bool
	stopCh   chan struct{}
	stopOnce sync.Once
	done     chan struct{}
}

// NewWatcher creates a Watcher over dir, the write bucket's directory. The
// directory is created if it does not exist.
func NewWatcher(t *Trainer, dir string, logger *logging.Logger) (*Watcher, error) {
	if logger == nil {
		logger = logging.NopLogger()
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	w := &Watcher{
		trainer:  t,
		dir:      dir,
		debounce: DefaultDebounce,
		logger:   logger.With("component", "trainer_watcher"),
		watcher:  fw,
		stopCh:   make(chan struct{}),
		done:     make(chan struct{}),
	}
	if err := w.watchDirRecursive(dir); err != nil {
		_ = fw.Close()
		return nil, err
	}
	return w, nil
}

// OnResult sets a callback invoked after every training attempt.
func (w *Watcher) OnResult(cb func(*Result, error)) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.onResult = cb
}

// watchDirRecursive adds root and every session directory below it.
func (w *Watcher) watchDirRecursive(root string) error {
	return filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return nil
		}
		if info.IsDir() {
			return w.watcher.Add(path)
		}
		return nil
	})
}

// Start begins watching. Training runs on the watch goroutine with ctx.
func (w *Watcher) Start(ctx context.Context) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.started {
		return
	}
	w.started = true
	go w.watchLoop(ctx)
}

// Stop stops the watcher and waits for the watch goroutine. It is safe to
// call more than once.
func (w *Watcher) Stop() {
	w.stopOnce.Do(func() {
		close(w.stopCh)
		_ = w.watcher.Close()
	})

	w.mu.Lock()
	started := w.started
	w.mu.Unlock()
	if started {
		<-w.done
	}
}

func (w *Watcher) watchLoop(ctx context.Context) {
	defer close(w.done)

	debounceTimer := time.NewTimer(0)
	<-debounceTimer.C

	pending := make(map[string]struct{})

	for {
		select {
		case <-w.stopCh:
			return
		case <-ctx.Done():
			return

		case ev, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			if info, err := os.Stat(ev.Name); err == nil && info.IsDir() {
				// A new session directory; blobs may already be inside.
				_ = w.watchDirRecursive(ev.Name)
				w.collectExisting(ev.Name, pending)
				debounceTimer.Reset(w.debounce)
				continue
			}
			if key, ok := w.blobKey(ev.Name); ok {
				pending[key] = struct{}{}
				debounceTimer.Reset(w.debounce)
			}

		case <-debounceTimer.C:
			keys := pending
			pending = make(map[string]struct{})
			for key := range keys {
				w.train(ctx, key)
			}

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Warn("watch error", "error", err.Error())
		}
	}
}

func (w *Watcher) collectExisting(dir string, pending map[string]struct{}) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return
	}
	for _, e := range entries {
		if key, ok := w.blobKey(filepath.Join(dir, e.Name())); ok {
			pending[key] = struct{}{}
		}
	}
}

// blobKey maps a file path to its bucket key. Only committed JSON blobs
// inside a session directory qualify.
func (w *Watcher) blobKey(path string) (string, bool) {
	if !strings.HasSuffix(path, ".json") {
		return "", false
	}
	rel, err := filepath.Rel(w.dir, path)
	if err != nil || strings.HasPrefix(rel, "..") {
		return "", false
	}
	key := filepath.ToSlash(rel)
	if !strings.Contains(key, "/") {
		return "", false
	}
	return key, true
}

func (w *Watcher) train(ctx context.Context, key string) {
	res, err := w.trainer.TrainBlob(ctx, key)
	if err != nil {
		w.logger.Error("training failed", "blob", key, "error", err.Error())
	}

	w.mu.Lock()
	cb := w.onResult
	w.mu.Unlock()
	if cb != nil {
		cb(res, err)
	}
}
