package pipeline

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
)

// Submitter queues a rebuild.
type Submitter interface {
	Submit(trigger string, force bool) (*Build, error)
}

// Watcher submits a rebuild whenever the content directory changes. Bursts
// of events are collapsed into one build after a quiet period.
type Watcher struct {
	dir      string
	debounce time.Duration
	builds   Submitter
	log      *slog.Logger

	fsw *fsnotify.Watcher
	wg  sync.WaitGroup
}

// NewWatcher watches dir and every directory below it.
func NewWatcher(dir string, debounce time.Duration, builds Submitter, log *slog.Logger) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("fsnotify: %w", err)
	}
	if err := addDirsRecursive(fsw, dir, log); err != nil {
		_ = fsw.Close()
		return nil, err
	}
	return &Watcher{dir: dir, debounce: debounce, builds: builds, log: log, fsw: fsw}, nil
}

// Run processes events until ctx is done.
func (w *Watcher) Run(ctx context.Context) {
	rebuildReq, trigger, stop := newDebouncer(w.debounce)
	defer stop()

	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		for {
			select {
			case <-ctx.Done():
				return
			case <-rebuildReq:
				if _, err := w.builds.Submit("watch", false); err != nil {
					w.log.Warn("watch rebuild not queued", "error", err)
				}
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			w.wg.Wait()
			return
		case ev, ok := <-w.fsw.Events:
			if !ok {
				w.wg.Wait()
				return
			}
			w.handleEvent(ev, trigger)
		case err, ok := <-w.fsw.Errors:
			if !ok {
				w.wg.Wait()
				return
			}
			w.log.Warn("watch error", "error", err)
		}
	}
}

// Close stops watching.
func (w *Watcher) Close() error {
	return w.fsw.Close()
}

func (w *Watcher) handleEvent(ev fsnotify.Event, trigger func()) {
	if shouldIgnoreEvent(ev.Name) {
		return
	}
	if ev.Op&fsnotify.Create == fsnotify.Create {
		if fi, err := os.Stat(ev.Name); err == nil && fi.IsDir() {
			_ = addDirsRecursive(w.fsw, ev.Name, w.log)
		}
	}
	w.log.Debug("content change detected", "path", ev.Name, "op", ev.Op.String())
	trigger()
}

// newDebouncer returns a channel that receives once per burst of trigger
// calls, delay after the last one.
func newDebouncer(delay time.Duration) (<-chan struct{}, func(), func()) {
	var mu sync.Mutex
	var timer *time.Timer
	req := make(chan struct{}, 1)

	trigger := func() {
		mu.Lock()
		defer mu.Unlock()
		if timer != nil {
			timer.Stop()
		}
		timer = time.AfterFunc(delay, func() {
			select {
			case req <- struct{}{}:
			default:
			}
		})
	}
	stop := func() {
		mu.Lock()
		defer mu.Unlock()
		if timer != nil {
			timer.Stop()
		}
	}
	return req, trigger, stop
}

func addDirsRecursive(w *fsnotify.Watcher, root string, log *slog.Logger) error {
	return filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if d.IsDir() {
			if path != root && strings.HasPrefix(d.Name(), ".") {
				return filepath.SkipDir
			}
			if err := w.Add(path); err != nil {
				log.Warn("watch add failed", "dir", path, "error", err)
			}
		}
		return nil
	})
}

// shouldIgnoreEvent filters hidden files and editor temp files.
func shouldIgnoreEvent(path string) bool {
	base := filepath.Base(path)

	if strings.HasPrefix(base, ".") {
		return true
	}
	if strings.HasSuffix(base, "~") ||
		strings.HasSuffix(base, ".swp") ||
		strings.HasSuffix(base, ".swx") ||
		strings.HasPrefix(base, "#") && strings.HasSuffix(base, "#") {
		return true
	}
	return base == "Thumbs.db"
}
