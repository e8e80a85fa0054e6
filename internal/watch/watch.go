package watch

import (
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Options configures a Watcher.
type Options struct {
	// Paths are watched directly. Recursive adds every directory below them,
	// including directories created later.
	Paths     []string
	Recursive bool
	// Debounce is the quiet period after the last relevant event before
	// OnChange runs.
	Debounce time.Duration
	// Relevant filters events; nil accepts Create, Write, Remove and Rename.
	Relevant func(fsnotify.Event) bool
	OnChange func()
	Logger   *log.Logger
}

// Watcher coalesces bursts of file-system events into single OnChange calls.
type Watcher struct {
	opts    Options
	watcher *fsnotify.Watcher
	logger  *log.Logger

	timerMu sync.Mutex
	timer   *time.Timer

	done      chan struct{}
	wg        sync.WaitGroup
	closeOnce sync.Once
	closeErr  error
}

const changeOps = fsnotify.Create | fsnotify.Write | fsnotify.Remove | fsnotify.Rename

// New starts watching. Paths that cannot be watched are logged and skipped.
func New(opts Options) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	logger := opts.Logger
	if logger == nil {
		logger = log.Default()
	}

	w := &Watcher{
		opts:    opts,
		watcher: fw,
		logger:  logger,
		done:    make(chan struct{}),
	}

	for _, p := range opts.Paths {
		if opts.Recursive {
			w.addRecursive(p)
			continue
		}
		if err := fw.Add(p); err != nil {
			w.logger.Printf("watcher add failure for %s: %v", p, err)
		}
	}

	w.wg.Add(1)
	go w.run()

	return w, nil
}

// Close stops watching and cancels any pending OnChange.
func (w *Watcher) Close() error {
	w.closeOnce.Do(func() {
		close(w.done)

		w.timerMu.Lock()
		if w.timer != nil {
			w.timer.Stop()
			w.timer = nil
		}
		w.timerMu.Unlock()

		w.closeErr = w.watcher.Close()
		w.wg.Wait()
	})
	return w.closeErr
}

func (w *Watcher) run() {
	defer w.wg.Done()

	for {
		select {
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			w.handle(event)
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Printf("watcher error: %v", err)
		case <-w.done:
			return
		}
	}
}

func (w *Watcher) handle(event fsnotify.Event) {
	if w.opts.Recursive && event.Op&fsnotify.Create == fsnotify.Create {
		if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
			w.addRecursive(event.Name)
		}
	}

	if event.Op&changeOps == 0 {
		return
	}
	if w.opts.Relevant != nil && !w.opts.Relevant(event) {
		return
	}
	w.schedule()
}

func (w *Watcher) schedule() {
	select {
	case <-w.done:
		return
	default:
	}

	w.timerMu.Lock()
	defer w.timerMu.Unlock()

	if w.timer != nil {
		w.timer.Stop()
	}

	var timer *time.Timer
	timer = time.AfterFunc(w.opts.Debounce, func() {
		select {
		case <-w.done:
			return
		default:
		}
		if w.opts.OnChange != nil {
			w.opts.OnChange()
		}

		w.timerMu.Lock()
		if w.timer == timer {
			w.timer = nil
		}
		w.timerMu.Unlock()
	})
	w.timer = timer
}

func (w *Watcher) addRecursive(path string) {
	filepath.WalkDir(path, func(p string, d os.DirEntry, err error) error {
		if err != nil {
			w.logger.Printf("walk error for %s: %v", p, err)
			return nil
		}
		if d.IsDir() {
			if err := w.watcher.Add(p); err != nil {
				w.logger.Printf("watcher add failure for %s: %v", p, err)
			}
		}
		return nil
	})
}
