package vcs

import (
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/tandemcode/tandem/internal/bus"
	"github.com/tandemcode/tandem/internal/logging"
)

// defaultIgnore are directory names the watcher never descends into.
var defaultIgnore = []string{".git", "node_modules", "vendor", "dist", "build", "target", "__pycache__"}

const debounceWindow = 200 * time.Millisecond

// Watcher announces external file changes in the workspace on the
// event bus, so clients can refresh views the model did not edit.
// Events inside one debounce window coalesce per path.
type Watcher struct {
	watcher *fsnotify.Watcher
	bus     *bus.Bus
	root    string
	ignore  []string

	mu      sync.Mutex
	started bool
	pending map[string]struct{}
	timer   *time.Timer

	stopCh chan struct{}
	doneCh chan struct{}
}

// NewWatcher creates a watcher over root. Extra ignore patterns extend
// the built-in directory blacklist.
func NewWatcher(root string, b *bus.Bus, ignore []string) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	w := &Watcher{
		watcher: fsw,
		bus:     b,
		root:    root,
		ignore:  append(append([]string{}, defaultIgnore...), ignore...),
		pending: make(map[string]struct{}),
		stopCh:  make(chan struct{}),
		doneCh:  make(chan struct{}),
	}
	if err := w.addTree(root); err != nil {
		fsw.Close()
		return nil, err
	}
	return w, nil
}

// Start begins delivering events.
func (w *Watcher) Start() {
	w.mu.Lock()
	if w.started {
		w.mu.Unlock()
		return
	}
	w.started = true
	w.mu.Unlock()
	go w.run()
}

// Stop shuts the watcher down and waits for the delivery loop.
func (w *Watcher) Stop() error {
	select {
	case <-w.stopCh:
	default:
		close(w.stopCh)
	}

	w.mu.Lock()
	started := w.started
	if w.timer != nil {
		w.timer.Stop()
	}
	w.mu.Unlock()

	if started {
		<-w.doneCh
	}
	return w.watcher.Close()
}

func (w *Watcher) run() {
	defer close(w.doneCh)

	for {
		select {
		case <-w.stopCh:
			return
		case ev, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			w.handle(ev)
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			logging.Warn().Err(err).Msg("file watcher error")
		}
	}
}

func (w *Watcher) handle(ev fsnotify.Event) {
	if w.ignored(ev.Name) {
		return
	}

	// New directories join the watch set so nested edits are seen.
	if ev.Op&fsnotify.Create != 0 {
		if info, err := os.Stat(ev.Name); err == nil && info.IsDir() {
			if err := w.addTree(ev.Name); err != nil {
				logging.Warn().Err(err).Str("dir", ev.Name).Msg("could not watch new directory")
			}
			return
		}
	}
	if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) == 0 {
		return
	}

	w.mu.Lock()
	w.pending[ev.Name] = struct{}{}
	if w.timer == nil {
		w.timer = time.AfterFunc(debounceWindow, w.flush)
	} else {
		w.timer.Reset(debounceWindow)
	}
	w.mu.Unlock()
}

// flush publishes one file.edited event per coalesced path.
func (w *Watcher) flush() {
	w.mu.Lock()
	paths := make([]string, 0, len(w.pending))
	for p := range w.pending {
		paths = append(paths, p)
	}
	w.pending = make(map[string]struct{})
	w.mu.Unlock()

	for _, p := range paths {
		w.bus.Publish(bus.Event{Type: bus.FileEdited, Data: bus.FileEditedData{File: p}})
	}
}

// addTree watches dir and every non-ignored directory under it.
func (w *Watcher) addTree(dir string) error {
	return filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if !d.IsDir() {
			return nil
		}
		if path != dir && w.ignored(path) {
			return filepath.SkipDir
		}
		return w.watcher.Add(path)
	})
}

func (w *Watcher) ignored(path string) bool {
	rel, err := filepath.Rel(w.root, path)
	if err != nil {
		return false
	}
	for _, part := range strings.Split(filepath.ToSlash(rel), "/") {
		for _, ig := range w.ignore {
			if part == ig {
				return true
			}
		}
	}
	return false
}
