package workspace

import (
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// registryDebounce matches the debounce window the teacher's own file
// watcher (tui/chat.ExplorerPanel) uses for rapid successive fs events.
const registryDebounce = 100 * time.Millisecond

// RegistryWatcher notifies a caller when another gitgrip process edits a
// main workspace's griptrees.json registry out from under it (a griptree
// registered or unregistered from a concurrent `orchestrate` run). Grounded
// on tui/chat.ExplorerPanel's file watcher: an fsnotify.Watcher drained by a
// single goroutine, events debounced onto a buffered notification channel.
type RegistryWatcher struct {
	mainWorkspace string
	watcher       *fsnotify.Watcher
	Changes       chan struct{}

	mu            sync.Mutex
	debounceTimer *time.Timer
	stop          chan struct{}
}

// WatchRegistry starts watching mainWorkspace's registry directory.
func WatchRegistry(mainWorkspace string) (*RegistryWatcher, error) {
	dir := filepath.Dir(RegistryPath(mainWorkspace))
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, err
	}

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := w.Add(dir); err != nil {
		_ = w.Close()
		return nil, err
	}

	rw := &RegistryWatcher{
		mainWorkspace: mainWorkspace,
		watcher:       w,
		Changes:       make(chan struct{}, 1),
		stop:          make(chan struct{}),
	}
	go rw.loop()
	return rw, nil
}

func (rw *RegistryWatcher) loop() {
	target := filepath.Base(RegistryPath(rw.mainWorkspace))
	for {
		select {
		case <-rw.stop:
			return
		case event, ok := <-rw.watcher.Events:
			if !ok {
				return
			}
			if filepath.Base(event.Name) != target {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) != 0 {
				rw.scheduleNotify()
			}
		case _, ok := <-rw.watcher.Errors:
			if !ok {
				return
			}
		}
	}
}

func (rw *RegistryWatcher) scheduleNotify() {
	rw.mu.Lock()
	defer rw.mu.Unlock()
	if rw.debounceTimer != nil {
		rw.debounceTimer.Stop()
	}
	rw.debounceTimer = time.AfterFunc(registryDebounce, func() {
		select {
		case rw.Changes <- struct{}{}:
		default:
		}
	})
}

// Reload re-reads the registry from disk; call after a receive on Changes.
func (rw *RegistryWatcher) Reload() *Registry {
	return LoadRegistry(rw.mainWorkspace)
}

// Close stops the watch loop and releases the underlying fsnotify watcher.
func (rw *RegistryWatcher) Close() error {
	close(rw.stop)
	return rw.watcher.Close()
}

// Watch starts a RegistryWatcher for this isolator's main workspace.
func (m *MultiRepoIsolator) Watch() (*RegistryWatcher, error) {
	return WatchRegistry(m.mainWorkspace)
}
