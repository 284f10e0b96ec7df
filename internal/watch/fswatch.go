package watch

import (
	"github.com/fsnotify/fsnotify"
	"github.com/safedep/dry/log"
)

// fsWatcher wraps fsnotify.Watcher, recursively registering every
// directory under each root and forwarding changed absolute paths to a
// single channel the main loop drains. fsnotify is not recursive on Linux
// or macOS, so new directories are added to the watch set as they are
// observed being created.
type fsWatcher struct {
	inner   *fsnotify.Watcher
	events  chan string
	errs    chan error
	done    chan struct{}
	homeDir string
}

func newFSWatcher(roots []string) (*fsWatcher, error) {
	inner, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	w := &fsWatcher{
		inner:  inner,
		events: make(chan string, 256),
		errs:   make(chan error, 16),
		done:   make(chan struct{}),
	}

	for _, root := range roots {
		if err := w.addRecursive(root); err != nil {
			inner.Close()
			return nil, err
		}
	}

	go w.loop()

	return w, nil
}

func (w *fsWatcher) addRecursive(root string) error {
	return walkDirs(root, func(dir string) error {
		if err := w.inner.Add(dir); err != nil {
			log.Debugf("watch: failed to add %s: %v", dir, err)
		}
		return nil
	})
}

func (w *fsWatcher) loop() {
	for {
		select {
		case ev, ok := <-w.inner.Events:
			if !ok {
				return
			}
			if ev.Has(fsnotify.Create) {
				if isDir(ev.Name) {
					_ = w.addRecursive(ev.Name)
				}
			}
			select {
			case w.events <- ev.Name:
			case <-w.done:
				return
			}
		case err, ok := <-w.inner.Errors:
			if !ok {
				return
			}
			select {
			case w.errs <- err:
			case <-w.done:
				return
			}
		case <-w.done:
			return
		}
	}
}

func (w *fsWatcher) close() error {
	close(w.done)
	return w.inner.Close()
}
