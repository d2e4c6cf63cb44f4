// Package watch invokes a callback when the schema file on disk changes. Modeled on the teacher's cli/internal/watch package, which
// watched .prisma sources for the generator; same fsnotify-driven shape,
// retargeted at a single schema file instead of a source tree.
package watch

import (
	"github.com/fsnotify/fsnotify"
)

// Watcher watches one schema file and invokes onChange whenever it's
// written or created.
type Watcher struct {
	fsw *fsnotify.Watcher
}

// New starts watching path, calling onChange on every write or create event.
func New(path string, onChange func()) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := fsw.Add(path); err != nil {
		fsw.Close()
		return nil, err
	}

	go func() {
		for {
			select {
			case event, ok := <-fsw.Events:
				if !ok {
					return
				}
				if event.Op&(fsnotify.Write|fsnotify.Create) != 0 {
					onChange()
				}
			case _, ok := <-fsw.Errors:
				if !ok {
					return
				}
			}
		}
	}()

	return &Watcher{fsw: fsw}, nil
}

// Close stops watching.
func (w *Watcher) Close() error {
	return w.fsw.Close()
}
