package vault

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/fsnotify/fsnotify"
)

// Event describes an external change to an entity file, typically a
// hand edit made outside this process.
type Event struct {
	Entity string
	Op     fsnotify.Op
}

// Watcher reports filesystem changes to entity files in a vault. The
// store's own temp files and non-entity files are filtered out.
type Watcher struct {
	fsw  *fsnotify.Watcher
	done chan struct{}
}

// Watch starts watching the vault directory and invokes onEvent for
// every change to an entity file. Note that the vault's own atomic
// writes also surface here as rename/create events.
func (v *Vault) Watch(onEvent func(Event)) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create watcher: %w", err)
	}
	if err := fsw.Add(v.root); err != nil {
		fsw.Close()
		return nil, fmt.Errorf("watch vault dir: %w", err)
	}

	w := &Watcher{fsw: fsw, done: make(chan struct{})}
	go w.run(onEvent)
	return w, nil
}

func (w *Watcher) run(onEvent func(Event)) {
	defer close(w.done)
	for {
		select {
		case ev, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			base := filepath.Base(ev.Name)
			if strings.HasPrefix(base, tempPrefix) || !strings.HasSuffix(base, entityExt) {
				continue
			}
			onEvent(Event{
				Entity: strings.TrimSuffix(base, entityExt),
				Op:     ev.Op,
			})
		case _, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
		}
	}
}

// Close stops the watcher and waits for the event loop to exit.
func (w *Watcher) Close() error {
	err := w.fsw.Close()
	<-w.done
	return err
}
