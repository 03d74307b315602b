package sessionstore

import (
	"log"
	"strings"

	"github.com/fsnotify/fsnotify"
)

// Watcher notices session files edited outside the daemon (a user hand-
// editing a JSON file, or a restored backup) and reports which session
// name changed so the server can reload it.
type Watcher struct {
	fsw *fsnotify.Watcher
	log *log.Logger
}

// NewWatcher starts watching dir for session file writes.
func NewWatcher(dir string, logger *log.Logger) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := fsw.Add(dir); err != nil {
		fsw.Close()
		return nil, err
	}
	return &Watcher{fsw: fsw, log: logger}, nil
}

// Run delivers a session name to onChange each time its file is written
// or created, until the watcher is closed. Intended to run in its own
// goroutine; onChange is invoked on that goroutine, so callers that need
// to touch server state should hand off via the event loop's Post.
func (w *Watcher) Run(onChange func(name string)) {
	for {
		select {
		case ev, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			if !strings.HasSuffix(ev.Name, ".json") {
				continue
			}
			base := ev.Name[strings.LastIndex(ev.Name, "/")+1:]
			name := strings.TrimSuffix(base, ".json")
			onChange(name)
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			if w.log != nil {
				w.log.Printf("sessionstore: watch error: %v", err)
			}
		}
	}
}

// Close stops the watcher.
func (w *Watcher) Close() error {
	return w.fsw.Close()
}
