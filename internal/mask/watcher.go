package mask

import (
	"log"

	"github.com/fsnotify/fsnotify"
)

// Watcher observes a mask file on disk and atomically swaps a Holder's
// active mask whenever the file is rewritten. A malformed replacement is
// rejected and logged; the previous mask stays in effect.
type Watcher struct {
	path    string
	width   int
	height  int
	holder  *Holder
	watcher *fsnotify.Watcher
	stopCh  chan struct{}
}

// NewWatcher creates a Watcher for path, validating future reloads against
// width/height. Call Start to begin watching.
func NewWatcher(path string, width, height int, holder *Holder) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := fw.Add(path); err != nil {
		fw.Close()
		return nil, err
	}
	return &Watcher{
		path:    path,
		width:   width,
		height:  height,
		holder:  holder,
		watcher: fw,
		stopCh:  make(chan struct{}),
	}, nil
}

// Start runs the watch loop in a new goroutine. Stop ends it.
func (w *Watcher) Start() {
	go w.run()
}

func (w *Watcher) run() {
	for {
		select {
		case <-w.stopCh:
			return
		case ev, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			m, err := Load(w.path, w.width, w.height)
			if err != nil {
				log.Printf("[mask] reload of %s rejected: %v (keeping previous mask)", w.path, err)
				continue
			}
			w.holder.Set(m)
			log.Printf("[mask] reloaded %s", w.path)
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			log.Printf("[mask] watch error: %v", err)
		}
	}
}

// Stop ends the watch loop and releases the underlying OS watch.
func (w *Watcher) Stop() {
	close(w.stopCh)
	w.watcher.Close()
}
