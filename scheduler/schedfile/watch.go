package schedfile

import (
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"github.com/teranos/nightshift/errors"
	"github.com/teranos/nightshift/logger"
)

// Watcher reloads a schedule list when it changes on disk and hands the
// result to a callback. Parse failures are logged and the callback is not
// called, so the previous schedule stays in effect.
type Watcher struct {
	path     string
	loc      *time.Location
	onChange func(*Schedule)
	watcher  *fsnotify.Watcher
	log      *zap.SugaredLogger

	mu       sync.Mutex
	debounce time.Duration
	timer    *time.Timer
	done     chan struct{}
}

// NewWatcher watches path. onChange runs on a timer goroutine.
func NewWatcher(path string, loc *time.Location, onChange func(*Schedule), log *zap.SugaredLogger) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, errors.Wrap(err, "failed to create fsnotify watcher")
	}
	// Save replaces the file, so the directory is watched instead of the inode
	if err := fw.Add(filepath.Dir(path)); err != nil {
		fw.Close()
		return nil, errors.Wrapf(err, "failed to watch directory of %s", path)
	}
	return &Watcher{
		path:     path,
		loc:      loc,
		onChange: onChange,
		watcher:  fw,
		log:      logger.AddEvalSymbol(log),
		debounce: 500 * time.Millisecond,
		done:     make(chan struct{}),
	}, nil
}

// Start begins watching.
func (w *Watcher) Start() {
	go w.loop()
}

func (w *Watcher) loop() {
	defer close(w.done)
	for {
		select {
		case ev, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(ev.Name) != filepath.Clean(w.path) {
				continue
			}
			if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) {
				continue
			}
			w.log.Debugw("Schedule file changed", logger.FieldFile, ev.Name, "op", ev.Op.String())
			w.schedule()

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.log.Warnw("Schedule watcher error", logger.FieldError, err)
		}
	}
}

func (w *Watcher) schedule() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.timer != nil {
		w.timer.Stop()
	}
	w.timer = time.AfterFunc(w.debounce, w.reload)
}

func (w *Watcher) reload() {
	s, err := Load(w.path, w.loc)
	if err != nil {
		w.log.Errorw("Schedule reload failed, keeping previous schedule",
			logger.FieldFile, w.path,
			logger.FieldError, err)
		return
	}
	w.log.Infow("Schedule reloaded", logger.FieldFile, w.path, logger.FieldCount, len(s.Jobs))
	w.onChange(s)
}

// Stop stops watching and waits for the event loop to exit.
func (w *Watcher) Stop() error {
	w.mu.Lock()
	if w.timer != nil {
		w.timer.Stop()
	}
	w.mu.Unlock()
	err := w.watcher.Close()
	<-w.done
	return err
}
