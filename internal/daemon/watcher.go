package daemon

import (
	"path/filepath"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"

	"github.com/bft-labs/infersock/pkg/log"
)

// endpointWatcher flags the socket for re-creation when its file is removed
// or renamed by someone else. It never touches the socket itself; the event
// loop picks up the flag on its next iteration.
type endpointWatcher struct {
	path    string
	watcher *fsnotify.Watcher
	flag    *atomic.Bool
	logger  log.Logger
	done    chan struct{}
}

func watchEndpoint(path string, flag *atomic.Bool, logger log.Logger) (*endpointWatcher, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := w.Add(filepath.Dir(path)); err != nil {
		w.Close()
		return nil, err
	}

	ew := &endpointWatcher{
		path:    filepath.Clean(path),
		watcher: w,
		flag:    flag,
		logger:  logger,
		done:    make(chan struct{}),
	}
	go ew.loop()
	return ew, nil
}

func (ew *endpointWatcher) loop() {
	defer close(ew.done)
	for {
		select {
		case ev, ok := <-ew.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(ev.Name) != ew.path {
				continue
			}
			if ev.Has(fsnotify.Remove) || ev.Has(fsnotify.Rename) {
				ew.logger.Warn("socket file removed externally", log.String("path", ew.path), log.String("op", ev.Op.String()))
				ew.flag.Store(true)
			}
		case err, ok := <-ew.watcher.Errors:
			if !ok {
				return
			}
			ew.logger.Warn("endpoint watcher error", log.Err(err))
		}
	}
}

func (ew *endpointWatcher) Close() error {
	err := ew.watcher.Close()
	<-ew.done
	return err
}
