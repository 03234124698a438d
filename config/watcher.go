package config

import (
	"context"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

const (
	// settleTime lets an editor finish writing before the file is re-read.
	settleTime = time.Second / 10
	retryDelay = time.Second
)

// Watcher keeps the latest valid configuration from a file and reloads it
// whenever the file changes.
type Watcher struct {
	path     string
	log      log.FieldLogger
	onChange func(*Config)

	mu      sync.RWMutex
	current *Config
}

// Watch loads path and keeps reloading it until ctx is done. onChange, if
// not nil, is called from the watch goroutine with each newly loaded config.
// An invalid file is logged and the previous config kept.
func Watch(ctx context.Context, path string, logger log.FieldLogger, onChange func(*Config)) (*Watcher, error) {
	if logger == nil {
		logger = log.StandardLogger()
	}
	config, err := FromFile(path, logger)
	if err != nil {
		return nil, err
	}
	w := &Watcher{
		path:     path,
		log:      logger,
		onChange: onChange,
		current:  config,
	}
	go w.loop(ctx)
	return w, nil
}

func (w *Watcher) Get() *Config {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.current
}

func (w *Watcher) loop(ctx context.Context) {
	for ctx.Err() == nil {
		if err := waitForChange(ctx, w.path); err != nil {
			if ctx.Err() != nil {
				return
			}
			w.log.Errorf("Error waiting for file change: %v", err)
			select {
			case <-ctx.Done():
				return
			case <-time.After(retryDelay):
			}
			continue
		}

		config, err := FromFile(w.path, w.log)
		if err != nil {
			w.log.Errorf("Failed to load new config: %v", err)
			continue
		}
		w.mu.Lock()
		w.current = config
		w.mu.Unlock()

		if w.onChange != nil {
			w.onChange(config)
		}
	}
}

// waitForChange blocks until path is written, renamed or removed, then
// waits settleTime. A new watch is set up each time so that files replaced by
// editors are picked up.
func waitForChange(ctx context.Context, path string) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return errors.Wrap(err, "create watcher")
	}
	defer watcher.Close()
	if err := watcher.Add(path); err != nil {
		return errors.Wrapf(err, "watch %s", path)
	}
	for done := false; !done; {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case err := <-watcher.Errors:
			return err
		case e := <-watcher.Events:
			done = e.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename|fsnotify.Remove) != 0
		}
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(settleTime):
	}
	return ctx.Err()
}
