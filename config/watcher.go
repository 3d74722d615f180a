package config

import (
	"context"
	"path/filepath"
	"sync"
	"time"

	"github.com/bep/debounce"
	"github.com/fsnotify/fsnotify"
	"github.com/pkg/errors"
	"go.viam.com/utils"

	"go.viam.com/ackermann/logging"
)

// watchDebounce is how long the file must stay quiet before it is re-read. A single save often
// produces several events.
const watchDebounce = 100 * time.Millisecond

// A Watcher delivers the config file again every time it changes on disk.
type Watcher interface {
	Config() <-chan *Config
	Close(ctx context.Context) error
}

type fsConfigWatcher struct {
	fsWatcher *fsnotify.Watcher
	configCh  chan *Config
	cancel    context.CancelFunc
	wg        sync.WaitGroup
}

// NewWatcher watches the file at path. Changes that fail to parse or validate are logged and
// skipped.
func NewWatcher(ctx context.Context, path string, logger logging.Logger) (Watcher, error) {
	fsWatcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	// Editors replace files on save, so watch the directory and filter by name.
	if err := fsWatcher.Add(filepath.Dir(path)); err != nil {
		utils.UncheckedError(fsWatcher.Close())
		return nil, errors.Wrapf(err, "watching %q", path)
	}
	name := filepath.Clean(path)

	cancelCtx, cancel := context.WithCancel(ctx)
	w := &fsConfigWatcher{fsWatcher: fsWatcher, configCh: make(chan *Config), cancel: cancel}
	changed := make(chan struct{}, 1)
	debounced := debounce.New(watchDebounce)
	notify := func() {
		select {
		case changed <- struct{}{}:
		default:
		}
	}
	w.wg.Add(1)
	utils.ManagedGo(func() {
		for {
			select {
			case <-cancelCtx.Done():
				return
			case err, ok := <-fsWatcher.Errors:
				if !ok {
					return
				}
				logger.Warnw("config watcher error", "error", err)
			case event, ok := <-fsWatcher.Events:
				if !ok {
					return
				}
				if filepath.Clean(event.Name) == name && event.Has(fsnotify.Write|fsnotify.Create) {
					debounced(notify)
				}
			case <-changed:
				cfg, err := Read(cancelCtx, path, logger)
				if err != nil {
					logger.Errorw("error reading changed config", "path", path, "error", err)
					continue
				}
				select {
				case <-cancelCtx.Done():
					return
				case w.configCh <- cfg:
				}
			}
		}
	}, w.wg.Done)
	return w, nil
}

func (w *fsConfigWatcher) Config() <-chan *Config {
	return w.configCh
}

func (w *fsConfigWatcher) Close(ctx context.Context) error {
	w.cancel()
	err := w.fsWatcher.Close()
	w.wg.Wait()
	return err
}
