package model

import (
	"errors"
	"path/filepath"
	"sync"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"

	"github.com/zeusync/modelsync/internal/core/observability/log"
)

// Watcher reloads a catalog whenever its file changes on disk.
type Watcher struct {
	catalog *Catalog
	path    string
	logger  log.Log
	fs      *fsnotify.Watcher
	reloads atomic.Int64

	done      chan struct{}
	wg        sync.WaitGroup
	closeOnce sync.Once
}

// Watch starts reloading c from path. The parent directory is watched so
// that editors which replace the file on save are noticed too.
func (c *Catalog) Watch(path string, logger log.Log) (*Watcher, error) {
	if logger == nil {
		logger = log.NewNop()
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}
	fsWatch, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err = fsWatch.Add(filepath.Dir(abs)); err != nil {
		_ = fsWatch.Close()
		return nil, err
	}

	w := &Watcher{
		catalog: c,
		path:    abs,
		logger:  logger.With(log.String("component", "catalog_watcher"), log.String("path", abs)),
		fs:      fsWatch,
		done:    make(chan struct{}),
	}
	w.wg.Add(1)
	go w.run()
	return w, nil
}

// Reloads counts successful reloads.
func (w *Watcher) Reloads() int64 {
	return w.reloads.Load()
}

func (w *Watcher) Close() error {
	var err error
	w.closeOnce.Do(func() {
		close(w.done)
		err = w.fs.Close()
		w.wg.Wait()
	})
	return err
}

func (w *Watcher) run() {
	defer w.wg.Done()
	for {
		select {
		case e, ok := <-w.fs.Events:
			if !ok {
				return
			}
			if filepath.Clean(e.Name) != w.path || e.Op&(fsnotify.Create|fsnotify.Write) == 0 {
				continue
			}
			w.reload()
		case err, ok := <-w.fs.Errors:
			if !ok {
				return
			}
			w.logger.Warn("Catalog watch error", log.Error(err))
		case <-w.done:
			return
		}
	}
}

func (w *Watcher) reload() {
	n, err := w.catalog.ReloadFile(w.path)
	switch {
	case err == nil:
		w.reloads.Add(1)
		w.logger.Info("Catalog reloaded", log.Int("models", n))
	case errors.Is(err, ErrInvalidBlueprint):
		w.logger.Warn("Catalog reload rejected", log.Error(err))
	default:
		// Partially written files fail to decode; the next write retries.
		w.logger.Debug("Catalog reload failed", log.Error(err))
	}
}
