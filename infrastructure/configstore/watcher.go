package configstore

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/agilira/argus"
	"github.com/sirupsen/logrus"
)

const DefaultWatchInterval = 2 * time.Second

// ReloadFunc is invoked after the watched file changed on disk.
type ReloadFunc func(ctx context.Context) error

// Watcher polls the snapshot file with argus and triggers a reload on change.
type Watcher struct {
	path    string
	watcher *argus.Watcher
	reload  ReloadFunc

	mu      sync.Mutex
	running bool
}

func NewWatcher(path string, interval time.Duration, reload ReloadFunc) *Watcher {
	if interval <= 0 {
		interval = DefaultWatchInterval
	}
	w := &Watcher{path: path, reload: reload}
	w.watcher = argus.New(argus.Config{
		PollInterval:         interval,
		CacheTTL:             interval / 2,
		MaxWatchedFiles:      1,
		Audit:                argus.AuditConfig{Enabled: false},
		OptimizationStrategy: argus.OptimizationSingleEvent,
		ErrorHandler: func(err error, file string) {
			logrus.WithError(err).Warnf("[CONFIG_STORE] watch error on %s", file)
		},
	})
	return w
}

func (w *Watcher) Start() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.running {
		return nil
	}
	if err := w.watcher.Watch(w.path, w.handle); err != nil {
		return fmt.Errorf("failed to watch %s: %w", w.path, err)
	}
	if err := w.watcher.Start(); err != nil {
		return fmt.Errorf("failed to start watcher: %w", err)
	}
	w.running = true
	logrus.Infof("[CONFIG_STORE] watching %s", w.path)
	return nil
}

func (w *Watcher) Stop() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.running {
		return nil
	}
	w.running = false
	return w.watcher.Stop()
}

func (w *Watcher) handle(event argus.ChangeEvent) {
	if event.IsDelete {
		logrus.Warnf("[CONFIG_STORE] %s was deleted, keeping current configuration", event.Path)
		return
	}
	logrus.WithFields(logrus.Fields{
		"path":     event.Path,
		"size":     event.Size,
		"mod_time": event.ModTime,
	}).Info("[CONFIG_STORE] configuration file changed")

	if err := w.reload(context.Background()); err != nil {
		logrus.WithError(err).Error("[CONFIG_STORE] hot reload rejected")
	}
}
