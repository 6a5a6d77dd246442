package config

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
	"github.com/sirupsen/logrus"
)

// Watcher reloads the config file when it changes on disk
type Watcher struct {
	path    string
	watcher *fsnotify.Watcher
	log     *logrus.Logger
}

// NewWatcher starts watching path. The parent directory is watched so
// editors that replace the file are picked up.
func NewWatcher(path string, log *logrus.Logger) (*Watcher, error) {
	if log == nil {
		log = logrus.New()
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve config path: %w", err)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create watcher: %w", err)
	}
	if err := watcher.Add(filepath.Dir(abs)); err != nil {
		watcher.Close()
		return nil, fmt.Errorf("failed to watch %s: %w", filepath.Dir(abs), err)
	}

	return &Watcher{path: abs, watcher: watcher, log: log}, nil
}

// Run calls onChange with every successfully reloaded configuration until
// ctx is canceled. Invalid files are logged and skipped.
func (w *Watcher) Run(ctx context.Context, onChange func(*Config)) error {
	defer w.watcher.Close()

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-w.watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != w.path {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}

			cfg, err := Load(w.path)
			if err != nil {
				w.log.WithError(err).WithField("path", w.path).Warn("ignoring invalid config change")
				continue
			}
			w.log.WithField("path", w.path).Info("configuration reloaded")
			onChange(cfg)

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return nil
			}
			w.log.WithError(err).Error("config watcher error")
		}
	}
}

// ApplyLogLevel sets log to the level in cfg
func ApplyLogLevel(log *logrus.Logger, cfg *Config) error {
	lvl, err := logrus.ParseLevel(cfg.Log.Level)
	if err != nil {
		return fmt.Errorf("invalid log level %q: %w", cfg.Log.Level, err)
	}
	if log.GetLevel() != lvl {
		log.SetLevel(lvl)
	}
	return nil
}
