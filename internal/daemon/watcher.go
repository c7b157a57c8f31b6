package daemon

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"github.com/1broseidon/winrules/internal/config"
)

const watchDebounce = 250 * time.Millisecond

// ConfigWatcher reports changes to the config file and the files it
// includes.
type ConfigWatcher struct {
	watcher  *fsnotify.Watcher
	targets  map[string]struct{}
	debounce time.Duration
	logger   *zap.Logger
}

// NewConfigWatcher watches files. Their directories are watched too so that
// editors that replace files by rename are still noticed.
func NewConfigWatcher(files []string, logger *zap.Logger) (*ConfigWatcher, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("watch config: %w", err)
	}

	cw := &ConfigWatcher{
		watcher:  w,
		targets:  make(map[string]struct{}, len(files)),
		debounce: watchDebounce,
		logger:   logger,
	}
	dirs := make(map[string]struct{})
	for _, f := range files {
		full, err := filepath.Abs(f)
		if err != nil {
			w.Close()
			return nil, fmt.Errorf("resolve config path: %w", err)
		}
		full = filepath.Clean(full)
		cw.targets[full] = struct{}{}
		dirs[filepath.Dir(full)] = struct{}{}
	}
	for dir := range dirs {
		if err := w.Add(dir); err != nil {
			w.Close()
			return nil, fmt.Errorf("watch config dir: %w", err)
		}
	}
	return cw, nil
}

// Run forwards a reason string to requests after each burst of changes.
// It blocks until ctx is cancelled or the watcher is closed.
func (cw *ConfigWatcher) Run(ctx context.Context, requests chan<- string) {
	defer cw.watcher.Close()

	var (
		timer   *time.Timer
		timerCh <-chan time.Time
	)
	for {
		select {
		case <-ctx.Done():
			if timer != nil {
				timer.Stop()
			}
			return
		case ev, ok := <-cw.watcher.Events:
			if !ok {
				return
			}
			if _, watched := cw.targets[filepath.Clean(ev.Name)]; !watched {
				continue
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			if timer == nil {
				timer = time.NewTimer(cw.debounce)
				timerCh = timer.C
			} else {
				if !timer.Stop() {
					<-timerCh
				}
				timer.Reset(cw.debounce)
			}
		case <-timerCh:
			timer = nil
			timerCh = nil
			select {
			case requests <- "config file updated":
			default:
			}
		case err, ok := <-cw.watcher.Errors:
			if !ok {
				return
			}
			cw.logger.Warn("config watcher error", zap.Error(err))
		}
	}
}

// startWatcher watches the loaded config files and reloads on change.
func (d *Daemon) startWatcher(ctx context.Context) error {
	files := []string{d.path}
	if res, err := config.LoadFromPath(d.path); err == nil && len(res.Files) > 0 {
		files = res.Files
	}
	cw, err := NewConfigWatcher(files, d.logger.Named("watcher"))
	if err != nil {
		return err
	}

	requests := make(chan string, 1)
	d.goRun(func() { cw.Run(ctx, requests) })
	d.goRun(func() {
		for {
			select {
			case <-ctx.Done():
				return
			case reason := <-requests:
				d.logger.Info("reloading rules", zap.String("reason", reason))
				_, _ = d.Reload()
			}
		}
	})
	return nil
}
