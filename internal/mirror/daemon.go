package mirror

import (
	"context"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog/log"
)

// DaemonOptions configures a long-running daemon loop on top of Orchestrator.Run.
type DaemonOptions struct {
	Run      Options
	Sel      Selector
	Interval time.Duration // how often to tick even without a config change
	RunOnce  bool
}

// configWatchDebounce matches the teacher's WatchConfig debounce window
// (internal/core/watch_service.go), so a config file written in several
// small writes (most editors) only triggers one extra run.
const configWatchDebounce = 1 * time.Second

// RunDaemon drives repeated Orchestrator.Run calls: once immediately,
// then on a fixed interval, plus an out-of-band immediate run whenever
// the config file changes on disk, debounced the way the teacher's
// config watcher debounces rapid edits. It returns when ctx is
// cancelled, or after the first run if opts.RunOnce.
func RunDaemon(ctx context.Context, o *Orchestrator, opts DaemonOptions) (RunResult, error) {
	runOpts := opts.Run
	runOpts.Daemon = true

	result, err := o.Run(ctx, opts.Sel, runOpts)
	if err != nil || opts.RunOnce {
		return result, err
	}

	interval := opts.Interval
	if interval <= 0 {
		interval = time.Hour
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	trigger := make(chan struct{}, 1)
	if watcher, werr := newConfigWatcher(o.Config.Path(), trigger); werr == nil {
		defer watcher.Close()
	} else {
		log.Warn().Err(werr).Msg("config file watcher unavailable, daemon will only run on its interval")
	}

	for {
		select {
		case <-ctx.Done():
			return result, nil
		case <-ticker.C:
			result, err = o.Run(ctx, opts.Sel, runOpts)
			if err != nil {
				return result, err
			}
		case <-trigger:
			log.Info().Msg("config file changed, running out of schedule")
			result, err = o.Run(ctx, opts.Sel, runOpts)
			if err != nil {
				return result, err
			}
		}
	}
}

// configWatcher wraps fsnotify.Watcher with the debounce-then-signal
// behavior the teacher's WatchConfig implements inline.
type configWatcher struct {
	w *fsnotify.Watcher
}

func newConfigWatcher(configPath string, trigger chan<- struct{}) (*configWatcher, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := w.Add(configPath); err != nil {
		w.Close()
		return nil, err
	}
	// Also watch the directory: editors often replace the file via
	// rename rather than in-place write, which drops the direct watch.
	if err := w.Add(filepath.Dir(configPath)); err != nil {
		w.Close()
		return nil, err
	}

	go func() {
		var debounce *time.Timer
		for {
			select {
			case event, ok := <-w.Events:
				if !ok {
					return
				}
				if event.Name != configPath {
					continue
				}
				if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
					continue
				}
				if debounce != nil {
					debounce.Stop()
				}
				debounce = time.AfterFunc(configWatchDebounce, func() {
					select {
					case trigger <- struct{}{}:
					default:
					}
				})
			case werr, ok := <-w.Errors:
				if !ok {
					return
				}
				log.Warn().Err(werr).Msg("config watcher error")
			}
		}
	}()

	return &configWatcher{w: w}, nil
}

func (c *configWatcher) Close() error {
	return c.w.Close()
}
