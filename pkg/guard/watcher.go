package guard

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/platinummonkey/tenantgate/pkg/observability"
)

// Watcher reloads a guard's policy set when its file changes. The parent
// directory is watched so editors that replace the file by rename are seen.
type Watcher struct {
	guard    *Guard
	path     string
	logger   *observability.Logger
	metrics  *observability.Metrics
	debounce time.Duration
	watcher  *fsnotify.Watcher
}

// NewWatcher starts watching path for the guard. Call Run to process events.
func NewWatcher(g *Guard, path string, logger *observability.Logger, metrics *observability.Metrics) (*Watcher, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve policy path: %w", err)
	}

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create watcher: %w", err)
	}
	if err := fw.Add(filepath.Dir(abs)); err != nil {
		fw.Close()
		return nil, fmt.Errorf("failed to watch %s: %w", filepath.Dir(abs), err)
	}

	if logger == nil {
		logger = observability.NopLogger()
	}
	return &Watcher{
		guard:    g,
		path:     abs,
		logger:   logger.WithField("policy_file", abs),
		metrics:  metrics,
		debounce: 200 * time.Millisecond,
		watcher:  fw,
	}, nil
}

// Run processes file events until ctx is done
func (w *Watcher) Run(ctx context.Context) {
	defer w.watcher.Close()

	var (
		timer  *time.Timer
		reload <-chan time.Time
	)
	for {
		select {
		case <-ctx.Done():
			if timer != nil {
				timer.Stop()
			}
			return

		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != w.path {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			if timer == nil {
				timer = time.NewTimer(w.debounce)
			} else {
				timer.Reset(w.debounce)
			}
			reload = timer.C

		case <-reload:
			reload = nil
			w.Reload()

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.WithError(err).Warn("Policy watcher error")
		}
	}
}

// Reload reads the file and swaps it into the guard. A bad file keeps the
// current policy set.
func (w *Watcher) Reload() error {
	ps, err := LoadPolicyFile(w.path)
	if err == nil {
		err = w.guard.Replace(ps)
	}
	if err != nil {
		w.count("error")
		w.logger.WithError(err).Error("Policy reload failed, keeping current rules")
		return err
	}

	w.count("success")
	w.logger.WithField("rules", len(ps.Rules)).Info("Route policy reloaded")
	return nil
}

func (w *Watcher) count(status string) {
	if w.metrics != nil {
		w.metrics.PolicyReloadsTotal.WithLabelValues(status).Inc()
	}
}
