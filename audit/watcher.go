package audit

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"github.com/zackproser/portfolio-sub002/provider"
)

const defaultDebounce = 200 * time.Millisecond

// WatcherConfig configures a Watcher.
type WatcherConfig struct {
	Runner *Runner
	// Dir is the manifest directory the runner's provider reads from.
	Dir      string
	Debounce time.Duration
	// OnReport receives one report per batch of changed manifests.
	OnReport func(*Report)
	Logger   *zap.Logger
}

// Watcher revalidates manifests as their files change.
type Watcher struct {
	runner   *Runner
	dir      string
	debounce time.Duration
	onReport func(*Report)
	logger   *zap.Logger
}

// NewWatcher creates a watcher over cfg.Dir.
func NewWatcher(cfg WatcherConfig) (*Watcher, error) {
	if cfg.Runner == nil {
		return nil, errors.New("audit watcher runner is nil")
	}
	if cfg.Dir == "" {
		return nil, errors.New("audit watcher dir is required")
	}
	if cfg.Debounce <= 0 {
		cfg.Debounce = defaultDebounce
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	return &Watcher{
		runner:   cfg.Runner,
		dir:      cfg.Dir,
		debounce: cfg.Debounce,
		onReport: cfg.OnReport,
		logger:   cfg.Logger.Named("watcher"),
	}, nil
}

// Run watches until ctx is done. Changes arriving within the debounce window
// are validated together.
func (w *Watcher) Run(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("creating file watcher: %w", err)
	}
	defer watcher.Close()

	if err := watcher.Add(w.dir); err != nil {
		return fmt.Errorf("watching %s: %w", w.dir, err)
	}
	w.logger.Info("watching manifests", zap.String("dir", w.dir))

	var (
		timer   *time.Timer
		pending = map[string]struct{}{}
	)
	for {
		select {
		case <-ctx.Done():
			if timer != nil {
				timer.Stop()
			}
			return nil
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("file watcher error", zap.Error(err))
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			slug, changed := w.classify(event)
			if slug == "" {
				continue
			}
			if !changed {
				delete(pending, slug)
				w.logger.Info("manifest removed", zap.String("slug", slug))
				continue
			}
			pending[slug] = struct{}{}
			if timer == nil {
				timer = time.NewTimer(w.debounce)
				continue
			}
			if !timer.Stop() {
				select {
				case <-timer.C:
				default:
				}
			}
			timer.Reset(w.debounce)
		case <-timerChan(timer):
			timer = nil
			if len(pending) == 0 {
				continue
			}
			slugs := make([]string, 0, len(pending))
			for slug := range pending {
				slugs = append(slugs, slug)
			}
			slices.Sort(slugs)
			clear(pending)
			w.revalidate(ctx, slugs)
		}
	}
}

// classify maps an event to a slug. changed is false for removals.
func (w *Watcher) classify(event fsnotify.Event) (slug string, changed bool) {
	slug, ok := provider.SlugFor(event.Name)
	if !ok {
		return "", false
	}
	switch {
	case event.Op.Has(fsnotify.Remove), event.Op.Has(fsnotify.Rename):
		return slug, false
	case event.Op.Has(fsnotify.Write), event.Op.Has(fsnotify.Create):
		return slug, true
	default:
		return "", false
	}
}

func (w *Watcher) revalidate(ctx context.Context, slugs []string) {
	report, err := w.runner.RunSlugs(ctx, "", slugs)
	if err != nil {
		if ctx.Err() == nil {
			w.logger.Error("revalidation failed", zap.Strings("slugs", slugs), zap.Error(err))
		}
		return
	}
	for _, res := range report.Results {
		if res.OK() {
			w.logger.Info("manifest valid", zap.String("slug", res.Slug))
			continue
		}
		w.logger.Warn("manifest invalid",
			zap.String("slug", res.Slug),
			zap.String("kind", string(res.Kind)),
			zap.String("error", res.Error),
		)
	}
	if w.onReport != nil {
		w.onReport(report)
	}
}

func timerChan(timer *time.Timer) <-chan time.Time {
	if timer == nil {
		return nil
	}
	return timer.C
}
