package audit

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/zackproser/portfolio-sub002/loader"
	"github.com/zackproser/portfolio-sub002/manifest"
)

const defaultConcurrency = 8

// Runner validates many manifests concurrently.
type Runner struct {
	loader      *loader.Loader
	concurrency int
	logger      *zap.Logger
	now         func() time.Time
	newID       func() string
}

// RunnerOption configures a Runner.
type RunnerOption func(*Runner)

// WithConcurrency bounds the number of manifests validated at once.
func WithConcurrency(n int) RunnerOption {
	return func(r *Runner) {
		if n > 0 {
			r.concurrency = n
		}
	}
}

// WithRunnerLogger sets the logger.
func WithRunnerLogger(logger *zap.Logger) RunnerOption {
	return func(r *Runner) {
		if logger != nil {
			r.logger = logger.Named("audit")
		}
	}
}

// NewRunner creates a runner that validates through l.
func NewRunner(l *loader.Loader, opts ...RunnerOption) *Runner {
	r := &Runner{
		loader:      l,
		concurrency: defaultConcurrency,
		logger:      zap.NewNop(),
		now:         func() time.Time { return time.Now().UTC() },
		newID:       uuid.NewString,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run validates every manifest in category; an empty category means all.
func (r *Runner) Run(ctx context.Context, category manifest.Category) (*Report, error) {
	slugs, err := r.loader.Provider().List(ctx, category)
	if err != nil {
		return nil, fmt.Errorf("listing manifests: %w", err)
	}
	return r.RunSlugs(ctx, category, slugs)
}

// RunSlugs validates the named manifests. Results keep the order of slugs.
// Only cancellation of ctx fails the run; invalid manifests are results.
func (r *Runner) RunSlugs(ctx context.Context, category manifest.Category, slugs []string) (*Report, error) {
	report := &Report{
		RunID:     r.newID(),
		Category:  category,
		StartedAt: r.now(),
		Results:   make([]Result, len(slugs)),
	}
	r.logger.Debug("audit started",
		zap.String("run_id", report.RunID),
		zap.Int("manifests", len(slugs)),
		zap.Int("concurrency", r.concurrency),
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.concurrency)
	for i, slug := range slugs {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			start := time.Now()
			m, err := r.loader.Load(gctx, slug)
			report.Results[i] = NewResult(slug, m, err, time.Since(start))
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("audit %s: %w", report.RunID, err)
	}
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("audit %s: %w", report.RunID, err)
	}

	report.FinishedAt = r.now()
	counts := report.Counts()
	r.logger.Info("audit finished",
		zap.String("run_id", report.RunID),
		zap.Int("total", counts.Total),
		zap.Int("valid", counts.Valid),
		zap.String("summary", counts.Summary()),
	)
	return report, nil
}
