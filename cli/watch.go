package cli

import (
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/zackproser/portfolio-sub002/audit"
	"github.com/zackproser/portfolio-sub002/config"
)

// NewWatchCmd creates the "watch" subcommand.
func NewWatchCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Revalidate on a schedule and whenever a manifest file changes",
		Args:  cobra.NoArgs,
		RunE:  runWatch,
	}
	cmd.Flags().String("schedule", config.DefaultSchedule, "Cron schedule for full audits (UTC)")
	cmd.Flags().String("category", "", "Only audit this category on schedule")
	return cmd
}

func runWatch(cmd *cobra.Command, _ []string) error {
	category, err := categoryFlag(cmd)
	if err != nil {
		return err
	}
	e, err := newEnv(cmd)
	if err != nil {
		return err
	}
	defer e.close()

	store, err := e.history()
	if err != nil {
		return exitError(exitFailure, "opening audit history: %v", err)
	}

	ctx := cmd.Context()
	printer := &reportPrinter{w: cmd.OutOrStdout()}
	runner := e.runner()
	scheduler, err := audit.NewScheduler(audit.SchedulerConfig{
		Runner:   runner,
		Store:    store,
		Schedule: e.cfg.Schedule,
		Category: category,
		OnReport: func(r *audit.Report) {
			e.metrics.Record(ctx, r)
			printer.print("scheduled", r)
		},
		Logger: e.logger,
	})
	if err != nil {
		return exitError(exitConfig, "%v", err)
	}

	if _, err := scheduler.RunOnce(ctx); err != nil {
		e.logger.Error("initial audit failed", zap.Error(err))
	}
	if err := scheduler.Start(ctx); err != nil {
		return exitError(exitFailure, "starting scheduler: %v", err)
	}
	defer stopScheduler(scheduler, e.logger)
	e.logger.Info("audits scheduled", zap.String("schedule", e.cfg.Schedule), zap.Time("next", scheduler.Next()))

	if e.cfg.Provider != config.ProviderDir {
		<-ctx.Done()
		return nil
	}
	watcher, err := audit.NewWatcher(audit.WatcherConfig{
		Runner: runner,
		Dir:    e.cfg.ManifestsDir,
		OnReport: func(r *audit.Report) {
			e.metrics.Record(ctx, r)
			printer.print("changed", r)
		},
		Logger: e.logger,
	})
	if err != nil {
		return exitError(exitConfig, "%v", err)
	}
	if err := watcher.Run(ctx); err != nil {
		return exitError(exitFailure, "%v", err)
	}
	return nil
}

// stopScheduler waits for an in-flight audit so its save lands before the
// history store closes. The command context is already canceled here.
func stopScheduler(s *audit.Scheduler, logger *zap.Logger) error {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	err := s.Stop(ctx)
	if err != nil {
		logger.Warn("stopping scheduler", zap.Error(err))
	}
	return err
}

// reportPrinter serialises report output from the scheduler and watcher.
type reportPrinter struct {
	mu sync.Mutex
	w  io.Writer
}

func (p *reportPrinter) print(trigger string, r *audit.Report) {
	p.mu.Lock()
	defer p.mu.Unlock()
	fmt.Fprintf(p.w, "%s %s audit %s: %s\n", r.FinishedAt.Format("2006-01-02T15:04:05Z"), trigger, r.RunID, r.Counts().Summary())
	for _, res := range r.Failed() {
		fmt.Fprintf(p.w, "  FAIL %s [%s]: %s\n", res.Slug, res.Kind, res.Error)
	}
}
