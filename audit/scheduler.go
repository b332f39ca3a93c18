package audit

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/zackproser/portfolio-sub002/manifest"
)

var standardCronParser = cron.NewParser(
	cron.Minute |
		cron.Hour |
		cron.Dom |
		cron.Month |
		cron.Dow |
		cron.Descriptor,
)

// ParseSchedule parses a five-field cron expression or a descriptor such as
// "@hourly". Schedules always run in UTC.
func ParseSchedule(expr string) (cron.Schedule, error) {
	clean := strings.TrimSpace(expr)
	if clean == "" {
		return nil, errors.New("cron expression is required")
	}

	upper := strings.ToUpper(clean)
	if strings.Contains(upper, "CRON_TZ=") || strings.Contains(upper, "TZ=") {
		return nil, errors.New("cron expression must be UTC-only (timezone prefixes are not allowed)")
	}

	schedule, err := standardCronParser.Parse(clean)
	if err != nil {
		return nil, fmt.Errorf("invalid cron expression: %w", err)
	}
	return schedule, nil
}

// NextRun returns the first activation of expr after now, in UTC.
func NextRun(expr string, now time.Time) (time.Time, error) {
	schedule, err := ParseSchedule(expr)
	if err != nil {
		return time.Time{}, err
	}
	return schedule.Next(now.UTC()), nil
}

// SchedulerConfig configures periodic audits.
type SchedulerConfig struct {
	Runner   *Runner
	Store    Store // optional; reports are saved when set
	Schedule string
	Category manifest.Category
	// OnReport is called after every run, including failed saves.
	OnReport func(*Report)
	Now      func() time.Time
	Logger   *zap.Logger
}

// Scheduler runs audits on a cron schedule.
type Scheduler struct {
	runner   *Runner
	store    Store
	schedule cron.Schedule
	category manifest.Category
	onReport func(*Report)
	now      func() time.Time
	logger   *zap.Logger

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// NewScheduler validates cfg and creates a stopped scheduler.
func NewScheduler(cfg SchedulerConfig) (*Scheduler, error) {
	if cfg.Runner == nil {
		return nil, errors.New("audit scheduler runner is nil")
	}
	schedule, err := ParseSchedule(cfg.Schedule)
	if err != nil {
		return nil, err
	}
	if cfg.Now == nil {
		cfg.Now = func() time.Time { return time.Now().UTC() }
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	return &Scheduler{
		runner:   cfg.Runner,
		store:    cfg.Store,
		schedule: schedule,
		category: cfg.Category,
		onReport: cfg.OnReport,
		now:      cfg.Now,
		logger:   cfg.Logger.Named("scheduler"),
	}, nil
}

// Next returns the next activation after the current time.
func (s *Scheduler) Next() time.Time {
	return s.schedule.Next(s.now().UTC())
}

// Start runs audits in the background until Stop is called. Starting a
// running scheduler is a no-op.
func (s *Scheduler) Start(ctx context.Context) error {
	if s == nil {
		return errors.New("audit scheduler is nil")
	}

	s.mu.Lock()
	if s.cancel != nil {
		s.mu.Unlock()
		return nil
	}
	loopCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	s.cancel = cancel
	s.done = done
	s.mu.Unlock()

	go func() {
		defer close(done)
		for {
			next := s.Next()
			wait := next.Sub(s.now())
			if wait < 0 {
				wait = 0
			}
			s.logger.Debug("next audit scheduled", zap.Time("at", next))

			timer := time.NewTimer(wait)
			select {
			case <-loopCtx.Done():
				timer.Stop()
				return
			case <-timer.C:
				if _, err := s.RunOnce(loopCtx); err != nil && loopCtx.Err() == nil {
					s.logger.Error("scheduled audit failed", zap.Error(err))
				}
			}
		}
	}()
	return nil
}

// Stop halts the background loop and waits for an in-flight run to finish
// or ctx to end.
func (s *Scheduler) Stop(ctx context.Context) error {
	if s == nil {
		return nil
	}

	s.mu.Lock()
	cancel := s.cancel
	done := s.done
	s.cancel = nil
	s.done = nil
	s.mu.Unlock()

	if cancel == nil {
		return nil
	}
	cancel()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// RunOnce performs a single audit and saves it when a store is configured.
func (s *Scheduler) RunOnce(ctx context.Context) (*Report, error) {
	report, err := s.runner.Run(ctx, s.category)
	if err != nil {
		return nil, err
	}

	var saveErr error
	if s.store != nil {
		if saveErr = s.store.Save(ctx, report); saveErr != nil {
			saveErr = fmt.Errorf("saving audit %s: %w", report.RunID, saveErr)
		}
	}
	if s.onReport != nil {
		s.onReport(report)
	}
	return report, saveErr
}
