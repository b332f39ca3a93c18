package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"
	gotel "go.opentelemetry.io/otel"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/zackproser/portfolio-sub002/audit"
	"github.com/zackproser/portfolio-sub002/config"
	"github.com/zackproser/portfolio-sub002/loader"
	factotel "github.com/zackproser/portfolio-sub002/otel"
	"github.com/zackproser/portfolio-sub002/provider"
)

const shutdownTimeout = 5 * time.Second

// env holds what a command needs, built from config and flags.
type env struct {
	cfg      config.Config
	logger   *zap.Logger
	provider provider.Provider
	loader   *loader.Loader
	tracer   trace.Tracer
	metrics  *factotel.AuditMetrics
	closers  []func(context.Context) error
}

func newEnv(cmd *cobra.Command) (*env, error) {
	configPath, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(configPath, cmd.Flags())
	if err != nil {
		return nil, exitError(exitConfig, "%v", err)
	}

	verbose, _ := cmd.Flags().GetBool("verbose")
	quiet, _ := cmd.Flags().GetBool("quiet")
	e := &env{cfg: cfg, logger: newLogger(cmd.ErrOrStderr(), verbose, quiet)}
	e.closers = append(e.closers, func(context.Context) error {
		_ = e.logger.Sync()
		return nil
	})
	e.logger.Debug("configuration resolved",
		zap.String("source", cfg.Source),
		zap.String("provider", cfg.Provider),
		zap.Int("concurrency", cfg.Concurrency),
	)

	p, err := e.openProvider()
	if err != nil {
		e.close()
		return nil, exitError(exitConfig, "opening %s provider: %v", cfg.Provider, err)
	}
	e.provider = p

	if err := e.setupTelemetry(cmd.Context()); err != nil {
		e.close()
		return nil, exitError(exitConfig, "%v", err)
	}

	meter := gotel.Meter("factcheck")
	observer, err := factotel.NewLoadObserver(meter, e.tracer)
	if err != nil {
		e.close()
		return nil, fmt.Errorf("creating load observer: %w", err)
	}
	if e.metrics, err = factotel.NewAuditMetrics(meter); err != nil {
		e.close()
		return nil, fmt.Errorf("creating audit metrics: %w", err)
	}

	e.loader = loader.New(p,
		loader.WithLogger(e.logger),
		loader.WithObserver(observer),
		loader.WithFailFast(cfg.FailFast),
	)
	return e, nil
}

func (e *env) openProvider() (provider.Provider, error) {
	switch e.cfg.Provider {
	case config.ProviderSQLite:
		store, err := openSQLite(e.cfg.SQLitePath)
		if err != nil {
			return nil, err
		}
		e.closers = append(e.closers, func(context.Context) error { return store.Close() })
		return store, nil
	default:
		return provider.NewDir(e.cfg.ManifestsDir), nil
	}
}

func openSQLite(path string) (*provider.SQLite, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("creating %s: %w", filepath.Dir(path), err)
	}
	return provider.NewSQLite(provider.SQLiteConfig{DSN: path})
}

func (e *env) setupTelemetry(ctx context.Context) error {
	if e.cfg.Telemetry.OTLPEndpoint == "" {
		return nil
	}
	tp, err := factotel.NewTracerProvider(ctx, factotel.TracingConfig{
		Endpoint:    e.cfg.Telemetry.OTLPEndpoint,
		ServiceName: e.cfg.Telemetry.ServiceName,
	})
	if err != nil {
		return err
	}
	e.tracer = tp.Tracer("github.com/zackproser/portfolio-sub002")
	e.closers = append(e.closers, shutdownTracer(tp))
	return nil
}

func shutdownTracer(tp *sdktrace.TracerProvider) func(context.Context) error {
	return func(ctx context.Context) error {
		ctx, cancel := context.WithTimeout(ctx, shutdownTimeout)
		defer cancel()
		return tp.Shutdown(ctx)
	}
}

// history opens the audit run store beside the SQLite manifest store.
func (e *env) history() (*audit.SQLiteStore, error) {
	path := e.cfg.HistoryPath()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("creating %s: %w", filepath.Dir(path), err)
	}
	store, err := audit.NewSQLiteStore(audit.StoreConfig{DSN: path})
	if err != nil {
		return nil, err
	}
	e.closers = append(e.closers, func(context.Context) error { return store.Close() })
	return store, nil
}

func (e *env) runner() *audit.Runner {
	return audit.NewRunner(e.loader,
		audit.WithConcurrency(e.cfg.Concurrency),
		audit.WithRunnerLogger(e.logger),
	)
}

// close releases resources in reverse order of acquisition.
func (e *env) close() {
	ctx := context.Background()
	var errs []error
	for i := len(e.closers) - 1; i >= 0; i-- {
		if err := e.closers[i](ctx); err != nil {
			errs = append(errs, err)
		}
	}
	if err := errors.Join(errs...); err != nil {
		e.logger.Warn("shutdown incomplete", zap.Error(err))
	}
}

// newLogger writes human-readable logs to w: debug and caller info when
// verbose, errors only when quiet, warnings otherwise.
func newLogger(w io.Writer, verbose, quiet bool) *zap.Logger {
	cfg := zap.NewDevelopmentConfig()
	cfg.EncoderConfig.TimeKey = ""
	level := zapcore.WarnLevel
	switch {
	case verbose:
		level = zapcore.DebugLevel
	case quiet:
		level = zapcore.ErrorLevel
	}
	core := zapcore.NewCore(
		zapcore.NewConsoleEncoder(cfg.EncoderConfig),
		zapcore.AddSync(w),
		zap.NewAtomicLevelAt(level),
	)
	if verbose {
		return zap.New(core, zap.AddCaller())
	}
	return zap.New(core)
}
