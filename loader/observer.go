package loader

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/zackproser/portfolio-sub002/coverage"
	"github.com/zackproser/portfolio-sub002/manifest"
)

// Observation describes one finished load.
type Observation struct {
	Slug     string
	Category manifest.Category // known for valid manifests and facts-stage failures
	Kind     manifest.FailureKind
	Facts    int // fact leaves in a valid manifest
	Duration time.Duration
	Err      error
}

// Success reports whether the load returned a manifest.
func (o Observation) Success() bool {
	return o.Err == nil
}

// Observer receives load outcomes, typically to export telemetry.
type Observer interface {
	ObserveLoad(ctx context.Context, obs Observation)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(ctx context.Context, obs Observation)

func (f ObserverFunc) ObserveLoad(ctx context.Context, obs Observation) {
	f(ctx, obs)
}

func (l *Loader) observe(ctx context.Context, slug string, m *manifest.Manifest, start time.Time, err error) {
	obs := Observation{
		Slug:     slug,
		Kind:     manifest.KindOf(err),
		Duration: l.now().Sub(start),
		Err:      err,
	}
	if m != nil {
		obs.Category = m.Category
		obs.Facts = len(coverage.Enumerate(m.Raw, coverage.FactsRoot))
	}
	var se *manifest.SchemaError
	if errors.As(err, &se) {
		obs.Category = se.Category
	}

	if err != nil {
		l.logger.Debug("manifest rejected",
			zap.String("slug", slug),
			zap.String("kind", string(obs.Kind)),
			zap.Duration("duration", obs.Duration),
			zap.Error(err),
		)
	} else {
		l.logger.Debug("manifest loaded",
			zap.String("slug", slug),
			zap.String("category", string(obs.Category)),
			zap.Int("facts", obs.Facts),
			zap.Duration("duration", obs.Duration),
		)
	}

	if l.observer != nil {
		l.observer.ObserveLoad(ctx, obs)
	}
}
