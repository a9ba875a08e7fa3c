package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"

	"github.com/KollinFreise/carbonAwareHome/internal/app"
	"github.com/KollinFreise/carbonAwareHome/internal/cache"
	"github.com/KollinFreise/carbonAwareHome/internal/ci"
	"github.com/KollinFreise/carbonAwareHome/internal/config"
	caherrors "github.com/KollinFreise/carbonAwareHome/internal/errors"
	"github.com/KollinFreise/carbonAwareHome/internal/logging"
	"github.com/KollinFreise/carbonAwareHome/internal/metrics"
	"github.com/KollinFreise/carbonAwareHome/internal/store"
)

var stdout io.Writer = os.Stdout

const (
	defaultRetryJitter = 0.2

	defaultBreakerFailures    = 5
	defaultBreakerOpenTimeout = time.Minute
)

// runtime is the object graph shared by every subcommand.
type runtime struct {
	cfg     config.Config
	logger  zerolog.Logger
	metrics *metrics.Metrics
	cache   *cache.SeriesCache
	service *app.Service
	closers []func() error
}

func newLogger(cfg config.Config, w io.Writer) (zerolog.Logger, error) {
	logger, err := logging.New(cfg.Log.Level, cfg.Log.Format, w)
	if err != nil {
		return zerolog.Nop(), caherrors.New(err, caherrors.ConfigError)
	}
	for _, warning := range cfg.Warnings {
		logger.Warn().Str("config", cfg.ConfigPath).Msg(warning)
	}
	return logger, nil
}

// newRuntime wires store, fetch pipeline, cache and service. base replaces
// the Energy-Charts fetcher when non-nil.
func newRuntime(ctx context.Context, cfg config.Config, logger zerolog.Logger, base ci.Fetcher) (*runtime, error) {
	tz, err := cfg.TimeLocation()
	if err != nil {
		return nil, caherrors.New(err, caherrors.ConfigError)
	}

	snapshots, closeStore, err := buildStore(ctx, cfg)
	if err != nil {
		return nil, caherrors.New(err, caherrors.ConfigError)
	}

	m := metrics.New()
	if base == nil {
		base = ci.NewEnergyChartsFetcher(cfg.FetchTimeout)
	}
	fetcher := buildFetcher(base, cfg, m, logger)

	seriesCache := cache.New(fetcher, cache.Options{
		Locations:       cfg.AllLocations(),
		RefreshInterval: cfg.RefreshInterval(),
		Store:           snapshots,
		Logger:          logger,
		Observer:        m,
	})
	service := app.New(seriesCache, app.Options{
		DefaultLocation: cfg.Location,
		TimeZone:        tz,
		Observer:        m,
		Logger:          logger,
	})

	rt := &runtime{
		cfg:     cfg,
		logger:  logger,
		metrics: m,
		cache:   seriesCache,
		service: service,
	}
	if closeStore != nil {
		rt.closers = append(rt.closers, closeStore)
	}
	return rt, nil
}

func (r *runtime) Close() error {
	var errs []error
	for i := len(r.closers) - 1; i >= 0; i-- {
		if err := r.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func buildFetcher(base ci.Fetcher, cfg config.Config, m *metrics.Metrics, logger zerolog.Logger) ci.Fetcher {
	return ci.NewPipeline(base, ci.PipelineConfig{
		Timeout: cfg.FetchTimeout,
		Retry: ci.RetryConfig{
			MaxAttempts: cfg.Retry.MaxAttempts,
			BaseDelay:   cfg.Retry.BaseDelay,
			MaxDelay:    cfg.Retry.MaxDelay,
			Jitter:      defaultRetryJitter,
		},
		Breaker: ci.BreakerConfig{
			ConsecutiveFailures: defaultBreakerFailures,
			OpenTimeout:         defaultBreakerOpenTimeout,
		},
		Metrics: m,
		Logger:  logger.With().Str("component", "fetcher").Logger(),
	})
}

func buildStore(ctx context.Context, cfg config.Config) (store.Store, func() error, error) {
	switch cfg.Store.Driver {
	case "none":
		return store.Nop{}, nil, nil
	case "redis":
		rs := store.NewRedisStore(cfg.Store.RedisAddr, cfg.Store.TTL)
		if err := rs.Ping(ctx); err != nil {
			_ = rs.Close()
			return nil, nil, fmt.Errorf("connect redis store %s: %w", cfg.Store.RedisAddr, err)
		}
		return rs, rs.Close, nil
	default:
		dir, err := cfg.StoreDir()
		if err != nil {
			return nil, nil, err
		}
		if dir == "" {
			return nil, nil, fmt.Errorf("store dir must not be empty")
		}
		return store.NewFileStore(dir), nil, nil
	}
}

// refreshOnce warms from the store and runs one synchronous fetch. A failed
// fetch is logged; the query then runs against whatever the cache holds.
func (r *runtime) refreshOnce(ctx context.Context, location string) {
	if err := r.cache.Warm(ctx); err != nil {
		r.logger.Warn().Err(err).Msg("warm cache failed")
	}
	if err := r.cache.Refresh(ctx, location); err != nil {
		r.logger.Warn().Err(err).Str("location", location).Msg("refresh failed, using cached series")
	}
}

func statusError(status app.Status, message string) error {
	if status == app.StatusOK {
		return nil
	}
	if message == "" {
		message = string(status)
	}
	return caherrors.NewStatus(errors.New(message), string(status))
}
