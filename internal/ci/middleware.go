package ci

import (
	"context"
	"errors"
	"math/rand"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/sony/gobreaker/v2"

	"github.com/KollinFreise/carbonAwareHome/internal/domain/scheduling"
)

type Middleware func(Fetcher) Fetcher

type RetryConfig struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	Jitter      float64
	// OnRetry is called before each backoff sleep.
	OnRetry func(location string, attempt int, delay time.Duration, err error)
}

type BreakerConfig struct {
	// ConsecutiveFailures trips the breaker; zero disables it.
	ConsecutiveFailures uint32
	OpenTimeout         time.Duration
}

type PipelineConfig struct {
	Timeout time.Duration
	Retry   RetryConfig
	Breaker BreakerConfig
	Metrics MetricsRecorder
	Logger  zerolog.Logger
}

type MetricsRecorder interface {
	ObserveCall(operation string, location string, duration time.Duration, err error)
}

type NopMetricsRecorder struct{}

func (NopMetricsRecorder) ObserveCall(string, string, time.Duration, error) {}

func Chain(base Fetcher, middlewares ...Middleware) Fetcher {
	f := base
	for i := len(middlewares) - 1; i >= 0; i-- {
		if middlewares[i] == nil {
			continue
		}
		f = middlewares[i](f)
	}
	return f
}

// NewPipeline wraps base as metrics(retry(breaker(timeout(base)))), so every
// attempt gets its own deadline and an open breaker short-circuits retries.
func NewPipeline(base Fetcher, cfg PipelineConfig) Fetcher {
	if base == nil {
		return nil
	}

	f := base
	if cfg.Timeout > 0 {
		f = WithTimeout(cfg.Timeout)(f)
	}
	if cfg.Breaker.ConsecutiveFailures > 0 {
		f = WithCircuitBreaker(cfg.Breaker)(f)
	}
	if cfg.Retry.MaxAttempts > 1 {
		retry := cfg.Retry
		if retry.OnRetry == nil {
			logger := cfg.Logger
			retry.OnRetry = func(location string, attempt int, delay time.Duration, err error) {
				logger.Warn().
					Err(err).
					Str("location", location).
					Str("kind", string(KindOf(err))).
					Int("attempt", attempt).
					Dur("backoff", delay).
					Msg("fetch attempt failed, retrying")
			}
		}
		f = WithRetry(retry)(f)
	}
	if cfg.Metrics != nil {
		f = WithMetrics(cfg.Metrics)(f)
	}

	return f
}

func WithTimeout(timeout time.Duration) Middleware {
	return func(next Fetcher) Fetcher {
		return FetcherFunc(func(ctx context.Context, location string, hint WindowHint) ([]scheduling.RawSample, error) {
			callCtx, cancel := withCallTimeout(ctx, timeout)
			defer cancel()

			samples, err := next.Fetch(callCtx, location, hint)
			if err != nil && ctx.Err() == nil && errors.Is(callCtx.Err(), context.DeadlineExceeded) && !IsKind(err, ErrorKindTimeout) {
				return nil, NewProviderError(ErrorKindTimeout, "fetch co2eq", location, err)
			}
			return samples, err
		})
	}
}

func withCallTimeout(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if timeout <= 0 {
		return ctx, func() {}
	}
	if deadline, ok := ctx.Deadline(); ok {
		if remaining := time.Until(deadline); remaining > 0 && remaining <= timeout {
			return ctx, func() {}
		}
	}
	return context.WithTimeout(ctx, timeout)
}

func WithRetry(cfg RetryConfig) Middleware {
	return func(next Fetcher) Fetcher {
		return &retryFetcher{
			next: next,
			cfg:  normalizeRetryConfig(cfg),
			rng:  newLockedRand(),
		}
	}
}

type retryFetcher struct {
	next Fetcher
	cfg  RetryConfig
	rng  *lockedRand
}

func (f *retryFetcher) Fetch(ctx context.Context, location string, hint WindowHint) ([]scheduling.RawSample, error) {
	var lastErr error
	for attempt := 1; attempt <= f.cfg.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, NewProviderError(classifyTransportError(err), "fetch co2eq", location, err)
		}

		samples, err := f.next.Fetch(ctx, location, hint)
		if err == nil {
			return samples, nil
		}
		lastErr = err

		if attempt == f.cfg.MaxAttempts || !isRetryableError(err) {
			break
		}

		delay := f.backoffDelay(attempt)
		if f.cfg.OnRetry != nil {
			f.cfg.OnRetry(location, attempt, delay, err)
		}
		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, lastErr
		case <-timer.C:
		}
	}

	return nil, lastErr
}

func (f *retryFetcher) backoffDelay(attempt int) time.Duration {
	delay := f.cfg.BaseDelay
	for i := 1; i < attempt; i++ {
		delay *= 2
		if delay >= f.cfg.MaxDelay {
			delay = f.cfg.MaxDelay
			break
		}
	}

	if f.cfg.Jitter <= 0 {
		return delay
	}

	spread := float64(delay) * f.cfg.Jitter
	random := (f.rng.Float64()*2 - 1) * spread
	jittered := float64(delay) + random
	if jittered < float64(time.Millisecond) {
		return time.Millisecond
	}
	return time.Duration(jittered)
}

func normalizeRetryConfig(cfg RetryConfig) RetryConfig {
	if cfg.MaxAttempts < 1 {
		cfg.MaxAttempts = 1
	}
	if cfg.BaseDelay <= 0 {
		cfg.BaseDelay = 5 * time.Second
	}
	if cfg.MaxDelay <= 0 {
		cfg.MaxDelay = 15 * time.Second
	}
	if cfg.MaxDelay < cfg.BaseDelay {
		cfg.MaxDelay = cfg.BaseDelay
	}
	if cfg.Jitter < 0 {
		cfg.Jitter = 0
	}
	if cfg.Jitter > 1 {
		cfg.Jitter = 1
	}
	return cfg
}

func isRetryableError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}

	switch KindOf(err) {
	case ErrorKindTimeout, ErrorKindRateLimit, ErrorKindUpstream, ErrorKindNetwork:
		return true
	}

	var statusErr *HTTPStatusError
	if errors.As(err, &statusErr) {
		return statusErr.StatusCode == 429 || statusErr.StatusCode >= 500
	}
	return false
}

// WithCircuitBreaker keeps one breaker per location. Client-side errors do not
// count as failures; an open breaker surfaces as ErrorKindUnavailable.
func WithCircuitBreaker(cfg BreakerConfig) Middleware {
	return func(next Fetcher) Fetcher {
		return &breakerFetcher{
			next:     next,
			cfg:      cfg,
			breakers: make(map[string]*gobreaker.CircuitBreaker[[]scheduling.RawSample]),
		}
	}
}

type breakerFetcher struct {
	next     Fetcher
	cfg      BreakerConfig
	mu       sync.Mutex
	breakers map[string]*gobreaker.CircuitBreaker[[]scheduling.RawSample]
}

func (f *breakerFetcher) Fetch(ctx context.Context, location string, hint WindowHint) ([]scheduling.RawSample, error) {
	cb := f.breakerFor(location)
	samples, err := cb.Execute(func() ([]scheduling.RawSample, error) {
		return f.next.Fetch(ctx, location, hint)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return nil, NewProviderError(ErrorKindUnavailable, "fetch co2eq", location, err)
	}
	return samples, err
}

func (f *breakerFetcher) breakerFor(location string) *gobreaker.CircuitBreaker[[]scheduling.RawSample] {
	f.mu.Lock()
	defer f.mu.Unlock()

	if cb, ok := f.breakers[location]; ok {
		return cb
	}

	openTimeout := f.cfg.OpenTimeout
	if openTimeout <= 0 {
		openTimeout = time.Minute
	}
	threshold := f.cfg.ConsecutiveFailures
	cb := gobreaker.NewCircuitBreaker[[]scheduling.RawSample](gobreaker.Settings{
		Name:        "energy-charts/" + location,
		MaxRequests: 1,
		Interval:    0,
		Timeout:     openTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= threshold
		},
		IsSuccessful: func(err error) bool {
			return err == nil || IsKind(err, ErrorKindInvalidRequest) || errors.Is(err, context.Canceled)
		},
	})
	f.breakers[location] = cb
	return cb
}

func WithMetrics(recorder MetricsRecorder) Middleware {
	return func(next Fetcher) Fetcher {
		return FetcherFunc(func(ctx context.Context, location string, hint WindowHint) (samples []scheduling.RawSample, err error) {
			start := time.Now()
			defer func() {
				recorder.ObserveCall("Fetch", location, time.Since(start), err)
			}()
			samples, err = next.Fetch(ctx, location, hint)
			return samples, err
		})
	}
}

type lockedRand struct {
	mu sync.Mutex
	r  *rand.Rand
}

func newLockedRand() *lockedRand {
	return &lockedRand{
		r: rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

func (r *lockedRand) Float64() float64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.r.Float64()
}
