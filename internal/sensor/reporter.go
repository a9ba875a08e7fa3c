package sensor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/KollinFreise/carbonAwareHome/internal/app"
)

const DefaultInterval = time.Minute

type Publisher interface {
	Publish(ctx context.Context, location string, payload []byte) error
	Close() error
}

// StateSource renders the sensor state of a location.
type StateSource interface {
	SensorState(ctx context.Context, location string) app.SensorState
}

type Observer interface {
	ObservePublish(location string, err error)
}

type nopObserver struct{}

func (nopObserver) ObservePublish(string, error) {}

type ReporterOptions struct {
	Locations []string
	Interval  time.Duration
	Observer  Observer
	Logger    zerolog.Logger
}

// Reporter mirrors the current-intensity sensor of every location to a
// Publisher on a fixed cadence.
type Reporter struct {
	source    StateSource
	publisher Publisher
	locations []string
	interval  time.Duration
	observer  Observer
	logger    zerolog.Logger
}

func NewReporter(source StateSource, publisher Publisher, opts ReporterOptions) *Reporter {
	interval := opts.Interval
	if interval <= 0 {
		interval = DefaultInterval
	}
	observer := opts.Observer
	if observer == nil {
		observer = nopObserver{}
	}
	return &Reporter{
		source:    source,
		publisher: publisher,
		locations: opts.Locations,
		interval:  interval,
		observer:  observer,
		logger:    opts.Logger.With().Str("component", "sensor_reporter").Logger(),
	}
}

// PublishOnce publishes the state of every location and joins the failures.
func (r *Reporter) PublishOnce(ctx context.Context) error {
	var errs []error
	for _, location := range r.locations {
		err := r.publish(ctx, location)
		r.observer.ObservePublish(location, err)
		if err != nil {
			r.logger.Warn().Err(err).Str("location", location).Msg("sensor publish failed")
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (r *Reporter) publish(ctx context.Context, location string) error {
	state := r.source.SensorState(ctx, location)
	payload, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("encode sensor state: %w", err)
	}
	return r.publisher.Publish(ctx, location, payload)
}

// Run publishes immediately and then every interval until ctx is done.
func (r *Reporter) Run(ctx context.Context) error {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		_ = r.PublishOnce(ctx)
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}
