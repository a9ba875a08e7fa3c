package app

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/KollinFreise/carbonAwareHome/internal/calculator"
	"github.com/KollinFreise/carbonAwareHome/internal/cache"
	"github.com/KollinFreise/carbonAwareHome/internal/domain/scheduling"
	"github.com/KollinFreise/carbonAwareHome/pkg"
)

type Options struct {
	DefaultLocation string
	// TimeZone evaluates allowed hours and offset-less datetimes. Defaults to time.Local.
	TimeZone *time.Location
	Now      func() time.Time
	Observer ResultObserver
	Logger   zerolog.Logger
}

// Service answers current-intensity and best-time queries from cached
// snapshots only. It never performs network I/O.
// Service 仅基于缓存快照回答查询，不做任何网络请求。
type Service struct {
	series   SeriesReader
	location string
	tz       *time.Location
	now      func() time.Time
	observer ResultObserver
	logger   zerolog.Logger
}

func New(series SeriesReader, opts Options) *Service {
	location := strings.TrimSpace(strings.ToLower(opts.DefaultLocation))
	if location == "" {
		location = pkg.DefaultLocation
	}
	tz := opts.TimeZone
	if tz == nil {
		tz = time.Local
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	observer := opts.Observer
	if observer == nil {
		observer = nopObserver{}
	}
	return &Service{
		series:   series,
		location: location,
		tz:       tz,
		now:      now,
		observer: observer,
		logger:   opts.Logger.With().Str("component", "forecast_service").Logger(),
	}
}

func (s *Service) DefaultLocation() string {
	return s.location
}

func (s *Service) TimeZone() *time.Location {
	return s.tz
}

func (s *Service) resolveLocation(location string) string {
	location = strings.TrimSpace(strings.ToLower(location))
	if location == "" {
		return s.location
	}
	return location
}

// CurrentIntensity interpolates the cached series at now.
func (s *Service) CurrentIntensity(ctx context.Context, location string) (CurrentReading, error) {
	if err := contextError(ctx); err != nil {
		return CurrentReading{}, err
	}

	location = s.resolveLocation(location)
	snap := s.series.Read(location)
	if snap.Empty() {
		return CurrentReading{}, emptySeriesError(snap)
	}

	now := s.now().UTC()
	value, ok := scheduling.ValueAt(snap.Samples, now)
	if !ok {
		first, last, _ := snap.Coverage()
		return CurrentReading{}, fmt.Errorf("%w: %s is outside cached series %s..%s", ErrNoData,
			now.Format(time.RFC3339), first.Format(time.RFC3339), last.Format(time.RFC3339))
	}

	return CurrentReading{
		Location:     location,
		Value:        value,
		Timestamp:    now,
		FetchedAt:    snap.FetchedAt,
		CacheAge:     snap.Staleness(now),
		SeriesLength: len(snap.Samples),
		Source:       SourceRaw,
	}, nil
}

// SensorState renders CurrentIntensity as the sensor payload. The state is
// null when no value is available.
func (s *Service) SensorState(ctx context.Context, location string) SensorState {
	location = s.resolveLocation(location)
	state := SensorState{
		Unit: pkg.IntensityUnit,
		Attributes: SensorAttributes{
			Source:   SourceRaw,
			Location: location,
		},
	}

	reading, err := s.CurrentIntensity(ctx, location)
	state.Attributes.Status = StatusFromError(err)
	if err != nil {
		snap := s.series.Read(location)
		state.Attributes.SeriesLength = len(snap.Samples)
		if !snap.FetchedAt.IsZero() {
			age := int64(snap.Staleness(s.now()).Seconds())
			state.Attributes.CacheAgeSeconds = &age
		}
		return state
	}

	value := Round2(reading.Value)
	age := int64(reading.CacheAge.Seconds())
	state.State = &value
	state.Attributes.TimestampUTC = reading.Timestamp.Format(time.RFC3339)
	state.Attributes.CacheAgeSeconds = &age
	state.Attributes.SeriesLength = reading.SeriesLength
	return state
}

// BestTime validates req, then runs the window optimizer on the cached
// snapshot. The result always carries one of the Status values.
func (s *Service) BestTime(ctx context.Context, req ForecastRequest) ForecastResult {
	req.Location = s.resolveLocation(req.Location)
	result := ForecastResult{
		Source:         SourceRaw,
		WindowStart:    req.rawStart,
		WindowEnd:      req.rawEnd,
		RuntimeMinutes: req.RuntimeMinutes,
		Location:       req.Location,
	}
	if result.WindowStart == "" && !req.WindowStart.IsZero() {
		result.WindowStart = req.WindowStart.UTC().Format(time.RFC3339)
	}
	if result.WindowEnd == "" && !req.WindowEnd.IsZero() {
		result.WindowEnd = req.WindowEnd.UTC().Format(time.RFC3339)
	}

	estimate, err := s.bestTime(ctx, req)
	result.Status = StatusFromError(err)
	s.observer.ObserveResult(string(result.Status))
	if err != nil {
		result.Message = err.Error()
		s.logger.Debug().
			Err(err).
			Str("location", req.Location).
			Str("status", string(result.Status)).
			Msg("best time query without result")
		return result
	}

	start := estimate.Start.UTC()
	end := estimate.End.UTC()
	avg := Round2(estimate.Mean)
	result.BestStart = &start
	result.BestEnd = &end
	result.AvgIntensity = &avg
	if req.PowerWatts > 0 {
		segments := calculator.WindowSegments(estimate.Window, req.RuntimeMinutes)
		grams := Round2(calculator.EstimateEmissionsWithSegments(segments, req.PowerWatts))
		result.EstimatedEmissionGrams = &grams
	}
	return result
}

func (s *Service) bestTime(ctx context.Context, req ForecastRequest) (scheduling.WindowEstimate, error) {
	if err := contextError(ctx); err != nil {
		return scheduling.WindowEstimate{}, err
	}
	if err := validateRequest(req); err != nil {
		return scheduling.WindowEstimate{}, err
	}

	snap := s.series.Read(req.Location)
	if snap.Empty() {
		return scheduling.WindowEstimate{}, emptySeriesError(snap)
	}

	estimate, err := scheduling.BestStart(snap.Samples, req.WindowStart, req.WindowEnd, req.RuntimeMinutes, req.AllowedHours, s.tz)
	if err != nil {
		return scheduling.WindowEstimate{}, wrapDomainError(err)
	}
	if err := contextError(ctx); err != nil {
		return scheduling.WindowEstimate{}, err
	}
	return estimate, nil
}

// BestTimeFromParams parses the raw action payload and delegates to BestTime.
// Malformed input is rejected before the cache is consulted.
func (s *Service) BestTimeFromParams(ctx context.Context, params BestTimeParams) ForecastResult {
	req, err := s.ParseParams(params)
	if err != nil {
		status := StatusFromError(err)
		s.observer.ObserveResult(string(status))
		return ForecastResult{
			Status:         status,
			Source:         SourceRaw,
			WindowStart:    params.DataStartAt,
			WindowEnd:      params.DataEndAt,
			RuntimeMinutes: params.RuntimeMinutes(),
			Location:       s.resolveLocation(params.Location),
			Message:        err.Error(),
		}
	}
	return s.BestTime(ctx, req)
}

// ParseParams converts the raw payload into a ForecastRequest.
func (s *Service) ParseParams(params BestTimeParams) (ForecastRequest, error) {
	if err := validateParams(params); err != nil {
		return ForecastRequest{}, err
	}

	start, err := parseDateTime(params.DataStartAt, s.tz)
	if err != nil {
		return ForecastRequest{}, fmt.Errorf("dataStartAt: %w", err)
	}
	end, err := parseDateTime(params.DataEndAt, s.tz)
	if err != nil {
		return ForecastRequest{}, fmt.Errorf("dataEndAt: %w", err)
	}

	hours, err := scheduling.ParseHourRanges(params.AllowedHours)
	if err != nil {
		return ForecastRequest{}, fmt.Errorf("%w: allowedHours: %v", ErrInvalidWindow, err)
	}

	return ForecastRequest{
		Location:       s.resolveLocation(params.Location),
		WindowStart:    start,
		WindowEnd:      end,
		RuntimeMinutes: params.RuntimeMinutes(),
		AllowedHours:   hours,
		PowerWatts:     params.PowerWatts,
		rawStart:       params.DataStartAt,
		rawEnd:         params.DataEndAt,
	}, nil
}

// Series returns the per-minute interpolated curve for [from, to) and the
// snapshot it was computed from.
func (s *Service) Series(ctx context.Context, location string, from time.Time, to time.Time) ([]scheduling.MinutePoint, cache.Snapshot, error) {
	if err := contextError(ctx); err != nil {
		return nil, cache.Snapshot{}, err
	}
	if !from.Before(to) {
		return nil, cache.Snapshot{}, fmt.Errorf("%w: from must be before to", ErrInvalidWindow)
	}
	if to.Sub(from) > 8*24*time.Hour {
		return nil, cache.Snapshot{}, fmt.Errorf("%w: range must not exceed 8 days", ErrInvalidWindow)
	}

	snap := s.series.Read(s.resolveLocation(location))
	if snap.Empty() {
		return nil, snap, emptySeriesError(snap)
	}
	points := scheduling.MinuteSeries(snap.Samples, from, to)
	if len(points) == 0 {
		return nil, snap, fmt.Errorf("%w: cached series does not cover the requested range", ErrNoData)
	}
	return points, snap, nil
}

// ParseDateTime exposes the payload datetime parser, using the service time zone.
func (s *Service) ParseDateTime(raw string) (time.Time, error) {
	return parseDateTime(raw, s.tz)
}

// Round2 rounds half away from zero to two decimals, as every reported
// intensity and emission value is.
func Round2(v float64) float64 {
	return decimal.NewFromFloat(v).Round(2).InexactFloat64()
}
