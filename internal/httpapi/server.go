// Package httpapi exposes the sensor read and best-time action over HTTP.
package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/klauspost/compress/gzhttp"
	"github.com/rs/zerolog"

	"github.com/KollinFreise/carbonAwareHome/internal/app"
	"github.com/KollinFreise/carbonAwareHome/internal/cache"
	"github.com/KollinFreise/carbonAwareHome/internal/domain/scheduling"
	"github.com/KollinFreise/carbonAwareHome/internal/metrics"
)

const maxBodyBytes = 64 << 10

// ForecastService is the query side used by the handlers.
type ForecastService interface {
	DefaultLocation() string
	SensorState(ctx context.Context, location string) app.SensorState
	BestTimeFromParams(ctx context.Context, params app.BestTimeParams) app.ForecastResult
	Series(ctx context.Context, location string, from time.Time, to time.Time) ([]scheduling.MinutePoint, cache.Snapshot, error)
	ParseDateTime(raw string) (time.Time, error)
}

// SnapshotSource reports per-location cache state for the health check.
type SnapshotSource interface {
	Locations() []string
	Read(location string) cache.Snapshot
}

type Options struct {
	Service ForecastService
	Cache   SnapshotSource
	Metrics *metrics.Metrics
	Logger  zerolog.Logger
	Now     func() time.Time
}

type Server struct {
	service ForecastService
	cache   SnapshotSource
	metrics *metrics.Metrics
	logger  zerolog.Logger
	now     func() time.Time
	router  *chi.Mux
}

func NewServer(opts Options) *Server {
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	s := &Server{
		service: opts.Service,
		cache:   opts.Cache,
		metrics: opts.Metrics,
		logger:  opts.Logger.With().Str("component", "http").Logger(),
		now:     now,
		router:  chi.NewRouter(),
	}
	s.routes()
	return s
}

func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) routes() {
	s.router.Use(middleware.Recoverer)
	s.router.Use(middleware.RequestID)
	s.router.Use(s.requestLogger)
	s.router.Use(func(next http.Handler) http.Handler {
		return gzhttp.GzipHandler(next)
	})

	s.router.Get("/healthz", s.instrument("healthz", s.handleHealth))
	if s.metrics != nil {
		s.router.Handle("/metrics", s.metrics.Handler())
	}

	s.router.Route("/api/v1", func(r chi.Router) {
		r.Get("/intensity/current", s.instrument("intensity_current", s.handleCurrent))
		r.Get("/intensity/series", s.instrument("intensity_series", s.handleSeries))
		r.Post("/best-time", s.instrument("best_time", s.handleBestTime))
		r.Post("/best-time-raw", s.instrument("best_time_raw", s.handleBestTimeRaw))
	})
}

func (s *Server) instrument(route string, h http.HandlerFunc) http.HandlerFunc {
	return s.metrics.WrapHandler(route, h).ServeHTTP
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()

		next.ServeHTTP(ww, r)

		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		event := s.logger.Debug()
		if status >= http.StatusInternalServerError {
			event = s.logger.Warn()
		}
		event.
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", status).
			Int("bytes", ww.BytesWritten()).
			Dur("duration", time.Since(start)).
			Str("request_id", middleware.GetReqID(r.Context())).
			Msg("http request")
	})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

type errorResponse struct {
	Status  app.Status `json:"status"`
	Message string     `json:"message"`
}

func httpStatus(status app.Status) int {
	switch status {
	case app.StatusOK:
		return http.StatusOK
	case app.StatusInvalidDatetime, app.StatusInvalidWindow:
		return http.StatusBadRequest
	case app.StatusNoData:
		return http.StatusNotFound
	case app.StatusTimeout:
		return http.StatusGatewayTimeout
	default:
		return http.StatusBadGateway
	}
}
