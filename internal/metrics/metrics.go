// Package metrics exposes Prometheus collectors for fetches, cache refreshes,
// best-time results and HTTP requests.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/KollinFreise/carbonAwareHome/internal/ci"
)

const namespace = "carbon_aware_home"

type Metrics struct {
	registry *prometheus.Registry

	fetchDuration   *prometheus.HistogramVec
	fetchErrors     *prometheus.CounterVec
	refreshTotal    *prometheus.CounterVec
	seriesSamples   *prometheus.GaugeVec
	lastRefresh     *prometheus.GaugeVec
	results         *prometheus.CounterVec
	httpRequests    *prometheus.CounterVec
	httpDuration    *prometheus.HistogramVec
	sensorPublishes *prometheus.CounterVec
}

// New builds collectors on a private registry, so tests and multiple
// instances never collide on the global one.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		fetchDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "fetch_duration_seconds",
			Help:      "Duration of carbon-intensity fetches by location and outcome.",
			Buckets:   []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
		}, []string{"location", "outcome"}),
		fetchErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "fetch_errors_total",
			Help:      "Failed carbon-intensity fetches by location and error kind.",
		}, []string{"location", "kind"}),
		refreshTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_refresh_total",
			Help:      "Completed cache refreshes by location and outcome.",
		}, []string{"location", "outcome"}),
		seriesSamples: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "cache_series_samples",
			Help:      "Number of samples in the cached series.",
		}, []string{"location"}),
		lastRefresh: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "cache_last_success_timestamp_seconds",
			Help:      "Unix time of the last successful refresh.",
		}, []string{"location"}),
		results: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "best_time_results_total",
			Help:      "Best-time queries by result status.",
		}, []string{"status"}),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total count of HTTP requests processed by route and status.",
		}, []string{"route", "status"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "Histogram of HTTP request durations by route.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"route"}),
		sensorPublishes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sensor_publish_total",
			Help:      "Sensor state publications by location and outcome.",
		}, []string{"location", "outcome"}),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.fetchDuration,
		m.fetchErrors,
		m.refreshTotal,
		m.seriesSamples,
		m.lastRefresh,
		m.results,
		m.httpRequests,
		m.httpDuration,
		m.sensorPublishes,
	)
	return m
}

func outcome(err error) string {
	if err != nil {
		return "error"
	}
	return "success"
}

// ObserveCall implements ci.MetricsRecorder.
func (m *Metrics) ObserveCall(_ string, location string, duration time.Duration, err error) {
	if m == nil {
		return
	}
	m.fetchDuration.WithLabelValues(location, outcome(err)).Observe(duration.Seconds())
	if err != nil {
		m.fetchErrors.WithLabelValues(location, string(ci.KindOf(err))).Inc()
	}
}

// ObserveRefresh implements cache.Observer.
func (m *Metrics) ObserveRefresh(location string, _ time.Duration, samples int, err error) {
	if m == nil {
		return
	}
	m.refreshTotal.WithLabelValues(location, outcome(err)).Inc()
	if err == nil {
		m.seriesSamples.WithLabelValues(location).Set(float64(samples))
		m.lastRefresh.WithLabelValues(location).SetToCurrentTime()
	}
}

// ObserveResult counts best-time outcomes by status.
func (m *Metrics) ObserveResult(status string) {
	if m == nil {
		return
	}
	m.results.WithLabelValues(status).Inc()
}

// ObservePublish counts sensor state publications.
func (m *Metrics) ObservePublish(location string, err error) {
	if m == nil {
		return
	}
	m.sensorPublishes.WithLabelValues(location, outcome(err)).Inc()
}

func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(status int) {
	s.status = status
	s.ResponseWriter.WriteHeader(status)
}

// WrapHandler records request count and latency under a fixed route label.
func (m *Metrics) WrapHandler(route string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		recorder := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()

		next.ServeHTTP(recorder, r)

		if m != nil {
			m.httpRequests.WithLabelValues(route, strconv.Itoa(recorder.status)).Inc()
			m.httpDuration.WithLabelValues(route).Observe(time.Since(start).Seconds())
		}
	})
}
