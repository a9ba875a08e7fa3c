package metrics

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/KollinFreise/carbonAwareHome/internal/ci"
)

func TestObserveCallCountsErrorsByKind(t *testing.T) {
	m := New()

	m.ObserveCall("Fetch", "de", 120*time.Millisecond, nil)
	m.ObserveCall("Fetch", "de", time.Second, ci.NewProviderError(ci.ErrorKindTimeout, "fetch", "de", context.DeadlineExceeded))
	m.ObserveCall("Fetch", "de", time.Second, ci.NewProviderError(ci.ErrorKindTimeout, "fetch", "de", context.DeadlineExceeded))

	assert.Equal(t, 2.0, testutil.ToFloat64(m.fetchErrors.WithLabelValues("de", "timeout")))
	assert.Equal(t, 2, testutil.CollectAndCount(m.fetchDuration))
}

func TestObserveRefreshTracksSamples(t *testing.T) {
	m := New()

	m.ObserveRefresh("de", time.Second, 96, nil)
	m.ObserveRefresh("de", time.Second, 0, errors.New("boom"))

	assert.Equal(t, 96.0, testutil.ToFloat64(m.seriesSamples.WithLabelValues("de")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.refreshTotal.WithLabelValues("de", "success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.refreshTotal.WithLabelValues("de", "error")))
	assert.Greater(t, testutil.ToFloat64(m.lastRefresh.WithLabelValues("de")), 0.0)
}

func TestNilMetricsIsSafe(t *testing.T) {
	var m *Metrics
	m.ObserveCall("Fetch", "de", time.Second, nil)
	m.ObserveRefresh("de", time.Second, 1, nil)
	m.ObserveResult("OK")
	m.ObservePublish("de", nil)
}

func TestHandlerExposesRegisteredMetrics(t *testing.T) {
	m := New()
	m.ObserveResult("OK")
	m.ObservePublish("de", nil)

	wrapped := m.WrapHandler("/teapot", http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))
	wrapped.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/teapot", nil))

	srv := httptest.NewServer(m.Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	text := string(body)
	assert.True(t, strings.Contains(text, `carbon_aware_home_best_time_results_total{status="OK"} 1`), text)
	assert.True(t, strings.Contains(text, `carbon_aware_home_http_requests_total{route="/teapot",status="418"} 1`), text)
	assert.True(t, strings.Contains(text, `carbon_aware_home_sensor_publish_total{location="de",outcome="success"} 1`), text)
}
