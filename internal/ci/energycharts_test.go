package ci

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"
)

var fetchNow = time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)

func setupEnergyChartsTestServer(t *testing.T, handler http.HandlerFunc) *EnergyChartsFetcher {
	t.Helper()

	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	return &EnergyChartsFetcher{
		BaseURL: srv.URL + "/co2eq",
		Client:  srv.Client(),
		Timeout: 2 * time.Second,
		Now:     func() time.Time { return fetchNow },
	}
}

func TestFetchPrefersMeasuredThenForecast(t *testing.T) {
	t0 := fetchNow.Unix()
	fetcher := setupEnergyChartsTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/co2eq" {
			t.Fatalf("unexpected path: %s", r.URL.Path)
		}
		if got := r.URL.Query().Get("country"); got != "de" {
			t.Fatalf("country query = %q, expected %q", got, "de")
		}
		if got := r.Header.Get("Accept"); got != "application/json" {
			t.Fatalf("accept header = %q", got)
		}

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
		  "unix_seconds": [` + itoa(t0+900) + `, ` + itoa(t0) + `, ` + itoa(t0+1800) + `, ` + itoa(t0+2700) + `],
		  "co2eq":          [null, 400, null, null],
		  "co2eq_forecast": [390, 999, null, 410]
		}`))
	})

	samples, err := fetcher.Fetch(context.Background(), "DE", WindowHint{})
	if err != nil {
		t.Fatalf("Fetch() unexpected error: %v", err)
	}
	if len(samples) != 3 {
		t.Fatalf("Fetch() returned %d samples, expected 3", len(samples))
	}
	expected := []float64{400, 390, 410}
	for i, sample := range samples {
		if sample.Intensity != expected[i] {
			t.Fatalf("samples[%d] = %v, expected %v", i, sample.Intensity, expected[i])
		}
		if i > 0 && !samples[i-1].Timestamp.Before(sample.Timestamp) {
			t.Fatalf("samples are not sorted")
		}
	}
}

func TestFetchDropsInvalidAndOutOfBoundSamples(t *testing.T) {
	t0 := fetchNow.Unix()
	farPast := fetchNow.Add(-30 * 24 * time.Hour).Unix()
	fetcher := setupEnergyChartsTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{
		  "unix_seconds": [` + itoa(farPast) + `, ` + itoa(t0) + `, ` + itoa(t0+900) + `, ` + itoa(t0) + `],
		  "co2eq":          [300, -5, 380, 123]
		}`))
	})

	samples, err := fetcher.Fetch(context.Background(), "de", WindowHint{})
	if err != nil {
		t.Fatalf("Fetch() unexpected error: %v", err)
	}
	if len(samples) != 2 {
		t.Fatalf("Fetch() returned %d samples, expected 2: %+v", len(samples), samples)
	}
	if samples[0].Intensity != 123 || samples[1].Intensity != 380 {
		t.Fatalf("unexpected samples: %+v", samples)
	}
}

func TestFetchHonoursWindowHint(t *testing.T) {
	t0 := fetchNow.Unix()
	fetcher := setupEnergyChartsTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"unix_seconds": [` + itoa(t0) + `, ` + itoa(t0+3600) + `], "co2eq": [1, 2]}`))
	})

	samples, err := fetcher.Fetch(context.Background(), "de", WindowHint{
		Start: fetchNow.Add(30 * time.Minute),
		End:   fetchNow.Add(2 * time.Hour),
	})
	if err != nil {
		t.Fatalf("Fetch() unexpected error: %v", err)
	}
	if len(samples) != 1 || samples[0].Intensity != 2 {
		t.Fatalf("Fetch() = %+v, expected only the sample inside the hint", samples)
	}
}

func TestFetchClassifiesFailures(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
		kind    ErrorKind
		status  int
	}{
		{
			name: "rate limited",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusTooManyRequests)
				_, _ = w.Write([]byte("slow down"))
			},
			kind:   ErrorKindRateLimit,
			status: http.StatusTooManyRequests,
		},
		{
			name: "server error",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusBadGateway)
			},
			kind:   ErrorKindUpstream,
			status: http.StatusBadGateway,
		},
		{
			name: "bad request",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusBadRequest)
			},
			kind:   ErrorKindInvalidRequest,
			status: http.StatusBadRequest,
		},
		{
			name: "malformed json",
			handler: func(w http.ResponseWriter, r *http.Request) {
				_, _ = w.Write([]byte(`{"unix_seconds": [1, 2`))
			},
			kind: ErrorKindParse,
		},
		{
			name: "no usable samples",
			handler: func(w http.ResponseWriter, r *http.Request) {
				_, _ = w.Write([]byte(`{"unix_seconds": [], "co2eq": []}`))
			},
			kind: ErrorKindParse,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			fetcher := setupEnergyChartsTestServer(t, tc.handler)
			_, err := fetcher.Fetch(context.Background(), "de", WindowHint{})
			if !IsKind(err, tc.kind) {
				t.Fatalf("Fetch() error = %v, expected kind %s", err, tc.kind)
			}
			if tc.status > 0 {
				var providerErr *ProviderError
				if !asProviderError(err, &providerErr) || providerErr.StatusCode != tc.status {
					t.Fatalf("Fetch() error = %v, expected status %d", err, tc.status)
				}
			}
		})
	}
}

func TestFetchTimeoutIsClassified(t *testing.T) {
	release := make(chan struct{})
	fetcher := setupEnergyChartsTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	})
	defer close(release)
	fetcher.Timeout = 20 * time.Millisecond

	_, err := fetcher.Fetch(context.Background(), "de", WindowHint{})
	if !IsKind(err, ErrorKindTimeout) {
		t.Fatalf("Fetch() error = %v, expected timeout kind", err)
	}
}

func TestFetchRejectsEmptyLocation(t *testing.T) {
	fetcher := &EnergyChartsFetcher{}
	_, err := fetcher.Fetch(context.Background(), "  ", WindowHint{})
	if !IsKind(err, ErrorKindInvalidRequest) {
		t.Fatalf("Fetch() error = %v, expected invalid_request", err)
	}
	if !strings.Contains(err.Error(), "missing location") {
		t.Fatalf("unexpected error text: %v", err)
	}
}

func itoa(v int64) string {
	return strconv.FormatInt(v, 10)
}

func asProviderError(err error, target **ProviderError) bool {
	return errors.As(err, target)
}
