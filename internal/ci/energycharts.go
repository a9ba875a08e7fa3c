package ci

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/KollinFreise/carbonAwareHome/internal/domain/scheduling"
)

const (
	DefaultEnergyChartsURL = "https://api.energy-charts.info/co2eq"
	DefaultFetchTimeout    = 60 * time.Second

	maxResponseBytes = 8 << 20
	maxErrorBodySize = 512
)

// EnergyChartsFetcher reads the co2eq series published by energy-charts.info.
type EnergyChartsFetcher struct {
	BaseURL string
	Client  *http.Client
	Timeout time.Duration
	Now     func() time.Time
}

func NewEnergyChartsFetcher(timeout time.Duration) *EnergyChartsFetcher {
	return &EnergyChartsFetcher{
		BaseURL: DefaultEnergyChartsURL,
		Client:  &http.Client{},
		Timeout: timeout,
	}
}

type co2eqResponse struct {
	UnixSeconds   []int64    `json:"unix_seconds"`
	Co2eq         []*float64 `json:"co2eq"`
	Co2eqForecast []*float64 `json:"co2eq_forecast"`
}

func (f *EnergyChartsFetcher) Fetch(ctx context.Context, location string, hint WindowHint) ([]scheduling.RawSample, error) {
	const op = "fetch co2eq"

	location = strings.TrimSpace(strings.ToLower(location))
	if location == "" {
		return nil, NewProviderError(ErrorKindInvalidRequest, op, location, errors.New("missing location"))
	}

	baseURL := f.BaseURL
	if baseURL == "" {
		baseURL = DefaultEnergyChartsURL
	}
	endpoint, err := url.Parse(baseURL)
	if err != nil {
		return nil, NewProviderError(ErrorKindInvalidRequest, op, location, fmt.Errorf("build energy-charts url: %w", err))
	}
	query := endpoint.Query()
	query.Set("country", location)
	endpoint.RawQuery = query.Encode()

	timeout := f.Timeout
	if timeout <= 0 {
		timeout = DefaultFetchTimeout
	}
	callCtx, cancel := withCallTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(callCtx, http.MethodGet, endpoint.String(), nil)
	if err != nil {
		return nil, NewProviderError(ErrorKindInvalidRequest, op, location, fmt.Errorf("create energy-charts request: %w", err))
	}
	req.Header.Set("Accept", "application/json")

	client := f.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, NewProviderError(classifyTransportError(err), op, location, fmt.Errorf("call energy-charts api: %w", err))
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodySize))
		statusErr := &HTTPStatusError{
			StatusCode: resp.StatusCode,
			Status:     resp.Status,
			Body:       strings.TrimSpace(string(body)),
		}
		return nil, NewProviderStatusError(statusKind(resp.StatusCode), op, location, resp.StatusCode, statusErr)
	}

	var body co2eqResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxResponseBytes)).Decode(&body); err != nil {
		if kind := classifyTransportError(err); kind == ErrorKindTimeout {
			return nil, NewProviderError(kind, op, location, fmt.Errorf("read energy-charts response: %w", err))
		}
		return nil, NewProviderError(ErrorKindParse, op, location, fmt.Errorf("decode energy-charts response: %w", err))
	}

	now := time.Now
	if f.Now != nil {
		now = f.Now
	}
	lower, upper := hint.bounds(now().UTC())

	samples := parseCo2eqSeries(body, lower, upper)
	if len(samples) == 0 {
		return nil, NewProviderError(ErrorKindParse, op, location, fmt.Errorf("no usable samples in %d timestamps", len(body.UnixSeconds)))
	}
	return samples, nil
}

// parseCo2eqSeries prefers the measured value per timestamp and falls back to
// the forecast. Samples outside [lower, upper], negative or non-finite are dropped.
func parseCo2eqSeries(body co2eqResponse, lower time.Time, upper time.Time) []scheduling.RawSample {
	samples := make([]scheduling.RawSample, 0, len(body.UnixSeconds))
	for i, seconds := range body.UnixSeconds {
		value, ok := pickValue(body.Co2eq, body.Co2eqForecast, i)
		if !ok {
			continue
		}
		if math.IsNaN(value) || math.IsInf(value, 0) || value < 0 {
			continue
		}

		ts := time.Unix(seconds, 0).UTC()
		if ts.Before(lower) || ts.After(upper) {
			continue
		}
		samples = append(samples, scheduling.RawSample{Timestamp: ts, Intensity: value})
	}
	return scheduling.NormalizeSeries(samples)
}

func pickValue(actual []*float64, forecast []*float64, i int) (float64, bool) {
	if i < len(actual) && actual[i] != nil {
		return *actual[i], true
	}
	if i < len(forecast) && forecast[i] != nil {
		return *forecast[i], true
	}
	return 0, false
}
