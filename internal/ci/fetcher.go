package ci

import (
	"context"
	"time"

	"github.com/KollinFreise/carbonAwareHome/internal/domain/scheduling"
)

// DefaultSaneBound limits accepted timestamps around now when no hint is given.
const DefaultSaneBound = 7 * 24 * time.Hour

// WindowHint narrows the timestamps a fetcher accepts. Zero values fall back
// to now ± DefaultSaneBound.
type WindowHint struct {
	Start time.Time
	End   time.Time
}

// Fetcher retrieves the raw carbon-intensity series for a location. It performs
// exactly one outbound request and never retries; retries belong to the caller.
type Fetcher interface {
	Fetch(ctx context.Context, location string, hint WindowHint) ([]scheduling.RawSample, error)
}

// FetcherFunc adapts a function to Fetcher.
type FetcherFunc func(ctx context.Context, location string, hint WindowHint) ([]scheduling.RawSample, error)

func (f FetcherFunc) Fetch(ctx context.Context, location string, hint WindowHint) ([]scheduling.RawSample, error) {
	return f(ctx, location, hint)
}

func (h WindowHint) bounds(now time.Time) (time.Time, time.Time) {
	start := h.Start
	end := h.End
	if start.IsZero() {
		start = now.Add(-DefaultSaneBound)
	}
	if end.IsZero() {
		end = now.Add(DefaultSaneBound)
	}
	return start.UTC(), end.UTC()
}
