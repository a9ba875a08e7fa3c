// Package cache keeps the latest carbon-intensity series per location and
// refreshes it in the background.
package cache

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/KollinFreise/carbonAwareHome/internal/ci"
	"github.com/KollinFreise/carbonAwareHome/internal/domain/scheduling"
	"github.com/KollinFreise/carbonAwareHome/internal/store"
)

const DefaultRefreshInterval = 15 * time.Minute

var (
	ErrUnknownLocation = errors.New("unknown location")
	ErrEmptySeries     = errors.New("fetch returned no samples")
)

// Observer is notified after every completed refresh.
type Observer interface {
	ObserveRefresh(location string, duration time.Duration, samples int, err error)
}

type nopObserver struct{}

func (nopObserver) ObserveRefresh(string, time.Duration, int, error) {}

type Options struct {
	Locations       []string
	RefreshInterval time.Duration
	Store           store.Store
	Logger          zerolog.Logger
	Observer        Observer
	Now             func() time.Time
}

// SeriesCache serves reads from atomically swapped snapshots and coalesces
// concurrent refreshes of the same location into one fetch.
type SeriesCache struct {
	fetcher   ci.Fetcher
	store     store.Store
	logger    zerolog.Logger
	observer  Observer
	now       func() time.Time
	interval  time.Duration
	locations []string
	entries   map[string]*atomic.Pointer[Snapshot]
	inflight  singleflight.Group
}

func New(fetcher ci.Fetcher, opts Options) *SeriesCache {
	interval := opts.RefreshInterval
	if interval <= 0 {
		interval = DefaultRefreshInterval
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	st := opts.Store
	if st == nil {
		st = store.Nop{}
	}
	observer := opts.Observer
	if observer == nil {
		observer = nopObserver{}
	}

	c := &SeriesCache{
		fetcher:  fetcher,
		store:    st,
		logger:   opts.Logger.With().Str("component", "series_cache").Logger(),
		observer: observer,
		now:      now,
		interval: interval,
		entries:  make(map[string]*atomic.Pointer[Snapshot], len(opts.Locations)),
	}
	for _, location := range opts.Locations {
		location = normalizeLocation(location)
		if location == "" {
			continue
		}
		if _, ok := c.entries[location]; ok {
			continue
		}
		entry := &atomic.Pointer[Snapshot]{}
		entry.Store(&Snapshot{Location: location, RefreshInterval: interval})
		c.entries[location] = entry
		c.locations = append(c.locations, location)
	}
	return c
}

func normalizeLocation(location string) string {
	return strings.TrimSpace(strings.ToLower(location))
}

// Locations returns the configured locations in configuration order.
func (c *SeriesCache) Locations() []string {
	out := make([]string, len(c.locations))
	copy(out, c.locations)
	return out
}

func (c *SeriesCache) RefreshInterval() time.Duration {
	return c.interval
}

// Read returns the current snapshot without blocking. Unknown locations yield
// an empty snapshot.
func (c *SeriesCache) Read(location string) Snapshot {
	location = normalizeLocation(location)
	entry, ok := c.entries[location]
	if !ok {
		return Snapshot{Location: location}
	}
	return *entry.Load()
}

// Refresh fetches the location once, sharing the in-flight fetch with any
// concurrent caller. The fetch is detached from ctx: cancelling ctx only stops
// this caller's wait.
func (c *SeriesCache) Refresh(ctx context.Context, location string) error {
	location = normalizeLocation(location)
	entry, ok := c.entries[location]
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownLocation, location)
	}

	fetchCtx := context.WithoutCancel(ctx)
	ch := c.inflight.DoChan(location, func() (any, error) {
		return nil, c.refresh(fetchCtx, location, entry)
	})

	select {
	case res := <-ch:
		return res.Err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *SeriesCache) refresh(ctx context.Context, location string, entry *atomic.Pointer[Snapshot]) error {
	started := c.now()
	samples, err := c.fetcher.Fetch(ctx, location, ci.WindowHint{})
	if err == nil {
		samples = scheduling.NormalizeSeries(samples)
		if len(samples) == 0 {
			err = ErrEmptySeries
		}
	}
	elapsed := c.now().Sub(started)

	if err != nil {
		update(entry, func(prev Snapshot) Snapshot {
			prev.LastError = err
			prev.LastAttempt = started
			return prev
		})
		c.observer.ObserveRefresh(location, elapsed, 0, err)

		prev := entry.Load()
		c.logger.Warn().
			Err(err).
			Str("location", location).
			Str("kind", string(ci.KindOf(err))).
			Int("stale_samples", len(prev.Samples)).
			Dur("staleness", prev.Staleness(c.now())).
			Msg("refresh failed, keeping previous series")
		return err
	}

	next := &Snapshot{
		Location:        location,
		Samples:         samples,
		FetchedAt:       c.now().UTC(),
		RefreshInterval: c.interval,
		LastAttempt:     started,
	}
	entry.Store(next)
	c.observer.ObserveRefresh(location, elapsed, len(samples), nil)

	c.logger.Debug().
		Str("location", location).
		Int("samples", len(samples)).
		Time("fetched_at", next.FetchedAt).
		Msg("series refreshed")

	record := store.Record{Location: location, FetchedAt: next.FetchedAt, Samples: samples}
	if err := c.store.Save(ctx, record); err != nil {
		c.logger.Warn().Err(err).Str("location", location).Msg("persist snapshot failed")
	}
	return nil
}

func update(entry *atomic.Pointer[Snapshot], fn func(Snapshot) Snapshot) {
	for {
		prev := entry.Load()
		next := fn(*prev)
		if entry.CompareAndSwap(prev, &next) {
			return
		}
	}
}

// Warm seeds empty entries from the store. Entries already holding data are
// left alone. Store failures are logged, not returned.
func (c *SeriesCache) Warm(ctx context.Context) error {
	for _, location := range c.locations {
		if err := ctx.Err(); err != nil {
			return err
		}

		record, err := c.store.Load(ctx, location)
		if errors.Is(err, store.ErrNotFound) {
			continue
		}
		if err != nil {
			c.logger.Warn().Err(err).Str("location", location).Msg("load persisted snapshot failed")
			continue
		}
		if normalizeLocation(record.Location) != location {
			c.logger.Warn().Str("location", location).Str("record_location", record.Location).Msg("ignoring persisted snapshot for another location")
			continue
		}

		samples := scheduling.NormalizeSeries(record.Samples)
		if len(samples) == 0 {
			continue
		}

		entry := c.entries[location]
		prev := entry.Load()
		if !prev.Empty() {
			continue
		}
		next := &Snapshot{
			Location:        location,
			Samples:         samples,
			FetchedAt:       record.FetchedAt.UTC(),
			RefreshInterval: c.interval,
		}
		if entry.CompareAndSwap(prev, next) {
			c.logger.Info().
				Str("location", location).
				Int("samples", len(samples)).
				Dur("staleness", next.Staleness(c.now())).
				Msg("restored persisted series")
		}
	}
	return nil
}

// Run refreshes every location immediately and then once per interval until
// ctx is cancelled. Refresh failures never stop the loop.
func (c *SeriesCache) Run(ctx context.Context) error {
	g, gCtx := errgroup.WithContext(ctx)
	for _, location := range c.locations {
		g.Go(func() error {
			c.runLocation(gCtx, location)
			return nil
		})
	}
	return g.Wait()
}

func (c *SeriesCache) runLocation(ctx context.Context, location string) {
	_ = c.Refresh(ctx, location)

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			_ = c.Refresh(ctx, location)
		}
	}
}
