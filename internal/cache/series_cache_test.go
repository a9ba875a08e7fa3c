package cache

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/KollinFreise/carbonAwareHome/internal/ci"
	"github.com/KollinFreise/carbonAwareHome/internal/domain/scheduling"
	"github.com/KollinFreise/carbonAwareHome/internal/store"
)

var cacheNow = time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)

func testSeries(values ...float64) []scheduling.RawSample {
	samples := make([]scheduling.RawSample, 0, len(values))
	for i, v := range values {
		samples = append(samples, scheduling.RawSample{
			Timestamp: cacheNow.Add(time.Duration(i) * 15 * time.Minute),
			Intensity: v,
		})
	}
	return samples
}

type scriptedFetcher struct {
	mu      sync.Mutex
	calls   atomic.Int32
	results []fetchResult
}

type fetchResult struct {
	samples []scheduling.RawSample
	err     error
}

func (f *scriptedFetcher) Fetch(_ context.Context, _ string, _ ci.WindowHint) ([]scheduling.RawSample, error) {
	f.calls.Add(1)
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.results) == 0 {
		return testSeries(100), nil
	}
	res := f.results[0]
	f.results = f.results[1:]
	return res.samples, res.err
}

type blockingFetcher struct {
	calls   atomic.Int32
	started chan struct{}
	release chan struct{}
	once    sync.Once
}

func newBlockingFetcher() *blockingFetcher {
	return &blockingFetcher{started: make(chan struct{}), release: make(chan struct{})}
}

func (f *blockingFetcher) Fetch(_ context.Context, _ string, _ ci.WindowHint) ([]scheduling.RawSample, error) {
	f.calls.Add(1)
	f.once.Do(func() { close(f.started) })
	<-f.release
	return testSeries(400, 390), nil
}

type refreshRecorder struct {
	mu     sync.Mutex
	counts map[string]int
	errs   int
}

func (r *refreshRecorder) ObserveRefresh(location string, _ time.Duration, _ int, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.counts == nil {
		r.counts = map[string]int{}
	}
	r.counts[location]++
	if err != nil {
		r.errs++
	}
}

func newTestCache(fetcher ci.Fetcher, opts Options) *SeriesCache {
	if opts.Locations == nil {
		opts.Locations = []string{"de"}
	}
	if opts.Now == nil {
		opts.Now = func() time.Time { return cacheNow }
	}
	opts.Logger = zerolog.Nop()
	return New(fetcher, opts)
}

func TestReadBeforeAnyFetchIsEmpty(t *testing.T) {
	c := newTestCache(&scriptedFetcher{}, Options{})

	snap := c.Read("de")
	assert.True(t, snap.Empty())
	assert.Equal(t, "de", snap.Location)
	assert.Zero(t, snap.Staleness(cacheNow))
	assert.True(t, snap.Stale(cacheNow))

	assert.True(t, c.Read("fr").Empty())
}

func TestRefreshSwapsSnapshot(t *testing.T) {
	persisted := store.NewFileStore(t.TempDir())
	c := newTestCache(&scriptedFetcher{results: []fetchResult{{samples: testSeries(400, 390, 380)}}}, Options{Store: persisted})

	require.NoError(t, c.Refresh(context.Background(), "DE"))

	snap := c.Read("de")
	require.Len(t, snap.Samples, 3)
	assert.Equal(t, cacheNow, snap.FetchedAt)
	assert.Equal(t, 10*time.Minute, snap.Staleness(cacheNow.Add(10*time.Minute)))
	assert.NoError(t, snap.LastError)
	assert.False(t, snap.Stale(cacheNow.Add(20*time.Minute)))

	record, err := persisted.Load(context.Background(), "de")
	require.NoError(t, err)
	assert.Len(t, record.Samples, 3)
}

func TestRefreshFailureKeepsStaleSeries(t *testing.T) {
	fetchErr := ci.NewProviderError(ci.ErrorKindTimeout, "fetch", "de", context.DeadlineExceeded)
	recorder := &refreshRecorder{}
	c := newTestCache(&scriptedFetcher{results: []fetchResult{
		{samples: testSeries(400, 390)},
		{err: fetchErr},
		{samples: nil},
	}}, Options{Observer: recorder})

	require.NoError(t, c.Refresh(context.Background(), "de"))
	before := c.Read("de")

	err := c.Refresh(context.Background(), "de")
	require.ErrorIs(t, err, context.DeadlineExceeded)

	after := c.Read("de")
	assert.Equal(t, before.Samples, after.Samples)
	assert.Equal(t, before.FetchedAt, after.FetchedAt)
	assert.True(t, ci.IsKind(after.LastError, ci.ErrorKindTimeout))

	err = c.Refresh(context.Background(), "de")
	require.ErrorIs(t, err, ErrEmptySeries)
	assert.Len(t, c.Read("de").Samples, 2)

	assert.Equal(t, 3, recorder.counts["de"])
	assert.Equal(t, 2, recorder.errs)
}

func TestRefreshUnknownLocation(t *testing.T) {
	c := newTestCache(&scriptedFetcher{}, Options{})
	err := c.Refresh(context.Background(), "xx")
	assert.ErrorIs(t, err, ErrUnknownLocation)
}

func TestConcurrentRefreshIssuesSingleFetch(t *testing.T) {
	fetcher := newBlockingFetcher()
	c := newTestCache(fetcher, Options{})

	const callers = 8
	var wg sync.WaitGroup
	errs := make(chan error, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs <- c.Refresh(context.Background(), "de")
		}()
	}

	<-fetcher.started
	time.Sleep(50 * time.Millisecond)
	close(fetcher.release)
	wg.Wait()
	close(errs)

	for err := range errs {
		require.NoError(t, err)
	}
	assert.Equal(t, int32(1), fetcher.calls.Load())
	assert.Len(t, c.Read("de").Samples, 2)
}

func TestCallerCancellationDoesNotAbortSharedFetch(t *testing.T) {
	fetcher := newBlockingFetcher()
	c := newTestCache(fetcher, Options{})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- c.Refresh(ctx, "de") }()

	<-fetcher.started
	cancel()
	require.ErrorIs(t, <-done, context.Canceled)

	close(fetcher.release)
	assert.Eventually(t, func() bool {
		return len(c.Read("de").Samples) == 2
	}, time.Second, 5*time.Millisecond)
}

func TestWarmRestoresPersistedSeries(t *testing.T) {
	persisted := store.NewFileStore(t.TempDir())
	fetchedAt := cacheNow.Add(-40 * time.Minute)
	require.NoError(t, persisted.Save(context.Background(), store.Record{
		Location:  "de",
		FetchedAt: fetchedAt,
		Samples:   testSeries(300, 310),
	}))
	require.NoError(t, persisted.Save(context.Background(), store.Record{
		Location:  "fr",
		FetchedAt: fetchedAt,
		Samples:   testSeries(50),
	}))

	c := newTestCache(&scriptedFetcher{results: []fetchResult{{samples: testSeries(1, 2, 3)}}}, Options{
		Locations: []string{"de", "fr", "at"},
		Store:     persisted,
	})
	require.NoError(t, c.Refresh(context.Background(), "fr"))
	require.NoError(t, c.Warm(context.Background()))

	de := c.Read("de")
	require.Len(t, de.Samples, 2)
	assert.True(t, fetchedAt.Equal(de.FetchedAt))
	assert.Equal(t, 40*time.Minute, de.Staleness(cacheNow))

	// fresher in-memory data wins over the persisted record
	assert.Len(t, c.Read("fr").Samples, 3)
	assert.True(t, c.Read("at").Empty())
}

func TestRunRefreshesEveryLocationUntilCancelled(t *testing.T) {
	fetcher := &scriptedFetcher{}
	recorder := &refreshRecorder{}
	c := New(fetcher, Options{
		Locations:       []string{"de", "fr"},
		RefreshInterval: 10 * time.Millisecond,
		Observer:        recorder,
		Logger:          zerolog.Nop(),
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- c.Run(ctx) }()

	assert.Eventually(t, func() bool {
		recorder.mu.Lock()
		defer recorder.mu.Unlock()
		return recorder.counts["de"] >= 3 && recorder.counts["fr"] >= 3
	}, 2*time.Second, 5*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("Run did not stop after cancellation")
	}
	assert.False(t, c.Read("fr").Empty())
}

func TestNewDeduplicatesLocations(t *testing.T) {
	c := New(&scriptedFetcher{}, Options{Locations: []string{"DE", "de", " fr ", ""}})
	assert.Equal(t, []string{"de", "fr"}, c.Locations())
	assert.Equal(t, DefaultRefreshInterval, c.RefreshInterval())
}

func TestSnapshotCoverage(t *testing.T) {
	_, _, ok := Snapshot{}.Coverage()
	assert.False(t, ok)

	first, last, ok := Snapshot{Samples: testSeries(1, 2, 3)}.Coverage()
	require.True(t, ok)
	assert.Equal(t, cacheNow, first)
	assert.Equal(t, cacheNow.Add(30*time.Minute), last)
}
