package cache

import (
	"time"

	"github.com/KollinFreise/carbonAwareHome/internal/domain/scheduling"
)

// Snapshot is an immutable view of one location's series. Samples is never
// modified after the snapshot is published.
type Snapshot struct {
	Location        string
	Samples         []scheduling.RawSample
	FetchedAt       time.Time
	RefreshInterval time.Duration

	// LastError is the most recent refresh failure, cleared by a successful refresh.
	LastError   error
	LastAttempt time.Time
}

func (s Snapshot) Empty() bool {
	return len(s.Samples) == 0
}

// Staleness is now - FetchedAt, or zero when nothing was ever fetched.
func (s Snapshot) Staleness(now time.Time) time.Duration {
	if s.FetchedAt.IsZero() {
		return 0
	}
	return now.Sub(s.FetchedAt)
}

// Stale reports whether the snapshot missed at least two refresh intervals.
func (s Snapshot) Stale(now time.Time) bool {
	if s.FetchedAt.IsZero() || s.RefreshInterval <= 0 {
		return true
	}
	return s.Staleness(now) > 2*s.RefreshInterval
}

// Coverage returns the first and last sample timestamps.
func (s Snapshot) Coverage() (time.Time, time.Time, bool) {
	if s.Empty() {
		return time.Time{}, time.Time{}, false
	}
	return s.Samples[0].Timestamp, s.Samples[len(s.Samples)-1].Timestamp, true
}
