// Package store persists the last successfully fetched series per location so
// a restarted process can serve stale data before its first refresh completes.
package store

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/KollinFreise/carbonAwareHome/internal/domain/scheduling"
)

var ErrNotFound = errors.New("snapshot not found")

// Record is the persisted form of a cache snapshot.
type Record struct {
	Location  string                 `json:"location"`
	FetchedAt time.Time              `json:"fetched_at"`
	Samples   []scheduling.RawSample `json:"samples"`
}

type Store interface {
	Save(ctx context.Context, record Record) error
	Load(ctx context.Context, location string) (Record, error)
}

// Nop discards writes and never finds anything.
type Nop struct{}

func (Nop) Save(context.Context, Record) error { return nil }

func (Nop) Load(context.Context, string) (Record, error) { return Record{}, ErrNotFound }

func sanitizeToken(value string) string {
	value = strings.TrimSpace(strings.ToLower(value))
	if value == "" {
		return "unknown"
	}

	var b strings.Builder
	for _, r := range value {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') || r == '-' || r == '_' {
			b.WriteRune(r)
		} else {
			b.WriteRune('_')
		}
	}
	return b.String()
}
