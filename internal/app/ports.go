package app

import "github.com/KollinFreise/carbonAwareHome/internal/cache"

// SeriesReader is the read side of the series cache.
type SeriesReader interface {
	Read(location string) cache.Snapshot
}

type ResultObserver interface {
	ObserveResult(status string)
}

type nopObserver struct{}

func (nopObserver) ObserveResult(string) {}
