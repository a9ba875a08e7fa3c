package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/KollinFreise/carbonAwareHome/internal/cache"
	"github.com/KollinFreise/carbonAwareHome/internal/ci"
	"github.com/KollinFreise/carbonAwareHome/internal/domain/scheduling"
)

var (
	ErrInvalidDatetime = errors.New("invalid datetime")
	ErrInvalidWindow   = errors.New("invalid window")
	ErrNoData          = errors.New("no data")
	ErrTimeout         = errors.New("timeout")
	ErrProvider        = errors.New("provider error")
)

// StatusFromError maps an error returned by this package to its result status.
func StatusFromError(err error) Status {
	switch {
	case err == nil:
		return StatusOK
	case errors.Is(err, ErrInvalidDatetime):
		return StatusInvalidDatetime
	case errors.Is(err, ErrInvalidWindow):
		return StatusInvalidWindow
	case errors.Is(err, ErrNoData):
		return StatusNoData
	case errors.Is(err, ErrTimeout):
		return StatusTimeout
	default:
		return StatusError
	}
}

func wrapDomainError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, scheduling.ErrInvalidWindow):
		return fmt.Errorf("%w: %v", ErrInvalidWindow, err)
	case errors.Is(err, scheduling.ErrNoData):
		return fmt.Errorf("%w: %v", ErrNoData, err)
	}
	return err
}

func wrapProviderError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrInvalidDatetime) ||
		errors.Is(err, ErrInvalidWindow) ||
		errors.Is(err, ErrNoData) ||
		errors.Is(err, ErrTimeout) ||
		errors.Is(err, ErrProvider) {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) || ci.IsKind(err, ci.ErrorKindTimeout) {
		return fmt.Errorf("%w: %v", ErrTimeout, err)
	}
	return fmt.Errorf("%w: %v", ErrProvider, err)
}

// emptySeriesError explains why a snapshot holds no samples: never fetched,
// or every fetch so far has failed.
func emptySeriesError(snap cache.Snapshot) error {
	if snap.LastError == nil {
		return fmt.Errorf("%w: no series cached for location %s yet", ErrNoData, snap.Location)
	}
	return wrapProviderError(snap.LastError)
}

func contextError(ctx context.Context) error {
	err := ctx.Err()
	if err == nil {
		return nil
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %v", ErrTimeout, err)
	}
	return err
}
