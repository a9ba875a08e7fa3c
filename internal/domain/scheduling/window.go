package scheduling

import (
	"errors"
	"fmt"
	"math"
	"time"
)

const (
	MinRuntimeMinutes = 1
	MaxRuntimeMinutes = 24 * 60
)

var (
	ErrInvalidWindow = errors.New("invalid window")
	ErrNoData        = errors.New("no data")
)

// WindowEstimate is the winning candidate of BestStart.
// WindowEstimate 为最优窗口：起始时间、结束时间、平均碳强度及参与计算的样本数。
type WindowEstimate struct {
	Start          time.Time
	End            time.Time
	Mean           float64
	Samples        int
	RuntimeMinutes int
	// Window holds the samples averaged into Mean.
	Window []RawSample
}

// ValidateWindow checks start < end and 1 <= runtime <= min(1440, end-start).
// ValidateWindow 校验窗口：start < end，且运行时长在 [1, 1440] 内并不超过窗口跨度。
func ValidateWindow(start time.Time, end time.Time, runtimeMinutes int) error {
	if start.IsZero() || end.IsZero() {
		return fmt.Errorf("%w: window start and end are required", ErrInvalidWindow)
	}
	if !start.Before(end) {
		return fmt.Errorf("%w: start %s must be before end %s", ErrInvalidWindow, start.Format(time.RFC3339), end.Format(time.RFC3339))
	}
	if runtimeMinutes < MinRuntimeMinutes || runtimeMinutes > MaxRuntimeMinutes {
		return fmt.Errorf("%w: runtime must be within %d..%d minutes, got %d", ErrInvalidWindow, MinRuntimeMinutes, MaxRuntimeMinutes, runtimeMinutes)
	}
	if time.Duration(runtimeMinutes)*time.Minute > end.Sub(start) {
		return fmt.Errorf("%w: runtime %dm exceeds window span %s", ErrInvalidWindow, runtimeMinutes, end.Sub(start))
	}
	return nil
}

// BestStart returns the lowest-mean run of consecutive samples covering
// runtimeMinutes whose first sample lies in [start, end) and in an allowed
// local hour. Candidates start on raw sample timestamps only; ties keep the
// earliest start. loc defaults to UTC.
// BestStart 在 [start, end) 内以滑动窗口求平均碳强度最低的起始样本；
// 候选起点仅限原始样本时间戳，平局取最早者。
func BestStart(samples []RawSample, start time.Time, end time.Time, runtimeMinutes int, allowed HourRanges, loc *time.Location) (WindowEstimate, error) {
	if err := ValidateWindow(start, end, runtimeMinutes); err != nil {
		return WindowEstimate{}, err
	}
	if err := allowed.Validate(); err != nil {
		return WindowEstimate{}, fmt.Errorf("%w: %v", ErrInvalidWindow, err)
	}
	if loc == nil {
		loc = time.UTC
	}

	filtered := ClipToWindow(samples, start, end)
	if len(filtered) == 0 {
		return WindowEstimate{}, fmt.Errorf("%w: no samples between %s and %s", ErrNoData, start.UTC().Format(time.RFC3339), end.UTC().Format(time.RFC3339))
	}

	spacing := InferSpacing(filtered)
	size := WindowSize(runtimeMinutes, spacing)

	var (
		best  WindowEstimate
		found bool
	)
	for _, run := range ContiguousRuns(filtered, spacing) {
		if len(run) < size {
			continue
		}

		sum := 0.0
		for i := 0; i < size; i++ {
			sum += run[i].Intensity
		}

		for i := 0; ; i++ {
			candidate := run[i].Timestamp
			if allowed.Allows(candidate.In(loc).Hour()) {
				mean := sum / float64(size)
				// strict comparison keeps the earliest start on ties
				if !found || mean < best.Mean {
					best = WindowEstimate{
						Start:          candidate,
						End:            candidate.Add(time.Duration(runtimeMinutes) * time.Minute),
						Mean:           mean,
						Samples:        size,
						RuntimeMinutes: runtimeMinutes,
						Window:         run[i : i+size],
					}
					found = true
				}
			}

			next := i + size
			if next >= len(run) {
				break
			}
			sum += run[next].Intensity - run[i].Intensity
		}
	}

	if !found {
		return WindowEstimate{}, fmt.Errorf("%w: no candidate window of %d samples in allowed hours", ErrNoData, size)
	}
	return best, nil
}

// WindowSize is the number of consecutive samples needed to cover runtimeMinutes,
// rounded up.
func WindowSize(runtimeMinutes int, spacing time.Duration) int {
	if spacing <= 0 {
		spacing = NominalSpacing
	}
	size := int(math.Ceil(float64(time.Duration(runtimeMinutes)*time.Minute) / float64(spacing)))
	if size < 1 {
		return 1
	}
	return size
}
