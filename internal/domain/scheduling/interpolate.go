package scheduling

import (
	"sort"
	"time"
)

// ValueAt returns the intensity at t, linearly interpolated between the two
// neighbouring samples. Samples must be sorted ascending. The second return is
// false when t lies outside [first, last]; values are never extrapolated.
// ValueAt 返回时刻 t 的碳强度（相邻样本间线性插值），超出覆盖范围时返回 false，不做外推。
func ValueAt(samples []RawSample, t time.Time) (float64, bool) {
	if len(samples) == 0 {
		return 0, false
	}

	// first sample strictly after t
	idx := sort.Search(len(samples), func(i int) bool {
		return samples[i].Timestamp.After(t)
	})
	if idx == 0 {
		return 0, false
	}

	prev := samples[idx-1]
	if prev.Timestamp.Equal(t) {
		return prev.Intensity, true
	}
	if idx == len(samples) {
		return 0, false
	}

	next := samples[idx]
	span := next.Timestamp.Sub(prev.Timestamp)
	if span <= 0 {
		return prev.Intensity, true
	}

	ratio := float64(t.Sub(prev.Timestamp)) / float64(span)
	return prev.Intensity + (next.Intensity-prev.Intensity)*ratio, true
}

// MinutePoint is one point of a per-minute interpolated series.
type MinutePoint struct {
	Timestamp time.Time `json:"timestamp"`
	Intensity float64   `json:"intensity"`
}

// MinuteSeries samples the interpolated curve once per minute over the part of
// [from, to) that the series covers.
// MinuteSeries 在 [from, to) 与序列覆盖范围的交集上按分钟取插值。
func MinuteSeries(samples []RawSample, from time.Time, to time.Time) []MinutePoint {
	if len(samples) == 0 || !from.Before(to) {
		return nil
	}

	first := samples[0].Timestamp
	last := samples[len(samples)-1].Timestamp
	cursor := from.UTC().Truncate(time.Minute)
	if cursor.Before(from) {
		cursor = cursor.Add(time.Minute)
	}
	if cursor.Before(first) {
		cursor = first.Truncate(time.Minute)
		if cursor.Before(first) {
			cursor = cursor.Add(time.Minute)
		}
	}

	points := make([]MinutePoint, 0)
	for ; cursor.Before(to) && !cursor.After(last); cursor = cursor.Add(time.Minute) {
		value, ok := ValueAt(samples, cursor)
		if !ok {
			continue
		}
		points = append(points, MinutePoint{Timestamp: cursor, Intensity: value})
	}
	return points
}
