package scheduling

import (
	"sort"
	"time"
)

// NominalSpacing is the reporting interval of the raw carbon-intensity source.
// NominalSpacing 为原始碳强度数据源的标称采样间隔。
const NominalSpacing = 15 * time.Minute

// contiguityFactor bounds the delta that still counts as "next sample" inside a run.
const contiguityFactor = 1.5

// RawSample is one reported carbon-intensity measurement in gCO2eq/kWh.
// RawSample 表示某一时刻上报的碳强度（gCO2eq/kWh）。
type RawSample struct {
	Timestamp time.Time `json:"timestamp"`
	Intensity float64   `json:"intensity"`
}

// NormalizeSeries converts timestamps to UTC second precision, sorts ascending
// and keeps the first sample of each duplicated timestamp.
// NormalizeSeries 将时间戳统一为 UTC 秒精度、升序排序，重复时间戳只保留首个样本。
func NormalizeSeries(samples []RawSample) []RawSample {
	out := make([]RawSample, len(samples))
	for i, sample := range samples {
		out[i] = RawSample{
			Timestamp: sample.Timestamp.UTC().Truncate(time.Second),
			Intensity: sample.Intensity,
		}
	}

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Timestamp.Before(out[j].Timestamp)
	})

	deduped := out[:0]
	for i, sample := range out {
		if i > 0 && sample.Timestamp.Equal(deduped[len(deduped)-1].Timestamp) {
			continue
		}
		deduped = append(deduped, sample)
	}
	return deduped
}

// ClipToWindow returns the samples whose timestamp lies in [start, end).
// ClipToWindow 返回时间戳位于 [start, end) 区间内的样本。
func ClipToWindow(samples []RawSample, start time.Time, end time.Time) []RawSample {
	start = start.UTC()
	end = end.UTC()

	lo := sort.Search(len(samples), func(i int) bool {
		return !samples[i].Timestamp.Before(start)
	})
	hi := sort.Search(len(samples), func(i int) bool {
		return !samples[i].Timestamp.Before(end)
	})
	if lo >= hi {
		return nil
	}
	return samples[lo:hi]
}

// InferSpacing returns the lower median of the positive deltas between
// consecutive samples. Gaps and stray off-grid samples move the extremes, not
// the median, so the reporting interval survives both.
// InferSpacing 返回相邻样本正间隔的下中位数；缺口与偏离网格的零散样本只影响极值，不影响中位数。
func InferSpacing(samples []RawSample) time.Duration {
	deltas := make([]time.Duration, 0, len(samples))
	for i := 1; i < len(samples); i++ {
		if delta := samples[i].Timestamp.Sub(samples[i-1].Timestamp); delta > 0 {
			deltas = append(deltas, delta)
		}
	}
	if len(deltas) == 0 {
		return NominalSpacing
	}
	sort.Slice(deltas, func(i, j int) bool { return deltas[i] < deltas[j] })
	return deltas[(len(deltas)-1)/2]
}

// ContiguousRuns splits a sorted series wherever the delta exceeds the spacing tolerance.
// ContiguousRuns 在间隔超出容差处切分有序序列，返回若干连续片段。
func ContiguousRuns(samples []RawSample, spacing time.Duration) [][]RawSample {
	if len(samples) == 0 {
		return nil
	}
	if spacing <= 0 {
		spacing = NominalSpacing
	}

	maxDelta := time.Duration(float64(spacing) * contiguityFactor)
	runs := make([][]RawSample, 0, 1)
	begin := 0
	for i := 1; i < len(samples); i++ {
		if samples[i].Timestamp.Sub(samples[i-1].Timestamp) > maxDelta {
			runs = append(runs, samples[begin:i])
			begin = i
		}
	}
	return append(runs, samples[begin:])
}
