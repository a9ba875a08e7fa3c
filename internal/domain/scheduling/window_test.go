package scheduling

import (
	"errors"
	"math"
	"math/rand"
	"reflect"
	"testing"
	"time"
)

func TestBestStartPicksLowestMeanWindow(t *testing.T) {
	samples := series(0, 400, 15, 390, 30, 380, 45, 420, 60, 410)

	got, err := BestStart(samples, at(0), at(60), 30, nil, time.UTC)
	if err != nil {
		t.Fatalf("BestStart() unexpected error: %v", err)
	}
	if !got.Start.Equal(at(15)) {
		t.Fatalf("BestStart().Start = %s, expected %s", got.Start, at(15))
	}
	if math.Abs(got.Mean-385) > 1e-9 {
		t.Fatalf("BestStart().Mean = %v, expected 385", got.Mean)
	}
	if got.RuntimeMinutes != 30 || got.Samples != 2 {
		t.Fatalf("BestStart() runtime/samples = %d/%d, expected 30/2", got.RuntimeMinutes, got.Samples)
	}
	if !got.End.Equal(at(45)) {
		t.Fatalf("BestStart().End = %s, expected %s", got.End, at(45))
	}
}

func TestBestStartRejectsRuntimeLongerThanWindow(t *testing.T) {
	samples := series(0, 400, 15, 390)

	_, err := BestStart(samples, at(0), at(10), 60, nil, time.UTC)
	if !errors.Is(err, ErrInvalidWindow) {
		t.Fatalf("BestStart() error = %v, expected ErrInvalidWindow", err)
	}
}

func TestValidateWindow(t *testing.T) {
	tests := []struct {
		name    string
		start   time.Time
		end     time.Time
		runtime int
		wantErr bool
	}{
		{name: "valid", start: at(0), end: at(60), runtime: 60},
		{name: "equal bounds", start: at(0), end: at(0), runtime: 1, wantErr: true},
		{name: "inverted", start: at(60), end: at(0), runtime: 1, wantErr: true},
		{name: "zero runtime", start: at(0), end: at(60), runtime: 0, wantErr: true},
		{name: "runtime above a day", start: at(0), end: at(3000), runtime: 1441, wantErr: true},
		{name: "zero start", end: at(60), runtime: 1, wantErr: true},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			err := ValidateWindow(tc.start, tc.end, tc.runtime)
			if tc.wantErr && !errors.Is(err, ErrInvalidWindow) {
				t.Fatalf("ValidateWindow() error = %v, expected ErrInvalidWindow", err)
			}
			if !tc.wantErr && err != nil {
				t.Fatalf("ValidateWindow() unexpected error: %v", err)
			}
		})
	}
}

func TestBestStartNoDataCases(t *testing.T) {
	t.Run("empty series", func(t *testing.T) {
		_, err := BestStart(nil, at(0), at(60), 30, nil, time.UTC)
		if !errors.Is(err, ErrNoData) {
			t.Fatalf("BestStart() error = %v, expected ErrNoData", err)
		}
	})

	t.Run("no run long enough", func(t *testing.T) {
		// gap between 15 and 60 splits the series into two 2-sample runs
		samples := series(0, 400, 15, 390, 60, 380, 75, 370)
		_, err := BestStart(samples, at(0), at(120), 45, nil, time.UTC)
		if !errors.Is(err, ErrNoData) {
			t.Fatalf("BestStart() error = %v, expected ErrNoData", err)
		}
	})

	t.Run("allowed hours exclude every start", func(t *testing.T) {
		samples := series(0, 400, 15, 390, 30, 380)
		_, err := BestStart(samples, at(0), at(60), 15, HourRanges{{Start: 8, End: 21}}, time.UTC)
		if !errors.Is(err, ErrNoData) {
			t.Fatalf("BestStart() error = %v, expected ErrNoData", err)
		}
	})
}

func TestBestStartDoesNotBridgeGaps(t *testing.T) {
	// 30-minute hole between 15 and 45; the low values either side must not pair up
	samples := series(0, 600, 15, 100, 45, 100, 60, 500, 75, 300, 90, 300)

	got, err := BestStart(samples, at(0), at(120), 30, nil, time.UTC)
	if err != nil {
		t.Fatalf("BestStart() unexpected error: %v", err)
	}
	if !got.Start.Equal(at(45)) || math.Abs(got.Mean-300) > 1e-9 {
		t.Fatalf("BestStart() = %s/%v, expected %s/300", got.Start, got.Mean, at(45))
	}
}

func TestBestStartTieKeepsEarliest(t *testing.T) {
	samples := series(0, 300, 15, 300, 30, 300, 45, 300)

	got, err := BestStart(samples, at(0), at(60), 15, nil, time.UTC)
	if err != nil {
		t.Fatalf("BestStart() unexpected error: %v", err)
	}
	if !got.Start.Equal(at(0)) {
		t.Fatalf("BestStart().Start = %s, expected earliest %s", got.Start, at(0))
	}
}

func TestBestStartRoundsWindowSizeUp(t *testing.T) {
	// 20 minutes at 15-minute spacing needs 2 samples, not 1
	samples := series(0, 100, 15, 900, 30, 200, 45, 200)

	got, err := BestStart(samples, at(0), at(60), 20, nil, time.UTC)
	if err != nil {
		t.Fatalf("BestStart() unexpected error: %v", err)
	}
	if got.Samples != 2 {
		t.Fatalf("BestStart().Samples = %d, expected 2", got.Samples)
	}
	if !got.Start.Equal(at(30)) {
		t.Fatalf("BestStart().Start = %s, expected %s", got.Start, at(30))
	}
}

func TestBestStartHonoursAllowedHoursInLocation(t *testing.T) {
	loc := time.FixedZone("UTC+2", 2*60*60)
	start := time.Date(2025, 3, 10, 5, 0, 0, 0, time.UTC) // 07:00 local
	samples := []RawSample{
		{Timestamp: start, Intensity: 100},
		{Timestamp: start.Add(1 * time.Hour), Intensity: 300},
		{Timestamp: start.Add(2 * time.Hour), Intensity: 200},
	}
	allowed := HourRanges{{Start: 8, End: 21}}

	got, err := BestStart(samples, start, start.Add(3*time.Hour), 60, allowed, loc)
	if err != nil {
		t.Fatalf("BestStart() unexpected error: %v", err)
	}
	if !got.Start.Equal(start.Add(2 * time.Hour)) {
		t.Fatalf("BestStart().Start = %s, expected %s", got.Start, start.Add(2*time.Hour))
	}
}

func TestBestStartIsGloballyMinimalAndIdempotent(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	samples := make([]RawSample, 0, 96)
	for i := 0; i < 96; i++ {
		samples = append(samples, RawSample{
			Timestamp: at(float64(i * 15)),
			Intensity: 100 + rng.Float64()*400,
		})
	}
	start, end := at(0), at(96*15)

	for _, runtime := range []int{15, 40, 90, 240} {
		first, err := BestStart(samples, start, end, runtime, nil, time.UTC)
		if err != nil {
			t.Fatalf("BestStart(%d) unexpected error: %v", runtime, err)
		}
		second, err := BestStart(samples, start, end, runtime, nil, time.UTC)
		if err != nil {
			t.Fatalf("BestStart(%d) second call unexpected error: %v", runtime, err)
		}
		if !reflect.DeepEqual(first, second) {
			t.Fatalf("BestStart(%d) not idempotent: %+v vs %+v", runtime, first, second)
		}

		size := WindowSize(runtime, 15*time.Minute)
		for i := 0; i+size <= len(samples); i++ {
			sum := 0.0
			for _, sample := range samples[i : i+size] {
				sum += sample.Intensity
			}
			if mean := sum / float64(size); mean < first.Mean-1e-9 {
				t.Fatalf("runtime %d: window at %d has mean %v below reported best %v", runtime, i, mean, first.Mean)
			}
		}
	}
}

func TestWindowSize(t *testing.T) {
	tests := []struct {
		runtime  int
		spacing  time.Duration
		expected int
	}{
		{runtime: 1, spacing: 15 * time.Minute, expected: 1},
		{runtime: 15, spacing: 15 * time.Minute, expected: 1},
		{runtime: 16, spacing: 15 * time.Minute, expected: 2},
		{runtime: 60, spacing: 15 * time.Minute, expected: 4},
		{runtime: 60, spacing: time.Hour, expected: 1},
		{runtime: 30, spacing: 0, expected: 2},
	}

	for _, tc := range tests {
		if got := WindowSize(tc.runtime, tc.spacing); got != tc.expected {
			t.Fatalf("WindowSize(%d, %s) = %d, expected %d", tc.runtime, tc.spacing, got, tc.expected)
		}
	}
}

func TestBestStartToleratesOffGridSample(t *testing.T) {
	var samples []RawSample
	for i := 0; i < 16; i++ {
		samples = append(samples, RawSample{Timestamp: at(float64(i * 15)), Intensity: 300})
	}
	// an off-grid reading two minutes after the first sample
	samples = append(samples, RawSample{Timestamp: at(2), Intensity: 300})
	samples[9].Intensity = 100
	samples[10].Intensity = 100
	samples[11].Intensity = 100
	samples[12].Intensity = 100
	samples = NormalizeSeries(samples)

	if got := InferSpacing(samples); got != 15*time.Minute {
		t.Fatalf("InferSpacing() = %s, expected 15m", got)
	}

	got, err := BestStart(samples, at(0), at(240), 60, nil, time.UTC)
	if err != nil {
		t.Fatalf("BestStart() unexpected error: %v", err)
	}
	if got.Samples != 4 || len(got.Window) != 4 {
		t.Fatalf("BestStart() samples = %d (window %d), expected 4", got.Samples, len(got.Window))
	}
	if !got.Start.Equal(at(135)) {
		t.Fatalf("BestStart().Start = %s, expected %s", got.Start, at(135))
	}
	if math.Abs(got.Mean-100) > 1e-9 {
		t.Fatalf("BestStart().Mean = %v, expected 100", got.Mean)
	}
}
