package calculator

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/KollinFreise/carbonAwareHome/internal/domain/scheduling"
	"github.com/KollinFreise/carbonAwareHome/pkg"
	"github.com/KollinFreise/carbonAwareHome/pkg/models"
)

type Segment struct {
	Minutes   float64
	Intensity float64 // gCO2eq/kWh
}

func EnergyKWh(watts float64, minutes float64) float64 {
	if watts <= 0 || minutes <= 0 {
		return 0
	}
	return watts / pkg.WattsPerKilowatt * minutes / pkg.MinutesPerHour
}

func EstimateEmissionsWithSegments(segments []Segment, watts float64) float64 {
	total := 0.0
	for _, segment := range segments {
		total += EnergyKWh(watts, segment.Minutes) * segment.Intensity
	}
	return total
}

// WindowSegments splits runtimeMinutes over a run of samples. Each sample holds
// until the next one; the last sample covers whatever runtime remains.
func WindowSegments(samples []scheduling.RawSample, runtimeMinutes int) []Segment {
	remaining := float64(runtimeMinutes)
	segments := make([]Segment, 0, len(samples))
	for i, sample := range samples {
		if remaining <= 0 {
			break
		}
		minutes := remaining
		if i+1 < len(samples) {
			minutes = math.Min(remaining, samples[i+1].Timestamp.Sub(sample.Timestamp).Minutes())
		}
		segments = append(segments, Segment{Minutes: minutes, Intensity: sample.Intensity})
		remaining -= minutes
	}
	return segments
}

// ResolvePower returns watts when positive, otherwise the named appliance's draw.
func ResolvePower(appliance string, watts float64) (float64, error) {
	if watts > 0 {
		return watts, nil
	}
	appliance = strings.TrimSpace(strings.ToLower(appliance))
	if appliance == "" {
		return 0, nil
	}
	profile, ok := models.ApplianceProfiles[appliance]
	if !ok {
		return 0, fmt.Errorf("unknown appliance %q (known: %s)", appliance, strings.Join(KnownAppliances(), ", "))
	}
	return profile.Watts, nil
}

func KnownAppliances() []string {
	names := make([]string, 0, len(models.ApplianceProfiles))
	for name := range models.ApplianceProfiles {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
