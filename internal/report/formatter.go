package report

import (
	"encoding/json"
	"fmt"
	"math"
	"time"

	"github.com/KollinFreise/carbonAwareHome/internal/app"
	"github.com/KollinFreise/carbonAwareHome/pkg"
)

const divider = "-----------------------------------"

type emissionUnit struct {
	Symbol   string
	Multiple float64
}

// Multiples are relative to grams.
var commonEmissionUnits = []emissionUnit{
	{Symbol: "tCO2", Multiple: 1e-6},
	{Symbol: "kgCO2", Multiple: 1e-3},
	{Symbol: "gCO2", Multiple: 1},
	{Symbol: "mgCO2", Multiple: 1e3},
}

const (
	autoUnitMinValue = 1.0
	autoUnitMaxValue = 1000.0
)

type bestTimeJSON struct {
	SchemaVersion string `json:"schema_version"`
	app.ForecastResult
}

type currentJSON struct {
	SchemaVersion string `json:"schema_version"`
	app.SensorState
}

// BestTime renders a best-time result. Local times are shown in loc.
func BestTime(result app.ForecastResult, asJSON bool, loc *time.Location) string {
	if asJSON {
		data, err := json.MarshalIndent(bestTimeJSON{SchemaVersion: pkg.JSONSchemaVersion, ForecastResult: result}, "", "  ")
		if err != nil {
			return fmt.Sprintf("{\n  \"status\": %q\n}\n", result.Status)
		}
		return string(data) + "\n"
	}
	if loc == nil {
		loc = time.Local
	}

	report := fmt.Sprintf(
		"%s\nBest Start Report\n%s\nStatus: %s\nLocation: %s\nWindow: %s -> %s\nRuntime: %d min\n",
		divider,
		divider,
		result.Status,
		result.Location,
		result.WindowStart,
		result.WindowEnd,
		result.RuntimeMinutes,
	)

	if result.Status != app.StatusOK || result.BestStart == nil || result.AvgIntensity == nil {
		if result.Message != "" {
			report += fmt.Sprintf("Reason: %s\n", result.Message)
		}
		return report + divider + "\n"
	}

	report += fmt.Sprintf("Best Start: %s (%s UTC)\n",
		result.BestStart.In(loc).Format("2006-01-02 15:04 MST"),
		result.BestStart.UTC().Format("15:04"))
	if result.BestEnd != nil {
		report += fmt.Sprintf("Expected End: %s\n", result.BestEnd.In(loc).Format("2006-01-02 15:04 MST"))
	}
	score, emoji := carbonScore(*result.AvgIntensity)
	report += fmt.Sprintf("Average Intensity: %.2f %s\nCarbon Score: %s %s\n", *result.AvgIntensity, pkg.IntensityUnit, score, emoji)

	if result.EstimatedEmissionGrams != nil {
		grams := *result.EstimatedEmissionGrams
		report += fmt.Sprintf("Estimated Emissions: %s\n", formatEmissionDisplay(grams))
		if energyKWh := energyFromEmission(grams, *result.AvgIntensity); energyKWh > 0 {
			report += fmt.Sprintf("Fun Facts:\n- Equivalent to charging %.2f smartphones\n- Equivalent to driving %.2f km in an EV\n",
				energyKWh/pkg.SmartphoneChargeKWh,
				energyKWh/pkg.EVKilometerKWh)
		}
	}

	return report + divider + "\n"
}

// Current renders the current-intensity sensor state.
func Current(state app.SensorState, asJSON bool) string {
	if asJSON {
		data, err := json.MarshalIndent(currentJSON{SchemaVersion: pkg.JSONSchemaVersion, SensorState: state}, "", "  ")
		if err != nil {
			return fmt.Sprintf("{\n  \"status\": %q\n}\n", state.Attributes.Status)
		}
		return string(data) + "\n"
	}

	report := fmt.Sprintf("%s\nCurrent Carbon Intensity\n%s\nLocation: %s\nStatus: %s\n",
		divider, divider, state.Attributes.Location, state.Attributes.Status)
	if state.State != nil {
		score, emoji := carbonScore(*state.State)
		report += fmt.Sprintf("Intensity: %.2f %s\nCarbon Score: %s %s\nTimestamp: %s\n",
			*state.State, state.Unit, score, emoji, state.Attributes.TimestampUTC)
	}
	if state.Attributes.CacheAgeSeconds != nil {
		report += fmt.Sprintf("Cache Age: %s\n", (time.Duration(*state.Attributes.CacheAgeSeconds) * time.Second).String())
	}
	report += fmt.Sprintf("Series Length: %d\n", state.Attributes.SeriesLength)
	return report + divider + "\n"
}

func energyFromEmission(grams float64, intensity float64) float64 {
	if grams <= 0 || intensity <= 0 {
		return 0
	}
	return grams / intensity
}

func carbonScore(intensity float64) (string, string) {
	switch {
	case intensity <= 0:
		return "C", "🏭"
	case intensity < pkg.CIScoreGreenMaxGPerKWh:
		return "A", "🌿"
	case intensity < pkg.CIScoreYellowMaxGPerKWh:
		return "B", "⚠️"
	default:
		return "C", "🏭"
	}
}

func formatEmissionDisplay(grams float64) string {
	primary := autoScaledEmission(grams)
	gRef := fmt.Sprintf("%.2f gCO2", app.Round2(grams))
	if primary.Symbol == "gCO2" {
		return gRef
	}
	return fmt.Sprintf("%s (%s)", formatScaledEmission(primary.Value, primary.Symbol), gRef)
}

func formatScaledEmission(value float64, symbol string) string {
	abs := math.Abs(value)
	switch {
	case abs >= 100:
		return fmt.Sprintf("%.1f %s", value, symbol)
	case abs >= 1:
		return fmt.Sprintf("%.2f %s", value, symbol)
	case abs >= 0.1:
		return fmt.Sprintf("%.3f %s", value, symbol)
	default:
		return fmt.Sprintf("%.4f %s", value, symbol)
	}
}

type scaledEmission struct {
	Value  float64
	Symbol string
}

func autoScaledEmission(grams float64) scaledEmission {
	if grams == 0 {
		return scaledEmission{Value: 0, Symbol: "gCO2"}
	}

	abs := math.Abs(grams)
	for _, u := range commonEmissionUnits {
		v := abs * u.Multiple
		if v >= autoUnitMinValue && v < autoUnitMaxValue {
			return scaledEmission{Value: grams * u.Multiple, Symbol: u.Symbol}
		}
	}

	smallest := commonEmissionUnits[len(commonEmissionUnits)-1]
	largest := commonEmissionUnits[0]
	if abs*smallest.Multiple < autoUnitMinValue {
		return scaledEmission{Value: grams * smallest.Multiple, Symbol: smallest.Symbol}
	}
	return scaledEmission{Value: grams * largest.Multiple, Symbol: largest.Symbol}
}
