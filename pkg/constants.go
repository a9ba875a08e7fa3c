package pkg

import "strings"

const (
	JSONSchemaVersion = "v1"

	IntensityUnit    = "gCO2eq/kWh"
	WattsPerKilowatt = 1000.0
	MinutesPerHour   = 60.0

	DefaultLocation        = "de"
	DefaultRuntimeMinutes  = 60
	DefaultRefreshInterval = 15

	CIScoreGreenMaxGPerKWh  = 200.0
	CIScoreYellowMaxGPerKWh = 400.0

	SmartphoneChargeKWh = 0.012
	EVKilometerKWh      = 0.15
)

// SupportedLocations are the country codes served by the Energy-Charts co2eq endpoint.
var SupportedLocations = []string{
	"at", "be", "bg", "ch", "cz", "de", "dk", "ee", "es", "fi",
	"fr", "gr", "hr", "hu", "ie", "it", "lt", "lu", "lv", "nl",
	"no", "pl", "pt", "ro", "rs", "se", "si", "sk", "uk",
}

func IsSupportedLocation(location string) bool {
	location = strings.TrimSpace(strings.ToLower(location))
	for _, supported := range SupportedLocations {
		if supported == location {
			return true
		}
	}
	return false
}
