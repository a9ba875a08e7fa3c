package cmd

import (
	"fmt"
	"os"
	"strings"

	"github.com/KollinFreise/carbonAwareHome/pkg"
)

const locationAuto = "auto"

type resolvedLocation struct {
	Location   string
	Source     string
	Confidence string
}

// resolveLocation picks the query location: the flag, then the configured
// location. "auto" tries the locale and TZ hints before falling back.
func resolveLocation(explicit string, configured string) (resolvedLocation, error) {
	explicit = normalizeLocation(explicit)
	switch explicit {
	case "":
	case locationAuto:
		if auto, ok := resolveAutoLocation(); ok {
			return auto, nil
		}
	default:
		if !pkg.IsSupportedLocation(explicit) {
			return resolvedLocation{}, fmt.Errorf("unsupported location %q (supported: %s)",
				explicit, strings.Join(pkg.SupportedLocations, ", "))
		}
		return resolvedLocation{Location: explicit, Source: "cli", Confidence: "high"}, nil
	}

	configured = normalizeLocation(configured)
	if configured == "" {
		return resolvedLocation{}, fmt.Errorf("location is required (set --location or CARBON_AWARE_LOCATION)")
	}
	return resolvedLocation{Location: configured, Source: "config", Confidence: "medium"}, nil
}

func normalizeLocation(location string) string {
	return strings.ToLower(strings.TrimSpace(location))
}

func resolveAutoLocation() (resolvedLocation, bool) {
	if country, source, ok := detectCountryHint(); ok {
		if location := countryToLocation(country); location != "" {
			return resolvedLocation{Location: location, Source: source, Confidence: "low"}, true
		}
	}
	return resolvedLocation{}, false
}

func detectCountryHint() (string, string, bool) {
	for _, key := range []string{"LC_ALL", "LC_MESSAGES", "LANG"} {
		if country, ok := countryFromLocale(os.Getenv(key)); ok {
			return country, "auto:locale", true
		}
	}
	if country, ok := countryFromTZ(os.Getenv("TZ")); ok {
		return country, "auto:tz", true
	}
	return "", "", false
}

// countryFromLocale extracts the territory of a POSIX locale such as
// "de_DE.UTF-8" or "en-GB".
func countryFromLocale(locale string) (string, bool) {
	locale = strings.TrimSpace(locale)
	if locale == "" || locale == "C" || locale == "POSIX" {
		return "", false
	}
	if idx := strings.IndexAny(locale, ".@"); idx >= 0 {
		locale = locale[:idx]
	}
	parts := strings.FieldsFunc(locale, func(r rune) bool { return r == '_' || r == '-' })
	if len(parts) < 2 {
		return "", false
	}
	country := strings.ToUpper(parts[len(parts)-1])
	if !isAlpha2(country) {
		return "", false
	}
	return country, true
}

func countryFromTZ(tz string) (string, bool) {
	tz = strings.TrimPrefix(strings.TrimSpace(tz), ":")
	country, ok := tzCountryHints[tz]
	return country, ok
}

func isAlpha2(value string) bool {
	if len(value) != 2 {
		return false
	}
	for _, r := range value {
		if r < 'A' || r > 'Z' {
			return false
		}
	}
	return true
}

// countryToLocation maps an ISO 3166 country to its Energy-Charts code.
func countryToLocation(country string) string {
	country = strings.ToUpper(strings.TrimSpace(country))
	if country == "GB" {
		return "uk"
	}
	location := strings.ToLower(country)
	if !pkg.IsSupportedLocation(location) {
		return ""
	}
	return location
}

var tzCountryHints = map[string]string{
	"Europe/Vienna":     "AT",
	"Europe/Brussels":   "BE",
	"Europe/Sofia":      "BG",
	"Europe/Zurich":     "CH",
	"Europe/Prague":     "CZ",
	"Europe/Berlin":     "DE",
	"Europe/Copenhagen": "DK",
	"Europe/Tallinn":    "EE",
	"Europe/Madrid":     "ES",
	"Europe/Helsinki":   "FI",
	"Europe/Paris":      "FR",
	"Europe/Athens":     "GR",
	"Europe/Zagreb":     "HR",
	"Europe/Budapest":   "HU",
	"Europe/Dublin":     "IE",
	"Europe/Rome":       "IT",
	"Europe/Vilnius":    "LT",
	"Europe/Luxembourg": "LU",
	"Europe/Riga":       "LV",
	"Europe/Amsterdam":  "NL",
	"Europe/Oslo":       "NO",
	"Europe/Warsaw":     "PL",
	"Europe/Lisbon":     "PT",
	"Europe/Bucharest":  "RO",
	"Europe/Belgrade":   "RS",
	"Europe/Stockholm":  "SE",
	"Europe/Ljubljana":  "SI",
	"Europe/Bratislava": "SK",
	"Europe/London":     "GB",
}
