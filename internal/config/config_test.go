package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		EnvConfigPath,
		"CARBON_AWARE_LOCATION",
		"CARBON_AWARE_LOCATIONS",
		"CARBON_AWARE_REFRESH_INTERVAL_MINUTES",
		"CARBON_AWARE_FETCH_TIMEOUT",
		"CARBON_AWARE_OUTPUT",
		"CARBON_AWARE_STORE_DRIVER",
		"CARBON_AWARE_LOG_LEVEL",
		"CARBON_AWARE_TIMEZONE",
	} {
		t.Setenv(key, "")
		os.Unsetenv(key)
	}
}

func TestLoadDefaults(t *testing.T) {
	clearEnv(t)

	got, err := Load("")
	if err != nil {
		t.Fatalf("Load() unexpected error: %v", err)
	}

	if got.Location != "de" {
		t.Fatalf("Location = %q, expected %q", got.Location, "de")
	}
	if got.RefreshIntervalMinutes != 15 {
		t.Fatalf("RefreshIntervalMinutes = %d, expected 15", got.RefreshIntervalMinutes)
	}
	if got.RefreshInterval() != 15*time.Minute {
		t.Fatalf("RefreshInterval() = %s, expected 15m", got.RefreshInterval())
	}
	if got.FetchTimeout != DefaultFetchTimeout {
		t.Fatalf("FetchTimeout = %s, expected %s", got.FetchTimeout, DefaultFetchTimeout)
	}
	if got.Retry.MaxAttempts != DefaultRetryAttempts {
		t.Fatalf("Retry.MaxAttempts = %d, expected %d", got.Retry.MaxAttempts, DefaultRetryAttempts)
	}
	if got.Store.Driver != DefaultStoreDriver {
		t.Fatalf("Store.Driver = %q, expected %q", got.Store.Driver, DefaultStoreDriver)
	}
	if got.SensorInterval != time.Minute {
		t.Fatalf("SensorInterval = %s, expected 1m", got.SensorInterval)
	}
	if got.Output != DefaultOutput {
		t.Fatalf("Output = %q, expected %q", got.Output, DefaultOutput)
	}
	if len(got.Warnings) != 0 {
		t.Fatalf("Warnings = %v, expected none", got.Warnings)
	}
}

func TestLoadConfigFileAndEnvOverride(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()
	path := filepath.Join(dir, "carbon-aware-home.json")
	content := `{
  "location": "FR",
  "refresh_interval_minutes": 30,
  "fetch_timeout": "45s",
  "store": {"driver": "none"},
  "retry": {"max_attempts": 2}
}`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("WriteFile() error: %v", err)
	}

	t.Setenv(EnvConfigPath, path)
	t.Setenv("CARBON_AWARE_FETCH_TIMEOUT", "20s")
	t.Setenv("CARBON_AWARE_OUTPUT", "json")

	got, err := Load("")
	if err != nil {
		t.Fatalf("Load() unexpected error: %v", err)
	}

	if got.ConfigPath != path {
		t.Fatalf("ConfigPath = %q, expected %q", got.ConfigPath, path)
	}
	if got.Location != "fr" {
		t.Fatalf("Location = %q, expected %q", got.Location, "fr")
	}
	if got.RefreshIntervalMinutes != 30 {
		t.Fatalf("RefreshIntervalMinutes = %d, expected 30", got.RefreshIntervalMinutes)
	}
	if got.FetchTimeout != 20*time.Second {
		t.Fatalf("FetchTimeout = %s, expected env override 20s", got.FetchTimeout)
	}
	if got.Output != "json" {
		t.Fatalf("Output = %q, expected json", got.Output)
	}
	if got.Store.Driver != "none" {
		t.Fatalf("Store.Driver = %q, expected none", got.Store.Driver)
	}
	if got.Retry.MaxAttempts != 2 {
		t.Fatalf("Retry.MaxAttempts = %d, expected 2", got.Retry.MaxAttempts)
	}
}

func TestLoadExplicitPathWinsOverEnv(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()
	envPath := filepath.Join(dir, "env.json")
	flagPath := filepath.Join(dir, "flag.json")
	if err := os.WriteFile(envPath, []byte(`{"location":"fr"}`), 0o644); err != nil {
		t.Fatalf("WriteFile() error: %v", err)
	}
	if err := os.WriteFile(flagPath, []byte(`{"location":"at"}`), 0o644); err != nil {
		t.Fatalf("WriteFile() error: %v", err)
	}
	t.Setenv(EnvConfigPath, envPath)

	got, err := Load(flagPath)
	if err != nil {
		t.Fatalf("Load() unexpected error: %v", err)
	}
	if got.Location != "at" {
		t.Fatalf("Location = %q, expected %q", got.Location, "at")
	}
}

func TestLoadInvalidRefreshIntervalFallsBack(t *testing.T) {
	for _, raw := range []string{"0", "-5", "soon"} {
		t.Run(raw, func(t *testing.T) {
			clearEnv(t)
			t.Setenv("CARBON_AWARE_REFRESH_INTERVAL_MINUTES", raw)

			got, err := Load("")
			if err != nil {
				t.Fatalf("Load() unexpected error: %v", err)
			}
			if got.RefreshIntervalMinutes != 15 {
				t.Fatalf("RefreshIntervalMinutes = %d, expected default 15", got.RefreshIntervalMinutes)
			}
			if len(got.Warnings) != 1 || !strings.Contains(got.Warnings[0], "refresh_interval_minutes") {
				t.Fatalf("Warnings = %v, expected one refresh interval warning", got.Warnings)
			}
		})
	}
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	tests := []struct {
		name string
		key  string
		val  string
		want string
	}{
		{name: "unsupported location", key: "CARBON_AWARE_LOCATION", val: "atlantis", want: "Location"},
		{name: "extra location", key: "CARBON_AWARE_LOCATIONS", val: "fr,narnia", want: "narnia"},
		{name: "store driver", key: "CARBON_AWARE_STORE_DRIVER", val: "s3", want: "Driver"},
		{name: "log level", key: "CARBON_AWARE_LOG_LEVEL", val: "loud", want: "Level"},
		{name: "timezone", key: "CARBON_AWARE_TIMEZONE", val: "Mars/Olympus", want: "timezone"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearEnv(t)
			t.Setenv(tt.key, tt.val)

			_, err := Load("")
			if err == nil {
				t.Fatalf("Load() expected error for %s=%q", tt.key, tt.val)
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("error = %q, expected to mention %q", err.Error(), tt.want)
			}
		})
	}
}

func TestLoadMissingConfigFile(t *testing.T) {
	clearEnv(t)
	if _, err := Load(filepath.Join(t.TempDir(), "missing.json")); err == nil {
		t.Fatalf("Load() expected error for missing file")
	}
}

func TestAllLocationsDeduplicates(t *testing.T) {
	cfg := Config{Location: "de", Locations: " FR, de ,at,fr,"}
	got := cfg.AllLocations()
	want := []string{"de", "fr", "at"}
	if strings.Join(got, ",") != strings.Join(want, ",") {
		t.Fatalf("AllLocations() = %v, expected %v", got, want)
	}
}

func TestExpandHomeDir(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)

	got, err := expandHomeDir("~/data")
	if err != nil {
		t.Fatalf("expandHomeDir() error: %v", err)
	}
	if got != filepath.Join(home, "data") {
		t.Fatalf("expandHomeDir() = %q, expected %q", got, filepath.Join(home, "data"))
	}

	got, err = expandHomeDir("/abs/path")
	if err != nil || got != "/abs/path" {
		t.Fatalf("expandHomeDir(abs) = %q, %v", got, err)
	}
}
