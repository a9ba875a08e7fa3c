package cmd

import (
	"flag"
	"fmt"
	"strings"
	"time"

	"github.com/KollinFreise/carbonAwareHome/internal/config"
	caherrors "github.com/KollinFreise/carbonAwareHome/internal/errors"
)

func loadConfig(args []string) (config.Config, error) {
	configPath, _ := parseStringFlag(args, "config")
	cfg, err := config.Load(configPath)
	if err != nil {
		return config.Config{}, caherrors.New(err, caherrors.ConfigError)
	}
	return cfg, nil
}

func addConfigFlag(fs *flag.FlagSet, defaultPath string) {
	fs.String("config", defaultPath, "path to JSON, YAML or TOML config file")
}

func addOutputFlags(fs *flag.FlagSet, defaultValue string) (*string, *bool) {
	outputMode := fs.String("output", defaultValue, "output format: text|json")
	jsonOutput := fs.Bool("json", false, "shorthand for --output json")
	return outputMode, jsonOutput
}

func addLocationFlag(fs *flag.FlagSet) *string {
	return fs.String("location", "", `location code, or "auto" to detect from locale and timezone`)
}

func addTimeoutFlag(fs *flag.FlagSet, defaultValue string) *string {
	return fs.String("timeout", defaultValue, "operation timeout")
}

func resolveOutputMode(mode string, jsonFlag bool) (bool, error) {
	if jsonFlag {
		return true, nil
	}
	mode = strings.ToLower(strings.TrimSpace(mode))
	if mode != "text" && mode != "json" {
		return false, fmt.Errorf("output must be text or json")
	}
	return mode == "json", nil
}

func parseTimeout(timeoutRaw string) (time.Duration, error) {
	timeout, err := time.ParseDuration(timeoutRaw)
	if err != nil || timeout <= 0 {
		return 0, fmt.Errorf("invalid timeout duration")
	}
	return timeout, nil
}

// parseStringFlag scans raw args for -name/--name in both "=value" and
// split forms. A bare boolean flag reports ok with an empty value.
func parseStringFlag(args []string, name string) (string, bool) {
	for i := 0; i < len(args); i++ {
		arg := args[i]
		if arg == "--" {
			return "", false
		}
		trimmed := strings.TrimPrefix(strings.TrimPrefix(arg, "-"), "-")
		if trimmed == arg {
			continue
		}
		if value, found := strings.CutPrefix(trimmed, name+"="); found {
			return strings.TrimSpace(value), true
		}
		if trimmed != name {
			continue
		}
		if i+1 < len(args) && !strings.HasPrefix(args[i+1], "-") {
			return strings.TrimSpace(args[i+1]), true
		}
		return "", true
	}
	return "", false
}
