package cmd

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/joho/godotenv"

	"github.com/KollinFreise/carbonAwareHome/internal/output"
)

func Execute() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		fmt.Fprintf(os.Stderr, "warning: load .env: %v\n", err)
	}

	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	name := os.Args[1]
	args := os.Args[2:]
	asJSON := detectJSONOutput(name, args)

	var err error
	switch name {
	case "serve":
		err = serve(args)
	case "best-time":
		err = bestTime(args)
	case "current":
		err = current(args)
	default:
		printUsage()
		os.Exit(1)
	}

	output.HandleExit(err, asJSON)
}

func printUsage() {
	fmt.Fprintln(os.Stderr, "usage: carbon-aware-home <serve|best-time|current> [flags]")
}

// detectJSONOutput decides the error format before the subcommand parses its
// flags: --json, then --output, then the configured default.
func detectJSONOutput(name string, args []string) bool {
	if name == "serve" {
		return false
	}
	if raw, ok := parseStringFlag(args, "json"); ok {
		return raw == "" || raw == "true" || raw == "1"
	}
	if raw, ok := parseStringFlag(args, "output"); ok {
		return raw == "json"
	}
	cfg, err := loadConfig(args)
	if err != nil {
		return false
	}
	return cfg.Output == "json"
}
