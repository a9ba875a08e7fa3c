package cmd

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/KollinFreise/carbonAwareHome/internal/app"
	"github.com/KollinFreise/carbonAwareHome/internal/calculator"
	caherrors "github.com/KollinFreise/carbonAwareHome/internal/errors"
	"github.com/KollinFreise/carbonAwareHome/internal/report"
	"github.com/KollinFreise/carbonAwareHome/pkg"
)

const (
	defaultCommandTimeout = "2m"
	defaultQuerySpan      = 24 * time.Hour
)

func bestTime(args []string) error {
	cfg, err := loadConfig(args)
	if err != nil {
		return err
	}

	fs := flag.NewFlagSet("best-time", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)
	addConfigFlag(fs, cfg.ConfigPath)
	outputMode, jsonOutput := addOutputFlags(fs, cfg.Output)
	locationRaw := addLocationFlag(fs)
	timeoutRaw := addTimeoutFlag(fs, defaultCommandTimeout)
	startRaw := fs.String("start", "", "window start, RFC3339 or YYYY-MM-DD HH:MM[:SS] (default now)")
	endRaw := fs.String("end", "", "window end (default start + 24h)")
	runtimeMinutes := fs.Int("runtime", pkg.DefaultRuntimeMinutes, "expected runtime in minutes")
	allowedHours := fs.String("allowed-hours", "", `allowed start hours, e.g. "8-21" or "6-9,18-22"`)
	powerWatts := fs.Float64("power-watts", 0, "average power draw in watts")
	appliance := fs.String("appliance", "", "appliance profile used when --power-watts is unset")
	if err := fs.Parse(args); err != nil {
		return caherrors.New(err, caherrors.InputError)
	}

	asJSON, err := resolveOutputMode(*outputMode, *jsonOutput)
	if err != nil {
		return caherrors.New(err, caherrors.InputError)
	}
	timeout, err := parseTimeout(*timeoutRaw)
	if err != nil {
		return caherrors.New(err, caherrors.InputError)
	}
	watts, err := calculator.ResolvePower(*appliance, *powerWatts)
	if err != nil {
		return caherrors.New(err, caherrors.InputError)
	}
	resolved, err := resolveLocation(*locationRaw, cfg.Location)
	if err != nil {
		return caherrors.New(err, caherrors.InputError)
	}
	cfg.Location = resolved.Location

	logger, err := newLogger(cfg, os.Stderr)
	if err != nil {
		return err
	}
	logger.Debug().
		Str("location", resolved.Location).
		Str("source", resolved.Source).
		Str("confidence", resolved.Confidence).
		Msg("resolved location")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	rt, err := newRuntime(ctx, cfg, logger, nil)
	if err != nil {
		return err
	}
	defer rt.Close()

	return rt.bestTime(ctx, bestTimeInput{
		Start:        *startRaw,
		End:          *endRaw,
		Runtime:      *runtimeMinutes,
		AllowedHours: *allowedHours,
		PowerWatts:   watts,
	}, asJSON)
}

type bestTimeInput struct {
	Start        string
	End          string
	Runtime      int
	AllowedHours string
	PowerWatts   float64
}

func (r *runtime) bestTime(ctx context.Context, in bestTimeInput, asJSON bool) error {
	location := r.service.DefaultLocation()
	r.refreshOnce(ctx, location)

	start := in.Start
	if start == "" {
		start = time.Now().UTC().Truncate(time.Minute).Format(time.RFC3339)
	}
	end := in.End
	if end == "" {
		if parsed, err := r.service.ParseDateTime(start); err == nil {
			end = parsed.Add(defaultQuerySpan).Format(time.RFC3339)
		}
	}

	result := r.service.BestTimeFromParams(ctx, app.BestTimeParams{
		DataStartAt:     start,
		DataEndAt:       end,
		ExpectedRuntime: app.Runtime(in.Runtime),
		AllowedHours:    in.AllowedHours,
		PowerWatts:      in.PowerWatts,
		Location:        location,
	})
	fmt.Fprint(stdout, report.BestTime(result, asJSON, r.service.TimeZone()))
	return statusError(result.Status, result.Message)
}
