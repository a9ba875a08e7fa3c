package cmd

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/KollinFreise/carbonAwareHome/internal/app"
	caherrors "github.com/KollinFreise/carbonAwareHome/internal/errors"
	"github.com/KollinFreise/carbonAwareHome/internal/report"
)

func current(args []string) error {
	cfg, err := loadConfig(args)
	if err != nil {
		return err
	}

	fs := flag.NewFlagSet("current", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)
	addConfigFlag(fs, cfg.ConfigPath)
	outputMode, jsonOutput := addOutputFlags(fs, cfg.Output)
	locationRaw := addLocationFlag(fs)
	timeoutRaw := addTimeoutFlag(fs, defaultCommandTimeout)
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
	resolved, err := resolveLocation(*locationRaw, cfg.Location)
	if err != nil {
		return caherrors.New(err, caherrors.InputError)
	}
	cfg.Location = resolved.Location

	logger, err := newLogger(cfg, os.Stderr)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	rt, err := newRuntime(ctx, cfg, logger, nil)
	if err != nil {
		return err
	}
	defer rt.Close()

	return rt.current(ctx, asJSON)
}

func (r *runtime) current(ctx context.Context, asJSON bool) error {
	location := r.service.DefaultLocation()
	r.refreshOnce(ctx, location)

	state := r.service.SensorState(ctx, location)
	fmt.Fprint(stdout, report.Current(state, asJSON))
	if state.Attributes.Status == app.StatusOK {
		return nil
	}
	return statusError(state.Attributes.Status, fmt.Sprintf("no current intensity for %s", location))
}
