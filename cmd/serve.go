package cmd

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	caherrors "github.com/KollinFreise/carbonAwareHome/internal/errors"
	"github.com/KollinFreise/carbonAwareHome/internal/httpapi"
	"github.com/KollinFreise/carbonAwareHome/internal/sensor"
)

const (
	readHeaderTimeout = 10 * time.Second
	shutdownTimeout   = 10 * time.Second
)

func serve(args []string) error {
	cfg, err := loadConfig(args)
	if err != nil {
		return err
	}

	fs := flag.NewFlagSet("serve", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)
	addConfigFlag(fs, cfg.ConfigPath)
	locationRaw := addLocationFlag(fs)
	addr := fs.String("addr", cfg.HTTP.Addr, "HTTP listen address")
	broker := fs.String("mqtt-broker", cfg.MQTT.Broker, "MQTT broker URL; empty disables the sensor publisher")
	if err := fs.Parse(args); err != nil {
		return caherrors.New(err, caherrors.InputError)
	}

	resolved, err := resolveLocation(*locationRaw, cfg.Location)
	if err != nil {
		return caherrors.New(err, caherrors.InputError)
	}
	cfg.Location = resolved.Location
	cfg.MQTT.Broker = *broker

	logger, err := newLogger(cfg, os.Stderr)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rt, err := newRuntime(ctx, cfg, logger, nil)
	if err != nil {
		return err
	}
	defer rt.Close()

	var publisher sensor.Publisher
	if cfg.MQTT.Broker != "" {
		mqttPublisher, err := sensor.NewMQTTPublisher(sensor.MQTTOptions{
			Broker:      cfg.MQTT.Broker,
			TopicPrefix: cfg.MQTT.TopicPrefix,
			ClientID:    cfg.MQTT.ClientID,
			Username:    cfg.MQTT.Username,
			Password:    cfg.MQTT.Password,
		})
		if err != nil {
			return caherrors.New(err, caherrors.ProviderError)
		}
		rt.closers = append(rt.closers, mqttPublisher.Close)
		publisher = mqttPublisher
	}

	ln, err := net.Listen("tcp", *addr)
	if err != nil {
		return caherrors.New(fmt.Errorf("listen %s: %w", *addr, err), caherrors.ConfigError)
	}
	return rt.serve(ctx, ln, publisher)
}

// serve runs the refresh loops, the HTTP server and the optional sensor
// publisher until ctx is cancelled, then shuts the server down gracefully.
func (r *runtime) serve(ctx context.Context, ln net.Listener, publisher sensor.Publisher) error {
	if err := r.cache.Warm(ctx); err != nil {
		return err
	}

	api := httpapi.NewServer(httpapi.Options{
		Service: r.service,
		Cache:   r.cache,
		Metrics: r.metrics,
		Logger:  r.logger,
	})
	server := &http.Server{
		Handler:           api.Handler(),
		ReadHeaderTimeout: readHeaderTimeout,
	}

	g, gCtx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return r.cache.Run(gCtx)
	})
	g.Go(func() error {
		r.logger.Info().
			Str("addr", ln.Addr().String()).
			Strs("locations", r.cache.Locations()).
			Msg("http server listening")
		if err := server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gCtx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(gCtx), shutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("http shutdown: %w", err)
		}
		return nil
	})
	if publisher != nil {
		reporter := sensor.NewReporter(r.service, publisher, sensor.ReporterOptions{
			Locations: r.cache.Locations(),
			Interval:  r.cfg.SensorInterval,
			Observer:  r.metrics,
			Logger:    r.logger,
		})
		g.Go(func() error {
			return reporter.Run(gCtx)
		})
	}

	err := g.Wait()
	r.logger.Info().Msg("shutdown complete")
	if err != nil {
		return caherrors.New(err, caherrors.ProviderError)
	}
	return nil
}
