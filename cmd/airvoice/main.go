// Package main provides the entrypoint for the airvoice server.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/breatheroute/airvoice/internal/airquality/waqi"
	"github.com/breatheroute/airvoice/internal/api"
	"github.com/breatheroute/airvoice/internal/api/handler"
	"github.com/breatheroute/airvoice/internal/api/middleware"
	"github.com/breatheroute/airvoice/internal/config"
	"github.com/breatheroute/airvoice/internal/host"
	"github.com/breatheroute/airvoice/internal/host/mqtt"
	"github.com/breatheroute/airvoice/internal/host/pubsub"
	"github.com/breatheroute/airvoice/internal/host/webhook"
	"github.com/breatheroute/airvoice/internal/location"
	"github.com/breatheroute/airvoice/internal/location/ipapi"
	"github.com/breatheroute/airvoice/internal/location/nominatim"
	"github.com/breatheroute/airvoice/internal/present"
	"github.com/breatheroute/airvoice/internal/provider/resilience"
	"github.com/breatheroute/airvoice/internal/session"
	"github.com/breatheroute/airvoice/internal/telemetry"
)

// Version and BuildTime are set at compile time via ldflags.
var (
	Version   = "dev"
	BuildTime = "unknown"
)

const serviceName = "airvoice"

func main() {
	cfg, cfgErr := config.FromEnv()
	log := newLogger(cfg)

	if err := errors.Join(cfgErr, cfg.Validate()); err != nil {
		log.Fatal().Err(err).Msg("invalid configuration")
	}

	log.Info().
		Str("build_time", BuildTime).
		Str("env", cfg.Env).
		Msg("starting airvoice")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	tp, err := telemetry.Init(ctx, telemetry.Config{
		ServiceName:    serviceName,
		ServiceVersion: Version,
		Environment:    cfg.Env,
		OTLPEndpoint:   cfg.OTLPEndpoint,
		Enabled:        cfg.OTelEnabled,
		SampleRatio:    cfg.SampleRatio,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize telemetry")
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if shutdownErr := tp.Shutdown(shutdownCtx); shutdownErr != nil {
			log.Error().Err(shutdownErr).Msg("failed to shutdown telemetry")
		}
	}()
	if tp.Enabled() {
		log.Info().Str("otlp_endpoint", cfg.OTLPEndpoint).Msg("OpenTelemetry initialized")
	}

	httpMetrics, err := middleware.NewMetrics()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize HTTP metrics")
	}
	lookupMetrics, err := telemetry.NewLookupMetrics()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize lookup metrics")
	}

	registry := resilience.NewRegistry()

	fetcher := waqi.NewClient(waqi.ClientConfig{
		Token:      cfg.WAQIToken,
		BaseURL:    cfg.WAQIBaseURL,
		Timeout:    cfg.AQITimeout,
		HTTPClient: providerClient(log, registry, waqi.ProviderName, cfg.AQITimeout),
	})

	resolver, err := location.NewResolver(location.Config{
		Default: location.Resolved{
			Coordinate: cfg.DefaultCoordinate(),
			PlaceName:  cfg.DefaultPlaceName,
		},
		IPLocator: ipapi.NewClient(ipapi.ClientConfig{
			BaseURL:    cfg.IPAPIBaseURL,
			Timeout:    cfg.IPTimeout,
			HTTPClient: providerClient(log, registry, ipapi.ProviderName, cfg.IPTimeout),
		}),
		Geocoder: nominatim.NewClient(nominatim.ClientConfig{
			BaseURL:    cfg.NominatimBaseURL,
			UserAgent:  cfg.NominatimUserAgent,
			Timeout:    cfg.GeocodeTimeout,
			HTTPClient: providerClient(log, registry, nominatim.ProviderName, cfg.GeocodeTimeout),
		}),
		DeviceFreshness:   cfg.DeviceFixFreshness,
		StaleDeviceMaxAge: cfg.StaleDeviceMaxAge,
		IPTimeout:         cfg.IPTimeout,
		GeocodeTimeout:    cfg.GeocodeTimeout,
		Logger:            log.With().Str("component", "location").Logger(),
	})
	if err != nil {
		log.Fatal().Err(err).Msg("invalid static default location")
	}

	manager := session.NewManager(session.Config{
		Resolver:  resolver,
		Fetcher:   fetcher,
		Display:   newDisplay(cfg, log, registry),
		Presenter: present.New(present.Config{DiscloseApproximate: cfg.DiscloseApproximate, Duration: cfg.DisplayDuration}),
		Matcher:   session.NewCommandMatcher(cfg.VoiceCommands),
		Cooldown:  cfg.TriggerCooldown,
		Cache: session.CacheConfig{
			RecentTTL:           cfg.CacheRecentTTL,
			RefreshTTL:          cfg.CacheRefreshTTL,
			MoveThresholdMeters: cfg.CacheMoveThreshold,
		},
		CycleTimeout: cfg.CycleTimeout,
		Metrics:      lookupMetrics,
		Logger:       log.With().Str("component", "session").Logger(),
	})

	ingress := []handler.IngressCheck{{Name: "webhook"}}

	if cfg.MQTTEnabled() {
		sub := mqtt.NewSubscriber(mqtt.Config{
			Broker:      cfg.MQTTBroker,
			Port:        cfg.MQTTPort,
			ClientID:    cfg.MQTTClientID,
			TopicPrefix: cfg.MQTTTopicPrefix,
			Logger:      log,
		}, manager)
		ingress = append(ingress, handler.IngressCheck{Name: "mqtt", Healthy: sub.IsConnected})
		go func() {
			if err := sub.Connect(ctx); err != nil && !errors.Is(err, mqtt.ErrStopped) && ctx.Err() == nil {
				log.Error().Err(err).Msg("mqtt ingress stopped")
			}
		}()
		defer sub.Disconnect()
	}

	if cfg.PubSubEnabled() {
		receiver, err := pubsub.NewReceiver(ctx, pubsub.Config{
			ProjectID:        cfg.PubSubProjectID,
			SubscriptionName: cfg.PubSubSubscription,
			Logger:           log,
		}, manager)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to create pubsub receiver")
		}
		receiving := make(chan struct{})
		ingress = append(ingress, handler.IngressCheck{Name: "pubsub", Healthy: func() bool {
			select {
			case <-receiving:
				return false
			default:
				return true
			}
		}})
		go func() {
			defer close(receiving)
			if err := receiver.Start(ctx); err != nil && ctx.Err() == nil {
				log.Error().Err(err).Msg("pubsub ingress stopped")
			}
		}()
		defer func() {
			if err := receiver.Close(); err != nil {
				log.Warn().Err(err).Msg("failed to close pubsub client")
			}
		}()
	}

	router := api.NewRouter(api.RouterConfig{
		Version:     Version,
		BuildTime:   BuildTime,
		ServiceName: serviceName,
		Logger:      log,
		Metrics:     httpMetrics,
		Sessions:    manager,
		Registry:    registry,
		Ingress:     ingress,
		EventRateLimit: middleware.RateLimitConfig{
			RequestLimit: cfg.EventRateLimit,
			WindowLength: time.Minute,
		},
	})

	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		log.Info().Str("addr", server.Addr).Msg("server listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	select {
	case <-ctx.Done():
		log.Info().Msg("shutting down")
	case err := <-serverErr:
		log.Error().Err(err).Msg("server error")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := manager.Shutdown(shutdownCtx); err != nil {
		log.Warn().Err(err).Msg("sessions did not finish before shutdown deadline")
	}
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("server forced to shutdown")
	}

	log.Info().Msg("server stopped")
}

func newLogger(cfg config.Config) zerolog.Logger {
	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}

	var logger zerolog.Logger
	if cfg.IsDevelopment() {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.Kitchen})
	} else {
		logger = zerolog.New(os.Stdout)
	}

	return logger.Level(level).
		With().
		Timestamp().
		Str("service", serviceName).
		Str("version", Version).
		Logger()
}

// providerClient builds a single-attempt client for a third-party provider
// whose breaker transitions are logged.
func providerClient(log zerolog.Logger, registry *resilience.Registry, name string, timeout time.Duration) *resilience.Client {
	clientCfg := resilience.ProviderClientConfig(name, timeout)
	clientCfg.CircuitBreaker = resilience.ProviderBreaker(name, log)
	clientCfg.Registry = registry
	return resilience.NewClient(clientCfg)
}

// newDisplay posts to the host display endpoint, or logs the text when no
// endpoint is configured.
func newDisplay(cfg config.Config, log zerolog.Logger, registry *resilience.Registry) host.Display {
	if cfg.HostDisplayURL == "" {
		log.Warn().Msg("HOST_DISPLAY_URL not set; readings are logged instead of displayed")
		return host.DisplayFunc(func(_ context.Context, sessionID, text string, duration time.Duration) error {
			log.Info().
				Str("session_id", sessionID).
				Dur("duration", duration).
				Str("text", text).
				Msg("display")
			return nil
		})
	}
	return webhook.NewDisplayClient(webhook.DisplayConfig{
		URL:      cfg.HostDisplayURL,
		APIKey:   cfg.HostAPIKey,
		Registry: registry,
	})
}
