// Package main is the entry point for the demo subscription-engine server.
// It wires logging, configuration, metrics, a small in-memory address
// space, and the subscription engine together, then drives the address
// space with simulated data changes and events so the engine's full publish
// path can be observed end-to-end.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/gopcua/opcua/ua"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/nexus-edge/opcua-subscription-engine/internal/addressspace"
	"github.com/nexus-edge/opcua-subscription-engine/internal/config"
	"github.com/nexus-edge/opcua-subscription-engine/internal/health"
	"github.com/nexus-edge/opcua-subscription-engine/internal/metrics"
	"github.com/nexus-edge/opcua-subscription-engine/internal/subscription"
	"github.com/nexus-edge/opcua-subscription-engine/pkg/logging"
)

const (
	serviceName    = "subscriptiond"
	serviceVersion = "0.1.0"
)

func main() {
	logger := logging.New(serviceName, serviceVersion)
	logger.Info().Msg("starting subscriptiond")

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load configuration")
	}
	logger = logging.Configure(logger, cfg.Logging.Level, cfg.Logging.Format)
	logger.Info().Str("env", cfg.Service.Environment).Msg("configuration loaded")

	metricsRegistry := metrics.NewRegistry()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	addressSpace, err := addressspace.NewInMemory(cfg.AddressSpace.CatalogPath, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load address space catalog")
	}

	svc := subscription.NewService(subscription.ServiceConfig{
		MaxPublishRequestCredits: cfg.Subscription.MaxPublishRequestCredits,
		Debug:                    cfg.Subscription.Debug,
	}, addressSpace, metricsRegistry, logger)

	healthChecker := health.NewChecker(addressSpace, svc, logger)

	mux := http.NewServeMux()
	mux.HandleFunc("/health", healthChecker.HealthHandler)
	mux.HandleFunc("/health/live", healthChecker.LiveHandler)
	mux.HandleFunc("/health/ready", healthChecker.ReadyHandler)
	mux.Handle("/metrics", promhttp.Handler())

	httpServer := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.HTTP.Port),
		Handler:      mux,
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
		IdleTimeout:  cfg.HTTP.IdleTimeout,
	}

	go func() {
		logger.Info().Int("port", cfg.HTTP.Port).Msg("starting HTTP server")
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error().Err(err).Msg("HTTP server error")
		}
	}()

	demoStop := runDemo(ctx, svc, addressSpace, cfg, logger)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("shutdown signal received, initiating graceful shutdown")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	cancel()
	<-demoStop

	svc.DeleteAllSubscriptions()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("error shutting down HTTP server")
	}

	logger.Info().Msg("subscriptiond shutdown complete")
}

// runDemo simulates a single client: it creates a subscription over the
// catalog's Temperature node and a PumpAlarms event notifier, feeds
// publish-request credit, and periodically perturbs the address space so
// the create -> tick -> publish path runs end to end. It sends no
// acknowledgements, so every emitted message stays in the subscription's
// replay cache.
// The returned channel closes once the demo goroutine has exited.
func runDemo(ctx context.Context, svc *subscription.SubscriptionService, addr *addressspace.InMemory, cfg *config.Config, logger zerolog.Logger) <-chan struct{} {
	done := make(chan struct{})

	temperatureNode, err := ua.ParseNodeID("ns=2;s=Temperature")
	if err != nil {
		logger.Fatal().Err(err).Msg("invalid demo node id")
	}
	alarmNode, err := ua.ParseNodeID("ns=2;s=PumpAlarms")
	if err != nil {
		logger.Fatal().Err(err).Msg("invalid demo node id")
	}

	sessionToken := ua.NewNumericNodeID(0, 1)
	correlationID := uuid.New().String()
	demoLogger := logger.With().Str("correlation_id", correlationID).Logger()

	publishCallback := func(result subscription.PublishResult) {
		demoLogger.Debug().
			Uint32("subscription_id", result.SubscriptionID).
			Uint32("sequence_id", result.Message.SequenceID).
			Int("notifications", len(result.Message.Data)).
			Msg("publish result")
	}

	data := svc.CreateSubscription(&ua.CreateSubscriptionRequest{
		RequestedPublishingInterval: float64(cfg.Subscription.DefaultPublishingInterval / time.Millisecond),
		RequestedLifetimeCount:      1000,
		RequestedMaxKeepAliveCount:  10,
	}, sessionToken, publishCallback)
	demoLogger.Info().Uint32("subscription_id", data.SubscriptionID).Msg("demo subscription created")

	svc.CreateMonitoredItems(data.SubscriptionID, []*ua.MonitoredItemCreateRequest{
		{
			ItemToMonitor:       &ua.ReadValueID{NodeID: temperatureNode, AttributeID: ua.AttributeIDValue, DataEncoding: &ua.QualifiedName{}},
			MonitoringMode:      ua.MonitoringModeReporting,
			RequestedParameters: &ua.MonitoringParameters{ClientHandle: 1, QueueSize: 10, DiscardOldest: true},
		},
		{
			ItemToMonitor:       &ua.ReadValueID{NodeID: alarmNode, AttributeID: ua.AttributeIDEventNotifier, DataEncoding: &ua.QualifiedName{}},
			MonitoringMode:      ua.MonitoringModeReporting,
			RequestedParameters: &ua.MonitoringParameters{ClientHandle: 2, QueueSize: 10, DiscardOldest: true},
		},
	})

	go func() {
		defer close(done)

		creditTicker := time.NewTicker(cfg.Subscription.DefaultPublishingInterval / 2)
		defer creditTicker.Stop()

		perturbTicker := time.NewTicker(5 * time.Second)
		defer perturbTicker.Stop()

		temperature := 21.5
		for {
			select {
			case <-ctx.Done():
				return
			case <-creditTicker.C:
				svc.Publish(sessionToken, nil)
			case <-perturbTicker.C:
				temperature += 0.5
				if err := addr.Write(temperatureNode, ua.AttributeIDValue, temperature); err != nil {
					demoLogger.Warn().Err(err).Msg("demo write failed")
				}

				event := subscription.NewSimpleEvent(ua.NewNumericNodeID(0, 2001), alarmNode, "PumpAlarms", "pump vibration threshold exceeded", 500, time.Now())
				svc.TriggerEvent(alarmNode, event)
			}
		}
	}()

	return done
}
