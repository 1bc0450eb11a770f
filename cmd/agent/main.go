// Poly VideoOS Agent - Resilient Monitoring and Control for Poly Video Devices
// Copyright 2026 AVI-SPL, Inc.
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/AVISPL/dal-codecs-singlecodecs-polycom-videoos

// Package main is the entry point for the Poly VideoOS agent.
//
// The agent maintains a resilient monitoring and control session against a
// single Poly VideoOS device (X30/X50/X70, G7500, Studio series) and exposes
// the collected state through a REST API, a Prometheus endpoint, and a
// WebSocket event stream.
//
// # Application Architecture
//
// Startup wires components in dependency order:
//
//  1. Configuration: YAML file plus environment variable overrides (koanf)
//  2. Journal (optional): BadgerDB store replaying the last snapshot and
//     active call so a restart does not lose call tracking
//  3. Event sink (optional): NATS JetStream publisher, embedded or external
//  4. Device gateway: rate-limited HTTPS client, circuit breaker, session guard
//  5. Poller: the polling loop, cooldown governor, and call correlation
//  6. Authentication and authorization: JWT tokens, bcrypt users, Casbin RBAC
//  7. HTTP server: chi router serving the control plane
//
// The poller, WebSocket hub, and HTTP server then run under a suture
// supervision tree; a crash in one layer restarts that layer only.
//
// # Configuration
//
// Environment variables override the config file (see config.example.yaml
// for the full key list):
//
//	export DEVICE_HOST=room-x50.example.com
//	export DEVICE_USERNAME=admin
//	export DEVICE_PASSWORD=device-password
//	export JWT_SECRET=$(openssl rand -base64 32)
//	export ADMIN_USERNAME=ops
//	export ADMIN_PASSWORD_HASH='$2a$10$...'
//	./videoos-agent
//
// # Signal Handling
//
// SIGINT and SIGTERM trigger graceful shutdown: the HTTP listener drains
// in-flight requests, the poller finishes its cycle, accepted events are
// flushed to the broker, and the journal is closed last.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/AVISPL/dal-codecs-singlecodecs-polycom-videoos/internal/api"
	"github.com/AVISPL/dal-codecs-singlecodecs-polycom-videoos/internal/auth"
	"github.com/AVISPL/dal-codecs-singlecodecs-polycom-videoos/internal/authz"
	"github.com/AVISPL/dal-codecs-singlecodecs-polycom-videoos/internal/config"
	"github.com/AVISPL/dal-codecs-singlecodecs-polycom-videoos/internal/events"
	"github.com/AVISPL/dal-codecs-singlecodecs-polycom-videoos/internal/logging"
	"github.com/AVISPL/dal-codecs-singlecodecs-polycom-videoos/internal/poller"
	"github.com/AVISPL/dal-codecs-singlecodecs-polycom-videoos/internal/store"
	"github.com/AVISPL/dal-codecs-singlecodecs-polycom-videoos/internal/supervisor"
	"github.com/AVISPL/dal-codecs-singlecodecs-polycom-videoos/internal/videoos"
	ws "github.com/AVISPL/dal-codecs-singlecodecs-polycom-videoos/internal/websocket"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		// Config is not available yet; the default logger reports this one.
		logging.Fatal().Err(err).Msg("Failed to load configuration")
	}

	logging.Init(logging.Config{
		Level:     cfg.Logging.Level,
		Format:    cfg.Logging.Format,
		Caller:    cfg.Logging.Caller,
		Timestamp: true,
	})

	logging.Info().
		Str("device", cfg.Device.Host).
		Str("listen", fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)).
		Bool("journal", cfg.Journal.Enabled).
		Bool("events", cfg.Events.Enabled).
		Msg("Starting Poly VideoOS agent")

	// Journal: replays the last snapshot and active call across restarts.
	var journal poller.Journal
	if cfg.Journal.Enabled {
		js, err := store.Open(store.Config{
			Path:        cfg.Journal.Path,
			SyncWrites:  cfg.Journal.SyncWrites,
			Compression: true,
			GCInterval:  cfg.Journal.GCInterval,
		})
		if err != nil {
			logging.Fatal().Err(err).Msg("Failed to open journal")
		}
		defer func() {
			if err := js.Close(); err != nil {
				logging.Error().Err(err).Msg("Error closing journal")
			}
		}()
		journal = js
	} else {
		logging.Info().Msg("Journal disabled, call recovery will not survive restarts")
	}

	// The hub always receives poller signals; the NATS sink joins it when
	// event publishing is enabled.
	hub := ws.NewHub()

	var eventSink poller.EventSink = hub
	if cfg.Events.Enabled {
		sink, err := events.NewSink(cfg.Events, cfg.Device.Host)
		if err != nil {
			logging.Fatal().Err(err).Msg("Failed to connect event sink")
		}
		defer func() {
			if err := sink.Close(); err != nil {
				logging.Error().Err(err).Msg("Error closing event sink")
			}
		}()
		eventSink = poller.MultiSink{hub, sink}
	} else {
		logging.Info().Msg("Event publishing disabled")
	}

	// Device gateway: client, session guard, typed operations.
	client := videoos.NewClient(videoos.ClientConfig{
		Host:           cfg.Device.Host,
		Port:           cfg.Device.Port,
		Username:       cfg.Device.Username,
		Password:       cfg.Device.Password,
		InsecureTLS:    cfg.Device.InsecureTLS,
		RequestTimeout: cfg.Device.RequestTimeout,
		RateLimit:      cfg.Device.RateLimit,
		RateBurst:      cfg.Device.RateBurst,
	})
	guard := videoos.NewSessionGuard(client, cfg.Device.RetryDelay)
	device := videoos.NewDevice(client, guard, videoos.DeviceOptions{
		DialVerifyAttempts: cfg.Poller.DialVerifyAttempts,
		DialVerifyInterval: cfg.Poller.DialVerifyInterval,
	})

	agent := poller.New(device, poller.Options{
		PollInterval:    cfg.Poller.PollInterval,
		ControlCooldown: cfg.Poller.ControlCooldown,
		RebootGrace:     cfg.Poller.RebootGrace,
		GroupTimeout:    cfg.Poller.GroupTimeout,
		Workers:         cfg.Poller.Workers,
		DisabledGroups:  cfg.Poller.DisabledGroups,
		Host:            cfg.Device.Host,
		Journal:         journal,
		Events:          eventSink,
	})
	agent.Restore()

	// API authentication and authorization.
	users := auth.NewUserStore(&cfg.Security)
	jwtManager, err := auth.NewJWTManager(&cfg.Security)
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to initialize JWT manager")
	}

	var authzCfg *authz.Config
	if cfg.Security.PolicyPath != "" {
		authzCfg = authz.DefaultConfig()
		authzCfg.PolicyPath = cfg.Security.PolicyPath
		logging.Info().Str("path", cfg.Security.PolicyPath).Msg("Authorization policy override configured")
	}
	enforcer, err := authz.NewEnforcer(authzCfg)
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to initialize authorization enforcer")
	}
	defer enforcer.Close()

	handler := api.NewHandler(agent, users, jwtManager, enforcer, hub, cfg)
	router := api.NewRouter(handler, &cfg.Server)

	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      router.Setup(),
		ReadTimeout:  cfg.Server.Timeout,
		WriteTimeout: cfg.Server.Timeout,
		IdleTimeout:  60 * time.Second,
	}

	// Supervision: poller, hub, and HTTP server restart independently.
	tree, err := supervisor.NewTree(logging.NewSlogLogger(), supervisor.DefaultTreeConfig())
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to create supervisor tree")
	}

	tree.AddDeviceService(agent)
	tree.AddStreamingService(hub)
	tree.AddAPIService(supervisor.NewHTTPService(server, 10*time.Second))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logging.Info().Str("signal", sig.String()).Msg("Received shutdown signal")
		cancel()
	}()

	logging.Info().Str("addr", server.Addr).Msg("Starting supervisor tree")
	errCh := tree.ServeBackground(ctx)

	select {
	case <-ctx.Done():
		logging.Info().Msg("Context canceled, waiting for services to stop")
	case err := <-errCh:
		if err != nil && !errors.Is(err, context.Canceled) {
			logging.Error().Err(err).Msg("Supervisor tree error")
		}
	}

	// Drain until the supervisor closes the channel.
	for err := range errCh {
		if err != nil && !errors.Is(err, context.Canceled) {
			logging.Error().Err(err).Msg("Supervisor shutdown error")
		}
	}

	unstopped, _ := tree.UnstoppedServiceReport()
	if len(unstopped) > 0 {
		logging.Warn().Int("count", len(unstopped)).Msg("Services failed to stop within timeout")
		for _, svc := range unstopped {
			logging.Warn().Str("service", svc.Name).Msg("Service failed to stop")
		}
	}

	logging.Info().Msg("Agent stopped gracefully")
}
