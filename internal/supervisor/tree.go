// Poly VideoOS Agent - Resilient Monitoring and Control for Poly Video Devices
// Copyright 2026 AVI-SPL, Inc.
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/AVISPL/dal-codecs-singlecodecs-polycom-videoos

// Package supervisor builds the agent's supervision tree. The poller, the
// WebSocket hub, and the HTTP server each run as restartable services under
// a layered suture tree, so a panic or transient failure in one subsystem
// restarts that subsystem without taking the rest of the agent down with it.
package supervisor

import (
	"context"
	"log/slog"
	"time"

	"github.com/thejerf/suture/v4"
	"github.com/thejerf/sutureslog"
)

// TreeConfig holds supervisor tree configuration.
type TreeConfig struct {
	// FailureThreshold is the number of failures before entering backoff.
	// Default: 5
	FailureThreshold float64

	// FailureDecay is the rate at which failures decay in seconds.
	// Default: 30
	FailureDecay float64

	// FailureBackoff is the duration to wait when threshold is exceeded.
	// Default: 15s
	FailureBackoff time.Duration

	// ShutdownTimeout is the maximum time to wait for graceful shutdown.
	// Default: 10s
	ShutdownTimeout time.Duration
}

// DefaultTreeConfig returns suture's documented defaults.
func DefaultTreeConfig() TreeConfig {
	return TreeConfig{
		FailureThreshold: 5.0,
		FailureDecay:     30.0,
		FailureBackoff:   15 * time.Second,
		ShutdownTimeout:  10 * time.Second,
	}
}

// Tree manages the agent's supervisor hierarchy.
//
// Services are grouped into three layers:
//   - device: the poller driving the VideoOS session
//   - streaming: the WebSocket hub fanning events out to dashboards
//   - api: the HTTP server
//
// The layering isolates failures. A crash in the poller restarts polling
// without dropping WebSocket clients, and an HTTP listener failure leaves
// the device session and its recovery state intact.
type Tree struct {
	root      *suture.Supervisor
	device    *suture.Supervisor
	streaming *suture.Supervisor
	api       *suture.Supervisor
	logger    *slog.Logger
	config    TreeConfig
}

// NewTree creates a supervisor tree with the given configuration. Zero
// config fields fall back to DefaultTreeConfig values.
func NewTree(logger *slog.Logger, config TreeConfig) (*Tree, error) {
	if config.FailureThreshold == 0 {
		config.FailureThreshold = 5.0
	}
	if config.FailureDecay == 0 {
		config.FailureDecay = 30.0
	}
	if config.FailureBackoff == 0 {
		config.FailureBackoff = 15 * time.Second
	}
	if config.ShutdownTimeout == 0 {
		config.ShutdownTimeout = 10 * time.Second
	}

	// sutureslog builds its hook from a handler value; MustHook has a
	// pointer receiver, so the address is required.
	handler := &sutureslog.Handler{Logger: logger}
	eventHook := handler.MustHook()

	rootSpec := suture.Spec{
		EventHook:        eventHook,
		FailureThreshold: config.FailureThreshold,
		FailureDecay:     config.FailureDecay,
		FailureBackoff:   config.FailureBackoff,
		Timeout:          config.ShutdownTimeout,
	}

	// Child supervisors inherit the EventHook when added to the root.
	childSpec := suture.Spec{
		FailureThreshold: config.FailureThreshold,
		FailureDecay:     config.FailureDecay,
		FailureBackoff:   config.FailureBackoff,
		Timeout:          config.ShutdownTimeout,
	}

	root := suture.New("videoos-agent", rootSpec)
	device := suture.New("device-layer", childSpec)
	streaming := suture.New("streaming-layer", childSpec)
	api := suture.New("api-layer", childSpec)

	root.Add(device)
	root.Add(streaming)
	root.Add(api)

	return &Tree{
		root:      root,
		device:    device,
		streaming: streaming,
		api:       api,
		logger:    logger,
		config:    config,
	}, nil
}

// AddDeviceService adds a service to the device layer supervisor.
// Use this for the poller.
func (t *Tree) AddDeviceService(svc suture.Service) suture.ServiceToken {
	return t.device.Add(svc)
}

// AddStreamingService adds a service to the streaming layer supervisor.
// Use this for the WebSocket hub.
func (t *Tree) AddStreamingService(svc suture.Service) suture.ServiceToken {
	return t.streaming.Add(svc)
}

// AddAPIService adds a service to the API layer supervisor.
// Use this for the HTTP server.
func (t *Tree) AddAPIService(svc suture.Service) suture.ServiceToken {
	return t.api.Add(svc)
}

// Serve starts the supervisor tree and blocks until the context is canceled.
func (t *Tree) Serve(ctx context.Context) error {
	return t.root.Serve(ctx)
}

// ServeBackground starts the supervisor tree in a background goroutine.
// The returned channel receives the error (or nil) when the tree stops.
func (t *Tree) ServeBackground(ctx context.Context) <-chan error {
	return t.root.ServeBackground(ctx)
}

// UnstoppedServiceReport returns the services that failed to stop within the
// configured shutdown timeout. Useful for debugging shutdown hangs.
func (t *Tree) UnstoppedServiceReport() ([]suture.UnstoppedService, error) {
	return t.root.UnstoppedServiceReport()
}
