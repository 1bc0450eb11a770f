// Poly VideoOS Agent - Resilient Monitoring and Control for Poly Video Devices
// Copyright 2026 AVI-SPL, Inc.
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/AVISPL/dal-codecs-singlecodecs-polycom-videoos

// Package metrics provides Prometheus instrumentation for the agent:
// poll cycles, per-group fetches, device requests, session recovery,
// control writes, the HTTP API, the journal, and event publishing.
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Poll cycle metrics
	PollCyclesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "videoos_poll_cycles_total",
			Help: "Total poll cycles by outcome",
		},
		[]string{"outcome"}, // fresh, cached, error
	)

	PollCycleDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "videoos_poll_cycle_duration_seconds",
			Help:    "Duration of fresh poll cycles in seconds",
			Buckets: []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 20, 30},
		},
	)

	SnapshotKeys = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "videoos_snapshot_keys",
			Help: "Number of property keys in the current snapshot",
		},
	)

	InCall = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "videoos_in_call",
			Help: "1 when the device has an active conference, else 0",
		},
	)

	// Group fetch metrics
	GroupFetchesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "videoos_group_fetches_total",
			Help: "Total resource group fetches by group and outcome",
		},
		[]string{"group", "outcome"}, // success, failure, skipped
	)

	GroupFetchDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "videoos_group_fetch_duration_seconds",
			Help:    "Duration of group fetches in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"group"},
	)

	GroupHealthy = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "videoos_group_healthy",
			Help: "1 when the group's last fetch succeeded, 0 when degraded",
		},
		[]string{"group"},
	)

	// Device client metrics
	DeviceRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "videoos_device_requests_total",
			Help: "Total HTTP requests to the device by method and outcome",
		},
		[]string{"method", "outcome"}, // ok, status_error, unreachable
	)

	DeviceRequestDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "videoos_device_request_duration_seconds",
			Help:    "Device round-trip time in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	CircuitBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "videoos_circuit_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=half-open, 2=open)",
		},
		[]string{"name"},
	)

	CircuitBreakerTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "videoos_circuit_breaker_transitions_total",
			Help: "Circuit breaker state transitions",
		},
		[]string{"name", "from", "to"},
	)

	// Session metrics
	SessionRecoveries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "videoos_session_recoveries_total",
			Help: "Session recovery attempts after auth loss, by outcome",
		},
		[]string{"outcome"}, // success, failure
	)

	LoginsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "videoos_logins_total",
			Help: "Device login attempts by outcome",
		},
		[]string{"outcome"}, // success, failure, unreachable
	)

	SessionPoisoned = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "videoos_session_poisoned",
			Help: "1 while the session is poisoned after a failed login",
		},
	)

	RebootsDetected = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "videoos_reboots_detected_total",
			Help: "Device reboots inferred from login unreachability",
		},
	)

	// Control operation metrics
	ControlWritesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "videoos_control_writes_total",
			Help: "Control write operations by control name and outcome",
		},
		[]string{"control", "outcome"},
	)

	CallOperationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "videoos_call_operations_total",
			Help: "Dial, hangup, and status operations by outcome",
		},
		[]string{"operation", "outcome"},
	)

	// HTTP API metrics
	APIRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "videoos_api_requests_total",
			Help: "Total control-plane API requests",
		},
		[]string{"method", "endpoint", "status_code"},
	)

	APIRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "videoos_api_request_duration_seconds",
			Help:    "Control-plane API request duration in seconds",
			Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		},
		[]string{"method", "endpoint"},
	)

	APIActiveRequests = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "videoos_api_active_requests",
			Help: "Current number of in-flight API requests",
		},
	)

	WebsocketClients = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "videoos_websocket_clients",
			Help: "Connected WebSocket stream clients",
		},
	)

	// Journal metrics
	JournalWritesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "videoos_journal_writes_total",
			Help: "Journal write operations by kind and outcome",
		},
		[]string{"kind", "outcome"}, // kind: snapshot, call
	)

	// Event publishing metrics
	EventsPublishedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "videoos_events_published_total",
			Help: "Events published to NATS by topic and outcome",
		},
		[]string{"topic", "outcome"},
	)
)

// RecordPollCycle records one poll cycle.
func RecordPollCycle(outcome string, duration time.Duration) {
	PollCyclesTotal.WithLabelValues(outcome).Inc()
	if outcome == "fresh" {
		PollCycleDuration.Observe(duration.Seconds())
	}
}

// RecordGroupFetch records a group fetch outcome and duration.
func RecordGroupFetch(group, outcome string, duration time.Duration) {
	GroupFetchesTotal.WithLabelValues(group, outcome).Inc()
	switch outcome {
	case "success":
		GroupFetchDuration.WithLabelValues(group).Observe(duration.Seconds())
		GroupHealthy.WithLabelValues(group).Set(1)
	case "failure":
		GroupHealthy.WithLabelValues(group).Set(0)
	}
}

// RecordDeviceRequest records one device round trip.
func RecordDeviceRequest(method, outcome string, duration time.Duration) {
	DeviceRequestsTotal.WithLabelValues(method, outcome).Inc()
	DeviceRequestDuration.Observe(duration.Seconds())
}

// RecordAPIRequest records one control-plane API request.
func RecordAPIRequest(method, endpoint string, statusCode int, duration time.Duration) {
	APIRequestsTotal.WithLabelValues(method, endpoint, strconv.Itoa(statusCode)).Inc()
	APIRequestDuration.WithLabelValues(method, endpoint).Observe(duration.Seconds())
}

// TrackActiveRequest adjusts the in-flight API request gauge.
func TrackActiveRequest(inc bool) {
	if inc {
		APIActiveRequests.Inc()
	} else {
		APIActiveRequests.Dec()
	}
}

// RecordControlWrite records a control operation.
func RecordControlWrite(control string, err error) {
	ControlWritesTotal.WithLabelValues(control, outcomeLabel(err)).Inc()
}

// RecordCallOperation records a dial, hangup, or status operation.
func RecordCallOperation(operation string, err error) {
	CallOperationsTotal.WithLabelValues(operation, outcomeLabel(err)).Inc()
}

// RecordJournalWrite records a journal write.
func RecordJournalWrite(kind string, err error) {
	JournalWritesTotal.WithLabelValues(kind, outcomeLabel(err)).Inc()
}

// RecordEventPublished records an event publish attempt.
func RecordEventPublished(topic string, err error) {
	EventsPublishedTotal.WithLabelValues(topic, outcomeLabel(err)).Inc()
}

func outcomeLabel(err error) string {
	if err != nil {
		return "failure"
	}
	return "success"
}
