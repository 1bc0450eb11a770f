// Poly VideoOS Agent - Resilient Monitoring and Control for Poly Video Devices
// Copyright 2026 AVI-SPL, Inc.
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/AVISPL/dal-codecs-singlecodecs-polycom-videoos

// Package logging provides centralized zerolog-based structured logging for the agent.
//
// This package implements a unified logging layer using zerolog, providing
// zero-allocation structured JSON logging for production and human-readable
// console output for development.
//
// # Overview
//
// The package provides:
//   - Zero-allocation structured logging via zerolog
//   - JSON output format for production (machine-parseable)
//   - Console output format for development (human-readable)
//   - Context-aware logging with correlation ID propagation (one per poll cycle)
//   - slog adapter for Suture v4 integration
//   - Security-focused logging with sensitive data filtering (session tokens,
//     device credentials)
//
// # Quick Start
//
//	import "github.com/AVISPL/dal-codecs-singlecodecs-polycom-videoos/internal/logging"
//
//	// Initialize at application startup
//	logging.Init(logging.Config{
//	    Level:  "info",
//	    Format: "json",
//	    Caller: false,
//	})
//
//	// Log messages with structured fields
//	logging.Info().Str("group", "SystemStatus").Msg("Group fetched")
//	logging.Error().Err(err).Int("code", 403).Msg("Device request failed")
//
//	// Context-aware logging
//	logging.Ctx(ctx).Info().Msg("Processing poll cycle")
//
// # Configuration
//
// Environment Variables:
//
//	LOG_LEVEL   - Minimum log level: trace, debug, info, warn, error (default: info)
//	LOG_FORMAT  - Output format: json, console (default: json)
//	LOG_CALLER  - Include caller file:line: true, false (default: false)
//
// # Structured Logging Best Practices
//
// Always terminate log chains with .Msg() or .Send():
//
//	logging.Info().Str("key", "value").Msg("message")  // Correct
//	logging.Info().Str("key", "value")                 // WRONG - log not emitted
//
// # Component Loggers
//
// Create component-specific loggers with default fields:
//
//	pollLogger := logging.WithComponent("poller")
//	pollLogger.Info().Msg("Cycle started")
//
// # Security Logging
//
// Device session ids and JWTs must never be logged raw; use SanitizeToken:
//
//	logging.Debug().
//	    Str("session_id", logging.SanitizeToken(token)).
//	    Msg("Session established")
//
// # Thread Safety
//
// All exported functions are safe for concurrent use. The global logger
// is protected by sync.RWMutex for configuration changes.
//
// # Testing
//
// Create test loggers that capture output:
//
//	var buf bytes.Buffer
//	logger := logging.NewTestLogger(&buf)
//	logger.Info().Msg("test message")
//	output := buf.String()
package logging
