// Poly VideoOS Agent - Resilient Monitoring and Control for Poly Video Devices
// Copyright 2026 AVI-SPL, Inc.
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/AVISPL/dal-codecs-singlecodecs-polycom-videoos

// Package middleware holds the HTTP middleware shared across the route
// tree: request id propagation and Prometheus instrumentation. Rate
// limiting, CORS, and auth live in internal/api next to the routes that
// tune them.
package middleware

import (
	"net/http"

	"github.com/AVISPL/dal-codecs-singlecodecs-polycom-videoos/internal/logging"
)

// RequestID tags every request with an id for log correlation. An inbound
// X-Request-ID is honored so an upstream proxy's id survives end to end;
// otherwise a new one is generated. The id is echoed on the response and a
// fresh correlation id is attached for fan-out tracing.
func RequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get("X-Request-ID")
		if requestID == "" {
			requestID = logging.GenerateRequestID()
		}

		ctx := logging.ContextWithRequestID(r.Context(), requestID)
		ctx = logging.ContextWithNewCorrelationID(ctx)

		w.Header().Set("X-Request-ID", requestID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
