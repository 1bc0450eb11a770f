// Poly VideoOS Agent - Resilient Monitoring and Control for Poly Video Devices
// Copyright 2026 AVI-SPL, Inc.
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/AVISPL/dal-codecs-singlecodecs-polycom-videoos

package middleware

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/AVISPL/dal-codecs-singlecodecs-polycom-videoos/internal/metrics"
)

// Prometheus records per-request metrics. The endpoint label is the chi
// route pattern, not the raw path, so call ids and control names never
// explode metric cardinality. The pattern is only known after routing, so
// it is read after the handler runs.
func Prometheus(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := chimiddleware.NewWrapResponseWriter(w, r.ProtoMajor)

		metrics.TrackActiveRequest(true)
		defer metrics.TrackActiveRequest(false)

		next.ServeHTTP(ww, r)

		endpoint := r.URL.Path
		if routeCtx := chi.RouteContext(r.Context()); routeCtx != nil {
			if pattern := routeCtx.RoutePattern(); pattern != "" {
				endpoint = pattern
			}
		}

		status := ww.Status()
		if status == 0 {
			// Hijacked connections, like the WebSocket stream, bypass
			// WriteHeader after a successful upgrade.
			status = http.StatusSwitchingProtocols
		}

		metrics.RecordAPIRequest(r.Method, endpoint, status, time.Since(start))
	})
}
