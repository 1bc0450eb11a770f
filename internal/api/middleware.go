// Poly VideoOS Agent - Resilient Monitoring and Control for Poly Video Devices
// Copyright 2026 AVI-SPL, Inc.
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/AVISPL/dal-codecs-singlecodecs-polycom-videoos

package api

import (
	"context"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"

	"github.com/AVISPL/dal-codecs-singlecodecs-polycom-videoos/internal/auth"
	"github.com/AVISPL/dal-codecs-singlecodecs-polycom-videoos/internal/authz"
	"github.com/AVISPL/dal-codecs-singlecodecs-polycom-videoos/internal/config"
)

// ChiMiddleware builds the router's CORS and rate limiting middleware from
// the server configuration.
type ChiMiddleware struct {
	reqs     int
	window   time.Duration
	disabled bool
	cors     func(http.Handler) http.Handler
}

// NewChiMiddleware constructs the middleware factory. A zero request count
// or window falls back to 100 requests per minute.
func NewChiMiddleware(cfg *config.ServerConfig) *ChiMiddleware {
	corsHandler := cors.Handler(cors.Options{
		AllowedOrigins:   cfg.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Content-Type", "Authorization"},
		AllowCredentials: false,
		MaxAge:           86400,
	})

	reqs := cfg.RateLimitReqs
	if reqs <= 0 {
		reqs = 100
	}
	window := cfg.RateLimitWindow
	if window <= 0 {
		window = time.Minute
	}

	return &ChiMiddleware{
		reqs:     reqs,
		window:   window,
		disabled: cfg.RateLimitDisabled,
		cors:     corsHandler,
	}
}

// CORS returns the preconfigured CORS middleware. It runs globally so
// OPTIONS preflights are answered before any other middleware.
func (m *ChiMiddleware) CORS() func(http.Handler) http.Handler {
	return m.cors
}

// RateLimitConfig defines per-tier rate limit parameters.
type RateLimitConfig struct {
	Requests int
	Window   time.Duration
}

// Endpoint-tier rate limits. Token issuance is locked down hard against
// credential stuffing; health endpoints stay permissive for monitors.
var (
	RateLimitToken  = RateLimitConfig{Requests: 5, Window: 5 * time.Minute}
	RateLimitHealth = RateLimitConfig{Requests: 1000, Window: time.Minute}
)

// RateLimit limits by client IP using the configured default tier.
func (m *ChiMiddleware) RateLimit() func(http.Handler) http.Handler {
	return m.RateLimitCustom(RateLimitConfig{Requests: m.reqs, Window: m.window})
}

// RateLimitToken returns the strict limiter for the token endpoint.
func (m *ChiMiddleware) RateLimitToken() func(http.Handler) http.Handler {
	return m.RateLimitCustom(RateLimitToken)
}

// RateLimitHealth returns the permissive limiter for probe endpoints.
func (m *ChiMiddleware) RateLimitHealth() func(http.Handler) http.Handler {
	return m.RateLimitCustom(RateLimitHealth)
}

// RateLimitCustom limits by client IP with explicit tier parameters.
func (m *ChiMiddleware) RateLimitCustom(config RateLimitConfig) func(http.Handler) http.Handler {
	if m.disabled {
		return func(next http.Handler) http.Handler {
			return next
		}
	}

	return httprate.Limit(
		config.Requests,
		config.Window,
		httprate.WithKeyFuncs(httprate.KeyByIP),
	)
}

// APISecurityHeaders adds defensive response headers. HSTS is set only when
// the request arrived over TLS or through a TLS-terminating proxy.
func APISecurityHeaders() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("X-Content-Type-Options", "nosniff")
			w.Header().Set("X-Frame-Options", "DENY")
			w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")
			if r.TLS != nil || r.Header.Get("X-Forwarded-Proto") == "https" {
				w.Header().Set("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
			}
			next.ServeHTTP(w, r)
		})
	}
}

type contextKey string

// claimsContextKey carries the authenticated token claims through the
// request context.
const claimsContextKey contextKey = "claims"

// ClaimsFromContext returns the claims stored by the authentication
// middleware.
func ClaimsFromContext(ctx context.Context) (*auth.Claims, bool) {
	claims, ok := ctx.Value(claimsContextKey).(*auth.Claims)
	return claims, ok
}

// extractToken pulls the bearer token from the Authorization header. When
// the header is absent it falls back to the access_token query parameter:
// browsers cannot attach headers to a WebSocket upgrade, so the stream
// endpoint relies on the fallback.
func extractToken(r *http.Request) string {
	if authHeader := r.Header.Get("Authorization"); authHeader != "" {
		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) == 2 && strings.EqualFold(parts[0], "Bearer") {
			return parts[1]
		}
		return ""
	}
	return r.URL.Query().Get("access_token")
}

// clientIP reports the caller's address without the port. The RealIP
// middleware has already unwrapped X-Forwarded-For by the time this runs.
func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// authenticate validates the bearer token and stores its claims in the
// request context. Requests without a valid token get 401.
func (h *Handler) authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := extractToken(r)
		if token == "" {
			respondError(w, http.StatusUnauthorized, "AUTHENTICATION_ERROR", "Missing bearer token", nil)
			return
		}

		claims, err := h.jwt.ValidateToken(token)
		if err != nil {
			h.secLog.LogTokenRejected("", clientIP(r), r.UserAgent(), err.Error())
			respondError(w, http.StatusUnauthorized, "AUTHENTICATION_ERROR", "Invalid or expired token", nil)
			return
		}

		ctx := context.WithValue(r.Context(), claimsContextKey, claims)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// authorize checks the caller's role against the access policy for the
// request path and method. It must run after authenticate.
func (h *Handler) authorize(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		claims, ok := ClaimsFromContext(r.Context())
		if !ok {
			respondError(w, http.StatusUnauthorized, "AUTHENTICATION_ERROR", "Authentication required", nil)
			return
		}

		allowed, err := h.enforcer.Enforce(claims.Role, r.URL.Path, authz.ActionForMethod(r.Method))
		if err != nil {
			respondError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Authorization check failed", err)
			return
		}
		if !allowed {
			h.secLog.LogAccessDenied(claims.Username, clientIP(r), r.URL.Path)
			respondError(w, http.StatusForbidden, "AUTHORIZATION_ERROR", "Insufficient permissions", nil)
			return
		}

		next.ServeHTTP(w, r)
	})
}
