// Poly VideoOS Agent - Resilient Monitoring and Control for Poly Video Devices
// Copyright 2026 AVI-SPL, Inc.
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/AVISPL/dal-codecs-singlecodecs-polycom-videoos

// Package api serves the agent's HTTP control plane: token issuance, the
// live device snapshot, call control, and the WebSocket event stream.
// Every data endpoint sits behind bearer-token authentication and
// role-based authorization; the poller remains the single path to the
// device.
package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/AVISPL/dal-codecs-singlecodecs-polycom-videoos/internal/config"
	"github.com/AVISPL/dal-codecs-singlecodecs-polycom-videoos/internal/middleware"
)

// Router assembles the HTTP route tree.
type Router struct {
	handler *Handler
	mw      *ChiMiddleware
}

// NewRouter builds a router around the handler set.
func NewRouter(handler *Handler, cfg *config.ServerConfig) *Router {
	return &Router{
		handler: handler,
		mw:      NewChiMiddleware(cfg),
	}
}

// Setup returns the HTTP handler for the agent. Health probes and metrics
// stay outside authentication so monitors and scrapers need no token; the
// token endpoint carries the strictest rate limit.
func (router *Router) Setup() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(router.mw.CORS())

	r.Group(func(r chi.Router) {
		r.Use(router.mw.RateLimitHealth())
		r.Use(APISecurityHeaders())
		r.Get("/healthz", router.handler.Healthz)
		r.Get("/readyz", router.handler.Readyz)
		r.Handle("/metrics", promhttp.Handler())
	})

	r.Route("/auth", func(r chi.Router) {
		r.Use(router.mw.RateLimitToken())
		r.Use(APISecurityHeaders())
		r.Post("/token", router.handler.Token)
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(router.mw.RateLimit())
		r.Use(APISecurityHeaders())
		r.Use(middleware.Prometheus)
		r.Use(router.handler.authenticate)
		r.Use(router.handler.authorize)

		r.Get("/snapshot", router.handler.Snapshot)
		r.Get("/groups", router.handler.Groups)
		r.Post("/poll", router.handler.ForcePoll)
		r.Post("/controls/{name}", router.handler.Control)
		r.Post("/calls/dial", router.handler.Dial)
		r.Post("/calls/hangup", router.handler.Hangup)
		r.Get("/calls/{callID}/status", router.handler.CallStatus)
		r.Get("/stream", router.handler.Stream)
	})

	return r
}
