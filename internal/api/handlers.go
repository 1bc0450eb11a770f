// Poly VideoOS Agent - Resilient Monitoring and Control for Poly Video Devices
// Copyright 2026 AVI-SPL, Inc.
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/AVISPL/dal-codecs-singlecodecs-polycom-videoos

package api

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/AVISPL/dal-codecs-singlecodecs-polycom-videoos/internal/auth"
	"github.com/AVISPL/dal-codecs-singlecodecs-polycom-videoos/internal/authz"
	"github.com/AVISPL/dal-codecs-singlecodecs-polycom-videoos/internal/config"
	"github.com/AVISPL/dal-codecs-singlecodecs-polycom-videoos/internal/logging"
	"github.com/AVISPL/dal-codecs-singlecodecs-polycom-videoos/internal/poller"
	"github.com/AVISPL/dal-codecs-singlecodecs-polycom-videoos/internal/videoos"
	ws "github.com/AVISPL/dal-codecs-singlecodecs-polycom-videoos/internal/websocket"
)

// Agent is the slice of the poller the API serves. *poller.Poller satisfies
// it; tests substitute a stub.
type Agent interface {
	Poll(ctx context.Context) (poller.View, error)
	Snapshot() poller.View
	Groups() []poller.GroupHealth
	Ready() bool
	Control(ctx context.Context, name, value string) error
	Dial(ctx context.Context, spec videoos.DialSpec) (string, error)
	Hangup(ctx context.Context, callID string) error
	CallStatus(ctx context.Context, callID string) (poller.CallStatus, error)
}

// Handler owns the HTTP endpoints. All device access goes through the
// agent; handlers never talk to the device directly.
type Handler struct {
	agent    Agent
	users    *auth.UserStore
	jwt      *auth.JWTManager
	enforcer *authz.Enforcer
	hub      *ws.Hub
	cfg      *config.Config
	secLog   *logging.SecurityLogger
	started  time.Time
}

// NewHandler wires the handler set. hub may be nil when the stream endpoint
// is not served.
func NewHandler(agent Agent, users *auth.UserStore, jwt *auth.JWTManager, enforcer *authz.Enforcer, hub *ws.Hub, cfg *config.Config) *Handler {
	return &Handler{
		agent:    agent,
		users:    users,
		jwt:      jwt,
		enforcer: enforcer,
		hub:      hub,
		cfg:      cfg,
		secLog:   logging.NewSecurityLogger(),
		started:  time.Now(),
	}
}

// Token authenticates a username/password pair and issues a session token.
func (h *Handler) Token(w http.ResponseWriter, r *http.Request) {
	var req TokenRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "INVALID_REQUEST", "Invalid request body", err)
		return
	}
	if apiErr := validateRequest(&req); apiErr != nil {
		respondError(w, http.StatusBadRequest, apiErr.Code, apiErr.Message, nil)
		return
	}

	role, err := h.users.Authenticate(req.Username, req.Password)
	if err != nil {
		h.secLog.LogTokenRejected(req.Username, clientIP(r), r.UserAgent(), "invalid credentials")
		respondError(w, http.StatusUnauthorized, "INVALID_CREDENTIALS", "Invalid username or password", nil)
		return
	}

	token, err := h.jwt.GenerateToken(req.Username, role)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "TOKEN_GENERATION_FAILED", "Failed to generate session token", err)
		return
	}

	h.secLog.LogTokenIssued(req.Username, clientIP(r), r.UserAgent())
	respondData(w, http.StatusOK, TokenResponse{
		Token:     token,
		ExpiresAt: time.Now().Add(h.cfg.Security.SessionTimeout),
		Username:  req.Username,
		Role:      role,
	})
}

// Snapshot returns the current monitored view. Before the first cycle (or
// journal restore) completes there is nothing to serve, so the endpoint
// answers 503 rather than an empty property map.
func (h *Handler) Snapshot(w http.ResponseWriter, r *http.Request) {
	if !h.agent.Ready() {
		respondError(w, http.StatusServiceUnavailable, "NOT_READY", "No snapshot collected yet", nil)
		return
	}
	respondData(w, http.StatusOK, h.agent.Snapshot())
}

// Groups returns per-group collection health.
func (h *Handler) Groups(w http.ResponseWriter, r *http.Request) {
	respondData(w, http.StatusOK, h.agent.Groups())
}

// ForcePoll runs a poll cycle now, subject to the poller's freshness
// governor, and returns the resulting view.
func (h *Handler) ForcePoll(w http.ResponseWriter, r *http.Request) {
	view, err := h.agent.Poll(r.Context())
	if err != nil {
		respondDeviceError(w, err)
		return
	}
	respondData(w, http.StatusOK, view)
}

// Control applies a named control write. The value is optional: Reboot
// carries none.
func (h *Handler) Control(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")

	var req ControlRequest
	if err := decodeJSON(w, r, &req); err != nil && !errors.Is(err, io.EOF) {
		respondError(w, http.StatusBadRequest, "INVALID_REQUEST", "Invalid request body", err)
		return
	}
	if apiErr := validateRequest(&req); apiErr != nil {
		respondError(w, http.StatusBadRequest, apiErr.Code, apiErr.Message, nil)
		return
	}

	if err := h.agent.Control(r.Context(), name, req.Value); err != nil {
		respondDeviceError(w, err)
		return
	}

	respondData(w, http.StatusOK, ControlResponse{Control: name, Value: req.Value})
}

// Dial places an outbound call and returns its correlation id.
func (h *Handler) Dial(w http.ResponseWriter, r *http.Request) {
	var req DialRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "INVALID_REQUEST", "Invalid request body", err)
		return
	}
	req.Protocol = strings.ToLower(strings.TrimSpace(req.Protocol))
	if apiErr := validateRequest(&req); apiErr != nil {
		respondError(w, http.StatusBadRequest, apiErr.Code, apiErr.Message, nil)
		return
	}

	callID, err := h.agent.Dial(r.Context(), videoos.DialSpec{
		Address:  req.Address,
		Protocol: req.Protocol,
		CallRate: req.Rate,
	})
	if err != nil {
		respondDeviceError(w, err)
		return
	}

	respondData(w, http.StatusOK, DialResponse{CallID: callID})
}

// Hangup disconnects the named call, or every active conference when the
// body is empty.
func (h *Handler) Hangup(w http.ResponseWriter, r *http.Request) {
	var req HangupRequest
	if err := decodeJSON(w, r, &req); err != nil && !errors.Is(err, io.EOF) {
		respondError(w, http.StatusBadRequest, "INVALID_REQUEST", "Invalid request body", err)
		return
	}
	if apiErr := validateRequest(&req); apiErr != nil {
		respondError(w, http.StatusBadRequest, apiErr.Code, apiErr.Message, nil)
		return
	}

	if err := h.agent.Hangup(r.Context(), req.CallID); err != nil {
		respondDeviceError(w, err)
		return
	}

	respondData(w, http.StatusOK, HangupResponse{CallID: req.CallID})
}

// CallStatus resolves a call correlation id to Connected or Disconnected.
func (h *Handler) CallStatus(w http.ResponseWriter, r *http.Request) {
	callID := chi.URLParam(r, "callID")

	status, err := h.agent.CallStatus(r.Context(), callID)
	if err != nil {
		respondDeviceError(w, err)
		return
	}

	respondData(w, http.StatusOK, status)
}

// Healthz answers liveness: the process is up and serving.
func (h *Handler) Healthz(w http.ResponseWriter, r *http.Request) {
	respondData(w, http.StatusOK, HealthStatus{
		Status: "ok",
		Uptime: time.Since(h.started).Round(time.Second).String(),
	})
}

// Readyz answers readiness: the agent holds a servable snapshot.
func (h *Handler) Readyz(w http.ResponseWriter, r *http.Request) {
	if !h.agent.Ready() {
		respondError(w, http.StatusServiceUnavailable, "NOT_READY", "Agent has not collected a snapshot yet", nil)
		return
	}
	respondData(w, http.StatusOK, ReadyStatus{Ready: true})
}

// Stream upgrades the connection and attaches it to the event hub.
func (h *Handler) Stream(w http.ResponseWriter, r *http.Request) {
	if h.hub == nil {
		respondError(w, http.StatusServiceUnavailable, "SERVICE_UNAVAILABLE", "Stream hub not running", nil)
		return
	}

	upgrader := h.upgrader()
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already written the failure response.
		logging.Error().Err(err).Msg("Stream upgrade failed")
		return
	}

	client := ws.NewClient(h.hub, conn)
	h.hub.Register <- client
	client.Start()
}

func (h *Handler) upgrader() websocket.Upgrader {
	return websocket.Upgrader{
		ReadBufferSize:   1024,
		WriteBufferSize:  1024,
		HandshakeTimeout: 10 * time.Second,
		CheckOrigin:      h.checkStreamOrigin,
	}
}

// checkStreamOrigin admits non-browser clients, which send no Origin
// header, and browsers whose Origin is in the CORS allow list. Token auth
// has already passed by the time the upgrade happens.
func (h *Handler) checkStreamOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	for _, allowed := range h.cfg.Server.CORSOrigins {
		if allowed == "*" || strings.EqualFold(allowed, origin) {
			return true
		}
	}
	return false
}
