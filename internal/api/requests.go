// Poly VideoOS Agent - Resilient Monitoring and Control for Poly Video Devices
// Copyright 2026 AVI-SPL, Inc.
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/AVISPL/dal-codecs-singlecodecs-polycom-videoos

package api

import "time"

// TokenRequest is the credential payload for POST /auth/token.
type TokenRequest struct {
	Username string `json:"username" validate:"required,min=1,max=128"`
	Password string `json:"password" validate:"required,min=1,max=1024"`
}

// TokenResponse carries a freshly signed session token.
type TokenResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expiresAt"`
	Username  string    `json:"username"`
	Role      string    `json:"role"`
}

// ControlRequest carries the value for a control write. Controls that take
// no value, like Reboot, accept an empty body.
type ControlRequest struct {
	Value string `json:"value" validate:"max=256"`
}

// ControlResponse acknowledges an accepted control write.
type ControlResponse struct {
	Control string `json:"control"`
	Value   string `json:"value,omitempty"`
}

// DialRequest asks the device to place an outbound call. Protocol is
// normalized to lower case before validation; an empty protocol lets the
// device choose. Rate is the requested call rate in kbps.
type DialRequest struct {
	Address  string `json:"address" validate:"required,min=1,max=512"`
	Protocol string `json:"protocol" validate:"omitempty,oneof=sip h323"`
	Rate     int    `json:"rate" validate:"omitempty,gte=64,lte=6144"`
}

// DialResponse returns the correlation id minted for a placed call.
type DialResponse struct {
	CallID string `json:"callId"`
}

// HangupRequest names the call to disconnect. An empty call id hangs up
// every active conference.
type HangupRequest struct {
	CallID string `json:"callId" validate:"omitempty,max=256"`
}

// HangupResponse acknowledges a completed hangup.
type HangupResponse struct {
	CallID string `json:"callId,omitempty"`
}

// HealthStatus answers the liveness probe.
type HealthStatus struct {
	Status string `json:"status"`
	Uptime string `json:"uptime"`
}

// ReadyStatus answers the readiness probe.
type ReadyStatus struct {
	Ready bool `json:"ready"`
}
