// Poly VideoOS Agent - Resilient Monitoring and Control for Poly Video Devices
// Copyright 2026 AVI-SPL, Inc.
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/AVISPL/dal-codecs-singlecodecs-polycom-videoos

package videoos

import (
	"errors"
	"fmt"
)

// Sentinel errors classifying device communication failures. Callers use
// errors.Is to branch on them; the original cause text is preserved in the
// wrapping message.
var (
	// ErrNotReachable indicates a transport-level failure: connection refused,
	// reset, TLS handshake failure, or timeout. Transient; the session guard
	// retries such requests once. On the login call itself it signals a device
	// reboot instead.
	ErrNotReachable = errors.New("device not reachable")

	// ErrAuthExpired indicates the device rejected the session cookie (HTTP 403
	// on a non-login call). Consumed inside the session guard, which recovers
	// the session and replays the request; callers outside the guard should
	// never observe it.
	ErrAuthExpired = errors.New("device session expired")

	// ErrResourceGone indicates a conference-scoped resource disappeared
	// (HTTP 404). Maps to a Disconnected call state, not a failure.
	ErrResourceGone = errors.New("device resource gone")

	// ErrUnknownConnection indicates a previously minted connection id is no
	// longer present in the conference. Recoverable; resolution falls back to
	// the first available connection.
	ErrUnknownConnection = errors.New("connection not present in conference")
)

// StatusError is a device HTTP response with a failure status code.
type StatusError struct {
	Op   string // request description, e.g. "GET rest/system"
	Code int    // HTTP status code
	Body string // response body, truncated
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("%s returned status %d", e.Op, e.Code)
	}
	return fmt.Sprintf("%s returned status %d: %s", e.Op, e.Code, e.Body)
}

// IsStatus reports whether err carries a device response with the given
// HTTP status code.
func IsStatus(err error, code int) bool {
	var se *StatusError
	return errors.As(err, &se) && se.Code == code
}

// LoginError is a rejected login: the device answered the session request but
// did not grant a session. Fatal; the session guard poisons itself with it so
// subsequent calls fail fast until a later recovery succeeds.
type LoginError struct {
	Code   int    // HTTP status of the login response (200 when rejected in-body)
	Reason string // device-reported reason, if any
}

func (e *LoginError) Error() string {
	if e.Reason == "" {
		return fmt.Sprintf("device login rejected (status %d)", e.Code)
	}
	return fmt.Sprintf("device login rejected (status %d): %s", e.Code, e.Reason)
}

// IsLoginFailure reports whether err is (or wraps) a rejected login.
func IsLoginFailure(err error) bool {
	var le *LoginError
	return errors.As(err, &le)
}
