// Poly VideoOS Agent - Resilient Monitoring and Control for Poly Video Devices
// Copyright 2026 AVI-SPL, Inc.
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/AVISPL/dal-codecs-singlecodecs-polycom-videoos

package api

import (
	"context"
	"errors"
	"net/http"

	"github.com/AVISPL/dal-codecs-singlecodecs-polycom-videoos/internal/poller"
	"github.com/AVISPL/dal-codecs-singlecodecs-polycom-videoos/internal/videoos"
)

// deviceErrorResponse classifies a poller or device failure into an HTTP
// status, error code, and client-safe message. Caller mistakes map to 4xx;
// the device being down or misbehaving maps to 5xx gateway statuses so
// upstream monitors can tell the agent's health from the device's.
func deviceErrorResponse(err error) (status int, code, message string) {
	switch {
	case errors.Is(err, poller.ErrUnknownControl):
		return http.StatusBadRequest, "UNKNOWN_CONTROL", "No such control"
	case errors.Is(err, poller.ErrBadControlValue):
		return http.StatusBadRequest, "BAD_CONTROL_VALUE", "Control value is not acceptable"
	case errors.Is(err, poller.ErrMalformedCallID):
		return http.StatusBadRequest, "MALFORMED_CALL_ID", "Call id is not in the expected format"
	case errors.Is(err, videoos.ErrNotReachable):
		return http.StatusServiceUnavailable, "DEVICE_UNREACHABLE", "Device is not reachable"
	case videoos.IsLoginFailure(err):
		return http.StatusBadGateway, "DEVICE_LOGIN_REJECTED", "Device rejected the agent's credentials"
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, "DEVICE_TIMEOUT", "Device did not answer in time"
	}

	var statusErr *videoos.StatusError
	if errors.As(err, &statusErr) {
		return http.StatusBadGateway, "DEVICE_ERROR", "Device returned an unexpected status"
	}

	return http.StatusInternalServerError, "INTERNAL_ERROR", "Internal error"
}

// respondDeviceError maps err through deviceErrorResponse and writes the
// error envelope.
func respondDeviceError(w http.ResponseWriter, err error) {
	status, code, message := deviceErrorResponse(err)
	respondError(w, status, code, message, err)
}
