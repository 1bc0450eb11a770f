// Poly VideoOS Agent - Resilient Monitoring and Control for Poly Video Devices
// Copyright 2026 AVI-SPL, Inc.
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/AVISPL/dal-codecs-singlecodecs-polycom-videoos

package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/goccy/go-json"

	"github.com/AVISPL/dal-codecs-singlecodecs-polycom-videoos/internal/poller"
	"github.com/AVISPL/dal-codecs-singlecodecs-polycom-videoos/internal/videoos"
)

func TestRespondDataEnvelope(t *testing.T) {
	rec := httptest.NewRecorder()
	respondData(rec, http.StatusOK, map[string]string{"hello": "world"})

	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", rec.Code)
	}
	if got := rec.Header().Get("Content-Type"); got != "application/json" {
		t.Errorf("Content-Type = %q, want application/json", got)
	}
	if got := rec.Header().Get("Cache-Control"); got != "no-cache" {
		t.Errorf("Cache-Control = %q, want no-cache", got)
	}
	if rec.Header().Get("ETag") == "" {
		t.Error("ETag should be set")
	}

	var env envelope
	if err := json.Unmarshal(rec.Body.Bytes(), &env); err != nil {
		t.Fatalf("decode envelope: %v", err)
	}
	if env.Status != "success" {
		t.Errorf("envelope status = %q, want success", env.Status)
	}
	if env.Error != nil {
		t.Errorf("error = %+v, want nil", env.Error)
	}
}

func TestRespondErrorEnvelope(t *testing.T) {
	rec := httptest.NewRecorder()
	respondError(rec, http.StatusBadGateway, "DEVICE_ERROR", "Device returned an unexpected status", errors.New("boom"))

	if rec.Code != http.StatusBadGateway {
		t.Errorf("status = %d, want 502", rec.Code)
	}

	var env envelope
	if err := json.Unmarshal(rec.Body.Bytes(), &env); err != nil {
		t.Fatalf("decode envelope: %v", err)
	}
	if env.Status != "error" {
		t.Errorf("envelope status = %q, want error", env.Status)
	}
	if env.Error == nil || env.Error.Code != "DEVICE_ERROR" {
		t.Fatalf("error = %+v, want DEVICE_ERROR", env.Error)
	}
	if env.Error.Message != "Device returned an unexpected status" {
		t.Errorf("message = %q", env.Error.Message)
	}
}

func TestGenerateETag(t *testing.T) {
	a := generateETag([]byte(`{"status":"success"}`))
	b := generateETag([]byte(`{"status":"success"}`))
	c := generateETag([]byte(`{"status":"error"}`))

	if a != b {
		t.Errorf("same payload produced different tags: %q vs %q", a, b)
	}
	if a == c {
		t.Errorf("different payloads produced the same tag %q", a)
	}
}

func TestSanitizeLogValue(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"plain", "room-x50", "room-x50"},
		{"newline", "line1\nline2", "line1\\x0aline2"},
		{"carriage return", "a\rb", "a\\x0db"},
		{"delete char", "a\x7fb", "a\\x7fb"},
		{"unicode passes", "конференция", "конференция"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := sanitizeLogValue(tt.in); got != tt.want {
				t.Errorf("sanitizeLogValue(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestDeviceErrorResponse(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantCode   string
	}{
		{"unknown control", fmt.Errorf("%w %q", poller.ErrUnknownControl, "Zoom"), http.StatusBadRequest, "UNKNOWN_CONTROL"},
		{"bad value", fmt.Errorf("%w: want boolean", poller.ErrBadControlValue), http.StatusBadRequest, "BAD_CONTROL_VALUE"},
		{"malformed id", fmt.Errorf("%w: %q", poller.ErrMalformedCallID, "x"), http.StatusBadRequest, "MALFORMED_CALL_ID"},
		{"unreachable", fmt.Errorf("hangup: %w", videoos.ErrNotReachable), http.StatusServiceUnavailable, "DEVICE_UNREACHABLE"},
		{"login rejected", &videoos.LoginError{Code: 403}, http.StatusBadGateway, "DEVICE_LOGIN_REJECTED"},
		{"timeout", context.DeadlineExceeded, http.StatusGatewayTimeout, "DEVICE_TIMEOUT"},
		{"device status", &videoos.StatusError{Op: "GET rest/system", Code: 500}, http.StatusBadGateway, "DEVICE_ERROR"},
		{"anything else", errors.New("disk full"), http.StatusInternalServerError, "INTERNAL_ERROR"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, code, message := deviceErrorResponse(tt.err)
			if status != tt.wantStatus {
				t.Errorf("status = %d, want %d", status, tt.wantStatus)
			}
			if code != tt.wantCode {
				t.Errorf("code = %q, want %q", code, tt.wantCode)
			}
			if message == "" {
				t.Error("message should not be empty")
			}
		})
	}
}

func TestValidateRequestConvertsDetails(t *testing.T) {
	apiErr := validateRequest(&DialRequest{Protocol: "isdn"})
	if apiErr == nil {
		t.Fatal("expected a validation error")
	}
	if apiErr.Code != "VALIDATION_ERROR" {
		t.Errorf("code = %q, want VALIDATION_ERROR", apiErr.Code)
	}
	if apiErr.Details == nil {
		t.Error("details should carry field context")
	}
}
