// Poly VideoOS Agent - Resilient Monitoring and Control for Poly Video Devices
// Copyright 2026 AVI-SPL, Inc.
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/AVISPL/dal-codecs-singlecodecs-polycom-videoos

package videoos

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"testing"
	"time"

	"github.com/goccy/go-json"
)

// newTestClient builds a Client against an httptest TLS server. VideoOS
// devices serve self-signed certificates, so the insecure transport path is
// the production path too.
func newTestClient(t *testing.T, serverURL string) *Client {
	t.Helper()

	u, err := url.Parse(serverURL)
	if err != nil {
		t.Fatalf("failed to parse test server URL: %v", err)
	}
	port, err := strconv.Atoi(u.Port())
	if err != nil {
		t.Fatalf("failed to parse test server port: %v", err)
	}

	return NewClient(ClientConfig{
		Host:           u.Hostname(),
		Port:           port,
		Username:       "admin",
		Password:       "secret",
		InsecureTLS:    true,
		RequestTimeout: 5 * time.Second,
	})
}

func TestLoginFlatToken(t *testing.T) {
	var sawCookie bool
	srv := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/rest/current/session" {
			t.Errorf("unexpected request: %s %s", r.Method, r.URL.Path)
		}
		if r.Header.Get("Cookie") != "" {
			sawCookie = true
		}
		var req loginRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("failed to decode login body: %v", err)
		}
		if req.User != "admin" || req.Password != "secret" {
			t.Errorf("login body = %+v, want admin/secret", req)
		}
		fmt.Fprint(w, `{"success": true, "sessionId": "PSN0HppfZap7wtV9MgTeGKLZ"}`)
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL)
	token, err := c.Login(context.Background())
	if err != nil {
		t.Fatalf("Login() error = %v", err)
	}
	if token != "PSN0HppfZap7wtV9MgTeGKLZ" {
		t.Errorf("Login() token = %q", token)
	}
	if sawCookie {
		t.Error("login request must not carry a session cookie")
	}
}

func TestLoginNestedToken(t *testing.T) {
	srv := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, `{"success": true, "session": {"sessionId": "nested-token"}}`)
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL)
	token, err := c.Login(context.Background())
	if err != nil {
		t.Fatalf("Login() error = %v", err)
	}
	if token != "nested-token" {
		t.Errorf("Login() token = %q, want nested-token", token)
	}
}

func TestLoginRejectedInBody(t *testing.T) {
	srv := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, `{"success": false, "reason": "Unable to login."}`)
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL)
	_, err := c.Login(context.Background())
	if !IsLoginFailure(err) {
		t.Fatalf("expected login failure, got %v", err)
	}
	var le *LoginError
	if !errors.As(err, &le) {
		t.Fatalf("expected *LoginError, got %T", err)
	}
	if le.Reason != "Unable to login." {
		t.Errorf("LoginError.Reason = %q", le.Reason)
	}
}

func TestLoginUnauthorized(t *testing.T) {
	srv := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "bad credentials", http.StatusUnauthorized)
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL)
	_, err := c.Login(context.Background())
	if !IsLoginFailure(err) {
		t.Fatalf("expected login failure on 401, got %v", err)
	}
}

func TestLoginServerErrorIsNotLoginFailure(t *testing.T) {
	srv := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "temporarily busy", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL)
	_, err := c.Login(context.Background())
	if IsLoginFailure(err) {
		t.Fatalf("a 503 on login must not poison the session: %v", err)
	}
	var se *StatusError
	if !errors.As(err, &se) || se.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected StatusError 503, got %v", err)
	}
}

func TestLoginUnreachable(t *testing.T) {
	srv := httptest.NewTLSServer(http.HandlerFunc(func(_ http.ResponseWriter, _ *http.Request) {}))
	serverURL := srv.URL
	srv.Close()

	c := newTestClient(t, serverURL)
	_, err := c.Login(context.Background())
	if !errors.Is(err, ErrNotReachable) {
		t.Fatalf("expected ErrNotReachable, got %v", err)
	}
}

func TestSessionCookieFormat(t *testing.T) {
	var gotCookie string
	srv := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotCookie = r.Header.Get("Cookie")
		fmt.Fprint(w, `{"serialNumber": "8L1234"}`)
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL)
	var info SystemInfo
	if err := c.getJSON(context.Background(), "tok123", uriSystem, &info); err != nil {
		t.Fatalf("getJSON() error = %v", err)
	}

	u, _ := url.Parse(srv.URL)
	want := fmt.Sprintf("session_id=tok123; Path=/; Domain=%s; Secure; HttpOnly;", u.Hostname())
	if gotCookie != want {
		t.Errorf("Cookie = %q, want %q", gotCookie, want)
	}
	if info.SerialNumber != "8L1234" {
		t.Errorf("decoded serial = %q", info.SerialNumber)
	}
}

func TestForbiddenMapsToAuthExpired(t *testing.T) {
	srv := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "session expired", http.StatusForbidden)
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL)
	var out map[string]any
	err := c.getJSON(context.Background(), "stale", uriSystem, &out)
	if !errors.Is(err, ErrAuthExpired) {
		t.Fatalf("expected ErrAuthExpired on 403, got %v", err)
	}
}

func TestStatusErrorCarriesBody(t *testing.T) {
	srv := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "device is busy rebooting", http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL)
	var out map[string]any
	err := c.getJSON(context.Background(), "tok", uriSystem, &out)

	var se *StatusError
	if !errors.As(err, &se) {
		t.Fatalf("expected *StatusError, got %v", err)
	}
	if se.Code != http.StatusInternalServerError {
		t.Errorf("StatusError.Code = %d, want 500", se.Code)
	}
	if se.Body != "device is busy rebooting" {
		t.Errorf("StatusError.Body = %q", se.Body)
	}
	if !IsStatus(err, http.StatusInternalServerError) {
		t.Error("IsStatus(err, 500) = false, want true")
	}
}

func TestGetTextUnquotesJSONStrings(t *testing.T) {
	tests := []struct {
		name string
		body string
		want string
	}{
		{"json string", `"NO_CONTENT"`, "NO_CONTENT"},
		{"raw text", "ACTIVE", "ACTIVE"},
		{"padded", "  \"LOCAL\"\n", "LOCAL"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				fmt.Fprint(w, tt.body)
			}))
			defer srv.Close()

			c := newTestClient(t, srv.URL)
			got, err := c.getText(context.Background(), "tok", uriContentStatus)
			if err != nil {
				t.Fatalf("getText() error = %v", err)
			}
			if got != tt.want {
				t.Errorf("getText() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestBareScalarBodies(t *testing.T) {
	bodies := make(map[string]string)
	srv := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, _ := io.ReadAll(r.Body)
		bodies[r.URL.Path] = string(raw)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL)
	ctx := context.Background()
	if err := c.postJSON(ctx, "tok", uriVolume, 55, nil); err != nil {
		t.Fatalf("postJSON(volume) error = %v", err)
	}
	if err := c.postJSON(ctx, "tok", uriAudioMuted, true, nil); err != nil {
		t.Fatalf("postJSON(muted) error = %v", err)
	}

	if got := bodies["/"+uriVolume]; got != "55" {
		t.Errorf("volume body = %q, want bare 55", got)
	}
	if got := bodies["/"+uriAudioMuted]; got != "true" {
		t.Errorf("muted body = %q, want bare true", got)
	}
}

func TestGetJSONUnreachable(t *testing.T) {
	srv := httptest.NewTLSServer(http.HandlerFunc(func(_ http.ResponseWriter, _ *http.Request) {}))
	serverURL := srv.URL
	srv.Close()

	c := newTestClient(t, serverURL)
	var out map[string]any
	err := c.getJSON(context.Background(), "tok", uriSystem, &out)
	if !errors.Is(err, ErrNotReachable) {
		t.Fatalf("expected ErrNotReachable, got %v", err)
	}
}
