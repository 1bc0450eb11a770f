// Poly VideoOS Agent - Resilient Monitoring and Control for Poly Video Devices
// Copyright 2026 AVI-SPL, Inc.
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/AVISPL/dal-codecs-singlecodecs-polycom-videoos

/*
client.go - VideoOS REST Transport

This file implements the HTTP transport for the Poly VideoOS REST API.
It handles session-cookie authentication, request rate limiting, failure
classification, and a circuit breaker that sheds load while the device is
unreachable (typically during a reboot).

API Reference: https://www.poly.com/us/en/support (VideoOS REST API guide)
*/

package videoos

import (
	"bytes"
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog"
	"github.com/sony/gobreaker/v2"
	"golang.org/x/time/rate"

	"github.com/AVISPL/dal-codecs-singlecodecs-polycom-videoos/internal/logging"
	"github.com/AVISPL/dal-codecs-singlecodecs-polycom-videoos/internal/metrics"
)

// ClientConfig holds the connection parameters for one VideoOS device.
type ClientConfig struct {
	Host           string
	Port           int
	Username       string
	Password       string
	InsecureTLS    bool
	RequestTimeout time.Duration
	RateLimit      float64 // requests per second against the device
	RateBurst      int
}

// Client is the low-level VideoOS REST client. It is safe for concurrent use,
// but the device itself is not: callers are expected to serialize requests
// through the SessionGuard rather than calling verbs concurrently.
type Client struct {
	baseURL    string
	host       string
	username   string
	password   string
	httpClient *http.Client
	limiter    *rate.Limiter
	breaker    *gobreaker.CircuitBreaker[*http.Response]
	logger     zerolog.Logger
}

// NewClient creates a VideoOS REST client.
//
// Parameters:
//   - cfg.Host/Port: device address; VideoOS serves HTTPS only, typically on 443
//   - cfg.InsecureTLS: skip certificate verification (devices ship self-signed
//     certificates that regenerate on reboot)
//   - cfg.RateLimit/RateBurst: client-side ceiling protecting the device's
//     single-session web stack from request bursts
func NewClient(cfg ClientConfig) *Client {
	timeout := cfg.RequestTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	transport := &http.Transport{
		TLSClientConfig: &tls.Config{
			InsecureSkipVerify: cfg.InsecureTLS, //nolint:gosec // self-signed device certificates
			MinVersion:         tls.VersionTLS12,
		},
		MaxIdleConns:    2,
		IdleConnTimeout: 90 * time.Second,
	}

	limit := rate.Limit(cfg.RateLimit)
	if cfg.RateLimit <= 0 {
		limit = rate.Inf
	}
	burst := cfg.RateBurst
	if burst <= 0 {
		burst = 1
	}

	c := &Client{
		baseURL:  fmt.Sprintf("https://%s:%d", cfg.Host, cfg.Port),
		host:     cfg.Host,
		username: cfg.Username,
		password: cfg.Password,
		httpClient: &http.Client{
			Timeout:   timeout,
			Transport: transport,
		},
		limiter: rate.NewLimiter(limit, burst),
		logger:  logging.WithComponent("videoos"),
	}
	c.breaker = newDeviceBreaker(c.logger)

	return c
}

// newDeviceBreaker builds the circuit breaker guarding device reachability.
// Only transport-level failures count toward tripping: HTTP error statuses
// (auth loss, bad requests) are application outcomes, not availability ones.
func newDeviceBreaker(logger zerolog.Logger) *gobreaker.CircuitBreaker[*http.Response] {
	settings := gobreaker.Settings{
		Name:        "videoos-device",
		MaxRequests: 3,
		Interval:    time.Minute,
		Timeout:     time.Minute,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < 10 {
				return false
			}
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return failureRatio >= 0.6
		},
		IsSuccessful: func(err error) bool {
			return !errors.Is(err, ErrNotReachable)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn().
				Str("breaker", name).
				Str("from", stateToString(from)).
				Str("to", stateToString(to)).
				Msg("Device circuit breaker state changed")
			metrics.CircuitBreakerState.WithLabelValues(name).Set(stateToFloat(to))
			metrics.CircuitBreakerTransitions.WithLabelValues(name, stateToString(from), stateToString(to)).Inc()
		},
	}
	return gobreaker.NewCircuitBreaker[*http.Response](settings)
}

func stateToFloat(state gobreaker.State) float64 {
	switch state {
	case gobreaker.StateClosed:
		return 0
	case gobreaker.StateHalfOpen:
		return 1
	case gobreaker.StateOpen:
		return 2
	default:
		return -1
	}
}

func stateToString(state gobreaker.State) string {
	switch state {
	case gobreaker.StateClosed:
		return "closed"
	case gobreaker.StateHalfOpen:
		return "half-open"
	case gobreaker.StateOpen:
		return "open"
	default:
		return "unknown"
	}
}

// Login establishes a device session and returns the session token. It never
// sends a session cookie: the device rejects login requests carrying one.
//
// Failure classification:
//   - transport failure → ErrNotReachable (during recovery this doubles as
//     the reboot-in-progress signal)
//   - HTTP 401/403, or HTTP 200 with success=false → *LoginError
//   - other failure statuses → *StatusError
func (c *Client) Login(ctx context.Context) (string, error) {
	resp, err := c.do(ctx, http.MethodPost, uriSession, "", loginRequest{
		User:     c.username,
		Password: c.password,
	})
	if err != nil {
		return "", fmt.Errorf("login request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return "", &LoginError{Code: resp.StatusCode, Reason: readErrorBody(resp.Body)}
	}
	if resp.StatusCode != http.StatusOK {
		return "", &StatusError{Op: "POST " + uriSession, Code: resp.StatusCode, Body: readErrorBody(resp.Body)}
	}

	var session loginResponse
	if err := json.NewDecoder(resp.Body).Decode(&session); err != nil {
		return "", fmt.Errorf("failed to decode login response: %w", err)
	}
	if !session.Success {
		return "", &LoginError{Code: resp.StatusCode, Reason: session.Reason}
	}
	token := session.token()
	if token == "" {
		return "", fmt.Errorf("login succeeded but response carries no session id")
	}
	return token, nil
}

// Logout releases the device session. Best effort; the device also expires
// sessions on its own.
func (c *Client) Logout(ctx context.Context, token string) error {
	resp, err := c.do(ctx, http.MethodDelete, uriSession, token, nil)
	if err != nil {
		return fmt.Errorf("logout request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusNoContent {
		return &StatusError{Op: "DELETE " + uriSession, Code: resp.StatusCode, Body: readErrorBody(resp.Body)}
	}
	return nil
}

// CloseIdleConnections drops pooled TCP connections. Called after a detected
// reboot: connections bound to the pre-reboot certificate hang otherwise.
func (c *Client) CloseIdleConnections() {
	c.httpClient.CloseIdleConnections()
}

// getJSON performs a GET and decodes the JSON response into out.
func (c *Client) getJSON(ctx context.Context, token, endpoint string, out any) error {
	resp, err := c.do(ctx, http.MethodGet, endpoint, token, nil)
	if err != nil {
		return fmt.Errorf("GET %s request failed: %w", endpoint, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if err := c.checkStatus("GET "+endpoint, resp); err != nil {
		return err
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode GET %s response: %w", endpoint, err)
	}
	return nil
}

// getText performs a GET and returns the response as trimmed text. JSON
// string payloads are unquoted; anything else is returned raw.
func (c *Client) getText(ctx context.Context, token, endpoint string) (string, error) {
	resp, err := c.do(ctx, http.MethodGet, endpoint, token, nil)
	if err != nil {
		return "", fmt.Errorf("GET %s request failed: %w", endpoint, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if err := c.checkStatus("GET "+endpoint, resp); err != nil {
		return "", err
	}
	raw, err := io.ReadAll(io.LimitReader(resp.Body, 4096))
	if err != nil {
		return "", fmt.Errorf("failed to read GET %s response: %w", endpoint, err)
	}
	text := strings.TrimSpace(string(raw))
	var unquoted string
	if json.Unmarshal([]byte(text), &unquoted) == nil {
		return unquoted, nil
	}
	return text, nil
}

// postJSON performs a POST with a JSON body (bare scalars included: the
// volume and mute endpoints take unwrapped numbers and booleans) and decodes
// the response into out when out is non-nil.
func (c *Client) postJSON(ctx context.Context, token, endpoint string, body, out any) error {
	resp, err := c.do(ctx, http.MethodPost, endpoint, token, body)
	if err != nil {
		return fmt.Errorf("POST %s request failed: %w", endpoint, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if err := c.checkStatus("POST "+endpoint, resp); err != nil {
		return err
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode POST %s response: %w", endpoint, err)
	}
	return nil
}

// del performs a DELETE.
func (c *Client) del(ctx context.Context, token, endpoint string) error {
	resp, err := c.do(ctx, http.MethodDelete, endpoint, token, nil)
	if err != nil {
		return fmt.Errorf("DELETE %s request failed: %w", endpoint, err)
	}
	defer func() { _ = resp.Body.Close() }()

	return c.checkStatus("DELETE "+endpoint, resp)
}

// checkStatus maps a non-success response to the failure taxonomy: 403 means
// the session cookie was rejected, everything else surfaces as a StatusError
// for per-call handling (404 on conference lookups, device reason texts).
func (c *Client) checkStatus(op string, resp *http.Response) error {
	switch {
	case resp.StatusCode >= http.StatusOK && resp.StatusCode < http.StatusMultipleChoices:
		return nil
	case resp.StatusCode == http.StatusForbidden:
		return fmt.Errorf("%s: %w", op, ErrAuthExpired)
	default:
		return &StatusError{Op: op, Code: resp.StatusCode, Body: readErrorBody(resp.Body)}
	}
}

// do performs one rate-limited, breaker-guarded HTTP request. A session
// cookie is attached whenever token is non-empty; the login endpoint passes
// an empty token.
func (c *Client) do(ctx context.Context, method, endpoint, token string, body any) (*http.Response, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	fullURL := c.baseURL + "/" + strings.TrimPrefix(endpoint, "/")

	var reqBody io.Reader = http.NoBody
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to encode %s %s body: %w", method, endpoint, err)
		}
		reqBody = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, fullURL, reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Cookie", fmt.Sprintf("session_id=%s; Path=/; Domain=%s; Secure; HttpOnly;", token, c.host))
	}

	start := time.Now()
	resp, err := c.breaker.Execute(func() (*http.Response, error) {
		resp, err := c.httpClient.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			return nil, fmt.Errorf("%w: %v", ErrNotReachable, err)
		}
		return resp, nil
	})
	duration := time.Since(start)

	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			err = fmt.Errorf("%s %s: circuit open: %w", method, endpoint, ErrNotReachable)
		}
		metrics.RecordDeviceRequest(method, deviceOutcome(err), duration)
		return nil, err
	}

	outcome := "ok"
	if resp.StatusCode >= http.StatusBadRequest {
		outcome = "status_error"
	}
	metrics.RecordDeviceRequest(method, outcome, duration)
	return resp, nil
}

func deviceOutcome(err error) string {
	if errors.Is(err, ErrNotReachable) {
		return "unreachable"
	}
	return "status_error"
}

// readErrorBody extracts a bounded amount of response text for error
// messages and device-reported reasons.
func readErrorBody(r io.Reader) string {
	raw, err := io.ReadAll(io.LimitReader(r, 2048))
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(raw))
}
