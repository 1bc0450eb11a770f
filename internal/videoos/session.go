// Poly VideoOS Agent - Resilient Monitoring and Control for Poly Video Devices
// Copyright 2026 AVI-SPL, Inc.
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/AVISPL/dal-codecs-singlecodecs-polycom-videoos

/*
session.go - Session Guard

Every outbound device call passes through the guard. It owns the single
session token, serializes all device I/O through one gate (the device does
not tolerate concurrent requests against its one session), detects
authentication loss, and runs session recovery with an exclusive slot so a
burst of failing callers produces exactly one re-login.

Recovery outcomes:
  - success: token refreshed, waiting callers replay their own request once
  - login rejected: the guard poisons itself; every call fails fast with the
    login error until a later recovery succeeds
  - login unreachable: treated as an externally-triggered reboot; transport
    state is dropped so the next attempt re-establishes cleanly
*/

package videoos

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/AVISPL/dal-codecs-singlecodecs-polycom-videoos/internal/logging"
	"github.com/AVISPL/dal-codecs-singlecodecs-polycom-videoos/internal/metrics"
)

// recoveryBackoffStart is the initial wait for callers that lost the race for
// the recovery slot; doubled up to recoveryBackoffCap while the holder works.
const (
	recoveryBackoffStart = 50 * time.Millisecond
	recoveryBackoffCap   = time.Second
)

// SessionGuard wraps a Client with session lifecycle management. All methods
// are safe for concurrent use.
type SessionGuard struct {
	client     *Client
	retryDelay time.Duration
	logger     zerolog.Logger

	// ioMu is the device gate: every request, login included, runs under it.
	ioMu sync.Mutex

	// recoveryMu is the exclusive recovery slot. Acquired with TryLock only;
	// losers back off and re-check instead of queuing a second login.
	recoveryMu sync.Mutex

	// mu guards the session bookkeeping below.
	mu         sync.RWMutex
	token      string
	epoch      uint64 // bumped on every completed recovery attempt
	poison     error  // non-nil after a rejected login, until the next success
	rebootedAt time.Time
}

// NewSessionGuard wraps client. retryDelay is the pause before the single
// retry of a transiently-unreachable request.
func NewSessionGuard(client *Client, retryDelay time.Duration) *SessionGuard {
	if retryDelay <= 0 {
		retryDelay = 2 * time.Second
	}
	return &SessionGuard{
		client:     client,
		retryDelay: retryDelay,
		logger:     logging.WithComponent("session"),
	}
}

// Do executes fn with a valid session token. op names the operation for
// error messages.
//
// Failure handling, in order:
//   - poisoned session → fail fast with the stored login error
//   - no token → establish one first (single-flight)
//   - fn unreachable → wait retryDelay, retry fn once
//   - fn auth-expired → run recovery (single-flight), replay fn once
//
// Each branch runs at most once per Do call, so the total number of device
// round trips is bounded.
func (g *SessionGuard) Do(ctx context.Context, op string, fn func(token string) error) error {
	token, epoch, poison := g.snapshot()
	if poison != nil {
		return fmt.Errorf("%s: %w", op, poison)
	}
	if token == "" {
		if err := g.recover(ctx, epoch); err != nil {
			return fmt.Errorf("%s: %w", op, err)
		}
		token, epoch, poison = g.snapshot()
		if poison != nil {
			return fmt.Errorf("%s: %w", op, poison)
		}
		if token == "" {
			return fmt.Errorf("%s: session not established: %w", op, ErrNotReachable)
		}
	}

	err := g.call(token, fn)
	if err == nil {
		return nil
	}

	if errors.Is(err, ErrNotReachable) {
		g.logger.Warn().Err(err).Str("op", op).Dur("retry_delay", g.retryDelay).
			Msg("Device not reachable, retrying once")
		if werr := sleepCtx(ctx, g.retryDelay); werr != nil {
			return fmt.Errorf("%s: %w", op, werr)
		}
		if err = g.call(token, fn); err == nil {
			return nil
		}
	}

	if errors.Is(err, ErrAuthExpired) {
		g.logger.Info().Str("op", op).Msg("Device session expired, recovering")
		if rerr := g.recover(ctx, epoch); rerr != nil {
			return fmt.Errorf("%s: session recovery failed: %w", op, rerr)
		}
		token, _, poison = g.snapshot()
		if poison != nil {
			return fmt.Errorf("%s: %w", op, poison)
		}
		if token == "" {
			return fmt.Errorf("%s: session not established: %w", op, ErrNotReachable)
		}
		return g.call(token, fn)
	}

	return err
}

// EnsureSession establishes a session if none exists. Unlike Do, it attempts
// a fresh login even when the guard is poisoned: this is the entry point a
// new poll cycle uses to probe whether the device accepts logins again.
func (g *SessionGuard) EnsureSession(ctx context.Context) error {
	token, epoch, _ := g.snapshot()
	if token != "" {
		return nil
	}
	if err := g.recover(ctx, epoch); err != nil {
		return err
	}
	token, _, poison := g.snapshot()
	if poison != nil {
		return poison
	}
	if token == "" {
		return fmt.Errorf("session not established: %w", ErrNotReachable)
	}
	return nil
}

// MarkReboot drops the session and transport state after a deliberate reboot
// command, so the next call re-authenticates from scratch instead of timing
// out on a dead connection.
func (g *SessionGuard) MarkReboot() {
	g.mu.Lock()
	g.token = ""
	g.epoch++
	g.poison = nil
	g.rebootedAt = time.Now()
	g.mu.Unlock()

	g.client.CloseIdleConnections()
	g.logger.Info().Msg("Session invalidated for device reboot")
}

// Authenticated reports whether the guard currently holds a session token.
func (g *SessionGuard) Authenticated() bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.token != ""
}

// Poisoned returns the stored login rejection, or nil.
func (g *SessionGuard) Poisoned() error {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.poison
}

// LastReboot returns when a reboot was last detected or commanded; zero if
// never.
func (g *SessionGuard) LastReboot() time.Time {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.rebootedAt
}

// Logout releases the device session, if any.
func (g *SessionGuard) Logout(ctx context.Context) error {
	g.mu.Lock()
	token := g.token
	g.token = ""
	g.epoch++
	g.mu.Unlock()

	if token == "" {
		return nil
	}
	g.ioMu.Lock()
	defer g.ioMu.Unlock()
	return g.client.Logout(ctx, token)
}

// call runs fn under the device gate.
func (g *SessionGuard) call(token string, fn func(token string) error) error {
	g.ioMu.Lock()
	defer g.ioMu.Unlock()
	return fn(token)
}

func (g *SessionGuard) snapshot() (token string, epoch uint64, poison error) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.token, g.epoch, g.poison
}

// recover brings the session to a post-failedEpoch state. Exactly one caller
// holds the recovery slot and performs the login; the rest back off until the
// epoch moves, then adopt the holder's outcome: nil when a session was
// established, the login error when it was rejected.
func (g *SessionGuard) recover(ctx context.Context, failedEpoch uint64) error {
	backoff := recoveryBackoffStart
	for {
		g.mu.RLock()
		epoch, poison := g.epoch, g.poison
		g.mu.RUnlock()
		if epoch != failedEpoch {
			// Someone completed a recovery attempt since our failure.
			return poison
		}

		if g.recoveryMu.TryLock() {
			g.mu.RLock()
			epoch = g.epoch
			g.mu.RUnlock()
			if epoch != failedEpoch {
				g.recoveryMu.Unlock()
				g.mu.RLock()
				poison = g.poison
				g.mu.RUnlock()
				return poison
			}
			err := g.establish(ctx)
			g.recoveryMu.Unlock()
			return err
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
		if backoff < recoveryBackoffCap {
			backoff *= 2
		}
	}
}

// establish performs one login attempt and records its outcome. Every
// completed attempt bumps the epoch so waiting callers can observe it.
func (g *SessionGuard) establish(ctx context.Context) error {
	g.ioMu.Lock()
	token, err := g.client.Login(ctx)
	g.ioMu.Unlock()

	g.mu.Lock()
	defer g.mu.Unlock()
	g.epoch++

	switch {
	case err == nil:
		g.token = token
		g.poison = nil
		metrics.LoginsTotal.WithLabelValues("success").Inc()
		metrics.SessionRecoveries.WithLabelValues("success").Inc()
		metrics.SessionPoisoned.Set(0)
		g.logger.Info().
			Str("session", logging.SanitizeToken(token)).
			Msg("Device session established")
		return nil

	case errors.Is(err, ErrNotReachable):
		// A device that answers nothing on its login endpoint is rebooting
		// (or gone). Drop transport state so the next attempt does not hang
		// on connections bound to an invalidated certificate.
		g.token = ""
		g.poison = nil
		g.rebootedAt = time.Now()
		g.client.CloseIdleConnections()
		metrics.LoginsTotal.WithLabelValues("unreachable").Inc()
		metrics.SessionRecoveries.WithLabelValues("unreachable").Inc()
		metrics.RebootsDetected.Inc()
		g.logger.Warn().Err(err).
			Msg("Login endpoint not reachable, treating as device reboot")
		return fmt.Errorf("session recovery: %w", err)

	case IsLoginFailure(err):
		g.token = ""
		g.poison = err
		metrics.LoginsTotal.WithLabelValues("failure").Inc()
		metrics.SessionRecoveries.WithLabelValues("failure").Inc()
		metrics.SessionPoisoned.Set(1)
		g.logger.Error().Err(err).
			Msg("Device rejected login, session poisoned until next successful recovery")
		return err

	default:
		g.token = ""
		g.poison = nil
		metrics.SessionRecoveries.WithLabelValues("error").Inc()
		return err
	}
}

// sleepCtx waits for d or until ctx is done.
func sleepCtx(ctx context.Context, d time.Duration) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(d):
		return nil
	}
}
