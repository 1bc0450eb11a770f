// Poly VideoOS Agent - Resilient Monitoring and Control for Poly Video Devices
// Copyright 2026 AVI-SPL, Inc.
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/AVISPL/dal-codecs-singlecodecs-polycom-videoos

/*
governor.go - Cooldown Governor

Decides per poll invocation whether to run fresh fetches or serve the cached
snapshot. Control writes arrive in bursts from operator consoles; triggering a
full device round-trip after each one would serialize behind the device's
single session and stall the console. The governor also holds polls back for
a grace period after a reboot, while the device's web stack is still coming
up.
*/

package poller

import (
	"sync"
	"time"
)

// Skip reasons reported by ShouldServeCached.
const (
	SkipControlCooldown = "control-cooldown"
	SkipPollInterval    = "poll-interval"
	SkipRebootGrace     = "reboot-grace"
)

// Governor tracks the control-write and full-poll timestamps and applies the
// cooldown windows.
type Governor struct {
	controlCooldown time.Duration
	pollInterval    time.Duration
	rebootGrace     time.Duration
	now             func() time.Time

	mu               sync.Mutex
	lastControlWrite time.Time
	lastFullPoll     time.Time
}

// NewGovernor builds a governor with the given windows. A zero window
// disables that check.
func NewGovernor(controlCooldown, pollInterval, rebootGrace time.Duration) *Governor {
	return &Governor{
		controlCooldown: controlCooldown,
		pollInterval:    pollInterval,
		rebootGrace:     rebootGrace,
		now:             time.Now,
	}
}

// NoteControlWrite records a successful control write.
func (g *Governor) NoteControlWrite() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.lastControlWrite = g.now()
}

// NoteFullPoll records a completed fresh poll cycle.
func (g *Governor) NoteFullPoll() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.lastFullPoll = g.now()
}

// ShouldServeCached reports whether this poll invocation must serve the
// cached snapshot, and why. lastReboot is the guard's most recent reboot
// signal; zero means none.
func (g *Governor) ShouldServeCached(lastReboot time.Time) (bool, string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	now := g.now()

	if g.rebootGrace > 0 && !lastReboot.IsZero() && now.Sub(lastReboot) < g.rebootGrace {
		return true, SkipRebootGrace
	}
	if g.controlCooldown > 0 && !g.lastControlWrite.IsZero() && now.Sub(g.lastControlWrite) < g.controlCooldown {
		return true, SkipControlCooldown
	}
	if g.pollInterval > 0 && !g.lastFullPoll.IsZero() && now.Sub(g.lastFullPoll) < g.pollInterval {
		return true, SkipPollInterval
	}
	return false, ""
}

// LastFullPoll returns when the last fresh cycle completed; zero if never.
func (g *Governor) LastFullPoll() time.Time {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.lastFullPoll
}
