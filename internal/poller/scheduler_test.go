// Poly VideoOS Agent - Resilient Monitoring and Control for Poly Video Devices
// Copyright 2026 AVI-SPL, Inc.
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/AVISPL/dal-codecs-singlecodecs-polycom-videoos

package poller

import (
	"context"
	"errors"
	"strings"
	"sync/atomic"
	"testing"
	"time"
)

func waitClosed(t *testing.T, ch <-chan struct{}) {
	t.Helper()
	select {
	case <-ch:
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for task completion")
	}
}

func groupRecord(t *testing.T, s *Scheduler, name string) GroupHealth {
	t.Helper()
	for _, h := range s.Health() {
		if h.Name == name {
			return h
		}
	}
	t.Fatalf("no health record for group %q", name)
	return GroupHealth{}
}

func TestScheduleRunsFetch(t *testing.T) {
	s := NewScheduler(2, 0, nil)

	var calls atomic.Int32
	done, started := s.Schedule(context.Background(), "audio", func(context.Context) error {
		calls.Add(1)
		return nil
	})
	if !started {
		t.Fatal("Schedule() started = false, want true")
	}
	waitClosed(t, done)

	if got := calls.Load(); got != 1 {
		t.Errorf("fetch ran %d times, want 1", got)
	}
	h := groupRecord(t, s, "audio")
	if !h.Healthy || h.ConsecutiveFailures != 0 || h.LastError != "" {
		t.Errorf("health after success = %+v, want healthy", h)
	}
	if h.LastSuccess.IsZero() {
		t.Error("LastSuccess not recorded")
	}
}

func TestScheduleSingleFlightPerGroup(t *testing.T) {
	s := NewScheduler(4, 0, nil)

	gate := make(chan struct{})
	entered := make(chan struct{})
	var calls atomic.Int32
	blocking := func(context.Context) error {
		calls.Add(1)
		close(entered)
		<-gate
		return nil
	}

	first, started := s.Schedule(context.Background(), "sessions", blocking)
	if !started {
		t.Fatal("first Schedule() started = false, want true")
	}
	waitClosed(t, entered)

	second, started := s.Schedule(context.Background(), "sessions", blocking)
	if started {
		t.Error("second Schedule() started = true while first still running")
	}
	if second != first {
		t.Error("second Schedule() returned a different done channel")
	}

	close(gate)
	waitClosed(t, first)
	if got := calls.Load(); got != 1 {
		t.Errorf("fetch ran %d times, want 1", got)
	}

	// The group frees up once its task completes.
	third, started := s.Schedule(context.Background(), "sessions", func(context.Context) error { return nil })
	if !started {
		t.Error("Schedule() after completion started = false, want true")
	}
	waitClosed(t, third)
}

func TestScheduleDisabledGroup(t *testing.T) {
	s := NewScheduler(2, 0, []string{GroupModes})

	if !s.Disabled(GroupModes) {
		t.Errorf("Disabled(%q) = false, want true", GroupModes)
	}
	if s.Disabled(GroupAudio) {
		t.Errorf("Disabled(%q) = true, want false", GroupAudio)
	}

	var calls atomic.Int32
	done, started := s.Schedule(context.Background(), GroupModes, func(context.Context) error {
		calls.Add(1)
		return nil
	})
	if started || done != nil {
		t.Errorf("Schedule(disabled) = (%v, %v), want (nil, false)", done, started)
	}
	if got := calls.Load(); got != 0 {
		t.Errorf("fetch ran %d times for disabled group, want 0", got)
	}
}

func TestSchedulerBoundsConcurrency(t *testing.T) {
	s := NewScheduler(1, 0, nil)

	gate := make(chan struct{})
	entered := make(chan string, 2)

	doneA, _ := s.Schedule(context.Background(), "system-status", func(context.Context) error {
		entered <- "a"
		<-gate
		return nil
	})
	select {
	case name := <-entered:
		if name != "a" {
			t.Fatalf("first entered = %q, want a", name)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("first task never started")
	}

	doneB, started := s.Schedule(context.Background(), "system-info", func(context.Context) error {
		entered <- "b"
		return nil
	})
	if !started {
		t.Fatal("second Schedule() started = false, want true")
	}

	// With one worker slot the second task must queue behind the first.
	select {
	case <-entered:
		t.Fatal("second task entered while the only slot was held")
	case <-time.After(100 * time.Millisecond):
	}

	close(gate)
	waitClosed(t, doneA)
	waitClosed(t, doneB)
	if name := <-entered; name != "b" {
		t.Errorf("queued task = %q, want b", name)
	}
}

func TestSchedulerCancelWhileQueued(t *testing.T) {
	s := NewScheduler(1, 0, nil)

	gate := make(chan struct{})
	entered := make(chan struct{})
	doneA, _ := s.Schedule(context.Background(), "peripherals", func(context.Context) error {
		close(entered)
		<-gate
		return nil
	})
	waitClosed(t, entered)

	ctx, cancel := context.WithCancel(context.Background())
	var calls atomic.Int32
	doneB, started := s.Schedule(ctx, "conference", func(context.Context) error {
		calls.Add(1)
		return nil
	})
	if !started {
		t.Fatal("queued Schedule() started = false, want true")
	}

	cancel()
	waitClosed(t, doneB)

	if got := calls.Load(); got != 0 {
		t.Errorf("cancelled task ran its fetch %d times, want 0", got)
	}
	h := groupRecord(t, s, "conference")
	if h.Healthy {
		t.Error("cancelled task left group healthy, want failure recorded")
	}
	if !strings.Contains(h.LastError, context.Canceled.Error()) {
		t.Errorf("LastError = %q, want it to mention %q", h.LastError, context.Canceled.Error())
	}

	close(gate)
	waitClosed(t, doneA)
}

func TestSchedulerHealthTransitions(t *testing.T) {
	s := NewScheduler(2, 0, nil)

	var degraded atomic.Int32
	s.OnDegraded(func(h GroupHealth) {
		if h.Name != "registration" {
			t.Errorf("degraded hook for group %q, want registration", h.Name)
		}
		degraded.Add(1)
	})

	fail := func(context.Context) error { return errors.New("boom") }
	ok := func(context.Context) error { return nil }

	run := func(fetch FetchFunc) {
		done, started := s.Schedule(context.Background(), "registration", fetch)
		if !started {
			t.Fatal("Schedule() started = false, want true")
		}
		waitClosed(t, done)
	}

	run(fail)
	h := groupRecord(t, s, "registration")
	if h.Healthy || h.ConsecutiveFailures != 1 {
		t.Errorf("after one failure: %+v, want degraded with 1 failure", h)
	}
	if !strings.Contains(h.LastError, "group fetch failed") || !strings.Contains(h.LastError, "boom") {
		t.Errorf("LastError = %q, want the wrap and the cause", h.LastError)
	}
	if got := degraded.Load(); got != 1 {
		t.Errorf("degraded hook fired %d times, want 1", got)
	}

	// Still degraded: no second notification.
	run(fail)
	if h := groupRecord(t, s, "registration"); h.ConsecutiveFailures != 2 {
		t.Errorf("ConsecutiveFailures = %d, want 2", h.ConsecutiveFailures)
	}
	if got := degraded.Load(); got != 1 {
		t.Errorf("degraded hook fired %d times after repeat failure, want 1", got)
	}

	run(ok)
	h = groupRecord(t, s, "registration")
	if !h.Healthy || h.ConsecutiveFailures != 0 || h.LastError != "" {
		t.Errorf("after recovery: %+v, want healthy", h)
	}

	// A fresh degradation is a new transition.
	run(fail)
	if got := degraded.Load(); got != 2 {
		t.Errorf("degraded hook fired %d times after second transition, want 2", got)
	}
}

func TestSchedulerRecoversPanics(t *testing.T) {
	s := NewScheduler(2, 0, nil)

	done, started := s.Schedule(context.Background(), "collaboration", func(context.Context) error {
		panic("bad payload")
	})
	if !started {
		t.Fatal("Schedule() started = false, want true")
	}
	waitClosed(t, done)

	h := groupRecord(t, s, "collaboration")
	if h.Healthy {
		t.Error("panicked group still healthy, want degraded")
	}
	if !strings.Contains(h.LastError, "panic") || !strings.Contains(h.LastError, "bad payload") {
		t.Errorf("LastError = %q, want panic details", h.LastError)
	}

	// The group can be dispatched again after the panic.
	done, started = s.Schedule(context.Background(), "collaboration", func(context.Context) error { return nil })
	if !started {
		t.Fatal("Schedule() after panic started = false, want true")
	}
	waitClosed(t, done)
	if h := groupRecord(t, s, "collaboration"); !h.Healthy {
		t.Error("group did not recover after panic")
	}
}

func TestSchedulerHealthSorted(t *testing.T) {
	s := NewScheduler(2, 0, nil)
	for _, name := range []string{"modes", "audio", "capabilities"} {
		done, _ := s.Schedule(context.Background(), name, func(context.Context) error { return nil })
		waitClosed(t, done)
	}

	records := s.Health()
	want := []string{"audio", "capabilities", "modes"}
	if len(records) != len(want) {
		t.Fatalf("Health() returned %d records, want %d", len(records), len(want))
	}
	for i, h := range records {
		if h.Name != want[i] {
			t.Errorf("Health()[%d] = %q, want %q", i, h.Name, want[i])
		}
	}
}
