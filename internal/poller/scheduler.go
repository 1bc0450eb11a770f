// Poly VideoOS Agent - Resilient Monitoring and Control for Poly Video Devices
// Copyright 2026 AVI-SPL, Inc.
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/AVISPL/dal-codecs-singlecodecs-polycom-videoos

/*
scheduler.go - Resource Group Scheduler

Dispatches per-group fetch tasks with two guarantees: at most one in-flight
fetch per group (a slow group never stacks duplicate requests behind the
device's single session), and at most Workers tasks running at once. A
group's failure is terminal at the scheduler: it is logged, counted, and
recorded in the group's health entry, never propagated to the poll cycle.
*/

package poller

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/AVISPL/dal-codecs-singlecodecs-polycom-videoos/internal/logging"
	"github.com/AVISPL/dal-codecs-singlecodecs-polycom-videoos/internal/metrics"
)

// ErrGroupFetch marks a failed or panicked group fetch. The cause is wrapped
// alongside it.
var ErrGroupFetch = errors.New("group fetch failed")

// FetchFunc is one group's fetch-and-merge task.
type FetchFunc func(ctx context.Context) error

// GroupHealth is the per-group fetch record surfaced by the control plane.
type GroupHealth struct {
	Name                string    `json:"name"`
	Healthy             bool      `json:"healthy"`
	ConsecutiveFailures int       `json:"consecutiveFailures"`
	LastError           string    `json:"lastError,omitempty"`
	LastSuccess         time.Time `json:"lastSuccess"`
	LastAttempt         time.Time `json:"lastAttempt"`
}

// Scheduler runs group fetches on a bounded pool with per-group
// single-flight dispatch. All methods are safe for concurrent use.
type Scheduler struct {
	timeout  time.Duration
	disabled map[string]struct{}
	slots    chan struct{}
	logger   zerolog.Logger

	onDegraded func(GroupHealth)

	mu     sync.Mutex
	live   map[string]chan struct{}
	health map[string]*GroupHealth
	now    func() time.Time
}

// NewScheduler builds a scheduler with the given pool size and per-fetch
// timeout. Groups named in disabledGroups are never dispatched.
func NewScheduler(workers int, timeout time.Duration, disabledGroups []string) *Scheduler {
	if workers <= 0 {
		workers = 15
	}
	disabled := make(map[string]struct{}, len(disabledGroups))
	for _, name := range disabledGroups {
		disabled[name] = struct{}{}
	}
	return &Scheduler{
		timeout:  timeout,
		disabled: disabled,
		slots:    make(chan struct{}, workers),
		logger:   logging.WithComponent("scheduler"),
		live:     make(map[string]chan struct{}),
		health:   make(map[string]*GroupHealth),
		now:      time.Now,
	}
}

// OnDegraded registers a hook fired when a group transitions from healthy to
// degraded. Repeated failures of an already-degraded group do not re-fire it.
func (s *Scheduler) OnDegraded(fn func(GroupHealth)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onDegraded = fn
}

// Schedule dispatches fetch for the named group. done is closed when the
// task finishes (on this call or a previous one); started reports whether
// this call created the task. A disabled group returns (nil, false). A group
// with a live task returns that task's done channel and false: the caller
// skipped dispatch, and per the wait-for-own-work policy should not wait on
// work it did not start.
func (s *Scheduler) Schedule(ctx context.Context, group string, fetch FetchFunc) (done <-chan struct{}, started bool) {
	if _, off := s.disabled[group]; off {
		return nil, false
	}

	s.mu.Lock()
	if running, ok := s.live[group]; ok {
		s.mu.Unlock()
		s.logger.Debug().Str("group", group).Msg("Previous fetch still running, skipping dispatch")
		return running, false
	}
	ch := make(chan struct{})
	s.live[group] = ch
	s.mu.Unlock()

	go s.run(ctx, group, fetch, ch)
	return ch, true
}

// Disabled reports whether the group is configured off.
func (s *Scheduler) Disabled(group string) bool {
	_, off := s.disabled[group]
	return off
}

// Health returns a copy of every known group's health record, sorted by
// group name.
func (s *Scheduler) Health() []GroupHealth {
	s.mu.Lock()
	records := make([]GroupHealth, 0, len(s.health))
	for _, h := range s.health {
		records = append(records, *h)
	}
	s.mu.Unlock()

	sort.Slice(records, func(i, j int) bool { return records[i].Name < records[j].Name })
	return records
}

func (s *Scheduler) run(ctx context.Context, group string, fetch FetchFunc, done chan struct{}) {
	defer func() {
		s.mu.Lock()
		delete(s.live, group)
		s.mu.Unlock()
		close(done)
	}()

	// Slot wait counts as part of the task's lifetime: the group stays
	// single-flight while queued for a worker.
	select {
	case s.slots <- struct{}{}:
		defer func() { <-s.slots }()
	case <-ctx.Done():
		s.record(group, fmt.Errorf("%w: %w", ErrGroupFetch, ctx.Err()), 0)
		return
	}

	fctx := ctx
	if s.timeout > 0 {
		var cancel context.CancelFunc
		fctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	start := s.now()
	err := runFetch(fctx, fetch)
	s.record(group, err, s.now().Sub(start))
}

// runFetch invokes fetch, converting a panic into an error so one bad group
// cannot take down the whole agent.
func runFetch(ctx context.Context, fetch FetchFunc) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: panic: %v", ErrGroupFetch, r)
		}
	}()
	if ferr := fetch(ctx); ferr != nil {
		return fmt.Errorf("%w: %w", ErrGroupFetch, ferr)
	}
	return nil
}

func (s *Scheduler) record(group string, err error, elapsed time.Duration) {
	s.mu.Lock()
	h, ok := s.health[group]
	if !ok {
		h = &GroupHealth{Name: group, Healthy: true}
		s.health[group] = h
	}
	wasHealthy := h.Healthy
	h.LastAttempt = s.now()
	if err != nil {
		h.Healthy = false
		h.ConsecutiveFailures++
		h.LastError = err.Error()
	} else {
		h.Healthy = true
		h.ConsecutiveFailures = 0
		h.LastError = ""
		h.LastSuccess = h.LastAttempt
	}
	record := *h
	hook := s.onDegraded
	s.mu.Unlock()

	if err == nil {
		metrics.RecordGroupFetch(group, "success", elapsed)
		return
	}
	metrics.RecordGroupFetch(group, "failure", elapsed)
	s.logger.Warn().Err(err).
		Str("group", group).
		Int("consecutive_failures", record.ConsecutiveFailures).
		Msg("Resource group fetch failed")
	if wasHealthy && hook != nil {
		hook(record)
	}
}
