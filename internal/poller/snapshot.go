// Poly VideoOS Agent - Resilient Monitoring and Control for Poly Video Devices
// Copyright 2026 AVI-SPL, Inc.
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/AVISPL/dal-codecs-singlecodecs-polycom-videoos

/*
snapshot.go - Shared Monitoring Snapshot

One snapshot per device. Group fetches merge partial results in as they land;
a group that fails leaves its previous keys untouched, so the snapshot
degrades by staleness rather than by data loss. Merging is key-set based:
each group owns the exact keys it wrote last, which both removes keys the
device legitimately dropped (an unplugged microphone) and guarantees
concurrent merges cannot disturb another group's keys.
*/

package poller

import (
	"sort"
	"sync"
	"time"

	"github.com/AVISPL/dal-codecs-singlecodecs-polycom-videoos/internal/videoos"
)

// ControlType classifies a control descriptor for consumers rendering it.
type ControlType string

const (
	ControlSwitch ControlType = "switch"
	ControlSlider ControlType = "slider"
	ControlButton ControlType = "button"
)

// ControlDescriptor is one writable device property with its current value.
// The list is updated in place on successful writes, so a snapshot served
// from cache still reflects the write.
type ControlDescriptor struct {
	Name         string        `json:"name"`
	Type         ControlType   `json:"type"`
	Value        string        `json:"value"`
	Min          float64       `json:"min,omitempty"`
	Max          float64       `json:"max,omitempty"`
	LabelPressed string        `json:"labelPressed,omitempty"`
	GracePeriod  time.Duration `json:"gracePeriod,omitempty"`
}

// View is an immutable copy of the snapshot handed to callers: the API layer,
// the journal, and event payloads.
type View struct {
	Properties  map[string]string       `json:"properties"`
	Controls    []ControlDescriptor     `json:"controls"`
	InCall      bool                    `json:"inCall"`
	CallStats   *videoos.CallMediaStats `json:"callStats,omitempty"`
	CollectedAt time.Time               `json:"collectedAt"`
}

// Snapshot is the mutable, shared property map plus control list and call
// view. All access goes through its lock.
type Snapshot struct {
	mu         sync.RWMutex
	properties map[string]string
	owned      map[string][]string // group -> keys it wrote last merge
	controls   []ControlDescriptor
	inCall     bool
	callStats  *videoos.CallMediaStats
	updatedAt  time.Time
}

// NewSnapshot returns an empty snapshot.
func NewSnapshot() *Snapshot {
	return &Snapshot{
		properties: make(map[string]string),
		owned:      make(map[string][]string),
	}
}

// MergeGroup replaces the given group's keys with values: keys the group
// wrote previously but did not produce this time are removed, everything
// else in the snapshot is untouched. Never call it for a failed fetch;
// failure must leave the previous values visible.
func (s *Snapshot) MergeGroup(group string, values map[string]string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, key := range s.owned[group] {
		if _, still := values[key]; !still {
			delete(s.properties, key)
		}
	}

	keys := make([]string, 0, len(values))
	for key, value := range values {
		s.properties[key] = value
		keys = append(keys, key)
	}
	s.owned[group] = keys
	s.updatedAt = time.Now()
}

// SetControls replaces the control descriptor list.
func (s *Snapshot) SetControls(controls []ControlDescriptor) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.controls = controls
	s.updatedAt = time.Now()
}

// UpdateControl rewrites one control's value in place after a successful
// write. Readers observe either the pre- or post-write value, never a
// partial state. Returns false when no descriptor carries that name.
func (s *Snapshot) UpdateControl(name, value string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.controls {
		if s.controls[i].Name == name {
			s.controls[i].Value = value
			s.updatedAt = time.Now()
			return true
		}
	}
	return false
}

// SetCall updates the call-level view for this cycle.
func (s *Snapshot) SetCall(inCall bool, stats *videoos.CallMediaStats) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.inCall = inCall
	s.callStats = stats
	s.updatedAt = time.Now()
}

// InCall reports whether the last completed call-view refresh saw an active
// call.
func (s *Snapshot) InCall() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.inCall
}

// Len returns the number of property keys.
func (s *Snapshot) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.properties)
}

// Property returns one property value.
func (s *Snapshot) Property(key string) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	value, ok := s.properties[key]
	return value, ok
}

// View copies the snapshot out. The copy is deep for the maps and slices the
// caller can reach; CallMediaStats is copied by value.
func (s *Snapshot) View() View {
	s.mu.RLock()
	defer s.mu.RUnlock()

	properties := make(map[string]string, len(s.properties))
	for key, value := range s.properties {
		properties[key] = value
	}
	controls := make([]ControlDescriptor, len(s.controls))
	copy(controls, s.controls)

	var stats *videoos.CallMediaStats
	if s.callStats != nil {
		statsCopy := *s.callStats
		stats = &statsCopy
	}

	return View{
		Properties:  properties,
		Controls:    controls,
		InCall:      s.inCall,
		CallStats:   stats,
		CollectedAt: s.updatedAt,
	}
}

// Restore pre-populates the snapshot from a journaled view, so consumers see
// the last known state before the first device contact completes. Restored
// keys are not owned by any group: the first real merge of each group
// replaces its keys and the rest age out as groups report in.
func (s *Snapshot) Restore(view View) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for key, value := range view.Properties {
		if _, exists := s.properties[key]; !exists {
			s.properties[key] = value
		}
	}
	if len(s.controls) == 0 {
		s.controls = make([]ControlDescriptor, len(view.Controls))
		copy(s.controls, view.Controls)
	}
	if view.CollectedAt.After(s.updatedAt) {
		s.updatedAt = view.CollectedAt
	}
}

// SortedKeys returns the property names in order, for deterministic logs and
// tests.
func (s *Snapshot) SortedKeys() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	keys := make([]string, 0, len(s.properties))
	for key := range s.properties {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}
