// Poly VideoOS Agent - Resilient Monitoring and Control for Poly Video Devices
// Copyright 2026 AVI-SPL, Inc.
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/AVISPL/dal-codecs-singlecodecs-polycom-videoos

package poller

import (
	"reflect"
	"testing"
	"time"

	"github.com/AVISPL/dal-codecs-singlecodecs-polycom-videoos/internal/videoos"
)

func checkProperty(t *testing.T, s *Snapshot, key, want string) {
	t.Helper()
	got, ok := s.Property(key)
	if !ok {
		t.Errorf("property %q missing, want %q", key, want)
		return
	}
	if got != want {
		t.Errorf("property %q = %q, want %q", key, got, want)
	}
}

func checkAbsent(t *testing.T, s *Snapshot, key string) {
	t.Helper()
	if got, ok := s.Property(key); ok {
		t.Errorf("property %q = %q, want absent", key, got)
	}
}

func TestMergeGroupReplacesOwnKeySet(t *testing.T) {
	s := NewSnapshot()

	s.MergeGroup("microphones", map[string]string{
		"Microphones#Microphone1Muted": "false",
		"Microphones#Microphone2Muted": "true",
	})
	s.MergeGroup("audio", map[string]string{
		"Audio#MicrophonesConnected": "2",
	})

	// Microphone 2 was unplugged: the group no longer produces its keys.
	s.MergeGroup("microphones", map[string]string{
		"Microphones#Microphone1Muted": "true",
	})

	checkProperty(t, s, "Microphones#Microphone1Muted", "true")
	checkAbsent(t, s, "Microphones#Microphone2Muted")
	checkProperty(t, s, "Audio#MicrophonesConnected", "2")
	if s.Len() != 2 {
		t.Errorf("Len() = %d, want 2", s.Len())
	}
}

func TestMergeGroupEmptySetRetiresAllKeys(t *testing.T) {
	s := NewSnapshot()
	s.MergeGroup("conference", map[string]string{
		"ActiveConference#ConferenceId":     "1",
		"ActiveConference#Terminal1Address": "sip:far@example.com",
	})

	s.MergeGroup("conference", map[string]string{})

	checkAbsent(t, s, "ActiveConference#ConferenceId")
	checkAbsent(t, s, "ActiveConference#Terminal1Address")
	if s.Len() != 0 {
		t.Errorf("Len() = %d, want 0 after empty merge", s.Len())
	}
}

func TestMergeGroupFailureSemantics(t *testing.T) {
	// A failed fetch never calls MergeGroup; the previous values must
	// survive untouched for other groups' merges.
	s := NewSnapshot()
	s.MergeGroup("system-info", map[string]string{"System#Serial Number": "89123"})
	s.MergeGroup("audio", map[string]string{"Audio#MuteLocked": "false"})

	s.MergeGroup("audio", map[string]string{"Audio#MuteLocked": "true"})

	checkProperty(t, s, "System#Serial Number", "89123")
	checkProperty(t, s, "Audio#MuteLocked", "true")
}

func TestViewIsDeepCopy(t *testing.T) {
	s := NewSnapshot()
	s.MergeGroup("system-info", map[string]string{"System#Serial Number": "89123"})
	s.SetControls([]ControlDescriptor{{Name: ControlAudioVolume, Type: ControlSlider, Value: "40"}})
	stats := &videoos.CallMediaStats{}
	stats.Call.CallID = "1:2:3:room"
	s.SetCall(true, stats)

	view := s.View()
	view.Properties["System#Serial Number"] = "tampered"
	view.Controls[0].Value = "99"
	view.CallStats.Call.CallID = "tampered"

	checkProperty(t, s, "System#Serial Number", "89123")
	fresh := s.View()
	if fresh.Controls[0].Value != "40" {
		t.Errorf("control value = %q after caller mutation, want 40", fresh.Controls[0].Value)
	}
	if fresh.CallStats.Call.CallID != "1:2:3:room" {
		t.Errorf("call id = %q after caller mutation, want 1:2:3:room", fresh.CallStats.Call.CallID)
	}
}

func TestUpdateControlInPlace(t *testing.T) {
	s := NewSnapshot()
	s.SetControls([]ControlDescriptor{
		{Name: ControlAudioVolume, Type: ControlSlider, Value: "40", Min: 0, Max: 100},
		{Name: ControlMuteMicrophones, Type: ControlSwitch, Value: "false"},
	})

	if !s.UpdateControl(ControlAudioVolume, "80") {
		t.Fatal("UpdateControl(AudioVolume) = false, want true")
	}
	if s.UpdateControl("NoSuchControl", "1") {
		t.Error("UpdateControl(NoSuchControl) = true, want false")
	}

	view := s.View()
	if view.Controls[0].Value != "80" {
		t.Errorf("AudioVolume = %q, want 80", view.Controls[0].Value)
	}
	if view.Controls[1].Value != "false" {
		t.Errorf("MuteMicrophones = %q, want untouched false", view.Controls[1].Value)
	}
}

func TestRestoreDoesNotOverwriteLiveData(t *testing.T) {
	s := NewSnapshot()
	s.MergeGroup("system-info", map[string]string{"System#Serial Number": "LIVE"})

	s.Restore(View{
		Properties: map[string]string{
			"System#Serial Number": "JOURNALED",
			"System#System Name":   "Boardroom X50",
		},
		Controls:    []ControlDescriptor{{Name: ControlAudioVolume, Type: ControlSlider, Value: "40"}},
		CollectedAt: time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC),
	})

	checkProperty(t, s, "System#Serial Number", "LIVE")
	checkProperty(t, s, "System#System Name", "Boardroom X50")
	if got := s.View().Controls; len(got) != 1 || got[0].Value != "40" {
		t.Errorf("controls after restore = %+v, want the journaled descriptor", got)
	}

	// A later restore must not clobber the already-populated control list.
	s.Restore(View{Controls: []ControlDescriptor{{Name: ControlReboot, Type: ControlButton}}})
	if got := s.View().Controls; len(got) != 1 || got[0].Name != ControlAudioVolume {
		t.Errorf("controls after second restore = %+v, want original list kept", got)
	}
}

func TestSortedKeys(t *testing.T) {
	s := NewSnapshot()
	s.MergeGroup("g", map[string]string{"b": "2", "a": "1", "c": "3"})

	if got, want := s.SortedKeys(), []string{"a", "b", "c"}; !reflect.DeepEqual(got, want) {
		t.Errorf("SortedKeys() = %v, want %v", got, want)
	}
}

func TestSetCallTogglesInCall(t *testing.T) {
	s := NewSnapshot()
	if s.InCall() {
		t.Fatal("InCall() = true on empty snapshot")
	}
	s.SetCall(true, &videoos.CallMediaStats{})
	if !s.InCall() {
		t.Error("InCall() = false after SetCall(true)")
	}
	s.SetCall(false, nil)
	if s.InCall() {
		t.Error("InCall() = true after SetCall(false)")
	}
	if s.View().CallStats != nil {
		t.Error("CallStats non-nil after call cleared")
	}
}
