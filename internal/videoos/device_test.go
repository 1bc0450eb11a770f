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
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/goccy/go-json"
)

// newTestDevice wires a Device against a handler, with fast dial
// verification for tests. The handler must accept login posts; loginOK
// covers that for handlers that do not care.
func newTestDevice(t *testing.T, handler http.HandlerFunc) (*Device, *httptest.Server) {
	t.Helper()

	mux := http.NewServeMux()
	mux.HandleFunc("/rest/current/session", func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost {
			fmt.Fprint(w, `{"success": true, "sessionId": "tok-1"}`)
			return
		}
		w.WriteHeader(http.StatusOK)
	})
	mux.HandleFunc("/", handler)

	srv := httptest.NewTLSServer(mux)
	t.Cleanup(srv.Close)

	client := newTestClient(t, srv.URL)
	guard := NewSessionGuard(client, 10*time.Millisecond)
	device := NewDevice(client, guard, DeviceOptions{
		DialVerifyAttempts: 4,
		DialVerifyInterval: time.Millisecond,
		DefaultCallRate:    512,
	})
	return device, srv
}

func TestDialVerifiesConferenceAttachment(t *testing.T) {
	var detailCalls atomic.Int32
	device, _ := newTestDevice(t, func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodPost && r.URL.Path == "/rest/conferences":
			var req dialRequest
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
				t.Errorf("failed to decode dial body: %v", err)
			}
			if req.Address != "sip:far@example.com" {
				t.Errorf("dial address = %q", req.Address)
			}
			if req.Rate != 512 {
				t.Errorf("dial rate = %d, want default 512", req.Rate)
			}
			if req.DialType != "SIP" {
				t.Errorf("dial type = %q, want SIP", req.DialType)
			}
			fmt.Fprint(w, `[{"href": "/rest/conferences/3/connections/5"}]`)

		case r.URL.Path == "/rest/conferences/3/connections/5":
			// The device needs a beat to attach the connection to a
			// conference.
			if detailCalls.Add(1) < 2 {
				fmt.Fprint(w, `{"parentConfId": null, "address": "sip:far@example.com"}`)
				return
			}
			fmt.Fprint(w, `{"parentConfId": 3, "address": "sip:far@example.com"}`)

		case r.URL.Path == "/rest/conferences/3":
			fmt.Fprint(w, `{"id": 3, "startTime": 1700000000000, "connections": [{"id": 5, "callType": "SIP", "state": "CONNECTED"}]}`)

		default:
			t.Errorf("unexpected request: %s %s", r.Method, r.URL.Path)
			http.NotFound(w, r)
		}
	})

	conference, err := device.Dial(context.Background(), DialSpec{
		Address:  "sip:far@example.com",
		Protocol: "sip",
	})
	if err != nil {
		t.Fatalf("Dial() error = %v", err)
	}
	if conference.ID != 3 {
		t.Errorf("conference id = %d, want 3", conference.ID)
	}
	if conference.StartTime != 1700000000000 {
		t.Errorf("conference start = %d", conference.StartTime)
	}
	if got := detailCalls.Load(); got != 2 {
		t.Errorf("verification fetches = %d, want 2", got)
	}
}

func TestDialExhaustsWhenAddressNeverMatches(t *testing.T) {
	device, _ := newTestDevice(t, func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodPost && r.URL.Path == "/rest/conferences":
			fmt.Fprint(w, `[{"href": "/rest/conferences/3/connections/5"}]`)
		case r.URL.Path == "/rest/conferences/3/connections/5":
			fmt.Fprint(w, `{"parentConfId": 3, "address": "sip:someone-else@example.com"}`)
		default:
			http.NotFound(w, r)
		}
	})

	_, err := device.Dial(context.Background(), DialSpec{Address: "sip:far@example.com", Protocol: "H323"})
	if err == nil {
		t.Fatal("Dial() expected verification exhaustion error")
	}
}

func TestDialNoConnectionReference(t *testing.T) {
	device, _ := newTestDevice(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost && r.URL.Path == "/rest/conferences" {
			fmt.Fprint(w, `[]`)
			return
		}
		http.NotFound(w, r)
	})

	_, err := device.Dial(context.Background(), DialSpec{Address: "sip:far@example.com"})
	if err == nil {
		t.Fatal("Dial() expected error on empty connection reference list")
	}
}

func TestConferenceByIDGone(t *testing.T) {
	device, _ := newTestDevice(t, func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	})

	_, err := device.ConferenceByID(context.Background(), 9)
	if !errors.Is(err, ErrResourceGone) {
		t.Fatalf("expected ErrResourceGone, got %v", err)
	}
}

func TestConferenceMediaStatsGoneIsEmpty(t *testing.T) {
	device, _ := newTestDevice(t, func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	})

	stats, err := device.ConferenceMediaStats(context.Background(), 9)
	if err != nil {
		t.Fatalf("ConferenceMediaStats() error = %v, want empty result on 404", err)
	}
	if len(stats) != 0 {
		t.Errorf("stats = %v, want empty", stats)
	}
}

func TestHangupGoneIsSuccess(t *testing.T) {
	device, _ := newTestDevice(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodDelete {
			t.Errorf("unexpected method %s", r.Method)
		}
		http.NotFound(w, r)
	})

	if err := device.Hangup(context.Background(), 3); err != nil {
		t.Fatalf("Hangup() on a gone conference = %v, want nil", err)
	}
}

func TestHangupAll(t *testing.T) {
	var deletes atomic.Int32
	device, _ := newTestDevice(t, func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodGet && r.URL.Path == "/rest/conferences":
			fmt.Fprint(w, `[{"id": 1}, {"id": 2}]`)
		case r.Method == http.MethodDelete:
			deletes.Add(1)
			w.WriteHeader(http.StatusOK)
		default:
			http.NotFound(w, r)
		}
	})

	if err := device.HangupAll(context.Background()); err != nil {
		t.Fatalf("HangupAll() error = %v", err)
	}
	if got := deletes.Load(); got != 2 {
		t.Errorf("deletes = %d, want 2", got)
	}
}

func TestSetVideoMuteSurfacesDeviceReason(t *testing.T) {
	device, _ := newTestDevice(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"success": false, "reason": "camera in use by content"}`)
	})

	err := device.SetVideoMute(context.Background(), true)
	if err == nil || !strings.Contains(err.Error(), "camera in use by content") {
		t.Fatalf("SetVideoMute() error = %v, want device reason text", err)
	}
}

func TestConfigValues(t *testing.T) {
	device, _ := newTestDevice(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/rest/config" {
			t.Errorf("unexpected request: %s %s", r.Method, r.URL.Path)
		}
		var req configRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("failed to decode config body: %v", err)
		}
		if len(req.Names) != 3 {
			t.Errorf("requested names = %v", req.Names)
		}
		fmt.Fprint(w, `{"vars": [
			{"name": "comm.nics.sipnic.sipusername", "value": "room42@example.com"},
			{"name": "comm.nics.h323nic.h323name", "value": "room42"}
		]}`)
	})

	values, err := device.ConfigValues(context.Background(), []string{
		ConfigKeySIPUsername, ConfigKeyH323Name, ConfigKeyH323Extension,
	})
	if err != nil {
		t.Fatalf("ConfigValues() error = %v", err)
	}
	if values[ConfigKeySIPUsername] != "room42@example.com" {
		t.Errorf("sip username = %q", values[ConfigKeySIPUsername])
	}
	if _, ok := values[ConfigKeyH323Extension]; ok {
		t.Error("absent variable must stay absent from the map")
	}
}

func TestVolumeRoundTrip(t *testing.T) {
	var posted string
	device, _ := newTestDevice(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/rest/audio/volume" {
			http.NotFound(w, r)
			return
		}
		if r.Method == http.MethodPost {
			raw, _ := io.ReadAll(r.Body)
			posted = string(raw)
			w.WriteHeader(http.StatusOK)
			return
		}
		fmt.Fprint(w, `60`)
	})

	ctx := context.Background()
	volume, err := device.Volume(ctx)
	if err != nil {
		t.Fatalf("Volume() error = %v", err)
	}
	if volume != 60 {
		t.Errorf("Volume() = %d, want 60", volume)
	}

	if err := device.SetVolume(ctx, 150); err != nil {
		t.Fatalf("SetVolume() error = %v", err)
	}
	if posted != "100" {
		t.Errorf("posted volume = %q, want clamped 100", posted)
	}
}

func TestRebootInvalidatesSession(t *testing.T) {
	var rebootSeen atomic.Bool
	device, _ := newTestDevice(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost && r.URL.Path == "/rest/system/reboot" {
			var req rebootRequest
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Action != "reboot" {
				t.Errorf("reboot body = %+v, err = %v", req, err)
			}
			rebootSeen.Store(true)
			w.WriteHeader(http.StatusOK)
			return
		}
		http.NotFound(w, r)
	})

	if err := device.Reboot(context.Background()); err != nil {
		t.Fatalf("Reboot() error = %v", err)
	}
	if !rebootSeen.Load() {
		t.Error("reboot request never reached the device")
	}
	if device.Guard().Authenticated() {
		t.Error("reboot must invalidate the session")
	}
	if device.Guard().LastReboot().IsZero() {
		t.Error("reboot must record the reboot time")
	}
}

