// Poly VideoOS Agent - Resilient Monitoring and Control for Poly Video Devices
// Copyright 2026 AVI-SPL, Inc.
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/AVISPL/dal-codecs-singlecodecs-polycom-videoos

package events

import (
	"testing"
	"time"

	natsgo "github.com/nats-io/nats.go"

	"github.com/AVISPL/dal-codecs-singlecodecs-polycom-videoos/internal/config"
	"github.com/AVISPL/dal-codecs-singlecodecs-polycom-videoos/internal/poller"
)

func testEventsConfig(t *testing.T, prefix string) config.EventsConfig {
	t.Helper()
	return config.EventsConfig{
		Enabled:     true,
		Embedded:    true,
		Host:        "127.0.0.1",
		Port:        -1, // pick a free port
		StoreDir:    t.TempDir(),
		TopicPrefix: prefix,
	}
}

func sampleCallRecord() poller.CallRecord {
	return poller.CallRecord{
		CallID:       "1:2:1700000001000:room-x50",
		ConferenceID: 1,
		ConnectionID: 2,
		Address:      "far-end@example.com",
		Protocol:     "sip",
	}
}

func nextMsg(t *testing.T, sub *natsgo.Subscription) *natsgo.Msg {
	t.Helper()
	msg, err := sub.NextMsg(5 * time.Second)
	if err != nil {
		t.Fatalf("waiting for event: %v", err)
	}
	return msg
}

func TestSinkPublishesLifecycleEvents(t *testing.T) {
	sink, err := NewSink(testEventsConfig(t, "agenttest"), "device-1")
	if err != nil {
		t.Fatalf("NewSink() error = %v", err)
	}
	defer sink.Close()

	nc, err := natsgo.Connect(sink.ClientURL())
	if err != nil {
		t.Fatalf("connect to embedded server: %v", err)
	}
	defer nc.Close()

	sub, err := nc.SubscribeSync("agenttest.>")
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	if err := nc.Flush(); err != nil {
		t.Fatalf("flush subscription: %v", err)
	}

	record := sampleCallRecord()

	sink.CallStarted(record)
	msg := nextMsg(t, sub)
	if msg.Subject != "agenttest.call.started" {
		t.Errorf("subject = %q, want agenttest.call.started", msg.Subject)
	}
	ev, err := Unmarshal(msg.Data)
	if err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}
	if ev.Type != TopicCallStarted {
		t.Errorf("Type = %q, want %q", ev.Type, TopicCallStarted)
	}
	if ev.ID == "" {
		t.Error("event ID is empty")
	}
	if ev.Host != "device-1" {
		t.Errorf("Host = %q, want device-1", ev.Host)
	}
	if ev.Call == nil || ev.Call.CallID != record.CallID {
		t.Errorf("Call = %+v, want record for %s", ev.Call, record.CallID)
	}
	if ev.At.IsZero() {
		t.Error("At is zero")
	}

	sink.GroupDegraded(poller.GroupHealth{Name: "audio", ConsecutiveFailures: 3, LastError: "boom"})
	msg = nextMsg(t, sub)
	if msg.Subject != "agenttest.group.degraded" {
		t.Errorf("subject = %q, want agenttest.group.degraded", msg.Subject)
	}
	ev, err = Unmarshal(msg.Data)
	if err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}
	if ev.Group == nil || ev.Group.Name != "audio" || ev.Group.ConsecutiveFailures != 3 {
		t.Errorf("Group = %+v, want degraded audio record", ev.Group)
	}
	if ev.Call != nil {
		t.Error("group event carries a call payload")
	}

	sink.DeviceRebooted("device-1")
	msg = nextMsg(t, sub)
	if msg.Subject != "agenttest.device.rebooted" {
		t.Errorf("subject = %q, want agenttest.device.rebooted", msg.Subject)
	}
	ev, err = Unmarshal(msg.Data)
	if err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}
	if ev.Host != "device-1" || ev.Call != nil || ev.Group != nil {
		t.Errorf("reboot event = %+v, want bare host envelope", ev)
	}

	sink.CallEnded(record)
	msg = nextMsg(t, sub)
	if msg.Subject != "agenttest.call.ended" {
		t.Errorf("subject = %q, want agenttest.call.ended", msg.Subject)
	}

	// Snapshots stay off the bus.
	sink.SnapshotUpdated(poller.View{InCall: true})
	if msg, err := sub.NextMsg(200 * time.Millisecond); err == nil {
		t.Errorf("unexpected message after snapshot update: %s", msg.Subject)
	}
}

func TestSinkCloseIsIdempotent(t *testing.T) {
	sink, err := NewSink(testEventsConfig(t, ""), "device-1")
	if err != nil {
		t.Fatalf("NewSink() error = %v", err)
	}

	if got := sink.Topic(TopicCallStarted); got != "videoos.call.started" {
		t.Errorf("Topic() with default prefix = %q, want videoos.call.started", got)
	}

	// Accepted before close, delivered by the drain.
	sink.CallStarted(sampleCallRecord())

	if err := sink.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if err := sink.Close(); err != nil {
		t.Errorf("second Close() error = %v", err)
	}

	// Signals after close are dropped without panicking.
	sink.CallEnded(sampleCallRecord())
	sink.DeviceRebooted("device-1")
}

func TestEventEnvelopeRoundTrip(t *testing.T) {
	record := sampleCallRecord()
	ev := &Event{
		ID:   "evt-1",
		Type: TopicCallStarted,
		Host: "device-1",
		At:   time.Date(2026, 3, 14, 10, 30, 0, 0, time.UTC),
		Call: &record,
	}

	data, err := Marshal(ev)
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}

	got, err := Unmarshal(data)
	if err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}
	if got.ID != ev.ID || got.Type != ev.Type || got.Host != ev.Host {
		t.Errorf("envelope = %+v, want %+v", got, ev)
	}
	if !got.At.Equal(ev.At) {
		t.Errorf("At = %v, want %v", got.At, ev.At)
	}
	if got.Call == nil || *got.Call != record {
		t.Errorf("Call = %+v, want %+v", got.Call, record)
	}
	if got.Group != nil {
		t.Errorf("Group = %+v, want nil", got.Group)
	}
}
