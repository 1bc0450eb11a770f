// Poly VideoOS Agent - Resilient Monitoring and Control for Poly Video Devices
// Copyright 2026 AVI-SPL, Inc.
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/AVISPL/dal-codecs-singlecodecs-polycom-videoos

// Package events publishes poller lifecycle signals to NATS JetStream through
// Watermill. The bus is optional: standalone deployments run the embedded
// NATS server, fleet deployments point at an external one, and disabled
// deployments never construct a Sink at all.
package events

import (
	"fmt"
	"time"

	"github.com/goccy/go-json"

	"github.com/AVISPL/dal-codecs-singlecodecs-polycom-videoos/internal/poller"
)

// Topic suffixes, appended to the configured topic prefix.
const (
	TopicCallStarted    = "call.started"
	TopicCallEnded      = "call.ended"
	TopicGroupDegraded  = "group.degraded"
	TopicDeviceRebooted = "device.rebooted"
)

// DefaultTopicPrefix namespaces agent subjects when none is configured.
const DefaultTopicPrefix = "videoos"

// Event is the envelope published for every agent signal. Type carries the
// topic suffix, so consumers subscribed to a wildcard can route without
// parsing the subject. Exactly one payload field is set per type.
type Event struct {
	ID   string    `json:"id"`
	Type string    `json:"type"`
	Host string    `json:"host"`
	At   time.Time `json:"at"`

	Call  *poller.CallRecord  `json:"call,omitempty"`
	Group *poller.GroupHealth `json:"group,omitempty"`
}

// Marshal serializes an event for publishing.
func Marshal(ev *Event) ([]byte, error) {
	data, err := json.Marshal(ev)
	if err != nil {
		return nil, fmt.Errorf("marshal event: %w", err)
	}
	return data, nil
}

// Unmarshal decodes a published event.
func Unmarshal(data []byte) (*Event, error) {
	var ev Event
	if err := json.Unmarshal(data, &ev); err != nil {
		return nil, fmt.Errorf("unmarshal event: %w", err)
	}
	return &ev, nil
}
