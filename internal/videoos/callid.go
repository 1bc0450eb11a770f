// Poly VideoOS Agent - Resilient Monitoring and Control for Poly Video Devices
// Copyright 2026 AVI-SPL, Inc.
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/AVISPL/dal-codecs-singlecodecs-polycom-videoos

/*
callid.go - Call Correlation Codec

The device addresses calls by small integer (conference, connection) pairs
that reset and get reused across calls. The opaque call id minted here folds
in the conference start timestamp and the local dial address so two distinct
calls never share an id, while the leading integer pair still resolves back
to the live device resources.

Wire format: "<conferenceId>:<connectionId>:<startTimestampMillis>:<dialString>".
Dial strings containing colons keep the format parseable because resolution
only ever reads the leading two integers.
*/

package videoos

import (
	"fmt"
	"regexp"
	"strconv"
)

// callIDPattern matches the leading "<conferenceId>:<connectionId>:" pair of
// a minted call id.
var callIDPattern = regexp.MustCompile(`^(\d+):(\d+):`)

// BuildCallID mints the opaque call identifier. Unknown numeric fields
// render as 0 and an unknown dial string renders empty, so minting is total:
// it never fails, it degrades.
//
// Minting is deterministic: the same inputs always reproduce the identical
// string, which is what lets a later poll re-derive the id of an already
// reported call instead of inventing a second identity for it.
func BuildCallID(conferenceID, connectionID int, startTimestamp int64, dialString string) string {
	if conferenceID < 0 {
		conferenceID = 0
	}
	if connectionID < 0 {
		connectionID = 0
	}
	if startTimestamp < 0 {
		startTimestamp = 0
	}
	return fmt.Sprintf("%d:%d:%d:%s", conferenceID, connectionID, startTimestamp, dialString)
}

// ParseCallID extracts the device-local conference and connection ids from a
// minted call id. ok is false when the id does not carry the leading
// integer pair.
func ParseCallID(callID string) (conferenceID, connectionID int, ok bool) {
	match := callIDPattern.FindStringSubmatch(callID)
	if match == nil {
		return 0, 0, false
	}
	conferenceID, err := strconv.Atoi(match[1])
	if err != nil {
		return 0, 0, false
	}
	connectionID, err = strconv.Atoi(match[2])
	if err != nil {
		return 0, 0, false
	}
	return conferenceID, connectionID, true
}

// ResolveConnection finds the conference leg a call id refers to. Connection
// ids can be reassigned between calls, so a stale id falls back to the first
// available leg; the returned error is ErrUnknownConnection in that case and
// the caller decides whether the degradation matters. A conference with no
// legs at all returns nil and the same error.
func ResolveConnection(conference *Conference, connectionID int) (*Connection, error) {
	if conference == nil {
		return nil, fmt.Errorf("no conference: %w", ErrUnknownConnection)
	}
	if conn := conference.ConnectionByID(connectionID); conn != nil {
		return conn, nil
	}
	fallback := conference.FirstConnection()
	if fallback == nil {
		return nil, fmt.Errorf("conference %d has no connections: %w", conference.ID, ErrUnknownConnection)
	}
	return fallback, fmt.Errorf("connection %d reassigned, using connection %d: %w",
		connectionID, fallback.ID, ErrUnknownConnection)
}

// ResolveDialString picks the device's dialable identity for call-id
// minting: SIP username first, then H.323 name, then H.323 extension, with
// the system display name as the last resort. The identity values come from
// the device configuration (ConfigKeySIPUsername and friends).
func ResolveDialString(configValues map[string]string, systemName string) string {
	for _, key := range []string{ConfigKeySIPUsername, ConfigKeyH323Name, ConfigKeyH323Extension} {
		if v := configValues[key]; v != "" {
			return v
		}
	}
	return systemName
}
