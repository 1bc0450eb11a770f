// Poly VideoOS Agent - Resilient Monitoring and Control for Poly Video Devices
// Copyright 2026 AVI-SPL, Inc.
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/AVISPL/dal-codecs-singlecodecs-polycom-videoos

/*
device.go - Typed Device Operations

High-level VideoOS operations built on the session guard: every call here
runs with a valid session token, serialized against the device, with
transparent retry and session recovery. This is the surface the poller and
the control plane consume.
*/

package videoos

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/AVISPL/dal-codecs-singlecodecs-polycom-videoos/internal/logging"
)

// DeviceOptions tune call placement behavior.
type DeviceOptions struct {
	// DialVerifyAttempts bounds how many times a freshly dialed connection is
	// polled until the device attaches it to a conference.
	DialVerifyAttempts int
	// DialVerifyInterval is the pause between verification attempts.
	DialVerifyInterval time.Duration
	// DefaultCallRate is the requested bandwidth in kbps when a dial request
	// does not specify one.
	DefaultCallRate int
}

// Device exposes typed VideoOS operations through the session guard.
type Device struct {
	client *Client
	guard  *SessionGuard
	opts   DeviceOptions
	logger zerolog.Logger
}

// NewDevice wires a client and its guard into the typed operation surface.
func NewDevice(client *Client, guard *SessionGuard, opts DeviceOptions) *Device {
	if opts.DialVerifyAttempts <= 0 {
		opts.DialVerifyAttempts = 5
	}
	if opts.DialVerifyInterval <= 0 {
		opts.DialVerifyInterval = time.Second
	}
	if opts.DefaultCallRate <= 0 {
		opts.DefaultCallRate = 1920
	}
	return &Device{
		client: client,
		guard:  guard,
		opts:   opts,
		logger: logging.WithComponent("device"),
	}
}

// Guard returns the session guard backing this device.
func (d *Device) Guard() *SessionGuard {
	return d.guard
}

// DefaultCallRate returns the configured dial bandwidth in kbps.
func (d *Device) DefaultCallRate() int {
	return d.opts.DefaultCallRate
}

func (d *Device) getJSON(ctx context.Context, endpoint string, out any) error {
	return d.guard.Do(ctx, "GET "+endpoint, func(token string) error {
		return d.client.getJSON(ctx, token, endpoint, out)
	})
}

func (d *Device) postJSON(ctx context.Context, endpoint string, body, out any) error {
	return d.guard.Do(ctx, "POST "+endpoint, func(token string) error {
		return d.client.postJSON(ctx, token, endpoint, body, out)
	})
}

// Status returns the per-subsystem status rows (provisioning, SIP, global
// directory and the like).
func (d *Device) Status(ctx context.Context) ([]StatusEntry, error) {
	var entries []StatusEntry
	if err := d.getJSON(ctx, uriStatus, &entries); err != nil {
		return nil, err
	}
	return entries, nil
}

// System returns the device identity and build block.
func (d *Device) System(ctx context.Context) (*SystemInfo, error) {
	var info SystemInfo
	if err := d.getJSON(ctx, uriSystem, &info); err != nil {
		return nil, err
	}
	return &info, nil
}

// Apps returns the installed application inventory.
func (d *Device) Apps(ctx context.Context) ([]AppInfo, error) {
	var apps appsResponse
	if err := d.getJSON(ctx, uriApps, &apps); err != nil {
		return nil, err
	}
	return apps.Apps, nil
}

// Sessions returns the device's active UI/API sessions.
func (d *Device) Sessions(ctx context.Context) ([]SessionEntry, error) {
	var sessions sessionsResponse
	if err := d.getJSON(ctx, uriSessions, &sessions); err != nil {
		return nil, err
	}
	return sessions.SessionList, nil
}

// Microphones returns the attached microphone inventory.
func (d *Device) Microphones(ctx context.Context) ([]Microphone, error) {
	var mics []Microphone
	if err := d.getJSON(ctx, uriMicrophones, &mics); err != nil {
		return nil, err
	}
	return mics, nil
}

// ContentStatus returns the camera content sharing state as reported text.
func (d *Device) ContentStatus(ctx context.Context) (string, error) {
	var status string
	err := d.guard.Do(ctx, "GET "+uriContentStatus, func(token string) error {
		var err error
		status, err = d.client.getText(ctx, token, uriContentStatus)
		return err
	})
	return status, err
}

// Capabilities returns the conferencing capability flags.
func (d *Device) Capabilities(ctx context.Context) (*ConferencingCapabilities, error) {
	var caps ConferencingCapabilities
	if err := d.getJSON(ctx, uriCapabilities, &caps); err != nil {
		return nil, err
	}
	return &caps, nil
}

// Audio returns the audio subsystem block.
func (d *Device) Audio(ctx context.Context) (*AudioStatus, error) {
	var audio AudioStatus
	if err := d.getJSON(ctx, uriAudio, &audio); err != nil {
		return nil, err
	}
	return &audio, nil
}

// Collaboration returns the active collaboration (content share) session.
func (d *Device) Collaboration(ctx context.Context) (*CollaborationStatus, error) {
	var collab CollaborationStatus
	if err := d.getJSON(ctx, uriCollaboration, &collab); err != nil {
		return nil, err
	}
	return &collab, nil
}

// SIPServers returns the configured SIP registrars and their states.
func (d *Device) SIPServers(ctx context.Context) ([]SIPServer, error) {
	var servers []SIPServer
	if err := d.getJSON(ctx, uriSIPServers, &servers); err != nil {
		return nil, err
	}
	return servers, nil
}

// H323Gatekeepers returns the configured gatekeepers and their states.
func (d *Device) H323Gatekeepers(ctx context.Context) ([]H323Gatekeeper, error) {
	var gatekeepers []H323Gatekeeper
	if err := d.getJSON(ctx, uriH323Gatekeepers, &gatekeepers); err != nil {
		return nil, err
	}
	return gatekeepers, nil
}

// DeviceMode returns the device/appliance mode state.
func (d *Device) DeviceMode(ctx context.Context) (*DeviceMode, error) {
	var mode DeviceMode
	if err := d.getJSON(ctx, uriDeviceMode, &mode); err != nil {
		return nil, err
	}
	return &mode, nil
}

// SignageMode returns the digital signage mode state.
func (d *Device) SignageMode(ctx context.Context) (*SignageMode, error) {
	var mode SignageMode
	if err := d.getJSON(ctx, uriSignageMode, &mode); err != nil {
		return nil, err
	}
	return &mode, nil
}

// Peripherals returns the paired companion devices (cameras, microphones,
// touch controllers).
func (d *Device) Peripherals(ctx context.Context) ([]Peripheral, error) {
	var devices []Peripheral
	if err := d.getJSON(ctx, uriPeripherals, &devices); err != nil {
		return nil, err
	}
	return devices, nil
}

// ConfigValues resolves device configuration variables by name. Names absent
// from the response are absent from the map.
func (d *Device) ConfigValues(ctx context.Context, names []string) (map[string]string, error) {
	var response configResponse
	if err := d.postJSON(ctx, uriConfig, configRequest{Names: names}, &response); err != nil {
		return nil, err
	}
	values := make(map[string]string, len(response.Vars))
	for _, v := range response.Vars {
		values[v.Name] = v.Value
	}
	return values, nil
}

// Conferences lists all conferences on the device.
func (d *Device) Conferences(ctx context.Context) ([]Conference, error) {
	var conferences []Conference
	if err := d.getJSON(ctx, uriConferences, &conferences); err != nil {
		return nil, err
	}
	return conferences, nil
}

// ConferenceByID fetches one conference. A conference that no longer exists
// maps to ErrResourceGone, not a generic failure: the call it carried is
// simply over.
func (d *Device) ConferenceByID(ctx context.Context, id int) (*Conference, error) {
	var conference Conference
	endpoint := fmt.Sprintf(uriConference, strconv.Itoa(id))
	if err := d.getJSON(ctx, endpoint, &conference); err != nil {
		if IsStatus(err, http.StatusNotFound) {
			return nil, fmt.Errorf("conference %d: %w", id, ErrResourceGone)
		}
		return nil, err
	}
	return &conference, nil
}

// ConferenceMediaStats returns the per-channel media statistics for a
// conference. A 404 yields an empty list: the device drops the resource the
// moment the call ends, and a poll racing that teardown is not an error.
func (d *Device) ConferenceMediaStats(ctx context.Context, id int) ([]MediaStatEntry, error) {
	var stats []MediaStatEntry
	endpoint := fmt.Sprintf(uriMediaStats, strconv.Itoa(id))
	if err := d.getJSON(ctx, endpoint, &stats); err != nil {
		if IsStatus(err, http.StatusNotFound) {
			d.logger.Debug().Int("conference", id).Msg("Media stats gone, conference likely ended")
			return []MediaStatEntry{}, nil
		}
		return nil, err
	}
	return stats, nil
}

// SharedMediaStats returns the device-wide media statistics carrying the
// content channel's transmit metrics.
func (d *Device) SharedMediaStats(ctx context.Context) ([]SharedStat, error) {
	var response sharedStatsResponse
	if err := d.getJSON(ctx, uriSharedMediaStats, &response); err != nil {
		return nil, err
	}
	return response.Vars, nil
}

// Dial places an outbound call and verifies the device attached it to a
// conference. The POST answers with connection references; the device then
// takes up to a few seconds to create the conference, so the first reference
// is re-fetched until its parent conference id appears and its address
// matches what we dialed.
func (d *Device) Dial(ctx context.Context, spec DialSpec) (*Conference, error) {
	rate := spec.CallRate
	if rate <= 0 {
		rate = d.opts.DefaultCallRate
	}
	request := dialRequest{
		Address:  spec.Address,
		Rate:     rate,
		DialType: strings.ToUpper(spec.Protocol),
	}

	var refs []connectionRef
	if err := d.postJSON(ctx, uriConferences, request, &refs); err != nil {
		return nil, fmt.Errorf("dial to %s failed: %w", spec.Address, err)
	}
	if len(refs) == 0 || refs[0].Href == "" {
		return nil, fmt.Errorf("dial to %s failed: device returned no connection reference", spec.Address)
	}
	href := refs[0].Href

	for attempt := 0; attempt < d.opts.DialVerifyAttempts; attempt++ {
		if attempt > 0 {
			if err := sleepCtx(ctx, d.opts.DialVerifyInterval); err != nil {
				return nil, err
			}
		}

		var detail ConnectionDetail
		if err := d.getJSON(ctx, href, &detail); err != nil {
			d.logger.Debug().Err(err).Str("href", href).Int("attempt", attempt+1).
				Msg("Dial verification fetch failed")
			continue
		}
		if detail.ParentConfID == nil {
			continue
		}
		if strings.TrimSpace(detail.Address) != strings.TrimSpace(spec.Address) {
			continue
		}
		return d.ConferenceByID(ctx, *detail.ParentConfID)
	}

	return nil, fmt.Errorf("dial to %s with protocol %s did not produce a conference after %d attempts",
		spec.Address, strings.ToUpper(spec.Protocol), d.opts.DialVerifyAttempts)
}

// Hangup disconnects one conference. A conference that is already gone
// counts as success.
func (d *Device) Hangup(ctx context.Context, id int) error {
	endpoint := fmt.Sprintf(uriConference, strconv.Itoa(id))
	err := d.guard.Do(ctx, "DELETE "+endpoint, func(token string) error {
		return d.client.del(ctx, token, endpoint)
	})
	if err != nil && IsStatus(err, http.StatusNotFound) {
		return nil
	}
	return err
}

// HangupAll disconnects every conference on the device.
func (d *Device) HangupAll(ctx context.Context) error {
	conferences, err := d.Conferences(ctx)
	if err != nil {
		return err
	}
	for i := range conferences {
		if err := d.Hangup(ctx, conferences[i].ID); err != nil {
			return err
		}
	}
	return nil
}

// Volume returns the speaker volume, 0 to 100.
func (d *Device) Volume(ctx context.Context) (int, error) {
	var volume int
	if err := d.getJSON(ctx, uriVolume, &volume); err != nil {
		return 0, err
	}
	return volume, nil
}

// SetVolume sets the speaker volume. The endpoint takes a bare number.
func (d *Device) SetVolume(ctx context.Context, volume int) error {
	if volume < 0 {
		volume = 0
	}
	if volume > 100 {
		volume = 100
	}
	return d.postJSON(ctx, uriVolume, volume, nil)
}

// AudioMuted returns the microphone mute state.
func (d *Device) AudioMuted(ctx context.Context) (bool, error) {
	var muted bool
	if err := d.getJSON(ctx, uriAudioMuted, &muted); err != nil {
		return false, err
	}
	return muted, nil
}

// SetAudioMute sets the microphone mute state. The endpoint takes a bare
// boolean.
func (d *Device) SetAudioMute(ctx context.Context, muted bool) error {
	return d.postJSON(ctx, uriAudioMuted, muted, nil)
}

// VideoMuted returns the local camera mute state.
func (d *Device) VideoMuted(ctx context.Context) (bool, error) {
	var state videoMuteState
	if err := d.getJSON(ctx, uriVideoMute, &state); err != nil {
		return false, err
	}
	return state.Result, nil
}

// SetVideoMute sets the local camera mute state. The device acknowledges
// in-body; a declined request carries the reason text.
func (d *Device) SetVideoMute(ctx context.Context, muted bool) error {
	var result videoMuteResponse
	if err := d.postJSON(ctx, uriVideoMute, videoMuteRequest{Mute: muted}, &result); err != nil {
		return err
	}
	if !result.Success {
		return fmt.Errorf("unable to update local video mute status: %s", result.Reason)
	}
	return nil
}

// Reboot commands a device reboot and invalidates the session, so the next
// operation re-authenticates once the device is back.
func (d *Device) Reboot(ctx context.Context) error {
	if err := d.postJSON(ctx, uriReboot, rebootRequest{Action: "reboot"}, nil); err != nil {
		return err
	}
	d.guard.MarkReboot()
	return nil
}
