// Poly VideoOS Agent - Resilient Monitoring and Control for Poly Video Devices
// Copyright 2026 AVI-SPL, Inc.
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/AVISPL/dal-codecs-singlecodecs-polycom-videoos

/*
groups.go - Resource Group Fetchers

Each fetcher maps one device resource group onto extended property labels.
Labels use a `Group#Property` shape with 1-based ordinals for repeated
elements, so consumers can address, say, the mute state of the second
microphone without positional guessing. A fetcher returns the complete key
set it stands behind this cycle; keys it produced previously but not now are
dropped at merge, which is how unplugged peripherals leave the snapshot.
*/

package poller

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/AVISPL/dal-codecs-singlecodecs-polycom-videoos/internal/videoos"
)

// Resource group names. These are the identifiers accepted by the
// poller.disabled_groups configuration list and reported by group health.
const (
	GroupSystemStatus  = "system-status"
	GroupSystemInfo    = "system-info"
	GroupApplications  = "applications"
	GroupSessions      = "sessions"
	GroupMicrophones   = "microphones"
	GroupContentStatus = "content-status"
	GroupCapabilities  = "capabilities"
	GroupAudio         = "audio"
	GroupCollaboration = "collaboration"
	GroupRegistration  = "registration"
	GroupModes         = "modes"
	GroupPeripherals   = "peripherals"
	GroupConference    = "conference"
	GroupControls      = "controls"
)

// Extended property labels. Ordinal templates take a 1-based position.
const (
	labelSystemStatusPrefix = "SystemStatus#"

	labelSystemSerial          = "System#Serial Number"
	labelSystemSoftwareVersion = "System#Software Version"
	labelSystemState           = "System#System State"
	labelSystemName            = "System#System Name"
	labelSystemUptime          = "System#System Uptime"
	labelSystemBuild           = "System#System Build"
	labelSystemRebootNeeded    = "System#System Reboot Needed"
	labelSystemModel           = "System#Device Model"
	labelSystemHardware        = "System#Device Hardware Version"
	labelSystemDeviceMode      = "System#DeviceMode"
	labelSystemSignageMode     = "System#SignageMode"
	labelSystemSIPUsername     = "System#SIPUsername"
	labelSystemH323Name        = "System#H323Name"
	labelSystemH323Extension   = "System#H323Extension"

	labelLanDuplex = "Lan Status#Duplex"
	labelLanSpeed  = "Lan Status#Speed Mbps"
	labelLanState  = "Lan Status#State"

	labelAppVersion     = "Applications#%sVersion"
	labelAppLastUpdated = "Applications#%sLastUpdated"

	labelSessionUserID     = "ActiveSessions#Session%sUserId"
	labelSessionRole       = "ActiveSessions#Session%sRole"
	labelSessionLocation   = "ActiveSessions#Session%sLocation"
	labelSessionClientType = "ActiveSessions#Session%sClientType"
	labelSessionStatus     = "ActiveSessions#Session%sStatus"

	labelMicrophoneName     = "Microphones#Microphone%sName"
	labelMicrophoneState    = "Microphones#Microphone%sState"
	labelMicrophoneType     = "Microphones#Microphone%sType"
	labelMicrophoneHardware = "Microphones#Microphone%sHardwareVersion"
	labelMicrophoneSoftware = "Microphones#Microphone%sSoftwareVersion"
	labelMicrophoneMuted    = "Microphones#Microphone%sMuted"

	labelContentStatus = "Cameras#ContentStatus"

	labelCapabilityBlastDial = "ConferencingCapabilities#BlastDial"
	labelCapabilityAudioCall = "ConferencingCapabilities#AudioCall"
	labelCapabilityVideoCall = "ConferencingCapabilities#VideoCall"

	labelAudioMuteLocked    = "Audio#MuteLocked"
	labelAudioMicsConnected = "Audio#MicrophonesConnected"

	labelCollaborationState = "Collaboration#SessionState"
	labelCollaborationID    = "Collaboration#SessionId"

	labelSIPServerAddress   = "Registration#SIPServer%sAddress"
	labelSIPServerTransport = "Registration#SIPServer%sTransport"
	labelSIPServerStatus    = "Registration#SIPServer%sStatus"
	labelGatekeeperAddress  = "Registration#H323Gatekeeper%sAddress"
	labelGatekeeperStatus   = "Registration#H323Gatekeeper%sStatus"

	labelPeripheralPrefix = "Peripherals[%s:%s:%s]#"

	labelConferenceID        = "ActiveConference#ConferenceId"
	labelConferenceStartTime = "ActiveConference#ConferenceStartTime"
	labelTerminalAddress     = "ActiveConference#Terminal%sAddress"
	labelTerminalSystem      = "ActiveConference#Terminal%sSystem"
	labelConnectionType      = "ActiveConference#Connection%sType"
	labelConnectionInfo      = "ActiveConference#Connection%sInfo"
)

// timestampLayout renders epoch-millisecond device timestamps.
const timestampLayout = "Mon Jan 02 15:04:05 MST 2006"

// group binds a resource group name to its fetcher.
type group struct {
	name  string
	fetch func(ctx context.Context) (groupValues, error)
}

// groupValues is one group's produce: extended properties keyed by label
// (nil for groups that carry none), and the refreshed control descriptor
// list for the controls group. An empty non-nil props map is meaningful: it
// retires every key the group wrote before.
type groupValues struct {
	props    map[string]string
	controls []ControlDescriptor
}

// groups lists every resource group in retrieval order.
func (p *Poller) groups() []group {
	return []group{
		{GroupSystemStatus, p.fetchSystemStatus},
		{GroupSystemInfo, p.fetchSystemInfo},
		{GroupApplications, p.fetchApplications},
		{GroupSessions, p.fetchSessions},
		{GroupMicrophones, p.fetchMicrophones},
		{GroupContentStatus, p.fetchContentStatus},
		{GroupCapabilities, p.fetchCapabilities},
		{GroupAudio, p.fetchAudio},
		{GroupCollaboration, p.fetchCollaboration},
		{GroupRegistration, p.fetchRegistration},
		{GroupModes, p.fetchModes},
		{GroupPeripherals, p.fetchPeripherals},
		{GroupConference, p.fetchConference},
		{GroupControls, p.fetchControls},
	}
}

// fetchSystemStatus maps GET rest/system/status rows: the langtag becomes the
// property name, the first state-list entry the value.
func (p *Poller) fetchSystemStatus(ctx context.Context) (groupValues, error) {
	entries, err := p.device.Status(ctx)
	if err != nil {
		return groupValues{}, err
	}
	props := make(map[string]string, len(entries))
	for _, entry := range entries {
		if entry.Langtag == "" || len(entry.StateList) == 0 {
			continue
		}
		key := labelSystemStatusPrefix + normalizeLangtag(entry.Langtag)
		props[key] = strings.ToUpper(strings.ReplaceAll(entry.StateList[0], "_", " "))
	}
	return groupValues{props: props}, nil
}

func (p *Poller) fetchSystemInfo(ctx context.Context) (groupValues, error) {
	info, err := p.device.System(ctx)
	if err != nil {
		return groupValues{}, err
	}
	p.noteSystemName(info.SystemName)

	props := make(map[string]string, 12)
	putIfSet(props, labelSystemSerial, info.SerialNumber)
	putIfSet(props, labelSystemSoftwareVersion, info.SoftwareVersion)
	putIfSet(props, labelSystemState, info.State)
	putIfSet(props, labelSystemName, info.SystemName)
	putIfSet(props, labelSystemUptime, info.Uptime)
	putIfSet(props, labelSystemBuild, info.Build)
	if info.RebootNeeded != nil {
		props[labelSystemRebootNeeded] = strconv.FormatBool(*info.RebootNeeded)
	}
	putIfSet(props, labelSystemModel, info.Model)
	putIfSet(props, labelSystemHardware, info.HardwareVersion)

	if lan := info.LanStatus; lan != nil {
		putIfSet(props, labelLanDuplex, lan.Duplex)
		if lan.SpeedMbps > 0 {
			props[labelLanSpeed] = strconv.Itoa(lan.SpeedMbps)
		}
		putIfSet(props, labelLanState, lan.State)
	}
	return groupValues{props: props}, nil
}

func (p *Poller) fetchApplications(ctx context.Context) (groupValues, error) {
	apps, err := p.device.Apps(ctx)
	if err != nil {
		return groupValues{}, err
	}
	props := make(map[string]string, 2*len(apps))
	for _, app := range apps {
		if app.AppName == "" {
			continue
		}
		putIfSet(props, fmt.Sprintf(labelAppVersion, app.AppName), app.VersionInfo)
		if app.LastUpdatedOn > 0 {
			props[fmt.Sprintf(labelAppLastUpdated, app.AppName)] = formatEpochMillis(app.LastUpdatedOn)
		}
	}
	return groupValues{props: props}, nil
}

func (p *Poller) fetchSessions(ctx context.Context) (groupValues, error) {
	sessions, err := p.device.Sessions(ctx)
	if err != nil {
		return groupValues{}, err
	}
	props := make(map[string]string, 5*len(sessions))
	for i, session := range sessions {
		n := strconv.Itoa(i + 1)
		putIfSet(props, fmt.Sprintf(labelSessionUserID, n), session.UserID)
		putIfSet(props, fmt.Sprintf(labelSessionRole, n), session.Role)
		putIfSet(props, fmt.Sprintf(labelSessionLocation, n), session.Location)
		putIfSet(props, fmt.Sprintf(labelSessionClientType, n), session.ClientType)
		props[fmt.Sprintf(labelSessionStatus, n)] = sessionStatus(session.IsConnected, session.IsAuthenticated)
	}
	return groupValues{props: props}, nil
}

// fetchMicrophones reports each microphone keyed by its device-assigned
// number. The device reports mute as a numeric string where "0" means
// muted; the property carries the decoded boolean.
func (p *Poller) fetchMicrophones(ctx context.Context) (groupValues, error) {
	microphones, err := p.device.Microphones(ctx)
	if err != nil {
		return groupValues{}, err
	}
	props := make(map[string]string, 6*len(microphones))
	for _, mic := range microphones {
		n := strconv.Itoa(mic.Number)
		putIfSet(props, fmt.Sprintf(labelMicrophoneName, n), mic.TypeInString)
		putIfSet(props, fmt.Sprintf(labelMicrophoneState, n), mic.State)
		putIfSet(props, fmt.Sprintf(labelMicrophoneType, n), mic.Type)
		putIfSet(props, fmt.Sprintf(labelMicrophoneHardware, n), mic.HWVersion)
		putIfSet(props, fmt.Sprintf(labelMicrophoneSoftware, n), mic.SWVersion)
		props[fmt.Sprintf(labelMicrophoneMuted, n)] = strconv.FormatBool(mic.Mute == "0")
	}
	return groupValues{props: props}, nil
}

func (p *Poller) fetchContentStatus(ctx context.Context) (groupValues, error) {
	status, err := p.device.ContentStatus(ctx)
	if err != nil {
		return groupValues{}, err
	}
	props := make(map[string]string, 1)
	putIfSet(props, labelContentStatus, status)
	return groupValues{props: props}, nil
}

func (p *Poller) fetchCapabilities(ctx context.Context) (groupValues, error) {
	caps, err := p.device.Capabilities(ctx)
	if err != nil {
		return groupValues{}, err
	}
	return groupValues{props: map[string]string{
		labelCapabilityBlastDial: availability(caps.CanBlastDial),
		labelCapabilityAudioCall: availability(caps.CanMakeAudioCall),
		labelCapabilityVideoCall: availability(caps.CanMakeVideoCall),
	}}, nil
}

func (p *Poller) fetchAudio(ctx context.Context) (groupValues, error) {
	audio, err := p.device.Audio(ctx)
	if err != nil {
		return groupValues{}, err
	}
	return groupValues{props: map[string]string{
		labelAudioMuteLocked:    strconv.FormatBool(audio.MuteLocked),
		labelAudioMicsConnected: strconv.Itoa(audio.NumOfMicsConnected),
	}}, nil
}

// fetchCollaboration reports the content-collaboration session. The session
// id is only meaningful while a session is active.
func (p *Poller) fetchCollaboration(ctx context.Context) (groupValues, error) {
	collab, err := p.device.Collaboration(ctx)
	if err != nil {
		return groupValues{}, err
	}
	props := make(map[string]string, 2)
	putIfSet(props, labelCollaborationState, collab.State)
	if strings.EqualFold(collab.State, "ACTIVE") {
		putIfSet(props, labelCollaborationID, collab.ID)
	}
	return groupValues{props: props}, nil
}

// fetchRegistration reports SIP registrar and H.323 gatekeeper state plus
// the device's dialable identities. The identities double as the dial-string
// source for call-id minting.
func (p *Poller) fetchRegistration(ctx context.Context) (groupValues, error) {
	servers, err := p.device.SIPServers(ctx)
	if err != nil {
		return groupValues{}, err
	}
	gatekeepers, err := p.device.H323Gatekeepers(ctx)
	if err != nil {
		return groupValues{}, err
	}
	identity, err := p.device.ConfigValues(ctx, []string{
		videoos.ConfigKeySIPUsername,
		videoos.ConfigKeyH323Name,
		videoos.ConfigKeyH323Extension,
	})
	if err != nil {
		return groupValues{}, err
	}
	p.noteIdentity(identity)

	props := make(map[string]string, 3*len(servers)+2*len(gatekeepers)+3)
	for i, server := range servers {
		n := strconv.Itoa(i + 1)
		putIfSet(props, fmt.Sprintf(labelSIPServerAddress, n), server.Address)
		putIfSet(props, fmt.Sprintf(labelSIPServerTransport, n), server.Transport)
		putIfSet(props, fmt.Sprintf(labelSIPServerStatus, n), server.Status)
	}
	for i, gk := range gatekeepers {
		n := strconv.Itoa(i + 1)
		putIfSet(props, fmt.Sprintf(labelGatekeeperAddress, n), gk.Address)
		putIfSet(props, fmt.Sprintf(labelGatekeeperStatus, n), gk.Status)
	}
	putIfSet(props, labelSystemSIPUsername, identity[videoos.ConfigKeySIPUsername])
	putIfSet(props, labelSystemH323Name, identity[videoos.ConfigKeyH323Name])
	putIfSet(props, labelSystemH323Extension, identity[videoos.ConfigKeyH323Extension])
	return groupValues{props: props}, nil
}

func (p *Poller) fetchModes(ctx context.Context) (groupValues, error) {
	device, err := p.device.DeviceMode(ctx)
	if err != nil {
		return groupValues{}, err
	}
	signage, err := p.device.SignageMode(ctx)
	if err != nil {
		return groupValues{}, err
	}
	props := make(map[string]string, 2)
	putIfSet(props, labelSystemDeviceMode, device.Mode)
	putIfSet(props, labelSystemSignageMode, signage.State)
	return groupValues{props: props}, nil
}

// fetchPeripherals reports paired companion devices. Each peripheral is
// addressed by category, type, and uid so two devices of the same model
// never collide.
func (p *Poller) fetchPeripherals(ctx context.Context) (groupValues, error) {
	peripherals, err := p.device.Peripherals(ctx)
	if err != nil {
		return groupValues{}, err
	}
	props := make(map[string]string, 8*len(peripherals))
	for _, per := range peripherals {
		prefix := fmt.Sprintf(labelPeripheralPrefix, per.DeviceCategory, per.DeviceType, per.UID)
		putIfSet(props, prefix+"ProductName", per.ProductName)
		putIfSet(props, prefix+"State", per.DeviceState)
		putIfSet(props, prefix+"ConnectionType", per.ConnectionType)
		putIfSet(props, prefix+"IP", per.IP)
		putIfSet(props, prefix+"MacAddress", per.MacAddress)
		putIfSet(props, prefix+"NetworkInterface", per.NetworkInterface)
		putIfSet(props, prefix+"SerialNumber", per.SerialNumber)
		putIfSet(props, prefix+"SoftwareVersion", per.SoftwareVersion)
	}
	return groupValues{props: props}, nil
}

// fetchConference reports the active conference and records it for the call
// view. No conference is a normal outcome: the empty key set retires the
// previous conference's properties. More than one conference violates the
// single-conference operating assumption and degrades the group.
func (p *Poller) fetchConference(ctx context.Context) (groupValues, error) {
	conferences, err := p.device.Conferences(ctx)
	if err != nil {
		return groupValues{}, err
	}
	if len(conferences) == 0 {
		p.noteConference(nil)
		return groupValues{props: map[string]string{}}, nil
	}
	if len(conferences) > 1 {
		return groupValues{}, fmt.Errorf("%d conference calls in progress, 1 expected", len(conferences))
	}

	conf := conferences[0]
	p.noteConference(&conf)

	props := make(map[string]string, 2+2*len(conf.Terminals)+2*len(conf.Connections))
	props[labelConferenceID] = strconv.Itoa(conf.ID)
	if conf.StartTime > 0 {
		props[labelConferenceStartTime] = formatEpochMillis(conf.StartTime)
	}
	for i, terminal := range conf.Terminals {
		n := strconv.Itoa(i + 1)
		putIfSet(props, fmt.Sprintf(labelTerminalAddress, n), terminal.Address)
		putIfSet(props, fmt.Sprintf(labelTerminalSystem, n), terminal.SystemID)
	}
	for i, conn := range conf.Connections {
		n := strconv.Itoa(i + 1)
		putIfSet(props, fmt.Sprintf(labelConnectionType, n), conn.CallType)
		putIfSet(props, fmt.Sprintf(labelConnectionInfo, n), conn.CallInfo)
	}
	return groupValues{props: props}, nil
}

// fetchControls refreshes the writable control descriptors from live device
// state: speaker volume, microphone mute, and local video mute, plus the
// reboot button.
func (p *Poller) fetchControls(ctx context.Context) (groupValues, error) {
	volume, err := p.device.Volume(ctx)
	if err != nil {
		return groupValues{}, err
	}
	audioMuted, err := p.device.AudioMuted(ctx)
	if err != nil {
		return groupValues{}, err
	}
	videoMuted, err := p.device.VideoMuted(ctx)
	if err != nil {
		return groupValues{}, err
	}
	return groupValues{controls: []ControlDescriptor{
		{Name: ControlAudioVolume, Type: ControlSlider, Value: strconv.Itoa(volume), Min: 0, Max: 100},
		{Name: ControlMuteMicrophones, Type: ControlSwitch, Value: strconv.FormatBool(audioMuted)},
		{Name: ControlMuteLocalVideo, Type: ControlSwitch, Value: strconv.FormatBool(videoMuted)},
		{Name: ControlReboot, Type: ControlButton, LabelPressed: "Rebooting...", GracePeriod: p.rebootGrace},
	}}, nil
}

// putIfSet stores the property only when the device reported a value; an
// absent field must not materialize as an empty property.
func putIfSet(props map[string]string, key, value string) {
	if strings.TrimSpace(value) != "" {
		props[key] = value
	}
}

// normalizeLangtag turns a SHOUTY_UNDERSCORE langtag into a readable
// property name: underscores to spaces, leading capital, rest lowered.
func normalizeLangtag(langtag string) string {
	s := strings.ReplaceAll(langtag, "_", " ")
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + strings.ToLower(s[1:])
}

func formatEpochMillis(ms int64) string {
	return time.UnixMilli(ms).UTC().Format(timestampLayout)
}

func availability(ok bool) string {
	if ok {
		return "Available"
	}
	return "Not Available"
}

func sessionStatus(connected, authenticated bool) string {
	conn := "NOT CONNECTED"
	if connected {
		conn = "CONNECTED"
	}
	auth := "NOT AUTHENTICATED"
	if authenticated {
		auth = "AUTHENTICATED"
	}
	return conn + ", " + auth
}
