// Poly VideoOS Agent - Resilient Monitoring and Control for Poly Video Devices
// Copyright 2026 AVI-SPL, Inc.
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/AVISPL/dal-codecs-singlecodecs-polycom-videoos

package videoos

import "strings"

// REST endpoints exposed by VideoOS devices (Studio X30/X50/E70, G7500).
const (
	uriSession          = "rest/current/session"
	uriStatus           = "rest/system/status"
	uriCapabilities     = "rest/conferences/capabilities"
	uriConferences      = "rest/conferences" // POST dials a single participant, GET lists all
	uriConference       = "rest/conferences/%s"
	uriMediaStats       = "rest/conferences/%s/mediastats"
	uriSharedMediaStats = "rest/mediastats"
	uriAudio            = "rest/audio"
	uriAudioMuted       = "rest/audio/muted"
	uriVideoMute        = "rest/video/local/mute"
	uriContentStatus    = "rest/cameras/contentstatus"
	uriVolume           = "rest/audio/volume"
	uriSystem           = "rest/system"
	uriConfig           = "rest/config"
	uriReboot           = "rest/system/reboot"
	uriCollaboration    = "rest/collaboration"
	uriMicrophones      = "rest/audio/microphones"
	uriApps             = "rest/system/apps"
	uriSessions         = "rest/current/session/sessions"
	uriSIPServers       = "rest/system/sipservers"
	uriH323Gatekeepers  = "rest/system/h323gatekeepers"
	uriDeviceMode       = "rest/system/mode/device"
	uriSignageMode      = "rest/system/mode/signage"
	uriPeripherals      = "rest/current/devicemanagement/devices"
)

// Configuration keys holding the device's dialable identities, in preference
// order for dial-string resolution.
const (
	ConfigKeySIPUsername   = "comm.nics.sipnic.sipusername"
	ConfigKeyH323Name      = "comm.nics.h323nic.h323name"
	ConfigKeyH323Extension = "comm.nics.h323nic.h323extension"
)

type loginRequest struct {
	User     string `json:"user"`
	Password string `json:"password"`
}

// loginResponse accepts both session payload shapes seen across VideoOS
// firmware lines: a flat sessionId and a nested session object.
type loginResponse struct {
	Success bool   `json:"success"`
	Reason  string `json:"reason"`

	SessionID string `json:"sessionId"`
	Session   *struct {
		SessionID string `json:"sessionId"`
	} `json:"session"`
}

func (r *loginResponse) token() string {
	if r.SessionID != "" {
		return r.SessionID
	}
	if r.Session != nil {
		return r.Session.SessionID
	}
	return ""
}

// StatusEntry is one row of GET rest/system/status: a language-tagged
// subsystem name plus its state list, first entry being the current state.
type StatusEntry struct {
	Langtag   string   `json:"langtag"`
	StateList []string `json:"stateList"`
}

// LanStatus is the nested network block of the system info payload.
type LanStatus struct {
	Duplex    string `json:"duplex"`
	SpeedMbps int    `json:"speedMbps"`
	State     string `json:"state"`
}

// SystemInfo is GET rest/system.
type SystemInfo struct {
	SerialNumber    string     `json:"serialNumber"`
	SoftwareVersion string     `json:"softwareVersion"`
	State           string     `json:"state"`
	SystemName      string     `json:"systemName"`
	Uptime          string     `json:"uptime"`
	Build           string     `json:"build"`
	RebootNeeded    *bool      `json:"rebootNeeded"`
	Model           string     `json:"model"`
	HardwareVersion string     `json:"hardwareVersion"`
	LanStatus       *LanStatus `json:"lanStatus"`
}

// AppInfo is one installed application entry. LastUpdatedOn is epoch millis.
type AppInfo struct {
	AppName       string `json:"appName"`
	VersionInfo   string `json:"versionInfo"`
	LastUpdatedOn int64  `json:"lastUpdatedOn"`
}

type appsResponse struct {
	Apps []AppInfo `json:"apps"`
}

// SessionEntry is one active UI/API session on the device.
type SessionEntry struct {
	UserID          string `json:"userId"`
	Role            string `json:"role"`
	Location        string `json:"location"`
	ClientType      string `json:"clientType"`
	IsConnected     bool   `json:"isConnected"`
	IsAuthenticated bool   `json:"isAuthenticated"`
}

type sessionsResponse struct {
	SessionList []SessionEntry `json:"sessionList"`
}

// Microphone is one entry of GET rest/audio/microphones. Mute is reported as
// a numeric string; "0" means muted.
type Microphone struct {
	Number       int    `json:"number"`
	TypeInString string `json:"typeInString"`
	State        string `json:"state"`
	Type         string `json:"type"`
	HWVersion    string `json:"hwVersion"`
	SWVersion    string `json:"swVersion"`
	Mute         string `json:"mute"`
}

// ConferencingCapabilities is GET rest/conferences/capabilities.
type ConferencingCapabilities struct {
	CanBlastDial     bool `json:"canBlastDial"`
	CanMakeAudioCall bool `json:"canMakeAudioCall"`
	CanMakeVideoCall bool `json:"canMakeVideoCall"`
}

// AudioStatus is GET rest/audio.
type AudioStatus struct {
	MuteLocked         bool `json:"muteLocked"`
	NumOfMicsConnected int  `json:"numOfMicsConnected"`
}

// CollaborationStatus is GET rest/collaboration.
type CollaborationStatus struct {
	State string `json:"state"`
	ID    string `json:"id"`
}

// Terminal is one far-site endpoint participating in a conference.
type Terminal struct {
	Address  string `json:"address"`
	SystemID string `json:"systemID"`
}

// Connection is one participant leg inside a conference.
type Connection struct {
	ID       int    `json:"id"`
	CallType string `json:"callType"`
	CallInfo string `json:"callInfo"`
	State    string `json:"state"`
	Address  string `json:"address"`
}

// Conference is one device-side call container, from GET rest/conferences or
// GET rest/conferences/{id}.
type Conference struct {
	ID          int          `json:"id"`
	StartTime   int64        `json:"startTime"`
	Terminals   []Terminal   `json:"terminals"`
	Connections []Connection `json:"connections"`
}

// Active reports whether the conference carries a connected leg. Firmware
// lines that omit per-connection state fall back to leg presence.
func (c *Conference) Active() bool {
	stateSeen := false
	for _, conn := range c.Connections {
		if conn.State != "" {
			stateSeen = true
			if strings.EqualFold(conn.State, "connected") {
				return true
			}
		}
	}
	if stateSeen {
		return false
	}
	return len(c.Connections) > 0
}

// FirstConnection returns the conference's first participant leg, or nil when
// the conference has none.
func (c *Conference) FirstConnection() *Connection {
	if len(c.Connections) == 0 {
		return nil
	}
	return &c.Connections[0]
}

// ConnectionByID returns the leg with the given id, or nil when the id is no
// longer present.
func (c *Conference) ConnectionByID(id int) *Connection {
	for i := range c.Connections {
		if c.Connections[i].ID == id {
			return &c.Connections[i]
		}
	}
	return nil
}

// DialSpec describes one outbound call request.
type DialSpec struct {
	Address  string `json:"address"`
	Protocol string `json:"protocol,omitempty"` // SIP, H323; empty lets the device choose
	CallRate int    `json:"callRate,omitempty"` // kbps; 0 uses the configured default
}

type dialRequest struct {
	Address  string `json:"address"`
	Rate     int    `json:"rate"`
	DialType string `json:"dialType,omitempty"`
}

// connectionRef is one element of the POST rest/conferences response: a
// pointer to the connection resource the dial created.
type connectionRef struct {
	Href string `json:"href"`
}

// ConnectionDetail is the dereferenced connection resource used for dial
// verification. ParentConfID stays nil until the device has attached the
// connection to a conference.
type ConnectionDetail struct {
	ParentConfID *int   `json:"parentConfId"`
	Address      string `json:"address"`
}

// MediaStatEntry is one leaf record of GET rest/conferences/{id}/mediastats,
// tagged by direction and media kind. Numeric fields are pointers: the device
// omits what a channel does not measure, and absent is not zero.
type MediaStatEntry struct {
	MediaDirection    string   `json:"mediaDirection"` // RX or TX
	MediaType         string   `json:"mediaType"`      // AUDIO or VIDEO
	ActualBitRate     *int64   `json:"actualBitRate"`
	Jitter            *float64 `json:"jitter"`
	PacketLoss        *int64   `json:"packetLoss"`
	PercentPacketLoss *float64 `json:"percentPacketLoss"`
	ActualFrameRate   *float64 `json:"actualFrameRate"`
	MediaAlgorithm    string   `json:"mediaAlgorithm"`
	MediaFormat       string   `json:"mediaFormat"`
}

// SharedStat is one entry of GET rest/mediastats, carrying the content
// channel's transmit metrics.
type SharedStat struct {
	Width     *int64   `json:"width"`
	Height    *int64   `json:"height"`
	Framerate *float64 `json:"framerate"`
	Bitrate   *int64   `json:"bitrate"`
}

type sharedStatsResponse struct {
	Vars []SharedStat `json:"vars"`
}

type configRequest struct {
	Names []string `json:"names"`
}

// ConfigVariable is one name/value pair from POST rest/config.
type ConfigVariable struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

type configResponse struct {
	Vars []ConfigVariable `json:"vars"`
}

// SIPServer is one entry of GET rest/system/sipservers.
type SIPServer struct {
	Address   string `json:"address"`
	Transport string `json:"transport"`
	Status    string `json:"status"`
}

// H323Gatekeeper is one entry of GET rest/system/h323gatekeepers.
type H323Gatekeeper struct {
	Address string `json:"address"`
	Status  string `json:"status"`
}

// DeviceMode is GET rest/system/mode/device.
type DeviceMode struct {
	Mode string `json:"mode"`
}

// SignageMode is GET rest/system/mode/signage.
type SignageMode struct {
	State string `json:"state"`
}

// Peripheral is one entry of GET rest/current/devicemanagement/devices:
// a paired camera, microphone, touch panel or similar companion device.
type Peripheral struct {
	ConnectionType   string `json:"connectionType"`
	DeviceCategory   string `json:"deviceCategory"`
	DeviceState      string `json:"deviceState"`
	DeviceType       string `json:"deviceType"`
	IP               string `json:"ip"`
	MacAddress       string `json:"macAddress"`
	NetworkInterface string `json:"networkInterface"`
	ProductName      string `json:"productName"`
	SerialNumber     string `json:"serialNumber"`
	SoftwareVersion  string `json:"softwareVersion"`
	UID              string `json:"uid"`
}

type videoMuteState struct {
	Result bool `json:"result"`
}

type videoMuteRequest struct {
	Mute bool `json:"mute"`
}

type videoMuteResponse struct {
	Success bool   `json:"success"`
	Reason  string `json:"reason"`
}

type rebootRequest struct {
	Action string `json:"action"`
}
