// Poly VideoOS Agent - Resilient Monitoring and Control for Poly Video Devices
// Copyright 2026 AVI-SPL, Inc.
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/AVISPL/dal-codecs-singlecodecs-polycom-videoos

/*
poller.go - Poll Orchestration

One coordinating flow per poll: consult the governor, ensure a device
session, fan the resource groups out through the scheduler, wait for the
tasks this cycle started, then refresh the call-level view. Group failures
degrade their slice of the snapshot by staleness; only a failed session
establishment fails the poll itself.

Control writes, dial, hangup, and call status run outside the poll flow and
serialize against it at the device gate, not here: an operator toggling mute
must not queue behind a fifteen-group fan-out.
*/

package poller

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strconv"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/AVISPL/dal-codecs-singlecodecs-polycom-videoos/internal/logging"
	"github.com/AVISPL/dal-codecs-singlecodecs-polycom-videoos/internal/metrics"
	"github.com/AVISPL/dal-codecs-singlecodecs-polycom-videoos/internal/videoos"
)

// Control names accepted by Control.
const (
	ControlMuteMicrophones = "MuteMicrophones"
	ControlMuteLocalVideo  = "MuteLocalVideo"
	ControlAudioVolume     = "AudioVolume"
	ControlReboot          = "Reboot"
)

// CallState is the coarse connection state of a tracked call.
type CallState string

const (
	CallStateConnected    CallState = "Connected"
	CallStateDisconnected CallState = "Disconnected"
)

// CallStatus answers a call-correlation lookup.
type CallStatus struct {
	ID    string    `json:"id"`
	State CallState `json:"state"`
}

// CallRecord identifies one placed or observed call. It is journaled so a
// restarted agent can still resolve and hang up a call placed before the
// restart.
type CallRecord struct {
	CallID       string    `json:"callId"`
	ConferenceID int       `json:"conferenceId"`
	ConnectionID int       `json:"connectionId"`
	Address      string    `json:"address,omitempty"`
	Protocol     string    `json:"protocol,omitempty"`
	StartTime    int64     `json:"startTime,omitempty"` // device epoch millis
	StartedAt    time.Time `json:"startedAt"`
}

// Journal persists poller state across agent restarts.
type Journal interface {
	SaveSnapshot(view View) error
	LoadSnapshot() (View, bool, error)
	SaveCall(record CallRecord) error
	LoadCall() (CallRecord, bool, error)
	ClearCall() error
}

// EventSink receives poller lifecycle signals. Implementations must return
// quickly: delivery runs on the poll flow and must never stall it.
type EventSink interface {
	SnapshotUpdated(view View)
	CallStarted(call CallRecord)
	CallEnded(call CallRecord)
	GroupDegraded(health GroupHealth)
	DeviceRebooted(host string)
}

// NopSink discards every signal.
type NopSink struct{}

func (NopSink) SnapshotUpdated(View)      {}
func (NopSink) CallStarted(CallRecord)    {}
func (NopSink) CallEnded(CallRecord)      {}
func (NopSink) GroupDegraded(GroupHealth) {}
func (NopSink) DeviceRebooted(string)     {}

// MultiSink fans signals out to several sinks in order.
type MultiSink []EventSink

func (m MultiSink) SnapshotUpdated(view View) {
	for _, s := range m {
		s.SnapshotUpdated(view)
	}
}

func (m MultiSink) CallStarted(call CallRecord) {
	for _, s := range m {
		s.CallStarted(call)
	}
}

func (m MultiSink) CallEnded(call CallRecord) {
	for _, s := range m {
		s.CallEnded(call)
	}
}

func (m MultiSink) GroupDegraded(health GroupHealth) {
	for _, s := range m {
		s.GroupDegraded(health)
	}
}

func (m MultiSink) DeviceRebooted(host string) {
	for _, s := range m {
		s.DeviceRebooted(host)
	}
}

// Options tune the poller.
type Options struct {
	PollInterval    time.Duration
	ControlCooldown time.Duration
	RebootGrace     time.Duration
	GroupTimeout    time.Duration
	Workers         int
	DisabledGroups  []string

	// Host names the device in reboot events.
	Host string

	// Journal is optional; nil disables persistence.
	Journal Journal
	// Events is optional; nil discards signals.
	Events EventSink
}

// Poller owns the monitoring snapshot of one VideoOS device and every
// operation that touches it.
type Poller struct {
	device    *videoos.Device
	scheduler *Scheduler
	governor  *Governor
	snapshot  *Snapshot
	journal   Journal
	events    EventSink
	logger    zerolog.Logger

	host         string
	pollInterval time.Duration
	rebootGrace  time.Duration

	// pollMu serializes coordinating flows: the ticker and API-forced
	// polls collapse into one fresh cycle instead of racing the governor.
	pollMu sync.Mutex

	baseMu  sync.RWMutex
	baseCtx context.Context

	// callMu guards call correlation state shared between the conference
	// group fetcher and the call operations.
	callMu     sync.Mutex
	activeConf *videoos.Conference
	identity   map[string]string
	systemName string
	activeCall *CallRecord
}

// New builds a poller for the device.
func New(device *videoos.Device, opts Options) *Poller {
	if opts.PollInterval <= 0 {
		opts.PollInterval = time.Minute
	}
	if opts.ControlCooldown <= 0 {
		opts.ControlCooldown = 5 * time.Second
	}
	if opts.RebootGrace <= 0 {
		opts.RebootGrace = 200 * time.Second
	}
	if opts.GroupTimeout <= 0 {
		opts.GroupTimeout = 15 * time.Second
	}
	events := opts.Events
	if events == nil {
		events = NopSink{}
	}

	p := &Poller{
		device:       device,
		scheduler:    NewScheduler(opts.Workers, opts.GroupTimeout, opts.DisabledGroups),
		governor:     NewGovernor(opts.ControlCooldown, opts.PollInterval, opts.RebootGrace),
		snapshot:     NewSnapshot(),
		journal:      opts.Journal,
		events:       events,
		logger:       logging.WithComponent("poller"),
		host:         opts.Host,
		pollInterval: opts.PollInterval,
		rebootGrace:  opts.RebootGrace,
		baseCtx:      context.Background(),
		identity:     make(map[string]string),
	}
	p.scheduler.OnDegraded(func(h GroupHealth) { p.events.GroupDegraded(h) })
	return p
}

// Poll produces the current monitoring view. Within a cooldown window it
// serves the cached snapshot without touching the device; otherwise it runs
// a fresh cycle. A fresh cycle fails only when no session can be
// established; individual group failures leave their previous values in
// place and surface through group health instead.
func (p *Poller) Poll(ctx context.Context) (View, error) {
	p.pollMu.Lock()
	defer p.pollMu.Unlock()

	start := time.Now()

	if cached, reason := p.governor.ShouldServeCached(p.guard().LastReboot()); cached {
		metrics.RecordPollCycle("cached", time.Since(start))
		p.logger.Debug().Str("reason", reason).Msg("Serving cached snapshot")
		return p.snapshot.View(), nil
	}

	if err := p.guard().EnsureSession(ctx); err != nil {
		metrics.RecordPollCycle("failed", time.Since(start))
		return View{}, fmt.Errorf("poll: %w", err)
	}

	taskCtx := p.taskContext()
	var waits []<-chan struct{}
	for _, g := range p.groups() {
		done, started := p.scheduler.Schedule(taskCtx, g.name, func(ctx context.Context) error {
			values, err := g.fetch(ctx)
			if err != nil {
				return err
			}
			if values.props != nil {
				p.snapshot.MergeGroup(g.name, values.props)
			}
			if values.controls != nil {
				p.snapshot.SetControls(values.controls)
			}
			return nil
		})
		if started {
			waits = append(waits, done)
		}
	}
	p.waitTasks(ctx, waits)

	if err := p.refreshCallView(ctx); err != nil {
		p.logger.Warn().Err(err).Msg("Call view refresh failed")
	}

	p.governor.NoteFullPoll()
	view := p.snapshot.View()
	metrics.RecordPollCycle("fresh", time.Since(start))
	metrics.SnapshotKeys.Set(float64(len(view.Properties)))
	if view.InCall {
		metrics.InCall.Set(1)
	} else {
		metrics.InCall.Set(0)
	}

	p.persistSnapshot(view)
	p.events.SnapshotUpdated(view)
	p.logger.Debug().
		Int("keys", len(view.Properties)).
		Bool("in_call", view.InCall).
		Dur("elapsed", time.Since(start)).
		Msg("Poll cycle complete")
	return view, nil
}

// Callers can distinguish a bad request from a device failure: these two
// mean the caller sent something the agent will never accept.
var (
	ErrUnknownControl  = errors.New("unknown control")
	ErrBadControlValue = errors.New("bad control value")
)

// Control applies one control write and reflects it into the cached
// snapshot, so polls inside the control cooldown serve the written value.
func (p *Poller) Control(ctx context.Context, name, value string) error {
	var (
		normalized string
		err        error
	)
	switch name {
	case ControlMuteMicrophones:
		muted, perr := strconv.ParseBool(value)
		if perr != nil {
			return fmt.Errorf("%w: %s wants a boolean, got %q", ErrBadControlValue, name, value)
		}
		err = p.device.SetAudioMute(ctx, muted)
		normalized = strconv.FormatBool(muted)

	case ControlMuteLocalVideo:
		muted, perr := strconv.ParseBool(value)
		if perr != nil {
			return fmt.Errorf("%w: %s wants a boolean, got %q", ErrBadControlValue, name, value)
		}
		err = p.device.SetVideoMute(ctx, muted)
		normalized = strconv.FormatBool(muted)

	case ControlAudioVolume:
		level, perr := strconv.ParseFloat(value, 64)
		if perr != nil {
			return fmt.Errorf("%w: %s wants a number, got %q", ErrBadControlValue, name, value)
		}
		volume := int(math.Round(level))
		if volume < 0 {
			volume = 0
		}
		if volume > 100 {
			volume = 100
		}
		err = p.device.SetVolume(ctx, volume)
		normalized = strconv.Itoa(volume)

	case ControlReboot:
		err = p.device.Reboot(ctx)

	default:
		return fmt.Errorf("%w %q", ErrUnknownControl, name)
	}

	metrics.RecordControlWrite(name, err)
	if err != nil {
		return fmt.Errorf("control %s: %w", name, err)
	}

	p.governor.NoteControlWrite()
	if name == ControlReboot {
		p.events.DeviceRebooted(p.host)
		p.logger.Info().Str("host", p.host).Msg("Device reboot commanded")
		return nil
	}
	p.snapshot.UpdateControl(name, normalized)
	p.logger.Info().
		Str("control", name).
		Str("value", normalized).
		Msg("Control write applied")
	return nil
}

// Dial places an outbound call and mints its correlation id.
func (p *Poller) Dial(ctx context.Context, spec videoos.DialSpec) (string, error) {
	conference, err := p.device.Dial(ctx, spec)
	metrics.RecordCallOperation("dial", err)
	if err != nil {
		return "", err
	}

	connectionID := 0
	if conn := conference.FirstConnection(); conn != nil {
		connectionID = conn.ID
	}

	p.callMu.Lock()
	callID := videoos.BuildCallID(conference.ID, connectionID, conference.StartTime, p.dialStringLocked())
	record := CallRecord{
		CallID:       callID,
		ConferenceID: conference.ID,
		ConnectionID: connectionID,
		Address:      spec.Address,
		Protocol:     spec.Protocol,
		StartTime:    conference.StartTime,
		StartedAt:    time.Now(),
	}
	p.activeCall = &record
	confCopy := *conference
	p.activeConf = &confCopy
	p.callMu.Unlock()

	p.persistCall(&record)
	p.events.CallStarted(record)
	p.logger.Info().
		Str("call_id", callID).
		Str("address", spec.Address).
		Int("conference", conference.ID).
		Msg("Call placed")
	return callID, nil
}

// Hangup disconnects the call the id resolves to, or every active
// conference when the id is empty. A call that already ended device-side
// counts as success.
func (p *Poller) Hangup(ctx context.Context, callID string) error {
	var err error
	if callID == "" {
		err = p.device.HangupAll(ctx)
	} else {
		conferenceID, _, ok := videoos.ParseCallID(callID)
		if !ok {
			metrics.RecordCallOperation("hangup", ErrMalformedCallID)
			return fmt.Errorf("%w: %q", ErrMalformedCallID, callID)
		}
		err = p.device.Hangup(ctx, conferenceID)
	}
	metrics.RecordCallOperation("hangup", err)
	if err != nil {
		return fmt.Errorf("hangup: %w", err)
	}

	if ended := p.clearCall(callID); ended != nil {
		p.persistCallEnd()
		p.events.CallEnded(*ended)
		p.snapshot.SetCall(false, nil)
	}
	p.logger.Info().Str("call_id", callID).Msg("Hangup complete")
	return nil
}

// ErrMalformedCallID rejects ids that did not come from this agent's
// BuildCallID format.
var ErrMalformedCallID = errors.New("malformed call id")

// CallStatus resolves a minted call id against the device. An id whose
// conference is gone answers Disconnected: the call ending is an outcome,
// not an error. An empty id reports the first active conference, if any.
func (p *Poller) CallStatus(ctx context.Context, callID string) (CallStatus, error) {
	if callID == "" {
		conferences, err := p.device.Conferences(ctx)
		metrics.RecordCallOperation("status", err)
		if err != nil {
			return CallStatus{}, err
		}
		for i := range conferences {
			conference := &conferences[i]
			if !conference.Active() {
				continue
			}
			connectionID := 0
			if conn := conference.FirstConnection(); conn != nil {
				connectionID = conn.ID
			}
			p.callMu.Lock()
			id := videoos.BuildCallID(conference.ID, connectionID, conference.StartTime, p.dialStringLocked())
			p.callMu.Unlock()
			return CallStatus{ID: id, State: CallStateConnected}, nil
		}
		return CallStatus{State: CallStateDisconnected}, nil
	}

	conferenceID, connectionID, ok := videoos.ParseCallID(callID)
	if !ok {
		metrics.RecordCallOperation("status", ErrMalformedCallID)
		return CallStatus{}, fmt.Errorf("%w: %q", ErrMalformedCallID, callID)
	}

	conference, err := p.device.ConferenceByID(ctx, conferenceID)
	if err != nil {
		if errors.Is(err, videoos.ErrResourceGone) {
			metrics.RecordCallOperation("status", nil)
			return CallStatus{ID: callID, State: CallStateDisconnected}, nil
		}
		metrics.RecordCallOperation("status", err)
		return CallStatus{}, err
	}

	if _, rerr := videoos.ResolveConnection(conference, connectionID); rerr != nil {
		// Stale connection ids degrade to the first leg; the call itself
		// is still answerable.
		p.logger.Debug().Err(rerr).Str("call_id", callID).Msg("Connection resolution degraded")
	}

	metrics.RecordCallOperation("status", nil)
	state := CallStateDisconnected
	if conference.Active() {
		state = CallStateConnected
	}
	return CallStatus{ID: callID, State: state}, nil
}

// Snapshot returns the current view without touching the device.
func (p *Poller) Snapshot() View {
	return p.snapshot.View()
}

// Groups returns the per-group health records.
func (p *Poller) Groups() []GroupHealth {
	return p.scheduler.Health()
}

// Ready reports whether the poller can answer snapshot reads: it holds data
// from a previous cycle or an authenticated session to fetch some with.
func (p *Poller) Ready() bool {
	return p.snapshot.Len() > 0 || p.guard().Authenticated()
}

// ActiveCall returns the tracked call record, if a call is in progress.
func (p *Poller) ActiveCall() (CallRecord, bool) {
	p.callMu.Lock()
	defer p.callMu.Unlock()
	if p.activeCall == nil {
		return CallRecord{}, false
	}
	return *p.activeCall, true
}

// Restore replays journaled state into the snapshot and call tracker. Call
// it once, before the serve loop starts.
func (p *Poller) Restore() {
	if p.journal == nil {
		return
	}
	if view, ok, err := p.journal.LoadSnapshot(); err != nil {
		p.logger.Warn().Err(err).Msg("Snapshot replay failed")
	} else if ok {
		p.snapshot.Restore(view)
		p.logger.Info().
			Int("keys", len(view.Properties)).
			Time("collected_at", view.CollectedAt).
			Msg("Snapshot restored from journal")
	}
	if record, ok, err := p.journal.LoadCall(); err != nil {
		p.logger.Warn().Err(err).Msg("Call record replay failed")
	} else if ok {
		p.callMu.Lock()
		p.activeCall = &record
		p.callMu.Unlock()
		p.logger.Info().Str("call_id", record.CallID).Msg("Active call restored from journal")
	}
}

// Serve runs the poll loop until ctx is canceled. It satisfies the
// supervisor's service contract.
func (p *Poller) Serve(ctx context.Context) error {
	p.setBaseContext(ctx)
	defer p.setBaseContext(context.Background())

	p.logger.Info().Dur("interval", p.pollInterval).Msg("Poller started")
	ticker := time.NewTicker(p.pollInterval)
	defer ticker.Stop()

	p.runCycle(ctx)
	for {
		select {
		case <-ctx.Done():
			p.logger.Info().Msg("Poller stopped")
			return ctx.Err()
		case <-ticker.C:
			p.runCycle(ctx)
		}
	}
}

func (p *Poller) String() string { return "poller" }

func (p *Poller) runCycle(ctx context.Context) {
	if _, err := p.Poll(ctx); err != nil {
		p.logger.Error().Err(err).Msg("Poll cycle failed")
	}
}

// refreshCallView rebuilds the call-level slice of the snapshot from the
// conference the group fetcher recorded this cycle.
func (p *Poller) refreshCallView(ctx context.Context) error {
	conference := p.currentConference()
	if conference == nil || !conference.Active() {
		p.snapshot.SetCall(false, nil)
		if ended := p.clearCall(""); ended != nil {
			p.persistCallEnd()
			p.events.CallEnded(*ended)
			p.logger.Info().Str("call_id", ended.CallID).Msg("Call ended")
		}
		return nil
	}

	entries, err := p.device.ConferenceMediaStats(ctx, conference.ID)
	if err != nil {
		p.snapshot.SetCall(true, nil)
		return fmt.Errorf("media stats for conference %d: %w", conference.ID, err)
	}
	stats := videoos.AggregateMediaStats(entries, p.logger)

	if shared, serr := p.device.SharedMediaStats(ctx); serr != nil {
		p.logger.Debug().Err(serr).Msg("Shared media stats unavailable")
	} else {
		stats.ApplyShared(shared)
	}

	record, started := p.trackCall(conference)
	stats.Call.CallID = record.CallID
	stats.Call.Protocol = record.Protocol
	stats.Call.RequestedCallRate = p.device.DefaultCallRate()
	p.snapshot.SetCall(true, &stats)

	if started {
		p.persistCall(&record)
		p.events.CallStarted(record)
		p.logger.Info().Str("call_id", record.CallID).Msg("Call observed")
	}
	return nil
}

// trackCall returns the record for the conference, minting one when the
// conference is new. Minting is deterministic, so an agent observing the
// same call across cycles keeps reporting the same id.
func (p *Poller) trackCall(conference *videoos.Conference) (CallRecord, bool) {
	p.callMu.Lock()
	defer p.callMu.Unlock()

	if p.activeCall != nil && p.activeCall.ConferenceID == conference.ID {
		return *p.activeCall, false
	}

	connectionID := 0
	address := ""
	protocol := ""
	if conn := conference.FirstConnection(); conn != nil {
		connectionID = conn.ID
		address = conn.Address
		protocol = conn.CallType
	}
	record := CallRecord{
		CallID:       videoos.BuildCallID(conference.ID, connectionID, conference.StartTime, p.dialStringLocked()),
		ConferenceID: conference.ID,
		ConnectionID: connectionID,
		Address:      address,
		Protocol:     protocol,
		StartTime:    conference.StartTime,
		StartedAt:    time.Now(),
	}
	p.activeCall = &record
	return record, true
}

// clearCall drops the tracked call and returns it. A non-empty callID only
// clears a matching record; empty clears unconditionally.
func (p *Poller) clearCall(callID string) *CallRecord {
	p.callMu.Lock()
	defer p.callMu.Unlock()
	if p.activeCall == nil {
		return nil
	}
	if callID != "" && p.activeCall.CallID != callID {
		if conferenceID, _, ok := videoos.ParseCallID(callID); !ok || conferenceID != p.activeCall.ConferenceID {
			return nil
		}
	}
	ended := *p.activeCall
	p.activeCall = nil
	p.activeConf = nil
	return &ended
}

func (p *Poller) currentConference() *videoos.Conference {
	p.callMu.Lock()
	defer p.callMu.Unlock()
	if p.activeConf == nil {
		return nil
	}
	conf := *p.activeConf
	return &conf
}

// noteConference records the conference the current cycle observed; nil
// records that none exists.
func (p *Poller) noteConference(conference *videoos.Conference) {
	p.callMu.Lock()
	defer p.callMu.Unlock()
	if conference == nil {
		p.activeConf = nil
		return
	}
	conf := *conference
	p.activeConf = &conf
}

func (p *Poller) noteIdentity(values map[string]string) {
	p.callMu.Lock()
	defer p.callMu.Unlock()
	for key, value := range values {
		p.identity[key] = value
	}
}

func (p *Poller) noteSystemName(name string) {
	if name == "" {
		return
	}
	p.callMu.Lock()
	defer p.callMu.Unlock()
	p.systemName = name
}

// dialStringLocked resolves the device's dialable identity. Callers hold
// callMu.
func (p *Poller) dialStringLocked() string {
	return videoos.ResolveDialString(p.identity, p.systemName)
}

func (p *Poller) guard() *videoos.SessionGuard {
	return p.device.Guard()
}

// taskContext is the context group tasks run on: the serve loop's context
// when the loop is running, so shutdown cancels in-flight fetches, and a
// background context otherwise, so an API-forced poll's tasks outlive the
// request and still merge.
func (p *Poller) taskContext() context.Context {
	p.baseMu.RLock()
	defer p.baseMu.RUnlock()
	return p.baseCtx
}

func (p *Poller) setBaseContext(ctx context.Context) {
	p.baseMu.Lock()
	defer p.baseMu.Unlock()
	p.baseCtx = ctx
}

// waitTasks blocks until every task this cycle started finishes, or the
// caller's context expires. Tasks running past the deadline still merge
// when they complete; the cycle just stops waiting for them.
func (p *Poller) waitTasks(ctx context.Context, waits []<-chan struct{}) {
	for _, done := range waits {
		select {
		case <-done:
		case <-ctx.Done():
			return
		}
	}
}

func (p *Poller) persistSnapshot(view View) {
	if p.journal == nil {
		return
	}
	err := p.journal.SaveSnapshot(view)
	metrics.RecordJournalWrite("snapshot", err)
	if err != nil {
		p.logger.Warn().Err(err).Msg("Snapshot journal write failed")
	}
}

func (p *Poller) persistCall(record *CallRecord) {
	if p.journal == nil {
		return
	}
	err := p.journal.SaveCall(*record)
	metrics.RecordJournalWrite("call", err)
	if err != nil {
		p.logger.Warn().Err(err).Msg("Call journal write failed")
	}
}

func (p *Poller) persistCallEnd() {
	if p.journal == nil {
		return
	}
	err := p.journal.ClearCall()
	metrics.RecordJournalWrite("call-clear", err)
	if err != nil {
		p.logger.Warn().Err(err).Msg("Call journal clear failed")
	}
}
