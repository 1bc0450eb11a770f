// Poly VideoOS Agent - Resilient Monitoring and Control for Poly Video Devices
// Copyright 2026 AVI-SPL, Inc.
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/AVISPL/dal-codecs-singlecodecs-polycom-videoos

// Package websocket pushes live agent state to connected dashboards: a
// fresh snapshot after every poll, call connect/disconnect transitions,
// group health degradations, and reboot notices.
//
// The Hub implements poller.EventSink, so it is fed in-process by the
// poller rather than through the event bus; the stream works even when
// NATS publishing is disabled.
package websocket

import (
	"context"
	"sort"
	"sync"

	"github.com/AVISPL/dal-codecs-singlecodecs-polycom-videoos/internal/logging"
	"github.com/AVISPL/dal-codecs-singlecodecs-polycom-videoos/internal/poller"
)

// Message types pushed over the stream.
const (
	MessageTypeSnapshot      = "snapshot_update"
	MessageTypeCallState     = "call_state"
	MessageTypeGroupDegraded = "group_degraded"
	MessageTypeReboot        = "device_rebooted"
	MessageTypePing          = "ping"
	MessageTypePong          = "pong"
)

// Message is one frame on the stream.
type Message struct {
	Type string      `json:"type"`
	Data interface{} `json:"data,omitempty"`
}

// CallStateData carries a call transition.
type CallStateData struct {
	State poller.CallState  `json:"state"`
	Call  poller.CallRecord `json:"call"`
}

// RebootData names the device that was commanded to reboot.
type RebootData struct {
	Host string `json:"host"`
}

// Hub tracks connected clients and fans messages out to them. A client
// that cannot keep up is dropped rather than allowed to stall the rest.
type Hub struct {
	clients    map[*Client]bool
	broadcast  chan Message
	Register   chan *Client
	Unregister chan *Client
	mu         sync.RWMutex
}

// NewHub returns an idle hub; run it with Serve.
func NewHub() *Hub {
	return &Hub{
		clients:    make(map[*Client]bool),
		broadcast:  make(chan Message, 256),
		Register:   make(chan *Client),
		Unregister: make(chan *Client),
	}
}

// Serve runs the hub loop until ctx is canceled, then closes every
// client. Lifecycle events are drained before broadcasts so client
// state is settled when a message fans out.
func (h *Hub) Serve(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			h.shutdown(ctx)
			return ctx.Err()
		default:
		}

		select {
		case client := <-h.Register:
			h.add(client)
			continue
		case client := <-h.Unregister:
			h.remove(client)
			continue
		default:
		}

		select {
		case <-ctx.Done():
			h.shutdown(ctx)
			return ctx.Err()
		case client := <-h.Register:
			h.add(client)
		case client := <-h.Unregister:
			h.remove(client)
		case message := <-h.broadcast:
			h.fanOut(message)
		}
	}
}

// String names the hub for supervisor logs.
func (h *Hub) String() string { return "websocket-hub" }

func (h *Hub) add(client *Client) {
	h.mu.Lock()
	h.clients[client] = true
	total := len(h.clients)
	h.mu.Unlock()
	logging.Info().Int("total_clients", total).Msg("Stream client connected")
}

func (h *Hub) remove(client *Client) {
	h.mu.Lock()
	if _, ok := h.clients[client]; ok {
		delete(h.clients, client)
		close(client.send)
	}
	total := len(h.clients)
	h.mu.Unlock()
	logging.Info().Int("total_clients", total).Msg("Stream client disconnected")
}

// fanOut delivers to clients in id order so tests and log traces see a
// stable delivery sequence.
func (h *Hub) fanOut(message Message) {
	h.mu.Lock()
	defer h.mu.Unlock()

	clients := make([]*Client, 0, len(h.clients))
	for client := range h.clients {
		clients = append(clients, client)
	}
	sort.Slice(clients, func(i, j int) bool { return clients[i].id < clients[j].id })

	var drop []*Client
	for _, client := range clients {
		select {
		case client.send <- message:
		default:
			drop = append(drop, client)
		}
	}
	for _, client := range drop {
		close(client.send)
		delete(h.clients, client)
		logging.Warn().Msg("Stream client dropped: send buffer full")
	}
}

func (h *Hub) shutdown(ctx context.Context) {
	h.mu.Lock()
	count := len(h.clients)
	clients := make([]*Client, 0, count)
	for client := range h.clients {
		clients = append(clients, client)
	}
	sort.Slice(clients, func(i, j int) bool { return clients[i].id < clients[j].id })
	for _, client := range clients {
		close(client.send)
		delete(h.clients, client)
	}
	h.mu.Unlock()

	logging.Info().
		Str("component", "websocket-hub").
		AnErr("reason", ctx.Err()).
		Int("clients_closed", count).
		Msg("Stream hub stopped")
}

// ClientCount reports the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// publish enqueues a broadcast without blocking the caller; a full
// queue drops the message, never stalls the poller.
func (h *Hub) publish(msg Message) {
	select {
	case h.broadcast <- msg:
	default:
		logging.Warn().Str("message_type", msg.Type).Msg("Stream queue full, message dropped")
	}
}

// SnapshotUpdated pushes the merged view produced by a poll cycle.
func (h *Hub) SnapshotUpdated(view poller.View) {
	h.publish(Message{Type: MessageTypeSnapshot, Data: view})
}

// CallStarted pushes a connected call transition.
func (h *Hub) CallStarted(record poller.CallRecord) {
	h.publish(Message{
		Type: MessageTypeCallState,
		Data: CallStateData{State: poller.CallStateConnected, Call: record},
	})
}

// CallEnded pushes a disconnected call transition.
func (h *Hub) CallEnded(record poller.CallRecord) {
	h.publish(Message{
		Type: MessageTypeCallState,
		Data: CallStateData{State: poller.CallStateDisconnected, Call: record},
	})
}

// GroupDegraded pushes a poll group crossing its failure threshold.
func (h *Hub) GroupDegraded(group poller.GroupHealth) {
	h.publish(Message{Type: MessageTypeGroupDegraded, Data: group})
}

// DeviceRebooted pushes a reboot notice.
func (h *Hub) DeviceRebooted(host string) {
	h.publish(Message{Type: MessageTypeReboot, Data: RebootData{Host: host}})
}

var _ poller.EventSink = (*Hub)(nil)
