// Vigil - Plex Media Server Monitoring and Playback Analytics
// Copyright 2026 M. Pellar (mpellar)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/mpellar/vigil

package websocket

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/goccy/go-json"

	"github.com/mpellar/vigil/internal/logging"
	"github.com/mpellar/vigil/internal/metrics"
	"github.com/mpellar/vigil/internal/models"
)

// Message types pushed to dashboard clients. Clients only ever send
// ping; everything else flows server to client.
const (
	MessageTypeActivity      = "activity"
	MessageTypeTransition    = "transition"
	MessageTypeRecentlyAdded = "recently_added"
	MessageTypeNotification  = "notification"
	MessageTypePing          = "ping"
	MessageTypePong          = "pong"
)

// broadcastBuffer bounds the fan-out queue. Messages beyond it are
// dropped, never queued unbounded.
const broadcastBuffer = 256

// ShutdownReason labels why the hub stopped. The values appear in log
// output and are parsed by log filters; treat them as stable.
type ShutdownReason string

const (
	ShutdownReasonContextCanceled ShutdownReason = "context_canceled"
	ShutdownReasonContextDeadline ShutdownReason = "context_deadline"
)

// Message is the framing for everything sent over a dashboard socket.
type Message struct {
	Type string      `json:"type"`
	Data interface{} `json:"data"`
}

// Hub tracks connected clients and fans broadcasts out to them. One hub
// serves the whole process: the monitor pushes activity snapshots and
// session transitions, the recently-added watcher pushes settled
// batches, and the notifier pushes delivery outcomes.
type Hub struct {
	clients    map[*Client]bool
	broadcast  chan Message
	Register   chan *Client
	Unregister chan *Client
	mu         sync.RWMutex
}

// NewHub creates a hub. Start it with RunWithContext before registering
// clients.
func NewHub() *Hub {
	return &Hub{
		broadcast:  make(chan Message, broadcastBuffer),
		Register:   make(chan *Client),
		Unregister: make(chan *Client),
		clients:    make(map[*Client]bool),
	}
}

// RunWithContext runs the hub loop until the context is canceled, then
// closes every client and returns ctx.Err(). Designed to run under the
// supervision tree; a restart starts with an empty client registry.
//
// Go's select picks randomly among ready cases, so the loop stages its
// selects to impose an order: shutdown first, then client lifecycle,
// then broadcasts. A client that unregisters concurrently with a
// pending broadcast is removed before the message fans out.
func (h *Hub) RunWithContext(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			h.shutdown(ctx)
			return ctx.Err()
		default:
		}

		select {
		case client := <-h.Register:
			h.addClient(client)
			continue
		case client := <-h.Unregister:
			h.removeClient(client)
			continue
		default:
		}

		select {
		case <-ctx.Done():
			h.shutdown(ctx)
			return ctx.Err()
		case client := <-h.Register:
			h.addClient(client)
		case client := <-h.Unregister:
			h.removeClient(client)
		case message := <-h.broadcast:
			h.broadcastToClients(message)
		}
	}
}

func (h *Hub) addClient(client *Client) {
	h.mu.Lock()
	h.clients[client] = true
	total := len(h.clients)
	h.mu.Unlock()

	metrics.WSConnections.Inc()
	logging.Info().Int("total_clients", total).Msg("WebSocket client connected")
}

func (h *Hub) removeClient(client *Client) {
	h.mu.Lock()
	_, known := h.clients[client]
	if known {
		delete(h.clients, client)
		close(client.send)
	}
	total := len(h.clients)
	h.mu.Unlock()

	if known {
		metrics.WSConnections.Dec()
		logging.Info().Int("total_clients", total).Msg("WebSocket client disconnected")
	}
}

// shutdown closes every client and logs the stop. Cancellation is the
// normal stop path, so ctx.Err() is reported as a reason field rather
// than an error.
func (h *Hub) shutdown(ctx context.Context) {
	closed := h.closeAllClients()
	logging.Info().
		Str("component", "websocket-hub").
		Str("reason", string(getShutdownReason(ctx))).
		Int("clients_closed", closed).
		Msg("WebSocket hub stopped")
}

// getShutdownReason maps the context error to a stable log label.
func getShutdownReason(ctx context.Context) ShutdownReason {
	if ctx.Err() == context.DeadlineExceeded {
		return ShutdownReasonContextDeadline
	}
	return ShutdownReasonContextCanceled
}

// sortedClients snapshots the registry ordered by client ID. Map
// iteration order changes run to run; fan-out and shutdown walk clients
// in registration order so delivery order is reproducible.
func sortedClients(clients map[*Client]bool) []*Client {
	out := make([]*Client, 0, len(clients))
	for client := range clients {
		out = append(out, client)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].id < out[j].id })
	return out
}

// broadcastToClients fans one message out to every client. A client
// whose send buffer is full has stopped draining and is dropped rather
// than allowed to stall the hub.
func (h *Hub) broadcastToClients(message Message) {
	h.mu.Lock()
	defer h.mu.Unlock()

	var dropped []*Client
	for _, client := range sortedClients(h.clients) {
		select {
		case client.send <- message:
			metrics.WSMessagesSent.Inc()
		default:
			dropped = append(dropped, client)
		}
	}

	for _, client := range dropped {
		close(client.send)
		delete(h.clients, client)
		metrics.WSConnections.Dec()
		metrics.WSErrors.WithLabelValues("slow_client").Inc()
		logging.Warn().Uint64("client_id", client.id).Msg("Dropped slow WebSocket client")
	}
}

// closeAllClients closes client send channels in ID order and empties
// the registry. Returns the number of clients closed.
func (h *Hub) closeAllClients() int {
	h.mu.Lock()
	defer h.mu.Unlock()

	clients := sortedClients(h.clients)
	for _, client := range clients {
		close(client.send)
		delete(h.clients, client)
	}
	if len(clients) > 0 {
		metrics.WSConnections.Sub(float64(len(clients)))
	}
	return len(clients)
}

// GetClientCount returns the number of connected clients.
func (h *Hub) GetClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// publish queues a message for fan-out without blocking the caller.
// When the queue is full the message is dropped; live updates are
// advisory and clients resync from the API on reconnect.
func (h *Hub) publish(message Message) {
	select {
	case h.broadcast <- message:
	default:
		metrics.WSErrors.WithLabelValues("channel_full").Inc()
		logging.Warn().Str("message_type", message.Type).Msg("Broadcast channel full, dropping message")
	}
}

// BroadcastActivity pushes the snapshot taken by the monitor's poll
// cycle. Fires every poll interval, so it carries no extra logging.
func (h *Hub) BroadcastActivity(activity models.Activity) {
	h.publish(Message{Type: MessageTypeActivity, Data: activity})
}

// TransitionData is the payload for transition messages.
type TransitionData struct {
	Kind      string               `json:"kind"`
	Session   models.ActiveSession `json:"session"`
	Timestamp string               `json:"timestamp"`
}

// BroadcastTransition pushes one session lifecycle change (play, pause,
// resume, buffer, stop, watched).
func (h *Hub) BroadcastTransition(kind string, session models.ActiveSession) {
	h.publish(Message{
		Type: MessageTypeTransition,
		Data: TransitionData{
			Kind:      kind,
			Session:   session,
			Timestamp: time.Now().UTC().Format(time.RFC3339),
		},
	})
}

// RecentlyAddedData is the payload for recently_added messages.
type RecentlyAddedData struct {
	Items     []models.RecentlyAddedItem `json:"items"`
	Count     int                        `json:"count"`
	Timestamp string                     `json:"timestamp"`
}

// BroadcastRecentlyAdded pushes a settled batch from the recently-added
// watcher.
func (h *Hub) BroadcastRecentlyAdded(items []models.RecentlyAddedItem) {
	if len(items) == 0 {
		return
	}
	logging.Debug().Int("items", len(items)).Msg("Broadcasting recently added batch")
	h.publish(Message{
		Type: MessageTypeRecentlyAdded,
		Data: RecentlyAddedData{
			Items:     items,
			Count:     len(items),
			Timestamp: time.Now().UTC().Format(time.RFC3339),
		},
	})
}

// NotificationData is the payload for notification messages. The
// rendered body stays in the notify log; the live feed only shows the
// outcome.
type NotificationData struct {
	NotifierID int64  `json:"notifier_id"`
	Trigger    string `json:"trigger"`
	Subject    string `json:"subject"`
	Success    bool   `json:"success"`
	Error      string `json:"error,omitempty"`
	SentAt     string `json:"sent_at"`
}

// BroadcastNotification pushes a notification delivery outcome so the
// dashboard feed updates without polling the log.
func (h *Hub) BroadcastNotification(entry models.NotifyLogEntry) {
	h.publish(Message{
		Type: MessageTypeNotification,
		Data: NotificationData{
			NotifierID: entry.NotifierID,
			Trigger:    entry.Trigger,
			Subject:    entry.Subject,
			Success:    entry.Success,
			Error:      entry.Error,
			SentAt:     entry.SentAt.UTC().Format(time.RFC3339),
		},
	})
}

// BroadcastJSON sends an arbitrary typed payload to all clients.
func (h *Hub) BroadcastJSON(messageType string, data interface{}) {
	h.publish(Message{Type: messageType, Data: data})
}

// MarshalMessage encodes a message for the wire.
func MarshalMessage(msg Message) ([]byte, error) {
	return json.Marshal(msg)
}
