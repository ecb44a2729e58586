// Package hub fans room events out to WebSocket subscribers. Topics carry
// room-wide broadcasts; every connection additionally owns a set of private
// queues (errors, history snapshots, sync corrections, WebRTC signals).
package hub

import (
	"fmt"
	"sync"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// Destinations delivered only to a single connection.
const (
	QueueSessionInfo     = "/queue/session.info"
	QueuePlaylistHistory = "/queue/playlist.history"
	QueueChatHistory     = "/queue/chat.history"
	QueueSyncCorrection  = "/queue/sync.correction"
	QueueWebRTCSignal    = "/queue/webrtc.signal"
	QueueErrors          = "/queue/errors"
)

// RoomTopic is the room-wide channel for state snapshots and player actions.
func RoomTopic(code string) string { return fmt.Sprintf("/topic/room.%s", code) }

// ChatTopic carries chat messages and reaction updates.
func ChatTopic(code string) string { return fmt.Sprintf("/topic/room.%s.chat", code) }

// PlaylistTopic carries playlist snapshots.
func PlaylistTopic(code string) string { return fmt.Sprintf("/topic/room.%s.playlist", code) }

// CameraTopic carries camera on/off events.
func CameraTopic(code string) string { return fmt.Sprintf("/topic/room.%s.camera-state", code) }

// Envelope is the wire format for server-to-client messages.
type Envelope struct {
	Destination string `json:"destination"`
	Payload     any    `json:"payload"`
}

// Client is one registered WebSocket connection. The write pump in the WS
// handler drains Send; the hub never writes to Conn directly.
type Client struct {
	ConnectionID string
	Conn         *websocket.Conn
	Send         chan Envelope
}

// Hub maps topics to subscribed clients and connection ids to clients.
type Hub struct {
	mu      sync.RWMutex
	topics  map[string]map[*Client]struct{}
	clients map[string]*Client
	log     *zap.Logger
}

// NewHub creates an empty hub.
func NewHub(log *zap.Logger) *Hub {
	return &Hub{
		topics:  make(map[string]map[*Client]struct{}),
		clients: make(map[string]*Client),
		log:     log,
	}
}

// Register adds a connection and returns its client plus a cleanup function.
// Cleanup unsubscribes the client from every topic and closes its send
// channel; it is safe to call once from the connection's defer.
func (h *Hub) Register(connectionID string, conn *websocket.Conn) (*Client, func()) {
	c := &Client{
		ConnectionID: connectionID,
		Conn:         conn,
		Send:         make(chan Envelope, 64),
	}
	h.mu.Lock()
	h.clients[connectionID] = c
	h.mu.Unlock()

	h.log.Info("connection registered", zap.String("connection_id", connectionID))

	cleanup := func() {
		h.mu.Lock()
		if h.clients[connectionID] == c {
			delete(h.clients, connectionID)
		}
		for topic, subs := range h.topics {
			delete(subs, c)
			if len(subs) == 0 {
				delete(h.topics, topic)
			}
		}
		h.mu.Unlock()
		close(c.Send)
		h.log.Info("connection unregistered", zap.String("connection_id", connectionID))
	}
	return c, cleanup
}

// Subscribe adds the connection to the given topics. Unknown connection ids
// are ignored (the connection already went away).
func (h *Hub) Subscribe(connectionID string, topics ...string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	c, ok := h.clients[connectionID]
	if !ok {
		return
	}
	for _, topic := range topics {
		if h.topics[topic] == nil {
			h.topics[topic] = make(map[*Client]struct{})
		}
		h.topics[topic][c] = struct{}{}
	}
}

// UnsubscribeAll removes the connection from every topic but keeps it
// registered, so it can join another room over the same socket.
func (h *Hub) UnsubscribeAll(connectionID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	c, ok := h.clients[connectionID]
	if !ok {
		return
	}
	for topic, subs := range h.topics {
		delete(subs, c)
		if len(subs) == 0 {
			delete(h.topics, topic)
		}
	}
}

// Broadcast sends payload to every subscriber of the topic. A full send
// buffer drops the message for that client only.
func (h *Hub) Broadcast(topic string, payload any) {
	h.mu.RLock()
	subs := h.topics[topic]
	clients := make([]*Client, 0, len(subs))
	for c := range subs {
		clients = append(clients, c)
	}
	h.mu.RUnlock()

	env := Envelope{Destination: topic, Payload: payload}
	for _, c := range clients {
		select {
		case c.Send <- env:
		default:
			h.log.Warn("send buffer full, dropping broadcast",
				zap.String("connection_id", c.ConnectionID),
				zap.String("topic", topic))
		}
	}
}

// SendToConnection delivers payload on one connection's private queue.
// Returns false if the connection is not registered; callers that relay
// signals treat that as a silent drop.
func (h *Hub) SendToConnection(connectionID, destination string, payload any) bool {
	h.mu.RLock()
	c, ok := h.clients[connectionID]
	h.mu.RUnlock()
	if !ok {
		return false
	}
	select {
	case c.Send <- Envelope{Destination: destination, Payload: payload}:
		return true
	default:
		h.log.Warn("send buffer full, dropping message",
			zap.String("connection_id", connectionID),
			zap.String("destination", destination))
		return false
	}
}

// ConnectionCount returns the number of registered connections (for health
// reporting).
func (h *Hub) ConnectionCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}
