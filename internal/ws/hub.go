// Package ws is the websocket transport of the chat service. The Hub
// owns connections, room subscriptions and the per-connection
// roomID -> participantID bindings.
package ws

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/angar2/cola-chat-back/internal/chat"
	"github.com/angar2/cola-chat-back/internal/metrics"
)

// Options tunes the hub.
type Options struct {
	// AllowedOrigins lists browser origins allowed to connect. "*" allows
	// any origin. Requests without an Origin header are always allowed.
	AllowedOrigins []string
	SendBuffer     int
	MaxMessageSize int64
	WriteWait      time.Duration
	PongWait       time.Duration
	// IOTimeout bounds the handling of one inbound frame.
	IOTimeout time.Duration
}

func (o *Options) defaults() {
	if o.SendBuffer <= 0 {
		o.SendBuffer = 64
	}
	if o.MaxMessageSize <= 0 {
		o.MaxMessageSize = 8 * 1024
	}
	if o.WriteWait <= 0 {
		o.WriteWait = 10 * time.Second
	}
	if o.PongWait <= 0 {
		o.PongWait = 60 * time.Second
	}
	if o.IOTimeout <= 0 {
		o.IOTimeout = 10 * time.Second
	}
}

// Hub implements chat.Gateway over websocket connections.
type Hub struct {
	opts     Options
	upgrader websocket.Upgrader
	logger   zerolog.Logger

	mu    sync.RWMutex
	conns map[string]*Conn
	rooms map[string]map[string]*Conn // roomID -> connID -> conn
}

var _ chat.Gateway = (*Hub)(nil)

// NewHub creates a hub.
func NewHub(opts Options, logger zerolog.Logger) *Hub {
	opts.defaults()
	h := &Hub{
		opts:   opts,
		logger: logger.With().Str("component", "ws").Logger(),
		conns:  make(map[string]*Conn),
		rooms:  make(map[string]map[string]*Conn),
	}
	h.upgrader = createUpgrader(opts.AllowedOrigins)
	return h
}

// createUpgrader creates a websocket upgrader with the given allowed origins.
func createUpgrader(allowedOrigins []string) websocket.Upgrader {
	allowedMap := make(map[string]bool)
	for _, origin := range allowedOrigins {
		allowedMap[origin] = true
	}

	return websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			return origin == "" || allowedMap["*"] || allowedMap[origin]
		},
	}
}

func (h *Hub) register(c *Conn) {
	h.mu.Lock()
	h.conns[c.id] = c
	total := len(h.conns)
	h.mu.Unlock()
	metrics.WebSocketConnections.Inc()
	h.logger.Debug().Str("conn_id", c.id).Int("total", total).Msg("connection opened")
}

func (h *Hub) unregister(c *Conn) {
	h.mu.Lock()
	delete(h.conns, c.id)
	for roomID := range c.rooms {
		h.unsubscribeLocked(roomID, c.id)
	}
	c.rooms = nil
	total := len(h.conns)
	h.mu.Unlock()
	metrics.WebSocketConnections.Dec()
	h.logger.Debug().Str("conn_id", c.id).Int("total", total).Msg("connection closed")
}

func (h *Hub) unsubscribeLocked(roomID, connID string) {
	group := h.rooms[roomID]
	delete(group, connID)
	if len(group) == 0 {
		delete(h.rooms, roomID)
	}
}

// Attach binds connID to participantID in roomID and subscribes it.
func (h *Hub) Attach(connID, roomID, participantID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	c := h.conns[connID]
	if c == nil {
		return
	}
	c.rooms[roomID] = participantID
	group := h.rooms[roomID]
	if group == nil {
		group = make(map[string]*Conn)
		h.rooms[roomID] = group
	}
	group[connID] = c
}

// Detach removes connID's binding in roomID.
func (h *Hub) Detach(connID, roomID string) (string, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	c := h.conns[connID]
	if c == nil {
		return "", false
	}
	participantID, ok := c.rooms[roomID]
	if !ok {
		return "", false
	}
	delete(c.rooms, roomID)
	h.unsubscribeLocked(roomID, connID)
	return participantID, true
}

// ParticipantOf resolves the participant connID acts as in roomID.
func (h *Hub) ParticipantOf(connID, roomID string) (string, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	c := h.conns[connID]
	if c == nil {
		return "", false
	}
	participantID, ok := c.rooms[roomID]
	return participantID, ok
}

// Rooms lists the rooms connID is bound to.
func (h *Hub) Rooms(connID string) []string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	c := h.conns[connID]
	if c == nil {
		return nil
	}
	rooms := make([]string, 0, len(c.rooms))
	for roomID := range c.rooms {
		rooms = append(rooms, roomID)
	}
	return rooms
}

// Broadcast queues evt on every connection subscribed to roomID. A
// connection whose queue is full misses the frame.
func (h *Hub) Broadcast(roomID string, evt chat.Event) {
	data, err := json.Marshal(outFrame{Event: evt.Name, Data: evt.Data})
	if err != nil {
		h.logger.Error().Err(err).Str("event", evt.Name).Msg("encode broadcast")
		return
	}

	// Snapshot subscribers so sends happen outside the lock.
	h.mu.RLock()
	targets := make([]*Conn, 0, len(h.rooms[roomID]))
	for _, c := range h.rooms[roomID] {
		targets = append(targets, c)
	}
	h.mu.RUnlock()

	for _, c := range targets {
		if !c.enqueue(data) {
			metrics.DroppedFrames.Inc()
			h.logger.Warn().Str("conn_id", c.id).Str("room_id", roomID).Str("event", evt.Name).Msg("send queue full, frame dropped")
		}
	}
}

// ConnectionCount returns the number of open connections.
func (h *Hub) ConnectionCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.conns)
}

// Close closes every connection. Their read loops then run the usual
// disconnect path.
func (h *Hub) Close() {
	h.mu.RLock()
	conns := make([]*Conn, 0, len(h.conns))
	for _, c := range h.conns {
		conns = append(conns, c)
	}
	h.mu.RUnlock()

	for _, c := range conns {
		c.shutdown()
	}
}
