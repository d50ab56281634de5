package ws

import "encoding/json"

// Inbound events.
const (
	EventJoinRoom    = "joinRoom"
	EventLeaveRoom   = "leaveRoom"
	EventSendMessage = "sendMessage"
	EventSendAlert   = "sendAlert"
)

const ackSuccessMessage = "request processed successfully"

// Frame is the envelope of every message on the socket.
type Frame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// outFrame is a server-sent broadcast.
type outFrame struct {
	Event string `json:"event"`
	Data  any    `json:"data"`
}

// Ack answers one inbound frame.
type Ack struct {
	Event   string `json:"event"`
	Success bool   `json:"success"`
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
	Data    any    `json:"data"`
}

// RoomRequest is the payload of every inbound event.
type RoomRequest struct {
	RoomID    string `json:"roomId"`
	ChatterID string `json:"chatterId,omitempty"`
	Content   string `json:"content,omitempty"`
}
