package models

import "time"

// MessageType distinguishes participant chat from generated notices.
type MessageType string

const (
	MessageChat   MessageType = "CHAT"
	MessageSystem MessageType = "SYSTEM"
	MessageAlert  MessageType = "ALERT"
)

// Message represents an append-only room message.
type Message struct {
	ID            string      `json:"id"` // ULID
	Type          MessageType `json:"type"`
	Content       string      `json:"content"`
	RoomID        string      `json:"roomId"`
	ParticipantID string      `json:"chatterId"`
	Nickname      string      `json:"nickname"` // sender nickname when sent
	SentAt        time.Time   `json:"sentAt"`
}
