package models

import "time"

// Membership records a participant's presence in one room. It is opened on
// a fresh join and closed when the debounced leave commits.
type Membership struct {
	RoomID        string     `json:"roomId"`
	ParticipantID string     `json:"chatterId"`
	JoinedAt      time.Time  `json:"joinedAt"`
	LeftAt        *time.Time `json:"leftAt"`
	IsActive      bool       `json:"isActive"`
}
