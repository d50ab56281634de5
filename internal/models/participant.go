package models

import (
	"time"
)

// Participant is a chat identity. A participant may hold several
// connections at once.
type Participant struct {
	ID        string     `json:"id"`
	Nickname  string     `json:"nickname"`
	IsActive  bool       `json:"isActive"`
	CreatedAt time.Time  `json:"createdAt"`
	DeletedAt *time.Time `json:"deletedAt"`
}
