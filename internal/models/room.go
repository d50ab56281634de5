package models

import (
	"time"
)

// Room represents a time-boxed chat room.
type Room struct {
	ID           string    `json:"id"`
	Namespace    string    `json:"namespace"`
	Title        string    `json:"title"`
	Capacity     *int      `json:"capacity"`
	IsPassword   bool      `json:"isPassword"`
	PasswordHash string    `json:"-"`
	CreatedAt    time.Time `json:"createdAt"`
	ExpiresAt    time.Time `json:"expiresAt"`
	IsExpired    bool      `json:"isExpired"`
}

// ExpiredAt reports whether the room is past its expiry at t.
func (r *Room) ExpiredAt(t time.Time) bool {
	return r.IsExpired || t.After(r.ExpiresAt)
}
