package store

import (
	"context"
	"time"

	"github.com/angar2/cola-chat-back/internal/models"
)

// RoomStore persists room records. Lookups return (nil, nil) when the
// room does not exist.
type RoomStore interface {
	RoomExists(ctx context.Context, id string) (bool, error)
	CreateRoom(ctx context.Context, room *models.Room) error
	GetRoom(ctx context.Context, id string) (*models.Room, error)
	GetRoomPasswordHash(ctx context.Context, id string) (string, error)
	ListRooms(ctx context.Context) ([]models.Room, error)
	MarkRoomExpired(ctx context.Context, id string) error
	CountRooms(ctx context.Context) (int64, error)
}

// ParticipantStore persists participant identities. Lookups and updates
// return (nil, nil) when the participant does not exist.
type ParticipantStore interface {
	ParticipantExists(ctx context.Context, id string) (bool, error)
	CreateParticipant(ctx context.Context, p *models.Participant) error
	GetParticipant(ctx context.Context, id string) (*models.Participant, error)
	GetParticipants(ctx context.Context, ids []string) ([]models.Participant, error)
	RenameParticipant(ctx context.Context, id, nickname string) (*models.Participant, error)
	// DeactivateParticipant soft-deletes. deletedAt is only set the first time.
	DeactivateParticipant(ctx context.Context, id string, at time.Time) (*models.Participant, error)
	ReactivateParticipant(ctx context.Context, id string) (*models.Participant, error)
}

// MembershipStore keeps one membership row per (room, participant).
// Lookups return (nil, nil) when there is no row.
type MembershipStore interface {
	// JoinRoom opens the membership, reopening a closed one with a new joinedAt.
	JoinRoom(ctx context.Context, roomID, participantID string, at time.Time) error
	// LeaveRoom closes the membership. A missing row is a no-op.
	LeaveRoom(ctx context.Context, roomID, participantID string, at time.Time) error
	GetMembership(ctx context.Context, roomID, participantID string) (*models.Membership, error)
	// CountActiveMemberships counts the rooms the participant is still in.
	CountActiveMemberships(ctx context.Context, participantID string) (int, error)
}

// MessageLog is the append-only message history of every room.
type MessageLog interface {
	AppendMessage(ctx context.Context, msg *models.Message) error
	// FirstSeenAt returns the earliest sentAt of any message by the
	// participant in the room, or nil if there is none.
	FirstSeenAt(ctx context.Context, roomID, participantID string) (*time.Time, error)
	// ListMessages returns up to limit messages newest first, skipping
	// offset, restricted to sentAt >= since when since is not nil.
	ListMessages(ctx context.Context, roomID string, since *time.Time, offset, limit int) ([]models.Message, error)
}

// DataStore defines the interface for durable storage of rooms,
// participants, memberships and messages. PostgresStore and SQLStore implement it.
type DataStore interface {
	Close()
	Ping(ctx context.Context) error

	RoomStore
	ParticipantStore
	MembershipStore
	MessageLog
}
