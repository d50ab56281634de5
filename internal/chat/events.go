package chat

import "github.com/angar2/cola-chat-back/internal/models"

// Events fanned out to every connection subscribed to a room.
const (
	EventJoined = "joined"
	EventLeft   = "left"
	EventChat   = "chat"
	EventAlert  = "alert"
	EventRoster = "roster"
)

// Event is a named payload for a room's subscribers.
type Event struct {
	Name string
	Data any
}

// Roster is the payload of a roster event.
type Roster struct {
	RoomID       string               `json:"roomId"`
	Participants []models.Participant `json:"participants"`
}

// Gateway is the transport the session coordinator drives. It owns, per
// connection, the mapping roomID -> participantID and the room
// subscription groups.
type Gateway interface {
	// Attach binds connID to participantID in roomID and subscribes it to
	// the room's broadcasts.
	Attach(connID, roomID, participantID string)
	// Detach removes the binding and subscription and returns the
	// participant it resolved to.
	Detach(connID, roomID string) (participantID string, ok bool)
	// ParticipantOf resolves the participant connID acts as in roomID.
	ParticipantOf(connID, roomID string) (participantID string, ok bool)
	// Rooms lists the rooms connID is bound to.
	Rooms(connID string) []string
	// Broadcast queues evt for every connection subscribed to roomID
	// without blocking.
	Broadcast(roomID string, evt Event)
}
