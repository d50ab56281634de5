package chat

import (
	"context"
	"fmt"
	"strings"

	"github.com/angar2/cola-chat-back/internal/crypto"
	"github.com/angar2/cola-chat-back/internal/metrics"
	"github.com/angar2/cola-chat-back/internal/models"
	"github.com/angar2/cola-chat-back/internal/presence"
)

// CreateRoomInput describes a room to create.
type CreateRoomInput struct {
	Namespace  string
	Title      string
	Capacity   *int
	IsPassword bool
	Password   string
}

// CreateRoom validates in and stores a new room expiring ExpiryDays from now.
func (s *Service) CreateRoom(ctx context.Context, in CreateRoomInput) (*models.Room, error) {
	namespace := strings.TrimSpace(in.Namespace)
	title := strings.TrimSpace(in.Title)
	if namespace == "" || title == "" {
		return nil, invalid("namespace and title are required")
	}
	if in.IsPassword != (in.Password != "") {
		return nil, invalid("isPassword and password must agree")
	}
	if in.Capacity != nil && *in.Capacity < 1 {
		return nil, invalid("capacity must be at least 1")
	}

	id, err := s.uniqueID(ctx, crypto.NewID, s.rooms.RoomExists)
	if err != nil {
		return nil, fmt.Errorf("room id: %w", err)
	}

	now := s.timestamp()
	room := &models.Room{
		ID:         id,
		Namespace:  namespace,
		Title:      title,
		IsPassword: in.IsPassword,
		CreatedAt:  now,
		ExpiresAt:  now.AddDate(0, 0, s.cfg.ExpiryDays),
	}
	if in.Capacity != nil {
		c := *in.Capacity
		room.Capacity = &c
	}
	if in.IsPassword {
		hash, err := crypto.HashPassword(in.Password, s.cfg.BcryptCost)
		if err != nil {
			return nil, fmt.Errorf("hash room password: %w", err)
		}
		room.PasswordHash = hash
	}

	if err := s.rooms.CreateRoom(ctx, room); err != nil {
		return nil, fmt.Errorf("create room: %w", err)
	}
	metrics.RoomsCreated.Inc()

	s.logger.Info().
		Str("room_id", room.ID).
		Str("namespace", room.Namespace).
		Bool("password", room.IsPassword).
		Msg("room created")

	room.PasswordHash = ""
	return room, nil
}

// GetRoom returns a room that has not expired.
func (s *Service) GetRoom(ctx context.Context, roomID string) (*models.Room, error) {
	return s.loadActiveRoom(ctx, roomID)
}

// ListRooms returns every stored room, expired ones included.
func (s *Service) ListRooms(ctx context.Context) ([]models.Room, error) {
	rooms, err := s.rooms.ListRooms(ctx)
	if err != nil {
		return nil, fmt.Errorf("list rooms: %w", err)
	}
	return rooms, nil
}

// ValidateRoomEntry checks that roomID can be entered with password right
// now. A participant already online in the room, or inside its grace
// period there, is exempt from the capacity check.
func (s *Service) ValidateRoomEntry(ctx context.Context, roomID, password, participantID string) error {
	room, err := s.loadActiveRoom(ctx, roomID)
	if err != nil {
		return err
	}

	if room.IsPassword {
		hash, err := s.rooms.GetRoomPasswordHash(ctx, roomID)
		if err != nil {
			return fmt.Errorf("load room password: %w", err)
		}
		ok, err := crypto.ComparePassword(hash, password)
		if err != nil {
			return fmt.Errorf("compare room password: %w", err)
		}
		if !ok {
			return ErrUnauthorized
		}
	}

	if room.Capacity == nil {
		return nil
	}
	var full bool
	s.presence.Update(roomID, func(r *presence.Room) { full = !s.admits(r, room, participantID) })
	if full {
		metrics.CapacityRejections.Inc()
		return ErrCapacityExceeded
	}
	return nil
}

// loadActiveRoom loads a room and runs the expiry check, durably marking
// the room expired the first time it is seen past expiresAt.
func (s *Service) loadActiveRoom(ctx context.Context, roomID string) (*models.Room, error) {
	if !crypto.ValidID(roomID) {
		return nil, ErrRoomNotFound
	}
	room, err := s.rooms.GetRoom(ctx, roomID)
	if err != nil {
		return nil, fmt.Errorf("load room: %w", err)
	}
	if room == nil {
		return nil, ErrRoomNotFound
	}
	if room.IsExpired {
		return nil, ErrRoomExpired
	}
	if room.ExpiredAt(s.now()) {
		if err := s.rooms.MarkRoomExpired(ctx, roomID); err != nil {
			return nil, fmt.Errorf("mark room expired: %w", err)
		}
		s.logger.Info().Str("room_id", roomID).Msg("room expired")
		return nil, ErrRoomExpired
	}
	return room, nil
}

// admits reports whether participantID may hold a connection in r.
// Participants online or inside their grace period keep their slot, so a
// newcomer needs one that neither group occupies. r must be room's view.
func (s *Service) admits(r *presence.Room, room *models.Room, participantID string) bool {
	if room.Capacity == nil {
		return true
	}
	if participantID != "" {
		if r.IsOnline(participantID) || s.leaves.Pending(presence.Key{RoomID: r.ID(), ParticipantID: participantID}) {
			return true
		}
	}
	return r.OnlineCount()+s.leaves.PendingIn(r.ID()) < *room.Capacity
}
