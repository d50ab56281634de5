package chat

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/samber/lo"

	"github.com/angar2/cola-chat-back/internal/crypto"
	"github.com/angar2/cola-chat-back/internal/models"
)

// MaxNicknameLength bounds nicknames in runes.
const MaxNicknameLength = 30

// GetParticipant returns a participant by id.
func (s *Service) GetParticipant(ctx context.Context, participantID string) (*models.Participant, error) {
	p, err := s.participants.GetParticipant(ctx, participantID)
	if err != nil {
		return nil, fmt.Errorf("load participant: %w", err)
	}
	if p == nil {
		return nil, ErrParticipantNotFound
	}
	return p, nil
}

// RenameParticipant changes a participant's nickname. Messages already
// sent keep the nickname they were sent with.
func (s *Service) RenameParticipant(ctx context.Context, participantID, nickname string) (*models.Participant, error) {
	nickname = strings.TrimSpace(nickname)
	if nickname == "" || utf8.RuneCountInString(nickname) > MaxNicknameLength {
		return nil, invalid(fmt.Sprintf("nickname must be 1 to %d characters", MaxNicknameLength))
	}

	p, err := s.participants.RenameParticipant(ctx, participantID, nickname)
	if err != nil {
		return nil, fmt.Errorf("rename participant: %w", err)
	}
	if p == nil {
		return nil, ErrParticipantNotFound
	}
	s.logger.Debug().Str("participant_id", p.ID).Str("nickname", p.Nickname).Msg("participant renamed")
	return p, nil
}

// RoomParticipants returns the online roster of an active room.
func (s *Service) RoomParticipants(ctx context.Context, roomID string) ([]models.Participant, error) {
	if _, err := s.loadActiveRoom(ctx, roomID); err != nil {
		return nil, err
	}
	return s.roster(ctx, roomID)
}

// OnlineCounts returns the online participant count of every occupied room.
func (s *Service) OnlineCounts() map[string]int {
	return s.presence.Snapshot()
}

func (s *Service) createParticipant(ctx context.Context) (*models.Participant, error) {
	id, err := s.uniqueID(ctx, crypto.NewID, s.participants.ParticipantExists)
	if err != nil {
		return nil, fmt.Errorf("participant id: %w", err)
	}
	p := &models.Participant{
		ID:        id,
		Nickname:  GenerateNickname(),
		IsActive:  true,
		CreatedAt: s.timestamp(),
	}
	if err := s.participants.CreateParticipant(ctx, p); err != nil {
		return nil, fmt.Errorf("create participant: %w", err)
	}
	s.logger.Debug().Str("participant_id", p.ID).Str("nickname", p.Nickname).Msg("participant created")
	return p, nil
}

// activeParticipant loads a participant and reactivates it if a grace
// period expired since it was last seen.
func (s *Service) activeParticipant(ctx context.Context, participantID string) (*models.Participant, error) {
	p, err := s.GetParticipant(ctx, participantID)
	if err != nil {
		return nil, err
	}
	if p.IsActive {
		return p, nil
	}

	p, err = s.participants.ReactivateParticipant(ctx, participantID)
	if err != nil {
		return nil, fmt.Errorf("reactivate participant: %w", err)
	}
	if p == nil {
		return nil, ErrParticipantNotFound
	}
	s.logger.Debug().Str("participant_id", p.ID).Msg("participant reactivated")
	return p, nil
}

// roster returns the room's online participants in first-connection order.
func (s *Service) roster(ctx context.Context, roomID string) ([]models.Participant, error) {
	ids := s.presence.OnlineParticipantIDs(roomID)
	if len(ids) == 0 {
		return []models.Participant{}, nil
	}

	found, err := s.participants.GetParticipants(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("load roster: %w", err)
	}
	byID := lo.KeyBy(found, func(p models.Participant) string { return p.ID })
	return lo.FilterMap(ids, func(id string, _ int) (models.Participant, bool) {
		p, ok := byID[id]
		return p, ok
	}), nil
}
