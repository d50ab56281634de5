package chat

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/samber/lo"

	"github.com/angar2/cola-chat-back/internal/crypto"
	"github.com/angar2/cola-chat-back/internal/metrics"
	"github.com/angar2/cola-chat-back/internal/models"
)

const (
	// MaxMessageLength bounds chat and alert content in runes.
	MaxMessageLength = 1000
	// MaxPage bounds page numbers so offsets stay representable.
	MaxPage = 1 << 20
)

// GetMessagePage returns one page of a room's history in ascending time
// order. Page 1 is the newest PageSize messages. History starts at the
// participant's first message in the room; without a participant the
// page is empty.
func (s *Service) GetMessagePage(ctx context.Context, roomID string, page int, participantID string) ([]models.Message, error) {
	if page < 1 || page > MaxPage {
		return nil, invalid(fmt.Sprintf("page must be between 1 and %d", MaxPage))
	}
	if _, err := s.loadActiveRoom(ctx, roomID); err != nil {
		return nil, err
	}
	if participantID == "" {
		return []models.Message{}, nil
	}

	anchor, err := s.messages.FirstSeenAt(ctx, roomID, participantID)
	if err != nil {
		return nil, fmt.Errorf("load first seen: %w", err)
	}

	size := s.cfg.PageSize
	msgs, err := s.messages.ListMessages(ctx, roomID, anchor, (page-1)*size, size)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	return lo.Reverse(msgs), nil
}

func (s *Service) appendMessage(ctx context.Context, roomID string, p *models.Participant, msgType models.MessageType, content string) (*models.Message, error) {
	now := s.timestamp()
	msg := &models.Message{
		ID:            crypto.NewSortableID(now),
		Type:          msgType,
		Content:       content,
		RoomID:        roomID,
		ParticipantID: p.ID,
		Nickname:      p.Nickname,
		SentAt:        now,
	}
	if err := s.messages.AppendMessage(ctx, msg); err != nil {
		return nil, fmt.Errorf("append %s message: %w", msgType, err)
	}
	metrics.MessagesAppended.WithLabelValues(string(msgType)).Inc()
	return msg, nil
}

func validContent(content string) (string, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return "", invalid("content is required")
	}
	if utf8.RuneCountInString(content) > MaxMessageLength {
		return "", invalid(fmt.Sprintf("content exceeds %d characters", MaxMessageLength))
	}
	return content, nil
}

func joinedNotice(nickname string) string {
	return nickname + " joined the room."
}

func leftNotice(nickname string) string {
	return nickname + " left the room."
}
