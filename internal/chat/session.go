package chat

import (
	"context"
	"fmt"
	"time"

	"github.com/angar2/cola-chat-back/internal/metrics"
	"github.com/angar2/cola-chat-back/internal/models"
	"github.com/angar2/cola-chat-back/internal/presence"
)

// Join enters connID into roomID as participantID, creating a participant
// when participantID is empty. A reconnect within the grace period
// cancels the pending leave silently; a first connection opens the
// membership and broadcasts a joined notice. The roster is broadcast in
// every case. A connection bound to another participant is rebound only
// once the new one is admitted.
func (s *Service) Join(ctx context.Context, roomID, participantID, connID string) (*models.Participant, error) {
	room, err := s.loadActiveRoom(ctx, roomID)
	if err != nil {
		return nil, err
	}
	prev, bound := s.gateway.ParticipantOf(connID, roomID)

	var p *models.Participant
	if participantID == "" {
		// Avoid minting an identity for a room that is visibly full.
		var full bool
		s.presence.Update(roomID, func(r *presence.Room) { full = !s.admits(r, room, "") })
		if full {
			metrics.CapacityRejections.Inc()
			return nil, ErrCapacityExceeded
		}
		if p, err = s.createParticipant(ctx); err != nil {
			return nil, err
		}
		participantID = p.ID
	}

	key := presence.Key{RoomID: roomID, ParticipantID: participantID}
	unlock := s.lockKey(key)
	defer unlock()

	if p == nil {
		if p, err = s.activeParticipant(ctx, participantID); err != nil {
			return nil, err
		}
	}

	var full, wasOnline, resumed bool
	s.presence.Update(roomID, func(r *presence.Room) {
		if !s.admits(r, room, p.ID) {
			full = true
			return
		}
		wasOnline = r.IsOnline(p.ID)
		r.AddConnection(p.ID, connID)
		resumed = s.leaves.Disarm(key)
	})
	if full {
		metrics.CapacityRejections.Inc()
		return nil, ErrCapacityExceeded
	}
	if !wasOnline {
		metrics.OnlineParticipants.Inc()
	}
	if resumed {
		metrics.PendingLeaves.Dec()
	}

	if bound && prev != p.ID {
		s.Leave(ctx, roomID, connID)
	}
	s.gateway.Attach(connID, roomID, p.ID)

	log := s.logger.Debug().Str("room_id", roomID).Str("participant_id", p.ID).Str("conn_id", connID)
	switch {
	case resumed:
		log.Msg("participant resumed within grace period")
	case wasOnline:
		log.Msg("participant opened another connection")
	default:
		log.Msg("participant joined")
		if err := s.memberships.JoinRoom(ctx, roomID, p.ID, s.timestamp()); err != nil {
			s.logger.Error().Err(err).Str("room_id", roomID).Str("participant_id", p.ID).Msg("membership not opened")
		}
		msg, err := s.appendMessage(ctx, roomID, p, models.MessageSystem, joinedNotice(p.Nickname))
		if err != nil {
			s.logger.Error().Err(err).Str("room_id", roomID).Str("participant_id", p.ID).Msg("joined notice not stored")
		} else {
			s.gateway.Broadcast(roomID, Event{Name: EventJoined, Data: msg})
		}
	}

	s.broadcastRoster(ctx, roomID)
	return p, nil
}

// Leave detaches connID from roomID. When it was the participant's last
// connection, a leave is armed for the grace period. Unknown bindings are
// ignored.
func (s *Service) Leave(_ context.Context, roomID, connID string) {
	participantID, ok := s.gateway.Detach(connID, roomID)
	if !ok {
		return
	}
	key := presence.Key{RoomID: roomID, ParticipantID: participantID}

	var armed bool
	s.presence.Update(roomID, func(r *presence.Room) {
		if !r.IsOnline(participantID) {
			return
		}
		if r.RemoveConnection(participantID, connID) > 0 {
			return
		}
		s.leaves.Arm(key, s.cfg.LeaveGracePeriod, func(claim func() bool) {
			s.commitLeave(key, claim)
		})
		armed = true
	})
	if !armed {
		return
	}
	metrics.OnlineParticipants.Dec()
	metrics.PendingLeaves.Inc()
	s.logger.Debug().
		Str("room_id", roomID).
		Str("participant_id", participantID).
		Dur("grace", s.cfg.LeaveGracePeriod).
		Msg("last connection closed, leave pending")
}

// Disconnect leaves every room connID is bound to.
func (s *Service) Disconnect(ctx context.Context, connID string) {
	for _, roomID := range s.gateway.Rooms(connID) {
		s.Leave(ctx, roomID, connID)
	}
}

// commitLeave runs when a grace period ends. It re-checks absence and
// claims the timer inside the presence critical section, then closes the
// membership and announces the departure. The participant is deactivated
// only when no other room still holds an open membership.
func (s *Service) commitLeave(key presence.Key, claim func() bool) {
	unlock := s.lockKey(key)
	defer unlock()

	var commit bool
	s.presence.Update(key.RoomID, func(r *presence.Room) {
		commit = !r.IsOnline(key.ParticipantID) && claim()
	})
	if !commit {
		return
	}
	metrics.PendingLeaves.Dec()

	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.IOTimeout)
	defer cancel()

	logger := s.logger.With().
		Str("room_id", key.RoomID).
		Str("participant_id", key.ParticipantID).
		Logger()

	at := s.timestamp()
	if err := s.memberships.LeaveRoom(ctx, key.RoomID, key.ParticipantID, at); err != nil {
		logger.Error().Err(err).Msg("close membership")
		return
	}
	p, err := s.releaseParticipant(ctx, key.ParticipantID, at)
	if err != nil {
		logger.Error().Err(err).Msg("release participant")
		return
	}
	if p == nil {
		logger.Warn().Msg("participant vanished before leave")
		return
	}
	metrics.LeavesCommitted.Inc()

	msg, err := s.appendMessage(ctx, key.RoomID, p, models.MessageSystem, leftNotice(p.Nickname))
	if err != nil {
		logger.Error().Err(err).Msg("left notice not stored")
	} else {
		s.gateway.Broadcast(key.RoomID, Event{Name: EventLeft, Data: msg})
	}
	s.broadcastRoster(ctx, key.RoomID)
	logger.Debug().Msg("participant left")
}

func (s *Service) releaseParticipant(ctx context.Context, participantID string, at time.Time) (*models.Participant, error) {
	open, err := s.memberships.CountActiveMemberships(ctx, participantID)
	if err != nil {
		return nil, fmt.Errorf("count memberships: %w", err)
	}
	if open > 0 {
		return s.participants.GetParticipant(ctx, participantID)
	}
	p, err := s.participants.DeactivateParticipant(ctx, participantID, at)
	if err != nil {
		return nil, fmt.Errorf("deactivate participant: %w", err)
	}
	return p, nil
}

// SendMessage appends a chat message from the participant connID acts as
// in roomID and broadcasts it.
func (s *Service) SendMessage(ctx context.Context, roomID, connID, content string) (*models.Message, error) {
	return s.post(ctx, roomID, connID, content, models.MessageChat, EventChat)
}

// SendAlert is SendMessage for alert notices.
func (s *Service) SendAlert(ctx context.Context, roomID, connID, content string) (*models.Message, error) {
	return s.post(ctx, roomID, connID, content, models.MessageAlert, EventAlert)
}

func (s *Service) post(ctx context.Context, roomID, connID, content string, msgType models.MessageType, event string) (*models.Message, error) {
	content, err := validContent(content)
	if err != nil {
		return nil, err
	}
	if _, err := s.loadActiveRoom(ctx, roomID); err != nil {
		return nil, err
	}
	participantID, ok := s.gateway.ParticipantOf(connID, roomID)
	if !ok {
		return nil, ErrNotJoined
	}
	p, err := s.GetParticipant(ctx, participantID)
	if err != nil {
		return nil, err
	}

	msg, err := s.appendMessage(ctx, roomID, p, msgType, content)
	if err != nil {
		return nil, err
	}
	s.gateway.Broadcast(roomID, Event{Name: event, Data: msg})
	return msg, nil
}

func (s *Service) broadcastRoster(ctx context.Context, roomID string) {
	participants, err := s.roster(ctx, roomID)
	if err != nil {
		s.logger.Error().Err(err).Str("room_id", roomID).Msg("roster not broadcast")
		return
	}
	s.gateway.Broadcast(roomID, Event{
		Name: EventRoster,
		Data: Roster{RoomID: roomID, Participants: participants},
	})
}
