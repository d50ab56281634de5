package store

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/angar2/cola-chat-back/internal/models"
)

const postgresSchema = `
CREATE TABLE IF NOT EXISTS rooms (
	id TEXT PRIMARY KEY,
	namespace TEXT NOT NULL,
	title TEXT NOT NULL,
	capacity INTEGER,
	is_password BOOLEAN NOT NULL DEFAULT FALSE,
	password_hash TEXT,
	created_at TIMESTAMPTZ NOT NULL,
	expires_at TIMESTAMPTZ NOT NULL,
	is_expired BOOLEAN NOT NULL DEFAULT FALSE
);

CREATE TABLE IF NOT EXISTS participants (
	id TEXT PRIMARY KEY,
	nickname TEXT NOT NULL,
	is_active BOOLEAN NOT NULL DEFAULT TRUE,
	created_at TIMESTAMPTZ NOT NULL,
	deleted_at TIMESTAMPTZ
);

CREATE TABLE IF NOT EXISTS room_participants (
	room_id TEXT NOT NULL REFERENCES rooms(id),
	participant_id TEXT NOT NULL REFERENCES participants(id),
	joined_at TIMESTAMPTZ NOT NULL,
	left_at TIMESTAMPTZ,
	is_active BOOLEAN NOT NULL DEFAULT TRUE,
	PRIMARY KEY (room_id, participant_id)
);

CREATE INDEX IF NOT EXISTS idx_room_participants_active ON room_participants(participant_id, is_active);

CREATE TABLE IF NOT EXISTS messages (
	id TEXT PRIMARY KEY,
	type TEXT NOT NULL,
	content TEXT NOT NULL,
	room_id TEXT NOT NULL REFERENCES rooms(id),
	participant_id TEXT NOT NULL REFERENCES participants(id),
	nickname TEXT NOT NULL DEFAULT '',
	sent_at TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_messages_room_sent ON messages(room_id, sent_at DESC);
CREATE INDEX IF NOT EXISTS idx_messages_room_participant ON messages(room_id, participant_id, sent_at);
CREATE INDEX IF NOT EXISTS idx_rooms_created ON rooms(created_at DESC);
`

// PostgresStore handles PostgreSQL database operations.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a new PostgreSQL store with a connection pool
// and makes sure the schema exists.
func NewPostgresStore(ctx context.Context, databaseURL string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, err
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}

	if _, err := pool.Exec(ctx, postgresSchema); err != nil {
		pool.Close()
		return nil, err
	}

	return &PostgresStore{pool: pool}, nil
}

// Close closes the database connection pool.
func (s *PostgresStore) Close() {
	s.pool.Close()
}

// Ping checks the database connection.
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// RoomExists reports whether a room with id is stored.
func (s *PostgresStore) RoomExists(ctx context.Context, id string) (bool, error) {
	var exists bool
	err := s.pool.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM rooms WHERE id = $1)`, id).Scan(&exists)
	return exists, err
}

// CreateRoom inserts a new room record.
func (s *PostgresStore) CreateRoom(ctx context.Context, room *models.Room) error {
	var hash *string
	if room.PasswordHash != "" {
		hash = &room.PasswordHash
	}

	_, err := s.pool.Exec(ctx, `
		INSERT INTO rooms (id, namespace, title, capacity, is_password, password_hash, created_at, expires_at, is_expired)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`, room.ID, room.Namespace, room.Title, room.Capacity, room.IsPassword, hash,
		room.CreatedAt, room.ExpiresAt, room.IsExpired)
	return err
}

// GetRoom retrieves a room by ID.
func (s *PostgresStore) GetRoom(ctx context.Context, id string) (*models.Room, error) {
	room := &models.Room{}
	err := s.pool.QueryRow(ctx, `
		SELECT `+roomColumns+`
		FROM rooms WHERE id = $1
	`, id).Scan(
		&room.ID,
		&room.Namespace,
		&room.Title,
		&room.Capacity,
		&room.IsPassword,
		&room.CreatedAt,
		&room.ExpiresAt,
		&room.IsExpired,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	normalizeRoom(room)
	return room, nil
}

// GetRoomPasswordHash retrieves the bcrypt hash of a room password.
func (s *PostgresStore) GetRoomPasswordHash(ctx context.Context, id string) (string, error) {
	var hash *string
	err := s.pool.QueryRow(ctx, `SELECT password_hash FROM rooms WHERE id = $1`, id).Scan(&hash)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", nil
		}
		return "", err
	}
	if hash == nil {
		return "", nil
	}
	return *hash, nil
}

// ListRooms returns every room, newest first.
func (s *PostgresStore) ListRooms(ctx context.Context) ([]models.Room, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+roomColumns+` FROM rooms ORDER BY created_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	rooms := []models.Room{}
	for rows.Next() {
		var room models.Room
		err := rows.Scan(
			&room.ID,
			&room.Namespace,
			&room.Title,
			&room.Capacity,
			&room.IsPassword,
			&room.CreatedAt,
			&room.ExpiresAt,
			&room.IsExpired,
		)
		if err != nil {
			return nil, err
		}
		normalizeRoom(&room)
		rooms = append(rooms, room)
	}
	return rooms, rows.Err()
}

// MarkRoomExpired flips the cached expiry flag.
func (s *PostgresStore) MarkRoomExpired(ctx context.Context, id string) error {
	_, err := s.pool.Exec(ctx, `UPDATE rooms SET is_expired = TRUE WHERE id = $1`, id)
	return err
}

// CountRooms returns the number of stored rooms.
func (s *PostgresStore) CountRooms(ctx context.Context) (int64, error) {
	var count int64
	err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM rooms`).Scan(&count)
	return count, err
}

// ParticipantExists reports whether a participant with id is stored.
func (s *PostgresStore) ParticipantExists(ctx context.Context, id string) (bool, error) {
	var exists bool
	err := s.pool.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM participants WHERE id = $1)`, id).Scan(&exists)
	return exists, err
}

// CreateParticipant inserts a participant record.
func (s *PostgresStore) CreateParticipant(ctx context.Context, p *models.Participant) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO participants (id, nickname, is_active, created_at, deleted_at)
		VALUES ($1, $2, $3, $4, $5)
	`, p.ID, p.Nickname, p.IsActive, p.CreatedAt, p.DeletedAt)
	return err
}

// GetParticipant retrieves a participant by ID.
func (s *PostgresStore) GetParticipant(ctx context.Context, id string) (*models.Participant, error) {
	return s.participantRow(ctx, `SELECT `+participantColumns+` FROM participants WHERE id = $1`, id)
}

// GetParticipants retrieves the participants among ids that exist.
func (s *PostgresStore) GetParticipants(ctx context.Context, ids []string) ([]models.Participant, error) {
	if len(ids) == 0 {
		return []models.Participant{}, nil
	}
	rows, err := s.pool.Query(ctx, `SELECT `+participantColumns+` FROM participants WHERE id = ANY($1)`, ids)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	participants := make([]models.Participant, 0, len(ids))
	for rows.Next() {
		var p models.Participant
		if err := rows.Scan(&p.ID, &p.Nickname, &p.IsActive, &p.CreatedAt, &p.DeletedAt); err != nil {
			return nil, err
		}
		normalizeParticipant(&p)
		participants = append(participants, p)
	}
	return participants, rows.Err()
}

// RenameParticipant updates the nickname.
func (s *PostgresStore) RenameParticipant(ctx context.Context, id, nickname string) (*models.Participant, error) {
	return s.participantRow(ctx, `
		UPDATE participants SET nickname = $2 WHERE id = $1
		RETURNING `+participantColumns, id, nickname)
}

// DeactivateParticipant soft-deletes a participant.
func (s *PostgresStore) DeactivateParticipant(ctx context.Context, id string, at time.Time) (*models.Participant, error) {
	return s.participantRow(ctx, `
		UPDATE participants SET is_active = FALSE, deleted_at = COALESCE(deleted_at, $2)
		WHERE id = $1
		RETURNING `+participantColumns, id, at)
}

// ReactivateParticipant clears the soft-delete.
func (s *PostgresStore) ReactivateParticipant(ctx context.Context, id string) (*models.Participant, error) {
	return s.participantRow(ctx, `
		UPDATE participants SET is_active = TRUE, deleted_at = NULL
		WHERE id = $1
		RETURNING `+participantColumns, id)
}

func (s *PostgresStore) participantRow(ctx context.Context, query string, args ...any) (*models.Participant, error) {
	p := &models.Participant{}
	err := s.pool.QueryRow(ctx, query, args...).Scan(&p.ID, &p.Nickname, &p.IsActive, &p.CreatedAt, &p.DeletedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	normalizeParticipant(p)
	return p, nil
}

// JoinRoom opens or reopens a membership.
func (s *PostgresStore) JoinRoom(ctx context.Context, roomID, participantID string, at time.Time) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO room_participants (room_id, participant_id, joined_at, left_at, is_active)
		VALUES ($1, $2, $3, NULL, TRUE)
		ON CONFLICT (room_id, participant_id)
		DO UPDATE SET joined_at = EXCLUDED.joined_at, left_at = NULL, is_active = TRUE
	`, roomID, participantID, at.UTC())
	return err
}

// LeaveRoom closes an open membership.
func (s *PostgresStore) LeaveRoom(ctx context.Context, roomID, participantID string, at time.Time) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE room_participants SET left_at = $3, is_active = FALSE
		WHERE room_id = $1 AND participant_id = $2 AND is_active
	`, roomID, participantID, at.UTC())
	return err
}

// GetMembership retrieves a membership.
func (s *PostgresStore) GetMembership(ctx context.Context, roomID, participantID string) (*models.Membership, error) {
	m := &models.Membership{}
	err := s.pool.QueryRow(ctx, `
		SELECT `+membershipColumns+` FROM room_participants
		WHERE room_id = $1 AND participant_id = $2
	`, roomID, participantID).Scan(&m.RoomID, &m.ParticipantID, &m.JoinedAt, &m.LeftAt, &m.IsActive)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	m.JoinedAt = m.JoinedAt.UTC()
	if m.LeftAt != nil {
		t := m.LeftAt.UTC()
		m.LeftAt = &t
	}
	return m, nil
}

// CountActiveMemberships counts the participant's open memberships.
func (s *PostgresStore) CountActiveMemberships(ctx context.Context, participantID string) (int, error) {
	var count int
	err := s.pool.QueryRow(ctx, `
		SELECT COUNT(*) FROM room_participants WHERE participant_id = $1 AND is_active
	`, participantID).Scan(&count)
	return count, err
}

// AppendMessage inserts a message. ID and SentAt must be set.
func (s *PostgresStore) AppendMessage(ctx context.Context, msg *models.Message) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO messages (`+messageColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, msg.ID, string(msg.Type), msg.Content, msg.RoomID, msg.ParticipantID, msg.Nickname, msg.SentAt)
	return err
}

// FirstSeenAt returns the participant's earliest message time in a room.
func (s *PostgresStore) FirstSeenAt(ctx context.Context, roomID, participantID string) (*time.Time, error) {
	var first *time.Time
	err := s.pool.QueryRow(ctx, `
		SELECT MIN(sent_at) FROM messages WHERE room_id = $1 AND participant_id = $2
	`, roomID, participantID).Scan(&first)
	if err != nil {
		return nil, err
	}
	if first == nil {
		return nil, nil
	}
	t := first.UTC()
	return &t, nil
}

// ListMessages returns a newest-first page of a room's messages.
func (s *PostgresStore) ListMessages(ctx context.Context, roomID string, since *time.Time, offset, limit int) ([]models.Message, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+messageColumns+`
		FROM messages
		WHERE room_id = $1 AND ($2::timestamptz IS NULL OR sent_at >= $2)
		ORDER BY sent_at DESC, id DESC
		LIMIT $3 OFFSET $4
	`, roomID, since, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	messages := make([]models.Message, 0, limit)
	for rows.Next() {
		var msg models.Message
		var msgType string
		if err := rows.Scan(&msg.ID, &msgType, &msg.Content, &msg.RoomID, &msg.ParticipantID, &msg.Nickname, &msg.SentAt); err != nil {
			return nil, err
		}
		msg.Type = models.MessageType(msgType)
		msg.SentAt = msg.SentAt.UTC()
		messages = append(messages, msg)
	}
	return messages, rows.Err()
}

func normalizeRoom(room *models.Room) {
	room.CreatedAt = room.CreatedAt.UTC()
	room.ExpiresAt = room.ExpiresAt.UTC()
}

func normalizeParticipant(p *models.Participant) {
	p.CreatedAt = p.CreatedAt.UTC()
	if p.DeletedAt != nil {
		t := p.DeletedAt.UTC()
		p.DeletedAt = &t
	}
}
