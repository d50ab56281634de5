package store

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/angar2/cola-chat-back/internal/models"
)

// SQLStore handles rooms, participants and messages on a database/sql
// connection. SQLite and MySQL share it; only the schema differs.
type SQLStore struct {
	db      *sql.DB
	dialect string
}

const (
	roomColumns        = `id, namespace, title, capacity, is_password, created_at, expires_at, is_expired`
	participantColumns = `id, nickname, is_active, created_at, deleted_at`
	messageColumns     = `id, type, content, room_id, participant_id, nickname, sent_at`
	membershipColumns  = `room_id, participant_id, joined_at, left_at, is_active`
)

// Close closes the database connection.
func (s *SQLStore) Close() {
	s.db.Close()
}

// Ping checks the database connection.
func (s *SQLStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Dialect returns "sqlite3" or "mysql".
func (s *SQLStore) Dialect() string {
	return s.dialect
}

func (s *SQLStore) initSchema(ctx context.Context, statements []string) error {
	for _, stmt := range statements {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}

// RoomExists reports whether a room with id is stored.
func (s *SQLStore) RoomExists(ctx context.Context, id string) (bool, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM rooms WHERE id = ?`, id).Scan(&count)
	return count > 0, err
}

// CreateRoom inserts a new room record.
func (s *SQLStore) CreateRoom(ctx context.Context, room *models.Room) error {
	var capacity sql.NullInt64
	if room.Capacity != nil {
		capacity = sql.NullInt64{Int64: int64(*room.Capacity), Valid: true}
	}
	var hash sql.NullString
	if room.PasswordHash != "" {
		hash = sql.NullString{String: room.PasswordHash, Valid: true}
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO rooms (id, namespace, title, capacity, is_password, password_hash, created_at, expires_at, is_expired)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, room.ID, room.Namespace, room.Title, capacity, room.IsPassword, hash,
		room.CreatedAt.UTC(), room.ExpiresAt.UTC(), room.IsExpired)
	return err
}

// GetRoom retrieves a room by ID.
func (s *SQLStore) GetRoom(ctx context.Context, id string) (*models.Room, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+roomColumns+` FROM rooms WHERE id = ?`, id)
	room, err := scanRoom(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return room, nil
}

// GetRoomPasswordHash retrieves the bcrypt hash of a room password.
func (s *SQLStore) GetRoomPasswordHash(ctx context.Context, id string) (string, error) {
	var hash sql.NullString
	err := s.db.QueryRowContext(ctx, `SELECT password_hash FROM rooms WHERE id = ?`, id).Scan(&hash)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", nil
		}
		return "", err
	}
	return hash.String, nil
}

// ListRooms returns every room, newest first.
func (s *SQLStore) ListRooms(ctx context.Context) ([]models.Room, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+roomColumns+` FROM rooms ORDER BY created_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	rooms := []models.Room{}
	for rows.Next() {
		room, err := scanRoom(rows)
		if err != nil {
			return nil, err
		}
		rooms = append(rooms, *room)
	}
	return rooms, rows.Err()
}

// MarkRoomExpired flips the cached expiry flag.
func (s *SQLStore) MarkRoomExpired(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, `UPDATE rooms SET is_expired = ? WHERE id = ?`, true, id)
	return err
}

// CountRooms returns the number of stored rooms.
func (s *SQLStore) CountRooms(ctx context.Context) (int64, error) {
	var count int64
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM rooms`).Scan(&count)
	return count, err
}

// ParticipantExists reports whether a participant with id is stored.
func (s *SQLStore) ParticipantExists(ctx context.Context, id string) (bool, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM participants WHERE id = ?`, id).Scan(&count)
	return count > 0, err
}

// CreateParticipant inserts a participant record.
func (s *SQLStore) CreateParticipant(ctx context.Context, p *models.Participant) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO participants (id, nickname, is_active, created_at, deleted_at)
		VALUES (?, ?, ?, ?, ?)
	`, p.ID, p.Nickname, p.IsActive, p.CreatedAt.UTC(), nullTime(p.DeletedAt))
	return err
}

// GetParticipant retrieves a participant by ID.
func (s *SQLStore) GetParticipant(ctx context.Context, id string) (*models.Participant, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+participantColumns+` FROM participants WHERE id = ?`, id)
	p, err := scanParticipant(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return p, nil
}

// GetParticipants retrieves the participants among ids that exist, in no
// particular order.
func (s *SQLStore) GetParticipants(ctx context.Context, ids []string) ([]models.Participant, error) {
	if len(ids) == 0 {
		return []models.Participant{}, nil
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(ids)), ",")
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT `+participantColumns+` FROM participants WHERE id IN (`+placeholders+`)`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	participants := make([]models.Participant, 0, len(ids))
	for rows.Next() {
		p, err := scanParticipant(rows)
		if err != nil {
			return nil, err
		}
		participants = append(participants, *p)
	}
	return participants, rows.Err()
}

// RenameParticipant updates the nickname.
func (s *SQLStore) RenameParticipant(ctx context.Context, id, nickname string) (*models.Participant, error) {
	// MySQL reports 0 affected rows for an unchanged value, so existence
	// is decided by the read that follows.
	if _, err := s.db.ExecContext(ctx, `UPDATE participants SET nickname = ? WHERE id = ?`, nickname, id); err != nil {
		return nil, err
	}
	return s.GetParticipant(ctx, id)
}

// DeactivateParticipant soft-deletes a participant.
func (s *SQLStore) DeactivateParticipant(ctx context.Context, id string, at time.Time) (*models.Participant, error) {
	_, err := s.db.ExecContext(ctx, `
		UPDATE participants SET is_active = ?, deleted_at = COALESCE(deleted_at, ?) WHERE id = ?
	`, false, at.UTC(), id)
	if err != nil {
		return nil, err
	}
	return s.GetParticipant(ctx, id)
}

// ReactivateParticipant clears the soft-delete.
func (s *SQLStore) ReactivateParticipant(ctx context.Context, id string) (*models.Participant, error) {
	_, err := s.db.ExecContext(ctx, `
		UPDATE participants SET is_active = ?, deleted_at = NULL WHERE id = ?
	`, true, id)
	if err != nil {
		return nil, err
	}
	return s.GetParticipant(ctx, id)
}

// JoinRoom opens or reopens a membership. SQLite and MySQL spell upserts
// differently, so it updates inside a transaction and inserts when no
// row exists.
func (s *SQLStore) JoinRoom(ctx context.Context, roomID, participantID string, at time.Time) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	var count int
	err = tx.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM room_participants WHERE room_id = ? AND participant_id = ?
	`, roomID, participantID).Scan(&count)
	if err != nil {
		return err
	}

	if count > 0 {
		_, err = tx.ExecContext(ctx, `
			UPDATE room_participants SET joined_at = ?, left_at = NULL, is_active = ?
			WHERE room_id = ? AND participant_id = ?
		`, at.UTC(), true, roomID, participantID)
	} else {
		_, err = tx.ExecContext(ctx, `
			INSERT INTO room_participants (`+membershipColumns+`) VALUES (?, ?, ?, NULL, ?)
		`, roomID, participantID, at.UTC(), true)
	}
	if err != nil {
		return err
	}
	return tx.Commit()
}

// LeaveRoom closes an open membership.
func (s *SQLStore) LeaveRoom(ctx context.Context, roomID, participantID string, at time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE room_participants SET left_at = ?, is_active = ?
		WHERE room_id = ? AND participant_id = ? AND is_active = ?
	`, at.UTC(), false, roomID, participantID, true)
	return err
}

// GetMembership retrieves a membership.
func (s *SQLStore) GetMembership(ctx context.Context, roomID, participantID string) (*models.Membership, error) {
	m := &models.Membership{}
	var leftAt sql.NullTime
	err := s.db.QueryRowContext(ctx, `
		SELECT `+membershipColumns+` FROM room_participants WHERE room_id = ? AND participant_id = ?
	`, roomID, participantID).Scan(&m.RoomID, &m.ParticipantID, &m.JoinedAt, &leftAt, &m.IsActive)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	m.JoinedAt = m.JoinedAt.UTC()
	if leftAt.Valid {
		t := leftAt.Time.UTC()
		m.LeftAt = &t
	}
	return m, nil
}

// CountActiveMemberships counts the participant's open memberships.
func (s *SQLStore) CountActiveMemberships(ctx context.Context, participantID string) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM room_participants WHERE participant_id = ? AND is_active = ?
	`, participantID, true).Scan(&count)
	return count, err
}

// AppendMessage inserts a message. ID and SentAt must be set.
func (s *SQLStore) AppendMessage(ctx context.Context, msg *models.Message) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO messages (`+messageColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, msg.ID, string(msg.Type), msg.Content, msg.RoomID, msg.ParticipantID, msg.Nickname, msg.SentAt.UnixMicro())
	return err
}

// FirstSeenAt returns the participant's earliest message time in a room.
func (s *SQLStore) FirstSeenAt(ctx context.Context, roomID, participantID string) (*time.Time, error) {
	var micros sql.NullInt64
	err := s.db.QueryRowContext(ctx, `
		SELECT MIN(sent_at) FROM messages WHERE room_id = ? AND participant_id = ?
	`, roomID, participantID).Scan(&micros)
	if err != nil {
		return nil, err
	}
	if !micros.Valid {
		return nil, nil
	}
	t := time.UnixMicro(micros.Int64).UTC()
	return &t, nil
}

// ListMessages returns a newest-first page of a room's messages.
func (s *SQLStore) ListMessages(ctx context.Context, roomID string, since *time.Time, offset, limit int) ([]models.Message, error) {
	query := `SELECT ` + messageColumns + ` FROM messages WHERE room_id = ?`
	args := []any{roomID}
	if since != nil {
		query += ` AND sent_at >= ?`
		args = append(args, since.UnixMicro())
	}
	query += ` ORDER BY sent_at DESC, id DESC LIMIT ? OFFSET ?`
	args = append(args, limit, offset)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	messages := make([]models.Message, 0, limit)
	for rows.Next() {
		var msg models.Message
		var msgType string
		var micros int64
		if err := rows.Scan(&msg.ID, &msgType, &msg.Content, &msg.RoomID, &msg.ParticipantID, &msg.Nickname, &micros); err != nil {
			return nil, err
		}
		msg.Type = models.MessageType(msgType)
		msg.SentAt = time.UnixMicro(micros).UTC()
		messages = append(messages, msg)
	}
	return messages, rows.Err()
}

// scanner is satisfied by *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanRoom(row scanner) (*models.Room, error) {
	room := &models.Room{}
	var capacity sql.NullInt64
	err := row.Scan(
		&room.ID,
		&room.Namespace,
		&room.Title,
		&capacity,
		&room.IsPassword,
		&room.CreatedAt,
		&room.ExpiresAt,
		&room.IsExpired,
	)
	if err != nil {
		return nil, err
	}
	if capacity.Valid {
		c := int(capacity.Int64)
		room.Capacity = &c
	}
	room.CreatedAt = room.CreatedAt.UTC()
	room.ExpiresAt = room.ExpiresAt.UTC()
	return room, nil
}

func scanParticipant(row scanner) (*models.Participant, error) {
	p := &models.Participant{}
	var deletedAt sql.NullTime
	if err := row.Scan(&p.ID, &p.Nickname, &p.IsActive, &p.CreatedAt, &deletedAt); err != nil {
		return nil, err
	}
	p.CreatedAt = p.CreatedAt.UTC()
	if deletedAt.Valid {
		t := deletedAt.Time.UTC()
		p.DeletedAt = &t
	}
	return p, nil
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t.UTC(), Valid: true}
}
