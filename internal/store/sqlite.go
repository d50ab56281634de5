package store

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"

	_ "github.com/mattn/go-sqlite3"
)

// DefaultSQLitePath is used when no database URL is configured.
const DefaultSQLitePath = "./data/colachat.db"

var sqliteSchema = []string{
	`CREATE TABLE IF NOT EXISTS rooms (
		id TEXT PRIMARY KEY,
		namespace TEXT NOT NULL,
		title TEXT NOT NULL,
		capacity INTEGER,
		is_password INTEGER NOT NULL DEFAULT 0,
		password_hash TEXT,
		created_at DATETIME NOT NULL,
		expires_at DATETIME NOT NULL,
		is_expired INTEGER NOT NULL DEFAULT 0
	)`,
	`CREATE TABLE IF NOT EXISTS participants (
		id TEXT PRIMARY KEY,
		nickname TEXT NOT NULL,
		is_active INTEGER NOT NULL DEFAULT 1,
		created_at DATETIME NOT NULL,
		deleted_at DATETIME
	)`,
	`CREATE TABLE IF NOT EXISTS messages (
		id TEXT PRIMARY KEY,
		type TEXT NOT NULL,
		content TEXT NOT NULL,
		room_id TEXT NOT NULL REFERENCES rooms(id),
		participant_id TEXT NOT NULL REFERENCES participants(id),
		nickname TEXT NOT NULL DEFAULT '',
		sent_at INTEGER NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS room_participants (
		room_id TEXT NOT NULL REFERENCES rooms(id),
		participant_id TEXT NOT NULL REFERENCES participants(id),
		joined_at DATETIME NOT NULL,
		left_at DATETIME,
		is_active INTEGER NOT NULL DEFAULT 1,
		PRIMARY KEY (room_id, participant_id)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_room_participants_active ON room_participants(participant_id, is_active)`,
	`CREATE INDEX IF NOT EXISTS idx_messages_room_sent ON messages(room_id, sent_at)`,
	`CREATE INDEX IF NOT EXISTS idx_messages_room_participant ON messages(room_id, participant_id, sent_at)`,
	`CREATE INDEX IF NOT EXISTS idx_rooms_created ON rooms(created_at)`,
}

// NewSQLiteStore opens (and creates if needed) a SQLite database.
// If dbPath is empty, defaults to DefaultSQLitePath.
func NewSQLiteStore(ctx context.Context, dbPath string) (*SQLStore, error) {
	if dbPath == "" {
		dbPath = DefaultSQLitePath
	}

	// Ensure directory exists
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_foreign_keys=on&_busy_timeout=5000")
	if err != nil {
		return nil, err
	}
	// A single writer avoids SQLITE_BUSY under concurrent sessions.
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, err
	}

	s := &SQLStore{db: db, dialect: "sqlite3"}
	if err := s.initSchema(ctx, sqliteSchema); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}
