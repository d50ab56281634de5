package store

import (
	"context"
	"database/sql"
	"time"

	"github.com/go-sql-driver/mysql"
)

var mysqlSchema = []string{
	`CREATE TABLE IF NOT EXISTS rooms (
		id VARCHAR(36) PRIMARY KEY,
		namespace VARCHAR(255) NOT NULL,
		title VARCHAR(255) NOT NULL,
		capacity INT NULL,
		is_password TINYINT(1) NOT NULL DEFAULT 0,
		password_hash VARCHAR(255) NULL,
		created_at DATETIME(6) NOT NULL,
		expires_at DATETIME(6) NOT NULL,
		is_expired TINYINT(1) NOT NULL DEFAULT 0,
		INDEX idx_rooms_created (created_at)
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4 COLLATE=utf8mb4_unicode_ci`,
	`CREATE TABLE IF NOT EXISTS participants (
		id VARCHAR(36) PRIMARY KEY,
		nickname VARCHAR(255) NOT NULL,
		is_active TINYINT(1) NOT NULL DEFAULT 1,
		created_at DATETIME(6) NOT NULL,
		deleted_at DATETIME(6) NULL
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4 COLLATE=utf8mb4_unicode_ci`,
	`CREATE TABLE IF NOT EXISTS room_participants (
		room_id VARCHAR(36) NOT NULL,
		participant_id VARCHAR(36) NOT NULL,
		joined_at DATETIME(6) NOT NULL,
		left_at DATETIME(6) NULL,
		is_active TINYINT(1) NOT NULL DEFAULT 1,
		PRIMARY KEY (room_id, participant_id),
		INDEX idx_room_participants_active (participant_id, is_active),
		FOREIGN KEY (room_id) REFERENCES rooms(id),
		FOREIGN KEY (participant_id) REFERENCES participants(id)
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4 COLLATE=utf8mb4_unicode_ci`,
	`CREATE TABLE IF NOT EXISTS messages (
		id CHAR(26) PRIMARY KEY,
		type VARCHAR(16) NOT NULL,
		content TEXT NOT NULL,
		room_id VARCHAR(36) NOT NULL,
		participant_id VARCHAR(36) NOT NULL,
		nickname VARCHAR(255) NOT NULL DEFAULT '',
		sent_at BIGINT NOT NULL,
		INDEX idx_messages_room_sent (room_id, sent_at),
		INDEX idx_messages_room_participant (room_id, participant_id, sent_at),
		FOREIGN KEY (room_id) REFERENCES rooms(id),
		FOREIGN KEY (participant_id) REFERENCES participants(id)
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4 COLLATE=utf8mb4_unicode_ci`,
}

// NewMySQLStore connects to MySQL/MariaDB using a go-sql-driver DSN such as
// "user:pass@tcp(localhost:3306)/colachat". parseTime and UTC are forced.
func NewMySQLStore(ctx context.Context, dsn string) (*SQLStore, error) {
	cfg, err := mysql.ParseDSN(dsn)
	if err != nil {
		return nil, err
	}
	cfg.ParseTime = true
	cfg.Loc = time.UTC

	db, err := sql.Open("mysql", cfg.FormatDSN())
	if err != nil {
		return nil, err
	}
	db.SetConnMaxLifetime(3 * time.Minute)
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(10)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, err
	}

	s := &SQLStore{db: db, dialect: "mysql"}
	if err := s.initSchema(ctx, mysqlSchema); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}
