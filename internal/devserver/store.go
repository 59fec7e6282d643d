package devserver

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"

	"github.com/Y4SS11N3/skillsync-realtime/internal/domain"
)

// Store — sqlite-журнал комнат и сообщений dev-сервера.
type Store struct {
	db *sql.DB
}

const schema = `
CREATE TABLE IF NOT EXISTS rooms (
	id          TEXT PRIMARY KEY,
	exchange_id INTEGER NOT NULL UNIQUE,
	created_at  TIMESTAMP NOT NULL
);
CREATE TABLE IF NOT EXISTS messages (
	id         TEXT PRIMARY KEY,
	room_id    TEXT NOT NULL,
	sender_id  INTEGER NOT NULL,
	content    TEXT NOT NULL,
	created_at TIMESTAMP NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_messages_room ON messages(room_id, created_at);
`

func OpenStore(dsn string) (*Store, error) {
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// одна запись за раз достаточно для dev-сервера и убирает SQLITE_BUSY
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error { return s.db.Close() }

// RoomByExchange — find-or-create: комната создаётся при первом открытии
// и живёт столько же, сколько обмен.
func (s *Store) RoomByExchange(ctx context.Context, exchangeID int64) (domain.Room, error) {
	var room domain.Room
	err := s.db.QueryRowContext(ctx, `
		SELECT id, exchange_id, created_at FROM rooms WHERE exchange_id = ?
	`, exchangeID).Scan(&room.ID, &room.ExchangeID, &room.CreatedAt)
	if err == nil {
		return room, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return domain.Room{}, err
	}

	room = domain.Room{ID: uuid.NewString(), ExchangeID: exchangeID, CreatedAt: time.Now().UTC()}
	if _, err := s.db.ExecContext(ctx, `
		INSERT INTO rooms (id, exchange_id, created_at) VALUES (?, ?, ?)
	`, room.ID, room.ExchangeID, room.CreatedAt); err != nil {
		return domain.Room{}, err
	}
	return room, nil
}

func (s *Store) SaveMessage(ctx context.Context, roomID string, senderID int64, content string) (domain.Message, error) {
	msg := domain.Message{
		ID:        uuid.NewString(),
		RoomID:    roomID,
		SenderID:  senderID,
		Content:   content,
		CreatedAt: time.Now().UTC(),
	}
	if _, err := s.db.ExecContext(ctx, `
		INSERT INTO messages (id, room_id, sender_id, content, created_at)
		VALUES (?, ?, ?, ?, ?)
	`, msg.ID, msg.RoomID, msg.SenderID, msg.Content, msg.CreatedAt); err != nil {
		return domain.Message{}, err
	}
	return msg, nil
}

func (s *Store) History(ctx context.Context, roomID string) ([]domain.Message, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, room_id, sender_id, content, created_at
		FROM messages
		WHERE room_id = ?
		ORDER BY created_at ASC, id ASC
	`, roomID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]domain.Message, 0, 32)
	for rows.Next() {
		var m domain.Message
		if err := rows.Scan(&m.ID, &m.RoomID, &m.SenderID, &m.Content, &m.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}
