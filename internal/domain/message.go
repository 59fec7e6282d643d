package domain

import "time"

// Message — сообщение чата. Content несёт wire-форму конверта
// (обычный текст либо JSON сигналинга), см. internal/envelope.
type Message struct {
	ID        string    `json:"id"`
	RoomID    string    `json:"room_id"`
	SenderID  int64     `json:"sender_id"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`

	// Pending — оптимистичная локальная запись с клиентским id,
	// ещё не подтверждённая сервером.
	Pending bool `json:"-"`
}
