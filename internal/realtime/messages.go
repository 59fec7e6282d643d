package realtime

import (
	"encoding/json"

	"github.com/Y4SS11N3/skillsync-realtime/internal/domain"
)

// Типы кадров, которыми обмениваемся по WS
const (
	TypeJoinRoom     = "join_room"                // клиент входит в комнату
	TypeLeaveRoom    = "leave_room"               // клиент покидает комнату
	TypeNewMessage   = "new_message"              // входящее сообщение чата
	TypeLiveExchange = "live_exchange_invitation" // сигналинг живой сессии
)

type Frame struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

type outFrame struct {
	Type    string `json:"type"`
	Payload any    `json:"payload,omitempty"`
}

type RoomPayload struct {
	RoomID string `json:"room_id"`
}

// MessagePayload — полезная нагрузка new_message и live_exchange_invitation:
// сообщение целиком, content несёт wire-форму конверта.
type MessagePayload struct {
	Message domain.Message `json:"message"`
}
