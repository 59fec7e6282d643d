// Package notify — мост между потоком чата и лентой уведомлений:
// непрочитанные по комнатам плюс транзиентные сигналы о сигналинге.
package notify

import (
	"log/slog"
	"sync"

	"github.com/Y4SS11N3/skillsync-realtime/internal/domain"
	"github.com/Y4SS11N3/skillsync-realtime/internal/envelope"
	"github.com/Y4SS11N3/skillsync-realtime/internal/store"
)

// Toast — транзиентный пользовательский сигнал. At-least-once, best-effort:
// к инвариантам корректности не относится.
type Toast struct {
	RoomID   string
	Kind     envelope.Kind
	SenderID int64
}

type Bridge struct {
	selfID int64
	msgs   *store.Store
	toast  func(Toast)
	log    *slog.Logger

	mu       sync.Mutex
	focused  string
	external map[string]int // счётчики внешней ленты уведомлений
}

func New(selfID int64, msgs *store.Store, toast func(Toast), log *slog.Logger) *Bridge {
	if log == nil {
		log = slog.Default()
	}
	return &Bridge{
		selfID:   selfID,
		msgs:     msgs,
		toast:    toast,
		log:      log,
		external: make(map[string]int),
	}
}

// SetFocused переводит фокус на комнату и обнуляет её непрочитанные.
// Store сам фокус не выводит — это обязанность потребителя.
func (b *Bridge) SetFocused(roomID string) {
	b.mu.Lock()
	b.focused = roomID
	delete(b.external, roomID)
	b.mu.Unlock()

	if roomID != "" {
		b.msgs.ResetUnread(roomID)
	}
}

func (b *Bridge) Focused() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.focused
}

// OnInbound — одно входящее сообщение: +1 непрочитанных для нефокусной
// комнаты, toast для адресованного нам сигналинга. Собственные сообщения
// непрочитанными не считаются: live-эхо в фоновую комнату может обогнать
// REST-подтверждение и пройти мимо дедупликации.
func (b *Bridge) OnInbound(msg domain.Message, env envelope.Envelope) {
	b.mu.Lock()
	focused := b.focused
	b.mu.Unlock()

	if msg.RoomID != focused && msg.SenderID != b.selfID {
		b.msgs.IncrUnread(msg.RoomID)
	}

	switch env.Kind() {
	case envelope.KindInvitation, envelope.KindAccepted:
		if msg.SenderID != b.selfID && b.toast != nil {
			b.toast(Toast{RoomID: msg.RoomID, Kind: env.Kind(), SenderID: msg.SenderID})
		}
	}
}

// Merge — аддитивное слияние со счётчиками внешней ленты уведомлений.
func (b *Bridge) Merge(feed map[string]int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for roomID, n := range feed {
		if roomID == b.focused || n <= 0 {
			continue
		}
		b.external[roomID] += n
	}
}

// TotalUnread — собственный счётчик комнаты плюс внешний.
func (b *Bridge) TotalUnread(roomID string) int {
	b.mu.Lock()
	ext := b.external[roomID]
	b.mu.Unlock()
	return b.msgs.UnreadCount(roomID) + ext
}
