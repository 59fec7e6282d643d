package notify

import (
	"testing"
	"time"

	"github.com/Y4SS11N3/skillsync-realtime/internal/domain"
	"github.com/Y4SS11N3/skillsync-realtime/internal/envelope"
	"github.com/Y4SS11N3/skillsync-realtime/internal/store"
)

func inbound(room string, sender int64) domain.Message {
	return domain.Message{ID: room + "-m", RoomID: room, SenderID: sender, CreatedAt: time.Now()}
}

func TestUnreadAccounting(t *testing.T) {
	s := store.New()
	b := New(1, s, nil, nil)
	b.SetFocused("rA")

	// входящее в нефокусную комнату
	b.OnInbound(inbound("rB", 2), envelope.Text{Content: "hi"})
	if got := s.UnreadCount("rB"); got != 1 {
		t.Errorf("rB unread = %d, want 1", got)
	}
	if got := s.UnreadCount("rA"); got != 0 {
		t.Errorf("rA unread = %d, want 0", got)
	}

	// входящее в фокусную не считается
	b.OnInbound(inbound("rA", 2), envelope.Text{Content: "hi"})
	if got := s.UnreadCount("rA"); got != 0 {
		t.Errorf("rA unread = %d, want 0", got)
	}

	// фокус на rB сбрасывает её счётчик
	b.SetFocused("rB")
	if got := s.UnreadCount("rB"); got != 0 {
		t.Errorf("rB unread after focus = %d, want 0", got)
	}
}

func TestUnread_OwnEchoNotCounted(t *testing.T) {
	s := store.New()
	b := New(1, s, nil, nil)
	b.SetFocused("rA")

	// эхо собственной отправки в фоновую комнату обогнало REST-подтверждение
	b.OnInbound(inbound("rB", 1), envelope.Text{Content: "mine"})
	if got := s.UnreadCount("rB"); got != 0 {
		t.Errorf("rB unread = %d, want 0 (own message)", got)
	}

	b.OnInbound(inbound("rB", 2), envelope.Text{Content: "theirs"})
	if got := s.UnreadCount("rB"); got != 1 {
		t.Errorf("rB unread = %d, want 1", got)
	}
}

func TestToast_OnlyForForeignSignaling(t *testing.T) {
	s := store.New()
	var toasts []Toast
	b := New(1, s, func(tt Toast) { toasts = append(toasts, tt) }, nil)
	b.SetFocused("rA")

	inv := envelope.Invitation{SessionID: "s1", ExchangeID: 42, Status: "waiting"}

	b.OnInbound(inbound("rA", 2), inv) // чужое приглашение -> toast
	b.OnInbound(inbound("rA", 1), inv) // собственное эхо -> нет
	b.OnInbound(inbound("rA", 2), envelope.Text{Content: "x"})

	if len(toasts) != 1 {
		t.Fatalf("toasts = %d, want 1", len(toasts))
	}
	if toasts[0].Kind != envelope.KindInvitation || toasts[0].SenderID != 2 {
		t.Errorf("toast = %+v", toasts[0])
	}
}

func TestMerge_Additive(t *testing.T) {
	s := store.New()
	b := New(1, s, nil, nil)
	b.SetFocused("rA")

	b.OnInbound(inbound("rB", 2), envelope.Text{Content: "x"})
	b.Merge(map[string]int{"rB": 2, "rA": 5, "rC": 1})

	if got := b.TotalUnread("rB"); got != 3 {
		t.Errorf("rB total = %d, want 3 (1 own + 2 external)", got)
	}
	// фокусная комната не накапливает внешние
	if got := b.TotalUnread("rA"); got != 0 {
		t.Errorf("rA total = %d, want 0", got)
	}
	if got := b.TotalUnread("rC"); got != 1 {
		t.Errorf("rC total = %d, want 1", got)
	}

	// фокус очищает и внешний счётчик
	b.SetFocused("rB")
	if got := b.TotalUnread("rB"); got != 0 {
		t.Errorf("rB total after focus = %d, want 0", got)
	}
}
