package store

import (
	"testing"
	"time"

	"github.com/Y4SS11N3/skillsync-realtime/internal/domain"
)

func msg(id, roomID string, at time.Time) domain.Message {
	return domain.Message{ID: id, RoomID: roomID, SenderID: 1, Content: "m-" + id, CreatedAt: at}
}

func TestAppend_IdempotentByID(t *testing.T) {
	s := New()
	m := msg("m1", "r1", time.Now())

	if !s.Append("r1", m) {
		t.Fatal("first append rejected")
	}
	if s.Append("r1", m) {
		t.Fatal("duplicate append accepted")
	}
	if got := s.Len("r1"); got != 1 {
		t.Errorf("len = %d, want 1", got)
	}
}

func TestGet_OrderedByCreatedAt(t *testing.T) {
	s := New()
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	// приходят не по порядку
	s.Append("r1", msg("m3", "r1", base.Add(3*time.Second)))
	s.Append("r1", msg("m1", "r1", base.Add(1*time.Second)))
	s.Append("r1", msg("m2", "r1", base.Add(2*time.Second)))

	got := s.Get("r1")
	if len(got) != 3 {
		t.Fatalf("len = %d", len(got))
	}
	for i, want := range []string{"m1", "m2", "m3"} {
		if got[i].ID != want {
			t.Errorf("pos %d: got %s, want %s", i, got[i].ID, want)
		}
	}
}

func TestGet_TiesKeepInsertionOrder(t *testing.T) {
	s := New()
	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	s.Append("r1", msg("a", "r1", at))
	s.Append("r1", msg("b", "r1", at))
	s.Append("r1", msg("c", "r1", at))

	got := s.Get("r1")
	for i, want := range []string{"a", "b", "c"} {
		if got[i].ID != want {
			t.Errorf("pos %d: got %s, want %s", i, got[i].ID, want)
		}
	}
}

func TestResolvePending_ConfirmsID(t *testing.T) {
	s := New()
	now := time.Now()
	pending := msg("client-uuid", "r1", now)
	pending.Pending = true
	s.Append("r1", pending)

	confirmed := msg("srv-1", "r1", now)
	s.ResolvePending("r1", "client-uuid", confirmed)

	got := s.Get("r1")
	if len(got) != 1 || got[0].ID != "srv-1" || got[0].Pending {
		t.Fatalf("got %+v", got)
	}

	// эхо с подтверждённым id теперь дубликат
	if s.Append("r1", confirmed) {
		t.Error("echo after resolve must be deduplicated")
	}
}

func TestResolvePending_EchoArrivedFirst(t *testing.T) {
	s := New()
	now := time.Now()
	pending := msg("client-uuid", "r1", now)
	pending.Pending = true
	s.Append("r1", pending)

	echo := msg("srv-1", "r1", now)
	s.Append("r1", echo) // live-эхо обогнало ответ REST

	s.ResolvePending("r1", "client-uuid", echo)

	if got := s.Len("r1"); got != 1 {
		t.Fatalf("len = %d, want 1", got)
	}
	if s.Get("r1")[0].ID != "srv-1" {
		t.Errorf("got %+v", s.Get("r1"))
	}
}

func TestUnreadCounters(t *testing.T) {
	s := New()
	s.IncrUnread("rB")
	s.IncrUnread("rB")
	if got := s.UnreadCount("rB"); got != 2 {
		t.Errorf("rB unread = %d, want 2", got)
	}
	if got := s.UnreadCount("rA"); got != 0 {
		t.Errorf("rA unread = %d, want 0", got)
	}
	s.ResetUnread("rB")
	if got := s.UnreadCount("rB"); got != 0 {
		t.Errorf("rB unread after reset = %d, want 0", got)
	}
}
