package realtime

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/Y4SS11N3/skillsync-realtime/internal/domain"
)

// тестовый ws-сервер: считает соединения, принимает join/leave, умеет слать кадры
type wsTestServer struct {
	srv      *httptest.Server
	upgrader websocket.Upgrader

	mu    sync.Mutex
	conns []*websocket.Conn
	joins chan string
}

func newWSTestServer(t *testing.T) *wsTestServer {
	t.Helper()
	s := &wsTestServer{
		upgrader: websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }},
		joins:    make(chan string, 16),
	}
	s.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := s.upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade: %v", err)
			return
		}
		s.mu.Lock()
		s.conns = append(s.conns, conn)
		s.mu.Unlock()

		go func() {
			for {
				var f Frame
				if err := conn.ReadJSON(&f); err != nil {
					return
				}
				if f.Type == TypeJoinRoom {
					var p RoomPayload
					_ = json.Unmarshal(f.Payload, &p)
					s.joins <- p.RoomID
				}
			}
		}()
	}))
	t.Cleanup(s.srv.Close)
	return s
}

func (s *wsTestServer) url() string {
	return "ws" + strings.TrimPrefix(s.srv.URL, "http")
}

func (s *wsTestServer) connCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.conns)
}

func (s *wsTestServer) push(t *testing.T, frameType string, msg domain.Message) {
	t.Helper()
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.conns) == 0 {
		t.Fatal("no server-side connection")
	}
	b, _ := json.Marshal(MessagePayload{Message: msg})
	if err := s.conns[len(s.conns)-1].WriteJSON(outFrame{Type: frameType, Payload: json.RawMessage(b)}); err != nil {
		t.Fatalf("server push: %v", err)
	}
}

func waitFor(t *testing.T, cond func() bool, what string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func TestConnect_Idempotent(t *testing.T) {
	srv := newWSTestServer(t)
	c := NewClient(srv.url(), 1, nil)
	defer c.Close()

	if err := c.Connect(context.Background(), "tok"); err != nil {
		t.Fatalf("connect: %v", err)
	}
	if err := c.Connect(context.Background(), "tok"); err != nil {
		t.Fatalf("second connect: %v", err)
	}

	// второй вызов не открывает дублирующий канал
	time.Sleep(50 * time.Millisecond)
	if got := srv.connCount(); got != 1 {
		t.Fatalf("server connections = %d, want 1", got)
	}
}

func TestConnect_Error(t *testing.T) {
	c := NewClient("ws://127.0.0.1:1/ws", 1, nil)
	if err := c.Connect(context.Background(), "tok"); err == nil {
		t.Fatal("expected connect error")
	}
	if c.Connected() {
		t.Fatal("client reports connected after failed dial")
	}
}

func TestJoinRoom_WhileDisconnected_NoOp(t *testing.T) {
	c := NewClient("ws://127.0.0.1:1/ws", 1, nil)
	c.JoinRoom("r1")  // не должно паниковать и не должно запоминаться
	c.LeaveRoom("r1") // симметрично
	if got := c.Rooms(); len(got) != 0 {
		t.Fatalf("rooms = %v, want empty", got)
	}
}

func TestJoinLeave_TracksMembership(t *testing.T) {
	srv := newWSTestServer(t)
	c := NewClient(srv.url(), 1, nil)
	defer c.Close()
	if err := c.Connect(context.Background(), "tok"); err != nil {
		t.Fatal(err)
	}

	c.JoinRoom("r1")
	select {
	case room := <-srv.joins:
		if room != "r1" {
			t.Fatalf("join frame for %q", room)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("join frame not received by server")
	}
	if got := c.Rooms(); len(got) != 1 || got[0] != "r1" {
		t.Fatalf("rooms = %v", got)
	}

	c.LeaveRoom("r1")
	if got := c.Rooms(); len(got) != 0 {
		t.Fatalf("rooms after leave = %v", got)
	}
}

func TestDispatch_OrderAndUnsubscribe(t *testing.T) {
	srv := newWSTestServer(t)
	c := NewClient(srv.url(), 1, nil)
	defer c.Close()
	if err := c.Connect(context.Background(), "tok"); err != nil {
		t.Fatal(err)
	}

	var mu sync.Mutex
	var got []string
	sub := c.On(EventNewMessage, func(ev Event) {
		mu.Lock()
		got = append(got, ev.Message.ID)
		mu.Unlock()
	})

	srv.push(t, TypeNewMessage, domain.Message{ID: "m1", RoomID: "r1"})
	srv.push(t, TypeNewMessage, domain.Message{ID: "m2", RoomID: "r1"})

	waitFor(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(got) == 2
	}, "two events")

	mu.Lock()
	if got[0] != "m1" || got[1] != "m2" {
		t.Fatalf("delivery order = %v", got)
	}
	mu.Unlock()

	sub.Unsubscribe()
	sub.Unsubscribe() // повторное снятие безопасно
	srv.push(t, TypeNewMessage, domain.Message{ID: "m3", RoomID: "r1"})

	time.Sleep(50 * time.Millisecond)
	mu.Lock()
	defer mu.Unlock()
	if len(got) != 2 {
		t.Fatalf("handler ran after unsubscribe: %v", got)
	}
}

func TestDisconnect_ResetsStateAndNotifies(t *testing.T) {
	srv := newWSTestServer(t)
	c := NewClient(srv.url(), 1, nil)
	if err := c.Connect(context.Background(), "tok"); err != nil {
		t.Fatal(err)
	}
	c.JoinRoom("r1")

	disconnected := make(chan struct{}, 1)
	c.On(EventDisconnected, func(Event) {
		select {
		case disconnected <- struct{}{}:
		default:
		}
	})

	srv.mu.Lock()
	for _, conn := range srv.conns {
		_ = conn.Close()
	}
	srv.mu.Unlock()

	select {
	case <-disconnected:
	case <-time.After(2 * time.Second):
		t.Fatal("disconnected event not delivered")
	}
	if c.Connected() {
		t.Fatal("still connected after server close")
	}
	if got := c.Rooms(); len(got) != 0 {
		t.Fatalf("memberships survived disconnect: %v", got)
	}
}

func TestLiveExchangeEvent(t *testing.T) {
	srv := newWSTestServer(t)
	c := NewClient(srv.url(), 1, nil)
	defer c.Close()
	if err := c.Connect(context.Background(), "tok"); err != nil {
		t.Fatal(err)
	}

	got := make(chan Event, 1)
	c.On(EventLiveExchange, func(ev Event) { got <- ev })

	srv.push(t, TypeLiveExchange, domain.Message{
		ID:      "m1",
		RoomID:  "r1",
		Content: `{"type":"live_exchange_invitation","sessionId":"s1","exchangeId":42,"status":"waiting"}`,
	})

	select {
	case ev := <-got:
		if ev.RoomID != "r1" || ev.Message.ID != "m1" {
			t.Fatalf("event = %+v", ev)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("live exchange event not delivered")
	}
}
