// Package realtime — менеджер единственного разделяемого WS-соединения:
// connect/reconnect, членство в комнатах, типизированные подписки на события.
package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/url"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/Y4SS11N3/skillsync-realtime/internal/domain"
	"github.com/Y4SS11N3/skillsync-realtime/pkg/errs"
)

type EventKind string

const (
	EventNewMessage   EventKind = "new_message"
	EventLiveExchange EventKind = "live_exchange_invitation"
	EventConnected    EventKind = "connected"
	EventDisconnected EventKind = "disconnected"
)

type Event struct {
	Kind    EventKind
	RoomID  string
	Message domain.Message // заполнено для message-событий
}

type Handler func(Event)

// Client — ровно одно соединение на авторизованную сессию.
// Конструируется явно и передаётся потребителям; глобального синглтона нет.
type Client struct {
	wsURL  string
	userID int64
	dialer *websocket.Dialer
	log    *slog.Logger

	mu        sync.Mutex
	conn      *websocket.Conn
	connected bool
	rooms     map[string]struct{}
	sendMu    chan struct{} // бинарный семафор на запись в conn

	subMu   sync.RWMutex
	subs    map[EventKind]map[uint64]Handler
	nextSub uint64
}

func NewClient(wsURL string, userID int64, log *slog.Logger) *Client {
	if log == nil {
		log = slog.Default()
	}
	return &Client{
		wsURL:  wsURL,
		userID: userID,
		dialer: &websocket.Dialer{HandshakeTimeout: 10 * time.Second},
		log:    log,
		rooms:  make(map[string]struct{}),
		sendMu: make(chan struct{}, 1),
		subs:   make(map[EventKind]map[uint64]Handler),
	}
}

// Connect открывает соединение. Идемпотентен: повторный вызов при живом
// соединении сразу возвращает nil, дублирующий канал не открывается.
// Ошибка отдаётся вызывающему; автоматических ретраев здесь нет —
// это политика оркестратора.
func (c *Client) Connect(ctx context.Context, token string) error {
	c.mu.Lock()
	if c.connected {
		c.mu.Unlock()
		return nil
	}
	c.mu.Unlock()

	u, err := url.Parse(c.wsURL)
	if err != nil {
		return fmt.Errorf("%w: bad ws url: %v", errs.ErrValidation, err)
	}
	q := u.Query()
	q.Set("access_token", token)
	q.Set("user_id", strconv.FormatInt(c.userID, 10))
	u.RawQuery = q.Encode()

	conn, _, err := c.dialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		return fmt.Errorf("%w: %v", errs.ErrUnavailable, err)
	}

	c.mu.Lock()
	if c.connected {
		// гонка двух Connect: второе соединение лишнее
		c.mu.Unlock()
		_ = conn.Close()
		return nil
	}
	c.conn = conn
	c.connected = true
	c.mu.Unlock()

	go c.readLoop(conn)

	c.dispatch(Event{Kind: EventConnected})
	return nil
}

func (c *Client) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connected
}

// Rooms — текущее членство (для повторного join после reconnect).
func (c *Client) Rooms() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, 0, len(c.rooms))
	for r := range c.rooms {
		out = append(out, r)
	}
	sort.Strings(out)
	return out
}

// JoinRoom — no-op с логом, если соединение ещё не установлено;
// вызывающий повторяет join после Connect.
func (c *Client) JoinRoom(roomID string) {
	c.mu.Lock()
	if !c.connected {
		c.mu.Unlock()
		c.log.Warn("join_room while disconnected", "room", roomID)
		return
	}
	c.rooms[roomID] = struct{}{}
	conn := c.conn
	c.mu.Unlock()

	if err := c.send(conn, outFrame{Type: TypeJoinRoom, Payload: RoomPayload{RoomID: roomID}}); err != nil {
		c.log.Warn("join_room send failed", "room", roomID, "err", err)
	}
}

func (c *Client) LeaveRoom(roomID string) {
	c.mu.Lock()
	if !c.connected {
		c.mu.Unlock()
		c.log.Warn("leave_room while disconnected", "room", roomID)
		return
	}
	delete(c.rooms, roomID)
	conn := c.conn
	c.mu.Unlock()

	if err := c.send(conn, outFrame{Type: TypeLeaveRoom, Payload: RoomPayload{RoomID: roomID}}); err != nil {
		c.log.Warn("leave_room send failed", "room", roomID, "err", err)
	}
}

func (c *Client) Close() error {
	c.mu.Lock()
	conn := c.conn
	c.conn = nil
	c.connected = false
	c.rooms = make(map[string]struct{})
	c.mu.Unlock()

	if conn == nil {
		return nil
	}
	return conn.Close()
}

func (c *Client) send(conn *websocket.Conn, f outFrame) error {
	c.sendMu <- struct{}{}
	defer func() { <-c.sendMu }()
	_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
	return conn.WriteJSON(f)
}

// readLoop — единственный читатель соединения. Обработчики вызываются
// синхронно, поэтому события одной комнаты доставляются в порядке транспорта.
func (c *Client) readLoop(conn *websocket.Conn) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			break
		}
		var f Frame
		if err := json.Unmarshal(data, &f); err != nil {
			c.log.Debug("malformed ws frame", "err", err)
			continue
		}

		switch f.Type {
		case TypeNewMessage, TypeLiveExchange:
			var p MessagePayload
			if err := json.Unmarshal(f.Payload, &p); err != nil {
				c.log.Warn("bad message payload", "type", f.Type, "err", err)
				continue
			}
			kind := EventNewMessage
			if f.Type == TypeLiveExchange {
				kind = EventLiveExchange
			}
			c.dispatch(Event{Kind: kind, RoomID: p.Message.RoomID, Message: p.Message})
		default:
			c.log.Debug("unhandled ws frame", "type", f.Type)
		}
	}

	c.markDisconnected(conn)
}

func (c *Client) markDisconnected(conn *websocket.Conn) {
	c.mu.Lock()
	if c.conn != conn {
		// уже закрыто/заменено
		c.mu.Unlock()
		return
	}
	c.conn = nil
	c.connected = false
	c.rooms = make(map[string]struct{}) // членство сбрасывается при потере соединения
	c.mu.Unlock()

	_ = conn.Close()
	c.log.Info("realtime connection lost")
	c.dispatch(Event{Kind: EventDisconnected})
}

// On регистрирует обработчик и возвращает handle, владеющий своим снятием.
// Хранить ссылку на ту же функцию для off не требуется.
func (c *Client) On(kind EventKind, h Handler) *Subscription {
	c.subMu.Lock()
	defer c.subMu.Unlock()

	c.nextSub++
	id := c.nextSub
	if c.subs[kind] == nil {
		c.subs[kind] = make(map[uint64]Handler)
	}
	c.subs[kind][id] = h
	return &Subscription{c: c, kind: kind, id: id}
}

func (c *Client) dispatch(ev Event) {
	c.subMu.RLock()
	handlers := c.subs[ev.Kind]
	ids := make([]uint64, 0, len(handlers))
	for id := range handlers {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	ordered := make([]Handler, 0, len(ids))
	for _, id := range ids {
		ordered = append(ordered, handlers[id])
	}
	c.subMu.RUnlock()

	for _, h := range ordered {
		h(ev)
	}
}

// Subscription — handle подписки; снятие не требует ссылки на функцию.
type Subscription struct {
	c    *Client
	kind EventKind
	id   uint64
	once sync.Once
}

func (s *Subscription) Unsubscribe() {
	s.once.Do(func() {
		s.c.subMu.Lock()
		defer s.c.subMu.Unlock()
		if m := s.c.subs[s.kind]; m != nil {
			delete(m, s.id)
		}
	})
}
