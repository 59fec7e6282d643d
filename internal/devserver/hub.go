package devserver

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// Hub — одно соединение может состоять в нескольких комнатах
// (клиент мультиплексирует все комнаты через общий канал).
type Hub struct {
	mu    sync.RWMutex
	rooms map[string]map[*wsConn]struct{}
	conns map[*wsConn]map[string]struct{}
}

func NewHub() *Hub {
	return &Hub{
		rooms: make(map[string]map[*wsConn]struct{}),
		conns: make(map[*wsConn]map[string]struct{}),
	}
}

func (h *Hub) Join(roomID string, c *wsConn) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.rooms[roomID] == nil {
		h.rooms[roomID] = make(map[*wsConn]struct{})
	}
	h.rooms[roomID][c] = struct{}{}

	if h.conns[c] == nil {
		h.conns[c] = make(map[string]struct{})
	}
	h.conns[c][roomID] = struct{}{}
}

func (h *Hub) Leave(roomID string, c *wsConn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.leaveLocked(roomID, c)
}

// Drop убирает соединение из всех комнат (разрыв канала).
func (h *Hub) Drop(c *wsConn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for roomID := range h.conns[c] {
		h.leaveLocked(roomID, c)
	}
	delete(h.conns, c)
}

func (h *Hub) leaveLocked(roomID string, c *wsConn) {
	if rs, ok := h.rooms[roomID]; ok {
		delete(rs, c)
		if len(rs) == 0 {
			delete(h.rooms, roomID)
		}
	}
	if cs, ok := h.conns[c]; ok {
		delete(cs, roomID)
	}
}

func (h *Hub) Broadcast(roomID string, frame any) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for c := range h.rooms[roomID] {
		_ = c.Send(frame) // best-effort
	}
}

type wsConn struct {
	conn   *websocket.Conn
	userID int64
	sendMu chan struct{}
	closed chan struct{}
}

func newWSConn(c *websocket.Conn, userID int64) *wsConn {
	return &wsConn{
		conn:   c,
		userID: userID,
		sendMu: make(chan struct{}, 1),
		closed: make(chan struct{}),
	}
}

func (c *wsConn) Send(frame any) error {
	c.sendMu <- struct{}{}
	defer func() { <-c.sendMu }()
	_ = c.conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
	return c.conn.WriteJSON(frame)
}

func (c *wsConn) Close() error {
	select {
	case <-c.closed:
	default:
		close(c.closed)
	}
	return c.conn.Close()
}
