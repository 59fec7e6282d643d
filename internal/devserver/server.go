// Package devserver — референс-реализация внешней поверхности платформы
// (REST + WS): локальная разработка и интеграционные тесты SDK без
// продакшен-бэкенда.
package devserver

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/Y4SS11N3/skillsync-realtime/internal/domain"
	"github.com/Y4SS11N3/skillsync-realtime/internal/envelope"
	"github.com/Y4SS11N3/skillsync-realtime/internal/realtime"
	"github.com/Y4SS11N3/skillsync-realtime/internal/rest"
	"github.com/Y4SS11N3/skillsync-realtime/pkg/errs"
)

type Server struct {
	store    *Store
	hub      *Hub
	upgrader websocket.Upgrader
	log      *slog.Logger

	pingEvery time.Duration
}

func New(store *Store, log *slog.Logger) *Server {
	if log == nil {
		log = slog.Default()
	}
	return &Server{
		store: store,
		hub:   NewHub(),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		log:       log,
		pingEvery: 15 * time.Second,
	}
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Authorization", "Content-Type", "X-User-ID"},
	}))

	// WS endpoint: GET /ws?access_token=...&user_id=...
	r.Get("/ws", s.handleWS)

	r.Group(func(pr chi.Router) {
		pr.Use(authMiddleware)
		pr.Use(chimw.Timeout(30 * time.Second))

		pr.Get("/rooms/by-exchange/{exchangeID}", s.handleRoomByExchange)
		pr.Get("/rooms/{id}/messages", s.handleHistory)
		pr.Post("/messages", s.handleSendMessage)
		pr.Post("/live-sessions", s.handleInitSession)
	})

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	return r
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, err error, msg string) {
	writeJSON(w, errs.ToHTTP(err), rest.ErrorResponse{Error: msg})
}

// GET /rooms/by-exchange/{exchangeID}
func (s *Server) handleRoomByExchange(w http.ResponseWriter, r *http.Request) {
	exchangeID, err := strconv.ParseInt(chi.URLParam(r, "exchangeID"), 10, 64)
	if err != nil || exchangeID <= 0 {
		writeError(w, errs.ErrValidation, "invalid exchange id")
		return
	}

	room, err := s.store.RoomByExchange(r.Context(), exchangeID)
	if err != nil {
		s.log.Error("room by exchange", "exchange", exchangeID, "err", err)
		writeError(w, errs.ErrUpstream, "storage error")
		return
	}
	writeJSON(w, http.StatusOK, room)
}

// GET /rooms/{id}/messages
func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	roomID := chi.URLParam(r, "id")
	history, err := s.store.History(r.Context(), roomID)
	if err != nil {
		s.log.Error("history", "room", roomID, "err", err)
		writeError(w, errs.ErrUpstream, "storage error")
		return
	}
	writeJSON(w, http.StatusOK, history)
}

// POST /messages
func (s *Server) handleSendMessage(w http.ResponseWriter, r *http.Request) {
	var req rest.SendMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, errs.ErrValidation, "invalid json")
		return
	}
	if req.RoomID == "" || strings.TrimSpace(req.Content) == "" {
		writeError(w, errs.ErrValidation, "room_id and content are required")
		return
	}

	msg, err := s.store.SaveMessage(r.Context(), req.RoomID, userIDFromCtx(r.Context()), req.Content)
	if err != nil {
		s.log.Error("save message", "room", req.RoomID, "err", err)
		writeError(w, errs.ErrUpstream, "storage error")
		return
	}

	s.broadcast(msg)
	writeJSON(w, http.StatusCreated, msg)
}

// POST /live-sessions — сервис инициализации живых сессий.
// Внутренности peer-соединения вне зоны ответственности: выдаём id и токен.
func (s *Server) handleInitSession(w http.ResponseWriter, r *http.Request) {
	var req rest.InitSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, errs.ErrValidation, "invalid json")
		return
	}
	if req.ExchangeID <= 0 {
		writeError(w, errs.ErrValidation, "exchange_id is required")
		return
	}

	writeJSON(w, http.StatusCreated, domain.LiveSession{
		SessionID:  uuid.NewString(),
		ExchangeID: req.ExchangeID,
		Status:     domain.SessionStatusWaiting,
		Token:      "tok-" + uuid.NewString(),
	})
}

// broadcast рассылает сообщение в комнату; сигналинг уходит отдельным
// типом кадра, чтобы клиенты могли подписаться только на него.
func (s *Server) broadcast(msg domain.Message) {
	payload, err := json.Marshal(realtime.MessagePayload{Message: msg})
	if err != nil {
		s.log.Error("marshal broadcast", "err", err)
		return
	}

	frameType := realtime.TypeNewMessage
	switch envelope.Decode(msg.Content).Kind() {
	case envelope.KindInvitation, envelope.KindAccepted:
		frameType = realtime.TypeLiveExchange
	}
	s.hub.Broadcast(msg.RoomID, realtime.Frame{Type: frameType, Payload: payload})
}

// --- WS ---

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	if strings.TrimSpace(q.Get("access_token")) == "" {
		http.Error(w, "missing access_token", http.StatusUnauthorized)
		return
	}
	uid, err := strconv.ParseInt(strings.TrimSpace(q.Get("user_id")), 10, 64)
	if err != nil || uid <= 0 {
		http.Error(w, "invalid user_id", http.StatusUnauthorized)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn("ws upgrade failed", "err", err)
		return
	}

	c := newWSConn(conn, uid)
	go s.writeLoop(r.Context(), c)
	s.readLoop(c)

	s.hub.Drop(c)
	_ = c.Close()
}

func (s *Server) readLoop(c *wsConn) {
	defer func() { _ = c.Close() }()

	c.conn.SetReadLimit(1 << 20)
	_ = c.conn.SetReadDeadline(time.Now().Add(2 * s.pingEvery))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(2 * s.pingEvery))
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			return
		}
		var f realtime.Frame
		if err := json.Unmarshal(data, &f); err != nil {
			continue
		}

		switch f.Type {
		case realtime.TypeJoinRoom, realtime.TypeLeaveRoom:
			var p realtime.RoomPayload
			if json.Unmarshal(f.Payload, &p) != nil || p.RoomID == "" {
				continue
			}
			if f.Type == realtime.TypeJoinRoom {
				s.hub.Join(p.RoomID, c)
			} else {
				s.hub.Leave(p.RoomID, c)
			}
			s.log.Debug("ws room frame", "type", f.Type, "room", p.RoomID, "user", c.userID)
		default:
			// ignore
		}
	}
}

func (s *Server) writeLoop(ctx context.Context, c *wsConn) {
	ticker := time.NewTicker(s.pingEvery)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			_ = c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(5*time.Second))
		case <-ctx.Done():
			return
		case <-c.closed:
			return
		}
	}
}

// --- auth ---

type ctxKey string

const ctxKeyUserID ctxKey = "user_id"

// токен принимаем как opaque: выпуск и проверка — зона auth-сервиса
func authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth := r.Header.Get("Authorization")
		if !strings.HasPrefix(auth, "Bearer ") || len(auth) <= 7 {
			writeJSON(w, http.StatusUnauthorized, rest.ErrorResponse{Error: "missing bearer token"})
			return
		}

		uid, err := strconv.ParseInt(r.Header.Get("X-User-ID"), 10, 64)
		if err != nil || uid <= 0 {
			writeJSON(w, http.StatusUnauthorized, rest.ErrorResponse{Error: "missing or invalid X-User-ID"})
			return
		}

		ctx := context.WithValue(r.Context(), ctxKeyUserID, uid)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func userIDFromCtx(ctx context.Context) int64 {
	if id, ok := ctx.Value(ctxKeyUserID).(int64); ok {
		return id
	}
	return 0
}
