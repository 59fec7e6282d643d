// Package chat — оркестратор: открывает комнату обмена, сливает историю с
// live-событиями, раздаёт действия отправки сообщений/приглашений/принятий.
package chat

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/Y4SS11N3/skillsync-realtime/internal/domain"
	"github.com/Y4SS11N3/skillsync-realtime/internal/envelope"
	"github.com/Y4SS11N3/skillsync-realtime/internal/notify"
	"github.com/Y4SS11N3/skillsync-realtime/internal/realtime"
	"github.com/Y4SS11N3/skillsync-realtime/internal/rest"
	"github.com/Y4SS11N3/skillsync-realtime/internal/session"
	"github.com/Y4SS11N3/skillsync-realtime/internal/store"
	"github.com/Y4SS11N3/skillsync-realtime/pkg/errs"
)

// ErrSuperseded — REST-ответ пришёл после того, как фокус ушёл в другую
// комнату; результат отброшен.
var ErrSuperseded = errors.New("open room superseded")

// RoomEvent — live-событие открытой комнаты для потребительского слоя.
type RoomEvent struct {
	RoomID   string
	Message  domain.Message
	Envelope envelope.Envelope
}

type Options struct {
	Realtime *realtime.Client
	API      rest.Client
	Store    *store.Store
	Bridge   *notify.Bridge
	UserID   int64
	Logger   *slog.Logger

	// OnRoomEvent — хук открытой комнаты (перерисовка UI и т.п.).
	OnRoomEvent func(RoomEvent)
	// OnSessionHandoff — передача управления peer-сессии после Join.
	OnSessionHandoff func(domain.LiveSession)
}

type Orchestrator struct {
	rt     *realtime.Client
	api    rest.Client
	msgs   *store.Store
	bridge *notify.Bridge
	userID int64
	log    *slog.Logger

	onRoomEvent      func(RoomEvent)
	onSessionHandoff func(domain.LiveSession)

	mu       sync.Mutex
	open     *openRoom
	joined   map[string]struct{}         // комнаты, за которыми следим (включая нефокусные)
	machines map[string]*session.Machine // roomID -> машина сессии
	epoch    uint64

	baseSubs []*realtime.Subscription
}

type openRoom struct {
	room domain.Room
	subs []*realtime.Subscription
}

func New(opts Options) *Orchestrator {
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}
	o := &Orchestrator{
		rt:               opts.Realtime,
		api:              opts.API,
		msgs:             opts.Store,
		bridge:           opts.Bridge,
		userID:           opts.UserID,
		log:              log,
		onRoomEvent:      opts.OnRoomEvent,
		onSessionHandoff: opts.OnSessionHandoff,
		joined:           make(map[string]struct{}),
		machines:         make(map[string]*session.Machine),
	}

	// Базовые подписки живут столько же, сколько оркестратор:
	// ingest всех входящих и повторный join после reconnect.
	o.baseSubs = append(o.baseSubs,
		o.rt.On(realtime.EventNewMessage, o.ingest),
		o.rt.On(realtime.EventLiveExchange, o.ingest),
		o.rt.On(realtime.EventConnected, func(realtime.Event) { o.rejoinOpenRooms() }),
	)
	return o
}

// Close снимает все подписки оркестратора.
func (o *Orchestrator) Close() {
	o.CloseRoom()
	for _, s := range o.baseSubs {
		s.Unsubscribe()
	}
	o.baseSubs = nil
}

// OpenRoom: exchange -> room (REST), join, история, merge в store, подписка
// на live-события комнаты. Переключение комнат снимает обработчики
// предыдущей; запоздавшие REST-ответы отбрасываются.
func (o *Orchestrator) OpenRoom(ctx context.Context, exchangeID int64) (domain.Room, error) {
	if exchangeID == 0 {
		return domain.Room{}, fmt.Errorf("%w: exchange id is required", errs.ErrValidation)
	}

	o.mu.Lock()
	o.epoch++
	my := o.epoch
	o.closeOpenLocked()
	o.mu.Unlock()

	room, err := o.api.RoomByExchange(ctx, exchangeID)
	if err != nil {
		return domain.Room{}, fmt.Errorf("resolve room for exchange %d: %w", exchangeID, err)
	}

	o.mu.Lock()
	if o.epoch != my {
		o.mu.Unlock()
		o.log.Debug("discarding stale room resolution", "room", room.ID, "exchange", exchangeID)
		return domain.Room{}, ErrSuperseded
	}
	o.open = &openRoom{room: room}
	// предыдущая комната остаётся в членстве: непрочитанные копятся фоном
	o.joined[room.ID] = struct{}{}
	o.mu.Unlock()

	o.rt.JoinRoom(room.ID)

	history, err := o.api.History(ctx, room.ID)
	if err != nil {
		return domain.Room{}, fmt.Errorf("fetch history for room %s: %w", room.ID, err)
	}

	o.mu.Lock()
	if o.epoch != my {
		o.mu.Unlock()
		o.log.Debug("discarding stale history", "room", room.ID)
		return domain.Room{}, ErrSuperseded
	}
	o.mu.Unlock()

	for _, msg := range history {
		if o.msgs.Append(room.ID, msg) {
			o.routeEnvelope(msg)
		}
	}

	forward := func(ev realtime.Event) {
		if ev.RoomID != room.ID || o.onRoomEvent == nil {
			return
		}
		o.onRoomEvent(RoomEvent{
			RoomID:   ev.RoomID,
			Message:  ev.Message,
			Envelope: envelope.Decode(ev.Message.Content),
		})
	}

	o.mu.Lock()
	if o.epoch != my {
		o.mu.Unlock()
		return domain.Room{}, ErrSuperseded
	}
	// регистрация и снятие строго парные: subs живут в open и снимаются
	// в closeOpenLocked при переключении
	o.open.subs = append(o.open.subs,
		o.rt.On(realtime.EventNewMessage, forward),
		o.rt.On(realtime.EventLiveExchange, forward),
	)
	o.mu.Unlock()

	o.bridge.SetFocused(room.ID)
	return room, nil
}

// CloseRoom снимает обработчики текущей комнаты, выходит из неё и убирает фокус.
func (o *Orchestrator) CloseRoom() {
	o.mu.Lock()
	o.epoch++
	roomID := o.closeOpenLocked()
	delete(o.joined, roomID)
	o.mu.Unlock()

	if roomID != "" {
		o.rt.LeaveRoom(roomID)
		o.bridge.SetFocused("")
	}
}

func (o *Orchestrator) closeOpenLocked() (roomID string) {
	if o.open == nil {
		return ""
	}
	for _, s := range o.open.subs {
		s.Unsubscribe()
	}
	roomID = o.open.room.ID
	o.open = nil
	return roomID
}

// SendText: конверт -> REST -> оптимистичный локальный append.
// Live-эхо поглощается дедупликацией store.
func (o *Orchestrator) SendText(ctx context.Context, roomID, text string) (domain.Message, error) {
	if roomID == "" || text == "" {
		return domain.Message{}, fmt.Errorf("%w: room and text are required", errs.ErrValidation)
	}
	content, err := envelope.Encode(envelope.Text{Content: text})
	if err != nil {
		return domain.Message{}, err
	}
	return o.sendContent(ctx, roomID, content)
}

// SendInvitation: сессию выделяет внешний сервис инициализации, машина
// переходит в Invited(initiator), конверт уходит сообщением в комнату.
func (o *Orchestrator) SendInvitation(ctx context.Context, roomID string, exchangeID int64) (domain.Message, error) {
	if roomID == "" || exchangeID == 0 {
		return domain.Message{}, fmt.Errorf("%w: room and exchange id are required", errs.ErrValidation)
	}

	sess, err := o.api.InitSession(ctx, exchangeID)
	if err != nil {
		return domain.Message{}, fmt.Errorf("init live session: %w", err)
	}

	inv, err := o.machine(roomID).SendInvitation(sess, roomID)
	if err != nil {
		return domain.Message{}, err
	}

	content, err := envelope.Encode(inv)
	if err != nil {
		return domain.Message{}, err
	}
	return o.sendContent(ctx, roomID, content)
}

// AcceptInvitation — пользовательское действие, поэтому невалидный конверт
// это ошибка валидации, а не тихий no-op.
func (o *Orchestrator) AcceptInvitation(ctx context.Context, msg domain.Message) (domain.Message, error) {
	env := envelope.Decode(msg.Content)
	inv, ok := env.(envelope.Invitation)
	if !ok {
		return domain.Message{}, fmt.Errorf("%w: message is not a live exchange invitation", errs.ErrValidation)
	}
	if inv.SessionID == "" || inv.ExchangeID == 0 {
		return domain.Message{}, fmt.Errorf("%w: invitation lacks sessionId or exchangeId", errs.ErrValidation)
	}
	if msg.RoomID == "" {
		return domain.Message{}, fmt.Errorf("%w: invitation message has no room", errs.ErrValidation)
	}

	m := o.machine(msg.RoomID)
	// машина могла не видеть приглашение (история не загружалась) — докатываем
	m.ReceiveInvitation(inv)

	sess, err := o.api.InitSession(ctx, inv.ExchangeID)
	if err != nil {
		return domain.Message{}, fmt.Errorf("obtain join token: %w", err)
	}

	acc, err := m.Accept(inv.SessionID, sess.Token)
	if err != nil {
		return domain.Message{}, err
	}

	content, err := envelope.Encode(acc)
	if err != nil {
		return domain.Message{}, err
	}
	return o.sendContent(ctx, msg.RoomID, content)
}

// JoinSession: Accepted -> Joined, дальше управление у peer-сессии.
func (o *Orchestrator) JoinSession(sessionID, token string, isInitiator bool) error {
	if sessionID == "" || token == "" {
		return fmt.Errorf("%w: session id and token are required", errs.ErrValidation)
	}

	m := o.machineBySession(sessionID)
	if m == nil {
		return fmt.Errorf("%w: %s", errs.ErrSessionMismatch, sessionID)
	}
	if err := m.Join(sessionID, token); err != nil {
		return err
	}

	if o.onSessionHandoff != nil {
		snap := m.Snapshot()
		o.onSessionHandoff(domain.LiveSession{
			SessionID:  snap.SessionID,
			ExchangeID: snap.ExchangeID,
			Status:     domain.SessionStatusActive,
			Token:      token,
		})
	}
	return nil
}

// DeclineOrEnd завершает сессию комнаты из любого состояния.
func (o *Orchestrator) DeclineOrEnd(roomID string) {
	o.machine(roomID).End()
}

// SessionState — локальный снапшот машины комнаты.
func (o *Orchestrator) SessionState(roomID string) session.Snapshot {
	return o.machine(roomID).Snapshot()
}

func (o *Orchestrator) Messages(roomID string) []domain.Message {
	return o.msgs.Get(roomID)
}

func (o *Orchestrator) Unread(roomID string) int {
	return o.bridge.TotalUnread(roomID)
}

// --- внутренности ---

func (o *Orchestrator) sendContent(ctx context.Context, roomID, content string) (domain.Message, error) {
	// оптимистичная запись с клиентским id; id-дедупликация store —
	// механизм примирения с live-эхом
	provisional := domain.Message{
		ID:        uuid.NewString(),
		RoomID:    roomID,
		SenderID:  o.userID,
		Content:   content,
		CreatedAt: time.Now(),
		Pending:   true,
	}
	o.msgs.Append(roomID, provisional)

	confirmed, err := o.api.SendMessage(ctx, roomID, content)
	if err != nil {
		o.log.Warn("send failed, local message stays pending", "room", roomID, "err", err)
		return provisional, err
	}

	o.msgs.ResolvePending(roomID, provisional.ID, confirmed)
	return confirmed, nil
}

// ingest — единая точка входа live-сообщений: append, unread, маршрутизация
// сигналинга в машину состояний.
func (o *Orchestrator) ingest(ev realtime.Event) {
	if ev.Message.ID == "" {
		return
	}
	if !o.msgs.Append(ev.RoomID, ev.Message) {
		return // дубликат: собственное эхо либо повторная доставка
	}
	env := o.routeEnvelope(ev.Message)
	o.bridge.OnInbound(ev.Message, env)
}

func (o *Orchestrator) routeEnvelope(msg domain.Message) envelope.Envelope {
	env := envelope.Decode(msg.Content)
	switch e := env.(type) {
	case envelope.Invitation:
		m := o.machine(msg.RoomID)
		if msg.SenderID == o.userID {
			m.RestoreOwnInvitation(e)
		} else {
			m.ReceiveInvitation(e)
		}
	case envelope.Accepted:
		if msg.SenderID != o.userID {
			o.machine(msg.RoomID).ReceiveAccepted(e)
		}
	case envelope.Unknown:
		o.log.Info("unknown envelope type ignored", "room", msg.RoomID, "type", e.Type)
	}
	return env
}

// rejoinOpenRooms — после reconnect членство на транспорте потеряно;
// восстанавливаем join для всех отслеживаемых комнат.
func (o *Orchestrator) rejoinOpenRooms() {
	o.mu.Lock()
	rooms := make([]string, 0, len(o.joined))
	for r := range o.joined {
		rooms = append(rooms, r)
	}
	o.mu.Unlock()

	for _, roomID := range rooms {
		o.log.Info("reconnected, rejoining room", "room", roomID)
		o.rt.JoinRoom(roomID)
	}
}

func (o *Orchestrator) machine(roomID string) *session.Machine {
	o.mu.Lock()
	defer o.mu.Unlock()
	m, ok := o.machines[roomID]
	if !ok {
		m = session.NewMachine(o.log)
		o.machines[roomID] = m
	}
	return m
}

func (o *Orchestrator) machineBySession(sessionID string) *session.Machine {
	o.mu.Lock()
	defer o.mu.Unlock()
	for _, m := range o.machines {
		if m.Snapshot().SessionID == sessionID {
			return m
		}
	}
	return nil
}
