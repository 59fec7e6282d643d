// Package session — машина состояний приглашения в живую сессию обмена.
//
// Каждая сторона восстанавливает состояние независимо, из последовательности
// конвертов, которые она лично наблюдала; общего авторитетного стора нет.
// Поэтому ядро — чистый редьюсер без сети и без разделяемой памяти.
package session

import (
	"fmt"

	"github.com/Y4SS11N3/skillsync-realtime/internal/envelope"
	"github.com/Y4SS11N3/skillsync-realtime/pkg/errs"
)

type State string

const (
	StateIdle     State = "idle"
	StateInvited  State = "invited"
	StateAccepted State = "accepted"
	StateJoined   State = "joined"
	StateEnded    State = "ended" // терминальное
)

type Role string

const (
	RoleNone      Role = ""
	RoleInitiator Role = "initiator"
	RoleRecipient Role = "recipient"
)

// Snapshot — текущее локальное представление сессии.
type Snapshot struct {
	State      State
	Role       Role
	SessionID  string
	ExchangeID int64
	Status     string
	Token      string
}

type Event interface{ isEvent() }

// InvitationSent — локальная отправка приглашения (инициатор).
type InvitationSent struct{ Inv envelope.Invitation }

// InvitationReceived — входящее приглашение (получатель).
type InvitationReceived struct{ Inv envelope.Invitation }

// AcceptLocal — локальное принятие приглашения получателем.
type AcceptLocal struct{ Acc envelope.Accepted }

// AcceptedReceived — входящее принятие (инициатор ждёт его).
type AcceptedReceived struct{ Acc envelope.Accepted }

// JoinLocal — вход в сессию после принятия.
type JoinLocal struct {
	SessionID string
	Token     string
}

// EndLocal — явное завершение/отклонение.
type EndLocal struct{}

func (InvitationSent) isEvent()     {}
func (InvitationReceived) isEvent() {}
func (AcceptLocal) isEvent()        {}
func (AcceptedReceived) isEvent()   {}
func (JoinLocal) isEvent()          {}
func (EndLocal) isEvent()           {}

// Reduce — единственное место, где меняется состояние сессии.
// Ошибка означает «перехода нет»; снапшот при ошибке не меняется.
func Reduce(s Snapshot, ev Event) (Snapshot, error) {
	if s.State == StateEnded {
		if _, ok := ev.(EndLocal); ok {
			return s, nil
		}
		return s, fmt.Errorf("%w: session already ended", errs.ErrValidation)
	}

	switch e := ev.(type) {
	case InvitationSent:
		if s.State != StateIdle {
			return s, fmt.Errorf("%w: invitation already in progress (state=%s)", errs.ErrValidation, s.State)
		}
		if e.Inv.SessionID == "" || e.Inv.ExchangeID == 0 {
			return s, fmt.Errorf("%w: invitation requires sessionId and exchangeId", errs.ErrValidation)
		}
		return Snapshot{
			State:      StateInvited,
			Role:       RoleInitiator,
			SessionID:  e.Inv.SessionID,
			ExchangeID: e.Inv.ExchangeID,
			Status:     e.Inv.Status,
		}, nil

	case InvitationReceived:
		if s.State != StateIdle {
			// дубликат или собственное эхо: фиксируем только первое приглашение
			return s, fmt.Errorf("%w: ignoring invitation in state %s", errs.ErrValidation, s.State)
		}
		return Snapshot{
			State:      StateInvited,
			Role:       RoleRecipient,
			SessionID:  e.Inv.SessionID,
			ExchangeID: e.Inv.ExchangeID,
			Status:     e.Inv.Status,
		}, nil

	case AcceptLocal:
		if s.State != StateInvited || s.Role != RoleRecipient {
			return s, fmt.Errorf("%w: nothing to accept (state=%s role=%s)", errs.ErrValidation, s.State, s.Role)
		}
		if s.SessionID == "" || s.ExchangeID == 0 {
			return s, fmt.Errorf("%w: pending invitation lacks sessionId or exchangeId", errs.ErrValidation)
		}
		if e.Acc.SessionID != s.SessionID {
			return s, fmt.Errorf("%w: accept for %q, pending is %q", errs.ErrSessionMismatch, e.Acc.SessionID, s.SessionID)
		}
		next := s
		next.State = StateAccepted
		next.Token = e.Acc.Token
		return next, nil

	case AcceptedReceived:
		if s.State != StateInvited || s.Role != RoleInitiator {
			return s, fmt.Errorf("%w: unexpected accepted in state %s", errs.ErrValidation, s.State)
		}
		// Защита от устаревшего/дублированного сигналинга после reload:
		// чужой sessionId — no-op, не ошибка протокола.
		if e.Acc.SessionID != s.SessionID {
			return s, fmt.Errorf("%w: accepted for %q, local invitation is %q", errs.ErrSessionMismatch, e.Acc.SessionID, s.SessionID)
		}
		next := s
		next.State = StateAccepted
		next.Token = e.Acc.Token
		return next, nil

	case JoinLocal:
		if s.State != StateAccepted {
			return s, fmt.Errorf("%w: join requires accepted session (state=%s)", errs.ErrValidation, s.State)
		}
		if e.SessionID == "" || e.Token == "" {
			return s, fmt.Errorf("%w: join requires sessionId and token", errs.ErrValidation)
		}
		if e.SessionID != s.SessionID {
			return s, fmt.Errorf("%w: join for %q, local session is %q", errs.ErrSessionMismatch, e.SessionID, s.SessionID)
		}
		next := s
		next.State = StateJoined
		next.Token = e.Token
		return next, nil

	case EndLocal:
		next := s
		next.State = StateEnded
		return next, nil
	}

	return s, fmt.Errorf("%w: unsupported event %T", errs.ErrValidation, ev)
}
