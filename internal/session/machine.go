package session

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/Y4SS11N3/skillsync-realtime/internal/domain"
	"github.com/Y4SS11N3/skillsync-realtime/internal/envelope"
	"github.com/Y4SS11N3/skillsync-realtime/pkg/errs"
)

// Machine — потокобезопасная обёртка над редьюсером для одной комнаты.
// Пользовательские операции возвращают ошибку; операции, управляемые
// входящими конвертами, логируются и игнорируются при несовпадении.
type Machine struct {
	mu  sync.Mutex
	cur Snapshot
	log *slog.Logger
}

func NewMachine(log *slog.Logger) *Machine {
	if log == nil {
		log = slog.Default()
	}
	return &Machine{cur: Snapshot{State: StateIdle}, log: log}
}

func (m *Machine) Snapshot() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.cur
}

// SendInvitation переводит Idle -> Invited(initiator). Сессию выделяет
// внешний сервис инициализации; здесь только формируем конверт.
func (m *Machine) SendInvitation(sess domain.LiveSession, roomID string) (envelope.Invitation, error) {
	if roomID == "" {
		return envelope.Invitation{}, fmt.Errorf("%w: target room is required", errs.ErrValidation)
	}
	inv := envelope.Invitation{
		SessionID:   sess.SessionID,
		ExchangeID:  sess.ExchangeID,
		Status:      domain.SessionStatusWaiting,
		IsInitiator: true,
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	next, err := Reduce(m.cur, InvitationSent{Inv: inv})
	if err != nil {
		return envelope.Invitation{}, err
	}
	m.cur = next
	return inv, nil
}

// ReceiveInvitation фиксирует входящее приглашение. Дубликаты и собственное
// эхо — no-op. Возвращает true, если состояние изменилось.
func (m *Machine) ReceiveInvitation(inv envelope.Invitation) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	// собственное эхо от live-доставки
	if m.cur.Role == RoleInitiator && m.cur.SessionID == inv.SessionID {
		return false
	}

	next, err := Reduce(m.cur, InvitationReceived{Inv: inv})
	if err != nil {
		m.log.Debug("invitation ignored", "session_id", inv.SessionID, "state", m.cur.State, "err", err)
		return false
	}
	m.cur = next
	return true
}

// RestoreOwnInvitation восстанавливает роль инициатора из собственного
// приглашения, увиденного в истории после перезагрузки.
func (m *Machine) RestoreOwnInvitation(inv envelope.Invitation) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.cur.SessionID == inv.SessionID && m.cur.State != StateIdle {
		return false // уже учтено
	}
	next, err := Reduce(m.cur, InvitationSent{Inv: inv})
	if err != nil {
		m.log.Debug("own invitation not restored", "session_id", inv.SessionID, "state", m.cur.State, "err", err)
		return false
	}
	m.cur = next
	return true
}

// Accept переводит Invited(recipient) -> Accepted и формирует ответный
// конверт. sessionID — из приглашения, которое пользователь реально выбрал:
// несовпадение с ожидаемой сессией — ошибка, а не тихое принятие другой.
func (m *Machine) Accept(sessionID, token string) (envelope.Accepted, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	acc := envelope.Accepted{
		SessionID:  sessionID,
		ExchangeID: m.cur.ExchangeID,
		Token:      token,
	}
	next, err := Reduce(m.cur, AcceptLocal{Acc: acc})
	if err != nil {
		return envelope.Accepted{}, err
	}
	m.cur = next
	return acc, nil
}

// ReceiveAccepted обрабатывает входящее принятие у инициатора.
// Чужой sessionId логируется и игнорируется.
func (m *Machine) ReceiveAccepted(acc envelope.Accepted) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	next, err := Reduce(m.cur, AcceptedReceived{Acc: acc})
	if err != nil {
		if errors.Is(err, errs.ErrSessionMismatch) {
			m.log.Warn("stale accepted signaling ignored", "session_id", acc.SessionID, "local", m.cur.SessionID)
		} else {
			m.log.Debug("accepted ignored", "session_id", acc.SessionID, "state", m.cur.State, "err", err)
		}
		return false
	}
	m.cur = next
	return true
}

// Join переводит Accepted -> Joined; дальше управление у peer-сессии.
func (m *Machine) Join(sessionID, token string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	next, err := Reduce(m.cur, JoinLocal{SessionID: sessionID, Token: token})
	if err != nil {
		return err
	}
	m.cur = next
	return nil
}

// End — отклонение либо явное завершение из любого состояния.
func (m *Machine) End() {
	m.mu.Lock()
	defer m.mu.Unlock()
	next, _ := Reduce(m.cur, EndLocal{})
	m.cur = next
}
