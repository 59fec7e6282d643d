// Package store — упорядоченный журнал сообщений по комнатам с дедупликацией
// по id и счётчиками непрочитанного. Единственный владелец журналов:
// остальные компоненты общаются с ним вызовами, а не разделяемой памятью.
package store

import (
	"sort"
	"sync"

	"github.com/Y4SS11N3/skillsync-realtime/internal/domain"
)

type Store struct {
	mu     sync.RWMutex
	rooms  map[string]*roomLog
	unread map[string]int
}

type roomLog struct {
	messages []domain.Message // в порядке вставки
	byID     map[string]int   // id -> индекс в messages
}

func New() *Store {
	return &Store{
		rooms:  make(map[string]*roomLog),
		unread: make(map[string]int),
	}
}

// Append добавляет сообщение в журнал комнаты. Идемпотентно по message.ID:
// повторное добавление (оптимистичное эхо + live-доставка) — no-op.
// Возвращает true, если сообщение действительно добавлено.
func (s *Store) Append(roomID string, msg domain.Message) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	log := s.room(roomID)
	if _, exists := log.byID[msg.ID]; exists {
		return false
	}
	log.byID[msg.ID] = len(log.messages)
	log.messages = append(log.messages, msg)
	return true
}

// Get возвращает сообщения комнаты по возрастанию CreatedAt;
// при равных таймстампах сохраняется порядок вставки.
func (s *Store) Get(roomID string) []domain.Message {
	s.mu.RLock()
	defer s.mu.RUnlock()

	log, ok := s.rooms[roomID]
	if !ok {
		return nil
	}
	out := make([]domain.Message, len(log.messages))
	copy(out, log.messages)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

// Len — размер журнала комнаты.
func (s *Store) Len(roomID string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if log, ok := s.rooms[roomID]; ok {
		return len(log.messages)
	}
	return 0
}

// ResolvePending заменяет оптимистичную запись подтверждённой сервером.
// Если подтверждённый id уже в журнале (эхо пришло раньше ответа REST),
// provisional-запись просто удаляется.
func (s *Store) ResolvePending(roomID, provisionalID string, confirmed domain.Message) {
	s.mu.Lock()
	defer s.mu.Unlock()

	log := s.room(roomID)
	idx, ok := log.byID[provisionalID]
	if !ok {
		return
	}

	if _, dup := log.byID[confirmed.ID]; dup && confirmed.ID != provisionalID {
		log.messages = append(log.messages[:idx], log.messages[idx+1:]...)
		delete(log.byID, provisionalID)
		log.reindex()
		return
	}

	confirmed.Pending = false
	log.messages[idx] = confirmed
	delete(log.byID, provisionalID)
	log.byID[confirmed.ID] = idx
}

// IncrUnread — +1 непрочитанных комнаты. Решение «считать или нет»
// принимает notify-мост, store только хранит счётчик.
func (s *Store) IncrUnread(roomID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.unread[roomID]++
}

// ResetUnread вызывается потребителем ровно в момент фокусировки комнаты.
func (s *Store) ResetUnread(roomID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.unread, roomID)
}

func (s *Store) UnreadCount(roomID string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.unread[roomID]
}

func (s *Store) room(roomID string) *roomLog {
	log, ok := s.rooms[roomID]
	if !ok {
		log = &roomLog{byID: make(map[string]int)}
		s.rooms[roomID] = log
	}
	return log
}

func (l *roomLog) reindex() {
	for i, m := range l.messages {
		l.byID[m.ID] = i
	}
}
