package session

import (
	"strings"
	"time"

	"github.com/sirupsen/logrus"
)

// Domain семейство процессов, блокировки разных доменов независимы
type Domain string

const (
	DomainEntry  Domain = "entry"
	DomainUpdate Domain = "update"
	DomainPurge  Domain = "purge"
)

// Domains все домены в порядке отображения
var Domains = []Domain{DomainEntry, DomainUpdate, DomainPurge}

// Cleared сведения о сброшенной блокировке
type Cleared struct {
	Domain  Domain
	HeldFor time.Duration
}

// Manager выдает пользователю не больше одной блокировки на домен
type Manager struct {
	store   Store
	timeout time.Duration
	now     func() time.Time
	logger  *logrus.Entry
}

// NewManager создает менеджер блокировок поверх хранилища
func NewManager(store Store, timeout time.Duration, logger *logrus.Entry) *Manager {
	return &Manager{
		store:   store,
		timeout: timeout,
		now:     time.Now,
		logger:  logger.WithField("component", "session"),
	}
}

// Timeout таймаут автоосвобождения по умолчанию
func (m *Manager) Timeout() time.Duration {
	return m.timeout
}

func key(d Domain, userID string) string {
	return string(d) + ":" + userID
}

// TryAcquire берет блокировку, false если пользователь уже в процессе
func (m *Manager) TryAcquire(d Domain, userID string) bool {
	ok := m.store.SetIfAbsent(key(d, userID), Session{
		UserID:     userID,
		Domain:     d,
		AcquiredAt: m.now(),
	})
	if ok {
		m.logger.WithFields(logrus.Fields{"domain": d, "user_id": userID}).Debug("Lock acquired")
	}
	return ok
}

// Release снимает блокировку вместе с состоянием и таймером. Идемпотентен.
func (m *Manager) Release(d Domain, userID string) (Session, bool) {
	s, ok := m.store.Delete(key(d, userID))
	if ok {
		m.logger.WithFields(logrus.Fields{
			"domain":   d,
			"user_id":  userID,
			"held_for": m.now().Sub(s.AcquiredAt).Round(time.Millisecond).String(),
		}).Debug("Lock released")
	}
	return s, ok
}

// ScheduleAutoRelease (пере)заводит таймер принудительного освобождения
func (m *Manager) ScheduleAutoRelease(d Domain, userID string, after time.Duration) bool {
	return m.store.Expire(key(d, userID), after, func(s Session) {
		m.logger.WithFields(logrus.Fields{
			"domain":  s.Domain,
			"user_id": s.UserID,
			"after":   after.String(),
		}).Info("Lock auto-released after inactivity")
	})
}

// Touch продлевает блокировку на таймаут по умолчанию
func (m *Manager) Touch(d Domain, userID string) bool {
	return m.ScheduleAutoRelease(d, userID, m.timeout)
}

// Held true если у пользователя есть блокировка домена
func (m *Manager) Held(d Domain, userID string) bool {
	_, ok := m.store.Get(key(d, userID))
	return ok
}

// State возвращает транзиентное состояние процесса
func (m *Manager) State(d Domain, userID string) (any, bool) {
	s, ok := m.store.Get(key(d, userID))
	if !ok || s.State == nil {
		return nil, false
	}
	return s.State, true
}

// SetState сохраняет состояние. false если блокировки уже нет.
func (m *Manager) SetState(d Domain, userID string, state any) bool {
	k := key(d, userID)
	s, ok := m.store.Get(k)
	if !ok {
		return false
	}
	s.State = state
	return m.store.Set(k, s)
}

// ClaimState атомарно забирает состояние, подходящее под match, и оставляет блокировку пустой.
// Второй конкурентный вызов получит false. После сбоя состояние возвращают через SetState.
func (m *Manager) ClaimState(d Domain, userID string, match func(any) bool) (any, bool) {
	var claimed any
	ok := m.store.Update(key(d, userID), func(s *Session) bool {
		if s.State == nil || (match != nil && !match(s.State)) {
			return false
		}
		claimed = s.State
		s.State = nil
		return true
	})
	if !ok {
		return nil, false
	}
	return claimed, true
}

// ClearState сбрасывает состояние, оставляя блокировку
func (m *Manager) ClearState(d Domain, userID string) {
	m.SetState(d, userID, nil)
}

// ClearUser снимает все блокировки пользователя и сообщает, сколько они держались
func (m *Manager) ClearUser(userID string) []Cleared {
	var out []Cleared
	now := m.now()
	for _, d := range Domains {
		if s, ok := m.store.Delete(key(d, userID)); ok {
			out = append(out, Cleared{Domain: d, HeldFor: now.Sub(s.AcquiredAt)})
		}
	}

	if len(out) > 0 {
		m.logger.WithFields(logrus.Fields{"user_id": userID, "cleared": len(out)}).Info("User sessions cleared")
	}
	return out
}

// Active количество блокировок по доменам
func (m *Manager) Active() map[Domain]int {
	out := make(map[Domain]int, len(Domains))
	for _, k := range m.store.Keys() {
		if i := strings.IndexByte(k, ':'); i > 0 {
			out[Domain(k[:i])]++
		}
	}
	return out
}
