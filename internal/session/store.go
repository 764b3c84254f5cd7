package session

import (
	"sync"
	"time"
)

// Session транзиентное состояние пользователя в одном процессе
type Session struct {
	UserID     string
	Domain     Domain
	AcquiredAt time.Time
	State      any
}

// Store хранилище сессий. Реализация для нескольких инстансов может жить в общем кэше.
type Store interface {
	Get(key string) (Session, bool)
	// SetIfAbsent записывает сессию, только если ключ свободен
	SetIfAbsent(key string, s Session) bool
	// Set заменяет существующую сессию, false если ключа нет
	Set(key string, s Session) bool
	Delete(key string) (Session, bool)
	// Update атомарно изменяет сессию. Изменение сохраняется, только если fn вернул true.
	Update(key string, fn func(*Session) bool) bool
	// Expire (пере)заводит таймер удаления ключа. onExpire вызывается после удаления.
	Expire(key string, ttl time.Duration, onExpire func(Session)) bool
	Keys() []string
}

type entry struct {
	session Session
	timer   *time.Timer
	gen     uint64
}

// MemoryStore хранит сессии в памяти процесса
type MemoryStore struct {
	mu      sync.Mutex
	entries map[string]*entry
	gen     uint64
}

// NewMemoryStore создает пустое хранилище
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{entries: make(map[string]*entry)}
}

func (m *MemoryStore) Get(key string) (Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.entries[key]
	if !ok {
		return Session{}, false
	}
	return e.session, true
}

func (m *MemoryStore) SetIfAbsent(key string, s Session) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.entries[key]; ok {
		return false
	}
	m.gen++
	m.entries[key] = &entry{session: s, gen: m.gen}
	return true
}

func (m *MemoryStore) Set(key string, s Session) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.entries[key]
	if !ok {
		return false
	}
	e.session = s
	return true
}

func (m *MemoryStore) Update(key string, fn func(*Session) bool) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.entries[key]
	if !ok {
		return false
	}
	s := e.session
	if !fn(&s) {
		return false
	}
	e.session = s
	return true
}

func (m *MemoryStore) Delete(key string) (Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.entries[key]
	if !ok {
		return Session{}, false
	}
	if e.timer != nil {
		e.timer.Stop()
	}
	delete(m.entries, key)
	return e.session, true
}

func (m *MemoryStore) Expire(key string, ttl time.Duration, onExpire func(Session)) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.entries[key]
	if !ok {
		return false
	}
	if e.timer != nil {
		e.timer.Stop()
	}

	// Новое поколение: сработавший старый таймер увидит несовпадение и ничего не сделает
	m.gen++
	gen := m.gen
	e.gen = gen
	e.timer = time.AfterFunc(ttl, func() {
		m.mu.Lock()
		cur, ok := m.entries[key]
		if !ok || cur.gen != gen {
			m.mu.Unlock()
			return
		}
		delete(m.entries, key)
		m.mu.Unlock()

		if onExpire != nil {
			onExpire(cur.session)
		}
	})
	return true
}

func (m *MemoryStore) Keys() []string {
	m.mu.Lock()
	defer m.mu.Unlock()

	keys := make([]string, 0, len(m.entries))
	for k := range m.entries {
		keys = append(keys, k)
	}
	return keys
}

// Len количество активных сессий
func (m *MemoryStore) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}
