package storage

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"tasklist/internal/manager"
)

var activeSessions = promauto.NewGauge(
	prometheus.GaugeOpts{
		Name: "todoapp_active_sessions",
		Help: "Number of live task list sessions",
	},
)

// Storage - реестр сессий. Каждая сессия владеет своим списком задач,
// ничего не сохраняется между запусками.
type Storage interface {
	Get(key string) *manager.TaskListStore
	Acquire(key string) (*manager.TaskListStore, func())
	Drop(key string) bool
	Sweep(now time.Time) int
	Len() int
}

type session struct {
	store    *manager.TaskListStore
	lastSeen time.Time
	// pins - сколько долгих соединений (SSE) сейчас держат сессию
	pins int
}

// MemoryStorage - in-memory реестр сессий
type MemoryStorage struct {
	mu          sync.Mutex
	sessions    map[string]*session
	idleTimeout time.Duration
	now         func() time.Time
	newStore    func() *manager.TaskListStore
}

type Option func(*MemoryStorage)

func WithClock(now func() time.Time) Option {
	return func(m *MemoryStorage) { m.now = now }
}

// WithStoreFactory задает, как создается список для новой сессии
func WithStoreFactory(f func() *manager.TaskListStore) Option {
	return func(m *MemoryStorage) { m.newStore = f }
}

// NewMemoryStorage: idleTimeout <= 0 отключает вытеснение
func NewMemoryStorage(idleTimeout time.Duration, opts ...Option) *MemoryStorage {
	m := &MemoryStorage{
		sessions:    make(map[string]*session),
		idleTimeout: idleTimeout,
		now:         time.Now,
		newStore:    func() *manager.TaskListStore { return manager.NewTaskListStore() },
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Get возвращает список сессии, создавая пустой при первом обращении
func (m *MemoryStorage) Get(key string) *manager.TaskListStore {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.touch(key).store
}

// Acquire как Get, но сессия не вытесняется, пока не вызван release.
// release можно вызывать повторно, учитывается только первый вызов.
func (m *MemoryStorage) Acquire(key string) (*manager.TaskListStore, func()) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s := m.touch(key)
	s.pins++

	var once sync.Once
	release := func() {
		once.Do(func() {
			m.mu.Lock()
			defer m.mu.Unlock()
			s.pins--
			// простой отсчитывается от закрытия соединения
			s.lastSeen = m.now()
		})
	}
	return s.store, release
}

// touch вызывается под m.mu
func (m *MemoryStorage) touch(key string) *session {
	s, ok := m.sessions[key]
	if !ok {
		s = &session{store: m.newStore()}
		m.sessions[key] = s
		activeSessions.Inc()
	}
	s.lastSeen = m.now()
	return s
}

// Drop завершает сессию, ее список отбрасывается
func (m *MemoryStorage) Drop(key string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.sessions[key]; !ok {
		return false
	}
	delete(m.sessions, key)
	activeSessions.Dec()
	return true
}

// Sweep удаляет сессии, простаивающие дольше idleTimeout.
// Сессии с открытыми подписками не трогаются.
func (m *MemoryStorage) Sweep(now time.Time) int {
	if m.idleTimeout <= 0 {
		return 0
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	removed := 0
	for key, s := range m.sessions {
		if s.pins == 0 && now.Sub(s.lastSeen) > m.idleTimeout {
			delete(m.sessions, key)
			removed++
		}
	}
	activeSessions.Sub(float64(removed))
	return removed
}

func (m *MemoryStorage) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}
