package manager

import (
	"strings"
	"sync"
	"sync/atomic"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"tasklist/internal/models"
)

const (
	opAdd            = "add"
	opToggle         = "toggle"
	opDelete         = "delete"
	opClearCompleted = "clear_completed"

	resultApplied = "applied"
	resultNoop    = "noop"

	// после стольких повторов генератора id берется UUID
	maxIDAttempts = 32
)

// versionSeq общий для всех списков: сессия, созданная заново после вытеснения,
// продолжает нумерацию, и подписчики не отбрасывают ее снимки как старые
var versionSeq atomic.Uint64

var (
	taskOperationCount = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "todoapp_task_operations_total",
			Help: "Total number of task list operations by kind and result",
		},
		[]string{"op", "result"},
	)

	taskTextLength = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "todoapp_task_text_length_chars",
			Help:    "Length distribution of accepted task texts",
			Buckets: []float64{10, 50, 100, 500, 1000},
		},
	)

	taskOperationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "todoapp_task_operation_duration_seconds",
			Help:    "Duration of task list operations in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"op"},
	)
)

// TaskListStore владеет текущим снимком списка задач.
// Мутации не меняют снимок на месте, а подменяют его целиком,
// поэтому ранее выданные снимки остаются валидными.
type TaskListStore struct {
	mu      sync.Mutex
	current models.TaskCollection
	issued  map[string]struct{}
	newID   func() string
	now     func() time.Time
}

type Option func(*TaskListStore)

// WithIDGenerator подменяет генератор идентификаторов (по умолчанию UUID v4)
func WithIDGenerator(gen func() string) Option {
	return func(s *TaskListStore) { s.newID = gen }
}

func WithClock(now func() time.Time) Option {
	return func(s *TaskListStore) { s.now = now }
}

func NewTaskListStore(opts ...Option) *TaskListStore {
	s := &TaskListStore{
		issued: make(map[string]struct{}),
		newID:  uuid.NewString,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Snapshot возвращает текущий снимок
func (s *TaskListStore) Snapshot() models.TaskCollection {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current
}

// Add обрезает пробелы и добавляет задачу в конец.
// Пустой текст - не ошибка, снимок возвращается без изменений.
func (s *TaskListStore) Add(rawText string) models.TaskCollection {
	defer observe(opAdd, time.Now())

	text := strings.TrimSpace(rawText)
	if text == "" {
		taskOperationCount.WithLabelValues(opAdd, resultNoop).Inc()
		return s.Snapshot()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	task := models.Task{
		ID:        s.uniqueID(),
		Text:      text,
		Completed: false,
		CreatedAt: s.now(),
	}
	s.commit(s.current.Append(task))

	taskOperationCount.WithLabelValues(opAdd, resultApplied).Inc()
	taskTextLength.Observe(float64(utf8.RuneCountInString(text)))

	return s.current
}

// Toggle инвертирует completed. Неизвестный id - no-op.
func (s *TaskListStore) Toggle(id string) models.TaskCollection {
	defer observe(opToggle, time.Now())

	s.mu.Lock()
	defer s.mu.Unlock()

	next, ok := s.current.Toggle(id)
	if ok {
		s.commit(next)
	}
	count(opToggle, ok)
	return s.current
}

// Delete удаляет задачу. Повторный вызов с тем же id - no-op.
func (s *TaskListStore) Delete(id string) models.TaskCollection {
	defer observe(opDelete, time.Now())

	s.mu.Lock()
	defer s.mu.Unlock()

	next, ok := s.current.Remove(id)
	if ok {
		s.commit(next)
	}
	count(opDelete, ok)
	return s.current
}

// ClearCompleted удаляет все выполненные задачи, порядок остальных сохраняется
func (s *TaskListStore) ClearCompleted() models.TaskCollection {
	defer observe(opClearCompleted, time.Now())

	s.mu.Lock()
	defer s.mu.Unlock()

	next, removed := s.current.RemoveCompleted()
	if removed > 0 {
		s.commit(next)
	}
	count(opClearCompleted, removed > 0)
	return s.current
}

func (s *TaskListStore) TotalCount() int {
	return s.Snapshot().Len()
}

func (s *TaskListStore) CompletedCount() int {
	return s.Snapshot().CompletedCount()
}

// CompletionPercentage в диапазоне [0,100], для пустого списка 0
func (s *TaskListStore) CompletionPercentage() int {
	return s.Snapshot().Stats().Percentage
}

// commit подменяет снимок и назначает ему следующую версию. Вызывается под s.mu,
// поэтому порядок версий совпадает с порядком мутаций.
func (s *TaskListStore) commit(next models.TaskCollection) {
	s.current = next.Versioned(versionSeq.Add(1))
}

// uniqueID вызывается под s.mu. Выданные id не переиспользуются даже после удаления,
// поэтому issued живет столько же, сколько сессия.
func (s *TaskListStore) uniqueID() string {
	gen := s.newID
	for attempt := 0; ; attempt++ {
		if attempt == maxIDAttempts {
			gen = uuid.NewString
		}
		id := gen()
		if _, seen := s.issued[id]; id != "" && !seen {
			s.issued[id] = struct{}{}
			return id
		}
	}
}

func count(op string, applied bool) {
	result := resultNoop
	if applied {
		result = resultApplied
	}
	taskOperationCount.WithLabelValues(op, result).Inc()
}

func observe(op string, start time.Time) {
	taskOperationDuration.WithLabelValues(op).Observe(time.Since(start).Seconds())
}
