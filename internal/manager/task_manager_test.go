package manager

import (
	"fmt"
	"math/rand"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"tasklist/internal/models"
)

func sequentialIDs() func() string {
	n := 0
	return func() string {
		n++
		return fmt.Sprintf("task-%d", n)
	}
}

func newTestStore() *TaskListStore {
	return NewTaskListStore(WithIDGenerator(sequentialIDs()))
}

func TestAddTask(t *testing.T) {
	ts := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	tm := NewTaskListStore(WithIDGenerator(sequentialIDs()), WithClock(func() time.Time { return ts }))

	c := tm.Add("  Buy milk  ")
	if c.Len() != 1 {
		t.Fatalf("Ожидалась 1 задача, получено %d", c.Len())
	}

	task, _ := c.At(0)
	if task.Text != "Buy milk" {
		t.Errorf("Ожидался обрезанный текст, получено %q", task.Text)
	}
	if task.Completed {
		t.Error("Новая задача не должна быть выполнена")
	}
	if task.ID != "task-1" {
		t.Errorf("Ожидался ID task-1, получено %q", task.ID)
	}
	if !task.CreatedAt.Equal(ts) {
		t.Errorf("Неверный CreatedAt: %v", task.CreatedAt)
	}
}

func TestAddEmptyTask(t *testing.T) {
	tm := newTestStore()

	for _, raw := range []string{"", "   ", "\t\n"} {
		if c := tm.Add(raw); c.Len() != 0 {
			t.Errorf("Add(%q) должен быть no-op, получено %d задач", raw, c.Len())
		}
	}
}

func TestAddDuplicateText(t *testing.T) {
	tm := newTestStore()
	tm.Add("same")
	c := tm.Add("same")

	a, _ := c.At(0)
	b, _ := c.At(1)
	if c.Len() != 2 || a.ID == b.ID {
		t.Errorf("Одинаковый текст должен давать две разные задачи: %+v", c.Tasks())
	}
}

func TestToggleTwiceRestoresState(t *testing.T) {
	tm := newTestStore()
	tm.Add("A")
	before := tm.Add("B")

	tm.Toggle("task-1")
	after := tm.Toggle("task-1")

	if fmt.Sprint(before.Tasks()) != fmt.Sprint(after.Tasks()) {
		t.Errorf("Двойной toggle должен вернуть исходное состояние:\n%v\n%v", before.Tasks(), after.Tasks())
	}
}

func TestToggleUnknownID(t *testing.T) {
	tm := newTestStore()
	before := tm.Add("A")
	after := tm.Toggle("missing")

	if fmt.Sprint(before.Tasks()) != fmt.Sprint(after.Tasks()) {
		t.Error("Toggle неизвестного id должен быть no-op")
	}
}

func TestDeleteIsIdempotent(t *testing.T) {
	tm := newTestStore()
	tm.Add("A")
	tm.Add("B")

	first := tm.Delete("task-1")
	second := tm.Delete("task-1")

	if first.Len() != 1 || second.Len() != 1 {
		t.Errorf("Ожидалась 1 задача после удалений, получено %d и %d", first.Len(), second.Len())
	}
	if task, _ := second.At(0); task.Text != "B" {
		t.Errorf("Осталась не та задача: %q", task.Text)
	}
}

func TestClearCompleted(t *testing.T) {
	t.Run("nothing completed", func(t *testing.T) {
		tm := newTestStore()
		tm.Add("A")
		before := tm.Add("B")

		after := tm.ClearCompleted()
		if fmt.Sprint(before.Tasks()) != fmt.Sprint(after.Tasks()) {
			t.Error("ClearCompleted без выполненных задач должен быть no-op")
		}
	})

	t.Run("all completed", func(t *testing.T) {
		tm := newTestStore()
		tm.Add("A")
		tm.Add("B")
		tm.Toggle("task-1")
		tm.Toggle("task-2")

		if c := tm.ClearCompleted(); c.Len() != 0 {
			t.Errorf("Ожидался пустой список, получено %d", c.Len())
		}
	})
}

func TestCompletionPercentage(t *testing.T) {
	tm := newTestStore()
	if got := tm.CompletionPercentage(); got != 0 {
		t.Errorf("Пустой список: ожидалось 0, получено %d", got)
	}

	tm.Add("A")
	tm.Add("B")
	tm.Add("C")
	tm.Toggle("task-1")
	if got := tm.CompletionPercentage(); got != 33 {
		t.Errorf("1 из 3: ожидалось 33, получено %d", got)
	}

	tm.Add("D")
	tm.Toggle("task-2")
	if got := tm.CompletionPercentage(); got != 50 {
		t.Errorf("2 из 4: ожидалось 50, получено %d", got)
	}
}

func TestEndToEndScenario(t *testing.T) {
	tm := newTestStore()
	tm.Add("A")
	tm.Add("B")
	tm.Toggle("task-1")

	if tm.TotalCount() != 2 || tm.CompletedCount() != 1 || tm.CompletionPercentage() != 50 {
		t.Fatalf("Неверная статистика: total=%d completed=%d pct=%d",
			tm.TotalCount(), tm.CompletedCount(), tm.CompletionPercentage())
	}

	c := tm.ClearCompleted()
	if c.Len() != 1 {
		t.Fatalf("Ожидалась 1 задача, получено %d", c.Len())
	}
	if task, _ := c.At(0); task.Text != "B" || task.Completed {
		t.Errorf("Ожидалась невыполненная задача B, получено %+v", task)
	}
}

func TestSnapshotsStayValid(t *testing.T) {
	tm := newTestStore()
	held := tm.Add("A")

	tm.Toggle("task-1")
	tm.Add("B")
	tm.Delete("task-1")

	if held.Len() != 1 {
		t.Fatalf("Удержанный снимок изменился: %d", held.Len())
	}
	if task, _ := held.At(0); task.Completed {
		t.Error("Удержанный снимок изменился после Toggle")
	}
}

func TestIDsAreNeverReused(t *testing.T) {
	// генератор, который повторяет уже выданные значения
	ids := []string{"x", "x", "", "y", "x", "y", "z"}
	i := 0
	tm := NewTaskListStore(WithIDGenerator(func() string {
		id := ids[i%len(ids)]
		i++
		return id
	}))

	tm.Add("A")
	tm.Delete("x")
	tm.Add("B")
	c := tm.Add("C")

	got := []string{}
	for _, task := range c.Tasks() {
		got = append(got, task.ID)
	}
	if fmt.Sprint(got) != "[y z]" {
		t.Errorf("Ожидались id [y z], получено %v", got)
	}
}

func TestRandomSequencesKeepIDsUnique(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	tm := NewTaskListStore()

	var c models.TaskCollection
	for step := 0; step < 500; step++ {
		tasks := tm.Snapshot().Tasks()
		pick := func() string {
			if len(tasks) == 0 {
				return "none"
			}
			return tasks[rng.Intn(len(tasks))].ID
		}

		switch rng.Intn(5) {
		case 0, 1:
			c = tm.Add(fmt.Sprintf("task %d", step))
		case 2:
			c = tm.Toggle(pick())
		case 3:
			c = tm.Delete(pick())
		case 4:
			c = tm.ClearCompleted()
		}

		seen := map[string]bool{}
		for _, task := range c.Tasks() {
			if seen[task.ID] {
				t.Fatalf("Повторяющийся id %q на шаге %d", task.ID, step)
			}
			seen[task.ID] = true
			if task.Text == "" {
				t.Fatalf("Пустой текст на шаге %d", step)
			}
		}
	}
}

func TestAddTaskMetrics(t *testing.T) {
	originalCount := taskOperationCount
	originalLength := taskTextLength

	registry := prometheus.NewRegistry()

	testCount := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "todoapp_task_operations_total",
			Help: "Test counter",
		},
		[]string{"op", "result"},
	)
	testLength := prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "todoapp_task_text_length_chars",
			Help:    "Test histogram",
			Buckets: []float64{10, 50, 100, 500, 1000},
		},
	)

	registry.MustRegister(testCount)
	registry.MustRegister(testLength)

	taskOperationCount = testCount
	taskTextLength = testLength

	defer func() {
		taskOperationCount = originalCount
		taskTextLength = originalLength
	}()

	tm := newTestStore()
	tm.Add("Valid text")
	tm.Add("   ")
	tm.Toggle("task-1")
	tm.Toggle("missing")

	if n := testutil.ToFloat64(testCount.WithLabelValues(opAdd, resultApplied)); n != 1 {
		t.Errorf("Expected 1 applied add, got %v", n)
	}
	if n := testutil.ToFloat64(testCount.WithLabelValues(opAdd, resultNoop)); n != 1 {
		t.Errorf("Expected 1 noop add, got %v", n)
	}
	if n := testutil.ToFloat64(testCount.WithLabelValues(opToggle, resultNoop)); n != 1 {
		t.Errorf("Expected 1 noop toggle, got %v", n)
	}

	metrics, err := registry.Gather()
	if err != nil {
		t.Fatalf("Failed to gather metrics: %v", err)
	}

	found := false
	for _, mf := range metrics {
		if mf.GetName() == "todoapp_task_text_length_chars" {
			found = true
			if got := mf.GetMetric()[0].GetHistogram().GetSampleCount(); got != 1 {
				t.Errorf("Expected 1 histogram sample, got %d", got)
			}
		}
	}
	if !found {
		t.Error("Histogram metric not found")
	}
}

func TestVersionsFollowMutations(t *testing.T) {
	tm := newTestStore()

	v1 := tm.Add("A").Version()
	noop := tm.Add("   ").Version()
	v2 := tm.Toggle("task-1").Version()
	missing := tm.Delete("missing").Version()
	v3 := tm.ClearCompleted().Version()

	if v1 == 0 || v2 <= v1 || v3 <= v2 {
		t.Errorf("Версии должны расти: %d, %d, %d", v1, v2, v3)
	}
	if noop != v1 || missing != v2 {
		t.Errorf("No-op не должен менять версию: %d/%d, %d/%d", noop, v1, missing, v2)
	}
}

func TestVersionsContinueAcrossStores(t *testing.T) {
	old := newTestStore().Add("A").Version()
	fresh := newTestStore().Add("B").Version()

	if fresh <= old {
		t.Errorf("Новый список должен продолжать нумерацию: %d <= %d", fresh, old)
	}
}

func TestConcurrentAddsGetDistinctVersions(t *testing.T) {
	tm := NewTaskListStore()

	const n = 50
	versions := make(chan uint64, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			versions <- tm.Add(fmt.Sprintf("task %d", i)).Version()
		}(i)
	}
	wg.Wait()
	close(versions)

	seen := map[uint64]bool{}
	var highest uint64
	for v := range versions {
		if seen[v] {
			t.Fatalf("Повторная версия %d", v)
		}
		seen[v] = true
		if v > highest {
			highest = v
		}
	}
	if final := tm.Snapshot(); final.Version() != highest || final.Len() != n {
		t.Errorf("Текущий снимок должен иметь наибольшую версию: %d != %d (задач %d)", final.Version(), highest, final.Len())
	}
}

func TestStuckIDGeneratorFallsBack(t *testing.T) {
	calls := 0
	tm := NewTaskListStore(WithIDGenerator(func() string {
		calls++
		return "same"
	}))

	tm.Add("A")
	c := tm.Add("B")

	a, _ := c.At(0)
	b, _ := c.At(1)
	if a.ID != "same" || b.ID == "" || b.ID == "same" {
		t.Errorf("Ожидался запасной id для второй задачи: %q, %q", a.ID, b.ID)
	}
	if calls > 1+maxIDAttempts {
		t.Errorf("Генератор вызван слишком много раз: %d", calls)
	}
}
