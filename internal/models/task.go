package models

import "time"

// Task - одна запись в списке
type Task struct {
	ID        string    `json:"id"`
	Text      string    `json:"text"`
	Completed bool      `json:"completed"`
	CreatedAt time.Time `json:"created_at"`
}

// TaskCollection - неизменяемый снимок списка задач.
// Каждая операция возвращает новый снимок, старый остается валидным.
type TaskCollection struct {
	tasks   []Task
	version uint64
}

// NewTaskCollection копирует tasks, чтобы вызывающий код не мог изменить снимок
func NewTaskCollection(tasks ...Task) TaskCollection {
	if len(tasks) == 0 {
		return TaskCollection{}
	}
	cp := make([]Task, len(tasks))
	copy(cp, tasks)
	return TaskCollection{tasks: cp}
}

// Tasks возвращает копию задач в порядке добавления
func (c TaskCollection) Tasks() []Task {
	cp := make([]Task, len(c.tasks))
	copy(cp, c.tasks)
	return cp
}

// Version растет с каждой примененной мутацией, по нему упорядочиваются снимки.
// Новые снимки из Append/Toggle/Remove получают версию 0, ее назначает владелец списка.
func (c TaskCollection) Version() uint64 {
	return c.version
}

// Versioned возвращает тот же снимок с версией v
func (c TaskCollection) Versioned(v uint64) TaskCollection {
	c.version = v
	return c
}

func (c TaskCollection) Len() int {
	return len(c.tasks)
}

// At возвращает задачу по позиции (0-based)
func (c TaskCollection) At(i int) (Task, bool) {
	if i < 0 || i >= len(c.tasks) {
		return Task{}, false
	}
	return c.tasks[i], true
}

func (c TaskCollection) Get(id string) (Task, bool) {
	for _, t := range c.tasks {
		if t.ID == id {
			return t, true
		}
	}
	return Task{}, false
}

func (c TaskCollection) Contains(id string) bool {
	_, ok := c.Get(id)
	return ok
}

func (c TaskCollection) CompletedCount() int {
	n := 0
	for _, t := range c.tasks {
		if t.Completed {
			n++
		}
	}
	return n
}

// Append добавляет задачу в конец
func (c TaskCollection) Append(t Task) TaskCollection {
	next := make([]Task, len(c.tasks), len(c.tasks)+1)
	copy(next, c.tasks)
	return TaskCollection{tasks: append(next, t)}
}

// Toggle инвертирует completed у задачи с id.
// Если задачи нет, возвращается тот же снимок и false.
func (c TaskCollection) Toggle(id string) (TaskCollection, bool) {
	for i := range c.tasks {
		if c.tasks[i].ID == id {
			next := c.Tasks()
			next[i].Completed = !next[i].Completed
			return TaskCollection{tasks: next}, true
		}
	}
	return c, false
}

// Remove удаляет задачу с id
func (c TaskCollection) Remove(id string) (TaskCollection, bool) {
	if !c.Contains(id) {
		return c, false
	}
	return c.filter(func(t Task) bool { return t.ID != id }), true
}

// RemoveCompleted удаляет все выполненные задачи и возвращает сколько удалено
func (c TaskCollection) RemoveCompleted() (TaskCollection, int) {
	removed := c.CompletedCount()
	if removed == 0 {
		return c, 0
	}
	return c.filter(func(t Task) bool { return !t.Completed }), removed
}

func (c TaskCollection) filter(keep func(Task) bool) TaskCollection {
	next := make([]Task, 0, len(c.tasks))
	for _, t := range c.tasks {
		if keep(t) {
			next = append(next, t)
		}
	}
	return TaskCollection{tasks: next}
}
