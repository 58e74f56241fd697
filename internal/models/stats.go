package models

import "math"

// TaskStats - производные счетчики для индикатора прогресса
type TaskStats struct {
	Total      int `json:"total"`
	Completed  int `json:"completed"`
	Percentage int `json:"percentage"`
}

// CompletionPercentage: round(completed/total*100), для пустого списка 0
func CompletionPercentage(completed, total int) int {
	if total <= 0 {
		return 0
	}
	return int(math.Round(float64(completed) / float64(total) * 100))
}

func (c TaskCollection) Stats() TaskStats {
	completed := c.CompletedCount()
	return TaskStats{
		Total:      c.Len(),
		Completed:  completed,
		Percentage: CompletionPercentage(completed, c.Len()),
	}
}

// Snapshot - JSON-представление снимка для внешних слоев
type Snapshot struct {
	Version uint64 `json:"version"`
	Tasks   []Task `json:"tasks"`
	TaskStats
}

func (c TaskCollection) Snapshot() Snapshot {
	return Snapshot{Version: c.version, Tasks: c.Tasks(), TaskStats: c.Stats()}
}

// CreateTaskRequest - тело запроса POST /api/tasks
type CreateTaskRequest struct {
	Text string `json:"text"`
}
