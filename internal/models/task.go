package models

import (
	"time"
)

type TaskStatus string

const (
	TaskStatusPending   TaskStatus = "pending"
	TaskStatusCompleted TaskStatus = "completed"
)

// Valid reports whether s is one of the known statuses.
func (s TaskStatus) Valid() bool {
	return s == TaskStatusPending || s == TaskStatusCompleted
}

// Opposite returns the status a toggle moves to.
func (s TaskStatus) Opposite() TaskStatus {
	if s == TaskStatusCompleted {
		return TaskStatusPending
	}
	return TaskStatusCompleted
}

// Task is a value type. Mutations go through the tasks service, which
// returns a new Task and leaves the old one untouched.
type Task struct {
	ID        string     `json:"id"`
	Title     string     `json:"title"`
	Status    TaskStatus `json:"status"`
	CreatedAt time.Time  `json:"createdAt"`
	UpdatedAt time.Time  `json:"updatedAt"`
}

func (t Task) IsCompleted() bool {
	return t.Status == TaskStatusCompleted
}

type NewTaskInput struct {
	Title string `json:"title"`
}

// TaskPatch holds optional changes; nil fields are left alone.
type TaskPatch struct {
	Title  *string     `json:"title,omitempty"`
	Status *TaskStatus `json:"status,omitempty"`
}

type TaskStats struct {
	Total          int `json:"total"`
	Completed      int `json:"completed"`
	Pending        int `json:"pending"`
	CompletionRate int `json:"completionRate"`
}

type Filter string

const (
	FilterAll       Filter = "all"
	FilterActive    Filter = "active"
	FilterCompleted Filter = "completed"
)

// ParseFilter maps user input to a Filter; empty input means all.
func ParseFilter(s string) (Filter, bool) {
	switch Filter(s) {
	case "", FilterAll:
		return FilterAll, true
	case FilterActive:
		return FilterActive, true
	case FilterCompleted:
		return FilterCompleted, true
	default:
		return "", false
	}
}

// Match is the predicate behind a filter. Unknown filters match everything.
func (f Filter) Match(t Task) bool {
	switch f {
	case FilterActive:
		return t.Status == TaskStatusPending
	case FilterCompleted:
		return t.Status == TaskStatusCompleted
	default:
		return true
	}
}
