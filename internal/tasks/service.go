// Package tasks holds the task rules: creation, validation, updates,
// filtering, search, ordering and statistics. Every operation is a pure
// function of its arguments and returns new values.
package tasks

import (
	"time"

	"github.com/chepyr/go-todo-tracker/internal/models"
	"github.com/google/uuid"
)

// Service has no mutable state; one instance can be shared by any number
// of goroutines.
type Service struct {
	now   func() time.Time
	newID func() string
}

// Default is the shared rule-set used by the session layer.
var Default = NewService()

type Option func(*Service)

// WithClock replaces time.Now. Returned times are converted to UTC.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// WithIDGenerator replaces the uuid based id generator.
func WithIDGenerator(gen func() string) Option {
	return func(s *Service) { s.newID = gen }
}

func NewService(opts ...Option) *Service {
	s := &Service{now: time.Now, newID: newTaskID}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// newTaskID returns a UUIDv7: a millisecond timestamp followed by random bits.
func newTaskID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}

func (s *Service) clock() time.Time {
	return s.now().UTC()
}

// Create builds a new pending task from input.
func (s *Service) Create(input models.NewTaskInput) (models.Task, error) {
	title, err := validTitle(input.Title)
	if err != nil {
		return models.Task{}, err
	}
	now := s.clock()
	return models.Task{
		ID:        s.newID(),
		Title:     title,
		Status:    models.TaskStatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

// Update applies patch to a copy of task. UpdatedAt only moves when a field
// actually changes, and then always moves forward.
func (s *Service) Update(task models.Task, patch models.TaskPatch) (models.Task, error) {
	next := task
	changed := false

	if patch.Title != nil {
		title, err := validTitle(*patch.Title)
		if err != nil {
			return models.Task{}, err
		}
		if title != next.Title {
			next.Title = title
			changed = true
		}
	}
	if patch.Status != nil && !patch.Status.Valid() {
		return models.Task{}, &ValidationError{Field: "status", Err: ErrInvalidStatus}
	}
	if patch.Status != nil && *patch.Status != next.Status {
		next.Status = *patch.Status
		changed = true
	}

	if changed {
		now := s.clock()
		if !now.After(task.UpdatedAt) {
			now = task.UpdatedAt.Add(time.Nanosecond)
		}
		next.UpdatedAt = now
	}
	return next, nil
}

// ToggleStatus flips pending and completed.
func (s *Service) ToggleStatus(task models.Task) models.Task {
	status := task.Status.Opposite()
	// a status-only patch cannot fail validation
	next, _ := s.Update(task, models.TaskPatch{Status: &status})
	return next
}
