// Package session holds the live task collection for one user. It loads the
// collection from a store, applies every change through the tasks service
// and writes the result back, either right away or after a short debounce.
package session

import (
	"context"
	"errors"
	"fmt"
	"log"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/chepyr/go-todo-tracker/internal/models"
	"github.com/chepyr/go-todo-tracker/internal/tasks"
)

var (
	ErrTaskNotFound = errors.New("task not found")
	ErrAmbiguousID  = errors.New("id prefix matches more than one task")
)

// Store is the persistence the session needs. *db.TaskStore satisfies it.
type Store interface {
	LoadAll(ctx context.Context) []models.Task
	SaveAll(ctx context.Context, tasks []models.Task) error
	Clear(ctx context.Context) error
}

type ChangeKind string

const (
	ChangeCreated ChangeKind = "task_created"
	ChangeUpdated ChangeKind = "task_updated"
	ChangeDeleted ChangeKind = "task_deleted"
	ChangeCleared ChangeKind = "tasks_cleared"
)

// Change describes one committed mutation.
type Change struct {
	Kind  ChangeKind       `json:"event"`
	Task  *models.Task     `json:"task,omitempty"`
	Stats models.TaskStats `json:"stats"`
}

type Session struct {
	mutex   sync.Mutex
	tasks   []models.Task
	store   Store
	service *tasks.Service
	logger  *log.Logger

	debounce    time.Duration
	timer       *time.Timer
	timerGen    uint64
	dirty       bool
	lastSaveErr error
	closed      bool

	listenersMu sync.Mutex
	listeners   []func(Change)
}

type Option func(*Session)

// WithDebounce delays saves by d, coalescing changes made in the meantime.
func WithDebounce(d time.Duration) Option {
	return func(s *Session) { s.debounce = d }
}

func WithService(svc *tasks.Service) Option {
	return func(s *Session) { s.service = svc }
}

func WithLogger(l *log.Logger) Option {
	return func(s *Session) {
		if l != nil {
			s.logger = l
		}
	}
}

// Open loads the stored collection and returns a session over it.
func Open(ctx context.Context, store Store, opts ...Option) *Session {
	s := &Session{
		store:   store,
		service: tasks.Default,
		logger:  log.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.tasks = store.LoadAll(ctx)
	return s
}

// Subscribe registers fn to be called after every committed change.
func (s *Session) Subscribe(fn func(Change)) {
	s.listenersMu.Lock()
	defer s.listenersMu.Unlock()
	s.listeners = append(s.listeners, fn)
}

func (s *Session) notify(c Change) {
	s.listenersMu.Lock()
	listeners := slices.Clone(s.listeners)
	s.listenersMu.Unlock()
	for _, fn := range listeners {
		fn(c)
	}
}

// Tasks returns a copy of the collection in storage order.
func (s *Session) Tasks() []models.Task {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	return slices.Clone(s.tasks)
}

func (s *Session) Get(id string) (models.Task, bool) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	i := s.indexLocked(id)
	if i < 0 {
		return models.Task{}, false
	}
	return s.tasks[i], true
}

// Resolve finds a task by full id or by an id prefix or suffix that matches
// exactly one task.
func (s *Session) Resolve(ref string) (models.Task, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if i := s.indexLocked(ref); i >= 0 {
		return s.tasks[i], nil
	}
	var match []models.Task
	if ref != "" {
		for _, t := range s.tasks {
			if strings.HasPrefix(t.ID, ref) || strings.HasSuffix(t.ID, ref) {
				match = append(match, t)
			}
		}
	}
	switch len(match) {
	case 0:
		return models.Task{}, fmt.Errorf("%w: %s", ErrTaskNotFound, ref)
	case 1:
		return match[0], nil
	default:
		return models.Task{}, fmt.Errorf("%w: %s", ErrAmbiguousID, ref)
	}
}

func (s *Session) indexLocked(id string) int {
	return slices.IndexFunc(s.tasks, func(t models.Task) bool { return t.ID == id })
}

// ViewOptions selects and orders tasks for display.
type ViewOptions struct {
	Filter     models.Filter
	Query      string
	Descending bool
}

// View applies filter, then search, then creation-time ordering.
func (s *Session) View(opts ViewOptions) []models.Task {
	all := s.Tasks()
	out := s.service.Filter(all, opts.Filter)
	out = s.service.Search(out, opts.Query)
	return s.service.SortByCreation(out, opts.Descending)
}

func (s *Session) Stats() models.TaskStats {
	return s.service.Stats(s.Tasks())
}

// Add creates a task. A validation error leaves the session untouched. A
// storage error is returned together with the task, which stays in memory.
func (s *Session) Add(ctx context.Context, title string) (models.Task, error) {
	task, err := s.service.Create(models.NewTaskInput{Title: title})
	if err != nil {
		return models.Task{}, err
	}

	s.mutex.Lock()
	s.tasks = append(s.tasks, task)
	saveErr := s.persistLocked(ctx)
	stats := s.service.Stats(s.tasks)
	s.mutex.Unlock()

	s.notify(Change{Kind: ChangeCreated, Task: &task, Stats: stats})
	return task, saveErr
}

// Update applies patch to the task with id.
func (s *Session) Update(ctx context.Context, id string, patch models.TaskPatch) (models.Task, error) {
	return s.modify(ctx, id, func(t models.Task) (models.Task, error) {
		return s.service.Update(t, patch)
	})
}

func (s *Session) Rename(ctx context.Context, id, title string) (models.Task, error) {
	return s.Update(ctx, id, models.TaskPatch{Title: &title})
}

func (s *Session) SetStatus(ctx context.Context, id string, status models.TaskStatus) (models.Task, error) {
	return s.Update(ctx, id, models.TaskPatch{Status: &status})
}

func (s *Session) Toggle(ctx context.Context, id string) (models.Task, error) {
	return s.modify(ctx, id, func(t models.Task) (models.Task, error) {
		return s.service.ToggleStatus(t), nil
	})
}

func (s *Session) modify(ctx context.Context, id string, fn func(models.Task) (models.Task, error)) (models.Task, error) {
	s.mutex.Lock()
	i := s.indexLocked(id)
	if i < 0 {
		s.mutex.Unlock()
		return models.Task{}, fmt.Errorf("%w: %s", ErrTaskNotFound, id)
	}
	prev := s.tasks[i]
	next, err := fn(prev)
	if err != nil {
		s.mutex.Unlock()
		return models.Task{}, err
	}
	if next == prev {
		s.mutex.Unlock()
		return next, nil
	}
	s.tasks[i] = next
	saveErr := s.persistLocked(ctx)
	stats := s.service.Stats(s.tasks)
	s.mutex.Unlock()

	s.notify(Change{Kind: ChangeUpdated, Task: &next, Stats: stats})
	return next, saveErr
}

func (s *Session) Delete(ctx context.Context, id string) error {
	s.mutex.Lock()
	i := s.indexLocked(id)
	if i < 0 {
		s.mutex.Unlock()
		return fmt.Errorf("%w: %s", ErrTaskNotFound, id)
	}
	removed := s.tasks[i]
	s.tasks = slices.Delete(s.tasks, i, i+1)
	saveErr := s.persistLocked(ctx)
	stats := s.service.Stats(s.tasks)
	s.mutex.Unlock()

	s.notify(Change{Kind: ChangeDeleted, Task: &removed, Stats: stats})
	return saveErr
}

// ClearCompleted deletes every completed task and reports how many went.
func (s *Session) ClearCompleted(ctx context.Context) (int, error) {
	s.mutex.Lock()
	kept := s.service.Filter(s.tasks, models.FilterActive)
	removed := len(s.tasks) - len(kept)
	if removed == 0 {
		s.mutex.Unlock()
		return 0, nil
	}
	s.tasks = kept
	saveErr := s.persistLocked(ctx)
	stats := s.service.Stats(s.tasks)
	s.mutex.Unlock()

	s.notify(Change{Kind: ChangeCleared, Stats: stats})
	return removed, saveErr
}

// Reset empties the session and removes the stored entry.
func (s *Session) Reset(ctx context.Context) error {
	s.mutex.Lock()
	s.stopTimerLocked()
	s.tasks = []models.Task{}
	s.dirty = false
	err := s.store.Clear(ctx)
	s.lastSaveErr = err
	if err != nil {
		s.dirty = true
	}
	stats := s.service.Stats(s.tasks)
	s.mutex.Unlock()

	s.notify(Change{Kind: ChangeCleared, Stats: stats})
	return err
}

// persistLocked saves now, or schedules a save when debouncing.
func (s *Session) persistLocked(ctx context.Context) error {
	s.dirty = true
	if s.debounce > 0 && !s.closed {
		s.stopTimerLocked()
		s.timerGen++
		gen := s.timerGen
		s.timer = time.AfterFunc(s.debounce, func() { s.flushScheduled(gen) })
		return nil
	}
	return s.saveLocked(ctx)
}

func (s *Session) saveLocked(ctx context.Context) error {
	err := s.store.SaveAll(ctx, s.tasks)
	s.lastSaveErr = err
	if err != nil {
		return err
	}
	s.dirty = false
	return nil
}

func (s *Session) stopTimerLocked() {
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
}

// flushScheduled runs when the timer of generation gen fires. A timer that
// was stopped or replaced after it fired leaves the save to whoever did that.
func (s *Session) flushScheduled(gen uint64) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	if s.timer == nil || s.timerGen != gen {
		return
	}
	s.timer = nil
	if !s.dirty {
		return
	}
	if err := s.saveLocked(context.Background()); err != nil {
		s.logger.Printf("Failed to save tasks: %v", err)
	}
}

// Flush writes any pending change immediately.
func (s *Session) Flush(ctx context.Context) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	s.stopTimerLocked()
	if !s.dirty {
		return nil
	}
	return s.saveLocked(ctx)
}

// Pending reports whether the in-memory state has not been saved yet.
func (s *Session) Pending() bool {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	return s.dirty
}

// LastSaveError returns the result of the most recent save attempt.
func (s *Session) LastSaveError() error {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	return s.lastSaveErr
}

// Close flushes pending changes; later mutations save immediately.
func (s *Session) Close(ctx context.Context) error {
	err := s.Flush(ctx)
	s.mutex.Lock()
	s.closed = true
	s.mutex.Unlock()
	return err
}
