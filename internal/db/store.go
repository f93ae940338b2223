package db

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"slices"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/chepyr/go-todo-tracker/internal/models"
	"golang.org/x/sync/singleflight"
)

const (
	DefaultKey      = "tasks"
	DefaultMaxBytes = 5 << 20
	DefaultTimeout  = 5 * time.Second
)

// TaskStore reads and writes the whole task collection as a single value.
// Saves and clears are serialized; loads never observe a save in progress.
type TaskStore struct {
	kv       KeyValue
	key      string
	maxBytes int
	timeout  time.Duration
	logger   *log.Logger

	mutex sync.RWMutex
	loads singleflight.Group
	// bumped by every write so a load never joins a read started before it
	generation atomic.Uint64
}

type StoreOption func(*TaskStore)

func WithKey(key string) StoreOption {
	return func(s *TaskStore) { s.key = key }
}

// WithMaxBytes sets the serialized-size ceiling enforced by SaveAll.
func WithMaxBytes(n int) StoreOption {
	return func(s *TaskStore) { s.maxBytes = n }
}

func WithTimeout(d time.Duration) StoreOption {
	return func(s *TaskStore) { s.timeout = d }
}

func WithLogger(l *log.Logger) StoreOption {
	return func(s *TaskStore) {
		if l != nil {
			s.logger = l
		}
	}
}

func NewTaskStore(kv KeyValue, opts ...StoreOption) *TaskStore {
	s := &TaskStore{
		kv:       kv,
		key:      DefaultKey,
		maxBytes: DefaultMaxBytes,
		timeout:  DefaultTimeout,
		logger:   log.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// LoadAll returns every valid stored task. A missing, unreadable or corrupt
// entry yields an empty collection; malformed records are skipped.
func (s *TaskStore) LoadAll(ctx context.Context) []models.Task {
	flight := strconv.FormatUint(s.generation.Load(), 10)
	v, _, _ := s.loads.Do(flight, func() (any, error) {
		s.mutex.RLock()
		defer s.mutex.RUnlock()
		return s.load(context.WithoutCancel(ctx)), nil
	})
	return slices.Clone(v.([]models.Task))
}

func (s *TaskStore) load(ctx context.Context) []models.Task {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	tasks := []models.Task{}
	value, found, err := s.kv.Get(ctx, s.key)
	if err != nil {
		s.logger.Printf("warning: %v", &StorageReadError{Key: s.key, Err: err})
		return tasks
	}
	if !found {
		return tasks
	}

	var raw []json.RawMessage
	if err := json.Unmarshal([]byte(value), &raw); err != nil || raw == nil {
		s.logger.Printf("warning: stored value under %q is not a task list, ignoring it", s.key)
		return tasks
	}

	seen := make(map[string]bool, len(raw))
	dropped := 0
	for _, elem := range raw {
		p := parseRecord(elem)
		if !p.ok() || seen[p.Task.ID] {
			dropped++
			continue
		}
		seen[p.Task.ID] = true
		tasks = append(tasks, p.Task)
	}
	if dropped > 0 {
		s.logger.Printf("skipped %d invalid stored task record(s) under %q", dropped, s.key)
	}
	return tasks
}

// SaveAll replaces the stored collection with tasks. It fails with
// *StorageLimitError before touching the backend when the encoded
// collection exceeds the ceiling, *StorageQuotaError when the backend is
// out of space, and *StorageWriteError otherwise.
func (s *TaskStore) SaveAll(ctx context.Context, tasks []models.Task) error {
	records := make([]record, len(tasks))
	for i, t := range tasks {
		records[i] = toRecord(t)
	}
	data, err := json.Marshal(records)
	if err != nil {
		return &StorageWriteError{Op: "encode", Key: s.key, Err: err}
	}
	if len(data) > s.maxBytes {
		return &StorageLimitError{Size: len(data), Limit: s.maxBytes}
	}

	s.mutex.Lock()
	defer s.mutex.Unlock()

	s.generation.Add(1)
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	if err := s.kv.Set(ctx, s.key, string(data)); err != nil {
		if errors.Is(err, ErrQuotaExceeded) {
			return &StorageQuotaError{Key: s.key, Err: err}
		}
		return &StorageWriteError{Op: "save", Key: s.key, Err: err}
	}
	return nil
}

// Clear removes the stored entry. Clearing an empty store succeeds.
func (s *TaskStore) Clear(ctx context.Context) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	s.generation.Add(1)
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	if err := s.kv.Remove(ctx, s.key); err != nil {
		return &StorageWriteError{Op: "clear", Key: s.key, Err: err}
	}
	return nil
}
