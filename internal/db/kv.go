package db

import (
	"context"
	"fmt"
	"sync"
)

// KeyValue is the durable string-keyed primitive the task store sits on.
// Get reports found=false, with a nil error, when the key is absent.
// Remove of an absent key is not an error.
type KeyValue interface {
	Get(ctx context.Context, key string) (value string, found bool, err error)
	Set(ctx context.Context, key, value string) error
	Remove(ctx context.Context, key string) error
}

// MemoryKeyValue keeps values in process memory. A positive capacity caps
// the total size of keys and values, the way browser storage does.
type MemoryKeyValue struct {
	mutex    sync.Mutex
	items    map[string]string
	capacity int
	used     int
}

func NewMemoryKeyValue(capacity int) *MemoryKeyValue {
	return &MemoryKeyValue{items: make(map[string]string), capacity: capacity}
}

func (m *MemoryKeyValue) Get(ctx context.Context, key string) (string, bool, error) {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	value, ok := m.items[key]
	return value, ok, nil
}

func (m *MemoryKeyValue) Set(ctx context.Context, key, value string) error {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	used := m.used + len(key) + len(value)
	if old, ok := m.items[key]; ok {
		used -= len(key) + len(old)
	}
	if m.capacity > 0 && used > m.capacity {
		return fmt.Errorf("%w: %d of %d bytes", ErrQuotaExceeded, used, m.capacity)
	}
	m.items[key] = value
	m.used = used
	return nil
}

func (m *MemoryKeyValue) Remove(ctx context.Context, key string) error {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	if old, ok := m.items[key]; ok {
		m.used -= len(key) + len(old)
		delete(m.items, key)
	}
	return nil
}
