package db

import (
	"bytes"
	"context"
	"errors"
	"log"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/chepyr/go-todo-tracker/internal/models"
	"github.com/chepyr/go-todo-tracker/internal/tasks"
)

// failingKeyValue wraps a MemoryKeyValue and returns the configured errors.
type failingKeyValue struct {
	*MemoryKeyValue
	getErr    error
	setErr    error
	removeErr error
	sets      int
}

func (f *failingKeyValue) Get(ctx context.Context, key string) (string, bool, error) {
	if f.getErr != nil {
		return "", false, f.getErr
	}
	return f.MemoryKeyValue.Get(ctx, key)
}

func (f *failingKeyValue) Set(ctx context.Context, key, value string) error {
	f.sets++
	if f.setErr != nil {
		return f.setErr
	}
	return f.MemoryKeyValue.Set(ctx, key, value)
}

func (f *failingKeyValue) Remove(ctx context.Context, key string) error {
	if f.removeErr != nil {
		return f.removeErr
	}
	return f.MemoryKeyValue.Remove(ctx, key)
}

func newTestStore(t *testing.T, kv KeyValue, opts ...StoreOption) (*TaskStore, *bytes.Buffer) {
	t.Helper()
	var logs bytes.Buffer
	opts = append([]StoreOption{WithLogger(log.New(&logs, "", 0))}, opts...)
	return NewTaskStore(kv, opts...), &logs
}

func sampleTasks() []models.Task {
	t0 := time.Date(2024, 2, 10, 8, 30, 0, 123456789, time.UTC)
	return []models.Task{
		{ID: "1", Title: "Learn React", Status: models.TaskStatusPending, CreatedAt: t0, UpdatedAt: t0},
		{ID: "2", Title: "Buy milk", Status: models.TaskStatusCompleted, CreatedAt: t0.Add(time.Second), UpdatedAt: t0.Add(time.Hour)},
	}
}

func assertSameTasks(t *testing.T, got, want []models.Task) {
	t.Helper()
	if len(got) != len(want) {
		t.Fatalf("got %d tasks, want %d: %+v", len(got), len(want), got)
	}
	for i := range want {
		g, w := got[i], want[i]
		if g.ID != w.ID || g.Title != w.Title || g.Status != w.Status ||
			!g.CreatedAt.Equal(w.CreatedAt) || !g.UpdatedAt.Equal(w.UpdatedAt) {
			t.Errorf("task %d = %+v, want %+v", i, g, w)
		}
	}
}

func TestTaskStore_RoundTrip(t *testing.T) {
	ctx := context.Background()
	store, _ := newTestStore(t, NewMemoryKeyValue(0))

	tasks := sampleTasks()
	if err := store.SaveAll(ctx, tasks); err != nil {
		t.Fatalf("SaveAll: %v", err)
	}
	assertSameTasks(t, store.LoadAll(ctx), tasks)
}

func TestTaskStore_RoundTripCreatedTasks(t *testing.T) {
	ctx := context.Background()
	store, _ := newTestStore(t, NewMemoryKeyValue(0))

	var created []models.Task
	for _, title := range []string{"  Learn   React ", "Réviser l'école", "日本語 メモ", "emoji 🎉 party", "buy \xffmilk"} {
		task, err := tasks.Default.Create(models.NewTaskInput{Title: title})
		if err != nil {
			continue
		}
		created = append(created, task)
	}
	if len(created) != 4 {
		t.Fatalf("created %d tasks, want 4 (invalid UTF-8 must be rejected)", len(created))
	}

	if err := store.SaveAll(ctx, created); err != nil {
		t.Fatalf("SaveAll: %v", err)
	}
	assertSameTasks(t, store.LoadAll(ctx), created)
}

func TestTaskStore_RoundTripBackends(t *testing.T) {
	ctx := context.Background()

	fileKV, err := NewFileKeyValue(t.TempDir())
	if err != nil {
		t.Fatalf("NewFileKeyValue: %v", err)
	}
	dbx, err := Connect(context.Background(), "sqlite3", t.TempDir()+"/tasks.db")
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	defer dbx.Close()
	sqlKV := NewSQLKeyValue(dbx)
	if err := sqlKV.Migrate(ctx); err != nil {
		t.Fatalf("Migrate: %v", err)
	}

	for name, kv := range map[string]KeyValue{"file": fileKV, "sqlite": sqlKV} {
		t.Run(name, func(t *testing.T) {
			store, _ := newTestStore(t, kv)
			if err := store.SaveAll(ctx, sampleTasks()); err != nil {
				t.Fatalf("SaveAll: %v", err)
			}
			assertSameTasks(t, store.LoadAll(ctx), sampleTasks())

			if err := store.SaveAll(ctx, sampleTasks()[:1]); err != nil {
				t.Fatalf("SaveAll overwrite: %v", err)
			}
			assertSameTasks(t, store.LoadAll(ctx), sampleTasks()[:1])
		})
	}
}

func TestTaskStore_PersistedShape(t *testing.T) {
	ctx := context.Background()
	kv := NewMemoryKeyValue(0)
	store, _ := newTestStore(t, kv, WithKey("todos"))

	if err := store.SaveAll(ctx, sampleTasks()[:1]); err != nil {
		t.Fatalf("SaveAll: %v", err)
	}
	value, found, _ := kv.Get(ctx, "todos")
	if !found {
		t.Fatal("nothing stored under configured key")
	}
	want := `[{"id":"1","title":"Learn React","status":"pending","createdAt":"2024-02-10T08:30:00.123456789Z","updatedAt":"2024-02-10T08:30:00.123456789Z"}]`
	if value != want {
		t.Errorf("stored value =\n%s\nwant\n%s", value, want)
	}
}

func TestTaskStore_LoadMissing(t *testing.T) {
	store, logs := newTestStore(t, NewMemoryKeyValue(0))
	tasks := store.LoadAll(context.Background())
	if tasks == nil || len(tasks) != 0 {
		t.Fatalf("LoadAll on empty store = %#v, want empty slice", tasks)
	}
	if logs.Len() != 0 {
		t.Errorf("unexpected log output: %s", logs.String())
	}
}

func TestTaskStore_LoadCorrupt(t *testing.T) {
	tests := []struct {
		name  string
		value string
	}{
		{"not json", "{{{"},
		{"object", `{"tasks":[]}`},
		{"null", "null"},
		{"string", `"hello"`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			kv := NewMemoryKeyValue(0)
			kv.Set(context.Background(), DefaultKey, tt.value)
			store, logs := newTestStore(t, kv)

			if tasks := store.LoadAll(context.Background()); len(tasks) != 0 {
				t.Fatalf("LoadAll = %+v, want empty", tasks)
			}
			if !strings.Contains(logs.String(), "warning") {
				t.Errorf("expected a warning, got %q", logs.String())
			}
		})
	}
}

func TestTaskStore_LoadDropsInvalidRecords(t *testing.T) {
	kv := NewMemoryKeyValue(0)
	kv.Set(context.Background(), DefaultKey, `[
		{"id":"ok","title":"Valid","status":"pending","createdAt":"2024-01-01T00:00:00Z","updatedAt":"2024-01-01T00:00:00Z"},
		{"id":"bad","title":"No status","createdAt":"2024-01-01T00:00:00Z","updatedAt":"2024-01-01T00:00:00Z"}
	]`)
	store, _ := newTestStore(t, kv)

	tasks := store.LoadAll(context.Background())
	if len(tasks) != 1 || tasks[0].ID != "ok" {
		t.Fatalf("LoadAll = %+v, want only the valid record", tasks)
	}
}

func TestTaskStore_LoadDropsDuplicateIDs(t *testing.T) {
	kv := NewMemoryKeyValue(0)
	kv.Set(context.Background(), DefaultKey, `[
		{"id":"x","title":"first","status":"pending","createdAt":"2024-01-01T00:00:00Z","updatedAt":"2024-01-01T00:00:00Z"},
		{"id":"x","title":"second","status":"completed","createdAt":"2024-01-01T00:00:00Z","updatedAt":"2024-01-01T00:00:00Z"}
	]`)
	store, _ := newTestStore(t, kv)

	tasks := store.LoadAll(context.Background())
	if len(tasks) != 1 || tasks[0].Title != "first" {
		t.Fatalf("LoadAll = %+v, want the first record only", tasks)
	}
}

func TestTaskStore_LoadReadError(t *testing.T) {
	kv := &failingKeyValue{MemoryKeyValue: NewMemoryKeyValue(0), getErr: errors.New("disk on fire")}
	store, logs := newTestStore(t, kv)

	if tasks := store.LoadAll(context.Background()); len(tasks) != 0 {
		t.Fatalf("LoadAll = %+v, want empty", tasks)
	}
	if !strings.Contains(logs.String(), "disk on fire") {
		t.Errorf("read error not logged: %q", logs.String())
	}
}

func TestTaskStore_SaveLimit(t *testing.T) {
	ctx := context.Background()
	kv := &failingKeyValue{MemoryKeyValue: NewMemoryKeyValue(0)}
	store, _ := newTestStore(t, kv, WithMaxBytes(200))

	small := sampleTasks()[:1]
	if err := store.SaveAll(ctx, small); err != nil {
		t.Fatalf("SaveAll small: %v", err)
	}
	setsBefore := kv.sets

	err := store.SaveAll(ctx, sampleTasks())
	var limitErr *StorageLimitError
	if !errors.As(err, &limitErr) {
		t.Fatalf("expected *StorageLimitError, got %v", err)
	}
	if limitErr.Limit != 200 || limitErr.Size <= 200 {
		t.Errorf("unexpected limit error: %+v", limitErr)
	}
	if kv.sets != setsBefore {
		t.Error("backend was written despite the limit")
	}
	assertSameTasks(t, store.LoadAll(ctx), small)
}

func TestTaskStore_SaveErrors(t *testing.T) {
	tests := []struct {
		name      string
		kv        KeyValue
		wantQuota bool
	}{
		{"quota from capacity", NewMemoryKeyValue(16), true},
		{"wrapped quota", &failingKeyValue{MemoryKeyValue: NewMemoryKeyValue(0), setErr: errors.Join(errors.New("ENOSPC"), ErrQuotaExceeded)}, true},
		{"generic failure", &failingKeyValue{MemoryKeyValue: NewMemoryKeyValue(0), setErr: errors.New("connection reset")}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store, _ := newTestStore(t, tt.kv)
			err := store.SaveAll(context.Background(), sampleTasks())

			var quotaErr *StorageQuotaError
			var writeErr *StorageWriteError
			if tt.wantQuota {
				if !errors.As(err, &quotaErr) {
					t.Fatalf("expected *StorageQuotaError, got %v", err)
				}
				if errors.As(err, &writeErr) {
					t.Fatalf("quota error must not also be a write error")
				}
				return
			}
			if !errors.As(err, &writeErr) {
				t.Fatalf("expected *StorageWriteError, got %v", err)
			}
		})
	}
}

func TestTaskStore_Clear(t *testing.T) {
	ctx := context.Background()
	store, _ := newTestStore(t, NewMemoryKeyValue(0))

	if err := store.Clear(ctx); err != nil {
		t.Fatalf("Clear on empty store: %v", err)
	}
	if err := store.SaveAll(ctx, sampleTasks()); err != nil {
		t.Fatalf("SaveAll: %v", err)
	}
	if err := store.Clear(ctx); err != nil {
		t.Fatalf("Clear: %v", err)
	}
	if tasks := store.LoadAll(ctx); len(tasks) != 0 {
		t.Fatalf("LoadAll after Clear = %+v", tasks)
	}

	failing := &failingKeyValue{MemoryKeyValue: NewMemoryKeyValue(0), removeErr: errors.New("read-only")}
	store, _ = newTestStore(t, failing)
	var writeErr *StorageWriteError
	if err := store.Clear(ctx); !errors.As(err, &writeErr) || writeErr.Op != "clear" {
		t.Fatalf("expected clear *StorageWriteError, got %v", err)
	}
}

func TestTaskStore_ConcurrentSaveAndLoad(t *testing.T) {
	ctx := context.Background()
	store, _ := newTestStore(t, NewMemoryKeyValue(0))
	full := sampleTasks()
	if err := store.SaveAll(ctx, full); err != nil {
		t.Fatalf("SaveAll: %v", err)
	}

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(2)
		go func(i int) {
			defer wg.Done()
			if err := store.SaveAll(ctx, full[:1+i%2]); err != nil {
				t.Errorf("SaveAll: %v", err)
			}
		}(i)
		go func() {
			defer wg.Done()
			n := len(store.LoadAll(ctx))
			if n != 1 && n != 2 {
				t.Errorf("LoadAll saw %d tasks, want a complete snapshot", n)
			}
		}()
	}
	wg.Wait()
}

func TestTaskStore_LoadReturnsIndependentSlices(t *testing.T) {
	ctx := context.Background()
	store, _ := newTestStore(t, NewMemoryKeyValue(0))
	store.SaveAll(ctx, sampleTasks())

	a := store.LoadAll(ctx)
	a[0].Title = "mutated"
	b := store.LoadAll(ctx)
	if b[0].Title != "Learn React" {
		t.Errorf("loads share backing memory: %q", b[0].Title)
	}
}
