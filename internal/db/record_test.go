package db

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/chepyr/go-todo-tracker/internal/models"
)

func TestParseRecord(t *testing.T) {
	tests := []struct {
		name   string
		raw    string
		wantOK bool
	}{
		{"valid", `{"id":"a","title":"Buy milk","status":"pending","createdAt":"2024-01-02T03:04:05.123Z","updatedAt":"2024-01-02T03:04:05.123Z"}`, true},
		{"valid with offset", `{"id":"a","title":"t","status":"completed","createdAt":"2024-01-02T03:04:05+02:00","updatedAt":"2024-01-02T04:04:05+02:00"}`, true},
		{"extra fields ignored", `{"id":"a","title":"t","status":"pending","createdAt":"2024-01-02T03:04:05Z","updatedAt":"2024-01-02T03:04:05Z","priority":3}`, true},
		{"missing status", `{"id":"a","title":"t","createdAt":"2024-01-02T03:04:05Z","updatedAt":"2024-01-02T03:04:05Z"}`, false},
		{"unknown status", `{"id":"a","title":"t","status":"done","createdAt":"2024-01-02T03:04:05Z","updatedAt":"2024-01-02T03:04:05Z"}`, false},
		{"numeric id", `{"id":7,"title":"t","status":"pending","createdAt":"2024-01-02T03:04:05Z","updatedAt":"2024-01-02T03:04:05Z"}`, false},
		{"empty id", `{"id":"","title":"t","status":"pending","createdAt":"2024-01-02T03:04:05Z","updatedAt":"2024-01-02T03:04:05Z"}`, false},
		{"title not string", `{"id":"a","title":null,"status":"pending","createdAt":"2024-01-02T03:04:05Z","updatedAt":"2024-01-02T03:04:05Z"}`, false},
		{"bad timestamp", `{"id":"a","title":"t","status":"pending","createdAt":"yesterday","updatedAt":"2024-01-02T03:04:05Z"}`, false},
		{"timestamp as number", `{"id":"a","title":"t","status":"pending","createdAt":1704164645000,"updatedAt":"2024-01-02T03:04:05Z"}`, false},
		{"not an object", `"just a string"`, false},
		{"array", `[1,2,3]`, false},
		{"null", `null`, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := parseRecord(json.RawMessage(tt.raw))
			if p.ok() != tt.wantOK {
				t.Fatalf("ok = %v (err %v), want %v", p.ok(), p.Err, tt.wantOK)
			}
		})
	}
}

func TestParseRecord_Fields(t *testing.T) {
	raw := `{"id":"a1","title":"Learn React","status":"completed","createdAt":"2024-01-02T03:04:05.123456789Z","updatedAt":"2024-01-03T00:00:00Z"}`
	p := parseRecord(json.RawMessage(raw))
	if !p.ok() {
		t.Fatalf("parseRecord: %v", p.Err)
	}
	want := models.Task{
		ID:        "a1",
		Title:     "Learn React",
		Status:    models.TaskStatusCompleted,
		CreatedAt: time.Date(2024, 1, 2, 3, 4, 5, 123456789, time.UTC),
		UpdatedAt: time.Date(2024, 1, 3, 0, 0, 0, 0, time.UTC),
	}
	got := p.Task
	if got.ID != want.ID || got.Title != want.Title || got.Status != want.Status ||
		!got.CreatedAt.Equal(want.CreatedAt) || !got.UpdatedAt.Equal(want.UpdatedAt) {
		t.Errorf("parseRecord = %+v, want %+v", got, want)
	}
}
