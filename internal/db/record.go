package db

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"fmt"
	"time"

	"github.com/chepyr/go-todo-tracker/internal/models"
	jsonschema "github.com/santhosh-tekuri/jsonschema/v5"
)

//go:embed record_schema.json
var recordSchemaJSON string

const recordSchemaURL = "task-record.schema.json"

var recordSchema = mustCompileRecordSchema()

func mustCompileRecordSchema() *jsonschema.Schema {
	compiler := jsonschema.NewCompiler()
	compiler.AssertFormat = true
	if err := compiler.AddResource(recordSchemaURL, bytes.NewReader([]byte(recordSchemaJSON))); err != nil {
		panic(fmt.Sprintf("add task record schema: %v", err))
	}
	schema, err := compiler.Compile(recordSchemaURL)
	if err != nil {
		panic(fmt.Sprintf("compile task record schema: %v", err))
	}
	return schema
}

// record is the persisted shape of one task.
type record struct {
	ID        string `json:"id"`
	Title     string `json:"title"`
	Status    string `json:"status"`
	CreatedAt string `json:"createdAt"`
	UpdatedAt string `json:"updatedAt"`
}

const timestampLayout = time.RFC3339Nano

func toRecord(t models.Task) record {
	return record{
		ID:        t.ID,
		Title:     t.Title,
		Status:    string(t.Status),
		CreatedAt: t.CreatedAt.UTC().Format(timestampLayout),
		UpdatedAt: t.UpdatedAt.UTC().Format(timestampLayout),
	}
}

// parsed is either a task or the reason the raw element was rejected.
type parsed struct {
	Task models.Task
	Err  error
}

func (p parsed) ok() bool {
	return p.Err == nil
}

// parseRecord checks one stored element against the record schema and
// converts it to a Task.
func parseRecord(raw json.RawMessage) parsed {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var doc any
	if err := dec.Decode(&doc); err != nil {
		return parsed{Err: fmt.Errorf("decode: %w", err)}
	}
	if err := recordSchema.Validate(doc); err != nil {
		return parsed{Err: err}
	}

	var rec record
	if err := json.Unmarshal(raw, &rec); err != nil {
		return parsed{Err: fmt.Errorf("decode: %w", err)}
	}
	createdAt, err := time.Parse(timestampLayout, rec.CreatedAt)
	if err != nil {
		return parsed{Err: fmt.Errorf("createdAt: %w", err)}
	}
	updatedAt, err := time.Parse(timestampLayout, rec.UpdatedAt)
	if err != nil {
		return parsed{Err: fmt.Errorf("updatedAt: %w", err)}
	}

	return parsed{Task: models.Task{
		ID:        rec.ID,
		Title:     rec.Title,
		Status:    models.TaskStatus(rec.Status),
		CreatedAt: createdAt.UTC(),
		UpdatedAt: updatedAt.UTC(),
	}}
}
