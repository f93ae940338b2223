package handlers

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/chepyr/go-todo-tracker/internal/models"
	"github.com/chepyr/go-todo-tracker/internal/session"
)

type taskListResponse struct {
	Tasks []models.Task    `json:"tasks"`
	Stats models.TaskStats `json:"stats"`
}

/*
handles routes:
- GET /tasks?filter={all|active|completed}&q={text}&order={asc|desc} - list tasks
- POST /tasks - create a new task
- DELETE /tasks?status=completed - remove completed tasks
*/
func (h *Handler) HandleTasks(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		h.listTasks(w, r)
	case http.MethodPost:
		h.createTask(w, r)
	case http.MethodDelete:
		h.clearCompleted(w, r)
	default:
		sendError(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

func (h *Handler) listTasks(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	filter, ok := models.ParseFilter(query.Get("filter"))
	if !ok {
		sendError(w, "filter must be one of all, active, completed", http.StatusBadRequest)
		return
	}
	var descending bool
	switch query.Get("order") {
	case "", "asc":
	case "desc":
		descending = true
	default:
		sendError(w, "order must be asc or desc", http.StatusBadRequest)
		return
	}

	view := h.Session.View(session.ViewOptions{
		Filter:     filter,
		Query:      query.Get("q"),
		Descending: descending,
	})
	sendJSON(w, http.StatusOK, taskListResponse{Tasks: view, Stats: h.Session.Stats()})
}

func (h *Handler) createTask(w http.ResponseWriter, r *http.Request) {
	if !isJSONContentType(r) {
		sendError(w, "Content-Type must be application/json", http.StatusBadRequest)
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, 1<<20) // 1MB
	var input models.NewTaskInput
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		sendError(w, "Invalid JSON body", http.StatusBadRequest)
		return
	}

	task, err := h.Session.Add(r.Context(), input.Title)
	if err != nil {
		sendSessionError(w, err)
		return
	}
	w.Header().Set("Location", "/tasks/"+task.ID)
	sendJSON(w, http.StatusCreated, task)
}

func (h *Handler) clearCompleted(w http.ResponseWriter, r *http.Request) {
	if r.URL.Query().Get("status") != string(models.TaskStatusCompleted) {
		sendError(w, "only status=completed can be bulk deleted", http.StatusBadRequest)
		return
	}
	removed, err := h.Session.ClearCompleted(r.Context())
	if err != nil {
		sendSessionError(w, err)
		return
	}
	sendJSON(w, http.StatusOK, map[string]int{"removed": removed})
}

// GET /tasks/stats
func (h *Handler) HandleStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		sendError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	sendJSON(w, http.StatusOK, h.Session.Stats())
}

/*
routes:
- GET /tasks/{id}
- PUT/PATCH /tasks/{id}
- DELETE /tasks/{id}
- POST /tasks/{id}/toggle
*/
func (h *Handler) HandleTaskByID(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/tasks/")
	taskID, action, _ := strings.Cut(rest, "/")
	if taskID == "" {
		sendError(w, "task id is required", http.StatusBadRequest)
		return
	}

	if action == "toggle" {
		if r.Method != http.MethodPost {
			sendError(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		h.toggleTask(w, r, taskID)
		return
	}
	if action != "" {
		sendError(w, "Not found", http.StatusNotFound)
		return
	}

	switch r.Method {
	case http.MethodGet:
		h.getTask(w, taskID)
	case http.MethodPut, http.MethodPatch:
		h.updateTask(w, r, taskID)
	case http.MethodDelete:
		h.deleteTask(w, r, taskID)
	default:
		sendError(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

func (h *Handler) getTask(w http.ResponseWriter, taskID string) {
	task, ok := h.Session.Get(taskID)
	if !ok {
		sendError(w, "Task not found", http.StatusNotFound)
		return
	}
	sendJSON(w, http.StatusOK, task)
}

func (h *Handler) updateTask(w http.ResponseWriter, r *http.Request, taskID string) {
	if !isJSONContentType(r) {
		sendError(w, "Content-Type must be application/json", http.StatusBadRequest)
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20) // 1MB

	var input struct {
		Title  *string `json:"title"`
		Status *string `json:"status"`
	}
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		sendError(w, "Invalid JSON body", http.StatusBadRequest)
		return
	}

	patch := models.TaskPatch{Title: input.Title}
	if input.Status != nil {
		status := normalizeStatus(*input.Status)
		if status == "" {
			sendError(w, "Invalid status value", http.StatusBadRequest)
			return
		}
		patch.Status = &status
	}

	task, err := h.Session.Update(r.Context(), taskID, patch)
	if err != nil {
		sendSessionError(w, err)
		return
	}
	sendJSON(w, http.StatusOK, task)
}

func (h *Handler) toggleTask(w http.ResponseWriter, r *http.Request, taskID string) {
	task, err := h.Session.Toggle(r.Context(), taskID)
	if err != nil {
		sendSessionError(w, err)
		return
	}
	sendJSON(w, http.StatusOK, task)
}

func (h *Handler) deleteTask(w http.ResponseWriter, r *http.Request, taskID string) {
	if err := h.Session.Delete(r.Context(), taskID); err != nil {
		sendSessionError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// convert various user inputs to standard status values
func normalizeStatus(s string) models.TaskStatus {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "pending", "active", "todo":
		return models.TaskStatusPending
	case "completed", "done":
		return models.TaskStatusCompleted
	default:
		return ""
	}
}
