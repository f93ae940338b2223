package handlers

import (
	"encoding/json"
	"errors"
	"log"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/chepyr/go-todo-tracker/internal/db"
	"github.com/chepyr/go-todo-tracker/internal/session"
	"github.com/chepyr/go-todo-tracker/internal/tasks"
	"github.com/gorilla/websocket"
)

type Handler struct {
	Session        *session.Session
	RateLimiter    *RateLimiter
	WSHub          *WSHub
	AllowedOrigins []string
}

// NewHandler wires the hub to the session so open views hear about changes.
func NewHandler(s *session.Session, limiter *RateLimiter, allowedOrigins []string) *Handler {
	h := &Handler{
		Session:        s,
		RateLimiter:    limiter,
		WSHub:          NewWSHub(),
		AllowedOrigins: allowedOrigins,
	}
	s.Subscribe(h.WSHub.BroadcastChange)
	return h
}

// Routes registers every endpoint on mux.
func (h *Handler) Routes(mux *http.ServeMux) {
	mux.HandleFunc("/tasks", h.RateLimit(h.HandleTasks))
	mux.HandleFunc("/tasks/stats", h.RateLimit(h.HandleStats))
	mux.HandleFunc("/tasks/", h.RateLimit(h.HandleTaskByID))
	mux.HandleFunc("/ws", h.HandleWebSocket)
}

type errorResponse struct {
	Error string `json:"error"`
}

func sendError(w http.ResponseWriter, message string, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(errorResponse{Error: message})
}

func sendJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("Failed to encode response: %v", err)
	}
}

// sendSessionError maps domain and storage errors to status codes.
func sendSessionError(w http.ResponseWriter, err error) {
	var (
		validationErr *tasks.ValidationError
		limitErr      *db.StorageLimitError
		quotaErr      *db.StorageQuotaError
		writeErr      *db.StorageWriteError
	)
	switch {
	case errors.As(err, &validationErr):
		sendError(w, validationErr.Error(), http.StatusBadRequest)
	case errors.Is(err, session.ErrTaskNotFound):
		sendError(w, "Task not found", http.StatusNotFound)
	case errors.As(err, &limitErr):
		sendError(w, "Task list is too large to save", http.StatusRequestEntityTooLarge)
	case errors.As(err, &quotaErr):
		sendError(w, "Storage is full, free some space and try again", http.StatusInsufficientStorage)
	case errors.As(err, &writeErr):
		log.Printf("Failed to save tasks: %v", err)
		sendError(w, "Failed to save tasks, changes are kept in memory", http.StatusInternalServerError)
	default:
		log.Printf("Unexpected error: %v", err)
		sendError(w, "Internal error", http.StatusInternalServerError)
	}
}

func isJSONContentType(r *http.Request) bool {
	return strings.HasPrefix(r.Header.Get("Content-Type"), "application/json")
}

type RateLimiter struct {
	attempts map[string]int
	limit    int
	mutex    sync.Mutex
	window   time.Duration
}

func NewRateLimiter(limit int, window time.Duration) *RateLimiter {
	rl := &RateLimiter{
		attempts: make(map[string]int),
		limit:    limit,
		window:   window,
	}
	go rl.cleanup()
	return rl
}

func (rl *RateLimiter) Allow(ip string) bool {
	rl.mutex.Lock()
	defer rl.mutex.Unlock()

	count, exists := rl.attempts[ip]
	if !exists {
		rl.attempts[ip] = 1
		return true
	}
	if count >= rl.limit {
		return false
	}
	rl.attempts[ip]++
	return true
}

// reset the attempts map every window duration
func (rl *RateLimiter) cleanup() {
	for range time.Tick(rl.window) {
		rl.mutex.Lock()
		rl.attempts = make(map[string]int)
		rl.mutex.Unlock()
	}
}

// RateLimit rejects clients that exceed the limiter. A nil limiter allows all.
func (h *Handler) RateLimit(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if h.RateLimiter != nil && !h.RateLimiter.Allow(clientIP(r)) {
			sendError(w, "Too many requests", http.StatusTooManyRequests)
			return
		}
		next(w, r)
	}
}

func clientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		first, _, _ := strings.Cut(fwd, ",")
		return strings.TrimSpace(first)
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

type WSHub struct {
	connections map[*websocket.Conn]bool
	mutex       sync.Mutex
}

func NewWSHub() *WSHub {
	return &WSHub{connections: make(map[*websocket.Conn]bool)}
}

func (h *WSHub) add(conn *websocket.Conn) {
	h.mutex.Lock()
	defer h.mutex.Unlock()
	h.connections[conn] = true
}

func (h *WSHub) remove(conn *websocket.Conn) {
	h.mutex.Lock()
	defer h.mutex.Unlock()
	if h.connections[conn] {
		delete(h.connections, conn)
		conn.Close()
	}
}

// Count returns the number of open connections.
func (h *WSHub) Count() int {
	h.mutex.Lock()
	defer h.mutex.Unlock()
	return len(h.connections)
}

// BroadcastChange sends a session change to every open view.
func (h *WSHub) BroadcastChange(change session.Change) {
	message, err := json.Marshal(change)
	if err != nil {
		log.Printf("Failed to marshal task change: %v", err)
		return
	}

	h.mutex.Lock()
	defer h.mutex.Unlock()
	for conn := range h.connections {
		conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
		if err := conn.WriteMessage(websocket.TextMessage, message); err != nil {
			log.Printf("Failed to send WebSocket message: %v", err)
			delete(h.connections, conn)
			conn.Close()
		}
	}
}

func (h *Handler) checkOrigin(r *http.Request) bool {
	if len(h.AllowedOrigins) == 0 {
		return true
	}
	origin := r.Header.Get("Origin")
	for _, allowed := range h.AllowedOrigins {
		if strings.TrimSpace(allowed) == origin {
			return true
		}
	}
	return false
}

func (h *Handler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	if h.RateLimiter != nil && !h.RateLimiter.Allow(clientIP(r)) {
		sendError(w, "Too many WebSocket connection attempts", http.StatusTooManyRequests)
		return
	}

	upgrader := websocket.Upgrader{CheckOrigin: h.checkOrigin}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already replied to the client
		log.Printf("WebSocket upgrade failed: %v", err)
		return
	}
	h.WSHub.add(conn)

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			h.WSHub.remove(conn)
			return
		}
	}
}
