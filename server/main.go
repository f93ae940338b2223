package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/chepyr/go-todo-tracker/internal/config"
	"github.com/chepyr/go-todo-tracker/internal/db"
	"github.com/chepyr/go-todo-tracker/internal/handlers"
	"github.com/chepyr/go-todo-tracker/internal/session"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	backend := initBackend(cfg)
	defer func() {
		if err := backend.Close(); err != nil {
			log.Printf("Error closing storage backend: %v", err)
		}
	}()

	s := initSession(cfg, backend)
	mux := http.NewServeMux()
	initHandlers(cfg, s, mux)

	server := &http.Server{
		Addr:    ":" + cfg.ServerPort,
		Handler: mux,
	}
	startServer(server, s)
}

func initBackend(cfg config.Config) *db.Backend {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	backend, err := db.Open(ctx, cfg)
	if err != nil {
		log.Fatalf("Failed to open %s storage: %v", cfg.Backend, err)
	}
	log.Printf("Using %s storage", cfg.Backend)
	return backend
}

func initSession(cfg config.Config, backend *db.Backend) *session.Session {
	store := db.NewTaskStoreFromConfig(backend, cfg, log.Default())
	s := session.Open(context.Background(), store, session.WithDebounce(cfg.SaveDebounce))
	log.Printf("Loaded %d tasks", len(s.Tasks()))
	return s
}

func initHandlers(cfg config.Config, s *session.Session, mux *http.ServeMux) *handlers.Handler {
	handler := handlers.NewHandler(s, handlers.NewRateLimiter(100, time.Second), cfg.AllowedOrigins)
	handler.Routes(mux)
	return handler
}

func startServer(server *http.Server, s *session.Session) {
	log.Printf("Starting todo server on %s", server.Addr)

	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server failed: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("Shutting down server")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		log.Printf("Server shutdown failed: %v", err)
	}
	if err := s.Close(ctx); err != nil {
		log.Printf("Failed to save pending changes: %v", err)
	}
	log.Println("Server stopped")
}
