package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/handlers"
	"github.com/sirupsen/logrus"

	"github.com/kirillm/signal-desk/internal/domain"
	"github.com/kirillm/signal-desk/internal/session"
	"github.com/kirillm/signal-desk/internal/workflow"
	"github.com/kirillm/signal-desk/pkg/utils"
)

// Store данные, которые отдает HTTP API
type Store interface {
	GetAllOperations(ctx context.Context) ([]domain.Operation, error)
	Stats(ctx context.Context) (*domain.DatabaseStats, error)
	Ping(ctx context.Context) error
}

// Server HTTP-сервер проверки здоровья и статистики бота
type Server struct {
	store       Store
	locks       *session.Manager
	serviceName string
	platform    string
	port        int
	started     time.Time
	logger      *logrus.Entry
	now         func() time.Time
}

type Response struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
}

func NewServer(store Store, locks *session.Manager, serviceName, platform string, port int, logger *logrus.Entry) *Server {
	return &Server{
		store:       store,
		locks:       locks,
		serviceName: serviceName,
		platform:    platform,
		port:        port,
		started:     time.Now(),
		logger:      logger.WithField("component", "http"),
		now:         time.Now,
	}
}

// Handler роутер со всеми маршрутами
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()

	r.Get("/", s.handleHealth)
	r.Get("/health", s.handleHealth)
	r.Get("/status", s.handleStatus)
	r.Get("/stats", s.handleStats)

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		s.sendError(w, "This is a trading bot service. No web interface available.", http.StatusNotFound)
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		s.sendError(w, "Method not allowed", http.StatusMethodNotAllowed)
	})

	cors := handlers.CORS(
		handlers.AllowedOrigins([]string{"*"}),
		handlers.AllowedMethods([]string{http.MethodGet, http.MethodPost, http.MethodOptions}),
		handlers.AllowedHeaders([]string{"Content-Type"}),
	)

	return handlers.RecoveryHandler(handlers.RecoveryLogger(s.logger), handlers.PrintRecoveryStack(true))(cors(r))
}

// Start слушает порт до отмены контекста
func (s *Server) Start(ctx context.Context) error {
	addr := fmt.Sprintf(":%d", s.port)

	server := &http.Server{
		Addr:         addr,
		Handler:      s.Handler(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.WithField("addr", addr).Info("Starting HTTP server")
		errCh <- server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	s.logger.Info("Shutting down HTTP server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("http shutdown: %w", err)
	}
	return nil
}

// handleHealth - health check endpoint
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	uptime := s.now().Sub(s.started)
	health := map[string]interface{}{
		"status":         "ok",
		"service":        s.serviceName,
		"platform":       s.platform,
		"timestamp":      s.now().UTC().Format(time.RFC3339),
		"uptime":         utils.FormatDuration(uptime),
		"uptime_seconds": int64(uptime.Seconds()),
	}

	if err := s.store.Ping(r.Context()); err != nil {
		s.logger.WithError(err).Warn("Database ping failed")
		health["status"] = "degraded"
		health["database"] = err.Error()
		s.send(w, http.StatusServiceUnavailable, Response{Success: false, Data: health, Error: "database unavailable"})
		return
	}

	s.sendSuccess(w, health)
}

// handleStatus - commands and in-flight sessions
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	sessions := make(map[string]int, len(session.Domains))
	for _, d := range session.Domains {
		sessions[string(d)] = 0
	}
	if s.locks != nil {
		for d, n := range s.locks.Active() {
			sessions[string(d)] = n
		}
	}

	s.sendSuccess(w, map[string]interface{}{
		"service":   s.serviceName,
		"platform":  s.platform,
		"commands":  workflow.Commands,
		"sessions":  sessions,
		"timestamp": s.now().UTC().Format(time.RFC3339),
	})
}

// handleStats - operations summary
func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	ops, err := s.store.GetAllOperations(r.Context())
	if err != nil {
		s.logger.WithError(err).Error("Failed to load operations")
		s.sendError(w, "Failed to load operations", http.StatusInternalServerError)
		return
	}

	stats, err := s.store.Stats(r.Context())
	if err != nil {
		s.logger.WithError(err).Error("Failed to load database stats")
		s.sendError(w, "Failed to load database stats", http.StatusInternalServerError)
		return
	}

	s.sendSuccess(w, map[string]interface{}{
		"summary":   workflow.Summarize(ops),
		"database":  stats,
		"timestamp": s.now().UTC().Format(time.RFC3339),
	})
}

// Helper methods
func (s *Server) sendSuccess(w http.ResponseWriter, data interface{}) {
	s.send(w, http.StatusOK, Response{Success: true, Data: data})
}

func (s *Server) sendError(w http.ResponseWriter, message string, statusCode int) {
	s.send(w, statusCode, Response{Success: false, Error: message})
}

func (s *Server) send(w http.ResponseWriter, statusCode int, resp Response) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		s.logger.WithError(err).Debug("Failed to write response")
	}
}
