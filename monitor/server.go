package monitor

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"tickos/trace"
)

const defaultEventLimit = 100

// Response is the envelope every endpoint returns.
type Response struct {
	Status string    `json:"status"`
	Data   any       `json:"data,omitempty"`
	Error  *APIError `json:"error,omitempty"`
}

// APIError describes a failed request.
type APIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Server serves the monitor API.
type Server struct {
	router chi.Router
	target Target
	logger *slog.Logger
}

// NewServer returns a Server with its routes registered.
func NewServer(target Target, logger *slog.Logger) *Server {
	s := &Server{
		router: chi.NewRouter(),
		target: target,
		logger: logger.With("component", "monitor"),
	}
	s.routes()
	return s
}

// Handler returns the http.Handler for this server.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) routes() {
	r := s.router
	r.Use(middleware.Recoverer)
	r.Use(loggingMiddleware(s.logger))

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/status", s.handleStatus)
		r.Get("/tasks", s.handleTasks)
		r.Get("/events", s.handleEvents)
	})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	respondOK(w, s.target.Sample().Status)
}

func (s *Server) handleTasks(w http.ResponseWriter, r *http.Request) {
	respondOK(w, s.target.Sample().Tasks)
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	limit := defaultEventLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			respondError(w, http.StatusBadRequest, &APIError{Code: "invalid_limit", Message: "limit must be a positive integer"})
			return
		}
		limit = n
	}
	if s.target.Recorder == nil {
		respondOK(w, []trace.Event{})
		return
	}
	events := s.target.Recorder.Recent(limit)
	if events == nil {
		events = []trace.Event{}
	}
	respondOK(w, events)
}

func respondOK(w http.ResponseWriter, data any) {
	respondJSON(w, http.StatusOK, Response{Status: "ok", Data: data})
}

func respondError(w http.ResponseWriter, status int, apiErr *APIError) {
	respondJSON(w, status, Response{Status: "error", Error: apiErr})
}

func respondJSON(w http.ResponseWriter, status int, resp Response) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(resp)
}

// loggingMiddleware logs each request at debug level.
func loggingMiddleware(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)
			logger.Debug("request",
				"method", r.Method,
				"path", r.URL.Path,
				"status", ww.Status(),
				"duration", time.Since(start).String(),
			)
		})
	}
}
