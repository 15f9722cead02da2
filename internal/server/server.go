package server

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/httplog"

	"formpilot/internal/application/port/input"
	"formpilot/internal/application/port/output"
	"formpilot/internal/domain/entity"
)

// Server is the HTTP control surface: start workflows, run batches, query
// session status and the audit trail.
type Server struct {
	runner  input.WorkflowRunner
	storage output.StoragePort
	logger  output.LoggerPort
}

func New(runner input.WorkflowRunner, storage output.StoragePort, logger output.LoggerPort) *Server {
	return &Server{
		runner:  runner,
		storage: storage,
		logger:  logger,
	}
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	httpLogger := httplog.NewLogger("formpilot", httplog.Options{
		JSON:    true,
		Concise: true,
	})
	r.Use(httplog.RequestLogger(httpLogger))
	r.Use(middleware.Recoverer)

	r.Post("/workflows", s.handleRun)
	r.Post("/workflows/batch", s.handleBatch)
	r.Post("/workflows/stop", s.handleStop)
	r.Get("/status", s.handleStatus)
	r.Get("/audit", s.handleAudit)

	return r
}

func (s *Server) handleRun(w http.ResponseWriter, r *http.Request) {
	var req entity.WorkflowRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if !req.Kind.IsValid() {
		s.writeError(w, http.StatusBadRequest, "unknown workflow kind: "+string(req.Kind))
		return
	}

	outcome := s.runner.Run(r.Context(), req)
	s.writeJSON(w, http.StatusOK, outcome)
}

type batchRequest struct {
	Requests []entity.WorkflowRequest `json:"requests"`
}

func (s *Server) handleBatch(w http.ResponseWriter, r *http.Request) {
	var req batchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if len(req.Requests) == 0 {
		s.writeError(w, http.StatusBadRequest, "batch is empty")
		return
	}

	outcomes := s.runner.RunBatch(r.Context(), req.Requests)
	s.writeJSON(w, http.StatusOK, map[string]any{"outcomes": outcomes})
}

func (s *Server) handleStop(w http.ResponseWriter, r *http.Request) {
	s.runner.Stop()
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "stopped"})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.runner.Status())
}

func (s *Server) handleAudit(w http.ResponseWriter, r *http.Request) {
	limit := 100
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			s.writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = parsed
	}

	entries, err := s.storage.AuditEntries(r.Context(), limit)
	if err != nil {
		s.logger.Error("Audit query failed", "error", err)
		s.writeError(w, http.StatusInternalServerError, "audit query failed")
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"entries": entries})
}

func (s *Server) writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("Response encode failed", "error", err)
	}
}

func (s *Server) writeError(w http.ResponseWriter, code int, msg string) {
	s.writeJSON(w, code, map[string]string{"error": msg})
}
