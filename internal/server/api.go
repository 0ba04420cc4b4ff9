package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"os"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/majorcontext/portico/internal/log"
	"github.com/majorcontext/portico/internal/target"
)

// HealthResponse is returned by GET /healthz.
type HealthResponse struct {
	Status    string `json:"status"`
	PID       int    `json:"pid"`
	Targets   int    `json:"targets"`
	StartedAt string `json:"started_at"`
}

// ErrorResponse is the body of every non-2xx API response.
type ErrorResponse struct {
	Error  string `json:"error"`
	Detail string `json:"detail,omitempty"`
}

func (s *Server) applicationsRouter() http.Handler {
	r := chi.NewRouter()
	r.Get("/", s.handleListTargets)
	r.Post("/", s.handleCreateTarget)
	r.Put("/", s.handleUpdateTarget)
	r.Get("/{id}", s.handleGetTarget)
	r.Delete("/{id}", s.handleDeleteTarget)
	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, HealthResponse{
		Status:    "ok",
		PID:       os.Getpid(),
		Targets:   s.registry.Len(),
		StartedAt: s.startedAt.Format(time.RFC3339),
	})
}

// handleListTargets returns every target with its secrets cleared.
func (s *Server) handleListTargets(w http.ResponseWriter, _ *http.Request) {
	targets := s.registry.List()
	out := make([]target.Config, len(targets))
	for i, t := range targets {
		out[i] = t.Sanitized()
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleGetTarget(w http.ResponseWriter, r *http.Request) {
	cfg, ok := s.registry.Resolve(chi.URLParam(r, "id"))
	if !ok {
		writeError(w, http.StatusNotFound, "target not found", "")
		return
	}
	writeJSON(w, http.StatusOK, cfg)
}

func (s *Server) handleCreateTarget(w http.ResponseWriter, r *http.Request) {
	var cfg target.Config
	if err := json.NewDecoder(r.Body).Decode(&cfg); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON", err.Error())
		return
	}

	stored, err := s.registry.Add(cfg)
	if err != nil {
		log.Error("saving target", "target", cfg.ID, "error", err)
		writeError(w, http.StatusInternalServerError, "saving registry failed", "")
		return
	}
	log.Debug("target added", "target", stored.ID, "host", stored.Host, "auth", stored.Auth().String())
	writeJSON(w, http.StatusCreated, stored)
}

func (s *Server) handleUpdateTarget(w http.ResponseWriter, r *http.Request) {
	var cfg target.Config
	if err := json.NewDecoder(r.Body).Decode(&cfg); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON", err.Error())
		return
	}

	stored, err := s.registry.Update(cfg)
	if errors.Is(err, target.ErrNotFound) {
		writeError(w, http.StatusNotFound, "target not found", "")
		return
	}
	if err != nil {
		log.Error("saving target", "target", cfg.ID, "error", err)
		writeError(w, http.StatusInternalServerError, "saving registry failed", "")
		return
	}
	log.Debug("target updated", "target", stored.ID)
	writeJSON(w, http.StatusOK, stored)
}

func (s *Server) handleDeleteTarget(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	err := s.registry.Delete(id)
	if errors.Is(err, target.ErrNotFound) {
		writeError(w, http.StatusNotFound, "target not found", "")
		return
	}
	if err != nil {
		log.Error("saving registry", "target", id, "error", err)
		writeError(w, http.StatusInternalServerError, "saving registry failed", "")
		return
	}
	log.Debug("target removed", "target", id)
	w.WriteHeader(http.StatusNoContent)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg, detail string) {
	writeJSON(w, status, ErrorResponse{Error: msg, Detail: detail})
}
