package server

import (
	"errors"
	"net/http"
	"time"

	"github.com/apexion-ai/vesselcheck/internal/agent"
	"github.com/apexion-ai/vesselcheck/internal/checklist"
	"github.com/apexion-ai/vesselcheck/internal/session"
)

type chatRequest struct {
	Content   *string `json:"content"`
	SessionID string  `json:"session_id"`
}

// handleChat handles POST /api/chat. The turn outcome, degraded or not, is
// always reported with 200; only a request without content is rejected.
func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}
	if req.Content == nil {
		writeError(w, http.StatusBadRequest, "content is required")
		return
	}

	resp := s.turns.HandleTurn(r.Context(), agent.TurnRequest{
		SessionID: req.SessionID,
		Content:   *req.Content,
	})
	writeJSON(w, http.StatusOK, resp)
}

type checklistsResponse struct {
	Categories []checklist.Category `json:"categories"`
}

func (s *Server) handleChecklists(w http.ResponseWriter, r *http.Request) {
	forest, err := s.store.Forest(r.Context())
	if err != nil {
		s.log.Error().Err(err).Msg("load checklist")
		writeError(w, http.StatusInternalServerError, "failed to load checklist")
		return
	}
	if forest == nil {
		forest = []checklist.Category{}
	}
	writeJSON(w, http.StatusOK, checklistsResponse{Categories: forest})
}

func (s *Server) handleUpdateItem(w http.ResponseWriter, r *http.Request) {
	var u checklist.ItemUpdate
	if err := decodeBody(w, r, &u); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}
	if u.ID <= 0 {
		writeError(w, http.StatusBadRequest, "id is required")
		return
	}

	it, err := s.store.UpdateItem(r.Context(), u)
	switch {
	case errors.Is(err, checklist.ErrItemNotFound):
		writeError(w, http.StatusNotFound, "item not found")
		return
	case err != nil:
		s.log.Error().Err(err).Int64("item", u.ID).Msg("update item")
		writeError(w, http.StatusInternalServerError, "failed to update item")
		return
	}

	s.log.Info().Int64("item", it.ID).Bool("completed", it.Completed).Msg("item updated directly")
	writeJSON(w, http.StatusOK, it)
}

type sessionsResponse struct {
	Sessions []session.Info `json:"sessions"`
}

func (s *Server) handleListSessions(w http.ResponseWriter, r *http.Request) {
	infos := s.memory.Sessions()
	if infos == nil {
		infos = []session.Info{}
	}
	writeJSON(w, http.StatusOK, sessionsResponse{Sessions: infos})
}

func (s *Server) handleSessionMemory(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.memory.Context(r.PathValue("id"), s.window))
}

func (s *Server) handleClearSession(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	s.memory.Clear(id)
	s.log.Info().Str("session", id).Msg("session cleared")
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleClearAll(w http.ResponseWriter, r *http.Request) {
	s.memory.ClearAll()
	s.log.Info().Msg("all sessions cleared")
	w.WriteHeader(http.StatusNoContent)
}

// HealthResponse is the body of GET /health.
type HealthResponse struct {
	OK       bool   `json:"ok"`
	DB       string `json:"db"`
	Sessions int    `json:"sessions"`
	Version  string `json:"version"`
	Time     string `json:"time"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	health := HealthResponse{
		OK:       true,
		DB:       "ok",
		Sessions: s.memory.Len(),
		Version:  s.version,
		Time:     time.Now().UTC().Format(time.RFC3339),
	}
	if p, ok := s.store.(pinger); ok {
		if err := p.Ping(r.Context()); err != nil {
			health.OK = false
			health.DB = err.Error()
		}
	}

	status := http.StatusOK
	if !health.OK {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, health)
}
