package server

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/entrhq/testpilot/pkg/action"
	"github.com/entrhq/testpilot/pkg/orchestrator"
	"github.com/entrhq/testpilot/pkg/session"
	"github.com/entrhq/testpilot/pkg/types"
)

// maxBodyBytes bounds request bodies. Test sources are the largest payload.
const maxBodyBytes = 1 << 20

type chatRequest struct {
	SessionID string `json:"session_id"`
	Message   string `json:"message"`
}

type executeTestRequest struct {
	SessionID string `json:"session_id"`
	action.ExecuteTestParams
}

type executeTestResponse struct {
	SessionID string             `json:"session_id"`
	Result    types.ActionResult `json:"result"`
}

type sessionsResponse struct {
	Sessions []session.Summary `json:"sessions"`
	Count    int               `json:"count"`
}

// JSON writes a JSON response with the given status code.
func JSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Warnf("failed to encode response: %v", err)
	}
}

// Error writes a JSON error response.
func Error(w http.ResponseWriter, status int, message string) {
	JSON(w, status, map[string]string{"error": message})
}

func decodeBody(w http.ResponseWriter, r *http.Request, v interface{}) error {
	return json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(v)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	JSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if err := decodeBody(w, r, &req); err != nil {
		Error(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.SessionID == "" {
		req.SessionID = uuid.NewString()
	}

	unlock := s.locks.Lock(req.SessionID)
	defer unlock()

	reply, err := s.svc.ResolveAndAct(r.Context(), req.SessionID, req.Message, nil)
	switch {
	case errors.Is(err, orchestrator.ErrEmptyMessage):
		Error(w, http.StatusBadRequest, err.Error())
		return
	case err != nil:
		logger.Errorf("chat failed for session %s: %v", req.SessionID, err)
		Error(w, http.StatusInternalServerError, "failed to process message")
		return
	}
	JSON(w, http.StatusOK, reply)
}

func (s *Server) handleExecuteTest(w http.ResponseWriter, r *http.Request) {
	var req executeTestRequest
	if err := decodeBody(w, r, &req); err != nil {
		Error(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := req.ExecuteTestParams.Validate(); err != nil {
		Error(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.SessionID == "" {
		req.SessionID = uuid.NewString()
	}

	unlock := s.locks.Lock(req.SessionID)
	defer unlock()

	result := s.svc.ExecuteTest(r.Context(), req.SessionID, &req.ExecuteTestParams, nil)
	JSON(w, http.StatusOK, executeTestResponse{SessionID: req.SessionID, Result: result})
}

func (s *Server) handleListSessions(w http.ResponseWriter, _ *http.Request) {
	list := s.svc.Sessions()
	JSON(w, http.StatusOK, sessionsResponse{Sessions: list, Count: len(list)})
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	sum, ok := s.svc.Summary(id)
	if !ok {
		Error(w, http.StatusNotFound, "session not found")
		return
	}
	JSON(w, http.StatusOK, sum)
}

func (s *Server) handleDeleteSession(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	unlock := s.locks.Lock(id)
	defer unlock()

	s.svc.Clear(id)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleResetSession(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	unlock := s.locks.Lock(id)
	defer unlock()

	if _, ok := s.svc.Summary(id); !ok {
		Error(w, http.StatusNotFound, "session not found")
		return
	}
	JSON(w, http.StatusOK, s.svc.Reset(r.Context(), id))
}
