package httpapi

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/monad-ai/monad-core/pkg/models"
)

type createJobRequest struct {
	ParentID    string `json:"parent_id"`
	AgentID     string `json:"agent_id"`
	SessionID   string `json:"session_id"`
	Title       string `json:"title"`
	Description string `json:"description"`
	Priority    int    `json:"priority"`
}

func (s *Server) handleJobs(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req createJobRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "invalid request body"})
		return
	}
	job := &models.Job{
		ParentID:    req.ParentID,
		AgentID:     req.AgentID,
		SessionID:   req.SessionID,
		Title:       req.Title,
		Description: req.Description,
		Priority:    req.Priority,
		Status:      models.JobPending,
	}
	if err := s.store.CreateJob(r.Context(), job); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, job)
}

// handleJob dispatches /v1/jobs/{id}[/children] and DELETE for cancellation.
func (s *Server) handleJob(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/v1/jobs/")
	parts := strings.SplitN(rest, "/", 2)
	jobID := parts[0]
	if jobID == "" {
		http.NotFound(w, r)
		return
	}
	if len(parts) == 2 && parts[1] == "children" {
		children, err := s.store.ListChildJobs(r.Context(), jobID)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, children)
		return
	}

	switch r.Method {
	case http.MethodGet:
		job, err := s.store.GetJob(r.Context(), jobID)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, job)
	case http.MethodDelete:
		if err := s.store.CancelJob(r.Context(), jobID); err != nil {
			writeError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}
