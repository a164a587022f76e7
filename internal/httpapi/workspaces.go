package httpapi

import (
	"encoding/json"
	"net/http"

	"github.com/monad-ai/monad-core/pkg/models"
)

type createWorkspaceRequest struct {
	Type models.WorkspaceType `json:"type"`
	Root string               `json:"root"`
	Name string               `json:"name"`
}

func (s *Server) handleWorkspaces(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		list, err := s.store.ListWorkspaces(r.Context())
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, list)
	case http.MethodPost:
		var req createWorkspaceRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]any{"error": "invalid request body"})
			return
		}
		ws := &models.Workspace{Type: req.Type, Root: req.Root, Name: req.Name}
		if err := s.workspaces.Create(r.Context(), ws); err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, ws)
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}
