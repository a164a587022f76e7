package httpapi

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/monad-ai/monad-core/internal/chat"
	"github.com/monad-ai/monad-core/pkg/models"
)

type createSessionRequest struct {
	AgentID string `json:"agent_id"`
	Title   string `json:"title"`
	Persona string `json:"persona"`
}

func (s *Server) handleSessions(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		page := queryInt(r, "page", 1)
		perPage := queryInt(r, "per_page", 20)
		list, err := s.store.ListSessions(r.Context(), page, perPage)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, list)
	case http.MethodPost:
		var req createSessionRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]any{"error": "invalid request body"})
			return
		}
		sess, err := s.sessions.CreateSession(r.Context(), req.AgentID, req.Title, req.Persona)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, sess)
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

// handleSessionSubresource dispatches /v1/sessions/{id}[/messages|/chat/stream|/workspaces].
func (s *Server) handleSessionSubresource(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/v1/sessions/")
	parts := strings.SplitN(rest, "/", 2)
	sessionID := parts[0]
	if sessionID == "" {
		http.NotFound(w, r)
		return
	}
	if len(parts) == 1 {
		s.handleSession(w, r, sessionID)
		return
	}
	switch parts[1] {
	case "messages":
		s.handleMessages(w, r, sessionID)
	case "chat/stream":
		s.handleChatStream(w, r, sessionID)
	case "workspaces":
		s.handleSessionWorkspaces(w, r, sessionID)
	default:
		http.NotFound(w, r)
	}
}

func (s *Server) handleSession(w http.ResponseWriter, r *http.Request, sessionID string) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	sess, err := s.store.GetSession(r.Context(), sessionID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sess)
}

func (s *Server) handleMessages(w http.ResponseWriter, r *http.Request, sessionID string) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	limit := queryInt(r, "limit", 50)
	msgs, err := s.store.ListMessages(r.Context(), sessionID, limit)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, msgs)
}

func (s *Server) handleSessionWorkspaces(w http.ResponseWriter, r *http.Request, sessionID string) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	statuses, err := s.sessions.GetWorkspaces(r.Context(), sessionID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, statuses)
}

type chatStreamRequest struct {
	Text        string              `json:"text"`
	ToolOutputs []models.ToolResult `json:"tool_outputs,omitempty"`
}

// handleChatStream runs one Chat Engine turn and relays its ChatDelta
// stream to the client as Server-Sent Events, matching the teacher's
// streaming.go convention of one JSON payload per "data:" line.
func (s *Server) handleChatStream(w http.ResponseWriter, r *http.Request, sessionID string) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req chatStreamRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "invalid request body"})
		return
	}

	entry, err := s.sessions.HydrateSession(r.Context(), sessionID, "")
	if err != nil {
		writeError(w, err)
		return
	}
	agent, err := s.store.GetAgent(r.Context(), entry.Session.AgentID)
	if err != nil {
		writeError(w, err)
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	deltas, err := s.engine.Run(r.Context(), chat.TurnRequest{
		Session:     entry.Session,
		Agent:       agent,
		UserText:    req.Text,
		ToolOutputs: req.ToolOutputs,
	})
	if err != nil {
		writeSSE(w, flusher, map[string]any{"kind": "error", "err": err.Error()})
		return
	}
	for delta := range deltas {
		writeSSE(w, flusher, delta)
	}
}

func writeSSE(w http.ResponseWriter, flusher http.Flusher, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		return
	}
	w.Write([]byte("data: "))
	w.Write(data)
	w.Write([]byte("\n\n"))
	flusher.Flush()
}
