package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/monad-ai/monad-core/internal/session"
	"github.com/monad-ai/monad-core/internal/store"
	"github.com/monad-ai/monad-core/internal/workspace"
	"github.com/monad-ai/monad-core/pkg/models"
)

func newTestServer(t *testing.T) *Server {
	t.Helper()
	st, err := store.Open(context.Background(), ":memory:", nil)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { st.Close() })

	ws := workspace.NewRegistry(st, nil, nil)
	sessions := session.New(st, ws, t.TempDir(), nil)

	if err := st.CreateAgent(context.Background(), &models.Agent{ID: "agent-1", Name: "Test"}); err != nil {
		t.Fatalf("CreateAgent: %v", err)
	}

	return New(Config{
		Host:       "127.0.0.1",
		Store:      st,
		Sessions:   sessions,
		Workspaces: ws,
	})
}

func TestHandleSessionsCreateAndList(t *testing.T) {
	s := newTestServer(t)
	mux := s.mux()

	body := strings.NewReader(`{"agent_id":"agent-1","title":"hello","persona":""}`)
	req := httptest.NewRequest(http.MethodPost, "/v1/sessions", body)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	if rec.Code != http.StatusCreated {
		t.Fatalf("create status = %d, body = %s", rec.Code, rec.Body.String())
	}

	var created models.Session
	if err := json.Unmarshal(rec.Body.Bytes(), &created); err != nil {
		t.Fatalf("unmarshal created session: %v", err)
	}
	if created.ID == "" {
		t.Fatal("expected a session id")
	}

	listReq := httptest.NewRequest(http.MethodGet, "/v1/sessions", nil)
	listRec := httptest.NewRecorder()
	mux.ServeHTTP(listRec, listReq)
	if listRec.Code != http.StatusOK {
		t.Fatalf("list status = %d", listRec.Code)
	}
	var list []*models.Session
	if err := json.Unmarshal(listRec.Body.Bytes(), &list); err != nil {
		t.Fatalf("unmarshal session list: %v", err)
	}
	if len(list) != 1 {
		t.Fatalf("len(list) = %d, want 1", len(list))
	}
}

func TestHandleSessionNotFound(t *testing.T) {
	s := newTestServer(t)
	mux := s.mux()

	req := httptest.NewRequest(http.MethodGet, "/v1/sessions/missing", nil)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
}

func TestHandleStatus(t *testing.T) {
	s := newTestServer(t)
	mux := s.mux()

	req := httptest.NewRequest(http.MethodGet, "/status", nil)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
}

func TestHandleConnectWithoutConnManagerReturnsNotImplemented(t *testing.T) {
	s := newTestServer(t)
	mux := s.mux()

	req := httptest.NewRequest(http.MethodGet, "/v1/connect", nil)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	if rec.Code != http.StatusNotImplemented {
		t.Fatalf("status = %d, want 501 (no conns manager configured)", rec.Code)
	}
}
