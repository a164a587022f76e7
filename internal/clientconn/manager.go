// Package clientconn implements the Client Connection Manager (spec.md
// §4.I): request/response correlation over a persistent bidirectional
// channel to a connected client, used whenever the Tool Dispatcher or a
// client-hosted Workspace variant needs to run something on the client
// rather than the server.
//
// New code — no teacher file implements JSON-RPC-over-websocket request
// correlation (internal/gateway pushes events to clients but never awaits a
// client-computed reply) — built in the teacher's idiom: gorilla/websocket
// for the transport (internal/gateway/ws_control_plane.go's upgrader
// pattern), sync/atomic-style request ids via google/uuid, and a
// mutex-guarded pending-response map instead of the teacher's fire-and-
// forget broadcast.
package clientconn

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// DefaultTimeout is how long Send waits for a correlated response before
// failing with ErrConnectionFailed, per spec.md §5.
const DefaultTimeout = 60 * time.Second

// ErrConnectionFailed is returned when a request times out or its target
// client isn't connected.
var ErrConnectionFailed = errors.New("connectionFailed")

// Frame is one JSON-RPC-shaped message exchanged with a client: a request
// carries Method/Params, a response carries Result or Error keyed by the
// same ID.
type Frame struct {
	ID     string          `json:"id,omitempty"`
	Method string          `json:"method,omitempty"`
	Params json.RawMessage `json:"params,omitempty"`
	Result json.RawMessage `json:"result,omitempty"`
	Error  string          `json:"error,omitempty"`
}

// conn pairs a websocket connection with a write mutex; gorilla/websocket
// connections are not safe for concurrent writers.
type conn struct {
	ws *websocket.Conn
	mu sync.Mutex
}

func (c *conn) writeJSON(v any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ws.WriteJSON(v)
}

// Manager maintains one active connection per client id and correlates
// outbound requests with their inbound responses.
type Manager struct {
	log     *slog.Logger
	timeout time.Duration

	mu      sync.Mutex
	conns   map[string]*conn
	pending map[string]chan Frame
}

// New constructs a Manager. A zero timeout uses DefaultTimeout.
func New(timeout time.Duration, log *slog.Logger) *Manager {
	if log == nil {
		log = slog.Default()
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Manager{log: log, timeout: timeout, conns: map[string]*conn{}, pending: map[string]chan Frame{}}
}

// Register installs the active connection for a client id, replacing any
// prior connection for the same id.
func (m *Manager) Register(clientID string, ws *websocket.Conn) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.conns[clientID] = &conn{ws: ws}
}

// Unregister drops a client's connection. In-flight Send calls for that
// client will time out rather than hang forever.
func (m *Manager) Unregister(clientID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.conns, clientID)
}

// IsConnected reports whether clientID currently has an active connection.
func (m *Manager) IsConnected(clientID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.conns[clientID]
	return ok
}

// Send writes a request frame to clientID and awaits its correlated
// response, failing with ErrConnectionFailed on timeout or if the client
// isn't connected.
func (m *Manager) Send(ctx context.Context, clientID, method string, params any) (json.RawMessage, error) {
	m.mu.Lock()
	c, ok := m.conns[clientID]
	m.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("%w: client %s not connected", ErrConnectionFailed, clientID)
	}

	raw, err := json.Marshal(params)
	if err != nil {
		return nil, fmt.Errorf("marshal request params: %w", err)
	}
	reqID := uuid.New().String()
	frame := Frame{ID: reqID, Method: method, Params: raw}

	waiter := make(chan Frame, 1)
	m.mu.Lock()
	m.pending[reqID] = waiter
	m.mu.Unlock()
	defer func() {
		m.mu.Lock()
		delete(m.pending, reqID)
		m.mu.Unlock()
	}()

	if err := c.writeJSON(frame); err != nil {
		return nil, fmt.Errorf("%w: write failed: %v", ErrConnectionFailed, err)
	}

	timer := time.NewTimer(m.timeout)
	defer timer.Stop()

	select {
	case resp := <-waiter:
		if resp.Error != "" {
			return nil, fmt.Errorf("client error: %s", resp.Error)
		}
		return resp.Result, nil
	case <-timer.C:
		return nil, fmt.Errorf("%w: timed out after %s", ErrConnectionFailed, m.timeout)
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// HandleInbound classifies a raw frame read from a client's connection: a
// frame whose ID matches a pending request is dispatched to its waiter,
// anything else (an event, a frame with an unrecognized or missing id) is
// ignored, per spec.md §4.I.
func (m *Manager) HandleInbound(raw []byte) {
	var frame Frame
	if err := json.Unmarshal(raw, &frame); err != nil {
		m.log.Warn("discarding malformed client frame", "error", err)
		return
	}
	if frame.ID == "" {
		return
	}
	m.mu.Lock()
	waiter, ok := m.pending[frame.ID]
	m.mu.Unlock()
	if !ok {
		return
	}
	select {
	case waiter <- frame:
	default:
	}
}

// ReadFile implements workspace.RemoteExecutor by asking the owning client
// to read a file and base64-decoding its response.
func (m *Manager) ReadFile(ctx context.Context, clientIdentityID, path string) ([]byte, error) {
	result, err := m.Send(ctx, clientIdentityID, "readFile", map[string]string{"path": path})
	if err != nil {
		return nil, err
	}
	var payload struct {
		Data string `json:"data"`
	}
	if err := json.Unmarshal(result, &payload); err != nil {
		return nil, fmt.Errorf("decode readFile response: %w", err)
	}
	return base64.StdEncoding.DecodeString(payload.Data)
}

// WriteFile implements workspace.RemoteExecutor, sending file contents
// base64-encoded since JSON has no native binary type.
func (m *Manager) WriteFile(ctx context.Context, clientIdentityID, path string, data []byte) error {
	_, err := m.Send(ctx, clientIdentityID, "writeFile", map[string]string{
		"path": path,
		"data": base64.StdEncoding.EncodeToString(data),
	})
	return err
}

// ListFiles implements workspace.RemoteExecutor.
func (m *Manager) ListFiles(ctx context.Context, clientIdentityID, path string) ([]string, error) {
	result, err := m.Send(ctx, clientIdentityID, "listFiles", map[string]string{"path": path})
	if err != nil {
		return nil, err
	}
	var names []string
	if err := json.Unmarshal(result, &names); err != nil {
		return nil, fmt.Errorf("decode listFiles response: %w", err)
	}
	return names, nil
}

// DeleteFile implements workspace.RemoteExecutor.
func (m *Manager) DeleteFile(ctx context.Context, clientIdentityID, path string) error {
	_, err := m.Send(ctx, clientIdentityID, "deleteFile", map[string]string{"path": path})
	return err
}

// DispatchTool routes a tool call to clientIdentityID and returns the
// client's JSON result as raw text; the result is not decoded.
func (m *Manager) DispatchTool(ctx context.Context, clientIdentityID, toolID string, args json.RawMessage) (string, error) {
	result, err := m.Send(ctx, clientIdentityID, toolID, args)
	if err != nil {
		return "", err
	}
	return string(result), nil
}
