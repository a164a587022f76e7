package httpapi

import (
	"net/http"
	"strings"
)

// handleConnect upgrades a client's HTTP connection to a websocket and
// registers it with the Client Connection Manager under the client id it
// supplies, per spec.md §6. Inbound frames are handed to the manager for
// request/response correlation until the connection closes.
func (s *Server) handleConnect(w http.ResponseWriter, r *http.Request) {
	if s.conns == nil {
		http.Error(w, "client connections not supported", http.StatusNotImplemented)
		return
	}
	clientID := strings.TrimSpace(r.Header.Get(clientIdentityHeader))
	if clientID == "" {
		http.Error(w, "missing "+clientIdentityHeader+" header", http.StatusBadRequest)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn("websocket upgrade failed", "error", err, "client_id", clientID)
		return
	}

	s.conns.Register(clientID, conn)
	s.log.Info("client connected", "client_id", clientID)

	defer func() {
		s.conns.Unregister(clientID)
		conn.Close()
		s.log.Info("client disconnected", "client_id", clientID)
	}()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		s.conns.HandleInbound(data)
	}
}
