package api

import (
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gorilla/websocket"
)

const (
	wsReadBufferSize  = 1024
	wsWriteBufferSize = 1024
	wsWriteTimeout    = 10 * time.Second
)

// handleWebSocket streams hub events as JSON messages. The query
// parameter since=<id> replays buffered events newer than id first.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	upgrader := websocket.Upgrader{
		ReadBufferSize:  wsReadBufferSize,
		WriteBufferSize: wsWriteBufferSize,
		CheckOrigin: func(r *http.Request) bool {
			return isOriginAllowed(r, s.config.AllowedOrigins)
		},
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Debug("ws_upgrade_failed", "error", err, "origin", r.Header.Get("Origin"))
		return
	}
	defer conn.Close()

	ch, cancel := s.events.Subscribe()
	defer cancel()

	done := make(chan struct{})
	defer close(done)

	lastID := parseLastEventID(r.URL.Query().Get("since"))
	backlog := s.events.SnapshotSince(lastID)

	go func() {
		for _, ev := range backlog {
			if err := writeWS(conn, ev); err != nil {
				return
			}
			lastID = ev.ID
		}
		for {
			select {
			case ev, ok := <-ch:
				if !ok {
					_ = conn.WriteControl(websocket.CloseMessage,
						websocket.FormatCloseMessage(websocket.CloseGoingAway, "shutting down"),
						time.Now().Add(time.Second))
					return
				}
				if ev.ID <= lastID {
					continue
				}
				if err := writeWS(conn, ev); err != nil {
					return
				}
				lastID = ev.ID
			case <-done:
				return
			}
		}
	}()

	// The client sends nothing meaningful; reading detects disconnects and
	// processes control frames.
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

func writeWS(conn *websocket.Conn, payload any) error {
	if err := conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout)); err != nil {
		return err
	}
	return conn.WriteJSON(payload)
}

// isOriginAllowed accepts requests without Origin, origins on the allow
// list (full origin or host), and otherwise only the request's own host.
func isOriginAllowed(r *http.Request, allowed []string) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}

	parsed, err := url.Parse(origin)
	if err != nil {
		return false
	}
	originHost := parsed.Hostname()
	if originHost == "" {
		return false
	}

	if len(allowed) > 0 {
		for _, allowedOrigin := range allowed {
			if allowedOrigin == "*" ||
				strings.EqualFold(origin, allowedOrigin) ||
				strings.EqualFold(originHost, allowedOrigin) {
				return true
			}
		}
		return false
	}

	return strings.EqualFold(originHost, hostOnly(r.Host))
}

func hostOnly(hostport string) string {
	if host, _, err := net.SplitHostPort(hostport); err == nil {
		return strings.Trim(host, "[]")
	}
	return strings.Trim(hostport, "[]")
}
