package api

import (
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/ocx/trustcore/internal/events"
)

const (
	pongWait   = 60 * time.Second // Time allowed to read the next pong
	pingPeriod = 30 * time.Second // Send pings at this interval (must be < pongWait)
	writeWait  = 10 * time.Second // Time allowed to write a message
	maxMsgSize = 4096             // Inbound frames are control-only
)

// Build WebSocket upgrader with origin validation. In production
// (TRUSTCORE_ENV=production), only origins listed in TRUSTCORE_ALLOWED_ORIGINS
// are accepted. In dev/staging, all origins are allowed with a warning.
var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin:     buildCheckOrigin(),
}

func buildCheckOrigin() func(r *http.Request) bool {
	env := os.Getenv("TRUSTCORE_ENV")
	allowedRaw := os.Getenv("TRUSTCORE_ALLOWED_ORIGINS")

	if env == "production" && allowedRaw != "" {
		allowed := make(map[string]bool)
		for _, origin := range strings.Split(allowedRaw, ",") {
			allowed[strings.TrimSpace(origin)] = true
		}
		slog.Info("[WebSocket] Origin allowlist active", "count", len(allowed))
		return func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			if allowed[origin] {
				return true
			}
			slog.Info("[WebSocket] Rejected connection from origin", "origin", origin)
			return false
		}
	}

	if env == "production" && allowedRaw == "" {
		slog.Info("[WebSocket] ⚠️  TRUSTCORE_ALLOWED_ORIGINS not set in production — allowing all origins (INSECURE)")
	}
	return func(r *http.Request) bool {
		return true
	}
}

// handleEventStream upgrades the connection and pushes live trust events.
// Clients select types with ?types=a,b,c; no filter means all events.
// All writes go through writePump so ping frames and event frames never
// race on the connection.
func (s *Server) handleEventStream(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Warn("WebSocket upgrade failed", "error", err)
		return
	}

	var types []string
	if raw := r.URL.Query().Get("types"); raw != "" {
		types = strings.Split(raw, ",")
	}

	sub := s.bus.Subscribe(types...)
	s.logger.Printf("WebSocket subscriber connected (types=%v)", types)

	done := make(chan struct{})
	go s.writePump(conn, sub, done)
	s.readPump(conn, done)

	s.bus.Unsubscribe(sub)
	s.logger.Printf("WebSocket subscriber disconnected")
}

// handleSSE streams live trust events as Server-Sent Events for clients
// that cannot hold a websocket (curl, EventSource). Same ?types= filter as
// the websocket stream.
func (s *Server) handleSSE(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	var types []string
	if raw := r.URL.Query().Get("types"); raw != "" {
		types = strings.Split(raw, ",")
	}

	sub := s.bus.Subscribe(types...)
	defer s.bus.Unsubscribe(sub)
	s.logger.Printf("SSE subscriber connected (types=%v)", types)

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	flusher.Flush()

	for {
		select {
		case event, ok := <-sub:
			if !ok {
				return
			}
			payload, err := event.SSEFormat()
			if err != nil {
				continue
			}
			if _, err := w.Write(payload); err != nil {
				return
			}
			flusher.Flush()
		case <-r.Context().Done():
			s.logger.Printf("SSE subscriber disconnected")
			return
		}
	}
}

// readPump drains inbound frames so pong handling works, and signals
// writePump when the client goes away.
func (s *Server) readPump(conn *websocket.Conn, done chan struct{}) {
	defer close(done)
	conn.SetReadLimit(maxMsgSize)
	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

// writePump is the only goroutine allowed to write to the connection.
func (s *Server) writePump(conn *websocket.Conn, sub chan *events.CloudEvent, done chan struct{}) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		conn.Close()
	}()

	for {
		select {
		case event, ok := <-sub:
			if !ok {
				conn.SetWriteDeadline(time.Now().Add(writeWait))
				conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			payload, err := event.JSON()
			if err != nil {
				continue
			}
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				return
			}
		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-done:
			return
		}
	}
}
