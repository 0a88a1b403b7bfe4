package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/jpalmerr/pulsewatch/service"
)

const (
	// sseWriteTimeout is the maximum time allowed for a single SSE write operation.
	// If a client cannot receive data within this window, the connection is closed.
	sseWriteTimeout = 5 * time.Second

	// wsWriteTimeout bounds a single websocket frame write.
	wsWriteTimeout = 5 * time.Second
)

// Message types carried by the event streams.
const (
	MessageSnapshot     = "snapshot"
	MessageNotification = "notification"
)

// StreamMessage is one frame on /api/v1/events and /api/v1/ws. The first
// frame is always a snapshot; every later frame is a notification.
type StreamMessage struct {
	Type         string                `json:"type"`
	Services     []ServiceView         `json:"services,omitempty"`
	Notification *service.Notification `json:"notification,omitempty"`
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		u, err := url.Parse(origin)
		if err != nil {
			return false
		}
		host := strings.ToLower(strings.TrimSpace(r.Host))
		originHost := strings.ToLower(strings.TrimSpace(u.Host))
		return host == originHost
	},
}

// handleEvents streams notifications via Server-Sent Events.
//
// The handler subscribes before reading the snapshot, so no mutation accepted
// after the snapshot is missed (a mutation may appear in both). Write
// deadlines keep a slow client from pinning the handler goroutine.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	// check if flushing is supported
	if _, ok := w.(http.Flusher); !ok {
		http.Error(w, "SSE not supported", http.StatusInternalServerError)
		return
	}

	rc := http.NewResponseController(w)

	// track if write deadlines are supported (may not be for some ResponseWriter impls)
	deadlinesSupported := true

	writeAndFlush := func(msg StreamMessage) error {
		data, err := json.Marshal(msg)
		if err != nil {
			return err
		}
		if deadlinesSupported {
			if err := rc.SetWriteDeadline(time.Now().Add(sseWriteTimeout)); err != nil {
				s.logger.Warn("sse write deadlines not supported", "error", err)
				deadlinesSupported = false
			}
		}
		if _, err := fmt.Fprintf(w, "data: %s\n\n", data); err != nil {
			return err
		}
		return rc.Flush()
	}

	ch, err := s.backend.Subscribe(r.Context())
	if err != nil {
		s.writeEngineError(w, r, err)
		return
	}
	defer s.backend.Unsubscribe(ch)

	views, err := s.overview(r)
	if err != nil {
		s.writeEngineError(w, r, err)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("Access-Control-Allow-Origin", "*")

	if err := writeAndFlush(StreamMessage{Type: MessageSnapshot, Services: views}); err != nil {
		return
	}

	for {
		select {
		case n, ok := <-ch:
			if !ok {
				// engine stopped
				return
			}
			if err := writeAndFlush(StreamMessage{Type: MessageNotification, Notification: &n}); err != nil {
				return
			}

		case <-r.Context().Done():
			// request context is derived from server context via BaseContext,
			// so this fires on both client disconnect AND server shutdown
			return
		}
	}
}

// handleWebSocket carries the same frames as handleEvents over a websocket.
// Inbound messages are read and discarded only to notice the close.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	ch, err := s.backend.Subscribe(r.Context())
	if err != nil {
		s.writeEngineError(w, r, err)
		return
	}
	defer s.backend.Unsubscribe(ch)

	views, err := s.overview(r)
	if err != nil {
		s.writeEngineError(w, r, err)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already written the error response
		return
	}
	defer conn.Close()

	if err := writeFrame(conn, StreamMessage{Type: MessageSnapshot, Services: views}); err != nil {
		return
	}

	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case n, ok := <-ch:
			if !ok {
				_ = conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseGoingAway, "engine stopped"),
					time.Now().Add(wsWriteTimeout))
				return
			}
			if err := writeFrame(conn, StreamMessage{Type: MessageNotification, Notification: &n}); err != nil {
				return
			}
		case <-closed:
			return
		case <-r.Context().Done():
			return
		}
	}
}

func writeFrame(conn *websocket.Conn, msg StreamMessage) error {
	_ = conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
	return conn.WriteJSON(msg)
}
