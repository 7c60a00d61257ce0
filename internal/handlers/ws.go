package handlers

import (
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/vevsa/books-auth/internal/common"
	"github.com/vevsa/books-auth/internal/services"
)

const (
	wsWriteWait = 10 * time.Second
	wsPongWait  = 60 * time.Second
)

// RecoveryStream pushes recovery events addressed to ?publicKey= over a
// WebSocket.
type RecoveryStream struct {
	hub       *services.Hub
	rs        Responder
	upgrader  websocket.Upgrader
	pingEvery time.Duration
}

func NewRecoveryStream(hub *services.Hub, allowedOrigins []string, rs Responder) *RecoveryStream {
	allowed := make(map[string]struct{}, len(allowedOrigins))
	for _, o := range allowedOrigins {
		allowed[strings.TrimRight(o, "/")] = struct{}{}
	}
	_, anyOrigin := allowed["*"]

	return &RecoveryStream{
		hub: hub,
		rs:  rs,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				origin := r.Header.Get("Origin")
				if origin == "" || anyOrigin {
					return true
				}
				_, ok := allowed[origin]
				return ok
			},
		},
		pingEvery: wsPongWait * 9 / 10,
	}
}

func (s *RecoveryStream) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	publicKey := strings.TrimSpace(r.URL.Query().Get("publicKey"))
	if publicKey == "" {
		s.rs.Fail(w, r, common.Validation("publicKey is required"))
		return
	}

	// Subscribe before the handshake completes so nothing published after
	// the client connects is missed.
	sub := s.hub.Subscribe(publicKey)
	defer sub.Close()

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	done := make(chan struct{})
	go func() {
		defer close(done)
		conn.SetReadLimit(4 * 1024)
		_ = conn.SetReadDeadline(time.Now().Add(wsPongWait))
		conn.SetPongHandler(func(string) error {
			return conn.SetReadDeadline(time.Now().Add(wsPongWait))
		})
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(s.pingEvery)
	defer ticker.Stop()
	for {
		select {
		case <-done:
			return
		case ev, ok := <-sub.Events():
			if !ok {
				return
			}
			_ = conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := conn.WriteJSON(ev); err != nil {
				return
			}
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(wsWriteWait)); err != nil {
				return
			}
		}
	}
}
