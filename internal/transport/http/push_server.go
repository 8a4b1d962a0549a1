package httpserver

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/websocket"

	"livedoc/internal/logging"
	"livedoc/internal/session"
)

// Hub receives push-channel lifecycle events and messages.
type Hub interface {
	Connect(conn session.Conn) *session.Session
	Submit(s *session.Session, raw []byte) bool
	Disconnect(s *session.Session)
}

// PushServer upgrades connections to websockets and hands them to a Hub.
type PushServer struct {
	*server
	hub      Hub
	upgrader websocket.Upgrader
}

// NewPushServer creates a push server bound to addr.
func NewPushServer(addr string, hub Hub) *PushServer {
	s := &PushServer{
		hub: hub,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
	s.server = &server{
		addr:    addr,
		handler: s.routes(),
		log:     logging.NewLogger("push"),
	}
	return s
}

func (s *PushServer) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Get("/*", s.handleWS)
	return r
}

// Handler returns the router, for tests and embedding.
func (s *PushServer) Handler() http.Handler {
	return s.handler
}

// Start binds the listener and serves in the background.
func (s *PushServer) Start() error {
	return s.start()
}

// Addr returns the bound address.
func (s *PushServer) Addr() string {
	return s.boundAddr()
}

// Stop stops accepting connections. Open websockets are closed by the hub.
func (s *PushServer) Stop() error {
	return s.stop()
}

// handleWS upgrades the connection and forwards viewer messages to the hub
// until the connection closes.
func (s *PushServer) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.WithError(err).Debug("upgrade failed")
		return
	}

	sess := s.hub.Connect(conn)
	defer s.hub.Disconnect(sess)

	for {
		kind, msg, err := conn.ReadMessage()
		if err != nil {
			return
		}
		if kind != websocket.TextMessage && kind != websocket.BinaryMessage {
			continue
		}
		if !s.hub.Submit(sess, msg) {
			return
		}
	}
}
