package wsframe

import (
	"log/slog"
	"net/http"

	"github.com/gorilla/websocket"

	"github.com/crystaldolphin/busbridge/internal/hub"
	"github.com/crystaldolphin/busbridge/internal/loop"
	"github.com/crystaldolphin/busbridge/internal/peer"
	"github.com/crystaldolphin/busbridge/internal/window"
)

// Session is one connected host as seen by the frame application.
type Session struct {
	// Hub is the frame-local hub; it becomes ready once the host hands
	// over its port.
	Hub *hub.Hub
	// Peer owns the frame's end of the channel.
	Peer *peer.Peer
	// HostOrigin is the Origin header the host dialed with.
	HostOrigin string

	conn *conn
	done chan struct{}
}

// Done is closed when the host connection ends.
func (s *Session) Done() <-chan struct{} { return s.done }

// Close hangs up on the host. It must be called on the loop.
func (s *Session) Close() { s.conn.shutdown() }

// SessionHandler is called on the loop for every new host connection,
// after the frame announced itself and before the host's port arrives, so
// it can subscribe to s.Hub.
type SessionHandler func(s *Session)

// Server is the frame side: an http.Handler that accepts host connections
// and runs the frame half of the handshake on each.
type Server struct {
	upgrader websocket.Upgrader
	d        loop.Dispatcher
	handler  SessionHandler
	allowed  []string
	logger   *slog.Logger
}

// ServerOption configures a Server.
type ServerOption func(*Server)

// WithHostOrigins only accepts hosts whose Origin header is listed. The
// same list scopes which origins may hand over a port.
func WithHostOrigins(origins ...string) ServerOption {
	return func(s *Server) { s.allowed = append(s.allowed, origins...) }
}

// WithServerLogger sets the logger. The default is slog.Default().
func WithServerLogger(l *slog.Logger) ServerOption {
	return func(s *Server) { s.logger = l }
}

// NewServer creates a frame server whose sessions run on d.
func NewServer(d loop.Dispatcher, handler SessionHandler, opts ...ServerOption) *Server {
	s := &Server{
		d:       d,
		handler: handler,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
		CheckOrigin:     s.checkOrigin,
	}
	return s
}

func (s *Server) checkOrigin(r *http.Request) bool {
	if len(s.allowed) == 0 {
		return true
	}
	origin := r.Header.Get("Origin")
	for _, o := range s.allowed {
		if o == origin || o == window.AnyOrigin {
			return true
		}
	}
	return false
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("wsframe: upgrade failed", "remote", r.RemoteAddr, "err", err)
		return
	}

	hostOrigin := r.Header.Get("Origin")
	if hostOrigin == "" {
		hostOrigin = "null"
	}
	selfOrigin := frameOrigin(r)
	logger := s.logger.With("host", hostOrigin)

	c := newConn(ws, s.d, logger, 2)
	realm := window.NewRealm(selfOrigin, s.d)
	parent := &connWindow{c: c, origin: hostOrigin}
	c.onPost = func(data any, ports []window.MessagePort) {
		realm.Deliver(window.MessageEvent{Data: data, Origin: hostOrigin, Source: parent, Ports: ports})
	}

	sess := &Session{HostOrigin: hostOrigin, conn: c, done: make(chan struct{})}
	s.d.Post(func() {
		sess.Hub = hub.New(logger)
		opts := []peer.Option{peer.WithLogger(logger)}
		if len(s.allowed) > 0 {
			opts = append(opts, peer.WithAllowedOrigins(s.allowed...))
		}
		sess.Peer = peer.Attach(parent, realm, sess.Hub, opts...)
		if s.handler != nil {
			s.handler(sess)
		}
	})
	logger.Info("wsframe: host connected", "remote", r.RemoteAddr)

	err = c.readLoop()
	logger.Info("wsframe: host disconnected", "err", err)
	s.d.Post(func() {
		c.shutdown()
		if sess.Peer != nil {
			sess.Peer.Close()
		}
		close(sess.done)
	})
}

func frameOrigin(r *http.Request) string {
	scheme := "ws"
	if r.TLS != nil {
		scheme = "wss"
	}
	origin, err := window.OriginOf(scheme+"://"+r.Host, "")
	if err != nil {
		return "null"
	}
	return origin
}
