// Package httpserver serves the rendered page over HTTP and carries the push
// channel between the broker and the browser.
package httpserver

import (
	"context"
	stderrors "errors"
	"net"
	"net/http"
	"strconv"
	"sync"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	lderrors "livedoc/internal/errors"
)

const shutdownTimeout = 2 * time.Second

// server is the listen/serve/shutdown lifecycle shared by both servers.
type server struct {
	addr    string
	handler http.Handler
	log     *logrus.Entry

	mu       sync.Mutex
	srv      *http.Server
	listener net.Listener
	done     chan struct{}
}

// start binds the address synchronously so a taken port is reported to the
// caller, then serves in the background.
func (s *server) start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.srv != nil {
		return nil
	}

	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		if stderrors.Is(err, syscall.EADDRINUSE) {
			return lderrors.Wrap(err, lderrors.CodePortInUse, "port already in use").WithDetail("addr", s.addr)
		}
		return lderrors.Wrap(err, lderrors.CodePortInUse, "listening").WithDetail("addr", s.addr)
	}

	s.listener = ln
	s.srv = &http.Server{
		Handler:           s.handler,
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.done = make(chan struct{})

	srv, done := s.srv, s.done
	go func() {
		defer close(done)
		if err := srv.Serve(ln); err != nil && !stderrors.Is(err, http.ErrServerClosed) {
			s.log.WithError(err).Error("server stopped")
		}
	}()

	s.log.WithField("addr", ln.Addr().String()).Info("listening")
	return nil
}

// boundAddr returns the listener address, or the configured one before
// start.
func (s *server) boundAddr() string {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return s.addr
}

// stop gracefully shuts the server down.
func (s *server) stop() error {
	s.mu.Lock()
	srv, done := s.srv, s.done
	s.srv = nil
	s.listener = nil
	s.mu.Unlock()

	if srv == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	err := srv.Shutdown(ctx)
	<-done
	return err
}

// JoinHostPort formats host and port as a listen address.
func JoinHostPort(host string, port int) string {
	return net.JoinHostPort(host, strconv.Itoa(port))
}
